package services

import (
	"streamcast/internal/core/domain"
)

// TopologyService derives the distribution mode for a session from its
// current viewer count. Mode is a pure function of the count and the two
// configured thresholds; it is recomputed on every join/leave.
type TopologyService struct {
	meshMax  int // viewers at or below this stay in a full mesh
	relayMax int // viewers at or below this are served by relay
}

func NewTopologyService(meshMax, relayMax int) *TopologyService {
	if meshMax <= 0 {
		meshMax = 5
	}
	if relayMax <= meshMax {
		relayMax = 50
	}
	return &TopologyService{meshMax: meshMax, relayMax: relayMax}
}

// ModeFor classifies a viewer count into a distribution mode.
func (t *TopologyService) ModeFor(viewerCount int) domain.DistributionMode {
	switch {
	case viewerCount <= t.meshMax:
		return domain.ModeMesh
	case viewerCount <= t.relayMax:
		return domain.ModeRelay
	default:
		return domain.ModeFallback
	}
}

// Thresholds returns the configured mesh and relay limits.
func (t *TopologyService) Thresholds() (meshMax, relayMax int) {
	return t.meshMax, t.relayMax
}
