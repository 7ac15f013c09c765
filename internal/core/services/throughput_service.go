package services

import (
	"time"
)

// QualityTier labels the broadcaster's measured upload throughput.
type QualityTier string

const (
	TierPoor QualityTier = "poor"
	TierFair QualityTier = "fair"
	TierGood QualityTier = "good"
)

// ThroughputService converts byte deltas into kbps and classifies them into
// quality tiers reported back to the broadcaster.
type ThroughputService struct {
	poorBelowKbps int
	fairBelowKbps int
}

func NewThroughputService(poorBelowKbps, fairBelowKbps int) *ThroughputService {
	if poorBelowKbps <= 0 {
		poorBelowKbps = 800
	}
	if fairBelowKbps <= poorBelowKbps {
		fairBelowKbps = 2000
	}
	return &ThroughputService{
		poorBelowKbps: poorBelowKbps,
		fairBelowKbps: fairBelowKbps,
	}
}

// Kbps computes throughput from a byte delta over elapsed time.
func (s *ThroughputService) Kbps(byteDelta int64, elapsed time.Duration) int {
	if elapsed <= 0 || byteDelta <= 0 {
		return 0
	}
	return int(float64(byteDelta*8) / 1000.0 / elapsed.Seconds())
}

// Classify maps a kbps measurement onto a quality tier.
func (s *ThroughputService) Classify(kbps int) QualityTier {
	switch {
	case kbps < s.poorBelowKbps:
		return TierPoor
	case kbps < s.fairBelowKbps:
		return TierFair
	default:
		return TierGood
	}
}
