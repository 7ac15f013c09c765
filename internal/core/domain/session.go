package domain

import (
	"time"
)

type StreamKey string
type SessionID string
type PeerID string
type UserID string

// SessionStatus is the lifecycle state of a stream session.
type SessionStatus string

const (
	StatusPending SessionStatus = "pending"
	StatusLive    SessionStatus = "live"
	StatusEnded   SessionStatus = "ended"
	StatusErrored SessionStatus = "errored"
)

// SourceKind tags the ingest path a session was created on.
type SourceKind string

const (
	SourceMesh      SourceKind = "mesh"       // WebRTC signaling path
	SourceRelay     SourceKind = "relay"      // WebSocket binary ingest path
	SourceRtmpRelay SourceKind = "rtmp-relay" // raw publish protocol path
)

// DistributionMode is derived from viewer count; never set directly.
type DistributionMode string

const (
	ModeMesh     DistributionMode = "mesh"
	ModeRelay    DistributionMode = "relay"
	ModeFallback DistributionMode = "fallback-segmented"
)

// ViewerOrigin names the surface a viewer is counted on. Each surface
// reports its own cardinality; the fanout hub merges them into the
// session's total.
type ViewerOrigin string

const (
	OriginSignaling ViewerOrigin = "signaling" // WebRTC peers
	OriginPull      ViewerOrigin = "pull"      // raw publish protocol plays
	OriginFanout    ViewerOrigin = "fanout"    // chat/viewer WebSocket rooms
)

// Session is the live in-memory record of one broadcaster's active stream.
type Session struct {
	ID          SessionID
	Key         StreamKey
	OwnerID     UserID
	Title       string
	Source      SourceKind
	Status      SessionStatus
	Mode        DistributionMode
	CreatedAt   time.Time
	ViewerCount int
	BytesIn     int64
	LastKbps    int
}

// Descriptor returns the uniform listing shape shared by all source kinds.
func (s *Session) Descriptor(now time.Time) SessionDescriptor {
	return SessionDescriptor{
		ID:          s.ID,
		Key:         s.Key,
		OwnerID:     s.OwnerID,
		Title:       s.Title,
		Source:      s.Source,
		Mode:        s.Mode,
		Status:      s.Status,
		ViewerCount: s.ViewerCount,
		Uptime:      now.Sub(s.CreatedAt),
	}
}

// SessionDescriptor is the uniform view of a session used by listing and
// info queries regardless of ingest path.
type SessionDescriptor struct {
	ID          SessionID        `json:"id"`
	Key         StreamKey        `json:"key,omitempty"`
	OwnerID     UserID           `json:"owner_id"`
	Title       string           `json:"title"`
	Source      SourceKind       `json:"source"`
	Mode        DistributionMode `json:"mode"`
	Status      SessionStatus    `json:"status"`
	ViewerCount int              `json:"viewer_count"`
	Uptime      time.Duration    `json:"uptime"`
}

// StreamCredential is what the external store knows about a publish key.
type StreamCredential struct {
	Key     StreamKey
	OwnerID UserID
	Title   string
	Live    bool
}
