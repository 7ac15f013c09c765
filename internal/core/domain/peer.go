package domain

import "time"

// PeerRole distinguishes the broadcaster from its viewers.
type PeerRole string

const (
	RoleBroadcaster PeerRole = "broadcaster"
	RoleViewer      PeerRole = "viewer"
)

// Peer is one signaling connection attached to a session. Removal of a
// viewer peer never removes the session; removal of the broadcaster does.
type Peer struct {
	ID        PeerID
	SessionID SessionID
	Role      PeerRole
	JoinedAt  time.Time
}
