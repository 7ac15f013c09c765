package ports

import (
	"context"

	"streamcast/internal/core/domain"
)

// CredentialStore is the external relational store consulted to validate a
// publish key and to record status/analytics. The core never owns it.
type CredentialStore interface {
	Lookup(ctx context.Context, key domain.StreamKey) (*domain.StreamCredential, error)
	RecordStatus(ctx context.Context, key domain.StreamKey, status domain.SessionStatus) error
	RecordStats(ctx context.Context, key domain.StreamKey, bytesIn int64, viewers int) error
}

// SessionRegistry is the process-wide table of live sessions across all
// ingest paths, keyed by stream key with a by-id index. Constructed once at
// startup and passed by reference; implementations must be safe for
// concurrent use. Lookups return detached snapshots, so callers never hold
// a reference the registry mutates; all writes go through the Set methods.
type SessionRegistry interface {
	Register(session *domain.Session) error
	Get(key domain.StreamKey) (*domain.Session, bool)
	GetByID(id domain.SessionID) (*domain.Session, bool)
	Remove(key domain.StreamKey)
	ListLive() []*domain.Session
	SetStatus(key domain.StreamKey, status domain.SessionStatus)
	SetMode(key domain.StreamKey, mode domain.DistributionMode)
	SetViewerCount(key domain.StreamKey, count int)
	SetKbps(key domain.StreamKey, kbps int)
	AddBytes(key domain.StreamKey, n int64)
	LiveCount() int
}
