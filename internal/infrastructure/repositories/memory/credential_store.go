package memory

import (
	"context"
	"sync"

	"streamcast/internal/core/domain"
	"streamcast/internal/core/ports"
)

// CredentialStore is the in-memory stand-in for the external relational
// store; used in development and tests.
type CredentialStore struct {
	creds map[domain.StreamKey]*domain.StreamCredential
	mu    sync.RWMutex
}

func NewCredentialStore() *CredentialStore {
	return &CredentialStore{
		creds: make(map[domain.StreamKey]*domain.StreamCredential),
	}
}

var _ ports.CredentialStore = (*CredentialStore)(nil)

// Seed registers a credential. Test/dev helper, not part of the port.
func (s *CredentialStore) Seed(cred *domain.StreamCredential) {
	s.mu.Lock()
	defer s.mu.Unlock()
	copied := *cred
	s.creds[cred.Key] = &copied
}

func (s *CredentialStore) Lookup(ctx context.Context, key domain.StreamKey) (*domain.StreamCredential, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	cred, ok := s.creds[key]
	if !ok {
		return nil, domain.ErrInvalidCredential
	}
	copied := *cred
	return &copied, nil
}

func (s *CredentialStore) RecordStatus(ctx context.Context, key domain.StreamKey, status domain.SessionStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if cred, ok := s.creds[key]; ok {
		cred.Live = status == domain.StatusLive
	}
	return nil
}

func (s *CredentialStore) RecordStats(ctx context.Context, key domain.StreamKey, bytesIn int64, viewers int) error {
	return nil
}
