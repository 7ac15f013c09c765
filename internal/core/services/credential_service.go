package services

import (
	"context"
	"fmt"

	"streamcast/internal/core/domain"
	"streamcast/internal/core/ports"
	"streamcast/pkg/tracing"
)

// CredentialService validates inbound publish attempts against the external
// store and the live-session registry. Validation is a pure read; admitting
// the session afterwards is the caller's job.
type credentialService struct {
	store    ports.CredentialStore
	registry ports.SessionRegistry
}

func NewCredentialService(store ports.CredentialStore, registry ports.SessionRegistry) ports.CredentialGateway {
	return &credentialService{
		store:    store,
		registry: registry,
	}
}

// Validate resolves a stream key. Unknown keys fail with ErrInvalidCredential;
// keys that are already publishing fail with ErrAlreadyLive (reject-new, keep
// existing — duplicates never preempt a live session).
func (s *credentialService) Validate(ctx context.Context, key domain.StreamKey) (*domain.StreamCredential, error) {
	ctx, span := tracing.StartSpan(ctx, "credential.validate")
	defer span.End()

	if key == "" {
		return nil, domain.ErrInvalidCredential
	}

	cred, err := s.store.Lookup(ctx, key)
	if err != nil {
		tracing.RecordError(ctx, err)
		return nil, fmt.Errorf("credential lookup: %w", err)
	}
	if cred == nil {
		return nil, domain.ErrInvalidCredential
	}

	if cred.Live {
		return nil, domain.ErrAlreadyLive
	}
	if _, live := s.registry.Get(key); live {
		return nil, domain.ErrAlreadyLive
	}

	return cred, nil
}
