package redis

import (
	"context"
	"fmt"
	"time"

	"streamcast/internal/core/domain"
	"streamcast/internal/core/ports"
	"streamcast/pkg/retry"

	"github.com/redis/go-redis/v9"
)

const (
	credentialKeyPrefix = "streamcast:cred:"
	statsKeyPrefix      = "streamcast:stats:"
)

// CredentialStore reads publish credentials and writes status/analytics to
// Redis. The core only reads credentials; writes are best effort.
type CredentialStore struct {
	client *redis.Client
	retry  retry.Config
}

func NewCredentialStore(client *redis.Client) ports.CredentialStore {
	return &CredentialStore{
		client: client,
		retry:  retry.DefaultConfig(),
	}
}

func (s *CredentialStore) Lookup(ctx context.Context, key domain.StreamKey) (*domain.StreamCredential, error) {
	fields, err := retry.DoWithResult(ctx, s.retry, func() (map[string]string, error) {
		return s.client.HGetAll(ctx, credentialKeyPrefix+string(key)).Result()
	})
	if err != nil {
		return nil, fmt.Errorf("redis lookup for key: %w", err)
	}
	if len(fields) == 0 {
		return nil, domain.ErrInvalidCredential
	}

	return &domain.StreamCredential{
		Key:     key,
		OwnerID: domain.UserID(fields["owner_id"]),
		Title:   fields["title"],
		Live:    fields["live"] == "1",
	}, nil
}

func (s *CredentialStore) RecordStatus(ctx context.Context, key domain.StreamKey, status domain.SessionStatus) error {
	live := "0"
	if status == domain.StatusLive {
		live = "1"
	}

	pipe := s.client.Pipeline()
	pipe.HSet(ctx, credentialKeyPrefix+string(key), "live", live)
	pipe.HSet(ctx, statsKeyPrefix+string(key),
		"status", string(status),
		"updated_at", time.Now().Unix(),
	)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis record status: %w", err)
	}
	return nil
}

func (s *CredentialStore) RecordStats(ctx context.Context, key domain.StreamKey, bytesIn int64, viewers int) error {
	if err := s.client.HSet(ctx, statsKeyPrefix+string(key),
		"bytes_in", bytesIn,
		"viewers", viewers,
		"updated_at", time.Now().Unix(),
	).Err(); err != nil {
		return fmt.Errorf("redis record stats: %w", err)
	}
	return nil
}
