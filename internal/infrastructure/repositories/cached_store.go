package repositories

import (
	"context"
	"fmt"
	"time"

	"streamcast/internal/core/domain"
	"streamcast/internal/core/ports"
	"streamcast/pkg/cache"
)

// CachedCredentialStore wraps a CredentialStore with a short-TTL cache.
// Status writes invalidate the cached entry so the live flag stays fresh
// enough for admission decisions.
type CachedCredentialStore struct {
	base  ports.CredentialStore
	cache *cache.Cache
	ttl   time.Duration
}

func NewCachedCredentialStore(base ports.CredentialStore, ttl time.Duration) ports.CredentialStore {
	return &CachedCredentialStore{
		base:  base,
		cache: cache.New(ttl),
		ttl:   ttl,
	}
}

func credCacheKey(key domain.StreamKey) string {
	return fmt.Sprintf("cred:%s", key)
}

func (s *CachedCredentialStore) Lookup(ctx context.Context, key domain.StreamKey) (*domain.StreamCredential, error) {
	if value, ok := s.cache.Get(credCacheKey(key)); ok {
		cred := value.(domain.StreamCredential)
		return &cred, nil
	}

	cred, err := s.base.Lookup(ctx, key)
	if err != nil {
		return nil, err
	}

	s.cache.Set(credCacheKey(key), *cred)
	return cred, nil
}

// RecordStatus writes through and drops the cached credential so the next
// lookup observes the new live flag.
func (s *CachedCredentialStore) RecordStatus(ctx context.Context, key domain.StreamKey, status domain.SessionStatus) error {
	s.cache.Delete(credCacheKey(key))
	return s.base.RecordStatus(ctx, key, status)
}

func (s *CachedCredentialStore) RecordStats(ctx context.Context, key domain.StreamKey, bytesIn int64, viewers int) error {
	return s.base.RecordStats(ctx, key, bytesIn, viewers)
}
