package repositories

import (
	"context"

	"streamcast/internal/core/ports"
	"streamcast/internal/infrastructure/repositories/memory"
	redisrepo "streamcast/internal/infrastructure/repositories/redis"
	"streamcast/pkg/config"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// Factory creates stores with memory fallback when Redis is unavailable.
type Factory struct {
	useRedis    bool
	redisClient *redis.Client
	logger      *zap.SugaredLogger
}

// NewFactory creates a new store factory
func NewFactory(cfg *config.Config, logger *zap.SugaredLogger) (*Factory, error) {
	factory := &Factory{
		useRedis: cfg.Redis.Enabled,
		logger:   logger,
	}

	if cfg.Redis.Enabled {
		client, err := redisrepo.NewClient(redisrepo.Config{
			Address:  cfg.Redis.Address,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
			PoolSize: cfg.Redis.PoolSize,
		}, logger)
		if err != nil {
			logger.Warnw("failed to connect to Redis, falling back to memory credential store",
				"error", err,
			)
			factory.useRedis = false
		} else {
			factory.redisClient = client
			logger.Info("using Redis credential store")
		}
	}

	if !factory.useRedis {
		logger.Info("using memory credential store")
	}

	return factory, nil
}

// CreateCredentialStore creates the credential/analytics store.
func (f *Factory) CreateCredentialStore() ports.CredentialStore {
	if f.useRedis && f.redisClient != nil {
		return redisrepo.NewCredentialStore(f.redisClient)
	}
	return memory.NewCredentialStore()
}

// CreateSessionRegistry creates the live-session registry. Always in-memory:
// sessions are bound to this process's transports and subprocesses.
func (f *Factory) CreateSessionRegistry() ports.SessionRegistry {
	return memory.NewSessionRegistry()
}

// Close closes the Redis connection if used.
func (f *Factory) Close() error {
	if f.redisClient != nil {
		return f.redisClient.Close()
	}
	return nil
}

// HealthCheck checks Redis connection health.
func (f *Factory) HealthCheck(ctx context.Context) error {
	if f.useRedis && f.redisClient != nil {
		return f.redisClient.Ping(ctx).Err()
	}
	return nil
}
