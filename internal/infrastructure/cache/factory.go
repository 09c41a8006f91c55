package cache

import (
	"fmt"

	"github.com/fitpulse/backend/internal/domain/shared"
	"github.com/fitpulse/backend/internal/domain/subscription"
	"github.com/fitpulse/backend/internal/infrastructure/config"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// Stores bundles the reconciliation caches built from configuration
type Stores struct {
	Idempotency shared.IdempotencyStore
	Status      subscription.StatusCache
}

// Factory builds caches, preferring Redis when a client is available
type Factory struct {
	client redis.UniversalClient
	logger *zap.Logger
}

// NewFactory creates a factory. client may be nil when Redis is disabled.
func NewFactory(client redis.UniversalClient, logger *zap.Logger) *Factory {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Factory{client: client, logger: logger}
}

// Build creates the idempotency store and the status cache for cfg
func (f *Factory) Build(cfg config.SubscriptionConfig) (*Stores, error) {
	stores := &Stores{}

	if f.client != nil {
		f.logger.Info("Using Redis idempotency store")
		stores.Idempotency = NewRedisIdempotencyStore(f.client, "")
	} else {
		f.logger.Warn("Redis disabled, using in-memory idempotency store. " +
			"Replicas will not share webhook delivery history.")
		stores.Idempotency = NewInMemoryIdempotencyStore(DefaultCleanupInterval)
	}

	switch cfg.StatusCacheBackend {
	case config.CacheBackendRedis:
		if f.client == nil {
			return nil, fmt.Errorf("status cache backend redis requires a Redis client")
		}
		stores.Status = NewRedisStatusCache(f.client, "")
	default:
		stores.Status = NewInMemoryStatusCache()
	}
	f.logger.Info("Subscription status cache ready", zap.String("backend", cfg.StatusCacheBackend))

	return stores, nil
}
