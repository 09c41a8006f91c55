package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/fitpulse/backend/internal/infrastructure/config"
	"github.com/redis/go-redis/v9"
)

const dialCheckTimeout = 5 * time.Second

// NewRedisClient returns a client that has answered PING within
// dialCheckTimeout, so a misconfigured cache fails at startup.
func NewRedisClient(ctx context.Context, cfg config.RedisConfig) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{Addr: cfg.Addr(), Password: cfg.Password, DB: cfg.DB})

	ctx, cancel := context.WithTimeout(ctx, dialCheckTimeout)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis %s: %w", cfg.Addr(), err)
	}
	return client, nil
}
