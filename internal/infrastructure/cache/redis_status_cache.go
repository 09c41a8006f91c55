package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/fitpulse/backend/internal/domain/subscription"
	"github.com/redis/go-redis/v9"
)

// DefaultStatusKeyPrefix namespaces subscription status keys
const DefaultStatusKeyPrefix = "fitpulse:subscription:status:"


// putIfCurrent sets KEYS[1] to ARGV[1] only while KEYS[2] (missing reads
// as 0) still equals ARGV[2]
var putIfCurrent = redis.NewScript(`
local gen = redis.call('GET', KEYS[2]) or '0'
if gen ~= ARGV[2] then
	return 0
end
redis.call('SET', KEYS[1], ARGV[1])
return 1
`)

// RedisStatusCache shares subscription snapshots between replicas.
// Keys carry no expiry; they change only on refresh or invalidation.
type RedisStatusCache struct {
	client    redis.UniversalClient
	keyPrefix string
	genPrefix string
}

// NewRedisStatusCache wraps a shared client
func NewRedisStatusCache(client redis.UniversalClient, keyPrefix string) *RedisStatusCache {
	if keyPrefix == "" {
		keyPrefix = DefaultStatusKeyPrefix
	}
	// a sibling namespace, so no user id can alias a generation key
	genPrefix := strings.TrimSuffix(keyPrefix, ":") + "-gen:"
	return &RedisStatusCache{client: client, keyPrefix: keyPrefix, genPrefix: genPrefix}
}

// Get loads and decodes the user's snapshot
func (c *RedisStatusCache) Get(ctx context.Context, userID string) (*subscription.StatusSnapshot, bool, error) {
	raw, err := c.client.Get(ctx, c.keyPrefix+userID).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("failed to read status for %s: %w", userID, err)
	}

	var snap subscription.StatusSnapshot
	if err := json.Unmarshal(raw, &snap); err != nil {
		return nil, false, fmt.Errorf("failed to decode status for %s: %w", userID, err)
	}
	return &snap, true, nil
}

// Generation reads the user's invalidation counter, zero when never set
func (c *RedisStatusCache) Generation(ctx context.Context, userID string) (uint64, error) {
	gen, err := c.client.Get(ctx, c.genKey(userID)).Uint64()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("failed to read status generation for %s: %w", userID, err)
	}
	return gen, nil
}

// PutIfCurrent encodes snap and stores it without a TTL, atomically
// checking the generation in the same script
func (c *RedisStatusCache) PutIfCurrent(ctx context.Context, snap subscription.StatusSnapshot, generation uint64) (bool, error) {
	raw, err := json.Marshal(snap)
	if err != nil {
		return false, fmt.Errorf("failed to encode status for %s: %w", snap.UserID, err)
	}
	keys := []string{c.keyPrefix + snap.UserID, c.genKey(snap.UserID)}
	stored, err := putIfCurrent.Run(ctx, c.client, keys, raw, strconv.FormatUint(generation, 10)).Int()
	if err != nil {
		return false, fmt.Errorf("failed to write status for %s: %w", snap.UserID, err)
	}
	return stored == 1, nil
}

// Invalidate deletes the user's snapshot and bumps its generation
func (c *RedisStatusCache) Invalidate(ctx context.Context, userID string) error {
	_, err := c.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, c.keyPrefix+userID)
		pipe.Incr(ctx, c.genKey(userID))
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to invalidate status for %s: %w", userID, err)
	}
	return nil
}

func (c *RedisStatusCache) genKey(userID string) string {
	return c.genPrefix + userID
}

var _ subscription.StatusCache = (*RedisStatusCache)(nil)
