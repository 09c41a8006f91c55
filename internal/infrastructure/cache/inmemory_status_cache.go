package cache

import (
	"context"
	"sync"

	"github.com/fitpulse/backend/internal/domain/subscription"
)

// InMemoryStatusCache is the process-local subscription status cache
type InMemoryStatusCache struct {
	mu    sync.RWMutex
	snaps map[string]subscription.StatusSnapshot
	gens  map[string]uint64
}

// NewInMemoryStatusCache creates an empty cache
func NewInMemoryStatusCache() *InMemoryStatusCache {
	return &InMemoryStatusCache{
		snaps: make(map[string]subscription.StatusSnapshot),
		gens:  make(map[string]uint64),
	}
}

// Get returns a copy of the user's snapshot
func (c *InMemoryStatusCache) Get(_ context.Context, userID string) (*subscription.StatusSnapshot, bool, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	snap, ok := c.snaps[userID]
	if !ok {
		return nil, false, nil
	}
	return &snap, true, nil
}

func (c *InMemoryStatusCache) Generation(_ context.Context, userID string) (uint64, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.gens[userID], nil
}

// PutIfCurrent stores snap unless the user was invalidated after generation
func (c *InMemoryStatusCache) PutIfCurrent(_ context.Context, snap subscription.StatusSnapshot, generation uint64) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.gens[snap.UserID] != generation {
		return false, nil
	}
	c.snaps[snap.UserID] = snap
	return true, nil
}

// Invalidate drops the user's snapshot and bumps the generation
func (c *InMemoryStatusCache) Invalidate(_ context.Context, userID string) error {
	c.mu.Lock()
	delete(c.snaps, userID)
	c.gens[userID]++
	c.mu.Unlock()
	return nil
}

var _ subscription.StatusCache = (*InMemoryStatusCache)(nil)
