package cache

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/fitpulse/backend/internal/domain/subscription"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInMemoryStatusCache(t *testing.T) {
	c := NewInMemoryStatusCache()
	ctx := context.Background()

	_, ok, err := c.Get(ctx, "u1")
	require.NoError(t, err)
	assert.False(t, ok)

	stored, err := c.PutIfCurrent(ctx, subscription.StatusSnapshot{UserID: "u1", Status: subscription.StatusActive, Active: true}, 0)
	require.NoError(t, err)
	require.True(t, stored)

	snap, ok, err := c.Get(ctx, "u1")
	require.NoError(t, err)
	require.True(t, ok)
	assert.True(t, snap.Active)

	snap.Active = false
	again, _, _ := c.Get(ctx, "u1")
	assert.True(t, again.Active, "Get must return a copy")

	require.NoError(t, c.Invalidate(ctx, "u1"))
	_, ok, _ = c.Get(ctx, "u1")
	assert.False(t, ok)
}

func TestInMemoryStatusCache_Generation(t *testing.T) {
	c := NewInMemoryStatusCache()
	ctx := context.Background()
	snap := subscription.StatusSnapshot{UserID: "u1", Status: subscription.StatusActive, Active: true}

	gen, err := c.Generation(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, uint64(0), gen)

	require.NoError(t, c.Invalidate(ctx, "u1"))

	// read before the invalidation, published after it
	stored, err := c.PutIfCurrent(ctx, snap, gen)
	require.NoError(t, err)
	assert.False(t, stored)
	_, ok, _ := c.Get(ctx, "u1")
	assert.False(t, ok)

	gen, err = c.Generation(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, uint64(1), gen)
	stored, err = c.PutIfCurrent(ctx, snap, gen)
	require.NoError(t, err)
	assert.True(t, stored)

	other, err := c.Generation(ctx, "u2")
	require.NoError(t, err)
	assert.Equal(t, uint64(0), other, "generations are per user")
}

func TestInMemoryStatusCache_Concurrent(t *testing.T) {
	c := NewInMemoryStatusCache()
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(3)
		user := fmt.Sprintf("u%d", i%4)
		go func() {
			defer wg.Done()
			gen, _ := c.Generation(ctx, user)
			_, _ = c.PutIfCurrent(ctx, subscription.StatusSnapshot{UserID: user, LastRefreshed: time.Now()}, gen)
		}()
		go func() {
			defer wg.Done()
			_, _, _ = c.Get(ctx, user)
		}()
		go func() {
			defer wg.Done()
			_ = c.Invalidate(ctx, user)
		}()
	}
	wg.Wait()
}
