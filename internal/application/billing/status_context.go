package billing

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/fitpulse/backend/internal/domain/shared"
	"github.com/fitpulse/backend/internal/domain/subscription"
	"go.uber.org/zap"
)

// StatusReader answers "is this user subscribed" from the published snapshot
type StatusReader interface {
	Status(ctx context.Context, userID string) (*subscription.StatusSnapshot, error)
}

// StatusContext publishes per-user subscription snapshots. It is built once
// at startup and handed to whoever needs it; there is no package-level state.
//
// Snapshots only change on Refresh or Invalidate. Concurrent refreshes for
// the same user each publish what they read, and the last one wins, but a
// refresh never publishes a read that an Invalidate has since superseded.
type StatusContext struct {
	repo   subscription.Repository
	cache  subscription.StatusCache
	logger *zap.Logger
	now    func() time.Time
}

// NewStatusContext creates a StatusContext over repo, publishing into cache
func NewStatusContext(repo subscription.Repository, cache subscription.StatusCache, logger *zap.Logger) *StatusContext {
	return &StatusContext{
		repo:   repo,
		cache:  cache,
		logger: logger,
		now:    time.Now,
	}
}

// refreshAttempts bounds how often Refresh re-reads after losing a race
// with an invalidation
const refreshAttempts = 3

// Refresh re-reads the user's row and publishes a new snapshot. A snapshot
// whose read was overtaken by Invalidate is discarded and the row read
// again. When every attempt is overtaken the last read is returned
// unpublished, and the next Status call reloads it.
func (c *StatusContext) Refresh(ctx context.Context, userID string) (*subscription.StatusSnapshot, error) {
	for attempt := 1; ; attempt++ {
		gen, err := c.cache.Generation(ctx, userID)
		if err != nil {
			return nil, fmt.Errorf("failed to read subscription status generation: %w", err)
		}

		sub, err := c.repo.FindByUserID(ctx, userID)
		if err != nil {
			if !errors.Is(err, shared.ErrNotFound) {
				return nil, fmt.Errorf("failed to load subscription: %w", err)
			}
			sub = nil
		}

		snap := subscription.SnapshotOf(userID, sub, c.now().UTC())
		stored, err := c.cache.PutIfCurrent(ctx, snap, gen)
		if err != nil {
			return nil, fmt.Errorf("failed to publish subscription status: %w", err)
		}
		if stored || attempt == refreshAttempts {
			c.logger.Debug("Subscription status refreshed",
				zap.String("user_id", userID),
				zap.String("status", string(snap.Status)),
				zap.Bool("active", snap.Active),
				zap.Bool("published", stored),
				zap.Int("attempt", attempt))
			return &snap, nil
		}
	}
}

// Status returns the published snapshot, refreshing on a miss.
// Active is re-evaluated against the current time so an elapsed period
// end is not reported as active.
func (c *StatusContext) Status(ctx context.Context, userID string) (*subscription.StatusSnapshot, error) {
	snap, ok, err := c.cache.Get(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to read subscription status: %w", err)
	}
	if !ok {
		return c.Refresh(ctx, userID)
	}

	now := c.now()
	if snap.Active && snap.CurrentPeriodEnd != nil && !now.Before(*snap.CurrentPeriodEnd) {
		snap.Active = false
	}
	return snap, nil
}

// Invalidate drops the user's snapshot so the next Status call reloads it
func (c *StatusContext) Invalidate(ctx context.Context, userID string) error {
	if err := c.cache.Invalidate(ctx, userID); err != nil {
		return fmt.Errorf("failed to invalidate subscription status: %w", err)
	}
	return nil
}

var _ StatusReader = (*StatusContext)(nil)
