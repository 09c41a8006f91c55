package subscription

import (
	"context"
	"time"
)

// StatusSnapshot is the published "is this user subscribed" view
type StatusSnapshot struct {
	UserID           string     `json:"user_id"`
	Status           Status     `json:"status"`
	Plan             string     `json:"plan,omitempty"`
	Active           bool       `json:"active"`
	CurrentPeriodEnd *time.Time `json:"current_period_end,omitempty"`
	LastRefreshed    time.Time  `json:"last_refreshed"`
}

// SnapshotOf builds the snapshot for userID from its row. A nil row is an
// inactive user without a subscription.
func SnapshotOf(userID string, sub *Subscription, now time.Time) StatusSnapshot {
	snap := StatusSnapshot{
		UserID:        userID,
		Status:        StatusInactive,
		LastRefreshed: now,
	}
	if sub == nil {
		return snap
	}
	snap.Status = sub.Status
	snap.Plan = sub.Plan
	snap.Active = sub.IsActiveAt(now)
	if sub.CurrentPeriodEnd != nil {
		end := *sub.CurrentPeriodEnd
		snap.CurrentPeriodEnd = &end
	}
	return snap
}

// StatusCache holds snapshots between explicit refreshes. Entries never
// expire on their own.
//
// Every Invalidate bumps the user's generation. PutIfCurrent stores a
// snapshot only while the generation still equals the one read before the
// store lookup, so a read that raced a write can never outlive its
// invalidation.
type StatusCache interface {
	Get(ctx context.Context, userID string) (*StatusSnapshot, bool, error)
	Generation(ctx context.Context, userID string) (uint64, error)
	PutIfCurrent(ctx context.Context, snap StatusSnapshot, generation uint64) (bool, error)
	Invalidate(ctx context.Context, userID string) error
}
