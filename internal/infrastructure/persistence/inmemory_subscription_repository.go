package persistence

import (
	"context"
	"sync"
	"time"

	"github.com/fitpulse/backend/internal/domain/shared"
	"github.com/fitpulse/backend/internal/domain/subscription"
	"github.com/google/uuid"
)

// InMemorySubscriptionRepository is a map-backed subscription.Repository.
// It backs the "memory" database driver and doubles as a test store:
// it counts write calls and can be told to fail them.
type InMemorySubscriptionRepository struct {
	mu       sync.Mutex
	byUser   map[string]*subscription.Subscription
	writes   int
	writeErr error
	now      func() time.Time
}

// NewInMemorySubscriptionRepository creates an empty store
func NewInMemorySubscriptionRepository() *InMemorySubscriptionRepository {
	return &InMemorySubscriptionRepository{
		byUser: make(map[string]*subscription.Subscription),
		now:    time.Now,
	}
}

// FailWritesWith makes every subsequent write return err; nil restores writes
func (r *InMemorySubscriptionRepository) FailWritesWith(err error) {
	r.mu.Lock()
	r.writeErr = err
	r.mu.Unlock()
}

// Writes returns how many write calls reached the store
func (r *InMemorySubscriptionRepository) Writes() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.writes
}

// Len returns the number of rows
func (r *InMemorySubscriptionRepository) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.byUser)
}

// FindByUserID returns a copy of the user's row
func (r *InMemorySubscriptionRepository) FindByUserID(_ context.Context, userID string) (*subscription.Subscription, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if sub, ok := r.byUser[userID]; ok {
		return clone(sub), nil
	}
	return nil, shared.ErrNotFound
}

// FindByProviderSubscriptionID returns a copy of the most recently updated matching row
func (r *InMemorySubscriptionRepository) FindByProviderSubscriptionID(_ context.Context, providerSubscriptionID string) (*subscription.Subscription, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var found *subscription.Subscription
	for _, sub := range r.byUser {
		if sub.ProviderSubscriptionID == providerSubscriptionID &&
			(found == nil || sub.UpdatedAt.After(found.UpdatedAt)) {
			found = sub
		}
	}
	if found == nil {
		return nil, shared.ErrNotFound
	}
	return clone(found), nil
}

// Upsert inserts or merges sub keyed by user
func (r *InMemorySubscriptionRepository) Upsert(_ context.Context, sub *subscription.Subscription) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.writes++
	if r.writeErr != nil {
		return r.writeErr
	}
	r.upsertLocked(sub)
	return nil
}

// UpsertProvisional skips the write when the provider already confirmed the session
func (r *InMemorySubscriptionRepository) UpsertProvisional(_ context.Context, sub *subscription.Subscription) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.writes++
	if r.writeErr != nil {
		return false, r.writeErr
	}
	if existing, ok := r.byUser[sub.UserID]; ok && existing.ConfirmedBySession(sub.ProviderSessionID) {
		return false, nil
	}
	r.upsertLocked(sub)
	return true, nil
}

func (r *InMemorySubscriptionRepository) upsertLocked(sub *subscription.Subscription) {
	now := r.now().UTC()
	if existing, ok := r.byUser[sub.UserID]; ok {
		existing.MergeFrom(sub, now)
		return
	}
	row := clone(sub)
	if row.ID == uuid.Nil {
		row.ID = uuid.New()
	}
	row.CreatedAt = now
	row.UpdatedAt = now
	r.byUser[row.UserID] = row
}

// Update patches the user's row, or every row bound to the provider
// subscription when the user lookup misses
func (r *InMemorySubscriptionRepository) Update(_ context.Context, filter subscription.Filter, patch subscription.Patch) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.writes++
	if r.writeErr != nil {
		return 0, r.writeErr
	}

	now := r.now().UTC()
	if sub, ok := r.byUser[filter.UserID]; ok && filter.MatchesUser(sub) {
		patch.ApplyTo(sub, now)
		return 1, nil
	}

	var affected int64
	for _, sub := range r.byUser {
		if filter.MatchesSubscription(sub) {
			patch.ApplyTo(sub, now)
			affected++
		}
	}
	return affected, nil
}

func clone(s *subscription.Subscription) *subscription.Subscription {
	c := *s
	if s.CurrentPeriodEnd != nil {
		end := *s.CurrentPeriodEnd
		c.CurrentPeriodEnd = &end
	}
	return &c
}

var _ subscription.Repository = (*InMemorySubscriptionRepository)(nil)
