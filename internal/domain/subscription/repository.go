package subscription

import "context"

// Repository is the subscription store shared by both reconciliation paths.
// Implementations must make each method atomic for the rows it touches.
type Repository interface {
	// FindByUserID returns shared.ErrNotFound when the user has no row
	FindByUserID(ctx context.Context, userID string) (*Subscription, error)

	// FindByProviderSubscriptionID returns shared.ErrNotFound when no row carries the id
	FindByProviderSubscriptionID(ctx context.Context, providerSubscriptionID string) (*Subscription, error)

	// Upsert inserts or merges sub keyed by UserID (see Subscription.MergeFrom).
	Upsert(ctx context.Context, sub *Subscription) error

	// UpsertProvisional is Upsert for the client redirect path. It skips the
	// write and returns false when the existing row was already confirmed by
	// the provider for the same checkout session.
	UpsertProvisional(ctx context.Context, sub *Subscription) (bool, error)

	// Update applies patch to the rows matched by filter, trying the user
	// first and falling back to the provider subscription id. It returns the
	// number of rows changed; zero is not an error.
	Update(ctx context.Context, filter Filter, patch Patch) (int64, error)
}
