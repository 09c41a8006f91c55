package shared

import (
	"context"
	"time"
)

// IdempotencyStore remembers provider event IDs that were already applied,
// so a redelivered webhook is acknowledged without touching the store again.
type IdempotencyStore interface {
	// MarkProcessed records eventID for ttl.
	// Returns true if the event was newly marked, false if it was already present.
	MarkProcessed(ctx context.Context, eventID string, ttl time.Duration) (bool, error)

	// IsProcessed reports whether eventID has been recorded and not yet expired
	IsProcessed(ctx context.Context, eventID string) (bool, error)

	// Close releases resources held by the store
	Close() error
}
