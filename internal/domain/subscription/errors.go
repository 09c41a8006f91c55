package subscription

import "github.com/fitpulse/backend/internal/domain/shared"

// Reconciliation errors. Wrap with %w so callers can match them with errors.Is.
var (
	// ErrInvalidSignature means the webhook payload is untrusted and was not parsed.
	ErrInvalidSignature = shared.NewDomainError("INVALID_SIGNATURE", "Webhook signature verification failed")
	// ErrMalformedPayload means a verified payload could not be decoded.
	ErrMalformedPayload = shared.NewDomainError("MALFORMED_PAYLOAD", "Webhook payload could not be decoded")
	// ErrMissingMetadata means a trusted event lacks user_id or plan metadata.
	ErrMissingMetadata = shared.NewDomainError("MISSING_METADATA", "Event is missing required metadata")
	// ErrStoreWrite means the subscription store rejected a write.
	ErrStoreWrite = shared.NewDomainError("STORE_WRITE_FAILURE", "Failed to persist subscription")
	// ErrSessionMissing means the checkout redirect carried no session id.
	ErrSessionMissing = shared.NewDomainError("SESSION_MISSING", "Checkout session id is missing")
	// ErrUserMissing means no authenticated user was present.
	ErrUserMissing = shared.NewDomainError("USER_MISSING", "Authenticated user is missing")
	// ErrUnknownPlan means the requested plan is not in the catalog.
	ErrUnknownPlan = shared.NewDomainError("UNKNOWN_PLAN", "Unknown subscription plan")
)
