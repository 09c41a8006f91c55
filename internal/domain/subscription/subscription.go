// Package subscription holds the subscription record shared by the checkout
// redirect path and the payment provider webhook path.
package subscription

import (
	"time"

	"github.com/google/uuid"
)

// Metadata keys stamped on checkout sessions and their provider
// subscriptions. Webhook events carry them back for correlation.
const (
	MetadataUserID = "user_id"
	MetadataPlan   = "plan"
)

// Status is the local view of a subscription
type Status string

const (
	StatusActive   Status = "active"
	StatusInactive Status = "inactive"
)

// IsValid reports whether s is a known status
func (s Status) IsValid() bool {
	return s == StatusActive || s == StatusInactive
}

// Source records which path wrote the current activation.
type Source string

const (
	// SourceClient is the provisional write made on checkout redirect.
	SourceClient Source = "client"
	// SourceProvider is a write driven by a verified provider webhook.
	SourceProvider Source = "provider"
)

// MapProviderStatus converts a provider-reported status to the local one.
// Only "active" is active; trialing, past_due, canceled and the rest are not.
func MapProviderStatus(providerStatus string) Status {
	if providerStatus == string(StatusActive) {
		return StatusActive
	}
	return StatusInactive
}

// PeriodEndFromUnix converts a provider period end in seconds to a UTC
// timestamp with millisecond precision. Non-positive values yield nil.
func PeriodEndFromUnix(seconds int64) *time.Time {
	if seconds <= 0 {
		return nil
	}
	t := time.UnixMilli(seconds * 1000).UTC()
	return &t
}

// ProvisionalPeriodEnd is the expiry the client path assumes until the
// provider reports the real one.
func ProvisionalPeriodEnd(now time.Time) time.Time {
	return now.UTC().AddDate(0, 1, 0).Truncate(time.Millisecond)
}

// Subscription is the persisted subscription row for one user.
type Subscription struct {
	ID                     uuid.UUID
	UserID                 string
	Plan                   string
	Status                 Status
	ProviderCustomerID     string
	ProviderSubscriptionID string
	ProviderSessionID      string
	CurrentPeriodEnd       *time.Time
	Source                 Source
	LastEventID            string
	CreatedAt              time.Time
	UpdatedAt              time.Time
}

// IsActiveAt reports whether the subscription grants access at now.
// An unknown period end does not expire the subscription.
func (s *Subscription) IsActiveAt(now time.Time) bool {
	if s == nil || s.Status != StatusActive {
		return false
	}
	return s.CurrentPeriodEnd == nil || now.Before(*s.CurrentPeriodEnd)
}

// ConfirmedBySession reports whether the provider already confirmed the
// checkout session sessionID for this row. A client write for the same
// session must not override it.
func (s *Subscription) ConfirmedBySession(sessionID string) bool {
	return s.Source == SourceProvider && sessionID != "" && s.ProviderSessionID == sessionID
}

// MergeFrom applies an upsert of in onto s. Status and Source are always
// taken from in; other fields only when in provides a non-zero value.
func (s *Subscription) MergeFrom(in *Subscription, now time.Time) {
	s.Status = in.Status
	s.Source = in.Source
	if in.Plan != "" {
		s.Plan = in.Plan
	}
	if in.ProviderCustomerID != "" {
		s.ProviderCustomerID = in.ProviderCustomerID
	}
	if in.ProviderSubscriptionID != "" {
		s.ProviderSubscriptionID = in.ProviderSubscriptionID
	}
	if in.ProviderSessionID != "" {
		s.ProviderSessionID = in.ProviderSessionID
	}
	if in.CurrentPeriodEnd != nil {
		end := *in.CurrentPeriodEnd
		s.CurrentPeriodEnd = &end
	}
	if in.LastEventID != "" {
		s.LastEventID = in.LastEventID
	}
	s.UpdatedAt = now
}

// Patch is a partial update driven by a provider lifecycle event.
// Empty fields other than Status are left untouched.
type Patch struct {
	Status                 Status
	ProviderSubscriptionID string
	ProviderCustomerID     string
	CurrentPeriodEnd       *time.Time
	LastEventID            string
}

// ApplyTo writes the patch onto s
func (p Patch) ApplyTo(s *Subscription, now time.Time) {
	s.Status = p.Status
	if p.ProviderSubscriptionID != "" {
		s.ProviderSubscriptionID = p.ProviderSubscriptionID
	}
	if p.ProviderCustomerID != "" {
		s.ProviderCustomerID = p.ProviderCustomerID
	}
	if p.CurrentPeriodEnd != nil {
		end := *p.CurrentPeriodEnd
		s.CurrentPeriodEnd = &end
	}
	if p.LastEventID != "" {
		s.LastEventID = p.LastEventID
	}
	s.UpdatedAt = now
}

// Filter locates the rows a provider update applies to. UserID is tried
// first, then ProviderSubscriptionID.
type Filter struct {
	UserID                 string
	ProviderSubscriptionID string
}

// MatchesUser reports whether s is the user's row and is not bound to a
// different provider subscription.
func (f Filter) MatchesUser(s *Subscription) bool {
	if f.UserID == "" || s.UserID != f.UserID {
		return false
	}
	return s.ProviderSubscriptionID == "" || f.ProviderSubscriptionID == "" ||
		s.ProviderSubscriptionID == f.ProviderSubscriptionID
}

// MatchesSubscription reports whether s carries the filter's provider subscription id
func (f Filter) MatchesSubscription(s *Subscription) bool {
	return f.ProviderSubscriptionID != "" && s.ProviderSubscriptionID == f.ProviderSubscriptionID
}
