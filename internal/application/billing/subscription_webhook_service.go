package billing

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/fitpulse/backend/internal/domain/shared"
	"github.com/fitpulse/backend/internal/domain/subscription"
	"github.com/fitpulse/backend/internal/infrastructure/telemetry"
	"github.com/stripe/stripe-go/v81"
	"github.com/stripe/stripe-go/v81/webhook"
	"go.uber.org/zap"
)

// DefaultIdempotencyTTL is how long a processed event id is remembered
const DefaultIdempotencyTTL = 24 * time.Hour

// PeriodResolver looks up the current period end (unix seconds) of a
// provider subscription. Only used when a completed checkout does not
// carry it.
type PeriodResolver interface {
	SubscriptionPeriodEnd(ctx context.Context, subscriptionID string) (int64, error)
}

// SubscriptionWebhookService reconciles provider webhook events into the
// subscription store
type SubscriptionWebhookService struct {
	webhookSecret  string
	tolerance      time.Duration
	repo           subscription.Repository
	status         *StatusContext
	idempotency    shared.IdempotencyStore
	idempotencyTTL time.Duration
	periods        PeriodResolver
	metrics        Metrics
	logger         *zap.Logger
}

// SubscriptionWebhookServiceConfig contains configuration for SubscriptionWebhookService
type SubscriptionWebhookServiceConfig struct {
	WebhookSecret string
	// Tolerance bounds the signature timestamp age. Default: 300s
	Tolerance      time.Duration
	Repo           subscription.Repository
	Status         *StatusContext
	Idempotency    shared.IdempotencyStore // optional
	IdempotencyTTL time.Duration
	PeriodResolver PeriodResolver // optional
	Metrics        Metrics        // optional
	Logger         *zap.Logger
}

// NewSubscriptionWebhookService creates a new SubscriptionWebhookService
func NewSubscriptionWebhookService(cfg SubscriptionWebhookServiceConfig) *SubscriptionWebhookService {
	svc := &SubscriptionWebhookService{
		webhookSecret:  cfg.WebhookSecret,
		tolerance:      cfg.Tolerance,
		repo:           cfg.Repo,
		status:         cfg.Status,
		idempotency:    cfg.Idempotency,
		idempotencyTTL: cfg.IdempotencyTTL,
		periods:        cfg.PeriodResolver,
		metrics:        cfg.Metrics,
		logger:         cfg.Logger,
	}
	if svc.tolerance <= 0 {
		svc.tolerance = webhook.DefaultTolerance
	}
	if svc.idempotencyTTL <= 0 {
		svc.idempotencyTTL = DefaultIdempotencyTTL
	}
	if svc.metrics == nil {
		svc.metrics = noopMetrics{}
	}
	if svc.logger == nil {
		svc.logger = zap.NewNop()
	}
	return svc
}

// WebhookResult contains the result of processing a webhook
type WebhookResult struct {
	EventID      string `json:"event_id"`
	EventType    string `json:"event_type"`
	Handled      bool   `json:"handled"`
	Duplicate    bool   `json:"duplicate,omitempty"`
	RowsAffected int64  `json:"rows_affected"`
	Message      string `json:"message,omitempty"`
}

// ProcessWebhook verifies payload against signature and applies the event.
//
// Nothing is parsed or written unless the signature verifies. Unknown event
// types and redelivered events succeed without a write.
func (s *SubscriptionWebhookService) ProcessWebhook(ctx context.Context, payload []byte, signature string) (*WebhookResult, error) {
	ctx, span := telemetry.StartServiceSpan(ctx, "subscription_webhook", "process")
	defer span.End()

	event, err := s.verify(payload, signature)
	if err != nil {
		s.logger.Warn("Rejected webhook", zap.Error(err))
		s.metrics.RecordWebhook(ctx, "", OutcomeRejected)
		telemetry.RecordError(span, err)
		return nil, err
	}
	started := time.Now()
	telemetry.SetAttributes(span,
		telemetry.SpanAttrEventID, event.ID,
		telemetry.SpanAttrEventType, string(event.Type))

	log := s.logger.With(
		zap.String("event_id", event.ID),
		zap.String("event_type", string(event.Type)))

	result := &WebhookResult{
		EventID:   event.ID,
		EventType: string(event.Type),
	}

	if s.alreadyProcessed(ctx, event.ID, log) {
		log.Info("Webhook event already processed")
		result.Duplicate = true
		result.Message = "Event already processed"
		s.metrics.RecordWebhook(ctx, result.EventType, OutcomeDuplicate)
		return result, nil
	}

	switch event.Type {
	case stripe.EventTypeCheckoutSessionCompleted:
		err = s.handleCheckoutCompleted(ctx, event, result, log)
	case stripe.EventTypeCustomerSubscriptionUpdated, stripe.EventTypeCustomerSubscriptionDeleted:
		err = s.handleSubscriptionChanged(ctx, event, result, log)
	default:
		log.Debug("Unhandled webhook event type")
		result.Message = "Event type not handled"
	}

	s.metrics.ObserveWebhookDuration(ctx, result.EventType, time.Since(started))
	if err != nil {
		log.Error("Failed to process webhook event", zap.Error(err))
		result.Message = err.Error()
		s.metrics.RecordWebhook(ctx, result.EventType, OutcomeFailed)
		telemetry.RecordError(span, err)
		return result, err
	}

	s.markProcessed(ctx, event.ID, log)
	outcome := outcomeOf(result)
	s.metrics.RecordWebhook(ctx, result.EventType, outcome)
	telemetry.SetAttributes(span,
		telemetry.SpanAttrOutcome, outcome,
		telemetry.SpanAttrRowsAffected, result.RowsAffected)
	telemetry.SetOK(span)
	return result, nil
}

func outcomeOf(r *WebhookResult) string {
	switch {
	case !r.Handled:
		return OutcomeIgnored
	case r.RowsAffected == 0:
		return OutcomeUnmatched
	default:
		return OutcomeApplied
	}
}

func (s *SubscriptionWebhookService) verify(payload []byte, signature string) (stripe.Event, error) {
	if s.webhookSecret == "" {
		return stripe.Event{}, fmt.Errorf("%w: webhook secret not configured", subscription.ErrInvalidSignature)
	}
	if signature == "" {
		return stripe.Event{}, fmt.Errorf("%w: %w", subscription.ErrInvalidSignature, webhook.ErrNotSigned)
	}

	event, err := webhook.ConstructEventWithOptions(payload, signature, s.webhookSecret, webhook.ConstructEventOptions{
		Tolerance:                s.tolerance,
		IgnoreAPIVersionMismatch: true,
	})
	if err != nil {
		if isSignatureError(err) {
			return stripe.Event{}, fmt.Errorf("%w: %w", subscription.ErrInvalidSignature, err)
		}
		return stripe.Event{}, fmt.Errorf("%w: %w", subscription.ErrMalformedPayload, err)
	}
	if event.Data == nil || len(event.Data.Raw) == 0 {
		return stripe.Event{}, fmt.Errorf("%w: event %s has no data object", subscription.ErrMalformedPayload, event.ID)
	}
	return event, nil
}

func isSignatureError(err error) bool {
	return errors.Is(err, webhook.ErrNotSigned) ||
		errors.Is(err, webhook.ErrInvalidHeader) ||
		errors.Is(err, webhook.ErrNoValidSignature) ||
		errors.Is(err, webhook.ErrTooOld)
}

func (s *SubscriptionWebhookService) alreadyProcessed(ctx context.Context, eventID string, log *zap.Logger) bool {
	if s.idempotency == nil || eventID == "" {
		return false
	}
	seen, err := s.idempotency.IsProcessed(ctx, eventID)
	if err != nil {
		// upserts converge, so processing twice is safe
		log.Warn("Idempotency lookup failed, processing event", zap.Error(err))
		return false
	}
	return seen
}

func (s *SubscriptionWebhookService) markProcessed(ctx context.Context, eventID string, log *zap.Logger) {
	if s.idempotency == nil || eventID == "" {
		return
	}
	if _, err := s.idempotency.MarkProcessed(ctx, eventID, s.idempotencyTTL); err != nil {
		log.Warn("Failed to mark webhook event processed", zap.Error(err))
	}
}

// handleCheckoutCompleted handles checkout.session.completed events
func (s *SubscriptionWebhookService) handleCheckoutCompleted(ctx context.Context, event stripe.Event, result *WebhookResult, log *zap.Logger) error {
	var sess stripe.CheckoutSession
	if err := json.Unmarshal(event.Data.Raw, &sess); err != nil {
		return fmt.Errorf("%w: checkout session: %w", subscription.ErrMalformedPayload, err)
	}

	userID := sess.Metadata[subscription.MetadataUserID]
	plan := sess.Metadata[subscription.MetadataPlan]
	if userID == "" || plan == "" {
		return fmt.Errorf("%w: checkout session %s needs %s and %s",
			subscription.ErrMissingMetadata, sess.ID, subscription.MetadataUserID, subscription.MetadataPlan)
	}

	var subscriptionID string
	var periodEndSeconds int64
	if sess.Subscription != nil {
		subscriptionID = sess.Subscription.ID
		periodEndSeconds = sess.Subscription.CurrentPeriodEnd
	}
	if periodEndSeconds == 0 && subscriptionID != "" && s.periods != nil {
		end, err := s.periods.SubscriptionPeriodEnd(ctx, subscriptionID)
		if err != nil {
			log.Warn("Failed to resolve subscription period end",
				zap.String("subscription_id", subscriptionID),
				zap.Error(err))
		} else {
			periodEndSeconds = end
		}
	}

	log = log.With(
		zap.String("user_id", userID),
		zap.String("session_id", sess.ID),
		zap.String("subscription_id", subscriptionID))

	row := &subscription.Subscription{
		UserID:                 userID,
		Plan:                   plan,
		Status:                 subscription.StatusActive,
		ProviderCustomerID:     customerID(sess.Customer),
		ProviderSubscriptionID: subscriptionID,
		ProviderSessionID:      sess.ID,
		CurrentPeriodEnd:       subscription.PeriodEndFromUnix(periodEndSeconds),
		Source:                 subscription.SourceProvider,
		LastEventID:            event.ID,
	}
	if err := s.repo.Upsert(ctx, row); err != nil {
		return fmt.Errorf("%w: user %s: %w", subscription.ErrStoreWrite, userID, err)
	}

	result.Handled = true
	result.RowsAffected = 1
	s.invalidate(ctx, userID, log)

	log.Info("Subscription activated from checkout", zap.String("plan", plan))
	return nil
}

// handleSubscriptionChanged handles customer.subscription.updated and
// customer.subscription.deleted events
func (s *SubscriptionWebhookService) handleSubscriptionChanged(ctx context.Context, event stripe.Event, result *WebhookResult, log *zap.Logger) error {
	var sub stripe.Subscription
	if err := json.Unmarshal(event.Data.Raw, &sub); err != nil {
		return fmt.Errorf("%w: subscription: %w", subscription.ErrMalformedPayload, err)
	}

	userID := sub.Metadata[subscription.MetadataUserID]
	if userID == "" {
		return fmt.Errorf("%w: subscription %s needs %s",
			subscription.ErrMissingMetadata, sub.ID, subscription.MetadataUserID)
	}

	status := subscription.MapProviderStatus(string(sub.Status))
	if event.Type == stripe.EventTypeCustomerSubscriptionDeleted {
		status = subscription.StatusInactive
	}

	log = log.With(
		zap.String("user_id", userID),
		zap.String("subscription_id", sub.ID),
		zap.String("provider_status", string(sub.Status)))

	patch := subscription.Patch{
		Status:                 status,
		ProviderSubscriptionID: sub.ID,
		ProviderCustomerID:     customerID(sub.Customer),
		CurrentPeriodEnd:       subscription.PeriodEndFromUnix(sub.CurrentPeriodEnd),
		LastEventID:            event.ID,
	}
	filter := subscription.Filter{
		UserID:                 userID,
		ProviderSubscriptionID: sub.ID,
	}

	affected, err := s.repo.Update(ctx, filter, patch)
	if err != nil {
		return fmt.Errorf("%w: subscription %s: %w", subscription.ErrStoreWrite, sub.ID, err)
	}

	result.Handled = true
	result.RowsAffected = affected
	if affected == 0 {
		// acknowledged so the provider stops retrying
		log.Warn("No subscription matched provider event")
		result.Message = "No matching subscription"
		return nil
	}

	s.invalidate(ctx, userID, log)
	log.Info("Subscription updated from provider event",
		zap.String("status", string(status)),
		zap.Int64("rows_affected", affected))
	return nil
}

func (s *SubscriptionWebhookService) invalidate(ctx context.Context, userID string, log *zap.Logger) {
	if s.status == nil {
		return
	}
	if err := s.status.Invalidate(ctx, userID); err != nil {
		log.Warn("Failed to invalidate subscription status", zap.Error(err))
	}
}

func customerID(c *stripe.Customer) string {
	if c == nil {
		return ""
	}
	return c.ID
}
