package billing

import (
	"context"
	"fmt"
	"time"

	"github.com/fitpulse/backend/internal/domain/subscription"
	"github.com/fitpulse/backend/internal/infrastructure/telemetry"
	"go.uber.org/zap"
)

// Defaults for the post-checkout redirect
const (
	DefaultRedirectDelay = 3 * time.Second
	DefaultSuccessPath   = "/dashboard"
	DefaultSelectionPath = "/subscription"
)

// User-visible confirmation messages
const (
	msgActivated    = "Subscription activated! Redirecting to your dashboard..."
	msgConfirmed    = "Subscription confirmed. Redirecting to your dashboard..."
	msgNotActive    = "Your subscription is not active. Please choose a plan."
	msgNoSession    = "Missing checkout session. Please choose a plan again."
	msgNotSignedIn  = "Please sign in to finish activating your subscription."
	msgStoreFailure = "We could not activate your subscription. Please try again."
)

// ConfirmInput is what the checkout redirect delivers
type ConfirmInput struct {
	UserID    string
	SessionID string
	Plan      string
}

// ConfirmResult tells the client where to go next
type ConfirmResult struct {
	Active        bool          `json:"active"`
	Applied       bool          `json:"applied"`
	RedirectTo    string        `json:"redirect_to"`
	RedirectAfter time.Duration `json:"-"`
	Message       string        `json:"message"`
}

// ConfirmationService records the provisional activation made when the
// user returns from hosted checkout, ahead of the provider webhook
type ConfirmationService struct {
	repo          subscription.Repository
	status        *StatusContext
	successPath   string
	selectionPath string
	redirectDelay time.Duration
	metrics       Metrics
	logger        *zap.Logger
	now           func() time.Time
}

// ConfirmationServiceConfig contains configuration for ConfirmationService
type ConfirmationServiceConfig struct {
	Repo          subscription.Repository
	Status        *StatusContext
	SuccessPath   string
	SelectionPath string
	RedirectDelay time.Duration
	Metrics       Metrics
	Logger        *zap.Logger
}

// NewConfirmationService creates a new ConfirmationService
func NewConfirmationService(cfg ConfirmationServiceConfig) *ConfirmationService {
	svc := &ConfirmationService{
		repo:          cfg.Repo,
		status:        cfg.Status,
		successPath:   cfg.SuccessPath,
		selectionPath: cfg.SelectionPath,
		redirectDelay: cfg.RedirectDelay,
		metrics:       cfg.Metrics,
		logger:        cfg.Logger,
		now:           time.Now,
	}
	if svc.successPath == "" {
		svc.successPath = DefaultSuccessPath
	}
	if svc.selectionPath == "" {
		svc.selectionPath = DefaultSelectionPath
	}
	if svc.redirectDelay <= 0 {
		svc.redirectDelay = DefaultRedirectDelay
	}
	if svc.metrics == nil {
		svc.metrics = noopMetrics{}
	}
	if svc.logger == nil {
		svc.logger = zap.NewNop()
	}
	return svc
}

// Confirm optimistically activates the user's subscription for the
// returned checkout session and refreshes the published status.
//
// The returned result is always non-nil and carries the redirect the
// client should follow, also when an error is returned.
func (s *ConfirmationService) Confirm(ctx context.Context, in ConfirmInput) (*ConfirmResult, error) {
	if in.SessionID == "" {
		s.metrics.RecordConfirmation(ctx, OutcomeRejected)
		return s.selection(msgNoSession), subscription.ErrSessionMissing
	}
	if in.UserID == "" {
		s.metrics.RecordConfirmation(ctx, OutcomeRejected)
		return s.selection(msgNotSignedIn), subscription.ErrUserMissing
	}

	ctx, span := telemetry.StartServiceSpan(ctx, "subscription_confirmation", "confirm",
		telemetry.WithAttribute(telemetry.SpanAttrUserID, in.UserID),
		telemetry.WithAttribute(telemetry.SpanAttrSessionID, in.SessionID))
	defer span.End()

	log := s.logger.With(
		zap.String("user_id", in.UserID),
		zap.String("session_id", in.SessionID))

	end := subscription.ProvisionalPeriodEnd(s.now())
	row := &subscription.Subscription{
		UserID:            in.UserID,
		Plan:              in.Plan,
		Status:            subscription.StatusActive,
		ProviderSessionID: in.SessionID,
		CurrentPeriodEnd:  &end,
		Source:            subscription.SourceClient,
	}

	applied, err := s.repo.UpsertProvisional(ctx, row)
	if err != nil {
		log.Error("Failed to record provisional subscription", zap.Error(err))
		s.metrics.RecordConfirmation(ctx, OutcomeFailed)
		telemetry.RecordError(span, err)
		return s.selection(msgStoreFailure), fmt.Errorf("%w: user %s: %w", subscription.ErrStoreWrite, in.UserID, err)
	}
	if !applied {
		log.Info("Checkout session already confirmed by provider, keeping provider state")
	}

	result := &ConfirmResult{
		Active:        applied,
		Applied:       applied,
		RedirectTo:    s.successPath,
		RedirectAfter: s.redirectDelay,
		Message:       msgActivated,
	}
	if !applied {
		result.Message = msgConfirmed
	}

	snap, err := s.status.Refresh(ctx, in.UserID)
	switch {
	case err == nil:
		result.Active = snap.Active
	case !applied:
		// the provider-confirmed row decides, not the skipped client write
		log.Warn("Failed to refresh subscription status, reading the stored row", zap.Error(err))
		result.Active = s.storedActive(ctx, in.UserID, log)
	default:
		log.Warn("Failed to refresh subscription status after confirmation", zap.Error(err))
	}

	if !result.Active {
		result.RedirectTo = s.selectionPath
		result.Message = msgNotActive
		s.metrics.RecordConfirmation(ctx, OutcomeSkipped)
		return result, nil
	}

	if applied {
		s.metrics.RecordConfirmation(ctx, OutcomeApplied)
	} else {
		s.metrics.RecordConfirmation(ctx, OutcomeSkipped)
	}
	log.Info("Subscription confirmed from checkout redirect", zap.Bool("applied", applied))
	return result, nil
}

func (s *ConfirmationService) storedActive(ctx context.Context, userID string, log *zap.Logger) bool {
	sub, err := s.repo.FindByUserID(ctx, userID)
	if err != nil {
		log.Warn("Failed to read subscription after refresh failure", zap.Error(err))
		return false
	}
	return sub.IsActiveAt(s.now())
}

func (s *ConfirmationService) selection(message string) *ConfirmResult {
	return &ConfirmResult{
		RedirectTo:    s.selectionPath,
		RedirectAfter: s.redirectDelay,
		Message:       message,
	}
}
