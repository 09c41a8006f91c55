package billing

import (
	"context"
	"errors"
	"fmt"

	"github.com/fitpulse/backend/internal/domain/subscription"
	infrabilling "github.com/fitpulse/backend/internal/infrastructure/billing"
	"go.uber.org/zap"
)

// CheckoutGateway creates hosted checkout sessions at the payment provider
type CheckoutGateway interface {
	CreateSubscriptionCheckout(ctx context.Context, input infrabilling.CheckoutSessionInput) (*infrabilling.CheckoutSessionOutput, error)
}

// CheckoutInput is a request to start checkout for a plan
type CheckoutInput struct {
	UserID string
	Email  string
	Plan   string
}

// CheckoutResult is the hosted checkout the client should open
type CheckoutResult struct {
	SessionID string `json:"session_id"`
	URL       string `json:"url"`
}

// CheckoutService starts subscription checkouts for catalog plans
type CheckoutService struct {
	catalog *subscription.PlanCatalog
	gateway CheckoutGateway
	logger  *zap.Logger
}

// NewCheckoutService creates a new CheckoutService. gateway may be nil when
// no provider key is configured; CreateCheckout then fails.
func NewCheckoutService(catalog *subscription.PlanCatalog, gateway CheckoutGateway, logger *zap.Logger) *CheckoutService {
	return &CheckoutService{
		catalog: catalog,
		gateway: gateway,
		logger:  logger,
	}
}

// ErrCheckoutUnavailable means no payment provider is configured
var ErrCheckoutUnavailable = errors.New("checkout is not configured")

// Plans lists the purchasable plans
func (s *CheckoutService) Plans() []subscription.Plan {
	return s.catalog.List()
}

// CreateCheckout opens a hosted checkout for in.Plan on behalf of in.UserID
func (s *CheckoutService) CreateCheckout(ctx context.Context, in CheckoutInput) (*CheckoutResult, error) {
	if in.UserID == "" {
		return nil, subscription.ErrUserMissing
	}
	plan, ok := s.catalog.Lookup(in.Plan)
	if !ok {
		return nil, fmt.Errorf("%w: %q", subscription.ErrUnknownPlan, in.Plan)
	}
	if s.gateway == nil {
		return nil, ErrCheckoutUnavailable
	}

	out, err := s.gateway.CreateSubscriptionCheckout(ctx, infrabilling.CheckoutSessionInput{
		UserID:  in.UserID,
		Email:   in.Email,
		Plan:    plan.Name,
		PriceID: plan.PriceID,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create checkout session: %w", err)
	}

	s.logger.Info("Checkout session started",
		zap.String("user_id", in.UserID),
		zap.String("plan", plan.Name),
		zap.String("session_id", out.SessionID))

	return &CheckoutResult{
		SessionID: out.SessionID,
		URL:       out.URL,
	}, nil
}
