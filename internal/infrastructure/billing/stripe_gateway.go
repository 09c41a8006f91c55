package billing

import (
	"context"
	"fmt"

	domain "github.com/fitpulse/backend/internal/domain/subscription"
	"github.com/stripe/stripe-go/v81"
	checkoutsession "github.com/stripe/stripe-go/v81/checkout/session"
	"github.com/stripe/stripe-go/v81/subscription"
	"go.uber.org/zap"
)

// CheckoutSessionInput describes a hosted checkout for one plan
type CheckoutSessionInput struct {
	UserID  string
	Email   string
	Plan    string
	PriceID string
}

// CheckoutSessionOutput is the created hosted checkout
type CheckoutSessionOutput struct {
	SessionID string
	URL       string
}

// StripeGateway talks to the Stripe API for checkout creation and
// subscription lookups
type StripeGateway struct {
	config *StripeConfig
	logger *zap.Logger
}

// NewStripeGateway creates a new Stripe gateway
func NewStripeGateway(config *StripeConfig, logger *zap.Logger) (*StripeGateway, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}

	config.InitStripeClient()

	return &StripeGateway{
		config: config,
		logger: logger,
	}, nil
}

// CreateSubscriptionCheckout creates a subscription-mode checkout session.
// user_id and plan go into both the session and the subscription metadata,
// so completed, updated and deleted events all carry them.
func (g *StripeGateway) CreateSubscriptionCheckout(ctx context.Context, input CheckoutSessionInput) (*CheckoutSessionOutput, error) {
	g.logger.Debug("Creating Stripe checkout session",
		zap.String("user_id", input.UserID),
		zap.String("plan", input.Plan))

	metadata := map[string]string{
		domain.MetadataUserID: input.UserID,
		domain.MetadataPlan:   input.Plan,
	}

	params := &stripe.CheckoutSessionParams{
		Mode:              stripe.String(string(stripe.CheckoutSessionModeSubscription)),
		SuccessURL:        stripe.String(g.config.SuccessURL),
		CancelURL:         stripe.String(g.config.CancelURL),
		ClientReferenceID: stripe.String(input.UserID),
		LineItems: []*stripe.CheckoutSessionLineItemParams{
			{
				Price:    stripe.String(input.PriceID),
				Quantity: stripe.Int64(1),
			},
		},
		Metadata: metadata,
		SubscriptionData: &stripe.CheckoutSessionSubscriptionDataParams{
			Metadata: metadata,
		},
	}
	if input.Email != "" {
		params.CustomerEmail = stripe.String(input.Email)
	}
	params.Context = ctx

	sess, err := checkoutsession.New(params)
	if err != nil {
		g.logger.Error("Failed to create Stripe checkout session",
			zap.String("user_id", input.UserID),
			zap.String("plan", input.Plan),
			zap.Error(err))
		return nil, fmt.Errorf("stripe: failed to create checkout session: %w", err)
	}

	g.logger.Info("Stripe checkout session created",
		zap.String("user_id", input.UserID),
		zap.String("session_id", sess.ID))

	return &CheckoutSessionOutput{
		SessionID: sess.ID,
		URL:       sess.URL,
	}, nil
}

// SubscriptionPeriodEnd returns the current period end (unix seconds) of a
// provider subscription
func (g *StripeGateway) SubscriptionPeriodEnd(ctx context.Context, subscriptionID string) (int64, error) {
	params := &stripe.SubscriptionParams{}
	params.Context = ctx

	sub, err := subscription.Get(subscriptionID, params)
	if err != nil {
		g.logger.Error("Failed to get Stripe subscription",
			zap.String("subscription_id", subscriptionID),
			zap.Error(err))
		return 0, fmt.Errorf("stripe: failed to get subscription: %w", err)
	}
	return sub.CurrentPeriodEnd, nil
}
