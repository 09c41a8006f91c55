package billing

import (
	"context"
	"errors"
	"testing"

	"github.com/fitpulse/backend/internal/domain/subscription"
	infrabilling "github.com/fitpulse/backend/internal/infrastructure/billing"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type mockCheckoutGateway struct {
	mock.Mock
}

func (m *mockCheckoutGateway) CreateSubscriptionCheckout(ctx context.Context, input infrabilling.CheckoutSessionInput) (*infrabilling.CheckoutSessionOutput, error) {
	args := m.Called(ctx, input)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*infrabilling.CheckoutSessionOutput), args.Error(1)
}

func testCatalog(t *testing.T) *subscription.PlanCatalog {
	t.Helper()
	monthly, err := subscription.ParsePlan("monthly", "price_monthly", "9.99", "USD", "month")
	require.NoError(t, err)
	yearly, err := subscription.ParsePlan("yearly", "price_yearly", "79.99", "usd", "year")
	require.NoError(t, err)
	catalog, err := subscription.NewPlanCatalog([]subscription.Plan{monthly, yearly})
	require.NoError(t, err)
	return catalog
}

func TestCheckoutService_CreateCheckout(t *testing.T) {
	ctx := context.Background()

	t.Run("creates a session for a catalog plan", func(t *testing.T) {
		gateway := &mockCheckoutGateway{}
		gateway.On("CreateSubscriptionCheckout", mock.Anything, infrabilling.CheckoutSessionInput{
			UserID:  "u1",
			Email:   "u1@example.com",
			Plan:    "yearly",
			PriceID: "price_yearly",
		}).Return(&infrabilling.CheckoutSessionOutput{SessionID: "cs_1", URL: "https://checkout.stripe.com/c/cs_1"}, nil)
		svc := NewCheckoutService(testCatalog(t), gateway, zap.NewNop())

		result, err := svc.CreateCheckout(ctx, CheckoutInput{UserID: "u1", Email: "u1@example.com", Plan: "yearly"})

		require.NoError(t, err)
		assert.Equal(t, "cs_1", result.SessionID)
		assert.Equal(t, "https://checkout.stripe.com/c/cs_1", result.URL)
		gateway.AssertExpectations(t)
	})

	t.Run("unknown plan", func(t *testing.T) {
		gateway := &mockCheckoutGateway{}
		svc := NewCheckoutService(testCatalog(t), gateway, zap.NewNop())

		_, err := svc.CreateCheckout(ctx, CheckoutInput{UserID: "u1", Plan: "lifetime"})

		assert.ErrorIs(t, err, subscription.ErrUnknownPlan)
		gateway.AssertNotCalled(t, "CreateSubscriptionCheckout", mock.Anything, mock.Anything)
	})

	t.Run("requires a user", func(t *testing.T) {
		svc := NewCheckoutService(testCatalog(t), &mockCheckoutGateway{}, zap.NewNop())

		_, err := svc.CreateCheckout(ctx, CheckoutInput{Plan: "monthly"})

		assert.ErrorIs(t, err, subscription.ErrUserMissing)
	})

	t.Run("no gateway configured", func(t *testing.T) {
		svc := NewCheckoutService(testCatalog(t), nil, zap.NewNop())

		_, err := svc.CreateCheckout(ctx, CheckoutInput{UserID: "u1", Plan: "monthly"})

		assert.ErrorIs(t, err, ErrCheckoutUnavailable)
	})

	t.Run("gateway error is wrapped", func(t *testing.T) {
		gateway := &mockCheckoutGateway{}
		gateway.On("CreateSubscriptionCheckout", mock.Anything, mock.Anything).Return(nil, errors.New("card_declined"))
		svc := NewCheckoutService(testCatalog(t), gateway, zap.NewNop())

		_, err := svc.CreateCheckout(ctx, CheckoutInput{UserID: "u1", Plan: "monthly"})

		require.Error(t, err)
		assert.Contains(t, err.Error(), "card_declined")
	})
}

func TestCheckoutService_Plans(t *testing.T) {
	svc := NewCheckoutService(testCatalog(t), nil, zap.NewNop())

	plans := svc.Plans()

	require.Len(t, plans, 2)
	assert.Equal(t, "monthly", plans[0].Name)
	assert.Equal(t, "9.99", plans[0].Amount.StringFixed(2))
	assert.Equal(t, "usd", plans[0].Currency)
}
