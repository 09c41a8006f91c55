package handler

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/fitpulse/backend/internal/application/billing"
	"github.com/fitpulse/backend/internal/domain/subscription"
	"github.com/fitpulse/backend/internal/infrastructure/cache"
	"github.com/fitpulse/backend/internal/infrastructure/persistence"
	"github.com/fitpulse/backend/internal/interfaces/http/middleware"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"
	"github.com/stripe/stripe-go/v81/webhook"
	"go.uber.org/zap"
)

const testWebhookSecret = "whsec_handler_test"

func init() {
	gin.SetMode(gin.TestMode)
	middleware.SetupValidator()
}

// billingStack is the real reconciliation stack over in-memory stores
type billingStack struct {
	repo    *persistence.InMemorySubscriptionRepository
	status  *billing.StatusContext
	webhook *billing.SubscriptionWebhookService
	confirm *billing.ConfirmationService
}

func newBillingStack(t *testing.T) *billingStack {
	t.Helper()
	idem := cache.NewInMemoryIdempotencyStore(time.Minute)
	t.Cleanup(func() { _ = idem.Close() })

	s := &billingStack{repo: persistence.NewInMemorySubscriptionRepository()}
	s.status = billing.NewStatusContext(s.repo, cache.NewInMemoryStatusCache(), zap.NewNop())
	s.webhook = billing.NewSubscriptionWebhookService(billing.SubscriptionWebhookServiceConfig{
		WebhookSecret: testWebhookSecret,
		Repo:          s.repo,
		Status:        s.status,
		Idempotency:   idem,
		Logger:        zap.NewNop(),
	})
	s.confirm = billing.NewConfirmationService(billing.ConfirmationServiceConfig{
		Repo:          s.repo,
		Status:        s.status,
		RedirectDelay: 3 * time.Second,
		Logger:        zap.NewNop(),
	})
	return s
}

func testCatalog(t *testing.T) *subscription.PlanCatalog {
	t.Helper()
	monthly, err := subscription.ParsePlan("monthly", "price_m", "9.99", "usd", "month")
	require.NoError(t, err)
	yearly, err := subscription.ParsePlan("yearly", "price_y", "79.9", "usd", "year")
	require.NoError(t, err)
	catalog, err := subscription.NewPlanCatalog([]subscription.Plan{monthly, yearly})
	require.NoError(t, err)
	return catalog
}

func eventPayload(t *testing.T, id, eventType string, object map[string]any) []byte {
	t.Helper()
	body, err := json.Marshal(map[string]any{
		"id":          id,
		"object":      "event",
		"type":        eventType,
		"api_version": "2019-01-01",
		"data":        map[string]any{"object": object},
	})
	require.NoError(t, err)
	return body
}

func signPayload(payload []byte) string {
	return webhook.GenerateTestSignedPayload(&webhook.UnsignedPayload{
		Payload: payload,
		Secret:  testWebhookSecret,
	}).Header
}

// withUser simulates JWTAuth having accepted a token for userID
func withUser(userID string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if userID != "" {
			c.Set(middleware.JWTUserIDKey, userID)
			c.Set(middleware.JWTEmailKey, userID+"@example.com")
		}
	}
}

func postWebhook(engine *gin.Engine, payload []byte, signature string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/webhooks/stripe", bytes.NewReader(payload))
	if signature != "" {
		req.Header.Set(StripeSignatureHeader, signature)
	}
	w := httptest.NewRecorder()
	engine.ServeHTTP(w, req)
	return w
}
