package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/fitpulse/backend/internal/application/billing"
	"github.com/fitpulse/backend/internal/domain/subscription"
	infrabilling "github.com/fitpulse/backend/internal/infrastructure/billing"
	"github.com/fitpulse/backend/internal/interfaces/http/middleware"
	"github.com/gin-gonic/gin"
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
	if out := args.Get(0); out != nil {
		return out.(*infrabilling.CheckoutSessionOutput), args.Error(1)
	}
	return nil, args.Error(1)
}

type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   *struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

func decodeEnvelope(t *testing.T, w *httptest.ResponseRecorder) envelope {
	t.Helper()
	var env envelope
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &env))
	return env
}

func newSubscriptionEngine(t *testing.T, stack *billingStack, gateway billing.CheckoutGateway, userID string) *gin.Engine {
	t.Helper()
	checkout := billing.NewCheckoutService(testCatalog(t), gateway, zap.NewNop())
	h := NewSubscriptionHandler(stack.confirm, stack.status, checkout)

	engine := gin.New()
	engine.Use(withUser(userID))
	engine.GET("/confirm", h.Confirm)
	engine.GET("/status", h.Status)
	engine.POST("/refresh", h.Refresh)
	engine.GET("/plans", h.Plans)
	engine.POST("/checkout", h.Checkout)
	engine.GET("/premium/ping", middleware.RequireActiveSubscription(stack.status), h.Ping)
	return engine
}

func doRequest(engine *gin.Engine, method, target, body string, headers map[string]string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	engine.ServeHTTP(w, req)
	return w
}

var acceptJSON = map[string]string{"Accept": "application/json"}

func TestSubscriptionHandler_Confirm(t *testing.T) {
	tests := []struct {
		name       string
		userID     string
		target     string
		failWrites bool
		wantStatus int
		wantCode   string
		wantTarget string
		wantActive bool
	}{
		{name: "activates", userID: "u1", target: "/confirm?session_id=sess_123", wantStatus: http.StatusOK, wantTarget: "/dashboard", wantActive: true},
		{name: "missing session", userID: "u1", target: "/confirm", wantStatus: http.StatusBadRequest, wantCode: "SESSION_MISSING", wantTarget: "/subscription"},
		{name: "missing user", target: "/confirm?session_id=sess_123", wantStatus: http.StatusBadRequest, wantCode: "USER_MISSING", wantTarget: "/subscription"},
		{name: "store failure", userID: "u1", target: "/confirm?session_id=sess_123", failWrites: true, wantStatus: http.StatusInternalServerError, wantCode: "STORE_WRITE_FAILURE", wantTarget: "/subscription"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			stack := newBillingStack(t)
			if tt.failWrites {
				stack.repo.FailWritesWith(errors.New("disk full"))
			}
			engine := newSubscriptionEngine(t, stack, nil, tt.userID)

			w := doRequest(engine, http.MethodGet, tt.target, "", acceptJSON)

			assert.Equal(t, tt.wantStatus, w.Code)
			env := decodeEnvelope(t, w)
			assert.Equal(t, tt.wantCode == "", env.Success)
			if tt.wantCode != "" {
				require.NotNil(t, env.Error)
				assert.Equal(t, tt.wantCode, env.Error.Code)
			}

			var data struct {
				Active          bool   `json:"active"`
				RedirectTo      string `json:"redirect_to"`
				RedirectAfterMs int64  `json:"redirect_after_ms"`
				Message         string `json:"message"`
			}
			require.NoError(t, json.Unmarshal(env.Data, &data))
			assert.Equal(t, tt.wantTarget, data.RedirectTo)
			assert.Equal(t, tt.wantActive, data.Active)
			assert.Equal(t, int64(3000), data.RedirectAfterMs)
			assert.NotEmpty(t, data.Message)
		})
	}
}

func TestSubscriptionHandler_ConfirmBrowserRedirect(t *testing.T) {
	stack := newBillingStack(t)
	engine := newSubscriptionEngine(t, stack, nil, "u1")

	w := doRequest(engine, http.MethodGet, "/confirm?session_id=sess_123&plan=monthly", "", map[string]string{"Accept": "text/html"})

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "3; url=/dashboard", w.Header().Get("Refresh"))
	assert.Contains(t, w.Body.String(), "Redirecting")

	row, err := stack.repo.FindByUserID(context.Background(), "u1")
	require.NoError(t, err)
	assert.Equal(t, "monthly", row.Plan)
	assert.Equal(t, subscription.SourceClient, row.Source)
}

func TestSubscriptionHandler_ConfirmThenStatus(t *testing.T) {
	stack := newBillingStack(t)
	engine := newSubscriptionEngine(t, stack, nil, "u1")

	w := doRequest(engine, http.MethodGet, "/confirm?session_id=sess_123&format=json", "", nil)
	require.Equal(t, http.StatusOK, w.Code)

	w = doRequest(engine, http.MethodGet, "/status", "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var snap subscription.StatusSnapshot
	require.NoError(t, json.Unmarshal(decodeEnvelope(t, w).Data, &snap))
	assert.True(t, snap.Active)
	assert.Equal(t, "u1", snap.UserID)

	w = doRequest(engine, http.MethodGet, "/premium/ping", "", nil)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestSubscriptionHandler_RefreshSeesWebhookWrites(t *testing.T) {
	stack := newBillingStack(t)
	engine := newSubscriptionEngine(t, stack, nil, "u1")

	w := doRequest(engine, http.MethodGet, "/status", "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var snap subscription.StatusSnapshot
	require.NoError(t, json.Unmarshal(decodeEnvelope(t, w).Data, &snap))
	assert.False(t, snap.Active)

	w = doRequest(engine, http.MethodGet, "/premium/ping", "", nil)
	assert.Equal(t, http.StatusPaymentRequired, w.Code)

	payload := completedEvent(t, "evt_1", "u1", 4102444800)
	_, err := stack.webhook.ProcessWebhook(context.Background(), payload, signPayload(payload))
	require.NoError(t, err)

	w = doRequest(engine, http.MethodPost, "/refresh", "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	require.NoError(t, json.Unmarshal(decodeEnvelope(t, w).Data, &snap))
	assert.True(t, snap.Active)
	assert.Equal(t, "monthly", snap.Plan)
}

func TestSubscriptionHandler_Plans(t *testing.T) {
	engine := newSubscriptionEngine(t, newBillingStack(t), nil, "")

	w := doRequest(engine, http.MethodGet, "/plans", "", nil)

	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"success":true,"data":[
		{"name":"monthly","amount":"9.99","currency":"usd","interval":"month"},
		{"name":"yearly","amount":"79.90","currency":"usd","interval":"year"}
	]}`, w.Body.String())
	assert.NotContains(t, w.Body.String(), "price_m")
}

func TestSubscriptionHandler_Checkout(t *testing.T) {
	tests := []struct {
		name       string
		body       string
		noGateway  bool
		setup      func(*mockCheckoutGateway)
		wantStatus int
		wantCode   string
	}{
		{
			name: "creates session",
			body: `{"plan":"monthly"}`,
			setup: func(g *mockCheckoutGateway) {
				g.On("CreateSubscriptionCheckout", mock.Anything, infrabilling.CheckoutSessionInput{
					UserID:  "u1",
					Email:   "u1@example.com",
					Plan:    "monthly",
					PriceID: "price_m",
				}).Return(&infrabilling.CheckoutSessionOutput{SessionID: "cs_1", URL: "https://checkout.stripe.com/c/cs_1"}, nil)
			},
			wantStatus: http.StatusCreated,
		},
		{name: "missing plan", body: `{}`, wantStatus: http.StatusBadRequest, wantCode: "VALIDATION_ERROR"},
		{name: "invalid plan name", body: `{"plan":"Monthly Plan"}`, wantStatus: http.StatusBadRequest, wantCode: "VALIDATION_ERROR"},
		{name: "unknown plan", body: `{"plan":"weekly"}`, wantStatus: http.StatusBadRequest, wantCode: "UNKNOWN_PLAN"},
		{name: "no provider", body: `{"plan":"monthly"}`, noGateway: true, wantStatus: http.StatusServiceUnavailable, wantCode: "CHECKOUT_UNAVAILABLE"},
		{
			name: "provider error",
			body: `{"plan":"monthly"}`,
			setup: func(g *mockCheckoutGateway) {
				g.On("CreateSubscriptionCheckout", mock.Anything, mock.Anything).Return(nil, errors.New("stripe down"))
			},
			wantStatus: http.StatusInternalServerError,
			wantCode:   "INTERNAL_ERROR",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			gw := &mockCheckoutGateway{}
			if tt.setup != nil {
				tt.setup(gw)
			}
			var gateway billing.CheckoutGateway = gw
			if tt.noGateway {
				gateway = nil
			}
			engine := newSubscriptionEngine(t, newBillingStack(t), gateway, "u1")

			w := doRequest(engine, http.MethodPost, "/checkout", tt.body, map[string]string{"Content-Type": "application/json"})

			assert.Equal(t, tt.wantStatus, w.Code)
			env := decodeEnvelope(t, w)
			if tt.wantCode != "" {
				require.NotNil(t, env.Error)
				assert.Equal(t, tt.wantCode, env.Error.Code)
				return
			}
			assert.JSONEq(t, `{"session_id":"cs_1","url":"https://checkout.stripe.com/c/cs_1"}`, string(env.Data))
			gw.AssertExpectations(t)
		})
	}
}
