package handler

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/fitpulse/backend/internal/application/billing"
	"github.com/fitpulse/backend/internal/domain/subscription"
	"github.com/fitpulse/backend/internal/interfaces/http/dto"
	"github.com/fitpulse/backend/internal/interfaces/http/middleware"
	"github.com/gin-gonic/gin"
)

// SubscriptionConfirmer records the client-side activation after checkout
type SubscriptionConfirmer interface {
	Confirm(ctx context.Context, in billing.ConfirmInput) (*billing.ConfirmResult, error)
}

// StatusProvider serves and refreshes the published subscription status
type StatusProvider interface {
	billing.StatusReader
	Refresh(ctx context.Context, userID string) (*subscription.StatusSnapshot, error)
}

// CheckoutStarter lists plans and opens hosted checkouts
type CheckoutStarter interface {
	Plans() []subscription.Plan
	CreateCheckout(ctx context.Context, in billing.CheckoutInput) (*billing.CheckoutResult, error)
}

// SubscriptionHandler serves the app-facing subscription endpoints
type SubscriptionHandler struct {
	BaseHandler
	confirmer SubscriptionConfirmer
	status    StatusProvider
	checkout  CheckoutStarter
}

// NewSubscriptionHandler creates a new SubscriptionHandler
func NewSubscriptionHandler(confirmer SubscriptionConfirmer, status StatusProvider, checkout CheckoutStarter) *SubscriptionHandler {
	return &SubscriptionHandler{
		confirmer: confirmer,
		status:    status,
		checkout:  checkout,
	}
}

// Confirm handles the return from hosted checkout.
//
// JSON clients get the redirect target and delay in the body. Browsers get
// a Refresh header pointing at the same target.
//
//	GET /api/v1/subscription/confirm?session_id=cs_...&plan=monthly
func (h *SubscriptionHandler) Confirm(c *gin.Context) {
	result, err := h.confirmer.Confirm(c.Request.Context(), billing.ConfirmInput{
		UserID:    getUserID(c),
		SessionID: strings.TrimSpace(c.Query("session_id")),
		Plan:      strings.TrimSpace(c.Query("plan")),
	})

	status, code := http.StatusOK, ""
	if err != nil {
		_ = c.Error(err)
		status, code, _ = statusOf(err)
	}

	body := dto.ConfirmResponse{
		Active:          result.Active,
		Applied:         result.Applied,
		RedirectTo:      result.RedirectTo,
		RedirectAfterMs: result.RedirectAfter.Milliseconds(),
		Message:         result.Message,
	}

	if !wantsJSON(c) {
		c.Header("Refresh", refreshHeader(result.RedirectAfter, result.RedirectTo))
		c.String(status, result.Message)
		return
	}
	if err != nil {
		c.JSON(status, dto.NewErrorResponseWithData(code, result.Message, body).WithRequestID(getRequestID(c)))
		return
	}
	h.Success(c, body)
}

// wantsJSON reports whether the client asked for JSON rather than a page
func wantsJSON(c *gin.Context) bool {
	if c.Query("format") == "json" {
		return true
	}
	return strings.Contains(c.GetHeader("Accept"), "application/json")
}

func refreshHeader(delay time.Duration, target string) string {
	seconds := int((delay + time.Second - 1) / time.Second)
	return strconv.Itoa(seconds) + "; url=" + target
}

// Status returns the cached subscription snapshot for the caller
//
//	GET /api/v1/subscription/status
func (h *SubscriptionHandler) Status(c *gin.Context) {
	snap, err := h.status.Status(c.Request.Context(), getUserID(c))
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, snap)
}

// Refresh re-reads the caller's subscription and republishes it. Apps call
// it when brought to the foreground.
//
//	POST /api/v1/subscription/refresh
func (h *SubscriptionHandler) Refresh(c *gin.Context) {
	snap, err := h.status.Refresh(c.Request.Context(), getUserID(c))
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, snap)
}

// Plans lists the purchasable plans
//
//	GET /api/v1/subscription/plans
func (h *SubscriptionHandler) Plans(c *gin.Context) {
	plans := h.checkout.Plans()
	out := make([]dto.PlanResponse, 0, len(plans))
	for _, p := range plans {
		out = append(out, dto.PlanResponse{
			Name:     p.Name,
			Amount:   p.Amount.StringFixed(2),
			Currency: p.Currency,
			Interval: p.Interval,
		})
	}
	h.Success(c, out)
}

// Checkout opens a hosted checkout for the requested plan
//
//	POST /api/v1/subscription/checkout {"plan":"monthly"}
func (h *SubscriptionHandler) Checkout(c *gin.Context) {
	var req dto.CheckoutRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.ValidationError(c, err)
		return
	}

	result, err := h.checkout.CreateCheckout(c.Request.Context(), billing.CheckoutInput{
		UserID: getUserID(c),
		Email:  middleware.GetJWTEmail(c),
		Plan:   req.Plan,
	})
	if err != nil {
		if errors.Is(err, billing.ErrCheckoutUnavailable) {
			h.Error(c, http.StatusServiceUnavailable, dto.ErrCodeCheckoutUnavailable, "Checkout is not available")
			return
		}
		h.HandleError(c, err)
		return
	}
	h.Created(c, result)
}

// Ping is the sample premium endpoint behind the subscription gate
//
//	GET /api/v1/premium/ping
func (h *SubscriptionHandler) Ping(c *gin.Context) {
	snap := middleware.GetSubscriptionStatus(c)
	data := gin.H{"pong": true}
	if snap != nil {
		data["plan"] = snap.Plan
	}
	h.Success(c, data)
}
