package handler

import (
	"context"
	"io"
	"net/http"

	"github.com/fitpulse/backend/internal/application/billing"
	"github.com/fitpulse/backend/internal/interfaces/http/dto"
	"github.com/gin-gonic/gin"
)

// Maximum webhook payload size (64KB - Stripe webhooks are typically small)
const maxWebhookPayloadSize = 65536

// StripeSignatureHeader carries the provider's payload signature
const StripeSignatureHeader = "Stripe-Signature"

// WebhookProcessor verifies and applies a provider event
type WebhookProcessor interface {
	ProcessWebhook(ctx context.Context, payload []byte, signature string) (*billing.WebhookResult, error)
}

// StripeWebhookHandler receives subscription events from Stripe. The
// endpoint is authenticated by the payload signature, not a JWT.
type StripeWebhookHandler struct {
	processor WebhookProcessor
}

// NewStripeWebhookHandler creates a new StripeWebhookHandler
func NewStripeWebhookHandler(processor WebhookProcessor) *StripeWebhookHandler {
	return &StripeWebhookHandler{processor: processor}
}

// HandleStripeWebhook answers 200 for applied, ignored and duplicate
// events, 400 when the payload cannot be trusted and 500 when the event
// should be redelivered.
func (h *StripeWebhookHandler) HandleStripeWebhook(c *gin.Context) {
	// Stripe requires the raw body for signature verification
	payload, err := io.ReadAll(io.LimitReader(c.Request.Body, maxWebhookPayloadSize+1))
	if err != nil {
		c.JSON(http.StatusBadRequest, dto.WebhookResponse{Message: "Failed to read request body"})
		return
	}
	if len(payload) > maxWebhookPayloadSize {
		c.JSON(http.StatusRequestEntityTooLarge, dto.WebhookResponse{Message: "Payload too large"})
		return
	}
	if len(payload) == 0 {
		c.JSON(http.StatusBadRequest, dto.WebhookResponse{Message: "Empty payload"})
		return
	}

	result, err := h.processor.ProcessWebhook(c.Request.Context(), payload, c.GetHeader(StripeSignatureHeader))
	if err != nil {
		_ = c.Error(err)
		status, _, message := statusOf(err)
		c.JSON(status, dto.WebhookResponse{Message: message})
		return
	}

	c.JSON(http.StatusOK, dto.WebhookResponse{
		Received:  true,
		EventID:   result.EventID,
		EventType: result.EventType,
		Duplicate: result.Duplicate,
	})
}
