package middleware

import (
	"net/http"

	"github.com/fitpulse/backend/internal/application/billing"
	"github.com/fitpulse/backend/internal/domain/subscription"
	"github.com/fitpulse/backend/internal/infrastructure/logger"
	"github.com/fitpulse/backend/internal/interfaces/http/dto"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// SubscriptionStatusKey holds the snapshot the gate admitted the request with
const SubscriptionStatusKey = "subscription_status"

// RequireActiveSubscription admits only users whose published snapshot is
// active. It must run after JWTAuth.
func RequireActiveSubscription(status billing.StatusReader) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID := GetJWTUserID(c)
		if userID == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized,
				dto.NewErrorResponse(dto.ErrCodeUnauthorized, "Authentication required"))
			return
		}

		snap, err := status.Status(c.Request.Context(), userID)
		if err != nil {
			logger.L(c.Request.Context()).Error("Subscription status lookup failed", zap.Error(err))
			c.AbortWithStatusJSON(http.StatusInternalServerError,
				dto.NewErrorResponse(dto.ErrCodeInternal, "Could not check subscription status"))
			return
		}
		if !snap.Active {
			c.AbortWithStatusJSON(http.StatusPaymentRequired,
				dto.NewErrorResponse(dto.ErrCodeSubscriptionRequired, "An active subscription is required"))
			return
		}

		c.Set(SubscriptionStatusKey, snap)
		c.Next()
	}
}

// GetSubscriptionStatus returns the snapshot set by RequireActiveSubscription
func GetSubscriptionStatus(c *gin.Context) *subscription.StatusSnapshot {
	if v, ok := c.Get(SubscriptionStatusKey); ok {
		if snap, ok := v.(*subscription.StatusSnapshot); ok {
			return snap
		}
	}
	return nil
}
