package router

import (
	"net/http"

	"github.com/fitpulse/backend/internal/application/billing"
	"github.com/fitpulse/backend/internal/infrastructure/logger"
	"github.com/fitpulse/backend/internal/interfaces/http/dto"
	"github.com/fitpulse/backend/internal/interfaces/http/handler"
	"github.com/fitpulse/backend/internal/interfaces/http/middleware"
	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"
)

// Dependencies is everything the HTTP surface is built from
type Dependencies struct {
	Logger       *zap.Logger
	Webhook      *handler.StripeWebhookHandler
	Subscription *handler.SubscriptionHandler
	Health       *handler.HealthHandler
	Status       billing.StatusReader
	JWT          middleware.JWTMiddlewareConfig
	CORS         middleware.CORSConfig
	Tracing      middleware.TracingConfig
	// Meter enables HTTP metrics when set
	Meter       metric.Meter
	MaxBodySize int64
	// RateLimiter, when set, limits the user-triggered subscription writes
	RateLimiter *middleware.RateLimiter
}

// NewEngine builds the gin engine with the global middleware chain and
// every route of the service
func NewEngine(deps Dependencies) *gin.Engine {
	middleware.SetupValidator()

	engine := gin.New()
	engine.HandleMethodNotAllowed = true
	engine.NoMethod(func(c *gin.Context) {
		c.JSON(http.StatusMethodNotAllowed,
			dto.NewErrorResponse(dto.ErrCodeMethodNotAllowed, "Method not allowed"))
	})
	engine.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusNotFound, dto.NewErrorResponse(dto.ErrCodeNotFound, "Route not found"))
	})

	engine.Use(middleware.RequestID())
	engine.Use(logger.Recovery(deps.Logger))
	engine.Use(middleware.Tracing(deps.Tracing)...)
	engine.Use(logger.GinMiddleware(deps.Logger))
	engine.Use(middleware.HTTPMetrics(deps.Meter, deps.Logger))
	engine.Use(middleware.Secure())
	engine.Use(middleware.CORSWithConfig(deps.CORS))
	if deps.MaxBodySize > 0 {
		engine.Use(middleware.BodyLimit(deps.MaxBodySize))
	}

	engine.GET("/health", deps.Health.Health)

	jwtAuth := middleware.JWTAuth(deps.JWT)
	sub := deps.Subscription
	limited := func(chain ...gin.HandlerFunc) []gin.HandlerFunc {
		if deps.RateLimiter == nil {
			return chain
		}
		return append([]gin.HandlerFunc{chain[0], middleware.RateLimit(deps.RateLimiter)}, chain[1:]...)
	}

	webhooks := NewDomainGroup("webhooks", "/webhooks").
		POST("/stripe", deps.Webhook.HandleStripeWebhook)

	subscription := NewDomainGroup("subscription", "/subscription").
		GET("/confirm", limited(middleware.OptionalJWT(deps.JWT), sub.Confirm)...).
		GET("/plans", sub.Plans).
		GET("/status", jwtAuth, sub.Status).
		POST("/refresh", limited(jwtAuth, sub.Refresh)...).
		POST("/checkout", limited(jwtAuth, sub.Checkout)...)

	premium := NewDomainGroup("premium", "/premium").
		Use(jwtAuth, middleware.RequireActiveSubscription(deps.Status)).
		GET("/ping", sub.Ping)

	api := NewRouter(engine, WithAPIVersion("v1")).
		Register(webhooks).
		Register(subscription).
		Register(premium)
	api.Setup()

	for _, rt := range api.Routes() {
		deps.Logger.Debug("Route registered",
			zap.String("group", rt.Group),
			zap.String("method", rt.Method),
			zap.String("path", rt.Path))
	}

	return engine
}
