package main

import (
	"context"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/fitpulse/backend/internal/application/billing"
	"github.com/fitpulse/backend/internal/domain/subscription"
	"github.com/fitpulse/backend/internal/infrastructure/auth"
	infrabilling "github.com/fitpulse/backend/internal/infrastructure/billing"
	"github.com/fitpulse/backend/internal/infrastructure/cache"
	"github.com/fitpulse/backend/internal/infrastructure/config"
	"github.com/fitpulse/backend/internal/infrastructure/logger"
	"github.com/fitpulse/backend/internal/infrastructure/persistence"
	"github.com/fitpulse/backend/internal/infrastructure/telemetry"
	"github.com/fitpulse/backend/internal/interfaces/http/handler"
	"github.com/fitpulse/backend/internal/interfaces/http/middleware"
	"github.com/fitpulse/backend/internal/interfaces/http/router"
	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		panic("Failed to load configuration: " + err.Error())
	}

	log, err := logger.New(cfg.Log, cfg.App.Env)
	if err != nil {
		panic("Failed to initialize logger: " + err.Error())
	}
	defer func() { _ = log.Sync() }()

	// Telemetry first so the bridged logger and DB tracing see the providers
	providers, err := telemetry.Setup(context.Background(), telemetry.FromConfig(cfg.Telemetry), log)
	if err != nil {
		log.Fatal("Failed to initialize telemetry", zap.Error(err))
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := providers.Shutdown(ctx); err != nil {
			log.Error("Error shutting down telemetry", zap.Error(err))
		}
	}()
	log = providers.Logs.Bridge(log, logger.ParseLevel(cfg.Log.Level))

	log.Info("Starting FitPulse Backend",
		zap.String("app", cfg.App.Name),
		zap.String("env", cfg.App.Env),
		zap.String("port", cfg.App.Port),
	)

	checks := map[string]handler.HealthCheck{}

	// Subscription store
	repo, db := openRepository(cfg, log)
	if db != nil {
		defer func() {
			if err := db.Close(); err != nil {
				log.Error("Error closing database", zap.Error(err))
			}
		}()
		checks["database"] = func(context.Context) error { return db.Ping() }
	}

	// Redis backs idempotency and, when selected, the status cache
	var redisClient *redis.Client
	if cfg.Redis.Enabled {
		redisClient, err = cache.NewRedisClient(context.Background(), cfg.Redis)
		if err != nil {
			log.Fatal("Failed to connect to Redis", zap.Error(err))
		}
		defer func() { _ = redisClient.Close() }()
		checks["redis"] = func(ctx context.Context) error { return redisClient.Ping(ctx).Err() }
		log.Info("Redis connected", zap.String("addr", cfg.Redis.Addr()))
	}

	var factory *cache.Factory
	if redisClient != nil {
		factory = cache.NewFactory(redisClient, log)
	} else {
		factory = cache.NewFactory(nil, log)
	}
	stores, err := factory.Build(cfg.Subscription)
	if err != nil {
		log.Fatal("Failed to build subscription caches", zap.Error(err))
	}
	if closer, ok := stores.Idempotency.(io.Closer); ok {
		defer func() { _ = closer.Close() }()
	}

	// Payment provider
	var (
		gateway  billing.CheckoutGateway
		resolver billing.PeriodResolver
	)
	if cfg.Stripe.SecretKey != "" {
		stripeGateway, err := infrabilling.NewStripeGateway(&infrabilling.StripeConfig{
			SecretKey:  cfg.Stripe.SecretKey,
			SuccessURL: cfg.Stripe.SuccessURL,
			CancelURL:  cfg.Stripe.CancelURL,
		}, log.Named("stripe"))
		if err != nil {
			log.Fatal("Invalid Stripe configuration", zap.Error(err))
		}
		gateway = stripeGateway
		if cfg.Stripe.ResolvePeriodEnd {
			resolver = stripeGateway
		}
	} else {
		log.Warn("Stripe secret key not set, checkout is disabled")
	}
	if cfg.Stripe.WebhookSecret == "" {
		log.Warn("Stripe webhook secret not set, every webhook will be rejected")
	}

	catalog, err := buildCatalog(cfg.Subscription.Plans)
	if err != nil {
		log.Fatal("Invalid plan configuration", zap.Error(err))
	}

	var meter metric.Meter
	if providers.Meter.IsEnabled() {
		meter = providers.Meter.Meter("fitpulse.http")
	}
	metrics, err := telemetry.NewBillingMetrics(providers.Meter.Meter("fitpulse.billing"))
	if err != nil {
		log.Fatal("Failed to create billing metrics", zap.Error(err))
	}

	// Application services
	status := billing.NewStatusContext(repo, stores.Status, log.Named("status"))
	webhookService := billing.NewSubscriptionWebhookService(billing.SubscriptionWebhookServiceConfig{
		WebhookSecret:  cfg.Stripe.WebhookSecret,
		Repo:           repo,
		Status:         status,
		Idempotency:    stores.Idempotency,
		IdempotencyTTL: cfg.Subscription.IdempotencyTTL,
		PeriodResolver: resolver,
		Metrics:        metrics,
		Logger:         log.Named("webhook"),
	})
	confirmationService := billing.NewConfirmationService(billing.ConfirmationServiceConfig{
		Repo:          repo,
		Status:        status,
		SuccessPath:   cfg.Subscription.SuccessPath,
		SelectionPath: cfg.Subscription.SelectionPath,
		RedirectDelay: cfg.Subscription.RedirectDelay,
		Metrics:       metrics,
		Logger:        log.Named("confirmation"),
	})
	checkoutService := billing.NewCheckoutService(catalog, gateway, log.Named("checkout"))

	jwtService := auth.NewJWTService(cfg.JWT)

	if cfg.App.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	var limiter *middleware.RateLimiter
	if cfg.HTTP.RateLimitEnabled {
		limiter = middleware.NewRateLimiter(cfg.HTTP.RateLimitRequests, cfg.HTTP.RateLimitWindow)
		defer limiter.Close()
		log.Info("Rate limiting enabled",
			zap.Int("requests", cfg.HTTP.RateLimitRequests),
			zap.Duration("window", cfg.HTTP.RateLimitWindow))
	}

	engine := router.NewEngine(router.Dependencies{
		Logger:       log,
		Webhook:      handler.NewStripeWebhookHandler(webhookService),
		Subscription: handler.NewSubscriptionHandler(confirmationService, status, checkoutService),
		Health:       handler.NewHealthHandler(checks),
		Status:       status,
		JWT: middleware.JWTMiddlewareConfig{
			JWTService: jwtService,
			Logger:     log,
		},
		CORS: corsConfig(cfg.HTTP),
		Tracing: middleware.TracingConfig{
			ServiceName: cfg.Telemetry.ServiceName,
			Enabled:     providers.Tracer.IsEnabled(),
		},
		Meter:       meter,
		MaxBodySize: cfg.HTTP.MaxBodySize,
		RateLimiter: limiter,
	})

	// Create HTTP server with config
	srv := &http.Server{
		Addr:           ":" + cfg.App.Port,
		Handler:        engine,
		ReadTimeout:    cfg.HTTP.ReadTimeout,
		WriteTimeout:   cfg.HTTP.WriteTimeout,
		IdleTimeout:    cfg.HTTP.IdleTimeout,
		MaxHeaderBytes: cfg.HTTP.MaxHeaderBytes,
	}

	go func() {
		log.Info("Server starting", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal("Failed to start server", zap.Error(err))
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Error("Server forced to shutdown", zap.Error(err))
		return
	}

	log.Info("Server exited gracefully")
}

// openRepository returns the subscription store for the configured driver.
// The database is nil for the in-memory driver.
func openRepository(cfg *config.Config, log *zap.Logger) (subscription.Repository, *persistence.Database) {
	if cfg.Database.Driver == config.DriverMemory {
		log.Warn("Using in-memory subscription store, data is lost on restart")
		return persistence.NewInMemorySubscriptionRepository(), nil
	}

	gormLog := logger.NewGormLogger(log, logger.MapGormLogLevel(cfg.Log.Level), 0)
	db, err := persistence.NewDatabase(&cfg.Database, gormLog)
	if err != nil {
		log.Fatal("Failed to connect to database", zap.Error(err))
	}
	log.Info("Database connected successfully", zap.String("driver", db.Driver))

	if cfg.Telemetry.DBTraceEnabled {
		tracing := telemetry.DefaultDBTracingConfig()
		tracing.Enabled = true
		tracing.LogFullSQL = cfg.Telemetry.DBLogFullSQL
		if cfg.Database.DBName != "" {
			tracing.DBName = cfg.Database.DBName
		}
		if err := telemetry.RegisterDBTracing(db.DB, tracing, log); err != nil {
			log.Fatal("Failed to register database tracing", zap.Error(err))
		}
	}

	if cfg.Database.AutoMigrate {
		if err := db.AutoMigrate(); err != nil {
			log.Fatal("Failed to migrate database", zap.Error(err))
		}
	}
	return persistence.NewGormSubscriptionRepository(db.DB), db
}

func buildCatalog(plans []config.PlanConfig) (*subscription.PlanCatalog, error) {
	parsed := make([]subscription.Plan, 0, len(plans))
	for _, p := range plans {
		plan, err := subscription.ParsePlan(p.Name, p.PriceID, p.Amount, p.Currency, p.Interval)
		if err != nil {
			return nil, err
		}
		parsed = append(parsed, plan)
	}
	return subscription.NewPlanCatalog(parsed)
}

func corsConfig(cfg config.HTTPConfig) middleware.CORSConfig {
	cors := middleware.DefaultCORSConfig()
	cors.AllowOrigins = cfg.CORSAllowOrigins
	if len(cfg.CORSAllowMethods) > 0 {
		cors.AllowMethods = cfg.CORSAllowMethods
	}
	if len(cfg.CORSAllowHeaders) > 0 {
		cors.AllowHeaders = cfg.CORSAllowHeaders
	}
	return cors
}
