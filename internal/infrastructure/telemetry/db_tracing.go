package telemetry

import (
	"context"
	"errors"
	"time"

	"github.com/uptrace/opentelemetry-go-extra/otelgorm"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// DBTracingConfig configures GORM span instrumentation
type DBTracingConfig struct {
	Enabled         bool
	LogFullSQL      bool // include bind variables, development only
	SlowQueryThresh time.Duration
	DBName          string
}

// DefaultDBTracingConfig returns tracing disabled with a 200ms slow threshold
func DefaultDBTracingConfig() DBTracingConfig {
	return DBTracingConfig{
		SlowQueryThresh: 200 * time.Millisecond,
		DBName:          "fitpulse",
	}
}

type queryStartKey struct{}

// RegisterDBTracing installs the otelgorm plugin plus a callback pair that
// flags slow statements on the active span.
func RegisterDBTracing(db *gorm.DB, cfg DBTracingConfig, logger *zap.Logger) error {
	if !cfg.Enabled {
		logger.Debug("Database tracing disabled")
		return nil
	}

	opts := []otelgorm.Option{otelgorm.WithDBName(cfg.DBName)}
	if !cfg.LogFullSQL {
		opts = append(opts, otelgorm.WithoutQueryVariables())
	}
	if err := db.Use(otelgorm.NewPlugin(opts...)); err != nil {
		return err
	}

	threshold := cfg.SlowQueryThresh
	if threshold <= 0 {
		threshold = DefaultDBTracingConfig().SlowQueryThresh
	}
	if err := registerTimingCallbacks(db, threshold); err != nil {
		return err
	}

	logger.Info("Database tracing enabled",
		zap.Bool("log_full_sql", cfg.LogFullSQL),
		zap.Duration("slow_query_threshold", threshold))
	return nil
}

func registerTimingCallbacks(db *gorm.DB, threshold time.Duration) error {
	before := func(tx *gorm.DB) {
		if tx.Statement.Context != nil {
			tx.Statement.Context = context.WithValue(tx.Statement.Context, queryStartKey{}, time.Now())
		}
	}
	after := func(tx *gorm.DB) { markSlowQuery(tx, threshold) }

	cb := db.Callback()
	// subscriptions only issue create, query, update and raw statements
	regs := []error{
		cb.Create().Before("gorm:create").Register("fitpulse_timing:before_create", before),
		cb.Create().After("gorm:create").Register("fitpulse_timing:after_create", after),
		cb.Query().Before("gorm:query").Register("fitpulse_timing:before_query", before),
		cb.Query().After("gorm:query").Register("fitpulse_timing:after_query", after),
		cb.Update().Before("gorm:update").Register("fitpulse_timing:before_update", before),
		cb.Update().After("gorm:update").Register("fitpulse_timing:after_update", after),
		cb.Raw().Before("gorm:raw").Register("fitpulse_timing:before_raw", before),
		cb.Raw().After("gorm:raw").Register("fitpulse_timing:after_raw", after),
	}
	return errors.Join(regs...)
}

func markSlowQuery(tx *gorm.DB, threshold time.Duration) {
	ctx := tx.Statement.Context
	if ctx == nil {
		return
	}
	span := trace.SpanFromContext(ctx)
	if !span.IsRecording() {
		return
	}

	if tx.Statement.Table != "" {
		span.SetAttributes(attribute.String("db.sql.table", tx.Statement.Table))
	}
	if tx.Error != nil && !errors.Is(tx.Error, gorm.ErrRecordNotFound) {
		RecordError(span, tx.Error)
	}

	start, ok := ctx.Value(queryStartKey{}).(time.Time)
	if !ok {
		return
	}
	if elapsed := time.Since(start); elapsed > threshold {
		span.SetAttributes(
			attribute.Bool("db.slow_query", true),
			attribute.Int64("db.query_duration_ms", elapsed.Milliseconds()),
		)
	}
}
