package telemetry

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/metric"
)

const billingMeterName = "fitpulse-backend/billing"

// BillingMetrics counts webhook and confirmation outcomes. It satisfies the
// billing service Metrics interface.
type BillingMetrics struct {
	webhooks      *Counter
	confirmations *Counter
	duration      *Histogram
}

// NewBillingMetrics registers the billing instruments on meter
func NewBillingMetrics(meter metric.Meter) (*BillingMetrics, error) {
	webhooks, err := NewCounter(meter,
		"billing.webhooks.total",
		"Subscription webhooks processed, by event type and outcome",
		"{event}",
	)
	if err != nil {
		return nil, err
	}
	confirmations, err := NewCounter(meter,
		"billing.confirmations.total",
		"Client checkout confirmations, by outcome",
		"{confirmation}",
	)
	if err != nil {
		return nil, err
	}
	duration, err := NewHistogram(meter,
		"billing.webhook.duration",
		"Time spent handling a verified webhook",
		"s",
		HandlerDurationBuckets...,
	)
	if err != nil {
		return nil, err
	}
	return &BillingMetrics{webhooks: webhooks, confirmations: confirmations, duration: duration}, nil
}

// RecordWebhook counts one processed webhook
func (m *BillingMetrics) RecordWebhook(ctx context.Context, eventType, outcome string) {
	m.webhooks.Inc(ctx, AttrEventType.String(eventType), AttrOutcome.String(outcome))
}

// RecordConfirmation counts one client confirmation
func (m *BillingMetrics) RecordConfirmation(ctx context.Context, outcome string) {
	m.confirmations.Inc(ctx, AttrOutcome.String(outcome))
}

// ObserveWebhookDuration records how long a webhook took to handle
func (m *BillingMetrics) ObserveWebhookDuration(ctx context.Context, eventType string, d time.Duration) {
	m.duration.RecordDuration(ctx, d, AttrEventType.String(eventType))
}
