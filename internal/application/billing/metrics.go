package billing

import (
	"context"
	"time"
)

// Outcomes reported to Metrics
const (
	OutcomeApplied   = "applied"
	OutcomeIgnored   = "ignored"
	OutcomeDuplicate = "duplicate"
	OutcomeUnmatched = "unmatched"
	OutcomeRejected  = "rejected"
	OutcomeFailed    = "failed"
	OutcomeSkipped   = "skipped"
)

// Metrics records reconciliation outcomes
type Metrics interface {
	RecordWebhook(ctx context.Context, eventType, outcome string)
	ObserveWebhookDuration(ctx context.Context, eventType string, d time.Duration)
	RecordConfirmation(ctx context.Context, outcome string)
}

type noopMetrics struct{}

func (noopMetrics) RecordWebhook(context.Context, string, string) {}
func (noopMetrics) RecordConfirmation(context.Context, string)    {}

func (noopMetrics) ObserveWebhookDuration(context.Context, string, time.Duration) {}
