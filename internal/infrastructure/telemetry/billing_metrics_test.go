package telemetry_test

import (
	"context"
	"testing"
	"time"

	"github.com/fitpulse/backend/internal/infrastructure/telemetry"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
)

func collect(t *testing.T, reader *sdkmetric.ManualReader) map[string]metricdata.Metrics {
	t.Helper()
	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(context.Background(), &rm))

	out := map[string]metricdata.Metrics{}
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			out[m.Name] = m
		}
	}
	return out
}

func TestBillingMetrics(t *testing.T) {
	reader := sdkmetric.NewManualReader()
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	t.Cleanup(func() { _ = provider.Shutdown(context.Background()) })

	m, err := telemetry.NewBillingMetrics(provider.Meter("test"))
	require.NoError(t, err)

	ctx := context.Background()
	m.RecordWebhook(ctx, "checkout.session.completed", "applied")
	m.RecordWebhook(ctx, "checkout.session.completed", "applied")
	m.RecordWebhook(ctx, "customer.subscription.deleted", "unmatched")
	m.RecordConfirmation(ctx, "skipped")
	m.ObserveWebhookDuration(ctx, "checkout.session.completed", 20*time.Millisecond)

	got := collect(t, reader)

	webhooks, ok := got["billing.webhooks.total"].Data.(metricdata.Sum[int64])
	require.True(t, ok)
	require.Len(t, webhooks.DataPoints, 2)
	var total int64
	for _, dp := range webhooks.DataPoints {
		total += dp.Value
		eventType, _ := dp.Attributes.Value(telemetry.AttrEventType)
		outcome, _ := dp.Attributes.Value(telemetry.AttrOutcome)
		if eventType.AsString() == "checkout.session.completed" {
			assert.Equal(t, "applied", outcome.AsString())
			assert.Equal(t, int64(2), dp.Value)
		}
	}
	assert.Equal(t, int64(3), total)

	confirmations, ok := got["billing.confirmations.total"].Data.(metricdata.Sum[int64])
	require.True(t, ok)
	require.Len(t, confirmations.DataPoints, 1)
	assert.Equal(t, int64(1), confirmations.DataPoints[0].Value)

	duration, ok := got["billing.webhook.duration"].Data.(metricdata.Histogram[float64])
	require.True(t, ok)
	require.Len(t, duration.DataPoints, 1)
	assert.Equal(t, uint64(1), duration.DataPoints[0].Count)
}
