package billing

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/fitpulse/backend/internal/domain/subscription"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newConfirmationService(f *webhookFixture) *ConfirmationService {
	return NewConfirmationService(ConfirmationServiceConfig{
		Repo:          f.repo,
		Status:        f.status,
		SuccessPath:   "/dashboard",
		SelectionPath: "/subscription",
		RedirectDelay: 3 * time.Second,
		Metrics:       f.metrics,
		Logger:        zap.NewNop(),
	})
}

func TestConfirm_ActivatesAndRefreshes(t *testing.T) {
	f := newWebhookFixture(t)
	svc := newConfirmationService(f)
	ctx := context.Background()

	result, err := svc.Confirm(ctx, ConfirmInput{UserID: "u1", SessionID: "sess_123"})
	require.NoError(t, err)

	assert.True(t, result.Active)
	assert.True(t, result.Applied)
	assert.Equal(t, "/dashboard", result.RedirectTo)
	assert.Equal(t, 3*time.Second, result.RedirectAfter)

	row, err := f.repo.FindByUserID(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, subscription.StatusActive, row.Status)
	assert.Equal(t, "sess_123", row.ProviderSessionID)
	assert.Equal(t, subscription.SourceClient, row.Source)
	require.NotNil(t, row.CurrentPeriodEnd)
	assert.WithinDuration(t, time.Now().AddDate(0, 1, 0), *row.CurrentPeriodEnd, time.Minute)

	snap, err := f.status.Status(ctx, "u1")
	require.NoError(t, err)
	assert.True(t, snap.Active)
	assert.Equal(t, []string{OutcomeApplied}, f.metrics.confirmations)
}

func TestConfirm_KeepsSuppliedPlan(t *testing.T) {
	f := newWebhookFixture(t)
	svc := newConfirmationService(f)

	_, err := svc.Confirm(context.Background(), ConfirmInput{UserID: "u1", SessionID: "sess_1", Plan: "yearly"})
	require.NoError(t, err)

	row, err := f.repo.FindByUserID(context.Background(), "u1")
	require.NoError(t, err)
	assert.Equal(t, "yearly", row.Plan)
}

func TestConfirm_MissingInput(t *testing.T) {
	tests := []struct {
		name    string
		input   ConfirmInput
		wantErr error
	}{
		{name: "no session", input: ConfirmInput{UserID: "u1"}, wantErr: subscription.ErrSessionMissing},
		{name: "no user", input: ConfirmInput{SessionID: "sess_1"}, wantErr: subscription.ErrUserMissing},
		{name: "nothing", input: ConfirmInput{}, wantErr: subscription.ErrSessionMissing},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newWebhookFixture(t)
			svc := newConfirmationService(f)

			result, err := svc.Confirm(context.Background(), tt.input)

			assert.ErrorIs(t, err, tt.wantErr)
			require.NotNil(t, result)
			assert.False(t, result.Active)
			assert.Equal(t, "/subscription", result.RedirectTo)
			assert.NotEmpty(t, result.Message)
			assert.Equal(t, 0, f.repo.Writes())
		})
	}
}

func TestConfirm_StoreFailure(t *testing.T) {
	f := newWebhookFixture(t)
	svc := newConfirmationService(f)
	f.repo.FailWritesWith(errors.New("connection refused"))

	result, err := svc.Confirm(context.Background(), ConfirmInput{UserID: "u1", SessionID: "sess_1"})

	assert.ErrorIs(t, err, subscription.ErrStoreWrite)
	require.NotNil(t, result)
	assert.False(t, result.Active)
	assert.Equal(t, "/subscription", result.RedirectTo)
	assert.Equal(t, msgStoreFailure, result.Message)
	assert.Equal(t, []string{OutcomeFailed}, f.metrics.confirmations)
}

func TestConfirm_ThenWebhook_EndToEnd(t *testing.T) {
	f := newWebhookFixture(t)
	svc := newConfirmationService(f)
	ctx := context.Background()

	_, err := svc.Confirm(ctx, ConfirmInput{UserID: "u1", SessionID: "sess_123"})
	require.NoError(t, err)

	snap, err := f.status.Refresh(ctx, "u1")
	require.NoError(t, err)
	assert.True(t, snap.Active)

	_, err = f.deliver(t, checkoutCompleted(t, "evt_1", "sess_123", "u1", map[string]any{
		"id": "sub_456", "object": "subscription", "current_period_end": time.Now().Add(30 * 24 * time.Hour).Unix(),
	}))
	require.NoError(t, err)

	row, err := f.repo.FindByUserID(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, "sub_456", row.ProviderSubscriptionID)
	assert.Equal(t, subscription.SourceProvider, row.Source)
	assert.Equal(t, 1, f.repo.Len())

	snap, err = f.status.Status(ctx, "u1")
	require.NoError(t, err)
	assert.True(t, snap.Active)
	assert.Equal(t, "monthly", snap.Plan)
}

// Provider deletion wins over client confirmations for the same session,
// in any arrival order.
func TestDeletionConvergesRegardlessOfClientWrites(t *testing.T) {
	completed := func(t *testing.T) []byte { return checkoutCompleted(t, "evt_1", "cs_1", "u1", "sub_1") }
	deleted := func(t *testing.T) []byte {
		return subscriptionEvent(t, "evt_2", "customer.subscription.deleted", "sub_1", "u1", "canceled", 0)
	}

	orders := []struct {
		name  string
		steps []string
	}{
		{name: "client first", steps: []string{"client", "completed", "deleted"}},
		{name: "client between", steps: []string{"completed", "client", "deleted"}},
		{name: "client last", steps: []string{"completed", "deleted", "client"}},
		{name: "client before and after", steps: []string{"client", "completed", "deleted", "client"}},
		{name: "deleted before completed", steps: []string{"deleted", "completed", "client", "deleted"}},
	}

	for _, tt := range orders {
		t.Run(tt.name, func(t *testing.T) {
			f := newWebhookFixture(t, func(cfg *SubscriptionWebhookServiceConfig) {
				// replays of the same delete must reach the store
				cfg.Idempotency = nil
			})
			svc := newConfirmationService(f)
			ctx := context.Background()

			for _, step := range tt.steps {
				var err error
				switch step {
				case "client":
					_, err = svc.Confirm(ctx, ConfirmInput{UserID: "u1", SessionID: "cs_1"})
				case "completed":
					_, err = f.deliver(t, completed(t))
				case "deleted":
					_, err = f.deliver(t, deleted(t))
				}
				require.NoError(t, err, step)
			}

			row, err := f.repo.FindByUserID(ctx, "u1")
			require.NoError(t, err)
			assert.Equal(t, subscription.StatusInactive, row.Status)

			snap, err := f.status.Refresh(ctx, "u1")
			require.NoError(t, err)
			assert.False(t, snap.Active)
		})
	}
}

func TestConfirm_AfterProviderDeletionRedirectsToSelection(t *testing.T) {
	f := newWebhookFixture(t)
	svc := newConfirmationService(f)
	ctx := context.Background()

	_, err := f.deliver(t, checkoutCompleted(t, "evt_1", "cs_1", "u1", "sub_1"))
	require.NoError(t, err)
	_, err = f.deliver(t, subscriptionEvent(t, "evt_2", "customer.subscription.deleted", "sub_1", "u1", "canceled", 0))
	require.NoError(t, err)

	result, err := svc.Confirm(ctx, ConfirmInput{UserID: "u1", SessionID: "cs_1"})

	require.NoError(t, err)
	assert.False(t, result.Applied)
	assert.False(t, result.Active)
	assert.Equal(t, "/subscription", result.RedirectTo)
	assert.Equal(t, []string{OutcomeSkipped}, f.metrics.confirmations)
}

func TestNewConfirmationService_DefaultRedirectDelay(t *testing.T) {
	tests := []struct {
		name  string
		delay time.Duration
		want  time.Duration
	}{
		{name: "unset", delay: 0, want: DefaultRedirectDelay},
		{name: "negative", delay: -time.Second, want: DefaultRedirectDelay},
		{name: "configured", delay: 5 * time.Second, want: 5 * time.Second},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newWebhookFixture(t)
			svc := NewConfirmationService(ConfirmationServiceConfig{
				Repo:          f.repo,
				Status:        f.status,
				RedirectDelay: tt.delay,
			})

			result, err := svc.Confirm(context.Background(), ConfirmInput{UserID: "u1", SessionID: "sess_1"})

			require.NoError(t, err)
			assert.Equal(t, tt.want, result.RedirectAfter)
		})
	}
}

func TestConfirm_SkippedWriteWithRefreshFailure(t *testing.T) {
	tests := []struct {
		name       string
		events     func(t *testing.T) [][]byte
		wantActive bool
		wantPath   string
		wantMsg    string
	}{
		{
			name: "provider-active row still redirects to success",
			events: func(t *testing.T) [][]byte {
				return [][]byte{checkoutCompleted(t, "evt_1", "cs_1", "u1", "sub_1")}
			},
			wantActive: true,
			wantPath:   "/dashboard",
			wantMsg:    msgConfirmed,
		},
		{
			name: "provider-deleted row redirects to selection",
			events: func(t *testing.T) [][]byte {
				return [][]byte{
					checkoutCompleted(t, "evt_1", "cs_1", "u1", "sub_1"),
					subscriptionEvent(t, "evt_2", "customer.subscription.deleted", "sub_1", "u1", "canceled", 0),
				}
			},
			wantActive: false,
			wantPath:   "/subscription",
			wantMsg:    msgNotActive,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newWebhookFixture(t)
			for _, payload := range tt.events(t) {
				_, err := f.deliver(t, payload)
				require.NoError(t, err)
			}

			brokenCache := &mockStatusCache{}
			brokenCache.On("Generation", mock.Anything, "u1").Return(uint64(0), errors.New("redis down"))
			svc := NewConfirmationService(ConfirmationServiceConfig{
				Repo:          f.repo,
				Status:        NewStatusContext(f.repo, brokenCache, zap.NewNop()),
				SuccessPath:   "/dashboard",
				SelectionPath: "/subscription",
				Metrics:       f.metrics,
			})

			result, err := svc.Confirm(context.Background(), ConfirmInput{UserID: "u1", SessionID: "cs_1"})

			require.NoError(t, err)
			assert.False(t, result.Applied)
			assert.Equal(t, tt.wantActive, result.Active)
			assert.Equal(t, tt.wantPath, result.RedirectTo)
			assert.Equal(t, tt.wantMsg, result.Message)
		})
	}
}
