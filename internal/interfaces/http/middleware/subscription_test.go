package middleware

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/fitpulse/backend/internal/domain/subscription"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
)

type fakeStatusReader struct {
	snap *subscription.StatusSnapshot
	err  error
}

func (f fakeStatusReader) Status(_ context.Context, userID string) (*subscription.StatusSnapshot, error) {
	if f.err != nil {
		return nil, f.err
	}
	snap := *f.snap
	snap.UserID = userID
	return &snap, nil
}

func TestRequireActiveSubscription(t *testing.T) {
	tests := []struct {
		name       string
		userID     string
		reader     fakeStatusReader
		wantStatus int
		wantCode   string
	}{
		{
			name:       "active user passes",
			userID:     "u1",
			reader:     fakeStatusReader{snap: &subscription.StatusSnapshot{Status: subscription.StatusActive, Active: true, Plan: "monthly"}},
			wantStatus: http.StatusOK,
		},
		{
			name:       "inactive user is refused",
			userID:     "u1",
			reader:     fakeStatusReader{snap: &subscription.StatusSnapshot{Status: subscription.StatusInactive}},
			wantStatus: http.StatusPaymentRequired,
			wantCode:   "SUBSCRIPTION_REQUIRED",
		},
		{
			name:       "lookup failure",
			userID:     "u1",
			reader:     fakeStatusReader{err: errors.New("redis down")},
			wantStatus: http.StatusInternalServerError,
			wantCode:   "INTERNAL_ERROR",
		},
		{
			name:       "no user",
			reader:     fakeStatusReader{snap: &subscription.StatusSnapshot{Active: true}},
			wantStatus: http.StatusUnauthorized,
			wantCode:   "UNAUTHORIZED",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			router := gin.New()
			router.Use(func(c *gin.Context) {
				if tt.userID != "" {
					c.Set(JWTUserIDKey, tt.userID)
				}
			})
			router.Use(RequireActiveSubscription(tt.reader))
			router.GET("/premium", func(c *gin.Context) {
				c.String(http.StatusOK, GetSubscriptionStatus(c).Plan)
			})

			w := httptest.NewRecorder()
			router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/premium", nil))

			assert.Equal(t, tt.wantStatus, w.Code)
			if tt.wantCode != "" {
				assert.Contains(t, w.Body.String(), `"code":"`+tt.wantCode+`"`)
				assert.Contains(t, w.Body.String(), `"success":false`)
				return
			}
			assert.Equal(t, "monthly", w.Body.String())
		})
	}
}
