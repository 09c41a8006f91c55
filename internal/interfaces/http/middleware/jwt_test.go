package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/fitpulse/backend/internal/infrastructure/auth"
	"github.com/fitpulse/backend/internal/infrastructure/config"
	"github.com/fitpulse/backend/internal/infrastructure/logger"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func newTestJWTService() *auth.JWTService {
	return auth.NewJWTService(config.JWTConfig{
		Secret: "test-secret-key-at-least-32-chars",
		Issuer: "test-issuer",
	})
}

func issueToken(t *testing.T, svc *auth.JWTService, userID string, ttl time.Duration) string {
	t.Helper()
	token, err := svc.IssueAccessToken(userID, userID+"@example.com", ttl)
	require.NoError(t, err)
	return token
}

func TestJWTAuth(t *testing.T) {
	svc := newTestJWTService()

	tests := []struct {
		name       string
		header     string
		wantStatus int
		wantCode   string
	}{
		{name: "valid token", header: BearerPrefix + issueToken(t, svc, "u1", time.Minute), wantStatus: http.StatusOK},
		{name: "missing header", header: "", wantStatus: http.StatusUnauthorized, wantCode: "INVALID_TOKEN"},
		{name: "wrong scheme", header: "Basic abc", wantStatus: http.StatusUnauthorized, wantCode: "INVALID_TOKEN"},
		{name: "garbage token", header: BearerPrefix + "not-a-jwt", wantStatus: http.StatusUnauthorized, wantCode: "INVALID_TOKEN"},
		{name: "expired token", header: BearerPrefix + issueToken(t, svc, "u1", -time.Minute), wantStatus: http.StatusUnauthorized, wantCode: "TOKEN_EXPIRED"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			router := gin.New()
			router.Use(JWTAuth(JWTMiddlewareConfig{JWTService: svc}))
			router.GET("/me", func(c *gin.Context) {
				c.JSON(http.StatusOK, gin.H{
					"user_id":     GetJWTUserID(c),
					"email":       GetJWTEmail(c),
					"ctx_user_id": logger.UserID(c.Request.Context()),
				})
			})

			req := httptest.NewRequest(http.MethodGet, "/me", nil)
			if tt.header != "" {
				req.Header.Set(AuthHeaderKey, tt.header)
			}
			w := httptest.NewRecorder()
			router.ServeHTTP(w, req)

			assert.Equal(t, tt.wantStatus, w.Code)
			if tt.wantCode != "" {
				assert.Contains(t, w.Body.String(), tt.wantCode)
				return
			}
			assert.JSONEq(t, `{"user_id":"u1","email":"u1@example.com","ctx_user_id":"u1"}`, w.Body.String())
		})
	}
}

func TestJWTAuth_OnError(t *testing.T) {
	router := gin.New()
	router.Use(JWTAuth(JWTMiddlewareConfig{
		JWTService: newTestJWTService(),
		OnError: func(c *gin.Context, err error) {
			c.AbortWithStatus(http.StatusTeapot)
		},
	}))
	router.GET("/me", func(c *gin.Context) { c.Status(http.StatusOK) })

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/me", nil))

	assert.Equal(t, http.StatusTeapot, w.Code)
}

func TestOptionalJWT(t *testing.T) {
	svc := newTestJWTService()

	tests := []struct {
		name     string
		header   string
		wantUser string
	}{
		{name: "valid token sets user", header: BearerPrefix + issueToken(t, svc, "u1", time.Minute), wantUser: "u1"},
		{name: "no token passes through", header: ""},
		{name: "invalid token passes through", header: BearerPrefix + "bogus"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			router := gin.New()
			router.Use(OptionalJWT(JWTMiddlewareConfig{JWTService: svc}))
			router.GET("/confirm", func(c *gin.Context) {
				c.String(http.StatusOK, GetJWTUserID(c))
			})

			req := httptest.NewRequest(http.MethodGet, "/confirm", nil)
			if tt.header != "" {
				req.Header.Set(AuthHeaderKey, tt.header)
			}
			w := httptest.NewRecorder()
			router.ServeHTTP(w, req)

			assert.Equal(t, http.StatusOK, w.Code)
			assert.Equal(t, tt.wantUser, w.Body.String())
		})
	}
}

func TestGetJWTClaims(t *testing.T) {
	c, _ := gin.CreateTestContext(httptest.NewRecorder())
	assert.Nil(t, GetJWTClaims(c))

	c.Set(JWTClaimsKey, &auth.Claims{UserID: "u1"})
	require.NotNil(t, GetJWTClaims(c))
	assert.Equal(t, "u1", GetJWTClaims(c).UserID)
}
