package middleware

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/erp/reconciliation/internal/infrastructure/auth"
	"github.com/erp/reconciliation/internal/infrastructure/config"
	"github.com/erp/reconciliation/internal/infrastructure/logger"
	"github.com/erp/reconciliation/internal/interfaces/http/dto"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestJWTService(expiration time.Duration) *auth.JWTService {
	return auth.NewJWTService(config.JWTConfig{
		Secret:                "test-secret-key-at-least-32-chars",
		Issuer:                "reconciliation-test",
		AccessTokenExpiration: expiration,
	})
}

type identityBody struct {
	TenantID    string `json:"tenant_id"`
	UserID      string `json:"user_id"`
	CtxTenantID string `json:"ctx_tenant_id"`
}

func newAuthRouter(cfg JWTMiddlewareConfig) *gin.Engine {
	router := gin.New()
	router.Use(RequestID(), JWTAuthMiddleware(cfg))
	handler := func(c *gin.Context) {
		tenantID, _ := GetTenantID(c)
		userID, _ := GetUserID(c)
		c.JSON(http.StatusOK, identityBody{
			TenantID:    tenantID.String(),
			UserID:      userID.String(),
			CtxTenantID: logger.GetTenantID(c.Request.Context()),
		})
	}
	router.GET("/api/v1/reconciliation", handler)
	router.GET("/health", handler)
	return router
}

func decodeError(t *testing.T, w *httptest.ResponseRecorder) dto.ErrorInfo {
	t.Helper()
	var resp dto.Response
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.NotNil(t, resp.Error)
	return *resp.Error
}

func TestJWTAuthMiddleware_ValidToken(t *testing.T) {
	svc := newTestJWTService(time.Hour)
	tenantID, userID := uuid.New(), uuid.New()
	token, _, err := svc.GenerateAccessToken(tenantID, userID, "clerk")
	require.NoError(t, err)

	router := newAuthRouter(JWTMiddlewareConfig{JWTService: svc})
	req := httptest.NewRequest(http.MethodGet, "/api/v1/reconciliation", nil)
	req.Header.Set(AuthHeaderKey, BearerPrefix+token)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	var body identityBody
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, tenantID.String(), body.TenantID)
	assert.Equal(t, userID.String(), body.UserID)
	assert.Equal(t, tenantID.String(), body.CtxTenantID)
}

func TestJWTAuthMiddleware_Rejections(t *testing.T) {
	svc := newTestJWTService(time.Hour)
	expired := newTestJWTService(-time.Minute)
	expiredToken, _, err := expired.GenerateAccessToken(uuid.New(), uuid.New(), "clerk")
	require.NoError(t, err)

	tests := []struct {
		name   string
		header string
		code   string
	}{
		{"missing header", "", dto.ErrCodeUnauthorized},
		{"not a bearer token", "Basic abc", dto.ErrCodeUnauthorized},
		{"garbage token", BearerPrefix + "not-a-jwt", dto.ErrCodeUnauthorized},
		{"expired token", BearerPrefix + expiredToken, dto.ErrCodeTokenExpired},
	}

	router := newAuthRouter(JWTMiddlewareConfig{JWTService: svc})
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/api/v1/reconciliation", nil)
			if tt.header != "" {
				req.Header.Set(AuthHeaderKey, tt.header)
			}
			w := httptest.NewRecorder()
			router.ServeHTTP(w, req)

			assert.Equal(t, http.StatusUnauthorized, w.Code)
			errInfo := decodeError(t, w)
			assert.Equal(t, tt.code, errInfo.Code)
			assert.NotEmpty(t, errInfo.RequestID)
		})
	}
}

func TestJWTAuthMiddleware_SkipPaths(t *testing.T) {
	router := newAuthRouter(JWTMiddlewareConfig{
		JWTService: newTestJWTService(time.Hour),
		SkipPaths:  []string{"/health"},
	})
	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))

	assert.Equal(t, http.StatusOK, w.Code)
}

func TestJWTAuthMiddleware_DevHeaders(t *testing.T) {
	tenantID, userID := uuid.New(), uuid.New()

	t.Run("accepted in development", func(t *testing.T) {
		router := newAuthRouter(JWTMiddlewareConfig{AllowDevHeaders: true})
		req := httptest.NewRequest(http.MethodGet, "/api/v1/reconciliation", nil)
		req.Header.Set(DevTenantHeader, tenantID.String())
		req.Header.Set(DevUserHeader, userID.String())
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)

		require.Equal(t, http.StatusOK, w.Code)
		var body identityBody
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
		assert.Equal(t, tenantID.String(), body.TenantID)
		assert.Equal(t, userID.String(), body.UserID)
	})

	t.Run("invalid tenant header", func(t *testing.T) {
		router := newAuthRouter(JWTMiddlewareConfig{AllowDevHeaders: true})
		req := httptest.NewRequest(http.MethodGet, "/api/v1/reconciliation", nil)
		req.Header.Set(DevTenantHeader, "tenant-1")
		req.Header.Set(DevUserHeader, userID.String())
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)

		assert.Equal(t, http.StatusUnauthorized, w.Code)
	})

	t.Run("ignored outside development", func(t *testing.T) {
		router := newAuthRouter(JWTMiddlewareConfig{JWTService: newTestJWTService(time.Hour)})
		req := httptest.NewRequest(http.MethodGet, "/api/v1/reconciliation", nil)
		req.Header.Set(DevTenantHeader, tenantID.String())
		req.Header.Set(DevUserHeader, userID.String())
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)

		assert.Equal(t, http.StatusUnauthorized, w.Code)
	})
}
