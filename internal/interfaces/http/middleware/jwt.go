package middleware

import (
	"errors"
	"net/http"
	"strings"

	"github.com/erp/reconciliation/internal/infrastructure/auth"
	"github.com/erp/reconciliation/internal/infrastructure/logger"
	"github.com/erp/reconciliation/internal/interfaces/http/dto"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Identity context keys and headers
const (
	JWTClaimsKey    = "jwt_claims"
	TenantIDKey     = "tenant_id"
	UserIDKey       = "user_id"
	AuthHeaderKey   = "Authorization"
	BearerPrefix    = "Bearer "
	DevTenantHeader = "X-Tenant-ID"
	DevUserHeader   = "X-User-ID"
)

// JWTMiddlewareConfig holds configuration for JWT middleware
type JWTMiddlewareConfig struct {
	// JWTService validates bearer tokens. Required unless AllowDevHeaders is set.
	JWTService *auth.JWTService
	// SkipPaths are paths that don't require authentication
	SkipPaths []string
	// AllowDevHeaders accepts X-Tenant-ID / X-User-ID when no bearer token is sent.
	// Only enabled in development.
	AllowDevHeaders bool
	Logger          *zap.Logger
}

// JWTAuthMiddleware authenticates the request and stores the tenant and user
// IDs in the gin context and the request context logger fields.
func JWTAuthMiddleware(cfg JWTMiddlewareConfig) gin.HandlerFunc {
	log := cfg.Logger
	if log == nil {
		log = zap.NewNop()
	}

	return func(c *gin.Context) {
		path := c.Request.URL.Path
		for _, skipPath := range cfg.SkipPaths {
			if path == skipPath {
				c.Next()
				return
			}
		}

		authHeader := c.GetHeader(AuthHeaderKey)
		if authHeader == "" && cfg.AllowDevHeaders {
			tenantID, userID, err := devIdentity(c)
			if err != nil {
				abortUnauthorized(c, log, err)
				return
			}
			setIdentity(c, tenantID, userID)
			c.Next()
			return
		}

		if authHeader == "" {
			abortUnauthorized(c, log, errMissingAuthorization)
			return
		}
		if !strings.HasPrefix(authHeader, BearerPrefix) || cfg.JWTService == nil {
			abortUnauthorized(c, log, auth.ErrInvalidToken)
			return
		}

		claims, err := cfg.JWTService.ValidateAccessToken(strings.TrimPrefix(authHeader, BearerPrefix))
		if err != nil {
			abortUnauthorized(c, log, err)
			return
		}
		tenantID, err := claims.TenantUUID()
		if err != nil {
			abortUnauthorized(c, log, err)
			return
		}
		userID, err := claims.UserUUID()
		if err != nil {
			abortUnauthorized(c, log, err)
			return
		}

		c.Set(JWTClaimsKey, claims)
		setIdentity(c, tenantID, userID)
		c.Next()
	}
}

var errMissingAuthorization = errors.New("missing authorization header")

func devIdentity(c *gin.Context) (uuid.UUID, uuid.UUID, error) {
	tenantID, err := uuid.Parse(c.GetHeader(DevTenantHeader))
	if err != nil {
		return uuid.Nil, uuid.Nil, auth.ErrMissingTenantID
	}
	userID, err := uuid.Parse(c.GetHeader(DevUserHeader))
	if err != nil {
		return uuid.Nil, uuid.Nil, auth.ErrMissingUserID
	}
	return tenantID, userID, nil
}

func setIdentity(c *gin.Context, tenantID, userID uuid.UUID) {
	c.Set(TenantIDKey, tenantID.String())
	c.Set(UserIDKey, userID.String())

	ctx := logger.WithTenantID(c.Request.Context(), tenantID.String())
	ctx = logger.WithUserID(ctx, userID.String())
	c.Request = c.Request.WithContext(ctx)
}

func abortUnauthorized(c *gin.Context, log *zap.Logger, err error) {
	log.Debug("Authentication failed",
		zap.Error(err),
		zap.String("path", c.Request.URL.Path),
	)

	code, message := dto.ErrCodeUnauthorized, "Authentication required"
	switch {
	case errors.Is(err, auth.ErrExpiredToken):
		code, message = dto.ErrCodeTokenExpired, "Token has expired"
	case errors.Is(err, auth.ErrTokenNotYetValid):
		message = "Token is not yet valid"
	case errors.Is(err, auth.ErrInvalidToken), errors.Is(err, auth.ErrInvalidClaims):
		message = "Invalid token"
	case errors.Is(err, auth.ErrMissingTenantID):
		message = "Tenant ID is missing or invalid"
	case errors.Is(err, auth.ErrMissingUserID):
		message = "User ID is missing or invalid"
	}
	c.AbortWithStatusJSON(http.StatusUnauthorized, dto.NewErrorResponseWithRequestID(code, message, GetRequestID(c)))
}

// GetJWTClaims retrieves JWT claims from gin.Context
func GetJWTClaims(c *gin.Context) *auth.Claims {
	if claims, exists := c.Get(JWTClaimsKey); exists {
		if jwtClaims, ok := claims.(*auth.Claims); ok {
			return jwtClaims
		}
	}
	return nil
}

// GetTenantID returns the authenticated tenant
func GetTenantID(c *gin.Context) (uuid.UUID, bool) {
	return parseContextID(c, TenantIDKey)
}

// GetUserID returns the authenticated user
func GetUserID(c *gin.Context) (uuid.UUID, bool) {
	return parseContextID(c, UserIDKey)
}

func parseContextID(c *gin.Context, key string) (uuid.UUID, bool) {
	raw := c.GetString(key)
	if raw == "" {
		return uuid.Nil, false
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, false
	}
	return id, true
}
