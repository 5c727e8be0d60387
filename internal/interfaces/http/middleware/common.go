package middleware

import (
	"time"

	"github.com/erp/reconciliation/internal/infrastructure/config"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// Request ID header and gin context key
const (
	RequestIDHeader = "X-Request-ID"
	RequestIDKey    = "request_id"
)

// MaxRequestIDLength caps client-supplied request IDs
const MaxRequestIDLength = 128

// RequestID propagates the X-Request-ID header or generates a new ID.
// It must run before logger.GinMiddleware.
func RequestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		requestID := c.GetHeader(RequestIDHeader)
		if requestID == "" {
			requestID = uuid.NewString()
		} else if len(requestID) > MaxRequestIDLength {
			requestID = requestID[:MaxRequestIDLength]
		}
		c.Set(RequestIDKey, requestID)
		c.Writer.Header().Set(RequestIDHeader, requestID)
		c.Next()
	}
}

// GetRequestID returns the request ID assigned by RequestID
func GetRequestID(c *gin.Context) string {
	return c.GetString(RequestIDKey)
}

// CORS builds the gin-contrib/cors middleware from the HTTP config.
// With no configured origins cross-origin requests get no CORS headers.
func CORS(cfg config.HTTPConfig) gin.HandlerFunc {
	if len(cfg.CORSAllowOrigins) == 0 {
		return func(c *gin.Context) { c.Next() }
	}

	corsCfg := cors.Config{
		AllowMethods:     cfg.CORSAllowMethods,
		AllowHeaders:     cfg.CORSAllowHeaders,
		ExposeHeaders:    []string{RequestIDHeader, "Content-Disposition"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}
	if len(corsCfg.AllowMethods) == 0 {
		corsCfg.AllowMethods = []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"}
	}
	if len(corsCfg.AllowHeaders) == 0 {
		corsCfg.AllowHeaders = []string{"Origin", "Content-Type", "Authorization", RequestIDHeader, DevTenantHeader, DevUserHeader}
	}
	for _, o := range cfg.CORSAllowOrigins {
		if o == "*" {
			corsCfg.AllowAllOrigins = true
			corsCfg.AllowCredentials = false
			break
		}
	}
	if !corsCfg.AllowAllOrigins {
		corsCfg.AllowOrigins = cfg.CORSAllowOrigins
	}
	return cors.New(corsCfg)
}

// Secure sets the standard browser hardening headers
func Secure() gin.HandlerFunc {
	return func(c *gin.Context) {
		h := c.Writer.Header()
		h.Set("X-Frame-Options", "DENY")
		h.Set("X-Content-Type-Options", "nosniff")
		h.Set("Referrer-Policy", "strict-origin-when-cross-origin")
		c.Next()
	}
}
