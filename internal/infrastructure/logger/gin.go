package logger

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const ginLoggerKey = "logger"

// GinMiddleware logs one entry per HTTP request and exposes a request-scoped
// logger to handlers through GetGinLogger and the request context.
// It must run after the request ID middleware.
func GinMiddleware(logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path
		query := c.Request.URL.RawQuery
		requestID := c.GetString("request_id")

		reqLogger := logger.With(
			zap.String("request_id", requestID),
			zap.String("method", c.Request.Method),
			zap.String("path", path),
		)
		c.Set(ginLoggerKey, reqLogger)

		ctx := WithContext(c.Request.Context(), reqLogger)
		if requestID != "" {
			ctx = WithRequestID(ctx, requestID)
		}
		c.Request = c.Request.WithContext(ctx)

		c.Next()

		status := c.Writer.Status()
		fields := []zap.Field{
			zap.Int("status", status),
			zap.Duration("latency", time.Since(start)),
			zap.String("client_ip", c.ClientIP()),
			zap.Int("body_size", c.Writer.Size()),
		}
		if query != "" {
			fields = append(fields, zap.String("query", query))
		}
		if tenantID := c.GetString("tenant_id"); tenantID != "" {
			fields = append(fields, zap.String("tenant_id", tenantID))
		}
		if len(c.Errors) > 0 {
			fields = append(fields, zap.Strings("errors", c.Errors.Errors()))
		}

		msg := "HTTP Request"
		switch {
		case status >= 500:
			reqLogger.Error(msg, fields...)
		case status >= 400:
			reqLogger.Warn(msg, fields...)
		default:
			reqLogger.Info(msg, fields...)
		}
	}
}

// Recovery turns a panic into a logged 500 with the standard error envelope
func Recovery(logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			if err := recover(); err != nil {
				requestID := c.GetString("request_id")
				logger.Error("Panic recovered",
					zap.String("request_id", requestID),
					zap.String("method", c.Request.Method),
					zap.String("path", c.Request.URL.Path),
					zap.Any("error", err),
					zap.Stack("stacktrace"),
				)

				c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{
					"success": false,
					"error": gin.H{
						"code":       "ERR_INTERNAL",
						"message":    "An internal error occurred",
						"request_id": requestID,
					},
				})
			}
		}()
		c.Next()
	}
}

// GetGinLogger retrieves the request-scoped logger from gin context
func GetGinLogger(c *gin.Context) *zap.Logger {
	if l, ok := c.Get(ginLoggerKey); ok {
		if zl, ok := l.(*zap.Logger); ok {
			return zl
		}
	}
	return zap.NewNop()
}
