package middleware

import (
	"context"

	"github.com/erp/reconciliation/internal/infrastructure/telemetry"
	"github.com/gin-gonic/gin"
)

// Profiling attaches route, method and tenant labels to the CPU samples of
// each request. It must run after JWTAuthMiddleware for the tenant label.
func Profiling(enabled bool) gin.HandlerFunc {
	if !enabled {
		return func(c *gin.Context) { c.Next() }
	}

	return func(c *gin.Context) {
		labels := map[string]string{
			telemetry.ProfilingLabelMethod:   c.Request.Method,
			telemetry.ProfilingLabelRoute:    c.FullPath(),
			telemetry.ProfilingLabelTenantID: c.GetString(TenantIDKey),
		}
		telemetry.WithProfilingLabels(c.Request.Context(), labels, func(ctx context.Context) {
			c.Request = c.Request.WithContext(ctx)
			c.Next()
		})
	}
}
