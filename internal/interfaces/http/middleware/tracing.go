package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// TracingConfig holds configuration for the tracing middleware
type TracingConfig struct {
	ServiceName string
	Enabled     bool
	// SkipPaths are not traced (health probes)
	SkipPaths []string
}

// Tracing starts a server span per request using otelgin.
// The span is taken from the global TracerProvider.
func Tracing(cfg TracingConfig) gin.HandlerFunc {
	if !cfg.Enabled {
		return func(c *gin.Context) { c.Next() }
	}

	skip := make(map[string]struct{}, len(cfg.SkipPaths))
	for _, p := range cfg.SkipPaths {
		skip[p] = struct{}{}
	}
	return otelgin.Middleware(cfg.ServiceName,
		otelgin.WithFilter(func(r *http.Request) bool {
			_, skipped := skip[r.URL.Path]
			return !skipped
		}),
	)
}

// SpanIdentity tags the active span with the request, tenant and user IDs.
// It must run after JWTAuthMiddleware.
func SpanIdentity() gin.HandlerFunc {
	return func(c *gin.Context) {
		span := trace.SpanFromContext(c.Request.Context())
		if span.IsRecording() {
			attrs := make([]attribute.KeyValue, 0, 3)
			if id := GetRequestID(c); id != "" {
				attrs = append(attrs, attribute.String("request_id", id))
			}
			if id := c.GetString(TenantIDKey); id != "" {
				attrs = append(attrs, attribute.String("tenant_id", id))
			}
			if id := c.GetString(UserIDKey); id != "" {
				attrs = append(attrs, attribute.String("user_id", id))
			}
			span.SetAttributes(attrs...)
		}
		c.Next()
	}
}

// SpanErrorMarker marks the span as failed for 5xx responses and records
// the status code of 4xx responses.
func SpanErrorMarker() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		span := trace.SpanFromContext(c.Request.Context())
		if !span.IsRecording() {
			return
		}
		status := c.Writer.Status()
		if status < http.StatusBadRequest {
			return
		}
		span.SetAttributes(attribute.Int("http.status_code", status))
		if status >= http.StatusInternalServerError {
			span.SetStatus(codes.Error, http.StatusText(status))
		}
	}
}
