package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

func setupTestTracer(t *testing.T) *tracetest.SpanRecorder {
	t.Helper()

	recorder := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))
	previous := otel.GetTracerProvider()
	otel.SetTracerProvider(tp)
	t.Cleanup(func() { otel.SetTracerProvider(previous) })
	return recorder
}

func spanAttributes(span sdktrace.ReadOnlySpan) map[attribute.Key]attribute.Value {
	attrs := make(map[attribute.Key]attribute.Value)
	for _, kv := range span.Attributes() {
		attrs[kv.Key] = kv.Value
	}
	return attrs
}

func TestTracing_Disabled(t *testing.T) {
	recorder := setupTestTracer(t)

	router := gin.New()
	router.Use(Tracing(TracingConfig{ServiceName: "reconciliation", Enabled: false}))
	router.GET("/test", func(c *gin.Context) { c.Status(http.StatusOK) })

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/test", nil))

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Empty(t, recorder.Ended())
}

func TestTracing_SpanCarriesIdentity(t *testing.T) {
	recorder := setupTestTracer(t)
	tenantID, userID := uuid.New(), uuid.New()

	router := gin.New()
	router.Use(
		RequestID(),
		Tracing(TracingConfig{ServiceName: "reconciliation", Enabled: true}),
		JWTAuthMiddleware(JWTMiddlewareConfig{AllowDevHeaders: true}),
		SpanIdentity(),
	)
	router.GET("/api/v1/reconciliation/:id", func(c *gin.Context) { c.Status(http.StatusOK) })

	req := httptest.NewRequest(http.MethodGet, "/api/v1/reconciliation/"+uuid.NewString(), nil)
	req.Header.Set(RequestIDHeader, "req-42")
	req.Header.Set(DevTenantHeader, tenantID.String())
	req.Header.Set(DevUserHeader, userID.String())
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	spans := recorder.Ended()
	require.Len(t, spans, 1)
	assert.Contains(t, spans[0].Name(), "/api/v1/reconciliation/:id")

	attrs := spanAttributes(spans[0])
	assert.Equal(t, "req-42", attrs["request_id"].AsString())
	assert.Equal(t, tenantID.String(), attrs["tenant_id"].AsString())
	assert.Equal(t, userID.String(), attrs["user_id"].AsString())
}

func TestTracing_SkipPaths(t *testing.T) {
	recorder := setupTestTracer(t)

	router := gin.New()
	router.Use(Tracing(TracingConfig{ServiceName: "reconciliation", Enabled: true, SkipPaths: []string{"/health"}}))
	router.GET("/health", func(c *gin.Context) { c.Status(http.StatusOK) })

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))

	assert.Empty(t, recorder.Ended())
}

func TestSpanErrorMarker(t *testing.T) {
	tests := []struct {
		name       string
		status     int
		wantStatus codes.Code
		wantAttr   bool
	}{
		{"success", http.StatusOK, codes.Unset, false},
		{"client error", http.StatusConflict, codes.Unset, true},
		{"server error", http.StatusInternalServerError, codes.Error, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			recorder := setupTestTracer(t)

			router := gin.New()
			router.Use(Tracing(TracingConfig{ServiceName: "reconciliation", Enabled: true}), SpanErrorMarker())
			router.GET("/test", func(c *gin.Context) { c.Status(tt.status) })

			w := httptest.NewRecorder()
			router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/test", nil))

			spans := recorder.Ended()
			require.Len(t, spans, 1)
			if tt.wantStatus == codes.Error {
				assert.Equal(t, codes.Error, spans[0].Status().Code)
			}
			_, hasAttr := spanAttributes(spans[0])["http.status_code"]
			assert.Equal(t, tt.wantAttr, hasAttr)
		})
	}
}
