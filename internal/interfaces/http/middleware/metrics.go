package middleware

import (
	"time"

	"github.com/erp/reconciliation/internal/infrastructure/telemetry"
	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// httpMetrics holds the HTTP server instruments
type httpMetrics struct {
	requestTotal    *telemetry.Counter
	requestDuration *telemetry.Histogram
	activeRequests  *telemetry.UpDownCounter
}

func newHTTPMetrics(meter metric.Meter) (*httpMetrics, error) {
	requestTotal, err := telemetry.NewCounter(meter,
		"http_server_request_total",
		"Total number of HTTP requests",
		"{request}",
	)
	if err != nil {
		return nil, err
	}

	requestDuration, err := telemetry.NewHistogram(meter, telemetry.HistogramOpts{
		Name:        "http_server_request_duration_seconds",
		Description: "HTTP request latency distribution in seconds",
		Unit:        "s",
		Boundaries:  telemetry.HTTPDurationBuckets,
	})
	if err != nil {
		return nil, err
	}

	activeRequests, err := telemetry.NewUpDownCounter(meter,
		"http_server_active_requests",
		"Number of currently active HTTP requests",
		"{request}",
	)
	if err != nil {
		return nil, err
	}

	return &httpMetrics{
		requestTotal:    requestTotal,
		requestDuration: requestDuration,
		activeRequests:  activeRequests,
	}, nil
}

// HTTPMetrics counts requests per route and status class and records their
// latency. A nil or disabled provider yields a pass-through middleware.
func HTTPMetrics(mp *telemetry.MeterProvider) (gin.HandlerFunc, error) {
	if mp == nil || !mp.IsEnabled() {
		return func(c *gin.Context) { c.Next() }, nil
	}
	return HTTPMetricsWithMeter(mp.Meter("http"))
}

// HTTPMetricsWithMeter builds the metrics middleware on an explicit meter
func HTTPMetricsWithMeter(meter metric.Meter) (gin.HandlerFunc, error) {
	m, err := newHTTPMetrics(meter)
	if err != nil {
		return nil, err
	}

	return func(c *gin.Context) {
		ctx := c.Request.Context()
		start := time.Now()
		m.activeRequests.Add(ctx, 1)

		c.Next()

		m.activeRequests.Add(ctx, -1)
		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		base := []attribute.KeyValue{
			telemetry.AttrHTTPMethod.String(c.Request.Method),
			telemetry.AttrHTTPRoute.String(route),
		}
		counted := append(base, telemetry.AttrHTTPStatusClass.String(StatusClass(c.Writer.Status())))
		if tenantID := c.GetString(TenantIDKey); tenantID != "" {
			counted = append(counted, telemetry.AttrTenantID.String(tenantID))
		}
		m.requestTotal.Inc(ctx, counted...)
		m.requestDuration.RecordDuration(ctx, time.Since(start), base...)
	}, nil
}

// StatusClass groups a status code into 2xx/3xx/4xx/5xx
func StatusClass(status int) string {
	switch {
	case status >= 200 && status < 300:
		return "2xx"
	case status >= 300 && status < 400:
		return "3xx"
	case status >= 400 && status < 500:
		return "4xx"
	case status >= 500:
		return "5xx"
	default:
		return "other"
	}
}
