package telemetry

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.uber.org/zap"
)

// MetricsConfig holds metrics configuration.
type MetricsConfig struct {
	Enabled           bool
	CollectorEndpoint string
	ExportInterval    time.Duration // Default: 60s
	ServiceName       string
	Insecure          bool
}

// MeterProvider wraps the OpenTelemetry MeterProvider with lifecycle management.
type MeterProvider struct {
	provider *sdkmetric.MeterProvider
	logger   *zap.Logger
	config   MetricsConfig
}

// NewMeterProvider creates and registers an OTLP-exporting MeterProvider.
// When metrics are disabled the global no-op meter is used.
func NewMeterProvider(ctx context.Context, cfg MetricsConfig, logger *zap.Logger) (*MeterProvider, error) {
	mp := &MeterProvider{logger: logger, config: cfg}
	if !cfg.Enabled {
		logger.Info("Metrics disabled, using no-op meter provider")
		return mp, nil
	}

	exportInterval := cfg.ExportInterval
	if exportInterval == 0 {
		exportInterval = 60 * time.Second
	}

	exporterOpts := []otlpmetricgrpc.Option{otlpmetricgrpc.WithEndpoint(cfg.CollectorEndpoint)}
	if cfg.Insecure {
		exporterOpts = append(exporterOpts, otlpmetricgrpc.WithInsecure())
	}
	exporter, err := otlpmetricgrpc.New(ctx, exporterOpts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create OTLP metrics exporter: %w", err)
	}

	res, err := newResource(cfg.ServiceName)
	if err != nil {
		return nil, err
	}

	mp.provider = sdkmetric.NewMeterProvider(
		sdkmetric.WithResource(res),
		sdkmetric.WithReader(sdkmetric.NewPeriodicReader(exporter, sdkmetric.WithInterval(exportInterval))),
	)
	otel.SetMeterProvider(mp.provider)

	logger.Info("OpenTelemetry MeterProvider initialized",
		zap.String("collector_endpoint", cfg.CollectorEndpoint),
		zap.Duration("export_interval", exportInterval),
	)
	return mp, nil
}

// Shutdown flushes pending metrics and stops the exporter.
func (mp *MeterProvider) Shutdown(ctx context.Context) error {
	if mp.provider == nil {
		return nil
	}
	shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := mp.provider.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("failed to shutdown meter provider: %w", err)
	}
	mp.logger.Info("OpenTelemetry MeterProvider shutdown complete")
	return nil
}

// Meter returns a named meter from the provider.
func (mp *MeterProvider) Meter(name string, opts ...metric.MeterOption) metric.Meter {
	if mp.provider == nil {
		return otel.GetMeterProvider().Meter(name, opts...)
	}
	return mp.provider.Meter(name, opts...)
}

// IsEnabled returns whether metrics are exported.
func (mp *MeterProvider) IsEnabled() bool {
	return mp.provider != nil
}

// Counter is a monotonic int64 counter.
type Counter struct {
	metric.Int64Counter
}

// NewCounter registers a counter on meter.
func NewCounter(meter metric.Meter, name, description, unit string) (*Counter, error) {
	c, err := meter.Int64Counter(name, metric.WithDescription(description), metric.WithUnit(unit))
	if err != nil {
		return nil, fmt.Errorf("failed to create counter %s: %w", name, err)
	}
	return &Counter{c}, nil
}

// Add increases the counter by value.
func (c *Counter) Add(ctx context.Context, value int64, attrs ...attribute.KeyValue) {
	c.Int64Counter.Add(ctx, value, metric.WithAttributes(attrs...))
}

// Inc increases the counter by one.
func (c *Counter) Inc(ctx context.Context, attrs ...attribute.KeyValue) {
	c.Add(ctx, 1, attrs...)
}

// UpDownCounter tracks a value that rises and falls, such as in-flight requests.
type UpDownCounter struct {
	metric.Int64UpDownCounter
}

// NewUpDownCounter registers an up-down counter on meter.
func NewUpDownCounter(meter metric.Meter, name, description, unit string) (*UpDownCounter, error) {
	c, err := meter.Int64UpDownCounter(name, metric.WithDescription(description), metric.WithUnit(unit))
	if err != nil {
		return nil, fmt.Errorf("failed to create up-down counter %s: %w", name, err)
	}
	return &UpDownCounter{c}, nil
}

// Add moves the value by delta.
func (c *UpDownCounter) Add(ctx context.Context, delta int64, attrs ...attribute.KeyValue) {
	c.Int64UpDownCounter.Add(ctx, delta, metric.WithAttributes(attrs...))
}

// HistogramOpts describes a histogram. Empty Boundaries keep the SDK defaults.
type HistogramOpts struct {
	Name        string
	Description string
	Unit        string
	Boundaries  []float64
}

// Histogram records float64 samples, durations in seconds.
type Histogram struct {
	metric.Float64Histogram
}

// NewHistogram registers a histogram on meter.
func NewHistogram(meter metric.Meter, opts HistogramOpts) (*Histogram, error) {
	options := []metric.Float64HistogramOption{metric.WithDescription(opts.Description), metric.WithUnit(opts.Unit)}
	if len(opts.Boundaries) > 0 {
		options = append(options, metric.WithExplicitBucketBoundaries(opts.Boundaries...))
	}
	h, err := meter.Float64Histogram(opts.Name, options...)
	if err != nil {
		return nil, fmt.Errorf("failed to create histogram %s: %w", opts.Name, err)
	}
	return &Histogram{h}, nil
}

// RecordDuration records d in seconds.
func (h *Histogram) RecordDuration(ctx context.Context, d time.Duration, attrs ...attribute.KeyValue) {
	h.Float64Histogram.Record(ctx, d.Seconds(), metric.WithAttributes(attrs...))
}

// Gauge reports the last sampled int64 value.
type Gauge struct {
	metric.Int64Gauge
}

// NewGauge registers a gauge on meter.
func NewGauge(meter metric.Meter, name, description, unit string) (*Gauge, error) {
	g, err := meter.Int64Gauge(name, metric.WithDescription(description), metric.WithUnit(unit))
	if err != nil {
		return nil, fmt.Errorf("failed to create gauge %s: %w", name, err)
	}
	return &Gauge{g}, nil
}

// Record sets the current value.
func (g *Gauge) Record(ctx context.Context, value int64, attrs ...attribute.KeyValue) {
	g.Int64Gauge.Record(ctx, value, metric.WithAttributes(attrs...))
}

// Metric attribute keys.
var (
	AttrTenantID          = attribute.Key("tenant_id")
	AttrMatchType         = attribute.Key("match_type")
	AttrMatchMode         = attribute.Key("match_mode")
	AttrExceptionCategory = attribute.Key("exception_category")
	AttrHTTPMethod        = attribute.Key("method")
	AttrHTTPRoute         = attribute.Key("route")
	AttrHTTPStatusClass   = attribute.Key("status_class")
)

// HTTPDurationBuckets are bucket boundaries for request latency (seconds).
var HTTPDurationBuckets = []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5}

// AutoMatchDurationBuckets are bucket boundaries for auto-match runs (seconds).
var AutoMatchDurationBuckets = []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30}
