package telemetry

import (
	"context"
	"fmt"
	"sync"
	"time"

	otelpyroscope "github.com/grafana/otel-profiling-go"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.37.0"
	"go.uber.org/zap"
)

// ServiceVersion is reported on every exported resource
const ServiceVersion = "1.0.0"

// Config holds tracing configuration.
type Config struct {
	Enabled           bool
	CollectorEndpoint string
	SamplingRatio     float64
	ServiceName       string
	Insecure          bool
}

// TracerProvider wraps the OpenTelemetry TracerProvider with lifecycle management.
type TracerProvider struct {
	provider            *sdktrace.TracerProvider
	logger              *zap.Logger
	config              Config
	mu                  sync.Mutex
	spanProfilesEnabled bool
}

func newResource(serviceName string) (*resource.Resource, error) {
	res, err := resource.Merge(
		resource.Default(),
		resource.NewWithAttributes(
			semconv.SchemaURL,
			semconv.ServiceName(serviceName),
			semconv.ServiceVersion(ServiceVersion),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create resource: %w", err)
	}
	return res, nil
}

// newSampler maps the configured ratio to a parent-based sampler so
// propagated sampling decisions are honoured.
func newSampler(ratio float64) sdktrace.Sampler {
	switch {
	case ratio >= 1.0:
		return sdktrace.ParentBased(sdktrace.AlwaysSample())
	case ratio <= 0.0:
		return sdktrace.ParentBased(sdktrace.NeverSample())
	default:
		return sdktrace.ParentBased(sdktrace.TraceIDRatioBased(ratio))
	}
}

// NewTracerProvider creates and registers the global tracer provider and
// W3C propagators. When disabled the global no-op provider stays in place.
func NewTracerProvider(ctx context.Context, cfg Config, logger *zap.Logger) (*TracerProvider, error) {
	tp := &TracerProvider{logger: logger, config: cfg}
	if !cfg.Enabled {
		logger.Info("Telemetry disabled, using no-op tracer provider")
		return tp, nil
	}

	exporterOpts := []otlptracegrpc.Option{otlptracegrpc.WithEndpoint(cfg.CollectorEndpoint)}
	if cfg.Insecure {
		exporterOpts = append(exporterOpts, otlptracegrpc.WithInsecure())
	}
	exporter, err := otlptracegrpc.New(ctx, exporterOpts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create OTLP exporter: %w", err)
	}

	res, err := newResource(cfg.ServiceName)
	if err != nil {
		return nil, err
	}

	tp.provider = sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
		sdktrace.WithSampler(newSampler(cfg.SamplingRatio)),
	)
	otel.SetTracerProvider(tp.provider)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))

	logger.Info("OpenTelemetry TracerProvider initialized",
		zap.String("collector_endpoint", cfg.CollectorEndpoint),
		zap.Float64("sampling_ratio", cfg.SamplingRatio),
		zap.String("service_name", cfg.ServiceName),
	)
	return tp, nil
}

// EnableSpanProfiles wraps the global provider so CPU profiles carry the
// span_id label. The Pyroscope profiler must already be running.
func (tp *TracerProvider) EnableSpanProfiles() {
	tp.mu.Lock()
	defer tp.mu.Unlock()

	if tp.provider == nil || tp.spanProfilesEnabled {
		return
	}
	otel.SetTracerProvider(otelpyroscope.NewTracerProvider(tp.provider))
	tp.spanProfilesEnabled = true
	tp.logger.Info("Span profiles integration enabled")
}

// IsEnabled returns whether spans are exported.
func (tp *TracerProvider) IsEnabled() bool {
	return tp.provider != nil
}

// Shutdown flushes pending spans and stops the exporter.
func (tp *TracerProvider) Shutdown(ctx context.Context) error {
	if tp.provider == nil {
		return nil
	}
	shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := tp.provider.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("failed to shutdown tracer provider: %w", err)
	}
	tp.logger.Info("OpenTelemetry TracerProvider shutdown complete")
	return nil
}
