package telemetry

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/contrib/bridges/otelzap"
	"go.opentelemetry.io/otel/exporters/otlp/otlplog/otlploggrpc"
	"go.opentelemetry.io/otel/log/global"
	sdklog "go.opentelemetry.io/otel/sdk/log"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// LogsConfig configures OTLP log export. Records leave the process only
// through the core returned by ZapCore.
type LogsConfig struct {
	Enabled           bool
	CollectorEndpoint string
	ServiceName       string
	Insecure          bool
}

// LoggerProvider owns the OTLP log pipeline. A nil or disabled provider is
// safe to use and exports nothing.
type LoggerProvider struct {
	provider *sdklog.LoggerProvider
	scope    string
}

// NewLoggerProvider builds the log pipeline and installs it as the global
// OpenTelemetry logger provider.
func NewLoggerProvider(ctx context.Context, cfg LogsConfig, logger *zap.Logger) (*LoggerProvider, error) {
	if !cfg.Enabled {
		return &LoggerProvider{}, nil
	}

	opts := []otlploggrpc.Option{otlploggrpc.WithEndpoint(cfg.CollectorEndpoint)}
	if cfg.Insecure {
		opts = append(opts, otlploggrpc.WithInsecure())
	}
	exporter, err := otlploggrpc.New(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create OTLP logs exporter: %w", err)
	}
	res, err := newResource(cfg.ServiceName)
	if err != nil {
		return nil, err
	}

	provider := sdklog.NewLoggerProvider(
		sdklog.WithResource(res),
		sdklog.WithProcessor(sdklog.NewBatchProcessor(exporter)),
	)
	global.SetLoggerProvider(provider)
	logger.Info("OTLP log export enabled", zap.String("collector_endpoint", cfg.CollectorEndpoint))

	return &LoggerProvider{provider: provider, scope: cfg.ServiceName}, nil
}

// IsEnabled reports whether records are exported.
func (lp *LoggerProvider) IsEnabled() bool {
	return lp != nil && lp.provider != nil
}

// Shutdown flushes buffered records, waiting at most ten seconds.
func (lp *LoggerProvider) Shutdown(ctx context.Context) error {
	if !lp.IsEnabled() {
		return nil
	}
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := lp.provider.Shutdown(ctx); err != nil {
		return fmt.Errorf("failed to shutdown logger provider: %w", err)
	}
	return nil
}

// ZapCore returns a core that forwards entries at or above minLevel to the
// OTLP exporter, or nil when export is disabled. It is meant for
// logger.WithCore.
func (lp *LoggerProvider) ZapCore(minLevel zapcore.Level) zapcore.Core {
	if !lp.IsEnabled() {
		return nil
	}
	return &levelFilterCore{
		Core:     otelzap.NewCore(lp.scope, otelzap.WithLoggerProvider(lp.provider)),
		minLevel: minLevel,
	}
}

// levelFilterCore adds a minimum level to a core that has none.
type levelFilterCore struct {
	zapcore.Core
	minLevel zapcore.Level
}

func (c *levelFilterCore) Enabled(lvl zapcore.Level) bool {
	return lvl >= c.minLevel && c.Core.Enabled(lvl)
}

func (c *levelFilterCore) Check(entry zapcore.Entry, ce *zapcore.CheckedEntry) *zapcore.CheckedEntry {
	if !c.Enabled(entry.Level) {
		return ce
	}
	return c.Core.Check(entry, ce)
}

func (c *levelFilterCore) With(fields []zapcore.Field) zapcore.Core {
	return &levelFilterCore{Core: c.Core.With(fields), minLevel: c.minLevel}
}
