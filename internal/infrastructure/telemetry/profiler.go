package telemetry

import (
	"context"
	"fmt"
	"os"
	"sort"
	"sync"

	"github.com/grafana/pyroscope-go"
	"go.uber.org/zap"
)

// Profiling label keys attached by the HTTP layer.
const (
	ProfilingLabelRoute    = "route"
	ProfilingLabelMethod   = "method"
	ProfilingLabelTenantID = "tenant_id"
)

// MaxLabelValueLength caps label values to keep profile cardinality bounded.
const MaxLabelValueLength = 128

// ProfilerConfig holds Pyroscope continuous profiling configuration.
type ProfilerConfig struct {
	Enabled         bool
	ServerAddress   string
	ApplicationName string
}

// Profiler wraps the Pyroscope profiler with lifecycle management.
type Profiler struct {
	profiler *pyroscope.Profiler
	logger   *zap.Logger
	config   ProfilerConfig
	mu       sync.Mutex
	stopped  bool
}

// NewProfiler starts a Pyroscope profiler collecting CPU, heap and goroutine
// profiles. A disabled config yields a no-op profiler.
func NewProfiler(cfg ProfilerConfig, logger *zap.Logger) (*Profiler, error) {
	p := &Profiler{logger: logger, config: cfg}
	if !cfg.Enabled {
		logger.Info("Continuous profiling disabled, using no-op profiler")
		return p, nil
	}
	if cfg.ServerAddress == "" {
		return nil, fmt.Errorf("profiler server address is required when profiling is enabled")
	}
	if cfg.ApplicationName == "" {
		return nil, fmt.Errorf("profiler application name is required when profiling is enabled")
	}

	tags := map[string]string{}
	if hostname := os.Getenv("HOSTNAME"); hostname != "" {
		tags["hostname"] = hostname
	}

	profiler, err := pyroscope.Start(pyroscope.Config{
		ApplicationName: cfg.ApplicationName,
		ServerAddress:   cfg.ServerAddress,
		Logger:          &pyroscopeLogger{logger: logger.Named("pyroscope").Sugar()},
		Tags:            tags,
		ProfileTypes: []pyroscope.ProfileType{
			pyroscope.ProfileCPU,
			pyroscope.ProfileAllocSpace,
			pyroscope.ProfileInuseSpace,
			pyroscope.ProfileGoroutines,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to start Pyroscope profiler: %w", err)
	}
	p.profiler = profiler

	logger.Info("Pyroscope profiler started",
		zap.String("server_address", cfg.ServerAddress),
		zap.String("application_name", cfg.ApplicationName),
	)
	return p, nil
}

// Stop flushes pending profiles. It is safe to call more than once.
func (p *Profiler) Stop() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.stopped || p.profiler == nil {
		p.stopped = true
		return nil
	}
	p.stopped = true
	if err := p.profiler.Stop(); err != nil {
		return fmt.Errorf("failed to stop profiler: %w", err)
	}
	p.logger.Info("Pyroscope profiler stopped")
	return nil
}

// IsEnabled returns whether profiles are being collected.
func (p *Profiler) IsEnabled() bool {
	return p.profiler != nil
}

// WithProfilingLabels runs fn with the given pprof labels attached. Empty
// keys or values are dropped and long values are truncated.
func WithProfilingLabels(ctx context.Context, labels map[string]string, fn func(context.Context)) {
	pairs := labelPairs(labels)
	if len(pairs) == 0 {
		fn(ctx)
		return
	}
	pyroscope.TagWrapper(ctx, pyroscope.Labels(pairs...), fn)
}

func labelPairs(labels map[string]string) []string {
	keys := make([]string, 0, len(labels))
	for k, v := range labels {
		if k != "" && v != "" {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)

	pairs := make([]string, 0, len(keys)*2)
	for _, k := range keys {
		v := labels[k]
		if len(v) > MaxLabelValueLength {
			v = v[:MaxLabelValueLength]
		}
		pairs = append(pairs, k, v)
	}
	return pairs
}

type pyroscopeLogger struct {
	logger *zap.SugaredLogger
}

func (l *pyroscopeLogger) Infof(format string, args ...any)  { l.logger.Infof(format, args...) }
func (l *pyroscopeLogger) Debugf(format string, args ...any) { l.logger.Debugf(format, args...) }
func (l *pyroscopeLogger) Errorf(format string, args ...any) { l.logger.Errorf(format, args...) }
