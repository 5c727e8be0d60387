package telemetry

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"
)

// ErrMeterNil is returned when no meter is supplied.
var ErrMeterNil = errors.New("telemetry: meter cannot be nil")

// BacklogProvider reports per-tenant backlog sizes for the periodic gauges.
type BacklogProvider interface {
	PendingEntriesByTenant(ctx context.Context) (map[uuid.UUID]int64, error)
	OpenExceptionsByTenant(ctx context.Context) (map[uuid.UUID]int64, error)
}

// ReconciliationMetrics records matching activity and backlog gauges.
type ReconciliationMetrics struct {
	logger *zap.Logger

	matchesCreated    *Counter
	matchConflicts    *Counter
	autoMatchRuns     *Counter
	autoMatchSkipped  *Counter
	autoMatchDuration *Histogram
	exceptionsRaised  *Counter

	pendingEntries *Gauge
	openExceptions *Gauge

	backlog     BacklogProvider
	stopChan    chan struct{}
	stopOnce    sync.Once
	collectOnce sync.Once
}

// ReconciliationMetricsConfig configures NewReconciliationMetrics.
type ReconciliationMetricsConfig struct {
	Meter   metric.Meter
	Logger  *zap.Logger
	Backlog BacklogProvider
}

// NewReconciliationMetrics registers the reconciliation instruments on cfg.Meter.
func NewReconciliationMetrics(cfg ReconciliationMetricsConfig) (*ReconciliationMetrics, error) {
	if cfg.Meter == nil {
		return nil, ErrMeterNil
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	rm := &ReconciliationMetrics{
		logger:   logger,
		backlog:  cfg.Backlog,
		stopChan: make(chan struct{}),
	}

	var err error
	counters := []struct {
		target            **Counter
		name, desc, unit string
	}{
		{&rm.matchesCreated, "reconciliation_matches_created_total", "Matches committed", "{matches}"},
		{&rm.matchConflicts, "reconciliation_match_conflicts_total", "Matches rejected by a concurrent claim", "{matches}"},
		{&rm.autoMatchRuns, "reconciliation_auto_match_runs_total", "Completed auto-match runs", "{runs}"},
		{&rm.autoMatchSkipped, "reconciliation_auto_match_skipped_total", "Auto-match groups skipped after losing a claim", "{groups}"},
		{&rm.exceptionsRaised, "reconciliation_exceptions_raised_total", "Exceptions raised", "{exceptions}"},
	}
	for _, c := range counters {
		if *c.target, err = NewCounter(cfg.Meter, c.name, c.desc, c.unit); err != nil {
			return nil, err
		}
	}

	rm.autoMatchDuration, err = NewHistogram(cfg.Meter, HistogramOpts{
		Name:        "reconciliation_auto_match_duration_seconds",
		Description: "Wall time of auto-match runs",
		Unit:        "s",
		Boundaries:  AutoMatchDurationBuckets,
	})
	if err != nil {
		return nil, err
	}

	if rm.pendingEntries, err = NewGauge(cfg.Meter, "reconciliation_pending_entries", "Clearing entries waiting to be matched", "{entries}"); err != nil {
		return nil, err
	}
	if rm.openExceptions, err = NewGauge(cfg.Meter, "reconciliation_open_exceptions", "Unresolved exceptions", "{exceptions}"); err != nil {
		return nil, err
	}

	return rm, nil
}

// RecordMatchCreated counts a committed match; auto reports whether a rule produced it.
func (rm *ReconciliationMetrics) RecordMatchCreated(ctx context.Context, tenantID uuid.UUID, matchType string, auto bool) {
	mode := "manual"
	if auto {
		mode = "auto"
	}
	rm.matchesCreated.Inc(ctx,
		AttrTenantID.String(tenantID.String()),
		AttrMatchType.String(matchType),
		AttrMatchMode.String(mode),
	)
}

// RecordMatchConflict counts a manual match that lost its claim.
func (rm *ReconciliationMetrics) RecordMatchConflict(ctx context.Context, tenantID uuid.UUID) {
	rm.matchConflicts.Inc(ctx, AttrTenantID.String(tenantID.String()))
}

// RecordAutoMatch records one auto-match run.
func (rm *ReconciliationMetrics) RecordAutoMatch(ctx context.Context, tenantID uuid.UUID, duration time.Duration, matched, skipped int) {
	tenant := AttrTenantID.String(tenantID.String())
	rm.autoMatchRuns.Inc(ctx, tenant)
	rm.autoMatchDuration.RecordDuration(ctx, duration, tenant)
	if skipped > 0 {
		rm.autoMatchSkipped.Add(ctx, int64(skipped), tenant)
	}
	rm.logger.Debug("auto-match recorded",
		zap.String("tenant_id", tenantID.String()),
		zap.Duration("duration", duration),
		zap.Int("matched", matched),
		zap.Int("skipped", skipped),
	)
}

// RecordExceptionRaised counts a new exception by category.
func (rm *ReconciliationMetrics) RecordExceptionRaised(ctx context.Context, tenantID uuid.UUID, category string) {
	rm.exceptionsRaised.Inc(ctx,
		AttrTenantID.String(tenantID.String()),
		AttrExceptionCategory.String(category),
	)
}

// StartPeriodicCollection samples the backlog gauges every interval until
// Stop is called or ctx is done. It does nothing without a BacklogProvider.
func (rm *ReconciliationMetrics) StartPeriodicCollection(ctx context.Context, interval time.Duration) {
	if rm.backlog == nil {
		return
	}
	rm.collectOnce.Do(func() {
		if interval <= 0 {
			interval = 5 * time.Minute
		}
		go rm.runPeriodicCollection(ctx, interval)
	})
}

func (rm *ReconciliationMetrics) runPeriodicCollection(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	rm.CollectBacklog(ctx)
	for {
		select {
		case <-rm.stopChan:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			rm.CollectBacklog(ctx)
		}
	}
}

// CollectBacklog samples the backlog gauges once.
func (rm *ReconciliationMetrics) CollectBacklog(ctx context.Context) {
	if rm.backlog == nil {
		return
	}
	if pending, err := rm.backlog.PendingEntriesByTenant(ctx); err != nil {
		rm.logger.Warn("Failed to collect pending entry counts", zap.Error(err))
	} else {
		for tenantID, n := range pending {
			rm.pendingEntries.Record(ctx, n, AttrTenantID.String(tenantID.String()))
		}
	}
	if open, err := rm.backlog.OpenExceptionsByTenant(ctx); err != nil {
		rm.logger.Warn("Failed to collect open exception counts", zap.Error(err))
	} else {
		for tenantID, n := range open {
			rm.openExceptions.Record(ctx, n, AttrTenantID.String(tenantID.String()))
		}
	}
}

// Stop stops the periodic collection.
func (rm *ReconciliationMetrics) Stop() {
	rm.stopOnce.Do(func() { close(rm.stopChan) })
}
