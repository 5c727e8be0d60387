package telemetry_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/erp/reconciliation/internal/infrastructure/telemetry"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
	"go.uber.org/zap/zaptest"
)

type fakeBacklog struct {
	pending map[uuid.UUID]int64
	open    map[uuid.UUID]int64
	err     error
}

func (f *fakeBacklog) PendingEntriesByTenant(context.Context) (map[uuid.UUID]int64, error) {
	return f.pending, f.err
}

func (f *fakeBacklog) OpenExceptionsByTenant(context.Context) (map[uuid.UUID]int64, error) {
	return f.open, f.err
}

func newTestMetrics(t *testing.T, backlog telemetry.BacklogProvider) (*telemetry.ReconciliationMetrics, *sdkmetric.ManualReader) {
	t.Helper()
	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	t.Cleanup(func() { _ = mp.Shutdown(context.Background()) })

	rm, err := telemetry.NewReconciliationMetrics(telemetry.ReconciliationMetricsConfig{
		Meter:   mp.Meter("test"),
		Logger:  zaptest.NewLogger(t),
		Backlog: backlog,
	})
	require.NoError(t, err)
	return rm, reader
}

func collect(t *testing.T, reader *sdkmetric.ManualReader) map[string]metricdata.Metrics {
	t.Helper()
	var data metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(context.Background(), &data))

	out := map[string]metricdata.Metrics{}
	for _, sm := range data.ScopeMetrics {
		for _, m := range sm.Metrics {
			out[m.Name] = m
		}
	}
	return out
}

func attrValue(set attribute.Set, key attribute.Key) string {
	v, _ := set.Value(key)
	return v.AsString()
}

func TestNewReconciliationMetrics_NilMeter(t *testing.T) {
	_, err := telemetry.NewReconciliationMetrics(telemetry.ReconciliationMetricsConfig{})
	assert.ErrorIs(t, err, telemetry.ErrMeterNil)
}

func TestReconciliationMetrics_RecordMatchCreated(t *testing.T) {
	rm, reader := newTestMetrics(t, nil)
	tenantID := uuid.New()
	ctx := context.Background()

	rm.RecordMatchCreated(ctx, tenantID, "one_to_one", false)
	rm.RecordMatchCreated(ctx, tenantID, "one_to_one", false)
	rm.RecordMatchCreated(ctx, tenantID, "one_to_many", true)

	metrics := collect(t, reader)
	sum, ok := metrics["reconciliation_matches_created_total"].Data.(metricdata.Sum[int64])
	require.True(t, ok)
	require.Len(t, sum.DataPoints, 2)

	byMode := map[string]int64{}
	for _, dp := range sum.DataPoints {
		assert.Equal(t, tenantID.String(), attrValue(dp.Attributes, telemetry.AttrTenantID))
		byMode[attrValue(dp.Attributes, telemetry.AttrMatchMode)] = dp.Value
	}
	assert.Equal(t, int64(2), byMode["manual"])
	assert.Equal(t, int64(1), byMode["auto"])
}

func TestReconciliationMetrics_RecordAutoMatch(t *testing.T) {
	rm, reader := newTestMetrics(t, nil)
	tenantID := uuid.New()

	rm.RecordAutoMatch(context.Background(), tenantID, 120*time.Millisecond, 3, 2)
	rm.RecordMatchConflict(context.Background(), tenantID)

	metrics := collect(t, reader)

	runs := metrics["reconciliation_auto_match_runs_total"].Data.(metricdata.Sum[int64])
	require.Len(t, runs.DataPoints, 1)
	assert.Equal(t, int64(1), runs.DataPoints[0].Value)

	skipped := metrics["reconciliation_auto_match_skipped_total"].Data.(metricdata.Sum[int64])
	require.Len(t, skipped.DataPoints, 1)
	assert.Equal(t, int64(2), skipped.DataPoints[0].Value)

	hist := metrics["reconciliation_auto_match_duration_seconds"].Data.(metricdata.Histogram[float64])
	require.Len(t, hist.DataPoints, 1)
	assert.Equal(t, uint64(1), hist.DataPoints[0].Count)
	assert.InDelta(t, 0.12, hist.DataPoints[0].Sum, 0.0001)

	conflicts := metrics["reconciliation_match_conflicts_total"].Data.(metricdata.Sum[int64])
	require.Len(t, conflicts.DataPoints, 1)
}

func TestReconciliationMetrics_RecordExceptionRaised(t *testing.T) {
	rm, reader := newTestMetrics(t, nil)

	rm.RecordExceptionRaised(context.Background(), uuid.New(), "amount_mismatch")

	sum := collect(t, reader)["reconciliation_exceptions_raised_total"].Data.(metricdata.Sum[int64])
	require.Len(t, sum.DataPoints, 1)
	assert.Equal(t, "amount_mismatch", attrValue(sum.DataPoints[0].Attributes, telemetry.AttrExceptionCategory))
}

func TestReconciliationMetrics_CollectBacklog(t *testing.T) {
	tenantA, tenantB := uuid.New(), uuid.New()
	rm, reader := newTestMetrics(t, &fakeBacklog{
		pending: map[uuid.UUID]int64{tenantA: 7, tenantB: 0},
		open:    map[uuid.UUID]int64{tenantA: 2},
	})

	rm.CollectBacklog(context.Background())

	metrics := collect(t, reader)
	pending := metrics["reconciliation_pending_entries"].Data.(metricdata.Gauge[int64])
	require.Len(t, pending.DataPoints, 2)
	for _, dp := range pending.DataPoints {
		if attrValue(dp.Attributes, telemetry.AttrTenantID) == tenantA.String() {
			assert.Equal(t, int64(7), dp.Value)
		} else {
			assert.Equal(t, int64(0), dp.Value)
		}
	}

	open := metrics["reconciliation_open_exceptions"].Data.(metricdata.Gauge[int64])
	require.Len(t, open.DataPoints, 1)
	assert.Equal(t, int64(2), open.DataPoints[0].Value)
}

func TestReconciliationMetrics_CollectBacklogError(t *testing.T) {
	rm, reader := newTestMetrics(t, &fakeBacklog{err: errors.New("db down")})

	rm.CollectBacklog(context.Background())

	_, ok := collect(t, reader)["reconciliation_pending_entries"]
	assert.False(t, ok)
}

func TestReconciliationMetrics_StopIsIdempotent(t *testing.T) {
	rm, _ := newTestMetrics(t, &fakeBacklog{})
	rm.StartPeriodicCollection(context.Background(), time.Hour)
	rm.Stop()
	rm.Stop()
}

func TestNewMeterProvider_Disabled(t *testing.T) {
	mp, err := telemetry.NewMeterProvider(context.Background(), telemetry.MetricsConfig{ServiceName: "test"}, zaptest.NewLogger(t))
	require.NoError(t, err)
	assert.False(t, mp.IsEnabled())
	assert.NotNil(t, mp.Meter("test"))
	assert.NoError(t, mp.Shutdown(context.Background()))
}
