package telemetry

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.37.0"
	"go.uber.org/zap/zaptest"
)

func TestNewTracerProvider_Disabled(t *testing.T) {
	tp, err := NewTracerProvider(context.Background(), Config{ServiceName: "test"}, zaptest.NewLogger(t))
	require.NoError(t, err)

	assert.False(t, tp.IsEnabled())
	tp.EnableSpanProfiles()
	assert.False(t, tp.spanProfilesEnabled)
	assert.NoError(t, tp.Shutdown(context.Background()))
}

func TestNewResource(t *testing.T) {
	res, err := newResource("reconciliation")
	require.NoError(t, err)

	set := res.Set()
	name, ok := set.Value(semconv.ServiceNameKey)
	require.True(t, ok)
	assert.Equal(t, "reconciliation", name.AsString())

	version, ok := set.Value(attribute.Key(semconv.ServiceVersionKey))
	require.True(t, ok)
	assert.Equal(t, ServiceVersion, version.AsString())
}

func TestNewSampler(t *testing.T) {
	tests := []struct {
		ratio float64
		want  string
	}{
		{1.0, sdktrace.ParentBased(sdktrace.AlwaysSample()).Description()},
		{1.5, sdktrace.ParentBased(sdktrace.AlwaysSample()).Description()},
		{0, sdktrace.ParentBased(sdktrace.NeverSample()).Description()},
		{0.25, sdktrace.ParentBased(sdktrace.TraceIDRatioBased(0.25)).Description()},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, newSampler(tt.ratio).Description())
	}
}
