// Package telemetry provides OpenTelemetry tracing, metrics, log export and
// continuous profiling for the reconciliation service.
package telemetry

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// TracerName is the tracer used for service spans
const TracerName = "reconciliation"

// Span attribute keys shared by the application services
const (
	SpanAttrTenantID         = "tenant.id"
	SpanAttrReconciliationID = "reconciliation.id"
	SpanAttrRuleID           = "rule.id"
	SpanAttrMatchType        = "match.type"
	SpanAttrEntryCount       = "entry.count"
	SpanAttrAmount           = "amount"
)

// StartServiceSpan starts a span named {service}.{method}.
// The caller must end it:
//
//	ctx, span := telemetry.StartServiceSpan(ctx, "reconciliation", "create_match")
//	defer span.End()
func StartServiceSpan(ctx context.Context, service, method string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	opts := []trace.SpanStartOption{trace.WithSpanKind(trace.SpanKindInternal)}
	if len(attrs) > 0 {
		opts = append(opts, trace.WithAttributes(attrs...))
	}
	return otel.GetTracerProvider().Tracer(TracerName).Start(ctx, service+"."+method, opts...)
}

// SetAttributes adds alternating key/value pairs to the span
func SetAttributes(span trace.Span, keyValues ...any) {
	if span == nil {
		return
	}
	span.SetAttributes(toAttributes(keyValues)...)
}

// SetAttribute adds a single attribute to the span
func SetAttribute(span trace.Span, key string, value any) {
	if span == nil {
		return
	}
	span.SetAttributes(toAttribute(key, value))
}

// RecordError records err on the span and marks the span failed
func RecordError(span trace.Span, err error) {
	if span == nil || err == nil {
		return
	}
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
}

// AddEvent adds a time-stamped event with alternating key/value attributes
func AddEvent(span trace.Span, name string, keyValues ...any) {
	if span == nil {
		return
	}
	span.AddEvent(name, trace.WithAttributes(toAttributes(keyValues)...))
}

func toAttributes(keyValues []any) []attribute.KeyValue {
	attrs := make([]attribute.KeyValue, 0, len(keyValues)/2)
	for i := 0; i+1 < len(keyValues); i += 2 {
		key, ok := keyValues[i].(string)
		if !ok {
			continue
		}
		attrs = append(attrs, toAttribute(key, keyValues[i+1]))
	}
	return attrs
}

func toAttribute(key string, value any) attribute.KeyValue {
	switch v := value.(type) {
	case string:
		return attribute.String(key, v)
	case int:
		return attribute.Int(key, v)
	case int64:
		return attribute.Int64(key, v)
	case float64:
		return attribute.Float64(key, v)
	case bool:
		return attribute.Bool(key, v)
	case []string:
		return attribute.StringSlice(key, v)
	case fmt.Stringer:
		return attribute.String(key, v.String())
	default:
		return attribute.String(key, fmt.Sprintf("%v", v))
	}
}
