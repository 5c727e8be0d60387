package logger

import (
	"context"

	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

type contextKey string

const (
	loggerKey    contextKey = "logger"
	requestIDKey contextKey = "request_id"
	tenantIDKey  contextKey = "tenant_id"
	userIDKey    contextKey = "user_id"
)

// WithContext returns a new context with the logger attached
func WithContext(ctx context.Context, logger *zap.Logger) context.Context {
	return context.WithValue(ctx, loggerKey, logger)
}

// FromContext retrieves the logger from context, or a no-op logger
func FromContext(ctx context.Context) *zap.Logger {
	if logger, ok := ctx.Value(loggerKey).(*zap.Logger); ok {
		return logger
	}
	return zap.NewNop()
}

// WithRequestID stores the request ID in ctx
func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, requestIDKey, requestID)
}

// WithTenantID stores the tenant ID in ctx
func WithTenantID(ctx context.Context, tenantID string) context.Context {
	return context.WithValue(ctx, tenantIDKey, tenantID)
}

// WithUserID stores the acting user ID in ctx
func WithUserID(ctx context.Context, userID string) context.Context {
	return context.WithValue(ctx, userIDKey, userID)
}

// GetRequestID retrieves request ID from context
func GetRequestID(ctx context.Context) string {
	v, _ := ctx.Value(requestIDKey).(string)
	return v
}

// GetTenantID retrieves tenant ID from context
func GetTenantID(ctx context.Context) string {
	v, _ := ctx.Value(tenantIDKey).(string)
	return v
}

// GetUserID retrieves user ID from context
func GetUserID(ctx context.Context) string {
	v, _ := ctx.Value(userIDKey).(string)
	return v
}

// GetTraceID returns the trace ID of the active span, or ""
func GetTraceID(ctx context.Context) string {
	spanCtx := trace.SpanContextFromContext(ctx)
	if !spanCtx.IsValid() {
		return ""
	}
	return spanCtx.TraceID().String()
}

// ContextLogger injects trace_id, span_id, request_id, tenant_id and user_id
// from its context into every entry.
type ContextLogger struct {
	ctx    context.Context
	logger *zap.Logger
}

// L returns a ContextLogger over the logger stored in ctx.
// Usage: logger.L(ctx).Info("message", zap.String("key", "value"))
func L(ctx context.Context) *ContextLogger {
	return &ContextLogger{ctx: ctx, logger: FromContext(ctx)}
}

// WithLogger returns a ContextLogger over an explicit logger
func WithLogger(ctx context.Context, logger *zap.Logger) *ContextLogger {
	return &ContextLogger{ctx: ctx, logger: logger}
}

func (cl *ContextLogger) enrichedLogger() *zap.Logger {
	l := cl.logger
	if l == nil {
		l = zap.NewNop()
	}

	var fields []zap.Field
	if spanCtx := trace.SpanContextFromContext(cl.ctx); spanCtx.IsValid() {
		fields = append(fields,
			zap.String("trace_id", spanCtx.TraceID().String()),
			zap.String("span_id", spanCtx.SpanID().String()),
		)
	}
	if v := GetRequestID(cl.ctx); v != "" {
		fields = append(fields, zap.String("request_id", v))
	}
	if v := GetTenantID(cl.ctx); v != "" {
		fields = append(fields, zap.String("tenant_id", v))
	}
	if v := GetUserID(cl.ctx); v != "" {
		fields = append(fields, zap.String("user_id", v))
	}
	if len(fields) == 0 {
		return l
	}
	return l.With(fields...)
}

// With creates a child ContextLogger with additional fields.
func (cl *ContextLogger) With(fields ...zap.Field) *ContextLogger {
	l := cl.logger
	if l == nil {
		l = zap.NewNop()
	}
	return &ContextLogger{ctx: cl.ctx, logger: l.With(fields...)}
}

// Debug logs at debug level.
func (cl *ContextLogger) Debug(msg string, fields ...zap.Field) {
	cl.enrichedLogger().Debug(msg, fields...)
}

// Info logs at info level.
func (cl *ContextLogger) Info(msg string, fields ...zap.Field) {
	cl.enrichedLogger().Info(msg, fields...)
}

// Warn logs at warn level.
func (cl *ContextLogger) Warn(msg string, fields ...zap.Field) {
	cl.enrichedLogger().Warn(msg, fields...)
}

// Error logs at error level.
func (cl *ContextLogger) Error(msg string, fields ...zap.Field) {
	cl.enrichedLogger().Error(msg, fields...)
}

// Zap returns the enriched *zap.Logger
func (cl *ContextLogger) Zap() *zap.Logger {
	return cl.enrichedLogger()
}
