package logger

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	gormlogger "gorm.io/gorm/logger"
)

// GormLogger routes GORM output through zap. Record-not-found errors are
// normal lookups in the repositories and are never logged.
type GormLogger struct {
	logger        *zap.Logger
	logLevel      gormlogger.LogLevel
	slowThreshold time.Duration
}

// GormLoggerOption configures a GormLogger
type GormLoggerOption func(*GormLogger)

// WithSlowThreshold sets the duration above which queries log as slow; zero disables it
func WithSlowThreshold(threshold time.Duration) GormLoggerOption {
	return func(l *GormLogger) {
		l.slowThreshold = threshold
	}
}

// NewGormLogger creates a GORM logger named "gorm" under zapLogger
func NewGormLogger(zapLogger *zap.Logger, level gormlogger.LogLevel, opts ...GormLoggerOption) *GormLogger {
	gl := &GormLogger{
		logger:        zapLogger.Named("gorm"),
		logLevel:      level,
		slowThreshold: 200 * time.Millisecond,
	}
	for _, opt := range opts {
		opt(gl)
	}
	return gl
}

// LogMode returns a copy at the given level
func (l *GormLogger) LogMode(level gormlogger.LogLevel) gormlogger.Interface {
	clone := *l
	clone.logLevel = level
	return &clone
}

func (l *GormLogger) Info(_ context.Context, msg string, data ...any) {
	l.printf(gormlogger.Info, zapcore.InfoLevel, msg, data)
}

func (l *GormLogger) Warn(_ context.Context, msg string, data ...any) {
	l.printf(gormlogger.Warn, zapcore.WarnLevel, msg, data)
}

func (l *GormLogger) Error(_ context.Context, msg string, data ...any) {
	l.printf(gormlogger.Error, zapcore.ErrorLevel, msg, data)
}

func (l *GormLogger) printf(min gormlogger.LogLevel, level zapcore.Level, msg string, data []any) {
	if l.logLevel < min {
		return
	}
	l.logger.Sugar().Logf(level, msg, data...)
}

// Trace logs one statement with the request, tenant and trace identifiers
// found in ctx. Errors win over slow queries, which win over plain queries.
func (l *GormLogger) Trace(ctx context.Context, begin time.Time, fc func() (sql string, rowsAffected int64), err error) {
	if l.logLevel <= gormlogger.Silent {
		return
	}
	if err != nil && errors.Is(err, gormlogger.ErrRecordNotFound) {
		return
	}

	elapsed := time.Since(begin)
	slow := l.slowThreshold != 0 && elapsed > l.slowThreshold
	switch {
	case err != nil && l.logLevel >= gormlogger.Error:
	case slow && l.logLevel >= gormlogger.Warn:
	case l.logLevel >= gormlogger.Info:
	default:
		return
	}

	sql, rows := fc()
	fields := []zap.Field{
		zap.Duration("elapsed", elapsed),
		zap.Int64("rows", rows),
		zap.String("sql", sql),
	}
	log := WithLogger(ctx, l.logger)
	switch {
	case err != nil:
		log.Error("SQL Error", append(fields, zap.Error(err))...)
	case slow:
		log.Warn("Slow SQL", append(fields, zap.Duration("threshold", l.slowThreshold))...)
	default:
		log.Debug("SQL Query", fields...)
	}
}

// MapGormLogLevel maps the application log level to a GORM log level
func MapGormLogLevel(level string) gormlogger.LogLevel {
	switch level {
	case "silent":
		return gormlogger.Silent
	case "error":
		return gormlogger.Error
	case "info", "debug":
		return gormlogger.Info
	default:
		return gormlogger.Warn
	}
}
