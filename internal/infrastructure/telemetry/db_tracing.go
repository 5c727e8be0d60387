package telemetry

import (
	"context"
	"errors"
	"time"

	"github.com/uptrace/opentelemetry-go-extra/otelgorm"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// DBTracingConfig holds configuration for database tracing.
type DBTracingConfig struct {
	Enabled         bool
	LogFullSQL      bool          // Include query variables in spans (dev only)
	SlowQueryThresh time.Duration // Queries slower than this are flagged on their span
	DBSystem        string
}

// DBTracingPlugin registers otelgorm and annotates its spans with row
// counts, table names and slow-query markers.
type DBTracingPlugin struct {
	config DBTracingConfig
	logger *zap.Logger
}

// NewDBTracingPlugin creates a new database tracing plugin.
func NewDBTracingPlugin(cfg DBTracingConfig, logger *zap.Logger) *DBTracingPlugin {
	if cfg.SlowQueryThresh == 0 {
		cfg.SlowQueryThresh = 200 * time.Millisecond
	}
	if cfg.DBSystem == "" {
		cfg.DBSystem = "postgresql"
	}
	return &DBTracingPlugin{config: cfg, logger: logger}
}

type queryStartKey struct{}

// Register installs otelgorm and the timing callbacks on db. It is a no-op when disabled.
func (p *DBTracingPlugin) Register(db *gorm.DB) error {
	if !p.config.Enabled {
		return nil
	}

	opts := []otelgorm.Option{otelgorm.WithDBName(p.config.DBSystem)}
	if !p.config.LogFullSQL {
		opts = append(opts, otelgorm.WithoutQueryVariables())
	}
	if err := db.Use(otelgorm.NewPlugin(opts...)); err != nil {
		return err
	}
	if err := p.registerCallbacks(db); err != nil {
		return err
	}

	p.logger.Info("Database tracing enabled",
		zap.Bool("log_full_sql", p.config.LogFullSQL),
		zap.Duration("slow_query_threshold", p.config.SlowQueryThresh),
	)
	return nil
}

func (p *DBTracingPlugin) registerCallbacks(db *gorm.DB) error {
	cb := db.Callback()
	steps := []struct {
		op     string
		before func(string, func(*gorm.DB)) error
		after  func(string, func(*gorm.DB)) error
	}{
		{"create", cb.Create().Before("gorm:create").Register, cb.Create().After("gorm:create").Register},
		{"query", cb.Query().Before("gorm:query").Register, cb.Query().After("gorm:query").Register},
		{"update", cb.Update().Before("gorm:update").Register, cb.Update().After("gorm:update").Register},
		{"delete", cb.Delete().Before("gorm:delete").Register, cb.Delete().After("gorm:delete").Register},
		{"row", cb.Row().Before("gorm:row").Register, cb.Row().After("gorm:row").Register},
		{"raw", cb.Raw().Before("gorm:raw").Register, cb.Raw().After("gorm:raw").Register},
	}
	for _, s := range steps {
		if err := s.before("otel_timing:before_"+s.op, markQueryStart); err != nil {
			return err
		}
		if err := s.after("otel_timing:after_"+s.op, p.annotateSpan); err != nil {
			return err
		}
	}
	return nil
}

func markQueryStart(db *gorm.DB) {
	if db.Statement.Context != nil {
		db.Statement.Context = context.WithValue(db.Statement.Context, queryStartKey{}, time.Now())
	}
}

func (p *DBTracingPlugin) annotateSpan(db *gorm.DB) {
	ctx := db.Statement.Context
	if ctx == nil {
		return
	}
	span := trace.SpanFromContext(ctx)
	if !span.IsRecording() {
		return
	}

	span.SetAttributes(attribute.Int64("db.rows_affected", db.Statement.RowsAffected))
	if db.Statement.Table != "" {
		span.SetAttributes(attribute.String("db.sql.table", db.Statement.Table))
	}
	if db.Error != nil && !errors.Is(db.Error, gorm.ErrRecordNotFound) {
		span.SetStatus(codes.Error, db.Error.Error())
		span.RecordError(db.Error)
	}

	if start, ok := ctx.Value(queryStartKey{}).(time.Time); ok {
		if elapsed := time.Since(start); elapsed > p.config.SlowQueryThresh {
			span.SetAttributes(
				attribute.Bool("db.slow_query", true),
				attribute.Int64("db.query_duration_ms", elapsed.Milliseconds()),
			)
		}
	}
}
