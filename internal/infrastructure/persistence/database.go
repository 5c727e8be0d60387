package persistence

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/erp/reconciliation/internal/infrastructure/config"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// Database owns the GORM handle shared by every repository.
type Database struct {
	DB *gorm.DB
}

// NewDatabase connects with GORM logging silenced.
func NewDatabase(cfg *config.DatabaseConfig) (*Database, error) {
	return NewDatabaseWithCustomLogger(cfg, logger.Default.LogMode(logger.Silent))
}

// NewDatabaseWithCustomLogger opens the PostgreSQL connection, applies the
// pool limits from cfg and pings once before returning. Timestamps are
// written in UTC.
func NewDatabaseWithCustomLogger(cfg *config.DatabaseConfig, gormLogger logger.Interface) (*Database, error) {
	db, err := gorm.Open(postgres.Open(cfg.DSN()), &gorm.Config{
		Logger:                 gormLogger,
		SkipDefaultTransaction: true,
		PrepareStmt:            true,
		NowFunc:                func() time.Time { return time.Now().UTC() },
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	d := &Database{DB: db}
	pool, err := d.pool()
	if err != nil {
		return nil, err
	}
	pool.SetMaxOpenConns(cfg.MaxOpenConns)
	pool.SetMaxIdleConns(cfg.MaxIdleConns)
	pool.SetConnMaxLifetime(time.Duration(cfg.ConnMaxLifetime) * time.Minute)
	pool.SetConnMaxIdleTime(time.Duration(cfg.ConnMaxIdleTime) * time.Minute)

	if err := pool.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	return d, nil
}

func (d *Database) pool() (*sql.DB, error) {
	pool, err := d.DB.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get underlying sql.DB: %w", err)
	}
	return pool, nil
}

// Close releases every pooled connection.
func (d *Database) Close() error {
	pool, err := d.pool()
	if err != nil {
		return err
	}
	return pool.Close()
}

// Ping is PingContext without a deadline.
func (d *Database) Ping() error {
	return d.PingContext(context.Background())
}

// PingContext satisfies handler.Pinger for the health probe.
func (d *Database) PingContext(ctx context.Context) error {
	pool, err := d.pool()
	if err != nil {
		return err
	}
	return pool.PingContext(ctx)
}

// Stats snapshots the connection pool, logged at shutdown.
func (d *Database) Stats() (sql.DBStats, error) {
	pool, err := d.pool()
	if err != nil {
		return sql.DBStats{}, err
	}
	return pool.Stats(), nil
}
