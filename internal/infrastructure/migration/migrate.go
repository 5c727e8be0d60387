// Package migration applies the embedded schema migrations with golang-migrate.
package migration

import (
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"sort"
	"strings"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"go.uber.org/zap"
)

//go:embed sql/*.sql
var migrationFiles embed.FS

const sourceDir = "sql"

// Migrator handles database migrations using golang-migrate
type Migrator struct {
	migrate *migrate.Migrate
	logger  *zap.Logger
}

// New creates a Migrator over an open postgres connection
func New(db *sql.DB, logger *zap.Logger) (*Migrator, error) {
	source, err := iofs.New(migrationFiles, sourceDir)
	if err != nil {
		return nil, fmt.Errorf("failed to open embedded migrations: %w", err)
	}

	driver, err := postgres.WithInstance(db, &postgres.Config{})
	if err != nil {
		return nil, fmt.Errorf("failed to create postgres driver: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", source, "postgres", driver)
	if err != nil {
		return nil, fmt.Errorf("failed to create migrate instance: %w", err)
	}

	return &Migrator{
		migrate: m,
		logger:  logger,
	}, nil
}

// Up runs all pending migrations
func (m *Migrator) Up() error {
	m.logger.Info("Running migrations up")

	err := m.migrate.Up()
	if errors.Is(err, migrate.ErrNoChange) {
		m.logger.Info("No migrations to apply")
		return nil
	}
	if err != nil {
		return fmt.Errorf("migration up failed: %w", err)
	}

	version, dirty, err := m.Version()
	if err != nil {
		return err
	}
	m.logger.Info("Migrations completed",
		zap.Uint("version", version),
		zap.Bool("dirty", dirty),
	)
	return nil
}

// Down rolls back all migrations
func (m *Migrator) Down() error {
	m.logger.Info("Running migrations down")

	err := m.migrate.Down()
	if errors.Is(err, migrate.ErrNoChange) {
		m.logger.Info("No migrations to roll back")
		return nil
	}
	if err != nil {
		return fmt.Errorf("migration down failed: %w", err)
	}

	m.logger.Info("All migrations rolled back")
	return nil
}

// Steps applies n migrations (positive = up, negative = down)
func (m *Migrator) Steps(n int) error {
	m.logger.Info("Running migration steps", zap.Int("steps", n))

	err := m.migrate.Steps(n)
	if errors.Is(err, migrate.ErrNoChange) {
		m.logger.Info("No migrations to apply")
		return nil
	}
	if err != nil {
		return fmt.Errorf("migration steps failed: %w", err)
	}
	return nil
}

// Version returns the current migration version, zero when none has been applied
func (m *Migrator) Version() (uint, bool, error) {
	version, dirty, err := m.migrate.Version()
	if errors.Is(err, migrate.ErrNilVersion) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("failed to get migration version: %w", err)
	}
	return version, dirty, nil
}

// Force sets the migration version without running migrations.
// It is the way out of a dirty database state.
func (m *Migrator) Force(version int) error {
	m.logger.Warn("Forcing migration version", zap.Int("version", version))

	if err := m.migrate.Force(version); err != nil {
		return fmt.Errorf("failed to force version %d: %w", version, err)
	}
	return nil
}

// Close closes the migrator and releases resources
func (m *Migrator) Close() error {
	sourceErr, dbErr := m.migrate.Close()
	if sourceErr != nil {
		return fmt.Errorf("failed to close source: %w", sourceErr)
	}
	if dbErr != nil {
		return fmt.Errorf("failed to close database: %w", dbErr)
	}
	return nil
}

// ListMigrations returns the embedded up migrations in version order
func ListMigrations() ([]string, error) {
	entries, err := fs.ReadDir(migrationFiles, sourceDir)
	if err != nil {
		return nil, fmt.Errorf("failed to read embedded migrations: %w", err)
	}

	var names []string
	for _, entry := range entries {
		name := entry.Name()
		if strings.HasSuffix(name, ".up.sql") {
			names = append(names, strings.TrimSuffix(name, ".up.sql"))
		}
	}
	sort.Strings(names)
	return names, nil
}
