package main

import (
	"database/sql"
	"fmt"
	"io"
	"strconv"

	"github.com/erp/reconciliation/internal/infrastructure/config"
	"github.com/erp/reconciliation/internal/infrastructure/logger"
	"github.com/erp/reconciliation/internal/infrastructure/migration"
	_ "github.com/lib/pq"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

type cliOptions struct {
	logLevel string
}

func newRootCmd() *cobra.Command {
	opts := &cliOptions{}
	root := &cobra.Command{
		Use:           "migrate",
		Short:         "Manage the reconciliation database schema",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&opts.logLevel, "log-level", "info", "log level (debug, info, warn, error)")

	root.AddCommand(
		newListCmd(),
		newDBCmd(opts, "up", "Apply all pending migrations", cobra.NoArgs, func(m *migration.Migrator, _ *zap.Logger, _ []string) error {
			return m.Up()
		}),
		newDBCmd(opts, "down", "Roll back all migrations", cobra.NoArgs, func(m *migration.Migrator, _ *zap.Logger, _ []string) error {
			return m.Down()
		}),
		newDBCmd(opts, "steps <n>", "Apply n migrations, or roll back when n is negative", cobra.ExactArgs(1), func(m *migration.Migrator, _ *zap.Logger, args []string) error {
			n, err := strconv.Atoi(args[0])
			if err != nil {
				return fmt.Errorf("invalid step count %q", args[0])
			}
			return m.Steps(n)
		}),
		newDBCmd(opts, "force <version>", "Set the version without running migrations and clear the dirty flag", cobra.ExactArgs(1), func(m *migration.Migrator, _ *zap.Logger, args []string) error {
			v, err := strconv.Atoi(args[0])
			if err != nil {
				return fmt.Errorf("invalid version %q", args[0])
			}
			return m.Force(v)
		}),
		newDBCmd(opts, "version", "Print the applied migration version", cobra.NoArgs, func(m *migration.Migrator, log *zap.Logger, _ []string) error {
			version, dirty, err := m.Version()
			if err != nil {
				return err
			}
			if version == 0 {
				log.Info("No migrations applied")
				return nil
			}
			log.Info("Current migration version", zap.Uint("version", version), zap.Bool("dirty", dirty))
			return nil
		}),
	)
	return root
}

func newListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List the embedded migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return printMigrations(cmd.OutOrStdout())
		},
	}
}

func printMigrations(w io.Writer) error {
	names, err := migration.ListMigrations()
	if err != nil {
		return err
	}
	if len(names) == 0 {
		_, err = fmt.Fprintln(w, "No migrations found")
		return err
	}
	for _, name := range names {
		if _, err := fmt.Fprintln(w, "  -", name); err != nil {
			return err
		}
	}
	return nil
}

type migratorFunc func(m *migration.Migrator, log *zap.Logger, args []string) error

// newDBCmd builds a subcommand that opens the configured database and runs fn
// against a migrator.
func newDBCmd(opts *cliOptions, use, short string, args cobra.PositionalArgs, fn migratorFunc) *cobra.Command {
	return &cobra.Command{
		Use:   use,
		Short: short,
		Args:  args,
		RunE: func(cmd *cobra.Command, positional []string) error {
			log, err := logger.New(&logger.Config{
				Level:      opts.logLevel,
				Format:     "console",
				Output:     "stdout",
				TimeFormat: "2006-01-02 15:04:05",
			})
			if err != nil {
				return fmt.Errorf("failed to initialize logger: %w", err)
			}
			defer func() { _ = logger.Sync(log) }()

			cfg, err := config.Load()
			if err != nil {
				return fmt.Errorf("failed to load configuration: %w", err)
			}

			db, err := sql.Open("postgres", cfg.Database.DSN())
			if err != nil {
				return fmt.Errorf("failed to open database: %w", err)
			}
			defer db.Close()
			if err := db.PingContext(cmd.Context()); err != nil {
				return fmt.Errorf("failed to ping database: %w", err)
			}

			m, err := migration.New(db, log)
			if err != nil {
				return fmt.Errorf("failed to create migrator: %w", err)
			}
			defer m.Close()

			log.Info("Running migration command", zap.String("command", cmd.Name()))
			return fn(m, log, positional)
		},
	}
}
