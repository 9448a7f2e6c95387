package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/example/appointment-engine/internal/config"
	"github.com/example/appointment-engine/internal/logging"
	"github.com/example/appointment-engine/internal/persistence"
	"github.com/example/appointment-engine/internal/persistence/memory"
	"github.com/example/appointment-engine/internal/persistence/postgres"
	"github.com/example/appointment-engine/internal/persistence/sqlite"
)

type migrator interface {
	Migrate(ctx context.Context, logger *slog.Logger) error
}

// loadConfig reads the --config flag and builds the process logger.
func loadConfig(cmd *cobra.Command) (config.Config, *slog.Logger, io.Closer, error) {
	path, err := cmd.Flags().GetString("config")
	if err != nil {
		return config.Config{}, nil, nil, err
	}
	cfg, err := config.Load(path)
	if err != nil {
		return config.Config{}, nil, nil, err
	}
	logger, closer := logging.New(cfg.Log, cmd.OutOrStdout())
	return cfg, logger, closer, nil
}

// openStore opens the configured backend and applies its schema.
func openStore(ctx context.Context, cfg config.StoreConfig, logger *slog.Logger) (persistence.Store, error) {
	var (
		store persistence.Store
		err   error
	)
	switch cfg.Driver {
	case config.DriverMemory:
		logger.Warn("using in-memory store; bookings are lost on exit")
		return memory.New(), nil
	case config.DriverPostgres:
		store, err = postgres.Open(ctx, cfg.PostgresDSN)
	case config.DriverSQLite, "":
		store, err = sqlite.Open(cfg.SQLitePath)
	default:
		return nil, fmt.Errorf("unknown store driver %q", cfg.Driver)
	}
	if err != nil {
		return nil, fmt.Errorf("open %s store: %w", cfg.Driver, err)
	}

	if m, ok := store.(migrator); ok {
		if err := m.Migrate(ctx, logger); err != nil {
			_ = store.Close()
			return nil, fmt.Errorf("apply migrations: %w", err)
		}
	}
	return store, nil
}

func newMigrateCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply database migrations and exit",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, logger, closer, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			defer closer.Close()

			store, err := openStore(cmd.Context(), cfg.Store, logger)
			if err != nil {
				return err
			}
			logger.Info("migrations applied", "driver", cfg.Store.Driver)
			return store.Close()
		},
	}
}
