// Package sqlite implements the persistence contracts on modernc.org/sqlite.
//
// Overlapping bookings are rejected inside the database by triggers, so the
// guarantee holds for every writer that shares the file, not just this process.
package sqlite

import (
	"context"
	"embed"
	"fmt"
	"log/slog"
	"time"

	"github.com/example/appointment-engine/internal/persistence"
	"github.com/example/appointment-engine/internal/persistence/sqlite/migration"
)

//go:embed migrations/*.sql
var migrationFiles embed.FS

// timeLayout is fixed width so stored timestamps compare correctly as text.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(value string) (time.Time, error) {
	t, err := time.Parse(timeLayout, value)
	if err != nil {
		return time.Time{}, fmt.Errorf("sqlite: parse timestamp %q: %w", value, err)
	}
	return t, nil
}

// Store bundles the SQLite repositories over one connection pool.
type Store struct {
	*AppointmentRepository
	*ScheduleRepository
	*BlockRepository
	*ClientRepository

	pool *ConnectionPool
}

var _ persistence.Store = (*Store)(nil)

// Open creates a Store for the database at path using DefaultSQLiteConfig.
func Open(path string) (*Store, error) {
	return OpenWithConfig(migration.DefaultSQLiteConfig(path))
}

// OpenWithConfig creates a Store from an explicit configuration.
func OpenWithConfig(config migration.SQLiteConfig) (*Store, error) {
	pool, err := NewConnectionPool(config)
	if err != nil {
		return nil, err
	}
	return &Store{
		AppointmentRepository: NewAppointmentRepository(pool),
		ScheduleRepository:    NewScheduleRepository(pool),
		BlockRepository:       NewBlockRepository(pool),
		ClientRepository:      NewClientRepository(pool),
		pool:                  pool,
	}, nil
}

// Migrate applies the embedded schema migrations.
func (s *Store) Migrate(ctx context.Context, logger *slog.Logger) error {
	manager := migration.NewMigrationManager(
		migration.NewFileScanner(migrationFiles),
		migration.NewSQLiteExecutor(s.pool.DB()),
		"migrations",
		logger,
	)
	return manager.RunMigrations(ctx)
}

// Pool exposes the connection pool.
func (s *Store) Pool() *ConnectionPool {
	return s.pool
}

// Close releases the connection pool.
func (s *Store) Close() error {
	return s.pool.Close()
}
