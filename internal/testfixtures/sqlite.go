package testfixtures

import (
	"context"
	"io"
	"log/slog"
	"path/filepath"
	"testing"

	"github.com/example/appointment-engine/internal/persistence/sqlite"
	"github.com/example/appointment-engine/internal/persistence/sqlite/migration"
)

// SQLiteHarness is a migrated, seeded SQLite store in a temporary directory.
type SQLiteHarness struct {
	Store *sqlite.Store
	Seed  Seed

	cleanup func()
}

// Close releases resources associated with the harness.
func (h *SQLiteHarness) Close() {
	if h != nil && h.cleanup != nil {
		h.cleanup()
		h.cleanup = nil
	}
}

// NewSQLiteHarness opens a temporary database, migrates it and applies DefaultSeed.
// Close is also registered with tb.Cleanup.
func NewSQLiteHarness(tb testing.TB) *SQLiteHarness {
	tb.Helper()

	path := filepath.Join(tb.TempDir(), "engine.db")
	store, err := sqlite.OpenWithConfig(migration.TempFileTestSQLiteConfig(path))
	if err != nil {
		tb.Fatalf("failed to open storage: %v", err)
	}

	ctx := context.Background()
	if err := store.Migrate(ctx, slog.New(slog.NewTextHandler(io.Discard, nil))); err != nil {
		_ = store.Close()
		tb.Fatalf("failed to migrate storage: %v", err)
	}

	seed := DefaultSeed()
	if err := seed.Apply(ctx, store); err != nil {
		_ = store.Close()
		tb.Fatalf("failed to seed storage: %v", err)
	}

	harness := &SQLiteHarness{
		Store:   store,
		Seed:    seed,
		cleanup: func() { _ = store.Close() },
	}
	tb.Cleanup(harness.Close)
	return harness
}
