package postgres

import (
	"context"
	"errors"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/example/appointment-engine/internal/domain"
	"github.com/example/appointment-engine/internal/persistence"
	"github.com/example/appointment-engine/internal/testfixtures"
)

func TestMapError(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name string
		err  error
		want error
	}{
		{name: "no rows", err: pgx.ErrNoRows, want: persistence.ErrNotFound},
		{name: "exclusion", err: &pgconn.PgError{Code: "23P01", ConstraintName: "appointments_no_overlap"}, want: persistence.ErrExclusionViolation},
		{name: "unique", err: &pgconn.PgError{Code: "23505"}, want: persistence.ErrDuplicate},
		{name: "foreign key", err: &pgconn.PgError{Code: "23503"}, want: persistence.ErrConstraintViolation},
		{name: "check", err: fmt.Errorf("wrapped: %w", &pgconn.PgError{Code: "23514"}), want: persistence.ErrConstraintViolation},
		{name: "lock", err: &pgconn.PgError{Code: "55P03"}, want: persistence.ErrLocked},
		{name: "sentinel passes through", err: persistence.ErrVersionMismatch, want: persistence.ErrVersionMismatch},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			assert.ErrorIs(t, mapError(tc.err), tc.want)
		})
	}

	assert.NoError(t, mapError(nil))
	other := &pgconn.PgError{Code: "42P01", Message: "relation does not exist"}
	var pgErr *pgconn.PgError
	assert.True(t, errors.As(mapError(other), &pgErr))
}

// openTestStore connects to ENGINE_TEST_POSTGRES_DSN and resets the schema.
func openTestStore(t *testing.T) *Store {
	t.Helper()

	dsn := os.Getenv("ENGINE_TEST_POSTGRES_DSN")
	if dsn == "" {
		t.Skip("ENGINE_TEST_POSTGRES_DSN is not set")
	}

	ctx := context.Background()
	store, err := Open(ctx, dsn)
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	require.NoError(t, store.Migrate(ctx, nil))
	_, err = store.pool.Exec(ctx, `TRUNCATE appointments, blocks, clients, technician_service_overrides, services, working_schedules, technicians CASCADE`)
	require.NoError(t, err)
	require.NoError(t, testfixtures.DefaultSeed().Apply(ctx, store))
	return store
}

func TestStore_AppointmentGuards(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	first := testfixtures.NewAppointment(testfixtures.WithAppointmentID("pg-1"), testfixtures.WithSpan(testfixtures.At(10, 0), 60))
	inserted, err := store.InsertAppointment(ctx, first)
	require.NoError(t, err)
	assert.Equal(t, int64(1), inserted.Version)

	overlapping := testfixtures.NewAppointment(testfixtures.WithAppointmentID("pg-2"), testfixtures.WithSpan(testfixtures.At(10, 30), 60))
	_, err = store.InsertAppointment(ctx, overlapping)
	assert.ErrorIs(t, err, persistence.ErrExclusionViolation)

	adjacent := testfixtures.NewAppointment(testfixtures.WithAppointmentID("pg-3"), testfixtures.WithSpan(testfixtures.At(11, 0), 60))
	_, err = store.InsertAppointment(ctx, adjacent)
	require.NoError(t, err, "half-open ranges touching at 11:00 do not overlap")

	_, err = store.UpdateAppointment(ctx, inserted, 7)
	assert.ErrorIs(t, err, persistence.ErrVersionMismatch)

	inserted.Status = domain.StatusCancelled
	cancelled, err := store.UpdateAppointment(ctx, inserted, 1)
	require.NoError(t, err)
	assert.Equal(t, int64(2), cancelled.Version)

	_, err = store.InsertAppointment(ctx, overlapping)
	require.NoError(t, err, "cancelled appointments leave the exclusion constraint")

	active, err := store.FetchActiveAppointments(ctx, "tech-1", testfixtures.At(0, 0), testfixtures.At(23, 0))
	require.NoError(t, err)
	require.Len(t, active, 2)
	assert.Equal(t, "pg-2", active[0].ID)

	_, err = store.GetAppointment(ctx, "missing")
	assert.ErrorIs(t, err, persistence.ErrNotFound)
}

func TestStore_BlockInstances(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	series := testfixtures.NewBlock(
		testfixtures.WithBlockID("pg-lunch"),
		testfixtures.WithBlockSpan(testfixtures.At(12, 0), testfixtures.At(13, 0)),
		testfixtures.WithRule("FREQ=DAILY;INTERVAL=1"),
	)
	require.NoError(t, store.SaveBlock(ctx, series))

	override := domain.Block{ID: "pg-lunch-moved", Start: testfixtures.At(14, 0).AddDate(0, 0, 1), End: testfixtures.At(15, 0).AddDate(0, 0, 1), IsActive: true}
	require.NoError(t, store.ModifyBlockInstance(ctx, "pg-lunch", "2024-03-05", override))
	require.NoError(t, store.DeleteBlockInstance(ctx, "pg-lunch", "2024-03-06"))

	stored, err := store.GetBlock(ctx, "pg-lunch")
	require.NoError(t, err)
	require.Len(t, stored.Exceptions, 2)

	modified, err := store.FetchModifiedInstances(ctx, "pg-lunch", testfixtures.At(0, 0), testfixtures.At(0, 0).Add(72*time.Hour))
	require.NoError(t, err)
	require.Len(t, modified, 1)
	require.NotNil(t, modified[0].ParentBlockID)
	assert.Equal(t, "pg-lunch", *modified[0].ParentBlockID)

	active, err := store.FetchActiveBlocks(ctx, "tech-1")
	require.NoError(t, err)
	require.Len(t, active, 1, "override rows are not listed as active blocks")
}
