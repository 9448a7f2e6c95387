package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/example/appointment-engine/internal/domain"
	"github.com/example/appointment-engine/internal/persistence"
)

func TestStorage_AppointmentExclusionAndVersion(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := New()
	start := time.Date(2024, time.March, 4, 10, 0, 0, 0, time.UTC)

	first, err := store.InsertAppointment(ctx, domain.Appointment{ID: "a1", TechnicianID: "t1", Start: start, End: start.Add(90 * time.Minute), Status: domain.StatusConfirmed})
	if err != nil {
		t.Fatalf("InsertAppointment: %v", err)
	}
	if first.Version != 1 {
		t.Fatalf("expected version 1, got %d", first.Version)
	}

	_, err = store.InsertAppointment(ctx, domain.Appointment{ID: "a2", TechnicianID: "t1", Start: start.Add(30 * time.Minute), End: start.Add(2 * time.Hour), Status: domain.StatusPending})
	if !errors.Is(err, persistence.ErrExclusionViolation) {
		t.Fatalf("expected ErrExclusionViolation, got %v", err)
	}

	if _, err := store.InsertAppointment(ctx, domain.Appointment{ID: "a3", TechnicianID: "t1", Start: start.Add(90 * time.Minute), End: start.Add(2 * time.Hour), Status: domain.StatusPending}); err != nil {
		t.Fatalf("back-to-back appointment should insert: %v", err)
	}

	moved := first
	moved.Notes = "moved"
	updated, err := store.UpdateAppointment(ctx, moved, 1)
	if err != nil {
		t.Fatalf("UpdateAppointment: %v", err)
	}
	if updated.Version != 2 {
		t.Fatalf("expected version 2, got %d", updated.Version)
	}
	if _, err := store.UpdateAppointment(ctx, moved, 1); !errors.Is(err, persistence.ErrVersionMismatch) {
		t.Fatalf("expected ErrVersionMismatch, got %v", err)
	}
	if _, err := store.UpdateAppointment(ctx, domain.Appointment{ID: "missing"}, 1); !errors.Is(err, persistence.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}

	active, err := store.FetchActiveAppointments(ctx, "t1", start, start.Add(3*time.Hour))
	if err != nil {
		t.Fatalf("FetchActiveAppointments: %v", err)
	}
	if len(active) != 2 || active[0].ID != "a1" {
		t.Fatalf("unexpected active appointments: %+v", active)
	}
}

func TestStorage_BlockInstances(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := New()
	start := time.Date(2025, time.January, 7, 12, 0, 0, 0, time.UTC)
	series := domain.Block{ID: "lunch", TechnicianID: "t1", Type: domain.BlockPersonal, Start: start, End: start.Add(time.Hour), RecurrenceRule: "FREQ=WEEKLY;INTERVAL=1", IsActive: true}
	if err := store.SaveBlock(ctx, series); err != nil {
		t.Fatalf("SaveBlock: %v", err)
	}

	override := domain.Block{ID: "lunch-14", Start: start.AddDate(0, 0, 7).Add(2 * time.Hour), End: start.AddDate(0, 0, 7).Add(3 * time.Hour), IsActive: true}
	if err := store.ModifyBlockInstance(ctx, "lunch", "2025-01-14", override); err != nil {
		t.Fatalf("ModifyBlockInstance: %v", err)
	}
	if err := store.DeleteBlockInstance(ctx, "lunch", "2025-01-21"); err != nil {
		t.Fatalf("DeleteBlockInstance: %v", err)
	}

	stored, err := store.GetBlock(ctx, "lunch")
	if err != nil {
		t.Fatalf("GetBlock: %v", err)
	}
	if len(stored.Exceptions) != 2 {
		t.Fatalf("expected two exceptions, got %+v", stored.Exceptions)
	}

	active, err := store.FetchActiveBlocks(ctx, "t1")
	if err != nil {
		t.Fatalf("FetchActiveBlocks: %v", err)
	}
	if len(active) != 1 || active[0].ID != "lunch" {
		t.Fatalf("overrides must not be listed as active blocks: %+v", active)
	}

	instances, err := store.FetchModifiedInstances(ctx, "lunch", start, start.AddDate(0, 1, 0))
	if err != nil {
		t.Fatalf("FetchModifiedInstances: %v", err)
	}
	if len(instances) != 1 || instances[0].TechnicianID != "t1" {
		t.Fatalf("unexpected overrides: %+v", instances)
	}

	// Deleting a modified date removes its override row.
	if err := store.DeleteBlockInstance(ctx, "lunch", "2025-01-14"); err != nil {
		t.Fatalf("DeleteBlockInstance: %v", err)
	}
	if _, err := store.GetBlock(ctx, "lunch-14"); !errors.Is(err, persistence.ErrNotFound) {
		t.Fatalf("expected override to be removed, got %v", err)
	}

	if err := store.DeleteBlockInstance(ctx, "lunch", "14/01/2025"); !errors.Is(err, persistence.ErrConstraintViolation) {
		t.Fatalf("expected ErrConstraintViolation for a bad date, got %v", err)
	}
}
