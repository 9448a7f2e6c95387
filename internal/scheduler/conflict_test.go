package scheduler

import (
	"testing"
	"time"
)

func TestDetectConflicts(t *testing.T) {
	t.Parallel()

	base := time.Date(2024, time.March, 4, 10, 0, 0, 0, time.UTC)
	existing := []Span{
		{ID: "a", TechnicianID: "tech-1", Start: base.Add(time.Hour), End: base.Add(2 * time.Hour)},
		{ID: "b", TechnicianID: "tech-1", Start: base, End: base.Add(30 * time.Minute)},
		{ID: "c", TechnicianID: "tech-2", Start: base, End: base.Add(2 * time.Hour)},
		{ID: "d", TechnicianID: "tech-1", Start: base.Add(2 * time.Hour), End: base.Add(3 * time.Hour)},
	}

	t.Run("overlapping spans for the same technician conflict in start order", func(t *testing.T) {
		t.Parallel()
		candidate := Span{TechnicianID: "tech-1", Start: base.Add(15 * time.Minute), End: base.Add(90 * time.Minute)}
		conflicts := DetectConflicts(existing, candidate)
		if len(conflicts) != 2 {
			t.Fatalf("expected 2 conflicts, got %d: %+v", len(conflicts), conflicts)
		}
		if conflicts[0].WithID != "b" || conflicts[1].WithID != "a" {
			t.Fatalf("unexpected conflict order: %+v", conflicts)
		}
	})

	t.Run("a moved span does not collide with itself", func(t *testing.T) {
		t.Parallel()
		candidate := Span{ID: "a", TechnicianID: "tech-1", Start: base.Add(70 * time.Minute), End: base.Add(2 * time.Hour)}
		if conflicts := DetectConflicts(existing, candidate); len(conflicts) != 0 {
			t.Fatalf("expected no conflicts, got %+v", conflicts)
		}
	})

	t.Run("touching spans do not conflict", func(t *testing.T) {
		t.Parallel()
		candidate := Span{TechnicianID: "tech-1", Start: base.Add(30 * time.Minute), End: base.Add(time.Hour)}
		if conflicts := DetectConflicts(existing, candidate); len(conflicts) != 0 {
			t.Fatalf("expected no conflicts, got %+v", conflicts)
		}
	})
}
