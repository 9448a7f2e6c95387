package application

import (
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/example/appointment-engine/internal/domain"
	"github.com/example/appointment-engine/internal/persistence"
	"github.com/example/appointment-engine/internal/recurrence"
)

func TestValidationError_Error(t *testing.T) {
	t.Parallel()

	var err *ValidationError
	if err.Error() != "" {
		t.Fatalf("expected empty string for nil error, got %q", err.Error())
	}

	empty := &ValidationError{}
	if got := empty.Error(); got != "validation failed" {
		t.Fatalf("expected generic message for empty error, got %q", got)
	}

	withFields := &ValidationError{FieldErrors: map[string]string{"start": "required", "end": "invalid"}}
	if got := withFields.Error(); got != "validation failed: end, start" {
		t.Fatalf("expected sorted field list, got %q", got)
	}
}

func TestValidationError_AddAndMerge(t *testing.T) {
	t.Parallel()

	base := &ValidationError{}
	base.add("first", "value")
	if got := base.FieldErrors["first"]; got != "value" {
		t.Fatalf("expected add to populate map, got %q", got)
	}

	base.merge(&ValidationError{FieldErrors: map[string]string{"second": "another"}})
	if got := base.FieldErrors["second"]; got != "another" {
		t.Fatalf("expected merge to copy field, got %q", got)
	}

	base.merge(nil)
	if len(base.FieldErrors) != 2 {
		t.Fatalf("expected merge(nil) to be a no-op, got %v", base.FieldErrors)
	}
}

func TestErrorKind(t *testing.T) {
	t.Parallel()

	_, ruleErr := recurrence.ParseRule("FREQ=HOURLY")
	cases := map[string]error{
		"":              nil,
		"not_found":     fmt.Errorf("wrapped: %w", ErrNotFound),
		"conflict":      &ConflictError{},
		"stale":         &StaleError{},
		"invalid_state": &InvalidStateError{ID: "a", Status: domain.StatusCancelled},
		"invalid_rule":  ruleErr,
		"validation":    &ValidationError{},
		"unexpected":    errors.New("boom"),
	}
	for want, err := range cases {
		if got := ErrorKind(err); got != want {
			t.Errorf("ErrorKind(%v) = %q, want %q", err, got, want)
		}
	}
}

func TestInvalidStateErrorMessage(t *testing.T) {
	t.Parallel()

	err := &InvalidStateError{ID: "a1", Status: domain.StatusConfirmed, Requested: domain.StatusPending}
	if !strings.Contains(err.Error(), "CONFIRMED to PENDING") {
		t.Fatalf("unexpected message %q", err.Error())
	}
	if mapped := mapStoreError(persistence.ErrNotFound); !errors.Is(mapped, ErrNotFound) {
		t.Fatalf("expected persistence.ErrNotFound to map to ErrNotFound, got %v", mapped)
	}
}
