package application

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/example/appointment-engine/internal/domain"
	"github.com/example/appointment-engine/internal/persistence"
)

// ErrNotFound is returned when the requested appointment, service or block does not exist.
var ErrNotFound = errors.New("application: not found")

// ValidationError captures field level validation issues that callers can surface to users.
type ValidationError struct {
	FieldErrors map[string]string
}

// Error implements the error interface.
func (v *ValidationError) Error() string {
	if v == nil {
		return ""
	}
	if len(v.FieldErrors) == 0 {
		return "validation failed"
	}
	fields := make([]string, 0, len(v.FieldErrors))
	for field := range v.FieldErrors {
		fields = append(fields, field)
	}
	sort.Strings(fields)
	return "validation failed: " + strings.Join(fields, ", ")
}

// HasErrors reports whether any field level issues were recorded.
func (v *ValidationError) HasErrors() bool {
	return v != nil && len(v.FieldErrors) > 0
}

// add records a field level validation error.
func (v *ValidationError) add(field, message string) {
	if v.FieldErrors == nil {
		v.FieldErrors = make(map[string]string)
	}
	v.FieldErrors[field] = message
}

// merge copies entries from another validation error into the receiver.
func (v *ValidationError) merge(other *ValidationError) {
	if other == nil || len(other.FieldErrors) == 0 {
		return
	}
	for field, msg := range other.FieldErrors {
		v.add(field, msg)
	}
}

// ConflictInfo describes the existing appointment a requested interval collides with.
type ConflictInfo struct {
	AppointmentID string
	Start         time.Time
	End           time.Time
	ClientLabel   string
}

// ConflictError reports a double booking. It has the same shape whether the
// pre-check or the storage guard detected it.
type ConflictError struct {
	ConflictInfo
}

// Error implements the error interface.
func (e *ConflictError) Error() string {
	if e.AppointmentID == "" {
		return "application: booking conflict"
	}
	return fmt.Sprintf("application: booking conflicts with appointment %s (%s - %s)",
		e.AppointmentID, e.Start.Format(time.RFC3339), e.End.Format(time.RFC3339))
}

// StaleError reports that the appointment changed since the caller read it.
// Current is the latest stored snapshot.
type StaleError struct {
	Current domain.Appointment
}

// Error implements the error interface.
func (e *StaleError) Error() string {
	return fmt.Sprintf("application: appointment %s was modified concurrently (current version %d)", e.Current.ID, e.Current.Version)
}

// InvalidStateError reports a mutation the appointment's lifecycle does not allow.
type InvalidStateError struct {
	ID        string
	Status    domain.Status
	Requested domain.Status
}

// Error implements the error interface.
func (e *InvalidStateError) Error() string {
	if e.Requested != "" && e.Requested != e.Status {
		return fmt.Sprintf("application: appointment %s cannot move from %s to %s", e.ID, e.Status, e.Requested)
	}
	return fmt.Sprintf("application: appointment %s is %s and cannot be modified", e.ID, e.Status)
}

func mapStoreError(err error) error {
	if errors.Is(err, persistence.ErrNotFound) {
		return ErrNotFound
	}
	return err
}
