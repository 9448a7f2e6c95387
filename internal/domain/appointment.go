package domain

import (
	"strings"
	"time"
)

// Status is the lifecycle state of an appointment.
type Status string

const (
	StatusPending    Status = "PENDING"
	StatusConfirmed  Status = "CONFIRMED"
	StatusCheckedIn  Status = "CHECKED_IN"
	StatusInProgress Status = "IN_PROGRESS"
	StatusCompleted  Status = "COMPLETED"
	StatusCancelled  Status = "CANCELLED"
	StatusNoShow     Status = "NO_SHOW"
)

// progression orders the non-terminal states. Transitions move forward only.
var progression = map[Status]int{
	StatusPending:    0,
	StatusConfirmed:  1,
	StatusCheckedIn:  2,
	StatusInProgress: 3,
}

// ParseStatus normalizes a textual status. The boolean is false for unknown values.
func ParseStatus(value string) (Status, bool) {
	status := Status(strings.ToUpper(strings.TrimSpace(value)))
	switch status {
	case StatusPending, StatusConfirmed, StatusCheckedIn, StatusInProgress,
		StatusCompleted, StatusCancelled, StatusNoShow:
		return status, true
	}
	return "", false
}

// Valid reports whether the status is one of the known values.
func (s Status) Valid() bool {
	_, ok := ParseStatus(string(s))
	return ok
}

// Terminal reports whether no further lifecycle change is allowed.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusCancelled || s == StatusNoShow
}

// Blocking reports whether an appointment in this state occupies its slot.
func (s Status) Blocking() bool {
	return s != StatusCancelled && s != StatusNoShow
}

// CanTransition reports whether moving from s to next is a legal change.
// COMPLETED is never stored and therefore never a valid target.
func (s Status) CanTransition(next Status) bool {
	if s == next {
		return true
	}
	if s.Terminal() {
		return false
	}
	switch next {
	case StatusCancelled, StatusNoShow:
		return true
	case StatusCompleted:
		return false
	}
	from, okFrom := progression[s]
	to, okTo := progression[next]
	return okFrom && okTo && to > from
}

// Appointment is a client booking for one technician.
type Appointment struct {
	ID           string
	TechnicianID string
	LocationID   string
	ServiceID    string
	ClientID     string
	Start        time.Time
	End          time.Time
	Status       Status
	Notes        string
	Version      int64
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// EffectiveStatus derives COMPLETED for appointments whose end has passed.
func (a Appointment) EffectiveStatus(now time.Time) Status {
	if a.Status.Blocking() && now.After(a.End) {
		return StatusCompleted
	}
	return a.Status
}

// WithEffectiveStatus returns a copy carrying the derived status.
func (a Appointment) WithEffectiveStatus(now time.Time) Appointment {
	a.Status = a.EffectiveStatus(now)
	return a
}
