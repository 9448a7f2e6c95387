package application

import (
	"time"

	"github.com/example/appointment-engine/internal/availability"
	"github.com/example/appointment-engine/internal/domain"
)

// CreateAppointmentParams describes a new booking. When End is zero it is
// derived from the service duration, honoring the technician's override.
type CreateAppointmentParams struct {
	TechnicianID string
	LocationID   string
	ServiceID    string
	ClientID     string
	Start        time.Time
	End          time.Time
	// Status defaults to PENDING. Only PENDING and CONFIRMED are accepted.
	Status domain.Status
	Notes  string
}

// UpdateAppointmentParams describes a partial change. Nil fields are left unchanged.
type UpdateAppointmentParams struct {
	ID string
	// ExpectedVersion is the version the caller last read. When nil the
	// version fetched by the service guards the write.
	ExpectedVersion *int64
	TechnicianID    *string
	Start           *time.Time
	End             *time.Time
	Status          *domain.Status
	Notes           *string
	// AdminCorrection permits edits of terminal appointments and backward status moves.
	AdminCorrection bool
}

// SlotQuery asks for the detailed slot list of one technician on one date.
type SlotQuery struct {
	TechnicianID string
	ServiceID    string
	Date         time.Time
}

// DaysQuery asks which dates in [From, To] have at least one bookable slot.
// TechnicianIDs restricts the search; when empty every technician of LocationID is tried.
type DaysQuery struct {
	LocationID    string
	TechnicianIDs []string
	ServiceID     string
	From          time.Time
	To            time.Time
}

// DayAvailability is the day-level answer for one date.
type DayAvailability = availability.DayResult
