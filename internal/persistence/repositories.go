// Package persistence defines the store contracts shared by the SQLite and Postgres backends.
package persistence

import (
	"context"
	"time"

	"github.com/example/appointment-engine/internal/domain"
)

// AppointmentRepository stores appointments. Implementations must reject any
// insert or update that makes two blocking appointments of one technician overlap
// with ErrExclusionViolation.
type AppointmentRepository interface {
	FetchActiveAppointments(ctx context.Context, technicianID string, from, to time.Time) ([]domain.Appointment, error)
	GetAppointment(ctx context.Context, id string) (domain.Appointment, error)
	InsertAppointment(ctx context.Context, appointment domain.Appointment) (domain.Appointment, error)
	// UpdateAppointment writes the row only when its stored version equals
	// expectedVersion and returns it with the version advanced by one.
	UpdateAppointment(ctx context.Context, appointment domain.Appointment, expectedVersion int64) (domain.Appointment, error)
}

// ScheduleRepository stores technicians, their weekly hours and service catalog.
type ScheduleRepository interface {
	SaveTechnician(ctx context.Context, technician domain.Technician) error
	GetTechnician(ctx context.Context, id string) (domain.Technician, error)
	ListTechnicians(ctx context.Context, locationID string) ([]domain.Technician, error)
	SaveWorkingSchedule(ctx context.Context, schedule domain.WorkingSchedule) error
	// FetchWorkingSchedule returns nil without error when no row exists for the weekday.
	FetchWorkingSchedule(ctx context.Context, technicianID string, weekday time.Weekday) (*domain.WorkingSchedule, error)
	SaveService(ctx context.Context, service domain.Service) error
	FetchService(ctx context.Context, id string) (domain.Service, error)
	SaveServiceOverride(ctx context.Context, technicianID, serviceID string, minutes int) error
	// FetchServiceOverrideDuration returns nil without error when the technician uses the default.
	FetchServiceOverrideDuration(ctx context.Context, technicianID, serviceID string) (*int, error)
}

// BlockRepository stores blocks, recurring series and their override rows.
type BlockRepository interface {
	SaveBlock(ctx context.Context, block domain.Block) error
	GetBlock(ctx context.Context, id string) (domain.Block, error)
	// FetchActiveBlocks returns single blocks and series rows, never overrides.
	FetchActiveBlocks(ctx context.Context, technicianID string) ([]domain.Block, error)
	FetchModifiedInstances(ctx context.Context, seriesID string, from, to time.Time) ([]domain.Block, error)
	// DeleteBlockInstance records a deleted exception on the series for date.
	DeleteBlockInstance(ctx context.Context, seriesID, date string) error
	// ModifyBlockInstance stores override as the replacement for the series instance on date.
	ModifyBlockInstance(ctx context.Context, seriesID, date string, override domain.Block) error
}

// ClientRepository stores client display data.
type ClientRepository interface {
	SaveClient(ctx context.Context, client domain.Client) error
	GetClient(ctx context.Context, id string) (domain.Client, error)
}

// Store is the full surface of a backend.
type Store interface {
	AppointmentRepository
	ScheduleRepository
	BlockRepository
	ClientRepository
	Close() error
}
