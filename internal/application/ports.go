package application

import (
	"context"
	"time"

	"github.com/example/appointment-engine/internal/domain"
)

// AppointmentStore captures the appointment persistence needed by the booking service.
// InsertAppointment and UpdateAppointment must reject overlapping blocking rows
// with persistence.ErrExclusionViolation, and UpdateAppointment must report a
// version mismatch with persistence.ErrVersionMismatch.
type AppointmentStore interface {
	FetchActiveAppointments(ctx context.Context, technicianID string, from, to time.Time) ([]domain.Appointment, error)
	GetAppointment(ctx context.Context, id string) (domain.Appointment, error)
	InsertAppointment(ctx context.Context, appointment domain.Appointment) (domain.Appointment, error)
	UpdateAppointment(ctx context.Context, appointment domain.Appointment, expectedVersion int64) (domain.Appointment, error)
}

// ScheduleStore exposes technician hours and service catalog lookups.
type ScheduleStore interface {
	FetchWorkingSchedule(ctx context.Context, technicianID string, weekday time.Weekday) (*domain.WorkingSchedule, error)
	FetchServiceOverrideDuration(ctx context.Context, technicianID, serviceID string) (*int, error)
	FetchService(ctx context.Context, id string) (domain.Service, error)
	ListTechnicians(ctx context.Context, locationID string) ([]domain.Technician, error)
}

// BlockStore exposes series rows and their overrides.
type BlockStore interface {
	FetchActiveBlocks(ctx context.Context, technicianID string) ([]domain.Block, error)
	FetchModifiedInstances(ctx context.Context, seriesID string, from, to time.Time) ([]domain.Block, error)
}

// ClientDirectory resolves the label shown for a client in conflict messages.
type ClientDirectory interface {
	ClientLabel(ctx context.Context, clientID string) (string, error)
}

// Dispatcher receives committed booking changes. Implementations must not
// block the caller on slow collaborators.
type Dispatcher interface {
	AppointmentCreated(ctx context.Context, appointment domain.Appointment)
	AppointmentMoved(ctx context.Context, previous, current domain.Appointment)
	AppointmentCancelled(ctx context.Context, appointment domain.Appointment)
	BillingOutcome(ctx context.Context, appointment domain.Appointment, outcome domain.BillingOutcome)
}

// Metrics records service outcomes.
type Metrics interface {
	BookingOperation(operation, result string)
	AvailabilityObserved(query string, elapsed time.Duration)
}

type noopDispatcher struct{}

func (noopDispatcher) AppointmentCreated(context.Context, domain.Appointment) {}

func (noopDispatcher) AppointmentMoved(context.Context, domain.Appointment, domain.Appointment) {}

func (noopDispatcher) AppointmentCancelled(context.Context, domain.Appointment) {}

func (noopDispatcher) BillingOutcome(context.Context, domain.Appointment, domain.BillingOutcome) {}

type noopMetrics struct{}

func (noopMetrics) BookingOperation(string, string) {}

func (noopMetrics) AvailabilityObserved(string, time.Duration) {}
