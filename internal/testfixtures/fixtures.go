// Package testfixtures provides deterministic clocks, identifiers and seed data
// for package tests.
package testfixtures

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/example/appointment-engine/internal/domain"
	"github.com/example/appointment-engine/internal/persistence"
)

var (
	appointmentCounter uint64
	blockCounter       uint64
)

// referenceTime is a Monday morning before opening.
var referenceTime = time.Date(2024, time.March, 4, 8, 0, 0, 0, time.UTC)

// ReferenceTime returns the canonical baseline timestamp used by fixtures.
func ReferenceTime() time.Time {
	return referenceTime
}

// At returns the reference date at hour:minute UTC.
func At(hour, minute int) time.Time {
	y, m, d := referenceTime.Date()
	return time.Date(y, m, d, hour, minute, 0, 0, time.UTC)
}

// ------------------------- Appointment fixtures -------------------------

// AppointmentOption configures a generated appointment.
type AppointmentOption func(*domain.Appointment)

// NewAppointment returns a confirmed one-hour appointment for tech-1 at 10:00 on the reference date.
func NewAppointment(opts ...AppointmentOption) domain.Appointment {
	idx := atomic.AddUint64(&appointmentCounter, 1)
	appointment := domain.Appointment{
		ID:           fmt.Sprintf("appt-%03d", idx),
		TechnicianID: "tech-1",
		LocationID:   "loc-1",
		ServiceID:    "svc-cut",
		ClientID:     "client-1",
		Start:        At(10, 0),
		End:          At(11, 0),
		Status:       domain.StatusConfirmed,
		Version:      1,
	}
	for _, opt := range opts {
		opt(&appointment)
	}
	return appointment
}

// WithAppointmentID overrides the generated ID.
func WithAppointmentID(id string) AppointmentOption {
	return func(a *domain.Appointment) { a.ID = id }
}

// WithTechnician assigns the appointment to technicianID.
func WithTechnician(technicianID string) AppointmentOption {
	return func(a *domain.Appointment) { a.TechnicianID = technicianID }
}

// WithSpan sets start and a duration in minutes.
func WithSpan(start time.Time, minutes int) AppointmentOption {
	return func(a *domain.Appointment) {
		a.Start = start
		a.End = start.Add(time.Duration(minutes) * time.Minute)
	}
}

// WithStatus sets the stored status.
func WithStatus(status domain.Status) AppointmentOption {
	return func(a *domain.Appointment) { a.Status = status }
}

// WithVersion sets the stored version.
func WithVersion(version int64) AppointmentOption {
	return func(a *domain.Appointment) { a.Version = version }
}

// WithClient sets the client.
func WithClient(clientID string) AppointmentOption {
	return func(a *domain.Appointment) { a.ClientID = clientID }
}

// ---------------------------- Block fixtures ----------------------------

// BlockOption configures a generated block.
type BlockOption func(*domain.Block)

// NewBlock returns an active single PERSONAL block for tech-1 from 12:00 to 13:00 on the reference date.
func NewBlock(opts ...BlockOption) domain.Block {
	idx := atomic.AddUint64(&blockCounter, 1)
	block := domain.Block{
		ID:           fmt.Sprintf("block-%03d", idx),
		TechnicianID: "tech-1",
		Title:        fmt.Sprintf("Block %03d", idx),
		Type:         domain.BlockPersonal,
		Start:        At(12, 0),
		End:          At(13, 0),
		IsActive:     true,
	}
	for _, opt := range opts {
		opt(&block)
	}
	return block
}

// WithBlockID overrides the generated ID.
func WithBlockID(id string) BlockOption {
	return func(b *domain.Block) { b.ID = id }
}

// WithBlockSpan sets the block's first occurrence.
func WithBlockSpan(start, end time.Time) BlockOption {
	return func(b *domain.Block) {
		b.Start = start
		b.End = end
	}
}

// WithRule makes the block a recurring series.
func WithRule(rule string) BlockOption {
	return func(b *domain.Block) { b.RecurrenceRule = rule }
}

// WithException appends an exception to the series.
func WithException(date string, kind domain.ExceptionType, modifiedBlockID string) BlockOption {
	return func(b *domain.Block) {
		exc := domain.BlockException{Date: date, Type: kind}
		if modifiedBlockID != "" {
			id := modifiedBlockID
			exc.ModifiedBlockID = &id
		}
		b.Exceptions = append(b.Exceptions, exc)
	}
}

// WithParent marks the block as an override of seriesID.
func WithParent(seriesID string) BlockOption {
	return func(b *domain.Block) {
		parent := seriesID
		b.ParentBlockID = &parent
	}
}

// Inactive deactivates the block.
func Inactive() BlockOption {
	return func(b *domain.Block) { b.IsActive = false }
}

// ------------------------------ Seed data ------------------------------

// Seed writes a location with two technicians, a service catalog and
// Monday to Friday 09:00-19:00 hours. Weekends have no schedule rows.
type Seed struct {
	LocationID  string
	Technicians []domain.Technician
	Services    []domain.Service
	Clients     []domain.Client
}

// DefaultSeed returns the standard seed data.
func DefaultSeed() Seed {
	return Seed{
		LocationID: "loc-1",
		Technicians: []domain.Technician{
			{ID: "tech-1", LocationID: "loc-1", DisplayName: "Ana"},
			{ID: "tech-2", LocationID: "loc-1", DisplayName: "Ben"},
		},
		Services: []domain.Service{
			{ID: "svc-cut", Name: "Haircut", DurationMinutes: 60},
			{ID: "svc-color", Name: "Color", DurationMinutes: 90, BufferMinutes: 15},
		},
		Clients: []domain.Client{
			{ID: "client-1", DisplayName: "Jo Client"},
			{ID: "client-2", DisplayName: "Sam Client"},
		},
	}
}

// Apply stores the seed through store.
func (s Seed) Apply(ctx context.Context, store persistence.Store) error {
	for _, technician := range s.Technicians {
		if err := store.SaveTechnician(ctx, technician); err != nil {
			return fmt.Errorf("seed technician %s: %w", technician.ID, err)
		}
		for day := time.Monday; day <= time.Friday; day++ {
			schedule := domain.WorkingSchedule{
				TechnicianID: technician.ID,
				DayOfWeek:    day,
				IsWorking:    true,
				StartTime:    "09:00",
				EndTime:      "19:00",
			}
			if err := store.SaveWorkingSchedule(ctx, schedule); err != nil {
				return fmt.Errorf("seed schedule %s/%s: %w", technician.ID, day, err)
			}
		}
	}
	for _, service := range s.Services {
		if err := store.SaveService(ctx, service); err != nil {
			return fmt.Errorf("seed service %s: %w", service.ID, err)
		}
	}
	for _, client := range s.Clients {
		if err := store.SaveClient(ctx, client); err != nil {
			return fmt.Errorf("seed client %s: %w", client.ID, err)
		}
	}
	return nil
}
