// Package dispatch delivers committed booking changes to notification and
// billing collaborators, retrying failed deliveries in the background.
package dispatch

import (
	"time"

	"github.com/example/appointment-engine/internal/domain"
)

// Event is the payload published for a booking change.
type Event struct {
	Type          domain.BookingEvent `json:"type"`
	AppointmentID string              `json:"appointment_id"`
	TechnicianID  string              `json:"technician_id"`
	ClientID      string              `json:"client_id,omitempty"`
	Start         time.Time           `json:"start"`
	End           time.Time           `json:"end"`
	Status        domain.Status       `json:"status"`
	// PreviousStart and PreviousEnd are set on moves.
	PreviousStart *time.Time `json:"previous_start,omitempty"`
	PreviousEnd   *time.Time `json:"previous_end,omitempty"`
	OccurredAt    time.Time  `json:"occurred_at"`
}

// BillingRecord asks billing to charge or refund an appointment.
type BillingRecord struct {
	AppointmentID string                `json:"appointment_id"`
	ClientID      string                `json:"client_id,omitempty"`
	ServiceID     string                `json:"service_id"`
	Outcome       domain.BillingOutcome `json:"outcome"`
	OccurredAt    time.Time             `json:"occurred_at"`
}

func newEvent(kind domain.BookingEvent, appointment domain.Appointment, at time.Time) Event {
	return Event{
		Type:          kind,
		AppointmentID: appointment.ID,
		TechnicianID:  appointment.TechnicianID,
		ClientID:      appointment.ClientID,
		Start:         appointment.Start,
		End:           appointment.End,
		Status:        appointment.Status,
		OccurredAt:    at,
	}
}
