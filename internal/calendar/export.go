// Package calendar renders a technician's bookings and blocks as an iCalendar feed.
package calendar

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	ical "github.com/arran4/golang-ical"

	"github.com/example/appointment-engine/internal/domain"
	"github.com/example/appointment-engine/internal/recurrence"
)

// ProductID identifies the feed producer.
const ProductID = "-//appointment-engine//calendar export//EN"

// MaxRange is the widest window Export accepts.
const MaxRange = 366 * 24 * time.Hour

// ErrInvalidRange is returned when the export window is empty or too wide.
var ErrInvalidRange = errors.New("calendar: invalid export range")

// AppointmentSource lists the appointments shown in the feed.
type AppointmentSource interface {
	FetchActiveAppointments(ctx context.Context, technicianID string, from, to time.Time) ([]domain.Appointment, error)
}

// BlockSource lists blocks and series overrides.
type BlockSource interface {
	FetchActiveBlocks(ctx context.Context, technicianID string) ([]domain.Block, error)
	FetchModifiedInstances(ctx context.Context, seriesID string, from, to time.Time) ([]domain.Block, error)
}

// Exporter builds ICS documents.
type Exporter struct {
	appointments AppointmentSource
	blocks       BlockSource
	expander     *recurrence.Engine
	now          func() time.Time
	logger       *slog.Logger
}

// NewExporter constructs an exporter. A nil expander resolves dates in UTC.
func NewExporter(appointments AppointmentSource, blocks BlockSource, expander *recurrence.Engine, logger *slog.Logger) *Exporter {
	if expander == nil {
		expander = recurrence.NewEngine(time.UTC)
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Exporter{
		appointments: appointments,
		blocks:       blocks,
		expander:     expander,
		now:          time.Now,
		logger:       logger.With("component", "calendar"),
	}
}

// WithClock overrides the time source used for DTSTAMP and derived statuses.
func (e *Exporter) WithClock(now func() time.Time) *Exporter {
	if now != nil {
		e.now = now
	}
	return e
}

// Export renders one VEVENT per active appointment and per block instance of
// technicianID overlapping [from, to). Series overrides replace the instances they modify.
func (e *Exporter) Export(ctx context.Context, technicianID string, from, to time.Time) ([]byte, error) {
	if !to.After(from) || to.Sub(from) > MaxRange {
		return nil, fmt.Errorf("%w: %s - %s", ErrInvalidRange, from.Format(time.RFC3339), to.Format(time.RFC3339))
	}

	appointments, err := e.appointments.FetchActiveAppointments(ctx, technicianID, from, to)
	if err != nil {
		return nil, fmt.Errorf("fetch appointments: %w", err)
	}
	blocks, err := e.blocks.FetchActiveBlocks(ctx, technicianID)
	if err != nil {
		return nil, fmt.Errorf("fetch blocks: %w", err)
	}

	now := e.now().UTC()
	cal := ical.NewCalendar()
	cal.SetMethod(ical.MethodPublish)
	cal.SetProductId(ProductID)
	cal.SetXWRCalName("Technician " + technicianID)

	for _, appointment := range appointments {
		status := appointment.EffectiveStatus(now)
		event := cal.AddEvent(appointment.ID + "@appointments")
		event.SetDtStampTime(now)
		event.SetStartAt(appointment.Start)
		event.SetEndAt(appointment.End)
		event.SetSummary("Appointment " + appointment.ServiceID)
		event.SetProperty(ical.ComponentPropertyCategories, "APPOINTMENT")
		event.SetProperty(ical.ComponentPropertyStatus, icsStatus(status))
		event.SetProperty(ical.ComponentPropertySequence, fmt.Sprint(appointment.Version))
		if appointment.Notes != "" {
			event.SetDescription(appointment.Notes)
		}
	}

	count := 0
	for _, block := range blocks {
		var overrides []domain.Block
		if block.IsRecurring() {
			// Overrides may be moved up to a day away from their series date.
			overrides, err = e.blocks.FetchModifiedInstances(ctx, block.ID, from.AddDate(0, 0, -1), to.AddDate(0, 0, 1))
			if err != nil {
				return nil, fmt.Errorf("fetch modified instances of %s: %w", block.ID, err)
			}
		}
		instances, err := e.expander.ExpandBlock(block, overrides, from, to)
		if err != nil {
			return nil, fmt.Errorf("expand block %s: %w", block.ID, err)
		}
		for _, instance := range instances {
			uid := instance.SeriesID + "/" + instance.Date + "@blocks"
			source := block
			if instance.OverrideID != "" {
				uid = instance.OverrideID + "@blocks"
				source = overrideByID(overrides, instance.OverrideID, block)
			}
			event := cal.AddEvent(uid)
			event.SetDtStampTime(now)
			event.SetStartAt(instance.Start)
			event.SetEndAt(instance.End)
			event.SetSummary(blockSummary(source))
			event.SetProperty(ical.ComponentPropertyCategories, string(block.Type))
			event.SetProperty(ical.ComponentPropertyTransp, "OPAQUE")
			count++
		}
	}

	e.logger.DebugContext(ctx, "calendar exported",
		"technician_id", technicianID, "appointments", len(appointments), "block_instances", count)
	return []byte(cal.Serialize()), nil
}

func overrideByID(overrides []domain.Block, id string, fallback domain.Block) domain.Block {
	for _, override := range overrides {
		if override.ID == id {
			return override
		}
	}
	return fallback
}

func blockSummary(block domain.Block) string {
	if block.Title != "" {
		return block.Title
	}
	return "Blocked (" + string(block.Type) + ")"
}

func icsStatus(status domain.Status) string {
	switch status {
	case domain.StatusPending:
		return "TENTATIVE"
	case domain.StatusCancelled, domain.StatusNoShow:
		return "CANCELLED"
	}
	return "CONFIRMED"
}
