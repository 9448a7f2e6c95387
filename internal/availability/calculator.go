// Package availability turns working hours, appointments and blocks into bookable slots.
package availability

import (
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/example/appointment-engine/internal/domain"
	"github.com/example/appointment-engine/internal/recurrence"
	"github.com/example/appointment-engine/internal/scheduler"
)

// DefaultGranularity is the spacing of grid candidates.
const DefaultGranularity = 15 * time.Minute

// ErrInvalidDuration is returned when the effective service duration is not positive.
var ErrInvalidDuration = errors.New("availability: service duration must be positive")

// Request is a snapshot of everything needed to evaluate one technician on one date.
type Request struct {
	TechnicianID string
	// Date is any instant on the civil date being evaluated.
	Date     time.Time
	Schedule *domain.WorkingSchedule

	DurationMinutes int
	BufferMinutes   int
	// OverrideMinutes replaces DurationMinutes for this technician when set.
	OverrideMinutes *int

	Appointments []domain.Appointment
	Blocks       []domain.Block
	// Overrides holds materialized override blocks keyed by series ID.
	Overrides map[string][]domain.Block

	Now time.Time
}

// Slot is one candidate start time and whether it can be booked.
type Slot struct {
	Start     time.Time
	End       time.Time
	Available bool
}

// Calculator evaluates availability requests. It holds no per-request state.
type Calculator struct {
	expander    *recurrence.Engine
	granularity time.Duration
}

// NewCalculator constructs a Calculator. A non-positive granularity selects DefaultGranularity.
// When expander is nil a UTC engine is used.
func NewCalculator(expander *recurrence.Engine, granularity time.Duration) *Calculator {
	if expander == nil {
		expander = recurrence.NewEngine(time.UTC)
	}
	if granularity <= 0 {
		granularity = DefaultGranularity
	}
	return &Calculator{expander: expander, granularity: granularity}
}

// Location returns the business location used for civil dates.
func (c *Calculator) Location() *time.Location {
	return c.expander.Location()
}

// day is a resolved request: working window, busy set and effective duration.
type day struct {
	working  bool
	open     time.Time
	close    time.Time
	duration time.Duration
	buffer   time.Duration
	busy     []scheduler.Interval
	now      time.Time
	appts    []domain.Appointment
}

func (c *Calculator) resolve(req Request) (day, error) {
	minutes := req.DurationMinutes
	if req.OverrideMinutes != nil && *req.OverrideMinutes > 0 {
		minutes = *req.OverrideMinutes
	}
	if minutes <= 0 {
		return day{}, ErrInvalidDuration
	}

	resolved := day{
		duration: time.Duration(minutes) * time.Minute,
		buffer:   time.Duration(max(req.BufferMinutes, 0)) * time.Minute,
		now:      req.Now,
	}
	if req.Schedule == nil || !req.Schedule.IsWorking {
		return resolved, nil
	}

	loc := c.Location()
	open, closeAt, err := req.Schedule.Bounds(req.Date, loc)
	if err != nil {
		return day{}, fmt.Errorf("availability: working schedule for %s: %w", req.TechnicianID, err)
	}
	if !closeAt.After(open) {
		return resolved, nil
	}
	resolved.working = true
	resolved.open = open
	resolved.close = closeAt

	busy, appts, err := c.busy(req, resolved.buffer)
	if err != nil {
		return day{}, err
	}
	resolved.busy = busy
	resolved.appts = appts
	return resolved, nil
}

// BusyIntervals returns the merged busy set for the request's date.
func (c *Calculator) BusyIntervals(req Request) ([]scheduler.Interval, error) {
	buffer := time.Duration(max(req.BufferMinutes, 0)) * time.Minute
	busy, _, err := c.busy(req, buffer)
	return busy, err
}

func (c *Calculator) busy(req Request, buffer time.Duration) ([]scheduler.Interval, []domain.Appointment, error) {
	loc := c.Location()
	dayStart := domain.StartOfDay(req.Date, loc)
	window := scheduler.Interval{Start: dayStart, End: dayStart.AddDate(0, 0, 1)}

	intervals := make([]scheduler.Interval, 0, len(req.Appointments)+len(req.Blocks))
	var appts []domain.Appointment
	for _, appt := range req.Appointments {
		if req.TechnicianID != "" && appt.TechnicianID != req.TechnicianID {
			continue
		}
		if !appt.Status.Blocking() {
			continue
		}
		padded := scheduler.Interval{Start: appt.Start.Add(-buffer), End: appt.End.Add(buffer)}
		if clipped, ok := scheduler.Clip(padded, window); ok {
			intervals = append(intervals, clipped)
			appts = append(appts, appt)
		}
	}

	for _, block := range req.Blocks {
		if !block.IsActive || block.IsOverride() {
			continue
		}
		if req.TechnicianID != "" && block.TechnicianID != req.TechnicianID {
			continue
		}
		instances, err := c.expander.ExpandBlock(block, req.Overrides[block.ID], window.Start, window.End)
		if err != nil {
			return nil, nil, err
		}
		for _, instance := range instances {
			if clipped, ok := scheduler.Clip(scheduler.Interval{Start: instance.Start, End: instance.End}, window); ok {
				intervals = append(intervals, clipped)
			}
		}
	}

	return scheduler.Merge(intervals), appts, nil
}

func (d day) available(start time.Time) bool {
	if !d.working {
		return false
	}
	end := start.Add(d.duration)
	if start.Before(d.now) || start.Before(d.open) || end.After(d.close) {
		return false
	}
	return !scheduler.OverlapsAny(start, end, d.busy)
}

// candidates lists grid starts plus appointment-end-plus-buffer starts, sorted and unique.
func (c *Calculator) candidates(d day) []time.Time {
	if !d.working {
		return nil
	}
	var out []time.Time
	for start := d.open; !start.Add(d.duration).After(d.close); start = start.Add(c.granularity) {
		out = append(out, start)
	}
	for _, appt := range d.appts {
		start := appt.End.Add(d.buffer)
		if start.Before(d.open) || start.Add(d.duration).After(d.close) {
			continue
		}
		out = append(out, start)
	}
	slices.SortFunc(out, func(a, b time.Time) int { return a.Compare(b) })
	return slices.CompactFunc(out, func(a, b time.Time) bool { return a.Equal(b) })
}

// Slots enumerates every candidate start on the date with its availability.
func (c *Calculator) Slots(req Request) ([]Slot, error) {
	d, err := c.resolve(req)
	if err != nil {
		return nil, err
	}
	starts := c.candidates(d)
	slots := make([]Slot, 0, len(starts))
	for _, start := range starts {
		slots = append(slots, Slot{Start: start, End: start.Add(d.duration), Available: d.available(start)})
	}
	return slots, nil
}

// DayAvailable reports whether any slot on the date can be booked. It stops at the first hit.
func (c *Calculator) DayAvailable(req Request) (bool, error) {
	d, err := c.resolve(req)
	if err != nil {
		return false, err
	}
	for _, start := range c.candidates(d) {
		if d.available(start) {
			return true, nil
		}
	}
	return false, nil
}

// IsAvailable reports whether a booking starting at start fits the date.
func (c *Calculator) IsAvailable(req Request, start time.Time) (bool, error) {
	d, err := c.resolve(req)
	if err != nil {
		return false, err
	}
	return d.available(start), nil
}
