package recurrence

import (
	"errors"
	"slices"
	"time"

	"github.com/teambition/rrule-go"

	"github.com/example/appointment-engine/internal/domain"
)

// Series is a recurring block reduced to what expansion needs.
type Series struct {
	ID         string
	FirstStart time.Time
	FirstEnd   time.Time
	Rule       Rule
	Exceptions []domain.BlockException
}

// Instance is one concrete occurrence of a series.
// OverrideID is set when the instance comes from a materialized override block.
type Instance struct {
	SeriesID   string
	Date       string
	Start      time.Time
	End        time.Time
	OverrideID string
}

// Engine expands recurrence rules into instances in a fixed business location.
type Engine struct {
	location *time.Location
}

// NewEngine constructs an Engine that resolves dates in loc. If loc is nil, UTC is used.
func NewEngine(loc *time.Location) *Engine {
	if loc == nil {
		loc = time.UTC
	}
	return &Engine{location: loc}
}

// Location returns the zone used to resolve civil dates.
func (e *Engine) Location() *time.Location {
	if e == nil || e.location == nil {
		return time.UTC
	}
	return e.location
}

// ErrInvalidFrequency indicates the recurrence frequency is not supported.
var ErrInvalidFrequency = errors.New("recurrence: invalid frequency")

// ErrInvalidWindow indicates the expansion window does not end after it starts.
var ErrInvalidWindow = errors.New("recurrence: window end must be after window start")

// ErrInvalidDuration indicates the first occurrence does not end after it starts.
var ErrInvalidDuration = errors.New("recurrence: series duration must be positive")

// Expand returns the series instances whose [Start, End) overlaps [windowStart, windowEnd).
//
// Stepping starts at FirstStart so COUNT is measured over the whole series and the
// time of day is kept in the engine's location across DST changes. UNTIL includes the
// entire UNTIL date. Instances with a deleted or modified exception are suppressed.
func (e *Engine) Expand(series Series, windowStart, windowEnd time.Time) ([]Instance, error) {
	loc := e.Location()

	start := series.FirstStart.In(loc)
	end := series.FirstEnd.In(loc)
	if !end.After(start) {
		return nil, ErrInvalidDuration
	}
	if !windowEnd.After(windowStart) {
		return nil, ErrInvalidWindow
	}

	set, err := e.ruleSet(series.Rule, start)
	if err != nil {
		return nil, err
	}

	duration := end.Sub(start)
	index := newExceptionIndex(series.Exceptions)

	// Between is exclusive on both ends, which is exactly the open overlap test
	// start > windowStart-duration && start < windowEnd.
	starts := set.Between(windowStart.Add(-duration), windowEnd, false)
	instances := make([]Instance, 0, len(starts))
	for _, occurrence := range starts {
		occurrence = occurrence.In(loc)
		date := occurrence.Format(domain.ExceptionDateLayout)
		if _, suppressed := index.lookup(date); suppressed {
			continue
		}
		instances = append(instances, Instance{
			SeriesID: series.ID,
			Date:     date,
			Start:    occurrence,
			End:      occurrence.Add(duration),
		})
	}
	return instances, nil
}

func (e *Engine) ruleSet(rule Rule, dtstart time.Time) (*rrule.RRule, error) {
	var freq rrule.Frequency
	switch rule.Freq {
	case FrequencyDaily:
		freq = rrule.DAILY
	case FrequencyWeekly:
		freq = rrule.WEEKLY
	default:
		return nil, ErrInvalidFrequency
	}

	interval := rule.Interval
	if interval <= 0 {
		interval = 1
	}

	option := rrule.ROption{
		Freq:     freq,
		Interval: interval,
		Dtstart:  dtstart,
	}
	switch rule.Bound {
	case BoundCount:
		option.Count = rule.Count
	case BoundUntil:
		y, m, d := rule.Until.Date()
		option.Until = time.Date(y, m, d, 23, 59, 59, 0, e.Location())
	}

	set, err := rrule.NewRRule(option)
	if err != nil {
		return nil, &RuleError{Rule: rule.String(), Reason: err.Error()}
	}
	return set, nil
}

// SpliceOverrides adds the override blocks referenced by the series' modified exceptions
// and returns the combined instances ordered by start. Overrides that no exception
// points at are ignored so a date is never emitted twice.
func (e *Engine) SpliceOverrides(series Series, instances []Instance, overrides []domain.Block, windowStart, windowEnd time.Time) []Instance {
	loc := e.Location()
	out := slices.Clone(instances)

	for _, override := range overrides {
		if !override.IsActive || !override.IsOverride() || *override.ParentBlockID != series.ID {
			continue
		}
		if !(override.Start.Before(windowEnd) && override.End.After(windowStart)) {
			continue
		}
		date := override.Start.In(loc).Format(domain.ExceptionDateLayout)
		if !referencesOverride(series.Exceptions, override.ID, date) {
			continue
		}
		out = append(out, Instance{
			SeriesID:   series.ID,
			Date:       date,
			Start:      override.Start.In(loc),
			End:        override.End.In(loc),
			OverrideID: override.ID,
		})
	}

	slices.SortStableFunc(out, func(a, b Instance) int {
		return a.Start.Compare(b.Start)
	})
	return out
}

func referencesOverride(exceptions []domain.BlockException, overrideID, date string) bool {
	for _, exc := range exceptions {
		if exc.Type != domain.ExceptionModified {
			continue
		}
		if exc.ModifiedBlockID != nil {
			if *exc.ModifiedBlockID == overrideID {
				return true
			}
			continue
		}
		if exc.Date == date {
			return true
		}
	}
	return false
}

// ExpandBlock parses a recurring block's rule, expands it over the window and splices
// its overrides. A single block yields itself when it overlaps the window.
func (e *Engine) ExpandBlock(block domain.Block, overrides []domain.Block, windowStart, windowEnd time.Time) ([]Instance, error) {
	if !block.IsRecurring() {
		if block.Start.Before(windowEnd) && block.End.After(windowStart) {
			return []Instance{{
				SeriesID: block.ID,
				Date:     block.Start.In(e.Location()).Format(domain.ExceptionDateLayout),
				Start:    block.Start,
				End:      block.End,
			}}, nil
		}
		return nil, nil
	}

	rule, err := ParseRule(block.RecurrenceRule)
	if err != nil {
		return nil, err
	}
	series := Series{
		ID:         block.ID,
		FirstStart: block.Start,
		FirstEnd:   block.End,
		Rule:       rule,
		Exceptions: block.Exceptions,
	}
	instances, err := e.Expand(series, windowStart, windowEnd)
	if err != nil {
		return nil, err
	}
	return e.SpliceOverrides(series, instances, overrides, windowStart, windowEnd), nil
}
