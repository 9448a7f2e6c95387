package scheduler

import (
	"slices"
	"time"
)

// Span is an occupied period on a technician's calendar.
type Span struct {
	ID           string
	TechnicianID string
	Start        time.Time
	End          time.Time
}

// Interval returns the span's half-open interval.
func (s Span) Interval() Interval {
	return Interval{Start: s.Start, End: s.End}
}

// Conflict identifies an existing span that collides with a candidate.
type Conflict struct {
	WithID string
	Start  time.Time
	End    time.Time
}

// DetectConflicts returns every existing span for the candidate's technician that
// overlaps it, ordered by start. Spans sharing the candidate's ID are ignored so a
// move does not collide with itself.
func DetectConflicts(existing []Span, candidate Span) []Conflict {
	var conflicts []Conflict
	window := candidate.Interval()
	for _, span := range existing {
		if span.TechnicianID != candidate.TechnicianID {
			continue
		}
		if candidate.ID != "" && span.ID == candidate.ID {
			continue
		}
		if !span.Interval().Overlaps(window) {
			continue
		}
		conflicts = append(conflicts, Conflict{WithID: span.ID, Start: span.Start, End: span.End})
	}
	slices.SortFunc(conflicts, func(a, b Conflict) int {
		return a.Start.Compare(b.Start)
	})
	return conflicts
}
