// Package scheduler implements half-open interval algebra and conflict detection.
package scheduler

import (
	"slices"
	"time"
)

// Interval is the half-open span [Start, End).
type Interval struct {
	Start time.Time
	End   time.Time
}

// Duration returns the length of the interval.
func (i Interval) Duration() time.Duration {
	return i.End.Sub(i.Start)
}

// Empty reports whether the interval covers no time.
func (i Interval) Empty() bool {
	return !i.End.After(i.Start)
}

// Overlaps reports whether the two half-open intervals share any instant.
// Intervals that merely touch do not overlap.
func (i Interval) Overlaps(other Interval) bool {
	return i.Start.Before(other.End) && i.End.After(other.Start)
}

// Contains reports whether other lies entirely within i.
func (i Interval) Contains(other Interval) bool {
	return !other.Start.Before(i.Start) && !other.End.After(i.End)
}

// Merge sorts intervals by start and folds overlapping or touching neighbours.
// The input slice is left untouched.
func Merge(intervals []Interval) []Interval {
	if len(intervals) == 0 {
		return []Interval{}
	}

	sorted := slices.Clone(intervals)
	slices.SortFunc(sorted, func(a, b Interval) int {
		if c := a.Start.Compare(b.Start); c != 0 {
			return c
		}
		return a.End.Compare(b.End)
	})

	merged := make([]Interval, 0, len(sorted))
	merged = append(merged, sorted[0])
	for _, next := range sorted[1:] {
		last := &merged[len(merged)-1]
		if !next.Start.After(last.End) {
			if next.End.After(last.End) {
				last.End = next.End
			}
			continue
		}
		merged = append(merged, next)
	}
	return merged
}

// OverlapsAny reports whether [start, end) overlaps any of the intervals.
func OverlapsAny(start, end time.Time, intervals []Interval) bool {
	candidate := Interval{Start: start, End: end}
	for _, interval := range intervals {
		if candidate.Overlaps(interval) {
			return true
		}
	}
	return false
}

// Clip restricts i to window. The boolean is false when nothing remains.
func Clip(i, window Interval) (Interval, bool) {
	if !i.Overlaps(window) {
		return Interval{}, false
	}
	clipped := i
	if clipped.Start.Before(window.Start) {
		clipped.Start = window.Start
	}
	if clipped.End.After(window.End) {
		clipped.End = window.End
	}
	return clipped, true
}
