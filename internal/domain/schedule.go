// Package domain holds the booking engine's data model.
package domain

import (
	"fmt"
	"time"
)

// Technician is a staff member who performs services at a location.
type Technician struct {
	ID          string
	LocationID  string
	DisplayName string
}

// Service is a bookable offering with a default duration and trailing buffer.
type Service struct {
	ID              string
	Name            string
	DurationMinutes int
	BufferMinutes   int
}

// Client is the person an appointment is booked for.
type Client struct {
	ID          string
	DisplayName string
}

// WorkingSchedule is one weekday of a technician's working hours.
type WorkingSchedule struct {
	TechnicianID string
	DayOfWeek    time.Weekday
	IsWorking    bool
	StartTime    string
	EndTime      string
}

// ClockLayout is the wall clock format of working schedule bounds.
const ClockLayout = "15:04"

// ParseClock converts an "HH:MM" value to an offset from midnight.
func ParseClock(value string) (time.Duration, error) {
	parsed, err := time.Parse(ClockLayout, value)
	if err != nil {
		return 0, fmt.Errorf("domain: invalid clock value %q: %w", value, err)
	}
	return time.Duration(parsed.Hour())*time.Hour + time.Duration(parsed.Minute())*time.Minute, nil
}

// Bounds resolves the schedule to concrete instants on the given date.
func (w WorkingSchedule) Bounds(date time.Time, loc *time.Location) (time.Time, time.Time, error) {
	startOffset, err := ParseClock(w.StartTime)
	if err != nil {
		return time.Time{}, time.Time{}, err
	}
	endOffset, err := ParseClock(w.EndTime)
	if err != nil {
		return time.Time{}, time.Time{}, err
	}
	day := StartOfDay(date, loc)
	return wallClock(day, startOffset, loc), wallClock(day, endOffset, loc), nil
}

// StartOfDay returns local midnight of the date containing t.
func StartOfDay(t time.Time, loc *time.Location) time.Time {
	if loc == nil {
		loc = time.UTC
	}
	y, m, d := t.In(loc).Date()
	return time.Date(y, m, d, 0, 0, 0, 0, loc)
}

// wallClock builds the instant at the given wall clock offset, staying correct across DST shifts.
func wallClock(day time.Time, offset time.Duration, loc *time.Location) time.Time {
	y, m, d := day.Date()
	minutes := int(offset / time.Minute)
	return time.Date(y, m, d, minutes/60, minutes%60, 0, 0, loc)
}
