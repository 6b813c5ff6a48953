// Package period resolves calendar buckets (day, week, month, year) in one
// fixed named timezone. All ranges are inclusive at both ends: a session
// timestamped exactly at the end of a day belongs to that day, not the next.
package period

import (
	"fmt"
	"time"
)

// DefaultZone is the dashboard timezone when none is configured.
const DefaultZone = "Australia/Sydney"

// Kind identifies a bucket size.
type Kind string

const (
	Day   Kind = "day"
	Week  Kind = "week"
	Month Kind = "month"
	Year  Kind = "year"
)

// Range is an inclusive [Start, End] window.
type Range struct {
	Start time.Time
	End   time.Time
}

// Contains reports whether t falls inside the range, boundaries included.
func (r Range) Contains(t time.Time) bool {
	return !t.Before(r.Start) && !t.After(r.End)
}

// LoadZone resolves a named timezone, falling back to DefaultZone when the
// name is empty.
func LoadZone(name string) (*time.Location, error) {
	if name == "" {
		name = DefaultZone
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		return nil, fmt.Errorf("load timezone %q: %w", name, err)
	}
	return loc, nil
}

// StartOfDay truncates t to midnight in its location.
func StartOfDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}

// EndOfDay is the last representable instant of t's calendar day.
func EndOfDay(t time.Time) time.Time {
	return StartOfDay(t).AddDate(0, 0, 1).Add(-time.Nanosecond)
}

// StartOfWeek truncates t to midnight of its Monday.
func StartOfWeek(t time.Time) time.Time {
	day := StartOfDay(t)
	// time.Weekday has Sunday == 0; shift so Monday == 0.
	offset := (int(day.Weekday()) + 6) % 7
	return day.AddDate(0, 0, -offset)
}

// StartOfMonth truncates t to midnight of the first of its month.
func StartOfMonth(t time.Time) time.Time {
	y, m, _ := t.Date()
	return time.Date(y, m, 1, 0, 0, 0, 0, t.Location())
}

// StartOfYear truncates t to midnight of January 1st of its year.
func StartOfYear(t time.Time) time.Time {
	return time.Date(t.Year(), time.January, 1, 0, 0, 0, 0, t.Location())
}

// Of returns the inclusive range of the given kind containing t.
func Of(kind Kind, t time.Time) Range {
	switch kind {
	case Day:
		start := StartOfDay(t)
		return Range{Start: start, End: start.AddDate(0, 0, 1).Add(-time.Nanosecond)}
	case Week:
		start := StartOfWeek(t)
		return Range{Start: start, End: start.AddDate(0, 0, 7).Add(-time.Nanosecond)}
	case Month:
		start := StartOfMonth(t)
		return Range{Start: start, End: start.AddDate(0, 1, 0).Add(-time.Nanosecond)}
	case Year:
		start := StartOfYear(t)
		return Range{Start: start, End: start.AddDate(1, 0, 0).Add(-time.Nanosecond)}
	default:
		start := StartOfDay(t)
		return Range{Start: start, End: start.AddDate(0, 0, 1).Add(-time.Nanosecond)}
	}
}

// Previous returns the range of the same kind immediately before the one
// containing t, used for dashboard period-over-period deltas.
func Previous(kind Kind, t time.Time) Range {
	switch kind {
	case Day:
		return Of(Day, StartOfDay(t).AddDate(0, 0, -1))
	case Week:
		return Of(Week, StartOfWeek(t).AddDate(0, 0, -7))
	case Month:
		return Of(Month, StartOfMonth(t).AddDate(0, -1, 0))
	case Year:
		return Of(Year, StartOfYear(t).AddDate(-1, 0, 0))
	default:
		return Of(Day, StartOfDay(t).AddDate(0, 0, -1))
	}
}

// DayKey formats a date as the canonical per-day bucket key (ISO date).
func DayKey(t time.Time) string {
	return t.Format("2006-01-02")
}
