// Package aggregate computes dashboard rollups over an in-memory session
// list. Every computation is a linear pass (or a small constant number of
// passes) over the full list, recomputed per call; at personal-tracker scale
// this beats maintaining incremental indexes.
package aggregate

import (
	"sort"
	"strings"
	"time"

	"tempo/internal/core"
	"tempo/internal/period"
)

// Thresholds are the calendar heatmap band boundaries in hours. A day total
// within (0, Low] renders low, (Low, Medium] medium, (Medium, High]
// three-four, and anything above High renders high.
type Thresholds struct {
	Low    float64
	Medium float64
	High   float64
}

// DefaultThresholds matches the original dashboard's latest revision.
func DefaultThresholds() Thresholds {
	return Thresholds{Low: 2, Medium: 4, High: 6}
}

// Band classifies a calendar cell's intensity.
type Band string

const (
	BandZero      Band = "zero"
	BandLow       Band = "low"
	BandMedium    Band = "medium"
	BandThreeFour Band = "three-four"
	BandHigh      Band = "high"
)

type (
	// PeriodTotals are the headline day/week/month/year sums.
	PeriodTotals struct {
		Day   float64 `json:"day"`
		Week  float64 `json:"week"`
		Month float64 `json:"month"`
		Year  float64 `json:"year"`
	}

	// ProjectHours is one project's share of logged time, tasks nested.
	ProjectHours struct {
		Name    string             `json:"name"`
		Hours   float64            `json:"hours"`
		Percent float64            `json:"percent"`
		Tasks   map[string]float64 `json:"tasks,omitempty"`
	}

	// CalendarCell is one day of the heatmap.
	CalendarCell struct {
		Date     string  `json:"date"`
		Hours    float64 `json:"hours"`
		Sessions int     `json:"sessions"`
		Band     Band    `json:"band"`
	}

	// DayRow is one line of the last-7-days widget.
	DayRow struct {
		Date     string   `json:"date"`
		Label    string   `json:"label"`
		Projects []string `json:"projects"`
		Hours    float64  `json:"hours"`
	}

	// MonthRow is one line of the year overview; months with no logged time
	// are omitted.
	MonthRow struct {
		Month    int      `json:"month"`
		Name     string   `json:"name"`
		Hours    float64  `json:"hours"`
		Projects []string `json:"projects"`
	}

	// BestDay is the date with the highest daily total. Date is empty when no
	// sessions exist.
	BestDay struct {
		Date  string  `json:"date"`
		Hours float64 `json:"hours"`
	}
)

// Aggregator owns a snapshot of the session list with timestamps resolved in
// the dashboard timezone. Construction copies the input, so aggregating never
// mutates the caller's slice and repeated calls yield identical results.
type Aggregator struct {
	sessions []core.Session
	loc      *time.Location
	bands    Thresholds
}

// New builds an aggregator over sessions, converting each timestamp into loc
// exactly once. Sessions with a zero timestamp are dropped here; the storage
// layer has already logged them.
func New(sessions []core.Session, loc *time.Location, bands Thresholds) *Aggregator {
	copied := make([]core.Session, 0, len(sessions))
	for _, s := range sessions {
		if s.Timestamp.IsZero() {
			continue
		}
		s.Timestamp = s.Timestamp.In(loc)
		copied = append(copied, s)
	}
	return &Aggregator{sessions: copied, loc: loc, bands: bands}
}

// Location returns the dashboard timezone.
func (a *Aggregator) Location() *time.Location { return a.loc }

// SessionCount returns the number of usable sessions in the snapshot.
func (a *Aggregator) SessionCount() int { return len(a.sessions) }

// Total sums hours for sessions inside the inclusive range.
func (a *Aggregator) Total(r period.Range) float64 {
	var sum float64
	for _, s := range a.sessions {
		if r.Contains(s.Timestamp) {
			sum += s.Hours
		}
	}
	return sum
}

// TotalHours sums every session regardless of date.
func (a *Aggregator) TotalHours() float64 {
	var sum float64
	for _, s := range a.sessions {
		sum += s.Hours
	}
	return sum
}

// Totals computes the four headline period sums relative to now.
func (a *Aggregator) Totals(now time.Time) PeriodTotals {
	now = now.In(a.loc)
	return PeriodTotals{
		Day:   a.Total(period.Of(period.Day, now)),
		Week:  a.Total(period.Of(period.Week, now)),
		Month: a.Total(period.Of(period.Month, now)),
		Year:  a.Total(period.Of(period.Year, now)),
	}
}

// PreviousTotals computes the same four sums for the immediately preceding
// periods, used for dashboard deltas.
func (a *Aggregator) PreviousTotals(now time.Time) PeriodTotals {
	now = now.In(a.loc)
	return PeriodTotals{
		Day:   a.Total(period.Previous(period.Day, now)),
		Week:  a.Total(period.Previous(period.Week, now)),
		Month: a.Total(period.Previous(period.Month, now)),
		Year:  a.Total(period.Previous(period.Year, now)),
	}
}

// DayTotal sums hours logged on date's calendar day.
func (a *Aggregator) DayTotal(date time.Time) float64 {
	return a.Total(period.Of(period.Day, date.In(a.loc)))
}

// DayCount counts sessions logged on date's calendar day.
func (a *Aggregator) DayCount(date time.Time) int {
	r := period.Of(period.Day, date.In(a.loc))
	var n int
	for _, s := range a.sessions {
		if r.Contains(s.Timestamp) {
			n++
		}
	}
	return n
}

// dailyTotals builds per-day sums and counts in one pass, remembering the
// order in which days were first seen so ties stay deterministic.
func (a *Aggregator) dailyTotals() (map[string]float64, map[string]int, []string) {
	totals := make(map[string]float64)
	counts := make(map[string]int)
	var order []string
	for _, s := range a.sessions {
		key := period.DayKey(s.Timestamp)
		if _, seen := totals[key]; !seen {
			order = append(order, key)
		}
		totals[key] += s.Hours
		counts[key]++
	}
	return totals, counts, order
}

// Best returns the date with the maximum daily total; ties resolve to the
// first-seen day.
func (a *Aggregator) Best() BestDay {
	totals, _, order := a.dailyTotals()
	best := BestDay{}
	for _, key := range order {
		if totals[key] > best.Hours {
			best = BestDay{Date: key, Hours: totals[key]}
		}
	}
	return best
}

// AverageWorkday is the mean of daily totals restricted to Monday-Friday
// buckets, 0 when no weekday has logged time.
func (a *Aggregator) AverageWorkday() float64 {
	totals := make(map[string]float64)
	for _, s := range a.sessions {
		wd := s.Timestamp.Weekday()
		if wd == time.Saturday || wd == time.Sunday {
			continue
		}
		totals[period.DayKey(s.Timestamp)] += s.Hours
	}
	if len(totals) == 0 {
		return 0
	}
	var sum float64
	for _, h := range totals {
		sum += h
	}
	return sum / float64(len(totals))
}

// CurrentStreak counts consecutive days with at least one session, walking
// backward from today. A day without sessions today is forgiven once: the
// walk restarts from yesterday, and the streak is 0 only when both today and
// yesterday are empty.
func (a *Aggregator) CurrentStreak(now time.Time) int {
	totals, _, _ := a.dailyTotals()
	day := period.StartOfDay(now.In(a.loc))
	if totals[period.DayKey(day)] == 0 {
		day = day.AddDate(0, 0, -1)
		if totals[period.DayKey(day)] == 0 {
			return 0
		}
	}
	streak := 0
	for totals[period.DayKey(day)] > 0 {
		streak++
		day = day.AddDate(0, 0, -1)
	}
	return streak
}

// HoursByProject groups hours under a case-insensitive project key while
// preserving the first-seen display spelling, sorted by hours descending.
func (a *Aggregator) HoursByProject() []ProjectHours {
	totals := make(map[string]float64)
	display := make(map[string]string)
	var order []string
	for _, s := range a.sessions {
		name := s.DisplayProject()
		key := strings.ToLower(name)
		if _, seen := display[key]; !seen {
			display[key] = name
			order = append(order, key)
		}
		totals[key] += s.Hours
	}

	grand := a.TotalHours()
	out := make([]ProjectHours, 0, len(order))
	for _, key := range order {
		out = append(out, ProjectHours{
			Name:    display[key],
			Hours:   totals[key],
			Percent: PercentOfTotal(totals[key], grand),
		})
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Hours > out[j].Hours })
	return out
}

// HoursByProjectAndTask nests per-task sums under each project's first-seen
// display name. Sessions without a task accumulate under the empty string.
func (a *Aggregator) HoursByProjectAndTask() map[string]map[string]float64 {
	display := make(map[string]string)
	out := make(map[string]map[string]float64)
	for _, s := range a.sessions {
		name := s.DisplayProject()
		key := strings.ToLower(name)
		if _, seen := display[key]; !seen {
			display[key] = name
			out[display[key]] = make(map[string]float64)
		}
		out[display[key]][s.Task] += s.Hours
	}
	return out
}

// PercentOfTotal converts hours to a bar width percentage, 0 when the
// denominator is zero.
func PercentOfTotal(hours, total float64) float64 {
	if total <= 0 {
		return 0
	}
	return hours / total * 100
}

// Classify maps a daily total onto a heatmap band.
func (a *Aggregator) Classify(hours float64) Band {
	switch {
	case hours == 0:
		return BandZero
	case hours <= a.bands.Low:
		return BandLow
	case hours <= a.bands.Medium:
		return BandMedium
	case hours <= a.bands.High:
		return BandThreeFour
	default:
		return BandHigh
	}
}

// Calendar produces one cell per day of the given year.
func (a *Aggregator) Calendar(year int) []CalendarCell {
	totals, counts, _ := a.dailyTotals()
	cells := make([]CalendarCell, 0, 366)
	day := time.Date(year, time.January, 1, 0, 0, 0, 0, a.loc)
	for day.Year() == year {
		key := period.DayKey(day)
		cells = append(cells, CalendarCell{
			Date:     key,
			Hours:    totals[key],
			Sessions: counts[key],
			Band:     a.Classify(totals[key]),
		})
		day = day.AddDate(0, 0, 1)
	}
	return cells
}

// LastNDays returns rows for the n most recent days, newest first, with the
// distinct projects touched on each day.
func (a *Aggregator) LastNDays(now time.Time, n int) []DayRow {
	now = now.In(a.loc)
	rows := make([]DayRow, 0, n)
	for i := 0; i < n; i++ {
		date := period.StartOfDay(now).AddDate(0, 0, -i)
		r := period.Of(period.Day, date)
		var hours float64
		projects := distinctProjects(a.sessions, r)
		for _, s := range a.sessions {
			if r.Contains(s.Timestamp) {
				hours += s.Hours
			}
		}
		label := date.Format("Monday")
		if i == 0 {
			label = "Today"
		}
		rows = append(rows, DayRow{
			Date:     period.DayKey(date),
			Label:    label,
			Projects: projects,
			Hours:    hours,
		})
	}
	return rows
}

// YearOverview returns one row per month of now's year that has logged time.
func (a *Aggregator) YearOverview(now time.Time) []MonthRow {
	now = now.In(a.loc)
	var rows []MonthRow
	for m := time.January; m <= time.December; m++ {
		start := time.Date(now.Year(), m, 1, 0, 0, 0, 0, a.loc)
		r := period.Of(period.Month, start)
		var hours float64
		for _, s := range a.sessions {
			if r.Contains(s.Timestamp) {
				hours += s.Hours
			}
		}
		if hours == 0 {
			continue
		}
		rows = append(rows, MonthRow{
			Month:    int(m),
			Name:     start.Format("January"),
			Hours:    hours,
			Projects: distinctProjects(a.sessions, r),
		})
	}
	return rows
}

func distinctProjects(sessions []core.Session, r period.Range) []string {
	seen := make(map[string]struct{})
	var out []string
	for _, s := range sessions {
		if !r.Contains(s.Timestamp) {
			continue
		}
		name := s.DisplayProject()
		if _, ok := seen[name]; ok {
			continue
		}
		seen[name] = struct{}{}
		out = append(out, name)
	}
	return out
}
