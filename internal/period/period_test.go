package period

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sydney(t *testing.T) *time.Location {
	t.Helper()
	loc, err := LoadZone("")
	require.NoError(t, err)
	return loc
}

func TestLoadZone(t *testing.T) {
	t.Run("empty name falls back to default", func(t *testing.T) {
		loc, err := LoadZone("")
		require.NoError(t, err)
		assert.Equal(t, DefaultZone, loc.String())
	})

	t.Run("named zone", func(t *testing.T) {
		loc, err := LoadZone("Europe/Rome")
		require.NoError(t, err)
		assert.Equal(t, "Europe/Rome", loc.String())
	})

	t.Run("bogus zone errors", func(t *testing.T) {
		_, err := LoadZone("Nowhere/Special")
		assert.Error(t, err)
	})
}

func TestStartOfWeek(t *testing.T) {
	loc := sydney(t)

	tests := []struct {
		name string
		in   time.Time
		want time.Time
	}{
		{
			name: "wednesday maps to its monday",
			in:   time.Date(2024, 5, 15, 14, 30, 0, 0, loc),
			want: time.Date(2024, 5, 13, 0, 0, 0, 0, loc),
		},
		{
			name: "monday maps to itself",
			in:   time.Date(2024, 5, 13, 0, 0, 0, 0, loc),
			want: time.Date(2024, 5, 13, 0, 0, 0, 0, loc),
		},
		{
			name: "sunday maps to previous monday",
			in:   time.Date(2024, 5, 19, 23, 0, 0, 0, loc),
			want: time.Date(2024, 5, 13, 0, 0, 0, 0, loc),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.True(t, StartOfWeek(tt.in).Equal(tt.want))
		})
	}
}

func TestRangesAreInclusive(t *testing.T) {
	loc := sydney(t)
	noon := time.Date(2024, 5, 15, 12, 0, 0, 0, loc)

	t.Run("day contains its last instant", func(t *testing.T) {
		r := Of(Day, noon)
		assert.True(t, r.Contains(EndOfDay(noon)))
		assert.False(t, r.Contains(EndOfDay(noon).Add(time.Nanosecond)))
	})

	t.Run("day contains its first instant", func(t *testing.T) {
		r := Of(Day, noon)
		assert.True(t, r.Contains(StartOfDay(noon)))
		assert.False(t, r.Contains(StartOfDay(noon).Add(-time.Nanosecond)))
	})

	t.Run("adjacent days partition instants", func(t *testing.T) {
		today := Of(Day, noon)
		tomorrow := Of(Day, noon.AddDate(0, 0, 1))
		boundary := EndOfDay(noon)
		assert.True(t, today.Contains(boundary))
		assert.False(t, tomorrow.Contains(boundary))
		assert.True(t, tomorrow.Contains(boundary.Add(time.Nanosecond)))
	})

	t.Run("week spans monday to sunday", func(t *testing.T) {
		r := Of(Week, noon)
		assert.True(t, r.Contains(time.Date(2024, 5, 13, 0, 0, 0, 0, loc)))
		assert.True(t, r.Contains(time.Date(2024, 5, 19, 23, 59, 59, 0, loc)))
		assert.False(t, r.Contains(time.Date(2024, 5, 12, 23, 59, 59, 0, loc)))
		assert.False(t, r.Contains(time.Date(2024, 5, 20, 0, 0, 0, 0, loc)))
	})

	t.Run("year covers leap day", func(t *testing.T) {
		r := Of(Year, noon)
		assert.True(t, r.Contains(time.Date(2024, 2, 29, 10, 0, 0, 0, loc)))
		assert.False(t, r.Contains(time.Date(2023, 12, 31, 23, 59, 59, 0, loc)))
	})
}

func TestPrevious(t *testing.T) {
	loc := sydney(t)
	noon := time.Date(2024, 5, 15, 12, 0, 0, 0, loc)

	t.Run("previous day", func(t *testing.T) {
		r := Previous(Day, noon)
		assert.True(t, r.Contains(time.Date(2024, 5, 14, 12, 0, 0, 0, loc)))
		assert.False(t, r.Contains(noon))
	})

	t.Run("previous month handles january", func(t *testing.T) {
		jan := time.Date(2024, 1, 10, 8, 0, 0, 0, loc)
		r := Previous(Month, jan)
		assert.True(t, r.Contains(time.Date(2023, 12, 25, 0, 0, 0, 0, loc)))
	})

	t.Run("previous year", func(t *testing.T) {
		r := Previous(Year, noon)
		assert.True(t, r.Contains(time.Date(2023, 7, 1, 0, 0, 0, 0, loc)))
		assert.False(t, r.Contains(time.Date(2024, 1, 1, 0, 0, 0, 0, loc)))
	})
}

func TestDayKey(t *testing.T) {
	loc := sydney(t)
	assert.Equal(t, "2024-05-15", DayKey(time.Date(2024, 5, 15, 23, 59, 0, 0, loc)))
	assert.Equal(t, "2024-01-05", DayKey(time.Date(2024, 1, 5, 0, 0, 0, 0, loc)))
}

func TestDaylightSavingTransition(t *testing.T) {
	loc := sydney(t)
	// DST ended in Sydney on 2024-04-07; the day is 25 hours long but still
	// one bucket.
	r := Of(Day, time.Date(2024, 4, 7, 12, 0, 0, 0, loc))
	assert.True(t, r.Contains(time.Date(2024, 4, 7, 2, 30, 0, 0, loc)))
	assert.True(t, r.Contains(time.Date(2024, 4, 7, 23, 30, 0, 0, loc)))
	assert.False(t, r.Contains(time.Date(2024, 4, 8, 0, 0, 0, 0, loc)))
}
