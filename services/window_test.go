package services

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mustLocation(t *testing.T, name string) *time.Location {
	t.Helper()
	loc, err := time.LoadLocation(name)
	require.NoError(t, err)
	return loc
}

func TestLastWeek_Wednesday(t *testing.T) {
	now := time.Date(2023, 6, 14, 12, 0, 0, 0, time.UTC)

	w := LastWeek(now, time.UTC)

	assert.Equal(t, time.Date(2023, 6, 4, 0, 0, 0, 0, time.UTC), w.Start)
	assert.Equal(t, time.Date(2023, 6, 10, 23, 59, 59, 0, time.UTC), w.End)
	assert.Equal(t, int64(1685836800000), w.StartMillis())
	assert.Equal(t, int64(1686441599000), w.EndMillis())
}

func TestLastWeek_SundayUsesPreviousWeek(t *testing.T) {
	now := time.Date(2023, 6, 11, 8, 30, 0, 0, time.UTC)

	w := LastWeek(now, time.UTC)

	assert.Equal(t, time.Date(2023, 6, 4, 0, 0, 0, 0, time.UTC), w.Start)
	assert.Equal(t, time.Date(2023, 6, 10, 23, 59, 59, 0, time.UTC), w.End)
}

func TestLastWeek_ConvertsIntoTargetTimezone(t *testing.T) {
	tokyo := mustLocation(t, "Asia/Tokyo")
	// Saturday 20:00 UTC is already Sunday 05:00 in Tokyo.
	now := time.Date(2023, 6, 10, 20, 0, 0, 0, time.UTC)

	w := LastWeek(now, tokyo)

	assert.Equal(t, time.Date(2023, 6, 4, 0, 0, 0, 0, tokyo), w.Start)
	assert.Equal(t, time.Date(2023, 6, 10, 23, 59, 59, 0, tokyo), w.End)
	assert.Equal(t, tokyo, w.Start.Location())
}

func TestLastWeek_Properties(t *testing.T) {
	const weekMinusSecond = 6*24*time.Hour + 23*time.Hour + 59*time.Minute + 59*time.Second

	zones := []string{"UTC", "America/New_York", "Europe/Berlin", "Asia/Kolkata", "Pacific/Auckland", "America/Santiago", "Asia/Beirut"}
	base := time.Date(2023, 1, 1, 0, 0, 0, 0, time.UTC)

	for _, name := range zones {
		loc := mustLocation(t, name)
		for h := 0; h < 24*400; h += 7 {
			now := base.Add(time.Duration(h)*time.Hour + 17*time.Minute + 3*time.Second)
			w := LastWeek(now, loc)

			require.Equal(t, time.Sunday, w.Start.Weekday(), "%s %s", name, now)
			require.Equal(t, time.Saturday, w.End.Weekday(), "%s %s", name, now)
			require.Equal(t, time.Saturday, w.Start.Add(-time.Second).Weekday(), "%s %s", name, now)
			eh, em, es := w.End.Clock()
			require.Equal(t, [3]int{23, 59, 59}, [3]int{eh, em, es}, "%s %s", name, now)
			require.Zero(t, w.End.Nanosecond())

			require.True(t, w.End.Before(now), "window must be complete")
			local := now.In(loc)
			today := time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, time.UTC)
			startDay := time.Date(w.Start.Year(), w.Start.Month(), w.Start.Day(), 0, 0, 0, 0, time.UTC)
			daysBack := int(today.Sub(startDay).Hours() / 24)
			require.GreaterOrEqual(t, daysBack, 7)
			require.LessOrEqual(t, daysBack, 13)

			if name == "UTC" {
				require.Equal(t, weekMinusSecond, w.End.Sub(w.Start))
			}

			require.Equal(t, w, LastWeek(now, loc), "same input must give the same window")
		}
	}
}

func TestLastWeek_MidnightDSTGap(t *testing.T) {
	santiago := mustLocation(t, "America/Santiago")
	// Chile skipped 2023-09-03 00:00; clocks went from 23:59:59 to 01:00.
	now := time.Date(2023, 9, 13, 12, 0, 0, 0, santiago)

	w := LastWeek(now, santiago)

	y, m, d := w.Start.Date()
	assert.Equal(t, [3]int{2023, 9, 3}, [3]int{y, int(m), d})
	assert.Equal(t, time.Sunday, w.Start.Weekday())
	assert.Equal(t, time.Saturday, w.Start.Add(-time.Second).Weekday())
	assert.Equal(t, time.Date(2023, 9, 9, 23, 59, 59, 0, santiago), w.End)
}

func TestStartOfDay(t *testing.T) {
	berlin := mustLocation(t, "Europe/Berlin")
	assert.Equal(t, time.Date(2023, 3, 26, 0, 0, 0, 0, berlin), startOfDay(2023, 3, 26, berlin))

	santiago := mustLocation(t, "America/Santiago")
	got := startOfDay(2023, 9, 3, santiago)
	assert.Equal(t, 3, got.Day())
	assert.Equal(t, 2, got.Add(-time.Nanosecond).Day())
}

func TestLoadLocation(t *testing.T) {
	loc, err := LoadLocation("Europe/Berlin")
	require.NoError(t, err)
	assert.Equal(t, "Europe/Berlin", loc.String())

	_, err = LoadLocation("Mars/Olympus")
	require.Error(t, err)
	assert.True(t, IsConfiguration(err))

	_, err = LoadLocation(" ")
	assert.True(t, IsConfiguration(err))
}

func TestFormatWindow(t *testing.T) {
	w := LastWeek(time.Date(2023, 6, 14, 12, 0, 0, 0, time.UTC), time.UTC)

	start, end := FormatWindow(w, DefaultTimeFormat)

	assert.Equal(t, "2023-06-04 00:00:00 UTC", start)
	assert.Equal(t, "2023-06-10 23:59:59 UTC", end)
}
