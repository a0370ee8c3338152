package services

import (
	"fmt"
	"strings"
	"time"

	"github.com/ncruces/go-strftime"

	"alertreport/models"
)

// LoadLocation resolves an IANA timezone name. An empty or unknown name is a
// configuration error.
func LoadLocation(name string) (*time.Location, error) {
	if strings.TrimSpace(name) == "" {
		return nil, configError("load timezone", fmt.Errorf("timezone is empty"))
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		return nil, configError("load timezone", err)
	}
	return loc, nil
}

// isoWeekday returns Monday=0 .. Sunday=6.
func isoWeekday(t time.Time) int {
	return (int(t.Weekday()) + 6) % 7
}

// LastWeek returns the Sunday 00:00:00 through Saturday 23:59:59 window of the
// week before the one containing now, evaluated in loc. On a Sunday the
// window is the seven days ending yesterday, not the week starting today.
func LastWeek(now time.Time, loc *time.Location) models.TimeWindow {
	local := now.In(loc)
	daysBack := (isoWeekday(local)+1)%7 + 7

	start := startOfDay(local.Year(), local.Month(), local.Day()-daysBack, loc)
	end := time.Date(start.Year(), start.Month(), start.Day()+6, 23, 59, 59, 0, loc)
	return models.TimeWindow{Start: start, End: end}
}

// startOfDay returns the first instant of the given local day. In zones whose
// DST jump skips midnight that instant is the transition, e.g. 01:00.
func startOfDay(year int, month time.Month, day int, loc *time.Location) time.Time {
	t := time.Date(year, month, day, 0, 0, 0, 0, loc)
	if h, m, s := t.Clock(); h == 0 && m == 0 && s == 0 {
		return t
	}
	zoneStart, zoneEnd := t.ZoneBounds()
	// time.Date may resolve a missing midnight on either side of the gap.
	noon := time.Date(year, month, day, 12, 0, 0, 0, loc)
	if t.YearDay() != noon.YearDay() {
		return zoneEnd
	}
	return zoneStart
}

// FormatWindow renders both bounds with the same strftime format.
func FormatWindow(w models.TimeWindow, format string) (string, string) {
	return strftime.Format(format, w.Start), strftime.Format(format, w.End)
}
