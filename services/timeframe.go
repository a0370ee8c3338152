package services

import (
	"fmt"
	"time"

	"alertreport/models"
)

// Alert timestamps end in a literal "Z" but are wall-clock times in the
// alert source's configured timezone. The fractional layout is tried first.
var alertTimeLayouts = []string{
	"2006-01-02T15:04:05.999999Z",
	"2006-01-02T15:04:05Z",
}

// ParseAlertTime parses an alert's createdAt value as a wall-clock time in loc.
func ParseAlertTime(raw string, loc *time.Location) (time.Time, error) {
	var lastErr error
	for _, layout := range alertTimeLayouts {
		t, err := time.ParseInLocation(layout, raw, loc)
		if err == nil {
			return t, nil
		}
		lastErr = err
	}
	return time.Time{}, parseError("parse alert timestamp", fmt.Errorf("%q: %w", raw, lastErr))
}

// TimeframeFilter classifies alerts against a recurring schedule.
// A filter without a schedule is disabled.
type TimeframeFilter struct {
	schedule *models.RecurringSchedule
	source   *time.Location
}

// NewTimeframeFilter builds a filter. schedule may be nil.
func NewTimeframeFilter(schedule *models.RecurringSchedule, source *time.Location) *TimeframeFilter {
	return &TimeframeFilter{schedule: schedule, source: source}
}

// Enabled reports whether a schedule is active.
func (f *TimeframeFilter) Enabled() bool {
	return f != nil && f.schedule != nil
}

// Matches parses createdAt in the source timezone and checks it against the schedule.
// A disabled filter matches everything.
func (f *TimeframeFilter) Matches(createdAt string) (bool, error) {
	if !f.Enabled() {
		return true, nil
	}
	t, err := ParseAlertTime(createdAt, f.source)
	if err != nil {
		return false, err
	}
	return InSchedule(*f.schedule, t), nil
}

// InSchedule reports whether t, converted to the schedule's timezone, falls on
// one of its weekdays and within [Start, End], both ends inclusive.
func InSchedule(s models.RecurringSchedule, t time.Time) bool {
	loc := s.Location
	if loc == nil {
		loc = time.UTC
	}
	local := t.In(loc)
	if !s.HasWeekday(isoWeekday(local)) {
		return false
	}

	clock := time.Duration(models.ClockOf(local).Seconds())*time.Second + time.Duration(local.Nanosecond())
	start := time.Duration(s.Start.Seconds()) * time.Second
	end := time.Duration(s.End.Seconds()) * time.Second
	return clock >= start && clock <= end
}
