package models

import (
	"encoding/json"
	"fmt"
	"time"
)

// TimeWindow is an inclusive [Start, End] reporting period.
type TimeWindow struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// StartMillis returns Start as epoch milliseconds, truncating sub-millisecond precision.
func (w TimeWindow) StartMillis() int64 {
	return w.Start.UnixMilli()
}

// EndMillis returns End as epoch milliseconds, truncating sub-millisecond precision.
func (w TimeWindow) EndMillis() int64 {
	return w.End.UnixMilli()
}

// TimeOfDay is a wall-clock time with second granularity.
type TimeOfDay struct {
	Hour   int `json:"hour" yaml:"hour"`
	Minute int `json:"minute" yaml:"minute"`
	Second int `json:"second" yaml:"second"`
}

// Seconds returns the number of seconds since midnight.
func (t TimeOfDay) Seconds() int {
	return t.Hour*3600 + t.Minute*60 + t.Second
}

func (t TimeOfDay) String() string {
	return fmt.Sprintf("%02d:%02d:%02d", t.Hour, t.Minute, t.Second)
}

// ClockOf returns the wall-clock time of day of t in its own location.
func ClockOf(t time.Time) TimeOfDay {
	h, m, s := t.Clock()
	return TimeOfDay{Hour: h, Minute: m, Second: s}
}

// RecurringSchedule is a weekly rule such as "Mon-Fri 09:00-17:00 in America/New_York".
// Weekdays use Monday=0 .. Sunday=6.
type RecurringSchedule struct {
	Weekdays []int          `json:"weekdays"`
	Start    TimeOfDay      `json:"start"`
	End      TimeOfDay      `json:"end"`
	Location *time.Location `json:"-"`
}

// HasWeekday reports whether day (Monday=0) is part of the schedule.
func (s RecurringSchedule) HasWeekday(day int) bool {
	for _, d := range s.Weekdays {
		if d == day {
			return true
		}
	}
	return false
}

// AlertRecord is a single alert as returned by the alerts API.
// CreatedAt is kept verbatim; it is only parsed when a schedule is active.
type AlertRecord struct {
	ID        string          `json:"id"`
	CreatedAt string          `json:"createdAt"`
	Tags      []string        `json:"tags"`
	Raw       json.RawMessage `json:"-"`
}

// ReportCounts holds the aggregated numbers for one run.
// Windowed is nil when no schedule is active.
type ReportCounts struct {
	Total    int  `json:"total_alerts"`
	Windowed *int `json:"windowed_alerts,omitempty"`
}

type EmailRequest struct {
	Subject string   `json:"subject"`
	Body    string   `json:"body"`
	To      []string `json:"to"`
	Cc      []string `json:"cc"`
	Bcc     []string `json:"bcc"`
}

// DispatchResult is what a delivery attempt produced. Err is set for
// transport failures and rejected deliveries alike. StatusCode is the
// provider's own code, so SMTP reports 250 on success.
type DispatchResult struct {
	Provider   string `json:"provider"`
	StatusCode int    `json:"status_code"`
	Body       string `json:"body"`
	Err        error  `json:"-"`
}

func (r DispatchResult) OK() bool {
	return r.Err == nil
}

const (
	RunStatusRunning   = "running"
	RunStatusSucceeded = "succeeded"
	RunStatusFailed    = "failed"
	RunStatusDryRun    = "dry_run"
)

// ReportRun is one execution of the reporter, as stored in the run ledger.
type ReportRun struct {
	ID             string     `json:"id"`
	WindowStart    time.Time  `json:"window_start"`
	WindowEnd      time.Time  `json:"window_end"`
	Status         string     `json:"status"`
	TotalAlerts    int        `json:"total_alerts"`
	WindowedAlerts *int       `json:"windowed_alerts,omitempty"`
	Pages          int        `json:"pages"`
	Provider       string     `json:"provider"`
	DispatchStatus int        `json:"dispatch_status"`
	DispatchBody   string     `json:"dispatch_body,omitempty"`
	Error          string     `json:"error,omitempty"`
	TriggeredBy    string     `json:"triggered_by"`
	Report         string     `json:"report,omitempty"`
	StartedAt      time.Time  `json:"started_at"`
	FinishedAt     *time.Time `json:"finished_at,omitempty"`
}

// RunStats summarizes the run ledger.
type RunStats struct {
	TotalRuns      int        `json:"total_runs"`
	SucceededRuns  int        `json:"succeeded_runs"`
	FailedRuns     int        `json:"failed_runs"`
	DryRuns        int        `json:"dry_runs"`
	SuccessRate    float64    `json:"success_rate"`
	AvgTotalAlerts float64    `json:"avg_total_alerts"`
	LastSuccessAt  *time.Time `json:"last_success_at,omitempty"`
}
