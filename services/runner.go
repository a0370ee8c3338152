package services

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"alertreport/config"
	"alertreport/models"
)

// RunRecorder persists run outcomes. db.RunStore satisfies it.
type RunRecorder interface {
	Create(ctx context.Context, run *models.ReportRun) error
	Finish(ctx context.Context, run *models.ReportRun) error
}

// RunOptions controls a single run.
type RunOptions struct {
	// DryRun builds and prints the report without dispatching it.
	DryRun bool
	// Now overrides the clock; the zero value means "now".
	Now         time.Time
	TriggeredBy string
}

// RunResult is everything a run produced.
type RunResult struct {
	Run      models.ReportRun       `json:"run"`
	Window   models.TimeWindow      `json:"window"`
	Query    string                 `json:"query"`
	Counts   models.ReportCounts    `json:"counts"`
	Report   string                 `json:"report"`
	Dispatch *models.DispatchResult `json:"dispatch,omitempty"`
}

// WindowPreview describes the window and query a run at a given time would use.
type WindowPreview struct {
	Now         time.Time         `json:"now"`
	Window      models.TimeWindow `json:"window"`
	StartMillis int64             `json:"start_ms"`
	EndMillis   int64             `json:"end_ms"`
	StartText   string            `json:"start_text"`
	EndText     string            `json:"end_text"`
	Query       string            `json:"query"`
}

// Runner drives one report: window, pagination, filtering, rendering and delivery.
type Runner struct {
	cfg        config.Config
	reportLoc  *time.Location
	filter     *TimeframeFilter
	pager      *AlertPager
	dispatcher Dispatcher
	store      RunRecorder
	lock       RunLock
	metrics    *Metrics
	logger     *logrus.Logger
	out        io.Writer
	clock      func() time.Time
}

type RunnerOption func(*Runner)

func WithDispatcher(d Dispatcher) RunnerOption {
	return func(r *Runner) { r.dispatcher = d }
}

func WithAlertPager(p *AlertPager) RunnerOption {
	return func(r *Runner) { r.pager = p }
}

func WithRunRecorder(s RunRecorder) RunnerOption {
	return func(r *Runner) { r.store = s }
}

func WithRunLock(l RunLock) RunnerOption {
	return func(r *Runner) { r.lock = l }
}

func WithRunnerMetrics(m *Metrics) RunnerOption {
	return func(r *Runner) { r.metrics = m }
}

func WithRunnerLogger(l *logrus.Logger) RunnerOption {
	return func(r *Runner) {
		if l != nil {
			r.logger = l
		}
	}
}

// WithOutput sets where the report and dispatch status are printed.
func WithOutput(w io.Writer) RunnerOption {
	return func(r *Runner) {
		if w != nil {
			r.out = w
		}
	}
}

func WithClock(clock func() time.Time) RunnerOption {
	return func(r *Runner) {
		if clock != nil {
			r.clock = clock
		}
	}
}

// NewRunner validates cfg and wires the default pager and dispatcher.
// Every configuration problem is reported here, before any network call.
func NewRunner(cfg config.Config, opts ...RunnerOption) (*Runner, error) {
	if err := cfg.Validate(); err != nil {
		return nil, configError("validate config", err)
	}

	reportLoc, err := LoadLocation(cfg.Report.Timezone)
	if err != nil {
		return nil, err
	}
	sourceLoc, err := LoadLocation(cfg.Alerts.Timezone)
	if err != nil {
		return nil, err
	}
	schedule, err := cfg.Schedule()
	if err != nil {
		return nil, configError("load schedule", err)
	}

	r := &Runner{
		cfg:       cfg,
		reportLoc: reportLoc,
		filter:    NewTimeframeFilter(schedule, sourceLoc),
		logger:    logrus.StandardLogger(),
		out:       os.Stdout,
		clock:     time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}

	if r.pager == nil {
		r.pager = NewAlertPager(cfg.Alerts.URL, cfg.Alerts.APIKey, cfg.Alerts.PageSize,
			WithPagerHTTPClient(&http.Client{Timeout: cfg.HTTP.Timeout}),
			WithPagerRetry(RetryConfig{
				MaxRetries: cfg.HTTP.MaxRetries,
				BaseDelay:  cfg.HTTP.RetryBaseDelay,
				MaxDelay:   cfg.HTTP.RetryMaxDelay,
			}),
			WithPagerLogger(r.logger),
			WithPagerMetrics(r.metrics),
		)
	}
	if r.dispatcher == nil {
		d, err := NewDispatcher(cfg.Email, cfg.HTTP, r.logger)
		if err != nil {
			return nil, err
		}
		r.dispatcher = d
	}
	return r, nil
}

// Preview returns the window and query a run at now would use.
func (r *Runner) Preview(now time.Time) WindowPreview {
	window := LastWeek(now, r.reportLoc)
	start, end := FormatWindow(window, r.cfg.Report.TimeFormat)
	return WindowPreview{
		Now:         now.In(r.reportLoc),
		Window:      window,
		StartMillis: window.StartMillis(),
		EndMillis:   window.EndMillis(),
		StartText:   start,
		EndText:     end,
		Query:       BuildQuery(window, r.cfg.Alerts.Tags),
	}
}

// Run executes one report. A pagination or parse failure fails the run and
// nothing is sent. A failed dispatch only fails the run when StrictDispatch
// is on.
func (r *Runner) Run(ctx context.Context, opts RunOptions) (*RunResult, error) {
	started := r.clock()
	now := opts.Now
	if now.IsZero() {
		now = started
	}
	if opts.TriggeredBy == "" {
		opts.TriggeredBy = "cli"
	}

	window := LastWeek(now, r.reportLoc)
	result := &RunResult{
		Window: window,
		Query:  BuildQuery(window, r.cfg.Alerts.Tags),
		Run: models.ReportRun{
			ID:          uuid.NewString(),
			WindowStart: window.Start,
			WindowEnd:   window.End,
			Status:      models.RunStatusRunning,
			Provider:    r.dispatcher.Name(),
			TriggeredBy: opts.TriggeredBy,
			StartedAt:   started,
		},
	}
	log := r.logger.WithFields(logrus.Fields{
		"run_id":       result.Run.ID,
		"window_start": window.Start.Format(time.RFC3339),
		"window_end":   window.End.Format(time.RFC3339),
	})

	if r.lock != nil {
		release, err := r.lock.Acquire(ctx, window)
		if err != nil {
			log.WithError(err).Warn("Report run not started")
			return nil, err
		}
		defer release(context.WithoutCancel(ctx))
	}

	if r.store != nil {
		if err := r.store.Create(ctx, &result.Run); err != nil {
			log.WithError(err).Warn("Failed to record report run")
		}
	}

	log.WithField("query", result.Query).Info("Counting alerts")
	counts, pages, err := r.count(ctx, result.Query)
	result.Run.Pages = pages
	if err != nil {
		log.WithError(err).WithFields(logrus.Fields{
			"discarded_alerts": counts.Total,
			"pages":            pages,
		}).Error("Alert pagination failed; partial counts discarded and no report sent")
		return result, r.finish(ctx, result, started, err)
	}

	result.Counts = counts
	result.Run.TotalAlerts = counts.Total
	result.Run.WindowedAlerts = counts.Windowed
	r.metrics.AlertsCounted(counts.Total, counts.Windowed)

	result.Report = BuildReport(now, window, r.reportLoc, counts, ReportFormat{
		TimeFormat:    r.cfg.Report.TimeFormat,
		WindowedLabel: r.cfg.Report.WindowedLabel,
	})
	result.Run.Report = result.Report
	fmt.Fprintln(r.out, result.Report)

	if opts.DryRun {
		log.Info("Dry run; report not dispatched")
		return result, r.finish(ctx, result, started, nil)
	}

	dispatch := Deliver(ctx, r.dispatcher, models.EmailRequest{
		Subject: r.cfg.Email.Subject,
		Body:    result.Report,
		To:      r.cfg.Email.To,
		Cc:      r.cfg.Email.Cc,
		Bcc:     r.cfg.Email.Bcc,
	})
	result.Dispatch = &dispatch
	result.Run.DispatchStatus = dispatch.StatusCode
	result.Run.DispatchBody = truncate(dispatch.Body, 4096)
	r.metrics.Dispatched(dispatch.Provider, dispatch.OK())

	fmt.Fprintf(r.out, "\nEmail status: %d\n%s\n", dispatch.StatusCode, dispatch.Body)

	if !dispatch.OK() {
		entry := log.WithError(dispatch.Err).WithFields(logrus.Fields{
			"provider": dispatch.Provider,
			"status":   dispatch.StatusCode,
		})
		if r.cfg.Features.StrictDispatch {
			entry.Error("Report dispatch failed")
			return result, r.finish(ctx, result, started, dispatch.Err)
		}
		entry.Warn("Report dispatch failed; run still counted as succeeded")
	}
	return result, r.finish(ctx, result, started, nil)
}

// count drains the alert stream. On error the counts so far are returned only
// so the caller can report how much was discarded.
func (r *Runner) count(ctx context.Context, query string) (models.ReportCounts, int, error) {
	var counts models.ReportCounts
	windowed := 0

	stream := r.pager.FetchAll(ctx, query)
	for rec, err := range stream.Records() {
		if err != nil {
			return counts, stream.Pages(), err
		}
		counts.Total++
		if !r.filter.Enabled() {
			continue
		}
		ok, err := r.filter.Matches(rec.CreatedAt)
		if err != nil {
			return counts, stream.Pages(), fmt.Errorf("alert %s: %w", rec.ID, err)
		}
		if ok {
			windowed++
		}
	}

	if r.filter.Enabled() {
		counts.Windowed = &windowed
	}
	return counts, stream.Pages(), nil
}

func (r *Runner) finish(ctx context.Context, result *RunResult, started time.Time, runErr error) error {
	finished := r.clock()
	result.Run.FinishedAt = &finished

	switch {
	case runErr != nil:
		result.Run.Status = models.RunStatusFailed
		result.Run.Error = runErr.Error()
	case result.Dispatch == nil:
		result.Run.Status = models.RunStatusDryRun
	default:
		result.Run.Status = models.RunStatusSucceeded
	}
	r.metrics.RunFinished(result.Run.Status, started)

	if r.store != nil {
		if err := r.store.Finish(context.WithoutCancel(ctx), &result.Run); err != nil {
			r.logger.WithError(err).WithField("run_id", result.Run.ID).Warn("Failed to record report run outcome")
		}
	}

	if runErr == nil {
		r.logger.WithFields(logrus.Fields{
			"run_id": result.Run.ID,
			"status": result.Run.Status,
			"total":  result.Run.TotalAlerts,
		}).Info("Report run finished")
	}
	return runErr
}

// IsRunInProgress reports whether err means another run holds the window.
func IsRunInProgress(err error) bool {
	return errors.Is(err, ErrRunInProgress)
}
