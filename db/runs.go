package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"alertreport/models"
)

var ErrRunNotFound = errors.New("report run not found")

// RunStore persists report runs in the report_runs table.
type RunStore struct {
	conn *sql.DB
}

func NewRunStore(conn *sql.DB) *RunStore {
	return &RunStore{conn: conn}
}

const runColumns = `id, window_start, window_end, status, total_alerts, windowed_alerts, pages,
	provider, dispatch_status, dispatch_body, error, triggered_by, report, started_at, finished_at`

// Create inserts run in its initial state.
func (s *RunStore) Create(ctx context.Context, run *models.ReportRun) error {
	_, err := s.conn.ExecContext(ctx, `
		INSERT INTO report_runs (id, window_start, window_end, status, triggered_by, started_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, run.ID, run.WindowStart, run.WindowEnd, run.Status, run.TriggeredBy, run.StartedAt)
	if err != nil {
		return fmt.Errorf("insert report run: %w", err)
	}
	return nil
}

// Finish records the outcome of run.
func (s *RunStore) Finish(ctx context.Context, run *models.ReportRun) error {
	var windowed sql.NullInt64
	if run.WindowedAlerts != nil {
		windowed = sql.NullInt64{Int64: int64(*run.WindowedAlerts), Valid: true}
	}
	var finished sql.NullTime
	if run.FinishedAt != nil {
		finished = sql.NullTime{Time: *run.FinishedAt, Valid: true}
	}

	res, err := s.conn.ExecContext(ctx, `
		UPDATE report_runs
		SET status = $2, total_alerts = $3, windowed_alerts = $4, pages = $5,
		    provider = $6, dispatch_status = $7, dispatch_body = $8, error = $9,
		    report = $10, finished_at = $11
		WHERE id = $1
	`, run.ID, run.Status, run.TotalAlerts, windowed, run.Pages,
		run.Provider, run.DispatchStatus, run.DispatchBody, run.Error,
		run.Report, finished)
	if err != nil {
		return fmt.Errorf("update report run: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrRunNotFound
	}
	return nil
}

// List returns the most recent runs, newest first.
func (s *RunStore) List(ctx context.Context, limit int) ([]models.ReportRun, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}

	rows, err := s.conn.QueryContext(ctx,
		`SELECT `+runColumns+` FROM report_runs ORDER BY started_at DESC LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("list report runs: %w", err)
	}
	defer rows.Close()

	runs := []models.ReportRun{}
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, run)
	}
	return runs, rows.Err()
}

func (s *RunStore) Get(ctx context.Context, id string) (*models.ReportRun, error) {
	row := s.conn.QueryRowContext(ctx, `SELECT `+runColumns+` FROM report_runs WHERE id = $1`, id)
	run, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrRunNotFound
	}
	if err != nil {
		return nil, err
	}
	return &run, nil
}

// Stats aggregates the whole ledger. Dry runs are excluded from the success rate.
func (s *RunStore) Stats(ctx context.Context) (models.RunStats, error) {
	var stats models.RunStats
	var avg sql.NullFloat64
	var lastSuccess sql.NullTime

	err := s.conn.QueryRowContext(ctx, `
		SELECT
			COUNT(*),
			COUNT(*) FILTER (WHERE status = 'succeeded'),
			COUNT(*) FILTER (WHERE status = 'failed'),
			COUNT(*) FILTER (WHERE status = 'dry_run'),
			AVG(total_alerts) FILTER (WHERE status = 'succeeded'),
			MAX(finished_at) FILTER (WHERE status = 'succeeded')
		FROM report_runs
	`).Scan(&stats.TotalRuns, &stats.SucceededRuns, &stats.FailedRuns, &stats.DryRuns, &avg, &lastSuccess)
	if err != nil {
		return stats, fmt.Errorf("report run stats: %w", err)
	}

	if avg.Valid {
		stats.AvgTotalAlerts = avg.Float64
	}
	if lastSuccess.Valid {
		t := lastSuccess.Time
		stats.LastSuccessAt = &t
	}
	if decided := stats.SucceededRuns + stats.FailedRuns; decided > 0 {
		stats.SuccessRate = float64(stats.SucceededRuns) / float64(decided) * 100
	}
	return stats, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRun(row rowScanner) (models.ReportRun, error) {
	var run models.ReportRun
	var windowed sql.NullInt64
	var finished sql.NullTime

	err := row.Scan(&run.ID, &run.WindowStart, &run.WindowEnd, &run.Status,
		&run.TotalAlerts, &windowed, &run.Pages, &run.Provider,
		&run.DispatchStatus, &run.DispatchBody, &run.Error, &run.TriggeredBy,
		&run.Report, &run.StartedAt, &finished)
	if err != nil {
		return run, err
	}
	if windowed.Valid {
		n := int(windowed.Int64)
		run.WindowedAlerts = &n
	}
	if finished.Valid {
		t := finished.Time
		run.FinishedAt = &t
	}
	return run, nil
}
