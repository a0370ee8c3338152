package db

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"alertreport/models"
)

func newMockStore(t *testing.T) (*RunStore, sqlmock.Sqlmock) {
	t.Helper()
	conn, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return NewRunStore(conn), mock
}

var runRowColumns = []string{
	"id", "window_start", "window_end", "status", "total_alerts", "windowed_alerts", "pages",
	"provider", "dispatch_status", "dispatch_body", "error", "triggered_by", "report", "started_at", "finished_at",
}

func TestRunStore_Create(t *testing.T) {
	store, mock := newMockStore(t)
	start := time.Date(2023, 6, 5, 0, 0, 0, 0, time.UTC)
	run := &models.ReportRun{
		ID:          "run-1",
		WindowStart: start,
		WindowEnd:   start.AddDate(0, 0, 7).Add(-time.Second),
		Status:      models.RunStatusRunning,
		TriggeredBy: "cli",
		StartedAt:   start.AddDate(0, 0, 9),
	}

	mock.ExpectExec("INSERT INTO report_runs").
		WithArgs(run.ID, run.WindowStart, run.WindowEnd, run.Status, run.TriggeredBy, run.StartedAt).
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, store.Create(context.Background(), run))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRunStore_FinishMissingRun(t *testing.T) {
	store, mock := newMockStore(t)
	windowed := 4

	mock.ExpectExec("UPDATE report_runs").
		WithArgs("run-x", models.RunStatusSucceeded, 10, sqlmock.AnyArg(), 1,
			"api", 200, "ok", "", "report", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := store.Finish(context.Background(), &models.ReportRun{
		ID:             "run-x",
		Status:         models.RunStatusSucceeded,
		TotalAlerts:    10,
		WindowedAlerts: &windowed,
		Pages:          1,
		Provider:       "api",
		DispatchStatus: 200,
		DispatchBody:   "ok",
		Report:         "report",
	})
	assert.ErrorIs(t, err, ErrRunNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRunStore_ListMapsNullableColumns(t *testing.T) {
	store, mock := newMockStore(t)
	start := time.Date(2023, 6, 5, 0, 0, 0, 0, time.UTC)
	finished := start.AddDate(0, 0, 9)

	mock.ExpectQuery("FROM report_runs ORDER BY started_at DESC LIMIT \\$1").
		WithArgs(20).
		WillReturnRows(sqlmock.NewRows(runRowColumns).
			AddRow("run-2", start, start.AddDate(0, 0, 7), "succeeded", 237, 12, 3,
				"api", 200, "queued", "", "cli", "Hello!", start, finished).
			AddRow("run-1", start, start.AddDate(0, 0, 7), "failed", 0, nil, 1,
				"", 0, "", "transport error", "cli", "", start, nil))

	runs, err := store.List(context.Background(), 0)
	require.NoError(t, err)
	require.Len(t, runs, 2)

	require.NotNil(t, runs[0].WindowedAlerts)
	assert.Equal(t, 12, *runs[0].WindowedAlerts)
	require.NotNil(t, runs[0].FinishedAt)
	assert.True(t, finished.Equal(*runs[0].FinishedAt))

	assert.Nil(t, runs[1].WindowedAlerts)
	assert.Nil(t, runs[1].FinishedAt)
	assert.Equal(t, "transport error", runs[1].Error)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRunStore_GetNotFound(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectQuery("FROM report_runs WHERE id = \\$1").
		WithArgs("missing").
		WillReturnError(sql.ErrNoRows)

	_, err := store.Get(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrRunNotFound)
}

func TestRunStore_Stats(t *testing.T) {
	store, mock := newMockStore(t)
	last := time.Date(2023, 6, 12, 9, 0, 0, 0, time.UTC)

	mock.ExpectQuery("FROM report_runs").
		WillReturnRows(sqlmock.NewRows([]string{"total", "ok", "failed", "dry", "avg", "last"}).
			AddRow(6, 3, 1, 2, 150.5, last))

	stats, err := store.Stats(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 6, stats.TotalRuns)
	assert.Equal(t, 2, stats.DryRuns)
	assert.InDelta(t, 75.0, stats.SuccessRate, 0.001)
	assert.InDelta(t, 150.5, stats.AvgTotalAlerts, 0.001)
	require.NotNil(t, stats.LastSuccessAt)
	assert.True(t, last.Equal(*stats.LastSuccessAt))
}

func TestRunStore_StatsEmptyLedger(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectQuery("FROM report_runs").
		WillReturnRows(sqlmock.NewRows([]string{"total", "ok", "failed", "dry", "avg", "last"}).
			AddRow(0, 0, 0, 0, nil, nil))

	stats, err := store.Stats(context.Background())
	require.NoError(t, err)
	assert.Zero(t, stats.SuccessRate)
	assert.Nil(t, stats.LastSuccessAt)
}
