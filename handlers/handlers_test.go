package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"alertreport/db"
	"alertreport/logging"
	"alertreport/middleware"
	"alertreport/models"
	"alertreport/services"
)

type fakeRunner struct {
	lastOpts services.RunOptions
	result   *services.RunResult
	err      error
}

func (f *fakeRunner) Run(_ context.Context, opts services.RunOptions) (*services.RunResult, error) {
	f.lastOpts = opts
	return f.result, f.err
}

func (f *fakeRunner) Preview(now time.Time) services.WindowPreview {
	w := services.LastWeek(now, time.UTC)
	return services.WindowPreview{Now: now, Window: w, StartMillis: w.StartMillis(), EndMillis: w.EndMillis()}
}

type fakeLedger struct {
	runs  []models.ReportRun
	stats models.RunStats
	err   error
}

func (f *fakeLedger) List(_ context.Context, limit int) ([]models.ReportRun, error) {
	if f.err != nil {
		return nil, f.err
	}
	if limit < len(f.runs) {
		return f.runs[:limit], nil
	}
	return f.runs, nil
}

func (f *fakeLedger) Get(_ context.Context, id string) (*models.ReportRun, error) {
	for i := range f.runs {
		if f.runs[i].ID == id {
			return &f.runs[i], nil
		}
	}
	return nil, db.ErrRunNotFound
}

func (f *fakeLedger) Stats(context.Context) (models.RunStats, error) {
	return f.stats, f.err
}

func newTestRouter(h *Handlers) *gin.Engine {
	gin.SetMode(gin.TestMode)
	if h.Logger == nil {
		h.Logger = logging.NewDiscardLogger()
	}
	r := gin.New()
	h.Register(r, middleware.AuthRequired(false, nil), promhttp.HandlerFor(prometheus.NewRegistry(), promhttp.HandlerOpts{}))
	return r
}

func do(r http.Handler, method, target string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, target, nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestTriggerRun_Success(t *testing.T) {
	runner := &fakeRunner{result: &services.RunResult{
		Run:    models.ReportRun{ID: "run-1", Status: models.RunStatusDryRun},
		Counts: models.ReportCounts{Total: 12},
		Report: "Hello!",
	}}
	r := newTestRouter(&Handlers{Runner: runner})

	w := do(r, http.MethodPost, "/api/reports/run?dry_run=true&now=2023-06-14T12:00:00Z")

	require.Equal(t, http.StatusOK, w.Code)
	assert.True(t, runner.lastOpts.DryRun)
	assert.Equal(t, time.Date(2023, 6, 14, 12, 0, 0, 0, time.UTC), runner.lastOpts.Now)
	assert.Equal(t, "api:system@alertreport.internal", runner.lastOpts.TriggeredBy)

	var body map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "Hello!", body["report"])
	assert.Equal(t, 12.0, body["counts"].(map[string]any)["total_alerts"])
}

func TestTriggerRun_ErrorMapping(t *testing.T) {
	transport := &services.Error{Kind: services.KindTransport, Op: "fetch alerts page", Err: errors.New("HTTP 503")}

	tests := []struct {
		name string
		err  error
		code int
		kind string
	}{
		{"transport", transport, http.StatusBadGateway, "transport"},
		{"parse", &services.Error{Kind: services.KindParse, Err: errors.New("bad json")}, http.StatusBadGateway, "parse"},
		{"configuration", &services.Error{Kind: services.KindConfiguration, Err: errors.New("no tz")}, http.StatusInternalServerError, "configuration"},
		{"lock held", services.ErrRunInProgress, http.StatusConflict, ""},
		{"lock held wrapped", fmt.Errorf("acquire lease: %w", services.ErrRunInProgress), http.StatusConflict, ""},
		{"unclassified", errors.New("boom"), http.StatusInternalServerError, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := newTestRouter(&Handlers{Runner: &fakeRunner{err: tt.err}})

			w := do(r, http.MethodPost, "/api/reports/run")

			assert.Equal(t, tt.code, w.Code)
			var body map[string]any
			require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
			assert.Equal(t, tt.err.Error(), body["error"])
			if tt.kind != "" {
				assert.Equal(t, tt.kind, body["kind"])
			} else {
				assert.NotContains(t, body, "kind")
			}
		})
	}
}

func TestTriggerRun_FailedRunIncludesLedgerEntry(t *testing.T) {
	err := &services.Error{Kind: services.KindTransport, Err: errors.New("HTTP 500")}
	runner := &fakeRunner{err: err, result: &services.RunResult{
		Run: models.ReportRun{ID: "run-9", Status: models.RunStatusFailed},
	}}
	r := newTestRouter(&Handlers{Runner: runner})

	w := do(r, http.MethodPost, "/api/reports/run")

	assert.Equal(t, http.StatusBadGateway, w.Code)
	assert.Contains(t, w.Body.String(), `"id":"run-9"`)
}

func TestTriggerRun_BadNow(t *testing.T) {
	r := newTestRouter(&Handlers{Runner: &fakeRunner{}})

	w := do(r, http.MethodPost, "/api/reports/run?now=yesterday")

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestPreviewWindow(t *testing.T) {
	r := newTestRouter(&Handlers{
		Runner: &fakeRunner{},
		Now:    func() time.Time { return time.Date(2023, 6, 14, 12, 0, 0, 0, time.UTC) },
	})

	w := do(r, http.MethodGet, "/api/reports/window")

	require.Equal(t, http.StatusOK, w.Code)
	var body services.WindowPreview
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, int64(1685836800000), body.StartMillis)
	assert.Equal(t, int64(1686441599000), body.EndMillis)
}

func TestRuns_WithLedger(t *testing.T) {
	ledger := &fakeLedger{runs: []models.ReportRun{
		{ID: "run-2", Status: models.RunStatusSucceeded, TotalAlerts: 237},
		{ID: "run-1", Status: models.RunStatusFailed},
	}}
	r := newTestRouter(&Handlers{Runner: &fakeRunner{}, Ledger: ledger})

	w := do(r, http.MethodGet, "/api/reports/runs?limit=1")
	require.Equal(t, http.StatusOK, w.Code)
	var runs []models.ReportRun
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &runs))
	require.Len(t, runs, 1)
	assert.Equal(t, "run-2", runs[0].ID)

	w = do(r, http.MethodGet, "/api/reports/runs/run-1")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"status":"failed"`)

	w = do(r, http.MethodGet, "/api/reports/runs/nope")
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = do(r, http.MethodGet, "/api/reports/runs?limit=zero")
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestRuns_LedgerError(t *testing.T) {
	r := newTestRouter(&Handlers{Runner: &fakeRunner{}, Ledger: &fakeLedger{err: errors.New("connection reset")}})

	w := do(r, http.MethodGet, "/api/reports/runs")
	assert.Equal(t, http.StatusInternalServerError, w.Code)

	w = do(r, http.MethodGet, "/api/stats/overview")
	assert.Equal(t, http.StatusInternalServerError, w.Code)
}

func TestRuns_WithoutLedger(t *testing.T) {
	r := newTestRouter(&Handlers{Runner: &fakeRunner{}})

	for _, target := range []string{"/api/reports/runs", "/api/reports/runs/x", "/api/stats/overview"} {
		w := do(r, http.MethodGet, target)
		assert.Equal(t, http.StatusServiceUnavailable, w.Code, target)
	}
}

func TestStatsOverview(t *testing.T) {
	ledger := &fakeLedger{stats: models.RunStats{TotalRuns: 4, SucceededRuns: 3, FailedRuns: 1, SuccessRate: 75}}
	r := newTestRouter(&Handlers{Runner: &fakeRunner{}, Ledger: ledger})

	w := do(r, http.MethodGet, "/api/stats/overview")

	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"success_rate":75`)
}

func TestHealthMetricsAndMe(t *testing.T) {
	r := newTestRouter(&Handlers{Runner: &fakeRunner{}})

	w := do(r, http.MethodGet, "/health")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"status":"ok","ledger":false}`, w.Body.String())

	w = do(r, http.MethodGet, "/metrics")
	assert.Equal(t, http.StatusOK, w.Code)

	w = do(r, http.MethodGet, "/api/me")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"sub":"system"`)
}

func TestAuthEnabledProtectsAPI(t *testing.T) {
	gin.SetMode(gin.TestMode)
	h := &Handlers{Runner: &fakeRunner{}, Logger: logging.NewDiscardLogger()}
	r := gin.New()
	h.Register(r, middleware.AuthRequired(true, []byte("s3cret")), nil)

	assert.Equal(t, http.StatusUnauthorized, do(r, http.MethodPost, "/api/reports/run").Code)
	assert.Equal(t, http.StatusOK, do(r, http.MethodGet, "/health").Code)
	assert.Equal(t, http.StatusNotFound, do(r, http.MethodGet, "/metrics").Code)
}
