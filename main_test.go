package main

import (
	"bytes"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"alertreport/config"
	"alertreport/services"
)

func TestExitCode(t *testing.T) {
	assert.Equal(t, exitRunInProgress, exitCode(fmt.Errorf("run: %w", services.ErrRunInProgress)))
	assert.Equal(t, exitConfiguration, exitCode(&services.Error{Kind: services.KindConfiguration, Err: errors.New("x")}))
	assert.Equal(t, exitFailure, exitCode(&services.Error{Kind: services.KindTransport, Err: errors.New("x")}))
	assert.Equal(t, exitFailure, exitCode(errors.New("x")))
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCmd()
	out := &bytes.Buffer{}
	cmd.SetOut(out)
	cmd.SetErr(out)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestWindowCommand(t *testing.T) {
	t.Setenv("REPORT_TIMEZONE", "UTC")
	t.Setenv("OG_ALERT_TAGS", "prod")
	t.Setenv("EMAIL_TIME_FORMAT", "")

	out, err := execute(t, "window", "--now", "2023-06-14T12:00:00Z")
	require.NoError(t, err)

	assert.Contains(t, out, "Start: 2023-06-04 00:00:00 UTC (1685836800000)")
	assert.Contains(t, out, "End:   2023-06-10 23:59:59 UTC (1686441599000)")
	assert.Contains(t, out, "Query: createdAt>= 1685836800000 AND createdAt<= 1686441599000 AND tag: prod")
}

func TestWindowCommand_BadTimezone(t *testing.T) {
	t.Setenv("REPORT_TIMEZONE", "Mars/Olympus")

	_, err := execute(t, "window")
	require.Error(t, err)
	assert.Equal(t, exitConfiguration, exitCode(err))
}

func TestRunCommand_DryRun(t *testing.T) {
	alerts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"data":[{"id":"1","createdAt":"2023-06-06T10:00:00Z"},{"id":"2","createdAt":"2023-06-10T10:00:00Z"}]}`))
	}))
	defer alerts.Close()

	for _, key := range []string{"DATABASE_URL", "REDIS_URL", "STRICT_DISPATCH", "EMAIL_PROVIDER", "EMAIL_TIME_FORMAT", "OG_TIMEZONE", "TIMEFRAME_TIMEZONE"} {
		t.Setenv(key, "")
	}
	t.Setenv("OG_API_ALERTS_URL", alerts.URL)
	t.Setenv("OG_API_KEY", "GenieKey abc")
	t.Setenv("OG_ALERT_TAGS", "")
	t.Setenv("REPORT_TIMEZONE", "UTC")
	t.Setenv("EMAIL_API_BASE_URL", "http://127.0.0.1:1")
	t.Setenv("EMAIL_TO", "ops@example.com")
	t.Setenv("USE_TIMEFRAMES", "true")
	t.Setenv("TIMEFRAME_DAYS", "0,1,2,3,4")
	t.Setenv("TIMEFRAME_START", "09:00")
	t.Setenv("TIMEFRAME_END", "17:00")
	t.Setenv("METRICS_ENABLED", "false")
	t.Setenv("LOG_LEVEL", "error")

	out, err := execute(t, "run", "--dry-run", "--now", "2023-06-14T12:00:00Z")
	require.NoError(t, err)

	assert.Contains(t, out, "Last week's start: 2023-06-04 00:00:00 UTC")
	assert.Contains(t, out, "Total alerts:   2\nWorkday alerts: 1")
	assert.NotContains(t, out, "Email status")
}

func TestRunCommand_InvalidConfig(t *testing.T) {
	t.Setenv("OG_API_ALERTS_URL", "")
	t.Setenv("OG_API_KEY", "")
	t.Setenv("DATABASE_URL", "")
	t.Setenv("REDIS_URL", "")

	_, err := execute(t, "run")
	require.Error(t, err)
	assert.Equal(t, exitConfiguration, exitCode(err))
}

func TestRouterRequiresSecretWithAuth(t *testing.T) {
	a := &app{cfg: config.Defaults()}
	a.cfg.Features.AuthEnabled = true

	_, err := a.router()
	require.Error(t, err)
	assert.True(t, services.IsConfiguration(err))
}

func TestVersionCommand(t *testing.T) {
	out, err := execute(t, "version")
	require.NoError(t, err)
	assert.Equal(t, "dev\n", out)
}
