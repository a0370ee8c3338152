package services

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"alertreport/models"
)

// Metrics holds the reporter's Prometheus collectors. A nil *Metrics is valid
// and records nothing.
type Metrics struct {
	runsTotal        *prometheus.CounterVec
	runDuration      prometheus.Histogram
	alertsCounted    *prometheus.GaugeVec
	pagesFetched     prometheus.Counter
	dispatchesTotal  *prometheus.CounterVec
	lastSuccessfulAt prometheus.Gauge
}

// NewMetrics creates the collectors and registers them with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		runsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "alertreport_runs_total",
				Help: "Report runs by outcome",
			},
			[]string{"status"},
		),
		runDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "alertreport_run_duration_seconds",
				Help:    "Wall time of a report run",
				Buckets: prometheus.DefBuckets,
			},
		),
		alertsCounted: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "alertreport_alerts_last_run",
				Help: "Alerts counted by the most recent run",
			},
			[]string{"scope"},
		),
		pagesFetched: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "alertreport_alert_pages_fetched_total",
				Help: "Pages fetched from the alerts API",
			},
		),
		dispatchesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "alertreport_dispatches_total",
				Help: "Report deliveries by provider and result",
			},
			[]string{"provider", "result"},
		),
		lastSuccessfulAt: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "alertreport_last_success_timestamp_seconds",
				Help: "Unix time of the last successful run",
			},
		),
	}

	if reg != nil {
		reg.MustRegister(
			m.runsTotal,
			m.runDuration,
			m.alertsCounted,
			m.pagesFetched,
			m.dispatchesTotal,
			m.lastSuccessfulAt,
		)
	}
	return m
}

func (m *Metrics) PageFetched() {
	if m == nil {
		return
	}
	m.pagesFetched.Inc()
}

func (m *Metrics) RunFinished(status string, started time.Time) {
	if m == nil {
		return
	}
	m.runsTotal.WithLabelValues(status).Inc()
	m.runDuration.Observe(time.Since(started).Seconds())
	if status == models.RunStatusSucceeded {
		m.lastSuccessfulAt.SetToCurrentTime()
	}
}

func (m *Metrics) AlertsCounted(total int, windowed *int) {
	if m == nil {
		return
	}
	m.alertsCounted.WithLabelValues("total").Set(float64(total))
	if windowed != nil {
		m.alertsCounted.WithLabelValues("windowed").Set(float64(*windowed))
	}
}

func (m *Metrics) Dispatched(provider string, ok bool) {
	if m == nil {
		return
	}
	result := "success"
	if !ok {
		result = "failure"
	}
	m.dispatchesTotal.WithLabelValues(provider, result).Inc()
}
