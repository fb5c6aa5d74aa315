// Package jobmetrics instruments synchronizer runs with Prometheus collectors.
package jobmetrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics exposes Prometheus collectors for synchronizer jobs.
type Metrics struct {
	runs      *prometheus.CounterVec
	failures  *prometheus.CounterVec
	duration  *prometheus.HistogramVec
	rows      *prometheus.CounterVec
	watermark prometheus.Gauge
}

var (
	defaultOnce    sync.Once
	defaultMetrics *Metrics
)

// NewMetrics registers the job metrics against the provided registerer. When the
// registerer is nil the default Prometheus registerer is used.
func NewMetrics(registerer prometheus.Registerer) *Metrics {
	if registerer == nil {
		defaultOnce.Do(func() {
			defaultMetrics = buildMetrics(prometheus.DefaultRegisterer)
		})
		return defaultMetrics
	}
	return buildMetrics(registerer)
}

// Tracker provides lifecycle instrumentation helpers for a single job run.
type Tracker struct {
	metrics *Metrics
	job     string
	start   time.Time
	status  string
}

// Track spawns a tracker for the given job name.
func (m *Metrics) Track(job string) *Tracker {
	return &Tracker{metrics: m, job: job, start: time.Now()}
}

// Skipped marks the run as a no-op so it is not counted as a success.
func (t *Tracker) Skipped() {
	if t != nil {
		t.status = "skipped"
	}
}

// End finalises the tracker, recording duration, run and failure counts and
// returning the provided error untouched.
func (t *Tracker) End(err error) error {
	if t == nil || t.metrics == nil || t.job == "" {
		return err
	}
	status := t.status
	if status == "" {
		status = "success"
	}
	if err != nil {
		status = "failure"
		t.metrics.failures.WithLabelValues(t.job).Inc()
	}
	t.metrics.runs.WithLabelValues(t.job, status).Inc()
	t.metrics.duration.WithLabelValues(t.job).Observe(time.Since(t.start).Seconds())
	return err
}

// AddRows counts warehouse rows touched by a job. op is "written" or "deleted".
func (m *Metrics) AddRows(table, op string, count int64) {
	if m == nil || count <= 0 {
		return
	}
	m.rows.WithLabelValues(table, op).Add(float64(count))
}

// SetSalesWatermark records the last synchronised sales day.
func (m *Metrics) SetSalesWatermark(day time.Time) {
	if m == nil || day.IsZero() {
		return
	}
	m.watermark.Set(float64(day.Unix()))
}

func buildMetrics(registerer prometheus.Registerer) *Metrics {
	runs := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "distribution_sync_runs_total",
		Help: "Total synchronizer runs partitioned by job name and status.",
	}, []string{"job", "status"})
	failures := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "distribution_sync_failures_total",
		Help: "Total failures observed for synchronizer runs.",
	}, []string{"job"})
	duration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "distribution_sync_duration_seconds",
		Help:    "Duration in seconds of synchronizer runs.",
		Buckets: []float64{1, 5, 15, 30, 60, 120, 300, 600, 1200},
	}, []string{"job"})
	rows := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "distribution_sync_rows_total",
		Help: "Warehouse rows written or deleted by synchronizer runs.",
	}, []string{"table", "op"})
	watermark := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "distribution_sales_watermark_timestamp_seconds",
		Help: "Last sales day present in the warehouse as a unix timestamp.",
	})
	registerer.MustRegister(runs, failures, duration, rows, watermark)
	return &Metrics{runs: runs, failures: failures, duration: duration, rows: rows, watermark: watermark}
}
