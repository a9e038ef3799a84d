// Package metrics exposes sync and alert observations as Prometheus metrics.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/JonMunkholm/repsync/internal/core"
)

const namespace = "repsync"

// Recorder implements core.Metrics on a private registry.
type Recorder struct {
	registry *prometheus.Registry

	runs        *prometheus.CounterVec
	runDuration *prometheus.HistogramVec
	rows        *prometheus.CounterVec
	alerts      *prometheus.GaugeVec
}

var _ core.Metrics = (*Recorder)(nil)

// New creates a Recorder with Go runtime and process collectors attached.
func New() *Recorder {
	r := &Recorder{
		registry: prometheus.NewRegistry(),
		runs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sync_runs_total",
			Help:      "Finished sync runs by mode and status.",
		}, []string{"mode", "status"}),
		runDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "sync_run_duration_seconds",
			Help:      "Wall time of finished sync runs.",
			Buckets:   []float64{0.1, 0.5, 1, 2.5, 5, 10, 30, 60, 120, 300, 600},
		}, []string{"mode"}),
		rows: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sync_rows_total",
			Help:      "Rows processed by outcome.",
		}, []string{"outcome"}),
		alerts: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "alerts",
			Help:      "Current compliance alerts by organization and severity.",
		}, []string{"organization", "severity"}),
	}
	r.registry.MustRegister(
		r.runs,
		r.runDuration,
		r.rows,
		r.alerts,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return r
}

// ObserveRun counts a finished run and its row outcomes.
func (r *Recorder) ObserveRun(run *core.SyncRun) {
	mode := string(run.Mode)
	r.runs.WithLabelValues(mode, string(run.Status)).Inc()
	r.runDuration.WithLabelValues(mode).Observe(run.Duration().Seconds())

	t := run.Totals()
	for outcome, n := range map[string]int{
		"created":   t.Created,
		"updated":   t.Updated,
		"unchanged": t.Unchanged,
		"deleted":   t.Deleted,
		"skipped":   t.Skipped,
		"failed":    t.Failed,
	} {
		if n > 0 {
			r.rows.WithLabelValues(outcome).Add(float64(n))
		}
	}
}

// ObserveAlerts sets the organization's alert gauges. Severities with no
// alerts are reset to zero.
func (r *Recorder) ObserveAlerts(orgCode string, alerts []core.Alert) {
	counts := map[core.Severity]int{
		core.SeverityCritical: 0,
		core.SeverityHigh:     0,
		core.SeverityMedium:   0,
		core.SeverityLow:      0,
	}
	for _, a := range alerts {
		counts[a.Severity]++
	}
	for sev, n := range counts {
		r.alerts.WithLabelValues(orgCode, string(sev)).Set(float64(n))
	}
}

// Registry exposes the underlying registry.
func (r *Recorder) Registry() *prometheus.Registry { return r.registry }

// Handler serves the registry in the Prometheus exposition format.
func (r *Recorder) Handler() http.Handler {
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{})
}
