// Package metrics wires Prometheus instrumentation for the job scheduler
// and exposes it together with a health check over HTTP.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the Prometheus collectors for job dispatch and execution.
type Metrics struct {
	registry      *prometheus.Registry
	runsTotal     *prometheus.CounterVec
	runDuration   *prometheus.HistogramVec
	scheduledJobs prometheus.Gauge
}

// New creates and registers the botjobs collectors on a fresh registry.
func New(namespace string) *Metrics {
	reg := prometheus.NewRegistry()

	m := &Metrics{
		registry: reg,
		runsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "runs_total",
				Help:      "Total number of job runs by terminal status",
			},
			[]string{"status"},
		),
		runDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "run_duration_seconds",
				Help:      "Duration of job runs",
				Buckets:   []float64{.1, .5, 1, 5, 10, 30, 60, 120, 300},
			},
			[]string{"status"},
		),
		scheduledJobs: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "scheduled_jobs",
				Help:      "Number of job definitions currently registered with the dispatcher",
			},
		),
	}

	reg.MustRegister(m.runsTotal, m.runDuration, m.scheduledJobs)
	return m
}

// Registry returns the underlying registry for the HTTP handler.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// ObserveRun records one finished run.
func (m *Metrics) ObserveRun(status string, duration time.Duration) {
	m.runsTotal.WithLabelValues(status).Inc()
	m.runDuration.WithLabelValues(status).Observe(duration.Seconds())
}

// SetScheduledJobs records the current dispatcher job count.
func (m *Metrics) SetScheduledJobs(n int) {
	m.scheduledJobs.Set(float64(n))
}
