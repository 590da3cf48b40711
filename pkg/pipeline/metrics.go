package pipeline

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics collects task timings and failures.
type Metrics struct {
	duration *prometheus.HistogramVec
	failures *prometheus.CounterVec
	runs     *prometheus.CounterVec
}

// NewMetrics creates the collectors and registers them with reg (if not nil).
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "assetpipe",
			Name:      "task_duration_seconds",
			Help:      "Duration of task runs.",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		}, []string{"task", "mode"}),
		failures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "assetpipe",
			Name:      "task_failures_total",
			Help:      "Number of failed task runs.",
		}, []string{"task"}),
		runs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "assetpipe",
			Name:      "task_runs_total",
			Help:      "Number of task runs.",
		}, []string{"task"}),
	}

	if reg != nil {
		reg.MustRegister(m.duration, m.failures, m.runs)
	}
	return m
}

func (m *Metrics) observe(task string, mode Mode, seconds float64, failed bool) {
	if m == nil {
		return
	}

	m.runs.WithLabelValues(task).Inc()
	m.duration.WithLabelValues(task, mode.String()).Observe(seconds)
	if failed {
		m.failures.WithLabelValues(task).Inc()
	}
}
