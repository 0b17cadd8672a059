package metrics

import "github.com/prometheus/client_golang/prometheus"

// JobMetrics holds Prometheus metrics for batch video jobs.
type JobMetrics struct {
	Transitions        *prometheus.CounterVec
	Duration           *prometheus.HistogramVec
	QueueDepth         prometheus.Gauge
	TranscodeFallbacks prometheus.Counter
}

// NewJobMetrics creates and registers job metrics on the given registry.
func NewJobMetrics(reg prometheus.Registerer) *JobMetrics {
	m := &JobMetrics{
		Transitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "jobs",
			Name:      "transitions_total",
			Help:      "Total number of job state transitions, by target state.",
		}, []string{"state"}),
		Duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "jobs",
			Name:      "duration_seconds",
			Help:      "Time from job start to terminal state, by outcome.",
			Buckets:   []float64{1, 5, 15, 30, 60, 120, 300, 600, 1800},
		}, []string{"outcome"}),
		QueueDepth: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "jobs",
			Name:      "queue_depth",
			Help:      "Number of accepted jobs waiting for a worker.",
		}),
		TranscodeFallbacks: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "jobs",
			Name:      "transcode_fallbacks_total",
			Help:      "Total number of outputs served untranscoded after a transcode failure.",
		}),
	}

	reg.MustRegister(m.Transitions, m.Duration, m.QueueDepth, m.TranscodeFallbacks)
	return m
}
