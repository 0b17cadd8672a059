package metrics

import "github.com/prometheus/client_golang/prometheus"

// LiveMetrics holds Prometheus metrics for live face swap sessions.
type LiveMetrics struct {
	ActiveSessions  prometheus.Gauge
	SessionsEvicted prometheus.Counter
	FrameDuration   prometheus.Histogram
	Errors          *prometheus.CounterVec
}

// NewLiveMetrics creates and registers live session metrics on the given registry.
func NewLiveMetrics(reg prometheus.Registerer) *LiveMetrics {
	m := &LiveMetrics{
		ActiveSessions: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "live",
			Name:      "active_sessions",
			Help:      "Number of open live sessions.",
		}),
		SessionsEvicted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "live",
			Name:      "sessions_evicted_total",
			Help:      "Total number of sessions closed by the idle reaper.",
		}),
		FrameDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "live",
			Name:      "frame_duration_seconds",
			Help:      "Duration of one live frame swap in seconds.",
			Buckets:   []float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5},
		}),
		Errors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "live",
			Name:      "errors_total",
			Help:      "Total number of live operation errors, by kind.",
		}, []string{"kind"}),
	}

	reg.MustRegister(m.ActiveSessions, m.SessionsEvicted, m.FrameDuration, m.Errors)
	return m
}
