package metrics

import "github.com/prometheus/client_golang/prometheus"

// DependencyMetrics holds Prometheus metrics for outbound collaborators:
// the face engine, Redis, and the job event broker.
type DependencyMetrics struct {
	CircuitBreakerState        *prometheus.GaugeVec
	CircuitBreakerStateChanges *prometheus.CounterVec
	FaceEngineRequests         *prometheus.CounterVec
	FaceEngineDuration         *prometheus.HistogramVec
	RedisOps                   *prometheus.CounterVec
	RedisOpDuration            *prometheus.HistogramVec
	EventsPublished            *prometheus.CounterVec
}

// NewDependencyMetrics creates and registers dependency metrics on the given registry.
func NewDependencyMetrics(reg prometheus.Registerer) *DependencyMetrics {
	m := &DependencyMetrics{
		CircuitBreakerState: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "circuit_breaker",
			Name:      "state",
			Help:      "Circuit breaker state per component (0=closed, 1=half-open, 2=open).",
		}, []string{"component"}),
		CircuitBreakerStateChanges: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "circuit_breaker",
			Name:      "state_changes_total",
			Help:      "Total number of circuit breaker state changes, by component and new state.",
		}, []string{"component", "state"}),
		FaceEngineRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "face_engine",
			Name:      "requests_total",
			Help:      "Total number of face engine calls, by operation and status.",
		}, []string{"operation", "status"}),
		FaceEngineDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "face_engine",
			Name:      "request_duration_seconds",
			Help:      "Duration of face engine calls in seconds.",
			Buckets:   []float64{.01, .025, .05, .1, .25, .5, 1, 2.5, 5},
		}, []string{"operation"}),
		RedisOps: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "redis",
			Name:      "operations_total",
			Help:      "Total number of Redis operations, by command and status.",
		}, []string{"operation", "status"}),
		RedisOpDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "redis",
			Name:      "operation_duration_seconds",
			Help:      "Duration of Redis operations in seconds.",
			Buckets:   []float64{.0005, .001, .0025, .005, .01, .025, .05, .1},
		}, []string{"operation"}),
		EventsPublished: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "events",
			Name:      "published_total",
			Help:      "Total number of job events handed to the broker, by status.",
		}, []string{"status"}),
	}

	reg.MustRegister(
		m.CircuitBreakerState, m.CircuitBreakerStateChanges,
		m.FaceEngineRequests, m.FaceEngineDuration,
		m.RedisOps, m.RedisOpDuration,
		m.EventsPublished,
	)
	return m
}
