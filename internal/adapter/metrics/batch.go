package metrics

import "github.com/prometheus/client_golang/prometheus"

// BatchMetrics holds Prometheus metrics for the ordered frame batch runner.
type BatchMetrics struct {
	ItemsProcessed prometheus.Counter
	WorkerFailures prometheus.Counter
	ChunkDuration  prometheus.Histogram
}

// NewBatchMetrics creates and registers batch runner metrics on the given registry.
func NewBatchMetrics(reg prometheus.Registerer) *BatchMetrics {
	m := &BatchMetrics{
		ItemsProcessed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "batch",
			Name:      "items_processed_total",
			Help:      "Total number of items run through a batch worker.",
		}),
		WorkerFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "batch",
			Name:      "worker_failures_total",
			Help:      "Total number of items passed through unchanged after a worker failure.",
		}),
		ChunkDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "batch",
			Name:      "chunk_duration_seconds",
			Help:      "Wall time of one chunk including its barrier.",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		}),
	}

	reg.MustRegister(m.ItemsProcessed, m.WorkerFailures, m.ChunkDuration)
	return m
}
