package metrics

import "github.com/prometheus/client_golang/prometheus"

// FaceCacheMetrics holds Prometheus metrics for the source face cache.
type FaceCacheMetrics struct {
	Hits      prometheus.Counter
	Loads     prometheus.Counter
	Evictions prometheus.Counter
	Entries   prometheus.Gauge
}

// NewFaceCacheMetrics creates and registers face cache metrics on the given registry.
func NewFaceCacheMetrics(reg prometheus.Registerer) *FaceCacheMetrics {
	m := &FaceCacheMetrics{
		Hits: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "face_cache",
			Name:      "hits_total",
			Help:      "Total number of face cache hits.",
		}),
		Loads: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "face_cache",
			Name:      "loads_total",
			Help:      "Total number of loader invocations on cache misses.",
		}),
		Evictions: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "face_cache",
			Name:      "evictions_total",
			Help:      "Total number of entries evicted by the capacity bound.",
		}),
		Entries: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "face_cache",
			Name:      "entries",
			Help:      "Number of cached source faces.",
		}),
	}

	reg.MustRegister(m.Hits, m.Loads, m.Evictions, m.Entries)
	return m
}
