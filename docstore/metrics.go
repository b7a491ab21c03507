package docstore

import "github.com/prometheus/client_golang/prometheus"

// storeMetrics holds Prometheus metrics for store operations. All record
// helpers are nil-safe so a store without metrics pays no branching cost at
// call sites.
type storeMetrics struct {
	readOps   prometheus.Counter
	writeOps  prometheus.Counter
	deleteOps prometheus.Counter

	readLatency   prometheus.Histogram
	writeLatency  prometheus.Histogram
	deleteLatency prometheus.Histogram

	errors    *prometheus.CounterVec
	conflicts prometheus.Counter
}

// newStoreMetrics creates and registers store metrics with the provided
// registerer.
func newStoreMetrics(registry prometheus.Registerer, database, collection string) (*storeMetrics, error) {
	if registry == nil {
		return nil, nil // Metrics disabled
	}

	labels := prometheus.Labels{"database": database, "collection": collection}
	latencyBuckets := []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1.0, 2.0}

	m := &storeMetrics{
		readOps: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace:   "botstate",
			Subsystem:   "docstore",
			Name:        "read_operations_total",
			Help:        "Total number of batched read operations",
			ConstLabels: labels,
		}),
		writeOps: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace:   "botstate",
			Subsystem:   "docstore",
			Name:        "write_operations_total",
			Help:        "Total number of batched write operations",
			ConstLabels: labels,
		}),
		deleteOps: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace:   "botstate",
			Subsystem:   "docstore",
			Name:        "delete_operations_total",
			Help:        "Total number of batched delete operations",
			ConstLabels: labels,
		}),
		readLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace:   "botstate",
			Subsystem:   "docstore",
			Name:        "read_duration_seconds",
			Help:        "Read operation duration in seconds",
			ConstLabels: labels,
			Buckets:     latencyBuckets,
		}),
		writeLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace:   "botstate",
			Subsystem:   "docstore",
			Name:        "write_duration_seconds",
			Help:        "Write operation duration in seconds",
			ConstLabels: labels,
			Buckets:     latencyBuckets,
		}),
		deleteLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace:   "botstate",
			Subsystem:   "docstore",
			Name:        "delete_duration_seconds",
			Help:        "Delete operation duration in seconds",
			ConstLabels: labels,
			Buckets:     latencyBuckets,
		}),
		errors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace:   "botstate",
			Subsystem:   "docstore",
			Name:        "operation_errors_total",
			Help:        "Total number of failed operations",
			ConstLabels: labels,
		}, []string{"operation"}),
		conflicts: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace:   "botstate",
			Subsystem:   "docstore",
			Name:        "concurrency_conflicts_total",
			Help:        "Total number of conditional writes rejected on version mismatch",
			ConstLabels: labels,
		}),
	}

	collectors := []prometheus.Collector{
		m.readOps, m.writeOps, m.deleteOps,
		m.readLatency, m.writeLatency, m.deleteLatency,
		m.errors, m.conflicts,
	}
	for _, c := range collectors {
		if err := registry.Register(c); err != nil {
			return nil, err
		}
	}

	return m, nil
}

func (m *storeMetrics) incRead() {
	if m != nil {
		m.readOps.Inc()
	}
}

func (m *storeMetrics) incWrite() {
	if m != nil {
		m.writeOps.Inc()
	}
}

func (m *storeMetrics) incDelete() {
	if m != nil {
		m.deleteOps.Inc()
	}
}

func (m *storeMetrics) observeReadLatency(seconds float64) {
	if m != nil {
		m.readLatency.Observe(seconds)
	}
}

func (m *storeMetrics) observeWriteLatency(seconds float64) {
	if m != nil {
		m.writeLatency.Observe(seconds)
	}
}

func (m *storeMetrics) observeDeleteLatency(seconds float64) {
	if m != nil {
		m.deleteLatency.Observe(seconds)
	}
}

func (m *storeMetrics) incError(operation string) {
	if m != nil {
		m.errors.WithLabelValues(operation).Inc()
	}
}

func (m *storeMetrics) incConflict() {
	if m != nil {
		m.conflicts.Inc()
	}
}
