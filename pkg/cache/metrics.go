package cache

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics counts cache traffic. A nil *Metrics records nothing.
type Metrics struct {
	// lookups counts path-parameter lookups by where they were answered:
	// "buffer", "backend" or "miss".
	lookups *prometheus.CounterVec

	// roundTrips counts backend calls by operation ("get", "get_many", "set", "delete").
	roundTrips *prometheus.CounterVec

	// errors counts backend failures that were degraded to misses.
	errors *prometheus.CounterVec

	// batchKeys tracks how many keys each batched fetch carried.
	batchKeys prometheus.Histogram
}

// NewMetrics registers the cache metrics with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		lookups: f.NewCounterVec(prometheus.CounterOpts{
			Name: "geohive_path_cache_lookups_total",
			Help: "Path parameter lookups by answering layer",
		}, []string{"layer"}),
		roundTrips: f.NewCounterVec(prometheus.CounterOpts{
			Name: "geohive_path_cache_round_trips_total",
			Help: "Cache backend calls by operation",
		}, []string{"op"}),
		errors: f.NewCounterVec(prometheus.CounterOpts{
			Name: "geohive_path_cache_errors_total",
			Help: "Cache backend errors treated as misses",
		}, []string{"op"}),
		batchKeys: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "geohive_path_cache_batch_keys",
			Help:    "Keys per batched cache fetch",
			Buckets: []float64{0, 1, 10, 50, 100, 500, 1000, 5000},
		}),
	}
}

func (m *Metrics) lookup(layer string) {
	if m == nil {
		return
	}
	m.lookups.WithLabelValues(layer).Inc()
}

func (m *Metrics) roundTrip(op string) {
	if m == nil {
		return
	}
	m.roundTrips.WithLabelValues(op).Inc()
}

func (m *Metrics) failed(op string) {
	if m == nil {
		return
	}
	m.errors.WithLabelValues(op).Inc()
}

func (m *Metrics) batch(n int) {
	if m == nil {
		return
	}
	m.batchKeys.Observe(float64(n))
}
