package shapestore

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the Prometheus collectors updated by stores.
//
// Collectors are labelled by store name, so one Metrics is shared by all
// stores registered with the same registry.
//
// Example:
//
//	reg := prometheus.NewRegistry()
//	m := shapestore.NewMetrics(reg)
//	store, err := shapestore.New(cfg, shapestore.WithMetrics(m))
type Metrics struct {
	queries        *prometheus.CounterVec
	queryDuration  *prometheus.HistogramVec
	features       *prometheus.CounterVec
	cacheHits      *prometheus.CounterVec
	cacheMisses    *prometheus.CounterVec
	rebuilds       *prometheus.CounterVec
	indexFallbacks *prometheus.CounterVec
}

// NewMetrics creates and registers the store collectors with reg. A nil
// reg creates unregistered collectors.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		queries: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "shapestore",
			Name:      "queries_total",
			Help:      "Queries executed, by result.",
		}, []string{"store", "result"}),
		queryDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "shapestore",
			Name:      "query_duration_seconds",
			Help:      "Time to plan and materialize a query.",
			Buckets:   prometheus.ExponentialBuckets(0.0005, 4, 8),
		}, []string{"store"}),
		features: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "shapestore",
			Name:      "features_returned_total",
			Help:      "Features returned by queries.",
		}, []string{"store"}),
		cacheHits: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "shapestore",
			Name:      "cache_hits_total",
			Help:      "Features served from the feature cache.",
		}, []string{"store"}),
		cacheMisses: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "shapestore",
			Name:      "cache_misses_total",
			Help:      "Features decoded because they were not cached.",
		}, []string{"store"}),
		rebuilds: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "shapestore",
			Name:      "index_rebuilds_total",
			Help:      "Index rebuilds, by kind (spatial, attribute, snapshot).",
		}, []string{"store", "kind"}),
		indexFallbacks: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "shapestore",
			Name:      "attribute_index_fallbacks_total",
			Help:      "Queries evaluated fully in memory after an attribute index failure.",
		}, []string{"store"}),
	}
}

var noopMetrics = NewMetrics(nil)
