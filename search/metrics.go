package search

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type collectors struct {
	searches  *prometheus.CounterVec
	refreshes *prometheus.CounterVec
	latency   prometheus.Histogram
}

func newCollectors(reg prometheus.Registerer) *collectors {
	f := promauto.With(reg)
	return &collectors{
		searches: f.NewCounterVec(prometheus.CounterOpts{
			Name: "postrank_searches_total",
			Help: "Search requests by outcome (hit, miss, invalid, error).",
		}, []string{"outcome"}),
		refreshes: f.NewCounterVec(prometheus.CounterOpts{
			Name: "postrank_top_metrics_refreshes_total",
			Help: "Top-metrics recomputations by result.",
		}, []string{"result"}),
		latency: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "postrank_search_miss_seconds",
			Help:    "Time spent answering searches that missed the cache.",
			Buckets: prometheus.DefBuckets,
		}),
	}
}
