package cache

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/atomic"
)

// Stats is a point-in-time copy of the cache counters.
type Stats struct {
	Entries     int   `json:"entries"`
	Capacity    int   `json:"capacity"`
	Hits        int64 `json:"hits"`
	Misses      int64 `json:"misses"`
	Evictions   int64 `json:"evictions"`
	Expirations int64 `json:"expirations"`
}

type counters struct {
	hits        atomic.Int64
	misses      atomic.Int64
	evictions   atomic.Int64
	expirations atomic.Int64
}

type collectors struct {
	hits        prometheus.Counter
	misses      prometheus.Counter
	evictions   prometheus.Counter
	expirations prometheus.Counter
	entries     prometheus.Gauge
	checkpoints *prometheus.CounterVec
}

// newCollectors builds the cache collectors. A nil registerer yields
// working but unregistered collectors.
func newCollectors(reg prometheus.Registerer) *collectors {
	f := promauto.With(reg)
	return &collectors{
		hits: f.NewCounter(prometheus.CounterOpts{
			Name: "postrank_cache_hits_total",
			Help: "Cache lookups that returned a fresh entry.",
		}),
		misses: f.NewCounter(prometheus.CounterOpts{
			Name: "postrank_cache_misses_total",
			Help: "Cache lookups that found no entry or a stale one.",
		}),
		evictions: f.NewCounter(prometheus.CounterOpts{
			Name: "postrank_cache_evictions_total",
			Help: "Entries evicted to stay within capacity.",
		}),
		expirations: f.NewCounter(prometheus.CounterOpts{
			Name: "postrank_cache_expirations_total",
			Help: "Entries dropped because they outlived the ttl.",
		}),
		entries: f.NewGauge(prometheus.GaugeOpts{
			Name: "postrank_cache_entries",
			Help: "Entries currently held, stale ones included until purged.",
		}),
		checkpoints: f.NewCounterVec(prometheus.CounterOpts{
			Name: "postrank_cache_checkpoints_total",
			Help: "Checkpoint attempts by result.",
		}, []string{"result"}),
	}
}
