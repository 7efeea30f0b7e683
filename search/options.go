package search

import (
	"time"

	"github.com/labstack/gommon/log"
	"github.com/prometheus/client_golang/prometheus"
)

// Logger is the subset of gommon's *log.Logger used by this package.
type Logger interface {
	Debugf(format string, args ...interface{})
	Infof(format string, args ...interface{})
	Warnf(format string, args ...interface{})
	Errorf(format string, args ...interface{})
}

// Cache is the byte-valued cache the pipeline reads through. *cache.LRU
// satisfies it.
type Cache interface {
	Get(key string) ([]byte, bool)
	Put(key string, value []byte)
}

// Options tunes the search pipeline and the top-metrics refresher.
type Options struct {
	SearchLimit     int
	LeaderboardSize int
	TopMetricsSize  int
	StoreTimeout    time.Duration
	RefreshInterval time.Duration
	EnrichWorkers   int
	Logger          Logger
	Registerer      prometheus.Registerer
}

type Option func(*Options)

// WithSearchLimit caps how many posts a single search fetches.
func WithSearchLimit(n int) Option {
	return func(o *Options) {
		if n > 0 {
			o.SearchLimit = n
		}
	}
}

// WithLeaderboardSize sets the length of the per-search leaderboards.
func WithLeaderboardSize(n int) Option {
	return func(o *Options) {
		if n > 0 {
			o.LeaderboardSize = n
		}
	}
}

// WithTopMetricsSize sets how many authors and posts the global snapshot holds.
func WithTopMetricsSize(n int) Option {
	return func(o *Options) {
		if n > 0 {
			o.TopMetricsSize = n
		}
	}
}

// WithStoreTimeout bounds every individual store call.
func WithStoreTimeout(d time.Duration) Option {
	return func(o *Options) {
		if d > 0 {
			o.StoreTimeout = d
		}
	}
}

// WithRefreshInterval sets how often the refresher recomputes top metrics.
func WithRefreshInterval(d time.Duration) Option {
	return func(o *Options) {
		if d > 0 {
			o.RefreshInterval = d
		}
	}
}

// WithEnrichWorkers bounds concurrent metadata lookups per search.
func WithEnrichWorkers(n int) Option {
	return func(o *Options) {
		if n > 0 {
			o.EnrichWorkers = n
		}
	}
}

func WithLogger(l Logger) Option {
	return func(o *Options) {
		if l != nil {
			o.Logger = l
		}
	}
}

// WithRegisterer registers the search collectors on reg.
func WithRegisterer(reg prometheus.Registerer) Option {
	return func(o *Options) {
		o.Registerer = reg
	}
}

func defaultOptions() Options {
	return Options{
		SearchLimit:     50,
		LeaderboardSize: 10,
		TopMetricsSize:  10,
		StoreTimeout:    5 * time.Second,
		RefreshInterval: 50 * time.Minute,
		EnrichWorkers:   8,
		Logger:          log.New("search"),
	}
}

func buildOptions(opts []Option) Options {
	cfg := defaultOptions()
	for _, opt := range opts {
		if opt != nil {
			opt(&cfg)
		}
	}
	return cfg
}
