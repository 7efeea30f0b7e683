package cache

import (
	"time"

	"github.com/labstack/gommon/log"
	"github.com/prometheus/client_golang/prometheus"
)

// Options controls the size, expiry and instrumentation of an LRU.
type Options struct {
	Capacity   int
	TTL        time.Duration
	Clock      func() time.Time
	Logger     Logger
	Registerer prometheus.Registerer
}

type Option func(*Options)

// WithCapacity bounds the number of live entries.
func WithCapacity(n int) Option {
	return func(o *Options) {
		o.Capacity = n
	}
}

// WithTTL sets the age after which an entry is treated as absent.
func WithTTL(d time.Duration) Option {
	return func(o *Options) {
		if d > 0 {
			o.TTL = d
		}
	}
}

// WithClock overrides time.Now, mostly for tests.
func WithClock(now func() time.Time) Option {
	return func(o *Options) {
		if now != nil {
			o.Clock = now
		}
	}
}

// WithLogger routes eviction and purge diagnostics to l.
func WithLogger(l Logger) Option {
	return func(o *Options) {
		if l != nil {
			o.Logger = l
		}
	}
}

// WithRegisterer registers the cache collectors on reg.
func WithRegisterer(reg prometheus.Registerer) Option {
	return func(o *Options) {
		o.Registerer = reg
	}
}

func defaultOptions() Options {
	return Options{
		Capacity: 100,
		TTL:      time.Hour,
		Clock:    time.Now,
		Logger:   log.New("cache"),
	}
}
