package cache

import (
	"sync"
	"time"

	"github.com/hashicorp/golang-lru/v2/simplelru"
)

type entry struct {
	value    []byte
	storedAt time.Time
}

// Item is an exported copy of one cache entry, used by snapshots.
type Item struct {
	Key      string
	Value    []byte
	StoredAt time.Time
}

// LRU maps keys to byte values, evicting the least recently used key when
// full and treating entries older than the ttl as absent. All methods are
// safe for concurrent use; the lock is only held for in-memory work.
type LRU struct {
	mu       sync.Mutex
	items    *simplelru.LRU[string, entry]
	capacity int
	ttl      time.Duration
	now      func() time.Time
	logger   Logger
	stats    counters
	metrics  *collectors
}

// New builds an empty LRU.
func New(opts ...Option) (*LRU, error) {
	cfg := defaultOptions()
	for _, opt := range opts {
		if opt != nil {
			opt(&cfg)
		}
	}
	if cfg.Capacity <= 0 {
		return nil, ErrInvalidCapacity
	}
	items, err := simplelru.NewLRU[string, entry](cfg.Capacity, nil)
	if err != nil {
		return nil, err
	}
	return &LRU{
		items:    items,
		capacity: cfg.Capacity,
		ttl:      cfg.TTL,
		now:      cfg.Clock,
		logger:   cfg.Logger,
		metrics:  newCollectors(cfg.Registerer),
	}, nil
}

// Get returns a copy of the value stored under key and marks it most
// recently used. Stale entries are reported absent and dropped.
func (c *LRU) Get(key string) ([]byte, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	ent, ok := c.items.Peek(key)
	if !ok {
		c.miss()
		return nil, false
	}
	if c.stale(ent, c.now()) {
		c.items.Remove(key)
		c.expired(key)
		c.miss()
		return nil, false
	}
	c.items.Get(key)
	c.stats.hits.Inc()
	c.metrics.hits.Inc()
	return append([]byte(nil), ent.value...), true
}

// Put stores a copy of value under key with a fresh timestamp. A new key
// arriving at capacity first evicts the least recently used key.
func (c *LRU) Put(key string, value []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.add(key, entry{value: append([]byte(nil), value...), storedAt: c.now()})
}

func (c *LRU) add(key string, ent entry) {
	if !c.items.Contains(key) && c.items.Len() >= c.capacity {
		if evicted, _, ok := c.items.RemoveOldest(); ok {
			c.stats.evictions.Inc()
			c.metrics.evictions.Inc()
			c.logger.Debugf("evicted %q", evicted)
		}
	}
	c.items.Add(key, ent)
	c.metrics.entries.Set(float64(c.items.Len()))
}

// Delete removes key and reports whether it was present.
func (c *LRU) Delete(key string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	ok := c.items.Remove(key)
	c.metrics.entries.Set(float64(c.items.Len()))
	return ok
}

// PurgeStale removes every entry older than the ttl regardless of recency
// and returns how many were removed.
func (c *LRU) PurgeStale() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	removed := 0
	for _, key := range c.items.Keys() {
		ent, ok := c.items.Peek(key)
		if ok && c.stale(ent, now) {
			c.items.Remove(key)
			c.expired(key)
			removed++
		}
	}
	return removed
}

// Len reports the number of held entries, stale ones included.
func (c *LRU) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.items.Len()
}

// Keys lists held keys from least to most recently used.
func (c *LRU) Keys() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.items.Keys()
}

// Snapshot copies every fresh entry, least recently used first.
func (c *LRU) Snapshot() []Item {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	keys := c.items.Keys()
	out := make([]Item, 0, len(keys))
	for _, key := range keys {
		ent, ok := c.items.Peek(key)
		if !ok || c.stale(ent, now) {
			continue
		}
		out = append(out, Item{Key: key, Value: append([]byte(nil), ent.value...), StoredAt: ent.storedAt})
	}
	return out
}

// Load inserts items in order, keeping their stored timestamps. Items that
// are already stale are skipped. It returns how many were loaded.
func (c *LRU) Load(items []Item) int {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	loaded := 0
	for _, it := range items {
		ent := entry{value: append([]byte(nil), it.Value...), storedAt: it.StoredAt}
		if c.stale(ent, now) {
			continue
		}
		c.add(it.Key, ent)
		loaded++
	}
	return loaded
}

// Stats returns the current counters.
func (c *LRU) Stats() Stats {
	c.mu.Lock()
	n := c.items.Len()
	c.mu.Unlock()
	return Stats{
		Entries:     n,
		Capacity:    c.capacity,
		Hits:        c.stats.hits.Load(),
		Misses:      c.stats.misses.Load(),
		Evictions:   c.stats.evictions.Load(),
		Expirations: c.stats.expirations.Load(),
	}
}

// TTL reports the configured time-to-live.
func (c *LRU) TTL() time.Duration { return c.ttl }

func (c *LRU) stale(ent entry, now time.Time) bool {
	return now.Sub(ent.storedAt) > c.ttl
}

func (c *LRU) miss() {
	c.stats.misses.Inc()
	c.metrics.misses.Inc()
}

func (c *LRU) expired(key string) {
	c.stats.expirations.Inc()
	c.metrics.expirations.Inc()
	c.metrics.entries.Set(float64(c.items.Len()))
	c.logger.Debugf("purged %q", key)
}
