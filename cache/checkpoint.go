package cache

import (
	"context"
	"errors"
	"time"
)

// Checkpointer persists an LRU to a Sink and restores it on startup.
type Checkpointer struct {
	cache    *LRU
	sink     Sink
	interval time.Duration
	timeout  time.Duration
	logger   Logger
}

type CheckpointOption func(*Checkpointer)

// WithInterval sets how often Run checkpoints.
func WithInterval(d time.Duration) CheckpointOption {
	return func(p *Checkpointer) {
		if d > 0 {
			p.interval = d
		}
	}
}

// WithWriteTimeout bounds each sink call made by Run.
func WithWriteTimeout(d time.Duration) CheckpointOption {
	return func(p *Checkpointer) {
		if d > 0 {
			p.timeout = d
		}
	}
}

// NewCheckpointer ties c to sink. It logs through the cache's logger.
func NewCheckpointer(c *LRU, sink Sink, opts ...CheckpointOption) *Checkpointer {
	p := &Checkpointer{
		cache:    c,
		sink:     sink,
		interval: 10 * time.Minute,
		timeout:  30 * time.Second,
		logger:   c.logger,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(p)
		}
	}
	return p
}

// Checkpoint writes every fresh entry to the sink, replacing the previous
// snapshot. The cache lock is held only while copying entries.
func (p *Checkpointer) Checkpoint(ctx context.Context) (int, error) {
	items := p.cache.Snapshot()
	data, err := EncodeSnapshot(items)
	if err != nil {
		p.cache.metrics.checkpoints.WithLabelValues("error").Inc()
		return 0, err
	}
	if err := p.sink.WriteSnapshot(ctx, data); err != nil {
		p.cache.metrics.checkpoints.WithLabelValues("error").Inc()
		return 0, err
	}
	p.cache.metrics.checkpoints.WithLabelValues("ok").Inc()
	return len(items), nil
}

// Restore loads the latest snapshot into the cache, skipping entries that
// have outlived the ttl. A missing snapshot is not an error. A corrupt one
// leaves the cache untouched and returns ErrCorruptSnapshot.
func (p *Checkpointer) Restore(ctx context.Context) (int, error) {
	data, err := p.sink.ReadSnapshot(ctx)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			p.logger.Infof("no checkpoint found, starting empty")
			return 0, nil
		}
		return 0, err
	}
	items, err := DecodeSnapshot(data)
	if err != nil {
		return 0, err
	}
	n := p.cache.Load(items)
	p.logger.Infof("checkpoint loaded: %d of %d entries", n, len(items))
	return n, nil
}

// Run purges stale entries and checkpoints every interval until ctx is
// cancelled, then writes one final checkpoint. Failures are logged and the
// loop carries on; a failed write leaves the previous snapshot in place.
func (p *Checkpointer) Run(ctx context.Context) {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			p.runOnce(ctx)
		case <-ctx.Done():
			final, cancel := context.WithTimeout(context.Background(), p.timeout)
			p.runOnce(final)
			cancel()
			p.logger.Debugf("checkpoint loop stopped")
			return
		}
	}
}

func (p *Checkpointer) runOnce(ctx context.Context) {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	if purged := p.cache.PurgeStale(); purged > 0 {
		p.logger.Infof("purged %d stale entries", purged)
	}
	n, err := p.Checkpoint(ctx)
	if err != nil {
		p.logger.Errorf("checkpoint failed: %v", err)
		return
	}
	p.logger.Debugf("checkpoint written: %d entries", n)
}
