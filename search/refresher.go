package search

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"go.uber.org/atomic"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"github.com/adeilh/postrank/feed"
)

// Refresher keeps the global top-metrics snapshot warm in the cache.
type Refresher struct {
	cache   Cache
	posts   feed.PostStore
	authors feed.AuthorStore
	opts    Options
	metrics *collectors
	encode  func(any) ([]byte, error)

	group       singleflight.Group
	refreshes   atomic.Int64
	failures    atomic.Int64
	lastRefresh atomic.Time
}

func NewRefresher(c Cache, posts feed.PostStore, authors feed.AuthorStore, opts ...Option) (*Refresher, error) {
	if c == nil || posts == nil || authors == nil {
		return nil, feed.ErrMissingStore
	}
	cfg := buildOptions(opts)
	return newRefresher(c, posts, authors, cfg, newCollectors(cfg.Registerer)), nil
}

func newRefresher(c Cache, posts feed.PostStore, authors feed.AuthorStore, cfg Options, m *collectors) *Refresher {
	return &Refresher{cache: c, posts: posts, authors: authors, opts: cfg, metrics: m, encode: json.Marshal}
}

// Compute queries both stores concurrently and assembles a fresh snapshot.
func (r *Refresher) Compute(ctx context.Context) (feed.TopMetrics, error) {
	var (
		authors []feed.Author
		posts   []feed.Post
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		storeCtx, cancel := context.WithTimeout(gctx, r.opts.StoreTimeout)
		defer cancel()
		var err error
		if authors, err = r.authors.TopAuthorsByFollowers(storeCtx, r.opts.TopMetricsSize); err != nil {
			return lookupFailed("top authors", err)
		}
		return nil
	})
	g.Go(func() error {
		storeCtx, cancel := context.WithTimeout(gctx, r.opts.StoreTimeout)
		defer cancel()
		var err error
		if posts, err = r.posts.TopPostsByRetweets(storeCtx, r.opts.TopMetricsSize); err != nil {
			return lookupFailed("top posts", err)
		}
		return nil
	})
	if err := g.Wait(); err != nil {
		return feed.TopMetrics{}, err
	}

	out := feed.TopMetrics{
		TopAuthors: make([]feed.TopAuthor, 0, len(authors)),
		TopPosts:   make([]feed.TopPost, 0, len(posts)),
	}
	for _, a := range head(authors, r.opts.TopMetricsSize) {
		out.TopAuthors = append(out.TopAuthors, feed.TopAuthor{AuthorID: a.ID, Handle: a.Handle, FollowersCount: a.FollowersCount})
	}
	for _, p := range head(posts, r.opts.TopMetricsSize) {
		out.TopPosts = append(out.TopPosts, feed.TopPost{ID: p.ID, Text: p.Text, RetweetCount: p.RetweetCount})
	}
	return out, nil
}

// Refresh recomputes the snapshot and overwrites the cached copy.
func (r *Refresher) Refresh(ctx context.Context) (feed.TopMetrics, error) {
	tm, raw, err := r.snapshot(ctx)
	if err != nil {
		r.failures.Inc()
		r.metrics.refreshes.WithLabelValues("error").Inc()
		return feed.TopMetrics{}, err
	}
	r.cache.Put(feed.TopMetricsKey, raw)
	r.refreshes.Inc()
	r.lastRefresh.Store(time.Now())
	r.metrics.refreshes.WithLabelValues("ok").Inc()
	return tm, nil
}

func (r *Refresher) snapshot(ctx context.Context) (feed.TopMetrics, []byte, error) {
	tm, err := r.Compute(ctx)
	if err != nil {
		return feed.TopMetrics{}, nil, err
	}
	raw, err := r.encode(tm)
	if err != nil {
		return feed.TopMetrics{}, nil, fmt.Errorf("search: encode top metrics: %w", err)
	}
	return tm, raw, nil
}

// Run refreshes immediately and then once per interval until ctx is done.
// A failed refresh is logged and retried on the next tick.
func (r *Refresher) Run(ctx context.Context) {
	r.runOnce(ctx)
	ticker := time.NewTicker(r.opts.RefreshInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.runOnce(ctx)
		}
	}
}

func (r *Refresher) runOnce(ctx context.Context) {
	tm, err := r.Refresh(ctx)
	if err != nil {
		if ctx.Err() == nil {
			r.opts.Logger.Errorf("top metrics refresh failed: %v", err)
		}
		return
	}
	r.opts.Logger.Debugf("top metrics refreshed: %d authors, %d posts", len(tm.TopAuthors), len(tm.TopPosts))
}

// TopMetrics returns the cached snapshot, computing and caching it when
// absent. Concurrent misses share one computation.
func (r *Refresher) TopMetrics(ctx context.Context) (feed.TopMetrics, error) {
	if raw, ok := r.cache.Get(feed.TopMetricsKey); ok {
		var tm feed.TopMetrics
		if err := json.Unmarshal(raw, &tm); err == nil {
			return tm, nil
		}
		r.opts.Logger.Warnf("search: undecodable top metrics entry, recomputing")
	}
	v, err, _ := r.group.Do(feed.TopMetricsKey, func() (any, error) {
		return r.Refresh(context.WithoutCancel(ctx))
	})
	if err != nil {
		return feed.TopMetrics{}, err
	}
	return cloneTopMetrics(v.(feed.TopMetrics)), nil
}

// RefreshStats reports successful and failed refreshes and the time of the
// last success.
type RefreshStats struct {
	Refreshes   int64     `json:"refreshes"`
	Failures    int64     `json:"failures"`
	LastRefresh time.Time `json:"last_refresh"`
}

func (r *Refresher) Stats() RefreshStats {
	return RefreshStats{
		Refreshes:   r.refreshes.Load(),
		Failures:    r.failures.Load(),
		LastRefresh: r.lastRefresh.Load(),
	}
}

func cloneTopMetrics(tm feed.TopMetrics) feed.TopMetrics {
	return feed.TopMetrics{
		TopAuthors: append([]feed.TopAuthor{}, tm.TopAuthors...),
		TopPosts:   append([]feed.TopPost{}, tm.TopPosts...),
	}
}
