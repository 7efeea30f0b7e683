// Package search answers structured post searches and global leaderboard
// requests, reading through a shared byte cache in front of the post and
// author stores.
package search

import (
	"context"
	"encoding/json"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"github.com/adeilh/postrank/feed"
)

// RankedPost is a post with its metadata attached. Metadata is nil when the
// post or its author could not be resolved.
type RankedPost struct {
	feed.Post
	Metadata *feed.Metadata `json:"metadata"`
}

// Leaderboards holds the per-search category boards.
type Leaderboards struct {
	TopRetweeted []RankedPost `json:"top_retweeted"`
	TopFavorited []RankedPost `json:"top_favorited"`
}

// Result is the composite answer to a search, cached as one unit under the
// query's key.
type Result struct {
	Results       []RankedPost `json:"results"`
	TopByCategory Leaderboards `json:"top_by_category"`
}

// Service orchestrates key derivation, the cache, the executor, ranking and
// metadata enrichment.
type Service struct {
	cache     Cache
	executor  *Executor
	resolver  *Resolver
	refresher *Refresher
	opts      Options
	metrics   *collectors
	group     singleflight.Group
}

// NewService builds the full pipeline over c and the two stores.
func NewService(c Cache, posts feed.PostStore, authors feed.AuthorStore, opts ...Option) (*Service, error) {
	if c == nil || posts == nil || authors == nil {
		return nil, feed.ErrMissingStore
	}
	cfg := buildOptions(opts)
	m := newCollectors(cfg.Registerer)
	return &Service{
		cache:     c,
		executor:  &Executor{posts: posts, authors: authors, opts: cfg},
		resolver:  &Resolver{cache: c, posts: posts, authors: authors, opts: cfg},
		refresher: newRefresher(c, posts, authors, cfg, m),
		opts:      cfg,
		metrics:   m,
	}, nil
}

// Refresher exposes the background top-metrics loop for the caller to run.
func (s *Service) Refresher() *Refresher {
	return s.refresher
}

// SearchAndRank answers q from the cache when possible. On a miss it runs
// the query, ranks and enriches the results, stores the encoded composite
// and returns it. Hits and misses decode from the same bytes, so a repeated
// query returns an identical result.
func (s *Service) SearchAndRank(ctx context.Context, q feed.Query) (Result, error) {
	key, err := q.Key()
	if err != nil {
		s.metrics.searches.WithLabelValues("invalid").Inc()
		return Result{}, err
	}
	if raw, ok := s.cache.Get(key); ok {
		res, err := decodeResult(raw)
		if err == nil {
			s.metrics.searches.WithLabelValues("hit").Inc()
			return res, nil
		}
		s.opts.Logger.Warnf("search: undecodable cached result for %s: %v", key, err)
	}

	start := time.Now()
	v, err, _ := s.group.Do(key, func() (any, error) {
		return s.compute(context.WithoutCancel(ctx), q, key)
	})
	s.metrics.latency.Observe(time.Since(start).Seconds())
	if err != nil {
		s.metrics.searches.WithLabelValues("error").Inc()
		return Result{}, err
	}
	s.metrics.searches.WithLabelValues("miss").Inc()
	return decodeResult(v.([]byte))
}

// Metadata resolves a single post's metadata through the cache.
func (s *Service) Metadata(ctx context.Context, id string) (feed.Metadata, bool, error) {
	return s.resolver.Resolve(ctx, id)
}

// TopMetrics returns the global snapshot, computing it on first use.
func (s *Service) TopMetrics(ctx context.Context) (feed.TopMetrics, error) {
	return s.refresher.TopMetrics(ctx)
}

func (s *Service) compute(ctx context.Context, q feed.Query, key string) ([]byte, error) {
	posts, err := s.executor.Search(ctx, q)
	if err != nil {
		return nil, err
	}
	ranking := Rank(posts, s.opts.LeaderboardSize)

	results, err := s.enrich(ctx, ranking.Ordered)
	if err != nil {
		return nil, err
	}
	byID := make(map[string]*feed.Metadata, len(results))
	for _, r := range results {
		byID[r.ID] = r.Metadata
	}
	res := Result{
		Results: results,
		TopByCategory: Leaderboards{
			TopRetweeted: attach(ranking.TopRetweeted, byID),
			TopFavorited: attach(ranking.TopFavorited, byID),
		},
	}
	raw, err := json.Marshal(res)
	if err != nil {
		return nil, err
	}
	s.cache.Put(key, raw)
	return raw, nil
}

// enrich resolves metadata for every post concurrently, keeping order.
func (s *Service) enrich(ctx context.Context, posts []feed.Post) ([]RankedPost, error) {
	out := make([]RankedPost, len(posts))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.opts.EnrichWorkers)
	for i, p := range posts {
		i, p := i, p
		out[i].Post = p
		g.Go(func() error {
			md, ok, err := s.resolver.Resolve(gctx, p.ID)
			if err != nil {
				return err
			}
			if ok {
				out[i].Metadata = &md
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

func attach(posts []feed.Post, byID map[string]*feed.Metadata) []RankedPost {
	out := make([]RankedPost, len(posts))
	for i, p := range posts {
		out[i] = RankedPost{Post: p, Metadata: byID[p.ID]}
	}
	return out
}

func decodeResult(raw []byte) (Result, error) {
	var res Result
	if err := json.Unmarshal(raw, &res); err != nil {
		return Result{}, err
	}
	return res, nil
}
