package search

import (
	"context"
	"errors"
	"fmt"

	"github.com/adeilh/postrank/feed"
)

// Executor turns a Query into a filtered read against the post store,
// resolving author handles through the author store first.
type Executor struct {
	posts   feed.PostStore
	authors feed.AuthorStore
	opts    Options
}

// NewExecutor wires an executor over the two stores.
func NewExecutor(posts feed.PostStore, authors feed.AuthorStore, opts ...Option) (*Executor, error) {
	if posts == nil || authors == nil {
		return nil, feed.ErrMissingStore
	}
	return &Executor{posts: posts, authors: authors, opts: buildOptions(opts)}, nil
}

// Search returns at most SearchLimit posts matching every present field of
// q. An empty query browses. A handle that resolves to no author yields an
// empty result rather than an error.
func (e *Executor) Search(ctx context.Context, q feed.Query) ([]feed.Post, error) {
	if err := q.Validate(); err != nil {
		return nil, err
	}
	filter := feed.PostFilter{
		TextContains: q.Text,
		Hashtag:      q.Hashtag,
	}
	if q.AuthorHandle != nil {
		id, err := e.resolveHandle(ctx, *q.AuthorHandle)
		if errors.Is(err, feed.ErrAuthorNotFound) {
			return []feed.Post{}, nil
		}
		if err != nil {
			return nil, err
		}
		filter.AuthorID = &id
	}
	if q.TimeRange != nil {
		start, end := q.TimeRange.Start, q.TimeRange.End
		filter.CreatedFrom = &start
		filter.CreatedTo = &end
	}

	storeCtx, cancel := context.WithTimeout(ctx, e.opts.StoreTimeout)
	defer cancel()
	posts, err := e.posts.FindPosts(storeCtx, filter, e.opts.SearchLimit)
	if err != nil {
		return nil, lookupFailed("find posts", err)
	}
	if len(posts) > e.opts.SearchLimit {
		posts = posts[:e.opts.SearchLimit]
	}
	if posts == nil {
		posts = []feed.Post{}
	}
	return posts, nil
}

func (e *Executor) resolveHandle(ctx context.Context, handle string) (string, error) {
	storeCtx, cancel := context.WithTimeout(ctx, e.opts.StoreTimeout)
	defer cancel()
	id, err := e.authors.FindAuthorIDByHandle(storeCtx, handle)
	switch {
	case errors.Is(err, feed.ErrAuthorNotFound):
		return "", err
	case err != nil:
		return "", lookupFailed("resolve author handle", err)
	}
	return id, nil
}

// lookupFailed tags a store error with feed.ErrLookupFailed exactly once.
func lookupFailed(op string, err error) error {
	if errors.Is(err, feed.ErrLookupFailed) {
		return fmt.Errorf("search: %s: %w", op, err)
	}
	return fmt.Errorf("search: %s: %w: %w", op, feed.ErrLookupFailed, err)
}
