package search

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/adeilh/postrank/feed"
)

// Resolver produces per-post metadata, reading through the cache under the
// post id. Lookups that find nothing are not cached.
type Resolver struct {
	cache   Cache
	posts   feed.PostStore
	authors feed.AuthorStore
	opts    Options
}

func NewResolver(c Cache, posts feed.PostStore, authors feed.AuthorStore, opts ...Option) (*Resolver, error) {
	if c == nil || posts == nil || authors == nil {
		return nil, feed.ErrMissingStore
	}
	return &Resolver{cache: c, posts: posts, authors: authors, opts: buildOptions(opts)}, nil
}

// Resolve returns the metadata for id. ok is false when the post or its
// author does not exist.
func (r *Resolver) Resolve(ctx context.Context, id string) (md feed.Metadata, ok bool, err error) {
	key := feed.PostKey(id)
	if raw, hit := r.cache.Get(key); hit {
		if err := json.Unmarshal(raw, &md); err == nil {
			return md, true, nil
		}
		r.opts.Logger.Warnf("search: undecodable metadata for %q, recomputing", id)
	}

	post, err := r.findPost(ctx, id)
	if errors.Is(err, feed.ErrPostNotFound) {
		return feed.Metadata{}, false, nil
	}
	if err != nil {
		return feed.Metadata{}, false, err
	}
	author, err := r.findAuthor(ctx, post.AuthorID)
	if errors.Is(err, feed.ErrAuthorNotFound) {
		return feed.Metadata{}, false, nil
	}
	if err != nil {
		return feed.Metadata{}, false, err
	}

	md = feed.Metadata{
		Author:        author.Name,
		TweetedAt:     post.CreatedAt,
		RetweetCount:  post.RetweetCount,
		FavoriteCount: post.FavoriteCount,
	}
	raw, err := json.Marshal(md)
	if err != nil {
		return feed.Metadata{}, false, err
	}
	r.cache.Put(key, raw)
	return md, true, nil
}

func (r *Resolver) findPost(ctx context.Context, id string) (feed.Post, error) {
	storeCtx, cancel := context.WithTimeout(ctx, r.opts.StoreTimeout)
	defer cancel()
	post, err := r.posts.FindPost(storeCtx, id)
	if err != nil && !errors.Is(err, feed.ErrPostNotFound) {
		return feed.Post{}, lookupFailed("find post", err)
	}
	return post, err
}

func (r *Resolver) findAuthor(ctx context.Context, id string) (feed.Author, error) {
	storeCtx, cancel := context.WithTimeout(ctx, r.opts.StoreTimeout)
	defer cancel()
	author, err := r.authors.FindAuthor(storeCtx, id)
	if err != nil && !errors.Is(err, feed.ErrAuthorNotFound) {
		return feed.Author{}, lookupFailed("find author", err)
	}
	return author, err
}
