// Package memstore is an in-memory post and author store for tests. It
// mirrors the filter semantics of the Mongo and Postgres repositories and
// counts calls so tests can assert on cache behaviour.
package memstore

import (
	"cmp"
	"context"
	"slices"
	"strings"
	"sync"

	"go.uber.org/atomic"

	"github.com/adeilh/postrank/feed"
)

// Store holds posts in insertion order and authors by id.
type Store struct {
	mu      sync.RWMutex
	posts   []feed.Post
	authors map[string]feed.Author
	err     error

	FindPostsCalls  atomic.Int64
	FindPostCalls   atomic.Int64
	FindAuthorCalls atomic.Int64
	HandleCalls     atomic.Int64
	TopCalls        atomic.Int64
}

var (
	_ feed.PostStore    = (*Store)(nil)
	_ feed.AuthorStore  = (*Store)(nil)
	_ feed.PostWriter   = (*Store)(nil)
	_ feed.AuthorWriter = (*Store)(nil)
)

func New() *Store {
	return &Store{authors: make(map[string]feed.Author)}
}

// FailWith makes every read return err until called again with nil.
func (s *Store) FailWith(err error) {
	s.mu.Lock()
	s.err = err
	s.mu.Unlock()
}

func (s *Store) AddPosts(posts ...feed.Post) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, p := range posts {
		s.posts = append(s.posts, p.Clone())
	}
}

func (s *Store) AddAuthors(authors ...feed.Author) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, a := range authors {
		s.authors[a.ID] = a
	}
}

func (s *Store) InsertPost(_ context.Context, post feed.Post) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, p := range s.posts {
		if p.ID == post.ID {
			return feed.ErrPostExists
		}
	}
	s.posts = append(s.posts, post.Clone())
	return nil
}

func (s *Store) UpsertAuthor(_ context.Context, author feed.Author) error {
	s.AddAuthors(author)
	return nil
}

func (s *Store) FindPosts(ctx context.Context, filter feed.PostFilter, limit int) ([]feed.Post, error) {
	s.FindPostsCalls.Inc()
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := s.readErr(ctx); err != nil {
		return nil, err
	}
	out := []feed.Post{}
	for _, p := range s.posts {
		if limit > 0 && len(out) == limit {
			break
		}
		if matches(p, filter) {
			out = append(out, p.Clone())
		}
	}
	return out, nil
}

func (s *Store) FindPost(ctx context.Context, id string) (feed.Post, error) {
	s.FindPostCalls.Inc()
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := s.readErr(ctx); err != nil {
		return feed.Post{}, err
	}
	for _, p := range s.posts {
		if p.ID == id {
			return p.Clone(), nil
		}
	}
	return feed.Post{}, feed.ErrPostNotFound
}

func (s *Store) TopPostsByRetweets(ctx context.Context, limit int) ([]feed.Post, error) {
	s.TopCalls.Inc()
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := s.readErr(ctx); err != nil {
		return nil, err
	}
	out := make([]feed.Post, 0, len(s.posts))
	for _, p := range s.posts {
		out = append(out, p.Clone())
	}
	slices.SortStableFunc(out, func(a, b feed.Post) int {
		if c := cmp.Compare(b.RetweetCount, a.RetweetCount); c != 0 {
			return c
		}
		return cmp.Compare(a.ID, b.ID)
	})
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *Store) FindAuthor(ctx context.Context, id string) (feed.Author, error) {
	s.FindAuthorCalls.Inc()
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := s.readErr(ctx); err != nil {
		return feed.Author{}, err
	}
	a, ok := s.authors[id]
	if !ok {
		return feed.Author{}, feed.ErrAuthorNotFound
	}
	return a, nil
}

func (s *Store) FindAuthorIDByHandle(ctx context.Context, handle string) (string, error) {
	s.HandleCalls.Inc()
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := s.readErr(ctx); err != nil {
		return "", err
	}
	var ids []string
	for id, a := range s.authors {
		if a.Handle == handle {
			ids = append(ids, id)
		}
	}
	if len(ids) == 0 {
		return "", feed.ErrAuthorNotFound
	}
	return slices.Min(ids), nil
}

func (s *Store) TopAuthorsByFollowers(ctx context.Context, limit int) ([]feed.Author, error) {
	s.TopCalls.Inc()
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := s.readErr(ctx); err != nil {
		return nil, err
	}
	out := make([]feed.Author, 0, len(s.authors))
	for _, a := range s.authors {
		out = append(out, a)
	}
	slices.SortFunc(out, func(a, b feed.Author) int {
		if c := cmp.Compare(b.FollowersCount, a.FollowersCount); c != 0 {
			return c
		}
		return cmp.Compare(a.ID, b.ID)
	})
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *Store) readErr(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return s.err
}

func matches(p feed.Post, f feed.PostFilter) bool {
	if f.TextContains != nil && !strings.Contains(strings.ToLower(p.Text), strings.ToLower(*f.TextContains)) {
		return false
	}
	if f.Hashtag != nil && !p.HasHashtag(*f.Hashtag) {
		return false
	}
	if f.AuthorID != nil && p.AuthorID != *f.AuthorID {
		return false
	}
	if f.CreatedFrom != nil && p.CreatedAt.Before(*f.CreatedFrom) {
		return false
	}
	if f.CreatedTo != nil && p.CreatedAt.After(*f.CreatedTo) {
		return false
	}
	return true
}
