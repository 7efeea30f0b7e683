package search

import (
	"context"
	"errors"
	"reflect"
	"testing"
	"time"

	"github.com/adeilh/postrank/feed"
	"github.com/adeilh/postrank/internal/testutil/memstore"
)

// blockingPosts never answers until the caller's context ends.
type blockingPosts struct {
	*memstore.Store
}

func (blockingPosts) FindPosts(ctx context.Context, _ feed.PostFilter, _ int) ([]feed.Post, error) {
	<-ctx.Done()
	return nil, ctx.Err()
}

func newTestExecutor(t *testing.T, posts feed.PostStore, authors feed.AuthorStore, opts ...Option) *Executor {
	t.Helper()
	e, err := NewExecutor(posts, authors, append([]Option{WithLogger(discardLogger{})}, opts...)...)
	if err != nil {
		t.Fatalf("NewExecutor() error = %v", err)
	}
	return e
}

func TestExecutorFilters(t *testing.T) {
	store := fixtureStore()
	e := newTestExecutor(t, store, store)

	cases := []struct {
		name string
		q    feed.Query
		want []string
	}{
		{"browse", feed.Query{}, []string{"p1", "p2", "p3", "p4"}},
		{"text is case insensitive", feed.Query{Text: feed.Ptr("TRUMP")}, []string{"p1", "p3"}},
		{"hashtag", feed.Query{Hashtag: feed.Ptr("covid")}, []string{"p2", "p3"}},
		{"author handle", feed.Query{AuthorHandle: feed.Ptr("alice")}, []string{"p1", "p3"}},
		{"combined", feed.Query{Text: feed.Ptr("trump"), Hashtag: feed.Ptr("covid")}, []string{"p3"}},
		{"time range inclusive", feed.Query{TimeRange: &feed.TimeRange{Start: base.Add(time.Hour), End: base.Add(2 * time.Hour)}}, []string{"p2", "p3"}},
		{"empty text is present", feed.Query{Text: feed.Ptr("")}, []string{"p1", "p2", "p3", "p4"}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := e.Search(context.Background(), tc.q)
			if err != nil {
				t.Fatalf("Search() error = %v", err)
			}
			if ids := postIDs(got); !reflect.DeepEqual(ids, tc.want) {
				t.Fatalf("Search() = %v, want %v", ids, tc.want)
			}
		})
	}
}

func TestExecutorUnknownHandleIsEmpty(t *testing.T) {
	store := fixtureStore()
	e := newTestExecutor(t, store, store)

	got, err := e.Search(context.Background(), feed.Query{AuthorHandle: feed.Ptr("nobody"), Hashtag: feed.Ptr("covid")})
	if err != nil {
		t.Fatalf("Search() error = %v", err)
	}
	if got == nil || len(got) != 0 {
		t.Fatalf("Search() = %v, want empty non-nil", got)
	}
	if store.FindPostsCalls.Load() != 0 {
		t.Fatal("unknown handle should short-circuit before the post store")
	}
}

func TestExecutorAppliesLimit(t *testing.T) {
	store := fixtureStore()
	e := newTestExecutor(t, store, store, WithSearchLimit(2))

	got, err := e.Search(context.Background(), feed.Query{})
	if err != nil {
		t.Fatalf("Search() error = %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("Search() returned %d posts, want 2", len(got))
	}
}

func TestExecutorLookupFailures(t *testing.T) {
	store := fixtureStore()
	e := newTestExecutor(t, store, store)
	store.FailWith(errors.New("no reachable servers"))

	if _, err := e.Search(context.Background(), feed.Query{}); !errors.Is(err, feed.ErrLookupFailed) {
		t.Fatalf("post store failure: expected ErrLookupFailed, got %v", err)
	}
	if _, err := e.Search(context.Background(), feed.Query{AuthorHandle: feed.Ptr("alice")}); !errors.Is(err, feed.ErrLookupFailed) {
		t.Fatalf("author store failure: expected ErrLookupFailed, got %v", err)
	}
}

func TestExecutorStoreTimeout(t *testing.T) {
	store := fixtureStore()
	e := newTestExecutor(t, blockingPosts{store}, store, WithStoreTimeout(20*time.Millisecond))

	start := time.Now()
	_, err := e.Search(context.Background(), feed.Query{})
	if !errors.Is(err, feed.ErrLookupFailed) || !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected a timed out lookup failure, got %v", err)
	}
	if elapsed := time.Since(start); elapsed > time.Second {
		t.Fatalf("timeout took %s", elapsed)
	}
}

func TestLookupFailedWrapsOnce(t *testing.T) {
	inner := lookupFailed("a", errors.New("x"))
	outer := lookupFailed("b", inner)
	if !errors.Is(outer, feed.ErrLookupFailed) {
		t.Fatalf("outer error lost the sentinel: %v", outer)
	}
	if got, want := outer.Error(), "search: b: search: a: feed: store lookup failed: x"; got != want {
		t.Fatalf("Error() = %q, want %q", got, want)
	}
}
