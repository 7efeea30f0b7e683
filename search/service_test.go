package search

import (
	"context"
	"encoding/json"
	"errors"
	"reflect"
	"sync"
	"testing"
	"time"

	"github.com/adeilh/postrank/cache"
	"github.com/adeilh/postrank/feed"
	"github.com/adeilh/postrank/internal/testutil/memstore"
)

type discardLogger struct{}

func (discardLogger) Debugf(string, ...interface{}) {}
func (discardLogger) Infof(string, ...interface{})  {}
func (discardLogger) Warnf(string, ...interface{})  {}
func (discardLogger) Errorf(string, ...interface{}) {}

var base = time.Date(2020, 3, 1, 0, 0, 0, 0, time.UTC)

func fixtureStore() *memstore.Store {
	s := memstore.New()
	s.AddAuthors(
		feed.Author{ID: "u1", Name: "Alice", Handle: "alice", FollowersCount: 500},
		feed.Author{ID: "u2", Name: "Bob", Handle: "bob", FollowersCount: 50},
		feed.Author{ID: "u3", Name: "Carol", Handle: "carol", FollowersCount: 5000},
	)
	s.AddPosts(
		feed.Post{ID: "p1", AuthorID: "u1", Text: "Trump speaks", CreatedAt: base, RetweetCount: 10, FavoriteCount: 1, Hashtags: []string{"politics"}},
		feed.Post{ID: "p2", AuthorID: "u2", Text: "covid vaccine update", CreatedAt: base.Add(time.Hour), RetweetCount: 30, FavoriteCount: 2, Hashtags: []string{"covid"}},
		feed.Post{ID: "p3", AuthorID: "u1", Text: "trump and covid", CreatedAt: base.Add(2 * time.Hour), RetweetCount: 10, FavoriteCount: 50, Hashtags: []string{"covid", "politics"}},
		feed.Post{ID: "p4", AuthorID: "u9", Text: "orphan post", CreatedAt: base.Add(3 * time.Hour), RetweetCount: 5, FavoriteCount: 7},
	)
	return s
}

func newTestCache(t *testing.T) *cache.LRU {
	t.Helper()
	c, err := cache.New(cache.WithCapacity(100), cache.WithTTL(time.Hour), cache.WithLogger(discardLogger{}))
	if err != nil {
		t.Fatalf("cache.New() error = %v", err)
	}
	return c
}

func newTestService(t *testing.T, store *memstore.Store, opts ...Option) (*Service, *cache.LRU) {
	t.Helper()
	c := newTestCache(t)
	opts = append([]Option{WithLogger(discardLogger{})}, opts...)
	svc, err := NewService(c, store, store, opts...)
	if err != nil {
		t.Fatalf("NewService() error = %v", err)
	}
	return svc, c
}

func ids(posts []RankedPost) []string {
	out := make([]string, len(posts))
	for i, p := range posts {
		out[i] = p.ID
	}
	return out
}

func TestNewServiceRequiresStores(t *testing.T) {
	if _, err := NewService(newTestCache(t), nil, memstore.New()); !errors.Is(err, feed.ErrMissingStore) {
		t.Fatalf("expected ErrMissingStore, got %v", err)
	}
}

func TestSearchAndRankMissThenHit(t *testing.T) {
	store := fixtureStore()
	svc, c := newTestService(t, store)
	ctx := context.Background()

	first, err := svc.SearchAndRank(ctx, feed.Query{Text: feed.Ptr("trump")})
	if err != nil {
		t.Fatalf("SearchAndRank() error = %v", err)
	}
	if got := ids(first.Results); !reflect.DeepEqual(got, []string{"p1", "p3"}) {
		t.Fatalf("results = %v, want [p1 p3]", got)
	}
	if md := first.Results[0].Metadata; md == nil || md.Author != "Alice" || md.RetweetCount != 10 {
		t.Fatalf("metadata for p1 = %+v", md)
	}

	key, _ := feed.Query{Text: feed.Ptr("trump")}.Key()
	if _, ok := c.Get(key); !ok {
		t.Fatalf("composite result not cached under %s", key)
	}

	// Same logical query with an explicitly absent field hits the cache.
	second, err := svc.SearchAndRank(ctx, feed.Query{Text: feed.Ptr("trump"), Hashtag: nil})
	if err != nil {
		t.Fatalf("SearchAndRank() error = %v", err)
	}
	if calls := store.FindPostsCalls.Load(); calls != 1 {
		t.Fatalf("FindPosts called %d times, want 1", calls)
	}
	if !reflect.DeepEqual(first, second) {
		t.Fatalf("cached result differs:\nfirst  %+v\nsecond %+v", first, second)
	}
}

func TestSearchAndRankKeepsUnresolvedMetadataAsNull(t *testing.T) {
	svc, _ := newTestService(t, fixtureStore())

	res, err := svc.SearchAndRank(context.Background(), feed.Query{})
	if err != nil {
		t.Fatalf("SearchAndRank() error = %v", err)
	}
	if got := ids(res.Results); !reflect.DeepEqual(got, []string{"p2", "p1", "p3", "p4"}) {
		t.Fatalf("results = %v", got)
	}
	last := res.Results[3]
	if last.ID != "p4" || last.Metadata != nil {
		t.Fatalf("orphan post = %+v, want nil metadata", last)
	}
	if got := ids(res.TopByCategory.TopFavorited); !reflect.DeepEqual(got, []string{"p3", "p4", "p2", "p1"}) {
		t.Fatalf("top favorited = %v", got)
	}
	if res.TopByCategory.TopFavorited[0].Metadata == nil {
		t.Fatal("leaderboard entries should carry metadata")
	}

	raw, err := json.Marshal(res)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var decoded struct {
		Results []map[string]any `json:"results"`
	}
	if err := json.Unmarshal(raw, &decoded); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	md, present := decoded.Results[3]["metadata"]
	if !present || md != nil {
		t.Fatalf("orphan metadata encodes as %v (present %v), want null", md, present)
	}
}

func TestSearchAndRankEmptyResult(t *testing.T) {
	svc, _ := newTestService(t, fixtureStore())

	res, err := svc.SearchAndRank(context.Background(), feed.Query{Hashtag: feed.Ptr("nothing")})
	if err != nil {
		t.Fatalf("SearchAndRank() error = %v", err)
	}
	if res.Results == nil || len(res.Results) != 0 {
		t.Fatalf("results = %#v, want empty non-nil", res.Results)
	}
	if len(res.TopByCategory.TopRetweeted) != 0 || len(res.TopByCategory.TopFavorited) != 0 {
		t.Fatalf("leaderboards = %+v, want empty", res.TopByCategory)
	}
}

func TestSearchAndRankInvalidQuery(t *testing.T) {
	store := fixtureStore()
	svc, c := newTestService(t, store)

	q := feed.Query{TimeRange: &feed.TimeRange{Start: base.Add(time.Hour), End: base}}
	if _, err := svc.SearchAndRank(context.Background(), q); !errors.Is(err, feed.ErrInvalidQuery) {
		t.Fatalf("expected ErrInvalidQuery, got %v", err)
	}
	if store.FindPostsCalls.Load() != 0 || c.Len() != 0 {
		t.Fatal("invalid query must not reach the store or the cache")
	}
}

func TestSearchAndRankLookupFailureIsNotCached(t *testing.T) {
	store := fixtureStore()
	svc, c := newTestService(t, store)

	store.FailWith(errors.New("connection refused"))
	_, err := svc.SearchAndRank(context.Background(), feed.Query{Text: feed.Ptr("covid")})
	if !errors.Is(err, feed.ErrLookupFailed) {
		t.Fatalf("expected ErrLookupFailed, got %v", err)
	}
	if c.Len() != 0 {
		t.Fatalf("failed search left %d cache entries", c.Len())
	}

	store.FailWith(nil)
	res, err := svc.SearchAndRank(context.Background(), feed.Query{Text: feed.Ptr("covid")})
	if err != nil {
		t.Fatalf("retry error = %v", err)
	}
	if got := ids(res.Results); !reflect.DeepEqual(got, []string{"p2", "p3"}) {
		t.Fatalf("results = %v", got)
	}
}

func TestSearchAndRankConcurrentCallers(t *testing.T) {
	svc, _ := newTestService(t, fixtureStore())

	var wg sync.WaitGroup
	results := make([]Result, 8)
	errs := make([]error, 8)
	for i := range results {
		i := i
		wg.Add(1)
		go func() {
			defer wg.Done()
			results[i], errs[i] = svc.SearchAndRank(context.Background(), feed.Query{Hashtag: feed.Ptr("politics")})
		}()
	}
	wg.Wait()

	for i := range results {
		if errs[i] != nil {
			t.Fatalf("caller %d error = %v", i, errs[i])
		}
		if !reflect.DeepEqual(results[i], results[0]) {
			t.Fatalf("caller %d saw a different result", i)
		}
	}
}

func TestServiceMetadataAndTopMetrics(t *testing.T) {
	store := fixtureStore()
	svc, _ := newTestService(t, store)
	ctx := context.Background()

	md, ok, err := svc.Metadata(ctx, "p2")
	if err != nil || !ok {
		t.Fatalf("Metadata() = %+v, %v, %v", md, ok, err)
	}
	if md.Author != "Bob" || !md.TweetedAt.Equal(base.Add(time.Hour)) {
		t.Fatalf("Metadata() = %+v", md)
	}

	tm, err := svc.TopMetrics(ctx)
	if err != nil {
		t.Fatalf("TopMetrics() error = %v", err)
	}
	if tm.TopAuthors[0].Handle != "carol" || tm.TopPosts[0].ID != "p2" {
		t.Fatalf("TopMetrics() = %+v", tm)
	}
}
