package mongo

import (
	"context"
	"errors"
	"fmt"
	"os"
	"reflect"
	"testing"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/adeilh/postrank/feed"
	testmongo "github.com/adeilh/postrank/internal/testutil/mongocontainer"
)

const testTimeout = 5 * time.Second

var containerErr error

func TestMain(m *testing.M) {
	containerErr = testmongo.Setup()
	if containerErr != nil {
		fmt.Println("mongo integration tests skipped:", containerErr)
	}
	code := m.Run()
	_ = testmongo.Teardown()
	os.Exit(code)
}

func TestBuildFilterEmptyIsBrowse(t *testing.T) {
	if got := buildFilter(feed.PostFilter{}); len(got) != 0 {
		t.Fatalf("buildFilter(empty) = %v, want empty document", got)
	}
}

func TestBuildFilterCombinesFields(t *testing.T) {
	from := time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC)
	to := from.Add(24 * time.Hour)
	got := buildFilter(feed.PostFilter{
		TextContains: feed.Ptr("a.b"),
		Hashtag:      feed.Ptr("covid"),
		AuthorID:     feed.Ptr("42"),
		CreatedFrom:  &from,
		CreatedTo:    &to,
	})
	want := bson.D{
		{Key: "text", Value: primitive.Regex{Pattern: `a\.b`, Options: "i"}},
		{Key: "hashtags", Value: "covid"},
		{Key: "user_id", Value: "42"},
		{Key: "created_at", Value: bson.D{{Key: "$gte", Value: from}, {Key: "$lte", Value: to}}},
	}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("buildFilter() = %v\nwant %v", got, want)
	}
}

func TestPostRepositoryQueries(t *testing.T) {
	repo := openTestRepository(t)
	ctx, cancel := context.WithTimeout(context.Background(), testTimeout)
	defer cancel()

	base := time.Date(2020, 4, 1, 0, 0, 0, 0, time.UTC)
	posts := []feed.Post{
		{ID: "1", AuthorID: "a", Text: "Trump rally today", CreatedAt: base, RetweetCount: 5, FavoriteCount: 1, Hashtags: []string{"politics"}},
		{ID: "2", AuthorID: "b", Text: "vaccine news", CreatedAt: base.Add(time.Hour), RetweetCount: 50, FavoriteCount: 9, Hashtags: []string{"covid"}},
		{ID: "3", AuthorID: "a", Text: "more trump", CreatedAt: base.Add(48 * time.Hour), RetweetCount: 7, Hashtags: []string{"politics", "covid"}, IsRetweet: true, OriginalPostID: "1"},
	}
	for _, p := range posts {
		if err := repo.InsertPost(ctx, p); err != nil {
			t.Fatalf("InsertPost(%s) error = %v", p.ID, err)
		}
	}
	if err := repo.InsertPost(ctx, posts[0]); !errors.Is(err, feed.ErrPostExists) {
		t.Fatalf("expected ErrPostExists, got %v", err)
	}

	got, err := repo.FindPosts(ctx, feed.PostFilter{TextContains: feed.Ptr("TRUMP")}, 50)
	if err != nil {
		t.Fatalf("FindPosts() error = %v", err)
	}
	if ids := postIDs(got); !reflect.DeepEqual(ids, []string{"1", "3"}) {
		t.Fatalf("text search ids = %v", ids)
	}

	end := base.Add(24 * time.Hour)
	got, err = repo.FindPosts(ctx, feed.PostFilter{Hashtag: feed.Ptr("covid"), CreatedFrom: &base, CreatedTo: &end}, 50)
	if err != nil {
		t.Fatalf("FindPosts() error = %v", err)
	}
	if ids := postIDs(got); !reflect.DeepEqual(ids, []string{"2"}) {
		t.Fatalf("hashtag+range ids = %v", ids)
	}

	got, err = repo.FindPosts(ctx, feed.PostFilter{}, 2)
	if err != nil || len(got) != 2 {
		t.Fatalf("browse FindPosts() = %d posts, %v", len(got), err)
	}

	one, err := repo.FindPost(ctx, "3")
	if err != nil {
		t.Fatalf("FindPost() error = %v", err)
	}
	if one.OriginalPostID != "1" || !one.IsRetweet || !one.CreatedAt.Equal(posts[2].CreatedAt) {
		t.Fatalf("FindPost() = %+v", one)
	}
	if _, err := repo.FindPost(ctx, "nope"); !errors.Is(err, feed.ErrPostNotFound) {
		t.Fatalf("expected ErrPostNotFound, got %v", err)
	}

	top, err := repo.TopPostsByRetweets(ctx, 2)
	if err != nil {
		t.Fatalf("TopPostsByRetweets() error = %v", err)
	}
	if ids := postIDs(top); !reflect.DeepEqual(ids, []string{"2", "3"}) {
		t.Fatalf("top ids = %v", ids)
	}
}

func openTestRepository(t *testing.T) *PostRepository {
	t.Helper()
	if containerErr != nil {
		t.Skipf("mongo container unavailable: %v", containerErr)
	}
	ctx, cancel := context.WithTimeout(context.Background(), testTimeout)
	defer cancel()

	coll := fmt.Sprintf("tweets_%d", time.Now().UnixNano())
	client, repo, err := Open(ctx, WithURI(testmongo.URI()), WithDatabase("postrank_test"), WithCollection(coll))
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	t.Cleanup(func() {
		_ = repo.coll.Drop(context.Background())
		_ = client.Disconnect(context.Background())
	})
	if err := repo.EnsureIndexes(ctx); err != nil {
		t.Fatalf("EnsureIndexes() error = %v", err)
	}
	return repo
}

func postIDs(posts []feed.Post) []string {
	ids := make([]string, len(posts))
	for i, p := range posts {
		ids[i] = p.ID
	}
	return ids
}
