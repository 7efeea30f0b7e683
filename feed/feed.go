// Package feed holds the post/author data model shared by the stores, the
// cache-backed search pipeline and the HTTP surface.
package feed

import (
	"context"
	"errors"
	"time"
)

var (
	ErrInvalidQuery   = errors.New("feed: invalid query")
	ErrLookupFailed   = errors.New("feed: store lookup failed")
	ErrPostNotFound   = errors.New("feed: post not found")
	ErrAuthorNotFound = errors.New("feed: author not found")
	ErrPostExists     = errors.New("feed: post already exists")
	ErrMissingStore   = errors.New("feed: store is required")
)

// Post is a single social-media post as held by the document store.
// OriginalPostID is set only for reposts.
type Post struct {
	ID             string    `json:"tweet_id"`
	AuthorID       string    `json:"user_id"`
	Text           string    `json:"text"`
	CreatedAt      time.Time `json:"created_at"`
	IsRetweet      bool      `json:"is_retweet"`
	QuoteCount     int       `json:"quote_count"`
	ReplyCount     int       `json:"reply_count"`
	RetweetCount   int       `json:"retweet_count"`
	FavoriteCount  int       `json:"favorite_count"`
	Hashtags       []string  `json:"hashtags"`
	Mentions       []string  `json:"mentions"`
	OriginalPostID string    `json:"original_tweet_id,omitempty"`
}

// Clone returns a deep copy so callers never share slices with the source.
func (p Post) Clone() Post {
	out := p
	out.Hashtags = append([]string(nil), p.Hashtags...)
	out.Mentions = append([]string(nil), p.Mentions...)
	return out
}

// HasHashtag reports whether tag is one of the post's hashtags.
func (p Post) HasHashtag(tag string) bool {
	for _, h := range p.Hashtags {
		if h == tag {
			return true
		}
	}
	return false
}

// Author is a profile row owned by the relational store.
type Author struct {
	ID              string
	Name            string
	Handle          string
	FollowersCount  int
	Description     string
	FavouritesCount int
	StatusesCount   int
	CreatedAt       time.Time
	Location        *string
	URL             *string
}

// Metadata is the per-post enrichment cached under the post id.
type Metadata struct {
	Author        string    `json:"author"`
	TweetedAt     time.Time `json:"tweeted_at"`
	RetweetCount  int       `json:"retweet_count"`
	FavoriteCount int       `json:"favorite_count"`
}

// TopAuthor is one row of the follower leaderboard.
type TopAuthor struct {
	AuthorID       string `json:"user_id"`
	Handle         string `json:"screen_name"`
	FollowersCount int    `json:"followers_count"`
}

// TopPost is one row of the retweet leaderboard.
type TopPost struct {
	ID           string `json:"tweet_id"`
	Text         string `json:"text"`
	RetweetCount int    `json:"retweet_count"`
}

// TopMetrics is the global snapshot kept warm by the refresher.
type TopMetrics struct {
	TopAuthors []TopAuthor `json:"top_authors"`
	TopPosts   []TopPost   `json:"top_posts"`
}

// PostFilter is the store-level translation of a Query. Nil fields carry no
// constraint; present fields are combined with AND.
type PostFilter struct {
	TextContains *string
	Hashtag      *string
	AuthorID     *string
	CreatedFrom  *time.Time
	CreatedTo    *time.Time
}

// PostStore is the document-store contract consumed by the search pipeline.
type PostStore interface {
	FindPosts(ctx context.Context, filter PostFilter, limit int) ([]Post, error)
	FindPost(ctx context.Context, id string) (Post, error)
	TopPostsByRetweets(ctx context.Context, limit int) ([]Post, error)
}

// AuthorStore is the relational-store contract consumed by the search pipeline.
type AuthorStore interface {
	FindAuthor(ctx context.Context, id string) (Author, error)
	FindAuthorIDByHandle(ctx context.Context, handle string) (string, error)
	TopAuthorsByFollowers(ctx context.Context, limit int) ([]Author, error)
}

// PostWriter and AuthorWriter are used by ingestion only.
type PostWriter interface {
	InsertPost(ctx context.Context, post Post) error
}

type AuthorWriter interface {
	UpsertAuthor(ctx context.Context, author Author) error
}
