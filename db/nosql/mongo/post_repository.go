package mongo

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/adeilh/postrank/feed"
)

// postDocument is the stored shape of a feed.Post.
type postDocument struct {
	ID             string    `bson:"tweet_id"`
	AuthorID       string    `bson:"user_id"`
	Text           string    `bson:"text"`
	CreatedAt      time.Time `bson:"created_at"`
	IsRetweet      bool      `bson:"is_retweet"`
	QuoteCount     int       `bson:"quote_count"`
	ReplyCount     int       `bson:"reply_count"`
	RetweetCount   int       `bson:"retweet_count"`
	FavoriteCount  int       `bson:"favorite_count"`
	Hashtags       []string  `bson:"hashtags"`
	Mentions       []string  `bson:"user_mentions"`
	OriginalPostID string    `bson:"original_tweet_id,omitempty"`
}

func toDocument(p feed.Post) postDocument {
	return postDocument{
		ID:             p.ID,
		AuthorID:       p.AuthorID,
		Text:           p.Text,
		CreatedAt:      p.CreatedAt.UTC(),
		IsRetweet:      p.IsRetweet,
		QuoteCount:     p.QuoteCount,
		ReplyCount:     p.ReplyCount,
		RetweetCount:   p.RetweetCount,
		FavoriteCount:  p.FavoriteCount,
		Hashtags:       p.Hashtags,
		Mentions:       p.Mentions,
		OriginalPostID: p.OriginalPostID,
	}
}

func (d postDocument) toPost() feed.Post {
	return feed.Post{
		ID:             d.ID,
		AuthorID:       d.AuthorID,
		Text:           d.Text,
		CreatedAt:      d.CreatedAt.UTC(),
		IsRetweet:      d.IsRetweet,
		QuoteCount:     d.QuoteCount,
		ReplyCount:     d.ReplyCount,
		RetweetCount:   d.RetweetCount,
		FavoriteCount:  d.FavoriteCount,
		Hashtags:       d.Hashtags,
		Mentions:       d.Mentions,
		OriginalPostID: d.OriginalPostID,
	}
}

// PostRepository reads and writes posts in a MongoDB collection.
type PostRepository struct {
	coll *mongo.Collection
}

var (
	_ feed.PostStore  = (*PostRepository)(nil)
	_ feed.PostWriter = (*PostRepository)(nil)
)

// NewPostRepository wraps an existing collection handle.
func NewPostRepository(coll *mongo.Collection) *PostRepository {
	return &PostRepository{coll: coll}
}

// EnsureIndexes creates the indexes the search and leaderboard queries use.
func (r *PostRepository) EnsureIndexes(ctx context.Context) error {
	models := []mongo.IndexModel{
		{Keys: bson.D{{Key: "tweet_id", Value: 1}}, Options: options.Index().SetUnique(true)},
		{Keys: bson.D{{Key: "hashtags", Value: 1}}},
		{Keys: bson.D{{Key: "created_at", Value: 1}}},
		{Keys: bson.D{{Key: "user_id", Value: 1}}},
		{Keys: bson.D{{Key: "retweet_count", Value: -1}}},
	}
	if _, err := r.coll.Indexes().CreateMany(ctx, models); err != nil {
		return fmt.Errorf("mongo: ensure indexes: %w", err)
	}
	return nil
}

func (r *PostRepository) FindPosts(ctx context.Context, filter feed.PostFilter, limit int) ([]feed.Post, error) {
	opts := options.Find()
	if limit > 0 {
		opts.SetLimit(int64(limit))
	}
	cur, err := r.coll.Find(ctx, buildFilter(filter), opts)
	if err != nil {
		return nil, translatePostError(err)
	}
	return decodePosts(ctx, cur)
}

func (r *PostRepository) FindPost(ctx context.Context, id string) (feed.Post, error) {
	var doc postDocument
	if err := r.coll.FindOne(ctx, bson.D{{Key: "tweet_id", Value: id}}).Decode(&doc); err != nil {
		return feed.Post{}, translatePostError(err)
	}
	return doc.toPost(), nil
}

func (r *PostRepository) TopPostsByRetweets(ctx context.Context, limit int) ([]feed.Post, error) {
	opts := options.Find().
		SetSort(bson.D{{Key: "retweet_count", Value: -1}, {Key: "tweet_id", Value: 1}}).
		SetLimit(int64(limit))
	cur, err := r.coll.Find(ctx, bson.D{}, opts)
	if err != nil {
		return nil, translatePostError(err)
	}
	return decodePosts(ctx, cur)
}

// InsertPost stores a new post; an existing id yields feed.ErrPostExists.
func (r *PostRepository) InsertPost(ctx context.Context, post feed.Post) error {
	if _, err := r.coll.InsertOne(ctx, toDocument(post)); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return feed.ErrPostExists
		}
		return translatePostError(err)
	}
	return nil
}

func decodePosts(ctx context.Context, cur *mongo.Cursor) ([]feed.Post, error) {
	defer cur.Close(ctx)
	var out []feed.Post
	for cur.Next(ctx) {
		var doc postDocument
		if err := cur.Decode(&doc); err != nil {
			return nil, err
		}
		out = append(out, doc.toPost())
	}
	if err := cur.Err(); err != nil {
		return nil, translatePostError(err)
	}
	return out, nil
}

// buildFilter ANDs every present field of f into one query document.
func buildFilter(f feed.PostFilter) bson.D {
	filter := bson.D{}
	if f.TextContains != nil {
		filter = append(filter, bson.E{Key: "text", Value: primitive.Regex{Pattern: regexp.QuoteMeta(*f.TextContains), Options: "i"}})
	}
	if f.Hashtag != nil {
		filter = append(filter, bson.E{Key: "hashtags", Value: *f.Hashtag})
	}
	if f.AuthorID != nil {
		filter = append(filter, bson.E{Key: "user_id", Value: *f.AuthorID})
	}
	if f.CreatedFrom != nil || f.CreatedTo != nil {
		window := bson.D{}
		if f.CreatedFrom != nil {
			window = append(window, bson.E{Key: "$gte", Value: f.CreatedFrom.UTC()})
		}
		if f.CreatedTo != nil {
			window = append(window, bson.E{Key: "$lte", Value: f.CreatedTo.UTC()})
		}
		filter = append(filter, bson.E{Key: "created_at", Value: window})
	}
	return filter
}

func translatePostError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, mongo.ErrNoDocuments) {
		return feed.ErrPostNotFound
	}
	if mongo.IsTimeout(err) || mongo.IsNetworkError(err) {
		return fmt.Errorf("%w: %w", feed.ErrLookupFailed, err)
	}
	return err
}
