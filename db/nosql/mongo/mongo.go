// Package mongo is the document post store backed by MongoDB.
package mongo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

var ErrMissingURI = errors.New("mongo: URI is required")

// Options configures the MongoDB client.
type Options struct {
	URI            string
	Database       string
	Collection     string
	ConnectTimeout time.Duration
	MaxPoolSize    uint64
}

type Option func(*Options)

// WithURI sets the mongodb:// connection string.
func WithURI(uri string) Option {
	return func(o *Options) {
		if uri != "" {
			o.URI = uri
		}
	}
}

// WithDatabase selects the database holding the posts collection.
func WithDatabase(name string) Option {
	return func(o *Options) {
		if name != "" {
			o.Database = name
		}
	}
}

// WithCollection selects the posts collection.
func WithCollection(name string) Option {
	return func(o *Options) {
		if name != "" {
			o.Collection = name
		}
	}
}

// WithConnectTimeout bounds connection setup and server selection.
func WithConnectTimeout(d time.Duration) Option {
	return func(o *Options) {
		if d > 0 {
			o.ConnectTimeout = d
		}
	}
}

// WithMaxPoolSize caps the driver connection pool.
func WithMaxPoolSize(n uint64) Option {
	return func(o *Options) {
		if n > 0 {
			o.MaxPoolSize = n
		}
	}
}

func defaultOptions() Options {
	return Options{
		Database:       "TwitterData",
		Collection:     "tweets",
		ConnectTimeout: 5 * time.Second,
		MaxPoolSize:    20,
	}
}

// Open connects to MongoDB, verifies the connection and returns the client
// together with a repository over the configured collection.
func Open(ctx context.Context, opts ...Option) (*mongo.Client, *PostRepository, error) {
	cfg := defaultOptions()
	for _, opt := range opts {
		if opt != nil {
			opt(&cfg)
		}
	}
	if cfg.URI == "" {
		return nil, nil, ErrMissingURI
	}

	clientOpts := options.Client().
		ApplyURI(cfg.URI).
		SetConnectTimeout(cfg.ConnectTimeout).
		SetServerSelectionTimeout(cfg.ConnectTimeout).
		SetMaxPoolSize(cfg.MaxPoolSize)

	client, err := mongo.Connect(ctx, clientOpts)
	if err != nil {
		return nil, nil, fmt.Errorf("mongo: connect: %w", err)
	}
	pingCtx, cancel := context.WithTimeout(ctx, cfg.ConnectTimeout)
	defer cancel()
	if err := client.Ping(pingCtx, nil); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, nil, fmt.Errorf("mongo: ping: %w", err)
	}

	repo := NewPostRepository(client.Database(cfg.Database).Collection(cfg.Collection))
	return client, repo, nil
}
