// Package client is a Go client for the postrank HTTP API.
package client

import (
	"context"
	"errors"
	"time"

	"github.com/adeilh/postrank/cache"
	"github.com/adeilh/postrank/feed"
	"github.com/adeilh/postrank/httpx"
	"github.com/adeilh/postrank/search"
)

// SearchRequest mirrors the POST /search body. Nil fields are omitted;
// Start and End must be set together.
type SearchRequest struct {
	Text         *string
	Hashtag      *string
	AuthorHandle *string
	Start        *time.Time
	End          *time.Time
}

type searchBody struct {
	Text         *string `json:"text,omitempty"`
	Hashtag      *string `json:"hashtag,omitempty"`
	AuthorHandle *string `json:"author_handle,omitempty"`
	StartTime    string  `json:"start_time,omitempty"`
	EndTime      string  `json:"end_time,omitempty"`
}

// Health is the GET /healthz response.
type Health struct {
	Status string       `json:"status"`
	Cache  *cache.Stats `json:"cache,omitempty"`
}

type Client struct {
	http *httpx.Client
}

const userAgent = "postrank-client"

// New returns a client for the API at baseURL. Extra httpx client options
// such as timeouts and retries are applied after the base URL.
func New(baseURL string, opts ...httpx.ClientOption) *Client {
	all := append([]httpx.ClientOption{
		httpx.WithBaseURL(baseURL),
		httpx.WithHeaders(map[string]string{"Content-Type": "application/json", "User-Agent": userAgent}),
	}, opts...)
	return &Client{http: httpx.NewClient(all...)}
}

func (c *Client) Search(ctx context.Context, req SearchRequest) (search.Result, error) {
	body := searchBody{Text: req.Text, Hashtag: req.Hashtag, AuthorHandle: req.AuthorHandle}
	if req.Start != nil {
		body.StartTime = req.Start.Format(time.RFC3339Nano)
	}
	if req.End != nil {
		body.EndTime = req.End.Format(time.RFC3339Nano)
	}
	var out search.Result
	if _, err := c.http.Post(ctx, "/search", body, &out); err != nil {
		return search.Result{}, err
	}
	return out, nil
}

// Tweet fetches a post's metadata. ok is false when the server has none.
func (c *Client) Tweet(ctx context.Context, id string) (md feed.Metadata, ok bool, err error) {
	_, err = c.http.Get(ctx, "/tweet/{id}", &md, httpx.WithPathParams(map[string]string{"id": id}))
	var se *httpx.StatusError
	if errors.As(err, &se) && se.Code == httpx.StatusNotFound {
		return feed.Metadata{}, false, nil
	}
	if err != nil {
		return feed.Metadata{}, false, err
	}
	return md, true, nil
}

func (c *Client) TopMetrics(ctx context.Context) (feed.TopMetrics, error) {
	var out feed.TopMetrics
	if _, err := c.http.Get(ctx, "/top-metrics", &out); err != nil {
		return feed.TopMetrics{}, err
	}
	return out, nil
}

func (c *Client) Health(ctx context.Context) (Health, error) {
	var out Health
	if _, err := c.http.Get(ctx, "/healthz", &out); err != nil {
		return Health{}, err
	}
	return out, nil
}
