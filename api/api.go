// Package api exposes the search service over HTTP.
package api

import (
	"context"
	"errors"

	"github.com/labstack/gommon/log"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/adeilh/postrank/cache"
	"github.com/adeilh/postrank/feed"
	"github.com/adeilh/postrank/httpx"
	"github.com/adeilh/postrank/search"
)

// Service is the search pipeline the handlers call into. *search.Service
// satisfies it.
type Service interface {
	SearchAndRank(ctx context.Context, q feed.Query) (search.Result, error)
	Metadata(ctx context.Context, id string) (feed.Metadata, bool, error)
	TopMetrics(ctx context.Context) (feed.TopMetrics, error)
}

// StatsFunc reports cache statistics for the health endpoint.
type StatsFunc func() cache.Stats

// Logger is the subset of gommon's *log.Logger used by the handlers.
type Logger interface {
	Errorf(format string, args ...interface{})
}

type Handler struct {
	svc      Service
	stats    StatsFunc
	gatherer prometheus.Gatherer
	logger   Logger
}

type Option func(*Handler)

// WithStats enables cache statistics in /healthz.
func WithStats(fn StatsFunc) Option {
	return func(h *Handler) { h.stats = fn }
}

// WithGatherer serves /metrics from g instead of the default registry.
func WithGatherer(g prometheus.Gatherer) Option {
	return func(h *Handler) {
		if g != nil {
			h.gatherer = g
		}
	}
}

func WithLogger(l Logger) Option {
	return func(h *Handler) {
		if l != nil {
			h.logger = l
		}
	}
}

func New(svc Service, opts ...Option) (*Handler, error) {
	if svc == nil {
		return nil, feed.ErrMissingStore
	}
	h := &Handler{svc: svc, gatherer: prometheus.DefaultGatherer, logger: log.New("api")}
	for _, opt := range opts {
		if opt != nil {
			opt(h)
		}
	}
	return h, nil
}

// Routes returns the route table for registration on an httpx.App.
func (h *Handler) Routes() []httpx.Route {
	return []httpx.Route{
		{Method: "POST", Path: "/search", Handler: h.search},
		{Method: "GET", Path: "/tweet/:id", Handler: h.tweet},
		{Method: "GET", Path: "/top-metrics", Handler: h.topMetrics},
		{Method: "GET", Path: "/healthz", Handler: h.health},
		{Method: "GET", Path: "/metrics", Handler: httpx.WrapHandler(promhttp.HandlerFor(h.gatherer, promhttp.HandlerOpts{}))},
	}
}

// Register adds every route to a.
func (h *Handler) Register(a *httpx.App) {
	httpx.RegisterRoutes(a, h.Routes()...)
}

func (h *Handler) search(c httpx.Context) error {
	q, err := decodeSearchRequest(c.Request().Body)
	if err != nil {
		return h.fail(err)
	}
	res, err := h.svc.SearchAndRank(c.Request().Context(), q)
	if err != nil {
		return h.fail(err)
	}
	return c.JSON(httpx.StatusOK, res)
}

func (h *Handler) tweet(c httpx.Context) error {
	md, ok, err := h.svc.Metadata(c.Request().Context(), c.Param("id"))
	if err != nil {
		return h.fail(err)
	}
	if !ok {
		return c.JSON(httpx.StatusNotFound, nil)
	}
	return c.JSON(httpx.StatusOK, md)
}

func (h *Handler) topMetrics(c httpx.Context) error {
	tm, err := h.svc.TopMetrics(c.Request().Context())
	if err != nil {
		return h.fail(err)
	}
	return c.JSON(httpx.StatusOK, tm)
}

type healthResponse struct {
	Status string       `json:"status"`
	Cache  *cache.Stats `json:"cache,omitempty"`
}

func (h *Handler) health(c httpx.Context) error {
	out := healthResponse{Status: "ok"}
	if h.stats != nil {
		s := h.stats()
		out.Cache = &s
	}
	return c.JSON(httpx.StatusOK, out)
}

// fail maps pipeline errors onto HTTP errors. Invalid input is the caller's
// fault, store failures are reported as unavailable.
func (h *Handler) fail(err error) error {
	switch {
	case errors.Is(err, feed.ErrInvalidQuery):
		return httpx.HTTPError(httpx.StatusBadRequest, err.Error())
	case errors.Is(err, feed.ErrLookupFailed), errors.Is(err, context.DeadlineExceeded):
		h.logger.Errorf("lookup failed: %v", err)
		return httpx.HTTPError(httpx.StatusServiceUnavailable, "upstream store unavailable")
	default:
		h.logger.Errorf("request failed: %v", err)
		return err
	}
}
