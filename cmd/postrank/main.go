// Command postrank serves cached post search, per-post metadata and the
// global top-metrics snapshot over HTTP.
package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"

	"github.com/labstack/gommon/log"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"golang.org/x/sync/errgroup"

	"github.com/adeilh/postrank/api"
	"github.com/adeilh/postrank/cache"
	"github.com/adeilh/postrank/cache/redis"
	"github.com/adeilh/postrank/config"
	mongostore "github.com/adeilh/postrank/db/nosql/mongo"
	"github.com/adeilh/postrank/db/sql/postgres"
	"github.com/adeilh/postrank/httpx"
	"github.com/adeilh/postrank/search"
)

func main() {
	configPath := flag.String("config", "", "path to a YAML config file")
	flag.Parse()

	logger := log.New("postrank")
	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.Fatalf("load config: %v", err)
	}
	logger.SetLevel(cfg.Level())

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Errorf("postrank: %v", err)
		os.Exit(1)
	}
	logger.Info("postrank stopped")
}

func run(ctx context.Context, cfg config.Config, logger *log.Logger) error {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	db, err := postgres.Open(ctx, postgres.WithDSN(cfg.Postgres.DSN))
	if err != nil {
		return err
	}
	defer db.Close()
	if err := postgres.ApplyMigrations(ctx, db, postgres.AuthorSchema...); err != nil {
		return err
	}

	mongoClient, posts, err := mongostore.Open(ctx,
		mongostore.WithURI(cfg.Mongo.URI),
		mongostore.WithDatabase(cfg.Mongo.Database),
		mongostore.WithCollection(cfg.Mongo.Collection),
	)
	if err != nil {
		return err
	}
	defer func() { _ = mongoClient.Disconnect(context.Background()) }()
	if err := posts.EnsureIndexes(ctx); err != nil {
		return err
	}

	lru, err := cache.New(
		cache.WithCapacity(cfg.Cache.Capacity),
		cache.WithTTL(cfg.Cache.TTL),
		cache.WithLogger(logger),
		cache.WithRegisterer(reg),
	)
	if err != nil {
		return err
	}
	checkpointer, closeSink := newCheckpointer(cfg, lru)
	defer closeSink()
	if checkpointer != nil {
		if n, err := checkpointer.Restore(ctx); err != nil {
			logger.Warnf("cache restore failed, starting empty: %v", err)
		} else {
			logger.Infof("cache restored with %d entries", n)
		}
	}

	svc, err := search.NewService(lru, posts, postgres.NewAuthorRepository(db),
		search.WithSearchLimit(cfg.Search.Limit),
		search.WithLeaderboardSize(cfg.Search.LeaderboardSize),
		search.WithStoreTimeout(cfg.Search.StoreTimeout),
		search.WithRefreshInterval(cfg.Search.RefreshInterval),
		search.WithEnrichWorkers(cfg.Search.EnrichWorkers),
		search.WithLogger(logger),
		search.WithRegisterer(reg),
	)
	if err != nil {
		return err
	}
	handler, err := api.New(svc, api.WithStats(lru.Stats), api.WithGatherer(reg), api.WithLogger(logger))
	if err != nil {
		return err
	}

	serverOpts := []httpx.ServerOption{
		httpx.WithAddress(cfg.HTTP.Address),
		httpx.WithLogger(logger),
		httpx.AppendMiddlewares(
			httpx.BodyLimitMiddleware("64K"),
			httpx.RateLimitMiddleware(cfg.HTTP.RateLimit, cfg.HTTP.RateBurst),
		),
	}
	if len(cfg.HTTP.CORSOrigins) > 0 {
		cors := httpx.DefaultCORSConfig
		cors.AllowOrigins = cfg.HTTP.CORSOrigins
		serverOpts = append(serverOpts, httpx.WithCORS(&cors))
	}
	server := httpx.NewServer(serverOpts...)
	server.RegisterRoutes(handler.Register)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		select {
		case addr := <-server.Ready():
			logger.Infof("listening on %s", addr)
		case <-gctx.Done():
		}
		return nil
	})
	g.Go(func() error {
		return server.Start(gctx, httpx.WithShutdownTimeout(cfg.HTTP.ShutdownTimeout))
	})
	g.Go(func() error {
		svc.Refresher().Run(gctx)
		return nil
	})
	if checkpointer != nil {
		g.Go(func() error {
			checkpointer.Run(gctx)
			return nil
		})
	}
	return g.Wait()
}

// newCheckpointer builds the configured snapshot sink. The returned func
// releases it.
func newCheckpointer(cfg config.Config, lru *cache.LRU) (*cache.Checkpointer, func()) {
	opts := []cache.CheckpointOption{cache.WithInterval(cfg.Cache.CheckpointInterval)}
	switch cfg.Cache.CheckpointSink {
	case config.SinkRedis:
		store := redis.NewStore(redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
			Key:      cfg.Redis.Key,
		})
		return cache.NewCheckpointer(lru, store, opts...), func() { _ = store.Close() }
	case config.SinkFile:
		return cache.NewCheckpointer(lru, cache.NewFileSink(cfg.Cache.CheckpointFile), opts...), func() {}
	default:
		return nil, func() {}
	}
}
