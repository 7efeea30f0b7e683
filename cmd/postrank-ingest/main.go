// Command postrank-ingest loads a newline-delimited JSON feed dump into the
// post and author stores.
package main

import (
	"context"
	"flag"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/labstack/gommon/log"

	"github.com/adeilh/postrank/config"
	mongostore "github.com/adeilh/postrank/db/nosql/mongo"
	"github.com/adeilh/postrank/db/sql/postgres"
	"github.com/adeilh/postrank/ingest"
)

func main() {
	configPath := flag.String("config", "", "path to a YAML config file")
	input := flag.String("file", "-", "feed file to load, - for stdin")
	flag.Parse()

	logger := log.New("postrank-ingest")
	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.Fatalf("load config: %v", err)
	}
	logger.SetLevel(cfg.Level())

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, *input, logger); err != nil {
		logger.Errorf("ingest: %v", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg config.Config, input string, logger *log.Logger) error {
	var r io.Reader = os.Stdin
	if input != "-" {
		f, err := os.Open(input)
		if err != nil {
			return err
		}
		defer f.Close()
		r = f
	}

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

	in, err := ingest.New(posts, postgres.NewAuthorRepository(db), ingest.WithLogger(logger))
	if err != nil {
		return err
	}
	st, err := in.Run(ctx, r)
	logger.Infof("ingested %d lines: %d posts, %d authors, %d duplicates, %d skipped",
		st.Lines, st.Posts, st.Authors, st.Duplicates, st.Skipped)
	return err
}
