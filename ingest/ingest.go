// Package ingest loads raw newline-delimited feed dumps into the post and
// author stores.
package ingest

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/labstack/gommon/log"

	"github.com/adeilh/postrank/feed"
)

const maxLineSize = 4 << 20

// Logger is the subset of gommon's *log.Logger used by the ingester.
type Logger interface {
	Debugf(format string, args ...interface{})
	Warnf(format string, args ...interface{})
}

// Stats summarises one Run.
type Stats struct {
	Lines      int `json:"lines"`
	Posts      int `json:"posts"`
	Authors    int `json:"authors"`
	Duplicates int `json:"duplicates"`
	Skipped    int `json:"skipped"`
}

type Ingester struct {
	posts   feed.PostWriter
	authors feed.AuthorWriter
	logger  Logger
}

type Option func(*Ingester)

func WithLogger(l Logger) Option {
	return func(in *Ingester) {
		if l != nil {
			in.logger = l
		}
	}
}

func New(posts feed.PostWriter, authors feed.AuthorWriter, opts ...Option) (*Ingester, error) {
	if posts == nil || authors == nil {
		return nil, feed.ErrMissingStore
	}
	in := &Ingester{posts: posts, authors: authors, logger: log.New("ingest")}
	for _, opt := range opts {
		if opt != nil {
			opt(in)
		}
	}
	return in, nil
}

// Run reads one JSON tweet per line from r. Blank and malformed lines are
// counted and skipped; a store write failure stops the run.
func (in *Ingester) Run(ctx context.Context, r io.Reader) (Stats, error) {
	var st Stats
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 64*1024), maxLineSize)
	for sc.Scan() {
		if err := ctx.Err(); err != nil {
			return st, err
		}
		st.Lines++
		line := sc.Bytes()
		if len(bytes.TrimSpace(line)) == 0 {
			continue
		}
		var tw rawTweet
		if err := json.Unmarshal(line, &tw); err != nil {
			st.Skipped++
			in.logger.Warnf("line %d: %v", st.Lines, err)
			continue
		}
		if err := in.ingest(ctx, &tw, &st); err != nil {
			return st, fmt.Errorf("ingest: line %d: %w", st.Lines, err)
		}
	}
	if err := sc.Err(); err != nil {
		return st, fmt.Errorf("ingest: read: %w", err)
	}
	return st, nil
}

// ingest stores root and every embedded original it reposts. Originals are
// walked with an explicit worklist; visited stops repost cycles.
func (in *Ingester) ingest(ctx context.Context, root *rawTweet, st *Stats) error {
	work := []*rawTweet{root}
	visited := make(map[string]bool)
	for len(work) > 0 {
		tw := work[len(work)-1]
		work = work[:len(work)-1]
		if tw.IDStr != "" && visited[tw.IDStr] {
			continue
		}
		visited[tw.IDStr] = true

		post, err := tw.post()
		if err != nil {
			st.Skipped++
			in.logger.Warnf("skipping tweet: %v", err)
			continue
		}
		if err := in.storeAuthor(ctx, tw.User, st); err != nil {
			return err
		}
		switch err := in.posts.InsertPost(ctx, post); {
		case errors.Is(err, feed.ErrPostExists):
			st.Duplicates++
			in.logger.Debugf("tweet %s already stored", post.ID)
		case err != nil:
			return fmt.Errorf("insert post %s: %w", post.ID, err)
		default:
			st.Posts++
		}
		if post.IsRetweet && tw.RetweetedStatus != nil {
			work = append(work, tw.RetweetedStatus)
		}
	}
	return nil
}

func (in *Ingester) storeAuthor(ctx context.Context, u *rawUser, st *Stats) error {
	author, err := u.author()
	if err != nil {
		in.logger.Warnf("skipping author: %v", err)
		return nil
	}
	if err := in.authors.UpsertAuthor(ctx, author); err != nil {
		return fmt.Errorf("upsert author %s: %w", author.ID, err)
	}
	st.Authors++
	return nil
}
