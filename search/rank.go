package search

import (
	"cmp"
	"slices"

	"github.com/adeilh/postrank/feed"
)

// Ranking is the ordered result list plus its two category leaderboards.
type Ranking struct {
	Ordered      []feed.Post
	TopRetweeted []feed.Post
	TopFavorited []feed.Post
}

// Rank orders posts by retweet count descending and builds the two
// leaderboards, each an independent sort of the input capped at n. Ties
// keep their input order. The input slice is never modified.
func Rank(posts []feed.Post, n int) Ranking {
	ordered := sortedBy(posts, func(p feed.Post) int { return p.RetweetCount })
	return Ranking{
		Ordered:      ordered,
		TopRetweeted: head(sortedBy(posts, func(p feed.Post) int { return p.RetweetCount }), n),
		TopFavorited: head(sortedBy(posts, func(p feed.Post) int { return p.FavoriteCount }), n),
	}
}

func sortedBy(posts []feed.Post, score func(feed.Post) int) []feed.Post {
	out := make([]feed.Post, len(posts))
	for i, p := range posts {
		out[i] = p.Clone()
	}
	slices.SortStableFunc(out, func(a, b feed.Post) int {
		return cmp.Compare(score(b), score(a))
	})
	return out
}

func head[T any](s []T, n int) []T {
	if n < 0 {
		n = 0
	}
	if len(s) > n {
		return s[:n]
	}
	return s
}
