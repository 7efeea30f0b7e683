package ingest

import (
	"fmt"
	"strings"
	"time"

	"github.com/adeilh/postrank/feed"
)

// feedTimeLayout is the timestamp format of the raw feed, e.g.
// "Wed Oct 10 20:19:24 +0000 2018".
const feedTimeLayout = time.RubyDate

type rawTweet struct {
	IDStr           string    `json:"id_str"`
	Text            string    `json:"text"`
	CreatedAt       string    `json:"created_at"`
	QuoteCount      int       `json:"quote_count"`
	ReplyCount      int       `json:"reply_count"`
	RetweetCount    int       `json:"retweet_count"`
	FavoriteCount   int       `json:"favorite_count"`
	User            *rawUser  `json:"user"`
	Entities        entities  `json:"entities"`
	RetweetedStatus *rawTweet `json:"retweeted_status"`
}

type entities struct {
	Hashtags []struct {
		Text string `json:"text"`
	} `json:"hashtags"`
	UserMentions []struct {
		ScreenName string `json:"screen_name"`
	} `json:"user_mentions"`
}

type rawUser struct {
	IDStr           string  `json:"id_str"`
	Name            string  `json:"name"`
	ScreenName      string  `json:"screen_name"`
	Location        *string `json:"location"`
	URL             *string `json:"url"`
	Description     *string `json:"description"`
	FollowersCount  int     `json:"followers_count"`
	FavouritesCount int     `json:"favourites_count"`
	StatusesCount   int     `json:"statuses_count"`
	CreatedAt       string  `json:"created_at"`
}

func (t *rawTweet) isRetweet() bool {
	return strings.HasPrefix(t.Text, "RT")
}

// post converts t into a feed.Post. Posts without an id, author or
// parseable timestamp are rejected.
func (t *rawTweet) post() (feed.Post, error) {
	if t.IDStr == "" {
		return feed.Post{}, fmt.Errorf("tweet has no id_str")
	}
	if t.User == nil || t.User.IDStr == "" {
		return feed.Post{}, fmt.Errorf("tweet %s has no user", t.IDStr)
	}
	created, err := time.Parse(feedTimeLayout, t.CreatedAt)
	if err != nil {
		return feed.Post{}, fmt.Errorf("tweet %s: %w", t.IDStr, err)
	}
	p := feed.Post{
		ID:            t.IDStr,
		AuthorID:      t.User.IDStr,
		Text:          t.Text,
		CreatedAt:     created.UTC(),
		IsRetweet:     t.isRetweet(),
		QuoteCount:    t.QuoteCount,
		ReplyCount:    t.ReplyCount,
		RetweetCount:  t.RetweetCount,
		FavoriteCount: t.FavoriteCount,
	}
	for _, h := range t.Entities.Hashtags {
		p.Hashtags = append(p.Hashtags, h.Text)
	}
	for _, m := range t.Entities.UserMentions {
		p.Mentions = append(p.Mentions, m.ScreenName)
	}
	if p.IsRetweet && t.RetweetedStatus != nil {
		p.OriginalPostID = t.RetweetedStatus.IDStr
	}
	return p, nil
}

func (u *rawUser) author() (feed.Author, error) {
	created, err := time.Parse(feedTimeLayout, u.CreatedAt)
	if err != nil {
		return feed.Author{}, fmt.Errorf("user %s: %w", u.IDStr, err)
	}
	a := feed.Author{
		ID:              u.IDStr,
		Name:            u.Name,
		Handle:          u.ScreenName,
		FollowersCount:  u.FollowersCount,
		FavouritesCount: u.FavouritesCount,
		StatusesCount:   u.StatusesCount,
		CreatedAt:       created.UTC(),
		Location:        u.Location,
		URL:             u.URL,
	}
	if u.Description != nil {
		a.Description = *u.Description
	}
	return a, nil
}
