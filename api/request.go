package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/adeilh/postrank/feed"
)

// searchRequest is the POST /search body. query_string and user are
// accepted as older spellings of text and author_handle.
type searchRequest struct {
	Text         *string `json:"text"`
	QueryString  *string `json:"query_string"`
	Hashtag      *string `json:"hashtag"`
	AuthorHandle *string `json:"author_handle"`
	User         *string `json:"user"`
	StartTime    *string `json:"start_time"`
	EndTime      *string `json:"end_time"`
}

var timeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02",
}

func decodeSearchRequest(body io.Reader) (feed.Query, error) {
	var req searchRequest
	dec := json.NewDecoder(body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		return feed.Query{}, fmt.Errorf("%w: %v", feed.ErrInvalidQuery, err)
	}
	return req.query()
}

func (r searchRequest) query() (feed.Query, error) {
	fields := make(map[string]any, 4)
	if err := setAliased(fields, feed.FieldText, r.Text, "query_string", r.QueryString); err != nil {
		return feed.Query{}, err
	}
	if err := setAliased(fields, feed.FieldAuthorHandle, r.AuthorHandle, "user", r.User); err != nil {
		return feed.Query{}, err
	}
	if r.Hashtag != nil {
		fields[feed.FieldHashtag] = *r.Hashtag
	}

	switch {
	case r.StartTime == nil && r.EndTime == nil:
	case r.StartTime == nil || r.EndTime == nil:
		return feed.Query{}, fmt.Errorf("%w: start_time and end_time must be given together", feed.ErrInvalidQuery)
	default:
		start, err := parseTime("start_time", *r.StartTime)
		if err != nil {
			return feed.Query{}, err
		}
		end, err := parseTime("end_time", *r.EndTime)
		if err != nil {
			return feed.Query{}, err
		}
		fields[feed.FieldTimeRange] = [2]time.Time{start, end}
	}
	return feed.ParseQuery(fields)
}

func setAliased(fields map[string]any, name string, v *string, alias string, av *string) error {
	switch {
	case v != nil && av != nil:
		return fmt.Errorf("%w: %s and %s are the same field", feed.ErrInvalidQuery, name, alias)
	case v != nil:
		fields[name] = *v
	case av != nil:
		fields[name] = *av
	}
	return nil
}

// parseTime accepts RFC 3339 or a zone-less date-time, read as UTC.
func parseTime(field, s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	for _, layout := range timeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("%w: %s %q is not a timestamp", feed.ErrInvalidQuery, field, s)
}
