package feed

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Query field names, in the fixed order used for canonical keys.
const (
	FieldAuthorHandle = "author_handle"
	FieldHashtag      = "hashtag"
	FieldText         = "text"
	FieldTimeRange    = "time_range"
)

// TopMetricsKey is the cache key the refresher writes the global snapshot to.
const TopMetricsKey = "top_metrics"

const (
	searchKeyPrefix = "search:"
	keyTimeLayout   = "2006-01-02T15:04:05.000000000Z"
)

// TimeRange is an inclusive creation-time window.
type TimeRange struct {
	Start time.Time
	End   time.Time
}

// Query is a structured search request. A nil field is absent; a non-nil
// pointer to an empty string is present and distinct from absent.
type Query struct {
	Text         *string
	Hashtag      *string
	AuthorHandle *string
	TimeRange    *TimeRange
}

// Ptr is a small helper for building queries in code and tests.
func Ptr[T any](v T) *T { return &v }

// Validate rejects query shapes that cannot be executed or keyed.
func (q Query) Validate() error {
	if q.TimeRange != nil && q.TimeRange.Start.After(q.TimeRange.End) {
		return fmt.Errorf("%w: time range start %s is after end %s", ErrInvalidQuery,
			q.TimeRange.Start.UTC().Format(time.RFC3339), q.TimeRange.End.UTC().Format(time.RFC3339))
	}
	return nil
}

// IsEmpty reports whether no field is present (browse mode).
func (q Query) IsEmpty() bool {
	return q.Text == nil && q.Hashtag == nil && q.AuthorHandle == nil && q.TimeRange == nil
}

// Key encodes the query into its canonical cache key. Present fields are
// written in a fixed name order with quoted values; absent fields are
// omitted, so two logically equal queries always share a key.
func (q Query) Key() (string, error) {
	if err := q.Validate(); err != nil {
		return "", err
	}
	var b strings.Builder
	b.WriteString(searchKeyPrefix)
	first := true
	field := func(name, value string) {
		if !first {
			b.WriteByte(';')
		}
		first = false
		b.WriteString(name)
		b.WriteByte('=')
		b.WriteString(value)
	}
	if q.AuthorHandle != nil {
		field(FieldAuthorHandle, strconv.Quote(*q.AuthorHandle))
	}
	if q.Hashtag != nil {
		field(FieldHashtag, strconv.Quote(*q.Hashtag))
	}
	if q.Text != nil {
		field(FieldText, strconv.Quote(*q.Text))
	}
	if q.TimeRange != nil {
		field(FieldTimeRange, "["+q.TimeRange.Start.UTC().Format(keyTimeLayout)+","+q.TimeRange.End.UTC().Format(keyTimeLayout)+"]")
	}
	return b.String(), nil
}

// PostKey is the cache key for a single post's metadata.
func PostKey(id string) string { return id }

// ParseQuery builds a Query from loosely typed fields, such as a decoded
// JSON object. A nil value means the field is absent. Unknown fields and
// values of the wrong type are rejected with ErrInvalidQuery.
func ParseQuery(fields map[string]any) (Query, error) {
	var q Query
	for name, raw := range fields {
		if raw == nil {
			continue
		}
		switch name {
		case FieldText, FieldHashtag, FieldAuthorHandle:
			s, ok := raw.(string)
			if !ok {
				return Query{}, fmt.Errorf("%w: %s must be a string, got %T", ErrInvalidQuery, name, raw)
			}
			switch name {
			case FieldText:
				q.Text = &s
			case FieldHashtag:
				q.Hashtag = &s
			default:
				q.AuthorHandle = &s
			}
		case FieldTimeRange:
			tr, err := parseTimeRange(raw)
			if err != nil {
				return Query{}, err
			}
			q.TimeRange = tr
		default:
			return Query{}, fmt.Errorf("%w: unknown field %q", ErrInvalidQuery, name)
		}
	}
	if err := q.Validate(); err != nil {
		return Query{}, err
	}
	return q, nil
}

func parseTimeRange(raw any) (*TimeRange, error) {
	switch v := raw.(type) {
	case TimeRange:
		return &v, nil
	case *TimeRange:
		if v == nil {
			return nil, nil
		}
		out := *v
		return &out, nil
	case [2]time.Time:
		return &TimeRange{Start: v[0], End: v[1]}, nil
	case []time.Time:
		if len(v) == 2 {
			return &TimeRange{Start: v[0], End: v[1]}, nil
		}
	case []any:
		if len(v) == 2 {
			start, ok1 := v[0].(time.Time)
			end, ok2 := v[1].(time.Time)
			if ok1 && ok2 {
				return &TimeRange{Start: start, End: end}, nil
			}
		}
	}
	return nil, fmt.Errorf("%w: %s must be a pair of timestamps, got %T", ErrInvalidQuery, FieldTimeRange, raw)
}
