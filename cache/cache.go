// Package cache provides the capacity- and age-bounded LRU shared by the
// search pipeline, together with checkpoint/restore of its contents to a
// durable Sink.
package cache

import (
	"context"
	"errors"
)

var (
	// ErrNotFound is returned by a Sink that holds no snapshot yet.
	ErrNotFound = errors.New("cache: key not found")
	// ErrCorruptSnapshot is returned when a stored snapshot cannot be decoded.
	ErrCorruptSnapshot = errors.New("cache: corrupt snapshot")
	// ErrInvalidCapacity is returned by New for a non-positive capacity.
	ErrInvalidCapacity = errors.New("cache: capacity must be positive")
)

// Sink persists encoded snapshots. WriteSnapshot must replace the previous
// snapshot atomically: a concurrent reader sees either the old or the new
// bytes, never a mix.
type Sink interface {
	WriteSnapshot(ctx context.Context, data []byte) error
	ReadSnapshot(ctx context.Context) ([]byte, error)
}

// Logger is the subset of gommon's *log.Logger used by this package.
type Logger interface {
	Debugf(format string, args ...interface{})
	Infof(format string, args ...interface{})
	Warnf(format string, args ...interface{})
	Errorf(format string, args ...interface{})
}
