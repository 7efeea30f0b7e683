// Package redis stores cache checkpoints under a single Redis key, speaking
// RESP directly over a small connection pool.
package redis

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"net"
	"strconv"
	"strings"

	"github.com/adeilh/postrank/cache"
)

// Store implements cache.Sink. A SET replaces the value atomically, so
// readers see either the previous snapshot or the new one.
type Store struct {
	opts   Options
	dialFn dialFunc
	pool   chan *clientConn
}

var _ cache.Sink = (*Store)(nil)

type dialFunc func(context.Context, Options) (net.Conn, error)

// NewStore builds a Redis-backed snapshot store. No connection is made
// until the first call.
func NewStore(opts Options) *Store {
	cfg := opts.withDefaults()
	return &Store{opts: cfg, dialFn: defaultDial, pool: make(chan *clientConn, cfg.PoolSize)}
}

// WithDial allows overriding the dialer (useful for tests/mocks).
func (s *Store) WithDial(fn dialFunc) {
	if fn != nil {
		s.dialFn = fn
	}
}

func (s *Store) WriteSnapshot(ctx context.Context, data []byte) error {
	resp, err := s.do(ctx, "SET", s.opts.Key, string(data))
	if err != nil {
		return err
	}
	if msg, ok := resp.(string); ok && strings.EqualFold(msg, "OK") {
		return nil
	}
	return fmt.Errorf("redis: SET failed: %v", resp)
}

func (s *Store) ReadSnapshot(ctx context.Context) ([]byte, error) {
	resp, err := s.do(ctx, "GET", s.opts.Key)
	if err != nil {
		return nil, err
	}
	switch v := resp.(type) {
	case nil:
		return nil, cache.ErrNotFound
	case []byte:
		return v, nil
	default:
		return nil, fmt.Errorf("redis: unexpected GET response %T", resp)
	}
}

// Ping checks connectivity.
func (s *Store) Ping(ctx context.Context) error {
	resp, err := s.do(ctx, "PING")
	if err != nil {
		return err
	}
	if msg, ok := resp.(string); ok && strings.EqualFold(msg, "PONG") {
		return nil
	}
	return fmt.Errorf("redis: unexpected PING response %v", resp)
}

// Close drops every pooled connection.
func (s *Store) Close() error {
	for {
		select {
		case conn := <-s.pool:
			_ = conn.Close()
		default:
			return nil
		}
	}
}

func (s *Store) do(ctx context.Context, parts ...string) (any, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	conn, err := s.acquireConn(ctx)
	if err != nil {
		return nil, err
	}
	broken := false
	defer func() {
		s.releaseConn(conn, broken)
	}()

	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.SetDeadline(deadline)
		defer conn.SetDeadline(noDeadline)
	}
	if err := s.send(conn, parts...); err != nil {
		broken = true
		return nil, err
	}
	resp, err := s.read(conn)
	if err != nil {
		var respErr *Error
		if !errors.As(err, &respErr) {
			broken = true
		}
		return nil, err
	}
	return resp, nil
}

func (s *Store) handshake(conn net.Conn, reader *bufio.Reader) error {
	if s.opts.Password != "" {
		if err := writeCommand(conn, s.opts.WriteTimeout, "AUTH", s.opts.Password); err != nil {
			return err
		}
		if err := expectOK(reader); err != nil {
			return err
		}
	}
	if s.opts.DB > 0 {
		if err := writeCommand(conn, s.opts.WriteTimeout, "SELECT", strconv.Itoa(s.opts.DB)); err != nil {
			return err
		}
		if err := expectOK(reader); err != nil {
			return err
		}
	}
	return nil
}

func (s *Store) send(conn *clientConn, parts ...string) error {
	return writeCommand(conn, s.opts.WriteTimeout, parts...)
}

func (s *Store) read(conn *clientConn) (any, error) {
	if err := applyDeadline(conn.SetReadDeadline, s.opts.ReadTimeout); err != nil {
		return nil, err
	}
	return decodeRESP(conn.reader)
}

type clientConn struct {
	net.Conn
	reader *bufio.Reader
}

func (s *Store) acquireConn(ctx context.Context) (*clientConn, error) {
	select {
	case conn := <-s.pool:
		return conn, nil
	default:
		return s.newConn(ctx)
	}
}

func (s *Store) releaseConn(conn *clientConn, broken bool) {
	if conn == nil {
		return
	}
	if broken {
		_ = conn.Close()
		return
	}
	select {
	case s.pool <- conn:
	default:
		_ = conn.Close()
	}
}

func (s *Store) newConn(ctx context.Context) (*clientConn, error) {
	nc, err := s.dialFn(ctx, s.opts)
	if err != nil {
		return nil, fmt.Errorf("redis: dial: %w", err)
	}
	reader := bufio.NewReader(nc)
	if err := s.handshake(nc, reader); err != nil {
		_ = nc.Close()
		return nil, err
	}
	return &clientConn{Conn: nc, reader: reader}, nil
}

func defaultDial(ctx context.Context, opts Options) (net.Conn, error) {
	dialer := &net.Dialer{Timeout: opts.DialTimeout}
	return dialer.DialContext(ctx, "tcp", opts.Addr)
}
