package redis

import (
	"bufio"
	"context"
	"errors"
	"net"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/adeilh/postrank/cache"
	testredis "github.com/adeilh/postrank/internal/testutil/rediscontainer"
)

// fakeServer answers the handful of commands the store issues.
type fakeServer struct {
	ln   net.Listener
	mu   sync.Mutex
	data map[string]string
}

func startFakeServer(t *testing.T) *fakeServer {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	srv := &fakeServer{ln: ln, data: make(map[string]string)}
	go srv.serve()
	t.Cleanup(func() { _ = ln.Close() })
	return srv
}

func (f *fakeServer) Addr() string { return f.ln.Addr().String() }

func (f *fakeServer) serve() {
	for {
		conn, err := f.ln.Accept()
		if err != nil {
			return
		}
		go f.handle(conn)
	}
}

func (f *fakeServer) handle(conn net.Conn) {
	defer conn.Close()
	r := bufio.NewReader(conn)
	for {
		req, err := decodeRESP(r)
		if err != nil {
			return
		}
		parts, _ := req.([]any)
		if len(parts) == 0 {
			return
		}
		args := make([]string, len(parts))
		for i, p := range parts {
			b, _ := p.([]byte)
			args[i] = string(b)
		}
		var reply string
		f.mu.Lock()
		switch strings.ToUpper(args[0]) {
		case "PING":
			reply = "+PONG\r\n"
		case "SET":
			f.data[args[1]] = args[2]
			reply = "+OK\r\n"
		case "GET":
			v, ok := f.data[args[1]]
			if !ok {
				reply = "$-1\r\n"
			} else {
				reply = "$" + strconv.Itoa(len(v)) + "\r\n" + v + "\r\n"
			}
		default:
			reply = "-ERR unknown command '" + args[0] + "'\r\n"
		}
		f.mu.Unlock()
		if _, err := conn.Write([]byte(reply)); err != nil {
			return
		}
	}
}

func TestStoreSnapshotRoundTrip(t *testing.T) {
	srv := startFakeServer(t)
	store := NewStore(Options{Addr: srv.Addr(), Key: "snap"})
	defer store.Close()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	if _, err := store.ReadSnapshot(ctx); !errors.Is(err, cache.ErrNotFound) {
		t.Fatalf("expected ErrNotFound before first write, got %v", err)
	}

	payload := []byte("binary\r\npayload\x00")
	if err := store.WriteSnapshot(ctx, payload); err != nil {
		t.Fatalf("WriteSnapshot() error = %v", err)
	}
	got, err := store.ReadSnapshot(ctx)
	if err != nil {
		t.Fatalf("ReadSnapshot() error = %v", err)
	}
	if string(got) != string(payload) {
		t.Fatalf("ReadSnapshot() = %q, want %q", got, payload)
	}
	if err := store.Ping(ctx); err != nil {
		t.Fatalf("Ping() error = %v", err)
	}
}

func TestStoreBacksCheckpointer(t *testing.T) {
	srv := startFakeServer(t)
	store := NewStore(Options{Addr: srv.Addr()})
	defer store.Close()

	src, err := cache.New(cache.WithCapacity(4))
	if err != nil {
		t.Fatalf("cache.New() error = %v", err)
	}
	src.Put("a", []byte("1"))
	src.Put("b", []byte("2"))

	ctx := context.Background()
	if _, err := cache.NewCheckpointer(src, store).Checkpoint(ctx); err != nil {
		t.Fatalf("Checkpoint() error = %v", err)
	}

	dst, _ := cache.New(cache.WithCapacity(4))
	n, err := cache.NewCheckpointer(dst, store).Restore(ctx)
	if err != nil {
		t.Fatalf("Restore() error = %v", err)
	}
	if n != 2 {
		t.Fatalf("Restore() = %d, want 2", n)
	}
	if v, ok := dst.Get("b"); !ok || string(v) != "2" {
		t.Fatalf("Get(b) = %q, %v", v, ok)
	}
}

func TestStoreErrorReplyKeepsConnection(t *testing.T) {
	srv := startFakeServer(t)
	store := NewStore(Options{Addr: srv.Addr(), PoolSize: 1})
	defer store.Close()

	ctx := context.Background()
	_, err := store.do(ctx, "FLUSHALL")
	var respErr *Error
	if !errors.As(err, &respErr) {
		t.Fatalf("expected RESP error, got %v", err)
	}
	if len(store.pool) != 1 {
		t.Fatalf("expected connection to be returned to pool, pool has %d", len(store.pool))
	}
}

func TestStoreContextCancellation(t *testing.T) {
	store := NewStore(Options{Addr: "127.0.0.1:1"})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if err := store.WriteSnapshot(ctx, []byte("value")); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

func TestStoreAgainstRedisContainer(t *testing.T) {
	if err := testredis.Setup(); err != nil {
		t.Skipf("redis container unavailable: %v", err)
	}
	t.Cleanup(func() { _ = testredis.Teardown() })

	store := NewStore(Options{Addr: testredis.Addr(), Key: "postrank:test:" + time.Now().Format("150405.000000000")})
	defer store.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	if err := store.WriteSnapshot(ctx, []byte("v1")); err != nil {
		t.Fatalf("WriteSnapshot() error = %v", err)
	}
	got, err := store.ReadSnapshot(ctx)
	if err != nil {
		t.Fatalf("ReadSnapshot() error = %v", err)
	}
	if string(got) != "v1" {
		t.Fatalf("ReadSnapshot() = %q, want v1", got)
	}
}
