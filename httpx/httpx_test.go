package httpx

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"

	"go.uber.org/atomic"
)

func TestServerAndClientRoundTrip(t *testing.T) {
	server := NewServer()
	server.RegisterRoutes(func(a *App) {
		a.GET("/ping", func(c Context) error {
			return c.JSON(StatusOK, map[string]string{"message": "pong"})
		})
	})

	ts := NewTestServer(server.Handler())
	defer ts.Close()

	client := NewClient(WithBaseURL(ts.BaseURL()))

	var body struct {
		Message string `json:"message"`
	}
	resp, err := client.Get(context.Background(), "/ping", &body)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.StatusCode() != StatusOK {
		t.Fatalf("unexpected status: %d", resp.StatusCode())
	}
	if body.Message != "pong" {
		t.Fatalf("unexpected body: %#v", body)
	}
}

func TestErrorHandlerWrapsEchoHTTPError(t *testing.T) {
	server := NewServer()
	server.RegisterRoutes(func(a *App) {
		a.GET("/fail", func(c Context) error {
			return HTTPError(StatusBadRequest, "bad request")
		})
	})

	ts := NewTestServer(server.Handler())
	defer ts.Close()

	client := NewClient(WithBaseURL(ts.BaseURL()))

	resp, err := client.Get(context.Background(), "/fail", nil)
	if err == nil {
		t.Fatalf("expected error")
	}
	if resp == nil {
		t.Fatalf("expected response for error path")
	}
	if resp.StatusCode() != StatusBadRequest {
		t.Fatalf("unexpected status: %d", resp.StatusCode())
	}
}

func TestCustomErrorHandler(t *testing.T) {
	handler := func(err error, c Context) {
		if c.Response().Committed {
			return
		}
		_ = c.JSON(StatusServiceUnavailable, map[string]string{"error": "custom: " + err.Error()})
	}
	server := NewServer(WithErrorHandler(handler))
	server.RegisterRoutes(func(a *App) {
		a.GET("/fail", func(c Context) error { return errors.New("store down") })
	})

	ts := NewTestServer(server.Handler())
	defer ts.Close()
	client := NewClient(WithBaseURL(ts.BaseURL()))

	_, err := client.Get(context.Background(), "/fail", nil)
	var se *StatusError
	if !errors.As(err, &se) {
		t.Fatalf("expected StatusError, got %v", err)
	}
	if se.Code != StatusServiceUnavailable || se.Message != "custom: store down" {
		t.Fatalf("unexpected error response: %+v", se)
	}
}

func TestClientDefaultHeaders(t *testing.T) {
	server := NewServer()
	server.RegisterRoutes(func(a *App) {
		a.GET("/agent", func(c Context) error {
			return c.JSON(StatusOK, map[string]string{"agent": c.Request().Header.Get("User-Agent")})
		})
	})

	ts := NewTestServer(server.Handler())
	defer ts.Close()
	client := NewClient(WithBaseURL(ts.BaseURL()), WithHeaders(map[string]string{"User-Agent": "postrank-test"}))

	var out map[string]string
	if _, err := client.Get(context.Background(), "/agent", &out); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out["agent"] != "postrank-test" {
		t.Fatalf("User-Agent = %q", out["agent"])
	}
}

func TestCORSAndLoggerInjection(t *testing.T) {
	corsCfg := DefaultCORSConfig
	corsCfg.AllowOrigins = []string{"http://example.com"}
	server := NewServer(WithCORS(&corsCfg))
	server.RegisterRoutes(func(a *App) {
		a.GET("/ping", func(c Context) error { return c.NoContent(StatusOK) })
	})

	ts := NewTestServer(server.Handler())
	defer ts.Close()

	client := NewClient(WithBaseURL(ts.BaseURL()))
	resp, err := client.Get(context.Background(), "/ping", nil, WithRequestHeaders(map[string]string{
		"Origin":                        "http://example.com",
		"Access-Control-Request-Method": "GET",
	}))
	if err != nil {
		t.Fatalf("options request failed: %v", err)
	}
	if resp.Header().Get("Access-Control-Allow-Origin") != "http://example.com" {
		t.Fatalf("expected CORS allow origin header, got %q", resp.Header().Get("Access-Control-Allow-Origin"))
	}
}

func TestRegisterRoutesBulkAndPostBody(t *testing.T) {
	server := NewServer()
	server.RegisterRoutes(func(a *App) {
		RegisterRoutes(a,
			Route{Method: "GET", Path: "/r1", Handler: func(c Context) error {
				return c.JSON(StatusOK, map[string]string{"route": "r1"})
			}},
			Route{Method: "POST", Path: "/echo", Handler: func(c Context) error {
				var payload map[string]any
				if err := c.Bind(&payload); err != nil {
					return HTTPError(StatusBadRequest, "invalid body")
				}
				return c.JSON(StatusOK, payload)
			}},
		)
	})

	ts := NewTestServer(server.Handler())
	defer ts.Close()

	client := NewClient(WithBaseURL(ts.BaseURL()))

	// GET route
	var r1 map[string]string
	resp, err := client.Get(context.Background(), "/r1", &r1)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.StatusCode() != StatusOK || r1["route"] != "r1" {
		t.Fatalf("unexpected response: status=%d body=%v", resp.StatusCode(), r1)
	}

	// POST with JSON body
	payload := map[string]string{"hello": "world"}
	var echoed map[string]string
	resp, err = client.Post(context.Background(), "/echo", payload, &echoed)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.StatusCode() != StatusOK || echoed["hello"] != "world" {
		t.Fatalf("unexpected POST response: status=%d body=%v", resp.StatusCode(), echoed)
	}
}

func TestClientRequestOptions(t *testing.T) {
	server := NewServer()
	server.RegisterRoutes(func(a *App) {
		a.GET("/opts/:id", func(c Context) error {
			custom := c.Request().Header.Get("X-Custom")
			qp := c.QueryParam("q")
			return c.JSON(StatusOK, map[string]string{"id": c.Param("id"), "custom": custom, "q": qp})
		})
	})

	ts := NewTestServer(server.Handler())
	defer ts.Close()

	client := NewClient(WithBaseURL(ts.BaseURL()))

	var out map[string]string
	resp, err := client.Get(context.Background(), "/opts/{id}", &out,
		WithPathParams(map[string]string{"id": "42"}),
		WithRequestHeaders(map[string]string{"X-Custom": "yes"}),
		WithQuery(map[string]string{"q": "search"}),
	)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.StatusCode() != StatusOK {
		t.Fatalf("unexpected status: %d", resp.StatusCode())
	}
	if out["id"] != "42" || out["custom"] != "yes" || out["q"] != "search" {
		t.Fatalf("unexpected headers/query: %v", out)
	}
}

func TestErrorHandlerHidesInternalErrors(t *testing.T) {
	server := NewServer()
	server.RegisterRoutes(func(a *App) {
		a.GET("/boom", func(c Context) error { return errors.New("dsn=postgres://secret") })
		a.GET("/missing", func(c Context) error { return HTTPError(StatusNotFound, "post not found") })
	})

	ts := NewTestServer(server.Handler())
	defer ts.Close()
	client := NewClient(WithBaseURL(ts.BaseURL()))

	_, err := client.Get(context.Background(), "/boom", nil)
	var se *StatusError
	if !errors.As(err, &se) {
		t.Fatalf("expected StatusError, got %v", err)
	}
	if se.Code != StatusInternalError || se.Message != http.StatusText(http.StatusInternalServerError) {
		t.Fatalf("unexpected internal error rendering: %+v", se)
	}

	_, err = client.Get(context.Background(), "/missing", nil)
	if !errors.As(err, &se) || se.Code != StatusNotFound || se.Message != "post not found" {
		t.Fatalf("unexpected not found rendering: %v", err)
	}
}

func TestRateLimitMiddleware(t *testing.T) {
	server := NewServer(AppendMiddlewares(RateLimitMiddleware(0.001, 2)))
	server.RegisterRoutes(func(a *App) {
		a.GET("/limited", func(c Context) error { return c.NoContent(StatusOK) })
	})

	ts := NewTestServer(server.Handler())
	defer ts.Close()
	client := NewClient(WithBaseURL(ts.BaseURL()))

	for i := 0; i < 2; i++ {
		if _, err := client.Get(context.Background(), "/limited", nil); err != nil {
			t.Fatalf("request %d within burst failed: %v", i, err)
		}
	}
	_, err := client.Get(context.Background(), "/limited", nil)
	var se *StatusError
	if !errors.As(err, &se) || se.Code != StatusTooManyRequests {
		t.Fatalf("expected 429 after burst, got %v", err)
	}
}

func TestServerStartAndShutdown(t *testing.T) {
	server := NewServer(WithAddress("127.0.0.1:0"))
	server.RegisterRoutes(func(a *App) {
		a.GET("/ping", func(c Context) error { return c.String(StatusOK, "pong") })
	})

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- server.Start(ctx, WithShutdownTimeout(time.Second)) }()

	var addr string
	select {
	case a := <-server.Ready():
		addr = a.String()
	case err := <-errCh:
		t.Fatalf("Start() failed early: %v", err)
	case <-time.After(2 * time.Second):
		t.Fatal("server never became ready")
	}

	client := NewClient(WithBaseURL("http://" + addr))
	if _, err := client.Get(context.Background(), "/ping", nil); err != nil {
		t.Fatalf("request against started server failed: %v", err)
	}

	cancel()
	select {
	case err := <-errCh:
		if err != nil {
			t.Fatalf("Start() returned %v after shutdown", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("server did not shut down")
	}
}

func TestClientRetriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	server := NewServer()
	server.RegisterRoutes(func(a *App) {
		a.GET("/flaky", func(c Context) error {
			if calls.Inc() < 3 {
				return HTTPError(StatusServiceUnavailable, "warming up")
			}
			return c.NoContent(StatusOK)
		})
	})

	ts := NewTestServer(server.Handler())
	defer ts.Close()

	client := NewClient(WithBaseURL(ts.BaseURL()), WithRetries(3))
	if _, err := client.Get(context.Background(), "/flaky", nil); err != nil {
		t.Fatalf("expected retries to succeed, got %v", err)
	}
	if n := calls.Load(); n != 3 {
		t.Fatalf("handler called %d times, want 3", n)
	}
}
