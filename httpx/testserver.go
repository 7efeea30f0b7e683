package httpx

import (
	"net/http"
	"net/http/httptest"
)

// TestServer wraps httptest.Server so callers don't import net/http/httptest.
type TestServer struct{ *httptest.Server }

// NewTestServer starts a new TestServer from an http.Handler.
func NewTestServer(handler http.Handler) *TestServer {
	return &TestServer{httptest.NewServer(handler)}
}

// BaseURL returns the server's base URL.
func (ts *TestServer) BaseURL() string {
	if ts == nil || ts.Server == nil {
		return ""
	}
	return ts.URL
}

// StartTestServer builds a Server from opts, registers reg on it and serves
// it on a loopback port. Callers close the returned server.
func StartTestServer(reg RouteRegistrar, opts ...ServerOption) *TestServer {
	s := NewServer(opts...)
	s.RegisterRoutes(reg)
	return NewTestServer(s.Handler())
}
