// Package httpx is a thin layer over Echo and Resty shared by the postrank
// HTTP server, its Go client and their tests.
package httpx

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
)

// Context aliases echo.Context so handlers can stay within httpx imports.
type Context = echo.Context

// HandlerFunc aliases echo.HandlerFunc.
type HandlerFunc = echo.HandlerFunc

// MiddlewareFunc aliases echo.MiddlewareFunc.
type MiddlewareFunc = echo.MiddlewareFunc

// HTTPErrorHandler aliases echo.HTTPErrorHandler so handlers set through
// WithErrorHandler go straight onto the Echo instance.
type HTTPErrorHandler = echo.HTTPErrorHandler

// App owns the Echo instance routes are registered on.
type App struct{ e *echo.Echo }

func newApp() *App {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	return &App{e: e}
}

// Use attaches middleware to every route.
func (a *App) Use(mw ...MiddlewareFunc) { a.e.Use(mw...) }

// GET registers a GET route.
func (a *App) GET(path string, h HandlerFunc, mw ...MiddlewareFunc) {
	a.e.GET(path, h, mw...)
}

// POST registers a POST route.
func (a *App) POST(path string, h HandlerFunc, mw ...MiddlewareFunc) {
	a.e.POST(path, h, mw...)
}

// Any registers h for every method, used for mounting plain http.Handlers.
func (a *App) Any(path string, h HandlerFunc, mw ...MiddlewareFunc) {
	a.e.Any(path, h, mw...)
}

// WrapHandler adapts a net/http handler such as promhttp.Handler().
func WrapHandler(h http.Handler) HandlerFunc { return echo.WrapHandler(h) }

// HTTPError constructs an error the server's error handler renders with code.
func HTTPError(code int, message any) error { return echo.NewHTTPError(code, message) }

// DefaultCORSConfig mirrors echo's default CORS configuration.
var DefaultCORSConfig = middleware.DefaultCORSConfig
