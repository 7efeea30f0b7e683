package httpx

import (
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"golang.org/x/time/rate"
)

// RecoverMiddleware turns handler panics into 500 responses.
func RecoverMiddleware() MiddlewareFunc { return middleware.Recover() }

// LoggerMiddleware logs one line per request.
func LoggerMiddleware() MiddlewareFunc { return middleware.Logger() }

// RequestIDMiddleware sets X-Request-Id on every response.
func RequestIDMiddleware() MiddlewareFunc { return middleware.RequestID() }

// CORSMiddleware builds a CORS middleware from cfg; nil uses defaults.
func CORSMiddleware(cfg *middleware.CORSConfig) MiddlewareFunc {
	if cfg == nil {
		return middleware.CORSWithConfig(middleware.DefaultCORSConfig)
	}
	return middleware.CORSWithConfig(*cfg)
}

// BodyLimitMiddleware rejects request bodies larger than limit, e.g. "64K".
func BodyLimitMiddleware(limit string) MiddlewareFunc { return middleware.BodyLimit(limit) }

// RateLimitMiddleware applies a per-client-IP token bucket of rps requests
// per second with the given burst. Rejected requests get 429.
func RateLimitMiddleware(rps float64, burst int) MiddlewareFunc {
	store := middleware.NewRateLimiterMemoryStoreWithConfig(middleware.RateLimiterMemoryStoreConfig{
		Rate:      rate.Limit(rps),
		Burst:     burst,
		ExpiresIn: 3 * time.Minute,
	})
	return middleware.RateLimiterWithConfig(middleware.RateLimiterConfig{
		Store: store,
		IdentifierExtractor: func(c echo.Context) (string, error) {
			return c.RealIP(), nil
		},
		ErrorHandler: func(c echo.Context, err error) error {
			return HTTPError(StatusForbidden, "rate limiter: cannot identify client")
		},
		DenyHandler: func(c echo.Context, _ string, _ error) error {
			return HTTPError(StatusTooManyRequests, "rate limit exceeded")
		},
	})
}
