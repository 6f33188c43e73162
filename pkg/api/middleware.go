package api

import (
	echo "github.com/labstack/echo/v5"

	"github.com/feedeater/feedeater/pkg/version"
)

// baseHeaders stamps every response with the server identity and
// hardening headers. The operational UI is served from another origin,
// so framing and content sniffing stay locked down here.
func baseHeaders() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c *echo.Context) error {
			h := c.Response().Header()
			h.Set("Server", version.Full())
			h.Set("X-Frame-Options", "DENY")
			h.Set("X-Content-Type-Options", "nosniff")
			h.Set("Referrer-Policy", "strict-origin-when-cross-origin")
			return next(c)
		}
	}
}

// noStore disables caching on the operational API. Dashboards poll job
// status and settings; a cached response would hide state transitions.
func noStore() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c *echo.Context) error {
			c.Response().Header().Set("Cache-Control", "no-store")
			return next(c)
		}
	}
}
