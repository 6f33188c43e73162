package api

import (
	"net/http"

	echo "github.com/labstack/echo/v5"
)

// listModulesHandler handles GET /api/modules. Returns the manifests of
// every booted module in registration order.
func (s *Server) listModulesHandler(c *echo.Context) error {
	if s.host == nil {
		return echo.NewHTTPError(http.StatusServiceUnavailable, "module host not ready")
	}
	return c.JSON(http.StatusOK, s.host.Manifests())
}
