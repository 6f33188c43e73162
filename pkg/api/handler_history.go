package api

import (
	"fmt"
	"net/http"
	"strconv"

	echo "github.com/labstack/echo/v5"

	"github.com/feedeater/feedeater/pkg/history"
)

// historyHandler handles GET /api/bus/history. Returns persisted
// messageCreated envelopes, newest first.
func (s *Server) historyHandler(c *echo.Context) error {
	q, err := parseHistoryQuery(c)
	if err != nil {
		return err
	}
	if s.history == nil {
		return echo.NewHTTPError(http.StatusServiceUnavailable, "history service not ready")
	}
	entries, err := s.history.History(c.Request().Context(), q)
	if err != nil {
		return mapServiceError(err)
	}
	if entries == nil {
		entries = []history.Entry{}
	}
	return c.JSON(http.StatusOK, entries)
}

// parseHistoryQuery reads the shared filter parameters of the history
// endpoint and the bus SSE bridge. Out-of-range values are clamped by
// the service; only non-numeric input is rejected here.
func parseHistoryQuery(c *echo.Context) (history.Query, error) {
	var q history.Query
	if raw := c.QueryParam("sinceMinutes"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			return q, echo.NewHTTPError(http.StatusBadRequest,
				fmt.Sprintf("invalid sinceMinutes: %q", raw))
		}
		q.SinceMinutes = n
	}
	if raw := c.QueryParam("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			return q, echo.NewHTTPError(http.StatusBadRequest,
				fmt.Sprintf("invalid limit: %q", raw))
		}
		q.Limit = n
	}
	q.Module = c.QueryParam("module")
	q.Stream = c.QueryParam("stream")
	q.Text = c.QueryParam("q")
	return q, nil
}
