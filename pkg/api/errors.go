package api

import (
	"errors"
	"log/slog"
	"net/http"

	echo "github.com/labstack/echo/v5"

	"github.com/feedeater/feedeater/pkg/module"
	"github.com/feedeater/feedeater/pkg/scheduler"
	"github.com/feedeater/feedeater/pkg/settings"
)

// mapServiceError translates errors from the settings, module and
// scheduler layers into HTTP error responses. Anything unrecognized
// becomes an opaque 500 so internals never leak to clients.
func mapServiceError(err error) *echo.HTTPError {
	var validErr *settings.ValidationError
	if errors.As(err, &validErr) {
		return echo.NewHTTPError(http.StatusBadRequest, validErr.Error())
	}
	if errors.Is(err, settings.ErrNotFound) {
		return echo.NewHTTPError(http.StatusNotFound, "setting not found")
	}
	if errors.Is(err, module.ErrUnknownModule) {
		return echo.NewHTTPError(http.StatusNotFound, "unknown module")
	}
	if errors.Is(err, scheduler.ErrUnknownJob) {
		return echo.NewHTTPError(http.StatusNotFound, "unknown job")
	}
	if errors.Is(err, scheduler.ErrQueueSaturated) {
		return echo.NewHTTPError(http.StatusConflict, "job queue is saturated, try again later")
	}

	slog.Error("Unexpected service error", "error", err)
	return echo.NewHTTPError(http.StatusInternalServerError, "internal server error")
}
