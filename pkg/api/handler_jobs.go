package api

import (
	"net/http"

	echo "github.com/labstack/echo/v5"

	"github.com/feedeater/feedeater/pkg/scheduler"
)

// jobStatusHandler handles GET /api/jobs/status. Returns one entry per
// registered job with schedule, last-run outcome, and last metrics.
func (s *Server) jobStatusHandler(c *echo.Context) error {
	if s.sched == nil {
		return echo.NewHTTPError(http.StatusServiceUnavailable, "scheduler not ready")
	}
	statuses, err := s.sched.JobStatuses(c.Request().Context())
	if err != nil {
		return mapServiceError(err)
	}
	if statuses == nil {
		statuses = []scheduler.JobStatus{}
	}
	return c.JSON(http.StatusOK, statuses)
}

// runJobHandler handles POST /api/jobs/run. Enqueues a manual run and
// returns its id without waiting for the job to execute.
func (s *Server) runJobHandler(c *echo.Context) error {
	var req runJobRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if req.Module == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "module is required")
	}
	if req.Job == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "job is required")
	}
	if s.sched == nil {
		return echo.NewHTTPError(http.StatusServiceUnavailable, "scheduler not ready")
	}

	runID, err := s.sched.RunNow(c.Request().Context(), req.Module, req.Job)
	if err != nil {
		return mapServiceError(err)
	}
	return c.JSON(http.StatusOK, runJobResponse{JobID: runID.String()})
}
