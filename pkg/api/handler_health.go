package api

import (
	"context"
	"net/http"
	"time"

	echo "github.com/labstack/echo/v5"

	"github.com/feedeater/feedeater/pkg/version"
)

const (
	healthStatusHealthy   = "healthy"
	healthStatusDegraded  = "degraded"
	healthStatusUnhealthy = "unhealthy"
)

// healthHandler handles GET /healthz.
// The database is the only hard dependency; a broker outage degrades
// the fleet (publishes drop, the client keeps reconnecting) but must
// not make the orchestrator restart the process.
func (s *Server) healthHandler(c *echo.Context) error {
	reqCtx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	checks := make(map[string]HealthCheck)
	status := healthStatusHealthy

	if s.store == nil {
		status = healthStatusUnhealthy
		checks["database"] = HealthCheck{Status: healthStatusUnhealthy, Message: "not configured"}
	} else if err := s.store.Pool().Ping(reqCtx); err != nil {
		status = healthStatusUnhealthy
		checks["database"] = HealthCheck{Status: healthStatusUnhealthy, Message: err.Error()}
	} else {
		checks["database"] = HealthCheck{Status: healthStatusHealthy}
	}

	if s.bus != nil {
		if s.bus.Healthy() {
			checks["broker"] = HealthCheck{Status: healthStatusHealthy}
		} else {
			if status == healthStatusHealthy {
				status = healthStatusDegraded
			}
			checks["broker"] = HealthCheck{Status: healthStatusDegraded, Message: "disconnected"}
		}
	}

	httpStatus := http.StatusOK
	if status == healthStatusUnhealthy {
		httpStatus = http.StatusServiceUnavailable
	}

	return c.JSON(httpStatus, &HealthResponse{
		Status:  status,
		Version: version.GitCommit,
		Checks:  checks,
	})
}
