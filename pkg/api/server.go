// Package api exposes the operational HTTP surface of the fleet: module
// manifests, settings, job control, bus history, and the SSE bridges for
// live messages and logs.
package api

import (
	"context"
	"net/http"
	"time"

	echo "github.com/labstack/echo/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/feedeater/feedeater/pkg/bus"
	"github.com/feedeater/feedeater/pkg/history"
	"github.com/feedeater/feedeater/pkg/module"
	"github.com/feedeater/feedeater/pkg/scheduler"
	"github.com/feedeater/feedeater/pkg/settings"
	"github.com/feedeater/feedeater/pkg/store"
)

// Server is the operational HTTP server. Construct with NewServer, wire
// optional collaborators with the Set* methods, then call Start.
type Server struct {
	store    *store.Store
	bus      *bus.Client
	host     *module.Host
	sched    *scheduler.Scheduler
	settings *settings.Registry
	history  *history.Service

	logs          *LogBuffer
	internalToken string

	http *http.Server
}

// NewServer creates the API server over the shared fleet components.
func NewServer(st *store.Store, busClient *bus.Client, host *module.Host, sched *scheduler.Scheduler, reg *settings.Registry, hist *history.Service) *Server {
	return &Server{
		store:    st,
		bus:      busClient,
		host:     host,
		sched:    sched,
		settings: reg,
		history:  hist,
	}
}

// SetInternalToken configures the bearer token that unlocks secret
// setting values on read. Empty disables internal reads entirely.
func (s *Server) SetInternalToken(token string) {
	s.internalToken = token
}

// SetLogBuffer wires the replay buffer consumed by the log SSE bridge.
// Without one the log stream serves live entries only.
func (s *Server) SetLogBuffer(buf *LogBuffer) {
	s.logs = buf
}

// Start builds the router and serves until Shutdown is called or the
// listener fails. Returns http.ErrServerClosed after a clean shutdown.
func (s *Server) Start(addr string) error {
	e := echo.New()
	s.routes(e)

	// No write timeout; the SSE bridges hold their connections open for
	// as long as the client stays subscribed.
	s.http = &http.Server{
		Addr:              addr,
		Handler:           e,
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       2 * time.Minute,
	}
	return s.http.ListenAndServe()
}

// Shutdown stops accepting connections and drains in-flight requests
// until ctx expires.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.http == nil {
		return nil
	}
	return s.http.Shutdown(ctx)
}

func (s *Server) routes(e *echo.Echo) {
	e.Use(baseHeaders())

	e.GET("/healthz", s.healthHandler)
	e.GET("/metrics", func(c *echo.Context) error {
		promhttp.Handler().ServeHTTP(c.Response(), c.Request())
		return nil
	})

	g := e.Group("/api")
	g.Use(noStore())
	g.GET("/modules", s.listModulesHandler)
	g.GET("/settings/:module", s.listSettingsHandler)
	g.PUT("/settings/:module", s.putSettingsBulkHandler)
	g.GET("/settings/:module/:key", s.getSettingHandler)
	g.PUT("/settings/:module/:key", s.putSettingHandler)
	g.GET("/jobs/status", s.jobStatusHandler)
	g.POST("/jobs/run", s.runJobHandler)
	g.GET("/bus/history", s.historyHandler)
	g.GET("/bus/stream", s.busStreamHandler)
	g.GET("/logs/stream", s.logsStreamHandler)
}
