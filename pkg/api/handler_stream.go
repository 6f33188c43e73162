package api

import (
	"fmt"
	"net/http"
	"time"

	echo "github.com/labstack/echo/v5"
	"github.com/tidwall/gjson"

	"github.com/feedeater/feedeater/pkg/bus"
)

// keepaliveInterval spaces SSE comment frames so idle connections
// survive proxies that reap silent streams.
const keepaliveInterval = 15 * time.Second

// busStreamHandler handles GET /api/bus/stream. Subscribes before
// querying history so nothing published in between is lost, replays the
// history slice oldest first, then streams live deliveries. The replay
// overlap is de-duplicated by message id.
func (s *Server) busStreamHandler(c *echo.Context) error {
	if s.bus == nil || s.history == nil {
		return echo.NewHTTPError(http.StatusServiceUnavailable, "bus stream not ready")
	}
	q, err := parseHistoryQuery(c)
	if err != nil {
		return err
	}

	subject := bus.AllMessages
	if q.Module != "" {
		subject = bus.Subject(q.Module, bus.EventMessageCreated)
	}

	ctx := c.Request().Context()
	deliveries, err := s.bus.Subscribe(ctx, subject)
	if err != nil {
		return mapServiceError(err)
	}
	entries, err := s.history.History(ctx, q)
	if err != nil {
		return mapServiceError(err)
	}

	w := c.Response()
	writeSSEHeaders(w)
	rc := http.NewResponseController(w)

	seen := make(map[string]struct{}, len(entries))
	for i := len(entries) - 1; i >= 0; i-- {
		entry := entries[i]
		if id := gjson.GetBytes(entry.Data, "message.id").String(); id != "" {
			seen[id] = struct{}{}
		}
		if err := writeSSEFrame(w, rc, bus.SubjectEvent(entry.Subject), entry.Data); err != nil {
			return nil
		}
	}

	keepalive := time.NewTicker(keepaliveInterval)
	defer keepalive.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-keepalive.C:
			if err := writeSSEComment(w, rc); err != nil {
				return nil
			}
		case d, ok := <-deliveries:
			if !ok {
				return nil
			}
			if id := gjson.GetBytes(d.Data, "message.id").String(); id != "" {
				if _, dup := seen[id]; dup {
					delete(seen, id)
					continue
				}
			}
			if err := writeSSEFrame(w, rc, bus.SubjectEvent(d.Subject), d.Data); err != nil {
				return nil
			}
		}
	}
}

// logsStreamHandler handles GET /api/logs/stream. Replays the in-memory
// log ring, then streams live log frames. Log entries carry no id, so
// the replay overlap is de-duplicated by frame identity.
func (s *Server) logsStreamHandler(c *echo.Context) error {
	if s.bus == nil {
		return echo.NewHTTPError(http.StatusServiceUnavailable, "log stream not ready")
	}

	subject := bus.AllLogs
	moduleFilter := c.QueryParam("module")
	if moduleFilter != "" {
		subject = bus.Subject(moduleFilter, bus.EventLog)
	}

	ctx := c.Request().Context()
	deliveries, err := s.bus.Subscribe(ctx, subject)
	if err != nil {
		return mapServiceError(err)
	}

	w := c.Response()
	writeSSEHeaders(w)
	rc := http.NewResponseController(w)

	seen := make(map[string]struct{})
	if s.logs != nil {
		for _, frame := range s.logs.Recent() {
			if moduleFilter != "" && bus.SubjectModule(frame.Subject) != moduleFilter {
				continue
			}
			seen[string(frame.Data)] = struct{}{}
			if err := writeSSEFrame(w, rc, bus.EventLog, frame.Data); err != nil {
				return nil
			}
		}
	}

	keepalive := time.NewTicker(keepaliveInterval)
	defer keepalive.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-keepalive.C:
			if err := writeSSEComment(w, rc); err != nil {
				return nil
			}
		case d, ok := <-deliveries:
			if !ok {
				return nil
			}
			if _, dup := seen[string(d.Data)]; dup {
				delete(seen, string(d.Data))
				continue
			}
			if err := writeSSEFrame(w, rc, bus.EventLog, d.Data); err != nil {
				return nil
			}
		}
	}
}

func writeSSEHeaders(w http.ResponseWriter) {
	h := w.Header()
	h.Set("Content-Type", "text/event-stream")
	h.Set("Cache-Control", "no-cache")
	h.Set("Connection", "keep-alive")
	h.Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)
}

func writeSSEFrame(w http.ResponseWriter, rc *http.ResponseController, event string, data []byte) error {
	if event == "" {
		event = "message"
	}
	if _, err := fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event, data); err != nil {
		return err
	}
	return rc.Flush()
}

func writeSSEComment(w http.ResponseWriter, rc *http.ResponseController) error {
	if _, err := fmt.Fprint(w, ": keepalive\n\n"); err != nil {
		return err
	}
	return rc.Flush()
}
