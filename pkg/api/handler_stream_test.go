package api

import (
	"net/http"
	"net/http/httptest"
	"testing"

	echo "github.com/labstack/echo/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStreamHandlersNotReady(t *testing.T) {
	s := &Server{}
	e := echo.New()
	s.routes(e)

	for _, path := range []string{"/api/bus/stream", "/api/logs/stream"} {
		req := httptest.NewRequest(http.MethodGet, path, nil)
		rec := httptest.NewRecorder()
		e.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusServiceUnavailable, rec.Code, path)
	}
}

func TestWriteSSEFrame(t *testing.T) {
	e := echo.New()
	rec := httptest.NewRecorder()
	c := e.NewContext(httptest.NewRequest(http.MethodGet, "/", nil), rec)

	w := c.Response()
	writeSSEHeaders(w)
	rc := http.NewResponseController(w)

	require.NoError(t, writeSSEFrame(w, rc, "messageCreated", []byte(`{"message":{"id":"abc"}}`)))
	require.NoError(t, writeSSEFrame(w, rc, "", []byte(`{}`)))
	require.NoError(t, writeSSEComment(w, rc))

	assert.Equal(t, "text/event-stream", rec.Header().Get("Content-Type"))
	assert.Equal(t, "no-cache", rec.Header().Get("Cache-Control"))
	body := rec.Body.String()
	assert.Contains(t, body, "event: messageCreated\ndata: {\"message\":{\"id\":\"abc\"}}\n\n")
	assert.Contains(t, body, "event: message\ndata: {}\n\n")
	assert.Contains(t, body, ": keepalive\n\n")
	assert.True(t, rec.Flushed)
}
