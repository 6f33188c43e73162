package api

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	echo "github.com/labstack/echo/v5"
	"github.com/stretchr/testify/assert"
)

func TestRunJobValidation(t *testing.T) {
	// Parameter validation only; runs against a live scheduler are
	// covered by the scheduler package tests.
	s := &Server{}
	e := echo.New()
	s.routes(e)

	tests := []struct {
		name     string
		body     string
		wantCode int
	}{
		{
			name:     "malformed body",
			body:     `{"module":`,
			wantCode: http.StatusBadRequest,
		},
		{
			name:     "missing module",
			body:     `{"job":"poll"}`,
			wantCode: http.StatusBadRequest,
		},
		{
			name:     "missing job",
			body:     `{"module":"rss"}`,
			wantCode: http.StatusBadRequest,
		},
		{
			name:     "valid body without scheduler",
			body:     `{"module":"rss","job":"poll"}`,
			wantCode: http.StatusServiceUnavailable,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/api/jobs/run", strings.NewReader(tt.body))
			req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
			rec := httptest.NewRecorder()
			e.ServeHTTP(rec, req)
			assert.Equal(t, tt.wantCode, rec.Code, rec.Body.String())
		})
	}
}

func TestJobStatusNotReady(t *testing.T) {
	s := &Server{}
	e := echo.New()
	s.routes(e)

	req := httptest.NewRequest(http.MethodGet, "/api/jobs/status", nil)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}
