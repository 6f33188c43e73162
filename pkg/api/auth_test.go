package api

import (
	"net/http"
	"net/http/httptest"
	"testing"

	echo "github.com/labstack/echo/v5"
	"github.com/stretchr/testify/assert"
)

func TestIsInternal(t *testing.T) {
	tests := []struct {
		name   string
		token  string
		header string
		want   bool
	}{
		{
			name:   "matching bearer token",
			token:  "secret-token",
			header: "Bearer secret-token",
			want:   true,
		},
		{
			name:   "wrong token",
			token:  "secret-token",
			header: "Bearer other-token",
			want:   false,
		},
		{
			name:   "missing bearer prefix",
			token:  "secret-token",
			header: "secret-token",
			want:   false,
		},
		{
			name:   "no header",
			token:  "secret-token",
			header: "",
			want:   false,
		},
		{
			name:   "unset token never matches",
			token:  "",
			header: "Bearer ",
			want:   false,
		},
	}

	e := echo.New()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := &Server{internalToken: tt.token}
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			c := e.NewContext(req, httptest.NewRecorder())
			assert.Equal(t, tt.want, s.isInternal(c))
		})
	}
}
