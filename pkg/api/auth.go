package api

import (
	"crypto/subtle"
	"strings"

	echo "github.com/labstack/echo/v5"
)

// isInternal reports whether the request carries the fleet's internal
// bearer token. Internal callers see secret setting values unredacted.
// An unset token means no caller is ever internal.
func (s *Server) isInternal(c *echo.Context) bool {
	if s.internalToken == "" {
		return false
	}
	auth := c.Request().Header.Get("Authorization")
	presented, ok := strings.CutPrefix(auth, "Bearer ")
	if !ok {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(presented), []byte(s.internalToken)) == 1
}
