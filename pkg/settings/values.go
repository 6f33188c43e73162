package settings

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Values is the resolved key→value view a module's settings parser
// consumes. Values transit a string-typed store, so every accessor
// coerces from strings.
type Values map[string]string

// String returns the value for key, or fallback when unset or empty.
func (v Values) String(key, fallback string) string {
	if s, ok := v[key]; ok && s != "" {
		return s
	}
	return fallback
}

// RequireString returns the value for key or a validation error when
// unset or empty.
func (v Values) RequireString(key string) (string, error) {
	s, ok := v[key]
	if !ok || s == "" {
		return "", NewValidationError(key, "required setting is missing")
	}
	return s, nil
}

// Bool coerces the value for key. Accepts true/false, 1/0, and mixed
// case variants; anything else falls back.
func (v Values) Bool(key string, fallback bool) bool {
	s, ok := v[key]
	if !ok || s == "" {
		return fallback
	}
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "true", "1", "yes":
		return true
	case "false", "0", "no":
		return false
	}
	return fallback
}

// Int coerces the value for key, falling back on absence or parse failure.
func (v Values) Int(key string, fallback int) int {
	s, ok := v[key]
	if !ok || s == "" {
		return fallback
	}
	n, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil {
		return fallback
	}
	return n
}

// RequireInt returns the value for key or a validation error when unset
// or not an integer.
func (v Values) RequireInt(key string) (int, error) {
	s, ok := v[key]
	if !ok || s == "" {
		return 0, NewValidationError(key, "required setting is missing")
	}
	n, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil {
		return 0, NewValidationError(key, fmt.Sprintf("not an integer: %q", s))
	}
	return n, nil
}

// RequirePositiveInt returns the value for key or a validation error
// when unset, not an integer, or not strictly positive.
func (v Values) RequirePositiveInt(key string) (int, error) {
	n, err := v.RequireInt(key)
	if err != nil {
		return 0, err
	}
	if n <= 0 {
		return 0, NewValidationError(key, fmt.Sprintf("must be positive, got %d", n))
	}
	return n, nil
}

// Float coerces the value for key, falling back on absence or parse failure.
func (v Values) Float(key string, fallback float64) float64 {
	s, ok := v[key]
	if !ok || s == "" {
		return fallback
	}
	f, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil {
		return fallback
	}
	return f
}

// Duration coerces the value for key. Accepts Go duration strings
// ("45s", "2m") and bare integers interpreted as seconds.
func (v Values) Duration(key string, fallback time.Duration) time.Duration {
	s, ok := v[key]
	if !ok || s == "" {
		return fallback
	}
	s = strings.TrimSpace(s)
	if d, err := time.ParseDuration(s); err == nil {
		return d
	}
	if n, err := strconv.Atoi(s); err == nil {
		return time.Duration(n) * time.Second
	}
	return fallback
}

// StringSlice splits a comma-separated value into trimmed non-empty
// parts.
func (v Values) StringSlice(key string) []string {
	s, ok := v[key]
	if !ok || s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}
