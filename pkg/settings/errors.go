package settings

import (
	"errors"
	"fmt"
)

// ErrNotFound is returned when a setting row does not exist.
var ErrNotFound = errors.New("setting not found")

// ValidationError wraps key-specific validation errors raised by module
// settings parsers. A module with invalid settings stays off its
// schedule until the operator fixes the value.
type ValidationError struct {
	Key     string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation error on setting '%s': %s", e.Key, e.Message)
}

// NewValidationError creates a new validation error.
func NewValidationError(key, message string) error {
	return &ValidationError{
		Key:     key,
		Message: message,
	}
}

// IsValidationError checks if an error is a validation error.
func IsValidationError(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}
