package config

import (
	"errors"
	"fmt"
)

// Sentinel errors for configuration loading and validation. Callers
// match them with errors.Is through the wrapping types below.
var (
	ErrConfigNotFound       = errors.New("configuration file not found")
	ErrInvalidYAML          = errors.New("invalid YAML syntax")
	ErrMissingRequiredField = errors.New("missing required field")
	ErrInvalidValue         = errors.New("invalid field value")
)

// ValidationError ties a validation failure to the offending field.
type ValidationError struct {
	Field string
	Err   error
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("field '%s': %v", e.Field, e.Err)
}

func (e *ValidationError) Unwrap() error { return e.Err }

// NewValidationError wraps err with the field it concerns.
func NewValidationError(field string, err error) *ValidationError {
	return &ValidationError{Field: field, Err: err}
}

// LoadError ties a load failure to the file being read.
type LoadError struct {
	File string
	Err  error
}

func (e *LoadError) Error() string {
	return fmt.Sprintf("failed to load %s: %v", e.File, e.Err)
}

func (e *LoadError) Unwrap() error { return e.Err }

// NewLoadError wraps err with the file it concerns.
func NewLoadError(file string, err error) *LoadError {
	return &LoadError{File: file, Err: err}
}
