package config

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestValidationError(t *testing.T) {
	err := NewValidationError("database_url", ErrMissingRequiredField)

	assert.Contains(t, err.Error(), "database_url")
	assert.Contains(t, err.Error(), "missing required field")
	assert.ErrorIs(t, err, ErrMissingRequiredField)

	var ve *ValidationError
	assert.ErrorAs(t, error(err), &ve)
}

func TestLoadError(t *testing.T) {
	err := NewLoadError(ConfigFileName, errors.New("boom"))

	assert.Contains(t, err.Error(), ConfigFileName)
	assert.Contains(t, err.Error(), "boom")
	assert.Equal(t, "boom", err.Unwrap().Error())
}
