package config

import (
	"fmt"
	"time"

	"gopkg.in/yaml.v3"
)

// RetentionConfig controls data retention and cleanup behavior.
type RetentionConfig struct {
	// MessageAge is the maximum age of bus history rows before deletion.
	MessageAge time.Duration `yaml:"message_age"`

	// RunAge is the maximum age of finished job runs before deletion.
	// The most recent RunsKeptPerJob runs of each job survive
	// regardless of age.
	RunAge time.Duration `yaml:"run_age"`

	// RunsKeptPerJob is how many recent runs each job keeps through
	// age-based cleanup.
	RunsKeptPerJob int `yaml:"runs_kept_per_job"`

	// SweepInterval is how often the cleanup loop runs.
	SweepInterval time.Duration `yaml:"sweep_interval"`
}

// UnmarshalYAML decodes the retention stanza, accepting Go duration
// strings ("72h") for the age fields. Kept in sync with the struct
// tags on RetentionConfig.
func (c *RetentionConfig) UnmarshalYAML(value *yaml.Node) error {
	var raw struct {
		MessageAge     duration `yaml:"message_age"`
		RunAge         duration `yaml:"run_age"`
		RunsKeptPerJob int      `yaml:"runs_kept_per_job"`
		SweepInterval  duration `yaml:"sweep_interval"`
	}
	if err := value.Decode(&raw); err != nil {
		return fmt.Errorf("retention: %w", err)
	}
	c.MessageAge = time.Duration(raw.MessageAge)
	c.RunAge = time.Duration(raw.RunAge)
	c.RunsKeptPerJob = raw.RunsKeptPerJob
	c.SweepInterval = time.Duration(raw.SweepInterval)
	return nil
}

// DefaultRetentionConfig returns the built-in retention defaults.
func DefaultRetentionConfig() *RetentionConfig {
	return &RetentionConfig{
		MessageAge:     14 * 24 * time.Hour,
		RunAge:         30 * 24 * time.Hour,
		RunsKeptPerJob: 50,
		SweepInterval:  1 * time.Hour,
	}
}
