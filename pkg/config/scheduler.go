package config

import (
	"fmt"
	"time"

	"gopkg.in/yaml.v3"
)

// SchedulerConfig controls job queues and run budgets.
type SchedulerConfig struct {
	// QueueDepth bounds pending runs per queue.
	QueueDepth int `yaml:"queue_depth"`

	// DefaultBudget is the run budget for jobs that do not set one.
	DefaultBudget time.Duration `yaml:"default_budget"`

	// Concurrency sets worker counts per queue name. Queues not listed
	// run single-flight.
	Concurrency map[string]int `yaml:"concurrency"`
}

// UnmarshalYAML decodes the scheduler stanza, accepting a Go duration
// string ("55s") for default_budget. Kept in sync with the struct
// tags on SchedulerConfig.
func (c *SchedulerConfig) UnmarshalYAML(value *yaml.Node) error {
	var raw struct {
		QueueDepth    int            `yaml:"queue_depth"`
		DefaultBudget duration       `yaml:"default_budget"`
		Concurrency   map[string]int `yaml:"concurrency"`
	}
	if err := value.Decode(&raw); err != nil {
		return fmt.Errorf("scheduler: %w", err)
	}
	c.QueueDepth = raw.QueueDepth
	c.DefaultBudget = time.Duration(raw.DefaultBudget)
	c.Concurrency = raw.Concurrency
	return nil
}

// DefaultSchedulerConfig returns the built-in scheduler defaults.
func DefaultSchedulerConfig() *SchedulerConfig {
	return &SchedulerConfig{
		QueueDepth:    16,
		DefaultBudget: 55 * time.Second,
	}
}
