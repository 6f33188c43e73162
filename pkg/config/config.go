// Package config loads the fleet configuration: feedeater.yaml layered
// over environment variables over built-in defaults.
package config

// Config is the umbrella configuration object returned by Initialize()
// and used throughout the application.
type Config struct {
	configDir string

	// ListenAddr is the bind address of the operational HTTP server.
	ListenAddr string

	// DatabaseURL is the Postgres connection string shared by the fleet.
	DatabaseURL string

	// BrokerURL is the NATS server URL.
	BrokerURL string

	// AI configures the summary and embedding service client.
	AI *AIConfig

	// Retention controls the background sweeps over persisted data.
	Retention *RetentionConfig

	// Scheduler configures queue depths and run budgets.
	Scheduler *SchedulerConfig

	// Modules holds per-module boot overrides keyed by module name.
	Modules map[string]ModuleConfig
}

// ConfigDir returns the configuration directory path.
func (c *Config) ConfigDir() string {
	return c.configDir
}

// AIConfig points the fleet at the internal AI service. An empty
// BaseURL disables AI summaries; the context engine then falls back to
// minimal placeholders.
type AIConfig struct {
	BaseURL string
	Token   string
}

// ModuleConfig adjusts one module at boot without touching its code.
type ModuleConfig struct {
	// Enabled skips the module entirely when false. Nil means enabled.
	Enabled *bool

	// Schedules overrides job cron expressions keyed by job name.
	Schedules map[string]string

	// Settings overrides manifest setting defaults. Database rows still
	// take precedence over these.
	Settings map[string]string
}

// Stats contains statistics about loaded configuration.
type Stats struct {
	Modules        int
	ModuleDisabled int
}

// Stats returns configuration statistics for logging.
func (c *Config) Stats() Stats {
	s := Stats{Modules: len(c.Modules)}
	for _, m := range c.Modules {
		if m.Enabled != nil && !*m.Enabled {
			s.ModuleDisabled++
		}
	}
	return s
}
