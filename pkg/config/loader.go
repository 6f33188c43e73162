package config

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"dario.cat/mergo"
	"gopkg.in/yaml.v3"
)

// ConfigFileName is the optional fleet configuration file looked up in
// the config directory.
const ConfigFileName = "feedeater.yaml"

// FeedYAMLConfig represents the complete feedeater.yaml file structure.
type FeedYAMLConfig struct {
	ListenAddr  string                      `yaml:"listen_addr"`
	DatabaseURL string                      `yaml:"database_url"`
	BrokerURL   string                      `yaml:"broker_url"`
	AI          *AIYAMLConfig               `yaml:"ai"`
	Retention   *RetentionConfig            `yaml:"retention"`
	Scheduler   *SchedulerConfig            `yaml:"scheduler"`
	Modules     map[string]ModuleYAMLConfig `yaml:"modules"`
}

// AIYAMLConfig holds AI service settings from YAML.
type AIYAMLConfig struct {
	BaseURL string `yaml:"base_url"`
	Token   string `yaml:"token"`
}

// ModuleYAMLConfig holds per-module boot overrides from YAML.
type ModuleYAMLConfig struct {
	Enabled   *bool             `yaml:"enabled,omitempty"`
	Schedules map[string]string `yaml:"schedules,omitempty"`
	Settings  map[string]string `yaml:"settings,omitempty"`
}

// Initialize loads, validates, and returns ready-to-use configuration.
// This is the primary entry point for configuration loading.
//
// Resolution order for every value: feedeater.yaml > environment
// variable > built-in default. The YAML file itself is optional; a
// fleet can run on environment variables alone.
func Initialize(ctx context.Context, configDir string) (*Config, error) {
	log := slog.With("config_dir", configDir)
	log.Info("Initializing configuration")

	cfg, err := load(ctx, configDir)
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	if err := validate(cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	stats := cfg.Stats()
	log.Info("Configuration initialized successfully",
		"listen_addr", cfg.ListenAddr,
		"module_overrides", stats.Modules,
		"modules_disabled", stats.ModuleDisabled,
		"ai_enabled", cfg.AI.BaseURL != "")

	return cfg, nil
}

// load is the internal loader (not exported)
func load(_ context.Context, configDir string) (*Config, error) {
	loader := &configLoader{configDir: configDir}

	fileCfg, err := loader.loadFeedYAML()
	if err != nil {
		if !errors.Is(err, ErrConfigNotFound) {
			return nil, NewLoadError(ConfigFileName, err)
		}
		slog.Info("No configuration file, using environment and defaults",
			"file", filepath.Join(configDir, ConfigFileName))
		fileCfg = &FeedYAMLConfig{}
	}

	retentionCfg, err := resolveRetention(fileCfg.Retention)
	if err != nil {
		return nil, err
	}
	schedulerCfg, err := resolveScheduler(fileCfg.Scheduler)
	if err != nil {
		return nil, err
	}

	return &Config{
		configDir:   configDir,
		ListenAddr:  resolveListenAddr(fileCfg.ListenAddr),
		DatabaseURL: firstNonEmpty(fileCfg.DatabaseURL, os.Getenv("DATABASE_URL")),
		BrokerURL:   firstNonEmpty(fileCfg.BrokerURL, os.Getenv("NATS_URL")),
		AI:          resolveAI(fileCfg.AI),
		Retention:   retentionCfg,
		Scheduler:   schedulerCfg,
		Modules:     resolveModules(fileCfg.Modules),
	}, nil
}

// validate checks hard requirements after all fallbacks are applied.
func validate(cfg *Config) error {
	if cfg.DatabaseURL == "" {
		return NewValidationError("database_url", ErrMissingRequiredField)
	}
	if cfg.BrokerURL == "" {
		return NewValidationError("broker_url", ErrMissingRequiredField)
	}
	if cfg.Scheduler.QueueDepth <= 0 {
		return NewValidationError("scheduler.queue_depth",
			fmt.Errorf("%w: must be positive, got %d", ErrInvalidValue, cfg.Scheduler.QueueDepth))
	}
	for queue, n := range cfg.Scheduler.Concurrency {
		if n <= 0 {
			return NewValidationError("scheduler.concurrency",
				fmt.Errorf("%w: queue %q must be positive, got %d", ErrInvalidValue, queue, n))
		}
	}
	return nil
}

type configLoader struct {
	configDir string
}

func (l *configLoader) loadYAML(filename string, target any) error {
	path := filepath.Join(l.configDir, filename)

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("%w: %s", ErrConfigNotFound, path)
		}
		return err
	}

	// Expand environment variables using {{.VAR}} template syntax
	// Note: ExpandEnv passes through original data on parse/execution errors,
	// allowing YAML parser to handle the content (or fail with clearer error message)
	data = ExpandEnv(data)

	if err := yaml.Unmarshal(data, target); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidYAML, err)
	}

	return nil
}

func (l *configLoader) loadFeedYAML() (*FeedYAMLConfig, error) {
	var config FeedYAMLConfig
	config.Modules = make(map[string]ModuleYAMLConfig)

	if err := l.loadYAML(ConfigFileName, &config); err != nil {
		return nil, err
	}

	return &config, nil
}

// resolveListenAddr resolves the HTTP bind address. HTTP_PORT carries
// only the port for container environments that inject one.
func resolveListenAddr(fromFile string) string {
	if fromFile != "" {
		return fromFile
	}
	if port := os.Getenv("HTTP_PORT"); port != "" {
		return ":" + port
	}
	return ":8080"
}

// resolveAI resolves the AI service client settings, falling back to
// the FEED_API_BASE_URL and FEED_INTERNAL_TOKEN environment variables.
func resolveAI(fromFile *AIYAMLConfig) *AIConfig {
	cfg := &AIConfig{
		BaseURL: os.Getenv("FEED_API_BASE_URL"),
		Token:   os.Getenv("FEED_INTERNAL_TOKEN"),
	}
	if fromFile == nil {
		return cfg
	}
	if fromFile.BaseURL != "" {
		cfg.BaseURL = fromFile.BaseURL
	}
	if fromFile.Token != "" {
		cfg.Token = fromFile.Token
	}
	return cfg
}

// resolveRetention merges user retention settings over the defaults.
// Non-positive values fall back rather than erroring so a partial
// stanza cannot disable cleanup entirely.
func resolveRetention(fromFile *RetentionConfig) (*RetentionConfig, error) {
	cfg := DefaultRetentionConfig()
	if fromFile == nil {
		return cfg, nil
	}
	if err := mergo.Merge(cfg, fromFile, mergo.WithOverride); err != nil {
		return nil, fmt.Errorf("failed to merge retention config: %w", err)
	}
	defaults := DefaultRetentionConfig()
	if cfg.MessageAge <= 0 {
		cfg.MessageAge = defaults.MessageAge
	}
	if cfg.RunAge <= 0 {
		cfg.RunAge = defaults.RunAge
	}
	if cfg.RunsKeptPerJob <= 0 {
		cfg.RunsKeptPerJob = defaults.RunsKeptPerJob
	}
	if cfg.SweepInterval <= 0 {
		cfg.SweepInterval = defaults.SweepInterval
	}
	return cfg, nil
}

// resolveScheduler merges user scheduler settings over the defaults.
func resolveScheduler(fromFile *SchedulerConfig) (*SchedulerConfig, error) {
	cfg := DefaultSchedulerConfig()
	if fromFile == nil {
		return cfg, nil
	}
	if err := mergo.Merge(cfg, fromFile, mergo.WithOverride); err != nil {
		return nil, fmt.Errorf("failed to merge scheduler config: %w", err)
	}
	return cfg, nil
}

func resolveModules(fromFile map[string]ModuleYAMLConfig) map[string]ModuleConfig {
	out := make(map[string]ModuleConfig, len(fromFile))
	for name, m := range fromFile {
		out[name] = ModuleConfig{
			Enabled:   m.Enabled,
			Schedules: m.Schedules,
			Settings:  m.Settings,
		}
	}
	return out
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
