// Package module defines the collector contract and the host that
// wires collectors into the fleet: schema setup, settings binding, job
// registration, and per-invocation session construction.
package module

import (
	"fmt"
	"regexp"
	"time"
)

// namePattern keeps module names usable as a single broker subject
// token and as a schema suffix.
var namePattern = regexp.MustCompile(`^[a-z][a-z0-9_]*$`)

// SettingType classifies a declared setting for coercion and redaction.
type SettingType string

// Declared setting types.
const (
	SettingString  SettingType = "string"
	SettingNumber  SettingType = "number"
	SettingBoolean SettingType = "boolean"
	SettingSecret  SettingType = "secret"
)

// SettingDecl declares one configurable setting of a module.
type SettingDecl struct {
	Key         string      `json:"key"`
	Type        SettingType `json:"type"`
	Default     string      `json:"default,omitempty"`
	Required    bool        `json:"required"`
	Description string      `json:"description,omitempty"`
}

// Job declares one schedulable job of a module.
type Job struct {
	Name         string        `json:"name"`
	Queue        string        `json:"queue"`
	Schedule     string        `json:"schedule,omitempty"`
	TriggerClass string        `json:"trigger_class,omitempty"`
	Budget       time.Duration `json:"-"`
	Description  string        `json:"description,omitempty"`
}

// Card describes the module's dashboard panel.
type Card struct {
	Title   string `json:"title"`
	PanelID string `json:"panel_id"`
}

// Manifest declares a module's identity, jobs, queues, and settings.
// It is served verbatim on the modules endpoint.
type Manifest struct {
	Name        string        `json:"name"`
	Version     string        `json:"version,omitempty"`
	Description string        `json:"description,omitempty"`
	Queues      []string      `json:"queues,omitempty"`
	Jobs        []Job         `json:"jobs,omitempty"`
	Settings    []SettingDecl `json:"settings,omitempty"`
	Card        *Card         `json:"card,omitempty"`
}

// Validate checks manifest invariants at registration time.
func (m *Manifest) Validate() error {
	if !namePattern.MatchString(m.Name) {
		return fmt.Errorf("module name %q must match %s", m.Name, namePattern)
	}

	queues := make(map[string]bool, len(m.Queues))
	for _, q := range m.Queues {
		if q == "" {
			return fmt.Errorf("module %s declares an empty queue name", m.Name)
		}
		if queues[q] {
			return fmt.Errorf("module %s declares queue %q twice", m.Name, q)
		}
		queues[q] = true
	}

	jobs := make(map[string]bool, len(m.Jobs))
	for _, j := range m.Jobs {
		if j.Name == "" {
			return fmt.Errorf("module %s declares a job without a name", m.Name)
		}
		if jobs[j.Name] {
			return fmt.Errorf("module %s declares job %q twice", m.Name, j.Name)
		}
		jobs[j.Name] = true
		if !queues[j.Queue] {
			return fmt.Errorf("module %s job %q references undeclared queue %q", m.Name, j.Name, j.Queue)
		}
	}

	keys := make(map[string]bool, len(m.Settings))
	for _, s := range m.Settings {
		if s.Key == "" {
			return fmt.Errorf("module %s declares a setting without a key", m.Name)
		}
		if keys[s.Key] {
			return fmt.Errorf("module %s declares setting %q twice", m.Name, s.Key)
		}
		keys[s.Key] = true
		switch s.Type {
		case SettingString, SettingNumber, SettingBoolean, SettingSecret, "":
		default:
			return fmt.Errorf("module %s setting %q has unknown type %q", m.Name, s.Key, s.Type)
		}
	}
	return nil
}

// SettingDefaults returns the declared defaults as a resolution map.
func (m *Manifest) SettingDefaults() map[string]string {
	defaults := make(map[string]string, len(m.Settings))
	for _, s := range m.Settings {
		if s.Default != "" {
			defaults[s.Key] = s.Default
		}
	}
	return defaults
}

// SecretKeys returns the set of declared secret settings.
func (m *Manifest) SecretKeys() map[string]bool {
	secrets := make(map[string]bool)
	for _, s := range m.Settings {
		if s.Type == SettingSecret {
			secrets[s.Key] = true
		}
	}
	return secrets
}
