package models

import "time"

// LogLevel enumerates bus log severities.
type LogLevel string

const (
	LogDebug LogLevel = "debug"
	LogInfo  LogLevel = "info"
	LogWarn  LogLevel = "warn"
	LogError LogLevel = "error"
)

// LogEntry is the structured record carried on <root>.<module>.log.
type LogEntry struct {
	Level   LogLevel       `json:"level"`
	Module  string         `json:"module"`
	Source  string         `json:"source"`
	At      time.Time      `json:"at"`
	Message string         `json:"message"`
	Meta    map[string]any `json:"meta,omitempty"`
}
