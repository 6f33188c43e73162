package bus

import (
	"encoding/json"
	"log/slog"
	"time"

	"github.com/feedeater/feedeater/pkg/models"
)

// LogPublisher tees a module's structured log records onto the bus log
// stream. Records always reach the process log; the bus copy is
// best-effort and a broker outage never disturbs the collector.
type LogPublisher struct {
	client *Client
	module string
	source string
}

// LogPublisher creates the log stream handle for a module. The source
// field defaults to the module name.
func (c *Client) LogPublisher(module string) *LogPublisher {
	return &LogPublisher{client: c, module: module, source: module}
}

// WithSource returns a copy attributed to a sub-component, e.g. "stream"
// or "poll".
func (l *LogPublisher) WithSource(source string) *LogPublisher {
	return &LogPublisher{client: l.client, module: l.module, source: source}
}

// Debug emits a debug record.
func (l *LogPublisher) Debug(msg string, meta map[string]any) {
	l.emit(models.LogDebug, msg, meta)
}

// Info emits an info record.
func (l *LogPublisher) Info(msg string, meta map[string]any) {
	l.emit(models.LogInfo, msg, meta)
}

// Warn emits a warn record.
func (l *LogPublisher) Warn(msg string, meta map[string]any) {
	l.emit(models.LogWarn, msg, meta)
}

// Error emits an error record.
func (l *LogPublisher) Error(msg string, meta map[string]any) {
	l.emit(models.LogError, msg, meta)
}

func (l *LogPublisher) emit(level models.LogLevel, msg string, meta map[string]any) {
	attrs := []any{"module", l.module, "source", l.source}
	for k, v := range meta {
		attrs = append(attrs, k, v)
	}
	switch level {
	case models.LogDebug:
		slog.Debug(msg, attrs...)
	case models.LogInfo:
		slog.Info(msg, attrs...)
	case models.LogWarn:
		slog.Warn(msg, attrs...)
	case models.LogError:
		slog.Error(msg, attrs...)
	}

	entry := models.LogEntry{
		Level:   level,
		Module:  l.module,
		Source:  l.source,
		At:      time.Now().UTC(),
		Message: msg,
		Meta:    meta,
	}
	data, err := json.Marshal(entry)
	if err != nil {
		return
	}
	if l.client == nil || l.client.conn == nil {
		logPublishFailuresTotal.Inc()
		return
	}
	if err := l.client.conn.Publish(Subject(l.module, EventLog), data); err != nil {
		logPublishFailuresTotal.Inc()
	}
}
