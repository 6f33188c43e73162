package bus

import "strings"

// Root prefixes every subject the fleet publishes.
const Root = "feed"

// Standard events carried as the final subject token. Modules may add
// domain events of their own beyond these.
const (
	EventMessageCreated    = "messageCreated"
	EventContextUpdated    = "contextUpdated"
	EventLog               = "log"
	EventReconnecting      = "reconnecting"
	EventTradeExecuted     = "tradeExecuted"
	EventOrderbookSnapshot = "orderbookSnapshot"
	EventStreamOnline      = "streamOnline"
)

// Wildcard subscriptions used by the persister and the SSE bridge.
const (
	AllMessages = Root + ".*." + EventMessageCreated
	AllLogs     = Root + ".*." + EventLog
)

// Subject returns the canonical subject for a module event,
// e.g. feed.bitfinex.tradeExecuted.
func Subject(module, event string) string {
	return Root + "." + module + "." + event
}

// DeadSubject returns the dead-module notification subject for a module.
func DeadSubject(module string) string {
	return Root + ".module.dead." + module
}

// SubjectModule extracts the module token from a subject. Returns ""
// for subjects outside the root namespace.
func SubjectModule(subject string) string {
	parts := strings.Split(subject, ".")
	if len(parts) < 3 || parts[0] != Root {
		return ""
	}
	if len(parts) == 4 && parts[1] == "module" && parts[2] == "dead" {
		return parts[3]
	}
	return parts[1]
}

// SubjectEvent extracts the event token from a subject. Returns "" for
// subjects outside the root namespace.
func SubjectEvent(subject string) string {
	parts := strings.Split(subject, ".")
	if len(parts) < 3 || parts[0] != Root {
		return ""
	}
	if len(parts) == 4 && parts[1] == "module" && parts[2] == "dead" {
		return "dead"
	}
	return parts[2]
}
