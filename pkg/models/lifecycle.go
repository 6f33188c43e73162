package models

import "time"

// Reconnecting is published on <root>.<module>.reconnecting each time a
// collector loses its transport and schedules a retry.
type Reconnecting struct {
	Module      string    `json:"module"`
	At          time.Time `json:"at"`
	Attempt     int       `json:"attempt"`
	WaitSeconds float64   `json:"waitSeconds"`
}

// ModuleDead is published on <root>.module.dead.<name> when a collector's
// circuit breaker trips. Operator intervention is required before the
// module recovers ahead of its next scheduled run.
type ModuleDead struct {
	Module string    `json:"module"`
	At     time.Time `json:"at"`
}
