package models

import (
	"time"
	"unicode/utf8"
)

// SummaryShortMax bounds summaryShort on every published context.
const SummaryShortMax = 128

// Context is a summary+embedding pair keyed by (ownerModule, sourceKey).
// At most one live context exists per key.
type Context struct {
	OwnerModule  string    `json:"ownerModule"`
	SourceKey    string    `json:"sourceKey"`
	SummaryShort string    `json:"summaryShort"`
	SummaryLong  string    `json:"summaryLong"`
	KeyPoints    []string  `json:"keyPoints,omitempty"`
	Embedding    []float32 `json:"embedding,omitempty"`
	UpdatedAt    time.Time `json:"updatedAt,omitempty"`
}

// ContextUpdated is the envelope published on <root>.<module>.contextUpdated.
type ContextUpdated struct {
	Type      string    `json:"type"`
	CreatedAt time.Time `json:"createdAt"`
	MessageID string    `json:"messageId,omitempty"`
	Context   Context   `json:"context"`
}

// NewContextUpdated wraps a context in its publish envelope.
func NewContextUpdated(c Context) ContextUpdated {
	return ContextUpdated{Type: TypeContextUpdated, CreatedAt: time.Now().UTC(), Context: c}
}

// TruncateSummary caps s at SummaryShortMax runes.
func TruncateSummary(s string) string {
	if utf8.RuneCountInString(s) <= SummaryShortMax {
		return s
	}
	runes := []rune(s)
	return string(runes[:SummaryShortMax])
}
