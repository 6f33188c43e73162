// Package models defines the canonical envelopes carried on the bus:
// the Message produced by every collector, the Context summaries, and
// the structured log stream.
package models

import (
	"fmt"
	"time"
)

// Source identifies the producer of a message.
type Source struct {
	Module string `json:"module"`
	Stream string `json:"stream,omitempty"`
}

// ContextRef binds a message to its context group.
type ContextRef struct {
	OwnerModule string `json:"ownerModule"`
	SourceKey   string `json:"sourceKey"`
}

// FollowMePanel is an optional UI deep link attached to a message.
type FollowMePanel struct {
	Module  string `json:"module"`
	PanelID string `json:"panelId"`
	Href    string `json:"href,omitempty"`
	Label   string `json:"label,omitempty"`
}

// Tags carries scalar domain metadata on a message. Values must be
// strings, booleans, or numbers.
type Tags map[string]any

// Message is the canonical envelope produced by every collector.
type Message struct {
	ID              string         `json:"id"`
	CreatedAt       time.Time      `json:"createdAt"`
	Source          Source         `json:"source"`
	Realtime        bool           `json:"realtime"`
	Text            string         `json:"message"`
	From            string         `json:"from,omitempty"`
	ContextRef      *ContextRef    `json:"contextRef,omitempty"`
	FollowMePanel   *FollowMePanel `json:"followMePanel,omitempty"`
	IsDirectMention bool           `json:"isDirectMention"`
	IsDigest        bool           `json:"isDigest"`
	IsSystemMessage bool           `json:"isSystemMessage"`
	Likes           int            `json:"likes"`
	Tags            Tags           `json:"tags,omitempty"`
}

// Validate checks the envelope invariants before publish. The module
// argument is the publishing module's declared name; source.module must
// match it.
func (m *Message) Validate(module string) error {
	if m.ID == "" {
		return fmt.Errorf("message id is empty")
	}
	if m.CreatedAt.IsZero() {
		return fmt.Errorf("message createdAt is zero")
	}
	if m.Source.Module != module {
		return fmt.Errorf("source.module %q does not match publisher %q", m.Source.Module, module)
	}
	for k, v := range m.Tags {
		switch v.(type) {
		case string, bool, int, int32, int64, float32, float64:
		default:
			return fmt.Errorf("tag %q has non-scalar value of type %T", k, v)
		}
	}
	return nil
}

// Event type discriminators carried inside envelopes.
const (
	TypeMessageCreated = "MessageCreated"
	TypeContextUpdated = "ContextUpdated"
)

// MessageCreated is the envelope published on <root>.<module>.messageCreated.
type MessageCreated struct {
	Type    string  `json:"type"`
	Message Message `json:"message"`
}

// NewMessageCreated wraps a message in its publish envelope.
func NewMessageCreated(msg Message) MessageCreated {
	return MessageCreated{Type: TypeMessageCreated, Message: msg}
}
