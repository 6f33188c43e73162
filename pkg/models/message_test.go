package models

import (
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validMessage() Message {
	return Message{
		ID:        "6a1f6f3e-8d35-5bd1-9c3b-111111111111",
		CreatedAt: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
		Source:    Source{Module: "rss", Stream: "items"},
		Text:      "hello",
	}
}

func TestMessageValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Message)
		module  string
		wantErr string
	}{
		{
			name:   "valid message",
			mutate: func(m *Message) {},
			module: "rss",
		},
		{
			name:    "empty id",
			mutate:  func(m *Message) { m.ID = "" },
			module:  "rss",
			wantErr: "id is empty",
		},
		{
			name:    "zero createdAt",
			mutate:  func(m *Message) { m.CreatedAt = time.Time{} },
			module:  "rss",
			wantErr: "createdAt is zero",
		},
		{
			name:    "module mismatch",
			mutate:  func(m *Message) {},
			module:  "bitfinex",
			wantErr: "does not match publisher",
		},
		{
			name:   "scalar tags accepted",
			mutate: func(m *Message) { m.Tags = Tags{"price": 1.5, "symbol": "tBTCUSD", "fresh": true, "n": 3} },
			module: "rss",
		},
		{
			name:    "non-scalar tag rejected",
			mutate:  func(m *Message) { m.Tags = Tags{"nested": map[string]any{"a": 1}} },
			module:  "rss",
			wantErr: "non-scalar",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			msg := validMessage()
			tt.mutate(&msg)
			err := msg.Validate(tt.module)
			if tt.wantErr == "" {
				assert.NoError(t, err)
			} else {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
			}
		})
	}
}

func TestMessageWireShape(t *testing.T) {
	msg := validMessage()
	msg.ContextRef = &ContextRef{OwnerModule: "rss", SourceKey: "example.com"}
	env := NewMessageCreated(msg)

	raw, err := json.Marshal(env)
	require.NoError(t, err)

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(raw, &decoded))
	assert.Equal(t, "MessageCreated", decoded["type"])

	inner, ok := decoded["message"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, msg.ID, inner["id"])
	assert.Equal(t, "hello", inner["message"])
	assert.Contains(t, inner, "createdAt")
	assert.Contains(t, inner, "realtime")

	ref, ok := inner["contextRef"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "rss", ref["ownerModule"])
	assert.Equal(t, "example.com", ref["sourceKey"])

	src, ok := inner["source"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "rss", src["module"])
	assert.Equal(t, "items", src["stream"])
}

func TestMessageRoundTrip(t *testing.T) {
	msg := validMessage()
	msg.Tags = Tags{"symbol": "tBTCUSD", "fresh": true}
	msg.Likes = 7

	raw, err := json.Marshal(NewMessageCreated(msg))
	require.NoError(t, err)

	var env MessageCreated
	require.NoError(t, json.Unmarshal(raw, &env))
	assert.Equal(t, msg.ID, env.Message.ID)
	assert.Equal(t, msg.Text, env.Message.Text)
	assert.Equal(t, 7, env.Message.Likes)
	assert.True(t, msg.CreatedAt.Equal(env.Message.CreatedAt))
	assert.Equal(t, "tBTCUSD", env.Message.Tags["symbol"])
	assert.Equal(t, true, env.Message.Tags["fresh"])
}

func TestTruncateSummary(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{name: "short stays", input: "brief", want: "brief"},
		{name: "exactly max stays", input: strings.Repeat("a", SummaryShortMax), want: strings.Repeat("a", SummaryShortMax)},
		{name: "long truncated", input: strings.Repeat("b", SummaryShortMax+40), want: strings.Repeat("b", SummaryShortMax)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := TruncateSummary(tt.input)
			assert.Equal(t, tt.want, got)
			assert.LessOrEqual(t, len([]rune(got)), SummaryShortMax)
		})
	}
}

func TestTruncateSummaryMultibyte(t *testing.T) {
	input := strings.Repeat("é", SummaryShortMax+10)
	got := TruncateSummary(input)
	assert.Equal(t, SummaryShortMax, len([]rune(got)))
}
