package store

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSchemaName(t *testing.T) {
	tests := []struct {
		name   string
		module string
		want   string
	}{
		{name: "plain module", module: "bitfinex", want: "mod_bitfinex"},
		{name: "dotted namespace", module: "social.mastodon", want: "mod_social_mastodon"},
		{name: "uppercase lowered", module: "Polymarket", want: "mod_polymarket"},
		{name: "unsafe characters collapse", module: "weird; module--name", want: "mod_weird_module_name"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, SchemaName(tt.module))
		})
	}
}

func TestVectorIndexName(t *testing.T) {
	qualified := vectorIndexName("mod_rss.embeddings", "embedding")
	assert.Equal(t, "mod_rss.embeddings_embedding_ivfflat", qualified.String())
	assert.Equal(t, "embeddings_embedding_ivfflat", qualified.unqualified())

	bare := vectorIndexName("bus_contexts", "embedding")
	assert.Equal(t, "bus_contexts_embedding_ivfflat", bare.String())
	assert.Equal(t, "bus_contexts_embedding_ivfflat", bare.unqualified())
}
