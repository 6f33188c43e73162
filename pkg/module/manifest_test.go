package module

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validManifest() Manifest {
	return Manifest{
		Name:   "bitfinex",
		Queues: []string{"stream", "contexts"},
		Jobs: []Job{
			{Name: "stream", Queue: "stream", Schedule: "* * * * *", TriggerClass: "stream"},
			{Name: "updateContexts", Queue: "contexts", Schedule: "*/30 * * * *", TriggerClass: "contexts"},
		},
		Settings: []SettingDecl{
			{Key: "symbols", Type: SettingString, Default: "tBTCUSD"},
			{Key: "api_key", Type: SettingSecret},
		},
	}
}

func TestManifestValidate(t *testing.T) {
	m := validManifest()
	require.NoError(t, m.Validate())
}

func TestManifestValidateRejections(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Manifest)
		wantErr string
	}{
		{
			name:    "dotted name breaks subjects",
			mutate:  func(m *Manifest) { m.Name = "bit.finex" },
			wantErr: "must match",
		},
		{
			name:    "uppercase name",
			mutate:  func(m *Manifest) { m.Name = "Bitfinex" },
			wantErr: "must match",
		},
		{
			name:    "empty name",
			mutate:  func(m *Manifest) { m.Name = "" },
			wantErr: "must match",
		},
		{
			name:    "duplicate queue",
			mutate:  func(m *Manifest) { m.Queues = []string{"stream", "stream"} },
			wantErr: `queue "stream" twice`,
		},
		{
			name:    "duplicate job",
			mutate:  func(m *Manifest) { m.Jobs[1].Name = "stream" },
			wantErr: `job "stream" twice`,
		},
		{
			name:    "job without declared queue",
			mutate:  func(m *Manifest) { m.Jobs[0].Queue = "ghost" },
			wantErr: `undeclared queue "ghost"`,
		},
		{
			name:    "duplicate setting",
			mutate:  func(m *Manifest) { m.Settings[1].Key = "symbols" },
			wantErr: `setting "symbols" twice`,
		},
		{
			name:    "unknown setting type",
			mutate:  func(m *Manifest) { m.Settings[0].Type = "json" },
			wantErr: "unknown type",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := validManifest()
			tt.mutate(&m)
			err := m.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestSettingDefaults(t *testing.T) {
	m := validManifest()
	defaults := m.SettingDefaults()

	assert.Equal(t, map[string]string{"symbols": "tBTCUSD"}, defaults)
}

func TestSecretKeys(t *testing.T) {
	m := validManifest()
	secrets := m.SecretKeys()

	assert.True(t, secrets["api_key"])
	assert.False(t, secrets["symbols"])
}

func TestRegistryAdd(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.Add(&stubModule{manifest: validManifest()}))

	got, err := r.Get("bitfinex")
	require.NoError(t, err)
	assert.Equal(t, "bitfinex", got.Manifest().Name)

	_, err = r.Get("ghost")
	assert.ErrorIs(t, err, ErrUnknownModule)
}

func TestRegistryRejectsDuplicates(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.Add(&stubModule{manifest: validManifest()}))

	err := r.Add(&stubModule{manifest: validManifest()})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "registered twice")
}

func TestRegistryPreservesOrder(t *testing.T) {
	r := NewRegistry()
	for _, name := range []string{"rss", "bitfinex", "polymarket"} {
		m := Manifest{Name: name}
		require.NoError(t, r.Add(&stubModule{manifest: m}))
	}

	var names []string
	for _, m := range r.All() {
		names = append(names, m.Manifest().Name)
	}
	assert.Equal(t, []string{"rss", "bitfinex", "polymarket"}, names)
}

type stubModule struct {
	manifest Manifest
}

func (s *stubModule) Manifest() Manifest                        { return s.manifest }
func (s *stubModule) EnsureSchema(context.Context, *Deps) error { return nil }
func (s *stubModule) Jobs() map[string]JobFunc                  { return nil }
