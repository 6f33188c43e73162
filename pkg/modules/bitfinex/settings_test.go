package bitfinex

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/feedeater/feedeater/pkg/settings"
)

func TestParseSettings(t *testing.T) {
	cfg, err := parseSettings(settings.Values{
		"symbols":           "tBTCUSD, tDOGE:USD",
		"candle_interval":   "5m",
		"book_depth":        "100",
		"snapshot_interval": "2m",
		"api_url":           "https://example.com/",
	})
	require.NoError(t, err)

	assert.Equal(t, []string{"tBTCUSD", "tDOGE:USD"}, cfg.Symbols)
	assert.Equal(t, 5*time.Minute, cfg.CandleInterval)
	assert.Equal(t, 100, cfg.BookDepth)
	assert.Equal(t, "wss://api-pub.bitfinex.com/ws/2", cfg.WSURL)
	assert.Equal(t, "https://example.com", cfg.APIURL, "trailing slash trimmed")
	assert.Equal(t, 2*time.Minute, cfg.SnapshotInterval)
}

func TestParseSettingsDefaults(t *testing.T) {
	cfg, err := parseSettings(settings.Values{"symbols": "tBTCUSD"})
	require.NoError(t, err)

	assert.Equal(t, time.Minute, cfg.CandleInterval)
	assert.Equal(t, 25, cfg.BookDepth)
	assert.Equal(t, minSnapshotInterval, cfg.SnapshotInterval)
	assert.Equal(t, "https://api-pub.bitfinex.com", cfg.APIURL)
}

func TestParseSettingsRejects(t *testing.T) {
	tests := []struct {
		name   string
		values settings.Values
		key    string
	}{
		{"missing symbols", settings.Values{}, "symbols"},
		{"malformed symbol", settings.Values{"symbols": "BTCUSD"}, "symbols"},
		{"lowercase symbol", settings.Values{"symbols": "tbtcusd"}, "symbols"},
		{
			"zero candle interval",
			settings.Values{"symbols": "tBTCUSD", "candle_interval": "0s"},
			"candle_interval",
		},
		{
			"unsupported depth",
			settings.Values{"symbols": "tBTCUSD", "book_depth": "50"},
			"book_depth",
		},
		{
			"non ws url",
			settings.Values{"symbols": "tBTCUSD", "ws_url": "https://api-pub.bitfinex.com"},
			"ws_url",
		},
		{
			"snapshot interval below floor",
			settings.Values{"symbols": "tBTCUSD", "snapshot_interval": "5s"},
			"snapshot_interval",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := parseSettings(tt.values)
			require.Error(t, err)

			var verr *settings.ValidationError
			require.ErrorAs(t, err, &verr)
			assert.Equal(t, tt.key, verr.Key)
		})
	}
}
