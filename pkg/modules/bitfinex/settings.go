package bitfinex

import (
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/feedeater/feedeater/pkg/settings"
)

const minSnapshotInterval = 60 * time.Second

var symbolPattern = regexp.MustCompile(`^t[A-Z0-9]{2,}(:[A-Z0-9]{2,})?$`)

// Settings is the typed view of the module's configuration.
type Settings struct {
	Symbols          []string
	CandleInterval   time.Duration
	BookDepth        int
	WSURL            string
	APIURL           string
	SnapshotInterval time.Duration
}

func parseSettings(v settings.Values) (Settings, error) {
	symbols := v.StringSlice("symbols")
	if len(symbols) == 0 {
		return Settings{}, settings.NewValidationError("symbols", "required setting is missing")
	}
	for _, sym := range symbols {
		if !symbolPattern.MatchString(sym) {
			return Settings{}, settings.NewValidationError("symbols", fmt.Sprintf("not a trading pair symbol: %q", sym))
		}
	}

	interval := v.Duration("candle_interval", time.Minute)
	if interval <= 0 {
		return Settings{}, settings.NewValidationError("candle_interval", "must be positive")
	}

	depth := v.Int("book_depth", 25)
	switch depth {
	case 1, 25, 100, 250:
	default:
		return Settings{}, settings.NewValidationError("book_depth", fmt.Sprintf("must be 1, 25, 100, or 250, got %d", depth))
	}

	wsURL := v.String("ws_url", "wss://api-pub.bitfinex.com/ws/2")
	if !strings.HasPrefix(wsURL, "ws://") && !strings.HasPrefix(wsURL, "wss://") {
		return Settings{}, settings.NewValidationError("ws_url", fmt.Sprintf("not a ws(s) URL: %q", wsURL))
	}

	snapshotInterval := v.Duration("snapshot_interval", minSnapshotInterval)
	if snapshotInterval < minSnapshotInterval {
		return Settings{}, settings.NewValidationError("snapshot_interval",
			fmt.Sprintf("must be at least %s, got %s", minSnapshotInterval, snapshotInterval))
	}

	return Settings{
		Symbols:          symbols,
		CandleInterval:   interval,
		BookDepth:        depth,
		WSURL:            wsURL,
		APIURL:           strings.TrimRight(v.String("api_url", "https://api-pub.bitfinex.com"), "/"),
		SnapshotInterval: snapshotInterval,
	}, nil
}
