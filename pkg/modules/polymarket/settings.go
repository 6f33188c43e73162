package polymarket

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/feedeater/feedeater/pkg/settings"
)

const (
	defaultGammaURL       = "https://gamma-api.polymarket.com"
	defaultDataURL        = "https://data-api.polymarket.com"
	defaultMarketsLimit   = 50
	defaultTradesLimit    = 100
	defaultRequestTimeout = 15 * time.Second
)

// Settings is the typed view of the module's configuration.
type Settings struct {
	APIURL         string
	DataAPIURL     string
	MarketsLimit   int
	TradesLimit    int
	MinVolume      float64
	RequestTimeout time.Duration
	ContextTopK    int
}

func parseSettings(v settings.Values) (Settings, error) {
	apiURL, err := baseURL(v.String("api_url", defaultGammaURL), "api_url")
	if err != nil {
		return Settings{}, err
	}
	dataURL, err := baseURL(v.String("data_api_url", defaultDataURL), "data_api_url")
	if err != nil {
		return Settings{}, err
	}

	marketsLimit := v.Int("markets_limit", defaultMarketsLimit)
	if marketsLimit <= 0 {
		return Settings{}, settings.NewValidationError("markets_limit", fmt.Sprintf("must be positive, got %d", marketsLimit))
	}
	tradesLimit := v.Int("trades_limit", defaultTradesLimit)
	if tradesLimit <= 0 {
		return Settings{}, settings.NewValidationError("trades_limit", fmt.Sprintf("must be positive, got %d", tradesLimit))
	}
	minVolume := v.Float("min_volume", 0)
	if minVolume < 0 {
		return Settings{}, settings.NewValidationError("min_volume", "must not be negative")
	}

	timeout := v.Duration("request_timeout", defaultRequestTimeout)
	if timeout <= 0 {
		return Settings{}, settings.NewValidationError("request_timeout", "must be positive")
	}

	topK := v.Int("context_top_k", 0)
	if topK < 0 {
		return Settings{}, settings.NewValidationError("context_top_k", fmt.Sprintf("must not be negative, got %d", topK))
	}

	return Settings{
		APIURL:         apiURL,
		DataAPIURL:     dataURL,
		MarketsLimit:   marketsLimit,
		TradesLimit:    tradesLimit,
		MinVolume:      minVolume,
		RequestTimeout: timeout,
		ContextTopK:    topK,
	}, nil
}

func baseURL(raw, key string) (string, error) {
	parsed, err := url.Parse(raw)
	if err != nil || parsed.Host == "" || (parsed.Scheme != "http" && parsed.Scheme != "https") {
		return "", settings.NewValidationError(key, fmt.Sprintf("not an http(s) URL: %q", raw))
	}
	return strings.TrimRight(raw, "/"), nil
}
