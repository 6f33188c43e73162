package rss

import (
	"fmt"
	"net/url"
	"time"

	"github.com/feedeater/feedeater/pkg/settings"
)

const defaultRequestTimeout = 15 * time.Second

// Settings is the typed view of the module's configuration.
type Settings struct {
	FeedURLs        []string
	RequestTimeout  time.Duration
	ContextTopK     int
	ContextLookback time.Duration
}

func parseSettings(v settings.Values) (Settings, error) {
	urls := v.StringSlice("feed_urls")
	if len(urls) == 0 {
		return Settings{}, settings.NewValidationError("feed_urls", "required setting is missing")
	}
	for _, u := range urls {
		parsed, err := url.Parse(u)
		if err != nil || parsed.Host == "" || (parsed.Scheme != "http" && parsed.Scheme != "https") {
			return Settings{}, settings.NewValidationError("feed_urls", fmt.Sprintf("not an http(s) URL: %q", u))
		}
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
		FeedURLs:        urls,
		RequestTimeout:  timeout,
		ContextTopK:     topK,
		ContextLookback: v.Duration("context_lookback", 0),
	}, nil
}
