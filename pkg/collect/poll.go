package collect

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/feedeater/feedeater/pkg/bus"
)

// defaultRateLimitWait applies when a 429 arrives without a usable
// reset header.
const defaultRateLimitWait = 60 * time.Second

// maxResponseBytes bounds a single REST response body.
const maxResponseBytes = 16 << 20

// Fetcher issues rate-limit-aware REST calls for polling sweeps. It
// tracks the most recent quota headers and defers requests until reset
// once the advertised remaining quota hits zero. Owned by a single
// invocation.
type Fetcher struct {
	Client *http.Client
	Log    *bus.LogPublisher

	limitRemaining int
	limitReset     time.Time
	haveLimit      bool
}

// NewFetcher builds a fetcher with the given per-request timeout.
func (s *Session) NewFetcher(timeout time.Duration) *Fetcher {
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &Fetcher{
		Client: &http.Client{Timeout: timeout},
		Log:    s.Log,
	}
}

// GetJSON fetches url and decodes the response into out.
func (f *Fetcher) GetJSON(ctx context.Context, url string, out any) error {
	body, err := f.Get(ctx, url)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("failed to decode response from %s: %w", url, err)
	}
	return nil
}

// Get fetches url and returns the raw response body. 429s wait out the
// advertised reset (default 60s); transport errors and 5xx responses
// retry with backoff inside the budget carried by ctx.
func (f *Fetcher) Get(ctx context.Context, url string) ([]byte, error) {
	bo := NewBackoff(0)
	for attempt := 1; ; attempt++ {
		if err := f.waitForQuota(ctx); err != nil {
			return nil, err
		}

		body, retryAfter, err := f.do(ctx, url)
		if err == nil {
			return body, nil
		}
		if retryAfter < 0 || ctx.Err() != nil {
			return nil, err
		}

		wait := retryAfter
		if wait == 0 {
			wait = bo.NextBackOff()
		}
		httpRetriesTotal.Inc()
		f.warn("Request failed, retrying", map[string]any{
			"url": url, "attempt": attempt, "wait": wait.String(), "error": err.Error(),
		})
		if !sleepCtx(ctx, wait) {
			return nil, ctx.Err()
		}
	}
}

// do issues one request. retryAfter classifies the failure: negative
// means do not retry, zero means retry with backoff, positive means
// wait that long first.
func (f *Fetcher) do(ctx context.Context, url string) (body []byte, retryAfter time.Duration, err error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, -1, fmt.Errorf("failed to build request for %s: %w", url, err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := f.Client.Do(req)
	if err != nil {
		return nil, 0, err
	}
	defer func() { _ = resp.Body.Close() }()

	f.observeQuota(resp.Header)

	switch {
	case resp.StatusCode == http.StatusOK:
		body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
		if err != nil {
			return nil, 0, fmt.Errorf("failed to read response from %s: %w", url, err)
		}
		return body, 0, nil
	case resp.StatusCode == http.StatusTooManyRequests:
		rateLimitedTotal.Inc()
		wait := f.resetWait(resp.Header)
		if wait <= 0 {
			wait = defaultRateLimitWait
		}
		return nil, wait, fmt.Errorf("rate limited by %s", url)
	case resp.StatusCode >= 500:
		return nil, 0, fmt.Errorf("server error %d from %s", resp.StatusCode, url)
	default:
		return nil, -1, fmt.Errorf("unexpected status %d from %s", resp.StatusCode, url)
	}
}

// waitForQuota blocks until the advertised quota window resets.
func (f *Fetcher) waitForQuota(ctx context.Context) error {
	if !f.haveLimit || f.limitRemaining > 0 {
		return nil
	}
	wait := time.Until(f.limitReset)
	if wait <= 0 {
		f.haveLimit = false
		return nil
	}
	f.warn("Rate limit exhausted, waiting for reset", map[string]any{"wait": wait.String()})
	if !sleepCtx(ctx, wait) {
		return ctx.Err()
	}
	f.haveLimit = false
	return nil
}

func (f *Fetcher) observeQuota(h http.Header) {
	rem := headerValue(h, "Ratelimit-Remaining", "X-Ratelimit-Remaining")
	if rem == "" {
		return
	}
	n, err := strconv.Atoi(strings.TrimSpace(rem))
	if err != nil {
		return
	}
	f.limitRemaining = n
	f.limitReset = parseReset(h)
	f.haveLimit = !f.limitReset.IsZero() || n > 0
}

func (f *Fetcher) resetWait(h http.Header) time.Duration {
	reset := parseReset(h)
	if reset.IsZero() {
		return 0
	}
	return time.Until(reset)
}

// parseReset reads Ratelimit-Reset, accepting both delta seconds and
// epoch seconds. Anything above a year is treated as an epoch.
func parseReset(h http.Header) time.Time {
	v := headerValue(h, "Ratelimit-Reset", "X-Ratelimit-Reset")
	if v == "" {
		return time.Time{}
	}
	n, err := strconv.ParseInt(strings.TrimSpace(v), 10, 64)
	if err != nil {
		return time.Time{}
	}
	if n > 31_536_000 {
		return time.Unix(n, 0)
	}
	return time.Now().Add(time.Duration(n) * time.Second)
}

func headerValue(h http.Header, names ...string) string {
	for _, name := range names {
		if v := h.Get(name); v != "" {
			return v
		}
	}
	return ""
}

func (f *Fetcher) warn(msg string, meta map[string]any) {
	if f.Log != nil {
		f.Log.Warn(msg, meta)
	}
}
