// Package ai is the HTTP client for the external summarizer/embedder
// service. The service wraps a local model runtime; this client only
// speaks its REST surface.
package ai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"
)

// requestTimeout bounds one AI call. Summarization of a full prompt can
// take tens of seconds on a busy model host.
const requestTimeout = 60 * time.Second

// Client calls the AI service. The base URL comes from
// FEED_API_BASE_URL, the bearer token from FEED_INTERNAL_TOKEN.
type Client struct {
	baseURL string
	token   string
	httpc   *http.Client
}

// NewClientFromEnv builds the client from the environment.
func NewClientFromEnv() (*Client, error) {
	base := os.Getenv("FEED_API_BASE_URL")
	if base == "" {
		return nil, fmt.Errorf("FEED_API_BASE_URL is not set")
	}
	return NewClient(base, os.Getenv("FEED_INTERNAL_TOKEN")), nil
}

// NewClient builds a client against an explicit base URL.
func NewClient(baseURL, token string) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
		httpc:   &http.Client{Timeout: requestTimeout},
	}
}

// Summary is a structured summarization result.
type Summary struct {
	Short     string
	Long      string
	KeyPoints []string
	TokenRate float64
}

type summarizeRequest struct {
	Prompt string `json:"prompt"`
	Format string `json:"format"`
}

type summarizeResponse struct {
	Text            string  `json:"text"`
	TokensPerSecond float64 `json:"tokens_per_second,omitempty"`
}

type structuredSummary struct {
	SummaryShort string   `json:"summary_short"`
	SummaryLong  string   `json:"summary_long"`
	KeyPoints    []string `json:"key_points,omitempty"`
}

// SummarizeJSON requests a structured summary and parses the model
// output as JSON. Callers fall back to SummarizeText when the model
// fails to produce parseable output.
func (c *Client) SummarizeJSON(ctx context.Context, prompt string) (Summary, error) {
	var resp summarizeResponse
	if err := c.post(ctx, "/v1/summarize", summarizeRequest{Prompt: prompt, Format: "json"}, &resp); err != nil {
		return Summary{}, err
	}

	var parsed structuredSummary
	if err := json.Unmarshal([]byte(stripFences(resp.Text)), &parsed); err != nil {
		return Summary{}, fmt.Errorf("failed to parse structured summary: %w", err)
	}
	if parsed.SummaryShort == "" && parsed.SummaryLong == "" {
		return Summary{}, fmt.Errorf("structured summary is empty")
	}

	return Summary{
		Short:     parsed.SummaryShort,
		Long:      parsed.SummaryLong,
		KeyPoints: parsed.KeyPoints,
		TokenRate: resp.TokensPerSecond,
	}, nil
}

// SummarizeText requests a plain-text summary.
func (c *Client) SummarizeText(ctx context.Context, prompt string) (string, float64, error) {
	var resp summarizeResponse
	if err := c.post(ctx, "/v1/summarize", summarizeRequest{Prompt: prompt, Format: "text"}, &resp); err != nil {
		return "", 0, err
	}
	text := strings.TrimSpace(resp.Text)
	if text == "" {
		return "", 0, fmt.Errorf("summarizer returned empty text")
	}
	return text, resp.TokensPerSecond, nil
}

type embedRequest struct {
	Input string `json:"input"`
}

type embedResponse struct {
	Embedding       []float32 `json:"embedding"`
	TokensPerSecond float64   `json:"tokens_per_second,omitempty"`
}

// Embed returns the embedding vector for text.
func (c *Client) Embed(ctx context.Context, text string) ([]float32, float64, error) {
	var resp embedResponse
	if err := c.post(ctx, "/v1/embeddings", embedRequest{Input: text}, &resp); err != nil {
		return nil, 0, err
	}
	if len(resp.Embedding) == 0 {
		return nil, 0, fmt.Errorf("embedder returned empty vector")
	}
	return resp.Embedding, resp.TokensPerSecond, nil
}

func (c *Client) post(ctx context.Context, path string, in, out any) error {
	payload, err := json.Marshal(in)
	if err != nil {
		return fmt.Errorf("failed to marshal request for %s: %w", path, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("failed to build request for %s: %w", path, err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.httpc.Do(req)
	if err != nil {
		return fmt.Errorf("ai service request to %s failed: %w", path, err)
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return fmt.Errorf("failed to read ai service response from %s: %w", path, err)
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("ai service returned %d from %s: %s", resp.StatusCode, path, snippet(body))
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("failed to decode ai service response from %s: %w", path, err)
	}
	return nil
}

// stripFences removes a markdown code fence around model output, with
// or without a language marker.
func stripFences(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}

func snippet(body []byte) string {
	const max = 200
	s := strings.TrimSpace(string(body))
	if len(s) > max {
		return s[:max] + "..."
	}
	return s
}
