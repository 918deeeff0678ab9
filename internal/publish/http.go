// ABOUTME: Shared HTTP plumbing for the platform adapters
// ABOUTME: Classifies response codes into transient vs permanent failures

package publish

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/2389/beacon/internal/retry"
)

const defaultHTTPTimeout = 30 * time.Second

// AdapterOption configures the built-in adapters.
type AdapterOption func(*adapterConfig)

type adapterConfig struct {
	httpClient *http.Client
	graphBase  string
	liBase     string
}

// WithHTTPClient overrides the HTTP client (tests point it at a fake server).
func WithHTTPClient(c *http.Client) AdapterOption {
	return func(cfg *adapterConfig) { cfg.httpClient = c }
}

// WithGraphBaseURL overrides the Facebook/Instagram Graph API base URL.
func WithGraphBaseURL(base string) AdapterOption {
	return func(cfg *adapterConfig) { cfg.graphBase = strings.TrimRight(base, "/") }
}

// WithLinkedInBaseURL overrides the LinkedIn API base URL.
func WithLinkedInBaseURL(base string) AdapterOption {
	return func(cfg *adapterConfig) { cfg.liBase = strings.TrimRight(base, "/") }
}

func newAdapterConfig(opts ...AdapterOption) adapterConfig {
	cfg := adapterConfig{
		httpClient: &http.Client{Timeout: defaultHTTPTimeout},
		graphBase:  "https://graph.facebook.com/v18.0",
		liBase:     "https://api.linkedin.com/v2",
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	return cfg
}

// postForm sends a form POST and decodes the JSON body.
// 429 and 5xx responses are transient, other 4xx permanent.
func (cfg *adapterConfig) postForm(ctx context.Context, endpoint string, form url.Values, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint,
		strings.NewReader(form.Encode()))
	if err != nil {
		return retry.Permanent(fmt.Errorf("building request: %w", err))
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	return cfg.send(req, out)
}

// postJSON sends a JSON POST with a bearer token and decodes the JSON body.
func (cfg *adapterConfig) postJSON(ctx context.Context, endpoint, token string, payload, out any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return retry.Permanent(fmt.Errorf("encoding payload: %w", err))
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint,
		strings.NewReader(string(body)))
	if err != nil {
		return retry.Permanent(fmt.Errorf("building request: %w", err))
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+token)
	return cfg.send(req, out)
}

func (cfg *adapterConfig) send(req *http.Request, out any) error {
	resp, err := cfg.httpClient.Do(req)
	if err != nil {
		return retry.Transient(fmt.Errorf("delivery: %w", err))
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return retry.Transient(fmt.Errorf("reading response: %w", err))
	}

	if resp.StatusCode >= 400 {
		err := fmt.Errorf("HTTP %d: %s", resp.StatusCode, summarize(data))
		if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
			return retry.Transient(err)
		}
		return retry.Permanent(err)
	}

	if out != nil && len(data) > 0 {
		if err := json.Unmarshal(data, out); err != nil {
			return retry.Permanent(fmt.Errorf("decoding response: %w", err))
		}
	}
	return nil
}

// summarize keeps error payloads short enough for a diagnostic field.
func summarize(data []byte) string {
	s := strings.TrimSpace(string(data))
	if len(s) > 200 {
		s = s[:200] + "..."
	}
	return s
}
