// Package llm holds the clients for the hosted query-refinement and
// answer-generation services.
package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/dgallion1/docrag/internal/ragerr"
)

const maxResponseBytes = 1 << 20

// Config describes one hosted endpoint.
type Config struct {
	URL     string
	APIKey  string
	Timeout time.Duration
	Stats   *Stats // optional latency window
}

// endpoint posts JSON to a single URL with bearer auth.
type endpoint struct {
	url        string
	apiKey     string
	httpClient *http.Client
	stats      *Stats
}

func newEndpoint(cfg Config) endpoint {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 120 * time.Second
	}
	return endpoint{
		url:        cfg.URL,
		apiKey:     cfg.APIKey,
		httpClient: &http.Client{Timeout: timeout},
		stats:      cfg.Stats,
	}
}

// post sends in and decodes the response into out. Failures are tagged
// with kind so callers see a typed error.
func (e endpoint) post(ctx context.Context, kind ragerr.Kind, op string, in, out any) (err error) {
	start := time.Now()
	defer func() { e.stats.Observe(start, err) }()

	body, err := json.Marshal(in)
	if err != nil {
		return &ragerr.Error{Kind: kind, Op: op, Err: fmt.Errorf("marshal request: %w", err)}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.url, bytes.NewReader(body))
	if err != nil {
		return &ragerr.Error{Kind: kind, Op: op, Err: fmt.Errorf("create request: %w", err)}
	}
	req.Header.Set("Content-Type", "application/json")
	if e.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+e.apiKey)
	}

	resp, err := e.httpClient.Do(req)
	if err != nil {
		return &ragerr.Error{Kind: kind, Op: op, Err: err}
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return &ragerr.Error{Kind: kind, Op: op, Err: fmt.Errorf("read response: %w", err)}
	}
	if resp.StatusCode != http.StatusOK {
		return ragerr.Upstream(kind, op, resp.StatusCode, string(respBody))
	}
	if err := json.Unmarshal(respBody, out); err != nil {
		return &ragerr.Error{Kind: kind, Op: op, Err: fmt.Errorf("decode response: %w", err)}
	}
	return nil
}

func (e endpoint) close() {
	e.httpClient.CloseIdleConnections()
}
