// Package rerank holds HTTP clients for remote relevance scoring models.
package rerank

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/tidwall/gjson"
)

// ErrBadResponse signals a response that cannot be mapped onto the inputs.
var ErrBadResponse = errors.New("bad rerank response")

const maxResponseBytes = 8 << 20

// Config holds the endpoint settings shared by both clients.
type Config struct {
	BaseURL string
	Model   string
	APIKey  string
	// BatchSize caps the pairs per /predict call. Ignored by CrossEncoder.
	BatchSize  int
	HTTPClient *http.Client
}

type client struct {
	baseURL string
	apiKey  string
	http    *http.Client
}

func newClient(cfg Config) client {
	hc := cfg.HTTPClient
	if hc == nil {
		hc = &http.Client{Timeout: 30 * time.Second}
	}
	return client{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:  cfg.APIKey,
		http:    hc,
	}
}

func (c client) post(ctx context.Context, path string, payload any) ([]byte, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("POST %s: %w", path, err)
	}
	defer func() { _ = resp.Body.Close() }()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, fmt.Errorf("read %s response: %w", path, err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("POST %s: status %d: %s", path, resp.StatusCode, snippet(data))
	}
	if !gjson.ValidBytes(data) {
		return nil, fmt.Errorf("POST %s: invalid JSON: %w", path, ErrBadResponse)
	}
	return data, nil
}

func snippet(b []byte) string {
	const n = 200
	if len(b) > n {
		return string(b[:n]) + "..."
	}
	return string(b)
}
