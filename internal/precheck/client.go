// Package precheck talks to an external header-validation service. The
// reconciliation engine hands it a reduced document for a fast remote
// sanity check before running the full line pass locally.
package precheck

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/rezonia/peppol-validator/internal/model"
)

const DefaultTimeout = 10 * time.Second

// Client submits documents to a pre-check endpoint.
type Client struct {
	endpoint   string
	httpClient *http.Client
}

// ClientOption configures the client
type ClientOption func(*clientConfig)

type clientConfig struct {
	timeout    time.Duration
	httpClient *http.Client
}

// WithTimeout sets a custom HTTP timeout
func WithTimeout(timeout time.Duration) ClientOption {
	return func(cfg *clientConfig) {
		cfg.timeout = timeout
	}
}

// WithHTTPClient replaces the underlying HTTP client entirely. A client
// passed here wins over WithTimeout.
func WithHTTPClient(c *http.Client) ClientOption {
	return func(cfg *clientConfig) {
		cfg.httpClient = c
	}
}

// NewClient creates a pre-check client for the given endpoint URL.
func NewClient(endpoint string, opts ...ClientOption) *Client {
	cfg := &clientConfig{timeout: DefaultTimeout}
	for _, opt := range opts {
		opt(cfg)
	}

	httpClient := cfg.httpClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: cfg.timeout}
	}

	return &Client{
		endpoint:   endpoint,
		httpClient: httpClient,
	}
}

// checkResponse is the service's wire shape.
type checkResponse struct {
	Success bool     `json:"success"`
	Errors  []string `json:"errors"`
}

// Check posts the document and reports whether the service accepted it.
// Findings come back verbatim; transport and decode failures are errors
// so the caller can fall through to its own checks.
func (c *Client) Check(ctx context.Context, xml []byte) (bool, []string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(xml))
	if err != nil {
		return false, nil, model.NewInputError("precheck", "building request", err)
	}
	req.Header.Set("Content-Type", "application/xml")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return false, nil, fmt.Errorf("precheck request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return false, nil, fmt.Errorf("precheck response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return false, nil, fmt.Errorf("precheck service returned status %d", resp.StatusCode)
	}

	var parsed checkResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return false, nil, fmt.Errorf("precheck response: %w", err)
	}
	return parsed.Success, parsed.Errors, nil
}
