package listenbrainz

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"scrobbled/internal/config"
	"scrobbled/internal/logging"
)

// Submitter delivers a single listen event.
type Submitter interface {
	SubmitListen(ctx context.Context, listen Listen) error
	Configured() bool
}

// Client talks to the ListenBrainz submission API.
type Client struct {
	baseURL    string
	token      string
	httpClient *http.Client
	logger     *slog.Logger
}

var _ Submitter = (*Client)(nil)

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient overrides the default HTTP client.
func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) {
		if client != nil {
			c.httpClient = client
		}
	}
}

// New creates a ListenBrainz client. A missing token is not an error;
// the delivery loop pauses until one is configured.
func New(cfg config.ListenBrainz, logger *slog.Logger, opts ...Option) (*Client, error) {
	baseURL := strings.TrimSpace(cfg.BaseURL)
	if baseURL == "" {
		return nil, errors.New("listenbrainz base url required")
	}

	timeout := time.Duration(cfg.TimeoutSeconds) * time.Second
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	client := &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		token:      strings.TrimSpace(cfg.Token),
		httpClient: &http.Client{Timeout: timeout},
		logger:     logging.NewComponentLogger(logger, "listenbrainz"),
	}
	for _, opt := range opts {
		opt(client)
	}
	return client, nil
}

// Configured reports whether a submission token is present.
func (c *Client) Configured() bool {
	return c.token != ""
}

// SubmitListen posts one listen as a single-type submission. Any non-2xx
// response is a delivery failure.
func (c *Client) SubmitListen(ctx context.Context, listen Listen) error {
	if !c.Configured() {
		return errors.New("no listenbrainz token configured")
	}

	body, err := json.Marshal(submitRequest{
		ListenType: "single",
		Payload:    []Listen{listen},
	})
	if err != nil {
		return fmt.Errorf("encode listen: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/1/submit-listens", bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Authorization", "Token "+c.token)
	req.Header.Set("Content-Type", "application/json")

	requestStart := time.Now()
	resp, err := c.httpClient.Do(req)
	latency := time.Since(requestStart)
	if err != nil {
		return fmt.Errorf("execute request (latency=%v): %w", latency, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("listen submission returned %d (latency=%v)", resp.StatusCode, latency)
	}

	c.logger.Debug("listen submitted",
		logging.String("track", listen.TrackMetadata.TrackName),
		logging.Duration("latency", latency))
	return nil
}

// ValidateToken checks the configured token against the API and returns
// the account name it belongs to.
func (c *Client) ValidateToken(ctx context.Context) (bool, string, error) {
	if !c.Configured() {
		return false, "", errors.New("no listenbrainz token configured")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/1/validate-token", nil)
	if err != nil {
		return false, "", fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Authorization", "Token "+c.token)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return false, "", fmt.Errorf("execute request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return false, "", fmt.Errorf("token validation returned %d", resp.StatusCode)
	}

	var payload validateTokenResponse
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return false, "", fmt.Errorf("decode validation response: %w", err)
	}
	return payload.Valid, payload.UserName, nil
}
