// Package provider talks to the hosted conversational-AI agent platform to
// mint short-lived session credentials for the client SDK.
package provider

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// ErrMissingAPIKey is returned when no server-side API key is configured.
var ErrMissingAPIKey = errors.New("provider: API key not configured")

// ErrMissingAgentID is returned when a credential is requested without an agent.
var ErrMissingAgentID = errors.New("provider: agent id is required")

// apiKeyHeader carries the server-held key on every request.
const apiKeyHeader = "xi-api-key"

// maxErrorBody caps how much of an error response is kept for passthrough.
const maxErrorBody = 64 << 10

// StatusError reports a non-2xx response from the provider. Body is the raw
// response text.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("provider: status %d: %s", e.StatusCode, e.Body)
}

// Credentials mints session credentials for an agent. The API layer depends
// on this interface so tests can substitute a fake.
type Credentials interface {
	SignedURL(ctx context.Context, agentID string) (string, error)
	ConversationToken(ctx context.Context, agentID string) (string, error)
}

// Client is an HTTP client for the ElevenLabs Conversational AI API.
type Client struct {
	baseURL string
	apiKey  string
	http    *http.Client
}

// ClientOpts holds parameters for creating a Client.
type ClientOpts struct {
	BaseURL    string
	APIKey     string
	Timeout    time.Duration // per request; zero means no client-side limit
	HTTPClient *http.Client  // optional; overrides Timeout
}

// NewClient creates a Client. A missing API key is not an error here; calls
// fail with ErrMissingAPIKey so the server can still start.
func NewClient(opts ClientOpts) *Client {
	hc := opts.HTTPClient
	if hc == nil {
		hc = &http.Client{Timeout: opts.Timeout}
	}
	return &Client{
		baseURL: strings.TrimSuffix(opts.BaseURL, "/"),
		apiKey:  opts.APIKey,
		http:    hc,
	}
}

// SignedURL returns a signed WebSocket URL for the agent.
func (c *Client) SignedURL(ctx context.Context, agentID string) (string, error) {
	var body struct {
		SignedURL string `json:"signed_url"`
	}
	if err := c.get(ctx, "/v1/convai/conversation/get-signed-url", agentID, &body); err != nil {
		return "", err
	}
	if body.SignedURL == "" {
		return "", fmt.Errorf("provider: signed url missing from response")
	}
	return body.SignedURL, nil
}

// ConversationToken returns a WebRTC conversation token for the agent.
func (c *Client) ConversationToken(ctx context.Context, agentID string) (string, error) {
	var body struct {
		Token string `json:"token"`
	}
	if err := c.get(ctx, "/v1/convai/conversation/token", agentID, &body); err != nil {
		return "", err
	}
	if body.Token == "" {
		return "", fmt.Errorf("provider: token missing from response")
	}
	return body.Token, nil
}

func (c *Client) get(ctx context.Context, path, agentID string, out interface{}) error {
	if c.apiKey == "" {
		return ErrMissingAPIKey
	}
	if agentID == "" {
		return ErrMissingAgentID
	}

	u := c.baseURL + path + "?" + url.Values{"agent_id": {agentID}}.Encode()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return fmt.Errorf("provider: creating request: %w", err)
	}
	req.Header.Set(apiKeyHeader, c.apiKey)
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("provider: GET %s: %w", path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		text, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return &StatusError{StatusCode: resp.StatusCode, Body: string(text)}
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("provider: decoding %s response: %w", path, err)
	}
	return nil
}
