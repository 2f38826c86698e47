package relay

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

	"golang.org/x/oauth2"
)

var (
	ErrBaseURLMissing = errors.New("AIPIPE_BASE_URL missing")
	ErrUpstream       = errors.New("AI Pipe error")
)

const maxResponseBytes = 4 << 20

type Client struct {
	baseURL string
	http    *http.Client
}

// NewClient authenticates with a static bearer token when apiKey is set.
func NewClient(ctx context.Context, baseURL, apiKey string, timeout time.Duration) *Client {
	var hc *http.Client
	if apiKey != "" {
		ts := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: apiKey})
		hc = oauth2.NewClient(ctx, ts)
	} else {
		hc = &http.Client{}
	}
	hc.Timeout = timeout

	return &Client{
		baseURL: strings.TrimSuffix(strings.TrimSpace(baseURL), "/"),
		http:    hc,
	}
}

func (c *Client) Configured() bool { return c.baseURL != "" }

// Post forwards payload verbatim to baseURL+path and passes the JSON
// response back unchanged.
func (c *Client) Post(ctx context.Context, path string, payload map[string]any) (json.RawMessage, error) {
	if c.baseURL == "" {
		return nil, ErrBaseURLMissing
	}
	if payload == nil {
		payload = map[string]any{}
	}
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("aipipe request: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, fmt.Errorf("read aipipe response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("%w: status %d: %s", ErrUpstream, resp.StatusCode, strings.TrimSpace(string(data)))
	}
	if !json.Valid(data) {
		return nil, fmt.Errorf("%w: response is not JSON", ErrUpstream)
	}
	return json.RawMessage(data), nil
}
