package search

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

const (
	ProviderGoogleCSE = "google_cse"
	ProviderSerpAPI   = "serpapi"
	ProviderStub      = "stub"

	MaxSnippets = 5

	defaultGoogleURL  = "https://www.googleapis.com/customsearch/v1"
	defaultSerpAPIURL = "https://serpapi.com/search.json"
	defaultTimeout    = 15 * time.Second
)

var ErrUpstream = errors.New("search upstream error")

type Snippet struct {
	Title   string `json:"title"`
	Link    string `json:"link"`
	Snippet string `json:"snippet"`
}

type Response struct {
	Provider string    `json:"provider"`
	Query    string    `json:"q"`
	Snippets []Snippet `json:"snippets"`
}

type Config struct {
	Provider   string // google_cse (default) or serpapi
	GoogleKey  string
	GoogleCX   string
	SerpAPIKey string

	// Overridable endpoints, mostly for tests.
	GoogleURL  string
	SerpAPIURL string

	HTTPClient *http.Client
}

type Client struct {
	cfg  Config
	http *http.Client
}

func NewClient(cfg Config) *Client {
	cfg.Provider = strings.ToLower(strings.TrimSpace(cfg.Provider))
	if cfg.Provider == "" {
		cfg.Provider = ProviderGoogleCSE
	}
	if cfg.GoogleURL == "" {
		cfg.GoogleURL = defaultGoogleURL
	}
	if cfg.SerpAPIURL == "" {
		cfg.SerpAPIURL = defaultSerpAPIURL
	}
	hc := cfg.HTTPClient
	if hc == nil {
		hc = &http.Client{Timeout: defaultTimeout}
	}
	return &Client{cfg: cfg, http: hc}
}

func (c *Client) Provider() string { return c.cfg.Provider }

// Search never fails for missing credentials: it answers with a stub whose
// single snippet explains what to configure.
func (c *Client) Search(ctx context.Context, query string) (Response, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return Response{Provider: c.cfg.Provider, Query: query, Snippets: []Snippet{}}, nil
	}

	switch c.cfg.Provider {
	case ProviderGoogleCSE:
		if c.cfg.GoogleKey == "" || c.cfg.GoogleCX == "" {
			return stub(query, "Enable Google CSE",
				"Set GOOGLE_CSE_KEY and GOOGLE_CSE_CX (and SEARCH_PROVIDER=google_cse)."), nil
		}
		return c.google(ctx, query)

	case ProviderSerpAPI:
		if c.cfg.SerpAPIKey == "" {
			return stub(query, "Enable SerpAPI",
				"Set SERPAPI_API_KEY (and SEARCH_PROVIDER=serpapi)."), nil
		}
		return c.serpAPI(ctx, query)
	}

	return stub(query, "Unknown SEARCH_PROVIDER", "Use google_cse (recommended) or serpapi."), nil
}

func stub(query, title, hint string) Response {
	return Response{
		Provider: ProviderStub,
		Query:    query,
		Snippets: []Snippet{{Title: title, Link: "#", Snippet: hint}},
	}
}

func (c *Client) google(ctx context.Context, query string) (Response, error) {
	params := url.Values{}
	params.Set("q", query)
	params.Set("key", c.cfg.GoogleKey)
	params.Set("cx", c.cfg.GoogleCX)

	var body struct {
		Items []Snippet `json:"items"`
	}
	if err := c.getJSON(ctx, c.cfg.GoogleURL+"?"+params.Encode(), "google cse", &body); err != nil {
		return Response{}, err
	}
	return Response{Provider: ProviderGoogleCSE, Query: query, Snippets: limit(body.Items)}, nil
}

func (c *Client) serpAPI(ctx context.Context, query string) (Response, error) {
	params := url.Values{}
	params.Set("engine", "google")
	params.Set("q", query)
	params.Set("api_key", c.cfg.SerpAPIKey)

	var body struct {
		OrganicResults []Snippet `json:"organic_results"`
	}
	if err := c.getJSON(ctx, c.cfg.SerpAPIURL+"?"+params.Encode(), "serpapi", &body); err != nil {
		return Response{}, err
	}
	return Response{Provider: ProviderSerpAPI, Query: query, Snippets: limit(body.OrganicResults)}, nil
}

func (c *Client) getJSON(ctx context.Context, u, name string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return fmt.Errorf("build %s request: %w", name, err)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s request: %w", name, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		details, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("%w: %s status %d: %s", ErrUpstream, name, resp.StatusCode, strings.TrimSpace(string(details)))
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s response: %w", name, err)
	}
	return nil
}

func limit(in []Snippet) []Snippet {
	if len(in) > MaxSnippets {
		in = in[:MaxSnippets]
	}
	if in == nil {
		return []Snippet{}
	}
	return in
}
