package provider

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"curator/internal/config"
)

// Credit is a staff credit on a work. Role may be empty when the source
// omits it.
type Credit struct {
	Name string `json:"name"`
	Role string `json:"role"`
}

// CharacterCredit pairs a character with its optional voice actor.
type CharacterCredit struct {
	Name       string `json:"name"`
	VoiceActor string `json:"voice_actor"`
}

// WorkPayload is the authoritative record an external source holds for one
// identity. Related-entity slices may be empty; Extra carries source-specific
// attributes verbatim.
type WorkPayload struct {
	ID         string            `json:"id"`
	Title      string            `json:"title"`
	Studios    []string          `json:"studios"`
	Staff      []Credit          `json:"staff"`
	Characters []CharacterCredit `json:"characters"`
	Extra      map[string]string `json:"extra"`
}

// SearchResult is a single candidate identity returned by a source search.
type SearchResult struct {
	ID    string `json:"id"`
	Title string `json:"title"`
}

// Client defines the external identity source operations the pipeline uses.
type Client interface {
	SourceType() string
	Search(ctx context.Context, query string) ([]SearchResult, error)
	Lookup(ctx context.Context, sourceID string) (*WorkPayload, error)
}

// HTTPClient talks to an identity source over its HTTP API.
type HTTPClient struct {
	sourceType string
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

var _ Client = (*HTTPClient)(nil)

// Option configures an HTTPClient.
type Option func(*HTTPClient)

// WithHTTPClient overrides the default HTTP client.
func WithHTTPClient(client *http.Client) Option {
	return func(c *HTTPClient) {
		if client != nil {
			c.httpClient = client
		}
	}
}

// New creates a source client.
func New(sourceType, baseURL, apiKey string, timeout time.Duration, opts ...Option) (*HTTPClient, error) {
	sourceType = strings.TrimSpace(sourceType)
	if sourceType == "" {
		return nil, errors.New("source type required")
	}
	baseURL = strings.TrimSpace(baseURL)
	if baseURL == "" {
		return nil, errors.New("source base url required")
	}
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	client := &HTTPClient{
		sourceType: sourceType,
		baseURL:    strings.TrimRight(baseURL, "/"),
		apiKey:     strings.TrimSpace(apiKey),
		httpClient: &http.Client{Timeout: timeout},
	}
	for _, opt := range opts {
		opt(client)
	}
	return client, nil
}

// NewFromConfig creates a source client from the provider configuration
// section.
func NewFromConfig(cfg config.Provider, opts ...Option) (*HTTPClient, error) {
	return New(cfg.SourceType, cfg.BaseURL, cfg.APIKey, time.Duration(cfg.TimeoutSeconds)*time.Second, opts...)
}

// SourceType reports the namespace this client's identifiers live in.
func (c *HTTPClient) SourceType() string {
	return c.sourceType
}

// Search queries the source for identities matching a free-form title.
func (c *HTTPClient) Search(ctx context.Context, query string) ([]SearchResult, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, errors.New("query must not be empty")
	}
	endpoint, err := url.Parse(c.baseURL + "/entries")
	if err != nil {
		return nil, fmt.Errorf("parse source url: %w", err)
	}
	params := url.Values{}
	params.Set("query", query)
	if c.apiKey != "" {
		params.Set("api_key", c.apiKey)
	}
	endpoint.RawQuery = params.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}

	requestStart := time.Now()
	resp, err := c.httpClient.Do(req)
	latency := time.Since(requestStart)
	if err != nil {
		return nil, fmt.Errorf("execute request (latency=%v): %w", latency, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("source search returned %d (latency=%v)", resp.StatusCode, latency)
	}

	var payload struct {
		Results []SearchResult `json:"results"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, fmt.Errorf("decode search response: %w", err)
	}
	return payload.Results, nil
}

// Lookup fetches the authoritative record for a source identifier.
func (c *HTTPClient) Lookup(ctx context.Context, sourceID string) (*WorkPayload, error) {
	sourceID = strings.TrimSpace(sourceID)
	if sourceID == "" {
		return nil, errors.New("source id must not be empty")
	}
	endpoint, err := url.Parse(c.baseURL + "/entries/" + url.PathEscape(sourceID))
	if err != nil {
		return nil, fmt.Errorf("parse source url: %w", err)
	}
	if c.apiKey != "" {
		params := url.Values{}
		params.Set("api_key", c.apiKey)
		endpoint.RawQuery = params.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}

	requestStart := time.Now()
	resp, err := c.httpClient.Do(req)
	latency := time.Since(requestStart)
	if err != nil {
		return nil, fmt.Errorf("execute request (latency=%v): %w", latency, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, fmt.Errorf("source entry %q not found (latency=%v)", sourceID, latency)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("source lookup returned %d (latency=%v)", resp.StatusCode, latency)
	}

	var payload WorkPayload
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, fmt.Errorf("decode lookup response: %w", err)
	}
	if strings.TrimSpace(payload.ID) == "" {
		payload.ID = sourceID
	}
	return &payload, nil
}
