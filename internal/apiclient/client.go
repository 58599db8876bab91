// Package apiclient is the thin HTTP client the CLI uses to talk to the
// daemon API.
package apiclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"curator/internal/api"
	"curator/internal/catalog"
)

// Client calls the daemon HTTP API.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

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

// New creates a client for a daemon bind address (host:port or full URL).
func New(bind string, opts ...Option) (*Client, error) {
	bind = strings.TrimSpace(bind)
	if bind == "" {
		return nil, errors.New("daemon address required")
	}
	if !strings.Contains(bind, "://") {
		bind = "http://" + bind
	}
	client := &Client{
		baseURL:    strings.TrimRight(bind, "/"),
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
	for _, opt := range opts {
		opt(client)
	}
	return client, nil
}

// Status fetches daemon runtime counters.
func (c *Client) Status(ctx context.Context) (*api.DaemonStatus, error) {
	var status api.DaemonStatus
	if err := c.do(ctx, http.MethodGet, "/api/status", nil, &status); err != nil {
		return nil, err
	}
	return &status, nil
}

// Clusters lists clusters, optionally filtered by match status.
func (c *Client) Clusters(ctx context.Context, statuses ...catalog.MatchStatus) ([]api.ClusterView, error) {
	path := "/api/clusters"
	if len(statuses) > 0 {
		params := url.Values{}
		for _, status := range statuses {
			params.Add("status", string(status))
		}
		path += "?" + params.Encode()
	}
	var resp api.ClusterListResponse
	if err := c.do(ctx, http.MethodGet, path, nil, &resp); err != nil {
		return nil, err
	}
	return resp.Clusters, nil
}

// CreateCluster records an identity hypothesis over pending candidates.
func (c *Client) CreateCluster(ctx context.Context, req api.CreateClusterRequest) (*api.ClusterView, error) {
	var view api.ClusterView
	if err := c.do(ctx, http.MethodPost, "/api/clusters", req, &view); err != nil {
		return nil, err
	}
	return &view, nil
}

// Search asks the daemon's identity source for candidates matching a title.
func (c *Client) Search(ctx context.Context, query string) (*api.SearchResponse, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, errors.New("search query required")
	}
	params := url.Values{}
	params.Set("query", query)
	var resp api.SearchResponse
	if err := c.do(ctx, http.MethodGet, "/api/search?"+params.Encode(), nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Cluster fetches one cluster.
func (c *Client) Cluster(ctx context.Context, id int64) (*api.ClusterView, error) {
	var view api.ClusterView
	if err := c.do(ctx, http.MethodGet, fmt.Sprintf("/api/clusters/%d", id), nil, &view); err != nil {
		return nil, err
	}
	return &view, nil
}

// Accept confirms a suggested cluster.
func (c *Client) Accept(ctx context.Context, id int64, customTitle string) (*api.ClusterView, error) {
	var view api.ClusterView
	body := api.AcceptRequest{CustomTitle: strings.TrimSpace(customTitle)}
	if err := c.do(ctx, http.MethodPost, fmt.Sprintf("/api/clusters/%d/accept", id), body, &view); err != nil {
		return nil, err
	}
	return &view, nil
}

// Reject discards a suggested cluster.
func (c *Client) Reject(ctx context.Context, id int64) (*api.ClusterView, error) {
	var view api.ClusterView
	if err := c.do(ctx, http.MethodPost, fmt.Sprintf("/api/clusters/%d/reject", id), nil, &view); err != nil {
		return nil, err
	}
	return &view, nil
}

// Canonicalize enqueues canonicalization of an accepted cluster.
func (c *Client) Canonicalize(ctx context.Context, id int64) error {
	var resp api.CanonicalizeResponse
	if err := c.do(ctx, http.MethodPost, fmt.Sprintf("/api/clusters/%d/canonicalize", id), nil, &resp); err != nil {
		return err
	}
	if !resp.Accepted {
		return errors.New("daemon did not accept the canonicalization request")
	}
	return nil
}

// Unlock recovers a match stuck with locked members.
func (c *Client) Unlock(ctx context.Context, id int64) (*api.ClusterView, error) {
	var view api.ClusterView
	if err := c.do(ctx, http.MethodPost, fmt.Sprintf("/api/clusters/%d/unlock", id), nil, &view); err != nil {
		return nil, err
	}
	return &view, nil
}

// Library fetches the unified feed.
func (c *Client) Library(ctx context.Context) (*api.LibraryResponse, error) {
	var resp api.LibraryResponse
	if err := c.do(ctx, http.MethodGet, "/api/library", nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Scan triggers a library scan; root overrides the daemon's configured root
// when non-empty.
func (c *Client) Scan(ctx context.Context, root string) (*api.ScanResponse, error) {
	var resp api.ScanResponse
	body := api.ScanRequest{Root: strings.TrimSpace(root)}
	if err := c.do(ctx, http.MethodPost, "/api/scan", body, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

func (c *Client) do(ctx context.Context, method, path string, body, dest any) error {
	var reader io.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		reader = bytes.NewReader(encoded)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("call daemon: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		var apiErr api.ErrorResponse
		if decodeErr := json.NewDecoder(resp.Body).Decode(&apiErr); decodeErr == nil && apiErr.Error != "" {
			return fmt.Errorf("daemon returned %d: %s", resp.StatusCode, apiErr.Error)
		}
		return fmt.Errorf("daemon returned %d", resp.StatusCode)
	}
	if dest == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(dest); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
