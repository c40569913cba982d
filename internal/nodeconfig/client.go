// Package nodeconfig is the thin REST client for the executor's
// collaborator surface: per-node configuration and storage statistics.
// Bodies are opaque JSON; failures surface as plain I/O errors, never as
// coordinator error variants.
package nodeconfig

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// Client talks to the executor's REST side.
type Client struct {
	baseURL string
	http    *http.Client
}

// New creates a client for the given base URL.
func New(baseURL string) *Client {
	return &Client{
		baseURL: baseURL,
		http:    &http.Client{Timeout: 10 * time.Second},
	}
}

// GetNodeConfig fetches one node's stored configuration.
func (c *Client) GetNodeConfig(ctx context.Context, nodeID string) (map[string]any, error) {
	return c.getJSON(ctx, fmt.Sprintf("%s/api/nodes/%s/config", c.baseURL, nodeID))
}

// SaveNodeConfig stores one node's configuration.
func (c *Client) SaveNodeConfig(ctx context.Context, nodeID string, cfg map[string]any) error {
	body, err := json.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshal node config: %w", err)
	}
	url := fmt.Sprintf("%s/api/nodes/%s/config", c.baseURL, nodeID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("post node config: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return fmt.Errorf("post node config: unexpected status %s", resp.Status)
	}
	return nil
}

// GetStorageStats fetches the executor's storage statistics.
func (c *Client) GetStorageStats(ctx context.Context) (map[string]any, error) {
	return c.getJSON(ctx, c.baseURL+"/api/storage/stats")
}

func (c *Client) getJSON(ctx context.Context, url string) (map[string]any, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("get %s: %w", url, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return nil, fmt.Errorf("get %s: unexpected status %s", url, resp.Status)
	}
	var out map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("decode %s: %w", url, err)
	}
	return out, nil
}
