// Package client is an HTTP client for the shuffle sync API.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	shufflesync "github.com/dodgybits/shuffle/internal/sync"
	"github.com/dodgybits/shuffle/internal/types"
)

// maxErrorBody caps how much of an error response is read.
const maxErrorBody = 64 << 10

// Client talks to a shuffle server.
type Client struct {
	baseURL string
	apiKey  string
	http    *http.Client
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the default http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

// New creates a Client for the server at baseURL.
func New(baseURL, apiKey string, opts ...Option) *Client {
	c := &Client{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		apiKey:  apiKey,
		http: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// BackupURL is a pre-signed download link for the latest backup.
type BackupURL struct {
	URL       string    `json:"url"`
	ExpiresAt time.Time `json:"expires_at"`
}

// Health returns the server's health report.
func (c *Client) Health(ctx context.Context) (*types.HealthResponse, error) {
	var out types.HealthResponse
	if err := c.do(ctx, http.MethodGet, "/api/v1/health", nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Sync sends a delta to the server and returns the applied cycle's result.
func (c *Client) Sync(ctx context.Context, delta *shufflesync.SyncResponse) (*shufflesync.Result, error) {
	var out shufflesync.Result
	if err := c.do(ctx, http.MethodPost, "/api/v1/sync", delta, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Contexts lists every stored context.
func (c *Client) Contexts(ctx context.Context) ([]types.Context, error) {
	return list[types.Context](ctx, c, "/api/v1/contexts")
}

// Projects lists every stored project.
func (c *Client) Projects(ctx context.Context) ([]types.Project, error) {
	return list[types.Project](ctx, c, "/api/v1/projects")
}

// Tasks lists every stored task.
func (c *Client) Tasks(ctx context.Context) ([]types.Task, error) {
	return list[types.Task](ctx, c, "/api/v1/tasks")
}

// SyncRuns lists the most recent sync runs, newest first.
func (c *Client) SyncRuns(ctx context.Context, limit int) ([]types.SyncRun, error) {
	return list[types.SyncRun](ctx, c, "/api/v1/sync/runs?limit="+strconv.Itoa(limit))
}

// LatestBackupURL returns a download link for the latest uploaded backup.
func (c *Client) LatestBackupURL(ctx context.Context) (*BackupURL, error) {
	var out BackupURL
	if err := c.do(ctx, http.MethodGet, "/api/v1/backup/url", nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func list[E any](ctx context.Context, c *Client, path string) ([]E, error) {
	var out types.ListResponse[E]
	if err := c.do(ctx, http.MethodGet, path, nil, &out); err != nil {
		return nil, err
	}
	return out.Items, nil
}

// do sends an authenticated request and decodes the JSON response into out.
// Non-2xx responses are returned as *APIError.
func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var reqBody io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		reqBody = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reqBody)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return decodeProblem(resp)
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
