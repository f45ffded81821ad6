package hooks

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

const httpTimeout = 5 * time.Second

// Client talks to a running jacq server.
type Client struct {
	http      *http.Client
	serverURL string
}

// NewClient creates a hook HTTP client for the server at serverURL.
func NewClient(serverURL string) *Client {
	return &Client{
		http:      &http.Client{Timeout: httpTimeout},
		serverURL: strings.TrimRight(serverURL, "/"),
	}
}

// Post sends a POST request with JSON body. Returns response body.
func (c *Client) Post(ctx context.Context, path string, body []byte) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.serverURL+path, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("POST %s: %w", path, err)
	}
	req.Header.Set("Content-Type", "application/json")
	return c.do(req, path)
}

// Get sends a GET request. Returns response body.
func (c *Client) Get(ctx context.Context, path string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.serverURL+path, nil)
	if err != nil {
		return nil, fmt.Errorf("GET %s: %w", path, err)
	}
	return c.do(req, path)
}

func (c *Client) do(req *http.Request, path string) ([]byte, error) {
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s %s: %w", req.Method, path, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response %s: %w", path, err)
	}
	if resp.StatusCode >= 400 {
		return data, fmt.Errorf("%s %s: status %d: %s", req.Method, path, resp.StatusCode, bytes.TrimSpace(data))
	}
	return data, nil
}

// Healthy checks if the server is reachable.
func (c *Client) Healthy(ctx context.Context) bool {
	_, err := c.Get(ctx, "/api/health")
	return err == nil
}
