package source

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/sokhunov/Distribution-Interface/internal/shared"
)

// Gateway executes queries against the source ledger.
type Gateway interface {
	Query(ctx context.Context, q Query) (Cursor, error)
}

// ClientConfig configures the HTTP query service client.
type ClientConfig struct {
	BaseURL  string
	Username string
	Password string
	Timeout  time.Duration
}

// Client talks to the 1C HTTP query service.
type Client struct {
	baseURL    string
	username   string
	password   string
	httpClient *http.Client
}

// NewClient constructs a new client.
func NewClient(cfg ClientConfig) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Minute
	}
	return &Client{
		baseURL:  strings.TrimRight(cfg.BaseURL, "/"),
		username: cfg.Username,
		password: cfg.Password,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

type queryRequest struct {
	Name  string `json:"name"`
	Query string `json:"query"`
}

// Ping checks if the query service is available.
func (c *Client) Ping(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fmt.Sprintf("%s/ping", c.baseURL), nil)
	if err != nil {
		return shared.Gateway("ping", err)
	}
	c.authorize(req)
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return shared.Gateway("ping", err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()
	if resp.StatusCode >= 400 {
		return shared.Gateway("ping", fmt.Errorf("query service returned status %d", resp.StatusCode))
	}
	return nil
}

// Query renders q and streams the resulting rows. The caller owns the cursor.
func (c *Client) Query(ctx context.Context, q Query) (Cursor, error) {
	text, err := q.Render()
	if err != nil {
		return nil, shared.Gateway("render "+q.Name, err)
	}
	payload, err := json.Marshal(queryRequest{Name: q.Name, Query: text})
	if err != nil {
		return nil, shared.Gateway("encode "+q.Name, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, fmt.Sprintf("%s/query", c.baseURL), bytes.NewReader(payload))
	if err != nil {
		return nil, shared.Gateway("query "+q.Name, err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	c.authorize(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, shared.Gateway("query "+q.Name, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		_ = resp.Body.Close()
		return nil, shared.Gateway("query "+q.Name, fmt.Errorf("query service error %d: %s", resp.StatusCode, strings.TrimSpace(string(body))))
	}
	return NewCursor(resp.Body), nil
}

func (c *Client) authorize(req *http.Request) {
	if c.username != "" {
		req.SetBasicAuth(c.username, c.password)
	}
}
