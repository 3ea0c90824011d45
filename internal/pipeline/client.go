package pipeline

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"
)

// ClientConfig configures the REST workflow-trigger client.
type ClientConfig struct {
	// BaseURL of the orchestrator API, e.g. https://workflows.internal/api/v1.
	BaseURL string

	// Token is sent as a bearer token when non-empty.
	Token string

	// HTTPClient overrides the default client (10s timeout) when set.
	HTTPClient *http.Client
}

func (c *ClientConfig) Validate() error {
	if c.BaseURL == "" {
		return fmt.Errorf("base URL is required")
	}
	if _, err := url.Parse(c.BaseURL); err != nil {
		return fmt.Errorf("invalid base URL: %w", err)
	}
	if c.HTTPClient == nil {
		c.HTTPClient = &http.Client{Timeout: 10 * time.Second}
	}
	return nil
}

// Client implements Trigger against the orchestrator's REST API.
type Client struct {
	cfg *ClientConfig
}

func NewClient(cfg *ClientConfig) (*Client, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return &Client{cfg: cfg}, nil
}

func (c *Client) Compile(ctx context.Context, repository, workspace string) (string, error) {
	var out struct {
		CompilationID string `json:"compilation_id"`
	}
	path := fmt.Sprintf("/repositories/%s/workspaces/%s/compile",
		url.PathEscape(repository), url.PathEscape(workspace))
	if err := c.post(ctx, path, nil, &out); err != nil {
		return "", err
	}
	if out.CompilationID == "" {
		return "", fmt.Errorf("orchestrator returned no compilation id for %s/%s", repository, workspace)
	}
	return out.CompilationID, nil
}

func (c *Client) Invoke(ctx context.Context, compilationID string) (Invocation, error) {
	var inv Invocation
	path := fmt.Sprintf("/compilations/%s/invoke", url.PathEscape(compilationID))
	if err := c.post(ctx, path, nil, &inv); err != nil {
		return Invocation{}, err
	}
	return inv, nil
}

func (c *Client) post(ctx context.Context, path string, body any, out any) error {
	var payload io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encoding request body: %w", err)
		}
		payload = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.BaseURL+path, payload)
	if err != nil {
		return fmt.Errorf("building request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.cfg.Token != "" {
		req.Header.Set("Authorization", "Bearer "+c.cfg.Token)
	}

	resp, err := c.cfg.HTTPClient.Do(req)
	if err != nil {
		return fmt.Errorf("calling orchestrator: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("orchestrator returned %d: %s", resp.StatusCode, string(data))
	}

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("decoding orchestrator response: %w", err)
		}
	}
	return nil
}
