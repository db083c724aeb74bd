package inference

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// maxErrorBody bounds how much of a failed response is read for diagnostics.
const maxErrorBody = 4 * 1024

// Client talks to the inference backend. It is safe for concurrent use.
type Client struct {
	endpoint   string
	httpClient *http.Client
}

// NewClient creates a client for the backend at endpoint. The HTTP client
// carries no overall timeout: streams are long-lived and cancelled through
// the request context instead.
func NewClient(endpoint string) *Client {
	return &Client{
		endpoint: endpoint,
		httpClient: &http.Client{
			Transport: &http.Transport{
				ResponseHeaderTimeout: 30 * time.Second,
			},
		},
	}
}

// chatRequest is the wire shape of a streaming completion request.
type chatRequest struct {
	Model     string    `json:"model"`
	Messages  []Message `json:"messages"`
	MaxTokens int       `json:"max_tokens"`
	Stream    bool      `json:"stream"`
}

// Stream starts a completion and returns the backend's chunked body. The
// caller owns the returned reader and must close it; cancelling ctx aborts
// the stream.
func (c *Client) Stream(ctx context.Context, token string, cfg ModelConfig, messages []Message) (io.ReadCloser, error) {
	payload, err := json.Marshal(chatRequest{
		Model:     cfg.ID,
		Messages:  messages,
		MaxTokens: cfg.MaxTokens,
		Stream:    true,
	})
	if err != nil {
		return nil, fmt.Errorf("encoding completion request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("building completion request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("calling inference backend: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		resp.Body.Close()
		return nil, fmt.Errorf("inference backend returned %d: %s", resp.StatusCode, bytes.TrimSpace(body))
	}
	return resp.Body, nil
}
