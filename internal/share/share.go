// Package share uploads finished documents to the public gallery and hands
// back a shareable link.
package share

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// Result is the gallery's upload reply. Message is surfaced to the client
// verbatim on failure.
type Result struct {
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
	Data    struct {
		URL string `json:"url"`
	} `json:"data"`
}

// UploadError reports a gallery rejection with the upstream status code.
type UploadError struct {
	Status  int
	Message string
}

func (e *UploadError) Error() string {
	return e.Message
}

// Client uploads documents to the gallery.
type Client struct {
	baseURL    string
	authToken  string
	httpClient *http.Client
}

// NewClient creates a gallery client.
func NewClient(baseURL, authToken string) *Client {
	return &Client{
		baseURL:    baseURL,
		authToken:  authToken,
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
}

type uploadRequest struct {
	Filename string `json:"filename"`
	Code     string `json:"code"`
}

// Upload publishes code under filename. Re-uploading the same filename
// replaces the published document, which is how a device updates its share
// link in place.
func (c *Client) Upload(ctx context.Context, filename, code string) (Result, error) {
	payload, err := json.Marshal(uploadRequest{Filename: filename, Code: code})
	if err != nil {
		return Result{}, fmt.Errorf("encoding upload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/upload-code", bytes.NewReader(payload))
	if err != nil {
		return Result{}, fmt.Errorf("building upload request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-token", c.authToken)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return Result{}, fmt.Errorf("calling gallery: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return Result{}, &UploadError{
			Status:  resp.StatusCode,
			Message: fmt.Sprintf("Failed to upload: %d %s", resp.StatusCode, http.StatusText(resp.StatusCode)),
		}
	}

	var result Result
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return Result{}, fmt.Errorf("decoding gallery response: %w", err)
	}
	return result, nil
}
