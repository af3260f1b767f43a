package extract

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"path/filepath"
	"strings"
	"time"

	"docqa/internal/domain"
)

// Remote sends files to an analyzer service that answers {"text": "..."}.
type Remote struct {
	url    string
	client *http.Client
}

// NewRemote creates a remote analyzer client for url.
func NewRemote(url string, timeout time.Duration) *Remote {
	if timeout == 0 {
		timeout = 120 * time.Second
	}
	return &Remote{url: url, client: &http.Client{Timeout: timeout}}
}

// Extract uploads data as the multipart field "file".
func (r *Remote) Extract(ctx context.Context, filename, _ string, data []byte) (string, error) {
	var body bytes.Buffer
	w := multipart.NewWriter(&body)
	part, err := w.CreateFormFile("file", filepath.Base(filename))
	if err != nil {
		return "", fmt.Errorf("create form: %w", err)
	}
	if _, err := part.Write(data); err != nil {
		return "", fmt.Errorf("write form: %w", err)
	}
	if err := w.Close(); err != nil {
		return "", fmt.Errorf("close form: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.url, &body)
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", w.FormDataContentType())

	resp, err := r.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("analyzer request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return "", fmt.Errorf("analyzer error (status %d): %s", resp.StatusCode, strings.TrimSpace(string(msg)))
	}
	var out struct {
		Text *string `json:"text"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("%w: analyzer response: %v", domain.ErrDecode, err)
	}
	if out.Text == nil {
		return "", fmt.Errorf("%w: analyzer response has no text", domain.ErrDecode)
	}
	return *out.Text, nil
}
