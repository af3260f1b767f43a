// Package ollama runs chat generation against an Ollama runtime.
package ollama

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"docqa/internal/domain"
	"docqa/internal/generation"
)

var _ domain.Generator = (*Client)(nil)

// Default configuration values.
const (
	DefaultBaseURL = "http://localhost:11434"
	DefaultTimeout = 10 * time.Second
)

// maxLine bounds a single NDJSON line of a streamed response.
const maxLine = 2 * 1024 * 1024

// Config configures the Ollama generation client.
type Config struct {
	BaseURL string
	// Timeout applies to model listing only; chat calls are bounded by their context.
	Timeout time.Duration
}

// Client implements domain.Generator over /api/chat and /api/tags.
type Client struct {
	baseURL string
	http    *http.Client
	list    *http.Client
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type options struct {
	NumPredict  int     `json:"num_predict,omitempty"`
	Temperature float64 `json:"temperature,omitempty"`
	TopP        float64 `json:"top_p,omitempty"`
}

type chatRequest struct {
	Model    string        `json:"model"`
	Messages []chatMessage `json:"messages"`
	Stream   bool          `json:"stream"`
	Options  *options      `json:"options,omitempty"`
}

type chatResponse struct {
	Message chatMessage `json:"message"`
	Done    bool        `json:"done"`
	Error   string      `json:"error,omitempty"`
}

type tagsResponse struct {
	Models []struct {
		Name  string `json:"name"`
		Model string `json:"model"`
	} `json:"models"`
}

// NewClient creates a new generation client.
func NewClient(cfg Config) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = DefaultTimeout
	}
	return &Client{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		http:    &http.Client{},
		list:    &http.Client{Timeout: cfg.Timeout},
	}
}

// BaseURL returns the runtime address.
func (c *Client) BaseURL() string { return c.baseURL }

// ListModels returns the models installed on the runtime.
func (c *Client) ListModels(ctx context.Context) ([]domain.ModelDescriptor, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/api/tags", nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	resp, err := c.list.Do(req)
	if err != nil {
		return nil, transportError("", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, statusError("", resp)
	}
	var tags tagsResponse
	if err := json.NewDecoder(resp.Body).Decode(&tags); err != nil {
		return nil, fmt.Errorf("%w: tags: %v", domain.ErrDecode, err)
	}
	out := make([]domain.ModelDescriptor, 0, len(tags.Models))
	for _, m := range tags.Models {
		name := m.Name
		if name == "" {
			name = m.Model
		}
		if name != "" {
			out = append(out, domain.ModelDescriptor{Name: name})
		}
	}
	return out, nil
}

// Chat sends a non-streaming chat request and returns the full reply.
func (c *Client) Chat(ctx context.Context, req domain.ChatRequest) (string, error) {
	resp, err := c.post(ctx, req, false)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	var decoded chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return "", fmt.Errorf("%w: chat: %v", domain.ErrDecode, err)
	}
	if decoded.Error != "" {
		return "", messageError(req.Model, decoded.Error)
	}
	return decoded.Message.Content, nil
}

// ChatStream streams reply deltas. Both channels are closed when the stream ends;
// at most one error is sent.
func (c *Client) ChatStream(ctx context.Context, req domain.ChatRequest) (<-chan string, <-chan error) {
	deltas := make(chan string, 16)
	errs := make(chan error, 1)

	go func() {
		defer close(deltas)
		defer close(errs)

		resp, err := c.post(ctx, req, true)
		if err != nil {
			errs <- err
			return
		}
		defer resp.Body.Close()

		sc := bufio.NewScanner(resp.Body)
		sc.Buffer(make([]byte, 0, 64*1024), maxLine)
		for sc.Scan() {
			line := bytes.TrimSpace(sc.Bytes())
			if len(line) == 0 {
				continue
			}
			var decoded chatResponse
			if err := json.Unmarshal(line, &decoded); err != nil {
				errs <- fmt.Errorf("%w: stream line: %v", domain.ErrDecode, err)
				return
			}
			if decoded.Error != "" {
				errs <- messageError(req.Model, decoded.Error)
				return
			}
			if decoded.Message.Content != "" {
				select {
				case deltas <- decoded.Message.Content:
				case <-ctx.Done():
					errs <- ctx.Err()
					return
				}
			}
			if decoded.Done {
				return
			}
		}
		if err := sc.Err(); err != nil {
			errs <- transportError(req.Model, err)
			return
		}
		errs <- &domain.ModelError{
			Kind:  domain.KindUnreachable,
			Model: req.Model,
			Err:   errors.New("stream ended before completion"),
		}
	}()

	return deltas, errs
}

func (c *Client) post(ctx context.Context, req domain.ChatRequest, stream bool) (*http.Response, error) {
	body := chatRequest{
		Model:    req.Model,
		Messages: make([]chatMessage, len(req.Messages)),
		Stream:   stream,
	}
	for i, m := range req.Messages {
		body.Messages[i] = chatMessage{Role: string(m.Role), Content: m.Content}
	}
	if o := req.Options; o.MaxTokens > 0 || o.Temperature > 0 || o.TopP > 0 {
		body.Options = &options{NumPredict: o.MaxTokens, Temperature: o.Temperature, TopP: o.TopP}
	}

	data, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/chat", bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return nil, transportError(req.Model, err)
	}
	if resp.StatusCode != http.StatusOK {
		defer resp.Body.Close()
		return nil, statusError(req.Model, resp)
	}
	return resp, nil
}

// statusError maps a failed HTTP response to a ModelError.
func statusError(model string, resp *http.Response) error {
	payload, _ := io.ReadAll(io.LimitReader(resp.Body, 64*1024))
	msg := strings.TrimSpace(string(payload))
	var body struct {
		Error string `json:"error"`
	}
	if json.Unmarshal(payload, &body) == nil && body.Error != "" {
		msg = body.Error
	}

	kind := generation.KindFromMessage(msg)
	switch resp.StatusCode {
	case http.StatusNotFound:
		kind = domain.KindModelNotFound
	case http.StatusTooManyRequests, http.StatusServiceUnavailable:
		if kind == domain.KindUnknown {
			kind = domain.KindOverloaded
		}
	}
	return &domain.ModelError{
		Kind:       kind,
		Model:      model,
		StatusCode: resp.StatusCode,
		Err:        fmt.Errorf("ollama: %s", msg),
	}
}

func messageError(model, msg string) error {
	return &domain.ModelError{
		Kind:  generation.KindFromMessage(msg),
		Model: model,
		Err:   fmt.Errorf("ollama: %s", msg),
	}
}

// transportError keeps cancellation visible to callers; everything else means
// the runtime could not be reached or timed out.
func transportError(model string, err error) error {
	if errors.Is(err, context.Canceled) {
		return err
	}
	kind := domain.KindUnreachable
	if errors.Is(err, context.DeadlineExceeded) {
		kind = domain.KindTimeout
	}
	return &domain.ModelError{Kind: kind, Model: model, Err: err}
}
