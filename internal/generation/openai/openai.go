// Package openai runs chat generation against any OpenAI-compatible endpoint.
package openai

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"docqa/internal/domain"
	"docqa/internal/generation"
)

var _ domain.Generator = (*Client)(nil)

const defaultBaseURL = "https://api.openai.com/v1/"

// Config configures the OpenAI-compatible chat client.
type Config struct {
	BaseURL   string
	APIKeyEnv string
	// Timeout bounds model listing; chat calls are bounded by their context.
	Timeout time.Duration
}

// Client implements domain.Generator with the openai-go SDK.
type Client struct {
	client  openai.Client
	timeout time.Duration
}

// NewClient creates a chat client. The API key is read from cfg.APIKeyEnv and is
// only required for the hosted OpenAI API.
func NewClient(cfg Config) (*Client, error) {
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultBaseURL
	}
	if !strings.HasSuffix(cfg.BaseURL, "/") {
		cfg.BaseURL += "/"
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 10 * time.Second
	}
	key := ""
	if cfg.APIKeyEnv != "" {
		key = os.Getenv(cfg.APIKeyEnv)
	}
	if key == "" {
		if cfg.BaseURL == defaultBaseURL {
			return nil, fmt.Errorf("missing API key in env %s", cfg.APIKeyEnv)
		}
		key = "unused"
	}
	return &Client{
		client: openai.NewClient(
			option.WithBaseURL(cfg.BaseURL),
			option.WithAPIKey(key),
			option.WithMaxRetries(0),
		),
		timeout: cfg.Timeout,
	}, nil
}

// ListModels returns the models the endpoint advertises.
func (c *Client) ListModels(ctx context.Context) ([]domain.ModelDescriptor, error) {
	page, err := c.client.Models.List(ctx, option.WithRequestTimeout(c.timeout))
	if err != nil {
		return nil, apiError("", err)
	}
	out := make([]domain.ModelDescriptor, 0, len(page.Data))
	for _, m := range page.Data {
		if m.ID != "" {
			out = append(out, domain.ModelDescriptor{Name: m.ID})
		}
	}
	return out, nil
}

// Chat sends a single completion request.
func (c *Client) Chat(ctx context.Context, req domain.ChatRequest) (string, error) {
	resp, err := c.client.Chat.Completions.New(ctx, params(req))
	if err != nil {
		return "", apiError(req.Model, err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("%w: completion has no choices", domain.ErrDecode)
	}
	return resp.Choices[0].Message.Content, nil
}

// ChatStream streams completion deltas. Both channels are closed when the stream
// ends; at most one error is sent.
func (c *Client) ChatStream(ctx context.Context, req domain.ChatRequest) (<-chan string, <-chan error) {
	deltas := make(chan string, 16)
	errs := make(chan error, 1)

	go func() {
		defer close(deltas)
		defer close(errs)

		stream := c.client.Chat.Completions.NewStreaming(ctx, params(req))
		defer stream.Close()
		for stream.Next() {
			chunk := stream.Current()
			if len(chunk.Choices) == 0 || chunk.Choices[0].Delta.Content == "" {
				continue
			}
			select {
			case deltas <- chunk.Choices[0].Delta.Content:
			case <-ctx.Done():
				errs <- ctx.Err()
				return
			}
		}
		if err := stream.Err(); err != nil {
			errs <- apiError(req.Model, err)
		}
	}()

	return deltas, errs
}

func params(req domain.ChatRequest) openai.ChatCompletionNewParams {
	msgs := make([]openai.ChatCompletionMessageParamUnion, 0, len(req.Messages))
	for _, m := range req.Messages {
		switch m.Role {
		case domain.RoleSystem:
			msgs = append(msgs, openai.SystemMessage(m.Content))
		case domain.RoleAssistant:
			msgs = append(msgs, openai.AssistantMessage(m.Content))
		default:
			msgs = append(msgs, openai.UserMessage(m.Content))
		}
	}
	p := openai.ChatCompletionNewParams{
		Model:    openai.ChatModel(req.Model),
		Messages: msgs,
	}
	if req.Options.MaxTokens > 0 {
		p.MaxTokens = openai.Int(int64(req.Options.MaxTokens))
	}
	if req.Options.Temperature > 0 {
		p.Temperature = openai.Float(req.Options.Temperature)
	}
	if req.Options.TopP > 0 {
		p.TopP = openai.Float(req.Options.TopP)
	}
	return p
}

// apiError maps SDK failures to ModelError so the fallback loop can classify them.
func apiError(model string, err error) error {
	if errors.Is(err, context.Canceled) {
		return err
	}
	var apiErr *openai.Error
	if errors.As(err, &apiErr) {
		kind := generation.KindFromMessage(apiErr.Message)
		switch apiErr.StatusCode {
		case http.StatusNotFound:
			kind = domain.KindModelNotFound
		case http.StatusTooManyRequests, http.StatusServiceUnavailable, http.StatusBadGateway:
			kind = domain.KindOverloaded
		case http.StatusRequestTimeout, http.StatusGatewayTimeout:
			kind = domain.KindTimeout
		}
		return &domain.ModelError{Kind: kind, Model: model, StatusCode: apiErr.StatusCode, Err: err}
	}
	kind := domain.KindUnreachable
	if errors.Is(err, context.DeadlineExceeded) {
		kind = domain.KindTimeout
	}
	return &domain.ModelError{Kind: kind, Model: model, Err: err}
}
