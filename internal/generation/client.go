// Package generation invokes a text-generation runtime for summaries, suggested
// questions and grounded answers, tolerating unavailable or overloaded models.
package generation

import (
	"context"
	"sync"
	"time"

	"docqa/internal/chunker"
	"docqa/internal/domain"
	"docqa/internal/logger"
)

// Default configuration values.
const (
	DefaultMaxAttempts    = 3
	DefaultRetryDelay     = time.Second
	DefaultCallTimeout    = 120 * time.Second
	DefaultStreamTimeout  = 300 * time.Second
	DefaultTokenThreshold = 2500
)

// DefaultPreferredModels are small models known to run on modest hardware, best first.
var DefaultPreferredModels = []string{
	"llama3.2:1b",
	"llama3.2",
	"phi3:mini",
	"gemma2:2b",
	"qwen2.5:1.5b",
	"mistral",
}

// Config tunes the client.
type Config struct {
	// ExcludedModels are never offered for generation, e.g. the embedding model.
	ExcludedModels   []string
	PreferredModels  []string
	MaxAttempts      int
	RetryDelay       time.Duration
	CallTimeout      time.Duration
	StreamTimeout    time.Duration
	TokenThreshold   int
	SummaryChunkSize int
	Options          domain.GenerateOptions
}

func (c *Config) applyDefaults() {
	if c.PreferredModels == nil {
		c.PreferredModels = DefaultPreferredModels
	}
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = DefaultMaxAttempts
	}
	if c.RetryDelay < 0 {
		c.RetryDelay = 0
	}
	if c.CallTimeout <= 0 {
		c.CallTimeout = DefaultCallTimeout
	}
	if c.StreamTimeout <= 0 {
		c.StreamTimeout = DefaultStreamTimeout
	}
	if c.TokenThreshold <= 0 {
		c.TokenThreshold = DefaultTokenThreshold
	}
	if c.SummaryChunkSize <= 0 {
		c.SummaryChunkSize = chunker.SummarySize
	}
}

// Client wraps a domain.Generator with model discovery and fallback.
// One Client is shared by every session of the process.
type Client struct {
	gen      domain.Generator
	cfg      Config
	splitter domain.Chunker
	sleep    func(context.Context, time.Duration) error

	mu     sync.RWMutex
	models []string
	loaded bool
}

// New creates a client for gen.
func New(gen domain.Generator, cfg Config) *Client {
	cfg.applyDefaults()
	return &Client{
		gen:      gen,
		cfg:      cfg,
		splitter: chunker.New(cfg.SummaryChunkSize, 0),
		sleep:    sleepCtx,
	}
}

// TokenThreshold returns the estimate above which summaries use map-reduce.
func (c *Client) TokenThreshold() int { return c.cfg.TokenThreshold }

// Models returns the discovered generation models. The list is cached after the
// first successful discovery; a failed discovery returns an empty list.
func (c *Client) Models(ctx context.Context) []string {
	c.mu.RLock()
	if c.loaded {
		out := append([]string(nil), c.models...)
		c.mu.RUnlock()
		return out
	}
	c.mu.RUnlock()

	models, err := c.Refresh(ctx)
	if err != nil {
		logger.Warn("model discovery failed: %v", err)
		return []string{}
	}
	return models
}

// Refresh re-discovers models and replaces the cache. On failure the previous
// cache is kept. Calls already running keep the list they captured.
func (c *Client) Refresh(ctx context.Context) ([]string, error) {
	ctx, cancel := context.WithTimeout(ctx, c.cfg.CallTimeout)
	defer cancel()
	found, err := c.gen.ListModels(ctx)
	if err != nil {
		return nil, err
	}
	models := make([]string, 0, len(found))
	for _, m := range found {
		if m.Name == "" || c.excluded(m.Name) {
			continue
		}
		models = append(models, m.Name)
	}
	c.mu.Lock()
	c.models = models
	c.loaded = true
	c.mu.Unlock()
	logger.Debug("discovered %d generation models", len(models))
	return append([]string(nil), models...), nil
}

// ResolveModel applies the selection policy without calling the model.
func (c *Client) ResolveModel(ctx context.Context, requested string) (string, error) {
	return pickModel(c.cfg.PreferredModels, c.Models(ctx), requested, nil, "")
}

func (c *Client) excluded(name string) bool {
	_, ok := lookup(c.cfg.ExcludedModels, name)
	return ok
}

func (c *Client) fallback() Fallback {
	return Fallback{
		MaxAttempts: c.cfg.MaxAttempts,
		Delay:       c.cfg.RetryDelay,
		Preferred:   c.cfg.PreferredModels,
		Classify:    Classify,
		Sleep:       c.sleep,
	}
}

func (c *Client) request(model string, prompt string) domain.ChatRequest {
	return domain.ChatRequest{
		Model:    model,
		Messages: []domain.Message{{Role: domain.RoleUser, Content: prompt}},
		Options:  c.cfg.Options,
	}
}

// complete runs a one-shot call with fallback and returns the text and the model used.
func (c *Client) complete(ctx context.Context, requested, prompt string) (string, string, error) {
	var text string
	out, err := c.fallback().Run(ctx, c.Models(ctx), requested, func(ctx context.Context, model string) error {
		cctx, cancel := context.WithTimeout(ctx, c.cfg.CallTimeout)
		defer cancel()
		var err error
		text, err = c.gen.Chat(cctx, c.request(model, prompt))
		return err
	})
	return text, out.Model, err
}

// stream runs a streaming call with fallback, forwarding deltas to s. Once a delta has
// reached the caller a failure is final, since replaying would duplicate output.
func (c *Client) stream(ctx context.Context, requested, prompt string, s *streamer) (string, error) {
	out, err := c.fallback().Run(ctx, c.Models(ctx), requested, func(ctx context.Context, model string) error {
		sctx, cancel := context.WithTimeout(ctx, c.cfg.StreamTimeout)
		defer cancel()
		deltas, errs := c.gen.ChatStream(sctx, c.request(model, prompt))
		emitted := false
		for d := range deltas {
			if d == "" {
				continue
			}
			if !s.delta(d) {
				return Permanent(ctx.Err())
			}
			emitted = true
		}
		if err := <-errs; err != nil {
			if emitted {
				return Permanent(err)
			}
			return err
		}
		return nil
	})
	return out.Model, err
}

// streamer delivers units to a consumer. The first unit carries sources.
type streamer struct {
	ctx     context.Context
	out     chan<- domain.StreamUnit
	sources []string
	started bool
}

func (s *streamer) send(u domain.StreamUnit) bool {
	if !s.started {
		u.Sources = s.sources
		s.started = true
	}
	select {
	case s.out <- u:
		return true
	case <-s.ctx.Done():
		return false
	}
}

func (s *streamer) delta(text string) bool {
	return s.send(domain.StreamUnit{Content: text})
}

// finish sends the terminal unit.
func (s *streamer) finish(err error, message string) {
	if err != nil {
		s.send(domain.StreamUnit{Done: true, Err: err, ErrorMessage: message})
		return
	}
	s.send(domain.StreamUnit{Done: true})
}
