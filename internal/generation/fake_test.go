package generation

import (
	"context"
	"errors"
	"sync"
	"time"

	"docqa/internal/domain"
)

// fakeGenerator records every call and answers from scripted functions.
type fakeGenerator struct {
	mu          sync.Mutex
	models      []string
	listErr     error
	listCalls   int
	chatCalls   []domain.ChatRequest
	streamCalls []domain.ChatRequest

	chat   func(req domain.ChatRequest) (string, error)
	stream func(req domain.ChatRequest) ([]string, error)
}

func (f *fakeGenerator) Chat(_ context.Context, req domain.ChatRequest) (string, error) {
	f.mu.Lock()
	f.chatCalls = append(f.chatCalls, req)
	f.mu.Unlock()
	if f.chat == nil {
		return "ok", nil
	}
	return f.chat(req)
}

func (f *fakeGenerator) ChatStream(ctx context.Context, req domain.ChatRequest) (<-chan string, <-chan error) {
	f.mu.Lock()
	f.streamCalls = append(f.streamCalls, req)
	f.mu.Unlock()

	out := make(chan string)
	errs := make(chan error, 1)
	go func() {
		defer close(out)
		defer close(errs)
		deltas, err := []string{"ok"}, error(nil)
		if f.stream != nil {
			deltas, err = f.stream(req)
		}
		for _, d := range deltas {
			select {
			case out <- d:
			case <-ctx.Done():
				errs <- ctx.Err()
				return
			}
		}
		if err != nil {
			errs <- err
		}
	}()
	return out, errs
}

func (f *fakeGenerator) ListModels(_ context.Context) ([]domain.ModelDescriptor, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.listCalls++
	if f.listErr != nil {
		return nil, f.listErr
	}
	out := make([]domain.ModelDescriptor, len(f.models))
	for i, m := range f.models {
		out[i] = domain.ModelDescriptor{Name: m}
	}
	return out, nil
}

func modelsOf(calls []domain.ChatRequest) []string {
	out := make([]string, len(calls))
	for i, c := range calls {
		out[i] = c.Model
	}
	return out
}

var errOOM = errors.New(`model requires more system memory (5.6 GiB) than is available (2.1 GiB)`)

// newTestClient builds a client whose retry delay is recorded instead of slept.
func newTestClient(gen *fakeGenerator, cfg Config) (*Client, *[]time.Duration) {
	if cfg.PreferredModels == nil {
		cfg.PreferredModels = []string{"llama3.2:1b", "phi3:mini"}
	}
	if cfg.ExcludedModels == nil {
		cfg.ExcludedModels = []string{"nomic-embed-text:latest"}
	}
	c := New(gen, cfg)
	var slept []time.Duration
	c.sleep = func(_ context.Context, d time.Duration) error {
		slept = append(slept, d)
		return nil
	}
	return c, &slept
}

func collect(ch <-chan domain.StreamUnit) []domain.StreamUnit {
	var units []domain.StreamUnit
	for u := range ch {
		units = append(units, u)
	}
	return units
}
