// Package retriever indexes the active document and selects context for queries.
package retriever

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"docqa/internal/domain"
	"docqa/internal/logger"
	"docqa/internal/vectorstore"
)

// State is the indexing status of a retriever.
type State int

const (
	StateEmpty State = iota
	StateIndexing
	StateReady
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateEmpty:
		return "empty"
	case StateIndexing:
		return "indexing"
	case StateReady:
		return "ready"
	case StateFailed:
		return "failed"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// DefaultTopK is the number of chunks retrieved when the caller does not say.
const DefaultTopK = 3

// Option configures a Retriever.
type Option func(*Retriever)

// WithTopK sets the default number of chunks returned by Retrieve.
func WithTopK(k int) Option {
	return func(r *Retriever) {
		if k > 0 {
			r.topK = k
		}
	}
}

// WithConcurrency bounds how many chunks are embedded in parallel during ingest.
func WithConcurrency(n int) Option {
	return func(r *Retriever) {
		if n > 0 {
			r.concurrency = n
		}
	}
}

// WithCallTimeout bounds each embedding call.
func WithCallTimeout(d time.Duration) Option {
	return func(r *Retriever) { r.callTimeout = d }
}

// Retriever owns one Vector Index. Ingest is all-or-nothing: on any failure the
// index is left cleared and the retriever is Failed until the next ingest.
type Retriever struct {
	chunker     domain.Chunker
	embedder    domain.Embedder
	store       vectorstore.Storage
	topK        int
	concurrency int
	callTimeout time.Duration

	mu     sync.Mutex
	state  State
	err    error
	chunks int
}

// New creates a retriever in the Empty state.
func New(ch domain.Chunker, emb domain.Embedder, store vectorstore.Storage, opts ...Option) *Retriever {
	r := &Retriever{
		chunker:     ch,
		embedder:    emb,
		store:       store,
		topK:        DefaultTopK,
		concurrency: 1,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// State returns the current indexing state.
func (r *Retriever) State() State {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state
}

// Err returns the error that moved the retriever to Failed, if any.
func (r *Retriever) Err() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.err
}

// Chunks returns how many chunks the last successful ingest indexed.
func (r *Retriever) Chunks() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.chunks
}

// Ingest replaces the indexed document with text.
func (r *Retriever) Ingest(ctx context.Context, text string, metadata map[string]string) error {
	r.mu.Lock()
	if r.state == StateIndexing {
		r.mu.Unlock()
		return domain.ErrIngestInProgress
	}
	r.state = StateIndexing
	r.err = nil
	r.chunks = 0
	r.mu.Unlock()

	logger.Section("Ingest")
	if err := r.store.Clear(ctx); err != nil {
		return r.fail(fmt.Errorf("clear index: %w", err))
	}

	pieces := r.chunker.Split(text)
	if len(pieces) == 0 {
		return r.fail(fmt.Errorf("%w: document has no text", domain.ErrInvalidInput))
	}
	logger.Debug("split document into %d chunks", len(pieces))

	vectors, err := r.embedAll(ctx, pieces)
	if err != nil {
		r.discard(ctx)
		return r.fail(err)
	}
	if _, err := r.store.Add(ctx, pieces, vectors, metadata); err != nil {
		r.discard(ctx)
		return r.fail(fmt.Errorf("add chunks: %w", err))
	}

	r.mu.Lock()
	r.state = StateReady
	r.chunks = len(pieces)
	r.mu.Unlock()
	logger.Info("indexed %d chunks with %s", len(pieces), r.embedder.Name())
	return nil
}

// embedAll embeds every piece, preserving order, and stops at the first failure.
func (r *Retriever) embedAll(ctx context.Context, pieces []string) ([][]float64, error) {
	vectors := make([][]float64, len(pieces))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.concurrency)
	for i, piece := range pieces {
		i, piece := i, piece
		g.Go(func() error {
			vec, err := r.embed(gctx, piece)
			if err != nil {
				return fmt.Errorf("embed chunk %d: %w", i, err)
			}
			vectors[i] = vec
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return vectors, nil
}

// Retrieve returns the text of the k chunks nearest to query, nearest first.
func (r *Retriever) Retrieve(ctx context.Context, query string, k int) ([]string, error) {
	if strings.TrimSpace(query) == "" {
		return nil, domain.ErrEmptyQuery
	}
	if r.State() != StateReady {
		return nil, domain.ErrNotIndexed
	}
	if k <= 0 {
		k = r.topK
	}
	vec, err := r.embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}
	results, err := r.store.Search(ctx, vec, k)
	if err != nil {
		return nil, fmt.Errorf("search: %w", err)
	}
	texts := make([]string, len(results))
	for i, res := range results {
		texts[i] = res.Chunk.Text
		logger.Debug("hit %d score=%.3f id=%s", i+1, res.Score, res.Chunk.ID)
	}
	return texts, nil
}

// Reset clears the index and returns to Empty.
func (r *Retriever) Reset(ctx context.Context) error {
	if err := r.store.Clear(ctx); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.state = StateEmpty
	r.err = nil
	r.chunks = 0
	return nil
}

// Health verifies that the index is reachable and the embedding capability responds.
func (r *Retriever) Health(ctx context.Context) error {
	if err := r.store.Ping(ctx); err != nil {
		return fmt.Errorf("vector index: %w", err)
	}
	if _, err := r.embed(ctx, "health check"); err != nil {
		return fmt.Errorf("embedder: %w", err)
	}
	return nil
}

func (r *Retriever) embed(ctx context.Context, text string) ([]float64, error) {
	if r.callTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.callTimeout)
		defer cancel()
	}
	return r.embedder.Embed(ctx, text)
}

// discard clears a partially written index even if ctx is already cancelled.
func (r *Retriever) discard(ctx context.Context) {
	if err := r.store.Clear(context.WithoutCancel(ctx)); err != nil {
		logger.Warn("could not clear index after failed ingest: %v", err)
	}
}

func (r *Retriever) fail(err error) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.state = StateFailed
	r.err = err
	logger.Warn("ingest failed: %v", err)
	return err
}
