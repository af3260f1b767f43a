package vectorstore

import (
	"context"

	"docqa/internal/domain"
)

// Storage holds the chunks of the active document and answers similarity queries.
// Callers clear it before adding a new document.
type Storage interface {
	// Clear removes every stored pair. It is idempotent.
	Clear(ctx context.Context) error
	// Add stores texts[i] with vectors[i] and assigns each pair a unique ID.
	Add(ctx context.Context, texts []string, vectors [][]float64, metadata map[string]string) ([]domain.Chunk, error)
	// Search returns up to k chunks nearest to vector, nearest first.
	// It fails with domain.ErrIndexEmpty when nothing is stored.
	Search(ctx context.Context, vector []float64, k int) ([]domain.SearchResult, error)
	// Len reports how many chunks are stored.
	Len() int
	// Ping verifies the backend is reachable.
	Ping(ctx context.Context) error
}

// CopyMetadata returns a shallow copy of m.
func CopyMetadata(m map[string]string) map[string]string {
	if m == nil {
		return nil
	}
	out := make(map[string]string, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
