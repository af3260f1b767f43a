package qdrant

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"docqa/internal/domain"
	"docqa/internal/vectorstore"
)

var _ vectorstore.Storage = (*Storage)(nil)

// Storage is a minimal REST client to Qdrant holding one document per collection.
// The collection is created with cosine distance on the first Add and dropped by Clear.
type Storage struct {
	url        string
	apiKey     string
	collection string
	client     *http.Client

	mu        sync.Mutex
	dimension int
	count     int
}

type Config struct {
	URL        string
	APIKey     string
	Collection string
	Timeout    time.Duration
}

func NewStorage(cfg Config) *Storage {
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 15 * time.Second
	}
	return &Storage{
		url:        strings.TrimRight(cfg.URL, "/"),
		apiKey:     cfg.APIKey,
		collection: cfg.Collection,
		client:     &http.Client{Timeout: timeout},
	}
}

// Collection returns the collection name this store writes to.
func (s *Storage) Collection() string { return s.collection }

func (s *Storage) Clear(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	status, err := s.do(ctx, http.MethodDelete, s.collectionURL(), nil, nil)
	if err != nil && status != http.StatusNotFound {
		return err
	}
	s.dimension = 0
	s.count = 0
	return nil
}

func (s *Storage) Add(ctx context.Context, texts []string, vectors [][]float64, metadata map[string]string) ([]domain.Chunk, error) {
	if len(texts) != len(vectors) {
		return nil, fmt.Errorf("%w: %d chunks but %d vectors", domain.ErrInvalidInput, len(texts), len(vectors))
	}
	if len(texts) == 0 {
		return nil, nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	dim := s.dimension
	if dim == 0 {
		dim = len(vectors[0])
	}
	for _, v := range vectors {
		if len(v) != dim || dim == 0 {
			return nil, fmt.Errorf("%w: got %d, want %d", domain.ErrDimensionMismatch, len(v), dim)
		}
	}
	if s.dimension == 0 {
		body := map[string]any{
			"vectors": map[string]any{"size": dim, "distance": "Cosine"},
		}
		if _, err := s.do(ctx, http.MethodPut, s.collectionURL(), body, nil); err != nil {
			return nil, err
		}
		s.dimension = dim
	}

	chunks := make([]domain.Chunk, len(texts))
	points := make([]map[string]any, len(texts))
	for i, text := range texts {
		chunks[i] = domain.Chunk{
			ID:       uuid.New().String(),
			Text:     text,
			Index:    s.count + i,
			Metadata: vectorstore.CopyMetadata(metadata),
		}
		payload := map[string]any{"text": text, "index": chunks[i].Index}
		for k, v := range metadata {
			payload["meta_"+k] = v
		}
		points[i] = map[string]any{"id": chunks[i].ID, "vector": vectors[i], "payload": payload}
	}
	if _, err := s.do(ctx, http.MethodPut, s.collectionURL()+"/points?wait=true", map[string]any{"points": points}, nil); err != nil {
		return nil, err
	}
	s.count += len(texts)
	return chunks, nil
}

func (s *Storage) Search(ctx context.Context, vector []float64, k int) ([]domain.SearchResult, error) {
	if k <= 0 {
		return nil, fmt.Errorf("%w: k must be positive", domain.ErrInvalidInput)
	}
	s.mu.Lock()
	count, dim := s.count, s.dimension
	s.mu.Unlock()
	if count == 0 {
		return nil, domain.ErrIndexEmpty
	}
	if len(vector) != dim {
		return nil, fmt.Errorf("%w: query has %d, index has %d", domain.ErrDimensionMismatch, len(vector), dim)
	}
	req := map[string]any{
		"vector":       vector,
		"limit":        k,
		"with_payload": true,
	}
	var resp struct {
		Result []struct {
			ID      string         `json:"id"`
			Score   float64        `json:"score"`
			Payload map[string]any `json:"payload"`
		} `json:"result"`
	}
	if _, err := s.do(ctx, http.MethodPost, s.collectionURL()+"/points/search", req, &resp); err != nil {
		return nil, err
	}
	results := make([]domain.SearchResult, 0, len(resp.Result))
	for _, r := range resp.Result {
		chunk := domain.Chunk{ID: r.ID}
		for key, v := range r.Payload {
			switch {
			case key == "text":
				chunk.Text, _ = v.(string)
			case key == "index":
				if f, ok := v.(float64); ok {
					chunk.Index = int(f)
				}
			case strings.HasPrefix(key, "meta_"):
				if chunk.Metadata == nil {
					chunk.Metadata = map[string]string{}
				}
				chunk.Metadata[strings.TrimPrefix(key, "meta_")] = fmt.Sprint(v)
			}
		}
		results = append(results, domain.SearchResult{Chunk: chunk, Score: r.Score})
	}
	return results, nil
}

func (s *Storage) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.count
}

func (s *Storage) Ping(ctx context.Context) error {
	_, err := s.do(ctx, http.MethodGet, s.url+"/collections", nil, nil)
	return err
}

func (s *Storage) collectionURL() string {
	return fmt.Sprintf("%s/collections/%s", s.url, s.collection)
}

// do sends a JSON request and decodes the JSON response into out when non-nil.
// It returns the HTTP status alongside any error.
func (s *Storage) do(ctx context.Context, method, url string, body, out any) (int, error) {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return 0, fmt.Errorf("marshal request: %w", err)
		}
		reader = bytes.NewReader(data)
	}
	req, err := http.NewRequestWithContext(ctx, method, url, reader)
	if err != nil {
		return 0, fmt.Errorf("create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if s.apiKey != "" {
		req.Header.Set("api-key", s.apiKey)
	}
	resp, err := s.client.Do(req)
	if err != nil {
		return 0, fmt.Errorf("qdrant %s %s: %w", method, url, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return resp.StatusCode, fmt.Errorf("qdrant %s %s failed: %s: %s", method, url, resp.Status, strings.TrimSpace(string(msg)))
	}
	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return resp.StatusCode, fmt.Errorf("decode response: %w", err)
		}
	}
	return resp.StatusCode, nil
}
