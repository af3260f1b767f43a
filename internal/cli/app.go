package cli

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"docqa/internal/chunker"
	"docqa/internal/config"
	"docqa/internal/domain"
	"docqa/internal/embedding"
	ollamaemb "docqa/internal/embedding/ollama"
	openaiemb "docqa/internal/embedding/openai"
	"docqa/internal/extract"
	"docqa/internal/generation"
	ollamagen "docqa/internal/generation/ollama"
	openaigen "docqa/internal/generation/openai"
	"docqa/internal/logger"
	"docqa/internal/retriever"
	"docqa/internal/service"
	"docqa/internal/vectorstore"
	"docqa/internal/vectorstore/memory"
	"docqa/internal/vectorstore/qdrant"
)

// app holds the process-wide components built from the configuration.
type app struct {
	cfg       *config.AppConfig
	gen       *generation.Client
	embedder  domain.Embedder
	extractor *extract.Registry
}

func loadConfig() (*config.AppConfig, error) {
	if cfgPath != "" {
		return config.Load(cfgPath)
	}
	cfg, path, err := config.LoadDefault()
	if err == nil {
		logger.Debug("using config %s", path)
	}
	return cfg, err
}

func newApp() (*app, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if modelFlag != "" {
		cfg.Generator.Model = modelFlag
	}
	backend, err := newGenerator(cfg)
	if err != nil {
		return nil, err
	}
	emb, err := newEmbedder(cfg)
	if err != nil {
		return nil, err
	}
	g := cfg.Generator
	client := generation.New(backend, generation.Config{
		ExcludedModels:   []string{cfg.Embedder.Model},
		PreferredModels:  g.PreferredModels,
		MaxAttempts:      g.MaxAttempts,
		RetryDelay:       g.RetryDelay(),
		CallTimeout:      g.CallTimeout(),
		StreamTimeout:    g.StreamTimeout(),
		TokenThreshold:   g.TokenThreshold,
		SummaryChunkSize: g.SummaryChunkSize,
		Options: domain.GenerateOptions{
			MaxTokens:   g.MaxTokens,
			Temperature: g.Temperature,
			TopP:        g.TopP,
		},
	})
	return &app{cfg: cfg, gen: client, embedder: emb, extractor: newExtractor(cfg)}, nil
}

func newGenerator(cfg *config.AppConfig) (domain.Generator, error) {
	switch cfg.Generator.Type {
	case config.TypeOpenAI:
		o := cfg.Generator.OpenAI
		c, err := openaigen.NewClient(openaigen.Config{
			BaseURL:   o.BaseURL,
			APIKeyEnv: o.APIKeyEnv,
			Timeout:   config.Duration(o.TimeoutSecs),
		})
		if err != nil {
			return nil, fmt.Errorf("openai generator: %w", err)
		}
		return c, nil
	default:
		return ollamagen.NewClient(ollamagen.Config{
			BaseURL: cfg.Ollama.BaseURL,
			Timeout: config.Duration(cfg.Ollama.TimeoutSecs),
		}), nil
	}
}

func newEmbedder(cfg *config.AppConfig) (domain.Embedder, error) {
	var emb domain.Embedder
	switch cfg.Embedder.Type {
	case config.TypeOpenAI:
		o := cfg.Embedder.OpenAI
		c, err := openaiemb.NewClient(openaiemb.Config{
			BaseURL:   o.BaseURL,
			APIKeyEnv: o.APIKeyEnv,
			Model:     o.Model,
			Timeout:   config.Duration(o.TimeoutSecs),
		})
		if err != nil {
			return nil, fmt.Errorf("openai embedder: %w", err)
		}
		emb = c
	default:
		emb = ollamaemb.NewClient(ollamaemb.Config{
			BaseURL: cfg.Ollama.BaseURL,
			Model:   cfg.Embedder.Model,
		})
	}
	return embedding.Throttle(emb, cfg.Embedder.RateLimit, cfg.Embedder.Burst), nil
}

func newExtractor(cfg *config.AppConfig) *extract.Registry {
	var opts []extract.Option
	if cfg.Extractor.OCRURL != "" {
		opts = append(opts, extract.WithOCR(extract.NewRemote(cfg.Extractor.OCRURL, config.Duration(cfg.Extractor.OCRTimeoutSecs))))
	}
	return extract.NewRegistry(opts...)
}

// newStore returns the vector index of one session. Qdrant sessions get their
// own collection so sessions never share an index.
func newStore(cfg *config.AppConfig, sessionID string) vectorstore.Storage {
	if cfg.VectorStore.Type == config.TypeQdrant {
		q := cfg.VectorStore.Qdrant
		st := qdrant.NewStorage(qdrant.Config{
			URL:        q.URL,
			APIKey:     q.APIKey,
			Collection: q.Collection + "-" + sessionID,
			Timeout:    config.Duration(q.TimeoutSecs),
		})
		logger.Debug("qdrant collection %s", st.Collection())
		return st
	}
	return memory.NewStorage()
}

func (a *app) newSession() *service.Session {
	id := service.NewID()
	r := retriever.New(
		chunker.New(a.cfg.Chunker.Size, a.cfg.Chunker.Overlap),
		a.embedder,
		newStore(a.cfg, id),
		retriever.WithTopK(a.cfg.Retrieval.TopK),
		retriever.WithConcurrency(a.cfg.Embedder.Concurrency),
		retriever.WithCallTimeout(config.Duration(a.cfg.Retrieval.CallTimeoutSecs)),
	)
	return service.New(a.extractor, r, a.gen,
		service.WithID(id),
		service.WithModel(a.cfg.Generator.Model),
		service.WithTopK(a.cfg.Retrieval.TopK),
	)
}

// openDocument builds a session and loads path into it. The caller closes the session.
func (a *app) openDocument(ctx context.Context, path string) (*service.Session, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	s := a.newSession()
	start := time.Now()
	st, err := s.Load(ctx, filepath.Base(path), "", data)
	if err != nil {
		closeSession(s)
		return nil, fmt.Errorf("load %s: %w", path, err)
	}
	logger.Info("indexed %s into %d chunks in %s", path, st.Chunks, time.Since(start).Round(time.Millisecond))
	return s, nil
}

func closeSession(s *service.Session) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := s.Close(ctx); err != nil {
		logger.Warn("close session: %v", err)
	}
}
