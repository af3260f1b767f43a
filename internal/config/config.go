// Package config loads the application configuration from YAML or TOML files
// and the environment.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"
)

// Backend type names.
const (
	TypeOllama = "ollama"
	TypeOpenAI = "openai"
	TypeMemory = "memory"
	TypeQdrant = "qdrant"
)

// Environment variables that override file settings.
const (
	EnvOllamaHost = "OLLAMA_HOST"
	EnvModel      = "DOCQA_MODEL"
	EnvEmbedModel = "DOCQA_EMBED_MODEL"
)

// OllamaConfig locates the Ollama runtime shared by generation and embeddings.
type OllamaConfig struct {
	BaseURL     string `yaml:"base_url" toml:"base_url"`
	TimeoutSecs int    `yaml:"timeout_secs" toml:"timeout_secs"`
}

// OpenAIConfig holds connection details for an OpenAI-compatible endpoint.
type OpenAIConfig struct {
	BaseURL     string `yaml:"base_url" toml:"base_url"`
	APIKeyEnv   string `yaml:"api_key_env" toml:"api_key_env"`
	Model       string `yaml:"model,omitempty" toml:"model,omitempty"`
	TimeoutSecs int    `yaml:"timeout_secs" toml:"timeout_secs"`
}

// EmbedderConfig selects and configures the text embedder implementation.
type EmbedderConfig struct {
	Type        string        `yaml:"type" toml:"type"`
	Model       string        `yaml:"model" toml:"model"`
	Concurrency int           `yaml:"concurrency" toml:"concurrency"`
	RateLimit   float64       `yaml:"rate_limit" toml:"rate_limit"`
	Burst       int           `yaml:"burst" toml:"burst"`
	OpenAI      *OpenAIConfig `yaml:"openai,omitempty" toml:"openai,omitempty"`
}

// GeneratorConfig configures model selection, retries and sampling.
type GeneratorConfig struct {
	Type              string        `yaml:"type" toml:"type"`
	Model             string        `yaml:"model" toml:"model"`
	PreferredModels   []string      `yaml:"preferred_models" toml:"preferred_models"`
	MaxAttempts       int           `yaml:"max_attempts" toml:"max_attempts"`
	RetryDelayMillis  int           `yaml:"retry_delay_ms" toml:"retry_delay_ms"`
	CallTimeoutSecs   int           `yaml:"call_timeout_secs" toml:"call_timeout_secs"`
	StreamTimeoutSecs int           `yaml:"stream_timeout_secs" toml:"stream_timeout_secs"`
	TokenThreshold    int           `yaml:"token_threshold" toml:"token_threshold"`
	SummaryChunkSize  int           `yaml:"summary_chunk_size" toml:"summary_chunk_size"`
	MaxTokens         int           `yaml:"max_tokens" toml:"max_tokens"`
	Temperature       float64       `yaml:"temperature" toml:"temperature"`
	TopP              float64       `yaml:"top_p" toml:"top_p"`
	OpenAI            *OpenAIConfig `yaml:"openai,omitempty" toml:"openai,omitempty"`
}

// RetryDelay returns the pause between attempts.
func (g GeneratorConfig) RetryDelay() time.Duration {
	return time.Duration(g.RetryDelayMillis) * time.Millisecond
}

// CallTimeout bounds each one-shot generation attempt.
func (g GeneratorConfig) CallTimeout() time.Duration { return Duration(g.CallTimeoutSecs) }

// StreamTimeout bounds each streaming generation attempt.
func (g GeneratorConfig) StreamTimeout() time.Duration { return Duration(g.StreamTimeoutSecs) }

// ChunkerConfig configures how documents are split for retrieval.
type ChunkerConfig struct {
	Size    int `yaml:"size" toml:"size"`
	Overlap int `yaml:"overlap" toml:"overlap"`
}

// RetrievalConfig configures query-time context selection.
type RetrievalConfig struct {
	TopK            int `yaml:"top_k" toml:"top_k"`
	CallTimeoutSecs int `yaml:"call_timeout_secs" toml:"call_timeout_secs"`
}

// VectorStoreConfig selects and configures the vector store implementation.
type VectorStoreConfig struct {
	Type   string        `yaml:"type" toml:"type"`
	Qdrant *QdrantConfig `yaml:"qdrant,omitempty" toml:"qdrant,omitempty"`
}

// QdrantConfig contains connection details for a Qdrant vector store.
// Each session writes to its own collection named "<collection>-<session id>".
type QdrantConfig struct {
	URL         string `yaml:"url" toml:"url"`
	APIKey      string `yaml:"api_key" toml:"api_key"`
	Collection  string `yaml:"collection" toml:"collection"`
	TimeoutSecs int    `yaml:"timeout_secs" toml:"timeout_secs"`
}

// ExtractorConfig configures text extraction.
type ExtractorConfig struct {
	// OCRURL, when set, sends PDF files to a remote analyzer instead of pdftotext.
	OCRURL         string `yaml:"ocr_url" toml:"ocr_url"`
	OCRTimeoutSecs int    `yaml:"ocr_timeout_secs" toml:"ocr_timeout_secs"`
}

// AppConfig is the root application configuration structure.
type AppConfig struct {
	Ollama      OllamaConfig      `yaml:"ollama" toml:"ollama"`
	Embedder    EmbedderConfig    `yaml:"embedder" toml:"embedder"`
	Generator   GeneratorConfig   `yaml:"generator" toml:"generator"`
	Chunker     ChunkerConfig     `yaml:"chunker" toml:"chunker"`
	Retrieval   RetrievalConfig   `yaml:"retrieval" toml:"retrieval"`
	VectorStore VectorStoreConfig `yaml:"vector_store" toml:"vector_store"`
	Extractor   ExtractorConfig   `yaml:"extractor" toml:"extractor"`
}

// Load reads a config from path. A missing file yields defaults. Fields absent
// from the file keep their defaults; environment overrides are applied last.
func Load(path string) (*AppConfig, error) {
	cfg := Default()
	data, err := os.ReadFile(path)
	switch {
	case errors.Is(err, os.ErrNotExist):
	case err != nil:
		return nil, err
	default:
		if err := unmarshal(path, data, cfg); err != nil {
			return nil, fmt.Errorf("parse %s: %w", path, err)
		}
	}
	applyConfigDefaults(cfg)
	applyEnv(cfg)
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", path, err)
	}
	return cfg, nil
}

// LoadDefault tries ./docqa.yaml first, then ~/.config/docqa/config.yaml.
// If neither exists, it writes defaults to ~/.config/docqa/config.yaml and returns them.
func LoadDefault() (*AppConfig, string, error) {
	cwdPath := "docqa.yaml"
	if _, err := os.Stat(cwdPath); err == nil {
		cfg, err := Load(cwdPath)
		return cfg, cwdPath, err
	}
	userPath, err := defaultUserConfigPath()
	if err != nil {
		return nil, "", err
	}
	if _, err := os.Stat(userPath); err == nil {
		cfg, err := Load(userPath)
		return cfg, userPath, err
	}
	if err := Save(userPath, Default()); err != nil {
		return nil, "", err
	}
	cfg, err := Load(userPath)
	return cfg, userPath, err
}

// Save writes the config to the given path, creating directories as needed.
// The format follows the file extension.
func Save(path string, cfg *AppConfig) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	var (
		data []byte
		err  error
	)
	if isTOML(path) {
		data, err = toml.Marshal(cfg)
	} else {
		data, err = yaml.Marshal(cfg)
	}
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

// Validate rejects settings the application cannot run with.
func (c *AppConfig) Validate() error {
	var errs []error
	if c.Chunker.Size <= 0 {
		errs = append(errs, fmt.Errorf("chunker.size must be positive, got %d", c.Chunker.Size))
	}
	if c.Chunker.Overlap < 0 {
		errs = append(errs, fmt.Errorf("chunker.overlap must not be negative, got %d", c.Chunker.Overlap))
	} else if c.Chunker.Size > 0 && c.Chunker.Overlap >= c.Chunker.Size {
		errs = append(errs, fmt.Errorf("chunker.overlap (%d) must be smaller than chunker.size (%d)", c.Chunker.Overlap, c.Chunker.Size))
	}
	if c.Retrieval.TopK <= 0 {
		errs = append(errs, fmt.Errorf("retrieval.top_k must be positive, got %d", c.Retrieval.TopK))
	}
	if c.Generator.MaxAttempts < 1 {
		errs = append(errs, fmt.Errorf("generator.max_attempts must be at least 1, got %d", c.Generator.MaxAttempts))
	}
	for name, v := range map[string]int{
		"generator.retry_delay_ms":     c.Generator.RetryDelayMillis,
		"generator.token_threshold":    c.Generator.TokenThreshold,
		"generator.summary_chunk_size": c.Generator.SummaryChunkSize,
		"embedder.concurrency":         c.Embedder.Concurrency,
	} {
		if v < 0 {
			errs = append(errs, fmt.Errorf("%s must not be negative, got %d", name, v))
		}
	}
	if c.Embedder.RateLimit < 0 {
		errs = append(errs, fmt.Errorf("embedder.rate_limit must not be negative, got %g", c.Embedder.RateLimit))
	}
	if !oneOf(c.Embedder.Type, TypeOllama, TypeOpenAI) {
		errs = append(errs, fmt.Errorf("unknown embedder.type %q", c.Embedder.Type))
	}
	if !oneOf(c.Generator.Type, TypeOllama, TypeOpenAI) {
		errs = append(errs, fmt.Errorf("unknown generator.type %q", c.Generator.Type))
	}
	if !oneOf(c.VectorStore.Type, TypeMemory, TypeQdrant) {
		errs = append(errs, fmt.Errorf("unknown vector_store.type %q", c.VectorStore.Type))
	}
	return errors.Join(errs...)
}

// Default returns the built-in configuration.
func Default() *AppConfig {
	return &AppConfig{
		Ollama: OllamaConfig{BaseURL: "http://localhost:11434", TimeoutSecs: 10},
		Embedder: EmbedderConfig{
			Type:        TypeOllama,
			Model:       "nomic-embed-text:latest",
			Concurrency: 4,
		},
		Generator: GeneratorConfig{
			Type:              TypeOllama,
			PreferredModels:   []string{"llama3.2:1b", "llama3.2", "phi3:mini", "gemma2:2b", "qwen2.5:1.5b", "mistral"},
			MaxAttempts:       3,
			RetryDelayMillis:  1000,
			CallTimeoutSecs:   120,
			StreamTimeoutSecs: 300,
			TokenThreshold:    2500,
			SummaryChunkSize:  2000,
		},
		Chunker:     ChunkerConfig{Size: 500, Overlap: 50},
		Retrieval:   RetrievalConfig{TopK: 3, CallTimeoutSecs: 60},
		VectorStore: VectorStoreConfig{Type: TypeMemory},
	}
}

func applyConfigDefaults(cfg *AppConfig) {
	cfg.Embedder.Type = strings.ToLower(strings.TrimSpace(cfg.Embedder.Type))
	cfg.Generator.Type = strings.ToLower(strings.TrimSpace(cfg.Generator.Type))
	cfg.VectorStore.Type = strings.ToLower(strings.TrimSpace(cfg.VectorStore.Type))

	if cfg.Embedder.Type == TypeOpenAI {
		if cfg.Embedder.OpenAI == nil {
			cfg.Embedder.OpenAI = &OpenAIConfig{}
		}
		openAIDefaults(cfg.Embedder.OpenAI, "text-embedding-3-small", 30)
	}
	if cfg.Generator.Type == TypeOpenAI {
		if cfg.Generator.OpenAI == nil {
			cfg.Generator.OpenAI = &OpenAIConfig{}
		}
		openAIDefaults(cfg.Generator.OpenAI, "", 10)
	}
	if cfg.VectorStore.Type == TypeQdrant {
		if cfg.VectorStore.Qdrant == nil {
			cfg.VectorStore.Qdrant = &QdrantConfig{}
		}
		q := cfg.VectorStore.Qdrant
		if q.URL == "" {
			q.URL = "http://localhost:6333"
		}
		if q.Collection == "" {
			q.Collection = "docqa"
		}
		if q.TimeoutSecs == 0 {
			q.TimeoutSecs = 15
		}
	}
	if cfg.Extractor.OCRURL != "" && cfg.Extractor.OCRTimeoutSecs == 0 {
		cfg.Extractor.OCRTimeoutSecs = 120
	}
}

func openAIDefaults(o *OpenAIConfig, model string, timeout int) {
	if o.BaseURL == "" {
		o.BaseURL = "https://api.openai.com/v1"
	}
	if o.APIKeyEnv == "" {
		o.APIKeyEnv = "OPENAI_API_KEY"
	}
	if o.Model == "" {
		o.Model = model
	}
	if o.TimeoutSecs == 0 {
		o.TimeoutSecs = timeout
	}
}

func applyEnv(cfg *AppConfig) {
	if host := strings.TrimSpace(os.Getenv(EnvOllamaHost)); host != "" {
		if !strings.Contains(host, "://") {
			host = "http://" + host
		}
		cfg.Ollama.BaseURL = host
	}
	if m := strings.TrimSpace(os.Getenv(EnvModel)); m != "" {
		cfg.Generator.Model = m
	}
	if m := strings.TrimSpace(os.Getenv(EnvEmbedModel)); m != "" {
		cfg.Embedder.Model = m
		if cfg.Embedder.OpenAI != nil {
			cfg.Embedder.OpenAI.Model = m
		}
	}
}

func unmarshal(path string, data []byte, cfg *AppConfig) error {
	if isTOML(path) {
		return toml.Unmarshal(data, cfg)
	}
	return yaml.Unmarshal(data, cfg)
}

func isTOML(path string) bool {
	return strings.EqualFold(filepath.Ext(path), ".toml")
}

func defaultUserConfigPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".config", "docqa", "config.yaml"), nil
}

func oneOf(v string, options ...string) bool {
	for _, o := range options {
		if v == o {
			return true
		}
	}
	return false
}

// Duration converts a seconds setting to a time.Duration.
func Duration(seconds int) time.Duration { return time.Duration(seconds) * time.Second }
