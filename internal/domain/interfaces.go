package domain

import (
	"context"
	"time"
)

// Chunk is one indexed segment of the active document.
type Chunk struct {
	ID       string
	Text     string
	Index    int
	Metadata map[string]string
}

// SearchResult represents a matching chunk with a similarity score.
type SearchResult struct {
	Chunk Chunk
	Score float64
}

// Role identifies the author of a chat message.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message is one entry of a conversation.
type Message struct {
	Role      Role
	Content   string
	Timestamp time.Time
}

// ModelDescriptor names a model installed on the generation runtime.
type ModelDescriptor struct {
	Name string
}

// GenerateOptions are optional sampling parameters. Zero values mean runtime defaults.
type GenerateOptions struct {
	MaxTokens   int
	Temperature float64
	TopP        float64
}

// ChatRequest is a single call to a generation capability.
type ChatRequest struct {
	Model    string
	Messages []Message
	Options  GenerateOptions
}

// StreamUnit is one element of a streamed generation.
// The last unit sent on a stream has Done set; Err is non-nil when the stream failed.
type StreamUnit struct {
	Content string
	// Sources holds the retrieved chunks used for an answer. Only the first unit carries it.
	Sources      []string
	Done         bool
	Err          error
	ErrorMessage string
}

// IsError reports whether u terminates a failed stream.
func (u StreamUnit) IsError() bool { return u.Err != nil }

// Embedder converts free text into a numeric vector representation.
type Embedder interface {
	Name() string
	// Dimension is zero until the first successful Embed.
	Dimension() int
	Embed(ctx context.Context, text string) ([]float64, error)
}

// Chunker splits document text into retrieval-sized segments.
type Chunker interface {
	Split(text string) []string
}

// Generator is a text-generation runtime.
// ChatStream closes both channels when done; at most one error is sent.
type Generator interface {
	Chat(ctx context.Context, req ChatRequest) (string, error)
	ChatStream(ctx context.Context, req ChatRequest) (<-chan string, <-chan error)
	ListModels(ctx context.Context) ([]ModelDescriptor, error)
}

// Extractor turns an uploaded file into plain text.
type Extractor interface {
	Extract(ctx context.Context, filename, mimeType string, data []byte) (string, error)
}
