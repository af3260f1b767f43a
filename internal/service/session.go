// Package service ties one uploaded document to its index, summary, suggested
// questions and conversation.
package service

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"

	"docqa/internal/domain"
	"docqa/internal/generation"
	"docqa/internal/logger"
	"docqa/internal/retriever"
	"docqa/internal/summarizer"
	"docqa/internal/tokens"
)

// ErrNoDocument is returned by operations that need a loaded document.
var ErrNoDocument = errors.New("no document loaded")

// Metadata keys attached to every indexed chunk.
const (
	MetaSource    = "source"
	MetaType      = "type"
	MetaTimestamp = "timestamp"
)

// fallbackSentences is the length of the extractive summary used for questions
// when no generated summary exists.
const fallbackSentences = 8

// NewID returns a new sortable session identifier.
func NewID() string {
	return ulid.MustNew(ulid.Now(), rand.Reader).String()
}

// Document describes the active upload.
type Document struct {
	Name     string
	MIMEType string
	Text     string
	LoadedAt time.Time
}

// Status is a snapshot of the session's indexing state.
type Status struct {
	ID     string
	Source string
	State  retriever.State
	Chunks int
	Err    error
}

// Option configures a Session.
type Option func(*Session)

// WithID sets the session identifier, e.g. to match a per-session index name.
func WithID(id string) Option {
	return func(s *Session) {
		if id != "" {
			s.id = id
		}
	}
}

// WithModel sets the requested generation model. Empty means automatic selection.
func WithModel(model string) Option {
	return func(s *Session) { s.model = model }
}

// WithTopK sets how many chunks ground each answer.
func WithTopK(k int) Option {
	return func(s *Session) {
		if k > 0 {
			s.topK = k
		}
	}
}

// WithClock replaces time.Now for timestamps.
func WithClock(now func() time.Time) Option {
	return func(s *Session) { s.now = now }
}

// Session serves one document at a time. Requests are serialized: a streaming
// request holds the session until its stream has been drained.
type Session struct {
	id         string
	extractor  domain.Extractor
	retriever  *retriever.Retriever
	gen        *generation.Client
	extractive *summarizer.Frequency
	topK       int
	now        func() time.Time

	// sem admits one request at a time.
	sem chan struct{}

	mu          sync.RWMutex
	model       string
	doc         Document
	summary     string
	questions   []string
	messages    []domain.Message
	tokenCount  int
	tokensKnown bool
}

// New creates an empty session.
func New(ex domain.Extractor, r *retriever.Retriever, gen *generation.Client, opts ...Option) *Session {
	s := &Session{
		extractor:  ex,
		retriever:  r,
		gen:        gen,
		extractive: summarizer.NewFrequency(),
		topK:       retriever.DefaultTopK,
		now:        time.Now,
		sem:        make(chan struct{}, 1),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.id == "" {
		s.id = NewID()
	}
	return s
}

// ID returns the session identifier.
func (s *Session) ID() string { return s.id }

// Model returns the requested generation model.
func (s *Session) Model() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.model
}

// SetModel changes the requested generation model for later requests.
func (s *Session) SetModel(model string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.model = model
}

func (s *Session) acquire(ctx context.Context) error {
	select {
	case s.sem <- struct{}{}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Session) release() { <-s.sem }

// Load extracts text from an uploaded file and ingests it.
func (s *Session) Load(ctx context.Context, filename, mimeType string, data []byte) (Status, error) {
	if err := s.acquire(ctx); err != nil {
		return s.Status(), err
	}
	defer s.release()

	text, err := s.extractor.Extract(ctx, filename, mimeType, data)
	if err != nil {
		return s.Status(), fmt.Errorf("extract %s: %w", filename, err)
	}
	if mimeType == "" {
		mimeType = "application/octet-stream"
		if d, ok := s.extractor.(interface{ Detect(string, []byte) string }); ok {
			mimeType = d.Detect(filename, data)
		}
	}
	return s.ingest(ctx, Document{Name: filename, MIMEType: mimeType, Text: text})
}

// Ingest replaces the active document with text. metadata may carry the source
// name and content type; a timestamp is always added.
func (s *Session) Ingest(ctx context.Context, text string, metadata map[string]string) (Status, error) {
	if err := s.acquire(ctx); err != nil {
		return s.Status(), err
	}
	defer s.release()
	return s.ingest(ctx, Document{Name: metadata[MetaSource], MIMEType: metadata[MetaType], Text: text})
}

// ingest resets every derived field before indexing, so nothing of the previous
// document survives even when indexing fails.
func (s *Session) ingest(ctx context.Context, doc Document) (Status, error) {
	doc.LoadedAt = s.now()
	s.mu.Lock()
	s.doc = doc
	s.summary = ""
	s.questions = nil
	s.messages = nil
	s.tokenCount, s.tokensKnown = 0, false
	s.mu.Unlock()

	meta := map[string]string{
		MetaSource:    doc.Name,
		MetaType:      doc.MIMEType,
		MetaTimestamp: doc.LoadedAt.Format(time.RFC3339),
	}
	err := s.retriever.Ingest(ctx, doc.Text, meta)
	st := s.Status()
	if err != nil {
		return st, err
	}
	logger.Info("session %s: loaded %q (%d chunks)", s.id, doc.Name, st.Chunks)
	return st, nil
}

// Status returns the current indexing status.
func (s *Session) Status() Status {
	s.mu.RLock()
	source := s.doc.Name
	s.mu.RUnlock()
	return Status{
		ID:     s.id,
		Source: source,
		State:  s.retriever.State(),
		Chunks: s.retriever.Chunks(),
		Err:    s.retriever.Err(),
	}
}

// State returns the indexing state.
func (s *Session) State() retriever.State { return s.retriever.State() }

// Document returns the active document.
func (s *Session) Document() Document {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.doc
}

func (s *Session) text() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.doc.Text
}

// EstimateTokens returns the memoized token estimate of the active document.
func (s *Session) EstimateTokens() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.tokensKnown {
		s.tokenCount = tokens.Estimate(s.doc.Text)
		s.tokensKnown = true
	}
	return s.tokenCount
}

// Summary returns the stored summary, if one has been generated.
func (s *Session) Summary() (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.summary, s.summary != ""
}

// Summarize streams a summary of the active document. A stream that completes
// without error is stored as the session summary.
func (s *Session) Summarize(ctx context.Context) (<-chan domain.StreamUnit, error) {
	if err := s.acquire(ctx); err != nil {
		return nil, err
	}
	text := s.text()
	if strings.TrimSpace(text) == "" {
		s.release()
		return nil, ErrNoDocument
	}
	in := s.gen.Summarize(ctx, text, s.Model())
	return s.relay(ctx, in, func(content string, last domain.StreamUnit) {
		if last.Done && !last.IsError() {
			s.mu.Lock()
			s.summary = strings.TrimSpace(content)
			s.mu.Unlock()
		}
	}), nil
}

// Questions returns the stored suggested questions.
func (s *Session) Questions() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]string(nil), s.questions...)
}

// SuggestQuestions proposes exactly three questions about the active document,
// based on the stored summary or, without one, an extractive summary.
func (s *Session) SuggestQuestions(ctx context.Context) (generation.Questions, error) {
	if err := s.acquire(ctx); err != nil {
		return generation.Questions{}, err
	}
	defer s.release()

	s.mu.RLock()
	summary, text := s.summary, s.doc.Text
	s.mu.RUnlock()
	if strings.TrimSpace(text) == "" {
		return generation.Questions{}, ErrNoDocument
	}
	if summary == "" {
		summary = s.extractive.Summarize(text, fallbackSentences)
		logger.Debug("no summary yet, using extractive summary for questions")
	}

	q := s.gen.GenerateQuestions(ctx, summary, s.Model())
	s.mu.Lock()
	s.questions = append([]string(nil), q.Items...)
	s.mu.Unlock()
	return q, nil
}

// Ask streams an answer to question grounded in the k nearest chunks; k <= 0 uses
// the session default. Retrieval errors are returned before any stream starts.
// The question and the final answer, or its user-safe error message, are appended
// to the conversation.
func (s *Session) Ask(ctx context.Context, question string, k int) (<-chan domain.StreamUnit, error) {
	question = strings.TrimSpace(question)
	if question == "" {
		return nil, domain.ErrEmptyQuery
	}
	if err := s.acquire(ctx); err != nil {
		return nil, err
	}
	if k <= 0 {
		k = s.topK
	}
	chunks, err := s.retriever.Retrieve(ctx, question, k)
	if err != nil {
		s.release()
		return nil, err
	}
	s.appendMessage(domain.RoleUser, question)

	in := s.gen.Answer(ctx, question, chunks, s.Model())
	return s.relay(ctx, in, func(content string, last domain.StreamUnit) {
		switch {
		case last.IsError():
			s.appendMessage(domain.RoleAssistant, strings.TrimSpace(content+"\n\n"+last.ErrorMessage))
		case last.Done:
			s.appendMessage(domain.RoleAssistant, content)
		}
	}), nil
}

// relay forwards units from in to the caller and calls done with the accumulated
// content and the last unit once in is closed. The session is released before out closes.
func (s *Session) relay(ctx context.Context, in <-chan domain.StreamUnit, done func(string, domain.StreamUnit)) <-chan domain.StreamUnit {
	out := make(chan domain.StreamUnit, 16)
	go func() {
		defer close(out)
		defer s.release()
		var (
			b    strings.Builder
			last domain.StreamUnit
		)
		for u := range in {
			b.WriteString(u.Content)
			last = u
			if ctx.Err() != nil {
				continue
			}
			select {
			case out <- u:
			case <-ctx.Done():
			}
		}
		done(b.String(), last)
	}()
	return out
}

func (s *Session) appendMessage(role domain.Role, content string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.messages = append(s.messages, domain.Message{Role: role, Content: content, Timestamp: s.now()})
}

// Messages returns the whole conversation.
func (s *Session) Messages() []domain.Message {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]domain.Message(nil), s.messages...)
}

// Conversation returns the last n messages for display; n <= 0 returns all.
// History is never sent to the model.
func (s *Session) Conversation(n int) []domain.Message {
	msgs := s.Messages()
	if n > 0 && len(msgs) > n {
		msgs = msgs[len(msgs)-n:]
	}
	return msgs
}

// Models lists the generation models available to this session.
func (s *Session) Models(ctx context.Context) []string { return s.gen.Models(ctx) }

// Health reports whether the index is reachable and the embedder responds.
func (s *Session) Health(ctx context.Context) error { return s.retriever.Health(ctx) }

// HealthCheck is Health as a boolean readiness probe.
func (s *Session) HealthCheck(ctx context.Context) bool {
	if err := s.Health(ctx); err != nil {
		logger.Warn("health check failed: %v", err)
		return false
	}
	return true
}

// Close drops the document and its index.
func (s *Session) Close(ctx context.Context) error {
	if err := s.acquire(ctx); err != nil {
		return err
	}
	defer s.release()
	s.mu.Lock()
	s.doc = Document{}
	s.summary = ""
	s.questions = nil
	s.messages = nil
	s.tokenCount, s.tokensKnown = 0, false
	s.mu.Unlock()
	return s.retriever.Reset(ctx)
}
