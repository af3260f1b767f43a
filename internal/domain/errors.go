package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidInput is returned for malformed arguments.
	ErrInvalidInput = errors.New("invalid input")

	// ErrEmptyQuery is returned when a question or query is blank.
	ErrEmptyQuery = errors.New("empty query")

	// ErrUnsupportedFormat is returned for file types no extractor handles.
	ErrUnsupportedFormat = errors.New("unsupported format")

	// ErrDecode is returned when file content cannot be decoded.
	ErrDecode = errors.New("decode error")

	// ErrEmbeddingUnavailable is returned when the embedding capability fails.
	ErrEmbeddingUnavailable = errors.New("embedding unavailable")

	// ErrIndexEmpty is returned when searching an index with no stored chunks.
	ErrIndexEmpty = errors.New("index empty")

	// ErrDimensionMismatch is returned when vectors of different sizes meet in one index.
	ErrDimensionMismatch = errors.New("vector dimension mismatch")

	// ErrNotIndexed is returned when retrieval is attempted before a successful ingest.
	ErrNotIndexed = errors.New("no document has been indexed")

	// ErrIngestInProgress is returned when a second ingest starts on a busy session.
	ErrIngestInProgress = errors.New("ingest already in progress")

	// ErrNoModelAvailable is returned when no generation model can be selected.
	ErrNoModelAvailable = errors.New("no model available")
)

// ModelErrorKind classifies generation runtime failures.
type ModelErrorKind int

const (
	KindUnknown ModelErrorKind = iota
	KindResourceExhausted
	KindOverloaded
	KindModelNotFound
	KindTimeout
	KindUnreachable
)

func (k ModelErrorKind) String() string {
	switch k {
	case KindResourceExhausted:
		return "resource exhausted"
	case KindOverloaded:
		return "overloaded"
	case KindModelNotFound:
		return "model not found"
	case KindTimeout:
		return "timeout"
	case KindUnreachable:
		return "unreachable"
	default:
		return "unknown"
	}
}

// ModelError is a generation failure annotated with a structured kind.
type ModelError struct {
	Kind       ModelErrorKind
	Model      string
	StatusCode int
	Err        error
}

func (e *ModelError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("model %q: %s (status %d): %v", e.Model, e.Kind, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("model %q: %s: %v", e.Model, e.Kind, e.Err)
}

func (e *ModelError) Unwrap() error { return e.Err }
