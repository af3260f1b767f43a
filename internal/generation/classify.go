package generation

import (
	"context"
	"errors"
	"net"
	"strings"

	"docqa/internal/domain"
)

// Class tells the fallback loop what to do with a failed attempt.
type Class int

const (
	// Fatal errors end the loop immediately.
	Fatal Class = iota
	// Retryable errors move on to a fallback model after a delay.
	Retryable
)

// permanentError marks an error that must not be retried.
type permanentError struct{ err error }

func (e *permanentError) Error() string { return e.err.Error() }
func (e *permanentError) Unwrap() error { return e.err }

// Permanent wraps err so Classify reports it as Fatal.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanentError{err: err}
}

// Classify decides whether err is worth another attempt. Structured kinds from the
// backends are trusted first; message matching is the fallback for untyped errors.
func Classify(err error) Class {
	if err == nil {
		return Fatal
	}
	var perm *permanentError
	if errors.As(err, &perm) {
		return Fatal
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, domain.ErrNoModelAvailable) {
		return Fatal
	}
	var me *domain.ModelError
	if errors.As(err, &me) && me.Kind != domain.KindUnknown {
		return Retryable
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return Retryable
	}
	var ne net.Error
	if errors.As(err, &ne) && ne.Timeout() {
		return Retryable
	}
	if KindFromMessage(err.Error()) != domain.KindUnknown {
		return Retryable
	}
	return Fatal
}

var kindMarkers = []struct {
	kind    domain.ModelErrorKind
	markers []string
}{
	{domain.KindResourceExhausted, []string{
		"out of memory", "insufficient memory", "more system memory", "not enough memory",
		"cuda error", "cuda out", "resource exhausted", "gpu", "vram", "memory",
	}},
	{domain.KindOverloaded, []string{
		"server busy", "overloaded", "too many requests", "loading model", "failed to load",
		"unable to load", "model is loading", "resource", "try again",
	}},
	{domain.KindModelNotFound, []string{"model not found", "not found, try pulling", "no such model"}},
	{domain.KindTimeout, []string{"timeout", "timed out", "deadline exceeded"}},
	{domain.KindUnreachable, []string{"connection refused", "connection reset", "no such host", "eof"}},
}

// KindFromMessage classifies a runtime error message by substring.
func KindFromMessage(msg string) domain.ModelErrorKind {
	lower := strings.ToLower(msg)
	for _, km := range kindMarkers {
		for _, m := range km.markers {
			if strings.Contains(lower, m) {
				return km.kind
			}
		}
	}
	return domain.KindUnknown
}
