// Package embedding holds embedding backends and decorators shared by them.
package embedding

import (
	"context"

	"golang.org/x/time/rate"

	"docqa/internal/domain"
)

// Throttled limits how fast the wrapped embedder is called.
type Throttled struct {
	next    domain.Embedder
	limiter *rate.Limiter
}

// Throttle wraps e with a token bucket of rps requests per second.
// A non-positive rps returns e unchanged.
func Throttle(e domain.Embedder, rps float64, burst int) domain.Embedder {
	if rps <= 0 {
		return e
	}
	if burst < 1 {
		burst = 1
	}
	return &Throttled{next: e, limiter: rate.NewLimiter(rate.Limit(rps), burst)}
}

func (t *Throttled) Name() string   { return t.next.Name() }
func (t *Throttled) Dimension() int { return t.next.Dimension() }

// Embed waits for a token, then delegates.
func (t *Throttled) Embed(ctx context.Context, text string) ([]float64, error) {
	if err := t.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	return t.next.Embed(ctx, text)
}
