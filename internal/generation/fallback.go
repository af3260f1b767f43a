package generation

import (
	"context"
	"fmt"
	"strings"
	"time"

	"docqa/internal/domain"
	"docqa/internal/logger"
)

// Fallback is the bounded retry state machine shared by every generation call.
// Each attempt picks a model, runs the call, and classifies the failure.
type Fallback struct {
	MaxAttempts int
	Delay       time.Duration
	Preferred   []string
	Classify    func(error) Class
	Sleep       func(context.Context, time.Duration) error
}

// Outcome reports which model finally served a call and how many attempts it took.
type Outcome struct {
	Model    string
	Attempts int
}

// Run calls fn until it succeeds, returns a Fatal error, or attempts run out.
// available is the model list captured for this call; it is never re-read mid-run.
func (f Fallback) Run(ctx context.Context, available []string, requested string, fn func(ctx context.Context, model string) error) (Outcome, error) {
	maxAttempts := f.MaxAttempts
	if maxAttempts < 1 {
		maxAttempts = 1
	}
	classify := f.Classify
	if classify == nil {
		classify = Classify
	}
	sleep := f.Sleep
	if sleep == nil {
		sleep = sleepCtx
	}

	var (
		out     Outcome
		tried   = map[string]bool{}
		lastErr error
	)
	for out.Attempts < maxAttempts {
		model, err := pickModel(f.Preferred, available, requested, tried, out.Model)
		if err != nil {
			if lastErr != nil {
				return out, lastErr
			}
			return out, err
		}
		out.Model = model
		out.Attempts++

		lastErr = fn(ctx, model)
		if lastErr == nil {
			return out, nil
		}
		tried[model] = true
		if classify(lastErr) == Fatal || out.Attempts == maxAttempts {
			break
		}
		logger.Warn("attempt %d/%d with model %s failed: %v", out.Attempts, maxAttempts, model, lastErr)
		if err := sleep(ctx, f.Delay); err != nil {
			return out, err
		}
	}
	return out, fmt.Errorf("generation failed after %d attempt(s): %w", out.Attempts, lastErr)
}

// pickModel applies the selection policy: the requested model first, then the preference
// list, then any discovered model. Models that already failed are skipped; when every
// candidate has failed the last model is tried again.
func pickModel(preferred, available []string, requested string, tried map[string]bool, last string) (string, error) {
	if requested != "" && !tried[requested] {
		return requested, nil
	}
	for _, p := range preferred {
		if name, ok := lookup(available, p); ok && !tried[name] {
			return name, nil
		}
	}
	for _, m := range available {
		if !tried[m] {
			return m, nil
		}
	}
	if last != "" {
		return last, nil
	}
	return "", domain.ErrNoModelAvailable
}

// lookup finds name in models, treating "x" and "x:latest" as the same model.
func lookup(models []string, name string) (string, bool) {
	want := canonical(name)
	for _, m := range models {
		if canonical(m) == want {
			return m, true
		}
	}
	return "", false
}

func canonical(name string) string {
	return strings.TrimSuffix(strings.ToLower(strings.TrimSpace(name)), ":latest")
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
