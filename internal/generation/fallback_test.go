package generation

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"docqa/internal/domain"
)

func noSleep(context.Context, time.Duration) error { return nil }

func TestFallback_Run(t *testing.T) {
	available := []string{"mistral:latest", "phi3:mini", "llama3.2:1b"}
	preferred := []string{"llama3.2:1b", "phi3:mini"}

	tests := []struct {
		name      string
		requested string
		failures  map[string]error
		wantCalls []string
		wantModel string
		wantErr   bool
	}{
		{
			name:      "requested model succeeds",
			requested: "mistral:latest",
			wantCalls: []string{"mistral:latest"},
			wantModel: "mistral:latest",
		},
		{
			name:      "no request uses preference order",
			wantCalls: []string{"llama3.2:1b"},
			wantModel: "llama3.2:1b",
		},
		{
			name:      "memory error falls back to preferred model",
			requested: "mistral:latest",
			failures:  map[string]error{"mistral:latest": errOOM},
			wantCalls: []string{"mistral:latest", "llama3.2:1b"},
			wantModel: "llama3.2:1b",
		},
		{
			name:      "exhausts three attempts",
			requested: "mistral:latest",
			failures: map[string]error{
				"mistral:latest": errOOM, "llama3.2:1b": errOOM, "phi3:mini": errOOM,
			},
			wantCalls: []string{"mistral:latest", "llama3.2:1b", "phi3:mini"},
			wantModel: "phi3:mini",
			wantErr:   true,
		},
		{
			name:      "fatal error is not retried",
			requested: "mistral:latest",
			failures:  map[string]error{"mistral:latest": errors.New("bad request")},
			wantCalls: []string{"mistral:latest"},
			wantModel: "mistral:latest",
			wantErr:   true,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var calls []string
			f := Fallback{MaxAttempts: 3, Delay: time.Second, Preferred: preferred, Sleep: noSleep}
			out, err := f.Run(context.Background(), available, tt.requested, func(_ context.Context, model string) error {
				calls = append(calls, model)
				return tt.failures[model]
			})
			assert.Equal(t, tt.wantCalls, calls)
			assert.Equal(t, tt.wantModel, out.Model)
			assert.Equal(t, len(tt.wantCalls), out.Attempts)
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestFallback_RetriesSameModelWhenNoAlternative(t *testing.T) {
	var calls []string
	var delays []time.Duration
	f := Fallback{
		MaxAttempts: 3,
		Delay:       250 * time.Millisecond,
		Sleep: func(_ context.Context, d time.Duration) error {
			delays = append(delays, d)
			return nil
		},
	}
	_, err := f.Run(context.Background(), []string{"only"}, "", func(_ context.Context, model string) error {
		calls = append(calls, model)
		return errOOM
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, errOOM)
	assert.Equal(t, []string{"only", "only", "only"}, calls)
	assert.Equal(t, []time.Duration{250 * time.Millisecond, 250 * time.Millisecond}, delays)
}

func TestFallback_NoModels(t *testing.T) {
	called := false
	_, err := Fallback{MaxAttempts: 3, Sleep: noSleep}.Run(context.Background(), nil, "", func(context.Context, string) error {
		called = true
		return nil
	})
	assert.ErrorIs(t, err, domain.ErrNoModelAvailable)
	assert.False(t, called)
}

func TestFallback_StopsWhenContextEnds(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	f := Fallback{
		MaxAttempts: 3,
		Delay:       time.Hour,
		Sleep: func(ctx context.Context, _ time.Duration) error {
			cancel()
			return ctx.Err()
		},
	}
	_, err := f.Run(ctx, []string{"a", "b"}, "", func(context.Context, string) error {
		calls++
		return errOOM
	})
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, calls)
}

func TestPickModel(t *testing.T) {
	available := []string{"mistral:latest", "llama3.2:latest"}
	m, err := pickModel([]string{"phi3:mini", "llama3.2"}, available, "", nil, "")
	require.NoError(t, err)
	assert.Equal(t, "llama3.2:latest", m, "preferred names match their :latest tag")

	m, err = pickModel([]string{"phi3:mini"}, available, "", nil, "")
	require.NoError(t, err)
	assert.Equal(t, "mistral:latest", m, "first discovered model when no preference is installed")

	_, err = pickModel([]string{"phi3:mini"}, nil, "", nil, "")
	assert.ErrorIs(t, err, domain.ErrNoModelAvailable)
}
