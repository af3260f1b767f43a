package ollama

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"docqa/internal/domain"
	"docqa/internal/generation"
)

func request(model string) domain.ChatRequest {
	return domain.ChatRequest{
		Model:    model,
		Messages: []domain.Message{{Role: domain.RoleUser, Content: "hi"}},
		Options:  domain.GenerateOptions{MaxTokens: 64},
	}
}

func drain(deltas <-chan string, errs <-chan error) ([]string, error) {
	var got []string
	for d := range deltas {
		got = append(got, d)
	}
	return got, <-errs
}

func TestListModels(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/tags", r.URL.Path)
		_, _ = w.Write([]byte(`{"models":[{"name":"llama3.2:1b"},{"model":"phi3:mini"},{"name":""}]}`))
	}))
	defer srv.Close()

	models, err := NewClient(Config{BaseURL: srv.URL}).ListModels(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []domain.ModelDescriptor{{Name: "llama3.2:1b"}, {Name: "phi3:mini"}}, models)
}

func TestListModels_Unreachable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	_, err := NewClient(Config{BaseURL: url}).ListModels(context.Background())
	var me *domain.ModelError
	require.ErrorAs(t, err, &me)
	assert.Equal(t, domain.KindUnreachable, me.Kind)
}

func TestChat(t *testing.T) {
	var got chatRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/chat", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		_, _ = w.Write([]byte(`{"message":{"role":"assistant","content":"hello there"},"done":true}`))
	}))
	defer srv.Close()

	text, err := NewClient(Config{BaseURL: srv.URL}).Chat(context.Background(), request("llama3.2:1b"))
	require.NoError(t, err)
	assert.Equal(t, "hello there", text)
	assert.False(t, got.Stream)
	assert.Equal(t, "llama3.2:1b", got.Model)
	require.NotNil(t, got.Options)
	assert.Equal(t, 64, got.Options.NumPredict)
	assert.Equal(t, []chatMessage{{Role: "user", Content: "hi"}}, got.Messages)
}

func TestChat_ErrorMapping(t *testing.T) {
	tests := []struct {
		name     string
		status   int
		body     string
		wantKind domain.ModelErrorKind
		retry    generation.Class
	}{
		{"memory", http.StatusInternalServerError, `{"error":"model requires more system memory (5.6 GiB) than is available"}`, domain.KindResourceExhausted, generation.Retryable},
		{"missing model", http.StatusNotFound, `{"error":"model 'x' not found"}`, domain.KindModelNotFound, generation.Retryable},
		{"busy", http.StatusServiceUnavailable, `busy`, domain.KindOverloaded, generation.Retryable},
		{"bad request", http.StatusBadRequest, `{"error":"invalid options"}`, domain.KindUnknown, generation.Fatal},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			}))
			defer srv.Close()

			_, err := NewClient(Config{BaseURL: srv.URL}).Chat(context.Background(), request("m"))
			var me *domain.ModelError
			require.ErrorAs(t, err, &me)
			assert.Equal(t, tt.wantKind, me.Kind)
			assert.Equal(t, tt.status, me.StatusCode)
			assert.Equal(t, "m", me.Model)
			assert.Equal(t, tt.retry, generation.Classify(err))
		})
	}
}

func TestChatStream(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req chatRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.True(t, req.Stream)
		for _, part := range []string{"The", " answer", ""} {
			fmt.Fprintf(w, `{"message":{"role":"assistant","content":%q},"done":false}`+"\n\n", part)
		}
		fmt.Fprintln(w, `{"message":{"role":"assistant","content":""},"done":true}`)
	}))
	defer srv.Close()

	deltas, errs := NewClient(Config{BaseURL: srv.URL}).ChatStream(context.Background(), request("m"))
	got, err := drain(deltas, errs)
	require.NoError(t, err)
	assert.Equal(t, []string{"The", " answer"}, got)
}

func TestChatStream_ErrorLine(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintln(w, `{"message":{"content":"par"},"done":false}`)
		fmt.Fprintln(w, `{"error":"CUDA error: out of memory"}`)
	}))
	defer srv.Close()

	deltas, errs := NewClient(Config{BaseURL: srv.URL}).ChatStream(context.Background(), request("m"))
	got, err := drain(deltas, errs)
	assert.Equal(t, []string{"par"}, got)
	var me *domain.ModelError
	require.ErrorAs(t, err, &me)
	assert.Equal(t, domain.KindResourceExhausted, me.Kind)
}

func TestChatStream_Truncated(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintln(w, `{"message":{"content":"par"},"done":false}`)
	}))
	defer srv.Close()

	deltas, errs := NewClient(Config{BaseURL: srv.URL}).ChatStream(context.Background(), request("m"))
	_, err := drain(deltas, errs)
	var me *domain.ModelError
	require.ErrorAs(t, err, &me)
	assert.Equal(t, domain.KindUnreachable, me.Kind)
}

func TestChatStream_MalformedLine(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintln(w, `not json`)
	}))
	defer srv.Close()

	deltas, errs := NewClient(Config{BaseURL: srv.URL}).ChatStream(context.Background(), request("m"))
	_, err := drain(deltas, errs)
	assert.ErrorIs(t, err, domain.ErrDecode)
}

func TestChatStream_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	defer srv.Close()

	deltas, errs := NewClient(Config{BaseURL: srv.URL}).ChatStream(ctx, request("m"))
	_, err := drain(deltas, errs)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, generation.Fatal, generation.Classify(err))
}
