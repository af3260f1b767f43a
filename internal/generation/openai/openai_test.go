package openai

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

func newTestClient(t *testing.T, h http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	c, err := NewClient(Config{BaseURL: srv.URL + "/v1"})
	require.NoError(t, err)
	return c
}

func request() domain.ChatRequest {
	return domain.ChatRequest{
		Model: "local-model",
		Messages: []domain.Message{
			{Role: domain.RoleSystem, Content: "be brief"},
			{Role: domain.RoleUser, Content: "hi"},
		},
		Options: domain.GenerateOptions{MaxTokens: 32},
	}
}

func TestNewClient_RequiresKeyForHostedAPI(t *testing.T) {
	t.Setenv("DOCQA_TEST_OPENAI_KEY", "")
	_, err := NewClient(Config{APIKeyEnv: "DOCQA_TEST_OPENAI_KEY"})
	assert.Error(t, err)
}

func TestListModels(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/models", r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"object":"list","data":[{"id":"qwen2.5:1.5b","object":"model","created":0,"owned_by":"me"},{"id":"phi3:mini","object":"model","created":0,"owned_by":"me"}]}`))
	})

	models, err := c.ListModels(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []domain.ModelDescriptor{{Name: "qwen2.5:1.5b"}, {Name: "phi3:mini"}}, models)
}

func TestChat(t *testing.T) {
	var body map[string]any
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/chat/completions", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"1","object":"chat.completion","created":0,"model":"local-model","choices":[{"index":0,"finish_reason":"stop","message":{"role":"assistant","content":"hello"}}]}`))
	})

	text, err := c.Chat(context.Background(), request())
	require.NoError(t, err)
	assert.Equal(t, "hello", text)
	assert.Equal(t, "local-model", body["model"])
	assert.EqualValues(t, 32, body["max_tokens"])
	msgs, ok := body["messages"].([]any)
	require.True(t, ok)
	require.Len(t, msgs, 2)
	assert.Equal(t, "system", msgs[0].(map[string]any)["role"])
}

func TestChat_ErrorMapping(t *testing.T) {
	tests := []struct {
		name     string
		status   int
		message  string
		wantKind domain.ModelErrorKind
		retry    generation.Class
	}{
		{"missing model", http.StatusNotFound, "model not found", domain.KindModelNotFound, generation.Retryable},
		{"rate limited", http.StatusTooManyRequests, "slow down", domain.KindOverloaded, generation.Retryable},
		{"memory", http.StatusInternalServerError, "out of memory", domain.KindResourceExhausted, generation.Retryable},
		{"bad request", http.StatusBadRequest, "invalid messages", domain.KindUnknown, generation.Fatal},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(tt.status)
				fmt.Fprintf(w, `{"error":{"message":%q,"type":"error","code":"x"}}`, tt.message)
			})

			_, err := c.Chat(context.Background(), request())
			var me *domain.ModelError
			require.ErrorAs(t, err, &me)
			assert.Equal(t, tt.wantKind, me.Kind)
			assert.Equal(t, tt.status, me.StatusCode)
			assert.Equal(t, tt.retry, generation.Classify(err))
		})
	}
}

func TestChatStream(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		for _, part := range []string{"Hel", "lo", ""} {
			fmt.Fprintf(w, "data: {\"id\":\"1\",\"object\":\"chat.completion.chunk\",\"created\":0,\"model\":\"m\",\"choices\":[{\"index\":0,\"delta\":{\"content\":%q}}]}\n\n", part)
		}
		fmt.Fprint(w, "data: [DONE]\n\n")
	})

	deltas, errs := c.ChatStream(context.Background(), request())
	var got []string
	for d := range deltas {
		got = append(got, d)
	}
	require.NoError(t, <-errs)
	assert.Equal(t, []string{"Hel", "lo"}, got)
}

func TestChatStream_Unreachable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()
	c, err := NewClient(Config{BaseURL: url})
	require.NoError(t, err)

	deltas, errs := c.ChatStream(context.Background(), request())
	for range deltas {
	}
	var me *domain.ModelError
	require.ErrorAs(t, <-errs, &me)
	assert.Equal(t, domain.KindUnreachable, me.Kind)
}
