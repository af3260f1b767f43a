package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// ollamaEmulator serves the subset of the Ollama API docqa uses.
type ollamaEmulator struct {
	answer    string
	questions string
	failChat  bool
	chats     atomic.Int32
}

func (e *ollamaEmulator) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	switch r.URL.Path {
	case "/api/tags":
		_, _ = w.Write([]byte(`{"models":[{"name":"llama3.2:1b"},{"name":"nomic-embed-text:latest"}]}`))
	case "/api/embeddings":
		var req struct {
			Prompt string `json:"prompt"`
		}
		_ = json.NewDecoder(r.Body).Decode(&req)
		_ = json.NewEncoder(w).Encode(map[string]any{"embedding": letterVector(req.Prompt)})
	case "/api/chat":
		e.chats.Add(1)
		var req struct {
			Stream bool `json:"stream"`
		}
		_ = json.NewDecoder(r.Body).Decode(&req)
		if e.failChat {
			w.WriteHeader(http.StatusInternalServerError)
			_, _ = w.Write([]byte(`{"error":"model requires more system memory than is available"}`))
			return
		}
		if !req.Stream {
			_ = json.NewEncoder(w).Encode(map[string]any{
				"message": map[string]string{"role": "assistant", "content": e.questions},
				"done":    true,
			})
			return
		}
		enc := json.NewEncoder(w)
		for _, word := range strings.SplitAfter(e.answer, " ") {
			_ = enc.Encode(map[string]any{"message": map[string]string{"role": "assistant", "content": word}})
			w.(http.Flusher).Flush()
		}
		_ = enc.Encode(map[string]any{"message": map[string]string{"role": "assistant"}, "done": true})
	default:
		http.NotFound(w, r)
	}
}

func letterVector(text string) []float64 {
	v := make([]float64, 26)
	for _, r := range strings.ToLower(text) {
		if r >= 'a' && r <= 'z' {
			v[r-'a']++
		}
	}
	v[0] += 0.5
	return v
}

const zooDoc = `The city zoo opens at nine in the morning and closes at six.

Tickets cost twelve dollars for adults and five dollars for children.

The reptile house was renovated last year and now holds forty species.`

func newEmulator(t *testing.T) (*ollamaEmulator, *httptest.Server) {
	t.Helper()
	emu := &ollamaEmulator{
		answer:    "The zoo opens at nine.",
		questions: "1. When does the zoo open?\n2. How much are tickets?\n3. What is in the reptile house?",
	}
	srv := httptest.NewServer(emu)
	t.Cleanup(srv.Close)
	return emu, srv
}

// setup writes a config pointing at baseURL and a document, and resets
// command flags left over from earlier runs.
func setup(t *testing.T, baseURL string) (string, string) {
	t.Helper()
	t.Setenv("OLLAMA_HOST", "")
	t.Setenv("DOCQA_MODEL", "")
	t.Setenv("DOCQA_EMBED_MODEL", "")
	dir := t.TempDir()
	cfg := filepath.Join(dir, "docqa.yaml")
	require.NoError(t, os.WriteFile(cfg, []byte(`ollama:
  base_url: `+baseURL+`
  timeout_secs: 5
generator:
  retry_delay_ms: 1
  max_attempts: 2
`), 0o644))
	doc := filepath.Join(dir, "zoo.txt")
	require.NoError(t, os.WriteFile(doc, []byte(zooDoc), 0o644))

	cfgPath, verbose, modelFlag = "", false, ""
	askTopK, askSources, questionsJSON, chatWatch = 0, false, false, false
	return cfg, doc
}

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	buf := new(bytes.Buffer)
	rootCmd.SetOut(buf)
	rootCmd.SetErr(buf)
	rootCmd.SetArgs(args)
	defer func() {
		rootCmd.SetArgs(nil)
		rootCmd.SetOut(nil)
		rootCmd.SetErr(nil)
	}()
	err := rootCmd.ExecuteContext(context.Background())
	return buf.String(), err
}

func TestRootCmd_Flags(t *testing.T) {
	assert.Equal(t, "docqa", rootCmd.Use)
	for _, name := range []string{"config", "verbose", "model"} {
		assert.NotNil(t, rootCmd.PersistentFlags().Lookup(name), name)
	}
	assert.Equal(t, "v", rootCmd.PersistentFlags().Lookup("verbose").Shorthand)
	assert.Equal(t, "k", askCmd.Flags().Lookup("top-k").Shorthand)
	assert.NotNil(t, chatCmd.Flags().Lookup("watch"))
}

func TestSummarizeCmd(t *testing.T) {
	_, srv := newEmulator(t)
	cfg, doc := setup(t, srv.URL)

	out, err := run(t, "summarize", "--config", cfg, doc)

	require.NoError(t, err)
	assert.Contains(t, out, "The zoo opens at nine.")
}

func TestSummarizeCmd_MissingFile(t *testing.T) {
	_, srv := newEmulator(t)
	cfg, doc := setup(t, srv.URL)

	_, err := run(t, "summarize", "--config", cfg, doc+".missing")

	assert.Error(t, err)
}

func TestAskCmd_WithSources(t *testing.T) {
	_, srv := newEmulator(t)
	cfg, doc := setup(t, srv.URL)

	out, err := run(t, "ask", "--config", cfg, "--sources", "-k", "1", doc, "When does the zoo open?")

	require.NoError(t, err)
	assert.Contains(t, out, "The zoo opens at nine.")
	assert.Contains(t, out, "Sources")
	assert.Contains(t, out, "[1] ")
	assert.NotContains(t, out, "[2] ")
}

func TestAskCmd_GenerationFails(t *testing.T) {
	emu, srv := newEmulator(t)
	emu.failChat = true
	cfg, doc := setup(t, srv.URL)

	out, err := run(t, "ask", "--config", cfg, doc, "When does the zoo open?")

	require.Error(t, err)
	assert.Contains(t, out, "technical difficulties")
	assert.GreaterOrEqual(t, emu.chats.Load(), int32(2))
}

func TestAskCmd_RequiresTwoArgs(t *testing.T) {
	_, srv := newEmulator(t)
	cfg, doc := setup(t, srv.URL)

	_, err := run(t, "ask", "--config", cfg, doc)

	assert.Error(t, err)
}

func TestQuestionsCmd(t *testing.T) {
	_, srv := newEmulator(t)
	cfg, doc := setup(t, srv.URL)

	out, err := run(t, "questions", "--config", cfg, doc)

	require.NoError(t, err)
	assert.Contains(t, out, "1. When does the zoo open?")
	assert.Contains(t, out, "2. How much are tickets?")
	assert.Contains(t, out, "3. What is in the reptile house?")
}

func TestQuestionsCmd_JSON(t *testing.T) {
	_, srv := newEmulator(t)
	cfg, doc := setup(t, srv.URL)

	out, err := run(t, "questions", "--config", cfg, "--json", doc)

	require.NoError(t, err)
	var items []string
	require.NoError(t, json.Unmarshal([]byte(out), &items))
	assert.Len(t, items, 3)
}

func TestQuestionsCmd_GenericWhenModelsFail(t *testing.T) {
	emu, srv := newEmulator(t)
	emu.failChat = true
	cfg, doc := setup(t, srv.URL)

	out, err := run(t, "questions", "--config", cfg, doc)

	require.NoError(t, err)
	assert.Contains(t, out, "1. What is the main topic of this document?")
}

func TestModelsCmd(t *testing.T) {
	_, srv := newEmulator(t)
	cfg, _ := setup(t, srv.URL)

	out, err := run(t, "models", "--config", cfg)

	require.NoError(t, err)
	assert.Contains(t, out, "llama3.2:1b")
	assert.NotContains(t, out, "nomic-embed-text")
	assert.Contains(t, out, "Default: llama3.2:1b")
}

func TestModelsCmd_Unreachable(t *testing.T) {
	_, srv := newEmulator(t)
	cfg, _ := setup(t, srv.URL)
	srv.Close()

	_, err := run(t, "models", "--config", cfg)

	assert.Error(t, err)
}

func TestHealthCmd(t *testing.T) {
	_, srv := newEmulator(t)
	cfg, _ := setup(t, srv.URL)

	out, err := run(t, "health", "--config", cfg)

	require.NoError(t, err)
	assert.Contains(t, out, "generator: ok (1 models)")
	assert.Contains(t, out, "retrieval: ok")
}

func TestHealthCmd_Unhealthy(t *testing.T) {
	_, srv := newEmulator(t)
	cfg, _ := setup(t, srv.URL)
	srv.Close()

	out, err := run(t, "health", "--config", cfg)

	require.Error(t, err)
	assert.Contains(t, out, "generator: FAIL")
	assert.Contains(t, out, "retrieval: FAIL")
}

func TestChatCmd_RequiresTerminal(t *testing.T) {
	_, srv := newEmulator(t)
	cfg, doc := setup(t, srv.URL)

	_, err := run(t, "chat", "--config", cfg, doc)

	assert.ErrorIs(t, err, errNotInteractive)
}
