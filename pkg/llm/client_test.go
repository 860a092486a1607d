package llm

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"smartdoc-go/internal/config"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingWriter struct {
	parts []string
}

func (w *recordingWriter) WriteMessage(_ int, data []byte) error {
	w.parts = append(w.parts, string(data))
	return nil
}

func testConfig(url string) config.LLMConfig {
	return config.LLMConfig{
		APIKey:  "k",
		BaseURL: url,
		Model:   "llama-3.3-70b-versatile",
		Timeout: 5 * time.Second,
		Breaker: config.BreakerConfig{ConsecutiveFailures: 2, OpenTimeout: time.Minute},
	}
}

func TestChat_SendsParamsAndReturnsContent(t *testing.T) {
	var got chatRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/chat/completions", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		_, _ = w.Write([]byte(`{"choices":[{"message":{"content":"  The invoice is due March 1.  "}}]}`))
	}))
	defer srv.Close()

	c := NewClient(testConfig(srv.URL))
	answer, err := c.Chat(context.Background(), []Message{{Role: "user", Content: "When?"}},
		ParamsFrom(config.LLMGenerationConfig{Temperature: 0.2, MaxTokens: 800}))
	require.NoError(t, err)

	assert.Equal(t, "The invoice is due March 1.", answer)
	assert.False(t, got.Stream)
	require.NotNil(t, got.Temperature)
	assert.Equal(t, 0.2, *got.Temperature)
	require.NotNil(t, got.MaxTokens)
	assert.Equal(t, 800, *got.MaxTokens)
	assert.Nil(t, got.TopP)
}

func TestChat_BreakerOpensAfterConsecutiveFailures(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		http.Error(w, "upstream down", http.StatusBadGateway)
	}))
	defer srv.Close()

	c := NewClient(testConfig(srv.URL))
	for i := 0; i < 2; i++ {
		_, err := c.Chat(context.Background(), []Message{{Role: "user", Content: "x"}}, nil)
		require.Error(t, err)
		assert.NotErrorIs(t, err, ErrCircuitOpen)
	}

	_, err := c.Chat(context.Background(), []Message{{Role: "user", Content: "x"}}, nil)
	assert.ErrorIs(t, err, ErrCircuitOpen)
	assert.EqualValues(t, 2, hits.Load(), "open breaker must not reach upstream")
}

func TestStreamChatMessages(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "text/event-stream", r.Header.Get("Accept"))
		w.Header().Set("Content-Type", "text/event-stream")
		lines := []string{
			`data: {"choices":[{"delta":{"content":"Hello"}}]}`,
			`data: {"choices":[{"delta":{"content":", world"}}]}`,
			`: keep-alive`,
			`data: [DONE]`,
			`data: {"choices":[{"delta":{"content":"ignored"}}]}`,
		}
		_, _ = w.Write([]byte(strings.Join(lines, "\n") + "\n"))
	}))
	defer srv.Close()

	c := NewClient(testConfig(srv.URL))
	w := &recordingWriter{}
	err := c.StreamChatMessages(context.Background(), []Message{{Role: "user", Content: "hi"}}, nil, w)
	require.NoError(t, err)
	assert.Equal(t, []string{"Hello", ", world"}, w.parts)
}

func TestParamsFrom_ZeroValuesOmitted(t *testing.T) {
	gp := ParamsFrom(config.LLMGenerationConfig{})
	assert.Nil(t, gp.Temperature)
	assert.Nil(t, gp.TopP)
	assert.Nil(t, gp.MaxTokens)
}
