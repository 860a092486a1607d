package embedding

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"smartdoc-go/internal/config"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOpenAICompatibleClient_CreateEmbeddings(t *testing.T) {
	var got embeddingRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/embeddings", r.URL.Path)
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))

		// 故意乱序返回，客户端需按 index 还原
		_, _ = w.Write([]byte(`{"data":[
			{"index":1,"embedding":[0,1,0]},
			{"index":0,"embedding":[1,0,0]}
		]}`))
	}))
	defer srv.Close()

	c := NewOpenAICompatibleClient(config.EmbeddingConfig{
		APIKey:  "test-key",
		BaseURL: srv.URL,
		Model:   "test-model",
		Timeout: 5 * time.Second,
	})
	vecs, err := c.CreateEmbeddings(context.Background(), []string{"first", "second"})
	require.NoError(t, err)

	assert.Equal(t, "test-model", got.Model)
	assert.Equal(t, []string{"first", "second"}, got.Input)
	assert.Equal(t, [][]float32{{1, 0, 0}, {0, 1, 0}}, vecs)
	assert.Equal(t, "test-model", c.ModelName())
}

func TestOpenAICompatibleClient_Non200(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "quota exceeded", http.StatusTooManyRequests)
	}))
	defer srv.Close()

	c := NewOpenAICompatibleClient(config.EmbeddingConfig{BaseURL: srv.URL, Model: "m"})
	_, err := c.CreateEmbeddings(context.Background(), []string{"x"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "429")
}

func TestOpenAICompatibleClient_CountMismatch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"data":[{"index":0,"embedding":[1]}]}`))
	}))
	defer srv.Close()

	c := NewOpenAICompatibleClient(config.EmbeddingConfig{BaseURL: srv.URL, Model: "m"})
	_, err := c.CreateEmbeddings(context.Background(), []string{"a", "b"})
	assert.Error(t, err)
}

func TestNewClient_UnknownProvider(t *testing.T) {
	_, err := NewClient(context.Background(), config.EmbeddingConfig{Provider: "nope"})
	assert.Error(t, err)
}
