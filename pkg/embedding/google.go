package embedding

import (
	"context"
	"errors"
	"fmt"

	"smartdoc-go/internal/config"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"
)

type googleClient struct {
	client *genai.Client
	model  string
}

// NewGoogleClient builds a Google Generative AI embedding client (e.g. text-embedding-004).
// The underlying genai client is created once and reused; it is safe for concurrent use.
func NewGoogleClient(ctx context.Context, cfg config.EmbeddingConfig) (Client, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("missing api key for google embeddings")
	}
	client, err := genai.NewClient(ctx, option.WithAPIKey(cfg.APIKey))
	if err != nil {
		return nil, fmt.Errorf("create genai client: %w", err)
	}
	return &googleClient{client: client, model: cfg.Model}, nil
}

func (c *googleClient) ModelName() string {
	return c.model
}

func (c *googleClient) CreateEmbeddings(ctx context.Context, texts []string) ([][]float32, error) {
	em := c.client.EmbeddingModel(c.model)
	batch := em.NewBatch()
	for _, t := range texts {
		batch.AddContent(genai.Text(t))
	}
	resp, err := em.BatchEmbedContents(ctx, batch)
	if err != nil {
		return nil, fmt.Errorf("genai batch embed: %w", err)
	}
	if len(resp.Embeddings) != len(texts) {
		return nil, fmt.Errorf("genai returned %d embeddings for %d inputs", len(resp.Embeddings), len(texts))
	}
	vectors := make([][]float32, len(texts))
	for i, e := range resp.Embeddings {
		if e == nil || len(e.Values) == 0 {
			return nil, fmt.Errorf("no embedding returned for input %d", i)
		}
		vectors[i] = e.Values
	}
	return vectors, nil
}

// Close releases the genai connection.
func (c *googleClient) Close() error {
	return c.client.Close()
}
