package embedding

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"smartdoc-go/internal/config"
	"smartdoc-go/pkg/log"
)

// ErrUnavailable is returned by every call once the model handle failed to initialize.
var ErrUnavailable = errors.New("embedding unavailable")

const (
	sampleText    = "dimension check"
	detectTimeout = 30 * time.Second
)

// Embedder is what the ingestion pipeline and retriever depend on.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
	Dimensions(ctx context.Context) (int, error)
	ModelVersion() string
}

// Model is the process-wide embedding handle. The provider client is created on first use
// behind a single initialization barrier and reused for the lifetime of the process.
// A failed initialization is permanent: later calls return ErrUnavailable.
type Model struct {
	newClient    func(ctx context.Context) (Client, error)
	expectedDims int
	batchSize    int
	modelName    string

	once    sync.Once
	client  Client
	dims    int
	initErr error
}

// NewModel returns a lazily-initialized handle for the configured provider.
func NewModel(cfg config.EmbeddingConfig) *Model {
	return &Model{
		newClient: func(ctx context.Context) (Client, error) {
			return NewClient(ctx, cfg)
		},
		expectedDims: cfg.Dimensions,
		batchSize:    cfg.BatchSize,
		modelName:    cfg.Model,
	}
}

// NewModelWithClient wraps an existing client. dims <= 0 means "detect on first use".
func NewModelWithClient(c Client, dims, batchSize int) *Model {
	return &Model{
		newClient:    func(context.Context) (Client, error) { return c, nil },
		expectedDims: dims,
		batchSize:    batchSize,
		modelName:    c.ModelName(),
	}
}

func (m *Model) init(ctx context.Context) error {
	m.once.Do(func() {
		// 初始化不受单个请求取消的影响
		initCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), detectTimeout)
		defer cancel()

		c, err := m.newClient(initCtx)
		if err != nil {
			m.initErr = fmt.Errorf("%w: %v", ErrUnavailable, err)
			log.Errorf("[Embedding] 初始化 embedding 客户端失败: %v", err)
			return
		}

		dims := m.expectedDims
		if dims <= 0 {
			vecs, err := c.CreateEmbeddings(initCtx, []string{sampleText})
			if err != nil {
				m.initErr = fmt.Errorf("%w: %v", ErrUnavailable, err)
				log.Errorf("[Embedding] 探测向量维度失败: %v", err)
				return
			}
			if len(vecs) != 1 || len(vecs[0]) == 0 {
				m.initErr = fmt.Errorf("%w: dimension check returned no vector", ErrUnavailable)
				return
			}
			dims = len(vecs[0])
		}

		m.client, m.dims = c, dims
		log.Infof("[Embedding] embedding 模型已就绪, model: %s, 维度: %d", m.modelName, dims)
	})
	return m.initErr
}

// Dimensions returns D, initializing the model if needed.
func (m *Model) Dimensions(ctx context.Context) (int, error) {
	if err := m.init(ctx); err != nil {
		return 0, err
	}
	return m.dims, nil
}

// ModelVersion is recorded on every persisted chunk.
func (m *Model) ModelVersion() string {
	return m.modelName
}

// Embed maps text to a vector of exactly D floats.
// Empty or whitespace-only input is never sent to the provider and yields a zero vector.
func (m *Model) Embed(ctx context.Context, text string) ([]float32, error) {
	vecs, err := m.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vecs[0], nil
}

// EmbedBatch embeds texts in provider calls of at most batchSize inputs.
func (m *Model) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if err := m.init(ctx); err != nil {
		return nil, err
	}

	out := make([][]float32, len(texts))
	pending := make([]int, 0, len(texts))
	for i, t := range texts {
		if strings.TrimSpace(t) == "" {
			out[i] = make([]float32, m.dims)
			continue
		}
		pending = append(pending, i)
	}

	size := m.batchSize
	if size <= 0 {
		size = len(pending)
	}
	for start := 0; start < len(pending); start += size {
		end := start + size
		if end > len(pending) {
			end = len(pending)
		}
		idx := pending[start:end]
		inputs := make([]string, len(idx))
		for j, i := range idx {
			inputs[j] = texts[i]
		}

		vecs, err := m.client.CreateEmbeddings(ctx, inputs)
		if err != nil {
			return nil, err
		}
		if len(vecs) != len(inputs) {
			return nil, fmt.Errorf("embedding provider returned %d vectors for %d inputs", len(vecs), len(inputs))
		}
		for j, v := range vecs {
			if len(v) != m.dims {
				return nil, fmt.Errorf("embedding dimension mismatch: got %d, want %d", len(v), m.dims)
			}
			out[idx[j]] = v
		}
	}
	return out, nil
}

// Close releases provider resources if the client holds any.
func (m *Model) Close() error {
	if c, ok := m.client.(io.Closer); ok {
		return c.Close()
	}
	return nil
}
