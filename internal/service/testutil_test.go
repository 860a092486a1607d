package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"smartdoc-go/internal/model"
	"smartdoc-go/internal/repository"
	"smartdoc-go/internal/vectorstore"
	"smartdoc-go/pkg/llm"
	"smartdoc-go/pkg/tasks"

	"github.com/alicebob/miniredis/v2"
	"github.com/glebarez/sqlite"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	require.NoError(t, db.AutoMigrate(&model.User{}, &model.Document{}, &model.DocumentChunk{}))
	t.Cleanup(func() { _ = sqlDB.Close() })
	return db
}

func newTestRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return mr, rdb
}

// keywordEmbedder 按关键词生成三维向量，便于构造可预期的距离。
type keywordEmbedder struct {
	err   error
	calls int
}

func (e *keywordEmbedder) vector(text string) []float32 {
	text = strings.ToLower(text)
	v := []float32{0, 0, 0}
	if strings.Contains(text, "invoice") {
		v[0] = 1
	}
	if strings.Contains(text, "contract") {
		v[1] = 1
	}
	if strings.Contains(text, "weather") {
		v[2] = 1
	}
	return v
}

func (e *keywordEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	vecs, err := e.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vecs[0], nil
}

func (e *keywordEmbedder) EmbedBatch(_ context.Context, texts []string) ([][]float32, error) {
	e.calls++
	if e.err != nil {
		return nil, e.err
	}
	out := make([][]float32, len(texts))
	for i, t := range texts {
		out[i] = e.vector(t)
	}
	return out, nil
}

func (e *keywordEmbedder) Dimensions(context.Context) (int, error) { return 3, nil }
func (e *keywordEmbedder) ModelVersion() string                    { return "keyword" }

// fakeLLM 记录最后一次请求，按预设返回或流式输出。
type fakeLLM struct {
	mu       sync.Mutex
	reply    string
	err      error
	stream   []string
	messages []llm.Message
	params   *llm.GenerationParams
	calls    int
}

func (f *fakeLLM) Chat(_ context.Context, messages []llm.Message, gen *llm.GenerationParams) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	f.messages, f.params = messages, gen
	if f.err != nil {
		return "", f.err
	}
	return f.reply, nil
}

func (f *fakeLLM) StreamChatMessages(_ context.Context, messages []llm.Message, gen *llm.GenerationParams, writer llm.MessageWriter) error {
	f.mu.Lock()
	f.calls++
	f.messages, f.params = messages, gen
	f.mu.Unlock()
	for _, part := range f.stream {
		if err := writer.WriteMessage(1, []byte(part)); err != nil {
			return err
		}
	}
	return f.err
}

type recordingWriter struct {
	parts []string
}

func (w *recordingWriter) WriteMessage(_ int, data []byte) error {
	w.parts = append(w.parts, string(data))
	return nil
}

type memObjects struct {
	mu      sync.Mutex
	objects map[string][]byte
	putErr  error
}

func newMemObjects() *memObjects {
	return &memObjects{objects: make(map[string][]byte)}
}

func (m *memObjects) Put(_ context.Context, name string, r io.Reader, _ int64, _ string) error {
	if m.putErr != nil {
		return m.putErr
	}
	b, err := io.ReadAll(r)
	if err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.objects[name] = b
	return nil
}

func (m *memObjects) Remove(_ context.Context, name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.objects, name)
	return nil
}

func (m *memObjects) PresignedURL(_ context.Context, name string, _ time.Duration) (string, error) {
	return "http://minio.local/" + name + "?signed=1", nil
}

type fakeDispatcher struct {
	err        error
	dispatched []tasks.IngestTask
}

func (d *fakeDispatcher) Dispatch(_ context.Context, task tasks.IngestTask) error {
	if d.err != nil {
		return d.err
	}
	d.dispatched = append(d.dispatched, task)
	return nil
}

func (d *fakeDispatcher) Close() error { return nil }

// fixture 组装真实的仓储与内存向量索引。
type fixture struct {
	db       *gorm.DB
	docs     repository.DocumentRepository
	chunks   repository.ChunkRepository
	store    *vectorstore.ChunkStore
	embedder *keywordEmbedder
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	db := newTestDB(t)
	chunks := repository.NewChunkRepository(db)
	return &fixture{
		db:       db,
		docs:     repository.NewDocumentRepository(db),
		chunks:   chunks,
		store:    vectorstore.NewChunkStore(chunks, vectorstore.NewMemoryIndex(), "keyword"),
		embedder: &keywordEmbedder{},
	}
}

// addDocument 创建文档；texts 非空时写入分块并标记为 completed。
func (f *fixture) addDocument(t *testing.T, ownerID uint, title string, texts ...string) *model.Document {
	t.Helper()
	doc := &model.Document{
		Title:      title,
		FileName:   title + ".pdf",
		ObjectName: fmt.Sprintf("documents/%d/%s.pdf", ownerID, title),
		FileSize:   1024,
		OwnerID:    ownerID,
	}
	require.NoError(t, f.docs.Create(doc))
	if len(texts) == 0 {
		return doc
	}

	records := make([]vectorstore.Record, len(texts))
	for i, text := range texts {
		records[i] = vectorstore.Record{ChunkIndex: i, Text: text, Vector: f.embedder.vector(text)}
	}
	require.NoError(t, f.store.PutBatch(context.Background(), doc.ID, ownerID, records))
	require.NoError(t, f.docs.SaveResult(doc.ID, model.CompletedAnalysis{
		Summary:    "A short summary.",
		ChunkCount: len(texts),
		CharCount:  100,
		WordCount:  20,
	}))
	doc.Status = model.StatusCompleted
	return doc
}

var errBoom = errors.New("boom")
