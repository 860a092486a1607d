package vectorstore

import (
	"context"
	"errors"
	"testing"

	"smartdoc-go/internal/model"
	"smartdoc-go/internal/repository"

	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func newChunkRepo(t *testing.T) repository.ChunkRepository {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	require.NoError(t, db.AutoMigrate(&model.DocumentChunk{}))
	t.Cleanup(func() { _ = sqlDB.Close() })
	return repository.NewChunkRepository(db)
}

// partialIndex 写入第一条记录后失败，模拟 bulk 请求部分成功。
type partialIndex struct{ *MemoryIndex }

func (p partialIndex) Put(ctx context.Context, documentID, ownerID uint, records []Record) error {
	if err := p.MemoryIndex.Put(ctx, documentID, ownerID, records[:1]); err != nil {
		return err
	}
	return errors.New("bulk index: 1 of 2 items failed")
}

func TestChunkStore_ReanalysisReplacesChunks(t *testing.T) {
	store := NewChunkStore(newChunkRepo(t), NewMemoryIndex(), "m1")
	ctx := context.Background()

	first := []Record{
		{ChunkIndex: 0, Text: "a", Vector: []float32{1, 0}},
		{ChunkIndex: 1, Text: "b", Vector: []float32{0, 1}},
		{ChunkIndex: 2, Text: "c", Vector: []float32{1, 1}},
	}
	require.NoError(t, store.PutBatch(ctx, 1, 9, first))

	require.NoError(t, store.Clear(ctx, 1))
	require.NoError(t, store.PutBatch(ctx, 1, 9, first[:2]))

	n, err := store.Count(1)
	require.NoError(t, err)
	assert.EqualValues(t, 2, n)

	got, err := store.QueryNearest(ctx, []float32{1, 0}, 10, Filter{DocumentIDs: []uint{1}})
	require.NoError(t, err)
	assert.Len(t, got, 2)
	assert.Equal(t, "a", got[0].Text)
}

func TestChunkStore_RejectsMixedDimensions(t *testing.T) {
	store := NewChunkStore(newChunkRepo(t), NewMemoryIndex(), "m1")
	err := store.PutBatch(context.Background(), 1, 1, []Record{
		{ChunkIndex: 0, Vector: []float32{1, 0}},
		{ChunkIndex: 1, Vector: []float32{1, 0, 0}},
	})
	assert.Error(t, err)
}

func TestChunkStore_IndexFailureRollsBackRowsAndVectors(t *testing.T) {
	repo := newChunkRepo(t)
	store := NewChunkStore(repo, partialIndex{NewMemoryIndex()}, "m1")
	ctx := context.Background()

	err := store.PutBatch(ctx, 4, 1, []Record{
		{ChunkIndex: 0, Text: "x", Vector: []float32{1, 0}},
		{ChunkIndex: 1, Text: "y", Vector: []float32{0, 1}},
	})
	require.Error(t, err)

	n, err := repo.CountByDocumentID(4)
	require.NoError(t, err)
	assert.Zero(t, n)

	hits, err := store.QueryNearest(ctx, []float32{1, 0}, 10, Filter{OwnerID: 1})
	require.NoError(t, err)
	assert.Empty(t, hits, "partially indexed vectors must be removed")
}
