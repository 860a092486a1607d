package vectorstore

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCosineDistance(t *testing.T) {
	assert.InDelta(t, 0, CosineDistance([]float32{1, 0}, []float32{2, 0}), 1e-9)
	assert.InDelta(t, 1, CosineDistance([]float32{1, 0}, []float32{0, 1}), 1e-9)
	assert.InDelta(t, 2, CosineDistance([]float32{1, 0}, []float32{-1, 0}), 1e-9)

	// 零向量相似度为 0
	assert.Equal(t, 1.0, CosineDistance([]float32{0, 0}, []float32{1, 0}))
	assert.Equal(t, 1.0, CosineDistance([]float32{1, 0}, []float32{0, 0}))
	assert.Equal(t, 1.0, CosineDistance([]float32{1}, []float32{1, 0}))
}

func TestSortHits_TieBreaks(t *testing.T) {
	hits := []Hit{
		{DocumentID: 2, ChunkIndex: 1, Distance: 0.3},
		{DocumentID: 1, ChunkIndex: 1, Distance: 0.3},
		{DocumentID: 9, ChunkIndex: 0, Distance: 0.3},
		{DocumentID: 5, ChunkIndex: 7, Distance: 0.1},
	}
	SortHits(hits)

	assert.Equal(t, []Hit{
		{DocumentID: 5, ChunkIndex: 7, Distance: 0.1},
		{DocumentID: 9, ChunkIndex: 0, Distance: 0.3},
		{DocumentID: 1, ChunkIndex: 1, Distance: 0.3},
		{DocumentID: 2, ChunkIndex: 1, Distance: 0.3},
	}, hits)
}

func TestFilterAllows(t *testing.T) {
	assert.True(t, Filter{}.allows(1, 1))
	assert.False(t, Filter{OwnerID: 2}.allows(1, 1))
	assert.True(t, Filter{OwnerID: 1, DocumentIDs: []uint{3, 4}}.allows(4, 1))
	assert.False(t, Filter{DocumentIDs: []uint{3}}.allows(4, 1))
}
