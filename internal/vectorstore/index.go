// Package vectorstore 保存分块向量并按余弦距离检索最近邻。
package vectorstore

import (
	"context"
	"math"
	"sort"
)

// Record 是写入索引的一个分块。
type Record struct {
	ChunkIndex int
	Text       string
	Vector     []float32
}

// Filter 限定检索范围。OwnerID 为 0 表示不限用户，DocumentIDs 为空表示不限文档。
type Filter struct {
	OwnerID     uint
	DocumentIDs []uint
}

// Hit 是一次检索命中，Distance 为余弦距离 1 - cos。
type Hit struct {
	DocumentID uint
	ChunkIndex int
	Text       string
	Distance   float64
}

// Index 是向量索引后端，实现必须可并发使用。
type Index interface {
	Put(ctx context.Context, documentID, ownerID uint, records []Record) error
	Delete(ctx context.Context, documentID uint) error
	// Search 返回按 Distance 升序、chunk_index 次序排列的至多 k 个结果。
	Search(ctx context.Context, vector []float32, k int, filter Filter) ([]Hit, error)
}

// CosineDistance 返回 1 - cos(a, b)。任一向量为零向量时相似度按 0 计，距离为 1。
func CosineDistance(a, b []float32) float64 {
	if len(a) != len(b) {
		return 1
	}
	var dot, na, nb float64
	for i := range a {
		x, y := float64(a[i]), float64(b[i])
		dot += x * y
		na += x * x
		nb += y * y
	}
	if na == 0 || nb == 0 {
		return 1
	}
	return 1 - dot/(math.Sqrt(na)*math.Sqrt(nb))
}

// IsZero 判断向量是否全为 0。
func IsZero(v []float32) bool {
	for _, x := range v {
		if x != 0 {
			return false
		}
	}
	return true
}

// SortHits 按距离升序排序，距离相同时按 chunk_index、document_id 升序。
func SortHits(hits []Hit) {
	sort.SliceStable(hits, func(i, j int) bool {
		if hits[i].Distance != hits[j].Distance {
			return hits[i].Distance < hits[j].Distance
		}
		if hits[i].ChunkIndex != hits[j].ChunkIndex {
			return hits[i].ChunkIndex < hits[j].ChunkIndex
		}
		return hits[i].DocumentID < hits[j].DocumentID
	})
}

func (f Filter) allows(documentID, ownerID uint) bool {
	if f.OwnerID != 0 && f.OwnerID != ownerID {
		return false
	}
	if len(f.DocumentIDs) == 0 {
		return true
	}
	for _, id := range f.DocumentIDs {
		if id == documentID {
			return true
		}
	}
	return false
}
