package vectorstore

import (
	"context"
	"sync"
)

type memoryEntry struct {
	ownerID uint
	records []Record
}

// MemoryIndex 是进程内的暴力检索实现，用于本地开发和测试。
type MemoryIndex struct {
	mu   sync.RWMutex
	docs map[uint]memoryEntry
}

// NewMemoryIndex 创建一个空的内存索引。
func NewMemoryIndex() *MemoryIndex {
	return &MemoryIndex{docs: make(map[uint]memoryEntry)}
}

// Put 追加文档的分块，调用方负责在重新分析前先 Delete。
func (m *MemoryIndex) Put(_ context.Context, documentID, ownerID uint, records []Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	entry := m.docs[documentID]
	entry.ownerID = ownerID
	for _, r := range records {
		r.Vector = append([]float32(nil), r.Vector...)
		entry.records = append(entry.records, r)
	}
	m.docs[documentID] = entry
	return nil
}

func (m *MemoryIndex) Delete(_ context.Context, documentID uint) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.docs, documentID)
	return nil
}

func (m *MemoryIndex) Search(_ context.Context, vector []float32, k int, filter Filter) ([]Hit, error) {
	if k <= 0 {
		return nil, nil
	}
	m.mu.RLock()
	var hits []Hit
	for docID, entry := range m.docs {
		if !filter.allows(docID, entry.ownerID) {
			continue
		}
		for _, r := range entry.records {
			hits = append(hits, Hit{
				DocumentID: docID,
				ChunkIndex: r.ChunkIndex,
				Text:       r.Text,
				Distance:   CosineDistance(vector, r.Vector),
			})
		}
	}
	m.mu.RUnlock()

	SortHits(hits)
	if len(hits) > k {
		hits = hits[:k]
	}
	return hits, nil
}
