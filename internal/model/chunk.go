package model

import "time"

// DocumentChunk 对应 document_chunks 表，保存分块文本与元数据。
// 向量本身保存在向量索引中，以 (document_id, chunk_index) 关联。
type DocumentChunk struct {
	ID           uint      `gorm:"primaryKey;autoIncrement" json:"id"`
	DocumentID   uint      `gorm:"not null;uniqueIndex:idx_document_chunk,priority:1" json:"documentId"`
	ChunkIndex   int       `gorm:"not null;uniqueIndex:idx_document_chunk,priority:2" json:"chunkIndex"`
	OwnerID      uint      `gorm:"not null;index" json:"ownerId"`
	TextContent  string    `gorm:"type:text" json:"textContent"`
	ModelVersion string    `gorm:"type:varchar(100)" json:"modelVersion"`
	CreatedAt    time.Time `gorm:"autoCreateTime" json:"createdAt"`
}

// TableName 指定了此模型在数据库中对应的表名。
func (DocumentChunk) TableName() string {
	return "document_chunks"
}

// EsChunk 是写入 Elasticsearch 的分块文档。
type EsChunk struct {
	VectorID     string    `json:"vector_id"` // documentID_chunkIndex
	DocumentID   uint      `json:"document_id"`
	ChunkIndex   int       `json:"chunk_index"`
	OwnerID      uint      `json:"owner_id"`
	TextContent  string    `json:"text_content"`
	Vector       []float32 `json:"vector,omitempty"`
	ModelVersion string    `json:"model_version"`
}

// RetrievedChunk 是一次检索命中的分块，按 Distance 升序排列。
type RetrievedChunk struct {
	DocumentID    uint    `json:"documentId"`
	DocumentTitle string  `json:"documentTitle,omitempty"`
	ChunkIndex    int     `json:"chunkIndex"`
	Text          string  `json:"text"`
	Distance      float64 `json:"distance"`
}

// Similarity 返回 1 - distance。
func (c RetrievedChunk) Similarity() float64 {
	return 1 - c.Distance
}
