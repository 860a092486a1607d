package vectorstore

import (
	"context"
	"fmt"

	"github.com/pgvector/pgvector-go"
	"gorm.io/gorm"
)

// ChunkVector 对应 Postgres 中的 chunk_vectors 表。
type ChunkVector struct {
	ID          uint            `gorm:"primaryKey;autoIncrement"`
	DocumentID  uint            `gorm:"not null;index"`
	ChunkIndex  int             `gorm:"not null"`
	OwnerID     uint            `gorm:"not null;index"`
	TextContent string          `gorm:"type:text"`
	Embedding   pgvector.Vector `gorm:"type:vector"`
}

func (ChunkVector) TableName() string {
	return "chunk_vectors"
}

// PgvectorIndex 使用 pgvector 的 <=> 余弦距离算子。
type PgvectorIndex struct {
	db *gorm.DB
}

// NewPgvectorIndex 创建 pgvector 后端。
func NewPgvectorIndex(db *gorm.DB) *PgvectorIndex {
	return &PgvectorIndex{db: db}
}

// Migrate 启用 vector 扩展并建表。
func (p *PgvectorIndex) Migrate() error {
	if err := p.db.Exec("CREATE EXTENSION IF NOT EXISTS vector").Error; err != nil {
		return fmt.Errorf("enable pgvector extension: %w", err)
	}
	return p.db.AutoMigrate(&ChunkVector{})
}

func (p *PgvectorIndex) Put(ctx context.Context, documentID, ownerID uint, records []Record) error {
	if len(records) == 0 {
		return nil
	}
	rows := make([]ChunkVector, len(records))
	for i, r := range records {
		rows[i] = ChunkVector{
			DocumentID:  documentID,
			ChunkIndex:  r.ChunkIndex,
			OwnerID:     ownerID,
			TextContent: r.Text,
			Embedding:   pgvector.NewVector(r.Vector),
		}
	}
	return p.db.WithContext(ctx).CreateInBatches(rows, 100).Error
}

func (p *PgvectorIndex) Delete(ctx context.Context, documentID uint) error {
	return p.db.WithContext(ctx).Where("document_id = ?", documentID).Delete(&ChunkVector{}).Error
}

// Search 在数据库侧排序；零查询向量的余弦距离在 Postgres 中为 NaN，这里统一按 1 处理。
func (p *PgvectorIndex) Search(ctx context.Context, vector []float32, k int, filter Filter) ([]Hit, error) {
	if k <= 0 {
		return nil, nil
	}
	q := p.db.WithContext(ctx).Model(&ChunkVector{})
	if filter.OwnerID != 0 {
		q = q.Where("owner_id = ?", filter.OwnerID)
	}
	if len(filter.DocumentIDs) > 0 {
		q = q.Where("document_id IN ?", filter.DocumentIDs)
	}
	if IsZero(vector) {
		q = q.Select("document_id, chunk_index, text_content, 1.0 AS distance")
	} else {
		q = q.Select("document_id, chunk_index, text_content, embedding <=> ? AS distance", pgvector.NewVector(vector))
	}

	var rows []struct {
		DocumentID  uint
		ChunkIndex  int
		TextContent string
		Distance    float64
	}
	err := q.Order("distance ASC").Order("chunk_index ASC").Order("document_id ASC").Limit(k).Scan(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("pgvector search: %w", err)
	}

	hits := make([]Hit, len(rows))
	for i, r := range rows {
		hits[i] = Hit{DocumentID: r.DocumentID, ChunkIndex: r.ChunkIndex, Text: r.TextContent, Distance: r.Distance}
	}
	return hits, nil
}
