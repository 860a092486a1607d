package repository

import (
	"smartdoc-go/internal/model"

	"gorm.io/gorm"
)

// ChunkRepository 定义了对 document_chunks 表的数据操作接口。
type ChunkRepository interface {
	BatchCreate(chunks []*model.DocumentChunk) error
	FindByDocumentID(documentID uint) ([]*model.DocumentChunk, error)
	DeleteByDocumentID(documentID uint) error
	CountByDocumentID(documentID uint) (int64, error)
}

type chunkRepository struct {
	db *gorm.DB
}

// NewChunkRepository 创建一个新的 ChunkRepository 实例。
func NewChunkRepository(db *gorm.DB) ChunkRepository {
	return &chunkRepository{db: db}
}

// BatchCreate 批量写入分块记录，每 100 条一批。
func (r *chunkRepository) BatchCreate(chunks []*model.DocumentChunk) error {
	if len(chunks) == 0 {
		return nil
	}
	return r.db.CreateInBatches(chunks, 100).Error
}

// FindByDocumentID 按 chunk_index 升序返回文档的全部分块。
func (r *chunkRepository) FindByDocumentID(documentID uint) ([]*model.DocumentChunk, error) {
	var chunks []*model.DocumentChunk
	err := r.db.Where("document_id = ?", documentID).Order("chunk_index ASC").Find(&chunks).Error
	return chunks, err
}

// DeleteByDocumentID 删除文档的全部分块。
func (r *chunkRepository) DeleteByDocumentID(documentID uint) error {
	return r.db.Where("document_id = ?", documentID).Delete(&model.DocumentChunk{}).Error
}

// CountByDocumentID 统计文档的分块数。
func (r *chunkRepository) CountByDocumentID(documentID uint) (int64, error) {
	var n int64
	err := r.db.Model(&model.DocumentChunk{}).Where("document_id = ?", documentID).Count(&n).Error
	return n, err
}
