package vectorstore

import (
	"context"
	"fmt"

	"smartdoc-go/internal/model"
	"smartdoc-go/internal/repository"
	"smartdoc-go/pkg/log"
)

// ChunkStore 组合关系库中的分块记录与向量索引。
// 同一文档的分块只会整体替换：先 Clear 再 PutBatch。
type ChunkStore struct {
	chunks       repository.ChunkRepository
	index        Index
	modelVersion string
}

// NewChunkStore 创建 ChunkStore。
func NewChunkStore(chunks repository.ChunkRepository, index Index, modelVersion string) *ChunkStore {
	return &ChunkStore{chunks: chunks, index: index, modelVersion: modelVersion}
}

// PutBatch 写入一个文档的全部分块，所有向量维度必须一致。
func (s *ChunkStore) PutBatch(ctx context.Context, documentID, ownerID uint, records []Record) error {
	if len(records) == 0 {
		return nil
	}
	dims := len(records[0].Vector)
	rows := make([]*model.DocumentChunk, len(records))
	for i, r := range records {
		if len(r.Vector) != dims {
			return fmt.Errorf("chunk %d has %d dimensions, expected %d", r.ChunkIndex, len(r.Vector), dims)
		}
		rows[i] = &model.DocumentChunk{
			DocumentID:   documentID,
			ChunkIndex:   r.ChunkIndex,
			OwnerID:      ownerID,
			TextContent:  r.Text,
			ModelVersion: s.modelVersion,
		}
	}

	if err := s.chunks.BatchCreate(rows); err != nil {
		return fmt.Errorf("persist chunks: %w", err)
	}
	if err := s.index.Put(ctx, documentID, ownerID, records); err != nil {
		// bulk 写入可能部分成功，向量与记录一起回滚
		if derr := s.index.Delete(context.WithoutCancel(ctx), documentID); derr != nil {
			log.Errorf("[ChunkStore] 回滚向量失败, document_id: %d, error: %v", documentID, derr)
		}
		if derr := s.chunks.DeleteByDocumentID(documentID); derr != nil {
			log.Errorf("[ChunkStore] 回滚分块记录失败, document_id: %d, error: %v", documentID, derr)
		}
		return fmt.Errorf("index chunks: %w", err)
	}
	return nil
}

// Clear 删除文档的全部分块与向量。
func (s *ChunkStore) Clear(ctx context.Context, documentID uint) error {
	if err := s.index.Delete(ctx, documentID); err != nil {
		return err
	}
	return s.chunks.DeleteByDocumentID(documentID)
}

// QueryNearest 返回按距离升序的至多 k 个分块。
func (s *ChunkStore) QueryNearest(ctx context.Context, vector []float32, k int, filter Filter) ([]model.RetrievedChunk, error) {
	hits, err := s.index.Search(ctx, vector, k, filter)
	if err != nil {
		return nil, err
	}
	out := make([]model.RetrievedChunk, len(hits))
	for i, h := range hits {
		out[i] = model.RetrievedChunk{
			DocumentID: h.DocumentID,
			ChunkIndex: h.ChunkIndex,
			Text:       h.Text,
			Distance:   h.Distance,
		}
	}
	return out, nil
}

// Count 返回文档当前的分块数。
func (s *ChunkStore) Count(documentID uint) (int64, error) {
	return s.chunks.CountByDocumentID(documentID)
}
