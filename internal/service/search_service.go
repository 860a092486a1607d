// Package service 包含了应用的业务逻辑层。
package service

import (
	"context"
	"fmt"

	"smartdoc-go/internal/model"
	"smartdoc-go/internal/repository"
	"smartdoc-go/internal/vectorstore"
	"smartdoc-go/pkg/embedding"
	"smartdoc-go/pkg/log"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
)

// ScopeKind 检索范围的类型。
type ScopeKind int

const (
	// ScopeDocument 单个文档。
	ScopeDocument ScopeKind = iota
	// ScopeOwner 某个用户的全部文档。
	ScopeOwner
	// ScopeOwnerCompleted 某个用户全部已完成分析的文档。
	ScopeOwnerCompleted
)

// Scope 描述一次检索的范围。
type Scope struct {
	Kind       ScopeKind
	DocumentID uint
	OwnerID    uint
}

func DocumentScope(documentID uint) Scope { return Scope{Kind: ScopeDocument, DocumentID: documentID} }
func OwnerScope(ownerID uint) Scope       { return Scope{Kind: ScopeOwner, OwnerID: ownerID} }
func CompletedScope(ownerID uint) Scope   { return Scope{Kind: ScopeOwnerCompleted, OwnerID: ownerID} }

// Retrieval 是一次检索的结果，Chunks 按距离升序。
type Retrieval struct {
	Chunks            []model.RetrievedChunk
	DocumentsSearched int
}

// ChunkSearcher 是检索对分块存储的依赖。
type ChunkSearcher interface {
	QueryNearest(ctx context.Context, vector []float32, k int, filter vectorstore.Filter) ([]model.RetrievedChunk, error)
}

// SearchService 将问题向量化后在分块存储中查找最近邻。
type SearchService interface {
	Retrieve(ctx context.Context, query string, k int, scope Scope) (*Retrieval, error)
}

type searchService struct {
	embedder embedding.Embedder
	chunks   ChunkSearcher
	docRepo  repository.DocumentRepository
}

// NewSearchService 创建一个新的 SearchService 实例。
func NewSearchService(embedder embedding.Embedder, chunks ChunkSearcher, docRepo repository.DocumentRepository) SearchService {
	return &searchService{embedder: embedder, chunks: chunks, docRepo: docRepo}
}

func (s *searchService) Retrieve(ctx context.Context, query string, k int, scope Scope) (*Retrieval, error) {
	ctx, span := otel.Tracer("smartdoc/search").Start(ctx, "search.retrieve")
	defer span.End()
	span.SetAttributes(attribute.Int("search.k", k), attribute.Int("search.scope", int(scope.Kind)))

	filter := vectorstore.Filter{OwnerID: scope.OwnerID}
	searched := 0
	switch scope.Kind {
	case ScopeDocument:
		filter = vectorstore.Filter{DocumentIDs: []uint{scope.DocumentID}}
		searched = 1
	case ScopeOwnerCompleted:
		ids, err := s.docRepo.ListCompletedIDsByOwner(scope.OwnerID)
		if err != nil {
			return nil, fmt.Errorf("list completed documents: %w", err)
		}
		if len(ids) == 0 {
			log.Infof("[SearchService] 用户 %d 没有已完成分析的文档", scope.OwnerID)
			return &Retrieval{}, nil
		}
		filter.DocumentIDs = ids
		searched = len(ids)
	}

	vector, err := s.embedder.Embed(ctx, query)
	if err != nil {
		log.Errorf("[SearchService] 问题向量化失败: %v", err)
		return nil, fmt.Errorf("%w: %v", ErrEmbeddingFailed, err)
	}

	chunks, err := s.chunks.QueryNearest(ctx, vector, k, filter)
	if err != nil {
		return nil, fmt.Errorf("query nearest chunks: %w", err)
	}
	if err := s.attachTitles(chunks); err != nil {
		log.Warnf("[SearchService] 查询文档标题失败: %v", err)
	}
	if scope.Kind == ScopeOwner {
		searched = countDocuments(chunks)
	}

	log.Infof("[SearchService] 检索完成, scope: %d, 命中: %d", scope.Kind, len(chunks))
	return &Retrieval{Chunks: chunks, DocumentsSearched: searched}, nil
}

func (s *searchService) attachTitles(chunks []model.RetrievedChunk) error {
	if len(chunks) == 0 {
		return nil
	}
	seen := make(map[uint]struct{})
	var ids []uint
	for _, c := range chunks {
		if _, ok := seen[c.DocumentID]; !ok {
			seen[c.DocumentID] = struct{}{}
			ids = append(ids, c.DocumentID)
		}
	}
	docs, err := s.docRepo.FindByIDs(ids)
	if err != nil {
		return err
	}
	titles := make(map[uint]string, len(docs))
	for _, d := range docs {
		titles[d.ID] = d.Title
	}
	for i := range chunks {
		chunks[i].DocumentTitle = titles[chunks[i].DocumentID]
	}
	return nil
}

func countDocuments(chunks []model.RetrievedChunk) int {
	seen := make(map[uint]struct{})
	for _, c := range chunks {
		seen[c.DocumentID] = struct{}{}
	}
	return len(seen)
}
