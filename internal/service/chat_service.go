package service

import (
	"context"
	"errors"
	"strings"
	"time"
	"unicode/utf8"

	"smartdoc-go/internal/config"
	"smartdoc-go/internal/model"
	"smartdoc-go/internal/repository"
	"smartdoc-go/pkg/llm"
	"smartdoc-go/pkg/log"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"gorm.io/gorm"
)

const (
	fallbackSingleAnswer = "I couldn't find enough relevant information in this document to answer that question."
	fallbackGlobalAnswer = "I couldn't find enough relevant information in your documents to answer that question."
)

// ChatService 编排问答流程：校验问题、检索、上下文检查、生成回答、记录历史。
type ChatService interface {
	Ask(ctx context.Context, user *model.User, documentID uint, question string) (*model.AskResponse, error)
	AskGlobal(ctx context.Context, user *model.User, question string) (*model.AskResponse, error)
	// StreamGlobal 将回答分块写入 writer，返回的响应中 Answer 为完整文本。
	StreamGlobal(ctx context.Context, user *model.User, question string, writer llm.MessageWriter) (*model.AskResponse, error)
	History(ctx context.Context, userID uint) ([]model.AskRecord, error)
}

type chatService struct {
	searchService    SearchService
	answerService    AnswerService
	docRepo          repository.DocumentRepository
	conversationRepo repository.ConversationRepository
	rag              config.RAGConfig
}

// NewChatService 创建一个新的 ChatService 实例。conversationRepo 为 nil 时不记录历史。
func NewChatService(
	searchService SearchService,
	answerService AnswerService,
	docRepo repository.DocumentRepository,
	conversationRepo repository.ConversationRepository,
	rag config.RAGConfig,
) ChatService {
	return &chatService{
		searchService:    searchService,
		answerService:    answerService,
		docRepo:          docRepo,
		conversationRepo: conversationRepo,
		rag:              rag,
	}
}

// NormalizeQuestion 去除首尾空白并检查长度。
func NormalizeQuestion(question string, maxChars int) (string, error) {
	q := strings.TrimSpace(question)
	if q == "" {
		return "", ErrMissingQuestion
	}
	if utf8.RuneCountInString(q) > maxChars {
		return "", ErrQuestionTooLong
	}
	return q, nil
}

func (s *chatService) Ask(ctx context.Context, user *model.User, documentID uint, question string) (*model.AskResponse, error) {
	q, err := NormalizeQuestion(question, s.rag.MaxQuestionChars)
	if err != nil {
		return nil, err
	}

	doc, err := s.docRepo.FindByID(documentID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrDocumentNotFound
		}
		return nil, err
	}
	if doc.OwnerID != user.ID {
		return nil, ErrDocumentNotFound
	}
	if doc.Status != model.StatusCompleted {
		return nil, ErrDocumentNotReady
	}

	retrieval, err := s.searchService.Retrieve(ctx, q, s.rag.TopK, DocumentScope(doc.ID))
	if err != nil {
		return nil, err
	}

	verdict := ValidateContext(q, retrieval.Chunks)
	if !verdict.Accepted {
		log.Infof("[ChatService] 上下文不足, document_id: %d, reason: %s", doc.ID, verdict.Reason)
		resp := insufficient(fallbackSingleAnswer, verdict.Reason)
		s.record(ctx, user.ID, doc.ID, q, resp)
		return resp, nil
	}

	answer, err := s.answerService.AnswerSingle(ctx, q, retrieval.Chunks)
	resp := &model.AskResponse{
		Answer:     answer,
		Sources:    s.sources(retrieval.Chunks, false),
		Confidence: Confidence(retrieval.Chunks),
	}
	if err != nil {
		return resp, err
	}
	s.record(ctx, user.ID, doc.ID, q, resp)
	return resp, nil
}

func (s *chatService) AskGlobal(ctx context.Context, user *model.User, question string) (*model.AskResponse, error) {
	q, retrieval, resp, err := s.retrieveGlobal(ctx, user, question)
	if err != nil || resp != nil {
		return resp, err
	}

	answer, err := s.answerService.AnswerMulti(ctx, q, retrieval.Chunks)
	resp = s.globalResponse(answer, retrieval)
	if err != nil {
		return resp, err
	}
	s.record(ctx, user.ID, 0, q, resp)
	return resp, nil
}

func (s *chatService) StreamGlobal(ctx context.Context, user *model.User, question string, writer llm.MessageWriter) (*model.AskResponse, error) {
	q, retrieval, resp, err := s.retrieveGlobal(ctx, user, question)
	if err != nil {
		return nil, err
	}
	if resp != nil {
		if werr := writer.WriteMessage(websocket.TextMessage, []byte(resp.Answer)); werr != nil {
			return resp, werr
		}
		return resp, nil
	}

	collector := &collectingWriter{next: writer}
	err = s.answerService.StreamMulti(ctx, q, retrieval.Chunks, collector)
	resp = s.globalResponse(collector.String(), retrieval)
	if err != nil {
		return resp, err
	}
	// 使用后台上下文，即使连接已断开也保存已生成的回答
	s.record(context.WithoutCancel(ctx), user.ID, 0, q, resp)
	return resp, nil
}

// retrieveGlobal 在上下文不足时直接返回兜底响应。
func (s *chatService) retrieveGlobal(ctx context.Context, user *model.User, question string) (string, *Retrieval, *model.AskResponse, error) {
	q, err := NormalizeQuestion(question, s.rag.MaxQuestionChars)
	if err != nil {
		return "", nil, nil, err
	}
	retrieval, err := s.searchService.Retrieve(ctx, q, s.rag.GlobalTopK, CompletedScope(user.ID))
	if err != nil {
		return "", nil, nil, err
	}

	verdict := ValidateContext(q, retrieval.Chunks)
	if !verdict.Accepted {
		log.Infof("[ChatService] 上下文不足, user_id: %d, reason: %s", user.ID, verdict.Reason)
		resp := insufficient(fallbackGlobalAnswer, verdict.Reason)
		searched := retrieval.DocumentsSearched
		resp.DocumentsSearched = &searched
		s.record(ctx, user.ID, 0, q, resp)
		return q, retrieval, resp, nil
	}
	return q, retrieval, nil, nil
}

func (s *chatService) globalResponse(answer string, retrieval *Retrieval) *model.AskResponse {
	searched := retrieval.DocumentsSearched
	return &model.AskResponse{
		Answer:            answer,
		Sources:           s.sources(retrieval.Chunks, true),
		Confidence:        Confidence(retrieval.Chunks),
		DocumentsSearched: &searched,
	}
}

func insufficient(answer, reason string) *model.AskResponse {
	return &model.AskResponse{
		Answer:     answer,
		Sources:    []model.Source{},
		Confidence: "low",
		Reason:     reason,
	}
}

func (s *chatService) sources(chunks []model.RetrievedChunk, withDocument bool) []model.Source {
	out := make([]model.Source, len(chunks))
	for i, c := range chunks {
		out[i] = model.Source{
			Page:        c.ChunkIndex + 1,
			TextExcerpt: excerpt(c.Text, s.rag.ExcerptChars),
			Relevance:   c.Similarity(),
		}
		if withDocument {
			out[i].DocumentID = c.DocumentID
			out[i].DocumentTitle = c.DocumentTitle
		}
	}
	return out
}

func excerpt(text string, n int) string {
	if n <= 0 || utf8.RuneCountInString(text) <= n {
		return text
	}
	return string([]rune(text)[:n]) + "..."
}

func (s *chatService) record(ctx context.Context, userID, documentID uint, question string, resp *model.AskResponse) {
	if s.conversationRepo == nil {
		return
	}
	rec := model.AskRecord{
		ID:         uuid.NewString(),
		DocumentID: documentID,
		Question:   question,
		Answer:     resp.Answer,
		Confidence: resp.Confidence,
		Timestamp:  time.Now(),
	}
	if err := s.conversationRepo.Append(ctx, userID, rec); err != nil {
		log.Errorf("[ChatService] 保存问答记录失败: %v", err)
	}
}

func (s *chatService) History(ctx context.Context, userID uint) ([]model.AskRecord, error) {
	if s.conversationRepo == nil {
		return []model.AskRecord{}, nil
	}
	return s.conversationRepo.List(ctx, userID)
}

// collectingWriter 在转发分块的同时拼接完整回答。
type collectingWriter struct {
	next llm.MessageWriter
	buf  strings.Builder
}

func (w *collectingWriter) WriteMessage(messageType int, data []byte) error {
	w.buf.Write(data)
	return w.next.WriteMessage(messageType, data)
}

func (w *collectingWriter) String() string {
	return w.buf.String()
}
