package handler

import (
	"errors"
	"net/http"
	"strconv"

	"smartdoc-go/internal/config"
	"smartdoc-go/internal/model"
	"smartdoc-go/internal/service"
	"smartdoc-go/pkg/log"

	"github.com/gin-gonic/gin"
)

// AskHandler 处理跨文档问答、检索调试与问答历史。
type AskHandler struct {
	chatService   service.ChatService
	searchService service.SearchService
	rag           config.RAGConfig
}

// NewAskHandler 创建一个新的 AskHandler 实例。检索调试接口与问答共用 rag 配置的 global_top_k 与 max_question_chars。
func NewAskHandler(chatService service.ChatService, searchService service.SearchService, rag config.RAGConfig) *AskHandler {
	return &AskHandler{chatService: chatService, searchService: searchService, rag: rag}
}

// AskGlobal 在当前用户全部已完成分析的文档中检索并回答。
func (h *AskHandler) AskGlobal(c *gin.Context) {
	user, ok := currentUser(c)
	if !ok {
		return
	}
	var req AskRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, "missing_question", "Question is required")
		return
	}
	resp, err := h.chatService.AskGlobal(c.Request.Context(), user, req.Question)
	writeAskResult(c, resp, err)
}

// writeAskResult 生成失败时响应体仍携带回答文本、来源与置信度。
func writeAskResult(c *gin.Context, resp *model.AskResponse, err error) {
	if err == nil {
		respond(c, http.StatusOK, "success", resp)
		return
	}
	status, code, message := mapServiceError(err)
	if status == http.StatusInternalServerError {
		log.Errorf("[AskHandler] 问答失败: %v", err)
	}
	if errors.Is(err, service.ErrSynthesisFailed) && resp != nil {
		resp.Error = code
		c.JSON(status, gin.H{"code": status, "message": message, "data": resp})
		return
	}
	fail(c, status, code, message)
}

// Search 返回原始检索结果，便于排查召回质量。
func (h *AskHandler) Search(c *gin.Context) {
	user, ok := currentUser(c)
	if !ok {
		return
	}
	query := c.Query("query")
	log.Infof("[AskHandler] 收到检索请求, query: %s", query)
	q, err := service.NormalizeQuestion(query, h.rag.MaxQuestionChars)
	if errors.Is(err, service.ErrQuestionTooLong) {
		failWith(c, err)
		return
	}
	if err != nil {
		fail(c, http.StatusBadRequest, "missing_query", "无效的查询参数")
		return
	}
	topK, err := strconv.Atoi(c.DefaultQuery("topK", strconv.Itoa(h.rag.GlobalTopK)))
	if err != nil || topK <= 0 || topK > 50 {
		topK = h.rag.GlobalTopK
	}

	// scope=all 同时检索尚未完成重新分析的文档中残留的分块
	scope := service.CompletedScope(user.ID)
	if c.Query("scope") == "all" {
		scope = service.OwnerScope(user.ID)
	}
	retrieval, err := h.searchService.Retrieve(c.Request.Context(), q, topK, scope)
	if err != nil {
		failWith(c, err)
		return
	}
	log.Infof("[AskHandler] 检索成功, query: '%s', 返回 %d 条结果", q, len(retrieval.Chunks))
	respond(c, http.StatusOK, "success", gin.H{
		"results":            retrieval.Chunks,
		"documents_searched": retrieval.DocumentsSearched,
	})
}

// Conversations 返回当前用户最近的问答记录。
func (h *AskHandler) Conversations(c *gin.Context) {
	user, ok := currentUser(c)
	if !ok {
		return
	}
	history, err := h.chatService.History(c.Request.Context(), user.ID)
	if err != nil {
		log.Errorf("[AskHandler] 获取问答历史失败: %v", err)
		respond(c, http.StatusInternalServerError, "Failed to retrieve conversation history", nil)
		return
	}
	respond(c, http.StatusOK, "success", history)
}
