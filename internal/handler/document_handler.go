package handler

import (
	"net/http"
	"strconv"

	"smartdoc-go/internal/service"
	"smartdoc-go/pkg/log"

	"github.com/gin-gonic/gin"
)

// DocumentHandler 负责处理所有与文档管理和单文档问答相关的 API 请求。
type DocumentHandler struct {
	docService  service.DocumentService
	chatService service.ChatService
}

// NewDocumentHandler 创建一个新的 DocumentHandler 实例。
func NewDocumentHandler(docService service.DocumentService, chatService service.ChatService) *DocumentHandler {
	return &DocumentHandler{
		docService:  docService,
		chatService: chatService,
	}
}

// Upload 接收 multipart 表单中的 file 与可选的 title。
func (h *DocumentHandler) Upload(c *gin.Context) {
	user, ok := currentUser(c)
	if !ok {
		return
	}
	fileHeader, err := c.FormFile("file")
	if err != nil {
		fail(c, http.StatusBadRequest, "missing_file", "请选择要上传的 PDF 文件")
		return
	}
	file, err := fileHeader.Open()
	if err != nil {
		log.Errorf("[DocumentHandler] 打开上传文件失败: %v", err)
		fail(c, http.StatusBadRequest, "invalid_file", "无法读取上传文件")
		return
	}
	defer file.Close()

	doc, err := h.docService.Upload(c.Request.Context(), user, c.PostForm("title"), fileHeader.Filename, file)
	if err != nil {
		log.Warnf("[DocumentHandler] 上传失败, user: %s, file: %s, error: %v", user.Username, fileHeader.Filename, err)
		failWith(c, err)
		return
	}
	respond(c, http.StatusCreated, "文档上传成功", doc)
}

// List 分页列出当前用户的文档。
func (h *DocumentHandler) List(c *gin.Context) {
	user, ok := currentUser(c)
	if !ok {
		return
	}
	offset, _ := strconv.Atoi(c.DefaultQuery("offset", "0"))
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "20"))

	docs, total, err := h.docService.List(user, offset, limit)
	if err != nil {
		log.Error("[DocumentHandler] 获取文档列表失败", err)
		failWith(c, err)
		return
	}
	respond(c, http.StatusOK, "success", gin.H{"items": docs, "total": total})
}

func (h *DocumentHandler) Get(c *gin.Context) {
	user, ok := currentUser(c)
	if !ok {
		return
	}
	id, ok := documentID(c)
	if !ok {
		return
	}
	doc, err := h.docService.Get(user, id)
	if err != nil {
		failWith(c, err)
		return
	}
	respond(c, http.StatusOK, "success", doc)
}

func (h *DocumentHandler) Stats(c *gin.Context) {
	user, ok := currentUser(c)
	if !ok {
		return
	}
	id, ok := documentID(c)
	if !ok {
		return
	}
	stats, err := h.docService.Stats(user, id)
	if err != nil {
		failWith(c, err)
		return
	}
	respond(c, http.StatusOK, "success", stats)
}

// Download 返回一小时有效的预签名下载链接。
func (h *DocumentHandler) Download(c *gin.Context) {
	user, ok := currentUser(c)
	if !ok {
		return
	}
	id, ok := documentID(c)
	if !ok {
		return
	}
	info, err := h.docService.DownloadURL(c.Request.Context(), user, id)
	if err != nil {
		log.Warnf("[DocumentHandler] 生成下载链接失败, document_id: %d, error: %v", id, err)
		failWith(c, err)
		return
	}
	respond(c, http.StatusOK, "success", info)
}

// Analyze 触发后台摄取，立即返回 202。
func (h *DocumentHandler) Analyze(c *gin.Context) {
	user, ok := currentUser(c)
	if !ok {
		return
	}
	id, ok := documentID(c)
	if !ok {
		return
	}
	doc, err := h.docService.TriggerAnalysis(c.Request.Context(), user, id)
	if err != nil {
		status, code, message := mapServiceError(err)
		if status == http.StatusInternalServerError {
			log.Errorf("[DocumentHandler] 触发分析失败, document_id: %d, error: %v", id, err)
			code, message = "enqueue_failed", "Failed to queue document analysis"
		}
		fail(c, status, code, message)
		return
	}
	respond(c, http.StatusAccepted, "Analysis started", gin.H{"documentId": doc.ID, "status": doc.Status})
}

func (h *DocumentHandler) Delete(c *gin.Context) {
	user, ok := currentUser(c)
	if !ok {
		return
	}
	id, ok := documentID(c)
	if !ok {
		return
	}
	if err := h.docService.Delete(c.Request.Context(), user, id); err != nil {
		log.Warnf("[DocumentHandler] 删除文档失败, document_id: %d, error: %v", id, err)
		failWith(c, err)
		return
	}
	respond(c, http.StatusOK, "文档已删除", nil)
}

// AskRequest 问答请求体。
type AskRequest struct {
	Question string `json:"question"`
}

// Ask 针对单个文档提问。
func (h *DocumentHandler) Ask(c *gin.Context) {
	user, ok := currentUser(c)
	if !ok {
		return
	}
	id, ok := documentID(c)
	if !ok {
		return
	}
	var req AskRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, "missing_question", "Question is required")
		return
	}

	resp, err := h.chatService.Ask(c.Request.Context(), user, id, req.Question)
	writeAskResult(c, resp, err)
}
