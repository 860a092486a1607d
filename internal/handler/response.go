// Package handler 包含了处理 HTTP 请求的控制器逻辑。
package handler

import (
	"errors"
	"net/http"
	"strconv"

	"smartdoc-go/internal/middleware"
	"smartdoc-go/internal/model"
	"smartdoc-go/internal/service"

	"github.com/gin-gonic/gin"
)

func respond(c *gin.Context, status int, message string, data interface{}) {
	c.JSON(status, gin.H{"code": status, "message": message, "data": data})
}

// fail 返回带机器可读错误码的失败响应。
func fail(c *gin.Context, status int, errorCode, message string) {
	c.JSON(status, gin.H{"code": status, "message": message, "data": gin.H{"error": errorCode}})
}

func currentUser(c *gin.Context) (*model.User, bool) {
	user, ok := middleware.CurrentUser(c)
	if !ok {
		c.JSON(http.StatusInternalServerError, gin.H{"code": http.StatusInternalServerError, "message": "无法获取用户信息", "data": nil})
		return nil, false
	}
	return user, true
}

func documentID(c *gin.Context) (uint, bool) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil || id == 0 {
		fail(c, http.StatusBadRequest, "invalid_document_id", "无效的文档 ID")
		return 0, false
	}
	return uint(id), true
}

type errorMapping struct {
	target  error
	status  int
	code    string
	message string
}

var serviceErrors = []errorMapping{
	{service.ErrMissingQuestion, http.StatusBadRequest, "missing_question", "Question is required"},
	{service.ErrQuestionTooLong, http.StatusBadRequest, "question_too_long", "Question is too long"},
	{service.ErrDocumentNotFound, http.StatusNotFound, "document_not_found", "Document not found"},
	{service.ErrDocumentNotReady, http.StatusConflict, "document_not_ready", "Document has not been analyzed yet"},
	{service.ErrEmbeddingFailed, http.StatusServiceUnavailable, "embedding_failed", "Embedding service unavailable"},
	{service.ErrSynthesisFailed, http.StatusBadGateway, "synthesis_failed", "Answer generation failed"},
	{service.ErrAlreadyProcessing, http.StatusConflict, "already_processing", "Document is already being processed"},
	{service.ErrNotPDF, http.StatusBadRequest, "not_pdf", "Only PDF files are supported"},
	{service.ErrEmptyFile, http.StatusBadRequest, "empty_file", "File is empty"},
	{service.ErrFileTooLarge, http.StatusRequestEntityTooLarge, "file_too_large", "File is too large"},
	{service.ErrUserExists, http.StatusConflict, "username_taken", "用户名已存在"},
	{service.ErrInvalidUserInput, http.StatusBadRequest, "invalid_user_input", "用户名不能为空且密码至少 6 位"},
	{service.ErrInvalidCredentials, http.StatusUnauthorized, "invalid_credentials", "用户名或密码错误"},
}

// mapServiceError 将业务层哨兵错误映射为状态码与错误码，未知错误为 500。
func mapServiceError(err error) (int, string, string) {
	for _, m := range serviceErrors {
		if errors.Is(err, m.target) {
			return m.status, m.code, m.message
		}
	}
	return http.StatusInternalServerError, "internal_error", "服务器内部错误"
}

func failWith(c *gin.Context, err error) {
	status, code, message := mapServiceError(err)
	fail(c, status, code, message)
}
