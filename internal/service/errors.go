package service

import "errors"

// 业务层哨兵错误，handler 通过 errors.Is 映射为 HTTP 状态码与错误码。
var (
	ErrMissingQuestion   = errors.New("question is required")
	ErrQuestionTooLong   = errors.New("question is too long")
	ErrDocumentNotFound  = errors.New("document not found")
	ErrDocumentNotReady  = errors.New("document is not ready")
	ErrEmbeddingFailed   = errors.New("embedding failed")
	ErrSynthesisFailed   = errors.New("answer synthesis failed")
	ErrAlreadyProcessing = errors.New("document is already processing")
	ErrNotPDF            = errors.New("only PDF files are supported")
	ErrFileTooLarge      = errors.New("file is too large")
	ErrEmptyFile         = errors.New("file is empty")

	ErrUserExists         = errors.New("用户名已存在")
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrInvalidUserInput   = errors.New("用户名不能为空且密码至少 6 位")
)
