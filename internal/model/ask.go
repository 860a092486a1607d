package model

import "time"

// Source 是回答中引用的一个来源分块。
type Source struct {
	Page          int     `json:"page"`
	TextExcerpt   string  `json:"text_excerpt"`
	Relevance     float64 `json:"relevance"`
	DocumentID    uint    `json:"document_id,omitempty"`
	DocumentTitle string  `json:"document_title,omitempty"`
}

// AskResponse 是单文档与全局问答共用的响应结构。
type AskResponse struct {
	Answer            string   `json:"answer"`
	Sources           []Source `json:"sources"`
	Confidence        string   `json:"confidence"`
	DocumentsSearched *int     `json:"documents_searched,omitempty"`
	Reason            string   `json:"reason,omitempty"`
	Error             string   `json:"error,omitempty"`
}

// AskRecord 是保存在 Redis 中的一次问答记录。
type AskRecord struct {
	ID         string    `json:"id"`
	DocumentID uint      `json:"documentId,omitempty"`
	Question   string    `json:"question"`
	Answer     string    `json:"answer"`
	Confidence string    `json:"confidence"`
	Timestamp  time.Time `json:"timestamp"`
}
