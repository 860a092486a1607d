package model

import (
	"time"

	"gorm.io/datatypes"
)

// DocumentStatus 文档的生命周期状态。
type DocumentStatus string

const (
	StatusPending    DocumentStatus = "pending"
	StatusProcessing DocumentStatus = "processing"
	StatusCompleted  DocumentStatus = "completed"
	StatusFailed     DocumentStatus = "failed"
)

// Document 对应 documents 表。
// Status 与 AnalysisResult 只由摄取流程、触发守卫和超时清理任务修改。
type Document struct {
	ID             uint           `gorm:"primaryKey;autoIncrement" json:"id"`
	Title          string         `gorm:"type:varchar(255);not null" json:"title"`
	FileName       string         `gorm:"type:varchar(255);not null" json:"fileName"`
	ObjectName     string         `gorm:"type:varchar(512);not null" json:"-"`
	FileSize       int64          `gorm:"not null" json:"fileSize"`
	Status         DocumentStatus `gorm:"type:varchar(20);not null;default:pending;index" json:"status"`
	OwnerID        uint           `gorm:"not null;index" json:"ownerId"`
	AnalysisResult datatypes.JSON `json:"analysisResult"`
	UploadedAt     time.Time      `gorm:"autoCreateTime" json:"uploadedAt"`
	UpdatedAt      time.Time      `gorm:"autoUpdateTime" json:"updatedAt"`
}

// TableName 指定了此模型在数据库中对应的表名。
func (Document) TableName() string {
	return "documents"
}

// Analysis 按当前状态解码 analysis_result。
func (d *Document) Analysis() (Analysis, error) {
	return DecodeAnalysis(d.Status, d.AnalysisResult)
}

// DocumentStats 是文档统计接口返回的只读投影。
type DocumentStats struct {
	DocumentID uint           `json:"documentId"`
	Title      string         `json:"title"`
	Status     DocumentStatus `json:"status"`
	ChunkCount int64          `json:"chunkCount"`
	WordCount  int            `json:"wordCount"`
	CharCount  int            `json:"charCount"`
	PageCount  int            `json:"pageCount,omitempty"`
	HasSummary bool           `json:"hasSummary"`
	Error      string         `json:"error,omitempty"`
	UpdatedAt  LocalTime      `json:"updatedAt"`
}
