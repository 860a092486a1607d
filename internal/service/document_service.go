package service

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"time"

	"smartdoc-go/internal/model"
	"smartdoc-go/internal/repository"
	"smartdoc-go/pkg/log"
	"smartdoc-go/pkg/pdftext"
	"smartdoc-go/pkg/tasks"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// ObjectStore 是文档服务对对象存储的依赖，由 storage.Bucket 实现。
type ObjectStore interface {
	Put(ctx context.Context, objectName string, r io.Reader, size int64, contentType string) error
	Remove(ctx context.Context, objectName string) error
	PresignedURL(ctx context.Context, objectName string, expiry time.Duration) (string, error)
}

// ChunkCleaner 删除文档在向量索引中的数据。
type ChunkCleaner interface {
	Clear(ctx context.Context, documentID uint) error
}

// DownloadInfoDTO 封装了文件下载链接所需的信息。
type DownloadInfoDTO struct {
	FileName    string `json:"fileName"`
	DownloadURL string `json:"downloadUrl"`
	FileSize    int64  `json:"fileSize"`
}

// UploadOptions 上传限制与行为。
type UploadOptions struct {
	MaxBytes  int64
	AutoStart bool
}

// DocumentService 接口定义了文档管理相关的业务操作。
type DocumentService interface {
	Upload(ctx context.Context, user *model.User, title, fileName string, r io.Reader) (*model.Document, error)
	TriggerAnalysis(ctx context.Context, user *model.User, documentID uint) (*model.Document, error)
	Get(user *model.User, documentID uint) (*model.Document, error)
	List(user *model.User, offset, limit int) ([]model.Document, int64, error)
	Stats(user *model.User, documentID uint) (*model.DocumentStats, error)
	Delete(ctx context.Context, user *model.User, documentID uint) error
	DownloadURL(ctx context.Context, user *model.User, documentID uint) (*DownloadInfoDTO, error)
}

type documentService struct {
	docRepo    repository.DocumentRepository
	chunkRepo  repository.ChunkRepository
	chunks     ChunkCleaner
	objects    ObjectStore
	dispatcher tasks.Dispatcher
	opts       UploadOptions
}

// NewDocumentService 创建一个新的 DocumentService 实例。
func NewDocumentService(
	docRepo repository.DocumentRepository,
	chunkRepo repository.ChunkRepository,
	chunks ChunkCleaner,
	objects ObjectStore,
	dispatcher tasks.Dispatcher,
	opts UploadOptions,
) DocumentService {
	if opts.MaxBytes <= 0 {
		opts.MaxBytes = 50 << 20
	}
	return &documentService{
		docRepo:    docRepo,
		chunkRepo:  chunkRepo,
		chunks:     chunks,
		objects:    objects,
		dispatcher: dispatcher,
		opts:       opts,
	}
}

// Upload 校验 PDF 后写入对象存储并创建 pending 文档，按配置自动触发分析。
func (s *documentService) Upload(ctx context.Context, user *model.User, title, fileName string, r io.Reader) (*model.Document, error) {
	if !strings.EqualFold(filepath.Ext(fileName), ".pdf") {
		return nil, ErrNotPDF
	}
	data, err := io.ReadAll(io.LimitReader(r, s.opts.MaxBytes+1))
	if err != nil {
		return nil, fmt.Errorf("read upload: %w", err)
	}
	if len(data) == 0 {
		return nil, ErrEmptyFile
	}
	if int64(len(data)) > s.opts.MaxBytes {
		return nil, ErrFileTooLarge
	}
	if !pdftext.IsPDF(data) {
		return nil, ErrNotPDF
	}

	title = strings.TrimSpace(title)
	if title == "" {
		title = strings.TrimSuffix(filepath.Base(fileName), filepath.Ext(fileName))
	}
	objectName := fmt.Sprintf("documents/%d/%s.pdf", user.ID, uuid.NewString())
	if err := s.objects.Put(ctx, objectName, bytes.NewReader(data), int64(len(data)), "application/pdf"); err != nil {
		log.Errorf("[DocumentService] 上传文件到对象存储失败, object: %s, error: %v", objectName, err)
		return nil, fmt.Errorf("store upload: %w", err)
	}

	doc := &model.Document{
		Title:      title,
		FileName:   filepath.Base(fileName),
		ObjectName: objectName,
		FileSize:   int64(len(data)),
		OwnerID:    user.ID,
	}
	if err := s.docRepo.Create(doc); err != nil {
		_ = s.objects.Remove(context.WithoutCancel(ctx), objectName)
		return nil, err
	}
	log.Infof("[DocumentService] 文档已上传, document_id: %d, owner: %d, size: %d", doc.ID, user.ID, doc.FileSize)

	if !s.opts.AutoStart {
		return doc, nil
	}
	triggered, err := s.TriggerAnalysis(ctx, user, doc.ID)
	if err != nil {
		// 上传本身已成功，失败原因已写入文档
		log.Warnf("[DocumentService] 自动触发分析失败, document_id: %d, error: %v", doc.ID, err)
		if reloaded, rerr := s.docRepo.FindByID(doc.ID); rerr == nil {
			return reloaded, nil
		}
		return doc, nil
	}
	return triggered, nil
}

// TriggerAnalysis 抢占文档后投递摄取任务；文档已在处理中时返回 ErrAlreadyProcessing。
func (s *documentService) TriggerAnalysis(ctx context.Context, user *model.User, documentID uint) (*model.Document, error) {
	doc, err := s.owned(user, documentID)
	if err != nil {
		return nil, err
	}

	claimed, err := s.docRepo.ClaimForProcessing(doc.ID)
	if err != nil {
		return nil, err
	}
	if !claimed {
		return nil, ErrAlreadyProcessing
	}

	task := tasks.IngestTask{
		DocumentID: doc.ID,
		OwnerID:    doc.OwnerID,
		ObjectName: doc.ObjectName,
		FileName:   doc.FileName,
	}
	if err := s.dispatcher.Dispatch(ctx, task); err != nil {
		log.Errorf("[DocumentService] 投递摄取任务失败, document_id: %d, error: %v", doc.ID, err)
		if serr := s.docRepo.SaveResult(doc.ID, model.FailedAnalysis{Error: "enqueue failed: " + err.Error()}); serr != nil {
			log.Errorf("[DocumentService] 记录投递失败状态出错, document_id: %d, error: %v", doc.ID, serr)
		}
		return nil, fmt.Errorf("dispatch ingest task: %w", err)
	}

	log.Infof("[DocumentService] 摄取任务已投递, document_id: %d", doc.ID)
	doc.Status = model.StatusProcessing
	return doc, nil
}

func (s *documentService) owned(user *model.User, documentID uint) (*model.Document, error) {
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
	return doc, nil
}

func (s *documentService) Get(user *model.User, documentID uint) (*model.Document, error) {
	return s.owned(user, documentID)
}

func (s *documentService) List(user *model.User, offset, limit int) ([]model.Document, int64, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	if offset < 0 {
		offset = 0
	}
	return s.docRepo.FindByOwner(user.ID, offset, limit)
}

// Stats 返回文档状态与计数的只读投影，分块数以库中实际记录为准。
func (s *documentService) Stats(user *model.User, documentID uint) (*model.DocumentStats, error) {
	doc, err := s.owned(user, documentID)
	if err != nil {
		return nil, err
	}
	count, err := s.chunkRepo.CountByDocumentID(doc.ID)
	if err != nil {
		return nil, err
	}

	stats := &model.DocumentStats{
		DocumentID: doc.ID,
		Title:      doc.Title,
		Status:     doc.Status,
		ChunkCount: count,
		UpdatedAt:  model.LocalTime(doc.UpdatedAt),
	}
	analysis, err := doc.Analysis()
	if err != nil {
		log.Warnf("[DocumentService] 解析 analysis_result 失败, document_id: %d, error: %v", doc.ID, err)
		return stats, nil
	}
	switch a := analysis.(type) {
	case model.CompletedAnalysis:
		stats.WordCount = a.WordCount
		stats.CharCount = a.CharCount
		stats.PageCount = a.PageCount
		stats.HasSummary = a.Summary != ""
	case model.FailedAnalysis:
		stats.Error = a.Error
	}
	return stats, nil
}

// Delete 依次删除向量、文档及分块记录、对象存储中的原文件。processing 中的文档拒绝删除。
func (s *documentService) Delete(ctx context.Context, user *model.User, documentID uint) error {
	doc, err := s.owned(user, documentID)
	if err != nil {
		return err
	}
	if doc.Status == model.StatusProcessing {
		return ErrAlreadyProcessing
	}
	if err := s.chunks.Clear(ctx, doc.ID); err != nil {
		return fmt.Errorf("clear chunks: %w", err)
	}
	if err := s.docRepo.Delete(doc.ID); err != nil {
		return err
	}
	if err := s.objects.Remove(ctx, doc.ObjectName); err != nil {
		log.Warnf("[DocumentService] 删除对象存储文件失败, object: %s, error: %v", doc.ObjectName, err)
	}
	log.Infof("[DocumentService] 文档已删除, document_id: %d", doc.ID)
	return nil
}

func (s *documentService) DownloadURL(ctx context.Context, user *model.User, documentID uint) (*DownloadInfoDTO, error) {
	doc, err := s.owned(user, documentID)
	if err != nil {
		return nil, err
	}
	url, err := s.objects.PresignedURL(ctx, doc.ObjectName, time.Hour)
	if err != nil {
		return nil, err
	}
	return &DownloadInfoDTO{FileName: doc.FileName, DownloadURL: url, FileSize: doc.FileSize}, nil
}
