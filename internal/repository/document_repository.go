package repository

import (
	"errors"
	"time"

	"smartdoc-go/internal/model"

	"gorm.io/gorm"
)

// ErrNotProcessing 表示文档已离开 processing 状态，例如被超时清理标记为失败。
var ErrNotProcessing = errors.New("document is no longer processing")

// DocumentRepository 定义了对 documents 表的数据操作接口。
type DocumentRepository interface {
	Create(doc *model.Document) error
	FindByID(id uint) (*model.Document, error)
	FindByIDs(ids []uint) ([]model.Document, error)
	FindByOwner(ownerID uint, offset, limit int) ([]model.Document, int64, error)
	ListCompletedIDsByOwner(ownerID uint) ([]uint, error)
	ExistsByFileName(ownerID uint, fileName string) (bool, error)
	// ClaimForProcessing 仅在文档当前不是 processing 时将其置为 processing，返回是否抢占成功。
	ClaimForProcessing(id uint) (bool, error)
	SaveResult(id uint, analysis model.Analysis) error
	// Heartbeat 刷新 processing 文档的 updated_at，文档不存在或已离开 processing 时返回错误。
	Heartbeat(id uint) error
	// FinishProcessing 仅当文档仍为 processing 时写入终态结果。
	FinishProcessing(id uint, analysis model.Analysis) error
	// FailStale 将 updated_at 早于 olderThan 的 processing 文档标记为失败。
	FailStale(olderThan time.Time, reason string) (int64, error)
	Delete(id uint) error
}

type documentRepository struct {
	db *gorm.DB
}

// NewDocumentRepository 创建一个新的 DocumentRepository 实例。
func NewDocumentRepository(db *gorm.DB) DocumentRepository {
	return &documentRepository{db: db}
}

func (r *documentRepository) Create(doc *model.Document) error {
	if doc.Status == "" {
		doc.Status = model.StatusPending
	}
	if len(doc.AnalysisResult) == 0 {
		raw, err := model.EncodeAnalysis(model.PendingAnalysis{})
		if err != nil {
			return err
		}
		doc.AnalysisResult = raw
	}
	return r.db.Create(doc).Error
}

func (r *documentRepository) FindByID(id uint) (*model.Document, error) {
	var doc model.Document
	if err := r.db.First(&doc, id).Error; err != nil {
		return nil, err
	}
	return &doc, nil
}

func (r *documentRepository) FindByIDs(ids []uint) ([]model.Document, error) {
	var docs []model.Document
	if len(ids) == 0 {
		return docs, nil
	}
	err := r.db.Where("id IN ?", ids).Find(&docs).Error
	return docs, err
}

// FindByOwner 分页返回用户的文档，最新上传的在前。
func (r *documentRepository) FindByOwner(ownerID uint, offset, limit int) ([]model.Document, int64, error) {
	var docs []model.Document
	var total int64

	db := r.db.Model(&model.Document{}).Where("owner_id = ?", ownerID)
	if err := db.Count(&total).Error; err != nil {
		return nil, 0, err
	}
	err := db.Order("uploaded_at DESC, id DESC").Offset(offset).Limit(limit).Find(&docs).Error
	if err != nil {
		return nil, 0, err
	}
	return docs, total, nil
}

func (r *documentRepository) ListCompletedIDsByOwner(ownerID uint) ([]uint, error) {
	var ids []uint
	err := r.db.Model(&model.Document{}).
		Where("owner_id = ? AND status = ?", ownerID, model.StatusCompleted).
		Order("id ASC").
		Pluck("id", &ids).Error
	return ids, err
}

// ExistsByFileName 用于种子目录导入的幂等判断。
func (r *documentRepository) ExistsByFileName(ownerID uint, fileName string) (bool, error) {
	var n int64
	err := r.db.Model(&model.Document{}).
		Where("owner_id = ? AND file_name = ?", ownerID, fileName).
		Count(&n).Error
	return n > 0, err
}

func (r *documentRepository) ClaimForProcessing(id uint) (bool, error) {
	raw, err := model.EncodeAnalysis(model.ProcessingAnalysis{})
	if err != nil {
		return false, err
	}
	res := r.db.Model(&model.Document{}).
		Where("id = ? AND status <> ?", id, model.StatusProcessing).
		Updates(map[string]interface{}{
			"status":          model.StatusProcessing,
			"analysis_result": raw,
			"updated_at":      time.Now(),
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

// SaveResult 校验分析结果后与对应状态一起写入。
func (r *documentRepository) SaveResult(id uint, analysis model.Analysis) error {
	raw, err := model.EncodeAnalysis(analysis)
	if err != nil {
		return err
	}
	res := r.db.Model(&model.Document{}).Where("id = ?", id).Updates(map[string]interface{}{
		"status":          analysis.Status(),
		"analysis_result": raw,
		"updated_at":      time.Now(),
	})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

func (r *documentRepository) Heartbeat(id uint) error {
	res := r.db.Model(&model.Document{}).
		Where("id = ? AND status = ?", id, model.StatusProcessing).
		Update("updated_at", time.Now())
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 1 {
		return nil
	}
	return r.processingState(id)
}

func (r *documentRepository) FinishProcessing(id uint, analysis model.Analysis) error {
	raw, err := model.EncodeAnalysis(analysis)
	if err != nil {
		return err
	}
	res := r.db.Model(&model.Document{}).
		Where("id = ? AND status = ?", id, model.StatusProcessing).
		Updates(map[string]interface{}{
			"status":          analysis.Status(),
			"analysis_result": raw,
			"updated_at":      time.Now(),
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 1 {
		return nil
	}
	if err := r.processingState(id); err != nil {
		return err
	}
	// MySQL 对值未变化的行返回 0，此时文档仍为 processing，视为写入成功
	return nil
}

// processingState 在条件更新未命中时区分文档已删除与状态已变化。
func (r *documentRepository) processingState(id uint) error {
	var doc model.Document
	if err := r.db.Select("id", "status").Take(&doc, id).Error; err != nil {
		return err
	}
	if doc.Status != model.StatusProcessing {
		return ErrNotProcessing
	}
	return nil
}

func (r *documentRepository) FailStale(olderThan time.Time, reason string) (int64, error) {
	raw, err := model.EncodeAnalysis(model.FailedAnalysis{Error: reason})
	if err != nil {
		return 0, err
	}
	res := r.db.Model(&model.Document{}).
		Where("status = ? AND updated_at < ?", model.StatusProcessing, olderThan).
		Updates(map[string]interface{}{
			"status":          model.StatusFailed,
			"analysis_result": raw,
			"updated_at":      time.Now(),
		})
	return res.RowsAffected, res.Error
}

// Delete 在同一事务中删除文档及其全部分块。
func (r *documentRepository) Delete(id uint) error {
	return r.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("document_id = ?", id).Delete(&model.DocumentChunk{}).Error; err != nil {
			return err
		}
		res := tx.Delete(&model.Document{}, id)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return gorm.ErrRecordNotFound
		}
		return nil
	})
}
