package repository

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"github.com/runtime-guard/runtime-guard-go/internal/domain"
)

type ScanRepository interface {
	Create(ctx context.Context, record *domain.ScanRecord) error
	FindByID(ctx context.Context, id string) (*domain.ScanRecord, error)
	Latest(ctx context.Context) (*domain.ScanRecord, error)
	ListWithPagination(ctx context.Context, page int, pageSize int) ([]*domain.ScanRecord, int64, error)
	ListWithFilter(ctx context.Context, page int, pageSize int, profile string, onlyAbnormal bool) ([]*domain.ScanRecord, int64, error)
	ListFailed(ctx context.Context, limit int) ([]*domain.ScanRecord, error)
	MarkRunning(ctx context.Context, id string) error
	MarkFailed(ctx context.Context, id string, errorMessage string) error
	SaveResult(ctx context.Context, record *domain.ScanRecord) error
	GetStatusCounts(ctx context.Context) (map[string]int64, int64, error)
	DeleteBefore(ctx context.Context, beforeDays int) (int64, error)
}

type scanRepo struct {
	db     *gorm.DB
	logger *logrus.Logger
}

func NewScanRepository(db *gorm.DB, logger *logrus.Logger) ScanRepository {
	return &scanRepo{
		db:     db,
		logger: logger,
	}
}

func (r *scanRepo) Create(ctx context.Context, record *domain.ScanRecord) error {
	record.CreatedAt = time.Now().UTC()
	return r.db.WithContext(ctx).Create(record).Error
}

func (r *scanRepo) FindByID(ctx context.Context, id string) (*domain.ScanRecord, error) {
	var record domain.ScanRecord
	err := r.db.WithContext(ctx).First(&record, "id = ?", id).Error
	if err != nil {
		return nil, err
	}
	return &record, nil
}

// Latest 获取最近一次完成的扫描记录
func (r *scanRepo) Latest(ctx context.Context) (*domain.ScanRecord, error) {
	var record domain.ScanRecord
	err := r.db.WithContext(ctx).
		Where("status = ?", domain.ScanStatusCompleted).
		Order("completed_at DESC").
		First(&record).Error
	if err != nil {
		return nil, err
	}
	return &record, nil
}

func (r *scanRepo) ListWithPagination(ctx context.Context, page int, pageSize int) ([]*domain.ScanRecord, int64, error) {
	var records []*domain.ScanRecord
	var total int64

	if err := r.db.WithContext(ctx).Model(&domain.ScanRecord{}).Count(&total).Error; err != nil {
		return nil, 0, err
	}

	offset := (page - 1) * pageSize
	err := r.db.WithContext(ctx).
		Order("created_at DESC").
		Offset(offset).
		Limit(pageSize).
		Find(&records).Error

	return records, total, err
}

// ListWithFilter 按档位和异常标志过滤扫描记录
func (r *scanRepo) ListWithFilter(ctx context.Context, page int, pageSize int, profile string, onlyAbnormal bool) ([]*domain.ScanRecord, int64, error) {
	var records []*domain.ScanRecord
	var total int64

	baseQuery := r.db.WithContext(ctx).Model(&domain.ScanRecord{})
	if profile != "" {
		baseQuery = baseQuery.Where("profile = ?", profile)
	}
	if onlyAbnormal {
		baseQuery = baseQuery.Where("is_clean = ? AND status = ?", false, domain.ScanStatusCompleted)
	}

	if err := baseQuery.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	offset := (page - 1) * pageSize
	query := r.db.WithContext(ctx)
	if profile != "" {
		query = query.Where("profile = ?", profile)
	}
	if onlyAbnormal {
		query = query.Where("is_clean = ? AND status = ?", false, domain.ScanStatusCompleted)
	}

	err := query.
		Order("created_at DESC").
		Offset(offset).
		Limit(pageSize).
		Find(&records).Error

	return records, total, err
}

// ListFailed 获取失败的扫描记录，按创建时间升序
func (r *scanRepo) ListFailed(ctx context.Context, limit int) ([]*domain.ScanRecord, error) {
	var records []*domain.ScanRecord
	query := r.db.WithContext(ctx).
		Where("status = ?", domain.ScanStatusFailed).
		Order("created_at ASC")
	if limit > 0 {
		query = query.Limit(limit)
	}
	err := query.Find(&records).Error
	return records, err
}

// MarkRunning 标记扫描开始执行
func (r *scanRepo) MarkRunning(ctx context.Context, id string) error {
	now := time.Now().UTC()
	result := r.db.WithContext(ctx).
		Model(&domain.ScanRecord{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"status":     domain.ScanStatusRunning,
			"started_at": &now,
		})

	if result.Error != nil {
		r.logger.WithError(result.Error).WithField("scan_id", id).Error("标记扫描运行状态失败")
	}
	return result.Error
}

// MarkFailed 标记扫描失败
func (r *scanRepo) MarkFailed(ctx context.Context, id string, errorMessage string) error {
	now := time.Now().UTC()
	result := r.db.WithContext(ctx).
		Model(&domain.ScanRecord{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"status":        domain.ScanStatusFailed,
			"error_message": errorMessage,
			"completed_at":  &now,
		})

	if result.Error != nil {
		r.logger.WithError(result.Error).WithField("scan_id", id).Error("标记扫描失败状态失败")
		return result.Error
	}

	r.logger.WithFields(logrus.Fields{
		"scan_id": id,
		"error":   errorMessage,
	}).Warn("❌ 扫描已标记为失败")
	return nil
}

// SaveResult 保存扫描结果
// 记录可能尚未入库（CLI 一次性扫描），存在则整体更新。
func (r *scanRepo) SaveResult(ctx context.Context, record *domain.ScanRecord) error {
	var existing domain.ScanRecord
	err := r.db.WithContext(ctx).
		Select("id").
		First(&existing, "id = ?", record.ID).Error

	if err == gorm.ErrRecordNotFound {
		return r.Create(ctx, record)
	} else if err != nil {
		return err
	}

	return r.db.WithContext(ctx).Save(record).Error
}

// GetStatusCounts 获取各状态扫描数量统计
func (r *scanRepo) GetStatusCounts(ctx context.Context) (map[string]int64, int64, error) {
	type StatusCount struct {
		Status string
		Count  int64
	}

	var results []StatusCount
	err := r.db.WithContext(ctx).
		Model(&domain.ScanRecord{}).
		Select("status, COUNT(*) as count").
		Group("status").
		Scan(&results).Error

	if err != nil {
		r.logger.WithError(err).Error("统计扫描状态失败")
		return nil, 0, err
	}

	statusCounts := map[string]int64{
		"queued":    0,
		"running":   0,
		"completed": 0,
		"failed":    0,
	}

	var total int64
	for _, item := range results {
		statusCounts[item.Status] = item.Count
		total += item.Count
	}
	return statusCounts, total, nil
}

// DeleteBefore 删除指定天数之前的扫描记录
func (r *scanRepo) DeleteBefore(ctx context.Context, beforeDays int) (int64, error) {
	if beforeDays <= 0 {
		return 0, nil
	}

	cutoff := time.Now().UTC().AddDate(0, 0, -beforeDays)
	result := r.db.WithContext(ctx).
		Where("created_at < ?", cutoff).
		Delete(&domain.ScanRecord{})

	if result.Error != nil {
		return 0, result.Error
	}

	r.logger.WithFields(logrus.Fields{
		"before_days": beforeDays,
		"deleted":     result.RowsAffected,
	}).Info("已清理历史扫描记录")
	return result.RowsAffected, nil
}
