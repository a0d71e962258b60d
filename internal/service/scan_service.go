package service

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/runtime-guard/runtime-guard-go/internal/domain"
	"github.com/runtime-guard/runtime-guard-go/internal/engine"
	"github.com/runtime-guard/runtime-guard-go/internal/journal"
	"github.com/runtime-guard/runtime-guard-go/internal/notify"
	"github.com/runtime-guard/runtime-guard-go/internal/queue"
	"github.com/runtime-guard/runtime-guard-go/internal/repository"
)

// ScanEventBroadcaster 扫描事件广播接口
// 由 WebSocket 处理器实现，向订阅端实时推送扫描状态变化。
type ScanEventBroadcaster interface {
	BroadcastStatus(scanID string, status string)
	BroadcastReport(report *domain.Report)
}

// ScanMetrics 扫描生命周期指标回调
type ScanMetrics interface {
	RecordScanQueued()
	RecordScanStarted()
	RecordScanFinished()
}

// ScanExecutorPool 本地扫描执行池
// 无消息队列的部署形态下由 worker 池实现，提供有界并发。
type ScanExecutorPool interface {
	Submit(scanID string, profile domain.ScanProfile, source string) error
}

// ScanService 扫描服务接口
type ScanService interface {
	// 触发扫描：创建记录并入队（无队列时本地异步执行）
	TriggerScan(ctx context.Context, profile domain.ScanProfile, source string) (*domain.ScanRecord, error)

	// 执行扫描：运行检测引擎并持久化报告
	ExecuteScan(ctx context.Context, scanID string, profile domain.ScanProfile, source string) (*domain.Report, error)

	// 获取扫描记录
	GetScan(ctx context.Context, scanID string) (*domain.ScanRecord, error)

	// 获取完整检测报告（含信号明细）
	GetReport(ctx context.Context, scanID string) (*domain.Report, error)

	// 获取最近一次完成的检测报告
	LatestReport(ctx context.Context) (*domain.Report, error)

	// 获取扫描记录列表（分页 + 过滤）
	ListScans(ctx context.Context, page int, pageSize int, profile string, onlyAbnormal bool) ([]*domain.ScanRecord, int64, error)

	// 获取扫描状态统计（使用数据库聚合查询）
	GetStatusCounts(ctx context.Context) (map[string]int64, int64, error)

	// 清理历史扫描记录
	PurgeScans(ctx context.Context, beforeDays int) (int64, error)

	// 配置事件广播器（WebSocket 处理器在服务之后构造）
	SetBroadcaster(b ScanEventBroadcaster)

	// 配置指标回调
	SetMetrics(m ScanMetrics)

	// 配置本地扫描执行池
	SetPool(p ScanExecutorPool)
}

type scanService struct {
	scanRepo       repository.ScanRepository
	engine         *engine.Engine
	producer       *queue.Producer
	resultProducer *queue.Producer
	notifier       *notify.WebhookNotifier
	journal        *journal.Writer
	broadcaster    ScanEventBroadcaster
	metrics        ScanMetrics
	pool           ScanExecutorPool
	logger         *logrus.Logger
}

// NewScanService 创建扫描服务实例
// producer、resultProducer、notifier、journalWriter 均可为 nil，
// 缺失的集成会被跳过，核心检测流程不受影响。
func NewScanService(
	scanRepo repository.ScanRepository,
	eng *engine.Engine,
	producer *queue.Producer,
	resultProducer *queue.Producer,
	notifier *notify.WebhookNotifier,
	journalWriter *journal.Writer,
	logger *logrus.Logger,
) ScanService {
	return &scanService{
		scanRepo:       scanRepo,
		engine:         eng,
		producer:       producer,
		resultProducer: resultProducer,
		notifier:       notifier,
		journal:        journalWriter,
		logger:         logger,
	}
}

// SetBroadcaster 配置事件广播器
func (s *scanService) SetBroadcaster(b ScanEventBroadcaster) {
	s.broadcaster = b
}

// SetMetrics 配置指标回调
func (s *scanService) SetMetrics(m ScanMetrics) {
	s.metrics = m
}

// SetPool 配置本地扫描执行池
func (s *scanService) SetPool(p ScanExecutorPool) {
	s.pool = p
}

func (s *scanService) TriggerScan(ctx context.Context, profile domain.ScanProfile, source string) (*domain.ScanRecord, error) {
	if profile == "" {
		profile = domain.ProfileFull
	}
	if !profile.IsValid() {
		return nil, fmt.Errorf("无效的检测档位: %s", profile)
	}
	if source == "" {
		source = "api"
	}

	now := time.Now().UTC()
	record := &domain.ScanRecord{
		ID:        uuid.New().String(),
		Profile:   profile,
		Status:    domain.ScanStatusQueued,
		IsClean:   true,
		Source:    source,
		CreatedAt: now,
		UpdatedAt: now,
	}

	if err := s.scanRepo.Create(ctx, record); err != nil {
		s.logger.WithError(err).Error("创建扫描记录失败")
		return nil, fmt.Errorf("创建扫描记录失败: %w", err)
	}

	if s.metrics != nil {
		s.metrics.RecordScanQueued()
	}
	s.broadcastStatus(record.ID, string(domain.ScanStatusQueued))

	if s.producer != nil {
		msg := &queue.ScanRequestMessage{
			ScanID:  record.ID,
			Profile: string(profile),
			Source:  source,
		}
		if err := s.producer.PublishRequest(ctx, msg); err == nil {
			return record, nil
		}
		s.logger.WithField("scan_id", record.ID).Warn("⚠️ 入队失败，回退为本地执行")
	}

	// 无队列部署：经 worker 池限流执行，不阻塞调用方
	if s.pool != nil {
		if err := s.pool.Submit(record.ID, profile, source); err != nil {
			s.markFailed(ctx, record.ID, err)
			return nil, fmt.Errorf("提交扫描作业失败: %w", err)
		}
		return record, nil
	}

	go func() {
		if _, err := s.ExecuteScan(context.Background(), record.ID, profile, source); err != nil {
			s.logger.WithError(err).WithField("scan_id", record.ID).Error("本地扫描执行失败")
		}
	}()

	return record, nil
}

func (s *scanService) ExecuteScan(ctx context.Context, scanID string, profile domain.ScanProfile, source string) (*domain.Report, error) {
	if profile == "" {
		profile = domain.ProfileFull
	}
	if !profile.IsValid() {
		return nil, fmt.Errorf("无效的检测档位: %s", profile)
	}

	if err := s.scanRepo.MarkRunning(ctx, scanID); err != nil {
		// CLI 等场景不会预先建档，继续执行
		s.logger.WithError(err).WithField("scan_id", scanID).Warn("标记扫描运行中失败")
	}
	if s.metrics != nil {
		s.metrics.RecordScanStarted()
		defer s.metrics.RecordScanFinished()
	}
	s.broadcastStatus(scanID, string(domain.ScanStatusRunning))

	report := s.engine.RunWithID(ctx, scanID, profile)

	record, err := domain.RecordFromReport(report, source)
	if err != nil {
		s.markFailed(ctx, scanID, err)
		return report, fmt.Errorf("转换检测报告失败: %w", err)
	}
	if err := s.scanRepo.SaveResult(ctx, record); err != nil {
		s.markFailed(ctx, scanID, err)
		return report, fmt.Errorf("保存检测报告失败: %w", err)
	}

	if s.journal != nil {
		if err := s.journal.Append(report); err != nil {
			s.logger.WithError(err).WithField("scan_id", scanID).Warn("报告日志写入失败")
		}
	}

	s.publishResult(ctx, report)
	s.broadcastReport(report)
	s.notifyAbnormal(report)

	return report, nil
}

func (s *scanService) GetScan(ctx context.Context, scanID string) (*domain.ScanRecord, error) {
	record, err := s.scanRepo.FindByID(ctx, scanID)
	if err != nil {
		s.logger.WithError(err).WithField("scan_id", scanID).Error("获取扫描记录失败")
		return nil, fmt.Errorf("获取扫描记录失败: %w", err)
	}
	return record, nil
}

func (s *scanService) GetReport(ctx context.Context, scanID string) (*domain.Report, error) {
	record, err := s.scanRepo.FindByID(ctx, scanID)
	if err != nil {
		return nil, fmt.Errorf("获取扫描记录失败: %w", err)
	}

	report, err := record.ToReport()
	if err != nil {
		s.logger.WithError(err).WithField("scan_id", scanID).Error("还原检测报告失败")
		return nil, fmt.Errorf("还原检测报告失败: %w", err)
	}
	return report, nil
}

func (s *scanService) LatestReport(ctx context.Context) (*domain.Report, error) {
	record, err := s.scanRepo.Latest(ctx)
	if err != nil {
		return nil, fmt.Errorf("获取最新扫描记录失败: %w", err)
	}

	report, err := record.ToReport()
	if err != nil {
		return nil, fmt.Errorf("还原检测报告失败: %w", err)
	}
	return report, nil
}

func (s *scanService) ListScans(ctx context.Context, page int, pageSize int, profile string, onlyAbnormal bool) ([]*domain.ScanRecord, int64, error) {
	records, total, err := s.scanRepo.ListWithFilter(ctx, page, pageSize, profile, onlyAbnormal)
	if err != nil {
		s.logger.WithError(err).Error("获取扫描记录列表失败")
		return nil, 0, fmt.Errorf("获取扫描记录列表失败: %w", err)
	}
	return records, total, nil
}

func (s *scanService) GetStatusCounts(ctx context.Context) (map[string]int64, int64, error) {
	return s.scanRepo.GetStatusCounts(ctx)
}

func (s *scanService) PurgeScans(ctx context.Context, beforeDays int) (int64, error) {
	deleted, err := s.scanRepo.DeleteBefore(ctx, beforeDays)
	if err != nil {
		s.logger.WithError(err).WithField("before_days", beforeDays).Error("清理扫描记录失败")
		return 0, fmt.Errorf("清理扫描记录失败: %w", err)
	}

	s.logger.WithFields(logrus.Fields{
		"deleted_count": deleted,
		"before_days":   beforeDays,
	}).Info("历史扫描记录已清理")
	return deleted, nil
}

// markFailed 标记扫描失败，二次失败仅记录日志
func (s *scanService) markFailed(ctx context.Context, scanID string, cause error) {
	if err := s.scanRepo.MarkFailed(ctx, scanID, cause.Error()); err != nil {
		s.logger.WithError(err).WithField("scan_id", scanID).Error("标记扫描失败状态失败")
	}
	s.broadcastStatus(scanID, string(domain.ScanStatusFailed))
}

// publishResult 将报告摘要推送到结果队列
func (s *scanService) publishResult(ctx context.Context, report *domain.Report) {
	if s.resultProducer == nil {
		return
	}

	var categories []string
	for _, c := range report.AbnormalCategories() {
		categories = append(categories, string(c))
	}

	msg := &queue.ScanResultMessage{
		ScanID:         report.ID,
		Profile:        string(report.Profile),
		IsClean:        report.IsClean,
		SignalCount:    len(report.Items),
		AbnormalCount:  report.AbnormalCount(),
		ErrorCount:     report.ErrorCount(),
		Categories:     categories,
		DurationMillis: report.DurationMillis,
		CompletedAt:    time.Now().UTC().Format(time.RFC3339),
	}
	if err := s.resultProducer.PublishResult(ctx, msg); err != nil {
		s.logger.WithError(err).WithField("scan_id", report.ID).Warn("结果推送失败")
	}
}

// notifyAbnormal 异常报告走 Webhook 告警
// 在后台执行，告警通道阻塞不影响扫描流程。
func (s *scanService) notifyAbnormal(report *domain.Report) {
	if s.notifier == nil || report.IsClean {
		return
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
		defer cancel()
		if err := s.notifier.NotifyReport(ctx, report); err != nil {
			s.logger.WithError(err).WithField("scan_id", report.ID).Error("异常告警推送失败")
		}
	}()
}

func (s *scanService) broadcastStatus(scanID string, status string) {
	if s.broadcaster != nil {
		s.broadcaster.BroadcastStatus(scanID, status)
	}
}

func (s *scanService) broadcastReport(report *domain.Report) {
	if s.broadcaster != nil {
		s.broadcaster.BroadcastReport(report)
	}
}
