package worker

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/runtime-guard/runtime-guard-go/internal/domain"
	"github.com/runtime-guard/runtime-guard-go/internal/service"
)

// Scheduler 周期扫描调度器
// 按固定间隔触发扫描，确保宿主长时间运行期间
// 仍能发现启动后才出现的篡改。
type Scheduler struct {
	interval    time.Duration
	profile     domain.ScanProfile
	scanService service.ScanService
	logger      *logrus.Logger
	stopChan    chan struct{}
}

// NewScheduler 创建周期扫描调度器
func NewScheduler(interval time.Duration, profile domain.ScanProfile, scanService service.ScanService, logger *logrus.Logger) *Scheduler {
	if !profile.IsValid() {
		profile = domain.ProfileQuick
	}
	return &Scheduler{
		interval:    interval,
		profile:     profile,
		scanService: scanService,
		logger:      logger,
		stopChan:    make(chan struct{}),
	}
}

// Start 启动调度循环
// interval 为零或负值时不调度，直接返回。
func (s *Scheduler) Start(ctx context.Context) {
	if s.interval <= 0 {
		s.logger.Info("周期扫描未启用")
		return
	}

	s.logger.WithFields(logrus.Fields{
		"interval": s.interval.String(),
		"profile":  s.profile,
	}).Info("周期扫描调度器已启动")

	go s.loop(ctx)
}

// loop 调度循环
func (s *Scheduler) loop(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("Scheduler context done")
			return
		case <-s.stopChan:
			s.logger.Info("Scheduler stopped")
			return
		case <-ticker.C:
			if _, err := s.scanService.TriggerScan(ctx, s.profile, "schedule"); err != nil {
				s.logger.WithError(err).Error("周期扫描触发失败")
			}
		}
	}
}

// Stop 停止调度
func (s *Scheduler) Stop() {
	close(s.stopChan)
}
