package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/runtime-guard/runtime-guard-go/internal/detector"
	"github.com/runtime-guard/runtime-guard-go/internal/domain"
)

// DefaultDetectorTimeout 单个检测器的默认超时
const DefaultDetectorTimeout = 10 * time.Second

// MetricsRecorder 扫描指标回调
type MetricsRecorder interface {
	RecordScan(profile string, clean bool, duration time.Duration)
	RecordDetector(name string, signalCount int, duration time.Duration)
	RecordDetectorFailure(name string)
	RecordSignal(category string)
}

// Config 调度引擎配置
type Config struct {
	// DetectorTimeout 单个检测器的执行超时，零值使用默认值
	DetectorTimeout time.Duration
}

// registration 检测器注册项
type registration struct {
	detector detector.Detector
	inQuick  bool
}

// Engine 检测调度引擎
// 按注册顺序执行检测器并合并信号。单个检测器的失败、
// panic 或超时都折算为一条 ERROR 信号，不影响其余检测器。
type Engine struct {
	registrations []registration
	timeout       time.Duration
	metrics       MetricsRecorder
	logger        *logrus.Logger
}

// New 创建调度引擎
func New(cfg Config, logger *logrus.Logger) *Engine {
	timeout := cfg.DetectorTimeout
	if timeout <= 0 {
		timeout = DefaultDetectorTimeout
	}
	return &Engine{
		timeout: timeout,
		logger:  logger,
	}
}

// SetMetrics 配置指标回调
func (e *Engine) SetMetrics(metrics MetricsRecorder) {
	e.metrics = metrics
}

// Register 注册检测器
// 注册顺序即结果合并顺序。inQuick 标记该检测器是否
// 参与快速档。
func (e *Engine) Register(d detector.Detector, inQuick bool) {
	e.registrations = append(e.registrations, registration{detector: d, inQuick: inQuick})
	e.logger.WithFields(logrus.Fields{
		"detector": d.Name(),
		"quick":    inQuick,
	}).Debug("检测器已注册")
}

// Detectors 返回指定档位下将执行的检测器名称
func (e *Engine) Detectors(profile domain.ScanProfile) []string {
	var names []string
	for _, reg := range e.selectRegistrations(profile) {
		names = append(names, reg.detector.Name())
	}
	return names
}

// Run 执行一次完整扫描
func (e *Engine) Run(ctx context.Context, profile domain.ScanProfile) *domain.Report {
	return e.RunWithID(ctx, uuid.New().String(), profile)
}

// RunWithID 以指定扫描 ID 执行检测
// 队列消费等场景会在入队时提前分配 ID，报告沿用该 ID。
func (e *Engine) RunWithID(ctx context.Context, scanID string, profile domain.ScanProfile) *domain.Report {
	startedAt := time.Now()
	selected := e.selectRegistrations(profile)

	e.logger.WithFields(logrus.Fields{
		"scan_id":   scanID,
		"profile":   profile,
		"detectors": len(selected),
	}).Info("开始执行检测")

	items := []domain.Signal{}
	for _, reg := range selected {
		signals := e.runDetector(ctx, reg.detector)
		items = append(items, signals...)
	}

	elapsed := time.Since(startedAt)
	report := domain.NewReport(scanID, profile, items, startedAt, elapsed)

	if e.metrics != nil {
		e.metrics.RecordScan(string(profile), report.IsClean, elapsed)
		for _, item := range report.Items {
			if item.IsAbnormal {
				e.metrics.RecordSignal(string(item.Category))
			}
		}
	}

	if report.IsClean {
		e.logger.WithFields(logrus.Fields{
			"scan_id":     scanID,
			"duration_ms": elapsed.Milliseconds(),
		}).Info("✅ 检测完成，环境正常")
	} else {
		e.logger.WithFields(logrus.Fields{
			"scan_id":        scanID,
			"abnormal_count": report.AbnormalCount(),
			"categories":     report.AbnormalCategories(),
			"duration_ms":    elapsed.Milliseconds(),
		}).Warn("⚠️ 检测完成，发现异常")
	}
	return report
}

// RunAsync 在后台执行扫描，完成后回调
func (e *Engine) RunAsync(ctx context.Context, profile domain.ScanProfile, done func(*domain.Report)) {
	go func() {
		report := e.Run(ctx, profile)
		if done != nil {
			done(report)
		}
	}()
}

// selectRegistrations 按档位筛选检测器，保持注册顺序
func (e *Engine) selectRegistrations(profile domain.ScanProfile) []registration {
	if profile == domain.ProfileFull {
		return e.registrations
	}
	var selected []registration
	for _, reg := range e.registrations {
		if reg.inQuick {
			selected = append(selected, reg)
		}
	}
	return selected
}

// detectOutcome 单个检测器的执行结果
type detectOutcome struct {
	signals []domain.Signal
	err     error
}

// runDetector 执行单个检测器
// 检测器在独立 goroutine 中运行，超时后引擎不再等待。
// panic 在 goroutine 内恢复并转为错误。
func (e *Engine) runDetector(ctx context.Context, d detector.Detector) []domain.Signal {
	dctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	start := time.Now()
	outcome := make(chan detectOutcome, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				outcome <- detectOutcome{err: fmt.Errorf("检测器 panic: %v", r)}
			}
		}()
		signals, err := d.Detect(dctx)
		outcome <- detectOutcome{signals: signals, err: err}
	}()

	var signals []domain.Signal
	select {
	case out := <-outcome:
		if out.err != nil {
			e.logger.WithFields(logrus.Fields{
				"detector": d.Name(),
				"error":    out.err.Error(),
			}).Error("❌ 检测器执行失败")
			if e.metrics != nil {
				e.metrics.RecordDetectorFailure(d.Name())
			}
			signals = []domain.Signal{domain.NewErrorSignal(d.Name(), out.err)}
		} else {
			signals = out.signals
		}
	case <-dctx.Done():
		e.logger.WithFields(logrus.Fields{
			"detector": d.Name(),
			"timeout":  e.timeout.String(),
		}).Error("❌ 检测器执行超时")
		if e.metrics != nil {
			e.metrics.RecordDetectorFailure(d.Name())
		}
		signals = []domain.Signal{domain.NewErrorSignal(d.Name(), fmt.Errorf("检测超时: %w", dctx.Err()))}
	}

	if e.metrics != nil {
		e.metrics.RecordDetector(d.Name(), len(signals), time.Since(start))
	}
	return signals
}
