package worker

import (
	"context"
	"fmt"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/runtime-guard/runtime-guard-go/internal/domain"
	"github.com/runtime-guard/runtime-guard-go/internal/service"
)

// ScanJob 扫描作业
type ScanJob struct {
	ScanID   string
	Profile  domain.ScanProfile
	Source   string
	resultCh chan error // 用于同步等待扫描完成
}

// Pool 扫描 Worker 池
// 无消息队列的部署形态下，本地扫描经由该池限流执行，
// 避免高频触发时并发扫描挤占宿主资源。
type Pool struct {
	workers     int
	jobChan     chan *ScanJob
	scanService service.ScanService
	logger      *logrus.Logger
	wg          sync.WaitGroup
}

// NewPool 创建扫描 Worker 池
func NewPool(workers int, queueSize int, scanService service.ScanService, logger *logrus.Logger) *Pool {
	if workers <= 0 {
		workers = 1
	}
	if queueSize <= 0 {
		queueSize = 16
	}
	return &Pool{
		workers:     workers,
		jobChan:     make(chan *ScanJob, queueSize),
		scanService: scanService,
		logger:      logger,
	}
}

// Start 启动 Worker 池
func (p *Pool) Start(ctx context.Context) {
	p.logger.WithField("workers", p.workers).Info("Starting scan worker pool")

	for i := 0; i < p.workers; i++ {
		p.wg.Add(1)
		go p.worker(ctx, i)
	}
}

// worker Worker 协程
func (p *Pool) worker(ctx context.Context, id int) {
	defer p.wg.Done()

	p.logger.WithField("worker_id", id).Info("Worker started")

	for {
		select {
		case <-ctx.Done():
			p.logger.WithField("worker_id", id).Info("Worker shutting down")
			return

		case job, ok := <-p.jobChan:
			if !ok {
				p.logger.WithField("worker_id", id).Info("Job channel closed, worker exiting")
				return
			}

			p.logger.WithFields(logrus.Fields{
				"worker_id": id,
				"scan_id":   job.ScanID,
				"profile":   job.Profile,
			}).Info("Processing scan job")

			_, err := p.scanService.ExecuteScan(ctx, job.ScanID, job.Profile, job.Source)

			if err != nil {
				p.logger.WithError(err).WithFields(logrus.Fields{
					"worker_id": id,
					"scan_id":   job.ScanID,
				}).Error("Scan execution failed")
			} else {
				p.logger.WithFields(logrus.Fields{
					"worker_id": id,
					"scan_id":   job.ScanID,
				}).Info("Scan completed successfully")
			}

			// 如果有结果通道，发送结果
			if job.resultCh != nil {
				job.resultCh <- err
				close(job.resultCh)
			}
		}
	}
}

// Submit 提交扫描作业（异步，不等待结果）
func (p *Pool) Submit(scanID string, profile domain.ScanProfile, source string) error {
	job := &ScanJob{ScanID: scanID, Profile: profile, Source: source}
	select {
	case p.jobChan <- job:
		p.logger.WithField("scan_id", scanID).Debug("Scan job submitted to pool")
		return nil
	default:
		return fmt.Errorf("scan queue is full")
	}
}

// SubmitAndWait 提交扫描作业并等待完成
func (p *Pool) SubmitAndWait(ctx context.Context, scanID string, profile domain.ScanProfile, source string) error {
	job := &ScanJob{
		ScanID:   scanID,
		Profile:  profile,
		Source:   source,
		resultCh: make(chan error, 1),
	}

	select {
	case p.jobChan <- job:
		p.logger.WithField("scan_id", scanID).Debug("Scan job submitted to pool (sync)")
	case <-ctx.Done():
		return ctx.Err()
	}

	select {
	case err := <-job.resultCh:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Stop 停止 Worker 池
func (p *Pool) Stop() {
	p.logger.Info("Stopping scan worker pool")
	close(p.jobChan)
	p.wg.Wait()
	p.logger.Info("Scan worker pool stopped")
}

// Size 返回池中 worker 数量
func (p *Pool) Size() int {
	return p.workers
}

// GetQueueSize 获取队列中等待的作业数
func (p *Pool) GetQueueSize() int {
	return len(p.jobChan)
}
