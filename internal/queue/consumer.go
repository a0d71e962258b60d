package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/sirupsen/logrus"
)

// ScanHandler 扫描请求处理函数
// 返回错误时消息被 Nack 且不重投，失败状态由处理函数自行落库。
type ScanHandler func(ctx context.Context, msg *ScanRequestMessage) error

// Consumer 扫描请求消费者
// 多 worker 并行消费同一订阅通道，连接断开时停止全部 worker、
// 重连后整体重启。
type Consumer struct {
	mq      *RabbitMQ
	handler ScanHandler
	workers int
	logger  *logrus.Logger

	mu            sync.Mutex
	running       bool
	cancelWorkers context.CancelFunc

	wg       sync.WaitGroup
	active   int32
	stopChan chan struct{}
}

// NewConsumer 创建消费者
func NewConsumer(mq *RabbitMQ, handler ScanHandler, workers int, logger *logrus.Logger) *Consumer {
	if workers <= 0 {
		workers = 1
	}

	return &Consumer{
		mq:       mq,
		handler:  handler,
		workers:  workers,
		logger:   logger,
		stopChan: make(chan struct{}, 1),
	}
}

// Start 订阅队列并启动 worker
func (c *Consumer) Start(ctx context.Context) error {
	c.mu.Lock()
	if c.running {
		c.mu.Unlock()
		c.logger.Warn("Consumer already running, skipping start")
		return nil
	}
	c.running = true
	c.mu.Unlock()

	deliveries, err := c.mq.Consume()
	if err != nil {
		c.mu.Lock()
		c.running = false
		c.mu.Unlock()
		return fmt.Errorf("failed to start consuming: %w", err)
	}

	workerCtx, cancel := context.WithCancel(ctx)
	c.mu.Lock()
	c.cancelWorkers = cancel
	c.mu.Unlock()

	for i := 0; i < c.workers; i++ {
		c.wg.Add(1)
		go c.runWorker(workerCtx, i, deliveries)
	}
	c.logger.Infof("Scan consumer started with %d workers", c.workers)

	// 连接断开时由 handleReconnect 整体重启消费
	c.mq.StartConnectionWatcher()
	go c.handleReconnect(ctx)

	return nil
}

// runWorker 单个消费协程
func (c *Consumer) runWorker(ctx context.Context, id int, deliveries <-chan amqp.Delivery) {
	defer c.wg.Done()
	atomic.AddInt32(&c.active, 1)
	defer atomic.AddInt32(&c.active, -1)

	c.logger.Infof("Worker %d started", id)

	for {
		select {
		case <-ctx.Done():
			c.logger.Infof("Worker %d stopped by context", id)
			return
		case <-c.stopChan:
			c.logger.Infof("Worker %d stopped by signal", id)
			return
		case delivery, ok := <-deliveries:
			if !ok {
				c.logger.Warnf("Worker %d: delivery channel closed", id)
				return
			}
			c.handleDelivery(ctx, id, delivery)
		}
	}
}

// handleDelivery 处理单条投递
func (c *Consumer) handleDelivery(ctx context.Context, workerID int, delivery amqp.Delivery) {
	startedAt := time.Now()

	var msg ScanRequestMessage
	if err := json.Unmarshal(delivery.Body, &msg); err != nil {
		c.logger.WithError(err).Error("❌ 扫描请求消息解析失败，已丢弃")
		// 格式损坏的消息重投也无法恢复
		delivery.Nack(false, false)
		return
	}

	c.logger.WithFields(logrus.Fields{
		"worker_id": workerID,
		"scan_id":   msg.ScanID,
		"profile":   msg.Profile,
	}).Info("开始处理扫描请求")

	if err := c.handler(ctx, &msg); err != nil {
		c.logger.WithError(err).WithFields(logrus.Fields{
			"worker_id": workerID,
			"scan_id":   msg.ScanID,
		}).Error("❌ 扫描请求处理失败")

		// 失败已由处理函数落库，不重投避免反复执行
		delivery.Nack(false, false)
		return
	}

	if err := delivery.Ack(false); err != nil {
		c.logger.WithError(err).WithField("scan_id", msg.ScanID).Error("Failed to acknowledge message")
	}

	c.logger.WithFields(logrus.Fields{
		"worker_id": workerID,
		"scan_id":   msg.ScanID,
		"duration":  time.Since(startedAt).Seconds(),
	}).Info("✅ 扫描请求处理完成")
}

// handleReconnect 响应重连信号：停 worker、重连、重启消费
func (c *Consumer) handleReconnect(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case _, ok := <-c.mq.GetReconnectChan():
			if !ok {
				c.logger.Info("Reconnect channel closed, stopping reconnect handler")
				return
			}

			c.logger.Warn("⚠️ Connection lost, attempting to reconnect...")
			c.drainWorkers()

			if err := c.mq.Reconnect(); err != nil {
				c.logger.WithError(err).Error("Failed to reconnect, will retry on next signal")
				continue
			}

			c.mu.Lock()
			c.running = false
			c.mu.Unlock()

			if err := c.Start(ctx); err != nil {
				c.logger.WithError(err).Error("Failed to restart consumer")
			}
		}
	}
}

// drainWorkers 取消全部 worker 并等待在途扫描完成
func (c *Consumer) drainWorkers() {
	c.mu.Lock()
	if c.cancelWorkers != nil {
		c.cancelWorkers()
		c.cancelWorkers = nil
	}
	c.running = false
	c.mu.Unlock()

	done := make(chan struct{})
	go func() {
		c.wg.Wait()
		close(done)
	}()

	// 在途扫描最长等 30 秒，超时放弃等待直接重建
	select {
	case <-done:
		c.logger.Info("All workers stopped gracefully")
	case <-time.After(30 * time.Second):
		c.logger.Warn("Timeout waiting for workers to stop")
	}
}

// Stop 停止消费者并等待 worker 退出
func (c *Consumer) Stop() {
	c.logger.Info("Stopping consumer...")

	c.mu.Lock()
	if c.cancelWorkers != nil {
		c.cancelWorkers()
	}
	c.running = false
	c.mu.Unlock()

	select {
	case c.stopChan <- struct{}{}:
	default:
	}

	c.wg.Wait()
	c.logger.Info("Consumer stopped")
}

// GetActiveWorkers 当前活跃 worker 数量
func (c *Consumer) GetActiveWorkers() int {
	return int(atomic.LoadInt32(&c.active))
}

// IsRunning 消费者是否运行中
func (c *Consumer) IsRunning() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.running
}
