package queue

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/sirupsen/logrus"
)

// ScanRequestMessage 扫描请求消息
type ScanRequestMessage struct {
	ScanID  string `json:"scan_id"`
	Profile string `json:"profile"`
	Source  string `json:"source"`
}

// ScanResultMessage 扫描结果消息
// 推送到结果队列供下游风控系统消费。
type ScanResultMessage struct {
	ScanID         string   `json:"scan_id"`
	Profile        string   `json:"profile"`
	IsClean        bool     `json:"is_clean"`
	SignalCount    int      `json:"signal_count"`
	AbnormalCount  int      `json:"abnormal_count"`
	ErrorCount     int      `json:"error_count"`
	Categories     []string `json:"categories"`
	DurationMillis int64    `json:"duration_ms"`
	CompletedAt    string   `json:"completed_at"`
}

// Producer 消息生产者
type Producer struct {
	mq     *RabbitMQ
	logger *logrus.Logger
}

// NewProducer 创建生产者
func NewProducer(mq *RabbitMQ, logger *logrus.Logger) *Producer {
	return &Producer{
		mq:     mq,
		logger: logger,
	}
}

// PublishRequest 发布扫描请求
func (p *Producer) PublishRequest(ctx context.Context, msg *ScanRequestMessage) error {
	body, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("序列化扫描请求失败: %w", err)
	}

	if err := p.mq.Publish(ctx, body); err != nil {
		p.logger.WithError(err).WithField("scan_id", msg.ScanID).Error("发布扫描请求失败")
		return fmt.Errorf("发布消息失败: %w", err)
	}

	p.logger.WithFields(logrus.Fields{
		"scan_id": msg.ScanID,
		"profile": msg.Profile,
		"source":  msg.Source,
	}).Info("扫描请求已入队")
	return nil
}

// PublishResult 发布扫描结果
func (p *Producer) PublishResult(ctx context.Context, msg *ScanResultMessage) error {
	body, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("序列化扫描结果失败: %w", err)
	}

	if err := p.mq.Publish(ctx, body); err != nil {
		p.logger.WithError(err).WithField("scan_id", msg.ScanID).Error("发布扫描结果失败")
		return fmt.Errorf("发布消息失败: %w", err)
	}

	p.logger.WithFields(logrus.Fields{
		"scan_id":  msg.ScanID,
		"is_clean": msg.IsClean,
	}).Info("扫描结果已推送")
	return nil
}

// GetQueueSize 获取队列大小
func (p *Producer) GetQueueSize() (int, error) {
	messageCount, _, err := p.mq.GetQueueStats()
	if err != nil {
		return 0, fmt.Errorf("获取队列统计失败: %w", err)
	}
	return messageCount, nil
}
