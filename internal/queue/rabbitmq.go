package queue

import (
	"context"
	"fmt"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/sirupsen/logrus"
)

const (
	// defaultHeartbeat 未配置时的 AMQP 心跳间隔
	defaultHeartbeat = 10 * time.Second
	// maxDialRetries 单次重连流程的尝试上限
	maxDialRetries = 10
)

// RabbitMQConfig RabbitMQ 连接配置
type RabbitMQConfig struct {
	Host      string
	Port      int
	User      string
	Password  string
	VHost     string
	Heartbeat time.Duration
}

// URL 构建 AMQP 连接地址
func (c *RabbitMQConfig) URL() string {
	return fmt.Sprintf("amqp://%s:%s@%s:%d/%s", c.User, c.Password, c.Host, c.Port, c.VHost)
}

// RabbitMQ 单队列 AMQP 客户端
// 扫描请求队列与结果队列各持有独立实例，连接与信道不跨队列复用，
// 结果发布阻塞时不影响请求消费。
type RabbitMQ struct {
	config    *RabbitMQConfig
	queueName string
	prefetch  int
	logger    *logrus.Logger

	mu      sync.RWMutex
	conn    *amqp.Connection
	channel *amqp.Channel
	closed  bool

	connClosed    chan *amqp.Error
	channelClosed chan *amqp.Error
	reconnectCh   chan bool
}

// NewRabbitMQ 创建客户端，预取数量为 1
func NewRabbitMQ(config *RabbitMQConfig, queueName string, logger *logrus.Logger) (*RabbitMQ, error) {
	return NewRabbitMQWithPrefetch(config, queueName, 1, logger)
}

// NewRabbitMQWithPrefetch 创建客户端并指定预取数量
// 预取数量应与消费 worker 数一致，否则多余的 worker 拿不到消息。
func NewRabbitMQWithPrefetch(config *RabbitMQConfig, queueName string, prefetchCount int, logger *logrus.Logger) (*RabbitMQ, error) {
	if prefetchCount <= 0 {
		prefetchCount = 1
	}
	if config.Heartbeat == 0 {
		config.Heartbeat = defaultHeartbeat
	}

	mq := &RabbitMQ{
		config:      config,
		queueName:   queueName,
		prefetch:    prefetchCount,
		logger:      logger,
		reconnectCh: make(chan bool, 10),
	}

	if err := mq.connect(); err != nil {
		return nil, fmt.Errorf("failed to connect to RabbitMQ: %w", err)
	}
	return mq, nil
}

// connect 建立连接、打开信道并声明持久化队列
func (mq *RabbitMQ) connect() error {
	mq.mu.Lock()
	defer mq.mu.Unlock()

	conn, err := amqp.DialConfig(mq.config.URL(), amqp.Config{
		Heartbeat: mq.config.Heartbeat,
		Locale:    "en_US",
	})
	if err != nil {
		return fmt.Errorf("failed to dial: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return fmt.Errorf("failed to open channel: %w", err)
	}

	if err := ch.Qos(mq.prefetch, 0, false); err != nil {
		ch.Close()
		conn.Close()
		return fmt.Errorf("failed to set QoS: %w", err)
	}

	// durable 队列，服务端重启不丢请求
	if _, err := ch.QueueDeclare(mq.queueName, true, false, false, false, nil); err != nil {
		ch.Close()
		conn.Close()
		return fmt.Errorf("failed to declare queue %s: %w", mq.queueName, err)
	}

	mq.conn = conn
	mq.channel = ch

	// 关闭通知每次连接重建一次，旧通道由 amqp 库负责关闭
	mq.connClosed = make(chan *amqp.Error, 1)
	mq.channelClosed = make(chan *amqp.Error, 1)
	conn.NotifyClose(mq.connClosed)
	ch.NotifyClose(mq.channelClosed)

	mq.logger.WithFields(logrus.Fields{
		"host":           mq.config.Host,
		"port":           mq.config.Port,
		"queue":          mq.queueName,
		"heartbeat":      mq.config.Heartbeat,
		"prefetch_count": mq.prefetch,
	}).Info("RabbitMQ connection established")

	return nil
}

// currentChannel 读取当前信道，重连期间可能为 nil
func (mq *RabbitMQ) currentChannel() (*amqp.Channel, error) {
	mq.mu.RLock()
	defer mq.mu.RUnlock()

	if mq.channel == nil {
		return nil, fmt.Errorf("channel not available")
	}
	return mq.channel, nil
}

// isClosed 客户端是否已主动关闭
func (mq *RabbitMQ) isClosed() bool {
	mq.mu.RLock()
	defer mq.mu.RUnlock()
	return mq.closed
}

// StartConnectionWatcher 监听连接与信道的意外关闭并发出重连信号
// 主动 Close 后监听退出。
func (mq *RabbitMQ) StartConnectionWatcher() {
	go func() {
		for {
			if mq.isClosed() {
				mq.logger.Info("Connection watcher stopped: RabbitMQ client closed")
				return
			}

			// 每轮重新读取通知通道，重连后 connect 会重建它们
			mq.mu.RLock()
			connClosed := mq.connClosed
			channelClosed := mq.channelClosed
			mq.mu.RUnlock()

			select {
			case amqpErr, ok := <-connClosed:
				if !ok && mq.isClosed() {
					return
				}
				if amqpErr != nil {
					mq.logger.WithError(amqpErr).Error("RabbitMQ connection closed unexpectedly")
				} else {
					mq.logger.Warn("RabbitMQ connection closed")
				}
				mq.signalReconnect()

			case amqpErr, ok := <-channelClosed:
				if !ok && mq.isClosed() {
					return
				}
				if amqpErr != nil {
					mq.logger.WithError(amqpErr).Error("RabbitMQ channel closed unexpectedly")
				} else {
					mq.logger.Warn("RabbitMQ channel closed")
				}
				mq.signalReconnect()
			}
		}
	}()
}

// signalReconnect 发送重连信号，信号已挂起时不重复发送
func (mq *RabbitMQ) signalReconnect() {
	select {
	case mq.reconnectCh <- true:
		mq.logger.Debug("Reconnect signal sent")
	default:
		mq.logger.Debug("Reconnect signal already pending")
	}
}

// GetReconnectChan 重连信号通道，由消费方驱动实际重连
func (mq *RabbitMQ) GetReconnectChan() <-chan bool {
	return mq.reconnectCh
}

// Reconnect 丢弃旧连接并重建，线性退避
func (mq *RabbitMQ) Reconnect() error {
	mq.teardown()

	for attempt := 1; attempt <= maxDialRetries; attempt++ {
		mq.logger.Infof("Attempting to reconnect to RabbitMQ (attempt %d/%d)", attempt, maxDialRetries)

		if err := mq.connect(); err != nil {
			mq.logger.WithError(err).Error("Failed to reconnect")
			time.Sleep(time.Duration(attempt) * time.Second)
			continue
		}

		mq.logger.Info("Successfully reconnected to RabbitMQ")
		return nil
	}

	return fmt.Errorf("failed to reconnect after %d attempts", maxDialRetries)
}

// teardown 关闭现有连接与信道，不触碰 closed 标志
func (mq *RabbitMQ) teardown() {
	mq.mu.Lock()
	defer mq.mu.Unlock()

	if mq.channel != nil {
		mq.channel.Close()
		mq.channel = nil
	}
	if mq.conn != nil {
		mq.conn.Close()
		mq.conn = nil
	}
}

// Publish 发布持久化 JSON 消息到绑定队列
func (mq *RabbitMQ) Publish(ctx context.Context, body []byte) error {
	ch, err := mq.currentChannel()
	if err != nil {
		return err
	}

	return ch.PublishWithContext(ctx, "", mq.queueName, false, false, amqp.Publishing{
		DeliveryMode: amqp.Persistent,
		ContentType:  "application/json",
		Body:         body,
		Timestamp:    time.Now(),
	})
}

// Consume 以手动确认模式订阅绑定队列
func (mq *RabbitMQ) Consume() (<-chan amqp.Delivery, error) {
	ch, err := mq.currentChannel()
	if err != nil {
		return nil, err
	}

	deliveries, err := ch.Consume(mq.queueName, "", false, false, false, false, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to consume: %w", err)
	}
	return deliveries, nil
}

// GetQueueStats 返回队列的积压消息数与消费者数
func (mq *RabbitMQ) GetQueueStats() (messageCount, consumerCount int, err error) {
	ch, err := mq.currentChannel()
	if err != nil {
		return 0, 0, err
	}

	q, err := ch.QueueInspect(mq.queueName)
	if err != nil {
		return 0, 0, err
	}
	return q.Messages, q.Consumers, nil
}

// PurgeQueue 清空队列的全部残留消息
// 服务启动时调用，随后按数据库记录重建队列内容。
func (mq *RabbitMQ) PurgeQueue() (int, error) {
	ch, err := mq.currentChannel()
	if err != nil {
		return 0, err
	}

	count, err := ch.QueuePurge(mq.queueName, false)
	if err != nil {
		return 0, fmt.Errorf("failed to purge queue: %w", err)
	}

	mq.logger.WithFields(logrus.Fields{
		"queue":        mq.queueName,
		"purged_count": count,
	}).Info("Queue purged")
	return count, nil
}

// IsConnected 检查底层连接是否可用
func (mq *RabbitMQ) IsConnected() bool {
	mq.mu.RLock()
	defer mq.mu.RUnlock()
	return mq.conn != nil && !mq.conn.IsClosed()
}

// Close 主动关闭客户端，停止监听并释放连接
func (mq *RabbitMQ) Close() error {
	mq.mu.Lock()
	mq.closed = true
	conn := mq.conn
	channel := mq.channel
	mq.mu.Unlock()

	if channel != nil {
		if err := channel.Close(); err != nil {
			mq.logger.WithError(err).Error("Failed to close channel")
		}
	}
	if conn != nil {
		if err := conn.Close(); err != nil {
			mq.logger.WithError(err).Error("Failed to close connection")
		}
	}

	mq.logger.Info("RabbitMQ connection closed")
	return nil
}
