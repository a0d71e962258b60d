package retry

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
)

// Strategy 重试间隔策略
type Strategy string

const (
	StrategyFixed       Strategy = "fixed"       // 固定间隔
	StrategyLinear      Strategy = "linear"      // 线性递增
	StrategyExponential Strategy = "exponential" // 指数退避
)

// Config 重试配置
type Config struct {
	MaxAttempts     int           // 最大尝试次数
	InitialInterval time.Duration // 初始间隔
	MaxInterval     time.Duration // 间隔上限
	Strategy        Strategy      // 间隔策略
	Timeout         time.Duration // 所有尝试共享的总超时
	Logger          *logrus.Logger
}

// DefaultConfig 默认配置
// 告警外推场景对时效敏感，总超时压在两分钟以内。
func DefaultConfig() *Config {
	return &Config{
		MaxAttempts:     3,
		InitialInterval: 1 * time.Second,
		MaxInterval:     30 * time.Second,
		Strategy:        StrategyExponential,
		Timeout:         2 * time.Minute,
		Logger:          logrus.New(),
	}
}

// RetryableError 重试性标记
type RetryableError interface {
	error
	IsRetryable() bool
}

type markedError struct {
	error
	retryable bool
}

func (e *markedError) IsRetryable() bool {
	return e.retryable
}

// NewRetryableError 标记错误为可重试
func NewRetryableError(err error) error {
	return &markedError{error: err, retryable: true}
}

// NewNonRetryableError 标记错误为不可重试
func NewNonRetryableError(err error) error {
	return &markedError{error: err, retryable: false}
}

// IsRetryable 判断错误是否值得重试
// 未标记的错误默认可重试，上下文取消与超时除外。
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}

	var marked RetryableError
	if errors.As(err, &marked) {
		return marked.IsRetryable()
	}

	switch {
	case errors.Is(err, context.Canceled):
		return false
	case errors.Is(err, context.DeadlineExceeded):
		return false
	default:
		return true
	}
}

// Func 可重试的操作
type Func func(ctx context.Context) error

// Do 按配置执行 fn，失败后退避重试
// 不可重试的错误立即终止，返回值包装最后一次的错误。
func Do(ctx context.Context, config *Config, fn Func) error {
	if config == nil {
		config = DefaultConfig()
	}
	log := config.Logger
	if log == nil {
		log = logrus.New()
	}

	if config.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, config.Timeout)
		defer cancel()
	}

	var lastErr error

	for attempt := 1; attempt <= config.MaxAttempts; attempt++ {
		select {
		case <-ctx.Done():
			return fmt.Errorf("retry canceled: %w", ctx.Err())
		default:
		}

		start := time.Now()
		err := fn(ctx)
		elapsed := time.Since(start)

		if err == nil {
			if attempt > 1 {
				log.WithFields(logrus.Fields{
					"attempt":  attempt,
					"duration": elapsed,
				}).Info("Operation succeeded after retry")
			}
			return nil
		}

		lastErr = err
		log.WithFields(logrus.Fields{
			"attempt":  attempt,
			"max":      config.MaxAttempts,
			"duration": elapsed,
			"error":    err.Error(),
		}).Warn("Operation failed")

		if !IsRetryable(err) {
			log.WithError(err).Warn("Error is not retryable, aborting")
			return fmt.Errorf("non-retryable error: %w", err)
		}

		if attempt >= config.MaxAttempts {
			break
		}

		wait := nextInterval(config.Strategy, config.InitialInterval, config.MaxInterval, attempt)
		log.WithFields(logrus.Fields{
			"next_attempt": attempt + 1,
			"wait":         wait,
		}).Info("Waiting before retry")

		select {
		case <-ctx.Done():
			return fmt.Errorf("retry canceled during wait: %w", ctx.Err())
		case <-time.After(wait):
		}
	}

	return fmt.Errorf("max attempts (%d) reached: %w", config.MaxAttempts, lastErr)
}

// nextInterval 计算第 attempt 次失败后的等待间隔
func nextInterval(strategy Strategy, initial, max time.Duration, attempt int) time.Duration {
	var next time.Duration

	switch strategy {
	case StrategyLinear:
		next = initial * time.Duration(attempt)
	case StrategyExponential:
		next = initial * time.Duration(1<<(attempt-1))
	default:
		next = initial
	}

	if max > 0 && next > max {
		next = max
	}
	return next
}
