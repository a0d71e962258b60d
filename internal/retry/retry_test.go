package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
)

// quietConfig 构造低噪音的测试配置
func quietConfig(maxAttempts int, interval time.Duration) *Config {
	logger := logrus.New()
	logger.SetLevel(logrus.ErrorLevel)
	return &Config{
		MaxAttempts:     maxAttempts,
		InitialInterval: interval,
		MaxInterval:     10 * interval,
		Strategy:        StrategyFixed,
		Logger:          logger,
	}
}

// TestDo_Success 测试第一次就成功的情况
func TestDo_Success(t *testing.T) {
	attempts := 0

	err := Do(context.Background(), quietConfig(3, 10*time.Millisecond), func(ctx context.Context) error {
		attempts++
		return nil
	})

	assert.NoError(t, err)
	assert.Equal(t, 1, attempts, "Should succeed on first attempt")
}

// TestDo_SuccessAfterRetries 测试重试后成功
func TestDo_SuccessAfterRetries(t *testing.T) {
	attempts := 0

	err := Do(context.Background(), quietConfig(5, 10*time.Millisecond), func(ctx context.Context) error {
		attempts++
		if attempts < 3 {
			return errors.New("temporary error")
		}
		return nil
	})

	assert.NoError(t, err)
	assert.Equal(t, 3, attempts, "Should succeed on third attempt")
}

// TestDo_MaxAttemptsReached 测试达到最大尝试次数
func TestDo_MaxAttemptsReached(t *testing.T) {
	attempts := 0

	err := Do(context.Background(), quietConfig(3, 10*time.Millisecond), func(ctx context.Context) error {
		attempts++
		return errors.New("persistent error")
	})

	assert.Error(t, err)
	assert.Equal(t, 3, attempts, "Should attempt exactly max times")
	assert.Contains(t, err.Error(), "max attempts")
}

// TestDo_ContextCanceled 测试上下文取消
func TestDo_ContextCanceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	attempts := 0

	go func() {
		time.Sleep(50 * time.Millisecond)
		cancel()
	}()

	err := Do(ctx, quietConfig(10, 100*time.Millisecond), func(ctx context.Context) error {
		attempts++
		return errors.New("slow operation")
	})

	assert.Error(t, err)
	assert.Contains(t, err.Error(), "canceled")
	assert.Less(t, attempts, 10, "Should stop before max attempts")
}

// TestDo_Timeout 测试总超时终止重试
func TestDo_Timeout(t *testing.T) {
	config := quietConfig(10, 100*time.Millisecond)
	config.Timeout = 250 * time.Millisecond
	attempts := 0

	err := Do(context.Background(), config, func(ctx context.Context) error {
		attempts++
		return errors.New("slow operation")
	})

	assert.Error(t, err)
	assert.Less(t, attempts, 10, "Should stop due to timeout")
}

// TestDo_NonRetryableError 测试不可重试错误立即终止
func TestDo_NonRetryableError(t *testing.T) {
	attempts := 0

	err := Do(context.Background(), quietConfig(5, 10*time.Millisecond), func(ctx context.Context) error {
		attempts++
		return NewNonRetryableError(errors.New("fatal error"))
	})

	assert.Error(t, err)
	assert.Equal(t, 1, attempts, "Should not retry non-retryable error")
	assert.Contains(t, err.Error(), "non-retryable")
}

// TestDo_WrappedNonRetryableError 测试包装后的不可重试错误仍被识别
func TestDo_WrappedNonRetryableError(t *testing.T) {
	attempts := 0

	err := Do(context.Background(), quietConfig(5, 10*time.Millisecond), func(ctx context.Context) error {
		attempts++
		inner := NewNonRetryableError(errors.New("fatal"))
		return errors.Join(errors.New("context info"), inner)
	})

	assert.Error(t, err)
	assert.Equal(t, 1, attempts)
}

// TestDo_NilConfig 测试空配置回落到默认值
func TestDo_NilConfig(t *testing.T) {
	attempts := 0

	err := Do(context.Background(), nil, func(ctx context.Context) error {
		attempts++
		return nil
	})

	assert.NoError(t, err)
	assert.Equal(t, 1, attempts)
}

// TestDo_NilLogger 测试未提供日志器时不崩溃
func TestDo_NilLogger(t *testing.T) {
	config := &Config{
		MaxAttempts:     2,
		InitialInterval: 10 * time.Millisecond,
		Strategy:        StrategyFixed,
	}
	attempts := 0

	err := Do(context.Background(), config, func(ctx context.Context) error {
		attempts++
		return errors.New("boom")
	})

	assert.Error(t, err)
	assert.Equal(t, 2, attempts)
}

// TestIsRetryable_DefaultBehavior 测试默认重试判定
func TestIsRetryable_DefaultBehavior(t *testing.T) {
	tests := []struct {
		name      string
		err       error
		retryable bool
	}{
		{
			name:      "Nil error",
			err:       nil,
			retryable: false,
		},
		{
			name:      "Context canceled",
			err:       context.Canceled,
			retryable: false,
		},
		{
			name:      "Context deadline exceeded",
			err:       context.DeadlineExceeded,
			retryable: false,
		},
		{
			name:      "Generic error",
			err:       errors.New("some error"),
			retryable: true,
		},
		{
			name:      "Marked retryable",
			err:       NewRetryableError(errors.New("retryable")),
			retryable: true,
		},
		{
			name:      "Marked non-retryable",
			err:       NewNonRetryableError(errors.New("fatal")),
			retryable: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.retryable, IsRetryable(tt.err))
		})
	}
}

// TestNextInterval 测试各策略的间隔计算
func TestNextInterval(t *testing.T) {
	initial := 1 * time.Second
	max := 4 * time.Second

	tests := []struct {
		name     string
		strategy Strategy
		attempt  int
		expected time.Duration
	}{
		{"Fixed first", StrategyFixed, 1, 1 * time.Second},
		{"Fixed third", StrategyFixed, 3, 1 * time.Second},
		{"Linear first", StrategyLinear, 1, 1 * time.Second},
		{"Linear third", StrategyLinear, 3, 3 * time.Second},
		{"Linear capped", StrategyLinear, 9, 4 * time.Second},
		{"Exponential first", StrategyExponential, 1, 1 * time.Second},
		{"Exponential second", StrategyExponential, 2, 2 * time.Second},
		{"Exponential capped", StrategyExponential, 5, 4 * time.Second},
		{"Unknown falls back to fixed", Strategy("bogus"), 3, 1 * time.Second},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, nextInterval(tt.strategy, initial, max, tt.attempt))
		})
	}
}

// TestNextInterval_NoCap 测试未设上限时不截断
func TestNextInterval_NoCap(t *testing.T) {
	got := nextInterval(StrategyExponential, time.Second, 0, 5)
	assert.Equal(t, 16*time.Second, got)
}

// BenchmarkDo_Success 基准测试：无重试路径
func BenchmarkDo_Success(b *testing.B) {
	config := quietConfig(3, time.Millisecond)

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		Do(context.Background(), config, func(ctx context.Context) error {
			return nil
		})
	}
}
