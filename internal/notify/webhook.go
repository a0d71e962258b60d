package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/runtime-guard/runtime-guard-go/internal/domain"
	"github.com/runtime-guard/runtime-guard-go/internal/retry"
)

// RetryMetrics 重试指标回调
type RetryMetrics interface {
	RecordRetryAttempt(operation string, attempt int)
	RecordRetrySuccess(operation string)
}

// Config Webhook 通知配置
type Config struct {
	Enabled    bool
	WebhookURL string
	Timeout    time.Duration
	MaxRetries int
}

// WebhookNotifier 异常报告推送器
// 检测到异常信号后向配置的 Webhook 推送告警，供风控侧联动处置。
type WebhookNotifier struct {
	config     Config
	httpClient *http.Client
	logger     *logrus.Logger
	metrics    RetryMetrics
}

// alertPayload Webhook 告警报文
type alertPayload struct {
	ScanID        string          `json:"scan_id"`
	Profile       string          `json:"profile"`
	IsClean       bool            `json:"is_clean"`
	AbnormalCount int             `json:"abnormal_count"`
	Categories    []string        `json:"categories"`
	Signals       []domain.Signal `json:"signals"`
	DurationMs    int64           `json:"duration_ms"`
	ReportedAt    time.Time       `json:"reported_at"`
}

// NewWebhookNotifier 创建 Webhook 推送器
func NewWebhookNotifier(config Config, logger *logrus.Logger) *WebhookNotifier {
	timeout := config.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	return &WebhookNotifier{
		config: config,
		httpClient: &http.Client{
			Timeout: timeout,
		},
		logger: logger,
	}
}

// SetMetrics 配置重试指标回调
func (n *WebhookNotifier) SetMetrics(metrics RetryMetrics) {
	n.metrics = metrics
}

// NotifyReport 推送检测报告
// 仅在报告包含异常信号时推送，干净报告直接跳过。
func (n *WebhookNotifier) NotifyReport(ctx context.Context, report *domain.Report) error {
	if !n.config.Enabled || n.config.WebhookURL == "" {
		return nil
	}
	if report.IsClean {
		return nil
	}

	payload := buildAlertPayload(report)
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("序列化告警报文失败: %w", err)
	}

	maxAttempts := n.config.MaxRetries
	if maxAttempts <= 0 {
		maxAttempts = 3
	}

	retryCfg := &retry.Config{
		MaxAttempts:     maxAttempts,
		InitialInterval: 1 * time.Second,
		MaxInterval:     15 * time.Second,
		Strategy:        retry.StrategyExponential,
		Timeout:         1 * time.Minute,
		Logger:          n.logger,
	}

	attempt := 0
	err = retry.Do(ctx, retryCfg, func(ctx context.Context) error {
		attempt++
		if n.metrics != nil {
			n.metrics.RecordRetryAttempt("webhook", attempt)
		}
		return n.post(ctx, body)
	})
	if err != nil {
		n.logger.WithError(err).WithField("scan_id", report.ID).Error("❌ 告警推送失败")
		return fmt.Errorf("告警推送失败: %w", err)
	}

	if n.metrics != nil && attempt > 1 {
		n.metrics.RecordRetrySuccess("webhook")
	}

	n.logger.WithFields(logrus.Fields{
		"scan_id":        report.ID,
		"abnormal_count": report.AbnormalCount(),
	}).Info("告警已推送")
	return nil
}

// post 发送单次 HTTP 请求
func (n *WebhookNotifier) post(ctx context.Context, body []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.config.WebhookURL, bytes.NewReader(body))
	if err != nil {
		return retry.NewNonRetryableError(fmt.Errorf("构造请求失败: %w", err))
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("发送请求失败: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 500 {
		return fmt.Errorf("webhook 返回状态码 %d", resp.StatusCode)
	}
	if resp.StatusCode >= 300 {
		// 4xx 属于配置问题，重试不会恢复
		return retry.NewNonRetryableError(fmt.Errorf("webhook 返回状态码 %d", resp.StatusCode))
	}
	return nil
}

// buildAlertPayload 构造告警报文，仅携带异常信号
func buildAlertPayload(report *domain.Report) alertPayload {
	var abnormal []domain.Signal
	for _, item := range report.Items {
		if item.IsAbnormal {
			abnormal = append(abnormal, item)
		}
	}

	var categories []string
	for _, c := range report.AbnormalCategories() {
		categories = append(categories, string(c))
	}

	return alertPayload{
		ScanID:        report.ID,
		Profile:       string(report.Profile),
		IsClean:       report.IsClean,
		AbnormalCount: report.AbnormalCount(),
		Categories:    categories,
		Signals:       abnormal,
		DurationMs:    report.DurationMillis,
		ReportedAt:    time.Now().UTC(),
	}
}
