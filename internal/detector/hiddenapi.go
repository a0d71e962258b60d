package detector

import (
	"context"

	"github.com/sirupsen/logrus"

	"github.com/runtime-guard/runtime-guard-go/internal/domain"
	"github.com/runtime-guard/runtime-guard-go/internal/sysprop"
)

// hiddenAPISettings 隐藏 API 限制相关的全局设置项
var hiddenAPISettings = []string{
	"hidden_api_policy",
	"hidden_api_policy_pre_p_apps",
	"hidden_api_policy_p_apps",
}

// HiddenAPIDetector 隐藏 API 限制检测器
// 限制策略被显式放宽通常意味着存在绕过框架约束的工具。
type HiddenAPIDetector struct {
	props  *sysprop.Client
	logger *logrus.Logger
}

// NewHiddenAPIDetector 创建隐藏 API 检测器
func NewHiddenAPIDetector(props *sysprop.Client, logger *logrus.Logger) *HiddenAPIDetector {
	return &HiddenAPIDetector{
		props:  props,
		logger: logger,
	}
}

// Name 检测器名称
func (d *HiddenAPIDetector) Name() string {
	return "hiddenapi"
}

// Detect 执行隐藏 API 限制检测
// 策略值 1 表示仅告警，0 表示完全放开，二者都属于
// 限制被人为放宽。
func (d *HiddenAPIDetector) Detect(ctx context.Context) ([]domain.Signal, error) {
	signals := []domain.Signal{}

	for _, setting := range hiddenAPISettings {
		value := d.props.GetSetting(ctx, "global", setting)
		if value == "0" || value == "1" {
			signals = append(signals, domain.NewSignal(domain.CategoryDebuggable, "隐藏 API 限制被放宽", true, map[string]string{
				"setting": setting,
				"policy":  value,
			}))
			break
		}
	}

	if len(signals) > 0 {
		d.logger.Info("ℹ️ 隐藏 API 限制策略被修改")
	}
	return signals, nil
}
