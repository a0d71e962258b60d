package detector

import (
	"context"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/runtime-guard/runtime-guard-go/internal/domain"
	"github.com/runtime-guard/runtime-guard-go/internal/sysprop"
)

// DevOptionsDetector 开发者选项与 ADB 检测器
type DevOptionsDetector struct {
	props  *sysprop.Client
	logger *logrus.Logger
}

// NewDevOptionsDetector 创建开发者选项检测器
func NewDevOptionsDetector(props *sysprop.Client, logger *logrus.Logger) *DevOptionsDetector {
	return &DevOptionsDetector{
		props:  props,
		logger: logger,
	}
}

// Name 检测器名称
func (d *DevOptionsDetector) Name() string {
	return "devoptions"
}

// Detect 执行开发者选项检测
func (d *DevOptionsDetector) Detect(ctx context.Context) ([]domain.Signal, error) {
	signals := []domain.Signal{}

	if d.props.GetSetting(ctx, "global", "development_settings_enabled") == "1" {
		signals = append(signals, domain.NewSignal(domain.CategoryDeveloperOptions, "开发者选项已开启", true, map[string]string{
			"development_settings_enabled": "1",
		}))
	}

	if d.props.GetSetting(ctx, "global", "adb_enabled") == "1" {
		evidence := map[string]string{"adb_enabled": "1"}
		if usb := d.props.Get(ctx, "sys.usb.config"); strings.Contains(usb, "adb") {
			evidence["sys.usb.config"] = usb
		}
		signals = append(signals, domain.NewSignal(domain.CategoryADBEnabled, "ADB 调试已开启", true, evidence))
	}

	if len(signals) > 0 {
		d.logger.WithField("count", len(signals)).Info("ℹ️ 检测到调试配置开启")
	}
	return signals, nil
}
