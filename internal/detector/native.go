package detector

import (
	"context"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/runtime-guard/runtime-guard-go/internal/domain"
	"github.com/runtime-guard/runtime-guard-go/internal/gate"
)

// GateVerifier 防篡改门禁验证能力
type GateVerifier interface {
	Verify() gate.Result
}

// NativeDetector 原生层防篡改检测器
// 将门禁验证结果折算为信号。门禁失败按被篡改处理，
// 无法完成的探测同样视为失败。
type NativeDetector struct {
	gate   GateVerifier
	logger *logrus.Logger
}

// NewNativeDetector 创建原生层检测器
func NewNativeDetector(g GateVerifier, logger *logrus.Logger) *NativeDetector {
	return &NativeDetector{
		gate:   g,
		logger: logger,
	}
}

// Name 检测器名称
func (d *NativeDetector) Name() string {
	return "native"
}

// Detect 执行防篡改门禁验证
func (d *NativeDetector) Detect(ctx context.Context) ([]domain.Signal, error) {
	result := d.gate.Verify()
	if !result.Tampered {
		return []domain.Signal{}, nil
	}

	evidence := map[string]string{
		"failed_checks": strings.Join(result.FailedChecks(), ","),
	}
	for _, check := range result.Checks {
		if !check.Passed {
			evidence[check.Name] = check.Detail
		}
	}

	d.logger.WithField("failed", evidence["failed_checks"]).Warn("⚠️ 防篡改门禁验证未通过")
	return []domain.Signal{domain.NewSignal(domain.CategoryIntegrity, "防篡改门禁验证未通过", true, evidence)}, nil
}
