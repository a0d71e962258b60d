package detector

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/runtime-guard/runtime-guard-go/internal/domain"
	"github.com/runtime-guard/runtime-guard-go/internal/shell"
)

// externalStoragePrefixes 可移除存储的路径前缀
var externalStoragePrefixes = []string{"/sdcard", "/storage/", "/mnt/media_rw"}

// SignatureProvider 读取当前安装包签名摘要的能力
// 由宿主按平台提供，缺省时签名校验降级为参考信号。
type SignatureProvider func(ctx context.Context) (string, error)

// IntegrityConfig 安装包完整性检测配置
type IntegrityConfig struct {
	// PackageName 宿主包名，为空时跳过安装来源检查
	PackageName string
	// ExpectedSignature 期望的签名摘要，为空时跳过签名校验
	ExpectedSignature string
	// EnforceSignature 签名不符时是否作为异常信号
	EnforceSignature bool
	// AllowedInstallers 受信任的安装来源
	AllowedInstallers []string
}

// IntegrityDetector 安装包完整性检测器
// 覆盖签名校验、安装来源与存储位置三项。签名与安装来源
// 默认只产生参考信号，结论不受影响。
type IntegrityDetector struct {
	cfg       IntegrityConfig
	signature SignatureProvider
	runner    shell.Runner
	logger    *logrus.Logger
}

// NewIntegrityDetector 创建完整性检测器
func NewIntegrityDetector(cfg IntegrityConfig, signature SignatureProvider, runner shell.Runner, logger *logrus.Logger) *IntegrityDetector {
	return &IntegrityDetector{
		cfg:       cfg,
		signature: signature,
		runner:    runner,
		logger:    logger,
	}
}

// Name 检测器名称
func (d *IntegrityDetector) Name() string {
	return "integrity"
}

// Detect 执行完整性检测
func (d *IntegrityDetector) Detect(ctx context.Context) ([]domain.Signal, error) {
	signals := []domain.Signal{}
	signals = append(signals, d.checkSignature(ctx)...)
	signals = append(signals, d.checkInstaller(ctx)...)
	signals = append(signals, d.checkStorageLocation()...)

	if len(signals) > 0 {
		d.logger.WithField("count", len(signals)).Info("ℹ️ 完整性检测产生信号")
	}
	return signals, nil
}

// checkSignature 校验安装包签名摘要
func (d *IntegrityDetector) checkSignature(ctx context.Context) []domain.Signal {
	if d.cfg.ExpectedSignature == "" {
		return nil
	}

	if d.signature == nil {
		return []domain.Signal{domain.NewSignal(domain.CategorySignature, "宿主未提供签名读取能力", false, map[string]string{
			"expected": d.cfg.ExpectedSignature,
		})}
	}

	actual, err := d.signature(ctx)
	if err != nil {
		return []domain.Signal{domain.NewSignal(domain.CategorySignature, "签名摘要读取失败", false, map[string]string{
			"error": err.Error(),
		})}
	}

	if !strings.EqualFold(actual, d.cfg.ExpectedSignature) {
		return []domain.Signal{domain.NewSignal(domain.CategorySignature, "签名摘要与期望值不符", d.cfg.EnforceSignature, map[string]string{
			"expected": d.cfg.ExpectedSignature,
			"actual":   actual,
		})}
	}
	return nil
}

// checkInstaller 检查安装来源，仅产生参考信号
func (d *IntegrityDetector) checkInstaller(ctx context.Context) []domain.Signal {
	if d.cfg.PackageName == "" {
		return nil
	}

	output, err := d.runner.Run(ctx, "pm", "list", "packages", "-i", d.cfg.PackageName)
	if err != nil {
		return nil
	}

	installer := parseInstaller(output, d.cfg.PackageName)
	if installer == "" {
		return nil
	}

	for _, allowed := range d.cfg.AllowedInstallers {
		if installer == allowed {
			return nil
		}
	}
	return []domain.Signal{domain.NewSignal(domain.CategoryPackageInstaller,
		fmt.Sprintf("安装来源为 %s", installer), false, map[string]string{
			"installer": installer,
		})}
}

// parseInstaller 从 pm 输出中解析安装来源
// 输出形如 package:com.example.app  installer=com.android.vending
func parseInstaller(output, packageName string) string {
	for _, line := range strings.Split(output, "\n") {
		if !strings.Contains(line, packageName) {
			continue
		}
		idx := strings.Index(line, "installer=")
		if idx < 0 {
			continue
		}
		installer := strings.TrimSpace(line[idx+len("installer="):])
		if installer == "null" {
			return ""
		}
		return installer
	}
	return ""
}

// checkStorageLocation 检查程序是否位于可移除存储
func (d *IntegrityDetector) checkStorageLocation() []domain.Signal {
	exe, err := os.Executable()
	if err != nil {
		return nil
	}

	for _, prefix := range externalStoragePrefixes {
		if strings.HasPrefix(exe, prefix) {
			return []domain.Signal{domain.NewSignal(domain.CategoryIntegrity, "程序位于可移除存储中", true, map[string]string{
				"path": exe,
			})}
		}
	}
	return nil
}
