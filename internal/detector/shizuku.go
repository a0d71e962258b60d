package detector

import (
	"context"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/runtime-guard/runtime-guard-go/internal/domain"
	"github.com/runtime-guard/runtime-guard-go/internal/procfs"
	"github.com/runtime-guard/runtime-guard-go/internal/shell"
)

// shizukuPackage Shizuku 管理端包名
const shizukuPackage = "moe.shizuku.privileged.api"

// shizukuProcessMarks Shizuku 服务进程名特征
var shizukuProcessMarks = []string{"shizuku_server", "moe.shizuku"}

// ShizukuDetector Shizuku 提权服务检测器
// Shizuku 通过 ADB 或 root 启动特权服务，宿主环境中
// 存在该服务意味着第三方应用可以获得系统级接口。
type ShizukuDetector struct {
	runner shell.Runner
	fs     *procfs.FS
	logger *logrus.Logger
}

// NewShizukuDetector 创建 Shizuku 检测器
func NewShizukuDetector(runner shell.Runner, fs *procfs.FS, logger *logrus.Logger) *ShizukuDetector {
	return &ShizukuDetector{
		runner: runner,
		fs:     fs,
		logger: logger,
	}
}

// Name 检测器名称
func (d *ShizukuDetector) Name() string {
	return "shizuku"
}

// Detect 执行 Shizuku 检测
func (d *ShizukuDetector) Detect(ctx context.Context) ([]domain.Signal, error) {
	signals := []domain.Signal{}

	if output, err := d.runner.Run(ctx, "pm", "path", shizukuPackage); err == nil && strings.Contains(output, "package:") {
		signals = append(signals, domain.NewSignal(domain.CategoryShizuku, "已安装 Shizuku 管理端", true, map[string]string{
			"package": shizukuPackage,
		}))
	}

	if cmdlines, err := d.fs.ProcessCmdlines(); err == nil {
		for _, cmdline := range cmdlines {
			if mark, matched := containsAnyFold(cmdline, shizukuProcessMarks); matched {
				signals = append(signals, domain.NewSignal(domain.CategoryShizuku, "Shizuku 服务进程正在运行", true, map[string]string{
					"mark":    mark,
					"cmdline": strings.TrimSpace(cmdline),
				}))
				break
			}
		}
	}

	if len(signals) > 0 {
		d.logger.WithField("count", len(signals)).Info("ℹ️ 检测到 Shizuku 环境")
	}
	return signals, nil
}
