package shell

import (
	"context"
	"fmt"
	"os/exec"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
)

// Runner 外部诊断命令执行器
// 检测器执行 getprop/settings/which 等诊断命令的统一入口，
// 测试中可替换为固定输出的假实现。
type Runner interface {
	// Run 执行命令并返回合并后的标准输出与标准错误
	Run(ctx context.Context, name string, args ...string) (string, error)
	// LookPath 在 PATH 上解析可执行文件
	LookPath(name string) (string, bool)
}

// ExecRunner 基于 os/exec 的执行器
type ExecRunner struct {
	timeout time.Duration
	logger  *logrus.Logger
}

// NewExecRunner 创建命令执行器
// timeout 为单条命令的最长执行时间，防止挂起的诊断命令拖垮整个检测。
func NewExecRunner(timeout time.Duration, logger *logrus.Logger) *ExecRunner {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &ExecRunner{
		timeout: timeout,
		logger:  logger,
	}
}

// Run 执行命令
func (r *ExecRunner) Run(ctx context.Context, name string, args ...string) (string, error) {
	runCtx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	cmd := exec.CommandContext(runCtx, name, args...)
	output, err := cmd.CombinedOutput()
	if err != nil {
		if runCtx.Err() == context.DeadlineExceeded {
			r.logger.WithFields(logrus.Fields{
				"command": name,
				"timeout": r.timeout.String(),
			}).Warn("⚠️ 诊断命令执行超时")
			return "", fmt.Errorf("命令 %s 执行超时: %w", name, runCtx.Err())
		}
		return string(output), fmt.Errorf("命令 %s 执行失败: %w", name, err)
	}

	return strings.TrimRight(string(output), "\n"), nil
}

// LookPath 在 PATH 上解析可执行文件
func (r *ExecRunner) LookPath(name string) (string, bool) {
	path, err := exec.LookPath(name)
	if err != nil {
		return "", false
	}
	return path, true
}
