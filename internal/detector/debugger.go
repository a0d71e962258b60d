package detector

import (
	"context"
	"fmt"
	"strings"
	"syscall"

	"github.com/sirupsen/logrus"

	"github.com/runtime-guard/runtime-guard-go/internal/domain"
	"github.com/runtime-guard/runtime-guard-go/internal/fingerprint"
	"github.com/runtime-guard/runtime-guard-go/internal/procfs"
)

// fdCountThreshold 文件描述符数量告警阈值
// 注入工具会显著抬高描述符数量，但多媒体类应用也可能
// 超过阈值，因此该项只产生参考信号，不参与结论。
const fdCountThreshold = 200

// DebuggerDetector 调试器检测器
type DebuggerDetector struct {
	fs            *procfs.FS
	logger        *logrus.Logger
	fdCheckEnable bool
	ptraceProbe   func() error
}

// NewDebuggerDetector 创建调试器检测器
func NewDebuggerDetector(fs *procfs.FS, logger *logrus.Logger, fdCheckEnable bool) *DebuggerDetector {
	return &DebuggerDetector{
		fs:            fs,
		logger:        logger,
		fdCheckEnable: fdCheckEnable,
		ptraceProbe:   selfPtraceProbe,
	}
}

// selfPtraceProbe 尝试 ptrace 自附加
// tracer 槽位已被调试器占用时内核返回 EPERM。
func selfPtraceProbe() error {
	if _, _, errno := syscall.RawSyscall(syscall.SYS_PTRACE, 0, 0, 0); errno != 0 {
		return errno
	}
	return nil
}

// Name 检测器名称
func (d *DebuggerDetector) Name() string {
	return "debugger"
}

// Detect 执行调试器检测
func (d *DebuggerDetector) Detect(ctx context.Context) ([]domain.Signal, error) {
	signals := []domain.Signal{}
	signals = append(signals, d.checkTracer()...)
	signals = append(signals, d.checkDebuggerProcesses()...)
	signals = append(signals, d.checkFDCount()...)

	if len(signals) > 0 {
		d.logger.WithField("count", len(signals)).Info("⚠️ 调试器检测发现异常信号")
	}
	return signals, nil
}

// checkTracer 检查进程是否被跟踪
// TracerPid 为零时不做 ptrace 自检，避免在干净环境中
// 占用唯一的 tracer 槽位。
func (d *DebuggerDetector) checkTracer() []domain.Signal {
	pid, err := d.fs.TracerPID()
	if err != nil || pid == 0 {
		return nil
	}

	signals := []domain.Signal{domain.NewSignal(domain.CategoryDebuggable, "进程正被调试器跟踪", true, map[string]string{
		"tracer_pid": fmt.Sprintf("%d", pid),
	})}

	if err := d.ptraceProbe(); err != nil {
		signals = append(signals, domain.NewSignal(domain.CategoryDebuggable, "ptrace 自附加被拒绝", true, map[string]string{
			"tracer_pid": fmt.Sprintf("%d", pid),
			"errno":      err.Error(),
		}))
	}
	return signals
}

// checkDebuggerProcesses 扫描系统中的调试工具进程
func (d *DebuggerDetector) checkDebuggerProcesses() []domain.Signal {
	cmdlines, err := d.fs.ProcessCmdlines()
	if err != nil {
		return nil
	}

	marks := fingerprint.GetDebuggerProcessMarks()
	seen := make(map[string]bool)
	var signals []domain.Signal
	for _, cmdline := range cmdlines {
		mark, matched := containsAnyFold(cmdline, marks)
		if !matched || seen[mark] {
			continue
		}
		seen[mark] = true
		signals = append(signals, domain.NewSignal(domain.CategoryDebuggable,
			fmt.Sprintf("系统中存在调试工具进程 %s", mark), true, map[string]string{
				"mark":    mark,
				"cmdline": strings.TrimSpace(cmdline),
			}))
	}
	return signals
}

// checkFDCount 检查文件描述符数量，仅产生参考信号
func (d *DebuggerDetector) checkFDCount() []domain.Signal {
	if !d.fdCheckEnable {
		return nil
	}

	count, err := d.fs.FDCount()
	if err != nil {
		return nil
	}
	if count > fdCountThreshold {
		return []domain.Signal{domain.NewSignal(domain.CategoryDebuggable, "文件描述符数量偏高", false, map[string]string{
			"fd_count":  fmt.Sprintf("%d", count),
			"threshold": fmt.Sprintf("%d", fdCountThreshold),
		})}
	}
	return nil
}
