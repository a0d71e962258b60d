package engine

import (
	"time"

	"github.com/sirupsen/logrus"

	"github.com/runtime-guard/runtime-guard-go/internal/detector"
	"github.com/runtime-guard/runtime-guard-go/internal/fingerprint"
	"github.com/runtime-guard/runtime-guard-go/internal/gate"
	"github.com/runtime-guard/runtime-guard-go/internal/hostinfo"
	"github.com/runtime-guard/runtime-guard-go/internal/introspect"
	"github.com/runtime-guard/runtime-guard-go/internal/procfs"
	"github.com/runtime-guard/runtime-guard-go/internal/shell"
	"github.com/runtime-guard/runtime-guard-go/internal/sysprop"
)

// BuildOptions 标准检测器组合的装配参数
type BuildOptions struct {
	// DetectorTimeout 单个检测器的执行超时
	DetectorTimeout time.Duration
	// CommandTimeout 诊断命令的执行超时
	CommandTimeout time.Duration
	// ProcRoot proc 文件系统挂载点，为空时使用 /proc
	ProcRoot string
	// FDCheckEnable 是否启用文件描述符数量参考检查
	FDCheckEnable bool
	// Gate 防篡改门禁配置
	Gate gate.Config
	// Integrity 安装包完整性检测配置
	Integrity detector.IntegrityConfig
	// Provider 宿主自省实现，为空时使用 Go 运行时实现
	Provider introspect.Provider
	// Signature 签名读取能力，可为空
	Signature detector.SignatureProvider
}

// BuildDefault 装配标准检测器组合
// 注册顺序固定：root、hook、debugger、emulator、shizuku、
// devoptions、integrity、hiddenapi、native，其中 root 与
// hook 参与快速档。
func BuildDefault(opts BuildOptions, logger *logrus.Logger) *Engine {
	fs := procfs.New()
	if opts.ProcRoot != "" {
		fs = procfs.NewWithRoot(opts.ProcRoot)
	}

	runner := shell.NewExecRunner(opts.CommandTimeout, logger)
	props := sysprop.NewClient(runner, logger)
	registry := fingerprint.NewRegistry(logger)
	reader := hostinfo.NewReader(props, runner, logger)

	provider := opts.Provider
	if provider == nil {
		provider = introspect.NewRuntimeProvider()
	}

	tamperGate := gate.New(opts.Gate, fs, logger)

	e := New(Config{DetectorTimeout: opts.DetectorTimeout}, logger)
	e.Register(detector.NewRootDetector(props, runner, fs, logger), true)
	e.Register(detector.NewHookDetector(registry, provider, props, fs, logger), true)
	e.Register(detector.NewDebuggerDetector(fs, logger, opts.FDCheckEnable), false)
	e.Register(detector.NewEmulatorDetector(reader, props, fs, logger), false)
	e.Register(detector.NewShizukuDetector(runner, fs, logger), false)
	e.Register(detector.NewDevOptionsDetector(props, logger), false)
	e.Register(detector.NewIntegrityDetector(opts.Integrity, opts.Signature, runner, logger), false)
	e.Register(detector.NewHiddenAPIDetector(props, logger), false)
	e.Register(detector.NewNativeDetector(tamperGate, logger), false)

	logger.WithField("detectors", len(e.registrations)).Info("✅ 检测引擎装配完成")
	return e
}
