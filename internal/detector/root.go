package detector

import (
	"context"
	"fmt"
	"os"
	"strings"
	"syscall"

	"github.com/sirupsen/logrus"

	"github.com/runtime-guard/runtime-guard-go/internal/domain"
	"github.com/runtime-guard/runtime-guard-go/internal/fingerprint"
	"github.com/runtime-guard/runtime-guard-go/internal/procfs"
	"github.com/runtime-guard/runtime-guard-go/internal/shell"
	"github.com/runtime-guard/runtime-guard-go/internal/sysprop"
)

// bindMountThreshold 绑定挂载数量告警阈值，超过才视为异常
const bindMountThreshold = 50

// protectedMountTargets 只读分区挂载点
var protectedMountTargets = []string{"/system", "/vendor", "/product"}

// RootDetector Root 环境检测器
// 综合 SELinux 状态、系统属性、挂载表、su 可达性、
// 特征文件与绑定挂载数量共八类证据。
type RootDetector struct {
	props  *sysprop.Client
	runner shell.Runner
	fs     *procfs.FS
	logger *logrus.Logger
}

// NewRootDetector 创建 Root 检测器
func NewRootDetector(props *sysprop.Client, runner shell.Runner, fs *procfs.FS, logger *logrus.Logger) *RootDetector {
	return &RootDetector{
		props:  props,
		runner: runner,
		fs:     fs,
		logger: logger,
	}
}

// Name 检测器名称
func (d *RootDetector) Name() string {
	return "root"
}

// Detect 执行 Root 检测
func (d *RootDetector) Detect(ctx context.Context) ([]domain.Signal, error) {
	signals := []domain.Signal{}
	signals = append(signals, d.checkSELinux(ctx)...)
	signals = append(signals, d.checkBuildProps(ctx)...)
	signals = append(signals, d.checkMountOptions()...)
	signals = append(signals, d.checkSuBinary(ctx)...)
	signals = append(signals, d.checkBuildTags(ctx)...)
	signals = append(signals, d.checkWritableDirs()...)
	signals = append(signals, d.checkRootArtifacts()...)
	signals = append(signals, d.checkBindMounts()...)

	if len(signals) > 0 {
		d.logger.WithField("count", len(signals)).Info("⚠️ Root 检测发现异常信号")
	}
	return signals, nil
}

// checkSELinux 检查 SELinux 是否处于宽容模式
func (d *RootDetector) checkSELinux(ctx context.Context) []domain.Signal {
	output, err := d.runner.Run(ctx, "getenforce")
	if err != nil {
		return nil
	}

	mode := strings.TrimSpace(output)
	if strings.EqualFold(mode, "Permissive") {
		return []domain.Signal{domain.NewSignal(domain.CategoryRoot, "SELinux 处于宽容模式", true, map[string]string{
			"selinux_mode": mode,
		})}
	}
	return nil
}

// checkBuildProps 检查调试与安全构建属性
func (d *RootDetector) checkBuildProps(ctx context.Context) []domain.Signal {
	var signals []domain.Signal

	if d.props.Get(ctx, "ro.debuggable") == "1" {
		signals = append(signals, domain.NewSignal(domain.CategoryDebuggable, "系统构建开启了全局调试", true, map[string]string{
			"ro.debuggable": "1",
		}))
	}
	if d.props.Get(ctx, "ro.secure") == "0" {
		signals = append(signals, domain.NewSignal(domain.CategoryRoot, "系统以非安全模式启动", true, map[string]string{
			"ro.secure": "0",
		}))
	}
	return signals
}

// checkMountOptions 检查只读分区是否被重挂载为可写
func (d *RootDetector) checkMountOptions() []domain.Signal {
	lines, err := d.fs.Mounts()
	if err != nil {
		return nil
	}

	var signals []domain.Signal
	for _, line := range lines {
		fields := strings.Fields(line)
		if len(fields) < 4 {
			continue
		}
		mountPoint := fields[1]
		options := fields[3]

		if !isProtectedMountPoint(mountPoint) {
			continue
		}
		for _, opt := range strings.Split(options, ",") {
			if opt == "rw" {
				signals = append(signals, domain.NewSignal(domain.CategoryRoot,
					fmt.Sprintf("只读分区 %s 被挂载为可写", mountPoint), true, map[string]string{
						"mount_point": mountPoint,
						"mount_line":  line,
					}))
				break
			}
		}
	}
	return signals
}

func isProtectedMountPoint(mountPoint string) bool {
	for _, target := range protectedMountTargets {
		if mountPoint == target || strings.HasPrefix(mountPoint, target+"/") {
			return true
		}
	}
	return false
}

// checkSuBinary 解析并尝试执行 su
func (d *RootDetector) checkSuBinary(ctx context.Context) []domain.Signal {
	var signals []domain.Signal

	if path, found := d.runner.LookPath("su"); found {
		evidence := map[string]string{"su_path": path}
		description := "PATH 中存在 su 命令"

		if output, err := d.runner.Run(ctx, path, "-c", "id"); err == nil && strings.Contains(output, "uid=0") {
			description = "su 执行成功并取得 root 身份"
			evidence["id_output"] = strings.TrimSpace(output)
		}
		signals = append(signals, domain.NewSignal(domain.CategoryRoot, description, true, evidence))
	}

	var executable []string
	for _, path := range fingerprint.GetSuCandidatePaths() {
		info, err := os.Stat(path)
		if err != nil {
			continue
		}
		if info.Mode().Perm()&0o111 != 0 {
			executable = append(executable, path)
		}
	}
	if len(executable) > 0 {
		signals = append(signals, domain.NewSignal(domain.CategoryRoot, "发现可执行的 su 候选文件", true, map[string]string{
			"su_candidates": strings.Join(executable, ","),
		}))
	}
	return signals
}

// checkBuildTags 检查系统是否使用测试签名构建
func (d *RootDetector) checkBuildTags(ctx context.Context) []domain.Signal {
	tags := d.props.Get(ctx, "ro.build.tags")
	if strings.Contains(tags, "test-keys") {
		return []domain.Signal{domain.NewSignal(domain.CategoryRoot, "系统使用测试密钥签名", true, map[string]string{
			"ro.build.tags": tags,
		})}
	}
	return nil
}

// checkWritableDirs 检查系统目录的写权限
func (d *RootDetector) checkWritableDirs() []domain.Signal {
	var writable []string
	for _, dir := range fingerprint.GetWritableSystemDirs() {
		if syscall.Access(dir, 0x2) == nil {
			writable = append(writable, dir)
		}
	}

	if len(writable) > 0 {
		return []domain.Signal{domain.NewSignal(domain.CategoryRoot, "系统目录对当前进程可写", true, map[string]string{
			"writable_dirs": strings.Join(writable, ","),
		})}
	}
	return nil
}

// checkRootArtifacts 检查已知 Root 工具的特征文件
func (d *RootDetector) checkRootArtifacts() []domain.Signal {
	var found []string
	for _, path := range fingerprint.GetRootArtifactPaths() {
		if _, err := os.Stat(path); err == nil {
			found = append(found, path)
		}
	}

	if len(found) > 0 {
		return []domain.Signal{domain.NewSignal(domain.CategoryRoot, "发现 Root 工具特征文件", true, map[string]string{
			"artifact_paths": strings.Join(found, ","),
		})}
	}
	return nil
}

// checkBindMounts 检查绑定挂载数量是否异常
// Magisk 一类工具通过大量绑定挂载注入文件，数量显著高于
// 正常系统。阈值以内不产生信号。
func (d *RootDetector) checkBindMounts() []domain.Signal {
	count, err := d.fs.BindMountCount()
	if err != nil {
		return nil
	}

	if count > bindMountThreshold {
		return []domain.Signal{domain.NewSignal(domain.CategoryRoot, "绑定挂载数量异常", true, map[string]string{
			"bind_mount_count": fmt.Sprintf("%d", count),
			"threshold":        fmt.Sprintf("%d", bindMountThreshold),
		})}
	}
	return nil
}
