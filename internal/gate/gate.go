package gate

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/runtime-guard/runtime-guard-go/internal/procfs"
)

const callerFrameLimit = 20

// Config 防篡改门禁配置
type Config struct {
	// ProcessName 期望的进程名，为空时取自 os.Args[0]
	ProcessName string
	// ModulePrefix 本模块调用帧的函数名前缀
	ModulePrefix string
	// PathPrefixes 可执行文件允许的路径前缀，为空时不限制
	PathPrefixes []string
}

// CheckResult 单项门禁检查结果
type CheckResult struct {
	Name   string `json:"name"`
	Passed bool   `json:"passed"`
	Detail string `json:"detail"`
}

// Result 门禁验证结果
// 任意一项检查未通过即视为被篡改。
type Result struct {
	Tampered bool          `json:"tampered"`
	Checks   []CheckResult `json:"checks"`
}

// FailedChecks 返回未通过的检查名称
func (r Result) FailedChecks() []string {
	var failed []string
	for _, c := range r.Checks {
		if !c.Passed {
			failed = append(failed, c.Name)
		}
	}
	return failed
}

// Gate 防篡改门禁
// 首次 Verify 时执行全部检查并缓存结果，后续调用直接复用。
// 任何探测无法完成时按被篡改处理。
type Gate struct {
	cfg    Config
	fs     *procfs.FS
	logger *logrus.Logger

	once   sync.Once
	result Result
}

// New 创建防篡改门禁
func New(cfg Config, fs *procfs.FS, logger *logrus.Logger) *Gate {
	if cfg.ProcessName == "" && len(os.Args) > 0 {
		cfg.ProcessName = filepath.Base(os.Args[0])
	}
	return &Gate{
		cfg:    cfg,
		fs:     fs,
		logger: logger,
	}
}

// Verify 执行门禁验证
func (g *Gate) Verify() Result {
	g.once.Do(func() {
		g.result = g.verify()
		if g.result.Tampered {
			g.logger.WithField("failed", strings.Join(g.result.FailedChecks(), ",")).Warn("⚠️ 防篡改门禁未通过")
		} else {
			g.logger.Debug("✅ 防篡改门禁通过")
		}
	})
	return g.result
}

func (g *Gate) verify() Result {
	checks := []CheckResult{
		g.checkProcessIdentity(),
		g.checkLoadPath(),
		g.checkCallerIdentity(),
		g.checkOpenPrologue(),
	}

	tampered := false
	for _, c := range checks {
		if !c.Passed {
			tampered = true
		}
	}
	return Result{Tampered: tampered, Checks: checks}
}

// checkProcessIdentity 校验 /proc/self/cmdline 与期望进程名一致
func (g *Gate) checkProcessIdentity() CheckResult {
	result := CheckResult{Name: "process_identity"}

	cmdline, err := g.fs.Cmdline()
	if err != nil {
		result.Detail = fmt.Sprintf("读取 cmdline 失败: %v", err)
		return result
	}

	fields := strings.Fields(cmdline)
	if len(fields) == 0 {
		result.Detail = "cmdline 为空"
		return result
	}

	actual := filepath.Base(fields[0])
	if actual != g.cfg.ProcessName {
		result.Detail = fmt.Sprintf("进程名不匹配: 期望 %s 实际 %s", g.cfg.ProcessName, actual)
		return result
	}

	result.Passed = true
	result.Detail = actual
	return result
}

// checkLoadPath 校验可执行文件加载路径
func (g *Gate) checkLoadPath() CheckResult {
	result := CheckResult{Name: "load_path"}

	exe, err := os.Executable()
	if err != nil {
		result.Detail = fmt.Sprintf("读取可执行文件路径失败: %v", err)
		return result
	}
	if strings.Contains(exe, "(deleted)") {
		result.Detail = "可执行文件已被删除替换"
		return result
	}

	resolved, err := filepath.EvalSymlinks(exe)
	if err != nil {
		result.Detail = fmt.Sprintf("解析符号链接失败: %v", err)
		return result
	}

	if len(g.cfg.PathPrefixes) > 0 {
		matched := false
		for _, prefix := range g.cfg.PathPrefixes {
			if strings.HasPrefix(resolved, prefix) {
				matched = true
				break
			}
		}
		if !matched {
			result.Detail = fmt.Sprintf("加载路径不在许可范围: %s", resolved)
			return result
		}
	}

	result.Passed = true
	result.Detail = resolved
	return result
}

// checkCallerIdentity 校验调用栈中存在本模块的帧
func (g *Gate) checkCallerIdentity() CheckResult {
	result := CheckResult{Name: "caller_identity"}

	pcs := make([]uintptr, callerFrameLimit)
	n := runtime.Callers(2, pcs)
	if n == 0 {
		result.Detail = "无法捕获调用栈"
		return result
	}

	frames := runtime.CallersFrames(pcs[:n])
	depth := 0
	for {
		frame, more := frames.Next()
		depth++
		if strings.HasPrefix(frame.Function, g.cfg.ModulePrefix) {
			result.Passed = true
			result.Detail = fmt.Sprintf("第 %d 帧: %s", depth, frame.Function)
			return result
		}
		if depth >= callerFrameLimit || !more {
			break
		}
	}

	result.Detail = fmt.Sprintf("%d 帧内未出现本模块调用帧", depth)
	return result
}

// checkOpenPrologue 检查 libc open 函数序言是否被改写
func (g *Gate) checkOpenPrologue() CheckResult {
	result := CheckResult{Name: "open_prologue"}

	buf, err := readSymbolPrologue(g.fs, "open")
	if err != nil {
		result.Detail = fmt.Sprintf("读取 open 序言失败: %v", err)
		return result
	}

	hooked, detail := AnalyzePrologue(runtime.GOARCH, buf)
	if hooked {
		result.Detail = detail
		return result
	}
	if detail != "" {
		result.Detail = detail
		return result
	}

	result.Passed = true
	result.Detail = "序言指令正常"
	return result
}
