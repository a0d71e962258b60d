package detector

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/runtime-guard/runtime-guard-go/internal/domain"
	"github.com/runtime-guard/runtime-guard-go/internal/fingerprint"
	"github.com/runtime-guard/runtime-guard-go/internal/introspect"
	"github.com/runtime-guard/runtime-guard-go/internal/procfs"
	"github.com/runtime-guard/runtime-guard-go/internal/sysprop"
)

const (
	// stackFrameLimit 调用栈检查的帧数上限
	stackFrameLimit = 20
	// loaderChainLimit 类加载器链的枚举深度上限
	loaderChainLimit = 10
)

// methodSentinel 方法来源校验的哨兵方法
type methodSentinel struct {
	Class  string
	Method string
	Native bool
}

// methodIdentitySentinels 常被注入框架替换实现的代表性方法
var methodIdentitySentinels = []methodSentinel{
	{Class: "android.app.Activity", Method: "onCreate", Native: false},
	{Class: "android.telephony.TelephonyManager", Method: "getDeviceId", Native: false},
	{Class: "java.lang.ProcessBuilder", Method: "start", Native: false},
}

// HookDetector 注入框架检测器
// 覆盖调用栈、类加载器链、内存映射、框架类探测、
// 特征端口、线程名、特征文件、环境变量与方法来源。
// 不包含任何基于耗时的判定。
type HookDetector struct {
	registry *fingerprint.Registry
	provider introspect.Provider
	props    *sysprop.Client
	fs       *procfs.FS
	logger   *logrus.Logger
}

// NewHookDetector 创建注入框架检测器
func NewHookDetector(registry *fingerprint.Registry, provider introspect.Provider, props *sysprop.Client, fs *procfs.FS, logger *logrus.Logger) *HookDetector {
	return &HookDetector{
		registry: registry,
		provider: provider,
		props:    props,
		fs:       fs,
		logger:   logger,
	}
}

// Name 检测器名称
func (d *HookDetector) Name() string {
	return "hook"
}

// Detect 执行注入框架检测
func (d *HookDetector) Detect(ctx context.Context) ([]domain.Signal, error) {
	signals := []domain.Signal{}
	signals = append(signals, d.checkLoadedLibraries()...)
	signals = append(signals, d.checkListeningPorts()...)
	signals = append(signals, d.checkThreadNames()...)
	signals = append(signals, d.checkArtifacts()...)
	signals = append(signals, d.checkCallStack()...)
	signals = append(signals, d.checkLoaderChain()...)
	signals = append(signals, d.checkFrameworkClasses()...)
	signals = append(signals, d.checkEnvironment(ctx)...)
	signals = append(signals, d.checkMethodIdentity()...)
	signals = append(signals, d.checkUncaughtHandler()...)

	if len(signals) > 0 {
		d.logger.WithField("count", len(signals)).Info("⚠️ Hook 检测发现异常信号")
	}
	return signals, nil
}

// checkLoadedLibraries 扫描内存映射中的注入框架库
func (d *HookDetector) checkLoadedLibraries() []domain.Signal {
	lines, err := d.fs.SelfMaps()
	if err != nil {
		return nil
	}

	var signals []domain.Signal
	for _, match := range d.registry.MatchLibraries(lines) {
		signals = append(signals, domain.NewSignal(match.Category,
			fmt.Sprintf("进程加载了 %s 框架库", match.Framework), true, map[string]string{
				"framework": match.Framework,
				"library":   match.Library,
			}))
	}
	return signals
}

// checkListeningPorts 扫描注入框架的特征监听端口
func (d *HookDetector) checkListeningPorts() []domain.Signal {
	lines, err := d.fs.NetTCPLines()
	if err != nil {
		return nil
	}

	var signals []domain.Signal
	for _, match := range d.registry.MatchPorts(lines) {
		signals = append(signals, domain.NewSignal(match.Category,
			fmt.Sprintf("发现 %s 特征监听端口", match.Framework), true, map[string]string{
				"framework": match.Framework,
				"hex_port":  match.HexPort,
			}))
	}
	return signals
}

// checkThreadNames 扫描注入框架的特征线程名
func (d *HookDetector) checkThreadNames() []domain.Signal {
	comms, err := d.fs.TaskComms()
	if err != nil {
		return nil
	}

	var signals []domain.Signal
	for _, match := range d.registry.MatchThreads(comms) {
		signals = append(signals, domain.NewSignal(match.Category,
			fmt.Sprintf("发现 %s 特征线程", match.Framework), true, map[string]string{
				"framework": match.Framework,
				"thread":    match.Thread,
			}))
	}
	return signals
}

// checkArtifacts 检查注入框架的特征文件
func (d *HookDetector) checkArtifacts() []domain.Signal {
	exists := func(path string) bool {
		_, err := os.Stat(path)
		return err == nil
	}

	var signals []domain.Signal
	for _, match := range d.registry.MatchArtifacts(exists) {
		signals = append(signals, domain.NewSignal(match.Category,
			fmt.Sprintf("发现 %s 特征文件", match.Framework), true, map[string]string{
				"framework": match.Framework,
				"path":      match.Path,
			}))
	}
	return signals
}

// checkCallStack 检查调用栈中的注入框架帧
func (d *HookDetector) checkCallStack() []domain.Signal {
	frames := d.provider.CallStack(stackFrameLimit)
	if len(frames) == 0 {
		return nil
	}

	var signals []domain.Signal
	seen := make(map[string]bool)
	for i, frame := range frames {
		rule, matched := d.registry.MatchStackFrame(frame.Class + " " + frame.Function)
		if !matched || seen[rule.Name] {
			continue
		}
		seen[rule.Name] = true
		signals = append(signals, domain.NewSignal(rule.Category,
			fmt.Sprintf("调用栈中出现 %s 框架帧", rule.Name), true, map[string]string{
				"framework": rule.Name,
				"frame":     frame.Function,
				"depth":     fmt.Sprintf("%d", i+1),
			}))
	}
	return signals
}

// checkLoaderChain 检查类加载器链
// 枚举深度超过上限本身即为异常，链上出现已知框架
// 加载器名则归因到具体框架。
func (d *HookDetector) checkLoaderChain() []domain.Signal {
	chain := d.provider.LoaderChain(loaderChainLimit + 1)
	if len(chain) == 0 {
		return nil
	}

	var signals []domain.Signal
	if len(chain) > loaderChainLimit {
		signals = append(signals, domain.NewSignal(domain.CategoryIntegrity, "类加载器链深度异常", true, map[string]string{
			"chain_depth": fmt.Sprintf("%d", len(chain)),
			"limit":       fmt.Sprintf("%d", loaderChainLimit),
		}))
		chain = chain[:loaderChainLimit]
	}

	seen := make(map[string]bool)
	for i, name := range chain {
		rule, matched := d.registry.MatchLoaderName(name)
		if !matched || seen[rule.Name] {
			continue
		}
		seen[rule.Name] = true
		signals = append(signals, domain.NewSignal(rule.Category,
			fmt.Sprintf("类加载器链中出现 %s 加载器", rule.Name), true, map[string]string{
				"framework": rule.Name,
				"loader":    name,
				"depth":     fmt.Sprintf("%d", i+1),
			}))
	}
	return signals
}

// checkFrameworkClasses 探测注入框架的标志类
func (d *HookDetector) checkFrameworkClasses() []domain.Signal {
	var signals []domain.Signal
	for _, rule := range d.registry.Rules() {
		var resolved []string
		for _, className := range rule.ClassNames {
			present, ok := d.provider.HasClass(className)
			if !ok {
				return signals
			}
			if present {
				resolved = append(resolved, className)
			}
		}
		if len(resolved) > 0 {
			signals = append(signals, domain.NewSignal(rule.Category,
				fmt.Sprintf("%s 框架类可被解析", rule.Name), true, map[string]string{
					"framework": rule.Name,
					"classes":   strings.Join(resolved, ","),
				}))
		}
	}
	return signals
}

// checkEnvironment 检查环境变量与 native bridge 注入痕迹
func (d *HookDetector) checkEnvironment(ctx context.Context) []domain.Signal {
	var signals []domain.Signal

	if classpath, ok := d.provider.Env("CLASSPATH"); ok && classpath != "" {
		if rule, mark, matched := d.registry.MatchEnv(classpath); matched {
			signals = append(signals, domain.NewSignal(rule.Category,
				fmt.Sprintf("CLASSPATH 中包含 %s 组件", rule.Name), true, map[string]string{
					"framework": rule.Name,
					"mark":      mark,
					"classpath": classpath,
				}))
		}
	}

	if preload, ok := d.provider.Env("LD_PRELOAD"); ok && preload != "" {
		evidence := map[string]string{"ld_preload": preload}
		if rule, mark, matched := d.registry.MatchLibraryMark(preload); matched {
			evidence["framework"] = rule.Name
			evidence["mark"] = mark
			signals = append(signals, domain.NewSignal(rule.Category,
				fmt.Sprintf("LD_PRELOAD 注入了 %s 组件", rule.Name), true, evidence))
		} else {
			signals = append(signals, domain.NewSignal(domain.CategoryIntegrity, "进程被 LD_PRELOAD 预加载", true, evidence))
		}
	}

	bridge := d.props.Get(ctx, "ro.dalvik.vm.native.bridge")
	if bridge != "" && bridge != "0" {
		signals = append(signals, domain.NewSignal(domain.CategoryIntegrity, "检测到 native bridge 注入", true, map[string]string{
			"native_bridge": bridge,
		}))
	}
	return signals
}

// checkMethodIdentity 校验哨兵方法的实现来源
func (d *HookDetector) checkMethodIdentity() []domain.Signal {
	var signals []domain.Signal
	for _, sentinel := range methodIdentitySentinels {
		origin, ok := d.provider.MethodOrigin(sentinel.Class, sentinel.Method)
		if !ok {
			return signals
		}

		target := fmt.Sprintf("%s.%s", sentinel.Class, sentinel.Method)
		if origin.Library != "" {
			if rule, mark, matched := d.registry.MatchLibraryMark(origin.Library); matched {
				signals = append(signals, domain.NewSignal(rule.Category,
					fmt.Sprintf("方法 %s 的实现位于 %s 库中", target, rule.Name), true, map[string]string{
						"framework": rule.Name,
						"method":    target,
						"library":   origin.Library,
						"mark":      mark,
					}))
				continue
			}
		}
		if origin.IsNative != sentinel.Native {
			signals = append(signals, domain.NewSignal(domain.CategoryIntegrity,
				fmt.Sprintf("方法 %s 的 native 标志被改写", target), true, map[string]string{
					"method":    target,
					"is_native": fmt.Sprintf("%t", origin.IsNative),
				}))
		}
	}
	return signals
}

// checkUncaughtHandler 校验全局未捕获异常处理器的身份
func (d *HookDetector) checkUncaughtHandler() []domain.Signal {
	identity, ok := d.provider.UncaughtHandler()
	if !ok {
		return nil
	}

	rule, matched := d.registry.MatchStackFrame(identity.Class)
	if !matched {
		return nil
	}
	return []domain.Signal{domain.NewSignal(rule.Category,
		fmt.Sprintf("未捕获异常处理器被 %s 替换", rule.Name), true, map[string]string{
			"framework": rule.Name,
			"handler":   identity.Class,
		})}
}
