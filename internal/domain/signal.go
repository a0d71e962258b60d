package domain

// SignalCategory 检测信号类别
type SignalCategory string

const (
	CategoryRoot             SignalCategory = "ROOT"
	CategoryHookXposed       SignalCategory = "HOOK_XPOSED"
	CategoryHookLSPosed      SignalCategory = "HOOK_LSPOSED"
	CategoryHookRiru         SignalCategory = "HOOK_RIRU"
	CategoryHookZygisk       SignalCategory = "HOOK_ZYGISK"
	CategoryHookSubstrate    SignalCategory = "HOOK_SUBSTRATE"
	CategoryHookFrida        SignalCategory = "HOOK_FRIDA"
	CategoryShizuku          SignalCategory = "SHIZUKU"
	CategoryDeveloperOptions SignalCategory = "DEVELOPER_OPTIONS"
	CategoryADBEnabled       SignalCategory = "ADB_ENABLED"
	CategoryEmulator         SignalCategory = "EMULATOR"
	CategoryVirtualMachine   SignalCategory = "VIRTUAL_MACHINE"
	CategoryPackageInstaller SignalCategory = "PACKAGE_INSTALLER"
	CategorySignature        SignalCategory = "SIGNATURE"
	CategoryDebuggable       SignalCategory = "DEBUGGABLE"
	CategoryIntegrity        SignalCategory = "INTEGRITY"
	CategoryError            SignalCategory = "ERROR"
)

// SignalSeverity 信号严重程度
type SignalSeverity string

const (
	SeverityCritical SignalSeverity = "critical" // 环境已被篡改，应拒绝服务
	SeverityWarning  SignalSeverity = "warning"  // 可疑环境，建议降级信任
	SeverityInfo     SignalSeverity = "info"     // 仅供参考，不影响信任决策
)

// GetSeverity 获取类别对应的严重程度
func (c SignalCategory) GetSeverity() SignalSeverity {
	switch c {
	case CategoryRoot, CategoryHookXposed, CategoryHookLSPosed, CategoryHookRiru,
		CategoryHookZygisk, CategoryHookSubstrate, CategoryHookFrida, CategoryIntegrity:
		return SeverityCritical
	case CategoryShizuku, CategoryEmulator, CategoryVirtualMachine,
		CategoryDebuggable, CategorySignature:
		return SeverityWarning
	case CategoryDeveloperOptions, CategoryADBEnabled, CategoryPackageInstaller:
		return SeverityInfo
	case CategoryError:
		return SeverityWarning
	default:
		return SeverityWarning
	}
}

// GetDisplayName 获取类别的中文显示名称
func (c SignalCategory) GetDisplayName() string {
	switch c {
	case CategoryRoot:
		return "Root 权限"
	case CategoryHookXposed:
		return "Xposed 框架"
	case CategoryHookLSPosed:
		return "LSPosed 框架"
	case CategoryHookRiru:
		return "Riru 模块"
	case CategoryHookZygisk:
		return "Zygisk 模块"
	case CategoryHookSubstrate:
		return "Substrate 框架"
	case CategoryHookFrida:
		return "Frida 注入"
	case CategoryShizuku:
		return "Shizuku 服务"
	case CategoryDeveloperOptions:
		return "开发者选项"
	case CategoryADBEnabled:
		return "ADB 调试"
	case CategoryEmulator:
		return "模拟器"
	case CategoryVirtualMachine:
		return "虚拟机"
	case CategoryPackageInstaller:
		return "安装来源"
	case CategorySignature:
		return "应用签名"
	case CategoryDebuggable:
		return "调试状态"
	case CategoryIntegrity:
		return "运行完整性"
	case CategoryError:
		return "检测错误"
	default:
		return "未知类别"
	}
}

// Signal 单条检测信号
// 由检测器在命中某条启发式时创建，创建后不再修改。
// IsAbnormal=false 只表示该启发式未命中，不代表环境干净。
type Signal struct {
	Category    SignalCategory    `json:"category"`
	Description string            `json:"description"`
	IsAbnormal  bool              `json:"is_abnormal"`
	Evidence    map[string]string `json:"evidence,omitempty"`
}

// NewSignal 创建一条检测信号
func NewSignal(category SignalCategory, description string, abnormal bool, evidence map[string]string) Signal {
	if evidence == nil {
		evidence = map[string]string{}
	}
	return Signal{
		Category:    category,
		Description: description,
		IsAbnormal:  abnormal,
		Evidence:    evidence,
	}
}

// NewErrorSignal 将检测器内部失败转换为 ERROR 信号
func NewErrorSignal(detectorName string, err error) Signal {
	return Signal{
		Category:    CategoryError,
		Description: "检测器执行失败: " + detectorName,
		IsAbnormal:  false,
		Evidence: map[string]string{
			"detector": detectorName,
			"error":    err.Error(),
		},
	}
}
