package introspect

// Frame 调用栈中的一帧
type Frame struct {
	Class    string `json:"class"`
	Method   string `json:"method"`
	Source   string `json:"source"`
	Function string `json:"function"`
}

// MethodOrigin 方法当前实现的来源描述
type MethodOrigin struct {
	Class    string `json:"class"`
	Method   string `json:"method"`
	Library  string `json:"library"`
	IsNative bool   `json:"is_native"`
}

// HandlerIdentity 全局未捕获异常处理器的身份
type HandlerIdentity struct {
	Class   string `json:"class"`
	Package string `json:"package"`
}

// Provider 宿主运行时自省接口
// 宿主应用接入时提供实现。任何方法在宿主不具备对应能力时
// 返回零值加 false（或空切片），调用方据此跳过该项检查。
type Provider interface {
	// CallStack 捕获当前调用栈，最多 limit 帧
	CallStack(limit int) []Frame

	// LoaderChain 枚举类加载器链的名称，最多 limit 层
	LoaderChain(limit int) []string

	// HasClass 探测指定类能否被宿主解析
	HasClass(name string) (bool, bool)

	// MethodOrigin 解析指定方法当前实现的来源
	MethodOrigin(class, method string) (MethodOrigin, bool)

	// UncaughtHandler 读取全局未捕获异常处理器身份
	UncaughtHandler() (HandlerIdentity, bool)

	// Env 读取运行时环境变量
	Env(key string) (string, bool)
}
