package introspect

import (
	"os"
	"path/filepath"
	"runtime"
	"strings"
)

// RuntimeProvider 基于 Go 运行时的自省实现
// 只覆盖调用栈和环境变量两种能力，类加载与方法解析
// 属于宿主托管运行时的范畴，在这里统一降级。
type RuntimeProvider struct{}

// NewRuntimeProvider 创建运行时自省实现
func NewRuntimeProvider() *RuntimeProvider {
	return &RuntimeProvider{}
}

// CallStack 捕获当前调用栈
func (p *RuntimeProvider) CallStack(limit int) []Frame {
	if limit <= 0 {
		return nil
	}

	pcs := make([]uintptr, limit)
	n := runtime.Callers(2, pcs)
	if n == 0 {
		return nil
	}

	frames := runtime.CallersFrames(pcs[:n])
	var result []Frame
	for {
		frame, more := frames.Next()
		result = append(result, Frame{
			Class:    framePackage(frame.Function),
			Method:   frameMethod(frame.Function),
			Source:   filepath.Base(frame.File),
			Function: frame.Function,
		})
		if len(result) >= limit || !more {
			break
		}
	}
	return result
}

// LoaderChain Go 运行时没有类加载器链
func (p *RuntimeProvider) LoaderChain(limit int) []string {
	return nil
}

// HasClass 类探测在 Go 运行时不可用
func (p *RuntimeProvider) HasClass(name string) (bool, bool) {
	return false, false
}

// MethodOrigin 方法来源解析在 Go 运行时不可用
func (p *RuntimeProvider) MethodOrigin(class, method string) (MethodOrigin, bool) {
	return MethodOrigin{}, false
}

// UncaughtHandler 未捕获异常处理器解析在 Go 运行时不可用
func (p *RuntimeProvider) UncaughtHandler() (HandlerIdentity, bool) {
	return HandlerIdentity{}, false
}

// Env 读取环境变量
func (p *RuntimeProvider) Env(key string) (string, bool) {
	return os.LookupEnv(key)
}

// framePackage 取完整函数名中的包路径部分
func framePackage(function string) string {
	idx := strings.LastIndex(function, ".")
	if idx < 0 {
		return function
	}
	return function[:idx]
}

// frameMethod 取完整函数名中的方法名部分
func frameMethod(function string) string {
	idx := strings.LastIndex(function, ".")
	if idx < 0 {
		return function
	}
	return function[idx+1:]
}
