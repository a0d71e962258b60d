package fingerprint

import (
	"github.com/runtime-guard/runtime-guard-go/internal/domain"
)

// FrameworkRule 注入框架特征规则
type FrameworkRule struct {
	Name          string                // 框架名称
	Category      domain.SignalCategory // 命中后映射的信号类别
	LibraryMarks  []string              // 内存映射中的特征库名子串
	ClassNames    []string              // 特征类名（能解析到即命中）
	LoaderNames   []string              // 特征类加载器类型名
	StackMarks    []string              // 调用栈帧命名空间前缀
	EnvMarks      []string              // CLASSPATH / native bridge 指纹
	HexPorts      []string              // 监听端口（十六进制大写）
	ThreadNames   []string              // 特征线程名
	ArtifactPaths []string              // 磁盘特征文件
	InitResources []string              // 打包的初始化资源路径
	Priority      int                   // 优先级 (越大越优先匹配)
}

// LibraryMatch 内存映射命中
type LibraryMatch struct {
	Framework string                `json:"framework"`
	Category  domain.SignalCategory `json:"category"`
	Library   string                `json:"library"` // 命中的库文件名
	Line      string                `json:"line"`    // 命中的原始映射行
}

// PortMatch 监听端口命中
type PortMatch struct {
	Framework string                `json:"framework"`
	Category  domain.SignalCategory `json:"category"`
	HexPort   string                `json:"hex_port"`
	Line      string                `json:"line"`
}

// ThreadMatch 线程名命中
type ThreadMatch struct {
	Framework string                `json:"framework"`
	Category  domain.SignalCategory `json:"category"`
	Thread    string                `json:"thread"`
}

// ArtifactMatch 磁盘特征文件命中
type ArtifactMatch struct {
	Framework string                `json:"framework"`
	Category  domain.SignalCategory `json:"category"`
	Path      string                `json:"path"`
}
