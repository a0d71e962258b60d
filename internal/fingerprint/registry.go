package fingerprint

import (
	"path/filepath"
	"sort"
	"strings"

	"github.com/sirupsen/logrus"
)

// Registry 注入框架特征库
// 持有全部框架规则，为各检测向量提供匹配能力。
type Registry struct {
	rules  []FrameworkRule
	logger *logrus.Logger
}

// NewRegistry 创建特征库（内置规则，按优先级降序）
func NewRegistry(logger *logrus.Logger) *Registry {
	rules := GetBuiltinRules()
	sort.Slice(rules, func(i, j int) bool {
		return rules[i].Priority > rules[j].Priority
	})
	return &Registry{
		rules:  rules,
		logger: logger,
	}
}

// Rules 返回全部规则
func (r *Registry) Rules() []FrameworkRule {
	return r.rules
}

// MatchLibraries 在内存映射行中匹配特征库
// 每条映射行对每个框架最多产生一次命中。
func (r *Registry) MatchLibraries(mapsLines []string) []LibraryMatch {
	var matches []LibraryMatch
	seen := make(map[string]bool)

	for _, line := range mapsLines {
		lower := strings.ToLower(line)
		for _, rule := range r.rules {
			for _, mark := range rule.LibraryMarks {
				if !strings.Contains(lower, mark) {
					continue
				}
				library := extractLibraryName(line)
				key := rule.Name + "|" + library
				if seen[key] {
					break
				}
				seen[key] = true
				matches = append(matches, LibraryMatch{
					Framework: rule.Name,
					Category:  rule.Category,
					Library:   library,
					Line:      line,
				})
				break
			}
		}
	}
	return matches
}

// MatchPorts 在 /proc/net/tcp[6] 行中匹配已知注入服务端口
// 端口字段为十六进制大写，按 ":<HEX>" 子串匹配。
func (r *Registry) MatchPorts(netLines []string) []PortMatch {
	var matches []PortMatch
	seen := make(map[string]bool)

	for _, line := range netLines {
		upper := strings.ToUpper(line)
		for _, rule := range r.rules {
			for _, port := range rule.HexPorts {
				if !strings.Contains(upper, ":"+port) {
					continue
				}
				key := rule.Name + "|" + port
				if seen[key] {
					continue
				}
				seen[key] = true
				matches = append(matches, PortMatch{
					Framework: rule.Name,
					Category:  rule.Category,
					HexPort:   port,
					Line:      strings.TrimSpace(line),
				})
			}
		}
	}
	return matches
}

// MatchThreads 在线程名列表中匹配特征线程
func (r *Registry) MatchThreads(comms []string) []ThreadMatch {
	var matches []ThreadMatch
	seen := make(map[string]bool)

	for _, comm := range comms {
		for _, rule := range r.rules {
			for _, name := range rule.ThreadNames {
				if comm != name {
					continue
				}
				key := rule.Name + "|" + name
				if seen[key] {
					continue
				}
				seen[key] = true
				matches = append(matches, ThreadMatch{
					Framework: rule.Name,
					Category:  rule.Category,
					Thread:    comm,
				})
			}
		}
	}
	return matches
}

// MatchArtifacts 检查各框架特征文件是否存在
// exists 由调用方注入，便于测试替换。
func (r *Registry) MatchArtifacts(exists func(string) bool) []ArtifactMatch {
	var matches []ArtifactMatch
	for _, rule := range r.rules {
		for _, path := range rule.ArtifactPaths {
			if !exists(path) {
				continue
			}
			matches = append(matches, ArtifactMatch{
				Framework: rule.Name,
				Category:  rule.Category,
				Path:      path,
			})
		}
	}
	return matches
}

// MatchStackFrame 判断调用栈帧是否属于已知框架命名空间
func (r *Registry) MatchStackFrame(frame string) (FrameworkRule, bool) {
	for _, rule := range r.rules {
		for _, mark := range rule.StackMarks {
			if strings.Contains(frame, mark) {
				return rule, true
			}
		}
	}
	return FrameworkRule{}, false
}

// MatchLoaderName 判断类加载器类型名是否属于已知框架
func (r *Registry) MatchLoaderName(name string) (FrameworkRule, bool) {
	for _, rule := range r.rules {
		for _, loader := range rule.LoaderNames {
			if name == loader || strings.HasPrefix(name, loader) {
				return rule, true
			}
		}
		for _, mark := range rule.StackMarks {
			if strings.Contains(name, mark) {
				return rule, true
			}
		}
	}
	return FrameworkRule{}, false
}

// MatchEnv 在环境变量或属性值中匹配框架指纹，返回命中的指纹
func (r *Registry) MatchEnv(value string) (FrameworkRule, string, bool) {
	lower := strings.ToLower(value)
	for _, rule := range r.rules {
		for _, mark := range rule.EnvMarks {
			if strings.Contains(lower, strings.ToLower(mark)) {
				return rule, mark, true
			}
		}
	}
	return FrameworkRule{}, "", false
}

// MatchLibraryMark 在库名或路径中匹配框架库指纹
func (r *Registry) MatchLibraryMark(library string) (FrameworkRule, string, bool) {
	lower := strings.ToLower(library)
	for _, rule := range r.rules {
		for _, mark := range rule.LibraryMarks {
			if strings.Contains(lower, strings.ToLower(mark)) {
				return rule, mark, true
			}
		}
	}
	return FrameworkRule{}, "", false
}

// extractLibraryName 从内存映射行提取库文件名
// 映射行最后一列是路径，可能缺失（匿名映射）。
func extractLibraryName(line string) string {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return ""
	}
	last := fields[len(fields)-1]
	if !strings.HasPrefix(last, "/") && !strings.HasPrefix(last, "[") {
		return last
	}
	return filepath.Base(last)
}
