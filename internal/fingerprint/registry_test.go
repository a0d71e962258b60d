package fingerprint

import (
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/runtime-guard/runtime-guard-go/internal/domain"
)

func newTestRegistry() *Registry {
	logger := logrus.New()
	logger.SetLevel(logrus.ErrorLevel)
	return NewRegistry(logger)
}

// TestRegistry_RulesSortedByPriority 测试规则按优先级降序排列
func TestRegistry_RulesSortedByPriority(t *testing.T) {
	rules := newTestRegistry().Rules()

	require.NotEmpty(t, rules)
	for i := 1; i < len(rules); i++ {
		assert.GreaterOrEqual(t, rules[i-1].Priority, rules[i].Priority)
	}
}

// TestRegistry_MatchLibraries 测试内存映射行匹配
func TestRegistry_MatchLibraries(t *testing.T) {
	lines := []string{
		"7f0000000000-7f0000001000 r-xp 00000000 08:01 100 /system/lib64/libc.so",
		"7f0000200000-7f0000300000 r-xp 00000000 08:01 200 /data/local/tmp/frida-agent-64.so",
		"7f0000400000-7f0000500000 r--p 00000000 08:01 300 /system/framework/XposedBridge.jar",
	}

	matches := newTestRegistry().MatchLibraries(lines)

	require.Len(t, matches, 1, "XposedBridge.jar does not carry a library mark")
	assert.Equal(t, "Frida", matches[0].Framework)
	assert.Equal(t, domain.CategoryHookFrida, matches[0].Category)
	assert.Equal(t, "frida-agent-64.so", matches[0].Library)
}

// TestRegistry_MatchLibrariesDeduplicates 测试同一库的多段映射只命中一次
func TestRegistry_MatchLibrariesDeduplicates(t *testing.T) {
	lines := []string{
		"7f0000200000-7f0000300000 r-xp 00000000 08:01 200 /data/local/tmp/frida-agent-64.so",
		"7f0000300000-7f0000400000 r--p 00000000 08:01 200 /data/local/tmp/frida-agent-64.so",
		"7f0000400000-7f0000500000 rw-p 00000000 08:01 200 /data/local/tmp/frida-agent-64.so",
	}

	matches := newTestRegistry().MatchLibraries(lines)

	assert.Len(t, matches, 1)
}

// TestRegistry_MatchPorts 测试十六进制端口匹配
func TestRegistry_MatchPorts(t *testing.T) {
	lines := []string{
		"   0: 00000000:697A 00000000:0000 0A",
		"   1: 00000000:697a 00000000:0000 0A",
		"   2: 0100007F:1F90 00000000:0000 0A",
	}

	matches := newTestRegistry().MatchPorts(lines)

	require.Len(t, matches, 1, "Matching is case insensitive and deduplicated")
	assert.Equal(t, "Frida", matches[0].Framework)
	assert.Equal(t, "697A", matches[0].HexPort)
}

// TestRegistry_MatchThreads 测试特征线程名精确匹配
func TestRegistry_MatchThreads(t *testing.T) {
	matches := newTestRegistry().MatchThreads([]string{"main", "gum-js-loop", "binder:1234_1"})

	require.Len(t, matches, 1)
	assert.Equal(t, "Frida", matches[0].Framework)
	assert.Equal(t, "gum-js-loop", matches[0].Thread)
}

// TestRegistry_MatchThreadsExactOnly 测试线程名不做子串匹配
func TestRegistry_MatchThreadsExactOnly(t *testing.T) {
	matches := newTestRegistry().MatchThreads([]string{"gmain-worker", "my-gdbus"})

	assert.Empty(t, matches, "Only exact thread names count")
}

// TestRegistry_MatchArtifacts 测试特征文件探测
func TestRegistry_MatchArtifacts(t *testing.T) {
	exists := func(path string) bool {
		return path == "/data/adb/lspd" || path == "/data/local/tmp/frida-server"
	}

	matches := newTestRegistry().MatchArtifacts(exists)

	require.Len(t, matches, 2)
	frameworks := []string{matches[0].Framework, matches[1].Framework}
	assert.Contains(t, frameworks, "LSPosed")
	assert.Contains(t, frameworks, "Frida")
}

// TestRegistry_MatchStackFrame 测试调用栈帧命名空间匹配
func TestRegistry_MatchStackFrame(t *testing.T) {
	registry := newTestRegistry()

	rule, matched := registry.MatchStackFrame("de.robv.android.xposed.XposedBridge.main")
	require.True(t, matched)
	assert.Equal(t, "Xposed", rule.Name)

	_, matched = registry.MatchStackFrame("com.example.app.MainActivity.onCreate")
	assert.False(t, matched)
}

// TestRegistry_MatchLoaderName 测试类加载器类型名匹配
func TestRegistry_MatchLoaderName(t *testing.T) {
	registry := newTestRegistry()

	rule, matched := registry.MatchLoaderName("org.lsposed.lspd.core.LSPosedClassLoader")
	require.True(t, matched)
	assert.Equal(t, "LSPosed", rule.Name)

	// 命名空间兜底：未登记的加载器类型名落在已知框架包下同样命中
	rule, matched = registry.MatchLoaderName("de.robv.android.xposed.SomeNewLoader")
	require.True(t, matched)
	assert.Equal(t, "Xposed", rule.Name)

	_, matched = registry.MatchLoaderName("dalvik.system.PathClassLoader")
	assert.False(t, matched)
}

// TestRegistry_MatchEnv 测试环境变量指纹匹配
func TestRegistry_MatchEnv(t *testing.T) {
	registry := newTestRegistry()

	rule, mark, matched := registry.MatchEnv("/system/framework/XposedBridge.jar:/system/framework/framework.jar")
	require.True(t, matched)
	assert.Equal(t, "Xposed", rule.Name)
	assert.Equal(t, "XposedBridge.jar", mark)

	_, _, matched = registry.MatchEnv("/system/framework/framework.jar")
	assert.False(t, matched)
}

// TestRegistry_MatchLibraryMark 测试库名指纹匹配
func TestRegistry_MatchLibraryMark(t *testing.T) {
	registry := newTestRegistry()

	rule, mark, matched := registry.MatchLibraryMark("/data/local/tmp/libfrida-gadget.so")
	require.True(t, matched)
	assert.Equal(t, "Frida", rule.Name)
	assert.Equal(t, "frida", mark)

	_, _, matched = registry.MatchLibraryMark("/system/lib64/libc.so")
	assert.False(t, matched)
}

// TestExtractLibraryName 测试映射行库名提取
func TestExtractLibraryName(t *testing.T) {
	tests := []struct {
		name string
		line string
		want string
	}{
		{
			name: "带路径的映射行",
			line: "7f0000200000-7f0000300000 r-xp 00000000 08:01 200 /data/local/tmp/frida-agent.so",
			want: "frida-agent.so",
		},
		{
			name: "匿名映射标记",
			line: "7f0000200000-7f0000300000 rw-p 00000000 00:00 0 [anon:libfrida]",
			want: "[anon:libfrida]",
		},
		{
			name: "空行",
			line: "",
			want: "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, extractLibraryName(tt.line))
		})
	}
}
