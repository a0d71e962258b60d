package test

import (
	"strings"
	"testing"
	"time"
)

// ============================================
// String Operations Benchmarks
// ============================================

// BenchmarkString_PathBaseName 测试路径基名提取性能
func BenchmarkString_PathBaseName(b *testing.B) {
	fullPaths := []string{
		"/system/bin/su",
		"/system/xbin/daemonsu",
		"/data/adb/magisk/busybox",
		"/data/local/tmp/frida-server",
		"/apex/com.android.runtime/lib64/libart.so",
	}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		for _, path := range fullPaths {
			// Find last slash
			lastSlash := strings.LastIndex(path, "/")
			if lastSlash >= 0 {
				_ = path[lastSlash+1:]
			}
		}
	}
}

// BenchmarkString_PathPrefixMatching 测试路径前缀匹配性能
func BenchmarkString_PathPrefixMatching(b *testing.B) {
	paths := make([]string, 50)
	for i := 0; i < 50; i++ {
		if i%3 == 0 {
			paths[i] = "/data/adb/modules/module" + string(rune('A'+i%26))
		} else {
			paths[i] = "/system/lib64/lib" + string(rune('a'+i%26)) + ".so"
		}
	}

	prefix := "/data/adb"

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		count := 0
		for _, path := range paths {
			if strings.HasPrefix(path, prefix) {
				count++
			}
		}
		_ = count
	}
}

// BenchmarkString_MarkContainsCheck 测试特征子串检查性能
func BenchmarkString_MarkContainsCheck(b *testing.B) {
	mapsLine := "7f8a2c000000-7f8a2c021000 r-xp 00000000 fd:00 1234 /system/lib64/libbinder.so"
	hookMarks := []string{"frida", "xposed", "substrate", "zygisk"}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		found := false
		for _, mark := range hookMarks {
			if strings.Contains(mapsLine, mark) {
				found = true
				break
			}
		}
		_ = found
	}
}

// BenchmarkString_MountLineSplit 测试挂载行分割性能
func BenchmarkString_MountLineSplit(b *testing.B) {
	mountLine := "/dev/block/dm-0 /system ext4 ro,seclabel,relatime 0 0"

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		parts := strings.Fields(mountLine)
		_ = len(parts)
	}
}

// ============================================
// Time Operations Benchmarks
// ============================================

// BenchmarkTime_Now 测试获取当前时间性能
func BenchmarkTime_Now(b *testing.B) {
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_ = time.Now()
	}
}

// BenchmarkTime_UnixTimestamp 测试 Unix 时间戳转换性能
func BenchmarkTime_UnixTimestamp(b *testing.B) {
	now := time.Now()

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_ = now.Unix()
	}
}

// ============================================
// Memory Allocation Benchmarks
// ============================================

// BenchmarkMemory_StringSliceAllocation 测试字符串切片分配性能
func BenchmarkMemory_StringSliceAllocation(b *testing.B) {
	b.ReportAllocs()

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		paths := make([]string, 0, 100)
		for j := 0; j < 100; j++ {
			paths = append(paths, "/system/lib64/lib"+string(rune('a'+j%26))+".so")
		}
	}
}

// BenchmarkMemory_MapAllocation 测试 Map 分配性能
func BenchmarkMemory_MapAllocation(b *testing.B) {
	b.ReportAllocs()

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		evidence := make(map[string]string, 50)
		for j := 0; j < 50; j++ {
			key := "path" + string(rune('A'+j%26))
			evidence[key] = "/data/local/tmp/artifact"
		}
	}
}

// BenchmarkMemory_StructAllocation 测试结构体分配性能
func BenchmarkMemory_StructAllocation(b *testing.B) {
	b.ReportAllocs()

	type ScanInfo struct {
		ID          string
		Profile     string
		Status      string
		SignalCount int
		CreatedAt   time.Time
		StartedAt   *time.Time
	}

	now := time.Now()

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_ = &ScanInfo{
			ID:          "scan-001",
			Profile:     "quick",
			Status:      "running",
			SignalCount: 12,
			CreatedAt:   now,
			StartedAt:   &now,
		}
	}
}

// ============================================
// Algorithm Performance Benchmarks
// ============================================

// BenchmarkAlgorithm_LinearSearch 测试线性搜索性能
func BenchmarkAlgorithm_LinearSearch(b *testing.B) {
	items := make([]string, 100)
	for i := 0; i < 100; i++ {
		items[i] = "item" + string(rune('A'+i%26))
	}
	target := "itemZ"

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		found := false
		for _, item := range items {
			if item == target {
				found = true
				break
			}
		}
		_ = found
	}
}

// BenchmarkAlgorithm_MapLookup 测试 Map 查找性能
func BenchmarkAlgorithm_MapLookup(b *testing.B) {
	items := make(map[string]bool, 100)
	for i := 0; i < 100; i++ {
		items["item"+string(rune('A'+i%26))] = true
	}
	target := "itemZ"

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_, found := items[target]
		_ = found
	}
}

// BenchmarkAlgorithm_FilterLoop 测试过滤循环性能
func BenchmarkAlgorithm_FilterLoop(b *testing.B) {
	paths := make([]string, 100)
	for i := 0; i < 100; i++ {
		if i%3 == 0 {
			paths[i] = "/system/lib64/lib" + string(rune('a'+i%26)) + ".so"
		} else {
			paths[i] = "/data/app/com.example/lib" + string(rune('a'+i%26)) + ".so"
		}
	}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		filtered := make([]string, 0, 100)
		for _, path := range paths {
			if !strings.HasPrefix(path, "/system/") {
				filtered = append(filtered, path)
			}
		}
		_ = len(filtered)
	}
}

// ============================================
// Concurrent Operations Benchmarks
// ============================================

// BenchmarkConcurrent_PathOperations 测试并发路径操作性能
func BenchmarkConcurrent_PathOperations(b *testing.B) {
	paths := make([]string, 50)
	for i := 0; i < 50; i++ {
		paths[i] = "/system/lib64/lib" + string(rune('a'+i%26)) + ".so"
	}

	b.RunParallel(func(pb *testing.PB) {
		for pb.Next() {
			for _, path := range paths {
				lastSlash := strings.LastIndex(path, "/")
				if lastSlash >= 0 {
					_ = path[lastSlash+1:]
				}
			}
		}
	})
}

// BenchmarkConcurrent_MapAccess 测试并发 Map 访问性能
func BenchmarkConcurrent_MapAccess(b *testing.B) {
	cache := make(map[string]bool, 100)
	for i := 0; i < 100; i++ {
		cache["key"+string(rune('A'+i%26))] = true
	}

	b.RunParallel(func(pb *testing.PB) {
		for pb.Next() {
			_, exists := cache["keyA"]
			_ = exists
		}
	})
}
