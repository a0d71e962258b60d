package gate

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/runtime-guard/runtime-guard-go/internal/procfs"
)

// TestAnalyzePrologue_ARM64 测试 arm64 序言指令识别
func TestAnalyzePrologue_ARM64(t *testing.T) {
	tests := []struct {
		name       string
		buf        []byte
		wantHooked bool
		wantDetail string
	}{
		{
			name:       "B 立即跳转",
			buf:        []byte{0x03, 0x00, 0x00, 0x14, 0x00, 0x00, 0x00, 0x00},
			wantHooked: true,
			wantDetail: "B 跳转",
		},
		{
			name:       "B 负偏移跳转",
			buf:        []byte{0xFF, 0xFF, 0xFF, 0x17},
			wantHooked: true,
			wantDetail: "B 跳转",
		},
		{
			name:       "LDR literal 跳板",
			buf:        []byte{0x50, 0x00, 0x00, 0x58, 0x00, 0x02, 0x1F, 0xD6},
			wantHooked: true,
			wantDetail: "LDR 跳板",
		},
		{
			name: "正常的 stp 序言",
			// stp x29, x30, [sp, #-48]!
			buf:        []byte{0xFD, 0x7B, 0xBD, 0xA9, 0xFD, 0x03, 0x00, 0x91},
			wantHooked: false,
		},
		{
			name:       "指令字节不足",
			buf:        []byte{0x14, 0x00},
			wantHooked: false,
			wantDetail: "指令字节不足",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			hooked, detail := AnalyzePrologue("arm64", tt.buf)
			assert.Equal(t, tt.wantHooked, hooked)
			if tt.wantDetail != "" {
				assert.Contains(t, detail, tt.wantDetail)
			} else {
				assert.Empty(t, detail)
			}
		})
	}
}

// TestAnalyzePrologue_AMD64 测试 amd64 序言指令识别
func TestAnalyzePrologue_AMD64(t *testing.T) {
	tests := []struct {
		name       string
		buf        []byte
		wantHooked bool
		wantDetail string
	}{
		{
			name:       "jmp rel32 跳板",
			buf:        []byte{0xE9, 0x00, 0x10, 0x00, 0x00, 0x90},
			wantHooked: true,
			wantDetail: "jmp rel32",
		},
		{
			name:       "jmp 间接跳板",
			buf:        []byte{0xFF, 0x25, 0x00, 0x00, 0x00, 0x00},
			wantHooked: true,
			wantDetail: "jmp [rip+disp32]",
		},
		{
			name:       "push/ret 跳板",
			buf:        []byte{0x68, 0xAA, 0xBB, 0xCC, 0xDD, 0xC3},
			wantHooked: true,
			wantDetail: "push/ret",
		},
		{
			name: "正常的函数序言",
			// push rbp; mov rbp, rsp
			buf:        []byte{0x55, 0x48, 0x89, 0xE5, 0x41, 0x57},
			wantHooked: false,
		},
		{
			name: "push 立即数但无 ret 不算跳板",
			buf:  []byte{0x68, 0xAA, 0xBB, 0xCC, 0xDD, 0x90},
		},
		{
			name:       "指令字节不足",
			buf:        []byte{0xE9, 0x00, 0x10},
			wantHooked: false,
			wantDetail: "指令字节不足",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			hooked, detail := AnalyzePrologue("amd64", tt.buf)
			assert.Equal(t, tt.wantHooked, hooked)
			if tt.wantDetail != "" {
				assert.Contains(t, detail, tt.wantDetail)
			} else {
				assert.Empty(t, detail)
			}
		})
	}
}

// TestAnalyzePrologue_UnsupportedArch 测试不支持的指令集
func TestAnalyzePrologue_UnsupportedArch(t *testing.T) {
	hooked, detail := AnalyzePrologue("riscv64", []byte{0x00, 0x00, 0x00, 0x00, 0x00, 0x00})

	assert.False(t, hooked)
	assert.Contains(t, detail, "不支持的指令集")
}

// newMapsRoot 构造只含 self/maps 的 procfs 夹具
func newMapsRoot(t *testing.T, lines ...string) *procfs.FS {
	t.Helper()
	root := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(root, "self"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(root, "self", "maps"), []byte(strings.Join(lines, "\n")), 0o644))
	return procfs.NewWithRoot(root)
}

// TestLocateLibc 测试内存映射中的 libc 定位
func TestLocateLibc(t *testing.T) {
	fs := newMapsRoot(t,
		"5500000000-5500001000 r-xp 00000000 08:01 100 /system/bin/app",
		"7f0000400000-7f0000500000 r-xp 00000000 08:01 300 /apex/com.android.runtime/lib64/bionic/libc.so",
		"7f0000200000-7f0000300000 r--p 00000000 08:01 300 /apex/com.android.runtime/lib64/bionic/libc.so",
		"7f0000600000-7f0000700000 r-xp 00000000 08:01 400 /system/lib64/libcutils.so",
	)

	path, base, err := locateLibc(fs)

	require.NoError(t, err)
	assert.Equal(t, "/apex/com.android.runtime/lib64/bionic/libc.so", path)
	assert.Equal(t, uint64(0x7f0000200000), base, "The lowest mapped segment is the load base")
}

// TestLocateLibc_GlibcNaming 测试 libc-2.x 命名风格
func TestLocateLibc_GlibcNaming(t *testing.T) {
	fs := newMapsRoot(t,
		"7f0000100000-7f0000200000 r-xp 00000000 08:01 300 /usr/lib/libc-2.31.so",
	)

	path, _, err := locateLibc(fs)

	require.NoError(t, err)
	assert.Equal(t, "/usr/lib/libc-2.31.so", path)
}

// TestLocateLibc_NotFound 测试映射中无 libc 时报错
func TestLocateLibc_NotFound(t *testing.T) {
	fs := newMapsRoot(t,
		"7f0000100000-7f0000200000 r-xp 00000000 08:01 300 /system/lib64/libcrypto.so",
	)

	_, _, err := locateLibc(fs)

	assert.Error(t, err)
}
