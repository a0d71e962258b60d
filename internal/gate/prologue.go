package gate

import (
	"debug/elf"
	"encoding/binary"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/runtime-guard/runtime-guard-go/internal/procfs"
)

const prologueBytes = 16

// readSymbolPrologue 读取 libc 中指定导出函数的前若干字节
// 通过 /proc/self/maps 定位 libc 基址，再从动态符号表解析
// 符号偏移，最后经 /proc/self/mem 读出运行时内存中的指令。
func readSymbolPrologue(fs *procfs.FS, symbol string) ([]byte, error) {
	libPath, base, err := locateLibc(fs)
	if err != nil {
		return nil, err
	}

	offset, err := resolveSymbolOffset(libPath, symbol)
	if err != nil {
		return nil, err
	}

	mem, err := os.Open(filepath.Join(fs.Root(), "self", "mem"))
	if err != nil {
		return nil, fmt.Errorf("打开进程内存失败: %w", err)
	}
	defer mem.Close()

	buf := make([]byte, prologueBytes)
	if _, err := mem.ReadAt(buf, int64(base+offset)); err != nil {
		return nil, fmt.Errorf("读取 %s 指令失败: %w", symbol, err)
	}
	return buf, nil
}

// locateLibc 在内存映射中查找 libc 的加载基址
func locateLibc(fs *procfs.FS) (string, uint64, error) {
	lines, err := fs.SelfMaps()
	if err != nil {
		return "", 0, fmt.Errorf("读取内存映射失败: %w", err)
	}

	var libPath string
	var base uint64
	found := false
	for _, line := range lines {
		fields := strings.Fields(line)
		if len(fields) < 6 {
			continue
		}
		name := filepath.Base(fields[5])
		if !strings.HasPrefix(name, "libc.so") && !strings.HasPrefix(name, "libc-") {
			continue
		}

		start, err := strconv.ParseUint(strings.SplitN(fields[0], "-", 2)[0], 16, 64)
		if err != nil {
			continue
		}
		if !found || start < base {
			libPath = fields[5]
			base = start
			found = true
		}
	}

	if !found {
		return "", 0, fmt.Errorf("内存映射中未找到 libc")
	}
	return libPath, base, nil
}

// resolveSymbolOffset 从动态符号表解析导出符号的文件内偏移
func resolveSymbolOffset(libPath, symbol string) (uint64, error) {
	f, err := elf.Open(libPath)
	if err != nil {
		return 0, fmt.Errorf("解析 %s 失败: %w", libPath, err)
	}
	defer f.Close()

	symbols, err := f.DynamicSymbols()
	if err != nil {
		return 0, fmt.Errorf("读取动态符号表失败: %w", err)
	}

	for _, sym := range symbols {
		if sym.Name == symbol && sym.Value != 0 {
			return sym.Value, nil
		}
	}
	return 0, fmt.Errorf("符号 %s 不存在", symbol)
}

// AnalyzePrologue 判断函数序言是否被改写为跳板
// 返回值 hooked 表示发现跳板指令，detail 在发现跳板或
// 无法分析时给出说明，二者皆空表示序言正常。
func AnalyzePrologue(arch string, buf []byte) (bool, string) {
	switch arch {
	case "arm64":
		return analyzeARM64(buf)
	case "amd64":
		return analyzeAMD64(buf)
	default:
		return false, fmt.Sprintf("不支持的指令集: %s", arch)
	}
}

// analyzeARM64 识别 arm64 序言中的无条件跳转
// B 指令高 6 位为 000101，LDR literal 装载跳板地址时
// 高 8 位为 01011000。
func analyzeARM64(buf []byte) (bool, string) {
	if len(buf) < 4 {
		return false, "指令字节不足"
	}

	instr := binary.LittleEndian.Uint32(buf)
	if instr&0xFC000000 == 0x14000000 {
		return true, fmt.Sprintf("序言被改写为 B 跳转: 0x%08X", instr)
	}
	if instr&0xFF000000 == 0x58000000 {
		return true, fmt.Sprintf("序言被改写为 LDR 跳板: 0x%08X", instr)
	}
	return false, ""
}

// analyzeAMD64 识别 amd64 序言中的跳板指令
func analyzeAMD64(buf []byte) (bool, string) {
	if len(buf) < 6 {
		return false, "指令字节不足"
	}

	if buf[0] == 0xE9 {
		return true, "序言被改写为 jmp rel32"
	}
	if buf[0] == 0xFF && buf[1] == 0x25 {
		return true, "序言被改写为 jmp [rip+disp32]"
	}
	if buf[0] == 0x68 && buf[5] == 0xC3 {
		return true, "序言被改写为 push/ret 跳板"
	}
	return false, ""
}
