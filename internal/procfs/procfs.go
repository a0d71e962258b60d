package procfs

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// FS procfs 读取器
// 所有检测器统一通过它访问 /proc 伪文件系统，
// root 可替换为测试夹具目录。
type FS struct {
	root string
}

// New 创建指向系统 /proc 的读取器
func New() *FS {
	return &FS{root: "/proc"}
}

// NewWithRoot 创建指向指定目录的读取器，测试用
func NewWithRoot(root string) *FS {
	return &FS{root: root}
}

// Root 返回当前根目录
func (fs *FS) Root() string {
	return fs.root
}

func (fs *FS) path(elem ...string) string {
	return filepath.Join(append([]string{fs.root}, elem...)...)
}

// readLines 按行读取伪文件
// /proc 文件可能很大（如 maps），使用 1MB 行缓冲。
func (fs *FS) readLines(name string) ([]string, error) {
	file, err := os.Open(name)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	scanner := bufio.NewScanner(file)
	buf := make([]byte, 0, 64*1024)
	scanner.Buffer(buf, 1024*1024)

	var lines []string
	for scanner.Scan() {
		lines = append(lines, scanner.Text())
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return lines, nil
}

// TracerPID 从 /proc/self/status 解析 TracerPid
// 返回 0 表示未被跟踪。
func (fs *FS) TracerPID() (int, error) {
	lines, err := fs.readLines(fs.path("self", "status"))
	if err != nil {
		return 0, fmt.Errorf("读取进程状态失败: %w", err)
	}
	for _, line := range lines {
		if !strings.HasPrefix(line, "TracerPid:") {
			continue
		}
		value := strings.TrimSpace(strings.TrimPrefix(line, "TracerPid:"))
		pid, err := strconv.Atoi(value)
		if err != nil {
			return 0, fmt.Errorf("解析 TracerPid 失败: %w", err)
		}
		return pid, nil
	}
	return 0, fmt.Errorf("进程状态中缺少 TracerPid 字段")
}

// SelfMaps 读取 /proc/self/maps 全部行
func (fs *FS) SelfMaps() ([]string, error) {
	return fs.readLines(fs.path("self", "maps"))
}

// Mounts 读取 /proc/mounts 全部行
func (fs *FS) Mounts() ([]string, error) {
	return fs.readLines(fs.path("mounts"))
}

// MountInfo 读取 /proc/self/mountinfo 全部行
func (fs *FS) MountInfo() ([]string, error) {
	return fs.readLines(fs.path("self", "mountinfo"))
}

// BindMountCount 统计挂载命名空间内的 bind 挂载数量
// mountinfo 第 4 列是挂载源在其文件系统内的根路径，
// 非 "/" 即为子树挂载（bind mount）。
func (fs *FS) BindMountCount() (int, error) {
	lines, err := fs.MountInfo()
	if err != nil {
		return 0, fmt.Errorf("读取 mountinfo 失败: %w", err)
	}
	count := 0
	for _, line := range lines {
		fields := strings.Fields(line)
		if len(fields) < 5 {
			continue
		}
		if fields[3] != "/" {
			count++
		}
	}
	return count, nil
}

// Cmdline 读取 /proc/self/cmdline 并还原为空格分隔的命令行
// 原始内容以 NUL 分隔。
func (fs *FS) Cmdline() (string, error) {
	data, err := os.ReadFile(fs.path("self", "cmdline"))
	if err != nil {
		return "", err
	}
	cleaned := strings.ReplaceAll(string(data), "\x00", " ")
	return strings.TrimSpace(cleaned), nil
}

// CPUInfo 读取 /proc/cpuinfo 全文
func (fs *FS) CPUInfo() (string, error) {
	data, err := os.ReadFile(fs.path("cpuinfo"))
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// NetTCPLines 读取 /proc/net/tcp 与 /proc/net/tcp6 全部行
// 任一文件缺失不视为错误（内核可能未启用 IPv6）。
func (fs *FS) NetTCPLines() ([]string, error) {
	var lines []string
	var firstErr error
	for _, name := range []string{"tcp", "tcp6"} {
		fileLines, err := fs.readLines(fs.path("net", name))
		if err != nil {
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		lines = append(lines, fileLines...)
	}
	if lines == nil && firstErr != nil {
		return nil, firstErr
	}
	return lines, nil
}

// TaskComms 读取 /proc/self/task/<tid>/comm 得到全部线程名
func (fs *FS) TaskComms() ([]string, error) {
	taskDir := fs.path("self", "task")
	entries, err := os.ReadDir(taskDir)
	if err != nil {
		return nil, err
	}

	var comms []string
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		data, err := os.ReadFile(filepath.Join(taskDir, entry.Name(), "comm"))
		if err != nil {
			continue
		}
		comms = append(comms, strings.TrimSpace(string(data)))
	}
	return comms, nil
}

// FDCount 统计 /proc/self/fd 下已打开的文件描述符数量
func (fs *FS) FDCount() (int, error) {
	entries, err := os.ReadDir(fs.path("self", "fd"))
	if err != nil {
		return 0, err
	}
	return len(entries), nil
}

// ProcessCmdlines 遍历 /proc/<pid>/cmdline 列出全部进程命令行
// 单个进程读取失败直接跳过（进程可能已退出）。
func (fs *FS) ProcessCmdlines() ([]string, error) {
	entries, err := os.ReadDir(fs.root)
	if err != nil {
		return nil, err
	}

	var cmdlines []string
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		if _, err := strconv.Atoi(entry.Name()); err != nil {
			continue
		}
		data, err := os.ReadFile(filepath.Join(fs.root, entry.Name(), "cmdline"))
		if err != nil || len(data) == 0 {
			continue
		}
		cleaned := strings.TrimSpace(strings.ReplaceAll(string(data), "\x00", " "))
		if cleaned != "" {
			cmdlines = append(cmdlines, cleaned)
		}
	}
	return cmdlines, nil
}
