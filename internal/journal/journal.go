package journal

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/runtime-guard/runtime-guard-go/internal/domain"
	"github.com/runtime-guard/runtime-guard-go/internal/utils"
)

// FileName 日志文件名，按 JSONL 格式逐行追加
const FileName = "reports.jsonl"

// Writer 检测报告落盘日志
// 数据库之外的第二份留存，宿主被篡改后仍可离线取证。
type Writer struct {
	mu     sync.Mutex
	writer *utils.JSONLWriter
	path   string
	logger *logrus.Logger
}

// NewWriter 创建报告日志写入器
func NewWriter(dir string, logger *logrus.Logger) (*Writer, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("创建报告目录失败: %w", err)
	}

	path := filepath.Join(dir, FileName)
	w, err := utils.NewJSONLWriter(path)
	if err != nil {
		return nil, fmt.Errorf("打开报告日志失败: %w", err)
	}

	logger.WithField("path", path).Info("报告日志已就绪")
	return &Writer{
		writer: w,
		path:   path,
		logger: logger,
	}, nil
}

// Append 追加一份检测报告并立即刷盘
func (w *Writer) Append(report *domain.Report) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if err := w.writer.WriteLine(report); err != nil {
		return fmt.Errorf("写入报告日志失败: %w", err)
	}
	if err := w.writer.Sync(); err != nil {
		return fmt.Errorf("报告日志落盘失败: %w", err)
	}
	return nil
}

// Path 返回日志文件路径
func (w *Writer) Path() string {
	return w.path
}

// Close 关闭写入器
func (w *Writer) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.writer.Close()
}

// Count 统计日志中的报告条数
func Count(path string) (int, error) {
	return utils.CountJSONLLines(path)
}

// Replay 逐条回放日志中的报告
// 回调返回错误时中止回放。
func Replay(path string, fn func(*domain.Report) error) error {
	reader, err := utils.NewJSONLReader(path)
	if err != nil {
		return fmt.Errorf("打开报告日志失败: %w", err)
	}
	defer reader.Close()

	for {
		var report domain.Report
		err := reader.ReadInto(&report)
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return fmt.Errorf("解析第 %d 行失败: %w", reader.LineNumber(), err)
		}
		if err := fn(&report); err != nil {
			return err
		}
	}
}
