package utils

import (
	"bufio"
	"encoding/json"
	"io"
	"os"
)

// JSONLReader 逐行读取 JSONL 文件
// 检测报告按行独立存储，单行损坏不影响其余行的回放。
type JSONLReader struct {
	file    *os.File
	scanner *bufio.Scanner
	lineNum int
}

// NewJSONLReader 打开 JSONL 文件
func NewJSONLReader(filePath string) (*JSONLReader, error) {
	file, err := os.Open(filePath)
	if err != nil {
		return nil, err
	}

	scanner := bufio.NewScanner(file)
	// 单行上限 1MB，带完整证据链的报告也远用不满
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	return &JSONLReader{
		file:    file,
		scanner: scanner,
	}, nil
}

// ReadInto 读取下一行并解析到 v，文件结尾返回 io.EOF
func (r *JSONLReader) ReadInto(v interface{}) error {
	if !r.scanner.Scan() {
		if err := r.scanner.Err(); err != nil {
			return err
		}
		return io.EOF
	}

	r.lineNum++
	return json.Unmarshal(r.scanner.Bytes(), v)
}

// LineNumber 当前行号，从 1 开始
func (r *JSONLReader) LineNumber() int {
	return r.lineNum
}

// Close 关闭读取器
func (r *JSONLReader) Close() error {
	return r.file.Close()
}

// CountJSONLLines 统计 JSONL 文件行数，不整体加载进内存
func CountJSONLLines(filePath string) (int, error) {
	file, err := os.Open(filePath)
	if err != nil {
		return 0, err
	}
	defer file.Close()

	scanner := bufio.NewScanner(file)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	count := 0

	for scanner.Scan() {
		count++
	}

	if err := scanner.Err(); err != nil {
		return 0, err
	}

	return count, nil
}

// JSONLWriter 追加写 JSONL 文件
type JSONLWriter struct {
	file   *os.File
	writer *bufio.Writer
}

// NewJSONLWriter 以追加模式打开 JSONL 文件
func NewJSONLWriter(filePath string) (*JSONLWriter, error) {
	file, err := os.OpenFile(filePath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, err
	}

	return &JSONLWriter{
		file:   file,
		writer: bufio.NewWriterSize(file, 32*1024),
	}, nil
}

// WriteLine 序列化 v 并追加一行
func (w *JSONLWriter) WriteLine(v interface{}) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}

	if _, err := w.writer.Write(data); err != nil {
		return err
	}
	return w.writer.WriteByte('\n')
}

// Sync 刷新缓冲并落盘
// 进程随时可能被篡改方杀掉，已写报告必须立即持久化。
func (w *JSONLWriter) Sync() error {
	if err := w.writer.Flush(); err != nil {
		return err
	}
	return w.file.Sync()
}

// Close 关闭写入器
func (w *JSONLWriter) Close() error {
	if err := w.writer.Flush(); err != nil {
		return err
	}
	return w.file.Close()
}
