package journal

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/runtime-guard/runtime-guard-go/internal/domain"
)

func quietLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetLevel(logrus.ErrorLevel)
	return logger
}

func sampleReport(id string, abnormal bool) *domain.Report {
	var items []domain.Signal
	if abnormal {
		items = append(items, domain.NewSignal(domain.CategoryRoot, "su 可执行", true, map[string]string{
			"su_path": "/system/xbin/su",
		}))
	}
	return domain.NewReport(id, domain.ProfileFull, items, time.Now(), 25*time.Millisecond)
}

// TestWriter_AppendAndReplay 测试写入与回放
func TestWriter_AppendAndReplay(t *testing.T) {
	dir := t.TempDir()
	w, err := NewWriter(dir, quietLogger())
	require.NoError(t, err)
	defer w.Close()

	require.NoError(t, w.Append(sampleReport("scan-1", false)))
	require.NoError(t, w.Append(sampleReport("scan-2", true)))
	require.NoError(t, w.Append(sampleReport("scan-3", false)))

	var ids []string
	var abnormal int
	err = Replay(w.Path(), func(report *domain.Report) error {
		ids = append(ids, report.ID)
		if !report.IsClean {
			abnormal++
		}
		return nil
	})

	require.NoError(t, err)
	assert.Equal(t, []string{"scan-1", "scan-2", "scan-3"}, ids, "Replay preserves append order")
	assert.Equal(t, 1, abnormal)
}

// TestWriter_EvidenceSurvivesRoundTrip 测试证据链完整落盘
func TestWriter_EvidenceSurvivesRoundTrip(t *testing.T) {
	dir := t.TempDir()
	w, err := NewWriter(dir, quietLogger())
	require.NoError(t, err)
	defer w.Close()

	require.NoError(t, w.Append(sampleReport("scan-1", true)))

	var restored *domain.Report
	require.NoError(t, Replay(w.Path(), func(report *domain.Report) error {
		restored = report
		return nil
	}))

	require.NotNil(t, restored)
	require.Len(t, restored.Items, 1)
	assert.Equal(t, domain.CategoryRoot, restored.Items[0].Category)
	assert.Equal(t, "/system/xbin/su", restored.Items[0].Evidence["su_path"])
}

// TestWriter_AppendAcrossReopen 测试重开后继续追加
func TestWriter_AppendAcrossReopen(t *testing.T) {
	dir := t.TempDir()

	w, err := NewWriter(dir, quietLogger())
	require.NoError(t, err)
	require.NoError(t, w.Append(sampleReport("scan-1", false)))
	require.NoError(t, w.Close())

	w, err = NewWriter(dir, quietLogger())
	require.NoError(t, err)
	require.NoError(t, w.Append(sampleReport("scan-2", false)))
	require.NoError(t, w.Close())

	count, err := Count(w.Path())
	require.NoError(t, err)
	assert.Equal(t, 2, count, "Reopening must append, not truncate")
}

// TestCount 测试报告计数
func TestCount(t *testing.T) {
	dir := t.TempDir()
	w, err := NewWriter(dir, quietLogger())
	require.NoError(t, err)
	defer w.Close()

	count, err := Count(w.Path())
	require.NoError(t, err)
	assert.Equal(t, 0, count)

	require.NoError(t, w.Append(sampleReport("scan-1", false)))
	require.NoError(t, w.Append(sampleReport("scan-2", false)))

	count, err = Count(w.Path())
	require.NoError(t, err)
	assert.Equal(t, 2, count)
}

// TestReplay_CallbackError 测试回调错误中止回放
func TestReplay_CallbackError(t *testing.T) {
	dir := t.TempDir()
	w, err := NewWriter(dir, quietLogger())
	require.NoError(t, err)
	defer w.Close()

	require.NoError(t, w.Append(sampleReport("scan-1", false)))
	require.NoError(t, w.Append(sampleReport("scan-2", false)))

	wantErr := errors.New("stop here")
	visited := 0
	err = Replay(w.Path(), func(report *domain.Report) error {
		visited++
		return wantErr
	})

	assert.ErrorIs(t, err, wantErr)
	assert.Equal(t, 1, visited)
}

// TestReplay_CorruptedLine 测试损坏行报错并带行号
func TestReplay_CorruptedLine(t *testing.T) {
	dir := t.TempDir()
	w, err := NewWriter(dir, quietLogger())
	require.NoError(t, err)
	require.NoError(t, w.Append(sampleReport("scan-1", false)))
	require.NoError(t, w.Close())

	path := filepath.Join(dir, FileName)
	f, err := os.OpenFile(path, os.O_APPEND|os.O_WRONLY, 0o644)
	require.NoError(t, err)
	_, err = f.WriteString("{broken json\n")
	require.NoError(t, err)
	require.NoError(t, f.Close())

	err = Replay(path, func(report *domain.Report) error { return nil })

	require.Error(t, err)
	assert.Contains(t, err.Error(), "第 2 行")
}

// TestReplay_MissingFile 测试日志缺失时报错
func TestReplay_MissingFile(t *testing.T) {
	err := Replay(filepath.Join(t.TempDir(), "missing.jsonl"), func(report *domain.Report) error {
		return nil
	})

	assert.Error(t, err)
}
