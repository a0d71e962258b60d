package detector

import (
	"context"
	"strings"

	"github.com/runtime-guard/runtime-guard-go/internal/domain"
)

// Detector 运行时检测器统一接口
// Detect 返回本次检测产生的全部信号，环境正常时返回空切片。
// 返回 error 表示检测器整体失败，由调度器折算为一条 ERROR 信号。
type Detector interface {
	Name() string
	Detect(ctx context.Context) ([]domain.Signal, error)
}

// containsAny 判断字符串包含任意一个标记，返回命中的标记
func containsAny(s string, marks []string) (string, bool) {
	for _, mark := range marks {
		if strings.Contains(s, mark) {
			return mark, true
		}
	}
	return "", false
}

// containsAnyFold 不区分大小写的 containsAny
func containsAnyFold(s string, marks []string) (string, bool) {
	lower := strings.ToLower(s)
	for _, mark := range marks {
		if strings.Contains(lower, strings.ToLower(mark)) {
			return mark, true
		}
	}
	return "", false
}
