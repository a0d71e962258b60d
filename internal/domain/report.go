package domain

import (
	"time"
)

// Report 一次检测的聚合结果
// 由编排器在一次检测完成后构造一次，之后不再修改。
// Items 顺序 = 检测器注册顺序，同一检测器内按产出顺序。
type Report struct {
	ID             string      `json:"id"`
	Profile        ScanProfile `json:"profile"`
	IsClean        bool        `json:"is_clean"`
	Items          []Signal    `json:"items"`
	Timestamp      time.Time   `json:"timestamp"`
	DurationMillis int64       `json:"duration_millis"`
}

// NewReport 构造检测报告并推导 IsClean
// IsClean == true 当且仅当没有任何信号 IsAbnormal == true。
func NewReport(id string, profile ScanProfile, items []Signal, startedAt time.Time, elapsed time.Duration) *Report {
	clean := true
	for _, item := range items {
		if item.IsAbnormal {
			clean = false
			break
		}
	}
	if items == nil {
		items = []Signal{}
	}
	return &Report{
		ID:             id,
		Profile:        profile,
		IsClean:        clean,
		Items:          items,
		Timestamp:      startedAt,
		DurationMillis: elapsed.Milliseconds(),
	}
}

// AbnormalCount 统计异常信号数量
func (r *Report) AbnormalCount() int {
	count := 0
	for _, item := range r.Items {
		if item.IsAbnormal {
			count++
		}
	}
	return count
}

// AbnormalCategories 返回去重后的异常类别列表，保持首次出现顺序
func (r *Report) AbnormalCategories() []SignalCategory {
	seen := make(map[SignalCategory]bool)
	var categories []SignalCategory
	for _, item := range r.Items {
		if item.IsAbnormal && !seen[item.Category] {
			seen[item.Category] = true
			categories = append(categories, item.Category)
		}
	}
	return categories
}

// HasCategory 判断报告中是否包含指定类别的异常信号
func (r *Report) HasCategory(category SignalCategory) bool {
	for _, item := range r.Items {
		if item.IsAbnormal && item.Category == category {
			return true
		}
	}
	return false
}

// ErrorCount 统计检测器失败产生的 ERROR 信号数量
func (r *Report) ErrorCount() int {
	count := 0
	for _, item := range r.Items {
		if item.Category == CategoryError {
			count++
		}
	}
	return count
}
