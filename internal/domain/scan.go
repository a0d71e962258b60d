package domain

import (
	"encoding/json"
	"fmt"
	"time"
)

// ScanProfile 检测档位
type ScanProfile string

const (
	ProfileFull  ScanProfile = "full"  // 全量检测：托管层 + 原生层全部检测器
	ProfileQuick ScanProfile = "quick" // 快速检测：仅 Root + Hook，面向低延迟调用方
)

// IsValid 校验档位取值
func (p ScanProfile) IsValid() bool {
	return p == ProfileFull || p == ProfileQuick
}

// ScanStatus 扫描任务状态
type ScanStatus string

const (
	ScanStatusQueued    ScanStatus = "queued"
	ScanStatusRunning   ScanStatus = "running"
	ScanStatusCompleted ScanStatus = "completed"
	ScanStatusFailed    ScanStatus = "failed"
)

// ScanRecord 检测报告持久化记录
type ScanRecord struct {
	ID             string      `gorm:"primaryKey;type:varchar(36)" json:"id"`
	Profile        ScanProfile `gorm:"type:varchar(10);not null;default:'full'" json:"profile"`
	Status         ScanStatus  `gorm:"type:varchar(20);not null;default:'queued';index:idx_scan_status" json:"status"`
	IsClean        bool        `gorm:"default:true;index:idx_scan_clean" json:"is_clean"`
	SignalCount    int         `gorm:"default:0" json:"signal_count"`
	AbnormalCount  int         `gorm:"default:0" json:"abnormal_count"`
	ErrorCount     int         `gorm:"default:0" json:"error_count"`
	Source         string      `gorm:"type:varchar(30);default:'api'" json:"source"` // api / queue / watcher / cli
	ErrorMessage   string      `gorm:"type:text" json:"error_message,omitempty"`
	ItemsJSON      string      `gorm:"type:mediumtext" json:"items_json,omitempty"`
	DurationMillis int64       `gorm:"default:0" json:"duration_millis"`
	StartedAt      *time.Time  `json:"started_at,omitempty"`
	CompletedAt    *time.Time  `json:"completed_at,omitempty"`
	CreatedAt      time.Time   `gorm:"not null;index:idx_scan_created" json:"created_at"`
	UpdatedAt      time.Time   `json:"updated_at"`
}

func (ScanRecord) TableName() string {
	return "scan_reports"
}

// RecordFromReport 将检测报告转换为持久化记录
func RecordFromReport(report *Report, source string) (*ScanRecord, error) {
	itemsJSON, err := json.Marshal(report.Items)
	if err != nil {
		return nil, fmt.Errorf("序列化信号列表失败: %w", err)
	}

	startedAt := report.Timestamp
	completedAt := report.Timestamp.Add(time.Duration(report.DurationMillis) * time.Millisecond)

	return &ScanRecord{
		ID:             report.ID,
		Profile:        report.Profile,
		Status:         ScanStatusCompleted,
		IsClean:        report.IsClean,
		SignalCount:    len(report.Items),
		AbnormalCount:  report.AbnormalCount(),
		ErrorCount:     report.ErrorCount(),
		Source:         source,
		ItemsJSON:      string(itemsJSON),
		DurationMillis: report.DurationMillis,
		StartedAt:      &startedAt,
		CompletedAt:    &completedAt,
	}, nil
}

// ToReport 从持久化记录还原检测报告
func (r *ScanRecord) ToReport() (*Report, error) {
	var items []Signal
	if r.ItemsJSON != "" {
		if err := json.Unmarshal([]byte(r.ItemsJSON), &items); err != nil {
			return nil, fmt.Errorf("反序列化信号列表失败: %w", err)
		}
	}

	timestamp := r.CreatedAt
	if r.StartedAt != nil {
		timestamp = *r.StartedAt
	}

	return &Report{
		ID:             r.ID,
		Profile:        r.Profile,
		IsClean:        r.IsClean,
		Items:          items,
		Timestamp:      timestamp,
		DurationMillis: r.DurationMillis,
	}, nil
}
