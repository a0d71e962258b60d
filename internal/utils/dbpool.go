package utils

import (
	"time"

	"gorm.io/gorm"
)

// 连接池按守护进程的轻量负载收紧，避免与宿主争抢数据库连接。
const (
	maxIdleConns    = 5
	maxOpenConns    = 20
	connMaxLifetime = time.Hour
	connMaxIdleTime = 10 * time.Minute
)

// OptimizeDBPool 收紧数据库连接池
func OptimizeDBPool(db *gorm.DB) error {
	sqlDB, err := db.DB()
	if err != nil {
		return err
	}

	sqlDB.SetMaxIdleConns(maxIdleConns)
	sqlDB.SetMaxOpenConns(maxOpenConns)
	sqlDB.SetConnMaxLifetime(connMaxLifetime)
	sqlDB.SetConnMaxIdleTime(connMaxIdleTime)
	return nil
}

// DBStats 连接池统计，供指标上报
func DBStats(db *gorm.DB) (open, idle, inUse int, err error) {
	sqlDB, err := db.DB()
	if err != nil {
		return 0, 0, 0, err
	}

	stats := sqlDB.Stats()
	return stats.OpenConnections, stats.Idle, stats.InUse, nil
}
