package repository

import (
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
	"gorm.io/driver/mysql"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/runtime-guard/runtime-guard-go/internal/config"
	"github.com/runtime-guard/runtime-guard-go/internal/domain"
	"github.com/runtime-guard/runtime-guard-go/internal/utils"
)

// sqlitePath 未配置 MySQL 时的本地库文件
const sqlitePath = "./data/scans.db"

// InitDB 初始化数据库连接并完成迁移
// SQL 日志关闭，时间统一存 UTC。
func InitDB(cfg *config.DatabaseConfig, log *logrus.Logger) (*gorm.DB, error) {
	dialector, driver := buildDialector(cfg)

	db, err := gorm.Open(dialector, &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
		NowFunc: func() time.Time {
			return time.Now().UTC()
		},
		PrepareStmt: true,
	})
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", driver, err)
	}

	if err := utils.OptimizeDBPool(db); err != nil {
		return nil, err
	}

	if err := autoMigrate(db); err != nil {
		return nil, err
	}

	log.WithField("driver", driver).Info("Database initialized")
	return db, nil
}

func buildDialector(cfg *config.DatabaseConfig) (gorm.Dialector, string) {
	if cfg.Type == "mysql" {
		dsn := fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?charset=utf8mb4&parseTime=True&loc=Local",
			cfg.User, cfg.Password, cfg.Host, cfg.Port, cfg.DBName)
		return mysql.Open(dsn), "mysql"
	}
	return sqlite.Open(sqlitePath), "sqlite"
}

// autoMigrate 同步扫描记录表结构
func autoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(&domain.ScanRecord{})
}
