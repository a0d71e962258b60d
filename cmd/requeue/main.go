package main

import (
	"context"
	"fmt"
	"log"

	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"github.com/runtime-guard/runtime-guard-go/internal/config"
	"github.com/runtime-guard/runtime-guard-go/internal/domain"
	"github.com/runtime-guard/runtime-guard-go/internal/queue"
	"github.com/runtime-guard/runtime-guard-go/internal/repository"
)

// 将失败的扫描记录重置为 queued 并重新投递到 RabbitMQ。
// 用于队列长时间不可用后的批量补扫。
func main() {
	logger := logrus.New()
	logger.SetLevel(logrus.InfoLevel)

	cfg, err := config.Load("./configs/config.yaml")
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	db, err := repository.InitDB(&cfg.Database, logger)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}

	mqConfig := &queue.RabbitMQConfig{
		Host:     cfg.RabbitMQ.Host,
		Port:     cfg.RabbitMQ.Port,
		User:     cfg.RabbitMQ.User,
		Password: cfg.RabbitMQ.Password,
		VHost:    cfg.RabbitMQ.VHost,
	}

	mq, err := queue.NewRabbitMQ(mqConfig, cfg.RabbitMQ.ScanQueue, logger)
	if err != nil {
		log.Fatalf("Failed to connect to RabbitMQ: %v", err)
	}
	defer mq.Close()

	producer := queue.NewProducer(mq, logger)

	// 查询所有失败的扫描
	var failedScans []domain.ScanRecord
	result := db.Where("status = ?", domain.ScanStatusFailed).Find(&failedScans)
	if result.Error != nil {
		log.Fatalf("Failed to query failed scans: %v", result.Error)
	}

	fmt.Printf("找到 %d 条失败扫描\n", len(failedScans))

	// 重置并重新入队
	successCount := 0
	for i, scan := range failedScans {
		updates := map[string]interface{}{
			"status":          domain.ScanStatusQueued,
			"error_message":   "",
			"is_clean":        true,
			"signal_count":    0,
			"abnormal_count":  0,
			"error_count":     0,
			"items_json":      "",
			"duration_millis": 0,
			"started_at":      gorm.Expr("NULL"),
			"completed_at":    gorm.Expr("NULL"),
		}

		if err := db.Model(&domain.ScanRecord{}).Where("id = ?", scan.ID).Updates(updates).Error; err != nil {
			log.Printf("❌ Failed to reset scan %s: %v", scan.ID, err)
			continue
		}

		msg := &queue.ScanRequestMessage{
			ScanID:  scan.ID,
			Profile: string(scan.Profile),
			Source:  scan.Source,
		}

		if err := producer.PublishRequest(context.Background(), msg); err != nil {
			log.Printf("❌ Failed to publish scan %s: %v", scan.ID, err)
			continue
		}

		successCount++
		if (i+1)%100 == 0 {
			fmt.Printf("进度: %d/%d\n", i+1, len(failedScans))
		}
	}

	fmt.Printf("\n✅ 成功重新入队 %d/%d 条扫描\n", successCount, len(failedScans))
}
