package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"github.com/runtime-guard/runtime-guard-go/internal/api"
	"github.com/runtime-guard/runtime-guard-go/internal/api/handlers"
	"github.com/runtime-guard/runtime-guard-go/internal/config"
	"github.com/runtime-guard/runtime-guard-go/internal/detector"
	"github.com/runtime-guard/runtime-guard-go/internal/domain"
	"github.com/runtime-guard/runtime-guard-go/internal/engine"
	"github.com/runtime-guard/runtime-guard-go/internal/gate"
	"github.com/runtime-guard/runtime-guard-go/internal/journal"
	"github.com/runtime-guard/runtime-guard-go/internal/middleware"
	"github.com/runtime-guard/runtime-guard-go/internal/notify"
	"github.com/runtime-guard/runtime-guard-go/internal/queue"
	"github.com/runtime-guard/runtime-guard-go/internal/repository"
	"github.com/runtime-guard/runtime-guard-go/internal/service"
	"github.com/runtime-guard/runtime-guard-go/internal/utils"
	"github.com/runtime-guard/runtime-guard-go/internal/watcher"
	"github.com/runtime-guard/runtime-guard-go/internal/worker"
)

var (
	Version   = "1.0.0"
	BuildTime = "unknown"
	GitCommit = "unknown"
)

func main() {
	// 1. 打印版本信息
	fmt.Printf("Runtime Guard - Host Self-Defense Daemon\n")
	fmt.Printf("Version: %s\n", Version)
	fmt.Printf("Build Time: %s\n", BuildTime)
	fmt.Printf("Git Commit: %s\n\n", GitCommit)

	// 2. 加载配置
	configPath := "./configs/config.yaml"
	if len(os.Args) > 1 && os.Args[1] == "--config" && len(os.Args) > 2 {
		configPath = os.Args[2]
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	// 3. 初始化日志
	logger := config.InitLogger(&cfg.Log)
	logger.Infof("Starting Runtime Guard %s", Version)
	logger.Infof("Config loaded from: %s", configPath)

	// 4. 初始化数据库
	db, err := repository.InitDB(&cfg.Database, logger)
	if err != nil {
		logger.Fatalf("Failed to init database: %v", err)
	}
	logger.Info("Database connected successfully")

	// 清理因服务重启而中断的扫描
	// queued 记录稍后按队列可用性处理
	if err := cleanupStuckScans(db, logger); err != nil {
		logger.WithError(err).Warn("Failed to cleanup stuck scans")
	}

	// 5. 初始化 RabbitMQ（可选）
	// 队列不可用时降级为本地执行池，检测能力不受影响
	workerCount := cfg.Worker.Concurrency
	if workerCount <= 0 {
		workerCount = 1
	}

	mqConfig := &queue.RabbitMQConfig{
		Host:     cfg.RabbitMQ.Host,
		Port:     cfg.RabbitMQ.Port,
		User:     cfg.RabbitMQ.User,
		Password: cfg.RabbitMQ.Password,
		VHost:    cfg.RabbitMQ.VHost,
	}

	var (
		mq             *queue.RabbitMQ
		resultMQ       *queue.RabbitMQ
		producer       *queue.Producer
		resultProducer *queue.Producer
	)
	if cfg.RabbitMQ.Host != "" {
		mq, err = queue.NewRabbitMQWithPrefetch(mqConfig, cfg.RabbitMQ.ScanQueue, workerCount, logger)
		if err != nil {
			logger.WithError(err).Warn("⚠️ 消息队列不可用，扫描将在本地执行池中处理")
			mq = nil
		} else {
			defer mq.Close()
			producer = queue.NewProducer(mq, logger)
			logger.WithField("prefetch_count", workerCount).Info("RabbitMQ connected successfully")

			// 结果队列使用独立连接，发布阻塞不影响请求消费
			resultMQ, err = queue.NewRabbitMQ(mqConfig, cfg.RabbitMQ.ResultQueue, logger)
			if err != nil {
				logger.WithError(err).Warn("⚠️ 结果队列初始化失败，扫描结果仅落库")
			} else {
				defer resultMQ.Close()
				resultProducer = queue.NewProducer(resultMQ, logger)

				// 结果连接只发不收，重连由这里驱动
				resultMQ.StartConnectionWatcher()
				go func() {
					for range resultMQ.GetReconnectChan() {
						if err := resultMQ.Reconnect(); err != nil {
							logger.WithError(err).Error("❌ 结果队列重连失败，扫描结果仅落库")
						}
					}
				}()
			}
		}
	} else {
		logger.Info("RabbitMQ not configured, running in standalone mode")
	}

	// 6. 装配检测引擎
	eng := engine.BuildDefault(engine.BuildOptions{
		DetectorTimeout: time.Duration(cfg.Engine.DetectorTimeout) * time.Second,
		CommandTimeout:  time.Duration(cfg.Engine.CommandTimeout) * time.Second,
		ProcRoot:        cfg.Engine.ProcRoot,
		FDCheckEnable:   cfg.Engine.FDCheckEnable,
		Gate: gate.Config{
			ProcessName:  cfg.Guard.ProcessName,
			ModulePrefix: cfg.Guard.ModulePrefix,
			PathPrefixes: cfg.Guard.PathPrefixes,
		},
		Integrity: detector.IntegrityConfig{
			PackageName:       cfg.Integrity.PackageName,
			ExpectedSignature: cfg.Integrity.ExpectedSignature,
			EnforceSignature:  cfg.Integrity.EnforceSignature,
			AllowedInstallers: cfg.Integrity.AllowedInstallers,
		},
	}, logger)

	// 7. 初始化报告日志（数据库之外的第二份留存）
	var journalWriter *journal.Writer
	if cfg.ReportDir != "" {
		journalWriter, err = journal.NewWriter(cfg.ReportDir, logger)
		if err != nil {
			logger.WithError(err).Warn("⚠️ 报告日志初始化失败，仅保留数据库记录")
			journalWriter = nil
		} else {
			defer journalWriter.Close()
		}
	}

	// 8. 初始化告警推送
	notifier := notify.NewWebhookNotifier(notify.Config{
		Enabled:    cfg.Notify.Enabled,
		WebhookURL: cfg.Notify.WebhookURL,
		Timeout:    time.Duration(cfg.Notify.Timeout) * time.Second,
		MaxRetries: cfg.Notify.MaxRetries,
	}, logger)
	if cfg.Notify.Enabled {
		logger.WithField("webhook_url", cfg.Notify.WebhookURL).Info("Webhook notifier enabled")
	} else {
		logger.Info("Webhook notifier disabled")
	}

	// 9. 初始化 Services
	scanRepo := repository.NewScanRepository(db, logger)
	scanService := service.NewScanService(scanRepo, eng, producer, resultProducer, notifier, journalWriter, logger)

	// 9.1 处理重启前遗留的 queued 记录（以数据库为唯一真实数据源）
	if err := reconcileQueuedScans(db, mq, producer, logger); err != nil {
		logger.WithError(err).Warn("Failed to reconcile queued scans")
	}

	// 10. 初始化本地执行池
	workerPool := worker.NewPool(cfg.Worker.Concurrency, cfg.Worker.QueueSize, scanService, logger)
	workerPool.Start(context.Background())
	defer workerPool.Stop()
	scanService.SetPool(workerPool)
	logger.Infof("Worker pool started with %d workers", cfg.Worker.Concurrency)

	// 11. 启动扫描消费者（从 RabbitMQ 读取扫描请求）
	var consumer *queue.Consumer
	if mq != nil {
		consumer = queue.NewConsumer(mq, createScanHandler(scanService, logger), workerCount, logger)
		if err := consumer.Start(context.Background()); err != nil {
			logger.Fatalf("Failed to start consumer: %v", err)
		}
		defer consumer.Stop()
		logger.Infof("Scan consumer started with %d workers", workerCount)
	}

	// 12. 启动周期扫描调度器
	scheduler := worker.NewScheduler(
		time.Duration(cfg.Engine.ScheduleInterval)*time.Second,
		domain.ScanProfile(cfg.Engine.ScheduleProfile),
		scanService,
		logger,
	)
	scheduler.Start(context.Background())
	defer scheduler.Stop()

	// 13. 启动特征文件监视（目录变动触发快速扫描）
	var artifactWatcher *watcher.ArtifactWatcher
	if cfg.Watcher.Enabled {
		debounce := time.Duration(cfg.Watcher.DebounceSeconds) * time.Second
		artifactWatcher, err = watcher.NewArtifactWatcher(cfg.Watcher.Paths, debounce, createWatchTrigger(scanService, logger), logger)
		if err != nil {
			logger.WithError(err).Warn("⚠️ 特征文件监视初始化失败，已跳过")
			artifactWatcher = nil
		} else {
			if err := artifactWatcher.Start(context.Background()); err != nil {
				logger.WithError(err).Warn("Failed to start artifact watcher")
			} else {
				defer artifactWatcher.Stop()
				logger.WithField("paths", artifactWatcher.Paths()).Info("Artifact watcher started")
			}
		}
	}

	// 14. 初始化扫描事件 WebSocket 广播
	eventsHandler := handlers.NewScanEventsHandler(logger)
	eventsHandler.Start()
	scanService.SetBroadcaster(eventsHandler)
	logger.Info("Scan events handler started for real-time push")

	// 15. 启动内存监控
	memMonitor := middleware.NewMemoryMonitor(logger, 30*time.Second)
	memMonitor.Start()
	defer memMonitor.Stop()
	logger.Info("Memory monitor started")

	// 16. 初始化 Prometheus 指标
	promMetrics := middleware.NewPrometheusMetrics(logger, "runtime_guard")
	eng.SetMetrics(promMetrics)
	scanService.SetMetrics(promMetrics)
	notifier.SetMetrics(promMetrics)
	logger.Info("Prometheus metrics initialized")

	// 启动 Prometheus 指标更新协程
	go func() {
		ticker := time.NewTicker(10 * time.Second)
		defer ticker.Stop()

		for range ticker.C {
			// 更新内存统计
			promMetrics.UpdateMemoryStats(memMonitor.GetStats())

			// 更新数据库连接统计
			if open, idle, inUse, err := utils.DBStats(db); err == nil {
				promMetrics.UpdateDBStats(open, idle, inUse)
			}

			// 更新执行池统计
			active := 0
			if consumer != nil {
				active = consumer.GetActiveWorkers()
			}
			promMetrics.UpdateWorkerPoolStats(workerPool.Size(), active, workerPool.GetQueueSize())

			// 更新队列积压
			if producer != nil {
				if messages, err := producer.GetQueueSize(); err == nil {
					promMetrics.UpdateQueueDepth(cfg.RabbitMQ.ScanQueue, messages)
				}
			}
		}
	}()

	// 17. 设置 HTTP Server
	router := api.SetupRouter(cfg, logger, scanService, eng, memMonitor, promMetrics, eventsHandler)
	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  15 * time.Second, // 轻量 JSON 接口，无大文件传输
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	// 18. 启动 HTTP Server
	go func() {
		logger.Infof("HTTP server listening on %s", server.Addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatalf("HTTP server error: %v", err)
		}
	}()

	// 19. 等待中断信号
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down gracefully...")

	// 20. 优雅关闭 (30秒超时)
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	// 停止 HTTP Server
	if err := server.Shutdown(ctx); err != nil {
		logger.Errorf("HTTP server shutdown error: %v", err)
	}

	// 关闭数据库连接
	sqlDB, _ := db.DB()
	sqlDB.Close()

	logger.Info("Server stopped")
}

// createScanHandler 创建扫描请求处理器（从 RabbitMQ 消息执行检测）
func createScanHandler(scanService service.ScanService, logger *logrus.Logger) queue.ScanHandler {
	return func(ctx context.Context, msg *queue.ScanRequestMessage) error {
		logger.WithFields(logrus.Fields{
			"scan_id": msg.ScanID,
			"profile": msg.Profile,
			"source":  msg.Source,
		}).Info("Received scan request from RabbitMQ")

		profile := domain.ScanProfile(msg.Profile)
		if !profile.IsValid() {
			// 非法消息直接丢弃，重投不会让它变合法
			logger.WithField("profile", msg.Profile).Warn("Dropping scan request with unknown profile")
			return nil
		}

		// ExecuteScan 内部已将失败落库，这里返回错误仅用于 Nack
		if _, err := scanService.ExecuteScan(ctx, msg.ScanID, profile, msg.Source); err != nil {
			logger.WithError(err).WithField("scan_id", msg.ScanID).Error("Scan execution failed")
			return err
		}

		logger.WithField("scan_id", msg.ScanID).Info("Scan completed successfully")
		return nil
	}
}

// createWatchTrigger 创建特征目录变动的扫描触发器
// 监视命中始终走快速档，保证响应延迟可控。
func createWatchTrigger(scanService service.ScanService, logger *logrus.Logger) watcher.TriggerFunc {
	return func(ctx context.Context, path string) error {
		record, err := scanService.TriggerScan(ctx, domain.ProfileQuick, "watcher")
		if err != nil {
			return fmt.Errorf("failed to trigger scan: %w", err)
		}

		logger.WithFields(logrus.Fields{
			"scan_id":      record.ID,
			"trigger_path": path,
		}).Info("Quick scan triggered by artifact change")
		return nil
	}
}

// cleanupStuckScans 清理因服务重启而中断的扫描
// 只处理 running 状态，queued 记录由 reconcileQueuedScans 按
// 队列可用性决定去向。
func cleanupStuckScans(db *gorm.DB, logger *logrus.Logger) error {
	logger.Info("Checking for stuck scans from previous service run...")

	now := time.Now().UTC()
	result := db.Table("scan_reports").
		Where("status = ?", string(domain.ScanStatusRunning)).
		Updates(map[string]interface{}{
			"status":        string(domain.ScanStatusFailed),
			"error_message": "服务重启，扫描中断",
			"completed_at":  now,
			"updated_at":    now,
		})

	if result.Error != nil {
		return fmt.Errorf("failed to update stuck scans: %w", result.Error)
	}

	if result.RowsAffected == 0 {
		logger.Info("No stuck scans found")
		return nil
	}

	logger.WithField("count", result.RowsAffected).Warn("Marked stuck scans as failed due to service restart")
	return nil
}

// reconcileQueuedScans 处理重启前遗留的 queued 记录
// 队列可用时：清空队列残留消息，按数据库重建（先进先出）；
// 队列不可用时：本地队列不持久化，遗留记录直接判定失败。
func reconcileQueuedScans(db *gorm.DB, mq *queue.RabbitMQ, producer *queue.Producer, logger *logrus.Logger) error {
	if producer == nil {
		now := time.Now().UTC()
		result := db.Table("scan_reports").
			Where("status = ?", string(domain.ScanStatusQueued)).
			Updates(map[string]interface{}{
				"status":        string(domain.ScanStatusFailed),
				"error_message": "服务重启，本地队列未持久化",
				"completed_at":  now,
				"updated_at":    now,
			})
		if result.Error != nil {
			return fmt.Errorf("failed to fail queued scans: %w", result.Error)
		}
		if result.RowsAffected > 0 {
			logger.WithField("count", result.RowsAffected).Warn("Marked queued scans as failed (no message queue)")
		}
		return nil
	}

	logger.Info("Rebuilding scan queue from database (single source of truth)...")

	// 1. 先清空队列，确保没有残留的重复/过期消息
	purgedCount, err := mq.PurgeQueue()
	if err != nil {
		logger.WithError(err).Warn("Failed to purge queue, continuing with republish...")
	} else if purgedCount > 0 {
		logger.WithField("purged_count", purgedCount).Info("Cleared stale messages from queue")
	}

	// 2. 查找所有 queued 状态的扫描
	var queuedScans []struct {
		ID      string
		Profile string
		Source  string
	}

	err = db.Table("scan_reports").
		Select("id", "profile", "source").
		Where("status = ?", string(domain.ScanStatusQueued)).
		Order("created_at ASC").
		Find(&queuedScans).Error

	if err != nil {
		return fmt.Errorf("failed to query queued scans: %w", err)
	}

	if len(queuedScans) == 0 {
		logger.Info("No queued scans found, queue is empty and clean")
		return nil
	}

	logger.Infof("Found %d queued scans in database, republishing...", len(queuedScans))

	successCount := 0
	for _, scan := range queuedScans {
		msg := &queue.ScanRequestMessage{
			ScanID:  scan.ID,
			Profile: scan.Profile,
			Source:  scan.Source,
		}

		if err := producer.PublishRequest(context.Background(), msg); err != nil {
			logger.WithError(err).WithField("scan_id", scan.ID).Error("Failed to republish scan request")
			continue
		}
		successCount++
	}

	logger.WithFields(logrus.Fields{
		"total":   len(queuedScans),
		"success": successCount,
		"failed":  len(queuedScans) - successCount,
	}).Info("Queued scans republished to RabbitMQ")

	return nil
}
