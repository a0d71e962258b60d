package api

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/runtime-guard/runtime-guard-go/internal/api/handlers"
	"github.com/runtime-guard/runtime-guard-go/internal/config"
	"github.com/runtime-guard/runtime-guard-go/internal/engine"
	"github.com/runtime-guard/runtime-guard-go/internal/middleware"
	"github.com/runtime-guard/runtime-guard-go/internal/service"
)

// SetupRouter 组装 HTTP 路由
// 诊断端点（pprof、内存采样、GC）开在根路径，
// 业务接口统一挂在 /api 下，配置了 token 时全部过认证。
func SetupRouter(cfg *config.Config, logger *logrus.Logger, scanService service.ScanService, eng *engine.Engine, memMonitor *middleware.MemoryMonitor, promMetrics *middleware.PrometheusMetrics, eventsHandler *handlers.ScanEventsHandler) *gin.Engine {
	if cfg.Server.Mode == "release" {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(LoggerMiddleware(logger))
	r.Use(CORSMiddleware())
	if promMetrics != nil {
		r.Use(promMetrics.HTTPMiddleware())
	}

	scanHandler := handlers.NewScanHandler(scanService, eng, logger)

	// 扫描事件实时推送
	r.GET("/ws/scans", eventsHandler.HandleWebSocket)

	// 诊断端点，pprof 只在非 release 模式开放
	if cfg.Server.Mode != "release" {
		middleware.RegisterPprof(r)
		logger.Info("pprof endpoints registered at /debug/pprof/*")
	}
	r.GET("/metrics", memMonitor.MetricsEndpoint())
	r.POST("/debug/gc", middleware.ForceGC())
	if promMetrics != nil {
		r.GET("/metrics/prometheus", promMetrics.Handler())
	}

	v1 := r.Group("/api")
	{
		// 健康检查（无需认证）
		v1.GET("/health", func(c *gin.Context) {
			c.JSON(200, gin.H{
				"status":  "ok",
				"version": "1.0.0",
			})
		})
	}

	// 需要认证的接口（未配置 token 时中间件直接放行）
	authed := v1.Group("", middleware.AuthMiddleware(cfg.Server.APIToken))
	{
		authed.GET("/stats", scanHandler.GetSystemStats)
		authed.GET("/detectors", scanHandler.ListDetectors)

		authed.POST("/scans", scanHandler.TriggerScan)
		authed.GET("/scans", scanHandler.ListScans)
		authed.DELETE("/scans", scanHandler.PurgeScans)
		authed.GET("/scans/latest", scanHandler.GetLatestReport) // 静态路由必须在 :id 之前
		authed.GET("/scans/:id", scanHandler.GetScan)
		authed.GET("/scans/:id/report", scanHandler.GetScanReport)
	}

	return r
}

// LoggerMiddleware 请求日志中间件
func LoggerMiddleware(logger *logrus.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		c.Next()

		logger.WithFields(logrus.Fields{
			"status":  c.Writer.Status(),
			"method":  c.Request.Method,
			"path":    c.Request.URL.Path,
			"latency": time.Since(start).Milliseconds(),
		}).Info("HTTP Request")
	}
}

// CORSMiddleware CORS 中间件
func CORSMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(204)
			return
		}

		c.Next()
	}
}
