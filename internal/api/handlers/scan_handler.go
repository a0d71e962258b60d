package handlers

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/runtime-guard/runtime-guard-go/internal/domain"
	"github.com/runtime-guard/runtime-guard-go/internal/engine"
	"github.com/runtime-guard/runtime-guard-go/internal/service"
)

// ScanHandler 扫描处理器
type ScanHandler struct {
	scanService service.ScanService
	engine      *engine.Engine
	logger      *logrus.Logger
}

// NewScanHandler 创建扫描处理器实例
func NewScanHandler(scanService service.ScanService, eng *engine.Engine, logger *logrus.Logger) *ScanHandler {
	return &ScanHandler{
		scanService: scanService,
		engine:      eng,
		logger:      logger,
	}
}

// triggerScanRequest 触发扫描请求体
type triggerScanRequest struct {
	Profile string `json:"profile"`
}

// TriggerScan 触发一次检测扫描
// POST /api/scans
// 请求体可选，profile 取值 full / quick，默认 full
func (h *ScanHandler) TriggerScan(c *gin.Context) {
	var req triggerScanRequest
	if err := c.ShouldBindJSON(&req); err != nil && err.Error() != "EOF" {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "请求格式错误",
		})
		return
	}

	profile := domain.ScanProfile(req.Profile)
	if req.Profile == "" {
		profile = domain.ProfileFull
	}
	if !profile.IsValid() {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "无效的检测档位，仅支持 full / quick",
		})
		return
	}

	record, err := h.scanService.TriggerScan(c.Request.Context(), profile, "api")
	if err != nil {
		h.logger.WithError(err).Error("Failed to trigger scan")
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "触发扫描失败",
		})
		return
	}

	c.JSON(http.StatusAccepted, gin.H{
		"scan_id": record.ID,
		"profile": record.Profile,
		"status":  record.Status,
	})
}

// ListScans 获取扫描记录列表
// GET /api/scans?page=1&page_size=20&profile=full&abnormal=true
// 支持分页参数，默认每页20条
// 支持档位过滤：profile=full / quick
// 支持异常过滤：abnormal=true 仅返回发现异常的扫描
func (h *ScanHandler) ListScans(c *gin.Context) {
	pageStr := c.DefaultQuery("page", "1")
	pageSizeStr := c.DefaultQuery("page_size", "20")
	profileFilter := c.Query("profile")
	abnormalStr := c.Query("abnormal")

	page, err := strconv.Atoi(pageStr)
	if err != nil || page <= 0 {
		page = 1
	}

	pageSize, err := strconv.Atoi(pageSizeStr)
	if err != nil || pageSize <= 0 {
		pageSize = 20
	}

	// 限制最大每页数量，防止过大的查询
	if pageSize > 100 {
		pageSize = 100
	}

	onlyAbnormal := abnormalStr == "true" || abnormalStr == "1"

	records, total, err := h.scanService.ListScans(c.Request.Context(), page, pageSize, profileFilter, onlyAbnormal)
	if err != nil {
		h.logger.WithError(err).Error("Failed to list scans")
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "获取扫描列表失败",
		})
		return
	}

	scanList := make([]map[string]interface{}, len(records))
	for i, record := range records {
		scanList[i] = h.recordToResponse(record)
	}

	totalPages := (total + int64(pageSize) - 1) / int64(pageSize)

	c.JSON(http.StatusOK, gin.H{
		"scans":       scanList,
		"total":       total,
		"page":        page,
		"page_size":   pageSize,
		"total_pages": totalPages,
	})
}

// GetScan 获取单条扫描记录（不含信号明细）
// GET /api/scans/:id
func (h *ScanHandler) GetScan(c *gin.Context) {
	scanID := c.Param("id")

	record, err := h.scanService.GetScan(c.Request.Context(), scanID)
	if err != nil {
		h.logger.WithError(err).WithField("scan_id", scanID).Error("Failed to get scan")
		c.JSON(http.StatusNotFound, gin.H{
			"error": "扫描记录不存在",
		})
		return
	}

	c.JSON(http.StatusOK, h.recordToResponse(record))
}

// GetScanReport 获取完整检测报告（含信号明细）
// GET /api/scans/:id/report
func (h *ScanHandler) GetScanReport(c *gin.Context) {
	scanID := c.Param("id")

	report, err := h.scanService.GetReport(c.Request.Context(), scanID)
	if err != nil {
		h.logger.WithError(err).WithField("scan_id", scanID).Error("Failed to get scan report")
		c.JSON(http.StatusNotFound, gin.H{
			"error": "检测报告不存在",
		})
		return
	}

	c.JSON(http.StatusOK, reportToResponse(report))
}

// GetLatestReport 获取最近一次完成的检测报告
// GET /api/scans/latest
func (h *ScanHandler) GetLatestReport(c *gin.Context) {
	report, err := h.scanService.LatestReport(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{
			"error": "暂无检测报告",
		})
		return
	}

	c.JSON(http.StatusOK, reportToResponse(report))
}

// PurgeScans 清理历史扫描记录
// DELETE /api/scans?before_days=30
func (h *ScanHandler) PurgeScans(c *gin.Context) {
	beforeDaysStr := c.DefaultQuery("before_days", "30")
	beforeDays, err := strconv.Atoi(beforeDaysStr)
	if err != nil || beforeDays <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "before_days 必须为正整数",
		})
		return
	}

	deleted, err := h.scanService.PurgeScans(c.Request.Context(), beforeDays)
	if err != nil {
		h.logger.WithError(err).Error("Failed to purge scans")
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "清理扫描记录失败",
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success":       true,
		"deleted_count": deleted,
	})
}

// ListDetectors 获取指定档位下的检测器列表
// GET /api/detectors?profile=full
func (h *ScanHandler) ListDetectors(c *gin.Context) {
	profileStr := c.DefaultQuery("profile", string(domain.ProfileFull))
	profile := domain.ScanProfile(profileStr)
	if !profile.IsValid() {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "无效的检测档位，仅支持 full / quick",
		})
		return
	}

	names := h.engine.Detectors(profile)
	c.JSON(http.StatusOK, gin.H{
		"profile":   profile,
		"detectors": names,
		"total":     len(names),
	})
}

// GetSystemStats 获取系统统计信息
// GET /api/stats
// 使用数据库聚合查询统计各状态扫描数量，避免只统计部分数据的问题
func (h *ScanHandler) GetSystemStats(c *gin.Context) {
	statusCounts, total, err := h.scanService.GetStatusCounts(c.Request.Context())
	if err != nil {
		h.logger.WithError(err).Error("Failed to get status counts")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "获取统计信息失败"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"total_scans":      total,
		"status_breakdown": statusCounts,
	})
}

// recordToResponse 将 ScanRecord 模型转换为响应格式
func (h *ScanHandler) recordToResponse(record *domain.ScanRecord) map[string]interface{} {
	response := map[string]interface{}{
		"id":             record.ID,
		"profile":        record.Profile,
		"status":         record.Status,
		"is_clean":       record.IsClean,
		"signal_count":   record.SignalCount,
		"abnormal_count": record.AbnormalCount,
		"error_count":    record.ErrorCount,
		"source":         record.Source,
		"duration_ms":    record.DurationMillis,
		"error_message":  record.ErrorMessage,
		"created_at":     record.CreatedAt,
		"started_at":     record.StartedAt,
		"completed_at":   record.CompletedAt,
	}

	// 添加 CST 时间格式
	if !record.CreatedAt.IsZero() {
		response["created_at_cst"] = record.CreatedAt.Add(8 * time.Hour).Format("2006/01/02 15:04:05")
	}
	if record.StartedAt != nil && !record.StartedAt.IsZero() {
		response["started_at_cst"] = record.StartedAt.Add(8 * time.Hour).Format("2006/01/02 15:04:05")
	}
	if record.CompletedAt != nil && !record.CompletedAt.IsZero() {
		response["completed_at_cst"] = record.CompletedAt.Add(8 * time.Hour).Format("2006/01/02 15:04:05")
	}

	return response
}

// reportToResponse 将 Report 转换为响应格式，信号按类别附带严重级别
func reportToResponse(report *domain.Report) map[string]interface{} {
	signals := make([]map[string]interface{}, len(report.Items))
	for i, item := range report.Items {
		signals[i] = map[string]interface{}{
			"category":     item.Category,
			"display_name": item.Category.GetDisplayName(),
			"severity":     item.Category.GetSeverity(),
			"description":  item.Description,
			"is_abnormal":  item.IsAbnormal,
			"evidence":     item.Evidence,
		}
	}

	var categories []string
	for _, c := range report.AbnormalCategories() {
		categories = append(categories, string(c))
	}

	return map[string]interface{}{
		"id":                  report.ID,
		"profile":             report.Profile,
		"is_clean":            report.IsClean,
		"signal_count":        len(report.Items),
		"abnormal_count":      report.AbnormalCount(),
		"error_count":         report.ErrorCount(),
		"abnormal_categories": categories,
		"signals":             signals,
		"timestamp":           report.Timestamp,
		"duration_ms":         report.DurationMillis,
	}
}
