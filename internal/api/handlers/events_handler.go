package handlers

import (
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"github.com/runtime-guard/runtime-guard-go/internal/domain"
)

// ScanEventsHandler 扫描事件 WebSocket 处理器
// 向订阅端实时推送扫描状态变化和完成的报告摘要。
type ScanEventsHandler struct {
	logger      *logrus.Logger
	upgrader    websocket.Upgrader
	clients     map[*websocket.Conn]bool
	clientMutex sync.RWMutex
	broadcast   chan ScanEventMessage
}

// ScanEventMessage 扫描事件消息
type ScanEventMessage struct {
	ScanID        string   `json:"scan_id"`
	Status        string   `json:"status,omitempty"`
	Profile       string   `json:"profile,omitempty"`
	IsClean       *bool    `json:"is_clean,omitempty"`
	AbnormalCount int      `json:"abnormal_count,omitempty"`
	Categories    []string `json:"categories,omitempty"`
	Timestamp     int64    `json:"timestamp"`
}

// NewScanEventsHandler 创建扫描事件处理器
func NewScanEventsHandler(logger *logrus.Logger) *ScanEventsHandler {
	return &ScanEventsHandler{
		logger: logger,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				return true // 守护进程默认仅监听回环地址
			},
		},
		clients:   make(map[*websocket.Conn]bool),
		broadcast: make(chan ScanEventMessage, 100),
	}
}

// Start 启动广播服务
func (h *ScanEventsHandler) Start() {
	go h.runBroadcaster()
}

// runBroadcaster 运行广播器
func (h *ScanEventsHandler) runBroadcaster() {
	for msg := range h.broadcast {
		var stale []*websocket.Conn

		h.clientMutex.RLock()
		for client := range h.clients {
			if err := client.WriteJSON(msg); err != nil {
				h.logger.WithError(err).Warn("Failed to write to WebSocket client")
				stale = append(stale, client)
			}
		}
		h.clientMutex.RUnlock()

		if len(stale) > 0 {
			h.clientMutex.Lock()
			for _, client := range stale {
				client.Close()
				delete(h.clients, client)
			}
			h.clientMutex.Unlock()
		}
	}
}

// HandleWebSocket 处理 WebSocket 连接
// GET /ws/scans
func (h *ScanEventsHandler) HandleWebSocket(c *gin.Context) {
	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.WithError(err).Error("Failed to upgrade to WebSocket")
		return
	}
	defer conn.Close()

	// 注册客户端
	h.clientMutex.Lock()
	h.clients[conn] = true
	h.clientMutex.Unlock()

	h.logger.Info("WebSocket client connected")

	// 保持连接，订阅端不需要发送消息
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				h.logger.WithError(err).Warn("WebSocket error")
			}
			break
		}
	}

	// 清理断开的连接
	h.clientMutex.Lock()
	delete(h.clients, conn)
	h.clientMutex.Unlock()

	h.logger.Info("WebSocket client disconnected")
}

// BroadcastStatus 广播扫描状态变化
func (h *ScanEventsHandler) BroadcastStatus(scanID string, status string) {
	msg := ScanEventMessage{
		ScanID:    scanID,
		Status:    status,
		Timestamp: time.Now().Unix(),
	}

	select {
	case h.broadcast <- msg:
		h.logger.WithFields(logrus.Fields{
			"scan_id": scanID,
			"status":  status,
		}).Debug("Scan status broadcasted")
	default:
		h.logger.Warn("Broadcast channel is full, dropping message")
	}
}

// BroadcastReport 广播完成的检测报告摘要
func (h *ScanEventsHandler) BroadcastReport(report *domain.Report) {
	var categories []string
	for _, c := range report.AbnormalCategories() {
		categories = append(categories, string(c))
	}

	clean := report.IsClean
	msg := ScanEventMessage{
		ScanID:        report.ID,
		Status:        string(domain.ScanStatusCompleted),
		Profile:       string(report.Profile),
		IsClean:       &clean,
		AbnormalCount: report.AbnormalCount(),
		Categories:    categories,
		Timestamp:     time.Now().Unix(),
	}

	select {
	case h.broadcast <- msg:
	default:
		h.logger.Warn("Broadcast channel is full, dropping report message")
	}
}
