package middleware

import (
	"runtime"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

// warnThresholdMB 守护进程常驻内存告警线
const warnThresholdMB = 512

// MemoryStats 一次内存采样
type MemoryStats struct {
	Alloc      uint64    `json:"alloc"`
	AllocMB    uint64    `json:"alloc_mb"`
	Sys        uint64    `json:"sys"`
	SysMB      uint64    `json:"sys_mb"`
	HeapInuse  uint64    `json:"heap_inuse"`
	NumGC      uint32    `json:"num_gc"`
	Goroutines int       `json:"goroutines"`
	SampledAt  time.Time `json:"sampled_at"`
}

// MemoryMonitor 内存监控器
// 守护进程与宿主共存，常驻内存必须持续观察，
// 超过告警线时记录警告便于运维介入。
type MemoryMonitor struct {
	logger   *logrus.Logger
	interval time.Duration
	stopChan chan struct{}

	mu       sync.RWMutex
	snapshot MemoryStats
}

// NewMemoryMonitor 创建内存监控器
func NewMemoryMonitor(logger *logrus.Logger, interval time.Duration) *MemoryMonitor {
	return &MemoryMonitor{
		logger:   logger,
		interval: interval,
		stopChan: make(chan struct{}),
	}
}

// Start 启动采样循环
func (m *MemoryMonitor) Start() {
	m.store(sample())
	go m.loop()
}

// Stop 停止采样
func (m *MemoryMonitor) Stop() {
	close(m.stopChan)
}

func (m *MemoryMonitor) loop() {
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	for {
		select {
		case <-m.stopChan:
			return
		case <-ticker.C:
			snap := sample()
			m.store(snap)

			m.logger.WithFields(logrus.Fields{
				"alloc_mb":   snap.AllocMB,
				"sys_mb":     snap.SysMB,
				"num_gc":     snap.NumGC,
				"goroutines": snap.Goroutines,
			}).Debug("Memory stats")

			if snap.AllocMB > warnThresholdMB {
				m.logger.WithFields(logrus.Fields{
					"alloc_mb": snap.AllocMB,
					"limit_mb": warnThresholdMB,
				}).Warn("High memory usage detected")
			}
		}
	}
}

func (m *MemoryMonitor) store(snap MemoryStats) {
	m.mu.Lock()
	m.snapshot = snap
	m.mu.Unlock()
}

func sample() MemoryStats {
	var ms runtime.MemStats
	runtime.ReadMemStats(&ms)

	return MemoryStats{
		Alloc:      ms.Alloc,
		AllocMB:    ms.Alloc / 1024 / 1024,
		Sys:        ms.Sys,
		SysMB:      ms.Sys / 1024 / 1024,
		HeapInuse:  ms.HeapInuse,
		NumGC:      ms.NumGC,
		Goroutines: runtime.NumGoroutine(),
		SampledAt:  time.Now().UTC(),
	}
}

// GetStats 获取最近一次采样
func (m *MemoryMonitor) GetStats() MemoryStats {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.snapshot
}

// MetricsEndpoint 内存采样端点
func (m *MemoryMonitor) MetricsEndpoint() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(200, m.GetStats())
	}
}

// ForceGC 手动触发 GC，返回回收前后的占用
func ForceGC() gin.HandlerFunc {
	return func(c *gin.Context) {
		before := sample()
		runtime.GC()
		after := sample()

		c.JSON(200, gin.H{
			"alloc_mb_before": before.AllocMB,
			"alloc_mb_after":  after.AllocMB,
		})
	}
}
