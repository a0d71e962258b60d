package stress

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/runtime-guard/runtime-guard-go/internal/domain"
	"github.com/runtime-guard/runtime-guard-go/internal/engine"
	"github.com/runtime-guard/runtime-guard-go/internal/repository"
	"github.com/runtime-guard/runtime-guard-go/internal/service"
)

// StressTestConfig 压力测试配置
type StressTestConfig struct {
	Concurrency int                // 并发数
	ScanCount   int                // 扫描总数
	Profile     domain.ScanProfile // 检测档位
}

// DefaultStressConfig 默认压力测试配置
var DefaultStressConfig = StressTestConfig{
	Concurrency: 10,
	ScanCount:   100,
	Profile:     domain.ProfileQuick,
}

// StressTestMetrics 压力测试指标
type StressTestMetrics struct {
	TotalScans       int64
	SuccessfulScans  int64
	FailedScans      int64
	TotalDuration    time.Duration
	AverageLatency   time.Duration
	MaxLatency       time.Duration
	MinLatency       time.Duration
	ThroughputPerSec float64
	ErrorRate        float64
}

// slowDetector 模拟耗时的检测器，信号固定为未命中
type slowDetector struct {
	name  string
	delay time.Duration
}

func (d *slowDetector) Name() string { return d.name }

func (d *slowDetector) Detect(ctx context.Context) ([]domain.Signal, error) {
	if d.delay > 0 {
		select {
		case <-time.After(d.delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return []domain.Signal{
		domain.NewSignal(domain.CategoryRoot, "未检出可疑痕迹", false, nil),
	}, nil
}

// setupStressTestEnv 创建压力测试环境
// detectorCount 个检测器全部注册进 quick 档位，每个耗时 delay。
func setupStressTestEnv(t *testing.T, detectorCount int, delay time.Duration) (service.ScanService, func()) {
	logger := logrus.New()
	logger.SetLevel(logrus.ErrorLevel)

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err)

	err = db.AutoMigrate(&domain.ScanRecord{})
	require.NoError(t, err)

	eng := engine.New(engine.Config{DetectorTimeout: 5 * time.Second}, logger)
	for i := 0; i < detectorCount; i++ {
		eng.Register(&slowDetector{name: fmt.Sprintf("stub-%d", i), delay: delay}, true)
	}

	scanRepo := repository.NewScanRepository(db, logger)
	scanService := service.NewScanService(scanRepo, eng, nil, nil, nil, nil, logger)

	cleanup := func() {
		sqlDB, _ := db.DB()
		if sqlDB != nil {
			sqlDB.Close()
		}
	}

	return scanService, cleanup
}

// TestStress_10ConcurrentScans 压力测试: 10 个并发扫描
func TestStress_10ConcurrentScans(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping stress test in short mode")
	}

	scanService, cleanup := setupStressTestEnv(t, 3, 5*time.Millisecond)
	defer cleanup()

	config := StressTestConfig{
		Concurrency: 10,
		ScanCount:   10,
		Profile:     domain.ProfileQuick,
	}

	metrics := runStressTest(t, scanService, config)

	// 验证结果
	assert.Equal(t, int64(10), metrics.SuccessfulScans)
	assert.Equal(t, int64(0), metrics.FailedScans)
	assert.Less(t, metrics.AverageLatency, 1*time.Second)

	t.Logf("✅ 10 Concurrent Scans - Success: %d, Failed: %d, Avg Latency: %v",
		metrics.SuccessfulScans, metrics.FailedScans, metrics.AverageLatency)
}

// TestStress_50ConcurrentScans 压力测试: 50 个并发扫描
func TestStress_50ConcurrentScans(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping stress test in short mode")
	}

	scanService, cleanup := setupStressTestEnv(t, 3, 5*time.Millisecond)
	defer cleanup()

	config := StressTestConfig{
		Concurrency: 50,
		ScanCount:   50,
		Profile:     domain.ProfileQuick,
	}

	metrics := runStressTest(t, scanService, config)

	assert.Equal(t, int64(50), metrics.SuccessfulScans)
	assert.Equal(t, int64(0), metrics.FailedScans)

	t.Logf("✅ 50 Concurrent Scans - Success: %d, Failed: %d, Avg Latency: %v, Throughput: %.2f scans/sec",
		metrics.SuccessfulScans, metrics.FailedScans, metrics.AverageLatency, metrics.ThroughputPerSec)
}

// TestStress_100ConcurrentScans 压力测试: 100 个并发扫描
func TestStress_100ConcurrentScans(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping stress test in short mode")
	}

	scanService, cleanup := setupStressTestEnv(t, 2, 2*time.Millisecond)
	defer cleanup()

	config := StressTestConfig{
		Concurrency: 100,
		ScanCount:   100,
		Profile:     domain.ProfileQuick,
	}

	metrics := runStressTest(t, scanService, config)

	assert.Equal(t, int64(100), metrics.SuccessfulScans)
	assert.Less(t, metrics.ErrorRate, 0.01) // 错误率 < 1%

	t.Logf("✅ 100 Concurrent Scans - Success: %d, Failed: %d, Throughput: %.2f scans/sec",
		metrics.SuccessfulScans, metrics.FailedScans, metrics.ThroughputPerSec)
}

// TestStress_SustainedLoad 压力测试: 持续负载 (200 扫描, 10 并发)
func TestStress_SustainedLoad(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping stress test in short mode")
	}

	scanService, cleanup := setupStressTestEnv(t, 3, 5*time.Millisecond)
	defer cleanup()

	config := DefaultStressConfig
	config.ScanCount = 200

	metrics := runStressTest(t, scanService, config)

	assert.Equal(t, int64(200), metrics.SuccessfulScans)
	assert.Less(t, metrics.AverageLatency, 2*time.Second)

	t.Logf("✅ Sustained Load - Success: %d, Total Duration: %v, Throughput: %.2f scans/sec",
		metrics.SuccessfulScans, metrics.TotalDuration, metrics.ThroughputPerSec)
}

// TestStress_ManyDetectors 压力测试: 大量检测器串行执行
func TestStress_ManyDetectors(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping stress test in short mode")
	}

	scanService, cleanup := setupStressTestEnv(t, 30, 1*time.Millisecond)
	defer cleanup()

	config := StressTestConfig{
		Concurrency: 10,
		ScanCount:   10,
		Profile:     domain.ProfileQuick,
	}

	metrics := runStressTest(t, scanService, config)

	assert.Equal(t, int64(10), metrics.SuccessfulScans)

	t.Logf("✅ Many Detectors - Success: %d, Total Detector Runs: %d, Avg Latency: %v",
		metrics.SuccessfulScans, config.ScanCount*30, metrics.AverageLatency)
}

// TestStress_RapidScanExecution 压力测试: 快速扫描执行
func TestStress_RapidScanExecution(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping stress test in short mode")
	}

	scanService, cleanup := setupStressTestEnv(t, 0, 0)
	defer cleanup()

	ctx := context.Background()
	scanCount := 1000
	var successCount int64
	var failCount int64

	startTime := time.Now()

	var wg sync.WaitGroup
	for i := 0; i < scanCount; i++ {
		wg.Add(1)
		go func(index int) {
			defer wg.Done()

			_, err := scanService.ExecuteScan(ctx, fmt.Sprintf("scan-rapid-%d", index), domain.ProfileQuick, "api")
			if err != nil {
				atomic.AddInt64(&failCount, 1)
			} else {
				atomic.AddInt64(&successCount, 1)
			}
		}(i)
	}

	wg.Wait()
	duration := time.Since(startTime)
	throughput := float64(successCount) / duration.Seconds()

	assert.Equal(t, int64(scanCount), successCount)
	assert.Equal(t, int64(0), failCount)

	t.Logf("✅ Rapid Scan Execution - Completed: %d, Duration: %v, Throughput: %.2f scans/sec",
		successCount, duration, throughput)
}

// TestStress_MixedOperations 压力测试: 混合操作 (执行/列表/最新报告/统计)
func TestStress_MixedOperations(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping stress test in short mode")
	}

	scanService, cleanup := setupStressTestEnv(t, 2, 1*time.Millisecond)
	defer cleanup()

	ctx := context.Background()
	operationCount := 500
	concurrency := 20

	var executeCount, listCount, latestCount, statsCount int64
	var wg sync.WaitGroup
	semaphore := make(chan struct{}, concurrency)

	startTime := time.Now()

	for i := 0; i < operationCount; i++ {
		wg.Add(1)
		semaphore <- struct{}{}

		go func(index int) {
			defer wg.Done()
			defer func() { <-semaphore }()

			operation := index % 4

			switch operation {
			case 0: // Execute
				_, err := scanService.ExecuteScan(ctx, fmt.Sprintf("scan-mixed-%d", index), domain.ProfileQuick, "api")
				if err == nil {
					atomic.AddInt64(&executeCount, 1)
				}

			case 1: // List
				records, _, err := scanService.ListScans(ctx, 1, 10, "", false)
				if err == nil && len(records) > 0 {
					atomic.AddInt64(&listCount, 1)
				}

			case 2: // Latest report
				_, err := scanService.LatestReport(ctx)
				if err == nil {
					atomic.AddInt64(&latestCount, 1)
				}

			case 3: // Status counts
				_, _, err := scanService.GetStatusCounts(ctx)
				if err == nil {
					atomic.AddInt64(&statsCount, 1)
				}
			}
		}(i)
	}

	wg.Wait()
	duration := time.Since(startTime)

	t.Logf("✅ Mixed Operations - Execute: %d, List: %d, Latest: %d, Stats: %d, Duration: %v",
		executeCount, listCount, latestCount, statsCount, duration)
}

// TestStress_LargeHistory 压力测试: 大量历史记录读取
func TestStress_LargeHistory(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping stress test in short mode")
	}

	scanService, cleanup := setupStressTestEnv(t, 0, 0)
	defer cleanup()

	ctx := context.Background()
	scanCount := 1000

	// 顺序执行大量扫描
	for i := 0; i < scanCount; i++ {
		_, err := scanService.ExecuteScan(ctx, fmt.Sprintf("scan-history-%d", i), domain.ProfileQuick, "api")
		require.NoError(t, err)
	}

	// 全量读取
	records, total, err := scanService.ListScans(ctx, 1, scanCount, "", false)
	require.NoError(t, err)
	assert.Equal(t, int64(scanCount), total)
	assert.Len(t, records, scanCount)

	counts, countTotal, err := scanService.GetStatusCounts(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(scanCount), countTotal)
	assert.Equal(t, int64(scanCount), counts["completed"])

	t.Logf("✅ Large History Test - Executed and retrieved %d scans", scanCount)
}

// runStressTest 运行压力测试的通用函数
func runStressTest(t *testing.T, scanService service.ScanService, config StressTestConfig) *StressTestMetrics {
	ctx := context.Background()

	var successCount, failCount int64
	latencies := make([]time.Duration, config.ScanCount)
	var wg sync.WaitGroup

	startTime := time.Now()

	// 限制并发数
	semaphore := make(chan struct{}, config.Concurrency)

	for i := 0; i < config.ScanCount; i++ {
		wg.Add(1)
		semaphore <- struct{}{} // 获取信号量

		go func(index int) {
			defer wg.Done()
			defer func() { <-semaphore }() // 释放信号量

			scanStart := time.Now()

			report, err := scanService.ExecuteScan(ctx, fmt.Sprintf("scan-stress-%d", index), config.Profile, "api")
			if err != nil {
				atomic.AddInt64(&failCount, 1)
				return
			}
			if report.ErrorCount() > 0 {
				atomic.AddInt64(&failCount, 1)
				return
			}

			latency := time.Since(scanStart)
			latencies[index] = latency
			atomic.AddInt64(&successCount, 1)
		}(i)
	}

	wg.Wait()
	totalDuration := time.Since(startTime)

	// 计算指标
	metrics := calculateMetrics(successCount, failCount, totalDuration, latencies)
	return metrics
}

// calculateMetrics 计算压力测试指标
func calculateMetrics(successCount, failCount int64, totalDuration time.Duration, latencies []time.Duration) *StressTestMetrics {
	totalScans := successCount + failCount

	var totalLatency time.Duration
	var maxLatency time.Duration
	minLatency := time.Duration(1<<63 - 1) // Max duration

	for _, latency := range latencies {
		if latency > 0 {
			totalLatency += latency
			if latency > maxLatency {
				maxLatency = latency
			}
			if latency < minLatency {
				minLatency = latency
			}
		}
	}

	var averageLatency time.Duration
	if successCount > 0 {
		averageLatency = totalLatency / time.Duration(successCount)
	}

	throughput := float64(successCount) / totalDuration.Seconds()
	errorRate := float64(failCount) / float64(totalScans)

	return &StressTestMetrics{
		TotalScans:       totalScans,
		SuccessfulScans:  successCount,
		FailedScans:      failCount,
		TotalDuration:    totalDuration,
		AverageLatency:   averageLatency,
		MaxLatency:       maxLatency,
		MinLatency:       minLatency,
		ThroughputPerSec: throughput,
		ErrorRate:        errorRate,
	}
}

// BenchmarkStress_ScanLifecycle 基准测试: 完整扫描生命周期
func BenchmarkStress_ScanLifecycle(b *testing.B) {
	logger := logrus.New()
	logger.SetLevel(logrus.ErrorLevel)

	db, _ := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	db.AutoMigrate(&domain.ScanRecord{})

	eng := engine.New(engine.Config{DetectorTimeout: time.Second}, logger)
	eng.Register(&slowDetector{name: "stub-0"}, true)

	scanRepo := repository.NewScanRepository(db, logger)
	scanService := service.NewScanService(scanRepo, eng, nil, nil, nil, nil, logger)
	ctx := context.Background()

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		scanService.ExecuteScan(ctx, fmt.Sprintf("bench-%d", i), domain.ProfileQuick, "api")
	}
}

// BenchmarkStress_ConcurrentScanLifecycle 基准测试: 并发扫描生命周期
func BenchmarkStress_ConcurrentScanLifecycle(b *testing.B) {
	logger := logrus.New()
	logger.SetLevel(logrus.ErrorLevel)

	db, _ := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	db.AutoMigrate(&domain.ScanRecord{})

	eng := engine.New(engine.Config{DetectorTimeout: time.Second}, logger)
	eng.Register(&slowDetector{name: "stub-0"}, true)

	scanRepo := repository.NewScanRepository(db, logger)
	scanService := service.NewScanService(scanRepo, eng, nil, nil, nil, nil, logger)
	ctx := context.Background()

	var counter int64

	b.ResetTimer()
	b.RunParallel(func(pb *testing.PB) {
		for pb.Next() {
			id := atomic.AddInt64(&counter, 1)
			scanService.ExecuteScan(ctx, fmt.Sprintf("bench-concurrent-%d", id), domain.ProfileQuick, "api")
		}
	})
}
