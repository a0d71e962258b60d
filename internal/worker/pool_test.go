package worker

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/runtime-guard/runtime-guard-go/internal/domain"
	"github.com/runtime-guard/runtime-guard-go/internal/service"
)

// fakeScanService 记录执行调用的扫描服务替身
type fakeScanService struct {
	mu        sync.Mutex
	executed  []string
	triggered []string
	execErr   error
	execDelay time.Duration
	done      chan string
}

func newFakeScanService() *fakeScanService {
	return &fakeScanService{done: make(chan string, 16)}
}

func (f *fakeScanService) ExecuteScan(ctx context.Context, scanID string, profile domain.ScanProfile, source string) (*domain.Report, error) {
	if f.execDelay > 0 {
		time.Sleep(f.execDelay)
	}
	f.mu.Lock()
	f.executed = append(f.executed, scanID)
	f.mu.Unlock()
	f.done <- scanID
	if f.execErr != nil {
		return nil, f.execErr
	}
	return domain.NewReport(scanID, profile, nil, time.Now(), 0), nil
}

func (f *fakeScanService) TriggerScan(ctx context.Context, profile domain.ScanProfile, source string) (*domain.ScanRecord, error) {
	f.mu.Lock()
	f.triggered = append(f.triggered, source)
	f.mu.Unlock()
	return &domain.ScanRecord{ID: "scheduled", Profile: profile, Source: source}, nil
}

func (f *fakeScanService) GetScan(ctx context.Context, scanID string) (*domain.ScanRecord, error) {
	return nil, errors.New("not implemented")
}

func (f *fakeScanService) GetReport(ctx context.Context, scanID string) (*domain.Report, error) {
	return nil, errors.New("not implemented")
}

func (f *fakeScanService) LatestReport(ctx context.Context) (*domain.Report, error) {
	return nil, errors.New("not implemented")
}

func (f *fakeScanService) ListScans(ctx context.Context, page int, pageSize int, profile string, onlyAbnormal bool) ([]*domain.ScanRecord, int64, error) {
	return nil, 0, nil
}

func (f *fakeScanService) GetStatusCounts(ctx context.Context) (map[string]int64, int64, error) {
	return map[string]int64{}, 0, nil
}

func (f *fakeScanService) PurgeScans(ctx context.Context, beforeDays int) (int64, error) {
	return 0, nil
}

func (f *fakeScanService) SetBroadcaster(b service.ScanEventBroadcaster) {}
func (f *fakeScanService) SetMetrics(m service.ScanMetrics)             {}
func (f *fakeScanService) SetPool(p service.ScanExecutorPool)           {}

func (f *fakeScanService) executedIDs() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.executed))
	copy(out, f.executed)
	return out
}

func (f *fakeScanService) triggeredSources() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.triggered))
	copy(out, f.triggered)
	return out
}

func poolLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetLevel(logrus.ErrorLevel)
	return logger
}

// waitExecutions 等待 n 次扫描执行完成
func waitExecutions(t *testing.T, svc *fakeScanService, n int) {
	t.Helper()
	for i := 0; i < n; i++ {
		select {
		case <-svc.done:
		case <-time.After(2 * time.Second):
			t.Fatalf("等待第 %d 次扫描执行超时", i+1)
		}
	}
}

// TestPool_SubmitExecutesJobs 测试提交的作业被 worker 执行
func TestPool_SubmitExecutesJobs(t *testing.T) {
	svc := newFakeScanService()
	pool := NewPool(2, 8, svc, poolLogger())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	pool.Start(ctx)

	require.NoError(t, pool.Submit("scan-1", domain.ProfileFull, "api"))
	require.NoError(t, pool.Submit("scan-2", domain.ProfileQuick, "api"))
	require.NoError(t, pool.Submit("scan-3", domain.ProfileFull, "schedule"))

	waitExecutions(t, svc, 3)
	assert.ElementsMatch(t, []string{"scan-1", "scan-2", "scan-3"}, svc.executedIDs())
}

// TestPool_SubmitQueueFull 测试队列满时拒绝提交
func TestPool_SubmitQueueFull(t *testing.T) {
	svc := newFakeScanService()
	// 不启动 worker，仅靠队列容量承接
	pool := NewPool(1, 1, svc, poolLogger())

	require.NoError(t, pool.Submit("scan-1", domain.ProfileFull, "api"))

	err := pool.Submit("scan-2", domain.ProfileFull, "api")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "queue is full")
	assert.Equal(t, 1, pool.GetQueueSize())
}

// TestPool_SubmitAndWait 测试同步提交等待扫描完成
func TestPool_SubmitAndWait(t *testing.T) {
	svc := newFakeScanService()
	pool := NewPool(1, 4, svc, poolLogger())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	pool.Start(ctx)

	err := pool.SubmitAndWait(context.Background(), "scan-sync", domain.ProfileQuick, "api")
	require.NoError(t, err)
	assert.Equal(t, []string{"scan-sync"}, svc.executedIDs())
}

// TestPool_SubmitAndWait_PropagatesError 测试同步提交透传执行错误
func TestPool_SubmitAndWait_PropagatesError(t *testing.T) {
	svc := newFakeScanService()
	svc.execErr = errors.New("检测引擎初始化失败")
	pool := NewPool(1, 4, svc, poolLogger())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	pool.Start(ctx)

	err := pool.SubmitAndWait(context.Background(), "scan-err", domain.ProfileFull, "api")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "检测引擎初始化失败")
}

// TestPool_SubmitAndWait_ContextCanceled 测试等待期间上下文取消
func TestPool_SubmitAndWait_ContextCanceled(t *testing.T) {
	svc := newFakeScanService()
	// worker 不启动，作业停留在队列中
	pool := NewPool(1, 4, svc, poolLogger())

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	err := pool.SubmitAndWait(ctx, "scan-wait", domain.ProfileFull, "api")
	require.Error(t, err)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

// TestPool_StopDrainsQueue 测试停止时排空剩余作业
func TestPool_StopDrainsQueue(t *testing.T) {
	svc := newFakeScanService()
	pool := NewPool(1, 8, svc, poolLogger())

	pool.Start(context.Background())
	require.NoError(t, pool.Submit("scan-a", domain.ProfileFull, "api"))
	require.NoError(t, pool.Submit("scan-b", domain.ProfileFull, "api"))

	pool.Stop()
	assert.Len(t, svc.executedIDs(), 2)
}

// TestNewPool_Defaults 测试非法参数回落到默认值
func TestNewPool_Defaults(t *testing.T) {
	pool := NewPool(0, 0, newFakeScanService(), poolLogger())
	assert.Equal(t, 1, pool.Size())
	assert.Equal(t, 0, pool.GetQueueSize())
}

// TestScheduler_TriggersPeriodically 测试周期调度按间隔触发扫描
func TestScheduler_TriggersPeriodically(t *testing.T) {
	svc := newFakeScanService()
	sched := NewScheduler(20*time.Millisecond, domain.ProfileQuick, svc, poolLogger())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	sched.Start(ctx)

	assert.Eventually(t, func() bool {
		return len(svc.triggeredSources()) >= 2
	}, 2*time.Second, 10*time.Millisecond)
	sched.Stop()

	for _, source := range svc.triggeredSources() {
		assert.Equal(t, "schedule", source)
	}
}

// TestScheduler_DisabledWithoutInterval 测试间隔为零时不调度
func TestScheduler_DisabledWithoutInterval(t *testing.T) {
	svc := newFakeScanService()
	sched := NewScheduler(0, domain.ProfileQuick, svc, poolLogger())

	sched.Start(context.Background())
	time.Sleep(50 * time.Millisecond)
	assert.Empty(t, svc.triggeredSources())
}

// TestScheduler_InvalidProfileFallsBack 测试非法档位回落到 quick
func TestScheduler_InvalidProfileFallsBack(t *testing.T) {
	svc := newFakeScanService()
	sched := NewScheduler(time.Hour, domain.ScanProfile("paranoid"), svc, poolLogger())
	assert.Equal(t, domain.ProfileQuick, sched.profile)
}
