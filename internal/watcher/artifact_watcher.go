package watcher

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/sirupsen/logrus"
)

// TriggerFunc 篡改迹象出现后的回调，通常触发一次快速扫描
type TriggerFunc func(ctx context.Context, path string) error

// ArtifactWatcher 痕迹目录监控器
// 监控注入框架和 Root 工具常驻的目录，目录内容变化时
// 触发快速扫描，缩短篡改发生到被发现的窗口。
type ArtifactWatcher struct {
	watcher  *fsnotify.Watcher
	paths    []string
	trigger  TriggerFunc
	logger   *logrus.Logger
	debounce time.Duration
	stopChan chan struct{}

	mu         sync.Mutex
	pending    *time.Timer
	lastEvent  string
	triggering bool
}

// NewArtifactWatcher 创建痕迹目录监控器
// 不存在或无法监控的目录会被跳过，全部失败时返回错误。
func NewArtifactWatcher(paths []string, debounce time.Duration, trigger TriggerFunc, logger *logrus.Logger) (*ArtifactWatcher, error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create watcher: %w", err)
	}

	var watched []string
	for _, path := range paths {
		if err := watcher.Add(path); err != nil {
			logger.WithError(err).WithField("path", path).Warn("目录无法监控，已跳过")
			continue
		}
		watched = append(watched, path)
	}

	if len(watched) == 0 {
		watcher.Close()
		return nil, fmt.Errorf("no watchable paths out of %d", len(paths))
	}

	if debounce <= 0 {
		debounce = 3 * time.Second
	}

	aw := &ArtifactWatcher{
		watcher:  watcher,
		paths:    watched,
		trigger:  trigger,
		logger:   logger,
		debounce: debounce,
		stopChan: make(chan struct{}),
	}

	logger.WithFields(logrus.Fields{
		"paths":    watched,
		"debounce": debounce.String(),
	}).Info("痕迹目录监控已创建")

	return aw, nil
}

// Start 启动监控
func (aw *ArtifactWatcher) Start(ctx context.Context) error {
	aw.logger.Info("Starting artifact watcher")
	go aw.eventLoop(ctx)
	return nil
}

// eventLoop 事件循环
func (aw *ArtifactWatcher) eventLoop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			aw.logger.Info("Artifact watcher context done")
			return
		case <-aw.stopChan:
			aw.logger.Info("Artifact watcher stopped")
			return
		case event, ok := <-aw.watcher.Events:
			if !ok {
				aw.logger.Warn("Watcher events channel closed")
				return
			}

			// 新增、写入、删除、权限变化都视为可疑活动
			if event.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Remove|fsnotify.Chmod) == 0 {
				continue
			}

			aw.logger.WithFields(logrus.Fields{
				"event": event.Op.String(),
				"path":  event.Name,
			}).Debug("Artifact event detected")

			aw.scheduleTrigger(ctx, event.Name)

		case err, ok := <-aw.watcher.Errors:
			if !ok {
				aw.logger.Warn("Watcher errors channel closed")
				return
			}
			aw.logger.WithError(err).Error("Watcher error")
		}
	}
}

// scheduleTrigger 防抖处理
// 防抖窗口内的连续事件合并为一次触发，避免一次安装
// 操作产生的成批文件事件引发扫描风暴。
func (aw *ArtifactWatcher) scheduleTrigger(ctx context.Context, path string) {
	aw.mu.Lock()
	defer aw.mu.Unlock()

	aw.lastEvent = path
	if aw.pending != nil {
		aw.pending.Stop()
	}

	aw.pending = time.AfterFunc(aw.debounce, func() {
		aw.fire(ctx)
	})
}

// fire 执行触发回调
func (aw *ArtifactWatcher) fire(ctx context.Context) {
	aw.mu.Lock()
	if aw.triggering {
		aw.mu.Unlock()
		return
	}
	aw.triggering = true
	path := aw.lastEvent
	aw.pending = nil
	aw.mu.Unlock()

	defer func() {
		aw.mu.Lock()
		aw.triggering = false
		aw.mu.Unlock()
	}()

	aw.logger.WithField("path", path).Warn("⚠️ 监控目录出现变动，触发快速扫描")

	if err := aw.trigger(ctx, path); err != nil {
		aw.logger.WithError(err).WithField("path", path).Error("触发扫描失败")
	}
}

// Paths 返回实际监控中的目录
func (aw *ArtifactWatcher) Paths() []string {
	return aw.paths
}

// Stop 停止监控
func (aw *ArtifactWatcher) Stop() error {
	aw.logger.Info("Stopping artifact watcher")
	close(aw.stopChan)

	if aw.watcher != nil {
		return aw.watcher.Close()
	}

	return nil
}
