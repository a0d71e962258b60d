package sysprop

import (
	"context"
	"strings"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/runtime-guard/runtime-guard-go/internal/shell"
)

// Client 系统属性与设置查询客户端
// 封装 getprop / settings 诊断命令，属性值进程内缓存
// （ro.* 属性在进程生命周期内不变）。
type Client struct {
	runner shell.Runner
	logger *logrus.Logger

	mu    sync.RWMutex
	cache map[string]string
}

// NewClient 创建属性查询客户端
func NewClient(runner shell.Runner, logger *logrus.Logger) *Client {
	return &Client{
		runner: runner,
		logger: logger,
		cache:  make(map[string]string),
	}
}

// Get 查询单个系统属性，未定义或查询失败返回空串
func (c *Client) Get(ctx context.Context, key string) string {
	c.mu.RLock()
	if value, ok := c.cache[key]; ok {
		c.mu.RUnlock()
		return value
	}
	c.mu.RUnlock()

	output, err := c.runner.Run(ctx, "getprop", key)
	if err != nil {
		c.logger.WithFields(logrus.Fields{
			"key":   key,
			"error": err.Error(),
		}).Debug("系统属性查询失败")
		return ""
	}
	value := strings.TrimSpace(output)

	c.mu.Lock()
	c.cache[key] = value
	c.mu.Unlock()

	return value
}

// GetSetting 查询系统设置项（settings get <namespace> <key>）
// 设置可随时变更，不做缓存。"null" 视为未设置。
func (c *Client) GetSetting(ctx context.Context, namespace, key string) string {
	output, err := c.runner.Run(ctx, "settings", "get", namespace, key)
	if err != nil {
		c.logger.WithFields(logrus.Fields{
			"namespace": namespace,
			"key":       key,
			"error":     err.Error(),
		}).Debug("系统设置查询失败")
		return ""
	}
	value := strings.TrimSpace(output)
	if value == "null" {
		return ""
	}
	return value
}
