package catalog

import (
	"context"
	"log/slog"
	"sort"
	"strings"
	"sync/atomic"
	"time"

	"AgentCraft/internal/observability/metrics"
	"AgentCraft/internal/runtime"
	"AgentCraft/pkg/logger"
)

// Index 是平台工具目录的一份只读快照：小写能力词到工具名集合的映射。
// 快照构建完成后不再修改，读取方无需加锁。
type Index struct {
	toolNames    []string
	byCapability map[string][]string
	builtAt      time.Time
}

// BuildIndex 根据运行时公告的工具构建能力索引。
func BuildIndex(tools []runtime.ToolResource) *Index {
	idx := &Index{
		byCapability: make(map[string][]string),
		builtAt:      time.Now(),
	}
	seen := make(map[string]struct{}, len(tools))
	for _, tool := range tools {
		if _, ok := seen[tool.Name]; ok {
			continue
		}
		seen[tool.Name] = struct{}{}
		idx.toolNames = append(idx.toolNames, tool.Name)
		for _, capability := range tool.Capabilities {
			token := strings.ToLower(strings.TrimSpace(capability))
			if token == "" {
				continue
			}
			idx.byCapability[token] = append(idx.byCapability[token], tool.Name)
		}
	}
	sort.Strings(idx.toolNames)
	return idx
}

// ToolNames 返回目录中全部工具名称。
func (i *Index) ToolNames() []string {
	if i == nil {
		return nil
	}
	names := make([]string, len(i.toolNames))
	copy(names, i.toolNames)
	return names
}

// ToolsFor 返回声明了指定能力的工具名称。
func (i *Index) ToolsFor(capability string) []string {
	if i == nil {
		return nil
	}
	token := strings.ToLower(strings.TrimSpace(capability))
	tools := i.byCapability[token]
	clone := make([]string, len(tools))
	copy(clone, tools)
	return clone
}

// BuiltAt 返回快照的构建时间。
func (i *Index) BuiltAt() time.Time {
	if i == nil {
		return time.Time{}
	}
	return i.builtAt
}

// Cache 持有当前目录快照，刷新时整体原子替换，
// 读取方永远不会观察到构建了一半的目录。
type Cache struct {
	client    runtime.Client
	namespace string
	metrics   *metrics.Collector
	index     atomic.Pointer[Index]
}

// Option 定义可选的 Cache 配置。
type Option func(*Cache)

// WithMetrics 注入指标收集器，刷新时上报目录规模。
func WithMetrics(collector *metrics.Collector) Option {
	return func(c *Cache) {
		c.metrics = collector
	}
}

// NewCache 创建目录缓存，初始为空快照。
func NewCache(client runtime.Client, namespace string, opts ...Option) *Cache {
	c := &Cache{client: client, namespace: namespace}
	c.index.Store(BuildIndex(nil))
	for _, opt := range opts {
		if opt != nil {
			opt(c)
		}
	}
	return c
}

// Snapshot 返回当前目录快照。
func (c *Cache) Snapshot() *Index {
	return c.index.Load()
}

// Refresh 查询运行时并原子替换目录快照。
func (c *Cache) Refresh(ctx context.Context) error {
	tools, err := c.client.ListTools(ctx, c.namespace)
	if err != nil {
		return err
	}
	idx := BuildIndex(tools)
	c.index.Store(idx)
	c.metrics.SetCatalogTools(len(idx.toolNames))
	return nil
}

// Run 以固定间隔周期性刷新目录，直到上下文取消。
// 单次刷新失败只记录日志并跳过，从不中断循环。
func (c *Cache) Run(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	if err := c.Refresh(ctx); err != nil {
		logger.L().Warn("初次刷新工具目录失败", slog.Any("error", err))
	}

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := c.Refresh(ctx); err != nil {
				logger.L().Warn("刷新工具目录失败", slog.Any("error", err))
			}
		}
	}
}
