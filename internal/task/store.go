package task

import (
	"context"
	"time"

	xerrors "AgentCraft/internal/errors"
)

// Store 抽象了任务状态的持久化接口。
type Store interface {
	Create(ctx context.Context, task *Task) error
	Get(ctx context.Context, id string) (*Task, error)
	// Claim 将 created 状态的任务推进到 running 并返回副本。
	Claim(ctx context.Context, id string) (*Task, error)
	// RecordStep 关闭上一个进行中的阶段并追加新阶段，返回新阶段序号。
	RecordStep(ctx context.Context, id string, name string) (int, error)
	MarkCompleted(ctx context.Context, id string, result ExecutionResult) error
	MarkFailed(ctx context.Context, id string, code xerrors.Code, lastError string) error
	List(ctx context.Context, opts ListOptions) ([]*Task, error)
	Stats(ctx context.Context, opts ListOptions) (TaskStats, error)
	// FailStale 将停留在 created/running 超过 deadline 的任务强制置为失败，
	// 返回被处理的任务 ID。
	FailStale(ctx context.Context, deadline time.Duration) ([]string, error)
	Close() error
}
