package task

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	xerrors "AgentCraft/internal/errors"
)

// MemoryStore 以内存方式保存任务状态，进程重启后任务不保留。
type MemoryStore struct {
	mu    sync.RWMutex
	tasks map[string]*Task
}

// NewMemoryStore 创建 MemoryStore。
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{tasks: make(map[string]*Task)}
}

// Create 实现 Store 接口。
func (m *MemoryStore) Create(_ context.Context, task *Task) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if task == nil {
		return xerrors.New(CodeTaskValidation, "task 不能为空")
	}
	if task.ID == "" {
		return xerrors.New(CodeTaskValidation, "任务 ID 不能为空")
	}
	if _, ok := m.tasks[task.ID]; ok {
		return ErrTaskConflict
	}
	now := time.Now().Unix()
	if task.CreatedAt == 0 {
		task.CreatedAt = now
	}
	if task.Status == "" {
		task.Status = StatusCreated
	}
	task.UpdatedAt = now
	m.tasks[task.ID] = cloneTask(task)
	return nil
}

// Get 返回任务副本。
func (m *MemoryStore) Get(_ context.Context, id string) (*Task, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	task, ok := m.tasks[id]
	if !ok {
		return nil, ErrTaskNotFound
	}
	return cloneTask(task), nil
}

// Claim 将任务状态从 created 推进到 running。
func (m *MemoryStore) Claim(_ context.Context, id string) (*Task, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	task, ok := m.tasks[id]
	if !ok {
		return nil, ErrTaskNotFound
	}
	if IsTerminal(task.Status) {
		return cloneTask(task), ErrTaskFinished
	}
	if task.Status == StatusRunning {
		return cloneTask(task), ErrTaskConflict
	}
	task.Status = StatusRunning
	task.LastError = ""
	task.ErrorCode = ""
	task.UpdatedAt = time.Now().Unix()
	return cloneTask(task), nil
}

// RecordStep 关闭上一个进行中的阶段并追加一个新的 running 阶段。
func (m *MemoryStore) RecordStep(_ context.Context, id string, name string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	task, ok := m.tasks[id]
	if !ok {
		return 0, ErrTaskNotFound
	}
	if task.Status != StatusRunning {
		return 0, ErrTaskConflict
	}
	now := time.Now().Unix()
	closeOpenStep(task, StepCompleted, "", now)
	seq := len(task.Steps) + 1
	task.Steps = append(task.Steps, Step{
		Seq:       seq,
		Name:      name,
		Status:    StepRunning,
		StartedAt: now,
	})
	task.UpdatedAt = now
	return seq, nil
}

// MarkCompleted 记录成功结果并进入终态。
func (m *MemoryStore) MarkCompleted(_ context.Context, id string, result ExecutionResult) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	task, ok := m.tasks[id]
	if !ok {
		return ErrTaskNotFound
	}
	if IsTerminal(task.Status) {
		return ErrTaskFinished
	}
	now := time.Now().Unix()
	closeOpenStep(task, StepCompleted, "", now)
	task.Status = StatusCompleted
	task.Result = &result
	task.LastError = ""
	task.ErrorCode = ""
	task.UpdatedAt = now
	task.CompletedAt = now
	return nil
}

// MarkFailed 标记任务失败并进入终态。
func (m *MemoryStore) MarkFailed(_ context.Context, id string, code xerrors.Code, lastError string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	task, ok := m.tasks[id]
	if !ok {
		return ErrTaskNotFound
	}
	if IsTerminal(task.Status) {
		return ErrTaskFinished
	}
	now := time.Now().Unix()
	closeOpenStep(task, StepFailed, lastError, now)
	task.Status = StatusFailed
	task.LastError = lastError
	task.ErrorCode = string(code)
	task.UpdatedAt = now
	task.CompletedAt = now
	return nil
}

// List 返回符合过滤条件的任务。
func (m *MemoryStore) List(_ context.Context, opts ListOptions) ([]*Task, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	opts.applyDefaults()

	results := make([]*Task, 0, len(m.tasks))
	for _, task := range m.tasks {
		if !matchesListFilters(task, opts) {
			continue
		}
		results = append(results, cloneTask(task))
	}

	sort.Slice(results, func(i, j int) bool {
		if opts.Order == SortByUpdatedAsc {
			if results[i].UpdatedAt == results[j].UpdatedAt {
				if results[i].CreatedAt == results[j].CreatedAt {
					return results[i].ID < results[j].ID
				}
				return results[i].CreatedAt < results[j].CreatedAt
			}
			return results[i].UpdatedAt < results[j].UpdatedAt
		}
		if results[i].UpdatedAt == results[j].UpdatedAt {
			if results[i].CreatedAt == results[j].CreatedAt {
				return results[i].ID < results[j].ID
			}
			return results[i].CreatedAt > results[j].CreatedAt
		}
		return results[i].UpdatedAt > results[j].UpdatedAt
	})

	if opts.Offset > 0 {
		if opts.Offset >= len(results) {
			return []*Task{}, nil
		}
		results = results[opts.Offset:]
	}
	if len(results) > opts.Limit {
		results = results[:opts.Limit]
	}
	return results, nil
}

// Stats 统计符合过滤条件的任务数量与更新时间范围。
func (m *MemoryStore) Stats(_ context.Context, opts ListOptions) (TaskStats, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	opts.applyDefaults()

	stats := TaskStats{}
	for _, task := range m.tasks {
		if !matchesListFilters(task, opts) {
			continue
		}
		stats.Total++
		switch task.Status {
		case StatusCreated:
			stats.Created++
		case StatusRunning:
			stats.Running++
		case StatusCompleted:
			stats.Completed++
		case StatusFailed:
			stats.Failed++
		}
		if task.UpdatedAt > stats.NewestUpdatedAt {
			stats.NewestUpdatedAt = task.UpdatedAt
		}
		if stats.OldestUpdatedAt == 0 || (task.UpdatedAt != 0 && task.UpdatedAt < stats.OldestUpdatedAt) {
			stats.OldestUpdatedAt = task.UpdatedAt
		}
	}
	if stats.Total == 0 {
		stats.OldestUpdatedAt = 0
		stats.NewestUpdatedAt = 0
	}
	return stats, nil
}

// FailStale 将停留在非终态超过 deadline 的任务强制置为失败。
// running 任务以最后更新时间判定；created 任务从创建起就可能因为
// 队列消息丢失而永远无人领取，以创建时间判定。
func (m *MemoryStore) FailStale(_ context.Context, deadline time.Duration) ([]string, error) {
	if deadline <= 0 {
		return nil, nil
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	now := time.Now().Unix()
	cutoff := now - int64(deadline.Seconds())
	var stale []string
	for _, task := range m.tasks {
		switch task.Status {
		case StatusRunning:
			if task.UpdatedAt > cutoff {
				continue
			}
		case StatusCreated:
			if task.CreatedAt > cutoff {
				continue
			}
		default:
			continue
		}
		closeOpenStep(task, StepFailed, "deadline exceeded", now)
		task.Status = StatusFailed
		task.LastError = "任务执行超时，已被看护协程强制终止"
		task.ErrorCode = string(CodeTaskDeadline)
		task.UpdatedAt = now
		task.CompletedAt = now
		stale = append(stale, task.ID)
	}
	sort.Strings(stale)
	return stale, nil
}

// Close 对内存存储无需操作。
func (m *MemoryStore) Close() error {
	return nil
}

// closeOpenStep 关闭最后一个进行中的阶段。调用方必须持有写锁。
func closeOpenStep(task *Task, status StepStatus, stepErr string, now int64) {
	if len(task.Steps) == 0 {
		return
	}
	last := &task.Steps[len(task.Steps)-1]
	if last.Status != StepRunning {
		return
	}
	last.Status = status
	last.CompletedAt = now
	if stepErr != "" {
		last.Error = stepErr
	}
}

func cloneTask(task *Task) *Task {
	clone := *task
	if task.Result != nil {
		resultCopy := *task.Result
		clone.Result = &resultCopy
	}
	if task.Steps != nil {
		clone.Steps = make([]Step, len(task.Steps))
		copy(clone.Steps, task.Steps)
	}
	if task.Tools != nil {
		clone.Tools = append([]string(nil), task.Tools...)
	}
	clone.Metadata = cloneMetadata(task.Metadata)
	return &clone
}

func matchesListFilters(task *Task, opts ListOptions) bool {
	if len(opts.Statuses) > 0 {
		matched := false
		for _, status := range opts.Statuses {
			if task.Status == status {
				matched = true
				break
			}
		}
		if !matched {
			return false
		}
	}
	if opts.AgentID != "" && task.AgentID != opts.AgentID {
		return false
	}
	if opts.UpdatedGTE > 0 && task.UpdatedAt < opts.UpdatedGTE {
		return false
	}
	if opts.UpdatedLTE > 0 && task.UpdatedAt > opts.UpdatedLTE {
		return false
	}
	if opts.HasResult != nil && taskHasResult(task) != *opts.HasResult {
		return false
	}
	if opts.Query != "" && !matchesQuery(task, opts.Query) {
		return false
	}
	return true
}

func taskHasResult(task *Task) bool {
	if task == nil || task.Result == nil {
		return false
	}
	result := task.Result
	return result.AgentID != "" || result.WorkflowID != "" || result.Reply != "" || result.Observations != ""
}

func matchesQuery(task *Task, query string) bool {
	needle := strings.ToLower(query)
	if strings.Contains(strings.ToLower(task.Input), needle) {
		return true
	}
	if strings.Contains(strings.ToLower(task.AgentID), needle) {
		return true
	}
	if task.Result != nil {
		if strings.Contains(strings.ToLower(task.Result.Reply), needle) {
			return true
		}
		if strings.Contains(strings.ToLower(task.Result.AgentID), needle) {
			return true
		}
	}
	return false
}

// ensure interface compliance at compile time
var _ Store = (*MemoryStore)(nil)
