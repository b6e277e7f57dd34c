package task

import (
	xerrors "AgentCraft/internal/errors"
)

// Status 表示任务在生命周期中的状态。
// 状态机：created -> running -> completed | failed，终态不可再变更。
type Status string

const (
	StatusCreated   Status = "created"
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
)

// StepStatus 表示任务内单个阶段的状态。
type StepStatus string

const (
	StepRunning   StepStatus = "running"
	StepCompleted StepStatus = "completed"
	StepFailed    StepStatus = "failed"
)

// Step 记录任务执行过程中的一个阶段。
type Step struct {
	Seq         int        `json:"seq"`
	Name        string     `json:"name"`
	Status      StepStatus `json:"status"`
	StartedAt   int64      `json:"started_at"`
	CompletedAt int64      `json:"completed_at,omitempty"`
	Error       string     `json:"error,omitempty"`
}

// ExecutionResult 保存一次任务执行的结果。
type ExecutionResult struct {
	AgentID      string `json:"agent_id,omitempty"`
	WorkflowID   string `json:"workflow_id,omitempty"`
	Reply        string `json:"reply"`
	Observations string `json:"observations,omitempty"`
}

// Request 描述一次待处理的自然语言请求。
type Request struct {
	ID       string         `json:"id,omitempty"`
	Input    string         `json:"input"`
	Tools    []string       `json:"tools,omitempty"`
	AgentID  string         `json:"agent_id,omitempty"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

// Task 描述了排队执行的部署任务。
type Task struct {
	ID          string           `json:"id"`
	Input       string           `json:"input"`
	Tools       []string         `json:"tools,omitempty"`
	AgentID     string           `json:"agent_id,omitempty"`
	Metadata    map[string]any   `json:"metadata,omitempty"`
	Status      Status           `json:"status"`
	Steps       []Step           `json:"steps,omitempty"`
	LastError   string           `json:"last_error,omitempty"`
	ErrorCode   string           `json:"error_code,omitempty"`
	Result      *ExecutionResult `json:"result,omitempty"`
	CreatedAt   int64            `json:"created_at"`
	UpdatedAt   int64            `json:"updated_at"`
	CompletedAt int64            `json:"completed_at,omitempty"`
}

var (
	// ErrTaskNotFound 表示指定的任务不存在。
	ErrTaskNotFound = xerrors.New(CodeTaskNotFound, "task not found")
	// ErrTaskConflict 表示任务在当前状态下无法进行所请求的操作。
	ErrTaskConflict = xerrors.New(CodeTaskConflict, "task conflict", xerrors.WithSeverity(xerrors.SeverityWarning))
	// ErrTaskFinished 表示任务已经处于终态。
	ErrTaskFinished = xerrors.New(CodeTaskFinished, "task already finished", xerrors.WithSeverity(xerrors.SeverityInfo))
)

const (
	CodeTaskNotFound   xerrors.Code = "TASK_NOT_FOUND"
	CodeTaskConflict   xerrors.Code = "TASK_CONFLICT"
	CodeTaskFinished   xerrors.Code = "TASK_FINISHED"
	CodeTaskValidation xerrors.Code = "TASK_VALIDATION_FAILED"
	CodeTaskPublish    xerrors.Code = "TASK_PUBLISH_FAILED"
	CodeTaskProcessing xerrors.Code = "TASK_PROCESSING_FAILED"
	CodeTaskDeadline   xerrors.Code = "TASK_DEADLINE_EXCEEDED"
)

func init() {
	xerrors.Register(CodeTaskNotFound, xerrors.Attributes{
		Message:   "task not found",
		Severity:  xerrors.SeverityInfo,
		Retryable: false,
		Alert:     false,
	})
	xerrors.Register(CodeTaskConflict, xerrors.Attributes{
		Message:   "task conflict",
		Severity:  xerrors.SeverityWarning,
		Retryable: false,
		Alert:     false,
	})
	xerrors.Register(CodeTaskFinished, xerrors.Attributes{
		Message:   "task already finished",
		Severity:  xerrors.SeverityInfo,
		Retryable: false,
		Alert:     false,
	})
	xerrors.Register(CodeTaskValidation, xerrors.Attributes{
		Message:   "task validation failed",
		Severity:  xerrors.SeverityInfo,
		Retryable: false,
		Alert:     false,
	})
	xerrors.Register(CodeTaskPublish, xerrors.Attributes{
		Message:   "failed to publish task",
		Severity:  xerrors.SeverityCritical,
		Retryable: true,
		Alert:     true,
	})
	xerrors.Register(CodeTaskProcessing, xerrors.Attributes{
		Message:   "task execution failed",
		Severity:  xerrors.SeverityWarning,
		Retryable: false,
		Alert:     true,
	})
	xerrors.Register(CodeTaskDeadline, xerrors.Attributes{
		Message:   "task deadline exceeded",
		Severity:  xerrors.SeverityCritical,
		Retryable: false,
		Alert:     true,
	})
}

func cloneMetadata(metadata map[string]any) map[string]any {
	if metadata == nil {
		return nil
	}
	cloned := make(map[string]any, len(metadata))
	for key, value := range metadata {
		cloned[key] = value
	}
	return cloned
}

// IsValidStatus 检查给定的任务状态是否为支持的枚举值。
func IsValidStatus(status Status) bool {
	switch status {
	case StatusCreated, StatusRunning, StatusCompleted, StatusFailed:
		return true
	default:
		return false
	}
}

// IsTerminal 判断状态是否为终态。
func IsTerminal(status Status) bool {
	return status == StatusCompleted || status == StatusFailed
}
