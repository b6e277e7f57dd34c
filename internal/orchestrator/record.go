package orchestrator

import (
	xerrors "AgentCraft/internal/errors"
	"AgentCraft/internal/runtime"
)

// Status 表示部署记录在生命周期中的状态。
type Status string

const (
	StatusDeploying Status = "deploying"
	StatusDeployed  Status = "deployed"
	StatusFailed    Status = "failed"
	StatusDeleted   Status = "deleted"
	// StatusError 仅出现在合并视图中，表示实时状态查询失败。
	StatusError Status = "error"
)

// ResourceKind 区分部署过程中创建的资源种类。
type ResourceKind string

const (
	KindAgent ResourceKind = "agent"
	KindTool  ResourceKind = "tool"
)

// CreatedResource 记录一次部署实际创建的单个资源。
type CreatedResource struct {
	Kind ResourceKind `json:"kind"`
	Name string       `json:"name"`
}

// DeploymentRecord 是一次成功发起的部署的簿记条目，
// 在显式删除之前一直保留在注册表中。
type DeploymentRecord struct {
	WorkflowID       string            `json:"workflow_id"`
	AgentID          string            `json:"agent_id"`
	RuntimeName      string            `json:"runtime_name"`
	Namespace        string            `json:"namespace"`
	Status           Status            `json:"status"`
	CreatedResources []CreatedResource `json:"created_resources"`
	CreatedAt        int64             `json:"created_at"`
	LastUpdated      int64             `json:"last_updated"`
}

// AgentView 是部署记录与实时运行时状态合并后的快照。
type AgentView struct {
	DeploymentRecord
	Phase runtime.Phase     `json:"phase,omitempty"`
	Pods  []runtime.PodInfo `json:"pods,omitempty"`
	Error string            `json:"error,omitempty"`
}

var (
	// ErrAgentNotFound 表示指定的智能体不存在。
	ErrAgentNotFound = xerrors.New(CodeAgentNotFound, "agent not found")
)

const (
	CodeAgentNotFound xerrors.Code = "AGENT_NOT_FOUND"
	CodeDeployment    xerrors.Code = "DEPLOYMENT_FAILED"
)

func init() {
	xerrors.Register(CodeAgentNotFound, xerrors.Attributes{
		Message:   "agent not found",
		Severity:  xerrors.SeverityInfo,
		Retryable: false,
		Alert:     false,
	})
	xerrors.Register(CodeDeployment, xerrors.Attributes{
		Message:   "agent deployment failed",
		Severity:  xerrors.SeverityWarning,
		Retryable: false,
		Alert:     true,
	})
}
