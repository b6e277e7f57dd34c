package runtime

import "context"

// Phase 表示运行时资源或工作负载所处的生命周期阶段。
type Phase string

const (
	PhasePending Phase = "Pending"
	PhaseRunning Phase = "Running"
	PhaseFailed  Phase = "Failed"
	PhaseUnknown Phase = "Unknown"
)

// AgentResource 描述运行时中的智能体自定义资源。
// Description 内嵌了完整的能力清单与执行步骤，下游执行器无需额外上下文。
type AgentResource struct {
	Name        string            `json:"name"`
	Namespace   string            `json:"namespace"`
	Description string            `json:"description"`
	Tools       []string          `json:"tools,omitempty"`
	Labels      map[string]string `json:"labels,omitempty"`
	Phase       Phase             `json:"phase,omitempty"`
}

// ToolResource 描述运行时中的工具自定义资源。
type ToolResource struct {
	Name           string            `json:"name"`
	Namespace      string            `json:"namespace"`
	Description    string            `json:"description"`
	Endpoint       string            `json:"endpoint,omitempty"`
	TimeoutSeconds int               `json:"timeout_seconds,omitempty"`
	Capabilities   []string          `json:"capabilities,omitempty"`
	Labels         map[string]string `json:"labels,omitempty"`
	Phase          Phase             `json:"phase,omitempty"`
}

// PodInfo 汇总一个工作负载实例的健康状况。
type PodInfo struct {
	Name  string `json:"name"`
	Phase Phase  `json:"phase"`
	Ready bool   `json:"ready"`
}

// Client 定义了所有运行时实现必须提供的统一接口，
// 上层组件通过该接口对不同的编排平台进行资源操作。
type Client interface {
	CreateAgent(ctx context.Context, agent AgentResource) error
	GetAgent(ctx context.Context, namespace, name string) (*AgentResource, error)
	DeleteAgent(ctx context.Context, namespace, name string) error
	ListAgents(ctx context.Context, namespace string) ([]AgentResource, error)

	CreateTool(ctx context.Context, tool ToolResource) error
	GetTool(ctx context.Context, namespace, name string) (*ToolResource, error)
	DeleteTool(ctx context.Context, namespace, name string) error
	ListTools(ctx context.Context, namespace string) ([]ToolResource, error)

	ListAgentPods(ctx context.Context, namespace, agentName string) ([]PodInfo, error)
	ListNamespaces(ctx context.Context) ([]string, error)
	ListCRDs(ctx context.Context) ([]string, error)

	Close()
}
