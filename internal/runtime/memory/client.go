package memory

import (
	"context"
	"fmt"
	"sync"

	xerrors "AgentCraft/internal/errors"
	"AgentCraft/internal/runtime"
)

// Client 是 runtime.Client 的纯内存实现，用于测试与本地开发。
// 通过 FailToolCreate/FailAgentCreate 等注入点可以模拟运行时故障。
type Client struct {
	mu         sync.Mutex
	agents     map[string]runtime.AgentResource
	tools      map[string]runtime.ToolResource
	namespaces []string
	crds       []string
	workloads  map[string][]runtime.PodInfo

	failToolCreate  map[string]error
	failAgentCreate map[string]error
	lookupErr       error

	journal []string
}

// Option 定义可选配置。
type Option func(*Client)

// WithNamespaces 预置集群中已存在的命名空间。
func WithNamespaces(names ...string) Option {
	return func(c *Client) {
		c.namespaces = append(c.namespaces, names...)
	}
}

// WithCRDs 预置集群中已安装的 CRD。
func WithCRDs(names ...string) Option {
	return func(c *Client) {
		c.crds = append(c.crds, names...)
	}
}

// WithWorkload 预置一个独立于智能体的工作负载，常用于模拟控制器。
func WithWorkload(name string, pods ...runtime.PodInfo) Option {
	return func(c *Client) {
		if len(pods) == 0 {
			pods = []runtime.PodInfo{{Name: name + "-0", Phase: runtime.PhaseRunning, Ready: true}}
		}
		c.workloads[name] = pods
	}
}

// NewClient 创建内存运行时客户端。
func NewClient(opts ...Option) *Client {
	c := &Client{
		agents:          make(map[string]runtime.AgentResource),
		tools:           make(map[string]runtime.ToolResource),
		failToolCreate:  make(map[string]error),
		failAgentCreate: make(map[string]error),
		workloads:       make(map[string][]runtime.PodInfo),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(c)
		}
	}
	return c
}

// FailToolCreate 注入指定工具的创建失败。
func (c *Client) FailToolCreate(name string, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.failToolCreate[name] = err
}

// FailAgentCreate 注入指定智能体的创建失败。
func (c *Client) FailAgentCreate(name string, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.failAgentCreate[name] = err
}

// FailLookups 注入所有查询操作的失败。
func (c *Client) FailLookups(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.lookupErr = err
}

// Journal 返回按发生顺序记录的资源操作，供测试断言回滚顺序。
func (c *Client) Journal() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	journal := make([]string, len(c.journal))
	copy(journal, c.journal)
	return journal
}

func key(namespace, name string) string {
	return namespace + "/" + name
}

// CreateAgent 实现 runtime.Client 接口。
func (c *Client) CreateAgent(_ context.Context, agent runtime.AgentResource) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err, ok := c.failAgentCreate[agent.Name]; ok {
		return err
	}
	if _, ok := c.agents[key(agent.Namespace, agent.Name)]; ok {
		return xerrors.New(xerrors.CodeConflict, fmt.Sprintf("agent %s 已存在", agent.Name))
	}
	agent.Phase = runtime.PhaseRunning
	c.agents[key(agent.Namespace, agent.Name)] = agent
	c.journal = append(c.journal, "create agent/"+agent.Name)
	return nil
}

// GetAgent 实现 runtime.Client 接口。
func (c *Client) GetAgent(_ context.Context, namespace, name string) (*runtime.AgentResource, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.lookupErr != nil {
		return nil, c.lookupErr
	}
	agent, ok := c.agents[key(namespace, name)]
	if !ok {
		return nil, xerrors.New(xerrors.CodeNotFound, fmt.Sprintf("agent %s 不存在", name))
	}
	clone := agent
	return &clone, nil
}

// DeleteAgent 实现 runtime.Client 接口。
func (c *Client) DeleteAgent(_ context.Context, namespace, name string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.agents[key(namespace, name)]; !ok {
		return xerrors.New(xerrors.CodeNotFound, fmt.Sprintf("agent %s 不存在", name))
	}
	delete(c.agents, key(namespace, name))
	c.journal = append(c.journal, "delete agent/"+name)
	return nil
}

// ListAgents 实现 runtime.Client 接口。
func (c *Client) ListAgents(_ context.Context, namespace string) ([]runtime.AgentResource, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.lookupErr != nil {
		return nil, c.lookupErr
	}
	agents := make([]runtime.AgentResource, 0, len(c.agents))
	for _, agent := range c.agents {
		if agent.Namespace == namespace {
			agents = append(agents, agent)
		}
	}
	return agents, nil
}

// CreateTool 实现 runtime.Client 接口。
func (c *Client) CreateTool(_ context.Context, tool runtime.ToolResource) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err, ok := c.failToolCreate[tool.Name]; ok {
		return err
	}
	if _, ok := c.tools[key(tool.Namespace, tool.Name)]; ok {
		return xerrors.New(xerrors.CodeConflict, fmt.Sprintf("tool %s 已存在", tool.Name))
	}
	tool.Phase = runtime.PhaseRunning
	c.tools[key(tool.Namespace, tool.Name)] = tool
	c.journal = append(c.journal, "create tool/"+tool.Name)
	return nil
}

// GetTool 实现 runtime.Client 接口。
func (c *Client) GetTool(_ context.Context, namespace, name string) (*runtime.ToolResource, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.lookupErr != nil {
		return nil, c.lookupErr
	}
	tool, ok := c.tools[key(namespace, name)]
	if !ok {
		return nil, xerrors.New(xerrors.CodeNotFound, fmt.Sprintf("tool %s 不存在", name))
	}
	clone := tool
	return &clone, nil
}

// DeleteTool 实现 runtime.Client 接口。
func (c *Client) DeleteTool(_ context.Context, namespace, name string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.tools[key(namespace, name)]; !ok {
		return xerrors.New(xerrors.CodeNotFound, fmt.Sprintf("tool %s 不存在", name))
	}
	delete(c.tools, key(namespace, name))
	c.journal = append(c.journal, "delete tool/"+name)
	return nil
}

// ListTools 实现 runtime.Client 接口。
func (c *Client) ListTools(_ context.Context, namespace string) ([]runtime.ToolResource, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.lookupErr != nil {
		return nil, c.lookupErr
	}
	tools := make([]runtime.ToolResource, 0, len(c.tools))
	for _, tool := range c.tools {
		if tool.Namespace == namespace {
			tools = append(tools, tool)
		}
	}
	return tools, nil
}

// ListAgentPods 为每个存在的智能体模拟一个 Running 状态的工作负载。
func (c *Client) ListAgentPods(_ context.Context, namespace, agentName string) ([]runtime.PodInfo, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.lookupErr != nil {
		return nil, c.lookupErr
	}
	if pods, ok := c.workloads[agentName]; ok {
		clone := make([]runtime.PodInfo, len(pods))
		copy(clone, pods)
		return clone, nil
	}
	if _, ok := c.agents[key(namespace, agentName)]; !ok {
		return nil, nil
	}
	return []runtime.PodInfo{{
		Name:  agentName + "-0",
		Phase: runtime.PhaseRunning,
		Ready: true,
	}}, nil
}

// ListNamespaces 实现 runtime.Client 接口。
func (c *Client) ListNamespaces(_ context.Context) ([]string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.lookupErr != nil {
		return nil, c.lookupErr
	}
	names := make([]string, len(c.namespaces))
	copy(names, c.namespaces)
	return names, nil
}

// ListCRDs 实现 runtime.Client 接口。
func (c *Client) ListCRDs(_ context.Context) ([]string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.lookupErr != nil {
		return nil, c.lookupErr
	}
	names := make([]string, len(c.crds))
	copy(names, c.crds)
	return names, nil
}

// Close 对内存实现无需操作。
func (c *Client) Close() {}

// ensure interface compliance at compile time
var _ runtime.Client = (*Client)(nil)
