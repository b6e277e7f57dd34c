package orchestrator

import (
	"context"
	stdErrors "errors"
	"log/slog"
	"time"

	"AgentCraft/internal/catalog"
	xerrors "AgentCraft/internal/errors"
	"AgentCraft/internal/observability/alerting"
	"AgentCraft/internal/observability/metrics"
	"AgentCraft/internal/runtime"
	"AgentCraft/internal/workflow"
	"AgentCraft/pkg/logger"
)

// Manager 是部署事务管理器：将工作流编译为资源图并逐个资源应用，
// 任一创建失败时按创建顺序的逆序回滚已创建的资源。
type Manager struct {
	client    runtime.Client
	registry  Registry
	namespace string
	catalog   *catalog.Cache
	metrics   *metrics.Collector
	alerter   alerting.Dispatcher
}

// Option 定义可选的 Manager 配置。
type Option func(*Manager)

// WithCatalog 注入能力目录，用于部署前的参考性匹配。
func WithCatalog(cache *catalog.Cache) Option {
	return func(m *Manager) {
		m.catalog = cache
	}
}

// WithMetrics 注入指标收集器。
func WithMetrics(collector *metrics.Collector) Option {
	return func(m *Manager) {
		m.metrics = collector
	}
}

// WithAlertDispatcher 注入告警派发器。
func WithAlertDispatcher(dispatcher alerting.Dispatcher) Option {
	return func(m *Manager) {
		m.alerter = dispatcher
	}
}

// NewManager 创建部署事务管理器。
func NewManager(client runtime.Client, registry Registry, namespace string, opts ...Option) *Manager {
	m := &Manager{
		client:    client,
		registry:  registry,
		namespace: namespace,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(m)
		}
	}
	return m
}

// Deploy 部署一个工作流并返回部署记录。
//
// 校验失败不会触碰运行时；依赖资源先于主资源创建；
// 任一创建失败后，已创建的资源按逆序尽力删除，删除失败只记录日志，
// 最终重新抛出的始终是最初的创建错误。
func (m *Manager) Deploy(ctx context.Context, w *workflow.Workflow) (*DeploymentRecord, error) {
	started := time.Now()

	if err := w.Validate(); err != nil {
		m.metrics.ObserveDeployment("invalid", time.Since(started))
		return nil, err
	}

	graph, err := workflow.Compile(w, m.namespace)
	if err != nil {
		m.metrics.ObserveDeployment("invalid", time.Since(started))
		return nil, err
	}

	// 能力匹配仅供参考，从不阻断部署。
	if m.catalog != nil {
		report := workflow.Match(w.RequiredModules, m.catalog.Snapshot().ToolNames())
		if !report.AllAvailable {
			logger.L().Warn("部分能力模块在工具目录中未找到匹配",
				slog.String("workflow_id", w.ID),
				slog.String("agent", graph.Primary.Name),
			)
		}
	}

	applied := make([]CreatedResource, 0, len(graph.Dependents)+1)

	for _, tool := range graph.Dependents {
		if err := m.client.CreateTool(ctx, tool); err != nil {
			m.rollback(ctx, applied, graph.Primary.Name)
			m.metrics.ObserveDeployment("failed", time.Since(started))
			return nil, xerrors.Wrap(CodeDeployment, err, "创建依赖工具 "+tool.Name+" 失败")
		}
		applied = append(applied, CreatedResource{Kind: KindTool, Name: tool.Name})
	}

	if err := m.client.CreateAgent(ctx, graph.Primary); err != nil {
		m.rollback(ctx, applied, graph.Primary.Name)
		m.metrics.ObserveDeployment("failed", time.Since(started))
		return nil, xerrors.Wrap(CodeDeployment, err, "创建主资源 "+graph.Primary.Name+" 失败")
	}
	applied = append(applied, CreatedResource{Kind: KindAgent, Name: graph.Primary.Name})

	record := &DeploymentRecord{
		WorkflowID:       w.ID,
		AgentID:          graph.Primary.Name,
		RuntimeName:      graph.Primary.Name,
		Namespace:        m.namespace,
		Status:           StatusDeploying,
		CreatedResources: applied,
	}
	if err := m.registry.Create(ctx, record); err != nil {
		m.rollback(ctx, applied, graph.Primary.Name)
		m.metrics.ObserveDeployment("failed", time.Since(started))
		return nil, err
	}

	m.metrics.ObserveDeployment("success", time.Since(started))
	logger.Audit().Info("智能体部署已发起",
		slog.String("agent_id", record.AgentID),
		slog.String("workflow_id", w.ID),
		slog.Int("resources", len(applied)),
	)
	return record, nil
}

// rollback 按创建顺序的逆序尽力删除已创建的资源。
// 单个删除失败只记录日志，既不中断后续回滚，也不向上传播。
func (m *Manager) rollback(ctx context.Context, applied []CreatedResource, agentName string) {
	if len(applied) == 0 {
		return
	}
	m.metrics.IncRollback()
	incomplete := false
	for i := len(applied) - 1; i >= 0; i-- {
		res := applied[i]
		var err error
		switch res.Kind {
		case KindAgent:
			err = m.client.DeleteAgent(ctx, m.namespace, res.Name)
		case KindTool:
			err = m.client.DeleteTool(ctx, m.namespace, res.Name)
		}
		if err != nil {
			incomplete = true
			logger.L().Error("回滚删除资源失败",
				slog.String("kind", string(res.Kind)),
				slog.String("name", res.Name),
				slog.Any("error", err),
			)
		}
	}
	if incomplete {
		m.emitAlert(ctx, agentName, xerrors.CodeRollback, "部署失败且回滚未完全，存在残留资源")
		return
	}
	m.emitAlert(ctx, agentName, CodeDeployment, "部署失败，已执行回滚")
}

// Get 返回部署记录与实时状态的合并视图。
// 未知的 agentID 返回 (nil, nil)，实时状态查询失败会降级为
// 带 error 注解的最后已知记录，从不返回错误。
func (m *Manager) Get(ctx context.Context, agentID string) (*AgentView, error) {
	record, err := m.registry.Get(ctx, agentID)
	if err != nil {
		if stdErrors.Is(err, ErrAgentNotFound) {
			return nil, nil
		}
		return nil, err
	}
	view := m.merge(ctx, record)
	return view, nil
}

// Delete 删除智能体：先删主资源，再尽力删除其创建的依赖资源，
// 最后移除注册表记录。未知的 agentID 返回 NotFound。
func (m *Manager) Delete(ctx context.Context, agentID string) error {
	record, err := m.registry.Get(ctx, agentID)
	if err != nil {
		return err
	}

	if err := m.client.DeleteAgent(ctx, record.Namespace, record.RuntimeName); err != nil {
		if xerrors.CodeOf(err) != xerrors.CodeNotFound {
			return xerrors.Wrap(xerrors.CodeRuntimeAPI, err, "删除主资源失败")
		}
	}

	for _, res := range record.CreatedResources {
		if res.Kind != KindTool {
			continue
		}
		if err := m.client.DeleteTool(ctx, record.Namespace, res.Name); err != nil {
			logger.L().Warn("删除依赖工具失败",
				slog.String("agent_id", agentID),
				slog.String("tool", res.Name),
				slog.Any("error", err),
			)
		}
	}

	if err := m.registry.Delete(ctx, agentID); err != nil {
		return err
	}
	logger.Audit().Info("智能体已删除", slog.String("agent_id", agentID))
	return nil
}

// List 返回全部部署记录的合并视图，按创建时间降序。
// 单条记录的状态合并失败以 error 字段内嵌，不会阻断整个列表。
func (m *Manager) List(ctx context.Context) ([]*AgentView, error) {
	records, err := m.registry.List(ctx)
	if err != nil {
		return nil, err
	}
	views := make([]*AgentView, 0, len(records))
	for _, record := range records {
		views = append(views, m.merge(ctx, record))
	}
	return views, nil
}

// merge 将部署记录与运行时的实时状态合并为一份点时快照。
func (m *Manager) merge(ctx context.Context, record *DeploymentRecord) *AgentView {
	view := &AgentView{DeploymentRecord: *record}

	agent, err := m.client.GetAgent(ctx, record.Namespace, record.RuntimeName)
	if err != nil {
		view.Status = StatusError
		view.Error = err.Error()
		return view
	}
	view.Phase = agent.Phase
	if agent.Phase == runtime.PhaseRunning {
		view.Status = StatusDeployed
	}

	pods, err := m.client.ListAgentPods(ctx, record.Namespace, record.RuntimeName)
	if err != nil {
		view.Error = err.Error()
		return view
	}
	view.Pods = pods
	return view
}

func (m *Manager) emitAlert(ctx context.Context, agentID string, code xerrors.Code, message string) {
	if m.alerter == nil {
		return
	}
	event := alerting.Event{
		Code:       code,
		Message:    message,
		Severity:   xerrors.AttributesOf(code).Severity,
		AgentID:    agentID,
		OccurredAt: time.Now(),
	}
	if err := m.alerter.Notify(ctx, event); err != nil {
		logger.L().Error("告警通知失败",
			slog.Any("error", err),
			slog.String("agent_id", agentID),
		)
	}
}
