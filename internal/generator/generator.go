package generator

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"

	xerrors "AgentCraft/internal/errors"
	"AgentCraft/internal/orchestrator"
	"AgentCraft/internal/task"
	"AgentCraft/internal/workflow"
)

// Action 表示从自然语言请求中识别出的操作类型。
type Action string

const (
	ActionDeploy Action = "deploy"
	ActionDelete Action = "delete"
	ActionStatus Action = "status"
)

// Intent 是自然语言请求解析后的结构化意图。
type Intent struct {
	Action    Action
	AgentName string
	Modules   []workflow.RequiredModule
}

// moduleHints 将输入中的关键词映射到能力模块。顺序即优先级。
var moduleHints = []struct {
	moduleType   workflow.ModuleType
	name         string
	capabilities []string
	keywords     []string
}{
	{
		moduleType:   workflow.ModuleFileSystem,
		name:         "file-system",
		capabilities: []string{"file-read", "file-write"},
		keywords:     []string{"file", "document", "directory", "文件", "文档"},
	},
	{
		moduleType:   workflow.ModuleOrchestrationOps,
		name:         "orchestration-ops",
		capabilities: []string{"control-plane", "log-read", "status-read"},
		keywords:     []string{"cluster", "kubernetes", "pod", "deployment", "运维", "集群"},
	},
	{
		moduleType:   workflow.ModuleCoding,
		name:         "coding",
		capabilities: []string{"code-analyze", "code-generate"},
		keywords:     []string{"code", "program", "refactor", "代码", "编程"},
	},
	{
		moduleType:   workflow.ModuleMonitoring,
		name:         "monitoring",
		capabilities: []string{"metrics", "alerts"},
		keywords:     []string{"monitor", "metric", "alert", "监控", "告警"},
	},
}

// stopwords 在推导智能体名称时被忽略。
var stopwords = map[string]struct{}{
	"a": {}, "an": {}, "the": {}, "please": {}, "new": {},
	"create": {}, "deploy": {}, "build": {}, "make": {},
	"delete": {}, "remove": {}, "status": {}, "of": {}, "for": {}, "me": {},
}

// ParseIntent 将自然语言输入解析为结构化意图。
// 解析是确定性的关键词匹配，识别不出任何能力模块时返回校验错误。
func ParseIntent(input string) (*Intent, error) {
	trimmed := strings.TrimSpace(input)
	if trimmed == "" {
		return nil, xerrors.New(xerrors.CodeValidation, "输入不能为空")
	}
	lowered := strings.ToLower(trimmed)

	intent := &Intent{Action: ActionDeploy}
	switch {
	case containsAny(lowered, "delete", "remove", "tear down", "删除", "移除"):
		intent.Action = ActionDelete
	case containsAny(lowered, "status", "state of", "状态"):
		intent.Action = ActionStatus
	}

	for _, hint := range moduleHints {
		if !containsAny(lowered, hint.keywords...) {
			continue
		}
		intent.Modules = append(intent.Modules, workflow.RequiredModule{
			Name:         hint.name,
			Type:         hint.moduleType,
			Capabilities: append([]string(nil), hint.capabilities...),
			Keywords:     append([]string(nil), hint.keywords...),
		})
	}

	intent.AgentName = deriveAgentName(lowered)

	if intent.Action == ActionDeploy {
		if len(intent.Modules) == 0 {
			return nil, xerrors.New(xerrors.CodeValidation, "无法从输入中识别所需的能力模块")
		}
		if intent.AgentName == "" {
			return nil, xerrors.New(xerrors.CodeValidation, "无法从输入中推导智能体名称")
		}
	}
	return intent, nil
}

// deriveAgentName 取输入中的有效词推导资源名，最多四个词。
func deriveAgentName(lowered string) string {
	fields := strings.Fields(lowered)
	kept := make([]string, 0, 4)
	for _, field := range fields {
		token := workflow.SanitizeName(field)
		if token == "" {
			continue
		}
		if _, ok := stopwords[token]; ok {
			continue
		}
		kept = append(kept, token)
		if len(kept) == 4 {
			break
		}
	}
	return workflow.SanitizeName(strings.Join(kept, "-"))
}

func containsAny(haystack string, needles ...string) bool {
	for _, needle := range needles {
		if strings.Contains(haystack, needle) {
			return true
		}
	}
	return false
}

// Generator 把自然语言请求转换为工作流并交给部署事务管理器执行。
// 它实现 task.Executor，是任务处理器与编排层之间的桥梁。
type Generator struct {
	manager *orchestrator.Manager
}

// New 创建 Generator。
func New(manager *orchestrator.Manager) *Generator {
	return &Generator{manager: manager}
}

// Execute 实现 task.Executor。
func (g *Generator) Execute(ctx context.Context, req task.Request, progress task.ProgressFunc) (*task.ExecutionResult, error) {
	if g == nil || g.manager == nil {
		return nil, xerrors.New(xerrors.CodeNotInitialized, "未配置部署管理器")
	}
	report := func(name string) {
		if progress != nil {
			progress(name)
		}
	}

	report("parse-intent")
	intent, err := ParseIntent(req.Input)
	if err != nil {
		return nil, err
	}

	switch intent.Action {
	case ActionDelete:
		return g.executeDelete(ctx, req, intent, report)
	case ActionStatus:
		return g.executeStatus(ctx, req, intent, report)
	default:
		return g.executeDeploy(ctx, req, intent, report)
	}
}

func (g *Generator) executeDeploy(ctx context.Context, req task.Request, intent *Intent, report task.ProgressFunc) (*task.ExecutionResult, error) {
	report("build-workflow")
	wf := &workflow.Workflow{
		ID:              uuid.NewString(),
		Name:            intent.AgentName,
		Description:     req.Input,
		RequiredModules: intent.Modules,
	}

	report("deploy-resources")
	record, err := g.manager.Deploy(ctx, wf)
	if err != nil {
		return nil, err
	}
	return &task.ExecutionResult{
		AgentID:    record.AgentID,
		WorkflowID: record.WorkflowID,
		Reply:      fmt.Sprintf("智能体 %s 已开始部署，共创建 %d 个资源", record.AgentID, len(record.CreatedResources)),
	}, nil
}

func (g *Generator) executeDelete(ctx context.Context, req task.Request, intent *Intent, report task.ProgressFunc) (*task.ExecutionResult, error) {
	agentID := req.AgentID
	if agentID == "" {
		agentID = intent.AgentName
	}
	if agentID == "" {
		return nil, xerrors.New(xerrors.CodeValidation, "删除请求必须指定智能体")
	}
	report("delete-agent")
	if err := g.manager.Delete(ctx, agentID); err != nil {
		return nil, err
	}
	return &task.ExecutionResult{
		AgentID: agentID,
		Reply:   fmt.Sprintf("智能体 %s 已删除", agentID),
	}, nil
}

func (g *Generator) executeStatus(ctx context.Context, req task.Request, intent *Intent, report task.ProgressFunc) (*task.ExecutionResult, error) {
	agentID := req.AgentID
	if agentID == "" {
		agentID = intent.AgentName
	}
	if agentID == "" {
		return nil, xerrors.New(xerrors.CodeValidation, "状态查询必须指定智能体")
	}
	report("query-status")
	view, err := g.manager.Get(ctx, agentID)
	if err != nil {
		return nil, err
	}
	if view == nil {
		return nil, orchestrator.ErrAgentNotFound
	}
	reply := fmt.Sprintf("智能体 %s 当前状态为 %s", view.AgentID, view.Status)
	if view.Error != "" {
		reply += fmt.Sprintf("（实时状态查询失败：%s）", view.Error)
	}
	return &task.ExecutionResult{
		AgentID:      view.AgentID,
		WorkflowID:   view.WorkflowID,
		Reply:        reply,
		Observations: string(view.Phase),
	}, nil
}

// ensure interface compliance at compile time
var _ task.Executor = (*Generator)(nil)
