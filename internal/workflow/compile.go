package workflow

import (
	"fmt"
	"strings"

	xerrors "AgentCraft/internal/errors"
	"AgentCraft/internal/runtime"
)

// maxResourceNameLength 是目标平台对资源名称长度的上限。
const maxResourceNameLength = 63

// ResourceGraph 是一次部署尝试编译出的资源图，生成后不可变。
type ResourceGraph struct {
	Primary    runtime.AgentResource
	Dependents []runtime.ToolResource
}

// moduleToolTable 是模块类型到工具引用的封闭映射。
// 未识别的类型进入显式的兜底分支，不会被静默丢弃。
var moduleToolTable = map[ModuleType][]string{
	ModuleFileSystem:       {"file-reader", "file-writer"},
	ModuleOrchestrationOps: {"control-plane-client", "log-reader", "status-reader"},
	ModuleCoding:           {"code-analyzer", "code-generator"},
	ModuleMonitoring:       {"metrics-collector", "alert-manager"},
}

// Compile 将工作流编译为可部署的资源图：一个主资源与零个或多个依赖资源。
// 编译是纯函数，相同输入产生相同形状的资源图。
func Compile(w *Workflow, namespace string) (*ResourceGraph, error) {
	if err := w.Validate(); err != nil {
		return nil, err
	}

	name := SanitizeName(w.Name)
	if name == "" {
		return nil, xerrors.New(xerrors.CodeValidation, "workflow name 无法转换为合法的资源名称")
	}

	graph := &ResourceGraph{
		Primary: runtime.AgentResource{
			Name:        name,
			Namespace:   namespace,
			Description: buildDescription(w),
			Labels: map[string]string{
				"app":                  name,
				"craft.io/workflow-id": w.ID,
			},
		},
	}

	seen := make(map[string]struct{})
	for _, module := range w.RequiredModules {
		for _, tool := range toolRefs(module) {
			if _, ok := seen[tool]; ok {
				continue
			}
			seen[tool] = struct{}{}
			graph.Primary.Tools = append(graph.Primary.Tools, tool)
		}

		if module.Type == ModuleCustomIntegration {
			graph.Dependents = append(graph.Dependents, synthesizeTool(module, name, namespace))
		}
	}

	return graph, nil
}

// toolRefs 将一个模块映射为工具引用集合。
func toolRefs(module RequiredModule) []string {
	if tools, ok := moduleToolTable[module.Type]; ok {
		return tools
	}
	// custom-integration 与未识别的类型都以模块自身派生工具名。
	derived := SanitizeName(module.Name)
	if derived == "" {
		derived = SanitizeName(string(module.Type))
	}
	if derived == "" {
		return nil
	}
	return []string{derived}
}

// synthesizeTool 为 custom 模块合成一个依赖的工具资源。
func synthesizeTool(module RequiredModule, agentName, namespace string) runtime.ToolResource {
	name := SanitizeName(module.Name)
	if name == "" {
		name = SanitizeName(string(module.Type))
	}
	timeout := module.TimeoutSeconds
	if timeout <= 0 {
		timeout = 30
	}
	return runtime.ToolResource{
		Name:           name,
		Namespace:      namespace,
		Description:    fmt.Sprintf("custom integration for agent %s", agentName),
		Endpoint:       module.Endpoint,
		TimeoutSeconds: timeout,
		Capabilities:   append([]string(nil), module.Capabilities...),
		Labels: map[string]string{
			"app":            agentName,
			"craft.io/owner": agentName,
		},
	}
}

// buildDescription 将能力清单与有序步骤内嵌到主资源描述中，
// 使下游执行器无需其它上下文即可执行。
func buildDescription(w *Workflow) string {
	var b strings.Builder
	if w.Description != "" {
		b.WriteString(w.Description)
		b.WriteString("\n\n")
	}
	b.WriteString("Capabilities:\n")
	for _, module := range w.RequiredModules {
		b.WriteString(fmt.Sprintf("- %s (%s)", module.Name, module.Type))
		if len(module.Capabilities) > 0 {
			b.WriteString(": ")
			b.WriteString(strings.Join(module.Capabilities, ", "))
		}
		b.WriteString("\n")
	}
	if len(w.Steps) > 0 {
		b.WriteString("\nSteps:\n")
		for i, step := range w.Steps {
			b.WriteString(fmt.Sprintf("%d. %s", i+1, step.Name))
			if step.Description != "" {
				b.WriteString(" - ")
				b.WriteString(step.Description)
			}
			b.WriteString("\n")
		}
	}
	return b.String()
}

// SanitizeName 从任意字符串派生运行时安全的资源名称：
// 小写化，非法字符折叠为单个分隔符，去掉首尾分隔符并截断到平台上限。
// 该函数是幂等的。
func SanitizeName(raw string) string {
	lowered := strings.ToLower(strings.TrimSpace(raw))

	var b strings.Builder
	lastDash := false
	for _, r := range lowered {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
			lastDash = false
		default:
			if !lastDash && b.Len() > 0 {
				b.WriteByte('-')
				lastDash = true
			}
		}
	}

	name := strings.Trim(b.String(), "-")
	if len(name) > maxResourceNameLength {
		name = strings.Trim(name[:maxResourceNameLength], "-")
	}
	return name
}
