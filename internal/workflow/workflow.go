package workflow

import (
	"strings"

	xerrors "AgentCraft/internal/errors"
)

// ModuleType 表示工作流声明的能力模块类型。
type ModuleType string

const (
	ModuleFileSystem        ModuleType = "file-system"
	ModuleOrchestrationOps  ModuleType = "orchestration-ops"
	ModuleCoding            ModuleType = "coding"
	ModuleMonitoring        ModuleType = "monitoring"
	ModuleCustomIntegration ModuleType = "custom-integration"
)

// RequiredModule 描述工作流所需的一个能力模块。
type RequiredModule struct {
	Name           string     `json:"name"`
	Type           ModuleType `json:"type"`
	Capabilities   []string   `json:"capabilities,omitempty"`
	Keywords       []string   `json:"keywords,omitempty"`
	Endpoint       string     `json:"endpoint,omitempty"`
	TimeoutSeconds int        `json:"timeout_seconds,omitempty"`
}

// Step 描述工作流中的一个有序执行步骤。
type Step struct {
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
}

// Workflow 是提交部署的抽象智能体描述。
type Workflow struct {
	ID              string           `json:"id"`
	Name            string           `json:"name"`
	Description     string           `json:"description,omitempty"`
	RequiredModules []RequiredModule `json:"required_modules"`
	Steps           []Step           `json:"steps,omitempty"`
}

// Validate 校验工作流的结构不变式。校验失败不会产生任何副作用。
func (w *Workflow) Validate() error {
	if w == nil {
		return xerrors.New(xerrors.CodeValidation, "workflow 不能为空")
	}
	if strings.TrimSpace(w.ID) == "" {
		return xerrors.New(xerrors.CodeValidation, "workflow id 不能为空")
	}
	if strings.TrimSpace(w.Name) == "" {
		return xerrors.New(xerrors.CodeValidation, "workflow name 不能为空")
	}
	if len(w.RequiredModules) == 0 {
		return xerrors.New(xerrors.CodeValidation, "workflow 至少需要一个能力模块")
	}
	if SanitizeName(w.Name) == "" {
		return xerrors.New(xerrors.CodeValidation, "workflow name 无法转换为合法的资源名称")
	}
	return nil
}
