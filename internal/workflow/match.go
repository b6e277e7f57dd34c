package workflow

import "strings"

// ModuleMatch 记录单个模块与平台工具目录的匹配结果。
type ModuleMatch struct {
	Module    RequiredModule `json:"module"`
	Available bool           `json:"available"`
	Tools     []string       `json:"tools,omitempty"`
}

// MatchReport 汇总整个工作流的能力匹配情况。匹配结果仅供参考，
// 从不阻断部署。
type MatchReport struct {
	Modules      []ModuleMatch `json:"modules"`
	AllAvailable bool          `json:"all_available"`
}

// Match 将所需模块与平台公告的工具目录进行匹配：
// 模块类型与工具名互为子串，或任一关键字是工具名的子串，即视为可用。
func Match(modules []RequiredModule, toolNames []string) MatchReport {
	report := MatchReport{AllAvailable: true}
	for _, module := range modules {
		match := ModuleMatch{Module: module}
		for _, tool := range toolNames {
			if moduleMatchesTool(module, tool) {
				match.Available = true
				match.Tools = append(match.Tools, tool)
			}
		}
		if !match.Available {
			report.AllAvailable = false
		}
		report.Modules = append(report.Modules, match)
	}
	return report
}

func moduleMatchesTool(module RequiredModule, tool string) bool {
	tool = strings.ToLower(tool)
	typeToken := strings.ToLower(string(module.Type))
	if typeToken != "" && (strings.Contains(tool, typeToken) || strings.Contains(typeToken, tool)) {
		return true
	}
	for _, keyword := range module.Keywords {
		keyword = strings.ToLower(strings.TrimSpace(keyword))
		if keyword != "" && strings.Contains(tool, keyword) {
			return true
		}
	}
	return false
}
