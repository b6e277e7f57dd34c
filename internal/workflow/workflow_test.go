package workflow

import (
	stdErrors "errors"
	"strings"
	"testing"

	xerrors "AgentCraft/internal/errors"
)

func TestSanitizeName(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"File Processing Agent", "file-processing-agent"},
		{"  data__sync!! ", "data-sync"},
		{"Already-Clean-Name", "already-clean-name"},
		{"日志清理", ""},
		{"---", ""},
		{"", ""},
	}
	for _, tc := range cases {
		if got := SanitizeName(tc.in); got != tc.want {
			t.Errorf("SanitizeName(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestSanitizeNameIdempotent(t *testing.T) {
	inputs := []string{"File Processing Agent", "a--b__c", strings.Repeat("x", 100)}
	for _, in := range inputs {
		once := SanitizeName(in)
		twice := SanitizeName(once)
		if once != twice {
			t.Errorf("SanitizeName 不幂等: %q -> %q -> %q", in, once, twice)
		}
	}
}

func TestSanitizeNameTruncates(t *testing.T) {
	long := strings.Repeat("a", 80)
	got := SanitizeName(long)
	if len(got) != 63 {
		t.Fatalf("expected 63 chars, got %d", len(got))
	}
}

func TestValidateRejectsInvalidWorkflows(t *testing.T) {
	module := RequiredModule{Name: "fs", Type: ModuleFileSystem}
	cases := []struct {
		name string
		w    *Workflow
	}{
		{"nil workflow", nil},
		{"empty id", &Workflow{Name: "n", RequiredModules: []RequiredModule{module}}},
		{"empty name", &Workflow{ID: "w1", RequiredModules: []RequiredModule{module}}},
		{"no modules", &Workflow{ID: "w1", Name: "n"}},
		{"unsanitizable name", &Workflow{ID: "w1", Name: "!!!", RequiredModules: []RequiredModule{module}}},
	}
	for _, tc := range cases {
		err := tc.w.Validate()
		if err == nil {
			t.Errorf("%s: expected error", tc.name)
			continue
		}
		if xerrors.CodeOf(err) != xerrors.CodeValidation {
			t.Errorf("%s: expected validation code, got %s", tc.name, xerrors.CodeOf(err))
		}
	}
}

func TestCompileMapsModulesToTools(t *testing.T) {
	w := &Workflow{
		ID:   "w1",
		Name: "File Processing Agent",
		RequiredModules: []RequiredModule{
			{Name: "fs", Type: ModuleFileSystem},
			{Name: "mon", Type: ModuleMonitoring},
		},
	}
	graph, err := Compile(w, "agentcraft")
	if err != nil {
		t.Fatalf("compile: %v", err)
	}
	if graph.Primary.Name != "file-processing-agent" {
		t.Fatalf("unexpected primary name %q", graph.Primary.Name)
	}
	if graph.Primary.Namespace != "agentcraft" {
		t.Fatalf("unexpected namespace %q", graph.Primary.Namespace)
	}
	want := []string{"file-reader", "file-writer", "metrics-collector", "alert-manager"}
	if len(graph.Primary.Tools) != len(want) {
		t.Fatalf("expected %d tools, got %v", len(want), graph.Primary.Tools)
	}
	for i, tool := range want {
		if graph.Primary.Tools[i] != tool {
			t.Errorf("tool[%d] = %q, want %q", i, graph.Primary.Tools[i], tool)
		}
	}
	if len(graph.Dependents) != 0 {
		t.Fatalf("内置模块不应产生依赖资源: %+v", graph.Dependents)
	}
}

func TestCompileDeduplicatesTools(t *testing.T) {
	w := &Workflow{
		ID:   "w1",
		Name: "dup",
		RequiredModules: []RequiredModule{
			{Name: "fs1", Type: ModuleFileSystem},
			{Name: "fs2", Type: ModuleFileSystem},
		},
	}
	graph, err := Compile(w, "agentcraft")
	if err != nil {
		t.Fatalf("compile: %v", err)
	}
	if len(graph.Primary.Tools) != 2 {
		t.Fatalf("expected deduplicated tools, got %v", graph.Primary.Tools)
	}
}

func TestCompileSynthesizesCustomTool(t *testing.T) {
	w := &Workflow{
		ID:   "w1",
		Name: "custom agent",
		RequiredModules: []RequiredModule{
			{
				Name:         "Legacy ERP Bridge",
				Type:         ModuleCustomIntegration,
				Endpoint:     "http://erp.internal:9000",
				Capabilities: []string{"erp-sync"},
			},
		},
	}
	graph, err := Compile(w, "agentcraft")
	if err != nil {
		t.Fatalf("compile: %v", err)
	}
	if len(graph.Dependents) != 1 {
		t.Fatalf("expected 1 dependent, got %d", len(graph.Dependents))
	}
	dep := graph.Dependents[0]
	if dep.Name != "legacy-erp-bridge" {
		t.Errorf("unexpected dependent name %q", dep.Name)
	}
	if dep.Endpoint != "http://erp.internal:9000" {
		t.Errorf("endpoint not carried over: %q", dep.Endpoint)
	}
	if dep.TimeoutSeconds != 30 {
		t.Errorf("expected default timeout 30, got %d", dep.TimeoutSeconds)
	}
	if len(graph.Primary.Tools) != 1 || graph.Primary.Tools[0] != "legacy-erp-bridge" {
		t.Errorf("primary should reference the synthesized tool: %v", graph.Primary.Tools)
	}
}

func TestCompileIsPure(t *testing.T) {
	w := &Workflow{
		ID:   "w1",
		Name: "pure agent",
		RequiredModules: []RequiredModule{
			{Name: "fs", Type: ModuleFileSystem},
		},
		Steps: []Step{{Name: "scan", Description: "scan files"}},
	}
	first, err := Compile(w, "agentcraft")
	if err != nil {
		t.Fatalf("compile: %v", err)
	}
	second, err := Compile(w, "agentcraft")
	if err != nil {
		t.Fatalf("compile: %v", err)
	}
	if first.Primary.Name != second.Primary.Name ||
		first.Primary.Description != second.Primary.Description ||
		len(first.Primary.Tools) != len(second.Primary.Tools) {
		t.Fatalf("两次编译结果不一致")
	}
	if !strings.Contains(first.Primary.Description, "1. scan") {
		t.Errorf("description should embed numbered steps: %q", first.Primary.Description)
	}
}

func TestMatchIsAdvisory(t *testing.T) {
	modules := []RequiredModule{
		{Name: "fs", Type: ModuleFileSystem, Keywords: []string{"file"}},
		{Name: "exotic", Type: ModuleCustomIntegration, Keywords: []string{"quantum"}},
	}
	report := Match(modules, []string{"file-reader", "metrics-collector"})
	if report.AllAvailable {
		t.Fatalf("expected AllAvailable=false")
	}
	if len(report.Modules) != 2 {
		t.Fatalf("expected 2 module reports, got %d", len(report.Modules))
	}
	if !report.Modules[0].Available {
		t.Errorf("file-system module should match file-reader")
	}
	if report.Modules[1].Available {
		t.Errorf("custom module should not match")
	}
}

func TestMatchEmptyCatalog(t *testing.T) {
	report := Match([]RequiredModule{{Name: "fs", Type: ModuleFileSystem}}, nil)
	if report.AllAvailable {
		t.Fatalf("空目录不应整体可用")
	}
}

func TestValidationErrorIsTyped(t *testing.T) {
	err := (&Workflow{}).Validate()
	var typed *xerrors.Error
	if !stdErrors.As(err, &typed) {
		t.Fatalf("expected *xerrors.Error, got %T", err)
	}
}
