package generator

import (
	"context"
	stdErrors "errors"
	"testing"

	xerrors "AgentCraft/internal/errors"
	"AgentCraft/internal/orchestrator"
	"AgentCraft/internal/runtime/memory"
	"AgentCraft/internal/task"
	"AgentCraft/internal/workflow"
)

func TestParseIntentDeploy(t *testing.T) {
	intent, err := ParseIntent("create a file processing agent")
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if intent.Action != ActionDeploy {
		t.Fatalf("expected deploy action, got %s", intent.Action)
	}
	if intent.AgentName != "file-processing-agent" {
		t.Fatalf("unexpected agent name %q", intent.AgentName)
	}
	if len(intent.Modules) != 1 || intent.Modules[0].Type != workflow.ModuleFileSystem {
		t.Fatalf("unexpected modules %+v", intent.Modules)
	}
}

func TestParseIntentMultipleModules(t *testing.T) {
	intent, err := ParseIntent("deploy an agent that reads files and monitors cluster metrics")
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	types := make(map[workflow.ModuleType]bool)
	for _, module := range intent.Modules {
		types[module.Type] = true
	}
	for _, want := range []workflow.ModuleType{
		workflow.ModuleFileSystem,
		workflow.ModuleOrchestrationOps,
		workflow.ModuleMonitoring,
	} {
		if !types[want] {
			t.Errorf("missing module %s in %+v", want, intent.Modules)
		}
	}
}

func TestParseIntentActions(t *testing.T) {
	cases := []struct {
		input string
		want  Action
	}{
		{"delete the file agent", ActionDelete},
		{"what is the status of my file agent", ActionStatus},
		{"create a file agent", ActionDeploy},
	}
	for _, tc := range cases {
		intent, err := ParseIntent(tc.input)
		if err != nil {
			t.Fatalf("parse %q: %v", tc.input, err)
		}
		if intent.Action != tc.want {
			t.Errorf("ParseIntent(%q).Action = %s, want %s", tc.input, intent.Action, tc.want)
		}
	}
}

func TestParseIntentRejectsUnrecognizableInput(t *testing.T) {
	_, err := ParseIntent("make me a sandwich")
	if err == nil {
		t.Fatalf("expected validation error")
	}
	if xerrors.CodeOf(err) != xerrors.CodeValidation {
		t.Fatalf("expected validation code, got %s", xerrors.CodeOf(err))
	}
}

func newTestGenerator() (*Generator, *memory.Client) {
	client := memory.NewClient()
	manager := orchestrator.NewManager(client, orchestrator.NewMemoryRegistry(), "agentcraft")
	return New(manager), client
}

func TestExecuteDeployProducesAgent(t *testing.T) {
	gen, client := newTestGenerator()

	var steps []string
	result, err := gen.Execute(context.Background(), task.Request{
		Input: "create a file processing agent",
	}, func(name string) {
		steps = append(steps, name)
	})
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	if result.AgentID != "file-processing-agent" {
		t.Fatalf("unexpected agent id %q", result.AgentID)
	}
	if result.Reply == "" {
		t.Fatalf("reply must not be empty")
	}

	// 阶段按固定顺序上报。
	want := []string{"parse-intent", "build-workflow", "deploy-resources"}
	if len(steps) != len(want) {
		t.Fatalf("unexpected steps %v", steps)
	}
	for i, name := range want {
		if steps[i] != name {
			t.Fatalf("steps[%d] = %q, want %q", i, steps[i], name)
		}
	}

	if _, err := client.GetAgent(context.Background(), "agentcraft", "file-processing-agent"); err != nil {
		t.Fatalf("agent resource missing in runtime: %v", err)
	}
}

func TestExecuteDeleteAgent(t *testing.T) {
	gen, _ := newTestGenerator()
	ctx := context.Background()

	if _, err := gen.Execute(ctx, task.Request{Input: "create a file processing agent"}, nil); err != nil {
		t.Fatalf("deploy: %v", err)
	}

	result, err := gen.Execute(ctx, task.Request{
		Input:   "delete this agent",
		AgentID: "file-processing-agent",
	}, nil)
	if err != nil {
		t.Fatalf("delete: %v", err)
	}
	if result.AgentID != "file-processing-agent" {
		t.Fatalf("unexpected result %+v", result)
	}
}

func TestExecuteStatusUnknownAgent(t *testing.T) {
	gen, _ := newTestGenerator()

	_, err := gen.Execute(context.Background(), task.Request{
		Input:   "status",
		AgentID: "ghost",
	}, nil)
	if !stdErrors.Is(err, orchestrator.ErrAgentNotFound) {
		t.Fatalf("expected ErrAgentNotFound, got %v", err)
	}
}
