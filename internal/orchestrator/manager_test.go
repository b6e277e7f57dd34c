package orchestrator

import (
	"context"
	stdErrors "errors"
	"strings"
	"testing"

	xerrors "AgentCraft/internal/errors"
	"AgentCraft/internal/runtime/memory"
	"AgentCraft/internal/workflow"
)

func newTestWorkflow() *workflow.Workflow {
	return &workflow.Workflow{
		ID:   "wf-1",
		Name: "report agent",
		RequiredModules: []workflow.RequiredModule{
			{Name: "fs", Type: workflow.ModuleFileSystem},
			{
				Name:         "erp bridge",
				Type:         workflow.ModuleCustomIntegration,
				Endpoint:     "http://erp:9000",
				Capabilities: []string{"erp-sync"},
			},
			{
				Name:     "billing hook",
				Type:     workflow.ModuleCustomIntegration,
				Endpoint: "http://billing:9000",
			},
		},
	}
}

func TestDeployRegistersRecord(t *testing.T) {
	ctx := context.Background()
	client := memory.NewClient()
	manager := NewManager(client, NewMemoryRegistry(), "agentcraft")

	record, err := manager.Deploy(ctx, newTestWorkflow())
	if err != nil {
		t.Fatalf("deploy: %v", err)
	}
	if record.AgentID != "report-agent" {
		t.Fatalf("unexpected agent id %q", record.AgentID)
	}
	if record.Status != StatusDeploying {
		t.Fatalf("expected deploying status, got %s", record.Status)
	}
	// 依赖资源在前，主资源最后。
	if len(record.CreatedResources) != 3 {
		t.Fatalf("expected 3 created resources, got %d", len(record.CreatedResources))
	}
	last := record.CreatedResources[len(record.CreatedResources)-1]
	if last.Kind != KindAgent {
		t.Fatalf("primary must be created last, got %+v", record.CreatedResources)
	}
}

func TestDeployRollsBackInReverseOrder(t *testing.T) {
	ctx := context.Background()
	client := memory.NewClient()
	cause := xerrors.New(xerrors.CodeRuntimeAPI, "injected failure")
	client.FailToolCreate("billing-hook", cause)

	manager := NewManager(client, NewMemoryRegistry(), "agentcraft")

	_, err := manager.Deploy(ctx, newTestWorkflow())
	if err == nil {
		t.Fatalf("expected deploy to fail")
	}
	// 原始错误必须可以通过 errors.Is 追溯。
	if !stdErrors.Is(err, cause) {
		t.Fatalf("original cause lost: %v", err)
	}

	journal := client.Journal()
	want := []string{
		"create tool/erp-bridge",
		"delete tool/erp-bridge",
	}
	if len(journal) != len(want) {
		t.Fatalf("unexpected journal: %v", journal)
	}
	for i, entry := range want {
		if journal[i] != entry {
			t.Fatalf("journal[%d] = %q, want %q (journal %v)", i, journal[i], entry, journal)
		}
	}
}

func TestDeployRollsBackDependentsWhenPrimaryFails(t *testing.T) {
	ctx := context.Background()
	client := memory.NewClient()
	cause := xerrors.New(xerrors.CodeRuntimeAPI, "primary create failed")
	client.FailAgentCreate("report-agent", cause)

	registry := NewMemoryRegistry()
	manager := NewManager(client, registry, "agentcraft")

	_, err := manager.Deploy(ctx, newTestWorkflow())
	if err == nil {
		t.Fatalf("expected deploy to fail")
	}
	if !stdErrors.Is(err, cause) {
		t.Fatalf("original cause lost: %v", err)
	}

	journal := client.Journal()
	// 两个依赖创建成功后按逆序删除。
	want := []string{
		"create tool/erp-bridge",
		"create tool/billing-hook",
		"delete tool/billing-hook",
		"delete tool/erp-bridge",
	}
	if len(journal) != len(want) {
		t.Fatalf("unexpected journal: %v", journal)
	}
	for i, entry := range want {
		if journal[i] != entry {
			t.Fatalf("journal[%d] = %q, want %q", i, journal[i], entry)
		}
	}

	// 失败的部署不应留下注册表记录。
	records, err := registry.List(ctx)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(records) != 0 {
		t.Fatalf("failed deploy must not register a record: %+v", records)
	}
}

func TestDeployValidationDoesNotTouchRuntime(t *testing.T) {
	ctx := context.Background()
	client := memory.NewClient()
	manager := NewManager(client, NewMemoryRegistry(), "agentcraft")

	_, err := manager.Deploy(ctx, &workflow.Workflow{ID: "wf", Name: ""})
	if err == nil {
		t.Fatalf("expected validation error")
	}
	if xerrors.CodeOf(err) != xerrors.CodeValidation {
		t.Fatalf("expected validation code, got %s", xerrors.CodeOf(err))
	}
	if journal := client.Journal(); len(journal) != 0 {
		t.Fatalf("validation failure must not touch the runtime: %v", journal)
	}
}

func TestGetUnknownAgentReturnsNil(t *testing.T) {
	ctx := context.Background()
	manager := NewManager(memory.NewClient(), NewMemoryRegistry(), "agentcraft")

	view, err := manager.Get(ctx, "ghost")
	if err != nil {
		t.Fatalf("get unknown agent must not error: %v", err)
	}
	if view != nil {
		t.Fatalf("expected nil view, got %+v", view)
	}
}

func TestGetMergesLiveStatus(t *testing.T) {
	ctx := context.Background()
	client := memory.NewClient()
	manager := NewManager(client, NewMemoryRegistry(), "agentcraft")

	record, err := manager.Deploy(ctx, newTestWorkflow())
	if err != nil {
		t.Fatalf("deploy: %v", err)
	}

	view, err := manager.Get(ctx, record.AgentID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if view == nil {
		t.Fatalf("expected view")
	}
	if view.Status != StatusDeployed {
		t.Fatalf("running agent should merge to deployed, got %s", view.Status)
	}
	if len(view.Pods) != 1 {
		t.Fatalf("expected 1 pod, got %d", len(view.Pods))
	}
}

func TestGetDegradesOnLookupFailure(t *testing.T) {
	ctx := context.Background()
	client := memory.NewClient()
	manager := NewManager(client, NewMemoryRegistry(), "agentcraft")

	record, err := manager.Deploy(ctx, newTestWorkflow())
	if err != nil {
		t.Fatalf("deploy: %v", err)
	}

	client.FailLookups(xerrors.New(xerrors.CodeRuntimeAPI, "apiserver unreachable"))

	view, err := manager.Get(ctx, record.AgentID)
	if err != nil {
		t.Fatalf("merge failure must degrade, not error: %v", err)
	}
	if view.Status != StatusError {
		t.Fatalf("expected error status, got %s", view.Status)
	}
	if !strings.Contains(view.Error, "apiserver unreachable") {
		t.Fatalf("error annotation missing: %q", view.Error)
	}
}

func TestDeleteRemovesResourcesAndRecord(t *testing.T) {
	ctx := context.Background()
	client := memory.NewClient()
	registry := NewMemoryRegistry()
	manager := NewManager(client, registry, "agentcraft")

	record, err := manager.Deploy(ctx, newTestWorkflow())
	if err != nil {
		t.Fatalf("deploy: %v", err)
	}
	if err := manager.Delete(ctx, record.AgentID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := registry.Get(ctx, record.AgentID); !stdErrors.Is(err, ErrAgentNotFound) {
		t.Fatalf("record should be gone, got %v", err)
	}
	if view, _ := manager.Get(ctx, record.AgentID); view != nil {
		t.Fatalf("deleted agent must be unknown")
	}
}

func TestDeleteUnknownAgent(t *testing.T) {
	manager := NewManager(memory.NewClient(), NewMemoryRegistry(), "agentcraft")
	err := manager.Delete(context.Background(), "ghost")
	if !stdErrors.Is(err, ErrAgentNotFound) {
		t.Fatalf("expected ErrAgentNotFound, got %v", err)
	}
}

func TestListEmbedsPerItemFailures(t *testing.T) {
	ctx := context.Background()
	client := memory.NewClient()
	manager := NewManager(client, NewMemoryRegistry(), "agentcraft")

	if _, err := manager.Deploy(ctx, newTestWorkflow()); err != nil {
		t.Fatalf("deploy: %v", err)
	}
	client.FailLookups(xerrors.New(xerrors.CodeRuntimeAPI, "boom"))

	views, err := manager.List(ctx)
	if err != nil {
		t.Fatalf("list must tolerate per-item failures: %v", err)
	}
	if len(views) != 1 {
		t.Fatalf("expected 1 view, got %d", len(views))
	}
	if views[0].Status != StatusError || views[0].Error == "" {
		t.Fatalf("per-item failure not embedded: %+v", views[0])
	}
}

func TestMemoryRegistryListOrdering(t *testing.T) {
	ctx := context.Background()
	registry := NewMemoryRegistry()

	for _, id := range []string{"b-agent", "a-agent", "c-agent"} {
		record := &DeploymentRecord{
			WorkflowID: "wf",
			AgentID:    id,
			Namespace:  "agentcraft",
			Status:     StatusDeploying,
			CreatedAt:  100,
		}
		if err := registry.Create(ctx, record); err != nil {
			t.Fatalf("create %s: %v", id, err)
		}
	}

	records, err := registry.List(ctx)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	// 创建时间相同，按 ID 保证稳定顺序。
	want := []string{"a-agent", "b-agent", "c-agent"}
	for i, id := range want {
		if records[i].AgentID != id {
			t.Fatalf("records[%d] = %s, want %s", i, records[i].AgentID, id)
		}
	}
}
