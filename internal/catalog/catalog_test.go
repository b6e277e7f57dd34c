package catalog

import (
	"context"
	"testing"

	xerrors "AgentCraft/internal/errors"
	"AgentCraft/internal/runtime"
	"AgentCraft/internal/runtime/memory"
)

func TestBuildIndex(t *testing.T) {
	tools := []runtime.ToolResource{
		{Name: "file-writer", Capabilities: []string{"File-Write", " "}},
		{Name: "file-reader", Capabilities: []string{"file-read"}},
		{Name: "file-reader", Capabilities: []string{"duplicate"}},
	}
	idx := BuildIndex(tools)

	names := idx.ToolNames()
	if len(names) != 2 {
		t.Fatalf("expected deduplicated names, got %v", names)
	}
	// 名称排序稳定。
	if names[0] != "file-reader" || names[1] != "file-writer" {
		t.Fatalf("names not sorted: %v", names)
	}
	// 能力查询不区分大小写。
	if got := idx.ToolsFor("FILE-WRITE"); len(got) != 1 || got[0] != "file-writer" {
		t.Fatalf("capability lookup failed: %v", got)
	}
	if got := idx.ToolsFor("missing"); len(got) != 0 {
		t.Fatalf("expected empty lookup, got %v", got)
	}
}

func TestCacheRefreshSwapsSnapshot(t *testing.T) {
	ctx := context.Background()
	client := memory.NewClient()
	cache := NewCache(client, "agentcraft")

	if names := cache.Snapshot().ToolNames(); len(names) != 0 {
		t.Fatalf("initial snapshot should be empty: %v", names)
	}

	if err := client.CreateTool(ctx, runtime.ToolResource{Name: "file-reader", Namespace: "agentcraft"}); err != nil {
		t.Fatalf("seed tool: %v", err)
	}
	if err := cache.Refresh(ctx); err != nil {
		t.Fatalf("refresh: %v", err)
	}

	first := cache.Snapshot()
	if names := first.ToolNames(); len(names) != 1 {
		t.Fatalf("expected 1 tool after refresh, got %v", names)
	}

	// 刷新失败不污染现有快照。
	client.FailLookups(xerrors.New(xerrors.CodeRuntimeAPI, "boom"))
	if err := cache.Refresh(ctx); err == nil {
		t.Fatalf("expected refresh error")
	}
	if cache.Snapshot() != first {
		t.Fatalf("failed refresh must keep the previous snapshot")
	}
}
