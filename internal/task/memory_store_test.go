package task

import (
	"context"
	stdErrors "errors"
	"testing"
	"time"
)

func TestMemoryStoreStateMachine(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	created := &Task{ID: "t1", Input: "create a file processing agent"}
	if err := store.Create(ctx, created); err != nil {
		t.Fatalf("create: %v", err)
	}

	got, err := store.Get(ctx, "t1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Status != StatusCreated {
		t.Fatalf("unexpected initial status %q", got.Status)
	}

	claimed, err := store.Claim(ctx, "t1")
	if err != nil {
		t.Fatalf("claim: %v", err)
	}
	if claimed.Status != StatusRunning {
		t.Fatalf("claim should move task to running, got %s", claimed.Status)
	}

	// 重复领取同一运行中任务必须冲突。
	if _, err := store.Claim(ctx, "t1"); !stdErrors.Is(err, ErrTaskConflict) {
		t.Fatalf("expected conflict, got %v", err)
	}

	if err := store.MarkCompleted(ctx, "t1", ExecutionResult{AgentID: "file-agent", Reply: "done"}); err != nil {
		t.Fatalf("mark completed: %v", err)
	}
	final, err := store.Get(ctx, "t1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if final.Status != StatusCompleted {
		t.Fatalf("expected completed, got %s", final.Status)
	}
	if final.CompletedAt == 0 {
		t.Fatalf("completed_at not set")
	}
	if final.Result == nil || final.Result.AgentID != "file-agent" {
		t.Fatalf("result missing: %+v", final.Result)
	}

	// 终态不可再变更。
	if err := store.MarkFailed(ctx, "t1", CodeTaskProcessing, "late failure"); !stdErrors.Is(err, ErrTaskFinished) {
		t.Fatalf("terminal task must reject further transitions, got %v", err)
	}
	if _, err := store.Claim(ctx, "t1"); !stdErrors.Is(err, ErrTaskFinished) {
		t.Fatalf("terminal task must not be claimable, got %v", err)
	}
}

func TestMemoryStoreRecordStep(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	if err := store.Create(ctx, &Task{ID: "t1", Input: "input"}); err != nil {
		t.Fatalf("create: %v", err)
	}
	// created 状态下不允许记录阶段。
	if _, err := store.RecordStep(ctx, "t1", "parse-intent"); !stdErrors.Is(err, ErrTaskConflict) {
		t.Fatalf("expected conflict before claim, got %v", err)
	}
	if _, err := store.Claim(ctx, "t1"); err != nil {
		t.Fatalf("claim: %v", err)
	}

	names := []string{"parse-intent", "build-workflow", "deploy-resources"}
	for i, name := range names {
		seq, err := store.RecordStep(ctx, "t1", name)
		if err != nil {
			t.Fatalf("record step %s: %v", name, err)
		}
		if seq != i+1 {
			t.Fatalf("step %s seq = %d, want %d", name, seq, i+1)
		}
	}

	got, err := store.Get(ctx, "t1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if len(got.Steps) != 3 {
		t.Fatalf("expected 3 steps, got %d", len(got.Steps))
	}
	// 序号单调递增，只有最后一个阶段保持 running。
	for i, step := range got.Steps {
		if step.Seq != i+1 {
			t.Fatalf("step[%d].Seq = %d", i, step.Seq)
		}
		if i < len(got.Steps)-1 && step.Status != StepCompleted {
			t.Fatalf("step %s should be closed, got %s", step.Name, step.Status)
		}
	}
	if got.Steps[2].Status != StepRunning {
		t.Fatalf("last step should be running, got %s", got.Steps[2].Status)
	}

	if err := store.MarkFailed(ctx, "t1", CodeTaskProcessing, "boom"); err != nil {
		t.Fatalf("mark failed: %v", err)
	}
	got, _ = store.Get(ctx, "t1")
	if got.Steps[2].Status != StepFailed || got.Steps[2].Error == "" {
		t.Fatalf("open step should be failed with error: %+v", got.Steps[2])
	}
}

func TestMemoryStoreListWithFilters(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	base := time.Now().Add(-2 * time.Minute)

	tasks := []*Task{
		{ID: "t1", Input: "deploy file agent", Status: StatusCreated},
		{ID: "t2", Input: "deploy code agent", Status: StatusCreated},
		{ID: "t3", Input: "status of monitor agent", AgentID: "monitor-agent", Status: StatusCreated},
	}
	for _, item := range tasks {
		if err := store.Create(ctx, item); err != nil {
			t.Fatalf("create %s: %v", item.ID, err)
		}
	}

	if _, err := store.Claim(ctx, "t2"); err != nil {
		t.Fatalf("claim t2: %v", err)
	}
	if err := store.MarkFailed(ctx, "t2", CodeTaskProcessing, "boom"); err != nil {
		t.Fatalf("mark failed: %v", err)
	}
	if _, err := store.Claim(ctx, "t3"); err != nil {
		t.Fatalf("claim t3: %v", err)
	}
	if err := store.MarkCompleted(ctx, "t3", ExecutionResult{Reply: "ok"}); err != nil {
		t.Fatalf("mark completed: %v", err)
	}

	store.mu.Lock()
	store.tasks["t1"].UpdatedAt = base.Unix()
	store.tasks["t2"].UpdatedAt = base.Add(30 * time.Second).Unix()
	store.tasks["t3"].UpdatedAt = base.Add(60 * time.Second).Unix()
	store.mu.Unlock()

	all, err := store.List(ctx, ListOptions{})
	if err != nil {
		t.Fatalf("list all: %v", err)
	}
	if len(all) != 3 {
		t.Fatalf("expected 3 tasks, got %d", len(all))
	}
	if all[0].ID != "t3" {
		t.Fatalf("expected newest task first, got %s", all[0].ID)
	}

	failed, err := store.List(ctx, buildListOptions([]ListOption{WithStatuses(StatusFailed)}))
	if err != nil {
		t.Fatalf("list failed: %v", err)
	}
	if len(failed) != 1 || failed[0].ID != "t2" {
		t.Fatalf("unexpected failed list: %+v", failed)
	}

	byAgent, err := store.List(ctx, buildListOptions([]ListOption{WithAgentID("monitor-agent")}))
	if err != nil {
		t.Fatalf("list by agent: %v", err)
	}
	if len(byAgent) != 1 || byAgent[0].ID != "t3" {
		t.Fatalf("unexpected agent filter result: %+v", byAgent)
	}

	byQuery, err := store.List(ctx, buildListOptions([]ListOption{WithQuery("code")}))
	if err != nil {
		t.Fatalf("list by query: %v", err)
	}
	if len(byQuery) != 1 || byQuery[0].ID != "t2" {
		t.Fatalf("unexpected query result: %+v", byQuery)
	}

	stats, err := store.Stats(ctx, ListOptions{})
	if err != nil {
		t.Fatalf("stats: %v", err)
	}
	if stats.Total != 3 || stats.Created != 1 || stats.Failed != 1 || stats.Completed != 1 {
		t.Fatalf("unexpected stats: %+v", stats)
	}
}

func TestMemoryStoreFailStale(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	if err := store.Create(ctx, &Task{ID: "stuck", Input: "input"}); err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := store.Claim(ctx, "stuck"); err != nil {
		t.Fatalf("claim: %v", err)
	}
	if err := store.Create(ctx, &Task{ID: "fresh", Input: "input"}); err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := store.Create(ctx, &Task{ID: "orphan", Input: "input"}); err != nil {
		t.Fatalf("create: %v", err)
	}

	// 把运行中任务的更新时间和孤儿任务的创建时间拨回过去，
	// 分别模拟执行卡死和队列消息丢失。
	past := time.Now().Add(-10 * time.Minute).Unix()
	store.mu.Lock()
	store.tasks["stuck"].UpdatedAt = past
	store.tasks["orphan"].CreatedAt = past
	store.mu.Unlock()

	stale, err := store.FailStale(ctx, time.Minute)
	if err != nil {
		t.Fatalf("fail stale: %v", err)
	}
	if len(stale) != 2 || stale[0] != "orphan" || stale[1] != "stuck" {
		t.Fatalf("unexpected stale set: %v", stale)
	}

	for _, id := range stale {
		got, _ := store.Get(ctx, id)
		if got.Status != StatusFailed || got.ErrorCode != string(CodeTaskDeadline) {
			t.Fatalf("stale task %s not failed properly: %+v", id, got)
		}
	}
	fresh, _ := store.Get(ctx, "fresh")
	if fresh.Status != StatusCreated {
		t.Fatalf("fresh task must not be touched: %+v", fresh)
	}
}

func TestMemoryStoreReturnsCopies(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	if err := store.Create(ctx, &Task{ID: "t1", Input: "input", Metadata: map[string]any{"k": "v"}}); err != nil {
		t.Fatalf("create: %v", err)
	}
	got, _ := store.Get(ctx, "t1")
	got.Input = "mutated"
	got.Metadata["k"] = "mutated"

	again, _ := store.Get(ctx, "t1")
	if again.Input != "input" || again.Metadata["k"] != "v" {
		t.Fatalf("store leaked internal state: %+v", again)
	}
}
