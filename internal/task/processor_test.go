package task

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	xerrors "AgentCraft/internal/errors"
)

type fakeExecutor struct {
	processed atomic.Int32
	latency   time.Duration
	failWith  error
	steps     []string
}

func (f *fakeExecutor) Execute(ctx context.Context, req Request, progress ProgressFunc) (*ExecutionResult, error) {
	if f.latency > 0 {
		select {
		case <-time.After(f.latency):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	for _, step := range f.steps {
		if progress != nil {
			progress(step)
		}
	}
	if f.failWith != nil {
		return nil, f.failWith
	}
	f.processed.Add(1)
	return &ExecutionResult{AgentID: "file-agent", Reply: "ok"}, nil
}

func TestProcessorCompletesSubmittedTask(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	store := NewMemoryStore()
	queue := NewMemoryQueue(64)
	executor := &fakeExecutor{steps: []string{"parse-intent", "deploy-resources"}}

	service := NewService(store, queue)
	processor := NewProcessor(executor, store, queue, WithWorkerCount(2))

	go func() {
		if err := processor.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
			t.Errorf("processor exited: %v", err)
		}
	}()

	submitted, err := service.Submit(ctx, Request{Input: "create a file processing agent"})
	if err != nil {
		t.Fatalf("提交任务失败: %v", err)
	}
	if submitted.Status != StatusCreated {
		t.Fatalf("submit must return created status, got %s", submitted.Status)
	}

	final, err := service.WaitUntilCompleted(ctx, submitted.ID, 20*time.Millisecond)
	if err != nil {
		t.Fatalf("wait: %v", err)
	}
	if final.Status != StatusCompleted {
		t.Fatalf("expected completed, got %s (%s)", final.Status, final.LastError)
	}
	if final.Result == nil || final.Result.AgentID != "file-agent" {
		t.Fatalf("result missing agent id: %+v", final.Result)
	}
	if len(final.Steps) != 2 {
		t.Fatalf("expected 2 recorded steps, got %+v", final.Steps)
	}
}

func TestProcessorRecordsFailureAsTerminal(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	store := NewMemoryStore()
	queue := NewMemoryQueue(64)
	executor := &fakeExecutor{failWith: xerrors.New(xerrors.CodeRuntimeAPI, "deploy blew up")}

	service := NewService(store, queue)
	processor := NewProcessor(executor, store, queue)

	go func() {
		_ = processor.Start(ctx)
	}()

	submitted, err := service.Submit(ctx, Request{Input: "create a file processing agent"})
	if err != nil {
		t.Fatalf("submit: %v", err)
	}

	final, err := service.WaitUntilCompleted(ctx, submitted.ID, 20*time.Millisecond)
	if err != nil {
		t.Fatalf("wait: %v", err)
	}
	if final.Status != StatusFailed {
		t.Fatalf("expected failed, got %s", final.Status)
	}
	if final.ErrorCode != string(xerrors.CodeRuntimeAPI) {
		t.Fatalf("unexpected error code %q", final.ErrorCode)
	}
	if final.LastError == "" {
		t.Fatalf("last error not recorded")
	}
}

func TestProcessorHandlesConcurrentTasks(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	store := NewMemoryStore()
	queue := NewMemoryQueue(1024)
	executor := &fakeExecutor{latency: 5 * time.Millisecond}

	service := NewService(store, queue)
	processor := NewProcessor(executor, store, queue, WithWorkerCount(8))

	go func() {
		if err := processor.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
			t.Errorf("processor exited: %v", err)
		}
	}()

	total := 100
	for i := 0; i < total; i++ {
		if _, err := service.Submit(ctx, Request{Input: fmt.Sprintf("deploy agent %d", i)}); err != nil {
			t.Fatalf("提交任务失败: %v", err)
		}
	}

	deadline := time.After(5 * time.Second)
	for {
		if int(executor.processed.Load()) >= total {
			cancel()
			break
		}
		select {
		case <-deadline:
			t.Fatalf("任务未能及时处理，已完成 %d", executor.processed.Load())
		case <-time.After(50 * time.Millisecond):
		}
	}
}

func TestServiceSubmitIsIdempotentPerID(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	queue := NewMemoryQueue(8)
	service := NewService(store, queue)

	first, err := service.Submit(ctx, Request{ID: "fixed-id", Input: "deploy file agent"})
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	second, err := service.Submit(ctx, Request{ID: "fixed-id", Input: "deploy file agent"})
	if err != nil {
		t.Fatalf("resubmit: %v", err)
	}
	if first.ID != second.ID {
		t.Fatalf("idempotent submit returned different tasks: %s vs %s", first.ID, second.ID)
	}
	// 只应入队一次。
	drained := 0
	for {
		select {
		case <-queue.ch:
			drained++
			continue
		default:
		}
		break
	}
	if drained != 1 {
		t.Fatalf("expected 1 queued message, got %d", drained)
	}
}

func TestServiceSubmitRejectsEmptyInput(t *testing.T) {
	service := NewService(NewMemoryStore(), NewMemoryQueue(8))
	_, err := service.Submit(context.Background(), Request{Input: "   "})
	if err == nil {
		t.Fatalf("expected validation error")
	}
	if xerrors.CodeOf(err) != CodeTaskValidation {
		t.Fatalf("unexpected code %s", xerrors.CodeOf(err))
	}
}

func TestTasksAreIndependent(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	store := NewMemoryStore()
	queue := NewMemoryQueue(64)

	// 偶数编号失败，奇数编号成功。
	var counter atomic.Int32
	executor := executorFunc(func(ctx context.Context, req Request, progress ProgressFunc) (*ExecutionResult, error) {
		n := counter.Add(1)
		if n%2 == 0 {
			return nil, xerrors.New(xerrors.CodeRuntimeAPI, "even task fails")
		}
		return &ExecutionResult{Reply: "ok"}, nil
	})

	service := NewService(store, queue)
	processor := NewProcessor(executor, store, queue, WithWorkerCount(1))
	go func() {
		_ = processor.Start(ctx)
	}()

	var ids []string
	for i := 0; i < 4; i++ {
		submitted, err := service.Submit(ctx, Request{Input: fmt.Sprintf("deploy file agent %d", i)})
		if err != nil {
			t.Fatalf("submit: %v", err)
		}
		ids = append(ids, submitted.ID)
	}

	completed, failed := 0, 0
	for _, id := range ids {
		final, err := service.WaitUntilCompleted(ctx, id, 20*time.Millisecond)
		if err != nil {
			t.Fatalf("wait %s: %v", id, err)
		}
		switch final.Status {
		case StatusCompleted:
			completed++
		case StatusFailed:
			failed++
		}
	}
	if completed != 2 || failed != 2 {
		t.Fatalf("一个任务的失败不应影响其它任务: completed=%d failed=%d", completed, failed)
	}
}

type executorFunc func(ctx context.Context, req Request, progress ProgressFunc) (*ExecutionResult, error)

func (f executorFunc) Execute(ctx context.Context, req Request, progress ProgressFunc) (*ExecutionResult, error) {
	return f(ctx, req, progress)
}
