package task

import (
	"context"
	"sync"
	"testing"
)

func TestMemoryQueuePublishAfterClose(t *testing.T) {
	queue := NewMemoryQueue(4)
	if err := queue.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	if err := queue.Publish(context.Background(), "t1"); err == nil {
		t.Fatal("已关闭队列的 Publish 应当返回错误")
	}
	// 重复关闭必须安全。
	if err := queue.Close(); err != nil {
		t.Fatalf("重复 close: %v", err)
	}
}

func TestMemoryQueueConcurrentPublishAndClose(t *testing.T) {
	queue := NewMemoryQueue(1)
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			// 关闭与投递并发进行时不允许 panic，错误是正常结果。
			_ = queue.Publish(ctx, "task")
		}()
	}
	_ = queue.Close()
	wg.Wait()
}
