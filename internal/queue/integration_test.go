package queue

import (
	"context"
	"testing"
	"time"
)

// TestQueueIntegration runs enqueue, batch processing, dead-lettering and
// replay against both backends.
func TestQueueIntegration(t *testing.T) {
	_, client := newTestRedis(t)

	config := DefaultConfig("integration-test")
	config.BatchSize = 5
	config.BatchTimeout = 100 * time.Millisecond

	redisQ, err := NewRedisQueue[job](client, config)
	if err != nil {
		t.Fatalf("NewRedisQueue failed: %v", err)
	}
	redisDLQ, err := NewRedisDeadLetterQueue[job](client, config)
	if err != nil {
		t.Fatalf("NewRedisDeadLetterQueue failed: %v", err)
	}

	backends := []struct {
		name string
		q    Queue[job]
		dlq  DeadLetterQueue[job]
	}{
		{"memory", NewMemoryQueue[job](config), NewMemoryDeadLetterQueue[job]()},
		{"redis", redisQ, redisDLQ},
	}

	for _, b := range backends {
		t.Run(b.name, func(t *testing.T) {
			defer b.q.Close()
			defer b.dlq.Close()
			ctx := context.Background()

			for i := 0; i < 10; i++ {
				if err := b.q.Enqueue(ctx, job{ID: i}); err != nil {
					t.Fatalf("Enqueue failed: %v", err)
				}
			}

			items, err := b.q.DequeueWithTimeout(ctx, config.BatchSize, time.Second)
			if err != nil {
				t.Fatalf("Dequeue failed: %v", err)
			}
			if len(items) != 5 {
				t.Fatalf("Expected 5 items in batch, got %d", len(items))
			}

			if err := b.dlq.Add(ctx, items[0], ErrMaxRetriesExceeded, config.MaxRetries); err != nil {
				t.Fatalf("DLQ Add failed: %v", err)
			}

			items, err = b.q.DequeueWithTimeout(ctx, config.BatchSize, time.Second)
			if err != nil {
				t.Fatalf("Dequeue failed: %v", err)
			}
			if len(items) != 5 {
				t.Errorf("Expected 5 items in second batch, got %d", len(items))
			}

			dlqItems, err := b.dlq.List(ctx, 10)
			if err != nil {
				t.Fatalf("DLQ List failed: %v", err)
			}
			if len(dlqItems) != 1 {
				t.Fatalf("Expected 1 item in DLQ, got %d", len(dlqItems))
			}
			if dlqItems[0].Error != ErrMaxRetriesExceeded.Error() {
				t.Errorf("Expected error %v, got %s", ErrMaxRetriesExceeded, dlqItems[0].Error)
			}

			// replay
			if err := b.q.Enqueue(ctx, dlqItems[0].Item); err != nil {
				t.Fatalf("Re-enqueue failed: %v", err)
			}
			if err := b.dlq.Remove(ctx, dlqItems[0].ID); err != nil {
				t.Fatalf("DLQ Remove failed: %v", err)
			}

			items, err = b.q.DequeueWithTimeout(ctx, 1, time.Second)
			if err != nil {
				t.Fatalf("Dequeue failed: %v", err)
			}
			if len(items) != 1 || items[0].ID != 0 {
				t.Errorf("Expected replayed item 0, got %v", items)
			}
		})
	}
}
