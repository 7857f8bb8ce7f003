// Package queue provides typed work queues for asynchronous processing, with an
// in-memory backend for single-process deployments and a Redis list backend
// shared by several replicas. Failed items go to a dead-letter queue.
//
//	RecordGeneration ──► Queue[T] ──► worker (batches, retries) ──► sink
//	                                         │
//	                                         └──► DeadLetterQueue[T]
package queue

import (
	"context"
	"time"
)

// Queue is a FIFO queue of T.
type Queue[T any] interface {
	// Enqueue adds an item to the queue.
	Enqueue(ctx context.Context, item T) error

	// Dequeue blocks until at least one item is available or ctx is done, then
	// returns up to maxItems items.
	Dequeue(ctx context.Context, maxItems int) ([]T, error)

	// DequeueWithTimeout is Dequeue that returns an empty slice once timeout
	// elapses without items.
	DequeueWithTimeout(ctx context.Context, maxItems int, timeout time.Duration) ([]T, error)

	// Length returns the number of queued items.
	Length(ctx context.Context) (int, error)

	Close() error
}

// DeadLetterQueue keeps items that could not be processed.
type DeadLetterQueue[T any] interface {
	Add(ctx context.Context, item T, err error, retries int) error

	// List returns up to maxItems items, oldest first. maxItems <= 0 means all.
	List(ctx context.Context, maxItems int) ([]DeadLetterItem[T], error)

	Remove(ctx context.Context, id string) error

	Close() error
}

// DeadLetterItem is a failed item with its last error.
type DeadLetterItem[T any] struct {
	ID        string    `json:"id"`
	Item      T         `json:"item"`
	Error     string    `json:"error"`
	Timestamp time.Time `json:"timestamp"`
	Retries   int       `json:"retries"`
}

// Config holds queue and worker settings.
type Config struct {
	// BatchSize is the maximum number of items processed together.
	BatchSize int

	// BatchTimeout is how long a worker waits for a partial batch.
	BatchTimeout time.Duration

	// MaxRetries is the number of retries after the first failed attempt.
	MaxRetries int

	// RetryBackoff is the first retry delay; it doubles on every retry.
	RetryBackoff time.Duration

	// QueueName names the Redis keys of the queue and its dead-letter queue.
	QueueName string
}

// DefaultConfig returns the default queue configuration.
func DefaultConfig(queueName string) *Config {
	return &Config{
		BatchSize:    100,
		BatchTimeout: 5 * time.Second,
		MaxRetries:   3,
		RetryBackoff: 1 * time.Second,
		QueueName:    queueName,
	}
}

// Backoff returns the delay before the given retry, starting at 1.
func (c *Config) Backoff(retry int) time.Duration {
	if retry < 1 {
		retry = 1
	}
	d := c.RetryBackoff
	for i := 1; i < retry; i++ {
		d *= 2
	}
	return d
}
