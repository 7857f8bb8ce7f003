package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisQueue implements Queue with a Redis list of JSON documents. The client
// is shared and not closed by the queue.
type RedisQueue[T any] struct {
	client redis.UniversalClient
	qKey   string
}

// NewRedisQueue creates a queue stored under queue:<name>.
func NewRedisQueue[T any](client redis.UniversalClient, config *Config) (*RedisQueue[T], error) {
	if client == nil {
		return nil, fmt.Errorf("redis client is required")
	}
	if config == nil || config.QueueName == "" {
		return nil, fmt.Errorf("queue name is required")
	}

	return &RedisQueue[T]{
		client: client,
		qKey:   fmt.Sprintf("queue:%s", config.QueueName),
	}, nil
}

func (q *RedisQueue[T]) Enqueue(ctx context.Context, item T) error {
	data, err := json.Marshal(item)
	if err != nil {
		return fmt.Errorf("failed to marshal item: %w", err)
	}

	if err := q.client.RPush(ctx, q.qKey, data).Err(); err != nil {
		return fmt.Errorf("failed to push to Redis: %w", err)
	}

	return nil
}

func (q *RedisQueue[T]) Dequeue(ctx context.Context, maxItems int) ([]T, error) {
	result, err := q.client.BLPop(ctx, 0, q.qKey).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to pop from Redis: %w", err)
	}
	return q.collect(ctx, result[1], maxItems)
}

func (q *RedisQueue[T]) DequeueWithTimeout(ctx context.Context, maxItems int, timeout time.Duration) ([]T, error) {
	result, err := q.client.BLPop(ctx, timeout, q.qKey).Result()
	if errors.Is(err, redis.Nil) {
		return []T{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to pop from Redis: %w", err)
	}
	return q.collect(ctx, result[1], maxItems)
}

// collect decodes the first popped value and pops more without blocking.
// Undecodable entries are dropped.
func (q *RedisQueue[T]) collect(ctx context.Context, first string, maxItems int) ([]T, error) {
	items := make([]T, 0, maxItems)
	if item, err := decode[T](first); err == nil {
		items = append(items, item)
	}

	for len(items) < maxItems {
		raw, err := q.client.LPop(ctx, q.qKey).Result()
		if err != nil {
			// redis.Nil means empty; other errors return the partial batch.
			break
		}
		if item, err := decode[T](raw); err == nil {
			items = append(items, item)
		}
	}

	return items, nil
}

func decode[T any](raw string) (T, error) {
	var item T
	err := json.Unmarshal([]byte(raw), &item)
	return item, err
}

func (q *RedisQueue[T]) Length(ctx context.Context) (int, error) {
	length, err := q.client.LLen(ctx, q.qKey).Result()
	if err != nil {
		return 0, fmt.Errorf("failed to get queue length: %w", err)
	}
	return int(length), nil
}

func (q *RedisQueue[T]) Close() error {
	return nil
}

// RedisDeadLetterQueue implements DeadLetterQueue with a Redis hash keyed by
// item ID.
type RedisDeadLetterQueue[T any] struct {
	client redis.UniversalClient
	dlKey  string
}

// NewRedisDeadLetterQueue creates a dead-letter queue stored under dlq:<name>.
func NewRedisDeadLetterQueue[T any](client redis.UniversalClient, config *Config) (*RedisDeadLetterQueue[T], error) {
	if client == nil {
		return nil, fmt.Errorf("redis client is required")
	}
	if config == nil || config.QueueName == "" {
		return nil, fmt.Errorf("queue name is required")
	}

	return &RedisDeadLetterQueue[T]{
		client: client,
		dlKey:  fmt.Sprintf("dlq:%s", config.QueueName),
	}, nil
}

func (q *RedisDeadLetterQueue[T]) Add(ctx context.Context, item T, err error, retries int) error {
	dlItem := newDeadLetterItem(item, err, retries)

	data, marshalErr := json.Marshal(dlItem)
	if marshalErr != nil {
		return fmt.Errorf("failed to marshal dead letter item: %w", marshalErr)
	}

	if err := q.client.HSet(ctx, q.dlKey, dlItem.ID, data).Err(); err != nil {
		return fmt.Errorf("failed to add to dead letter queue: %w", err)
	}

	return nil
}

func (q *RedisDeadLetterQueue[T]) List(ctx context.Context, maxItems int) ([]DeadLetterItem[T], error) {
	results, err := q.client.HGetAll(ctx, q.dlKey).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list dead letter items: %w", err)
	}

	items := make([]DeadLetterItem[T], 0, len(results))
	for _, data := range results {
		var dlItem DeadLetterItem[T]
		if err := json.Unmarshal([]byte(data), &dlItem); err != nil {
			continue
		}
		items = append(items, dlItem)
	}

	sort.Slice(items, func(i, j int) bool {
		if items[i].Timestamp.Equal(items[j].Timestamp) {
			return items[i].ID < items[j].ID
		}
		return items[i].Timestamp.Before(items[j].Timestamp)
	})
	if maxItems > 0 && len(items) > maxItems {
		items = items[:maxItems]
	}
	return items, nil
}

func (q *RedisDeadLetterQueue[T]) Remove(ctx context.Context, id string) error {
	n, err := q.client.HDel(ctx, q.dlKey, id).Result()
	if err != nil {
		return fmt.Errorf("failed to remove from dead letter queue: %w", err)
	}
	if n == 0 {
		return ErrItemNotFound
	}
	return nil
}

func (q *RedisDeadLetterQueue[T]) Close() error {
	return nil
}
