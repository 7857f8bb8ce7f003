// Package logging archives generation records off the request path. Records
// are handed to a Sink, buffered in a queue, and written in batches by an
// ArchiveWorker to a BatchWriter (S3 or rotating local files).
package logging

import (
	"context"
	"errors"
	"fmt"
	"time"

	"ai_selector/internal/models"
	"ai_selector/internal/queue"
)

// Sink receives generation records once they are persisted.
type Sink interface {
	Archive(ctx context.Context, rec *models.GenerationRecord) error
}

// NoopSink discards records.
type NoopSink struct{}

func NewNoopSink() *NoopSink {
	return &NoopSink{}
}

func (s *NoopSink) Archive(ctx context.Context, rec *models.GenerationRecord) error {
	return nil
}

// DefaultEnqueueTimeout bounds how long Archive waits for room in the queue.
const DefaultEnqueueTimeout = 100 * time.Millisecond

// QueueSink buffers records in a queue for an ArchiveWorker to drain. When the
// queue stays full for the enqueue timeout the record is dropped with
// queue.ErrQueueFull, so a stalled archive never holds up the caller.
type QueueSink struct {
	queue   queue.Queue[models.GenerationRecord]
	timeout time.Duration
}

func NewQueueSink(q queue.Queue[models.GenerationRecord]) *QueueSink {
	return &QueueSink{queue: q, timeout: DefaultEnqueueTimeout}
}

// WithTimeout overrides DefaultEnqueueTimeout.
func (s *QueueSink) WithTimeout(d time.Duration) *QueueSink {
	if d > 0 {
		s.timeout = d
	}
	return s
}

// Archive enqueues a copy of rec. The record is already persisted, so a
// cancelled request context does not stop the hand-off; only the timeout does.
func (s *QueueSink) Archive(ctx context.Context, rec *models.GenerationRecord) error {
	if rec == nil {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.timeout)
	defer cancel()

	if err := s.queue.Enqueue(ctx, *rec); err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return fmt.Errorf("failed to enqueue generation record: %w", queue.ErrQueueFull)
		}
		return fmt.Errorf("failed to enqueue generation record: %w", err)
	}
	return nil
}
