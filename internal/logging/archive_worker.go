package logging

import (
	"context"
	"fmt"
	"sync"
	"time"

	"ai_selector/internal/models"
	"ai_selector/internal/queue"
	"ai_selector/internal/utils"
)

// ArchiveWorker drains queued generation records and writes them in batches.
// A batch that still fails after MaxRetries is moved record by record to the
// dead-letter queue.
type ArchiveWorker struct {
	queue       queue.Queue[models.GenerationRecord]
	dlq         queue.DeadLetterQueue[models.GenerationRecord]
	writer      BatchWriter
	config      *queue.Config
	logger      *utils.Logger
	stopOnce    sync.Once
	stopChan    chan struct{}
	stoppedChan chan struct{}
}

// NewArchiveWorker creates a worker. dlq may be nil, in which case failed
// batches are logged and dropped.
func NewArchiveWorker(q queue.Queue[models.GenerationRecord], dlq queue.DeadLetterQueue[models.GenerationRecord], writer BatchWriter, config *queue.Config) *ArchiveWorker {
	if config == nil {
		config = queue.DefaultConfig("generations")
	}

	return &ArchiveWorker{
		queue:       q,
		dlq:         dlq,
		writer:      writer,
		config:      config,
		logger:      utils.NewLogger("archive-worker"),
		stopChan:    make(chan struct{}),
		stoppedChan: make(chan struct{}),
	}
}

// Start starts the worker goroutine
func (w *ArchiveWorker) Start(ctx context.Context) {
	go w.run(ctx)
}

// Stop signals the worker, waits for the in-flight batch and flushes what is
// still queued.
func (w *ArchiveWorker) Stop() error {
	w.stopOnce.Do(func() { close(w.stopChan) })
	<-w.stoppedChan
	return nil
}

func (w *ArchiveWorker) run(ctx context.Context) {
	defer close(w.stoppedChan)

	for {
		select {
		case <-w.stopChan:
			w.logger.Info("Archive worker stopping")
			w.flush(context.WithoutCancel(ctx))
			return
		case <-ctx.Done():
			w.logger.Info("Archive worker context cancelled")
			return
		default:
			w.processBatch(ctx)
		}
	}
}

// processBatch handles one dequeue cycle and reports how many records it saw.
func (w *ArchiveWorker) processBatch(ctx context.Context) int {
	records, err := w.queue.DequeueWithTimeout(ctx, w.config.BatchSize, w.config.BatchTimeout)
	if err != nil {
		if ctx.Err() == nil {
			w.logger.Error("Failed to dequeue generation records", "error", err)
			w.sleep(ctx, time.Second)
		}
		return 0
	}
	if len(records) == 0 {
		return 0
	}

	w.logger.Debug("Archiving batch", "count", len(records))
	if err := w.writeWithRetry(ctx, records); err != nil {
		w.logger.Error("Failed to archive batch", "count", len(records), "error", err)
	}
	return len(records)
}

// flush drains the queue without waiting for new records.
func (w *ArchiveWorker) flush(ctx context.Context) {
	for {
		length, err := w.queue.Length(ctx)
		if err != nil || length == 0 {
			return
		}
		records, err := w.queue.DequeueWithTimeout(ctx, w.config.BatchSize, 10*time.Millisecond)
		if err != nil || len(records) == 0 {
			return
		}
		if err := w.writeWithRetry(ctx, records); err != nil {
			w.logger.Error("Failed to archive batch during shutdown", "count", len(records), "error", err)
		}
	}
}

func (w *ArchiveWorker) writeWithRetry(ctx context.Context, records []models.GenerationRecord) error {
	var lastErr error
	for attempt := 0; attempt <= w.config.MaxRetries; attempt++ {
		if attempt > 0 {
			backoff := w.config.Backoff(attempt)
			w.logger.Debug("Retrying archive batch", "attempt", attempt, "backoff", backoff)
			if !w.sleep(ctx, backoff) {
				lastErr = ctx.Err()
				break
			}
		}

		key, err := w.writer.WriteBatch(ctx, records)
		if err != nil {
			lastErr = err
			w.logger.Warn("Archive write failed", "attempt", attempt, "error", err)
			continue
		}

		w.logger.Debug("Archived batch", "location", key, "count", len(records))
		return nil
	}

	w.deadLetter(ctx, records, lastErr)
	return fmt.Errorf("%w: %w", queue.ErrMaxRetriesExceeded, lastErr)
}

func (w *ArchiveWorker) deadLetter(ctx context.Context, records []models.GenerationRecord, cause error) {
	if w.dlq == nil {
		return
	}
	for _, rec := range records {
		if err := w.dlq.Add(ctx, rec, cause, w.config.MaxRetries); err != nil {
			w.logger.Error("Failed to add record to dead letter queue", "id", rec.ID.String(), "error", err)
		}
	}
}

// sleep waits for d and returns false if ctx ends first.
func (w *ArchiveWorker) sleep(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return true
	case <-ctx.Done():
		return false
	}
}

// QueueLength returns the number of records waiting to be archived.
func (w *ArchiveWorker) QueueLength(ctx context.Context) (int, error) {
	return w.queue.Length(ctx)
}

// DeadLetterItems lists up to maxItems dead-lettered records, oldest first.
func (w *ArchiveWorker) DeadLetterItems(ctx context.Context, maxItems int) ([]queue.DeadLetterItem[models.GenerationRecord], error) {
	if w.dlq == nil {
		return nil, nil
	}
	return w.dlq.List(ctx, maxItems)
}

// RetryDeadLetterItem re-enqueues a dead-lettered record and removes it from
// the dead-letter queue.
func (w *ArchiveWorker) RetryDeadLetterItem(ctx context.Context, id string) error {
	if w.dlq == nil {
		return queue.ErrItemNotFound
	}

	items, err := w.dlq.List(ctx, 0)
	if err != nil {
		return fmt.Errorf("failed to list dead letter items: %w", err)
	}

	for _, item := range items {
		if item.ID != id {
			continue
		}
		if err := w.queue.Enqueue(ctx, item.Item); err != nil {
			return fmt.Errorf("failed to re-enqueue record: %w", err)
		}
		if err := w.dlq.Remove(ctx, id); err != nil {
			return fmt.Errorf("failed to remove from dead letter queue: %w", err)
		}
		w.logger.Info("Re-enqueued dead letter item", "id", id, "record_id", item.Item.ID.String())
		return nil
	}

	return queue.ErrItemNotFound
}
