package logging

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ai_selector/internal/models"
	"ai_selector/internal/queue"
)

func testRecord(tenant string, cost float64) models.GenerationRecord {
	return models.GenerationRecord{
		ID:         uuid.New(),
		TenantID:   tenant,
		Capability: models.CapabilityText,
		Provider:   models.ProviderOpenAI,
		Model:      "gpt-4o",
		Prompt:     "hello",
		Result:     "world",
		Units:      1200,
		Cost:       cost,
		CreatedAt:  time.Date(2024, 6, 15, 10, 30, 0, 0, time.UTC),
	}
}

type fakePutter struct {
	mu     sync.Mutex
	inputs []*s3.PutObjectInput
	bodies []string
	err    error
}

func (p *fakePutter) PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return nil, p.err
	}
	body, err := io.ReadAll(params.Body)
	if err != nil {
		return nil, err
	}
	p.inputs = append(p.inputs, params)
	p.bodies = append(p.bodies, string(body))
	return &s3.PutObjectOutput{}, nil
}

// flakyWriter fails the first failures calls and records the rest.
type flakyWriter struct {
	mu       sync.Mutex
	failures int
	calls    int
	batches  [][]models.GenerationRecord
}

func (w *flakyWriter) WriteBatch(ctx context.Context, records []models.GenerationRecord) (string, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.calls++
	if w.calls <= w.failures {
		return "", errors.New("bucket unavailable")
	}
	w.batches = append(w.batches, append([]models.GenerationRecord(nil), records...))
	return "batch", nil
}

func (w *flakyWriter) written() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	n := 0
	for _, b := range w.batches {
		n += len(b)
	}
	return n
}

func TestNoopSink(t *testing.T) {
	rec := testRecord("tenant-1", 0.01)
	assert.NoError(t, NewNoopSink().Archive(context.Background(), &rec))
}

func TestQueueSink(t *testing.T) {
	q := queue.NewMemoryQueue[models.GenerationRecord](queue.DefaultConfig("generations"))
	defer q.Close()
	sink := NewQueueSink(q)
	ctx := context.Background()

	rec := testRecord("tenant-1", 0.01)
	require.NoError(t, sink.Archive(ctx, &rec))
	require.NoError(t, sink.Archive(ctx, nil))

	items, err := q.Dequeue(ctx, 10)
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, rec.ID, items[0].ID)

	q.Close()
	assert.ErrorIs(t, sink.Archive(ctx, &rec), queue.ErrQueueClosed)
}

func TestQueueSink_FullQueueDropsRecord(t *testing.T) {
	cfg := queue.DefaultConfig("generations")
	cfg.BatchSize = 1
	q := queue.NewMemoryQueue[models.GenerationRecord](cfg)
	defer q.Close()
	sink := NewQueueSink(q).WithTimeout(20 * time.Millisecond)

	rec := testRecord("tenant-1", 0.01)
	for i := 0; i < 10; i++ {
		require.NoError(t, sink.Archive(context.Background(), &rec))
	}

	// a cancelled request context still gets the full timeout, then gives up
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	start := time.Now()
	err := sink.Archive(ctx, &rec)
	assert.ErrorIs(t, err, queue.ErrQueueFull)
	assert.Less(t, time.Since(start), time.Second)

	length, err := q.Length(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 10, length)
}

func TestS3Writer_WriteBatch(t *testing.T) {
	putter := &fakePutter{}
	w := NewS3WriterWithClient(putter, "archive", "generations/", "selector-0")
	w.now = func() time.Time { return time.Date(2024, 6, 15, 14, 30, 22, 123456789, time.UTC) }

	records := []models.GenerationRecord{testRecord("a", 0.01), testRecord("b", 0.02)}
	key, err := w.WriteBatch(context.Background(), records)
	require.NoError(t, err)

	assert.Equal(t, "generations/2024/06/15/selector-0-20240615-143022-123456789.jsonl", key)
	require.Len(t, putter.inputs, 1)
	assert.Equal(t, "archive", *putter.inputs[0].Bucket)
	assert.Equal(t, "application/x-ndjson", *putter.inputs[0].ContentType)

	lines := strings.Split(strings.TrimSpace(putter.bodies[0]), "\n")
	require.Len(t, lines, 2)
	var decoded models.GenerationRecord
	require.NoError(t, json.Unmarshal([]byte(lines[1]), &decoded))
	assert.Equal(t, records[1].ID, decoded.ID)
	assert.Equal(t, "b", decoded.TenantID)
}

func TestS3Writer_EmptyBatchAndErrors(t *testing.T) {
	putter := &fakePutter{}
	w := NewS3WriterWithClient(putter, "archive", "", "pod")

	key, err := w.WriteBatch(context.Background(), nil)
	require.NoError(t, err)
	assert.Empty(t, key)
	assert.Empty(t, putter.inputs)

	putter.err = errors.New("access denied")
	_, err = w.WriteBatch(context.Background(), []models.GenerationRecord{testRecord("a", 0)})
	assert.ErrorContains(t, err, "access denied")
}

func readLines(t *testing.T, path string) []string {
	t.Helper()
	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()

	var lines []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		lines = append(lines, scanner.Text())
	}
	require.NoError(t, scanner.Err())
	return lines
}

func TestFileWriter_WriteBatch(t *testing.T) {
	template := filepath.Join(t.TempDir(), "nested", "generations-%s.jsonl")
	w, err := NewFileWriter(template, 1<<20, 5)
	require.NoError(t, err)
	defer w.Close()

	records := []models.GenerationRecord{testRecord("a", 0.01), testRecord("b", 0.02), testRecord("c", 0)}
	file, err := w.WriteBatch(context.Background(), records)
	require.NoError(t, err)
	assert.Equal(t, w.CurrentFile(), file)

	lines := readLines(t, file)
	require.Len(t, lines, 3)
	assert.Contains(t, lines[0], `"tenant_id":"a"`)
}

func TestFileWriter_RotatesAndCleansUp(t *testing.T) {
	dir := t.TempDir()
	template := filepath.Join(dir, "generations-%s.jsonl")

	// Each record is larger than maxSize, so every record after the first
	// goes to a fresh file.
	w, err := NewFileWriter(template, 64, 2)
	require.NoError(t, err)
	defer w.Close()

	for i := 0; i < 5; i++ {
		_, err := w.WriteBatch(context.Background(), []models.GenerationRecord{testRecord("tenant", float64(i))})
		require.NoError(t, err)
	}

	matches, err := filepath.Glob(filepath.Join(dir, "generations-*.jsonl"))
	require.NoError(t, err)
	assert.Len(t, matches, 2)
	assert.Contains(t, matches, w.CurrentFile())

	lines := readLines(t, w.CurrentFile())
	require.Len(t, lines, 1)
	assert.Contains(t, lines[0], `"cost":4`)
}

func TestFileWriter_Closed(t *testing.T) {
	w, err := NewFileWriter(filepath.Join(t.TempDir(), "g-%s.jsonl"), 0, 0)
	require.NoError(t, err)
	require.NoError(t, w.Close())
	require.NoError(t, w.Close())

	_, err = w.WriteBatch(context.Background(), []models.GenerationRecord{testRecord("a", 0)})
	assert.Error(t, err)
}

func TestNewFileWriter_RequiresTemplate(t *testing.T) {
	_, err := NewFileWriter("", 0, 0)
	assert.Error(t, err)
}

func workerConfig() *queue.Config {
	cfg := queue.DefaultConfig("generations")
	cfg.BatchSize = 10
	cfg.BatchTimeout = 20 * time.Millisecond
	cfg.MaxRetries = 2
	cfg.RetryBackoff = time.Millisecond
	return cfg
}

func TestArchiveWorker_WritesBatches(t *testing.T) {
	cfg := workerConfig()
	q := queue.NewMemoryQueue[models.GenerationRecord](cfg)
	defer q.Close()
	writer := &flakyWriter{}
	worker := NewArchiveWorker(q, queue.NewMemoryDeadLetterQueue[models.GenerationRecord](), writer, cfg)

	ctx := context.Background()
	sink := NewQueueSink(q)
	for i := 0; i < 25; i++ {
		rec := testRecord("tenant", float64(i))
		require.NoError(t, sink.Archive(ctx, &rec))
	}

	worker.Start(ctx)
	assert.Eventually(t, func() bool { return writer.written() == 25 }, 2*time.Second, 10*time.Millisecond)
	require.NoError(t, worker.Stop())
	require.NoError(t, worker.Stop())

	for _, b := range writer.batches {
		assert.LessOrEqual(t, len(b), cfg.BatchSize)
	}
}

func TestArchiveWorker_RetriesThenSucceeds(t *testing.T) {
	cfg := workerConfig()
	q := queue.NewMemoryQueue[models.GenerationRecord](cfg)
	defer q.Close()
	dlq := queue.NewMemoryDeadLetterQueue[models.GenerationRecord]()
	writer := &flakyWriter{failures: 2}
	worker := NewArchiveWorker(q, dlq, writer, cfg)

	err := worker.writeWithRetry(context.Background(), []models.GenerationRecord{testRecord("a", 1)})
	require.NoError(t, err)
	assert.Equal(t, 3, writer.calls)

	items, err := worker.DeadLetterItems(context.Background(), 10)
	require.NoError(t, err)
	assert.Empty(t, items)
}

func TestArchiveWorker_DeadLettersAndReplays(t *testing.T) {
	cfg := workerConfig()
	q := queue.NewMemoryQueue[models.GenerationRecord](cfg)
	defer q.Close()
	dlq := queue.NewMemoryDeadLetterQueue[models.GenerationRecord]()
	writer := &flakyWriter{failures: 100}
	worker := NewArchiveWorker(q, dlq, writer, cfg)
	ctx := context.Background()

	records := []models.GenerationRecord{testRecord("a", 1), testRecord("b", 2)}
	err := worker.writeWithRetry(ctx, records)
	require.ErrorIs(t, err, queue.ErrMaxRetriesExceeded)
	assert.Equal(t, cfg.MaxRetries+1, writer.calls)

	items, err := worker.DeadLetterItems(ctx, 10)
	require.NoError(t, err)
	require.Len(t, items, 2)
	assert.Equal(t, "bucket unavailable", items[0].Error)
	assert.Equal(t, cfg.MaxRetries, items[0].Retries)

	require.NoError(t, worker.RetryDeadLetterItem(ctx, items[0].ID))
	assert.ErrorIs(t, worker.RetryDeadLetterItem(ctx, items[0].ID), queue.ErrItemNotFound)

	length, err := worker.QueueLength(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, length)

	remaining, err := worker.DeadLetterItems(ctx, 10)
	require.NoError(t, err)
	assert.Len(t, remaining, 1)
}

func TestArchiveWorker_StopFlushesQueue(t *testing.T) {
	cfg := workerConfig()
	cfg.BatchSize = 2
	q := queue.NewMemoryQueue[models.GenerationRecord](cfg)
	defer q.Close()
	writer := &flakyWriter{}
	worker := NewArchiveWorker(q, nil, writer, cfg)
	ctx := context.Background()

	for i := 0; i < 7; i++ {
		require.NoError(t, q.Enqueue(ctx, testRecord("t", float64(i))))
	}

	worker.flush(ctx)
	assert.Equal(t, 7, writer.written())

	items, err := worker.DeadLetterItems(ctx, 10)
	require.NoError(t, err)
	assert.Nil(t, items)
	assert.ErrorIs(t, worker.RetryDeadLetterItem(ctx, "missing"), queue.ErrItemNotFound)
}
