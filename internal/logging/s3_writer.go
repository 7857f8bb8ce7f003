package logging

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"ai_selector/internal/models"
	"ai_selector/internal/utils"
)

// BatchWriter persists a batch of generation records and returns where they
// were written.
type BatchWriter interface {
	WriteBatch(ctx context.Context, records []models.GenerationRecord) (string, error)
}

// ObjectPutter is the subset of *s3.Client used by S3Writer.
type ObjectPutter interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// S3Writer handles writing batches of generation records to S3
type S3Writer struct {
	client  ObjectPutter
	bucket  string
	prefix  string
	podName string
	now     func() time.Time
	logger  *utils.Logger
}

// NewS3Writer creates a writer using the default AWS credential chain.
func NewS3Writer(ctx context.Context, bucket, region, prefix, podName string) (*S3Writer, error) {
	cfg, err := config.LoadDefaultConfig(ctx, config.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	return NewS3WriterWithClient(s3.NewFromConfig(cfg), bucket, prefix, podName), nil
}

// NewS3WriterWithClient creates a writer around an existing client.
func NewS3WriterWithClient(client ObjectPutter, bucket, prefix, podName string) *S3Writer {
	return &S3Writer{
		client:  client,
		bucket:  bucket,
		prefix:  prefix,
		podName: podName,
		now:     time.Now,
		logger:  utils.NewLogger("s3-writer"),
	}
}

// objectKey builds prefix/YYYY/MM/DD/<pod>-<YYYYMMDD-HHMMSS>-<nanos>.jsonl in UTC.
func (w *S3Writer) objectKey(now time.Time) string {
	now = now.UTC()
	return fmt.Sprintf("%s%04d/%02d/%02d/%s-%s-%d.jsonl",
		w.prefix,
		now.Year(),
		now.Month(),
		now.Day(),
		w.podName,
		now.Format("20060102-150405"),
		now.Nanosecond(),
	)
}

// WriteBatch writes the records as one JSON Lines object and returns its key.
// An empty batch writes nothing.
func (w *S3Writer) WriteBatch(ctx context.Context, records []models.GenerationRecord) (string, error) {
	if len(records) == 0 {
		return "", nil
	}

	key := w.objectKey(w.now())

	var buf bytes.Buffer
	encoder := json.NewEncoder(&buf)
	for i := range records {
		if err := encoder.Encode(&records[i]); err != nil {
			w.logger.Error("Failed to encode record", "id", records[i].ID.String(), "error", err)
			continue
		}
	}

	_, err := w.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(w.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(buf.Bytes()),
		ContentType: aws.String("application/x-ndjson"),
	})
	if err != nil {
		return "", fmt.Errorf("failed to upload to S3: %w", err)
	}

	w.logger.Info("Wrote batch to S3", "key", key, "count", len(records), "bytes", buf.Len())
	return key, nil
}
