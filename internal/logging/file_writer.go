package logging

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"ai_selector/internal/models"
	"ai_selector/internal/utils"
)

// FileWriter appends generation records to rotating JSON Lines files. It is
// the archive target for deployments without object storage.
type FileWriter struct {
	fileTemplate string // e.g. "/var/lib/selector/generations-%s.jsonl"
	maxSize      int64  // bytes before rotation
	maxFiles     int    // rotated files to keep

	mu          sync.Mutex
	currentFile string
	file        *os.File
	writer      *bufio.Writer
	currentSize int64
	seq         int
	now         func() time.Time
	logger      *utils.Logger
}

// NewFileWriter opens the first file. fileTemplate must contain one %s, which
// is replaced by a timestamp.
func NewFileWriter(fileTemplate string, maxSize int64, maxFiles int) (*FileWriter, error) {
	if fileTemplate == "" {
		return nil, fmt.Errorf("file template is required")
	}
	if maxSize <= 0 {
		maxSize = 100 << 20
	}
	if maxFiles <= 0 {
		maxFiles = 10
	}

	w := &FileWriter{
		fileTemplate: fileTemplate,
		maxSize:      maxSize,
		maxFiles:     maxFiles,
		now:          time.Now,
		logger:       utils.NewLogger("file-writer"),
	}
	if err := w.openFile(); err != nil {
		return nil, err
	}
	return w, nil
}

// newFileName stamps the template. The sequence suffix keeps names unique
// when several rotations happen within one second.
func (w *FileWriter) newFileName() string {
	w.seq++
	stamp := fmt.Sprintf("%s-%04d", w.now().UTC().Format("20060102150405"), w.seq)
	return fmt.Sprintf(w.fileTemplate, stamp)
}

func (w *FileWriter) openFile() error {
	w.currentFile = w.newFileName()
	dir := filepath.Dir(w.currentFile)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create directory %s: %w", dir, err)
	}

	file, err := os.OpenFile(w.currentFile, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
	if err != nil {
		return err
	}
	fi, err := file.Stat()
	if err != nil {
		file.Close()
		return err
	}
	w.currentSize = fi.Size()
	w.file = file
	w.writer = bufio.NewWriter(file)
	return nil
}

// rotateIfNeeded closes the current file when n more bytes would exceed
// maxSize. An empty file is never rotated. Caller holds mu.
func (w *FileWriter) rotateIfNeeded(n int) error {
	if w.currentSize == 0 || w.currentSize+int64(n) < w.maxSize {
		return nil
	}

	if err := w.writer.Flush(); err != nil {
		return err
	}
	if err := w.file.Close(); err != nil {
		return err
	}
	if err := w.openFile(); err != nil {
		return err
	}
	return w.cleanupOldFiles()
}

// cleanupOldFiles removes the oldest files beyond maxFiles. Names sort
// chronologically because of the timestamp stamp.
func (w *FileWriter) cleanupOldFiles() error {
	matches, err := filepath.Glob(fmt.Sprintf(w.fileTemplate, "*"))
	if err != nil {
		return err
	}
	sort.Strings(matches)

	for i := 0; i < len(matches)-w.maxFiles; i++ {
		if matches[i] == w.currentFile {
			continue
		}
		if err := os.Remove(matches[i]); err != nil && !os.IsNotExist(err) {
			w.logger.Warn("Failed to remove rotated file", "file", matches[i], "error", err)
		}
	}
	return nil
}

// WriteBatch appends the records and flushes. It returns the file holding the
// last record.
func (w *FileWriter) WriteBatch(ctx context.Context, records []models.GenerationRecord) (string, error) {
	if len(records) == 0 {
		return "", nil
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	if w.file == nil {
		return "", fmt.Errorf("file writer is closed")
	}

	for i := range records {
		if err := ctx.Err(); err != nil {
			return "", err
		}
		data, err := json.Marshal(&records[i])
		if err != nil {
			w.logger.Error("Failed to encode record", "id", records[i].ID.String(), "error", err)
			continue
		}
		data = append(data, '\n')

		if err := w.rotateIfNeeded(len(data)); err != nil {
			return "", fmt.Errorf("failed to rotate %s: %w", w.currentFile, err)
		}
		if _, err := w.writer.Write(data); err != nil {
			return "", fmt.Errorf("failed to write %s: %w", w.currentFile, err)
		}
		w.currentSize += int64(len(data))
	}

	if err := w.writer.Flush(); err != nil {
		return "", fmt.Errorf("failed to flush %s: %w", w.currentFile, err)
	}
	return w.currentFile, nil
}

// CurrentFile returns the active file name.
func (w *FileWriter) CurrentFile() string {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.currentFile
}

// Close flushes and closes the active file. It is safe to call twice.
func (w *FileWriter) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.file == nil {
		return nil
	}
	flushErr := w.writer.Flush()
	closeErr := w.file.Close()
	w.file = nil
	if flushErr != nil {
		return flushErr
	}
	return closeErr
}
