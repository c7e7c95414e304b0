package extractor

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/JakeFAU/midcolumbia-catalog/internal/catalog"
)

// JSONLWriter appends records to a newline-delimited JSON file.
type JSONLWriter struct {
	file   *os.File
	writer *bufio.Writer
	mu     sync.Mutex
}

// NewJSONLWriter opens filename for appending, creating it and its directory
// when needed. Existing content is kept.
func NewJSONLWriter(filename string) (*JSONLWriter, error) {
	if err := ensureDir(filename); err != nil {
		return nil, err
	}
	// #nosec G304 -- the output path comes from operator configuration.
	f, err := os.OpenFile(filename, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open jsonl file: %w", err)
	}
	return &JSONLWriter{file: f, writer: bufio.NewWriter(f)}, nil
}

// WriteRecord appends one line and flushes it.
func (jw *JSONLWriter) WriteRecord(_ context.Context, rec *catalog.Record) error {
	line, err := rec.MarshalLine()
	if err != nil {
		return fmt.Errorf("encode jsonl record: %w", err)
	}

	jw.mu.Lock()
	defer jw.mu.Unlock()

	if _, err := jw.writer.Write(line); err != nil {
		return fmt.Errorf("write jsonl record: %w", err)
	}
	if err := jw.writer.Flush(); err != nil {
		return fmt.Errorf("flush jsonl writer: %w", err)
	}
	return nil
}

// Path returns the file being written.
func (jw *JSONLWriter) Path() string {
	return jw.file.Name()
}

// Close flushes buffers and closes the underlying file.
func (jw *JSONLWriter) Close() error {
	jw.mu.Lock()
	defer jw.mu.Unlock()

	if err := jw.writer.Flush(); err != nil {
		return fmt.Errorf("flush jsonl writer: %w", err)
	}
	return jw.file.Close()
}

func ensureDir(filename string) error {
	dir := filepath.Dir(filename)
	if dir == "" || dir == "." {
		return nil
	}
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return fmt.Errorf("create directory %q: %w", dir, err)
	}
	return nil
}
