package local

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// PageSeparator follows every page written to an AppendLog.
const PageSeparator = "\n\n"

// AppendLog is an append-only text file of page markup. Each append opens,
// writes and closes the file so everything saved survives a crash.
type AppendLog struct {
	path string
}

// NewAppendLog returns an AppendLog at path, creating its directory when needed.
// Existing content is kept.
func NewAppendLog(path string) (*AppendLog, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("append log path is required")
	}
	if dir := filepath.Dir(path); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o750); err != nil {
			return nil, fmt.Errorf("failed to create parent directories: %w", err)
		}
	}
	return &AppendLog{path: path}, nil
}

// Path returns the file being appended to.
func (l *AppendLog) Path() string {
	return l.path
}

// AppendPage writes markup followed by PageSeparator and returns the bytes written.
func (l *AppendLog) AppendPage(ctx context.Context, _ int, markup string) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	// #nosec G304 -- the path comes from operator configuration.
	f, err := os.OpenFile(l.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return 0, fmt.Errorf("open %s: %w", l.path, err)
	}
	n, err := f.WriteString(markup + PageSeparator)
	if err != nil {
		_ = f.Close()
		return n, fmt.Errorf("append to %s: %w", l.path, err)
	}
	if err := f.Close(); err != nil {
		return n, fmt.Errorf("close %s: %w", l.path, err)
	}
	return n, nil
}
