package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
)

// FileLogger appends audit entries to a file with immutable semantics.
// Entries are written as JSON lines (JSONL) for easy parsing. It is safe
// for concurrent use.
type FileLogger struct {
	file   *os.File
	writer io.Writer
	mutex  sync.Mutex
	path   string
}

// FileLoggerConfig holds configuration for the file-backed audit sink.
type FileLoggerConfig struct {
	// FilePath is the path to the audit log file.
	FilePath string
	// CreateDir determines whether to create parent directories if they don't exist.
	CreateDir bool
}

// NewFileLogger creates an audit sink that appends to the specified file.
func NewFileLogger(config FileLoggerConfig) (*FileLogger, error) {
	if config.FilePath == "" {
		return nil, fmt.Errorf("audit log file path cannot be empty")
	}

	if config.CreateDir {
		dir := filepath.Dir(config.FilePath)
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create audit log directory: %w", err)
		}
	}

	file, err := os.OpenFile(config.FilePath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return nil, fmt.Errorf("failed to open audit log file: %w", err)
	}

	return &FileLogger{
		file:   file,
		writer: file,
		path:   config.FilePath,
	}, nil
}

// Append writes an audit entry to the log. This method is thread-safe.
// A cancelled context aborts before anything is written; the write itself
// is a single buffered syscall and is not interruptible.
func (l *FileLogger) Append(ctx context.Context, entry *Entry) error {
	if entry == nil {
		return fmt.Errorf("audit entry cannot be nil")
	}
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("audit append aborted: %w", err)
	}

	l.mutex.Lock()
	defer l.mutex.Unlock()

	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("failed to marshal audit entry: %w", err)
	}

	if _, err := l.writer.Write(data); err != nil {
		return fmt.Errorf("failed to write audit entry: %w", err)
	}

	if _, err := l.writer.Write([]byte("\n")); err != nil {
		return fmt.Errorf("failed to write newline: %w", err)
	}

	// Sync to ensure data is written to disk
	if syncer, ok := l.writer.(interface{ Sync() error }); ok {
		if err := syncer.Sync(); err != nil {
			return fmt.Errorf("failed to sync audit log: %w", err)
		}
	}

	return nil
}

// Close closes the audit log file. After calling Close, the logger should
// not be used for appending.
func (l *FileLogger) Close() error {
	l.mutex.Lock()
	defer l.mutex.Unlock()

	if l.file != nil {
		err := l.file.Close()
		l.file = nil
		return err
	}
	return nil
}

// Path returns the file path of the audit log.
func (l *FileLogger) Path() string {
	return l.path
}

// NewNullLogger creates a sink that discards all entries. Useful for
// testing or when the file sink is disabled.
func NewNullLogger() *FileLogger {
	return &FileLogger{
		writer: io.Discard,
	}
}
