package audit

import (
	"bufio"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
)

func TestFileLoggerAppend(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "audit.log")

	logger, err := NewFileLogger(FileLoggerConfig{FilePath: path})
	if err != nil {
		t.Fatalf("NewFileLogger() error: %v", err)
	}
	defer logger.Close()

	first := NewEntry(ActionGenerateKey, "admin", TargetAPIKey, "key-1", "Census Bureau").
		WithDetail("tier", "premium").
		WithClient("10.0.0.1", "curl/8.0")
	second := NewEntry(ActionRevokeKey, "admin", TargetAPIKey, "key-1", "Census Bureau")

	if err := logger.Append(ctx, first); err != nil {
		t.Fatalf("Append() error: %v", err)
	}
	if err := logger.Append(ctx, second); err != nil {
		t.Fatalf("Append() error: %v", err)
	}

	f, err := os.Open(path)
	if err != nil {
		t.Fatalf("open audit log: %v", err)
	}
	defer f.Close()

	var entries []Entry
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		var e Entry
		if err := json.Unmarshal(scanner.Bytes(), &e); err != nil {
			t.Fatalf("line is not valid JSON: %v", err)
		}
		entries = append(entries, e)
	}
	if err := scanner.Err(); err != nil {
		t.Fatalf("scan: %v", err)
	}

	if len(entries) != 2 {
		t.Fatalf("got %d entries, want 2", len(entries))
	}
	if entries[0].Action != ActionGenerateKey || entries[1].Action != ActionRevokeKey {
		t.Errorf("entries out of order: %s, %s", entries[0].Action, entries[1].Action)
	}
	if entries[0].Details["tier"] != "premium" {
		t.Errorf("detail not persisted: %v", entries[0].Details)
	}
	if entries[0].IPAddress != "10.0.0.1" {
		t.Errorf("IPAddress = %s, want 10.0.0.1", entries[0].IPAddress)
	}
	if entries[0].Timestamp.IsZero() {
		t.Error("timestamp should be set")
	}
}

func TestFileLoggerAppendOnly(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "audit.log")

	// Reopening the file must append, never truncate.
	for i := 0; i < 2; i++ {
		logger, err := NewFileLogger(FileLoggerConfig{FilePath: path})
		if err != nil {
			t.Fatalf("NewFileLogger() error: %v", err)
		}
		if err := logger.Append(ctx, NewEntry(ActionEditKey, "admin", TargetAPIKey, "key-1", "EPA")); err != nil {
			t.Fatalf("Append() error: %v", err)
		}
		if err := logger.Close(); err != nil {
			t.Fatalf("Close() error: %v", err)
		}
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read audit log: %v", err)
	}
	if got := countLines(data); got != 2 {
		t.Errorf("got %d lines after reopen, want 2", got)
	}
}

func TestFileLoggerCreatesDir(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "dir", "audit.log")

	if _, err := NewFileLogger(FileLoggerConfig{FilePath: path}); err == nil {
		t.Error("expected error when parent directory is missing and CreateDir is off")
	}

	logger, err := NewFileLogger(FileLoggerConfig{FilePath: path, CreateDir: true})
	if err != nil {
		t.Fatalf("NewFileLogger(CreateDir) error: %v", err)
	}
	defer logger.Close()

	if logger.Path() != path {
		t.Errorf("Path() = %s, want %s", logger.Path(), path)
	}
}

func TestFileLoggerRejectsEmptyPath(t *testing.T) {
	if _, err := NewFileLogger(FileLoggerConfig{}); err == nil {
		t.Error("expected error for empty file path")
	}
}

func TestFileLoggerHonorsCancelledContext(t *testing.T) {
	path := filepath.Join(t.TempDir(), "audit.log")

	logger, err := NewFileLogger(FileLoggerConfig{FilePath: path})
	if err != nil {
		t.Fatalf("NewFileLogger() error: %v", err)
	}
	defer logger.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	entry := NewEntry(ActionGenerateKey, "admin", TargetAPIKey, "key-1", "FDA")
	if err := logger.Append(ctx, entry); err == nil {
		t.Fatal("expected error for cancelled context")
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read audit log: %v", err)
	}
	if len(data) != 0 {
		t.Errorf("aborted append wrote %d bytes, want 0", len(data))
	}
}

func TestFileLoggerRejectsNilEntry(t *testing.T) {
	logger := NewNullLogger()
	if err := logger.Append(context.Background(), nil); err == nil {
		t.Error("expected error for nil entry")
	}
}

func TestNullLogger(t *testing.T) {
	logger := NewNullLogger()
	if err := logger.Append(context.Background(), NewEntry(ActionPurgeCache, "admin", TargetCache, "volunteers", "")); err != nil {
		t.Errorf("null logger Append() error: %v", err)
	}
	if err := logger.Close(); err != nil {
		t.Errorf("null logger Close() error: %v", err)
	}
}

func countLines(data []byte) int {
	n := 0
	for _, b := range data {
		if b == '\n' {
			n++
		}
	}
	return n
}
