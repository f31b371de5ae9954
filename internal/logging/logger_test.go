package logging

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
)

func TestNewLoggerLevels(t *testing.T) {
	for _, level := range []string{"debug", "info", "warn", "error", "", "bogus"} {
		logger, err := NewLogger(level, "json", "")
		if err != nil {
			t.Fatalf("NewLogger(%q) error: %v", level, err)
		}
		if logger == nil {
			t.Fatalf("NewLogger(%q) returned nil logger", level)
		}
	}
}

func TestNewLoggerFileOutput(t *testing.T) {
	path := filepath.Join(t.TempDir(), "gateway.log")

	logger, err := NewLogger("info", "json", path)
	if err != nil {
		t.Fatalf("NewLogger() error: %v", err)
	}

	logger.Info("startup complete")
	_ = logger.Sync()

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read log file: %v", err)
	}

	var line map[string]any
	if err := json.Unmarshal(data, &line); err != nil {
		t.Fatalf("log line is not valid JSON: %v", err)
	}
	if line["msg"] != "startup complete" {
		t.Errorf("msg = %v, want startup complete", line["msg"])
	}
	if line["level"] != "info" {
		t.Errorf("level = %v, want info", line["level"])
	}
}

func TestNewLoggerBadFilePath(t *testing.T) {
	if _, err := NewLogger("info", "json", filepath.Join(t.TempDir(), "missing", "dir", "x.log")); err == nil {
		t.Error("expected error for unwritable log file path")
	}
}
