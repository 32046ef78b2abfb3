package logging_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"mqfile/internal/config"
	"mqfile/internal/logging"
)

func TestNewFromConfigConsole(t *testing.T) {
	cfg := config.Default()
	cfg.Logging.File = filepath.Join(t.TempDir(), "logs", "mqfile.log")

	logger, err := logging.NewFromConfig(&cfg)
	if err != nil {
		t.Fatalf("NewFromConfig returned error: %v", err)
	}
	if logger == nil {
		t.Fatal("expected logger instance")
	}
	logger.Info("server started", logging.Int(logging.FieldQueueKey, 42))

	content, err := os.ReadFile(cfg.Logging.File)
	if err != nil {
		t.Fatalf("read log file: %v", err)
	}
	var record map[string]any
	if err := json.Unmarshal(bytes.TrimSpace(content), &record); err != nil {
		t.Fatalf("log file should hold JSON records, got %q: %v", content, err)
	}
	if record["msg"] != "server started" {
		t.Fatalf("unexpected msg: %v", record["msg"])
	}
	if record["queue_key"] != float64(42) {
		t.Fatalf("unexpected queue_key: %v", record["queue_key"])
	}
}

func TestConsoleLoggerRendersSubjectAndFields(t *testing.T) {
	var buf bytes.Buffer
	logger, err := logging.New(logging.Options{Format: "console", Level: "info", Output: &buf})
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}

	logger = logging.NewComponentLogger(logger, "server")
	ctx := logging.WithTransferID(context.Background(), "0123456789abcdef")
	ctx = logging.WithRequester(ctx, 4242)
	logging.WithContext(ctx, logger).Info("transfer complete", logging.String(logging.FieldFilename, "notes one.txt"))

	line := buf.String()
	if !strings.Contains(line, " INFO server[01234567]: transfer complete") {
		t.Fatalf("unexpected subject in %q", line)
	}
	if !strings.Contains(line, "requester=4242") {
		t.Fatalf("expected requester field in %q", line)
	}
	if !strings.Contains(line, `filename="notes one.txt"`) {
		t.Fatalf("expected quoted filename in %q", line)
	}
	if strings.Contains(line, ".go:") {
		t.Fatalf("expected no caller information in info logs, got %q", line)
	}
}

func TestConsoleLoggerFiltersBelowLevel(t *testing.T) {
	var buf bytes.Buffer
	logger, err := logging.New(logging.Options{Format: "console", Level: "warn", Output: &buf})
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}
	logger.Info("hidden")
	logger.Debug("hidden")
	if buf.Len() != 0 {
		t.Fatalf("expected no output below warn, got %q", buf.String())
	}
}

func TestDebugLoggerIncludesCaller(t *testing.T) {
	var buf bytes.Buffer
	logger, err := logging.New(logging.Options{Format: "console", Level: "debug", Output: &buf})
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}
	logger.Debug("poll")
	if !strings.Contains(buf.String(), "logger_test.go:") {
		t.Fatalf("expected caller in debug output, got %q", buf.String())
	}
}

func TestNewRejectsUnknownFormat(t *testing.T) {
	if _, err := logging.New(logging.Options{Format: "xml"}); err == nil {
		t.Fatal("expected error for unsupported format")
	}
}

func TestWarnWithContextInjectsDefaults(t *testing.T) {
	var buf bytes.Buffer
	logger, err := logging.New(logging.Options{Format: "json", Level: "info", Output: &buf})
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}

	logging.WarnWithContext(logger, "queue already removed", "queue_remove",
		logging.String(logging.FieldImpact, "nothing to clean up"),
		logging.Error(errors.New("gone")),
	)

	var record map[string]any
	if err := json.Unmarshal(buf.Bytes(), &record); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if record[logging.FieldEventType] != "queue_remove" {
		t.Fatalf("missing event_type: %v", record)
	}
	if record[logging.FieldErrorHint] == "" || record[logging.FieldErrorHint] == nil {
		t.Fatalf("missing error_hint: %v", record)
	}
	if record[logging.FieldImpact] != "nothing to clean up" {
		t.Fatalf("impact should not be overridden: %v", record)
	}
	if record["level"] != "warn" {
		t.Fatalf("unexpected level: %v", record["level"])
	}
}

func TestNopLoggerDiscards(t *testing.T) {
	logger := logging.NewNop()
	if logger.Enabled(context.Background(), 100) {
		t.Fatal("nop logger should be disabled at every level")
	}
	logging.WarnWithContext(nil, "ignored", "noop")
}
