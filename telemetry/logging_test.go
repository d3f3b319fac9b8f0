package telemetry

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"path/filepath"
	"strings"
	"testing"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want slog.Level
		ok   bool
	}{
		{"debug", slog.LevelDebug, true},
		{"WARN", slog.LevelWarn, true},
		{"warning", slog.LevelWarn, true},
		{"error", slog.LevelError, true},
		{"", slog.LevelInfo, true},
		{"verbose", slog.LevelInfo, false},
	}
	for _, tt := range tests {
		got, ok := ParseLevel(tt.in)
		if got != tt.want || ok != tt.ok {
			t.Errorf("ParseLevel(%q) = %v, %v, want %v, %v", tt.in, got, ok, tt.want, tt.ok)
		}
	}
}

func TestSetupLoggingJSON(t *testing.T) {
	prev := slog.Default()
	t.Cleanup(func() { slog.SetDefault(prev) })

	var buf bytes.Buffer
	logger, closer := SetupLogging(LogConfig{Level: "debug", Format: "json", Output: &buf})
	defer func() { _ = closer.Close() }()
	logger.Debug("hello", slog.String("k", "v"))

	var last map[string]any
	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if err := json.Unmarshal([]byte(lines[len(lines)-1]), &last); err != nil {
		t.Fatalf("last line is not JSON: %v", err)
	}
	if last["msg"] != "hello" || last["k"] != "v" {
		t.Errorf("last record = %v", last)
	}
}

func TestSetupLoggingUnknownLevelWarns(t *testing.T) {
	prev := slog.Default()
	t.Cleanup(func() { slog.SetDefault(prev) })

	var buf bytes.Buffer
	_, closer := SetupLogging(LogConfig{Level: "loud", Output: &buf})
	defer func() { _ = closer.Close() }()
	if !strings.Contains(buf.String(), "unknown LOG_LEVEL") {
		t.Errorf("no warning for unknown level:\n%s", buf.String())
	}
}

func TestSetupLoggingFile(t *testing.T) {
	prev := slog.Default()
	t.Cleanup(func() { slog.SetDefault(prev) })

	path := filepath.Join(t.TempDir(), "chanscope.log")
	var buf bytes.Buffer
	logger, closer := SetupLogging(LogConfig{FilePath: path, Output: &buf})
	logger.Info("to file")
	if err := closer.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	if !strings.Contains(buf.String(), "to file") {
		t.Error("console output missing record")
	}
}
