// ABOUTME: Tests for logger initialization
// ABOUTME: Verifies level parsing, level filtering and file output

package logger

import (
	"bytes"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in      string
		want    slog.Level
		wantErr bool
	}{
		{"debug", slog.LevelDebug, false},
		{"INFO", slog.LevelInfo, false},
		{"", slog.LevelInfo, false},
		{"warning", slog.LevelWarn, false},
		{"error", slog.LevelError, false},
		{"loud", slog.LevelInfo, true},
	}
	for _, tt := range tests {
		got, err := ParseLevel(tt.in)
		if (err != nil) != tt.wantErr {
			t.Errorf("ParseLevel(%q) error = %v", tt.in, err)
		}
		if got != tt.want {
			t.Errorf("ParseLevel(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestInitWriter_FiltersAndWritesFile(t *testing.T) {
	prev := slog.Default()
	t.Cleanup(func() { slog.SetDefault(prev) })

	var buf bytes.Buffer
	logFile := filepath.Join(t.TempDir(), "herald.log")

	closer, err := InitWriter(&buf, "warn", logFile)
	if err != nil {
		t.Fatalf("InitWriter failed: %v", err)
	}

	slog.Info("hidden")
	slog.Warn("cycle aborted", "cycle", "abc")

	if err := closer.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	out := buf.String()
	if strings.Contains(out, "hidden") {
		t.Errorf("info message should be filtered: %q", out)
	}
	if !strings.Contains(out, "cycle aborted") || !strings.Contains(out, "cycle=abc") {
		t.Errorf("warn message missing: %q", out)
	}

	data, err := os.ReadFile(logFile)
	if err != nil {
		t.Fatalf("read log file: %v", err)
	}
	if !strings.Contains(string(data), "cycle aborted") {
		t.Errorf("log file missing message: %q", data)
	}
}

func TestInitWriter_BadLevel(t *testing.T) {
	if _, err := InitWriter(&bytes.Buffer{}, "shout", ""); err == nil {
		t.Fatal("expected error for unknown level")
	}
}
