package logging

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"go.uber.org/zap"

	"github.com/tomyedwab/cratedb/config"
)

func TestNewJSONConsole(t *testing.T) {
	var buf bytes.Buffer
	logger, err := newLogger(config.Log{Level: "info"}, &buf)
	if err != nil {
		t.Fatalf("newLogger returned error: %v", err)
	}

	logger.Debug("hidden")
	logger.Info("exchange finished", zap.Int64("rowcount", 2))
	_ = logger.Sync()

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 1 {
		t.Fatalf("expected 1 log line, got %d: %q", len(lines), buf.String())
	}
	var entry map[string]any
	if err := json.Unmarshal([]byte(lines[0]), &entry); err != nil {
		t.Fatalf("log line is not JSON: %v", err)
	}
	if entry["msg"] != "exchange finished" || entry["logger"] != "cratedb" {
		t.Errorf("unexpected entry: %v", entry)
	}
	if entry["rowcount"] != float64(2) {
		t.Errorf("rowcount field = %v", entry["rowcount"])
	}
}

func TestNewWritesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "client.log")
	var buf bytes.Buffer
	logger, err := newLogger(config.Log{Level: "debug", Development: true, File: path, MaxSizeMB: 1}, &buf)
	if err != nil {
		t.Fatalf("newLogger returned error: %v", err)
	}

	logger.Debug("connected", zap.String("addr", "127.0.0.1:4200"))
	_ = logger.Sync()

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("Failed to read log file: %v", err)
	}
	if !strings.Contains(string(data), `"addr":"127.0.0.1:4200"`) {
		t.Errorf("log file lacks entry: %q", data)
	}
	if !strings.Contains(buf.String(), "connected") {
		t.Errorf("console lacks entry: %q", buf.String())
	}
}

func TestNewInvalidLevel(t *testing.T) {
	if _, err := New(config.Log{Level: "loud"}); err == nil {
		t.Fatal("expected error for invalid level")
	}
}
