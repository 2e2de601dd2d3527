package logging

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"
)

func TestNewJSONFiltersLevel(t *testing.T) {
	var buf bytes.Buffer
	logger := New(&buf, "warn", "json")

	logger.Info("hidden")
	logger.Warn("shown", "file", "a.vol")

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 1 {
		t.Fatalf("Expected 1 log line, got %d: %q", len(lines), buf.String())
	}

	var entry map[string]any
	if err := json.Unmarshal([]byte(lines[0]), &entry); err != nil {
		t.Fatalf("Expected JSON output: %v", err)
	}
	if entry["msg"] != "shown" || entry["file"] != "a.vol" {
		t.Errorf("Unexpected entry %v", entry)
	}
}

func TestNewTextDefaultsToInfo(t *testing.T) {
	var buf bytes.Buffer
	logger := New(&buf, "bogus", "text")

	logger.Debug("hidden")
	logger.Info("shown")

	if strings.Contains(buf.String(), "hidden") {
		t.Errorf("Debug output should be filtered at info level")
	}
	if !strings.Contains(buf.String(), "msg=shown") {
		t.Errorf("Expected text output, got %q", buf.String())
	}
}
