package telemetry

import (
	"bytes"
	"encoding/json"
	"errors"
	"strings"
	"testing"
)

func TestWriteEmitsFlatJSON(t *testing.T) {
	var buf bytes.Buffer
	restore := SetOutput(&buf)
	defer restore()

	Error("pipeline.extract.failed", map[string]any{
		"resume_id": "r-1",
		"error":     errors.New("tesseract: bad image"),
	})

	line := strings.TrimSpace(buf.String())
	var payload map[string]any
	if err := json.Unmarshal([]byte(line), &payload); err != nil {
		t.Fatalf("decode log line %q: %v", line, err)
	}
	if payload["level"] != "error" {
		t.Fatalf("unexpected level: %v", payload["level"])
	}
	if payload["msg"] != "pipeline.extract.failed" {
		t.Fatalf("unexpected msg: %v", payload["msg"])
	}
	if payload["resume_id"] != "r-1" {
		t.Fatalf("unexpected resume_id: %v", payload["resume_id"])
	}
	if payload["error"] != "tesseract: bad image" {
		t.Fatalf("expected error string, got %v", payload["error"])
	}
	if _, ok := payload["ts"]; !ok {
		t.Fatalf("missing ts field")
	}
}

func TestWarnLevelName(t *testing.T) {
	var buf bytes.Buffer
	restore := SetOutput(&buf)
	defer restore()

	Warn("llm.artifact.write_failed", nil)

	if !strings.Contains(buf.String(), `"level":"warn"`) {
		t.Fatalf("expected warn level, got %s", buf.String())
	}
}
