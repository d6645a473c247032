package logging

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"testing"

	"conveyor/internal/services"
)

func TestConsoleHandlerIncludesComponentAndAttrs(t *testing.T) {
	var buf bytes.Buffer
	lvl := new(slog.LevelVar)
	logger := slog.New(newConsoleHandler(&buf, lvl))

	NewComponentLogger(logger, "task-runner").Info("stage completed",
		String(FieldStage, "validated"),
		Int("attempt", 1),
	)

	line := buf.String()
	for _, fragment := range []string{"INFO", "task-runner:", "stage completed", "stage=validated", "attempt=1"} {
		if !strings.Contains(line, fragment) {
			t.Fatalf("log line %q missing %q", line, fragment)
		}
	}
}

func TestJSONHandlerFieldNames(t *testing.T) {
	var buf bytes.Buffer
	lvl := new(slog.LevelVar)
	logger := slog.New(newJSONHandler(&buf, lvl, false))

	logger.Info("submitted", String(FieldTaskID, "abc"))

	var record map[string]any
	if err := json.Unmarshal(buf.Bytes(), &record); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if record["msg"] != "submitted" {
		t.Fatalf("msg = %v", record["msg"])
	}
	if record["level"] != "info" {
		t.Fatalf("level = %v", record["level"])
	}
	if record[FieldTaskID] != "abc" {
		t.Fatalf("task_id = %v", record[FieldTaskID])
	}
	if _, ok := record["ts"]; !ok {
		t.Fatal("expected ts field")
	}
}

func TestWithContextDerivesFields(t *testing.T) {
	var buf bytes.Buffer
	lvl := new(slog.LevelVar)
	logger := slog.New(newConsoleHandler(&buf, lvl))

	ctx := services.WithTaskID(context.Background(), "task-1")
	ctx = services.WithStage(ctx, "scanned")
	ctx = services.WithPipeline(ctx, "document")

	WithContext(ctx, logger).Info("hello")

	line := buf.String()
	for _, fragment := range []string{"task_id=task-1", "stage=scanned", "pipeline=document"} {
		if !strings.Contains(line, fragment) {
			t.Fatalf("log line %q missing %q", line, fragment)
		}
	}
}

func TestParseLevelFallsBackToInfo(t *testing.T) {
	if parseLevel("nonsense") != slog.LevelInfo {
		t.Fatal("expected fallback to info")
	}
	if parseLevel("debug") != slog.LevelDebug {
		t.Fatal("expected debug")
	}
}
