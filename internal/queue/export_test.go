package queue_test

import (
	"bytes"
	"errors"
	"strings"
	"testing"
	"time"

	"conveyor/internal/queue"
	"conveyor/internal/services"
)

func sampleTask() *queue.Task {
	started := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	completed := started.Add(90 * time.Second)
	return &queue.Task{
		ID:           "3f6f7a9c-0000-4000-8000-000000000001",
		UploadID:     "upload-42",
		FilePath:     "/uploads/report.pdf",
		FileType:     "pdf",
		Priority:     queue.PriorityHigh,
		Status:       queue.StatusCompleted,
		PipelineID:   "document",
		Stages:       []queue.Stage{queue.StageValidated, queue.StageOCRProcessed, queue.StageThumbnailGenerated},
		CurrentStage: queue.StageThumbnailGenerated,
		Progress:     1.0,
		StartedAt:    &started,
		CompletedAt:  &completed,
		RetryCount:   1,
		MaxRetries:   3,
		AutoProcess:  true,
		Metadata:     map[string]any{"file_size": float64(2048), "pages": float64(12)},
		ProcessingLog: []string{
			"2026-03-01T10:00:05Z stage validated completed",
			"2026-03-01T10:01:30Z stage thumbnail_generated completed",
		},
		Dependencies: []string{"3f6f7a9c-0000-4000-8000-000000000000"},
		CreatedAt:    started.Add(-time.Minute),
		UpdatedAt:    completed,
	}
}

func TestExportImportRoundTrip(t *testing.T) {
	original := sampleTask()

	var buf bytes.Buffer
	if err := queue.Export(&buf, []*queue.Task{original}); err != nil {
		t.Fatalf("export: %v", err)
	}

	tasks, err := queue.Import(&buf)
	if err != nil {
		t.Fatalf("import: %v", err)
	}
	if len(tasks) != 1 {
		t.Fatalf("imported %d tasks", len(tasks))
	}
	got := tasks[0]

	if got.ID != original.ID || got.FilePath != original.FilePath {
		t.Fatalf("identity fields lost: %+v", got)
	}
	if got.Priority != queue.PriorityHigh || got.Status != queue.StatusCompleted {
		t.Fatalf("enum fields lost: priority=%s status=%s", got.Priority, got.Status)
	}
	if len(got.Stages) != 3 || got.Stages[1] != queue.StageOCRProcessed {
		t.Fatalf("stages lost: %v", got.Stages)
	}
	if got.CurrentStage != queue.StageThumbnailGenerated {
		t.Fatalf("current stage = %s", got.CurrentStage)
	}
	if got.StartedAt == nil || !got.StartedAt.Equal(*original.StartedAt) {
		t.Fatalf("started_at lost: %v", got.StartedAt)
	}
	if got.CompletedAt == nil || !got.CompletedAt.Equal(*original.CompletedAt) {
		t.Fatalf("completed_at lost: %v", got.CompletedAt)
	}
	if got.RetryCount != 1 || got.MaxRetries != 3 {
		t.Fatalf("retry fields lost: %d/%d", got.RetryCount, got.MaxRetries)
	}
	if got.FileSize() != 2048 {
		t.Fatalf("file size = %d", got.FileSize())
	}
	if len(got.ProcessingLog) != 2 || len(got.Dependencies) != 1 {
		t.Fatalf("log/deps lost: %v %v", got.ProcessingLog, got.Dependencies)
	}
	// Pipeline binding and scheduling are not part of the document format;
	// the importer decides both before storing.
	if got.PipelineID != "" || got.AutoProcess {
		t.Fatalf("import decided pipeline/scheduling: %q %v", got.PipelineID, got.AutoProcess)
	}
}

func TestExportNullableFields(t *testing.T) {
	task := sampleTask()
	task.Status = queue.StatusPending
	task.CurrentStage = ""
	task.StartedAt = nil
	task.CompletedAt = nil
	task.ErrorMessage = ""

	var buf bytes.Buffer
	if err := queue.Export(&buf, []*queue.Task{task}); err != nil {
		t.Fatalf("export: %v", err)
	}
	out := buf.String()
	for _, snippet := range []string{`"current_stage": null`, `"started_at": null`, `"error_message": null`} {
		if !strings.Contains(out, snippet) {
			t.Fatalf("export missing %s:\n%s", snippet, out)
		}
	}
}

func TestImportRejectsUnknownStatus(t *testing.T) {
	var buf bytes.Buffer
	if err := queue.Export(&buf, []*queue.Task{sampleTask()}); err != nil {
		t.Fatalf("export: %v", err)
	}
	mangled := strings.Replace(buf.String(), `"completed"`, `"obliterated"`, 1)

	_, err := queue.Import(strings.NewReader(mangled))
	if err == nil {
		t.Fatal("expected import failure")
	}
	if !errors.Is(err, services.ErrValidation) {
		t.Fatalf("error = %v, want ErrValidation", err)
	}
}

func TestImportRejectsRetryCountOverLimit(t *testing.T) {
	task := sampleTask()
	task.RetryCount = 5
	task.MaxRetries = 3

	var buf bytes.Buffer
	if err := queue.Export(&buf, []*queue.Task{task}); err != nil {
		t.Fatalf("export: %v", err)
	}

	_, err := queue.Import(&buf)
	if err == nil {
		t.Fatal("expected import failure")
	}
	if !errors.Is(err, services.ErrValidation) {
		t.Fatalf("error = %v, want ErrValidation", err)
	}
}

func TestImportRejectsNonArray(t *testing.T) {
	_, err := queue.Import(strings.NewReader(`{"id": "x"}`))
	if err == nil {
		t.Fatal("expected import failure")
	}
	if !errors.Is(err, services.ErrValidation) {
		t.Fatalf("error = %v, want ErrValidation", err)
	}
}
