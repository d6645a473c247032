package queue_test

import (
	"strings"
	"testing"
	"time"

	"conveyor/internal/queue"
)

func TestParseStage(t *testing.T) {
	cases := []struct {
		input string
		want  queue.Stage
		ok    bool
	}{
		{"validated", queue.StageValidated, true},
		{"  OCR_Processed ", queue.StageOCRProcessed, true},
		{"thumbnail_generated", queue.StageThumbnailGenerated, true},
		{"ripping", "", false},
		{"", "", false},
	}
	for _, tc := range cases {
		got, ok := queue.ParseStage(tc.input)
		if ok != tc.ok {
			t.Fatalf("ParseStage(%q) ok = %v, want %v", tc.input, ok, tc.ok)
		}
		if ok && got != tc.want {
			t.Fatalf("ParseStage(%q) = %s, want %s", tc.input, got, tc.want)
		}
	}
}

func TestParseStatus(t *testing.T) {
	got, ok := queue.ParseStatus("In_Progress")
	if !ok || got != queue.StatusInProgress {
		t.Fatalf("ParseStatus = %s, %v", got, ok)
	}
	if _, ok := queue.ParseStatus("exploded"); ok {
		t.Fatal("unknown status must not parse")
	}
}

func TestStatusPredicates(t *testing.T) {
	for _, status := range []queue.Status{queue.StatusCompleted, queue.StatusFailed, queue.StatusCancelled} {
		if !status.IsTerminal() {
			t.Fatalf("%s should be terminal", status)
		}
	}
	for _, status := range []queue.Status{queue.StatusPending, queue.StatusInProgress, queue.StatusRetrying, queue.StatusPaused} {
		if status.IsTerminal() {
			t.Fatalf("%s should not be terminal", status)
		}
	}
	if !queue.StatusRetrying.IsProcessing() || queue.StatusPaused.IsProcessing() {
		t.Fatal("IsProcessing covers in_progress and retrying only")
	}
}

func TestPriorityOrdering(t *testing.T) {
	priorities := queue.AllPriorities()
	for i := 1; i < len(priorities); i++ {
		if priorities[i].Rank() <= priorities[i-1].Rank() {
			t.Fatalf("priority ranks out of order: %v", priorities)
		}
	}
	if _, ok := queue.ParsePriority("whenever"); ok {
		t.Fatal("unknown priority must not parse")
	}
}

func TestAppendLogTimestampsEntries(t *testing.T) {
	task := &queue.Task{}
	task.AppendLog("stage %s completed", queue.StageValidated)
	if len(task.ProcessingLog) != 1 {
		t.Fatalf("log entries = %d", len(task.ProcessingLog))
	}
	entry := task.ProcessingLog[0]
	if !strings.HasSuffix(entry, "stage validated completed") {
		t.Fatalf("unexpected log entry %q", entry)
	}
	stamp := strings.TrimSuffix(entry, " stage validated completed")
	if _, err := time.Parse(time.RFC3339, stamp); err != nil {
		t.Fatalf("log entry %q has no RFC3339 timestamp: %v", entry, err)
	}
}

func TestSetFailed(t *testing.T) {
	task := &queue.Task{Status: queue.StatusInProgress}
	task.SetFailed("disk full")
	if task.Status != queue.StatusFailed {
		t.Fatalf("status = %s", task.Status)
	}
	if task.ErrorMessage != "disk full" {
		t.Fatalf("error message = %q", task.ErrorMessage)
	}
	if task.CompletedAt == nil {
		t.Fatal("completed_at must be set")
	}
}

func TestMergeMetadata(t *testing.T) {
	task := &queue.Task{}
	task.MergeMetadata(map[string]any{"pages": 4})
	task.MergeMetadata(map[string]any{"pages": 7, "language": "en"})
	if task.Metadata["pages"] != 7 || task.Metadata["language"] != "en" {
		t.Fatalf("metadata = %v", task.Metadata)
	}
}

func TestDetectFileType(t *testing.T) {
	cases := map[string]string{
		"/uploads/report.PDF":  "pdf",
		"/uploads/photo.jpeg":  "image",
		"/uploads/clip.mkv":    "video",
		"/uploads/talk.mp3":    "audio",
		"/uploads/notes.md":    "document",
		"/uploads/deck.pptx":   "presentation",
		"/uploads/main.go":     "code",
		"/uploads/archive.zip": "archive",
		"/uploads/blob.xyz":    "other",
	}
	for path, want := range cases {
		if got := queue.DetectFileType(path); got != want {
			t.Fatalf("DetectFileType(%q) = %s, want %s", path, got, want)
		}
	}
}
