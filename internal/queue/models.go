package queue

import (
	"fmt"
	"strings"
	"time"
)

// Stage is one step identifier from the fixed pipeline vocabulary.
// Stages are data; the work behind each one lives in a registered processor.
type Stage string

const (
	StageUploaded            Stage = "uploaded"
	StageValidated           Stage = "validated"
	StageScanned             Stage = "scanned"
	StageMetadataExtracted   Stage = "metadata_extracted"
	StageContentAnalyzed     Stage = "content_analyzed"
	StageCategorized         Stage = "categorized"
	StageIndexed             Stage = "indexed"
	StageThumbnailGenerated  Stage = "thumbnail_generated"
	StageOCRProcessed        Stage = "ocr_processed"
	StageTranscriptExtracted Stage = "transcript_extracted"
	StageAIAnalyzed          Stage = "ai_analyzed"
	StageIntegrated          Stage = "integrated"
	StageCompleted           Stage = "completed"
	StageFailed              Stage = "failed"
)

var allStages = []Stage{
	StageUploaded,
	StageValidated,
	StageScanned,
	StageMetadataExtracted,
	StageContentAnalyzed,
	StageCategorized,
	StageIndexed,
	StageThumbnailGenerated,
	StageOCRProcessed,
	StageTranscriptExtracted,
	StageAIAnalyzed,
	StageIntegrated,
	StageCompleted,
	StageFailed,
}

var stageSet = func() map[Stage]struct{} {
	set := make(map[Stage]struct{}, len(allStages))
	for _, stage := range allStages {
		set[stage] = struct{}{}
	}
	return set
}()

// AllStages returns the ordered stage vocabulary.
func AllStages() []Stage {
	cp := make([]Stage, len(allStages))
	copy(cp, allStages)
	return cp
}

// ParseStage converts a string into a known Stage.
func ParseStage(value string) (Stage, bool) {
	normalized := Stage(strings.ToLower(strings.TrimSpace(value)))
	if normalized == "" {
		return "", false
	}
	_, ok := stageSet[normalized]
	return normalized, ok
}

// Status represents the lifecycle of a task.
type Status string

const (
	StatusPending    Status = "pending"
	StatusInProgress Status = "in_progress"
	StatusRetrying   Status = "retrying"
	StatusPaused     Status = "paused"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
	StatusCancelled  Status = "cancelled"
)

var allStatuses = []Status{
	StatusPending,
	StatusInProgress,
	StatusRetrying,
	StatusPaused,
	StatusCompleted,
	StatusFailed,
	StatusCancelled,
}

var statusSet = func() map[Status]struct{} {
	set := make(map[Status]struct{}, len(allStatuses))
	for _, status := range allStatuses {
		set[status] = struct{}{}
	}
	return set
}()

// AllStatuses returns the ordered list of known statuses.
func AllStatuses() []Status {
	cp := make([]Status, len(allStatuses))
	copy(cp, allStatuses)
	return cp
}

// ParseStatus converts a string into a known Status.
func ParseStatus(value string) (Status, bool) {
	normalized := Status(strings.ToLower(strings.TrimSpace(value)))
	if normalized == "" {
		return "", false
	}
	_, ok := statusSet[normalized]
	return normalized, ok
}

// IsTerminal reports whether no further stage may execute for this status.
func (s Status) IsTerminal() bool {
	switch s {
	case StatusCompleted, StatusFailed, StatusCancelled:
		return true
	default:
		return false
	}
}

// IsProcessing reports whether the status reflects an in-flight task.
func (s Status) IsProcessing() bool {
	return s == StatusInProgress || s == StatusRetrying
}

// Priority orders tasks within the pending queue.
type Priority string

const (
	PriorityLow    Priority = "low"
	PriorityNormal Priority = "normal"
	PriorityHigh   Priority = "high"
	PriorityUrgent Priority = "urgent"
)

var priorityRanks = map[Priority]int{
	PriorityLow:    0,
	PriorityNormal: 1,
	PriorityHigh:   2,
	PriorityUrgent: 3,
}

// AllPriorities returns priorities ordered from least to most urgent.
func AllPriorities() []Priority {
	return []Priority{PriorityLow, PriorityNormal, PriorityHigh, PriorityUrgent}
}

// ParsePriority converts a string into a known Priority.
func ParsePriority(value string) (Priority, bool) {
	normalized := Priority(strings.ToLower(strings.TrimSpace(value)))
	_, ok := priorityRanks[normalized]
	return normalized, ok
}

// Rank returns the numeric urgency used for queue ordering. Higher runs first.
func (p Priority) Rank() int {
	return priorityRanks[p]
}

// Task is one in-flight unit of work driving a single uploaded file through a
// pipeline. It is mutated exclusively by the owning worker while processing
// and becomes immutable once a terminal status is reached.
type Task struct {
	ID            string
	UploadID      string
	FilePath      string
	FileType      string
	Priority      Priority
	Status        Status
	PipelineID    string
	Stages        []Stage
	CurrentStage  Stage
	Progress      float64
	StartedAt     *time.Time
	CompletedAt   *time.Time
	ErrorMessage  string
	RetryCount    int
	MaxRetries    int
	AutoProcess   bool
	Metadata      map[string]any
	ProcessingLog []string
	Dependencies  []string
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// AppendLog records a timestamped, human-readable event on the task.
func (t *Task) AppendLog(format string, args ...any) {
	message := fmt.Sprintf(format, args...)
	entry := time.Now().UTC().Format(time.RFC3339) + " " + message
	t.ProcessingLog = append(t.ProcessingLog, entry)
}

// SetFailed marks the task failed with the given error message.
func (t *Task) SetFailed(message string) {
	now := time.Now().UTC()
	t.Status = StatusFailed
	t.ErrorMessage = message
	t.CompletedAt = &now
}

// Clone returns a deep copy of the task. Used to hand concurrent stage
// invocations isolated views whose mutations are merged back after the join
// barrier.
func (t *Task) Clone() *Task {
	cp := *t
	cp.Metadata = CloneMetadata(t.Metadata)
	if t.Stages != nil {
		cp.Stages = append([]Stage(nil), t.Stages...)
	}
	if t.ProcessingLog != nil {
		cp.ProcessingLog = append([]string(nil), t.ProcessingLog...)
	}
	if t.Dependencies != nil {
		cp.Dependencies = append([]string(nil), t.Dependencies...)
	}
	if t.StartedAt != nil {
		started := *t.StartedAt
		cp.StartedAt = &started
	}
	if t.CompletedAt != nil {
		completed := *t.CompletedAt
		cp.CompletedAt = &completed
	}
	return &cp
}

// FileSize returns the file_size metadata value, or 0 when absent.
func (t *Task) FileSize() int64 {
	return FileSizeFromMetadata(t.Metadata)
}

// MergeMetadata copies the provided keys into the task metadata map.
func (t *Task) MergeMetadata(data map[string]any) {
	if len(data) == 0 {
		return
	}
	if t.Metadata == nil {
		t.Metadata = make(map[string]any, len(data))
	}
	for key, value := range data {
		t.Metadata[key] = value
	}
}
