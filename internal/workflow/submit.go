package workflow

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"

	"conveyor/internal/logging"
	"conveyor/internal/queue"
)

// SubmitRequest carries the submission parameters for a new task.
type SubmitRequest struct {
	UploadID     string
	FilePath     string
	FileType     string
	Priority     queue.Priority
	Metadata     map[string]any
	Dependencies []string
	AutoProcess  bool
}

// Submit resolves a pipeline for the file, creates the task in PENDING, and
// (for auto-process tasks) leaves it claimable by the worker pool.
func (m *Manager) Submit(ctx context.Context, req SubmitRequest) (*queue.Task, error) {
	if req.FilePath == "" {
		return nil, fmt.Errorf("file path is required")
	}
	fileType := req.FileType
	if fileType == "" {
		fileType = queue.DetectFileType(req.FilePath)
	}

	p := m.pipelines.Resolve(fileType)
	if p == nil {
		return nil, fmt.Errorf("no default pipeline registered")
	}

	priority := req.Priority
	if priority == "" {
		priority = p.Priority
	}

	metadata := queue.CloneMetadata(req.Metadata)
	if metadata == nil {
		metadata = make(map[string]any, 1)
	}
	if _, ok := metadata[queue.MetadataFileSizeKey]; !ok {
		if info, err := os.Stat(req.FilePath); err == nil {
			metadata[queue.MetadataFileSizeKey] = info.Size()
		}
	}

	now := time.Now().UTC()
	task := &queue.Task{
		ID:           uuid.NewString(),
		UploadID:     req.UploadID,
		FilePath:     req.FilePath,
		FileType:     fileType,
		Priority:     priority,
		Status:       queue.StatusPending,
		PipelineID:   p.ID,
		Stages:       append([]queue.Stage(nil), p.Stages...),
		MaxRetries:   p.RetryCount,
		AutoProcess:  req.AutoProcess,
		Metadata:     metadata,
		Dependencies: append([]string(nil), req.Dependencies...),
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	if err := m.store.Create(ctx, task); err != nil {
		return nil, fmt.Errorf("create task: %w", err)
	}

	m.logger.Info("task submitted",
		logging.String(logging.FieldEventType, "task_submitted"),
		logging.String(logging.FieldTaskID, task.ID),
		logging.String(logging.FieldPipeline, task.PipelineID),
		logging.String("file_path", task.FilePath),
		logging.String("file_type", task.FileType),
		logging.String("priority", string(task.Priority)),
		logging.Bool("auto_process", task.AutoProcess))
	return task, nil
}
