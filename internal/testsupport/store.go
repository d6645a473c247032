package testsupport

import (
	"context"
	"testing"

	"github.com/google/uuid"

	"conveyor/internal/config"
	"conveyor/internal/queue"
)

// MustOpenStore opens a queue.Store for tests and registers cleanup.
func MustOpenStore(t testing.TB, cfg *config.Config) *queue.Store {
	t.Helper()

	store, err := queue.Open(cfg)
	if err != nil {
		t.Fatalf("queue.Open: %v", err)
	}
	t.Cleanup(func() {
		store.Close()
	})
	return store
}

// TaskOption mutates a generated test task before it is stored.
type TaskOption func(*queue.Task)

// NewTask creates a pending task for tests using the provided store.
func NewTask(t testing.TB, store *queue.Store, filePath, fileType string, opts ...TaskOption) *queue.Task {
	t.Helper()

	task := &queue.Task{
		ID:          uuid.NewString(),
		UploadID:    uuid.NewString(),
		FilePath:    filePath,
		FileType:    fileType,
		Priority:    queue.PriorityNormal,
		Status:      queue.StatusPending,
		AutoProcess: true,
		MaxRetries:  3,
		Metadata:    map[string]any{queue.MetadataFileSizeKey: int64(1024)},
	}
	for _, opt := range opts {
		opt(task)
	}
	if err := store.Create(context.Background(), task); err != nil {
		t.Fatalf("store.Create: %v", err)
	}
	return task
}

// WithStatus sets the initial status of a generated test task.
func WithStatus(status queue.Status) TaskOption {
	return func(task *queue.Task) {
		task.Status = status
	}
}

// WithPriority sets the priority of a generated test task.
func WithPriority(priority queue.Priority) TaskOption {
	return func(task *queue.Task) {
		task.Priority = priority
	}
}

// WithDependencies sets dependency ids on a generated test task.
func WithDependencies(ids ...string) TaskOption {
	return func(task *queue.Task) {
		task.Dependencies = ids
	}
}
