// Package results defines stage outcomes and the in-memory cache that makes
// stage execution idempotent: a cached successful result for (task, stage)
// is returned instead of re-invoking the processor.
package results

import (
	"time"

	"conveyor/internal/queue"
)

// Result is one stage's outcome for one task.
type Result struct {
	TaskID       string
	Stage        queue.Stage
	Success      bool
	Data         map[string]any
	ErrorMessage string
	Duration     time.Duration
	CreatedAt    time.Time
}

// Succeeded builds a successful result carrying the processor's data map.
func Succeeded(taskID string, stage queue.Stage, data map[string]any, duration time.Duration) Result {
	return Result{
		TaskID:    taskID,
		Stage:     stage,
		Success:   true,
		Data:      data,
		Duration:  duration,
		CreatedAt: time.Now().UTC(),
	}
}

// Failed builds a failed result with the error message.
func Failed(taskID string, stage queue.Stage, message string, duration time.Duration) Result {
	return Result{
		TaskID:       taskID,
		Stage:        stage,
		Success:      false,
		ErrorMessage: message,
		Duration:     duration,
		CreatedAt:    time.Now().UTC(),
	}
}
