package workflow

import (
	"context"
	"fmt"
	"time"

	"conveyor/internal/logging"
	"conveyor/internal/queue"
)

// Get returns a task by id, or nil when absent.
func (m *Manager) Get(ctx context.Context, id string) (*queue.Task, error) {
	return m.store.GetByID(ctx, id)
}

// List returns tasks matching the filter, newest first.
func (m *Manager) List(ctx context.Context, filter queue.ListFilter) ([]*queue.Task, error) {
	return m.store.List(ctx, filter)
}

// Cancel requests cooperative cancellation. Pending tasks cancel immediately;
// in-flight tasks stop at their next group boundary.
func (m *Manager) Cancel(ctx context.Context, id string) (*queue.Task, error) {
	task, applied, err := m.store.Transition(ctx, id,
		[]queue.Status{queue.StatusPending, queue.StatusInProgress, queue.StatusRetrying, queue.StatusPaused},
		func(t *queue.Task) {
			now := time.Now().UTC()
			t.Status = queue.StatusCancelled
			t.CompletedAt = &now
			t.AppendLog("task cancelled")
		})
	if err != nil {
		return nil, err
	}
	if !applied {
		return task, fmt.Errorf("task %s cannot be cancelled from status %s", id, task.Status)
	}
	m.cache.Invalidate(id)
	m.logControl(task, "task_cancelled")
	return task, nil
}

// Pause requests a cooperative pause at the next group boundary.
func (m *Manager) Pause(ctx context.Context, id string) (*queue.Task, error) {
	task, applied, err := m.store.Transition(ctx, id,
		[]queue.Status{queue.StatusPending, queue.StatusInProgress, queue.StatusRetrying},
		func(t *queue.Task) {
			t.Status = queue.StatusPaused
			t.AppendLog("task paused")
		})
	if err != nil {
		return nil, err
	}
	if !applied {
		return task, fmt.Errorf("task %s cannot be paused from status %s", id, task.Status)
	}
	m.logControl(task, "task_paused")
	return task, nil
}

// Resume returns a paused task to the pending queue. The runner resumes from
// the group after the last completed stage.
func (m *Manager) Resume(ctx context.Context, id string) (*queue.Task, error) {
	task, applied, err := m.store.Transition(ctx, id,
		[]queue.Status{queue.StatusPaused},
		func(t *queue.Task) {
			t.Status = queue.StatusPending
			t.AppendLog("task resumed")
		})
	if err != nil {
		return nil, err
	}
	if !applied {
		return task, fmt.Errorf("task %s cannot be resumed from status %s", id, task.Status)
	}
	m.logControl(task, "task_resumed")
	return task, nil
}

// Retry re-queues a failed task. The retry counter is preserved so the
// per-stage retry budget remains exhausted history, not a reset allowance.
func (m *Manager) Retry(ctx context.Context, id string) (*queue.Task, error) {
	task, applied, err := m.store.Transition(ctx, id,
		[]queue.Status{queue.StatusFailed},
		func(t *queue.Task) {
			t.Status = queue.StatusPending
			t.ErrorMessage = ""
			t.CompletedAt = nil
			t.AppendLog("task requeued after failure (retry_count=%d)", t.RetryCount)
		})
	if err != nil {
		return nil, err
	}
	if !applied {
		return task, fmt.Errorf("task %s can only be retried from failed, not %s", id, task.Status)
	}
	m.logControl(task, "task_requeued")
	return task, nil
}

func (m *Manager) logControl(task *queue.Task, event string) {
	if task == nil {
		return
	}
	m.logger.Info("task control applied",
		logging.String(logging.FieldEventType, event),
		logging.String(logging.FieldTaskID, task.ID),
		logging.String("status", string(task.Status)))
}
