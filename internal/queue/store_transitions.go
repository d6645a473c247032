package queue

import (
	"context"
	"errors"
	"fmt"
)

// ErrTaskNotFound reports a transition against an unknown task id.
var ErrTaskNotFound = errors.New("task not found")

// Transition applies a control mutation to a task while its stored status is
// one of the allowed values. The read-modify-write is guarded by the same
// conditional update workers use, so a control call cannot clobber a
// transition that landed between the read and the write. Returns the updated
// task and whether the transition applied; (task, false, nil) means the task
// was not in an eligible state.
func (s *Store) Transition(ctx context.Context, id string, from []Status, apply func(*Task)) (*Task, bool, error) {
	const maxAttempts = 3
	for attempt := 0; attempt < maxAttempts; attempt++ {
		task, err := s.GetByID(ctx, id)
		if err != nil {
			return nil, false, err
		}
		if task == nil {
			return nil, false, fmt.Errorf("%w: %s", ErrTaskNotFound, id)
		}
		if !statusIn(task.Status, from) {
			return task, false, nil
		}

		previous := task.Status
		apply(task)

		applied, err := s.UpdateOwned(ctx, task, previous)
		if err != nil {
			return nil, false, err
		}
		if applied {
			return task, true, nil
		}
		// Another writer moved the task between read and write; re-evaluate.
	}
	return nil, false, fmt.Errorf("transition contention on task %s", id)
}

func statusIn(status Status, set []Status) bool {
	for _, candidate := range set {
		if status == candidate {
			return true
		}
	}
	return false
}
