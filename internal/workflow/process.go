package workflow

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"conveyor/internal/logging"
	"conveyor/internal/pipeline"
	"conveyor/internal/queue"
	"conveyor/internal/results"
	"conveyor/internal/services"
)

// ownedStatuses are the statuses under which the worker may persist task
// mutations. A conditional update failing against these means a control API
// moved the task (cancel, pause) and the worker must reload and obey.
var ownedStatuses = []queue.Status{queue.StatusInProgress, queue.StatusRetrying}

type stageOutcome struct {
	stage  queue.Stage
	result results.Result
	err    error
}

// processTask drives a freshly claimed task through its pipeline.
func (m *Manager) processTask(ctx context.Context, logger *slog.Logger, task *queue.Task) {
	// Imported or externally seeded tasks carry no pipeline binding; they
	// are routed by file type exactly like a fresh submission.
	if task.PipelineID == "" {
		task.PipelineID = m.pipelines.Resolve(task.FileType).ID
	}

	taskCtx := services.WithPipeline(services.WithTaskID(ctx, task.ID), task.PipelineID)
	taskLogger := logging.WithContext(taskCtx, logger)

	p := m.pipelines.Get(task.PipelineID)
	if p == nil {
		err := services.Wrap(services.ErrConfiguration, "", "resolve pipeline",
			fmt.Sprintf("task references unknown pipeline %q", task.PipelineID), nil)
		m.failTask(taskCtx, taskLogger, task, err)
		return
	}

	// Dependencies gate the whole pipeline: a violation fails the task
	// before any stage runs and leaves the processing log empty.
	if err := m.checkDependencies(taskCtx, task); err != nil {
		m.failTask(taskCtx, taskLogger, task, err)
		return
	}

	if task.StartedAt == nil {
		now := time.Now().UTC()
		task.StartedAt = &now
	}
	if !m.persistOwned(taskCtx, taskLogger, task) {
		return
	}

	deadline := time.Time{}
	if p.Timeout > 0 {
		deadline = task.StartedAt.Add(p.Timeout)
	}

	groups, total := applicableGroups(p, task)
	start := resumeIndex(groups, task.CurrentStage)

	taskLogger.Info("task processing started",
		logging.String(logging.FieldEventType, "task_start"),
		logging.String("file_path", task.FilePath),
		logging.String("file_type", task.FileType),
		logging.Int("applicable_groups", total),
		logging.Int("resume_group", start))

	for i := start; i < len(groups); i++ {
		if !m.controlPoint(taskCtx, taskLogger, task, deadline) {
			return
		}

		if !m.runGroupWithRetry(taskCtx, taskLogger, p, task, groups[i], deadline) {
			return
		}

		task.CurrentStage = groups[i][len(groups[i])-1]
		task.Progress = float64(i+1) / float64(total)
		if !m.persistOwned(taskCtx, taskLogger, task) {
			return
		}
	}

	now := time.Now().UTC()
	task.Status = queue.StatusCompleted
	task.Progress = 1.0
	task.CompletedAt = &now
	task.ErrorMessage = ""
	if !m.persistOwned(taskCtx, taskLogger, task) {
		return
	}
	taskLogger.Info("task completed",
		logging.String(logging.FieldEventType, "task_complete"),
		logging.Duration("elapsed", now.Sub(*task.StartedAt)))
}

// applicableGroups expands the pipeline into execution groups with skipped
// stages removed. The returned count is the progress denominator.
func applicableGroups(p *pipeline.Pipeline, task *queue.Task) ([][]queue.Stage, int) {
	groups := make([][]queue.Stage, 0)
	for _, group := range p.Groups() {
		applicable := make([]queue.Stage, 0, len(group))
		for _, stage := range group {
			if p.Condition(stage).Matches(task) {
				applicable = append(applicable, stage)
			}
		}
		if len(applicable) > 0 {
			groups = append(groups, applicable)
		}
	}
	return groups, len(groups)
}

// resumeIndex returns the first group to execute given the last completed
// stage. Used after pause/resume and after a crash recovery reclaim.
func resumeIndex(groups [][]queue.Stage, current queue.Stage) int {
	if current == "" {
		return 0
	}
	for i, group := range groups {
		for _, stage := range group {
			if stage == current {
				return i + 1
			}
		}
	}
	return 0
}

// controlPoint enforces the cooperative checks before each group: external
// cancel/pause transitions, daemon shutdown, and the pipeline deadline. It
// reports whether processing may continue.
func (m *Manager) controlPoint(ctx context.Context, logger *slog.Logger, task *queue.Task, deadline time.Time) bool {
	if ctx.Err() != nil {
		m.releaseForShutdown(logger, task)
		return false
	}

	current, err := m.store.GetByID(ctx, task.ID)
	if err != nil {
		logger.Error("control point read failed",
			logging.Error(err),
			logging.String(logging.FieldEventType, "control_read_failed"))
		return false
	}
	if current == nil {
		logger.Warn("task removed while processing",
			logging.String(logging.FieldEventType, "task_vanished"))
		return false
	}
	if current.Status == queue.StatusCancelled || current.Status == queue.StatusPaused {
		logger.Info("task halted at control point",
			logging.String(logging.FieldEventType, "task_halted"),
			logging.String("status", string(current.Status)))
		return false
	}

	if !deadline.IsZero() && time.Now().After(deadline) {
		err := services.Wrap(services.ErrPipelineTimeout, string(task.CurrentStage), "control point",
			fmt.Sprintf("pipeline budget exhausted after %s", time.Since(*task.StartedAt).Round(time.Second)), nil)
		task.AppendLog("pipeline timeout: %s", err.Error())
		m.failTask(ctx, logger, task, err)
		return false
	}
	return true
}

// runGroupWithRetry executes one applicable group, retrying failed members
// with exponential backoff until success, a fatal error, or retry
// exhaustion. Returns false when the task is done advancing (failed, halted,
// or shutting down).
func (m *Manager) runGroupWithRetry(ctx context.Context, logger *slog.Logger, p *pipeline.Pipeline, task *queue.Task, group []queue.Stage, deadline time.Time) bool {
	pending := group
	for {
		baseLog := len(task.ProcessingLog)
		outcomes := m.runGroup(ctx, p, task, pending)

		failed := make([]stageOutcome, 0)
		for _, outcome := range outcomes {
			if outcome.err != nil {
				failed = append(failed, outcome)
			}
		}
		if !m.persistOwned(ctx, logger, task) {
			m.preserveCancelledOutcomes(ctx, logger, task, baseLog)
			return false
		}
		if len(failed) == 0 {
			return true
		}

		first := failed[0]
		for _, outcome := range failed {
			if services.IsFatal(outcome.err) {
				m.failTask(ctx, logger, task, outcome.err)
				return false
			}
		}

		if !m.cfg.Retry.AutoRetry || task.RetryCount >= task.MaxRetries {
			m.failTask(ctx, logger, task, first.err)
			return false
		}

		task.RetryCount++
		task.Status = queue.StatusRetrying
		task.AppendLog("retrying %s (attempt %d of %d)", stageNames(failed), task.RetryCount, task.MaxRetries)
		if !m.persistOwned(ctx, logger, task) {
			return false
		}

		delay := backoffDelay(m.cfg.BackoffBase(), m.cfg.BackoffCap(), task.RetryCount)
		logger.Warn("stage group failed; backing off",
			logging.String(logging.FieldEventType, "stage_retry"),
			logging.String("stages", stageNames(failed)),
			logging.Int("attempt", task.RetryCount),
			logging.Duration("backoff", delay))
		select {
		case <-ctx.Done():
			m.releaseForShutdown(logger, task)
			return false
		case <-time.After(delay):
		}

		if !m.controlPoint(ctx, logger, task, deadline) {
			return false
		}

		task.Status = queue.StatusInProgress
		if !m.persistOwned(ctx, logger, task) {
			return false
		}

		// Only the failed members re-run; successful siblings keep their
		// cached results.
		pending = make([]queue.Stage, 0, len(failed))
		for _, outcome := range failed {
			pending = append(pending, outcome.stage)
		}
	}
}

// runGroup executes the group's stages, concurrently when the group has more
// than one member. Concurrent members operate on isolated task clones whose
// metadata and log deltas are merged back in declaration order after the
// join barrier, keeping the persisted log deterministic.
func (m *Manager) runGroup(ctx context.Context, p *pipeline.Pipeline, task *queue.Task, group []queue.Stage) []stageOutcome {
	if len(group) == 1 {
		result, err := m.executor.Execute(ctx, p, task, group[0])
		return []stageOutcome{{stage: group[0], result: result, err: err}}
	}

	parallelism := m.cfg.Workers.StageParallelism
	if parallelism < 1 {
		parallelism = 1
	}
	sem := make(chan struct{}, parallelism)

	type member struct {
		outcome stageOutcome
		clone   *queue.Task
		baseLog int
	}
	members := make([]member, len(group))

	var wg sync.WaitGroup
	wg.Add(len(group))
	for i, stage := range group {
		clone := task.Clone()
		members[i] = member{clone: clone, baseLog: len(clone.ProcessingLog)}
		go func(i int, stage queue.Stage, clone *queue.Task) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()
			result, err := m.executor.Execute(ctx, p, clone, stage)
			members[i].outcome = stageOutcome{stage: stage, result: result, err: err}
		}(i, stage, clone)
	}
	wg.Wait()

	outcomes := make([]stageOutcome, 0, len(group))
	for _, mb := range members {
		if mb.outcome.err == nil {
			task.MergeMetadata(mb.outcome.result.Data)
		}
		task.ProcessingLog = append(task.ProcessingLog, mb.clone.ProcessingLog[mb.baseLog:]...)
		outcomes = append(outcomes, mb.outcome)
	}
	return outcomes
}

func (m *Manager) checkDependencies(ctx context.Context, task *queue.Task) error {
	for _, id := range task.Dependencies {
		dep, err := m.store.GetByID(ctx, id)
		if err != nil {
			return fmt.Errorf("load dependency %s: %w", id, err)
		}
		if dep == nil {
			return services.Wrap(services.ErrDependencyNotSatisfied, "", "dependency check",
				fmt.Sprintf("dependency %s does not exist", id), nil)
		}
		if dep.Status != queue.StatusCompleted {
			return services.Wrap(services.ErrDependencyNotSatisfied, "", "dependency check",
				fmt.Sprintf("dependency %s has status %s", id, dep.Status), nil)
		}
	}
	return nil
}

// failTask moves the task to FAILED and persists it, provided no control API
// moved the task first.
func (m *Manager) failTask(ctx context.Context, logger *slog.Logger, task *queue.Task, cause error) {
	task.SetFailed(strings.TrimSpace(cause.Error()))
	logger.Error("task failed",
		logging.Error(cause),
		logging.String(logging.FieldEventType, "task_failed"),
		logging.String(logging.FieldErrorKind, services.Kind(cause)),
		logging.Int("retry_count", task.RetryCount))
	m.persistOwned(ctx, logger, task)
}

// preserveCancelledOutcomes records stage work that finished in flight while
// a cancel landed: cancel is cooperative, so the running group completes, and
// its log lines and result data belong on the cancelled record even though
// the task never advances. Paused tasks are left alone — their outcomes come
// back through the result cache when the group re-runs after resume.
func (m *Manager) preserveCancelledOutcomes(ctx context.Context, logger *slog.Logger, task *queue.Task, baseLog int) {
	if len(task.ProcessingLog) <= baseLog {
		return
	}
	delta := append([]string(nil), task.ProcessingLog[baseLog:]...)
	metadata := queue.CloneMetadata(task.Metadata)
	_, applied, err := m.store.Transition(ctx, task.ID,
		[]queue.Status{queue.StatusCancelled},
		func(stored *queue.Task) {
			stored.MergeMetadata(metadata)
			stored.ProcessingLog = append(stored.ProcessingLog, delta...)
		})
	if err != nil || !applied {
		return
	}
	logger.Info("in-flight stage outcomes recorded on cancelled task",
		logging.String(logging.FieldEventType, "task_outcomes_preserved"),
		logging.Int("log_entries", len(delta)))
}

// persistOwned writes the task while it is still owned by this worker. A
// refused write means a control API transitioned the task concurrently; the
// worker logs and stops advancing.
func (m *Manager) persistOwned(ctx context.Context, logger *slog.Logger, task *queue.Task) bool {
	ok, err := m.store.UpdateOwned(ctx, task, ownedStatuses...)
	if err != nil {
		logger.Error("failed to persist task",
			logging.Error(err),
			logging.String(logging.FieldEventType, "task_persist_failed"))
		return false
	}
	if !ok {
		logger.Info("task transitioned externally; yielding",
			logging.String(logging.FieldEventType, "task_ownership_lost"))
		return false
	}
	return true
}

// releaseForShutdown returns an in-flight task to the pending queue so the
// next daemon run resumes it from its last completed group.
func (m *Manager) releaseForShutdown(logger *slog.Logger, task *queue.Task) {
	task.Status = queue.StatusPending
	releaseCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if ok, err := m.store.UpdateOwned(releaseCtx, task, ownedStatuses...); err != nil || !ok {
		logger.Warn("could not release task on shutdown; startup recovery will reclaim it",
			logging.String(logging.FieldEventType, "task_release_failed"))
		return
	}
	logger.Info("task released for next run",
		logging.String(logging.FieldEventType, "task_released"),
		logging.String("resume_stage", string(task.CurrentStage)))
}

func stageNames(outcomes []stageOutcome) string {
	names := make([]string, 0, len(outcomes))
	for _, outcome := range outcomes {
		names = append(names, string(outcome.stage))
	}
	return strings.Join(names, ", ")
}
