// Package stageexec runs a single pipeline stage for a task: it resolves the
// bound processor, invokes it under the per-stage timeout, records the
// outcome on the task, and caches successful results so re-runs are
// idempotent.
package stageexec

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"conveyor/internal/logging"
	"conveyor/internal/pipeline"
	"conveyor/internal/processor"
	"conveyor/internal/queue"
	"conveyor/internal/results"
	"conveyor/internal/services"
)

// Executor invokes processors for pipeline stages.
type Executor struct {
	processors *processor.Registry
	cache      *results.Cache
	logger     *slog.Logger
}

// New builds a stage executor.
func New(processors *processor.Registry, cache *results.Cache, logger *slog.Logger) *Executor {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Executor{
		processors: processors,
		cache:      cache,
		logger:     logging.NewComponentLogger(logger, "stageexec"),
	}
}

type invocation struct {
	data map[string]any
	err  error
}

// Execute runs one stage of the pipeline for the task. A valid cached result
// short-circuits the processor call while still applying the success effects
// to the task. On success the result data is merged
// into the task metadata and a success line is appended to the processing
// log; on failure the metadata is left untouched and a failure line is
// appended. The returned error carries the failure kind for retry
// classification; it is nil exactly when the result reports success.
func (e *Executor) Execute(ctx context.Context, p *pipeline.Pipeline, task *queue.Task, stage queue.Stage) (results.Result, error) {
	stageCtx := services.WithStage(services.WithTaskID(ctx, task.ID), string(stage))
	stageLogger := logging.WithContext(stageCtx, e.logger)

	if cached, found := e.cache.Get(task.ID, stage); found {
		// A re-run reaching a cached stage means the original success was
		// never persisted (the task was paused or released mid-group), so
		// the merge and log line must be applied again here.
		task.MergeMetadata(cached.Data)
		task.AppendLog("stage %s completed in %s", stage, cached.Duration.Round(time.Millisecond))
		stageLogger.Debug("serving cached stage result",
			logging.String(logging.FieldEventType, "stage_cache_hit"),
			logging.Duration("original_duration", cached.Duration))
		return cached, nil
	}

	processorName := p.Processors[stage]
	fn, found := e.processors.Lookup(processorName)
	if !found {
		err := services.Wrap(services.ErrProcessorNotFound, string(stage), "resolve processor",
			fmt.Sprintf("pipeline %q binds stage to unknown processor %q", p.ID, processorName), nil)
		result := results.Failed(task.ID, stage, err.Error(), 0)
		task.AppendLog("stage %s failed: %s", stage, err.Error())
		stageLogger.Error("processor not registered",
			logging.String(logging.FieldEventType, "stage_failure"),
			logging.String("processor", processorName),
			logging.Error(err))
		return result, err
	}

	timeout := p.StageTimeout
	started := time.Now()

	// The processor runs in its own goroutine so a hung invocation cannot
	// block the worker past the stage timeout. The goroutine is left to
	// finish on its own; its late result is discarded.
	invokeCtx := stageCtx
	cancel := context.CancelFunc(func() {})
	if timeout > 0 {
		invokeCtx, cancel = context.WithTimeout(stageCtx, timeout)
	}
	defer cancel()

	done := make(chan invocation, 1)
	go func() {
		data, err := fn(invokeCtx, task)
		done <- invocation{data: data, err: err}
	}()

	var outcome invocation
	var timedOut bool
	select {
	case outcome = <-done:
	case <-invokeCtx.Done():
		timedOut = true
	}
	duration := time.Since(started)

	switch {
	case timedOut:
		err := services.Wrap(services.ErrStageTimeout, string(stage), processorName,
			fmt.Sprintf("stage exceeded %s timeout", timeout), invokeCtx.Err())
		result := results.Failed(task.ID, stage, err.Error(), duration)
		task.AppendLog("stage %s failed: %s", stage, err.Error())
		stageLogger.Warn("stage timed out",
			logging.String(logging.FieldEventType, "stage_timeout"),
			logging.String("processor", processorName),
			logging.Duration("timeout", timeout))
		return result, err

	case outcome.err != nil:
		err := outcome.err
		if !services.IsFatal(err) && !errors.Is(err, services.ErrStageExecution) && !errors.Is(err, services.ErrStageTimeout) {
			err = services.Wrap(services.ErrStageExecution, string(stage), processorName,
				"processor failed", err)
		}
		message := strings.TrimSpace(err.Error())
		result := results.Failed(task.ID, stage, message, duration)
		task.AppendLog("stage %s failed: %s", stage, message)
		stageLogger.Error("stage failed",
			logging.String(logging.FieldEventType, "stage_failure"),
			logging.String("processor", processorName),
			logging.Duration("duration", duration),
			logging.Error(err))
		return result, err
	}

	result := results.Succeeded(task.ID, stage, outcome.data, duration)
	task.MergeMetadata(outcome.data)
	task.AppendLog("stage %s completed in %s", stage, duration.Round(time.Millisecond))
	e.cache.Put(result)

	stageLogger.Info("stage completed",
		logging.String(logging.FieldEventType, "stage_complete"),
		logging.String("processor", processorName),
		logging.Duration("duration", duration))
	return result, nil
}
