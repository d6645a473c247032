package services

import (
	"errors"
	"fmt"
	"strings"
)

// Sentinel markers for the engine error taxonomy. Stage and control code wraps
// failures with one of these so the runner can branch on kind instead of
// matching message text.
var (
	// ErrProcessorNotFound marks a pipeline referencing an unregistered processor.
	ErrProcessorNotFound = errors.New("processor not found")
	// ErrStageTimeout marks a single processor invocation exceeding its timeout.
	ErrStageTimeout = errors.New("stage timeout")
	// ErrStageExecution marks a processor returning an error.
	ErrStageExecution = errors.New("stage execution error")
	// ErrPipelineTimeout marks a task exceeding its pipeline wall-clock budget.
	ErrPipelineTimeout = errors.New("pipeline timeout")
	// ErrDependencyNotSatisfied marks a task whose dependencies are not all completed.
	ErrDependencyNotSatisfied = errors.New("dependency not satisfied")
	// ErrDuplicatePipeline marks registration of an already-known pipeline id.
	ErrDuplicatePipeline = errors.New("duplicate pipeline")
	// ErrValidation marks malformed definitions or task documents.
	ErrValidation = errors.New("validation error")
	// ErrConfiguration marks unusable engine configuration.
	ErrConfiguration = errors.New("configuration error")
)

// Wrap builds an error message that includes stage context while tagging it with
// the provided marker for later classification. The marker should be one of the
// exported sentinel errors above.
func Wrap(marker error, stage, operation, message string, err error) error {
	detail := buildDetail(stage, operation, message)
	if marker == nil {
		marker = ErrStageExecution
	}
	if err != nil {
		return fmt.Errorf("%w: %s: %w", marker, detail, err)
	}
	return fmt.Errorf("%w: %s", marker, detail)
}

// Kind returns the taxonomy name for an error, or "stage_execution" for
// untagged errors.
func Kind(err error) string {
	switch {
	case errors.Is(err, ErrProcessorNotFound):
		return "processor_not_found"
	case errors.Is(err, ErrStageTimeout):
		return "stage_timeout"
	case errors.Is(err, ErrPipelineTimeout):
		return "pipeline_timeout"
	case errors.Is(err, ErrDependencyNotSatisfied):
		return "dependency_not_satisfied"
	case errors.Is(err, ErrDuplicatePipeline):
		return "duplicate_pipeline"
	case errors.Is(err, ErrValidation):
		return "validation"
	case errors.Is(err, ErrConfiguration):
		return "configuration"
	default:
		return "stage_execution"
	}
}

// IsFatal reports whether an error must never be retried by the runner.
func IsFatal(err error) bool {
	return errors.Is(err, ErrProcessorNotFound) ||
		errors.Is(err, ErrPipelineTimeout) ||
		errors.Is(err, ErrDependencyNotSatisfied) ||
		errors.Is(err, ErrConfiguration)
}

// IsRetryable reports whether the runner may re-execute the failed stage.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	return !IsFatal(err)
}

func buildDetail(stage, operation, message string) string {
	parts := make([]string, 0, 3)
	if stage = strings.TrimSpace(stage); stage != "" {
		parts = append(parts, stage)
	}
	if operation = strings.TrimSpace(operation); operation != "" {
		parts = append(parts, operation)
	}
	if message = strings.TrimSpace(message); message != "" {
		parts = append(parts, message)
	}
	if len(parts) == 0 {
		return "engine failure"
	}
	return strings.Join(parts, ": ")
}
