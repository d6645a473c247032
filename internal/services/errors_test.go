package services_test

import (
	"errors"
	"strings"
	"testing"

	"conveyor/internal/services"
)

func TestWrapPreservesMarkerAndCause(t *testing.T) {
	cause := errors.New("disk full")
	err := services.Wrap(services.ErrStageExecution, "metadata_extracted", "stat", "cannot read upload", cause)

	if !errors.Is(err, services.ErrStageExecution) {
		t.Fatal("expected stage execution marker")
	}
	if !errors.Is(err, cause) {
		t.Fatal("expected wrapped cause to survive")
	}
	for _, fragment := range []string{"metadata_extracted", "stat", "cannot read upload", "disk full"} {
		if !strings.Contains(err.Error(), fragment) {
			t.Fatalf("error %q missing fragment %q", err.Error(), fragment)
		}
	}
}

func TestKindClassification(t *testing.T) {
	cases := []struct {
		marker error
		kind   string
		fatal  bool
	}{
		{services.ErrProcessorNotFound, "processor_not_found", true},
		{services.ErrStageTimeout, "stage_timeout", false},
		{services.ErrStageExecution, "stage_execution", false},
		{services.ErrPipelineTimeout, "pipeline_timeout", true},
		{services.ErrDependencyNotSatisfied, "dependency_not_satisfied", true},
		{services.ErrDuplicatePipeline, "duplicate_pipeline", false},
	}
	for _, tc := range cases {
		err := services.Wrap(tc.marker, "validated", "", "boom", nil)
		if got := services.Kind(err); got != tc.kind {
			t.Fatalf("Kind(%v) = %q, want %q", tc.marker, got, tc.kind)
		}
		if got := services.IsFatal(err); got != tc.fatal {
			t.Fatalf("IsFatal(%v) = %v, want %v", tc.marker, got, tc.fatal)
		}
		if tc.kind != "duplicate_pipeline" {
			if got := services.IsRetryable(err); got == tc.fatal {
				t.Fatalf("IsRetryable(%v) = %v inconsistent with fatal=%v", tc.marker, got, tc.fatal)
			}
		}
	}
}

func TestUntaggedErrorsAreRetryable(t *testing.T) {
	err := errors.New("processor blew up")
	if services.IsFatal(err) {
		t.Fatal("untagged errors must not be fatal")
	}
	if !services.IsRetryable(err) {
		t.Fatal("untagged errors must be retryable")
	}
	if services.Kind(err) != "stage_execution" {
		t.Fatalf("Kind = %q, want stage_execution", services.Kind(err))
	}
}
