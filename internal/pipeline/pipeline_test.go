package pipeline_test

import (
	"errors"
	"path/filepath"
	"testing"
	"time"

	"conveyor/internal/pipeline"
	"conveyor/internal/queue"
	"conveyor/internal/services"
	"conveyor/internal/testsupport"
)

func linearPipeline(id string) *pipeline.Pipeline {
	return &pipeline.Pipeline{
		ID:     id,
		Stages: []queue.Stage{queue.StageValidated, queue.StageScanned, queue.StageIndexed},
		Processors: map[queue.Stage]string{
			queue.StageValidated: "file_validator",
			queue.StageScanned:   "virus_scanner",
			queue.StageIndexed:   "search_indexer",
		},
		Conditions: map[queue.Stage]pipeline.Condition{},
		Timeout:    time.Minute,
		Enabled:    true,
	}
}

func TestValidateRejectsBrokenDefinitions(t *testing.T) {
	t.Run("unknown stage", func(t *testing.T) {
		p := linearPipeline("broken")
		p.Stages[1] = "demuxed"
		if err := p.Validate(); err == nil {
			t.Fatal("expected validation failure")
		}
	})

	t.Run("missing processor binding", func(t *testing.T) {
		p := linearPipeline("broken")
		delete(p.Processors, queue.StageScanned)
		if err := p.Validate(); err == nil {
			t.Fatal("expected validation failure")
		}
	})

	t.Run("non-consecutive parallel group", func(t *testing.T) {
		p := linearPipeline("broken")
		p.ParallelGroups = [][]queue.Stage{{queue.StageValidated, queue.StageIndexed}}
		if err := p.Validate(); err == nil {
			t.Fatal("expected validation failure")
		}
	})

	t.Run("group member not in stages", func(t *testing.T) {
		p := linearPipeline("broken")
		p.ParallelGroups = [][]queue.Stage{{queue.StageOCRProcessed}}
		if err := p.Validate(); err == nil {
			t.Fatal("expected validation failure")
		}
	})
}

func TestGroupsExpandsSingletons(t *testing.T) {
	p := linearPipeline("linear")
	groups := p.Groups()
	if len(groups) != 3 {
		t.Fatalf("groups = %v", groups)
	}
	for i, group := range groups {
		if len(group) != 1 || group[0] != p.Stages[i] {
			t.Fatalf("group %d = %v, want singleton %s", i, group, p.Stages[i])
		}
	}
}

func TestGroupsKeepsParallelGroupsTogether(t *testing.T) {
	p := &pipeline.Pipeline{
		ID: "document",
		Stages: []queue.Stage{
			queue.StageValidated,
			queue.StageOCRProcessed,
			queue.StageThumbnailGenerated,
			queue.StageIndexed,
		},
		Processors: map[queue.Stage]string{
			queue.StageValidated:          "file_validator",
			queue.StageOCRProcessed:       "pdf_ocr",
			queue.StageThumbnailGenerated: "image_thumbnail",
			queue.StageIndexed:            "search_indexer",
		},
		ParallelGroups: [][]queue.Stage{
			{queue.StageOCRProcessed, queue.StageThumbnailGenerated},
		},
		Enabled: true,
	}
	if err := p.Validate(); err != nil {
		t.Fatalf("validate: %v", err)
	}

	groups := p.Groups()
	if len(groups) != 3 {
		t.Fatalf("groups = %v", groups)
	}
	if len(groups[1]) != 2 || groups[1][0] != queue.StageOCRProcessed || groups[1][1] != queue.StageThumbnailGenerated {
		t.Fatalf("middle group = %v", groups[1])
	}
}

func TestConditionMatching(t *testing.T) {
	task := &queue.Task{FileType: "pdf", Metadata: map[string]any{"file_size": int64(5000)}}

	if !(pipeline.Condition{}).Matches(task) {
		t.Fatal("zero condition must match")
	}
	if !(pipeline.Condition{FileTypes: []string{"pdf", "image"}}).Matches(task) {
		t.Fatal("allow-listed file type must match")
	}
	if (pipeline.Condition{FileTypes: []string{"video"}}).Matches(task) {
		t.Fatal("file type outside allow-list must not match")
	}
	if (pipeline.Condition{MinFileSize: 10000}).Matches(task) {
		t.Fatal("undersized file must not match")
	}
	if (pipeline.Condition{MaxFileSize: 4000}).Matches(task) {
		t.Fatal("oversized file must not match")
	}
	if !(pipeline.Condition{MinFileSize: 1000, MaxFileSize: 10000}).Matches(task) {
		t.Fatal("in-range file must match")
	}
}

func TestRegistryDuplicateAndResolve(t *testing.T) {
	registry := pipeline.NewRegistry("default")
	fallback := linearPipeline("default")
	if err := registry.Register(fallback); err != nil {
		t.Fatalf("register default: %v", err)
	}
	if err := registry.Register(linearPipeline("default")); !errors.Is(err, services.ErrDuplicatePipeline) {
		t.Fatalf("duplicate registration error = %v", err)
	}

	document := linearPipeline("document")
	if err := registry.Register(document); err != nil {
		t.Fatalf("register document: %v", err)
	}
	registry.MapFileType("pdf", "document")
	registry.MapFileType("video", "missing")

	if got := registry.Resolve("pdf"); got.ID != "document" {
		t.Fatalf("resolve pdf = %s", got.ID)
	}
	// Unmapped types and mappings to missing pipelines fall back.
	if got := registry.Resolve("archive"); got.ID != "default" {
		t.Fatalf("resolve archive = %s", got.ID)
	}
	if got := registry.Resolve("video"); got.ID != "default" {
		t.Fatalf("resolve video = %s", got.ID)
	}

	disabled := linearPipeline("disabled")
	disabled.Enabled = false
	if err := registry.Register(disabled); err != nil {
		t.Fatalf("register disabled: %v", err)
	}
	registry.MapFileType("audio", "disabled")
	if got := registry.Resolve("audio"); got.ID != "default" {
		t.Fatalf("resolve via disabled pipeline = %s", got.ID)
	}
}

func TestBuiltinsRegisterCleanly(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	registry, err := pipeline.NewDefaultRegistry(cfg)
	if err != nil {
		t.Fatalf("default registry: %v", err)
	}

	document := registry.Resolve("pdf")
	if document.ID != "document" {
		t.Fatalf("pdf resolves to %s", document.ID)
	}
	groups := document.Groups()
	foundParallel := false
	for _, group := range groups {
		if len(group) == 2 {
			foundParallel = true
		}
	}
	if !foundParallel {
		t.Fatal("document pipeline must carry a parallel group")
	}

	fallback := registry.Resolve("code")
	if fallback.ID != pipeline.DefaultPipelineID {
		t.Fatalf("code resolves to %s", fallback.ID)
	}
	condition := fallback.Condition(queue.StageThumbnailGenerated)
	if condition.Matches(&queue.Task{FileType: "code"}) {
		t.Fatal("thumbnail condition must exclude code files")
	}
	if !condition.Matches(&queue.Task{FileType: "image"}) {
		t.Fatal("thumbnail condition must include images")
	}
}

func TestLoadFileRegistersAndRoutes(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	registry, err := pipeline.NewDefaultRegistry(cfg)
	if err != nil {
		t.Fatalf("default registry: %v", err)
	}

	path := filepath.Join(t.TempDir(), "pipelines.yaml")
	testsupport.WriteText(t, path, `
pipelines:
  - id: quick-scan
    stages: [validated, scanned]
    processors:
      validated: file_validator
      scanned: virus_scanner
    conditions:
      scanned:
        max_file_size: 1048576
    timeout_seconds: 120
    retry_count: 1
    priority: high
file_types:
  archive: quick-scan
`)

	if err := pipeline.LoadFile(registry, cfg, path); err != nil {
		t.Fatalf("load file: %v", err)
	}

	got := registry.Resolve("archive")
	if got.ID != "quick-scan" {
		t.Fatalf("archive resolves to %s", got.ID)
	}
	if got.Timeout != 2*time.Minute || got.RetryCount != 1 || got.Priority != queue.PriorityHigh {
		t.Fatalf("policy not applied: %+v", got)
	}
	condition := got.Condition(queue.StageScanned)
	if condition.MaxFileSize != 1048576 {
		t.Fatalf("condition not parsed: %+v", condition)
	}
}

func TestLoadFileMissingIsNoop(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	registry := pipeline.NewRegistry("default")
	if err := pipeline.LoadFile(registry, cfg, filepath.Join(t.TempDir(), "absent.yaml")); err != nil {
		t.Fatalf("missing file should be a no-op: %v", err)
	}
}
