package main

import (
	"context"
	"path/filepath"
	"testing"

	"conveyor/internal/queue"
	"conveyor/internal/testsupport"
)

func TestExportImportRoundTrip(t *testing.T) {
	env := setupCLITestEnv(t)
	ctx := context.Background()

	file := filepath.Join(env.cfg.Paths.UploadDir, "doc.pdf")
	testsupport.WriteFile(t, file, 512)
	first := testsupport.NewTask(t, env.store, file, "pdf")
	second := testsupport.NewTask(t, env.store, file, "pdf", testsupport.WithStatus(queue.StatusCompleted))

	exportPath := filepath.Join(testsupport.BaseDir(env.cfg), "tasks.json")
	out, _, err := runCLI(t, []string{"export", "-o", exportPath}, env.configPath)
	if err != nil {
		t.Fatalf("export: %v", err)
	}
	requireContains(t, out, "Exported 2 tasks")

	if _, err := env.store.Clear(ctx); err != nil {
		t.Fatalf("clear: %v", err)
	}

	out, _, err = runCLI(t, []string{"import", exportPath}, env.configPath)
	if err != nil {
		t.Fatalf("import: %v", err)
	}
	requireContains(t, out, "Imported 2 of 2 tasks")

	for _, id := range []string{first.ID, second.ID} {
		task, err := env.store.GetByID(ctx, id)
		if err != nil {
			t.Fatalf("lookup %s: %v", id, err)
		}
		if task == nil {
			t.Fatalf("task %s missing after import", id)
		}
		// The export document carries no pipeline binding; import routes
		// by file type and queues the task unless --hold is given.
		if task.PipelineID != "document" {
			t.Fatalf("task %s pipeline = %q, want document", id, task.PipelineID)
		}
		if !task.AutoProcess {
			t.Fatalf("task %s not queued for processing", id)
		}
	}

	out, stderr, err := runCLI(t, []string{"import", exportPath}, env.configPath)
	if err != nil {
		t.Fatalf("repeat import: %v", err)
	}
	requireContains(t, out, "Imported 0 of 2 tasks")
	requireContains(t, stderr, "already present")
}

func TestImportHoldKeepsTasksUnscheduled(t *testing.T) {
	env := setupCLITestEnv(t)
	ctx := context.Background()

	file := filepath.Join(env.cfg.Paths.UploadDir, "doc.pdf")
	testsupport.WriteFile(t, file, 512)
	seeded := testsupport.NewTask(t, env.store, file, "pdf")

	exportPath := filepath.Join(testsupport.BaseDir(env.cfg), "tasks.json")
	if _, _, err := runCLI(t, []string{"export", "-o", exportPath}, env.configPath); err != nil {
		t.Fatalf("export: %v", err)
	}
	if _, err := env.store.Clear(ctx); err != nil {
		t.Fatalf("clear: %v", err)
	}

	if _, _, err := runCLI(t, []string{"import", "--hold", exportPath}, env.configPath); err != nil {
		t.Fatalf("import: %v", err)
	}

	task, err := env.store.GetByID(ctx, seeded.ID)
	if err != nil {
		t.Fatalf("lookup: %v", err)
	}
	if task == nil {
		t.Fatal("task missing after import")
	}
	if task.AutoProcess {
		t.Fatal("held import still queued for processing")
	}
	if task.PipelineID != "document" {
		t.Fatalf("pipeline = %q, want document", task.PipelineID)
	}
}

func TestExportStatusFilter(t *testing.T) {
	env := setupCLITestEnv(t)

	file := filepath.Join(env.cfg.Paths.UploadDir, "doc.pdf")
	testsupport.WriteFile(t, file, 512)
	testsupport.NewTask(t, env.store, file, "pdf")
	failed := testsupport.NewTask(t, env.store, file, "pdf", testsupport.WithStatus(queue.StatusFailed))

	out, _, err := runCLI(t, []string{"export", "--status", "failed"}, env.configPath)
	if err != nil {
		t.Fatalf("export: %v", err)
	}
	requireContains(t, out, failed.ID)

	if _, _, err := runCLI(t, []string{"export", "--status", "bogus"}, env.configPath); err == nil {
		t.Fatal("expected unknown status to be rejected")
	}
}
