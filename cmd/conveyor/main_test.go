package main

import (
	"path/filepath"
	"testing"

	"conveyor/internal/queue"
	"conveyor/internal/testsupport"
)

func TestRootHelpListsCommands(t *testing.T) {
	env := setupCLITestEnv(t)

	out, _, err := runCLI(t, nil, env.configPath)
	if err != nil {
		t.Fatalf("root: %v", err)
	}
	for _, name := range []string{"submit", "queue", "stats", "pipelines", "export", "import", "logs", "config", "run"} {
		requireContains(t, out, name)
	}
}

func TestPipelinesCommand(t *testing.T) {
	env := setupCLITestEnv(t)

	out, _, err := runCLI(t, []string{"pipelines"}, env.configPath)
	if err != nil {
		t.Fatalf("pipelines: %v", err)
	}
	requireContains(t, out, "document")
	requireContains(t, out, "image")
	requireContains(t, out, "(other)")
}

func TestStatsCommand(t *testing.T) {
	env := setupCLITestEnv(t)

	file := filepath.Join(env.cfg.Paths.UploadDir, "clip.mp4")
	testsupport.WriteFile(t, file, 512)
	testsupport.NewTask(t, env.store, file, "video")
	testsupport.NewTask(t, env.store, file, "video", testsupport.WithStatus(queue.StatusCompleted))

	out, _, err := runCLI(t, []string{"stats"}, env.configPath)
	if err != nil {
		t.Fatalf("stats: %v", err)
	}
	requireContains(t, out, "Total tasks: 2")
	requireContains(t, out, "video")
}
