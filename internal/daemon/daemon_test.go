package daemon_test

import (
	"context"
	"testing"

	"conveyor/internal/daemon"
	"conveyor/internal/logging"
	"conveyor/internal/queue"
	"conveyor/internal/testsupport"
)

func TestStartStopLifecycle(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	d, err := daemon.New(cfg, logging.NewNop())
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	defer d.Close()

	ctx := context.Background()
	if err := d.Start(ctx); err != nil {
		t.Fatalf("start: %v", err)
	}
	if err := d.Start(ctx); err == nil {
		t.Fatal("second start must fail while running")
	}
	d.Stop()

	// A stopped daemon can start again.
	if err := d.Start(ctx); err != nil {
		t.Fatalf("restart: %v", err)
	}
	d.Stop()
}

func TestSecondInstanceRefused(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	first, err := daemon.New(cfg, logging.NewNop())
	if err != nil {
		t.Fatalf("new first: %v", err)
	}
	defer first.Close()

	ctx := context.Background()
	if err := first.Start(ctx); err != nil {
		t.Fatalf("start first: %v", err)
	}
	defer first.Stop()

	second, err := daemon.New(cfg, logging.NewNop())
	if err != nil {
		t.Fatalf("new second: %v", err)
	}
	defer second.Close()
	if err := second.Start(ctx); err == nil {
		second.Stop()
		t.Fatal("second instance must be refused while the lock is held")
	}
}

func TestStartupRecoveryRequeuesInterruptedTasks(t *testing.T) {
	cfg := testsupport.NewConfig(t)

	// Simulate a crash: a task left in_progress by a previous run.
	seed := testsupport.MustOpenStore(t, cfg)
	stuck := testsupport.NewTask(t, seed, "/a.pdf", "pdf", testsupport.WithStatus(queue.StatusInProgress))
	seed.Close()

	d, err := daemon.New(cfg, logging.NewNop())
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	defer d.Close()

	ctx := context.Background()
	if err := d.Start(ctx); err != nil {
		t.Fatalf("start: %v", err)
	}
	defer d.Stop()

	got, err := d.Store().GetByID(ctx, stuck.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Status != queue.StatusPending && !got.Status.IsProcessing() && got.Status != queue.StatusCompleted {
		t.Fatalf("stuck task status = %s", got.Status)
	}
}
