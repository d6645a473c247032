package queue_test

import (
	"context"
	"testing"
	"time"

	"conveyor/internal/queue"
	"conveyor/internal/testsupport"
)

func TestCreateAndGetRoundTrip(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	created := testsupport.NewTask(t, store, "/uploads/report.pdf", "pdf", testsupport.WithDependencies("dep-1"))
	created.AppendLog("created for test")
	if err := store.Update(ctx, created); err != nil {
		t.Fatalf("update: %v", err)
	}

	got, err := store.GetByID(ctx, created.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got == nil {
		t.Fatal("expected task")
	}
	if got.FilePath != "/uploads/report.pdf" || got.FileType != "pdf" {
		t.Fatalf("unexpected task fields: %+v", got)
	}
	if got.FileSize() != 1024 {
		t.Fatalf("file size = %d, want 1024", got.FileSize())
	}
	if len(got.Dependencies) != 1 || got.Dependencies[0] != "dep-1" {
		t.Fatalf("dependencies = %v", got.Dependencies)
	}
	if len(got.ProcessingLog) != 1 {
		t.Fatalf("processing log = %v", got.ProcessingLog)
	}
	if got.Status != queue.StatusPending {
		t.Fatalf("status = %s", got.Status)
	}
}

func TestGetMissingReturnsNil(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)

	got, err := store.GetByID(context.Background(), "nope")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got != nil {
		t.Fatal("expected nil for missing task")
	}
}

func TestClaimNextPendingHonorsPriorityThenFIFO(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	first := testsupport.NewTask(t, store, "/a.txt", "document")
	time.Sleep(5 * time.Millisecond)
	second := testsupport.NewTask(t, store, "/b.txt", "document")
	time.Sleep(5 * time.Millisecond)
	urgent := testsupport.NewTask(t, store, "/c.txt", "document", testsupport.WithPriority(queue.PriorityUrgent))

	order := make([]string, 0, 3)
	for i := 0; i < 3; i++ {
		task, err := store.ClaimNextPending(ctx)
		if err != nil {
			t.Fatalf("claim: %v", err)
		}
		if task == nil {
			t.Fatalf("claim %d returned nil", i)
		}
		if task.Status != queue.StatusInProgress {
			t.Fatalf("claimed task status = %s", task.Status)
		}
		order = append(order, task.ID)
	}

	want := []string{urgent.ID, first.ID, second.ID}
	for i := range want {
		if order[i] != want[i] {
			t.Fatalf("claim order = %v, want %v", order, want)
		}
	}

	empty, err := store.ClaimNextPending(ctx)
	if err != nil {
		t.Fatalf("claim empty: %v", err)
	}
	if empty != nil {
		t.Fatal("expected empty queue")
	}
}

func TestClaimSkipsHeldTasks(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	held := testsupport.NewTask(t, store, "/held.txt", "document", func(task *queue.Task) {
		task.AutoProcess = false
	})

	got, err := store.ClaimNextPending(ctx)
	if err != nil {
		t.Fatalf("claim: %v", err)
	}
	if got != nil {
		t.Fatalf("claimed held task %s", held.ID)
	}
}

func TestUpdateOwnedRefusesAfterControlTransition(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	task := testsupport.NewTask(t, store, "/a.pdf", "pdf", testsupport.WithStatus(queue.StatusInProgress))

	// Simulate a cancel landing from the control surface.
	_, applied, err := store.Transition(ctx, task.ID,
		[]queue.Status{queue.StatusInProgress},
		func(t *queue.Task) { t.Status = queue.StatusCancelled },
	)
	if err != nil {
		t.Fatalf("transition: %v", err)
	}
	if !applied {
		t.Fatal("expected cancel to apply")
	}

	// The worker's stale write must be refused.
	task.Progress = 0.5
	ok, err := store.UpdateOwned(ctx, task, queue.StatusInProgress, queue.StatusRetrying)
	if err != nil {
		t.Fatalf("update owned: %v", err)
	}
	if ok {
		t.Fatal("stale worker write must not clobber a cancel")
	}

	got, err := store.GetByID(ctx, task.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Status != queue.StatusCancelled {
		t.Fatalf("status = %s, want cancelled", got.Status)
	}
	if got.Progress != 0 {
		t.Fatalf("progress = %f, want 0", got.Progress)
	}
}

func TestTransitionIneligibleState(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	task := testsupport.NewTask(t, store, "/a.pdf", "pdf")

	got, applied, err := store.Transition(ctx, task.ID,
		[]queue.Status{queue.StatusFailed},
		func(t *queue.Task) { t.Status = queue.StatusPending },
	)
	if err != nil {
		t.Fatalf("transition: %v", err)
	}
	if applied {
		t.Fatal("transition from wrong state must not apply")
	}
	if got.Status != queue.StatusPending {
		t.Fatalf("status = %s", got.Status)
	}
}

func TestListFilters(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	testsupport.NewTask(t, store, "/a.pdf", "pdf")
	testsupport.NewTask(t, store, "/b.png", "image")
	testsupport.NewTask(t, store, "/c.pdf", "pdf", testsupport.WithStatus(queue.StatusCompleted))

	all, err := store.List(ctx, queue.ListFilter{})
	if err != nil {
		t.Fatalf("list all: %v", err)
	}
	if len(all) != 3 {
		t.Fatalf("list all = %d tasks", len(all))
	}

	pdfs, err := store.List(ctx, queue.ListFilter{FileType: "pdf"})
	if err != nil {
		t.Fatalf("list pdf: %v", err)
	}
	if len(pdfs) != 2 {
		t.Fatalf("pdf tasks = %d, want 2", len(pdfs))
	}

	pendingPDFs, err := store.List(ctx, queue.ListFilter{
		Statuses: []queue.Status{queue.StatusPending},
		FileType: "pdf",
	})
	if err != nil {
		t.Fatalf("list pending pdf: %v", err)
	}
	if len(pendingPDFs) != 1 {
		t.Fatalf("pending pdf tasks = %d, want 1", len(pendingPDFs))
	}
}

func TestResetStuckProcessing(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	running := testsupport.NewTask(t, store, "/a.pdf", "pdf", testsupport.WithStatus(queue.StatusInProgress))
	retrying := testsupport.NewTask(t, store, "/b.pdf", "pdf", testsupport.WithStatus(queue.StatusRetrying))
	done := testsupport.NewTask(t, store, "/c.pdf", "pdf", testsupport.WithStatus(queue.StatusCompleted))

	affected, err := store.ResetStuckProcessing(ctx)
	if err != nil {
		t.Fatalf("reset: %v", err)
	}
	if affected != 2 {
		t.Fatalf("reset affected %d, want 2", affected)
	}
	for _, id := range []string{running.ID, retrying.ID} {
		got, err := store.GetByID(ctx, id)
		if err != nil {
			t.Fatalf("get: %v", err)
		}
		if got.Status != queue.StatusPending {
			t.Fatalf("task %s status = %s, want pending", id, got.Status)
		}
	}
	gotDone, err := store.GetByID(ctx, done.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if gotDone.Status != queue.StatusCompleted {
		t.Fatalf("completed task reset to %s", gotDone.Status)
	}
}

func TestStatsAndHealth(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	testsupport.NewTask(t, store, "/a.pdf", "pdf")
	testsupport.NewTask(t, store, "/b.pdf", "pdf", testsupport.WithStatus(queue.StatusCompleted))
	testsupport.NewTask(t, store, "/c.pdf", "pdf", testsupport.WithStatus(queue.StatusFailed))
	testsupport.NewTask(t, store, "/d.pdf", "pdf", testsupport.WithStatus(queue.StatusInProgress))

	stats, err := store.Stats(ctx)
	if err != nil {
		t.Fatalf("stats: %v", err)
	}
	if stats[queue.StatusPending] != 1 || stats[queue.StatusCompleted] != 1 || stats[queue.StatusFailed] != 1 {
		t.Fatalf("unexpected stats: %v", stats)
	}

	health, err := store.Health(ctx)
	if err != nil {
		t.Fatalf("health: %v", err)
	}
	if health.Total != 4 || health.Pending != 1 || health.Processing != 1 {
		t.Fatalf("unexpected health: %+v", health)
	}

	dbHealth, err := store.CheckHealth(ctx)
	if err != nil {
		t.Fatalf("check health: %v", err)
	}
	if !dbHealth.DatabaseExists || !dbHealth.DatabaseReadable || !dbHealth.TableExists || !dbHealth.IntegrityCheck {
		t.Fatalf("unexpected db health: %+v", dbHealth)
	}
	if dbHealth.TotalTasks != 4 {
		t.Fatalf("total tasks = %d", dbHealth.TotalTasks)
	}
}

func TestRemoveAndClear(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	task := testsupport.NewTask(t, store, "/a.pdf", "pdf")
	testsupport.NewTask(t, store, "/b.pdf", "pdf", testsupport.WithStatus(queue.StatusFailed))

	removed, err := store.Remove(ctx, task.ID)
	if err != nil {
		t.Fatalf("remove: %v", err)
	}
	if !removed {
		t.Fatal("expected removal")
	}

	cleared, err := store.ClearFailed(ctx)
	if err != nil {
		t.Fatalf("clear failed: %v", err)
	}
	if cleared != 1 {
		t.Fatalf("cleared = %d, want 1", cleared)
	}

	remaining, err := store.List(ctx, queue.ListFilter{})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(remaining) != 0 {
		t.Fatalf("remaining = %d tasks", len(remaining))
	}
}
