// Package watch polls the upload directory and submits files that have
// finished arriving. A file is considered settled when its size is unchanged
// between two consecutive polls, which tolerates slow copies into the
// directory without watching for platform-specific filesystem events.
package watch

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"conveyor/internal/config"
	"conveyor/internal/fileutil"
	"conveyor/internal/logging"
	"conveyor/internal/queue"
	"conveyor/internal/workflow"
)

// Submitter is the slice of the workflow manager the watcher needs.
type Submitter interface {
	Submit(ctx context.Context, req workflow.SubmitRequest) (*queue.Task, error)
}

type observation struct {
	size      int64
	modTime   time.Time
	submitted bool
}

// Watcher polls the upload directory for settled files.
type Watcher struct {
	cfg       *config.Config
	submitter Submitter
	logger    *slog.Logger
	interval  time.Duration

	mu      sync.Mutex
	seen    map[string]*observation
	running bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// New builds a watcher over the configured upload directory.
func New(cfg *config.Config, submitter Submitter, logger *slog.Logger) *Watcher {
	if logger == nil {
		logger = logging.NewNop()
	}
	interval := time.Duration(cfg.Watch.Interval) * time.Second
	if interval <= 0 {
		interval = 5 * time.Second
	}
	return &Watcher{
		cfg:       cfg,
		submitter: submitter,
		logger:    logging.NewComponentLogger(logger, "watch"),
		interval:  interval,
		seen:      make(map[string]*observation),
	}
}

// Start launches the polling loop.
func (w *Watcher) Start(ctx context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.running {
		return errors.New("watcher already running")
	}
	runCtx, cancel := context.WithCancel(ctx)
	w.cancel = cancel
	w.running = true
	w.wg.Add(1)
	go w.run(runCtx)

	w.logger.Info("upload watcher started",
		logging.String(logging.FieldEventType, "watch_start"),
		logging.String("directory", w.cfg.Paths.UploadDir),
		logging.Duration("interval", w.interval))
	return nil
}

// Stop halts the polling loop.
func (w *Watcher) Stop() {
	w.mu.Lock()
	if !w.running {
		w.mu.Unlock()
		return
	}
	cancel := w.cancel
	w.running = false
	w.cancel = nil
	w.mu.Unlock()

	cancel()
	w.wg.Wait()
}

func (w *Watcher) run(ctx context.Context) {
	defer w.wg.Done()
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			w.Poll(ctx)
		}
	}
}

// Poll runs one scan of the upload directory. Exported so tests and one-shot
// CLI runs can drive the watcher without the ticker.
func (w *Watcher) Poll(ctx context.Context) {
	entries, err := os.ReadDir(w.cfg.Paths.UploadDir)
	if err != nil {
		w.logger.Warn("upload directory scan failed",
			logging.Error(err),
			logging.String(logging.FieldEventType, "watch_scan_failed"))
		return
	}

	current := make(map[string]struct{}, len(entries))
	for _, entry := range entries {
		if entry.IsDir() || strings.HasPrefix(entry.Name(), ".") {
			continue
		}
		path := filepath.Join(w.cfg.Paths.UploadDir, entry.Name())
		info, err := entry.Info()
		if err != nil {
			continue
		}
		current[path] = struct{}{}
		w.observe(ctx, path, info.Size(), info.ModTime())
	}

	// Forget files that disappeared so a re-upload of the same name is
	// treated as new.
	w.mu.Lock()
	for path := range w.seen {
		if _, exists := current[path]; !exists {
			delete(w.seen, path)
		}
	}
	w.mu.Unlock()
}

func (w *Watcher) observe(ctx context.Context, path string, size int64, modTime time.Time) {
	w.mu.Lock()
	prev, known := w.seen[path]
	if !known {
		w.seen[path] = &observation{size: size, modTime: modTime}
		w.mu.Unlock()
		return
	}
	if prev.submitted {
		w.mu.Unlock()
		return
	}
	if prev.size != size || !prev.modTime.Equal(modTime) {
		prev.size = size
		prev.modTime = modTime
		w.mu.Unlock()
		return
	}
	prev.submitted = true
	w.mu.Unlock()

	// Moving the file out of the watch directory keeps re-scans from seeing
	// it again while leaving the content available to the processors.
	submitPath := path
	if w.cfg.Watch.RemoveAfterSubmit {
		moved, err := w.relocate(path)
		if err != nil {
			w.logger.Warn("could not relocate settled upload; submitting in place",
				logging.Error(err),
				logging.String("file_path", path))
		} else {
			submitPath = moved
		}
	}

	task, err := w.submitter.Submit(ctx, workflow.SubmitRequest{
		UploadID:    filepath.Base(path),
		FilePath:    submitPath,
		AutoProcess: true,
	})
	if err != nil {
		w.logger.Error("failed to submit settled upload",
			logging.Error(err),
			logging.String(logging.FieldEventType, "watch_submit_failed"),
			logging.String("file_path", submitPath))
		w.mu.Lock()
		if obs, ok := w.seen[path]; ok {
			obs.submitted = false
		}
		w.mu.Unlock()
		return
	}

	w.logger.Info("upload submitted",
		logging.String(logging.FieldEventType, "watch_submitted"),
		logging.String(logging.FieldTaskID, task.ID),
		logging.String("file_path", submitPath))
}

func (w *Watcher) relocate(path string) (string, error) {
	dir := filepath.Join(w.cfg.Paths.DataDir, "ingested")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", err
	}
	target := filepath.Join(dir, filepath.Base(path))
	if err := fileutil.MoveFile(path, target); err != nil {
		return "", err
	}
	return target, nil
}
