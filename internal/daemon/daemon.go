// Package daemon wires the engine together for background operation: the
// queue store, pipeline and processor registries, the workflow manager, and
// the optional upload watcher, behind a file lock that enforces a single
// instance per data directory.
package daemon

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync/atomic"

	"github.com/gofrs/flock"

	"conveyor/internal/config"
	"conveyor/internal/logging"
	"conveyor/internal/pipeline"
	"conveyor/internal/processor"
	"conveyor/internal/queue"
	"conveyor/internal/watch"
	"conveyor/internal/workflow"
)

// Daemon coordinates the background services and enforces single-instance
// execution.
type Daemon struct {
	cfg      *config.Config
	logger   *slog.Logger
	store    *queue.Store
	manager  *workflow.Manager
	watcher  *watch.Watcher
	lockPath string
	lock     *flock.Flock

	running atomic.Bool
	cancel  context.CancelFunc
}

// New builds the daemon and its dependency graph: registries loaded with the
// builtin pipelines and processors plus any operator pipeline file, a store
// on the configured data directory, and the workflow manager over both.
func New(cfg *config.Config, logger *slog.Logger) (*Daemon, error) {
	if cfg == nil {
		return nil, errors.New("daemon requires configuration")
	}
	if logger == nil {
		logger = logging.NewNop()
	}
	if err := cfg.EnsureDirectories(); err != nil {
		return nil, fmt.Errorf("prepare directories: %w", err)
	}

	store, err := queue.Open(cfg)
	if err != nil {
		return nil, fmt.Errorf("open task store: %w", err)
	}

	pipelines, err := pipeline.NewDefaultRegistry(cfg)
	if err != nil {
		store.Close()
		return nil, fmt.Errorf("register builtin pipelines: %w", err)
	}
	if cfg.Pipelines.File != "" {
		if err := pipeline.LoadFile(pipelines, cfg, cfg.Pipelines.File); err != nil {
			store.Close()
			return nil, fmt.Errorf("load pipeline definitions: %w", err)
		}
	}

	processors := processor.NewRegistry()
	processor.RegisterBuiltins(processors, cfg)

	manager := workflow.NewManager(cfg, store, pipelines, processors, logger)

	var watcher *watch.Watcher
	if cfg.Watch.Enabled {
		watcher = watch.New(cfg, manager, logger)
	}

	lockPath := filepath.Join(cfg.Paths.DataDir, "conveyord.lock")
	return &Daemon{
		cfg:      cfg,
		logger:   logging.NewComponentLogger(logger, "daemon"),
		store:    store,
		manager:  manager,
		watcher:  watcher,
		lockPath: lockPath,
		lock:     flock.New(lockPath),
	}, nil
}

// Store exposes the daemon's task store.
func (d *Daemon) Store() *queue.Store {
	return d.store
}

// Manager exposes the workflow manager for submission and control.
func (d *Daemon) Manager() *workflow.Manager {
	return d.manager
}

// Start acquires the instance lock, recovers tasks stranded by a previous
// crash, and launches the worker pool and watcher.
func (d *Daemon) Start(ctx context.Context) error {
	if d.running.Load() {
		return errors.New("daemon already running")
	}

	ok, err := d.lock.TryLock()
	if err != nil {
		return fmt.Errorf("acquire lock %s: %w", d.lockPath, err)
	}
	if !ok {
		return fmt.Errorf("another conveyor daemon already holds %s", d.lockPath)
	}

	reclaimed, err := d.store.ResetStuckProcessing(ctx)
	if err != nil {
		_ = d.lock.Unlock()
		return fmt.Errorf("recover interrupted tasks: %w", err)
	}
	if reclaimed > 0 {
		d.logger.Info("requeued interrupted tasks",
			logging.String(logging.FieldEventType, "startup_recovery"),
			logging.Int64("count", reclaimed))
	}

	runCtx, cancel := context.WithCancel(ctx)
	d.cancel = cancel

	if err := d.manager.Start(runCtx); err != nil {
		cancel()
		_ = d.lock.Unlock()
		return fmt.Errorf("start workflow: %w", err)
	}
	if d.watcher != nil {
		if err := d.watcher.Start(runCtx); err != nil {
			d.manager.Stop()
			cancel()
			_ = d.lock.Unlock()
			return fmt.Errorf("start upload watcher: %w", err)
		}
	}

	d.running.Store(true)
	d.logger.Info("daemon started",
		logging.String(logging.FieldEventType, "daemon_start"),
		logging.String("lock", d.lockPath),
		logging.String("database", d.store.Path()),
		logging.Bool("watcher", d.watcher != nil))
	return nil
}

// Stop halts the watcher and worker pool and releases the instance lock.
func (d *Daemon) Stop() {
	if !d.running.Load() {
		return
	}
	if d.watcher != nil {
		d.watcher.Stop()
	}
	d.manager.Stop()
	if d.cancel != nil {
		d.cancel()
		d.cancel = nil
	}
	if err := d.lock.Unlock(); err != nil {
		d.logger.Warn("failed to release daemon lock", logging.Error(err))
	}
	d.running.Store(false)
	d.logger.Info("daemon stopped",
		logging.String(logging.FieldEventType, "daemon_stop"))
}

// Close stops the daemon and closes the store.
func (d *Daemon) Close() error {
	d.Stop()
	return d.store.Close()
}
