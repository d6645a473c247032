package workflow

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"conveyor/internal/config"
	"conveyor/internal/logging"
	"conveyor/internal/pipeline"
	"conveyor/internal/processor"
	"conveyor/internal/queue"
	"conveyor/internal/results"
	"conveyor/internal/stageexec"
)

// Manager coordinates task processing across a bounded worker pool.
type Manager struct {
	cfg        *config.Config
	store      *queue.Store
	pipelines  *pipeline.Registry
	processors *processor.Registry
	cache      *results.Cache
	executor   *stageexec.Executor
	logger     *slog.Logger

	pollInterval       time.Duration
	errorRetryInterval time.Duration

	mu      sync.Mutex
	running bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// NewManager constructs a workflow manager. The result cache and stage
// executor are built here so every worker shares them.
func NewManager(cfg *config.Config, store *queue.Store, pipelines *pipeline.Registry, processors *processor.Registry, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = logging.NewNop()
	}
	cache := results.NewCache(cfg.ResultTTL(), cfg.Cache.MaxEntries, logger)
	return &Manager{
		cfg:                cfg,
		store:              store,
		pipelines:          pipelines,
		processors:         processors,
		cache:              cache,
		executor:           stageexec.New(processors, cache, logger),
		logger:             logging.NewComponentLogger(logger, "workflow"),
		pollInterval:       time.Duration(cfg.Workers.QueuePollInterval) * time.Second,
		errorRetryInterval: time.Duration(cfg.Workers.ErrorRetryInterval) * time.Second,
	}
}

// Cache exposes the shared result cache.
func (m *Manager) Cache() *results.Cache {
	return m.cache
}

// Start launches the worker pool.
func (m *Manager) Start(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.running {
		return errors.New("workflow already running")
	}

	workers := m.cfg.Workers.MaxConcurrentTasks
	if workers < 1 {
		workers = 1
	}

	runCtx, cancel := context.WithCancel(ctx)
	m.cancel = cancel
	m.running = true
	m.wg.Add(workers)
	for i := 0; i < workers; i++ {
		go m.runWorker(runCtx, i)
	}

	m.logger.Info("workflow started",
		logging.String(logging.FieldEventType, "workflow_start"),
		logging.Int("workers", workers))
	return nil
}

// Stop halts the worker pool and waits for in-flight tasks to reach their
// next control point.
func (m *Manager) Stop() {
	m.mu.Lock()
	if !m.running {
		m.mu.Unlock()
		return
	}
	cancel := m.cancel
	m.running = false
	m.cancel = nil
	m.mu.Unlock()

	cancel()
	m.wg.Wait()
	m.logger.Info("workflow stopped",
		logging.String(logging.FieldEventType, "workflow_stop"))
}

func (m *Manager) runWorker(ctx context.Context, id int) {
	defer m.wg.Done()
	logger := m.logger.With(logging.Int("worker", id))

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		task, err := m.store.ClaimNextPending(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			logger.Error("failed to claim next task",
				logging.Error(err),
				logging.String(logging.FieldEventType, "queue_claim_failed"))
			m.sleep(ctx, m.errorRetryInterval)
			continue
		}
		if task == nil {
			m.sleep(ctx, m.pollInterval)
			continue
		}

		m.processTask(ctx, logger, task)
	}
}

func (m *Manager) sleep(ctx context.Context, d time.Duration) {
	if d <= 0 {
		d = time.Second
	}
	select {
	case <-ctx.Done():
	case <-time.After(d):
	}
}
