package results

import (
	"log/slog"
	"sort"
	"sync"
	"time"

	"conveyor/internal/logging"
	"conveyor/internal/queue"
)

type cacheKey struct {
	taskID string
	stage  queue.Stage
}

type cacheEntry struct {
	result   Result
	storedAt time.Time
}

// Cache holds successful stage results keyed by (task id, stage). Entries
// expire after the configured TTL and the cache evicts oldest entries first
// when it grows past maxEntries. Only successful results are stored, so a
// failed stage is always re-invoked on retry.
type Cache struct {
	ttl        time.Duration
	maxEntries int
	logger     *slog.Logger
	now        func() time.Time

	mu      sync.RWMutex
	entries map[cacheKey]cacheEntry
}

// NewCache creates a result cache. A non-positive ttl disables expiry; a
// non-positive maxEntries disables size-based eviction.
func NewCache(ttl time.Duration, maxEntries int, logger *slog.Logger) *Cache {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Cache{
		ttl:        ttl,
		maxEntries: maxEntries,
		logger:     logging.NewComponentLogger(logger, "resultcache"),
		now:        time.Now,
		entries:    make(map[cacheKey]cacheEntry),
	}
}

// Get returns a non-expired cached result for the task and stage.
func (c *Cache) Get(taskID string, stage queue.Stage) (Result, bool) {
	c.mu.RLock()
	entry, found := c.entries[cacheKey{taskID: taskID, stage: stage}]
	c.mu.RUnlock()
	if !found {
		return Result{}, false
	}
	if c.expired(entry) {
		c.mu.Lock()
		// Re-check under the write lock; another Put may have refreshed it.
		if current, ok := c.entries[cacheKey{taskID: taskID, stage: stage}]; ok && c.expired(current) {
			delete(c.entries, cacheKey{taskID: taskID, stage: stage})
		}
		c.mu.Unlock()
		return Result{}, false
	}
	return entry.result, true
}

// Put stores a successful result. Failed results are ignored so retries
// always re-invoke the processor.
func (c *Cache) Put(result Result) {
	if !result.Success {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	c.entries[cacheKey{taskID: result.TaskID, stage: result.Stage}] = cacheEntry{
		result:   result,
		storedAt: c.now(),
	}
	if c.maxEntries > 0 && len(c.entries) > c.maxEntries {
		c.evictLocked()
	}
}

// Invalidate drops every cached result for the task.
func (c *Cache) Invalidate(taskID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for key := range c.entries {
		if key.taskID == taskID {
			delete(c.entries, key)
		}
	}
}

// Len returns the current entry count, expired entries included.
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

func (c *Cache) expired(entry cacheEntry) bool {
	if c.ttl <= 0 {
		return false
	}
	return c.now().Sub(entry.storedAt) > c.ttl
}

func (c *Cache) evictLocked() {
	type aged struct {
		key      cacheKey
		storedAt time.Time
	}
	all := make([]aged, 0, len(c.entries))
	for key, entry := range c.entries {
		all = append(all, aged{key: key, storedAt: entry.storedAt})
	}
	sort.Slice(all, func(i, j int) bool { return all[i].storedAt.Before(all[j].storedAt) })

	excess := len(c.entries) - c.maxEntries
	for i := 0; i < excess; i++ {
		delete(c.entries, all[i].key)
	}
	c.logger.Debug("evicted cached results",
		logging.Int("evicted", excess),
		logging.Int("remaining", len(c.entries)))
}
