// Package stats aggregates read-side statistics over task store snapshots.
// It never mutates tasks and is safe to call while the runner is working.
package stats

import (
	"context"

	"conveyor/internal/queue"
)

// Summary holds aggregate task counts and derived rates.
type Summary struct {
	Total       int                    `json:"total"`
	ByStatus    map[queue.Status]int   `json:"by_status"`
	ByFileType  map[string]int         `json:"by_file_type"`
	ByPriority  map[queue.Priority]int `json:"by_priority"`
	QueueDepth  int                    `json:"queue_depth"`
	SuccessRate float64                `json:"success_rate"`
}

// Collector computes statistics from the task store.
type Collector struct {
	store *queue.Store
}

// NewCollector builds a collector over the store.
func NewCollector(store *queue.Store) *Collector {
	return &Collector{store: store}
}

// Collect aggregates counts over a snapshot of every task. The success rate
// is completed over total, 0 for an empty store.
func (c *Collector) Collect(ctx context.Context) (Summary, error) {
	tasks, err := c.store.List(ctx, queue.ListFilter{})
	if err != nil {
		return Summary{}, err
	}

	summary := Summary{
		ByStatus:   make(map[queue.Status]int),
		ByFileType: make(map[string]int),
		ByPriority: make(map[queue.Priority]int),
	}
	completed := 0
	for _, task := range tasks {
		summary.Total++
		summary.ByStatus[task.Status]++
		summary.ByFileType[task.FileType]++
		summary.ByPriority[task.Priority]++
		switch task.Status {
		case queue.StatusPending:
			summary.QueueDepth++
		case queue.StatusCompleted:
			completed++
		}
	}
	if summary.Total > 0 {
		summary.SuccessRate = float64(completed) / float64(summary.Total)
	}
	return summary, nil
}
