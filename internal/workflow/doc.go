// Package workflow hosts the task runner: a bounded worker pool that claims
// pending tasks from the queue store, walks each task's pipeline group by
// group, and applies the retry, timeout, and cooperative cancellation rules.
// Control APIs (cancel, pause, resume, retry) act through conditional store
// transitions, so a CLI process and the daemon can share one queue database
// without clobbering each other.
package workflow
