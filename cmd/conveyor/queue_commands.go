package main

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"conveyor/internal/config"
	"conveyor/internal/queue"
	"conveyor/internal/workflow"
)

func newQueueCommand(ctx *commandContext) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "queue",
		Short: "Inspect and control the task queue",
	}
	cmd.AddCommand(newQueueStatusCommand(ctx))
	cmd.AddCommand(newQueueListCommand(ctx))
	cmd.AddCommand(newQueueShowCommand(ctx))
	cmd.AddCommand(newQueueControlCommand(ctx, "cancel", "Cancel a task at its next control point",
		func(m *workflow.Manager) controlFunc { return m.Cancel }))
	cmd.AddCommand(newQueueControlCommand(ctx, "pause", "Pause a task at its next control point",
		func(m *workflow.Manager) controlFunc { return m.Pause }))
	cmd.AddCommand(newQueueControlCommand(ctx, "resume", "Resume a paused task",
		func(m *workflow.Manager) controlFunc { return m.Resume }))
	cmd.AddCommand(newQueueControlCommand(ctx, "retry", "Requeue a failed task",
		func(m *workflow.Manager) controlFunc { return m.Retry }))
	cmd.AddCommand(newQueueRemoveCommand(ctx))
	cmd.AddCommand(newQueueClearCommand(ctx))
	cmd.AddCommand(newQueueHealthCommand(ctx))
	return cmd
}

func newQueueStatusCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show task counts per status",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withStore(func(cfg *config.Config, store *queue.Store) error {
				counts, err := store.Stats(cmd.Context())
				if err != nil {
					return err
				}
				rows := make([][]string, 0, len(counts))
				total := 0
				for _, status := range queue.AllStatuses() {
					count := counts[status]
					total += count
					if count == 0 {
						continue
					}
					rows = append(rows, []string{string(status), fmt.Sprintf("%d", count)})
				}
				rows = append(rows, []string{"total", fmt.Sprintf("%d", total)})
				fmt.Fprintln(cmd.OutOrStdout(), renderTable(
					[]string{"Status", "Tasks"}, rows,
					[]columnAlignment{alignLeft, alignRight}))
				return nil
			})
		},
	}
}

func newQueueListCommand(ctx *commandContext) *cobra.Command {
	var statusFlags []string
	var typeFlag string

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List tasks, optionally filtered by status or file type",
		RunE: func(cmd *cobra.Command, args []string) error {
			filter := queue.ListFilter{FileType: strings.TrimSpace(typeFlag)}
			for _, raw := range statusFlags {
				status, ok := queue.ParseStatus(raw)
				if !ok {
					return fmt.Errorf("unknown status %q", raw)
				}
				filter.Statuses = append(filter.Statuses, status)
			}

			return ctx.withStore(func(cfg *config.Config, store *queue.Store) error {
				tasks, err := store.List(cmd.Context(), filter)
				if err != nil {
					return err
				}
				if len(tasks) == 0 {
					fmt.Fprintln(cmd.OutOrStdout(), "No tasks found.")
					return nil
				}
				rows := make([][]string, 0, len(tasks))
				for _, task := range tasks {
					rows = append(rows, []string{
						shortID(task.ID),
						string(task.Status),
						string(task.Priority),
						task.FileType,
						fmt.Sprintf("%3.0f%%", task.Progress*100),
						task.FilePath,
					})
				}
				fmt.Fprintln(cmd.OutOrStdout(), renderTable(
					[]string{"ID", "Status", "Priority", "Type", "Progress", "File"}, rows,
					[]columnAlignment{alignLeft, alignLeft, alignLeft, alignLeft, alignRight, alignLeft}))
				return nil
			})
		},
	}

	cmd.Flags().StringSliceVar(&statusFlags, "status", nil, "Filter by status (repeatable)")
	cmd.Flags().StringVar(&typeFlag, "type", "", "Filter by file type")
	return cmd
}

func newQueueShowCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "show <task-id>",
		Short: "Show one task in full",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withStore(func(cfg *config.Config, store *queue.Store) error {
				task, err := store.GetByID(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				if task == nil {
					return fmt.Errorf("task %s not found", args[0])
				}
				printTask(cmd, task)
				return nil
			})
		},
	}
}

type controlFunc func(ctx context.Context, id string) (*queue.Task, error)

func newQueueControlCommand(ctx *commandContext, verb, short string, pick func(*workflow.Manager) controlFunc) *cobra.Command {
	return &cobra.Command{
		Use:   verb + " <task-id>",
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withManager(func(cfg *config.Config, _ *queue.Store, manager *workflow.Manager) error {
				task, err := pick(manager)(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Task %s is now %s\n", shortID(task.ID), task.Status)
				return nil
			})
		},
	}
}

func newQueueRemoveCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "remove <task-id>",
		Short: "Delete a task from the queue",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withStore(func(cfg *config.Config, store *queue.Store) error {
				removed, err := store.Remove(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				if !removed {
					return fmt.Errorf("task %s not found", args[0])
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Removed task %s\n", args[0])
				return nil
			})
		},
	}
}

func newQueueClearCommand(ctx *commandContext) *cobra.Command {
	var clearCompleted, clearFailed, clearAll bool

	cmd := &cobra.Command{
		Use:   "clear",
		Short: "Remove finished tasks from the queue",
		RunE: func(cmd *cobra.Command, args []string) error {
			if !clearCompleted && !clearFailed && !clearAll {
				clearCompleted = true
			}
			return ctx.withStore(func(cfg *config.Config, store *queue.Store) error {
				var removed int64
				var err error
				switch {
				case clearAll:
					removed, err = store.Clear(cmd.Context())
				case clearFailed:
					removed, err = store.ClearFailed(cmd.Context())
				default:
					removed, err = store.ClearCompleted(cmd.Context())
				}
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Removed %d tasks\n", removed)
				return nil
			})
		},
	}

	cmd.Flags().BoolVar(&clearCompleted, "completed", false, "Remove completed tasks (default)")
	cmd.Flags().BoolVar(&clearFailed, "failed", false, "Remove failed tasks")
	cmd.Flags().BoolVar(&clearAll, "all", false, "Remove every task")
	return cmd
}

func newQueueHealthCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "health",
		Short: "Check task database health",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withStore(func(cfg *config.Config, store *queue.Store) error {
				health, err := store.CheckHealth(cmd.Context())
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				fmt.Fprintf(out, "Database: %s\n", health.DBPath)
				fmt.Fprintf(out, "  exists: %s\n", yesNo(health.DatabaseExists))
				fmt.Fprintf(out, "  readable: %s\n", yesNo(health.DatabaseReadable))
				fmt.Fprintf(out, "  tasks table: %s\n", yesNo(health.TableExists))
				fmt.Fprintf(out, "  integrity: %s\n", yesNo(health.IntegrityCheck))
				fmt.Fprintf(out, "  total tasks: %d\n", health.TotalTasks)
				if health.Error != "" {
					fmt.Fprintf(out, "  error: %s\n", health.Error)
				}
				return nil
			})
		},
	}
}

func printTask(cmd *cobra.Command, task *queue.Task) {
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Task %s\n", task.ID)
	fmt.Fprintf(out, "  upload id: %s\n", task.UploadID)
	fmt.Fprintf(out, "  file: %s (%s)\n", task.FilePath, task.FileType)
	fmt.Fprintf(out, "  pipeline: %s\n", task.PipelineID)
	fmt.Fprintf(out, "  status: %s\n", task.Status)
	fmt.Fprintf(out, "  priority: %s\n", task.Priority)
	fmt.Fprintf(out, "  progress: %.0f%%\n", task.Progress*100)
	fmt.Fprintf(out, "  retries: %d/%d\n", task.RetryCount, task.MaxRetries)
	fmt.Fprintf(out, "  auto process: %s\n", yesNo(task.AutoProcess))
	if task.CurrentStage != "" {
		fmt.Fprintf(out, "  current stage: %s\n", task.CurrentStage)
	}
	if len(task.Stages) > 0 {
		names := make([]string, 0, len(task.Stages))
		for _, stage := range task.Stages {
			names = append(names, string(stage))
		}
		fmt.Fprintf(out, "  stages: %s\n", strings.Join(names, " -> "))
	}
	if len(task.Dependencies) > 0 {
		fmt.Fprintf(out, "  depends on: %s\n", strings.Join(task.Dependencies, ", "))
	}
	if task.StartedAt != nil {
		fmt.Fprintf(out, "  started: %s\n", task.StartedAt.Format(time.RFC3339))
	}
	if task.CompletedAt != nil {
		fmt.Fprintf(out, "  finished: %s\n", task.CompletedAt.Format(time.RFC3339))
	}
	if task.ErrorMessage != "" {
		fmt.Fprintf(out, "  error: %s\n", task.ErrorMessage)
	}
	if len(task.Metadata) > 0 {
		keys := make([]string, 0, len(task.Metadata))
		for key := range task.Metadata {
			keys = append(keys, key)
		}
		sort.Strings(keys)
		fmt.Fprintln(out, "  metadata:")
		for _, key := range keys {
			fmt.Fprintf(out, "    %s: %v\n", key, task.Metadata[key])
		}
	}
	if len(task.ProcessingLog) > 0 {
		fmt.Fprintln(out, "  log:")
		for _, entry := range task.ProcessingLog {
			fmt.Fprintf(out, "    %s\n", entry)
		}
	}
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
