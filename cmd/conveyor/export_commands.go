package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"conveyor/internal/config"
	"conveyor/internal/queue"
)

func newExportCommand(ctx *commandContext) *cobra.Command {
	var output string
	var statusFlags []string

	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export tasks as a JSON document",
		RunE: func(cmd *cobra.Command, args []string) error {
			filter := queue.ListFilter{}
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

				writer := cmd.OutOrStdout()
				if output != "" {
					f, err := os.Create(output)
					if err != nil {
						return fmt.Errorf("create %s: %w", output, err)
					}
					defer f.Close()
					writer = f
				}
				if err := queue.Export(writer, tasks); err != nil {
					return err
				}
				if output != "" {
					fmt.Fprintf(cmd.OutOrStdout(), "Exported %d tasks to %s\n", len(tasks), output)
				}
				return nil
			})
		},
	}

	cmd.Flags().StringVarP(&output, "output", "o", "", "Write to a file instead of stdout")
	cmd.Flags().StringSliceVar(&statusFlags, "status", nil, "Only export tasks with these statuses")
	return cmd
}

func newImportCommand(ctx *commandContext) *cobra.Command {
	var hold bool

	cmd := &cobra.Command{
		Use:   "import <file>",
		Short: "Import tasks from a JSON export",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := os.Open(args[0])
			if err != nil {
				return fmt.Errorf("open %s: %w", args[0], err)
			}
			defer f.Close()

			tasks, err := queue.Import(f)
			if err != nil {
				return err
			}

			_, pipelines, err := ctx.pipelineRegistry()
			if err != nil {
				return err
			}

			return ctx.withStore(func(cfg *config.Config, store *queue.Store) error {
				imported := 0
				for _, task := range tasks {
					existing, err := store.GetByID(cmd.Context(), task.ID)
					if err != nil {
						return err
					}
					if existing != nil {
						fmt.Fprintf(cmd.ErrOrStderr(), "skipping %s: already present\n", task.ID)
						continue
					}
					// The export document carries no pipeline binding, so
					// imported tasks are routed by file type like a fresh
					// submission.
					task.PipelineID = pipelines.Resolve(task.FileType).ID
					task.AutoProcess = !hold
					if err := store.Create(cmd.Context(), task); err != nil {
						return fmt.Errorf("import task %s: %w", task.ID, err)
					}
					imported++
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Imported %d of %d tasks\n", imported, len(tasks))
				return nil
			})
		},
	}

	cmd.Flags().BoolVar(&hold, "hold", false, "Import tasks without queueing them for processing")
	return cmd
}
