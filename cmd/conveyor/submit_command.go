package main

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"conveyor/internal/config"
	"conveyor/internal/queue"
	"conveyor/internal/workflow"
)

func newSubmitCommand(ctx *commandContext) *cobra.Command {
	var (
		fileType     string
		priorityFlag string
		uploadID     string
		dependencies []string
		metadata     []string
		hold         bool
	)

	cmd := &cobra.Command{
		Use:   "submit <file>",
		Short: "Submit a file for processing",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path, err := filepath.Abs(args[0])
			if err != nil {
				return fmt.Errorf("resolve path: %w", err)
			}

			var priority queue.Priority
			if priorityFlag != "" {
				parsed, ok := queue.ParsePriority(priorityFlag)
				if !ok {
					return fmt.Errorf("unknown priority %q (low, normal, high, urgent)", priorityFlag)
				}
				priority = parsed
			}

			meta, err := parseMetadata(metadata)
			if err != nil {
				return err
			}

			return ctx.withManager(func(cfg *config.Config, _ *queue.Store, manager *workflow.Manager) error {
				task, err := manager.Submit(cmd.Context(), workflow.SubmitRequest{
					UploadID:     uploadID,
					FilePath:     path,
					FileType:     fileType,
					Priority:     priority,
					Metadata:     meta,
					Dependencies: dependencies,
					AutoProcess:  !hold,
				})
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Submitted task %s\n", task.ID)
				fmt.Fprintf(cmd.OutOrStdout(), "  pipeline: %s\n  file type: %s\n  priority: %s\n  auto process: %s\n",
					task.PipelineID, task.FileType, task.Priority, yesNo(task.AutoProcess))
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&fileType, "type", "", "Override the detected file type")
	cmd.Flags().StringVar(&priorityFlag, "priority", "", "Task priority (low, normal, high, urgent)")
	cmd.Flags().StringVar(&uploadID, "upload-id", "", "Upstream upload identifier")
	cmd.Flags().StringSliceVar(&dependencies, "depends-on", nil, "Task ids that must complete first")
	cmd.Flags().StringSliceVar(&metadata, "meta", nil, "Extra metadata as key=value pairs")
	cmd.Flags().BoolVar(&hold, "hold", false, "Create the task without queueing it for processing")

	return cmd
}

func parseMetadata(pairs []string) (map[string]any, error) {
	if len(pairs) == 0 {
		return nil, nil
	}
	meta := make(map[string]any, len(pairs))
	for _, pair := range pairs {
		key, value, found := strings.Cut(pair, "=")
		key = strings.TrimSpace(key)
		if !found || key == "" {
			return nil, fmt.Errorf("invalid metadata pair %q, expected key=value", pair)
		}
		meta[key] = value
	}
	return meta, nil
}
