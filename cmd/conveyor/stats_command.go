package main

import (
	"fmt"
	"sort"

	"github.com/spf13/cobra"

	"conveyor/internal/config"
	"conveyor/internal/queue"
	"conveyor/internal/stats"
)

func newStatsCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Show aggregate processing statistics",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withStore(func(cfg *config.Config, store *queue.Store) error {
				summary, err := stats.NewCollector(store).Collect(cmd.Context())
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				fmt.Fprintf(out, "Total tasks: %d\n", summary.Total)
				fmt.Fprintf(out, "Queue depth: %d\n", summary.QueueDepth)
				fmt.Fprintf(out, "Success rate: %.1f%%\n\n", summary.SuccessRate*100)

				statusRows := make([][]string, 0, len(summary.ByStatus))
				for _, status := range queue.AllStatuses() {
					if count := summary.ByStatus[status]; count > 0 {
						statusRows = append(statusRows, []string{string(status), fmt.Sprintf("%d", count)})
					}
				}
				if len(statusRows) > 0 {
					fmt.Fprintln(out, renderTable([]string{"Status", "Tasks"}, statusRows,
						[]columnAlignment{alignLeft, alignRight}))
				}

				typeRows := sortedCountRows(summary.ByFileType)
				if len(typeRows) > 0 {
					fmt.Fprintln(out, renderTable([]string{"File Type", "Tasks"}, typeRows,
						[]columnAlignment{alignLeft, alignRight}))
				}

				priorityRows := make([][]string, 0, len(summary.ByPriority))
				for _, priority := range queue.AllPriorities() {
					if count := summary.ByPriority[priority]; count > 0 {
						priorityRows = append(priorityRows, []string{string(priority), fmt.Sprintf("%d", count)})
					}
				}
				if len(priorityRows) > 0 {
					fmt.Fprintln(out, renderTable([]string{"Priority", "Tasks"}, priorityRows,
						[]columnAlignment{alignLeft, alignRight}))
				}
				return nil
			})
		},
	}
}

func sortedCountRows(counts map[string]int) [][]string {
	keys := make([]string, 0, len(counts))
	for key := range counts {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	rows := make([][]string, 0, len(keys))
	for _, key := range keys {
		rows = append(rows, []string{key, fmt.Sprintf("%d", counts[key])})
	}
	return rows
}
