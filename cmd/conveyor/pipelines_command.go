package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

func newPipelinesCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "pipelines",
		Short: "List registered pipelines and file-type routing",
		RunE: func(cmd *cobra.Command, args []string) error {
			_, pipelines, err := ctx.pipelineRegistry()
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()

			rows := make([][]string, 0)
			for _, p := range pipelines.List() {
				stages := make([]string, 0, len(p.Stages))
				for _, stage := range p.Stages {
					stages = append(stages, string(stage))
				}
				rows = append(rows, []string{
					p.ID,
					yesNo(p.Enabled),
					fmt.Sprintf("%d", len(p.Stages)),
					p.Timeout.String(),
					strings.Join(stages, " -> "),
				})
			}
			fmt.Fprintln(out, renderTable(
				[]string{"Pipeline", "Enabled", "Stages", "Timeout", "Stage Order"}, rows,
				[]columnAlignment{alignLeft, alignLeft, alignRight, alignRight, alignLeft}))

			mappingRows := make([][]string, 0)
			for _, mapping := range pipelines.Mappings() {
				mappingRows = append(mappingRows, []string{mapping[0], mapping[1]})
			}
			mappingRows = append(mappingRows, []string{"(other)", pipelines.DefaultID()})
			fmt.Fprintln(out, renderTable(
				[]string{"File Type", "Pipeline"}, mappingRows,
				[]columnAlignment{alignLeft, alignLeft}))
			return nil
		},
	}
}
