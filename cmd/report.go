package cmd

import (
	"github.com/spf13/cobra"

	"github.com/angular/web-codegen-scorer/internal/report"
)

func newReportCmd() *cobra.Command {
	var format string
	cmd := &cobra.Command{
		Use:   "report",
		Short: "Summarize stored runs, grouping runs of the same configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			return report.Generate(outputDir, format, cmd.OutOrStdout())
		},
	}
	cmd.Flags().StringVar(&format, "format", "table", "output format (table, markdown, json, html)")
	return cmd
}
