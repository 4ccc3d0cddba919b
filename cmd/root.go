package cmd

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/angular/web-codegen-scorer/internal/logger"
)

var (
	outputDir string
	logLevel  string
	logJSON   bool
)

func NewRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:          "web-codegen-scorer",
		Short:        "Evaluate the quality of web apps generated by LLMs",
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return logger.Setup(logger.Options{Level: logLevel, HumanReadable: !logJSON, Writer: os.Stderr})
		},
	}
	root.PersistentFlags().StringVar(&outputDir, "output-dir", ".web-codegen-scorer", "directory holding stored runs")
	root.PersistentFlags().StringVar(&logLevel, "log-level", "info", "log level (debug, info, warn, error)")
	root.PersistentFlags().BoolVar(&logJSON, "log-json", false, "write logs as JSON")
	root.AddCommand(newRunCmd())
	root.AddCommand(newListCmd())
	root.AddCommand(newReportCmd())
	root.AddCommand(newValidateCmd())
	root.AddCommand(newWorkerCmd())
	return root
}
