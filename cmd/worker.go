package cmd

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/angular/web-codegen-scorer/internal/executor"
)

// workerCommand is how the parent process re-executes itself as a worker
// child. The kind is appended per invocation.
func workerCommand() (executor.Command, error) {
	self, err := os.Executable()
	if err != nil {
		return executor.Command{}, err
	}
	return executor.Command{
		Path:              self,
		Args:              []string{"worker", "--log-json", "--log-level", logLevel},
		Env:               os.Environ(),
		InactivityTimeout: workerInactivityTimeout,
		TotalTimeout:      workerTotalTimeout,
	}, nil
}

func newWorkerCmd() *cobra.Command {
	return &cobra.Command{
		Use:       "worker " + executor.WorkerBuild + "|" + executor.WorkerTest + "|" + executor.WorkerServeTest,
		Short:     "Run one build, test or serve-test request read from stdin",
		Hidden:    true,
		Args:      cobra.ExactArgs(1),
		ValidArgs: []string{executor.WorkerBuild, executor.WorkerTest, executor.WorkerServeTest},
		RunE: func(cmd *cobra.Command, args []string) error {
			return executor.ServeWorker(cmd.Context(), args[0], os.Stdin, os.Stdout)
		},
	}
}
