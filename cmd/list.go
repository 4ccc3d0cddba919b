package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/angular/web-codegen-scorer/internal/config"
	"github.com/angular/web-codegen-scorer/internal/result"
)

func newListCmd() *cobra.Command {
	var envPath string
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List the prompts of an environment",
		RunE: func(cmd *cobra.Command, args []string) error {
			env, err := config.Load(envPath)
			if err != nil {
				return err
			}
			prompts, err := env.Prompts()
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "%s (%s, %s executor)\n\nPrompts:\n", env.DisplayName, env.ID, env.Executor.Type)
			for _, p := range prompts {
				if p.Kind == result.KindMultiStep {
					fmt.Fprintf(out, "  - %s (%d steps)\n", p.Name, len(p.Steps))
					continue
				}
				fmt.Fprintf(out, "  - %s\n", p.Name)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&envPath, "env", "", "environment config file")
	cmd.MarkFlagRequired("env")
	return cmd
}
