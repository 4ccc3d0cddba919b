package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/angular/web-codegen-scorer/internal/config"
	"github.com/angular/web-codegen-scorer/internal/rating"
)

func newValidateCmd() *cobra.Command {
	var envPath string
	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Check an environment config without running it",
		Long:  "Load an environment, render its system prompts and executable prompts, and check the executor settings and rating ids.",
		RunE: func(cmd *cobra.Command, args []string) error {
			env, err := config.Load(envPath)
			if err != nil {
				return err
			}
			if err := validateEnvironment(env); err != nil {
				return err
			}
			prompts, err := env.Prompts()
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s is valid: %d prompt(s), %s executor\n", env.ID, len(prompts), env.Executor.Type)
			return nil
		},
	}
	cmd.Flags().StringVar(&envPath, "env", "", "environment config file")
	cmd.MarkFlagRequired("env")
	return cmd
}

// validateEnvironment checks what Load cannot: that prompts render, that
// docker settings parse and that rating ids exist.
func validateEnvironment(env *config.Environment) error {
	if _, _, _, err := env.SystemPrompts(); err != nil {
		return err
	}
	if env.Executor.Type == config.ExecutorDocker {
		if _, err := env.DockerConfig(); err != nil {
			return err
		}
	}
	known := map[string]bool{rating.JudgeRatingID: true}
	for _, r := range rating.StandardRatings() {
		known[r.ID] = true
	}
	check := func(ids []string) error {
		for _, id := range ids {
			if !known[id] {
				return fmt.Errorf("unknown rating %q", id)
			}
		}
		return nil
	}
	if err := check(env.Ratings); err != nil {
		return err
	}
	for _, src := range env.ExecutablePrompts {
		if err := check(src.Ratings); err != nil {
			return err
		}
		for _, ids := range src.StepRatings {
			if err := check(ids); err != nil {
				return err
			}
		}
	}
	return nil
}
