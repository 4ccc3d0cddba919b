package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/angular/web-codegen-scorer/internal/config"
	"github.com/angular/web-codegen-scorer/internal/errs"
	"github.com/angular/web-codegen-scorer/internal/executor"
	"github.com/angular/web-codegen-scorer/internal/ids"
	"github.com/angular/web-codegen-scorer/internal/llm"
	"github.com/angular/web-codegen-scorer/internal/pipeline"
	"github.com/angular/web-codegen-scorer/internal/pricing"
	"github.com/angular/web-codegen-scorer/internal/progress"
	"github.com/angular/web-codegen-scorer/internal/project"
	"github.com/angular/web-codegen-scorer/internal/rating"
	"github.com/angular/web-codegen-scorer/internal/report"
	"github.com/angular/web-codegen-scorer/internal/result"
	"github.com/angular/web-codegen-scorer/internal/runner"
)

const (
	workerInactivityTimeout = 2 * time.Minute
	workerTotalTimeout      = 10 * time.Minute
)

var errInterrupted = errors.New("run interrupted")

type runFlags struct {
	envPath     string
	model       string
	endpoint    string
	apiKeyEnv   string
	local       bool
	llmOutput   string
	filter      string
	limit       int
	labels      []string
	reportName  string
	keepApps    bool
	textOutput  bool
	pricingPath string

	concurrency       int
	workerConcurrency int
	evalTimeout       time.Duration

	repairAttempts     int
	testRepairAttempts int
	axeRepairAttempts  int
	axe                bool
	csp                bool

	ratingModel string
	ratingRuns  int
}

func newRunCmd() *cobra.Command {
	f := &runFlags{}
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Generate, build and score an app for every prompt of an environment",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runEvaluation(cmd.Context(), f, cmd.OutOrStdout())
		},
	}
	fl := cmd.Flags()
	fl.StringVar(&f.envPath, "env", "", "environment config file")
	fl.StringVar(&f.model, "model", "gemini-2.5-pro", "model generating the apps")
	fl.StringVar(&f.endpoint, "endpoint", "gemini", "chat completions endpoint: openai, gemini or a base URL")
	fl.StringVar(&f.apiKeyEnv, "api-key-env", "GEMINI_API_KEY", "environment variable holding the API key")
	fl.BoolVar(&f.local, "local", false, "use previously generated files instead of calling the model")
	fl.StringVar(&f.llmOutput, "llm-output", "llm-output", "directory of previously generated files, per environment id")
	fl.StringVar(&f.filter, "prompt-filter", "", "only run prompts whose name contains this")
	fl.IntVar(&f.limit, "limit", 0, "maximum number of prompts to run")
	fl.StringSliceVar(&f.labels, "labels", nil, "labels attached to the run")
	fl.StringVar(&f.reportName, "report-name", "", "name of the stored report")
	fl.BoolVar(&f.keepApps, "keep-apps", false, "keep generated projects in the run directory")
	fl.BoolVar(&f.textOutput, "text-progress", false, "log progress as plain text instead of styled output")
	fl.StringVar(&f.pricingPath, "pricing", "", "pricing table for cost estimates")
	fl.IntVar(&f.concurrency, "concurrency", 0, "apps evaluated at once (0 = automatic)")
	fl.IntVar(&f.workerConcurrency, "worker-concurrency", 0, "builds, tests and validations at once (0 = automatic)")
	fl.DurationVar(&f.evalTimeout, "eval-timeout", runner.DefaultEvalTimeout, "time limit of one prompt")
	fl.IntVar(&f.repairAttempts, "max-build-repair-attempts", 1, "repair attempts after a failed build")
	fl.IntVar(&f.testRepairAttempts, "max-test-repair-attempts", 0, "repair attempts after failing tests")
	fl.IntVar(&f.axeRepairAttempts, "a11y-repair-attempts", 0, "repair attempts after accessibility violations")
	fl.BoolVar(&f.axe, "enable-axe", false, "run accessibility checks on the served app")
	fl.BoolVar(&f.csp, "check-csp", false, "report content security policy violations")
	fl.StringVar(&f.ratingModel, "rating-model", "", "model judging code quality (disabled when empty)")
	fl.IntVar(&f.ratingRuns, "rating-runs", 3, "how many times the rating model is asked")
	cmd.MarkFlagRequired("env")
	return cmd
}

func runEvaluation(ctx context.Context, f *runFlags, out io.Writer) error {
	env, err := config.Load(f.envPath)
	if err != nil {
		return err
	}
	all, err := env.Prompts()
	if err != nil {
		return err
	}
	prompts := config.Filter(all, f.filter, f.limit)
	if len(prompts) == 0 {
		return errs.NewUserFacing("No prompts to run in %s", env.ID)
	}
	generation, editing, repair, err := env.SystemPrompts()
	if err != nil {
		return err
	}

	var client *llm.Client
	var gen executor.Generator
	if f.local {
		gen = &executor.StoredGenerator{Dir: filepath.Join(f.llmOutput, env.ID)}
	} else {
		client = llm.NewClient(f.endpoint, os.Getenv(f.apiKeyEnv))
		gen = &executor.ModelGenerator{Client: client, Name: f.endpoint, RepairInstructions: repair}
	}

	worker, err := workerCommand()
	if err != nil {
		return fmt.Errorf("locating worker binary: %w", err)
	}
	exec, err := newExecutor(env, gen, worker)
	if err != nil {
		return err
	}
	if err := checkModel(ctx, exec, f.model); err != nil {
		return err
	}

	var table *pricing.Table
	if f.pricingPath != "" {
		if table, err = pricing.Load(f.pricingPath); err != nil {
			return errs.WrapUserFacing(err, "Cannot load pricing table")
		}
	}

	runDir, err := result.CreateRunDir(outputDir)
	if err != nil {
		return err
	}
	appsDir := ""
	if f.keepApps {
		appsDir = result.AppsDir(runDir)
	}

	ctx, stop := interruptible(ctx)
	defer stop()

	started := time.Now()
	outcome, runErr := runner.Run(ctx, runner.Options{
		Pipeline: pipeline.Config{
			Executor:                  exec,
			Rater:                     newRater(client, f),
			ServeTester:               &executor.WorkerServeTester{Command: worker},
			Progress:                  newProgress(f.textOutput, out),
			Model:                     f.model,
			SystemInstructions:        generation,
			EditingSystemInstructions: editing,
			Project: project.SetupOptions{
				Template:       env.Template(),
				BaseDir:        appsDir,
				InstallCommand: env.InstallCommand(),
			},
			MaxRepairAttempts:     f.repairAttempts,
			MaxTestRepairAttempts: f.testRepairAttempts,
			MaxAxeRepairAttempts:  f.axeRepairAttempts,
			IncludeAxe:            f.axe,
			CheckCSP:              f.csp,
		},
		AppConcurrency:    f.concurrency,
		WorkerConcurrency: f.workerConcurrency,
		EvalTimeout:       f.evalTimeout,
	}, prompts)
	if outcome == nil {
		return runErr
	}

	run := newRunInfo(runMeta{
		env:        env,
		model:      f.model,
		provider:   provider(f.endpoint),
		labels:     f.labels,
		reportName: f.reportName,
		runner:     exec.Info(),
		timestamp:  started,
		ids:        ids.UUID{},
		pricing:    table,
	}, outcome, len(prompts))
	if err := result.WriteRun(runDir, run); err != nil {
		return err
	}
	log.Info().
		Str("run_dir", runDir).
		Dur("duration", time.Since(started)).
		Int("failed_prompts", len(outcome.Failed)).
		Msg("run stored")

	if err := report.Write(report.GroupSimilarReports([]*result.RunInfo{run}), "table", out); err != nil {
		return err
	}
	return runErr
}

// interruptible cancels ctx on SIGINT or SIGTERM with errInterrupted as
// the cause.
func interruptible(ctx context.Context) (context.Context, func()) {
	ctx, cancel := context.WithCancelCause(ctx)
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, os.Interrupt, syscall.SIGTERM)
	go func() {
		select {
		case s := <-sigs:
			cancel(fmt.Errorf("%w: %s", errInterrupted, s))
		case <-ctx.Done():
		}
	}()
	return ctx, func() {
		signal.Stop(sigs)
		cancel(nil)
	}
}

func newExecutor(env *config.Environment, gen executor.Generator, worker executor.Command) (executor.Executor, error) {
	switch env.Executor.Type {
	case config.ExecutorDocker:
		cfg, err := env.DockerConfig()
		if err != nil {
			return nil, err
		}
		return executor.NewDocker(cfg, gen), nil
	case config.ExecutorLocal, "":
		return executor.NewLocal(env.LocalConfig(), gen, worker), nil
	default:
		return nil, errs.NewUserFacing("Unknown executor %q", env.Executor.Type)
	}
}

func checkModel(ctx context.Context, exec executor.Executor, model string) error {
	support, err := exec.IsSupportedModel(ctx, model)
	if err != nil {
		return fmt.Errorf("listing models: %w", err)
	}
	if !support.Supported {
		return errs.NewUserFacing("Model %q is not supported. Available models: %s", model, strings.Join(support.AvailableModels, ", "))
	}
	return nil
}

func newRater(client *llm.Client, f *runFlags) rating.Rater {
	if client == nil || f.ratingModel == "" {
		return &rating.BuiltIn{}
	}
	return &rating.BuiltIn{Judge: &rating.Judge{Client: client, Model: f.ratingModel, Runs: f.ratingRuns}}
}

func newProgress(text bool, out io.Writer) progress.Logger {
	if text {
		return progress.NewText(log.Logger)
	}
	return progress.NewStyled(out)
}

// provider names the pricing table section for a named endpoint.
func provider(endpoint string) string {
	if _, ok := llm.Endpoints[endpoint]; ok {
		return endpoint
	}
	return ""
}

type runMeta struct {
	env        *config.Environment
	model      string
	provider   string
	labels     []string
	reportName string
	runner     result.ExecutorInfo
	timestamp  time.Time
	ids        ids.Generator
	pricing    *pricing.Table
}

// newRunInfo assembles the stored report. Usage counts every generation
// attempt and every rating call.
func newRunInfo(m runMeta, outcome *runner.Outcome, promptCount int) *result.RunInfo {
	var usage result.Usage
	for _, r := range outcome.Results {
		for _, a := range r.AttemptDetails {
			usage = usage.Add(a.Usage)
		}
		usage = usage.Add(r.Score.TokenUsage)
	}

	labels := uniqueLabels(m.labels)
	reportName := m.reportName
	if reportName == "" {
		reportName = m.env.ID
	}
	results := outcome.Results
	if results == nil {
		results = []result.AssessmentResult{}
	}
	failed := outcome.Failed
	if failed == nil {
		failed = []result.FailedPrompt{}
	}

	return &result.RunInfo{
		ID:      m.ids.Next(),
		Group:   report.GroupID(m.timestamp, m.env.ID, labels, m.model, m.runner.ID),
		Version: result.Version,
		Results: results,
		Details: result.RunDetails{
			Summary: result.RunSummary{
				DisplayName:   m.env.DisplayName,
				EnvironmentID: m.env.ID,
				Framework:     m.env.FullStackFramework,
				Model:         m.model,
				Runner:        m.runner,
				Usage:         usage,
				CompletionStats: result.CompletionStats{
					AllPromptsCount: promptCount,
					FailedPrompts:   failed,
				},
				EstimatedCostUSD: m.pricing.Cost(m.provider, m.model, usage),
			},
			Timestamp:  m.timestamp,
			ReportName: reportName,
			Labels:     labels,
		},
	}
}

// uniqueLabels drops empty and repeated labels, keeping first appearance.
func uniqueLabels(labels []string) []string {
	out := []string{}
	seen := map[string]bool{}
	for _, l := range labels {
		l = strings.TrimSpace(l)
		if l == "" || seen[l] {
			continue
		}
		seen[l] = true
		out = append(out, l)
	}
	return out
}
