package cmd

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/angular/web-codegen-scorer/internal/config"
	"github.com/angular/web-codegen-scorer/internal/errs"
	"github.com/angular/web-codegen-scorer/internal/executor"
	"github.com/angular/web-codegen-scorer/internal/executor/executortest"
	"github.com/angular/web-codegen-scorer/internal/ids"
	"github.com/angular/web-codegen-scorer/internal/pricing"
	"github.com/angular/web-codegen-scorer/internal/report"
	"github.com/angular/web-codegen-scorer/internal/result"
	"github.com/angular/web-codegen-scorer/internal/runner"
)

const workerEnv = "WCS_CMD_WORKER"

// TestMain lets the test binary stand in for the CLI when it re-executes
// itself as a worker child.
func TestMain(m *testing.M) {
	if os.Getenv(workerEnv) != "" && len(os.Args) > 1 && os.Args[1] == "worker" {
		root := NewRootCmd()
		root.SetArgs(os.Args[1:])
		if err := root.ExecuteContext(context.Background()); err != nil {
			os.Exit(1)
		}
		os.Exit(0)
	}
	os.Exit(m.Run())
}

func writeTree(t *testing.T, dir string, files map[string]string) {
	t.Helper()
	for name, content := range files {
		path := filepath.Join(dir, name)
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
		require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	}
}

func testEnv() *config.Environment {
	return &config.Environment{ID: "angular", DisplayName: "Angular", FullStackFramework: "angular"}
}

func TestNewRunInfo(t *testing.T) {
	ts := time.Date(2025, 6, 1, 9, 30, 0, 0, time.Local)
	outcome := &runner.Outcome{
		Results: []result.AssessmentResult{
			{
				PromptDef: result.PromptRef{Name: "chart"},
				AttemptDetails: []result.AttemptDetails{
					{Usage: result.Usage{InputTokens: 100, OutputTokens: 50, TotalTokens: 150}},
					{Usage: result.Usage{InputTokens: 200, OutputTokens: 20, TotalTokens: 220}},
				},
				Score: result.Score{TokenUsage: result.Usage{InputTokens: 10, OutputTokens: 5, TotalTokens: 15}},
			},
			{
				PromptDef:      result.PromptRef{Name: "todo"},
				AttemptDetails: []result.AttemptDetails{{Usage: result.Usage{InputTokens: 700, OutputTokens: 425, TotalTokens: 1125}}},
			},
		},
		Failed: []result.FailedPrompt{{PromptName: "form", Error: "boom"}},
	}
	table, err := pricing.Parse([]byte("gemini:\n  gemini-2.5-pro:\n    input: 1\n    output: 2\n"))
	require.NoError(t, err)

	run := newRunInfo(runMeta{
		env:       testEnv(),
		model:     "gemini-2.5-pro",
		provider:  "gemini",
		labels:    []string{"nightly"},
		runner:    result.ExecutorInfo{ID: "model", DisplayName: "gemini"},
		timestamp: ts,
		ids:       &ids.Counter{Prefix: "run"},
		pricing:   table,
	}, outcome, 3)

	require.Equal(t, "run-1", run.ID)
	require.Equal(t, report.GroupID(ts, "angular", []string{"nightly"}, "gemini-2.5-pro", "model"), run.Group)
	require.Equal(t, result.Version, run.Version)
	require.Equal(t, "angular", run.Details.ReportName)

	s := run.Details.Summary
	require.Equal(t, result.Usage{InputTokens: 1010, OutputTokens: 500, TotalTokens: 1510}, s.Usage)
	require.Equal(t, 3, s.CompletionStats.AllPromptsCount)
	require.Len(t, s.CompletionStats.FailedPrompts, 1)
	require.InDelta(t, 1.01+1.0, s.EstimatedCostUSD, 1e-9)
	require.Equal(t, "angular", s.Framework)
}

func TestNewRunInfoDeduplicatesLabels(t *testing.T) {
	ts := time.Date(2025, 6, 1, 9, 30, 0, 0, time.Local)
	meta := func(labels ...string) runMeta {
		return runMeta{
			env:       testEnv(),
			model:     "gemini-2.5-pro",
			labels:    labels,
			runner:    result.ExecutorInfo{ID: "local"},
			timestamp: ts,
			ids:       &ids.Counter{Prefix: "run"},
		}
	}
	once := newRunInfo(meta("a"), &runner.Outcome{}, 0)
	twice := newRunInfo(meta("a", "a", " "), &runner.Outcome{}, 0)

	require.Equal(t, once.Group, twice.Group)
	require.Equal(t, []string{"a"}, twice.Details.Labels)
	require.Equal(t, []string{"b", "a"}, newRunInfo(meta("b", "a", "b"), &runner.Outcome{}, 0).Details.Labels)
}

func TestNewRunInfoEmpty(t *testing.T) {
	run := newRunInfo(runMeta{env: testEnv(), reportName: "smoke", ids: ids.UUID{}}, &runner.Outcome{}, 0)
	require.NotNil(t, run.Results)
	require.NotNil(t, run.Details.Summary.CompletionStats.FailedPrompts)
	require.Equal(t, "smoke", run.Details.ReportName)
	require.Zero(t, run.Details.Summary.EstimatedCostUSD)
	require.Len(t, run.ID, 36)
}

func TestNewExecutor(t *testing.T) {
	gen := &executor.StoredGenerator{}
	tests := []struct {
		name    string
		exec    config.ExecutorConfig
		want    string
		wantErr string
	}{
		{"default local", config.ExecutorConfig{}, "Local files", ""},
		{"local", config.ExecutorConfig{Type: config.ExecutorLocal}, "Local files", ""},
		{"docker", config.ExecutorConfig{Type: config.ExecutorDocker, Image: "node:22", MemoryLimit: "512m"}, "Local files (docker)", ""},
		{"docker bad memory", config.ExecutorConfig{Type: config.ExecutorDocker, Image: "node:22", MemoryLimit: "huge"}, "", "Invalid executor memoryLimit"},
		{"unknown", config.ExecutorConfig{Type: "remote"}, "", `Unknown executor "remote"`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := testEnv()
			env.Executor = tt.exec
			exec, err := newExecutor(env, gen, executor.Command{})
			if tt.wantErr != "" {
				require.ErrorContains(t, err, tt.wantErr)
				require.True(t, errs.IsUserFacing(err))
				return
			}
			require.NoError(t, err)
			require.Equal(t, tt.want, exec.Info().DisplayName)
		})
	}
}

func TestCheckModel(t *testing.T) {
	fake := &executortest.Fake{}
	require.NoError(t, checkModel(context.Background(), fake, "fake-model"))

	err := checkModel(context.Background(), fake, "")
	require.True(t, errs.IsUserFacing(err))
	require.ErrorContains(t, err, "Available models: fake-model")
}

func TestProvider(t *testing.T) {
	require.Equal(t, "openai", provider("openai"))
	require.Equal(t, "", provider("http://localhost:8080/v1"))
}

func TestValidateEnvironmentRatings(t *testing.T) {
	dir := t.TempDir()
	writeTree(t, dir, map[string]string{"gen.md": "Write code."})
	env := testEnv()
	env.RootDir = dir
	env.GenerationSystemPrompt = "gen.md"

	env.Ratings = []string{"common-successful-build", "llm-code-quality"}
	require.NoError(t, validateEnvironment(env))

	env.ExecutablePrompts = []config.PromptSource{{Path: "p", StepRatings: map[string][]string{"step-1.md": {"nope"}}}}
	require.ErrorContains(t, validateEnvironment(env), `unknown rating "nope"`)
}

const localEnv = `displayName: Local smoke
clientSideFramework: angular
generationSystemPrompt: gen.md
skipInstall: true
skipServe: true
buildCommand: test -f src/app.ts
executablePrompts:
  - prompts/*.md
`

func TestRunLocalOutput(t *testing.T) {
	t.Setenv(workerEnv, "1")
	dir := t.TempDir()
	writeTree(t, dir, map[string]string{
		"env/env.yaml":                           localEnv,
		"env/gen.md":                             "Write Angular code.",
		"env/prompts/todo.md":                    "Build a todo app.",
		"env/prompts/broken.md":                  "Build something.",
		"llm-output/local-smoke/todo/src/app.ts": "export const app = 'todo';",
		"llm-output/local-smoke/broken/main.ts":  "export {};",
	})

	prev := outputDir
	outputDir = filepath.Join(dir, "out")
	t.Cleanup(func() { outputDir = prev })

	var out bytes.Buffer
	err := runEvaluation(context.Background(), &runFlags{
		envPath:     filepath.Join(dir, "env", "env.yaml"),
		model:       "any",
		local:       true,
		llmOutput:   filepath.Join(dir, "llm-output"),
		labels:      []string{"smoke"},
		evalTimeout: time.Minute,
	}, &out)
	require.NoError(t, err)
	require.Contains(t, out.String(), "Local smoke")

	runs, err := result.LoadRuns(outputDir)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	run := runs[0]
	require.Equal(t, report.GroupID(run.Details.Timestamp, "local-smoke", []string{"smoke"}, "any", "local"), run.Group)
	require.Equal(t, 2, run.Details.Summary.CompletionStats.AllPromptsCount)
	require.Empty(t, run.Details.Summary.CompletionStats.FailedPrompts)

	require.Len(t, run.Results, 2)
	require.Equal(t, "broken", run.Results[0].PromptDef.Name)
	require.Equal(t, result.BuildError, run.Results[0].FinalAttempt.BuildResult.Status)
	require.Equal(t, "todo", run.Results[1].PromptDef.Name)
	require.Equal(t, result.BuildSuccess, run.Results[1].FinalAttempt.BuildResult.Status)
	require.Greater(t, run.Results[1].Score.TotalPoints, run.Results[0].Score.TotalPoints)
}

func TestRunNoPrompts(t *testing.T) {
	dir := t.TempDir()
	writeTree(t, dir, map[string]string{
		"env.yaml":        localEnv,
		"gen.md":          "Write code.",
		"prompts/todo.md": "Build a todo app.",
	})
	err := runEvaluation(context.Background(), &runFlags{
		envPath: filepath.Join(dir, "env.yaml"),
		filter:  "missing",
	}, &bytes.Buffer{})
	require.True(t, errs.IsUserFacing(err))
	require.ErrorContains(t, err, "No prompts to run")
}

func TestListAndValidateCommands(t *testing.T) {
	dir := t.TempDir()
	writeTree(t, dir, map[string]string{
		"env.yaml":        localEnv,
		"gen.md":          "Write code.",
		"prompts/todo.md": "Build a todo app.",
	})
	envPath := filepath.Join(dir, "env.yaml")

	for _, tt := range []struct {
		args []string
		want string
	}{
		{[]string{"list", "--env", envPath}, "  - todo"},
		{[]string{"validate", "--env", envPath}, "local-smoke is valid: 1 prompt(s), local executor"},
	} {
		var out bytes.Buffer
		root := NewRootCmd()
		root.SetOut(&out)
		root.SetArgs(tt.args)
		require.NoError(t, root.Execute())
		require.Contains(t, out.String(), tt.want)
	}
}

func TestReportCommand(t *testing.T) {
	base := t.TempDir()
	runDir := filepath.Join(base, "runs", "2025-06-01T10-00-00.000")
	require.NoError(t, os.MkdirAll(runDir, 0o755))
	require.NoError(t, result.WriteRun(runDir, newRunInfo(runMeta{env: testEnv(), ids: ids.UUID{}}, &runner.Outcome{}, 0)))

	var out bytes.Buffer
	root := NewRootCmd()
	root.SetOut(&out)
	root.SetArgs([]string{"report", "--output-dir", base, "--format", "markdown"})
	require.NoError(t, root.Execute())
	require.Contains(t, out.String(), "| Angular |")
}
