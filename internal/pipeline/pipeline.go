// Package pipeline drives one prompt from code generation to a score.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/angular/web-codegen-scorer/internal/executor"
	"github.com/angular/web-codegen-scorer/internal/progress"
	"github.com/angular/web-codegen-scorer/internal/project"
	"github.com/angular/web-codegen-scorer/internal/rating"
	"github.com/angular/web-codegen-scorer/internal/result"
	"github.com/angular/web-codegen-scorer/internal/tasks"
	"github.com/angular/web-codegen-scorer/internal/worker"
)

type Config struct {
	Executor executor.Executor
	// Limiter bounds builds, tests and serve validations across pipelines.
	Limiter     executor.Limiter
	Rater       rating.Rater
	ServeTester executor.ServeTester
	Progress    progress.Logger

	Model              string
	SystemInstructions string
	// EditingSystemInstructions replace SystemInstructions for editing steps
	// when set.
	EditingSystemInstructions string
	Project                   project.SetupOptions

	MaxRepairAttempts     int
	MaxTestRepairAttempts int
	MaxAxeRepairAttempts  int

	IncludeAxe       bool
	CheckCSP         bool
	ServeTestTimeout time.Duration
}

type unlimited struct{}

func (unlimited) Do(ctx context.Context, fn func(context.Context) error) error { return fn(ctx) }

func (c Config) withDefaults() Config {
	if c.Limiter == nil {
		c.Limiter = unlimited{}
	}
	if c.Rater == nil {
		c.Rater = &rating.BuiltIn{}
	}
	if c.Progress == nil {
		c.Progress = progress.Nop{}
	}
	return c
}

// Run evaluates root in a fresh project directory. The steps of a
// multi-step prompt run in order in the same directory. When a step fails,
// the results of the steps before it are returned with the error.
func Run(ctx context.Context, cfg Config, id result.EvalID, root result.RootPromptDefinition) ([]result.AssessmentResult, error) {
	cfg = cfg.withDefaults()

	opts := cfg.Project
	opts.Name = root.Name
	ws, err := project.Setup(ctx, opts)
	if err != nil {
		if ctx.Err() != nil {
			return nil, context.Cause(ctx)
		}
		return nil, &PromptError{Prompt: root.Name, Stage: Generating, Err: err}
	}
	defer func() {
		if err := ws.Cleanup(); err != nil {
			log.Warn().Err(err).Str("prompt", root.Name).Msg("removing project directory")
		}
	}()

	var results []result.AssessmentResult
	for _, def := range root.Defs() {
		s := &step{cfg: cfg, id: id, root: root, def: def, dir: ws.Dir, m: newMachine()}
		res, err := s.run(ctx)
		if err != nil {
			return results, err
		}
		results = append(results, *res)
	}
	return results, nil
}

type step struct {
	cfg  Config
	id   result.EvalID
	root result.RootPromptDefinition
	def  result.PromptDefinition
	dir  string
	m    *machine

	req     executor.GenerateRequest
	files   []result.File
	details []result.AttemptDetails
	attempt int
}

func (s *step) log(state progress.State, msg, details string) {
	s.cfg.Progress.Log(s.def.Name, state, msg, details)
}

// fail ends the step. Cancellation wins over the error that surfaced it.
func (s *step) fail(ctx context.Context, err error) error {
	stage := s.m.state
	if ctx.Err() != nil {
		_ = s.m.to(Aborted)
		return context.Cause(ctx)
	}
	_ = s.m.to(Failed)
	s.log(progress.StateError, fmt.Sprintf("Evaluation failed while %s", strings.ToLower(string(stage))), err.Error())
	return &PromptError{Prompt: s.def.Name, Stage: stage, Err: err}
}

func (s *step) run(ctx context.Context) (*result.AssessmentResult, error) {
	contextFiles, err := project.ResolveContextFiles(s.def.ContextFilePatterns, s.dir)
	if err != nil {
		return nil, s.fail(ctx, err)
	}
	instructions := s.cfg.SystemInstructions
	if s.def.Kind == result.StepEditing && s.cfg.EditingSystemInstructions != "" {
		instructions = s.cfg.EditingSystemInstructions
	}
	s.req = executor.GenerateRequest{
		Prompt:             s.def,
		Directory:          s.dir,
		SystemInstructions: instructions,
		FullPrompt:         fullPrompt(instructions, s.def.Prompt),
		Model:              s.cfg.Model,
		ContextFiles:       contextFiles,
	}

	s.log(progress.StateCodegen, "Generating code with AI", "")
	gen, err := s.cfg.Executor.GenerateInitialFiles(ctx, s.id, s.req)
	if err != nil {
		return nil, s.fail(ctx, err)
	}
	if err := s.write(gen.Files); err != nil {
		return nil, s.fail(ctx, err)
	}

	cur, err := s.build(ctx, gen.Usage)
	if err != nil {
		return nil, err
	}

	repairs := 0
	if cur.BuildResult.Status == result.BuildError && s.cfg.Executor.ShouldRepairFailedBuilds(ctx, s.id) {
		for cur.BuildResult.Status == result.BuildError && repairs < s.cfg.MaxRepairAttempts {
			s.details = append(s.details, cur)
			repairs++
			s.log(progress.StateRepair, fmt.Sprintf("Repairing the build (attempt %d of %d)", repairs, s.cfg.MaxRepairAttempts), "")
			if cur, err = s.repairAndBuild(ctx, cur.BuildResult.Message); err != nil {
				return nil, err
			}
		}
	}

	var testResult *result.TestResult
	testRepairs := 0
	if cur.BuildResult.Status == result.BuildSuccess {
		if testResult, err = s.test(ctx); err != nil {
			return nil, err
		}
		cur.TestResult = testResult
		for testResult != nil && !testResult.Passed && testRepairs < s.cfg.MaxTestRepairAttempts {
			s.details = append(s.details, cur)
			testRepairs++
			s.log(progress.StateRepair, fmt.Sprintf("Repairing failed tests (attempt %d of %d)", testRepairs, s.cfg.MaxTestRepairAttempts), "")
			if cur, err = s.repairAndBuild(ctx, "Tests failed:\n"+testResult.Output); err != nil {
				return nil, err
			}
			if cur.BuildResult.Status == result.BuildError {
				cur.BuildFailedDuringTestRepair = true
				break
			}
			if testResult, err = s.test(ctx); err != nil {
				return nil, err
			}
			cur.TestResult = testResult
		}
	}

	axeRepairs := 0
	if cur.BuildResult.Status == result.BuildSuccess {
		if cur.ServeTestingResult, err = s.serve(ctx); err != nil {
			return nil, err
		}
		for cur.ServeTestingResult != nil && len(cur.ServeTestingResult.AxeViolations) > 0 && axeRepairs < s.cfg.MaxAxeRepairAttempts {
			violations := cur.ServeTestingResult.AxeViolations
			s.details = append(s.details, cur)
			axeRepairs++
			s.log(progress.StateRepair, fmt.Sprintf("Repairing accessibility violations (attempt %d of %d)", axeRepairs, s.cfg.MaxAxeRepairAttempts), "")
			if cur, err = s.repairAndBuild(ctx, axeMessage(violations)); err != nil {
				return nil, err
			}
			if cur.BuildResult.Status == result.BuildError {
				break
			}
			if cur.ServeTestingResult, err = s.serve(ctx); err != nil {
				return nil, err
			}
		}
	}
	s.details = append(s.details, cur)

	if err := s.m.to(Scoring); err != nil {
		return nil, err
	}
	s.log(progress.StateRating, "Rating the generated code", "")
	score, err := s.cfg.Rater.Rate(ctx, rating.Input{
		Prompt:             s.def,
		FullPrompt:         s.req.FullPrompt,
		Files:              s.files,
		Build:              cur.BuildResult,
		Serve:              cur.ServeTestingResult,
		Test:               testResult,
		RepairAttempts:     repairs,
		AxeRepairAttempts:  axeRepairs,
		TestRepairAttempts: testRepairs,
	})
	if err != nil {
		return nil, s.fail(ctx, err)
	}
	if err := s.m.to(Done); err != nil {
		return nil, err
	}

	if cur.BuildResult.Status == result.BuildSuccess {
		s.log(progress.StateSuccess, fmt.Sprintf("Done: %.0f/%.0f points", score.TotalPoints, score.MaxOverallPoints), "")
	} else {
		s.log(progress.StateError, "Done: the app does not build", cur.BuildResult.Message)
	}

	return &result.AssessmentResult{
		PromptDef:          result.PromptRef{Name: s.def.Name, Prompt: s.def.Prompt},
		OutputFiles:        s.files,
		FinalAttempt:       cur,
		AttemptDetails:     s.details,
		Score:              score,
		RepairAttempts:     repairs,
		AxeRepairAttempts:  axeRepairs,
		TestRepairAttempts: testRepairs,
		TestResult:         testResult,
	}, nil
}

// write stores generated files in the project and merges them into the
// step's output by path.
func (s *step) write(files []result.File) error {
	if err := project.WriteFiles(s.dir, files); err != nil {
		return err
	}
	s.files = mergeFiles(s.files, files)
	return nil
}

func (s *step) build(ctx context.Context, usage result.Usage) (result.AttemptDetails, error) {
	if err := s.m.to(Building); err != nil {
		return result.AttemptDetails{}, err
	}
	s.log(progress.StateBuild, "Building the app", "")

	br, err := s.cfg.Executor.Build(ctx, s.id, s.dir, s.root, s.cfg.Limiter, s.cfg.Progress)
	if err != nil {
		var pe *worker.ProcessError
		if !errors.As(err, &pe) || ctx.Err() != nil {
			return result.AttemptDetails{}, s.fail(ctx, err)
		}
		br = result.BuildResult{Status: result.BuildError, Message: pe.Error(), ErrorType: result.ErrorGeneric}
	}

	if br.Status == result.BuildSuccess {
		s.log(progress.StateBuild, "Build is successful", "")
	} else {
		s.log(progress.StateBuild, "Build failed", br.Message)
	}

	rec := result.AttemptDetails{Attempt: s.attempt, BuildResult: br, Usage: usage}
	s.attempt++
	return rec, nil
}

func (s *step) repairAndBuild(ctx context.Context, errorMessage string) (result.AttemptDetails, error) {
	if err := s.m.to(Repairing); err != nil {
		return result.AttemptDetails{}, err
	}
	gen, err := s.cfg.Executor.GenerateRepairFiles(ctx, s.id, s.req, errorMessage, s.files)
	if err != nil {
		return result.AttemptDetails{}, s.fail(ctx, err)
	}
	if err := s.write(gen.Files); err != nil {
		return result.AttemptDetails{}, s.fail(ctx, err)
	}
	return s.build(ctx, gen.Usage)
}

func (s *step) test(ctx context.Context) (*result.TestResult, error) {
	if err := s.m.to(Testing); err != nil {
		return nil, err
	}
	tr, err := s.cfg.Executor.ExecuteTests(ctx, s.id, s.dir, s.root, s.cfg.Limiter, s.cfg.Progress)
	if err != nil {
		var pe *worker.ProcessError
		if !errors.As(err, &pe) || ctx.Err() != nil {
			return nil, s.fail(ctx, err)
		}
		tr = &result.TestResult{Output: pe.Error()}
	}
	switch {
	case tr == nil:
	case tr.Passed:
		s.log(progress.StateTest, "Tests passed", "")
	default:
		s.log(progress.StateTest, "Tests failed", tr.Output)
	}
	return tr, nil
}

func (s *step) serve(ctx context.Context) (*result.ServeTestingResult, error) {
	if err := s.m.to(Serving); err != nil {
		return nil, err
	}
	sr, err := s.cfg.Executor.Serve(ctx, s.id, s.dir, s.root, s.cfg.Progress, s.validate)
	if err != nil {
		if ctx.Err() != nil {
			return nil, s.fail(ctx, err)
		}
		sr = &result.ServeTestingResult{ErrorMessage: err.Error()}
	}
	switch {
	case sr == nil:
	case sr.ErrorMessage == "":
		s.log(progress.StateSuccess, "Validation of running app is successful", "")
	default:
		s.log(progress.StateError, "Validation of running app failed", sr.ErrorMessage)
	}
	return sr, nil
}

// validate runs while the app is being served.
func (s *step) validate(ctx context.Context, url string) (*result.ServeTestingResult, error) {
	s.log(progress.StateServeTesting, fmt.Sprintf("Validating the running app (URL: %s)", url), "")
	if s.cfg.ServeTester == nil {
		return &result.ServeTestingResult{}, nil
	}
	var sr *result.ServeTestingResult
	err := s.cfg.Limiter.Do(ctx, func(ctx context.Context) error {
		var err error
		sr, err = s.cfg.ServeTester.ServeTest(ctx, tasks.ServeTestRequest{
			URL:        url,
			AppName:    s.def.Name,
			IncludeAxe: s.cfg.IncludeAxe,
			CheckCSP:   s.cfg.CheckCSP,
			Timeout:    s.cfg.ServeTestTimeout,
		}, s.cfg.Progress)
		return err
	})
	return sr, err
}

func fullPrompt(system, prompt string) string {
	if system == "" {
		return prompt
	}
	return system + "\n\n" + prompt
}

func mergeFiles(prev, next []result.File) []result.File {
	out := append([]result.File(nil), prev...)
	index := make(map[string]int, len(out))
	for i, f := range out {
		index[f.FilePath] = i
	}
	for _, f := range next {
		if i, ok := index[f.FilePath]; ok {
			out[i] = f
			continue
		}
		index[f.FilePath] = len(out)
		out = append(out, f)
	}
	return out
}

func axeMessage(violations []result.AxeViolation) string {
	var b strings.Builder
	b.WriteString("The app has accessibility violations:\n")
	for _, v := range violations {
		fmt.Fprintf(&b, "- %s (%s): %s, %d element(s)\n", v.ID, v.Impact, v.Description, v.Nodes)
	}
	return b.String()
}
