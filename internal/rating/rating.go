// Package rating scores a finished attempt.
package rating

import (
	"context"
	"fmt"
	"math"

	"github.com/angular/web-codegen-scorer/internal/result"
)

// Input is all evidence collected for one prompt.
type Input struct {
	Prompt             result.PromptDefinition
	FullPrompt         string
	Files              []result.File
	Build              result.BuildResult
	Serve              *result.ServeTestingResult
	Test               *result.TestResult
	RepairAttempts     int
	AxeRepairAttempts  int
	TestRepairAttempts int
}

// Rater turns evidence into a score.
type Rater interface {
	Rate(ctx context.Context, in Input) (result.Score, error)
}

type Category struct {
	ID        string
	Name      string
	MaxPoints float64
}

var (
	HighImpact   = Category{ID: "high-impact", Name: "High Impact", MaxPoints: 60}
	MediumImpact = Category{ID: "medium-impact", Name: "Medium Impact", MaxPoints: 30}
	LowImpact    = Category{ID: "low-impact", Name: "Low Impact", MaxPoints: 10}

	categories = []Category{HighImpact, MediumImpact, LowImpact}
)

// Outcome is what a single rating reports. Coefficient is in [0, 1].
type Outcome struct {
	State       result.RatingState
	Coefficient float64
	Message     string
	Usage       result.Usage
}

// Rating is one check. A failed rating removes Reduction (a fraction of the
// category's points) scaled by how far its coefficient is from 1.
type Rating struct {
	ID        string
	Name      string
	Category  Category
	Reduction float64
	Rate      func(ctx context.Context, in Input) (Outcome, error)
}

func executed(coef float64, msg string) Outcome {
	return Outcome{State: result.RatingPassed, Coefficient: coef, Message: msg}
}

func skipped(msg string) Outcome {
	return Outcome{State: result.RatingSkipped, Coefficient: 1, Message: msg}
}

// Compose runs ratings and sums category points. When in.Prompt.Ratings is
// non-empty only ratings with those ids run.
func Compose(ctx context.Context, ratings []Rating, in Input) (result.Score, error) {
	enabled := map[string]bool{}
	for _, id := range in.Prompt.Ratings {
		enabled[id] = true
	}

	reductions := map[string]float64{}
	outcomes := map[string][]result.RatingOutcome{}
	var usage result.Usage

	for _, r := range ratings {
		if len(enabled) > 0 && !enabled[r.ID] {
			continue
		}
		out, err := r.Rate(ctx, in)
		if err != nil {
			if ctx.Err() != nil {
				return result.Score{}, err
			}
			out = Outcome{State: result.RatingSkipped, Coefficient: 1, Message: fmt.Sprintf("rating failed: %v", err)}
		}
		usage = usage.Add(out.Usage)

		coef := math.Max(0, math.Min(1, out.Coefficient))
		lost := 0.0
		if out.State != result.RatingSkipped {
			lost = r.Reduction * (1 - coef)
			reductions[r.Category.ID] += lost
			if coef < 1 {
				out.State = result.RatingFailed
			}
		}
		outcomes[r.Category.ID] = append(outcomes[r.Category.ID], result.RatingOutcome{
			Name:    r.Name,
			State:   out.State,
			Points:  -lost * r.Category.MaxPoints,
			Message: out.Message,
		})
	}

	score := result.Score{TokenUsage: usage}
	for _, c := range categories {
		points := c.MaxPoints * math.Max(0, 1-reductions[c.ID])
		score.Categories = append(score.Categories, result.CategoryScore{
			ID:          c.ID,
			Name:        c.Name,
			Points:      points,
			MaxPoints:   c.MaxPoints,
			Assessments: outcomes[c.ID],
		})
		score.TotalPoints += points
		score.MaxOverallPoints += c.MaxPoints
	}
	return score, nil
}

// BuiltIn rates with the standard checks and, when Judge is set, an LLM
// review of the generated code.
type BuiltIn struct {
	Judge *Judge
}

func (b *BuiltIn) Rate(ctx context.Context, in Input) (result.Score, error) {
	ratings := StandardRatings()
	if b.Judge != nil {
		ratings = append(ratings, b.Judge.Rating())
	}
	return Compose(ctx, ratings, in)
}

// StandardRatings are the checks that need no model.
func StandardRatings() []Rating {
	return []Rating{
		{
			ID: "common-successful-build", Name: "Successful build", Category: HighImpact, Reduction: 1,
			Rate: func(_ context.Context, in Input) (Outcome, error) {
				if in.Build.Status == result.BuildSuccess {
					return executed(1, ""), nil
				}
				return executed(0, "Build failed"), nil
			},
		},
		{
			ID: "common-generated-file-count", Name: "Sufficient number of generated files", Category: HighImpact, Reduction: 1,
			Rate: func(_ context.Context, in Input) (Outcome, error) {
				if len(in.Files) > 0 {
					return executed(1, ""), nil
				}
				return executed(0, "No files were generated"), nil
			},
		},
		{
			ID: "common-no-runtime-errors", Name: "No runtime errors", Category: HighImpact, Reduction: 0.5,
			Rate: func(_ context.Context, in Input) (Outcome, error) {
				if in.Serve == nil {
					return skipped("App was not served"), nil
				}
				if in.Serve.RuntimeErrors != "" || in.Serve.ErrorMessage != "" {
					return executed(0, in.Serve.RuntimeErrors+in.Serve.ErrorMessage), nil
				}
				return executed(1, ""), nil
			},
		},
		{
			ID: "common-build-without-repairs", Name: "Builds without repairs", Category: MediumImpact, Reduction: 0.2,
			Rate: func(_ context.Context, in Input) (Outcome, error) {
				if in.RepairAttempts == 0 {
					return executed(1, ""), nil
				}
				return executed(0, fmt.Sprintf("Needed %d repair attempts", in.RepairAttempts)), nil
			},
		},
		{
			ID: "common-tests-pass", Name: "Tests pass", Category: MediumImpact, Reduction: 0.4,
			Rate: func(_ context.Context, in Input) (Outcome, error) {
				if in.Test == nil {
					return skipped("No tests were run"), nil
				}
				if in.Test.Passed {
					return executed(1, ""), nil
				}
				return executed(in.Test.PassRate, "Tests failed"), nil
			},
		},
		{
			ID: "common-accessibility", Name: "No accessibility violations", Category: MediumImpact, Reduction: 0.3,
			Rate: func(_ context.Context, in Input) (Outcome, error) {
				if in.Serve == nil || in.Serve.AxeViolations == nil {
					return skipped("Accessibility was not checked"), nil
				}
				if n := len(in.Serve.AxeViolations); n > 0 {
					return executed(math.Max(0, 1-0.25*float64(n)), fmt.Sprintf("%d violations", n)), nil
				}
				return executed(1, ""), nil
			},
		},
		{
			ID: "common-csp", Name: "No CSP violations", Category: MediumImpact, Reduction: 0.1,
			Rate: func(_ context.Context, in Input) (Outcome, error) {
				if in.Serve == nil {
					return skipped("App was not served"), nil
				}
				if len(in.Serve.CSPViolations) > 0 {
					return executed(0, in.Serve.CSPViolations[0]), nil
				}
				return executed(1, ""), nil
			},
		},
		{
			ID: "common-code-metrics", Name: "Code organization", Category: LowImpact, Reduction: 0.5,
			Rate: func(_ context.Context, in Input) (Outcome, error) {
				m := ComputeCodeMetrics(in.Files)
				if m.FileCount == 0 {
					return skipped("No source files"), nil
				}
				return executed(m.Score, fmt.Sprintf("%d files, largest %s with %d lines", m.FileCount, m.MaxFileName, m.MaxFileLOC)), nil
			},
		},
	}
}
