// Package progress reports the state of evaluations while a run is active.
package progress

import (
	"github.com/angular/web-codegen-scorer/internal/result"
)

type State string

const (
	StateCodegen      State = "codegen"
	StateBuild        State = "build"
	StateRepair       State = "repair"
	StateTest         State = "test"
	StateServeTesting State = "serve-testing"
	StateRating       State = "rating"
	StateSuccess      State = "success"
	StateError        State = "error"
	StateEval         State = "eval"
)

// Logger receives progress events from concurrently running evaluations and
// must be safe for concurrent use.
type Logger interface {
	Initialize(total int)
	Log(prompt string, state State, message, details string)
	EvalFinished(prompt string, results []result.AssessmentResult)
	Finalize()
}

// Nop discards all events.
type Nop struct{}

func (Nop) Initialize(int)                                 {}
func (Nop) Log(string, State, string, string)              {}
func (Nop) EvalFinished(string, []result.AssessmentResult) {}
func (Nop) Finalize()                                      {}

// averageScore returns the mean percentage score of results, or -1 when empty.
func averageScore(results []result.AssessmentResult) float64 {
	if len(results) == 0 {
		return -1
	}
	var sum float64
	for _, r := range results {
		if r.Score.MaxOverallPoints > 0 {
			sum += r.Score.TotalPoints / r.Score.MaxOverallPoints * 100
		}
	}
	return sum / float64(len(results))
}
