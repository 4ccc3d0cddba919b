package progress

import (
	"sync"

	"github.com/rs/zerolog"

	"github.com/angular/web-codegen-scorer/internal/result"
)

// Text writes one structured log line per event.
type Text struct {
	log zerolog.Logger

	mu       sync.Mutex
	total    int
	finished int
}

func NewText(log zerolog.Logger) *Text {
	return &Text{log: log}
}

func (t *Text) Initialize(total int) {
	t.mu.Lock()
	t.total = total
	t.finished = 0
	t.mu.Unlock()
	t.log.Info().Int("prompts", total).Msg("starting evaluation")
}

func (t *Text) Log(prompt string, state State, message, details string) {
	ev := t.log.Info()
	if state == StateError {
		ev = t.log.Warn()
	}
	ev = ev.Str("prompt", prompt).Str("state", string(state))
	if details != "" {
		ev = ev.Str("details", details)
	}
	ev.Msg(message)
}

func (t *Text) EvalFinished(prompt string, results []result.AssessmentResult) {
	t.mu.Lock()
	t.finished++
	done, total := t.finished, t.total
	t.mu.Unlock()

	ev := t.log.Info().Str("prompt", prompt).Int("done", done).Int("total", total)
	if score := averageScore(results); score >= 0 {
		ev = ev.Float64("score", score)
	}
	ev.Msg("evaluation finished")
}

func (t *Text) Finalize() {
	t.log.Info().Msg("all evaluations finished")
}
