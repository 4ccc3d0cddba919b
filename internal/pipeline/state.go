package pipeline

import (
	"errors"
	"fmt"
	"slices"
)

// State is a stage of one prompt's evaluation.
type State string

const (
	Generating State = "GENERATING"
	Building   State = "BUILDING"
	Repairing  State = "REPAIRING"
	Testing    State = "TESTING"
	Serving    State = "SERVING"
	Scoring    State = "SCORING"
	Done       State = "DONE"
	Failed     State = "FAILED"
	Aborted    State = "ABORTED"
)

// Repairs are entered from BUILDING after a failed build, from TESTING after
// failed tests and from SERVING after accessibility violations.
var transitions = map[State][]State{
	Generating: {Building},
	Building:   {Repairing, Testing, Serving, Scoring},
	Repairing:  {Building},
	Testing:    {Repairing, Serving, Scoring},
	Serving:    {Repairing, Scoring},
	Scoring:    {Done},
}

// Terminal reports whether no transition leaves s.
func (s State) Terminal() bool {
	return s == Done || s == Failed || s == Aborted
}

var ErrIllegalTransition = errors.New("illegal state transition")

type machine struct {
	state   State
	history []State
}

func newMachine() *machine {
	return &machine{state: Generating, history: []State{Generating}}
}

// to moves to next. Any live state may fail or abort.
func (m *machine) to(next State) error {
	ok := !m.state.Terminal() && (next == Failed || next == Aborted || slices.Contains(transitions[m.state], next))
	if !ok {
		return fmt.Errorf("%w: %s -> %s", ErrIllegalTransition, m.state, next)
	}
	m.state = next
	m.history = append(m.history, next)
	return nil
}

// PromptError ends the evaluation of one prompt without affecting others.
type PromptError struct {
	Prompt string
	Stage  State
	Err    error
}

func (e *PromptError) Error() string {
	return fmt.Sprintf("%s: %s failed: %v", e.Prompt, e.Stage, e.Err)
}

func (e *PromptError) Unwrap() error { return e.Err }
