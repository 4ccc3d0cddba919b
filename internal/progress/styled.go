package progress

import (
	"fmt"
	"io"
	"sync"

	"github.com/charmbracelet/lipgloss"

	"github.com/angular/web-codegen-scorer/internal/result"
)

var (
	promptStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("39"))
	counterStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("245"))
	detailStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("245")).PaddingLeft(4)
	headerStyle  = lipgloss.NewStyle().Bold(true).Border(lipgloss.RoundedBorder()).Padding(0, 1)

	stateStyles = map[State]lipgloss.Style{
		StateSuccess: lipgloss.NewStyle().Foreground(lipgloss.Color("42")),
		StateError:   lipgloss.NewStyle().Foreground(lipgloss.Color("196")),
		StateRepair:  lipgloss.NewStyle().Foreground(lipgloss.Color("214")),
	}

	stateIcons = map[State]string{
		StateCodegen:      "🤖",
		StateBuild:        "🔨",
		StateRepair:       "🔧",
		StateTest:         "🧪",
		StateServeTesting: "🌊",
		StateRating:       "⭐",
		StateSuccess:      "✔",
		StateError:        "✘",
		StateEval:         "▶",
	}
)

// Styled prints colored progress lines for interactive terminals.
type Styled struct {
	mu       sync.Mutex
	w        io.Writer
	total    int
	finished int
	// MaxDetails truncates detail blocks; zero prints them in full.
	MaxDetails int
}

func NewStyled(w io.Writer) *Styled {
	return &Styled{w: w, MaxDetails: 500}
}

func (s *Styled) Initialize(total int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.total = total
	s.finished = 0
	fmt.Fprintln(s.w, headerStyle.Render(fmt.Sprintf("Evaluating %d prompts", total)))
}

func (s *Styled) Log(prompt string, state State, message, details string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	style, ok := stateStyles[state]
	if !ok {
		style = lipgloss.NewStyle()
	}
	line := fmt.Sprintf("%s %s %s %s",
		counterStyle.Render(fmt.Sprintf("[%d/%d]", s.finished, s.total)),
		stateIcons[state],
		promptStyle.Render(prompt),
		style.Render(message))
	fmt.Fprintln(s.w, line)

	if details != "" {
		if s.MaxDetails > 0 && len(details) > s.MaxDetails {
			details = details[:s.MaxDetails] + "..."
		}
		fmt.Fprintln(s.w, detailStyle.Render(details))
	}
}

func (s *Styled) EvalFinished(prompt string, results []result.AssessmentResult) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.finished++

	status := stateStyles[StateError].Render("failed")
	if score := averageScore(results); score >= 0 {
		status = stateStyles[StateSuccess].Render(fmt.Sprintf("%.1f%%", score))
	}
	fmt.Fprintf(s.w, "%s %s %s\n",
		counterStyle.Render(fmt.Sprintf("[%d/%d]", s.finished, s.total)),
		promptStyle.Render(prompt), status)
}

func (s *Styled) Finalize() {
	s.mu.Lock()
	defer s.mu.Unlock()
	fmt.Fprintln(s.w, headerStyle.Render(fmt.Sprintf("Finished %d/%d evaluations", s.finished, s.total)))
}
