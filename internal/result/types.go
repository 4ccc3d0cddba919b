package result

import "time"

// Version of the stored report format.
const Version = 3

type EvalID string

type PromptKind string

const (
	KindSingle    PromptKind = "single"
	KindMultiStep PromptKind = "multi-step"
)

type StepKind string

const (
	StepGeneration StepKind = "generation"
	StepEditing    StepKind = "editing"
)

type PromptDefinition struct {
	Name                string   `json:"name"`
	Prompt              string   `json:"prompt"`
	Kind                StepKind `json:"kind,omitempty"`
	Ratings             []string `json:"ratings,omitempty"`
	ContextFilePatterns []string `json:"context_file_patterns,omitempty"`
}

// RootPromptDefinition is either a single prompt or an ordered list of steps
// executed in the same project directory.
type RootPromptDefinition struct {
	Kind   PromptKind         `json:"kind"`
	Name   string             `json:"name"`
	Single PromptDefinition   `json:"single,omitzero"`
	Steps  []PromptDefinition `json:"steps,omitempty"`
}

// Defs returns the prompts to execute in order.
func (r RootPromptDefinition) Defs() []PromptDefinition {
	if r.Kind == KindMultiStep {
		return r.Steps
	}
	return []PromptDefinition{r.Single}
}

type Usage struct {
	InputTokens    int `json:"input_tokens"`
	OutputTokens   int `json:"output_tokens"`
	ThinkingTokens int `json:"thinking_tokens,omitempty"`
	TotalTokens    int `json:"total_tokens"`
}

func (u Usage) Add(o Usage) Usage {
	return Usage{
		InputTokens:    u.InputTokens + o.InputTokens,
		OutputTokens:   u.OutputTokens + o.OutputTokens,
		ThinkingTokens: u.ThinkingTokens + o.ThinkingTokens,
		TotalTokens:    u.TotalTokens + o.TotalTokens,
	}
}

// File is a generated source file relative to the project root.
type File struct {
	FilePath string `json:"file_path"`
	Code     string `json:"code"`
}

// ContextFile is an existing project file handed to the model as context.
type ContextFile struct {
	RelativePath string `json:"relative_path"`
	Content      string `json:"content"`
}

type BuildStatus string

const (
	BuildSuccess BuildStatus = "SUCCESS"
	BuildError   BuildStatus = "ERROR"
)

type BuildErrorType string

const (
	ErrorMissingDependency BuildErrorType = "missing-dependency"
	ErrorGeneric           BuildErrorType = "generic"
)

type BuildResult struct {
	Status            BuildStatus    `json:"status"`
	Message           string         `json:"message"`
	ErrorType         BuildErrorType `json:"error_type,omitempty"`
	MissingDependency string         `json:"missing_dependency,omitempty"`
}

type AxeViolation struct {
	ID          string `json:"id"`
	Impact      string `json:"impact"`
	Description string `json:"description"`
	Nodes       int    `json:"nodes"`
}

type ServeTestingResult struct {
	ErrorMessage      string             `json:"error_message,omitempty"`
	RuntimeErrors     string             `json:"runtime_errors,omitempty"`
	ScreenshotPath    string             `json:"screenshot_path,omitempty"`
	AxeViolations     []AxeViolation     `json:"axe_violations"`
	CSPViolations     []string           `json:"csp_violations,omitempty"`
	Lighthouse        map[string]float64 `json:"lighthouse,omitempty"`
	UserJourneyOutput string             `json:"user_journey_output,omitempty"`
}

type TestResult struct {
	Passed   bool    `json:"passed"`
	Output   string  `json:"output"`
	PassRate float64 `json:"pass_rate"`
}

type AttemptDetails struct {
	Attempt                     int                 `json:"attempt"`
	BuildResult                 BuildResult         `json:"build_result"`
	ServeTestingResult          *ServeTestingResult `json:"serve_testing_result,omitempty"`
	TestResult                  *TestResult         `json:"test_result,omitempty"`
	Usage                       Usage               `json:"usage"`
	BuildFailedDuringTestRepair bool                `json:"build_failed_during_test_repair,omitempty"`
}

type RatingState string

const (
	RatingPassed  RatingState = "passed"
	RatingFailed  RatingState = "failed"
	RatingSkipped RatingState = "skipped"
)

type RatingOutcome struct {
	Name    string      `json:"name"`
	State   RatingState `json:"state"`
	Points  float64     `json:"points"`
	Message string      `json:"message,omitempty"`
}

type CategoryScore struct {
	ID          string          `json:"id"`
	Name        string          `json:"name"`
	Points      float64         `json:"points"`
	MaxPoints   float64         `json:"max_points"`
	Assessments []RatingOutcome `json:"assessments"`
}

type Score struct {
	TotalPoints      float64         `json:"total_points"`
	MaxOverallPoints float64         `json:"max_overall_points"`
	Categories       []CategoryScore `json:"categories"`
	TokenUsage       Usage           `json:"token_usage"`
}

type PromptRef struct {
	Name   string `json:"name"`
	Prompt string `json:"prompt"`
}

type AssessmentResult struct {
	PromptDef          PromptRef        `json:"prompt_def"`
	OutputFiles        []File           `json:"output_files"`
	FinalAttempt       AttemptDetails   `json:"final_attempt"`
	AttemptDetails     []AttemptDetails `json:"attempt_details"`
	Score              Score            `json:"score"`
	RepairAttempts     int              `json:"repair_attempts"`
	AxeRepairAttempts  int              `json:"axe_repair_attempts"`
	TestRepairAttempts int              `json:"test_repair_attempts"`
	TestResult         *TestResult      `json:"test_result,omitempty"`
}

type FailedPrompt struct {
	PromptName string `json:"prompt_name"`
	Error      string `json:"error"`
	Stack      string `json:"stack,omitempty"`
}

type CompletionStats struct {
	AllPromptsCount int            `json:"all_prompts_count"`
	FailedPrompts   []FailedPrompt `json:"failed_prompts"`
}

type ExecutorInfo struct {
	ID          string `json:"id"`
	DisplayName string `json:"display_name"`
}

type RunSummary struct {
	DisplayName      string          `json:"display_name"`
	EnvironmentID    string          `json:"environment_id"`
	Framework        string          `json:"framework"`
	Model            string          `json:"model"`
	Runner           ExecutorInfo    `json:"runner"`
	Usage            Usage           `json:"usage"`
	CompletionStats  CompletionStats `json:"completion_stats"`
	EstimatedCostUSD float64         `json:"estimated_cost_usd,omitempty"`
}

type RunDetails struct {
	Summary    RunSummary `json:"summary"`
	Timestamp  time.Time  `json:"timestamp"`
	ReportName string     `json:"report_name"`
	Labels     []string   `json:"labels"`
}

type RunInfo struct {
	ID      string             `json:"id"`
	Group   string             `json:"group"`
	Version int                `json:"version"`
	Results []AssessmentResult `json:"results"`
	Details RunDetails         `json:"details"`
}

type RunGroup struct {
	ID               string    `json:"id"`
	Version          int       `json:"version"`
	DisplayName      string    `json:"display_name"`
	Timestamp        time.Time `json:"timestamp"`
	TotalPoints      float64   `json:"total_points"`
	MaxOverallPoints float64   `json:"max_overall_points"`
	AppsCount        int       `json:"apps_count"`
	Labels           []string  `json:"labels"`
	PromptNames      []string  `json:"prompt_names"`
	EnvironmentID    string    `json:"environment_id"`
	Framework        string    `json:"framework"`
	Model            string    `json:"model"`
	Runner           string    `json:"runner"`
	Stats            Stats     `json:"stats"`
}
