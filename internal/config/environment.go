// Package config loads evaluation environments: the framework, system
// prompts, executable prompts and the executor that builds the apps.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/docker/go-units"
	"github.com/tidwall/jsonc"
	"gopkg.in/yaml.v3"

	"github.com/angular/web-codegen-scorer/internal/errs"
	"github.com/angular/web-codegen-scorer/internal/executor"
	"github.com/angular/web-codegen-scorer/internal/project"
	"github.com/angular/web-codegen-scorer/internal/timeout"
)

const (
	ExecutorLocal  = "local"
	ExecutorDocker = "docker"
)

type Environment struct {
	// ID defaults to a slug of DisplayName.
	ID                  string `yaml:"id" validate:"omitempty,env_id"`
	DisplayName         string `yaml:"displayName" validate:"required"`
	ClientSideFramework string `yaml:"clientSideFramework" validate:"required"`
	FullStackFramework  string `yaml:"fullStackFramework"`

	// Ratings are the rating ids run for every prompt. Empty runs all.
	Ratings []string `yaml:"ratings"`

	// System prompt paths, relative to the environment file.
	GenerationSystemPrompt string `yaml:"generationSystemPrompt" validate:"required"`
	RepairSystemPrompt     string `yaml:"repairSystemPrompt"`
	EditingSystemPrompt    string `yaml:"editingSystemPrompt"`

	ExecutablePrompts []PromptSource `yaml:"executablePrompts" validate:"required,min=1,dive"`

	// ProjectTemplate is a directory relative to the environment file or a
	// git URL.
	ProjectTemplate string `yaml:"projectTemplate"`
	PackageManager  string `yaml:"packageManager" validate:"omitempty,oneof=npm pnpm yarn"`
	SkipInstall     bool   `yaml:"skipInstall"`
	BuildCommand    string `yaml:"buildCommand"`
	ServeCommand    string `yaml:"serveCommand"`
	SkipServe       bool   `yaml:"skipServe"`
	TestCommand     string `yaml:"testCommand"`

	BuildTimeoutMinutes float64 `yaml:"buildTimeoutMinutes" validate:"gte=0"`
	TestTimeoutMinutes  float64 `yaml:"testTimeoutMinutes" validate:"gte=0"`

	Executor ExecutorConfig `yaml:"executor"`

	// RootDir is the directory holding the environment file.
	RootDir string `yaml:"-"`
}

type ExecutorConfig struct {
	Type string `yaml:"type" validate:"omitempty,oneof=local docker"`
	// Image is required for docker.
	Image       string  `yaml:"image" validate:"required_if=Type docker"`
	CPULimit    float64 `yaml:"cpuLimit" validate:"gte=0"`
	MemoryLimit string  `yaml:"memoryLimit" validate:"omitempty,memory"`
}

// PromptSource is either a glob of prompt files or, with MultiStep, a
// directory of step-<n> files. A bare string is shorthand for Path.
type PromptSource struct {
	Path        string              `yaml:"path" validate:"required"`
	Name        string              `yaml:"name"`
	Ratings     []string            `yaml:"ratings"`
	MultiStep   bool                `yaml:"multiStep"`
	StepRatings map[string][]string `yaml:"stepRatings"`
}

func (p *PromptSource) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind == yaml.ScalarNode {
		return node.Decode(&p.Path)
	}
	type plain PromptSource
	return node.Decode((*plain)(p))
}

// Load reads an environment file. YAML and JSONC are accepted. Every error is
// user facing.
func Load(path string) (*Environment, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errs.WrapUserFacing(err, "Cannot read environment config %s", path)
	}
	env, err := Parse(data, filepath.Ext(path))
	if err != nil {
		return nil, errs.WrapUserFacing(err, "Invalid environment config %s", path)
	}
	abs, err := filepath.Abs(filepath.Dir(path))
	if err != nil {
		return nil, fmt.Errorf("resolving environment dir: %w", err)
	}
	env.RootDir = abs
	return env, nil
}

// Parse decodes and validates an environment. ext selects JSONC for ".json"
// and ".jsonc".
func Parse(data []byte, ext string) (*Environment, error) {
	if ext == ".json" || ext == ".jsonc" {
		// Stripped JSON is valid YAML, so one set of tags serves both.
		data = jsonc.ToJSON(data)
	}
	var env Environment
	if err := yaml.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("parsing environment: %w", err)
	}
	if err := validate(&env); err != nil {
		return nil, err
	}
	return &env, nil
}

func validate(env *Environment) error {
	if err := validatorInstance().Struct(env); err != nil {
		return convertValidationError(err)
	}
	if env.ID == "" {
		env.ID = slug(env.DisplayName)
	}
	if env.FullStackFramework == "" {
		env.FullStackFramework = env.ClientSideFramework
	}
	if env.PackageManager == "" {
		env.PackageManager = "npm"
	}
	if env.Executor.Type == "" {
		env.Executor.Type = ExecutorLocal
	}
	for i, p := range env.ExecutablePrompts {
		if !p.MultiStep && len(p.StepRatings) > 0 {
			return fmt.Errorf("executablePrompts[%d]: stepRatings require multiStep", i)
		}
	}
	return nil
}

var nonSlug = regexp.MustCompile(`[^a-z0-9]+`)

func slug(s string) string {
	return strings.Trim(nonSlug.ReplaceAllString(strings.ToLower(s), "-"), "-")
}

// Path resolves a path relative to the environment file.
func (e *Environment) Path(p string) string {
	if p == "" || filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(e.RootDir, p)
}

// Template is the project template location, left untouched when it is a
// git URL.
func (e *Environment) Template() string {
	t := e.ProjectTemplate
	if t == "" || project.IsRemote(t) {
		return t
	}
	return e.Path(t)
}

func (e *Environment) InstallCommand() string {
	if e.SkipInstall {
		return ""
	}
	return e.LocalConfig().InstallCmd()
}

func (e *Environment) LocalConfig() executor.LocalConfig {
	return executor.LocalConfig{
		PackageManager: e.PackageManager,
		BuildCommand:   e.BuildCommand,
		ServeCommand:   e.ServeCommand,
		NoServe:        e.SkipServe,
		TestCommand:    e.TestCommand,
		BuildTimeout:   minutes(e.BuildTimeoutMinutes),
		TestTimeout:    minutes(e.TestTimeoutMinutes),
	}
}

func (e *Environment) DockerConfig() (executor.DockerConfig, error) {
	local := e.LocalConfig()
	cfg := executor.DockerConfig{
		Image:        e.Executor.Image,
		BuildCommand: local.BuildCmd(),
		TestCommand:  e.TestCommand,
		Timeout:      local.BuildTimeout,
		CPULimit:     e.Executor.CPULimit,
	}
	if e.Executor.MemoryLimit != "" {
		n, err := units.RAMInBytes(e.Executor.MemoryLimit)
		if err != nil {
			return cfg, errs.WrapUserFacing(err, "Invalid executor memoryLimit %q", e.Executor.MemoryLimit)
		}
		cfg.MemoryLimit = n
	}
	return cfg, nil
}

func minutes(m float64) time.Duration {
	if m <= 0 {
		return 0
	}
	return timeout.Minutes(m)
}

// SystemPrompts reads the generation, editing and repair instructions.
// Editing and repair are empty when not configured.
func (e *Environment) SystemPrompts() (generation, editing, repair string, err error) {
	read := func(p string) (string, error) {
		if p == "" {
			return "", nil
		}
		out, _, err := RenderPromptFile(e.Path(p))
		return out, err
	}
	if generation, err = read(e.GenerationSystemPrompt); err != nil {
		return "", "", "", err
	}
	if editing, err = read(e.EditingSystemPrompt); err != nil {
		return "", "", "", err
	}
	if repair, err = read(e.RepairSystemPrompt); err != nil {
		return "", "", "", err
	}
	return generation, editing, repair, nil
}
