package config

import (
	"os"
	"path/filepath"
	"regexp"
	"slices"
	"sort"
	"strconv"
	"strings"

	"github.com/angular/web-codegen-scorer/internal/errs"
	"github.com/angular/web-codegen-scorer/internal/result"
)

var stepPattern = regexp.MustCompile(`^step-(\d+)`)

// Prompts resolves the executable prompts. Paths are filepath.Glob patterns
// relative to the environment file. Names must be unique.
func (e *Environment) Prompts() ([]result.RootPromptDefinition, error) {
	var roots []result.RootPromptDefinition
	for _, src := range e.ExecutablePrompts {
		ratings := append(slices.Clone(src.Ratings), e.Ratings...)
		if src.MultiStep {
			root, err := e.multiStep(src, ratings)
			if err != nil {
				return nil, err
			}
			roots = append(roots, root)
			continue
		}

		matches, err := filepath.Glob(e.Path(src.Path))
		if err != nil {
			return nil, errs.WrapUserFacing(err, "Invalid prompt pattern %q", src.Path)
		}
		if len(matches) == 0 {
			return nil, errs.NewUserFacing("Prompt pattern %q matched no files", src.Path)
		}
		sort.Strings(matches)
		for _, path := range matches {
			name := src.Name
			if name == "" || len(matches) > 1 {
				name = strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
			}
			def, err := promptDefinition(name, path, ratings, result.StepGeneration)
			if err != nil {
				return nil, err
			}
			roots = append(roots, result.RootPromptDefinition{Kind: result.KindSingle, Name: name, Single: def})
		}
	}

	seen := map[string]bool{}
	for _, r := range roots {
		if seen[r.Name] {
			return nil, errs.NewUserFacing("Duplicate prompt name %q", r.Name)
		}
		seen[r.Name] = true
	}
	return roots, nil
}

func (e *Environment) multiStep(src PromptSource, ratings []string) (result.RootPromptDefinition, error) {
	dir := e.Path(src.Path)
	info, err := os.Stat(dir)
	if err != nil || !info.IsDir() {
		return result.RootPromptDefinition{}, errs.NewUserFacing("Multi-step prompt root must point to a directory. %q is not a directory.", src.Path)
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		return result.RootPromptDefinition{}, errs.WrapUserFacing(err, "Cannot read multi-step prompt %s", src.Path)
	}
	if len(entries) == 0 {
		return result.RootPromptDefinition{}, errs.NewUserFacing("Multi-step prompt directory cannot be empty.")
	}

	name := src.Name
	if name == "" {
		name = filepath.Base(dir)
	}

	type numbered struct {
		n   int
		def result.PromptDefinition
	}
	var steps []numbered
	for _, entry := range entries {
		if entry.IsDir() {
			return result.RootPromptDefinition{}, errs.NewUserFacing("Multi-step prompt directory can only contain files. %s is not a file.", entry.Name())
		}
		m := stepPattern.FindStringSubmatch(entry.Name())
		if m == nil {
			return result.RootPromptDefinition{}, errs.NewUserFacing("Multi-step prompt name must be in the form of `step-<number>`, but received %q", entry.Name())
		}
		n, _ := strconv.Atoi(m[1])
		if n == 0 {
			return result.RootPromptDefinition{}, errs.NewUserFacing("Multi-step prompts start with `step-1`.")
		}
		kind := result.StepEditing
		if n == 1 {
			kind = result.StepGeneration
		}
		stepRatings := append(slices.Clone(src.StepRatings[entry.Name()]), ratings...)
		def, err := promptDefinition(name+"-step-"+m[1], filepath.Join(dir, entry.Name()), stepRatings, kind)
		if err != nil {
			return result.RootPromptDefinition{}, err
		}
		steps = append(steps, numbered{n, def})
	}
	sort.Slice(steps, func(i, j int) bool { return steps[i].n < steps[j].n })

	root := result.RootPromptDefinition{Kind: result.KindMultiStep, Name: name}
	for _, s := range steps {
		root.Steps = append(root.Steps, s.def)
	}
	return root, nil
}

func promptDefinition(name, path string, ratings []string, kind result.StepKind) (result.PromptDefinition, error) {
	text, patterns, err := RenderPromptFile(path)
	if err != nil {
		return result.PromptDefinition{}, err
	}
	return result.PromptDefinition{
		Name:                name,
		Prompt:              text,
		Kind:                kind,
		Ratings:             ratings,
		ContextFilePatterns: patterns,
	}, nil
}

// Filter keeps prompts whose name contains filter, then the first limit of
// them. Zero limit keeps all.
func Filter(prompts []result.RootPromptDefinition, filter string, limit int) []result.RootPromptDefinition {
	var out []result.RootPromptDefinition
	for _, p := range prompts {
		if filter != "" && !strings.Contains(p.Name, filter) {
			continue
		}
		out = append(out, p)
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out
}
