package config

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"text/template"

	"github.com/angular/web-codegen-scorer/internal/errs"
)

// RenderPromptFile renders a prompt template. Besides the text/template
// builtins it supports:
//
//	{{ embed "relative/file.md" }}       inline another template
//	{{ contextFiles "**/*.ts, **/*.css" }} declare context file patterns
//
// contextFiles renders to nothing and may be used once per prompt.
func RenderPromptFile(path string) (string, []string, error) {
	r := &renderer{}
	out, err := r.render(path, 0)
	if err != nil {
		return "", nil, err
	}
	return out, r.contextFiles, nil
}

const maxEmbedDepth = 10

type renderer struct {
	contextFiles []string
	declared     bool
}

func (r *renderer) render(path string, depth int) (string, error) {
	if depth > maxEmbedDepth {
		return "", errs.NewUserFacing("Prompt %s embeds too deeply", path)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return "", errs.WrapUserFacing(err, "Cannot read prompt %s", path)
	}
	funcs := template.FuncMap{
		"embed": func(file string) (string, error) {
			if file == "" {
				return "", fmt.Errorf("embed requires a file")
			}
			return r.render(filepath.Join(filepath.Dir(path), file), depth+1)
		},
		"contextFiles": r.declare,
	}
	tmpl, err := template.New(filepath.Base(path)).Funcs(funcs).Option("missingkey=error").Parse(string(data))
	if err != nil {
		return "", errs.WrapUserFacing(err, "Invalid prompt template %s", path)
	}
	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, nil); err != nil {
		if errs.IsUserFacing(err) {
			return "", err
		}
		return "", errs.WrapUserFacing(err, "Cannot render prompt %s", path)
	}
	return buf.String(), nil
}

func (r *renderer) declare(patterns string) (string, error) {
	if r.declared {
		return "", fmt.Errorf("contextFiles can only be used once per prompt, combine the patterns into one comma-separated list")
	}
	r.declared = true
	for _, p := range strings.Split(patterns, ",") {
		if p = strings.TrimSpace(p); p != "" {
			r.contextFiles = append(r.contextFiles, p)
		}
	}
	if len(r.contextFiles) == 0 {
		return "", fmt.Errorf("contextFiles cannot be empty")
	}
	return "", nil
}
