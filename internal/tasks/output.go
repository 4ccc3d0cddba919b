// Package tasks holds the work performed inside worker child processes:
// building a project, running its tests and probing a served app.
package tasks

import (
	"regexp"
	"strings"

	"github.com/charmbracelet/x/ansi"

	"github.com/angular/web-codegen-scorer/internal/result"
)

// maxOutput bounds build and test output kept in results and repair prompts.
const maxOutput = 20_000

// CleanOutput strips terminal escapes and keeps the tail of long output.
func CleanOutput(s string) string {
	s = ansi.Strip(s)
	s = strings.ReplaceAll(s, "\r\n", "\n")
	s = strings.TrimSpace(s)
	if len(s) > maxOutput {
		s = "...\n" + s[len(s)-maxOutput:]
	}
	return s
}

var missingDependencyPatterns = []*regexp.Regexp{
	regexp.MustCompile(`Could not resolve "([^"]+)"`),
	regexp.MustCompile(`Cannot find module '([^']+)'`),
	regexp.MustCompile(`Module not found: Error: Can't resolve '([^']+)'`),
	regexp.MustCompile(`Failed to resolve import "([^"]+)"`),
}

// ClassifyBuildError turns failed build output into a BuildResult, detecting
// imports of packages that are not installed.
func ClassifyBuildError(output string) result.BuildResult {
	br := result.BuildResult{
		Status:    result.BuildError,
		Message:   output,
		ErrorType: result.ErrorGeneric,
	}
	for _, re := range missingDependencyPatterns {
		m := re.FindStringSubmatch(output)
		if m == nil {
			continue
		}
		// Relative imports are broken paths, not missing packages.
		if strings.HasPrefix(m[1], ".") || strings.HasPrefix(m[1], "/") {
			continue
		}
		br.ErrorType = result.ErrorMissingDependency
		br.MissingDependency = packageName(m[1])
		break
	}
	return br
}

// packageName reduces an import path to its npm package, keeping scopes.
func packageName(importPath string) string {
	parts := strings.Split(importPath, "/")
	if strings.HasPrefix(importPath, "@") && len(parts) > 1 {
		return parts[0] + "/" + parts[1]
	}
	return parts[0]
}
