package project

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"

	"github.com/bmatcuk/doublestar/v4"

	"github.com/angular/web-codegen-scorer/internal/result"
)

// ResolveContextFiles returns the files under dir matching any of the glob
// patterns. "**" matches across directories, "{a,b}" alternatives and
// "[...]" classes are supported. node_modules is never scanned.
func ResolveContextFiles(patterns []string, dir string) ([]result.ContextFile, error) {
	if len(patterns) == 0 {
		return nil, nil
	}
	for _, p := range patterns {
		if !doublestar.ValidatePattern(p) {
			return nil, fmt.Errorf("context file pattern %q: %w", p, doublestar.ErrBadPattern)
		}
	}

	var files []result.ContextFile
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if d.Name() == "node_modules" || d.Name() == ".git" {
				return filepath.SkipDir
			}
			return nil
		}
		rel, err := filepath.Rel(dir, path)
		if err != nil {
			return err
		}
		rel = filepath.ToSlash(rel)
		for _, p := range patterns {
			if doublestar.MatchUnvalidated(p, rel) {
				data, err := os.ReadFile(path)
				if err != nil {
					return err
				}
				files = append(files, result.ContextFile{RelativePath: rel, Content: string(data)})
				break
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("resolving context files: %w", err)
	}
	sort.Slice(files, func(i, j int) bool { return files[i].RelativePath < files[j].RelativePath })
	return files, nil
}
