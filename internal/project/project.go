// Package project prepares the directory a generated app is built in.
package project

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/rs/zerolog/log"

	"github.com/angular/web-codegen-scorer/internal/errs"
	"github.com/angular/web-codegen-scorer/internal/result"
	"github.com/angular/web-codegen-scorer/internal/worker"
)

type SetupOptions struct {
	// Template is a local directory or a git URL, optionally suffixed with
	// "#branch". Empty means start from an empty directory.
	Template string
	// BaseDir keeps the project after the evaluation. Empty means a
	// temporary directory removed by Cleanup.
	BaseDir        string
	Name           string
	InstallCommand string
}

type Workspace struct {
	Dir     string
	cleanup func() error
}

// Cleanup removes the workspace if it was temporary.
func (w *Workspace) Cleanup() error {
	if w.cleanup == nil {
		return nil
	}
	return w.cleanup()
}

// Setup creates a project directory from the template and installs
// dependencies.
func Setup(ctx context.Context, opts SetupOptions) (*Workspace, error) {
	ws := &Workspace{}
	if opts.BaseDir != "" {
		ws.Dir = filepath.Join(opts.BaseDir, opts.Name)
		if err := os.RemoveAll(ws.Dir); err != nil {
			return nil, fmt.Errorf("clearing project dir: %w", err)
		}
	} else {
		tmp, err := os.MkdirTemp("", "wcs-"+sanitize(opts.Name)+"-")
		if err != nil {
			return nil, fmt.Errorf("creating temp dir: %w", err)
		}
		ws.Dir = filepath.Join(tmp, "app")
		ws.cleanup = func() error { return os.RemoveAll(tmp) }
	}

	fail := func(err error) (*Workspace, error) {
		ws.Cleanup()
		return nil, err
	}

	switch {
	case opts.Template == "":
		if err := os.MkdirAll(ws.Dir, 0o755); err != nil {
			return fail(fmt.Errorf("creating project dir: %w", err))
		}
	case IsRemote(opts.Template):
		if err := cloneTemplate(ctx, opts.Template, ws.Dir); err != nil {
			return fail(err)
		}
	default:
		if err := copyTemplate(opts.Template, ws.Dir); err != nil {
			return fail(err)
		}
	}

	if opts.InstallCommand != "" {
		out, err := worker.Shell(ctx, ws.Dir, opts.InstallCommand).CombinedOutput()
		if err != nil {
			return fail(fmt.Errorf("installing dependencies for %s: %w: %s", opts.Name, err, strings.TrimSpace(string(out))))
		}
	}
	return ws, nil
}

// IsRemote reports whether a template refers to a git remote.
func IsRemote(template string) bool {
	for _, prefix := range []string{"https://", "http://", "ssh://", "git@", "file://"} {
		if strings.HasPrefix(template, prefix) {
			return true
		}
	}
	return false
}

func cloneTemplate(ctx context.Context, template, dest string) error {
	url, branch, _ := strings.Cut(template, "#")
	opts := &git.CloneOptions{URL: url}
	if local, ok := strings.CutPrefix(url, "file://"); ok {
		opts.URL = local
	} else {
		opts.Depth = 1
	}
	if branch != "" {
		opts.ReferenceName = plumbing.NewBranchReferenceName(branch)
		opts.SingleBranch = true
	}
	if _, err := git.PlainCloneContext(ctx, dest, false, opts); err != nil {
		return fmt.Errorf("cloning template %s: %w", url, err)
	}
	if err := os.RemoveAll(filepath.Join(dest, ".git")); err != nil {
		return fmt.Errorf("removing template git dir: %w", err)
	}
	return nil
}

// copyTemplate copies src into dst. node_modules is linked rather than copied.
func copyTemplate(src, dst string) error {
	info, err := os.Stat(src)
	if err != nil {
		return errs.WrapUserFacing(err, "project template %s is not readable", src)
	}
	if !info.IsDir() {
		return errs.NewUserFacing("project template %s is not a directory", src)
	}

	return filepath.WalkDir(src, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(src, path)
		if err != nil {
			return err
		}
		target := filepath.Join(dst, rel)

		if d.IsDir() {
			switch d.Name() {
			case ".git":
				return filepath.SkipDir
			case "node_modules":
				abs, err := filepath.Abs(path)
				if err != nil {
					return err
				}
				if err := os.Symlink(abs, target); err != nil {
					return fmt.Errorf("linking node_modules: %w", err)
				}
				return filepath.SkipDir
			}
			return os.MkdirAll(target, 0o755)
		}
		if !d.Type().IsRegular() {
			log.Debug().Str("path", path).Msg("skipping non-regular template file")
			return nil
		}
		return copyFile(path, target)
	})
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()
	info, err := in.Stat()
	if err != nil {
		return err
	}
	out, err := os.OpenFile(dst, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, info.Mode().Perm())
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}

var errUnsafePath = errors.New("path escapes the project directory")

// SafeJoin resolves a generated file path inside dir, rejecting absolute
// paths and paths that climb out of it.
func SafeJoin(dir, rel string) (string, error) {
	if rel == "" || filepath.IsAbs(rel) || strings.HasPrefix(rel, "/") {
		return "", fmt.Errorf("%q: %w", rel, errUnsafePath)
	}
	clean := filepath.Clean(filepath.FromSlash(rel))
	if clean == ".." || strings.HasPrefix(clean, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("%q: %w", rel, errUnsafePath)
	}
	return filepath.Join(dir, clean), nil
}

// WriteFiles writes generated files into dir, creating parent directories.
func WriteFiles(dir string, files []result.File) error {
	for _, f := range files {
		path, err := SafeJoin(dir, f.FilePath)
		if err != nil {
			return err
		}
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return fmt.Errorf("creating directory for %s: %w", f.FilePath, err)
		}
		if err := os.WriteFile(path, []byte(f.Code), 0o644); err != nil {
			return fmt.Errorf("writing %s: %w", f.FilePath, err)
		}
	}
	return nil
}

// LoadLocalFiles reads previously generated files from dir.
func LoadLocalFiles(dir string) ([]result.File, error) {
	var files []result.File
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || !d.Type().IsRegular() {
			return nil
		}
		rel, err := filepath.Rel(dir, path)
		if err != nil {
			return err
		}
		data, err := os.ReadFile(path)
		if err != nil {
			return err
		}
		files = append(files, result.File{FilePath: filepath.ToSlash(rel), Code: string(data)})
		return nil
	})
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("reading local files: %w", err)
	}
	if len(files) == 0 {
		return nil, errs.NewUserFacing("could not find pre-existing files in %s", dir)
	}
	return files, nil
}

func sanitize(name string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
			return r
		}
		return '-'
	}, name)
}
