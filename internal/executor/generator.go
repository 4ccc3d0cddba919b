package executor

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/angular/web-codegen-scorer/internal/llm"
	"github.com/angular/web-codegen-scorer/internal/project"
	"github.com/angular/web-codegen-scorer/internal/result"
)

// Generator produces files for a prompt. A non-empty errorMessage asks for
// a repair of prior.
type Generator interface {
	Generate(ctx context.Context, req GenerateRequest, errorMessage string, prior []result.File) (*Generation, error)
	Models(ctx context.Context) ([]string, error)
	// RepairsBuilds reports whether repair requests are meaningful.
	RepairsBuilds() bool
	Info() result.ExecutorInfo
}

// ModelGenerator asks a chat completion endpoint for files.
type ModelGenerator struct {
	Client *llm.Client
	Name   string
	// RepairInstructions replace the system instructions of repair requests
	// when set.
	RepairInstructions string
}

func (g *ModelGenerator) Generate(ctx context.Context, req GenerateRequest, errorMessage string, prior []result.File) (*Generation, error) {
	instructions := req.SystemInstructions
	if errorMessage != "" && g.RepairInstructions != "" {
		instructions = g.RepairInstructions
	}
	res, err := g.Client.GenerateFiles(ctx, llm.FilesRequest{
		Model:              req.Model,
		SystemInstructions: instructions,
		Prompt:             req.Prompt.Prompt,
		ContextFiles:       req.ContextFiles,
		ErrorMessage:       errorMessage,
		PriorFiles:         prior,
	})
	if err != nil {
		return nil, err
	}
	return &Generation{Files: res.Files, Usage: res.Usage}, nil
}

func (g *ModelGenerator) Models(ctx context.Context) ([]string, error) {
	return g.Client.Models(ctx)
}

func (g *ModelGenerator) RepairsBuilds() bool { return true }

func (g *ModelGenerator) Info() result.ExecutorInfo {
	name := g.Name
	if name == "" {
		name = "Chat completions"
	}
	return result.ExecutorInfo{ID: "model", DisplayName: name}
}

// StoredGenerator replays files written by an earlier run from
// <Dir>/<prompt name> instead of calling a model.
type StoredGenerator struct {
	Dir string
}

func (g *StoredGenerator) Generate(_ context.Context, req GenerateRequest, errorMessage string, _ []result.File) (*Generation, error) {
	if errorMessage != "" {
		return nil, fmt.Errorf("stored output for %q cannot be repaired", req.Prompt.Name)
	}
	files, err := project.LoadLocalFiles(filepath.Join(g.Dir, req.Prompt.Name))
	if err != nil {
		return nil, err
	}
	return &Generation{Files: files}, nil
}

func (g *StoredGenerator) Models(context.Context) ([]string, error) { return nil, nil }
func (g *StoredGenerator) RepairsBuilds() bool                       { return false }

func (g *StoredGenerator) Info() result.ExecutorInfo {
	return result.ExecutorInfo{ID: "local", DisplayName: "Local files"}
}
