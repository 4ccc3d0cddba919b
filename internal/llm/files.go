package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/angular/web-codegen-scorer/internal/result"
)

// ParseError means the model answered but not in the expected shape.
type ParseError struct {
	Err error
}

func (e *ParseError) Error() string { return "parsing model response: " + e.Err.Error() }
func (e *ParseError) Unwrap() error { return e.Err }

type FilesRequest struct {
	Model              string
	SystemInstructions string
	Prompt             string
	ContextFiles       []result.ContextFile
	// Repair fields are set when asking the model to fix a failed attempt.
	ErrorMessage string
	PriorFiles   []result.File
}

type FilesResponse struct {
	Files []result.File
	Usage result.Usage
}

const filesFormat = `Respond with ONLY a JSON object of the form
{"files": [{"filePath": "src/app/app.ts", "code": "..."}]}
listing every file you created or changed with its complete contents.`

// GenerateFiles asks the model for project files.
func (c *Client) GenerateFiles(ctx context.Context, req FilesRequest) (*FilesResponse, error) {
	res, err := c.Chat(ctx, ChatRequest{
		Model: req.Model,
		Messages: []Message{
			{Role: "system", Content: req.SystemInstructions + "\n\n" + filesFormat},
			{Role: "user", Content: BuildFilesPrompt(req)},
		},
	})
	if err != nil {
		return nil, err
	}
	files, err := ParseFiles(res.Content)
	if err != nil {
		return &FilesResponse{Usage: res.Usage}, err
	}
	return &FilesResponse{Files: files, Usage: res.Usage}, nil
}

// BuildFilesPrompt renders the user message for a generation or repair request.
func BuildFilesPrompt(req FilesRequest) string {
	var b strings.Builder
	b.WriteString(req.Prompt)

	if len(req.ContextFiles) > 0 {
		b.WriteString("\n\nExisting project files:\n")
		for _, f := range req.ContextFiles {
			fmt.Fprintf(&b, "\n--- %s ---\n%s\n", f.RelativePath, f.Content)
		}
	}
	if req.ErrorMessage != "" {
		b.WriteString("\n\nThe previously generated code fails with the following error. Fix it.\n")
		b.WriteString(req.ErrorMessage)
		if len(req.PriorFiles) > 0 {
			b.WriteString("\n\nPreviously generated files:\n")
			for _, f := range req.PriorFiles {
				fmt.Fprintf(&b, "\n--- %s ---\n%s\n", f.FilePath, f.Code)
			}
		}
	}
	return b.String()
}

// ParseFiles extracts the files list from a model answer, tolerating
// markdown code fences around the JSON.
func ParseFiles(content string) ([]result.File, error) {
	content = stripFences(content)

	var payload struct {
		Files []struct {
			FilePath string `json:"filePath"`
			Code     string `json:"code"`
		} `json:"files"`
	}
	if err := json.Unmarshal([]byte(content), &payload); err != nil {
		return nil, &ParseError{Err: err}
	}
	files := make([]result.File, 0, len(payload.Files))
	for _, f := range payload.Files {
		if f.FilePath == "" {
			return nil, &ParseError{Err: fmt.Errorf("file without a path")}
		}
		files = append(files, result.File{FilePath: f.FilePath, Code: f.Code})
	}
	return files, nil
}

func stripFences(content string) string {
	content = strings.TrimSpace(content)
	content = strings.TrimPrefix(content, "```json")
	content = strings.TrimPrefix(content, "```")
	content = strings.TrimSuffix(content, "```")
	return strings.TrimSpace(content)
}
