package docker_test

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/angular/web-codegen-scorer/internal/docker"
)

func TestRunContainer(t *testing.T) {
	if os.Getenv("WCS_DOCKER_TESTS") == "" {
		t.Skip("set WCS_DOCKER_TESTS=1 to run Docker tests")
	}
	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer cancel()

	workDir := t.TempDir()
	os.WriteFile(filepath.Join(workDir, "index.html"), []byte("<h1>hi</h1>"), 0o644)

	result, err := docker.RunContainer(ctx, &docker.RunOpts{
		Image:   "alpine:latest",
		Command: []string{"sh", "-c", "cat index.html && echo built > out.txt"},
		WorkDir: workDir,
		Timeout: 30 * time.Second,
	})
	if err != nil {
		t.Fatalf("RunContainer: %v", err)
	}
	if result.ExitCode != 0 {
		t.Errorf("exit code: got %d, want 0", result.ExitCode)
	}
	if result.TimedOut {
		t.Error("unexpected timeout")
	}
	if !strings.Contains(result.Output, "<h1>hi</h1>") {
		t.Errorf("output: got %q", result.Output)
	}
	content, err := os.ReadFile(filepath.Join(workDir, "out.txt"))
	if err != nil {
		t.Fatalf("reading output: %v", err)
	}
	if string(content) != "built\n" {
		t.Errorf("output file: got %q, want %q", content, "built\n")
	}
}

func TestRunContainerTimeout(t *testing.T) {
	if os.Getenv("WCS_DOCKER_TESTS") == "" {
		t.Skip("set WCS_DOCKER_TESTS=1 to run Docker tests")
	}
	result, err := docker.RunContainer(context.Background(), &docker.RunOpts{
		Image:   "alpine:latest",
		Command: []string{"sleep", "300"},
		WorkDir: t.TempDir(),
		Timeout: 2 * time.Second,
	})
	if err != nil {
		t.Fatalf("RunContainer: %v", err)
	}
	if !result.TimedOut {
		t.Error("expected timeout")
	}
	if result.ExitCode != 124 {
		t.Errorf("exit code: got %d, want 124", result.ExitCode)
	}
}

func TestRunContainerCancelled(t *testing.T) {
	if os.Getenv("WCS_DOCKER_TESTS") == "" {
		t.Skip("set WCS_DOCKER_TESTS=1 to run Docker tests")
	}
	ctx, cancel := context.WithCancel(context.Background())
	time.AfterFunc(time.Second, cancel)

	_, err := docker.RunContainer(ctx, &docker.RunOpts{
		Image:   "alpine:latest",
		Command: []string{"sleep", "300"},
		WorkDir: t.TempDir(),
		Timeout: time.Minute,
	})
	if err == nil {
		t.Fatal("expected error after cancel")
	}
}

func TestRunContainerCrash(t *testing.T) {
	if os.Getenv("WCS_DOCKER_TESTS") == "" {
		t.Skip("set WCS_DOCKER_TESTS=1 to run Docker tests")
	}
	result, err := docker.RunContainer(context.Background(), &docker.RunOpts{
		Image:   "alpine:latest",
		Command: []string{"sh", "-c", "echo failing; exit 1"},
		WorkDir: t.TempDir(),
		Timeout: 10 * time.Second,
	})
	if err != nil {
		t.Fatalf("RunContainer: %v", err)
	}
	if result.ExitCode != 1 {
		t.Errorf("exit code: got %d, want 1", result.ExitCode)
	}
	if !strings.Contains(result.Output, "failing") {
		t.Errorf("output: got %q", result.Output)
	}
}
