package result_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/angular/web-codegen-scorer/internal/result"
)

func sampleRun(id string) *result.RunInfo {
	return &result.RunInfo{
		ID:      id,
		Group:   "g1",
		Version: result.Version,
		Results: []result.AssessmentResult{{
			PromptDef: result.PromptRef{Name: "todo-app", Prompt: "Build a todo app"},
			FinalAttempt: result.AttemptDetails{
				Attempt:     1,
				BuildResult: result.BuildResult{Status: result.BuildSuccess},
			},
			Score: result.Score{TotalPoints: 80, MaxOverallPoints: 100},
		}},
		Details: result.RunDetails{
			Timestamp: time.Date(2025, 3, 4, 10, 0, 0, 0, time.UTC),
			Labels:    []string{"nightly"},
		},
	}
}

func TestWriteAndReadRun(t *testing.T) {
	dir := t.TempDir()
	run := sampleRun("run-1")
	if err := result.WriteRun(dir, run); err != nil {
		t.Fatalf("WriteRun: %v", err)
	}
	got, err := result.ReadRun(filepath.Join(dir, result.ReportFile))
	if err != nil {
		t.Fatalf("ReadRun: %v", err)
	}
	if got.ID != run.ID {
		t.Errorf("id: got %q, want %q", got.ID, run.ID)
	}
	if got.Results[0].Score.TotalPoints != 80 {
		t.Errorf("total_points: got %f, want 80", got.Results[0].Score.TotalPoints)
	}
	if !got.Details.Timestamp.Equal(run.Details.Timestamp) {
		t.Errorf("timestamp: got %v, want %v", got.Details.Timestamp, run.Details.Timestamp)
	}
}

func TestReadRunCorrupt(t *testing.T) {
	path := filepath.Join(t.TempDir(), result.ReportFile)
	if err := os.WriteFile(path, []byte("not zstd"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := result.ReadRun(path); err == nil {
		t.Fatal("expected error for corrupt report")
	}
}

func TestCreateRunDir(t *testing.T) {
	base := t.TempDir()
	runDir, err := result.CreateRunDir(base)
	if err != nil {
		t.Fatalf("CreateRunDir: %v", err)
	}
	if _, err := os.Stat(runDir); os.IsNotExist(err) {
		t.Errorf("run directory not created: %s", runDir)
	}
	latest := filepath.Join(base, "latest")
	target, err := os.Readlink(latest)
	if err != nil {
		t.Fatalf("reading latest symlink: %v", err)
	}
	if target != runDir {
		t.Errorf("latest symlink: got %q, want %q", target, runDir)
	}
}

func TestLoadRuns(t *testing.T) {
	base := t.TempDir()
	for i, id := range []string{"a", "b"} {
		dir := filepath.Join(base, "runs", "2025-01-0"+string(rune('1'+i)))
		if err := os.MkdirAll(dir, 0o755); err != nil {
			t.Fatal(err)
		}
		if err := result.WriteRun(dir, sampleRun(id)); err != nil {
			t.Fatal(err)
		}
	}
	runs, err := result.LoadRuns(base)
	if err != nil {
		t.Fatalf("LoadRuns: %v", err)
	}
	if len(runs) != 2 || runs[0].ID != "a" || runs[1].ID != "b" {
		t.Fatalf("unexpected runs: %+v", runs)
	}
}

func TestLoadRunsEmpty(t *testing.T) {
	runs, err := result.LoadRuns(t.TempDir())
	if err != nil {
		t.Fatalf("LoadRuns: %v", err)
	}
	if len(runs) != 0 {
		t.Errorf("expected no runs, got %d", len(runs))
	}
}

func TestAppsDir(t *testing.T) {
	got := result.AppsDir("/tmp/run")
	want := filepath.Join("/tmp/run", "apps")
	if got != want {
		t.Errorf("got %q, want %q", got, want)
	}
}

func TestStoredRunKeepsAccessibilityStats(t *testing.T) {
	dir := t.TempDir()
	run := sampleRun("run-a11y")
	run.Results[0].FinalAttempt.ServeTestingResult = &result.ServeTestingResult{
		AxeViolations: []result.AxeViolation{},
	}
	before := result.CalculateStats(run.Results)
	if before.Accessibility == nil {
		t.Fatal("accessibility stats missing before storing")
	}

	if err := result.WriteRun(dir, run); err != nil {
		t.Fatalf("WriteRun: %v", err)
	}
	got, err := result.ReadRun(filepath.Join(dir, result.ReportFile))
	if err != nil {
		t.Fatalf("ReadRun: %v", err)
	}
	after := result.CalculateStats(got.Results)
	if after.Accessibility == nil {
		t.Fatal("accessibility stats lost after reload")
	}
	if *after.Accessibility != *before.Accessibility {
		t.Errorf("accessibility: got %+v, want %+v", *after.Accessibility, *before.Accessibility)
	}
	if after.Accessibility.AppsWithoutErrors != 1 {
		t.Errorf("apps without errors: got %d, want 1", after.Accessibility.AppsWithoutErrors)
	}
}
