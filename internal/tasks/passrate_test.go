package tasks_test

import (
	"testing"

	"github.com/angular/web-codegen-scorer/internal/tasks"
)

func absf(x float64) float64 {
	if x < 0 {
		return -x
	}
	return x
}

func TestPassRate(t *testing.T) {
	tests := []struct {
		name     string
		output   string
		exitCode int
		want     float64
	}{
		{"exit zero", "", 0, 1.0},
		{"exit non-zero without counts", "", 1, 0.0},
		{"passed and failed", "===== 8 passed, 2 failed =====", 1, 0.8},
		{"passed only", "  3 passed", 1, 1.0},
		{"line start", "3 passed, 1 failed", 1, 0.75},
		{"vitest", " Test Files  1 failed | 1 passed (2)\n      Tests  8 passed | 2 failed (10)", 1, 0.8},
		{"jest", "Tests:       2 failed, 8 passed, 10 total", 1, 0.8},
		{"failed only", "5 failed", 1, 0.0},
		{"karma", "Chrome 120: Executed 4 of 4 (1 FAILED) (0.2 secs)", 1, 0.75},
		{"junit", `<?xml version="1.0" encoding="UTF-8"?>
<testsuite name="tests" tests="10" failures="2" errors="1" time="1.234">
</testsuite>`, 1, 0.7},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := tasks.PassRate(tt.output, tt.exitCode)
			if absf(got-tt.want) > 0.001 {
				t.Errorf("got %f, want %f", got, tt.want)
			}
		})
	}
}
