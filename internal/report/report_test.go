package report

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/angular/web-codegen-scorer/internal/result"
)

var day = time.Date(2025, 6, 1, 12, 0, 0, 0, time.Local)

func app(name string, total float64, status result.BuildStatus) result.AssessmentResult {
	return result.AssessmentResult{
		PromptDef:    result.PromptRef{Name: name},
		FinalAttempt: result.AttemptDetails{BuildResult: result.BuildResult{Status: status}},
		Score:        result.Score{TotalPoints: total, MaxOverallPoints: 100},
	}
}

func run(id, group string, labels []string, results ...result.AssessmentResult) *result.RunInfo {
	return &result.RunInfo{
		ID:      id,
		Group:   group,
		Version: result.Version,
		Results: results,
		Details: result.RunDetails{
			Timestamp: day,
			Labels:    labels,
			Summary: result.RunSummary{
				DisplayName:   "Angular standalone",
				EnvironmentID: "angular-standalone",
				Framework:     "angular",
				Model:         "gemini-2.5-pro",
				Runner:        result.ExecutorInfo{ID: "model", DisplayName: "Model"},
			},
		},
	}
}

func TestGroupAveragesRunAverages(t *testing.T) {
	a := run("r1", "g", []string{"nightly"},
		app("todo", 90, result.BuildSuccess), app("form", 90, result.BuildSuccess),
		app("chart", 90, result.BuildSuccess), app("table", 90, result.BuildSuccess))
	b := run("r2", "g", []string{"ci", "nightly"},
		app("todo", 70, result.BuildSuccess), app("form", 70, result.BuildError),
		app("chart", 70, result.BuildSuccess), app("login", 70, result.BuildSuccess))

	groups := GroupSimilarReports([]*result.RunInfo{a, b})
	require.Len(t, groups, 1)
	g := groups[0]
	require.InDelta(t, 80, g.TotalPoints, 1e-9)
	require.InDelta(t, 100, g.MaxOverallPoints, 1e-9)
	require.Equal(t, 8, g.AppsCount)
	require.Equal(t, []string{"ci", "nightly"}, g.Labels)
	require.Equal(t, []string{"chart", "form", "login", "table", "todo"}, g.PromptNames)
	require.Equal(t, "Angular standalone", g.DisplayName)
	require.Equal(t, "Model", g.Runner)
	require.Equal(t, 1, g.Stats.Builds.FailedBuilds)
}

func TestGroupEmptyRun(t *testing.T) {
	groups := GroupSimilarReports([]*result.RunInfo{
		run("r1", "g", nil),
		run("r2", "g", nil, app("todo", 60, result.BuildSuccess)),
	})
	require.Len(t, groups, 1)
	require.InDelta(t, 30, groups[0].TotalPoints, 1e-9)
	require.Equal(t, 1, groups[0].AppsCount)

	groups = GroupSimilarReports([]*result.RunInfo{run("r1", "g", nil)})
	require.Zero(t, groups[0].TotalPoints)
	require.Zero(t, groups[0].MaxOverallPoints)
}

func TestGroupNoRuns(t *testing.T) {
	require.Empty(t, GroupSimilarReports(nil))
}

func TestGroupFirstAppearanceOrder(t *testing.T) {
	runs := []*result.RunInfo{
		run("r1", "b", nil, app("todo", 50, result.BuildSuccess)),
		run("r2", "a", nil, app("todo", 50, result.BuildSuccess)),
		run("r3", "b", nil, app("todo", 50, result.BuildSuccess)),
	}
	groups := GroupSimilarReports(runs)
	require.Len(t, groups, 2)
	require.Equal(t, "b", groups[0].ID)
	require.Equal(t, 2, groups[0].AppsCount)
	require.Equal(t, "a", groups[1].ID)

	require.Equal(t, groups, GroupSimilarReports(runs))
}

func TestGroupID(t *testing.T) {
	id := GroupID(day, "angular-standalone", []string{"b", "a"}, "gemini-2.5-pro", "model")
	require.Len(t, id, 64)
	require.Equal(t, id, GroupID(day.Add(time.Hour), "angular-standalone", []string{"a", "b"}, "gemini-2.5-pro", "model"))

	for name, other := range map[string]string{
		"env":    GroupID(day, "solid", []string{"a", "b"}, "gemini-2.5-pro", "model"),
		"model":  GroupID(day, "angular-standalone", []string{"a", "b"}, "gpt-5", "model"),
		"runner": GroupID(day, "angular-standalone", []string{"a", "b"}, "gemini-2.5-pro", "local"),
		"labels": GroupID(day, "angular-standalone", []string{"a"}, "gemini-2.5-pro", "model"),
		"day":    GroupID(day.AddDate(0, 0, 1), "angular-standalone", []string{"a", "b"}, "gemini-2.5-pro", "model"),
	} {
		require.NotEqual(t, id, other, name)
	}
}

func TestGroupIDKeepsCallerLabels(t *testing.T) {
	labels := []string{"z", "a"}
	GroupID(day, "env", labels, "m", "r")
	require.Equal(t, []string{"z", "a"}, labels)
}

func TestWriteFormats(t *testing.T) {
	groups := GroupSimilarReports([]*result.RunInfo{
		run("r1", "g", []string{"nightly"}, app("todo", 75, result.BuildSuccess)),
	})

	tests := []struct {
		format string
		want   []string
	}{
		{"table", []string{"NAME", "Angular standalone", "75.0%", "1/0/0", "nightly"}},
		{"markdown", []string{"| Name |", "| Angular standalone |", "75.0%"}},
		{"html", []string{"<!DOCTYPE html>", "<table>", "<td>Angular standalone</td>"}},
	}
	for _, tt := range tests {
		t.Run(tt.format, func(t *testing.T) {
			var buf bytes.Buffer
			require.NoError(t, Write(groups, tt.format, &buf))
			for _, w := range tt.want {
				require.Contains(t, buf.String(), w)
			}
		})
	}
}

func TestWriteJSON(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, Write(nil, "json", &buf))
	require.Equal(t, "[]", strings.TrimSpace(buf.String()))

	buf.Reset()
	groups := GroupSimilarReports([]*result.RunInfo{run("r1", "g", nil, app("todo", 75, result.BuildSuccess))})
	require.NoError(t, Write(groups, "json", &buf))
	var decoded []result.RunGroup
	require.NoError(t, json.Unmarshal(buf.Bytes(), &decoded))
	require.Len(t, decoded, 1)
	require.Equal(t, 1, decoded[0].AppsCount)
}

func TestWriteUnknownFormat(t *testing.T) {
	require.ErrorContains(t, Write(nil, "pdf", &bytes.Buffer{}), `unknown report format "pdf"`)
}

func TestGenerate(t *testing.T) {
	base := t.TempDir()
	for i, r := range []*result.RunInfo{
		run("r1", "g", nil, app("todo", 90, result.BuildSuccess)),
		run("r2", "g", nil, app("todo", 70, result.BuildSuccess)),
	} {
		dir := filepath.Join(base, "runs", []string{"2025-06-01T10-00-00.000", "2025-06-01T11-00-00.000"}[i])
		require.NoError(t, os.MkdirAll(dir, 0o755))
		require.NoError(t, result.WriteRun(dir, r))
	}

	var buf bytes.Buffer
	require.NoError(t, Generate(base, "json", &buf))
	var groups []result.RunGroup
	require.NoError(t, json.Unmarshal(buf.Bytes(), &groups))
	require.Len(t, groups, 1)
	require.InDelta(t, 80, groups[0].TotalPoints, 1e-9)
	require.Equal(t, 2, groups[0].AppsCount)
}
