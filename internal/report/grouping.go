package report

import (
	"encoding/hex"
	"slices"
	"sort"
	"strings"
	"time"

	"github.com/zeebo/blake3"

	"github.com/angular/web-codegen-scorer/internal/result"
)

// GroupID derives the key shared by runs of the same configuration on the
// same local day. Label order does not matter.
func GroupID(ts time.Time, envID string, labels []string, model, runner string) string {
	sorted := slices.Clone(labels)
	sort.Strings(sorted)
	key := ts.Local().Format("2006-01-02") + "/" + envID + "/" +
		strings.Join(sorted, "/") + "/" + model + "/" + runner
	sum := blake3.Sum256([]byte(key))
	return hex.EncodeToString(sum[:])
}

// GroupSimilarReports merges runs sharing a group id. Groups keep the order
// in which their first run appears. Display fields come from the first run.
func GroupSimilarReports(runs []*result.RunInfo) []result.RunGroup {
	var order []string
	byGroup := map[string][]*result.RunInfo{}
	for _, run := range runs {
		if _, ok := byGroup[run.Group]; !ok {
			order = append(order, run.Group)
		}
		byGroup[run.Group] = append(byGroup[run.Group], run)
	}

	groups := make([]result.RunGroup, 0, len(order))
	for _, id := range order {
		groups = append(groups, summarize(id, byGroup[id]))
	}
	return groups
}

func summarize(id string, runs []*result.RunInfo) result.RunGroup {
	first := runs[0]
	labels := map[string]struct{}{}
	prompts := map[string]struct{}{}
	var all []result.AssessmentResult
	var total, maxTotal float64
	apps := 0

	for _, run := range runs {
		for _, l := range run.Details.Labels {
			labels[l] = struct{}{}
		}
		var runTotal, runMax float64
		for _, r := range run.Results {
			runTotal += r.Score.TotalPoints
			runMax += r.Score.MaxOverallPoints
			prompts[r.PromptDef.Name] = struct{}{}
		}
		total += average(runTotal, len(run.Results))
		maxTotal += average(runMax, len(run.Results))
		apps += len(run.Results)
		all = append(all, run.Results...)
	}

	s := first.Details.Summary
	return result.RunGroup{
		ID:               id,
		Version:          first.Version,
		DisplayName:      s.DisplayName,
		Timestamp:        first.Details.Timestamp,
		TotalPoints:      average(total, len(runs)),
		MaxOverallPoints: average(maxTotal, len(runs)),
		AppsCount:        apps,
		Labels:           sortedKeys(labels),
		PromptNames:      sortedKeys(prompts),
		EnvironmentID:    s.EnvironmentID,
		Framework:        s.Framework,
		Model:            s.Model,
		Runner:           s.Runner.DisplayName,
		Stats:            result.CalculateStats(all),
	}
}

func average(sum float64, n int) float64 {
	if n == 0 {
		return 0
	}
	return sum / float64(n)
}

func sortedKeys(m map[string]struct{}) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
