// Package report groups stored runs and renders summaries of them.
package report

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"

	"github.com/angular/web-codegen-scorer/internal/result"
)

// Generate loads every run under baseDir, groups them and writes a summary
// in the given format: table, markdown, json or html.
func Generate(baseDir, format string, w io.Writer) error {
	runs, err := result.LoadRuns(baseDir)
	if err != nil {
		return err
	}
	return Write(GroupSimilarReports(runs), format, w)
}

func Write(groups []result.RunGroup, format string, w io.Writer) error {
	switch format {
	case "", "table":
		return writeTable(groups, w)
	case "markdown":
		return writeMarkdown(groups, w)
	case "json":
		return writeJSON(groups, w)
	case "html":
		return writeHTML(groups, w)
	default:
		return fmt.Errorf("unknown report format %q", format)
	}
}

func percent(g result.RunGroup) float64 {
	if g.MaxOverallPoints == 0 {
		return 0
	}
	return g.TotalPoints / g.MaxOverallPoints * 100
}

func builds(g result.RunGroup) string {
	b := g.Stats.Builds
	return fmt.Sprintf("%d/%d/%d", b.SuccessfulInitialBuilds, b.SuccessfulBuildsAfterRepair, b.FailedBuilds)
}

func writeTable(groups []result.RunGroup, w io.Writer) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "NAME\tDATE\tMODEL\tRUNNER\tAPPS\tSCORE\tBUILDS (OK/REPAIRED/FAILED)\tLABELS")
	fmt.Fprintln(tw, strings.Repeat("-", 100))
	for _, g := range groups {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%d\t%.1f%%\t%s\t%s\n",
			g.DisplayName, g.Timestamp.Local().Format("2006-01-02"), g.Model, g.Runner,
			g.AppsCount, percent(g), builds(g), strings.Join(g.Labels, ","))
	}
	return tw.Flush()
}

func writeMarkdown(groups []result.RunGroup, w io.Writer) error {
	fmt.Fprintln(w, "| Name | Date | Model | Runner | Apps | Score | Builds (ok/repaired/failed) | Labels |")
	fmt.Fprintln(w, "|---|---|---|---|---|---|---|---|")
	for _, g := range groups {
		fmt.Fprintf(w, "| %s | %s | %s | %s | %d | %.1f%% | %s | %s |\n",
			cell(g.DisplayName), g.Timestamp.Local().Format("2006-01-02"), cell(g.Model), cell(g.Runner),
			g.AppsCount, percent(g), builds(g), cell(strings.Join(g.Labels, ", ")))
	}
	return nil
}

func cell(s string) string {
	return strings.ReplaceAll(s, "|", `\|`)
}

func writeJSON(groups []result.RunGroup, w io.Writer) error {
	if groups == nil {
		groups = []result.RunGroup{}
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(groups)
}

func writeHTML(groups []result.RunGroup, w io.Writer) error {
	var md bytes.Buffer
	fmt.Fprintf(&md, "# Evaluation runs\n\n%d group(s).\n\n", len(groups))
	if err := writeMarkdown(groups, &md); err != nil {
		return err
	}

	var body bytes.Buffer
	renderer := goldmark.New(goldmark.WithExtensions(extension.Table))
	if err := renderer.Convert(md.Bytes(), &body); err != nil {
		return fmt.Errorf("rendering report: %w", err)
	}
	fmt.Fprintln(w, "<!DOCTYPE html>\n<html>\n<head><meta charset=\"utf-8\"><title>Evaluation runs</title></head>\n<body>")
	if _, err := w.Write(body.Bytes()); err != nil {
		return err
	}
	_, err := fmt.Fprintln(w, "</body>\n</html>")
	return err
}
