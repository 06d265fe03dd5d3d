package internal

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/olekukonko/tablewriter"
	"github.com/olekukonko/tablewriter/renderer"
	"github.com/olekukonko/tablewriter/tw"
	"github.com/sensiblebit/pemfile/internal/catalog"
	"gopkg.in/yaml.v3"
)

// SummaryAnnotation returns a parenthetical annotation like
// " (1 expired, 2 duplicate)" for non-zero counts, or an empty string.
func SummaryAnnotation(expired, duplicates int) string {
	var parts []string
	if expired > 0 {
		parts = append(parts, fmt.Sprintf("%d expired", expired))
	}
	if duplicates > 0 {
		parts = append(parts, fmt.Sprintf("%d duplicate", duplicates))
	}
	if len(parts) == 0 {
		return ""
	}
	return " (" + strings.Join(parts, ", ") + ")"
}

// ScanReport is the machine-readable form of a scan.
type ScanReport struct {
	Summary catalog.Summary       `json:"summary" yaml:"summary"`
	Errors  []catalog.ErrorRecord `json:"errors,omitempty" yaml:"errors,omitempty"`
}

// RenderSummaryTable renders per-kind counts as a markdown table.
func RenderSummaryTable(sum catalog.Summary) (string, error) {
	if len(sum.Kinds) == 0 {
		return "No PEM sections found\n", nil
	}

	var buf strings.Builder
	table := tablewriter.NewTable(&buf,
		tablewriter.WithRenderer(renderer.NewMarkdown(tw.Rendition{Streaming: true})),
	)
	table.Header([]string{"Kind", "Sections", "Unique"})

	rows := make([][]string, 0, len(sum.Kinds))
	for _, kc := range sum.Kinds {
		rows = append(rows, []string{kc.Kind, strconv.Itoa(kc.Sections), strconv.Itoa(kc.Unique)})
	}
	if err := table.Bulk(rows); err != nil {
		return "", fmt.Errorf("adding table rows: %w", err)
	}
	if err := table.Render(); err != nil {
		return "", fmt.Errorf("rendering table: %w", err)
	}
	return buf.String(), nil
}

// FormatScanReport renders report as "text", "json" or "yaml".
func FormatScanReport(report ScanReport, format string) (string, error) {
	switch format {
	case "json":
		data, err := json.MarshalIndent(report, "", "  ")
		if err != nil {
			return "", fmt.Errorf("marshaling JSON: %w", err)
		}
		return string(data) + "\n", nil
	case "yaml":
		data, err := yaml.Marshal(report)
		if err != nil {
			return "", fmt.Errorf("marshaling YAML: %w", err)
		}
		return string(data), nil
	case "text", "":
	default:
		return "", fmt.Errorf("unsupported output format %q (use text, json, or yaml)", format)
	}

	table, err := RenderSummaryTable(report.Summary)
	if err != nil {
		return "", err
	}
	var sb strings.Builder
	sb.WriteString(table)
	sum := report.Summary
	fmt.Fprintf(&sb, "\nFound %d sections, %d unique%s\n", sum.Sections, sum.Unique, SummaryAnnotation(sum.Expired, sum.Duplicates))
	if len(report.Errors) > 0 {
		fmt.Fprintf(&sb, "\n%d errors:\n", len(report.Errors))
		for _, e := range report.Errors {
			fmt.Fprintf(&sb, "  %s: %s\n", e.Source, e.Message)
		}
	}
	return sb.String(), nil
}
