package batch

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
)

const (
	ReportJSON     = "batch_report.json"
	ReportMarkdown = "batch_report.md"
	ReportHTML     = "batch_report.html"
)

// Markdown renders the report for humans.
func (r *Report) Markdown() string {
	var b strings.Builder
	b.WriteString("# Batch Report\n\n")
	fmt.Fprintf(&b, "**Timestamp**: %s\n\n", r.Timestamp.Format("2006-01-02 15:04:05Z07:00"))
	fmt.Fprintf(&b, "**Root Directory**: `%s`\n\n", r.RootDir)
	fmt.Fprintf(&b, "**Ruleset**: %s\n\n", r.RulesetVersion)
	if r.ProfileOverride != "" {
		fmt.Fprintf(&b, "**Profile Override**: %s\n\n", r.ProfileOverride)
	}
	b.WriteString("---\n\n")

	s := r.Summary
	b.WriteString("## Summary\n\n")
	fmt.Fprintf(&b, "- **Total Processed**: %d\n", s.TotalProcessed)
	fmt.Fprintf(&b, "- **Successful**: %d\n", s.Successful)
	fmt.Fprintf(&b, "- **Errors**: %d\n", s.Errors)
	fmt.Fprintf(&b, "- **Production Gate GO**: %d\n", s.GateGo)
	fmt.Fprintf(&b, "- **Production Gate NO-GO**: %d\n", s.GateNoGo)
	fmt.Fprintf(&b, "- **Average Coverage**: %s\n\n", percent(s.AvgCoverage))

	if len(r.Results) > 0 {
		b.WriteString("| Client | Status | Profile | Gate | Coverage | Missing | Unknown | Placeholders |\n")
		b.WriteString("|---|---|---|---|---|---|---|---|\n")
		for _, d := range r.Results {
			if d.Status == StatusError {
				fmt.Fprintf(&b, "| %s | ERROR | | | | | | |\n", cell(d.ClientName))
				continue
			}
			fmt.Fprintf(&b, "| %s | %s | `%s` | **%s** | %s | %d | %d | %d |\n",
				cell(d.ClientName), d.Status, d.Profile, d.GateStatus, percent(d.RequiredCoverageRatio),
				len(d.MissingRequiredSections), d.UnknownTitlesCount, d.PlaceholdersCount)
		}
		b.WriteString("\n")
	}

	b.WriteString("## Detailed Results\n\n")
	for _, d := range r.Results {
		if d.Status == StatusError {
			fmt.Fprintf(&b, "### ✗ %s\n\n", d.ClientName)
			b.WriteString("- **Status**: ERROR\n")
			fmt.Fprintf(&b, "- **Message**: %s\n\n", d.ErrorMessage)
			continue
		}
		fmt.Fprintf(&b, "### ✓ %s\n\n", d.ClientName)
		fmt.Fprintf(&b, "- **Profile**: `%s`\n", d.Profile)
		fmt.Fprintf(&b, "- **Gate Status**: **%s**\n", d.GateStatus)
		fmt.Fprintf(&b, "- **Coverage**: %s\n", percent(d.RequiredCoverageRatio))
		fmt.Fprintf(&b, "- **Missing Required**: %d\n", len(d.MissingRequiredSections))
		for i, m := range d.MissingRequiredSections {
			if i == 5 {
				fmt.Fprintf(&b, "  - ... and %d more\n", len(d.MissingRequiredSections)-5)
				break
			}
			fmt.Fprintf(&b, "  - `%s`\n", m)
		}
		fmt.Fprintf(&b, "- **Unknown Titles**: %d\n", d.UnknownTitlesCount)
		fmt.Fprintf(&b, "- **Placeholders**: %d\n", d.PlaceholdersCount)
		if len(d.Reasons) > 0 {
			b.WriteString("- **Reasons**:\n")
			for _, reason := range d.Reasons[:min(len(d.Reasons), 3)] {
				fmt.Fprintf(&b, "  - %s\n", reason)
			}
		}
		b.WriteString("\n")
	}

	if len(s.ErrorDetails) > 0 {
		b.WriteString("---\n\n## Errors\n\n")
		for _, e := range s.ErrorDetails {
			fmt.Fprintf(&b, "- **%s**: %s\n", e.Client, e.Error)
		}
	}
	return b.String()
}

// HTML renders the Markdown report as a standalone page.
func (r *Report) HTML() ([]byte, error) {
	md := goldmark.New(goldmark.WithExtensions(extension.Table))
	var body bytes.Buffer
	if err := md.Convert([]byte(r.Markdown()), &body); err != nil {
		return nil, fmt.Errorf("render html: %w", err)
	}
	var page bytes.Buffer
	page.WriteString("<!DOCTYPE html>\n<html>\n<head>\n<meta charset=\"utf-8\">\n<title>Batch Report</title>\n</head>\n<body>\n")
	page.Write(body.Bytes())
	page.WriteString("</body>\n</html>\n")
	return page.Bytes(), nil
}

// Write stores the JSON, Markdown and HTML reports in dir, plus the
// normalized record and report of each successful document under
// dir/<client>/.
func (r *Report) Write(dir string) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create output dir: %w", err)
	}

	for _, d := range r.Results {
		if d.result == nil {
			continue
		}
		clientDir := filepath.Join(dir, filepath.FromSlash(d.ClientName))
		if err := os.MkdirAll(clientDir, 0o755); err != nil {
			return fmt.Errorf("create client dir: %w", err)
		}
		if err := writeJSONFile(filepath.Join(clientDir, "normalized.json"), d.result.Normalized); err != nil {
			return err
		}
		if err := writeJSONFile(filepath.Join(clientDir, "report.json"), d.result.Report); err != nil {
			return err
		}
	}

	if err := writeJSONFile(filepath.Join(dir, ReportJSON), r); err != nil {
		return err
	}
	if err := os.WriteFile(filepath.Join(dir, ReportMarkdown), []byte(r.Markdown()), 0o644); err != nil {
		return fmt.Errorf("write %s: %w", ReportMarkdown, err)
	}
	html, err := r.HTML()
	if err != nil {
		return err
	}
	if err := os.WriteFile(filepath.Join(dir, ReportHTML), html, 0o644); err != nil {
		return fmt.Errorf("write %s: %w", ReportHTML, err)
	}
	return nil
}

func writeJSONFile(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("encode %s: %w", filepath.Base(path), err)
	}
	if err := os.WriteFile(path, append(data, '\n'), 0o644); err != nil {
		return fmt.Errorf("write %s: %w", filepath.Base(path), err)
	}
	return nil
}

func percent(f float64) string {
	return fmt.Sprintf("%.1f%%", f*100)
}

func cell(s string) string {
	return strings.ReplaceAll(s, "|", "\\|")
}
