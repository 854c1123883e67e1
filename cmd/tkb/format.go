package main

import (
	"fmt"
	"sort"
	"strings"

	"tkb/internal/coverage"
	"tkb/internal/errors"
	"tkb/internal/graph"
	"tkb/internal/impact"
	"tkb/internal/knowledge"
	"tkb/internal/output"
)

// OutputFormat represents the output format type
type OutputFormat string

const (
	FormatJSON  OutputFormat = "json"
	FormatHuman OutputFormat = "human"
)

// FormatResponse formats a response according to the specified format.
// JSON output is deterministic: the same graph state always renders to the
// same bytes.
func FormatResponse(resp interface{}, format OutputFormat) (string, error) {
	switch format {
	case FormatJSON:
		return formatJSON(resp)
	case FormatHuman:
		return formatHuman(resp)
	default:
		return "", fmt.Errorf("unsupported format: %s", format)
	}
}

func formatJSON(resp interface{}) (string, error) {
	data, err := output.DeterministicEncodeIndented(resp, "  ")
	if err != nil {
		return "", fmt.Errorf("failed to marshal JSON: %w", err)
	}
	return string(data), nil
}

func formatHuman(resp interface{}) (string, error) {
	switch v := resp.(type) {
	case *ScanResponse:
		return formatScanHuman(v), nil
	case *graph.ValidationReport:
		return formatValidationHuman(v), nil
	case *coverage.Report:
		return formatCoverageHuman(v), nil
	case *impact.Report:
		return formatImpactHuman(v), nil
	case *knowledge.ReviewReport:
		return formatReviewHuman(v), nil
	case *knowledge.ImportReport:
		return formatImportHuman(v), nil
	case *ExportResponse:
		return formatExportHuman(v), nil
	case *StatsResponse:
		return formatStatsHuman(v), nil
	default:
		// For unknown types, fall back to JSON
		return formatJSON(resp)
	}
}

func formatScanHuman(resp *ScanResponse) string {
	var b strings.Builder

	b.WriteString(fmt.Sprintf("Scanned %d specs, %d tests, %d code units (%d references)\n",
		resp.SpecCount, resp.TestCount, resp.CodeCount, resp.ReferenceCount))
	if resp.KnowledgeCount > 0 {
		b.WriteString(fmt.Sprintf("Knowledge notes: %d\n", resp.KnowledgeCount))
	}

	if len(resp.Warnings) > 0 {
		b.WriteString(fmt.Sprintf("\n%d parse warnings:\n", len(resp.Warnings)))
		writeIssues(&b, resp.Warnings)
	}
	return strings.TrimRight(b.String(), "\n")
}

func formatValidationHuman(report *graph.ValidationReport) string {
	var b strings.Builder

	if len(report.Errors) == 0 && len(report.Warnings) == 0 {
		return "Graph is valid."
	}

	if len(report.Errors) > 0 {
		b.WriteString(fmt.Sprintf("%d errors:\n", len(report.Errors)))
		writeIssues(&b, report.Errors)
	}
	if len(report.Warnings) > 0 {
		b.WriteString(fmt.Sprintf("%d warnings:\n", len(report.Warnings)))
		writeIssues(&b, report.Warnings)
	}
	return strings.TrimRight(b.String(), "\n")
}

func formatCoverageHuman(report *coverage.Report) string {
	var b strings.Builder

	b.WriteString(fmt.Sprintf("AC coverage: %s   Verified: %s\n",
		output.FormatPercent(report.AggregateACCoverage),
		output.FormatPercent(report.AggregateVerifiedCoverage)))

	for _, spec := range report.Specs {
		marker := " "
		if spec.GateFailed {
			marker = "!"
		}
		b.WriteString(fmt.Sprintf("%s %-12s %-11s %d/%d ACs covered, %d verified",
			marker, spec.SpecID, spec.Status, spec.CoveredACs, spec.TotalACs, spec.VerifiedACs))
		if spec.WaivedACs > 0 {
			b.WriteString(fmt.Sprintf(" (%d waived)", spec.WaivedACs))
		}
		b.WriteString("\n")
		for _, gap := range spec.Gaps {
			b.WriteString(fmt.Sprintf("    gap: %s\n", gap))
		}
	}

	if len(report.GateFailures) > 0 {
		b.WriteString("\nGate failures:\n")
		writeIssues(&b, report.GateFailures)
	}
	return strings.TrimRight(b.String(), "\n")
}

func formatImpactHuman(report *impact.Report) string {
	var b strings.Builder

	b.WriteString(fmt.Sprintf("Changed: %s\n", strings.Join(report.ChangedFiles, ", ")))
	b.WriteString(fmt.Sprintf("Risk: %s (score %s, max depth %d)\n",
		report.RiskLevel, output.FormatFloat(report.RiskScore), report.MaxDepth))
	if report.Incomplete {
		b.WriteString("Analysis hit its deadline; results are partial.\n")
	}

	writeAffected(&b, "Specifications", report.ByType.Specs)
	writeAffected(&b, "Tests to run", report.ByType.Tests)
	writeAffected(&b, "Code", report.ByType.Code)
	writeAffected(&b, "Knowledge", report.ByType.Knowledge)

	return strings.TrimRight(b.String(), "\n")
}

func writeAffected(b *strings.Builder, heading string, items []impact.Affected) {
	if len(items) == 0 {
		return
	}
	b.WriteString(fmt.Sprintf("\n%s:\n", heading))
	for _, item := range items {
		b.WriteString(fmt.Sprintf("  [depth %d] %s\n", item.Depth, item.ID))
	}
}

func formatReviewHuman(report *knowledge.ReviewReport) string {
	if report.Empty() {
		return "Knowledge base is healthy; nothing to review."
	}

	var b strings.Builder
	writeFindings(&b, "Stale entries", report.Stale)
	writeFindings(&b, "Low-value patterns", report.LowValue)
	writeFindings(&b, "Over-verbose entries", report.Verbose)
	writeFindings(&b, "Possible duplicates", report.Duplicates)
	return strings.TrimRight(b.String(), "\n")
}

func writeFindings(b *strings.Builder, heading string, findings []knowledge.Finding) {
	if len(findings) == 0 {
		return
	}
	b.WriteString(fmt.Sprintf("%s:\n", heading))
	for _, f := range findings {
		b.WriteString(fmt.Sprintf("  %s: %s\n", f.NodeID, f.Reason))
	}
	b.WriteString("\n")
}

func formatImportHuman(report *knowledge.ImportReport) string {
	var b strings.Builder
	b.WriteString(fmt.Sprintf("Imported bundle %s: %d added, %d merged\n",
		report.BundleID, report.Added, report.Merged))
	if len(report.Conflicts) > 0 {
		b.WriteString(fmt.Sprintf("\n%d conflicts resolved:\n", len(report.Conflicts)))
		writeIssues(&b, report.Conflicts)
	}
	return strings.TrimRight(b.String(), "\n")
}

func formatExportHuman(resp *ExportResponse) string {
	suffix := ""
	if resp.Compressed {
		suffix = " (zstd)"
	}
	return fmt.Sprintf("Exported bundle %s to %s%s", resp.BundleID, resp.Path, suffix)
}

func formatStatsHuman(resp *StatsResponse) string {
	var b strings.Builder
	b.WriteString("Store:\n")
	b.WriteString(fmt.Sprintf("  specs:    %d\n", resp.Specs))
	b.WriteString(fmt.Sprintf("  tests:    %d\n", resp.Tests))
	b.WriteString(fmt.Sprintf("  code:     %d\n", resp.Code))
	b.WriteString(fmt.Sprintf("  patterns: %d\n", resp.Patterns))
	b.WriteString(fmt.Sprintf("  failures: %d\n", resp.Failures))
	b.WriteString(fmt.Sprintf("  links:    %d\n", resp.Links))
	if len(resp.PatternsByDomain) > 0 {
		b.WriteString("Knowledge by domain:\n")
		domains := make([]string, 0, len(resp.PatternsByDomain))
		for d := range resp.PatternsByDomain {
			domains = append(domains, d)
		}
		sort.Strings(domains)
		for _, d := range domains {
			b.WriteString(fmt.Sprintf("  %-12s %d\n", d, resp.PatternsByDomain[d]))
		}
		b.WriteString(fmt.Sprintf("  success rate: %s\n",
			output.FormatPercent(resp.AggregateSuccessRate)))
	}
	b.WriteString("Index:\n")
	b.WriteString(fmt.Sprintf("  refs:     %d\n", resp.IndexedRefs))
	b.WriteString(fmt.Sprintf("  warnings: %d\n", resp.IndexedWarnings))
	if resp.LastScan != "" {
		b.WriteString(fmt.Sprintf("  last scan: %s\n", resp.LastScan))
	}
	return strings.TrimRight(b.String(), "\n")
}

func writeIssues(b *strings.Builder, issues []*errors.TkbError) {
	for _, issue := range issues {
		loc := ""
		if issue.Position != nil {
			loc = issue.Position.String() + ": "
		}
		b.WriteString(fmt.Sprintf("  [%s] %s%s\n", issue.Code, loc, issue.Message))
		if issue.Remediation != "" {
			b.WriteString(fmt.Sprintf("      fix: %s\n", issue.Remediation))
		}
	}
}
