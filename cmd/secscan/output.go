package main

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/Amicidal/sigmachad-sub001/internal/domain/entities"
	domainservices "github.com/Amicidal/sigmachad-sub001/internal/domain/services"
)

const maxListed = 10

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

var severityIcons = map[entities.Severity]string{
	entities.SeverityCritical: "🔴",
	entities.SeverityHigh:     "🟠",
	entities.SeverityMedium:   "🟡",
	entities.SeverityLow:      "🟢",
	entities.SeverityInfo:     "⚪",
}

// printScanResult renders a scan for terminals
func printScanResult(w io.Writer, res *entities.SecurityScanResult, inc *entities.IncrementalScanResult) {
	if res == nil {
		return
	}

	fmt.Fprintf(w, "🔍 Security Scan: %s\n", res.ScanID)
	if inc != nil {
		baseline := inc.BaselineScanID
		if baseline == "" {
			baseline = "none"
		}
		fmt.Fprintf(w, "   Baseline: %s (%d changed, %d unchanged)\n", baseline, inc.ChangedFiles, inc.SkippedFiles)
	}
	fmt.Fprintln(w)

	if res.Status == entities.ScanCompleted {
		printIssues(w, res.Issues)
		printVulnerabilities(w, res.Vulnerabilities)
		fmt.Fprintf(w, "📊 Security score: %.1f/10.0\n", res.Summary.Score)
		fmt.Fprintf(w, "⏱️  Duration: %v\n\n", res.Duration)
	}

	if res.Compliance != nil && len(res.Compliance.Violations) > 0 {
		fmt.Fprintf(w, "📋 Policy Violations\n")
		for _, v := range res.Compliance.Violations {
			fmt.Fprintf(w, "   - [%s] %s: %s\n", v.Enforcement, v.PolicyName, v.Message)
		}
		fmt.Fprintln(w)
	}

	switch {
	case res.Status == entities.ScanFailed:
		fmt.Fprintf(w, "❌ SCAN RESULT: FAILED\n")
		fmt.Fprintf(w, "   Reason: %s\n", res.Error)
	case res.Status == entities.ScanCancelled:
		fmt.Fprintf(w, "⚠️  SCAN RESULT: CANCELLED\n")
	case domainservices.ShouldBlock(res):
		fmt.Fprintf(w, "🚫 SCAN RESULT: BLOCKED\n")
		fmt.Fprintf(w, "   Reason: blocking policy violated\n")
	default:
		fmt.Fprintf(w, "✅ SCAN RESULT: PASSED\n")
	}
}

func printIssues(w io.Writer, issues []entities.SecurityIssue) {
	fmt.Fprintf(w, "🛡️  Code Issues: %d\n", len(issues))
	if len(issues) == 0 {
		fmt.Fprintf(w, "   ✅ No issues found\n\n")
		return
	}
	severities := make([]entities.Severity, len(issues))
	for i, issue := range issues {
		severities[i] = issue.Severity
	}
	printSeverityCounts(w, severities)

	sorted := append([]entities.SecurityIssue(nil), issues...)
	sort.SliceStable(sorted, func(i, j int) bool {
		if sorted[i].Severity.Rank() != sorted[j].Severity.Rank() {
			return sorted[i].Severity.Rank() > sorted[j].Severity.Rank()
		}
		if sorted[i].FilePath != sorted[j].FilePath {
			return sorted[i].FilePath < sorted[j].FilePath
		}
		return sorted[i].Line < sorted[j].Line
	})

	fmt.Fprintf(w, "\n")
	for i, issue := range sorted {
		if i >= maxListed {
			fmt.Fprintf(w, "   ... and %d more\n", len(sorted)-maxListed)
			break
		}
		fmt.Fprintf(w, "   %s %s:%d %s (%s)\n", severityIcons[issue.Severity], issue.FilePath, issue.Line, issue.Title, issue.RuleID)
	}
	fmt.Fprintln(w)
}

func printVulnerabilities(w io.Writer, vulns []entities.Vulnerability) {
	fmt.Fprintf(w, "📦 Vulnerable Dependencies: %d\n", len(vulns))
	if len(vulns) == 0 {
		fmt.Fprintf(w, "   ✅ No vulnerabilities found\n\n")
		return
	}
	severities := make([]entities.Severity, len(vulns))
	for i, v := range vulns {
		severities[i] = v.Severity
	}
	printSeverityCounts(w, severities)

	fmt.Fprintf(w, "\n")
	for i, v := range vulns {
		if i >= maxListed {
			fmt.Fprintf(w, "   ... and %d more\n", len(vulns)-maxListed)
			break
		}
		fix := ""
		if v.FixedInVersion != "" {
			fix = ", fixed in " + v.FixedInVersion
		}
		fmt.Fprintf(w, "   %s %s@%s %s (CVSS %.1f%s)\n", severityIcons[v.Severity], v.PackageName, v.Version, v.VulnerabilityID, v.CVSSScore, fix)
	}
	fmt.Fprintln(w)
}

func printSeverityCounts(w io.Writer, severities []entities.Severity) {
	counts := make(map[entities.Severity]int)
	for _, s := range severities {
		counts[s]++
	}

	for _, s := range entities.AllSeverities {
		if counts[s] > 0 {
			fmt.Fprintf(w, "   %s %s: %d\n", severityIcons[s], strings.ToUpper(string(s)), counts[s])
		}
	}
}
