// Package services implements domain business logic and use cases.
package services

import "github.com/Amicidal/sigmachad-sub001/internal/domain/entities"

var severityPenalty = map[entities.Severity]float64{
	entities.SeverityCritical: 3.0,
	entities.SeverityHigh:     2.0,
	entities.SeverityMedium:   1.0,
	entities.SeverityLow:      0.5,
	entities.SeverityInfo:     0.1,
}

// Summarize counts findings by severity, category and status.
// Pure business logic - no I/O
func Summarize(issues []entities.SecurityIssue, vulns []entities.Vulnerability) entities.ScanSummary {
	s := entities.ScanSummary{
		TotalIssues:               len(issues),
		TotalVulnerabilities:      len(vulns),
		BySeverity:                make(map[entities.Severity]int),
		ByCategory:                make(map[entities.RuleCategory]int),
		ByStatus:                  make(map[entities.IssueStatus]int),
		VulnerabilitiesBySeverity: make(map[entities.Severity]int),
	}

	for _, issue := range issues {
		s.BySeverity[issue.Severity]++
		s.ByCategory[issue.Category]++
		s.ByStatus[issue.Status]++
	}
	for _, v := range vulns {
		s.VulnerabilitiesBySeverity[v.Severity]++
	}

	s.Score = SecurityScore(issues, vulns)
	return s
}

// SecurityScore starts at 10 and subtracts a penalty per finding by
// severity, clamped at 0. Unknown severities cost 0.1.
func SecurityScore(issues []entities.SecurityIssue, vulns []entities.Vulnerability) float64 {
	score := 10.0
	for _, issue := range issues {
		score -= penalty(issue.Severity)
	}
	for _, v := range vulns {
		score -= penalty(v.Severity)
	}
	if score < 0 {
		return 0
	}
	return score
}

func penalty(s entities.Severity) float64 {
	if p, ok := severityPenalty[s]; ok {
		return p
	}
	return 0.1
}

// ShouldBlock reports whether a scan result must fail a pipeline: the scan
// did not complete, or a blocking policy was violated
func ShouldBlock(result *entities.SecurityScanResult) bool {
	if result == nil || result.Status != entities.ScanCompleted {
		return true
	}
	return result.Compliance != nil && !result.Compliance.Compliant
}
