package services

import (
	"testing"

	"github.com/Amicidal/sigmachad-sub001/internal/domain/entities"
)

func TestSummarize(t *testing.T) {
	issues := []entities.SecurityIssue{
		{Severity: entities.SeverityCritical, Category: entities.CategorySAST, Status: entities.StatusOpen},
		{Severity: entities.SeverityHigh, Category: entities.CategorySecrets, Status: entities.StatusOpen},
		{Severity: entities.SeverityHigh, Category: entities.CategorySAST, Status: entities.StatusResolved},
	}
	vulns := []entities.Vulnerability{
		{Severity: entities.SeverityHigh},
	}

	s := Summarize(issues, vulns)
	if s.TotalIssues != 3 || s.TotalVulnerabilities != 1 {
		t.Errorf("totals = %d/%d, want 3/1", s.TotalIssues, s.TotalVulnerabilities)
	}
	if s.BySeverity[entities.SeverityHigh] != 2 || s.BySeverity[entities.SeverityCritical] != 1 {
		t.Errorf("BySeverity = %v", s.BySeverity)
	}
	if s.ByCategory[entities.CategorySAST] != 2 || s.ByCategory[entities.CategorySecrets] != 1 {
		t.Errorf("ByCategory = %v", s.ByCategory)
	}
	if s.ByStatus[entities.StatusOpen] != 2 || s.ByStatus[entities.StatusResolved] != 1 {
		t.Errorf("ByStatus = %v", s.ByStatus)
	}
	if s.VulnerabilitiesBySeverity[entities.SeverityHigh] != 1 {
		t.Errorf("VulnerabilitiesBySeverity = %v", s.VulnerabilitiesBySeverity)
	}
	if s.Score != 1.0 { // 10 - 3 - 2 - 2 - 2
		t.Errorf("Score = %v, want 1.0", s.Score)
	}
}

func TestSecurityScore(t *testing.T) {
	tests := []struct {
		name   string
		issues []entities.SecurityIssue
		vulns  []entities.Vulnerability
		want   float64
	}{
		{name: "no findings", want: 10.0},
		{
			name:   "one critical issue",
			issues: []entities.SecurityIssue{{Severity: entities.SeverityCritical}},
			want:   7.0,
		},
		{
			name:  "one low vulnerability",
			vulns: []entities.Vulnerability{{Severity: entities.SeverityLow}},
			want:  9.5,
		},
		{
			name: "mixed",
			issues: []entities.SecurityIssue{
				{Severity: entities.SeverityHigh},
				{Severity: entities.SeverityMedium},
			},
			vulns: []entities.Vulnerability{{Severity: entities.SeverityLow}},
			want:  6.5,
		},
		{
			name:   "unknown severity",
			issues: []entities.SecurityIssue{{Severity: "bogus"}},
			want:   9.9,
		},
		{
			name: "clamped at zero",
			vulns: []entities.Vulnerability{
				{Severity: entities.SeverityCritical},
				{Severity: entities.SeverityCritical},
				{Severity: entities.SeverityCritical},
				{Severity: entities.SeverityCritical},
			},
			want: 0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := SecurityScore(tt.issues, tt.vulns); got != tt.want {
				t.Errorf("SecurityScore() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestShouldBlock(t *testing.T) {
	tests := []struct {
		name   string
		result *entities.SecurityScanResult
		want   bool
	}{
		{"nil result", nil, true},
		{"failed scan", &entities.SecurityScanResult{Status: entities.ScanFailed}, true},
		{"completed without compliance", &entities.SecurityScanResult{Status: entities.ScanCompleted}, false},
		{"completed and compliant", &entities.SecurityScanResult{
			Status: entities.ScanCompleted, Compliance: &entities.ComplianceResult{Compliant: true},
		}, false},
		{"blocking violation", &entities.SecurityScanResult{
			Status: entities.ScanCompleted, Compliance: &entities.ComplianceResult{Compliant: false},
		}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ShouldBlock(tt.result); got != tt.want {
				t.Errorf("ShouldBlock() = %v, want %v", got, tt.want)
			}
		})
	}
}
