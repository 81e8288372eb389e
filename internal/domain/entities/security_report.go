package entities

import "time"

// ScanStatus is the lifecycle state of a scan
type ScanStatus string

// Scan lifecycle: pending -> running -> completed | failed | cancelled
const (
	ScanPending   ScanStatus = "pending"
	ScanRunning   ScanStatus = "running"
	ScanCompleted ScanStatus = "completed"
	ScanFailed    ScanStatus = "failed"
	ScanCancelled ScanStatus = "cancelled"
)

// Terminal reports whether no further transitions are possible
func (s ScanStatus) Terminal() bool {
	return s == ScanCompleted || s == ScanFailed || s == ScanCancelled
}

// ParseScanStatus normalizes a persisted status. Unknown values map to failed
// so a corrupt record is never mistaken for a finished scan.
func ParseScanStatus(label string) ScanStatus {
	switch s := ScanStatus(label); s {
	case ScanPending, ScanRunning, ScanCompleted, ScanFailed, ScanCancelled:
		return s
	default:
		return ScanFailed
	}
}

// ScanSummary aggregates counts for a finished scan
type ScanSummary struct {
	TotalIssues               int                  `json:"totalIssues"`
	TotalVulnerabilities      int                  `json:"totalVulnerabilities"`
	BySeverity                map[Severity]int     `json:"bySeverity"`
	ByCategory                map[RuleCategory]int `json:"byCategory"`
	ByStatus                  map[IssueStatus]int  `json:"byStatus"`
	VulnerabilitiesBySeverity map[Severity]int     `json:"vulnerabilitiesBySeverity"`
	// Score is a 0-10 posture score, 10 meaning no findings
	Score float64 `json:"score"`
}

// SecurityScanResult is the outcome of a scan run
type SecurityScanResult struct {
	ScanID          string            `json:"scanId"`
	Status          ScanStatus        `json:"status"`
	StartedAt       time.Time         `json:"startedAt"`
	CompletedAt     time.Time         `json:"completedAt,omitempty"`
	Duration        time.Duration     `json:"duration"`
	Issues          []SecurityIssue   `json:"issues"`
	Vulnerabilities []Vulnerability   `json:"vulnerabilities"`
	Summary         ScanSummary       `json:"summary"`
	Compliance      *ComplianceResult `json:"compliance,omitempty"`
	Error           string            `json:"error,omitempty"`
}

// IncrementalScanResult adds change-detection bookkeeping to a scan result
type IncrementalScanResult struct {
	SecurityScanResult
	ChangedFiles   int    `json:"changedFiles"`
	SkippedFiles   int    `json:"skippedFiles"`
	BaselineScanID string `json:"baselineScanId,omitempty"`
}
