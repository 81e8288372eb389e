package entities

import (
	"strings"
	"time"
)

// IssueStatus tracks the triage state of an issue
type IssueStatus string

// Issue statuses
const (
	StatusOpen       IssueStatus = "open"
	StatusClosed     IssueStatus = "closed"
	StatusInProgress IssueStatus = "in_progress"
	StatusResolved   IssueStatus = "resolved"
	StatusSuppressed IssueStatus = "suppressed"
)

// ParseIssueStatus normalizes a status label. Unknown values fall back to open.
func ParseIssueStatus(label string) IssueStatus {
	switch IssueStatus(strings.ToLower(strings.TrimSpace(label))) {
	case StatusClosed:
		return StatusClosed
	case StatusInProgress:
		return StatusInProgress
	case StatusResolved:
		return StatusResolved
	case StatusSuppressed:
		return StatusSuppressed
	default:
		return StatusOpen
	}
}

// CodeContext holds the lines surrounding a finding
type CodeContext struct {
	Before []string `json:"before"`
	After  []string `json:"after"`
}

// SecurityIssue is a fingerprinted finding. The same (entity, rule, line,
// snippet) always yields the same ID.
type SecurityIssue struct {
	ID           string       `json:"id"`
	Tool         string       `json:"tool"`
	RuleID       string       `json:"ruleId"`
	Category     RuleCategory `json:"category"`
	Severity     Severity     `json:"severity"`
	Title        string       `json:"title"`
	Description  string       `json:"description"`
	CWE          string       `json:"cwe,omitempty"`
	OWASP        string       `json:"owasp,omitempty"`
	EntityID     string       `json:"entityId"`
	FilePath     string       `json:"filePath"`
	Line         int          `json:"line"`
	Column       int          `json:"column"`
	CodeSnippet  string       `json:"codeSnippet"`
	Context      CodeContext  `json:"context"`
	Remediation  string       `json:"remediation,omitempty"`
	Status       IssueStatus  `json:"status"`
	DiscoveredAt time.Time    `json:"discoveredAt"`
	LastScanned  time.Time    `json:"lastScanned"`
	Confidence   float64      `json:"confidence"`
}
