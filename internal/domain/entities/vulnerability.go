package entities

import "time"

// Exploitability is a coarse likelihood rating derived from CVSS
type Exploitability string

// Exploitability ratings
const (
	ExploitabilityLow    Exploitability = "low"
	ExploitabilityMedium Exploitability = "medium"
	ExploitabilityHigh   Exploitability = "high"
)

// ExploitabilityFromCVSS derives exploitability from a CVSS base score
func ExploitabilityFromCVSS(score float64) Exploitability {
	switch {
	case score >= 9.0:
		return ExploitabilityHigh
	case score >= 7.0:
		return ExploitabilityMedium
	default:
		return ExploitabilityLow
	}
}

// Vulnerability is a known advisory affecting a declared dependency
type Vulnerability struct {
	ID               string         `json:"id"`
	PackageName      string         `json:"packageName"`
	Version          string         `json:"version"`
	Ecosystem        Ecosystem      `json:"ecosystem"`
	VulnerabilityID  string         `json:"vulnerabilityId"` // CVE preferred, then GHSA, then OSV id
	Title            string         `json:"title,omitempty"`
	Description      string         `json:"description,omitempty"`
	Severity         Severity       `json:"severity"`
	CVSSScore        float64        `json:"cvssScore"`
	AffectedVersions string         `json:"affectedVersions,omitempty"`
	FixedInVersion   string         `json:"fixedInVersion,omitempty"`
	PublishedAt      time.Time      `json:"publishedAt,omitempty"`
	LastUpdated      time.Time      `json:"lastUpdated,omitempty"`
	Exploitability   Exploitability `json:"exploitability"`
	ManifestPath     string         `json:"manifestPath,omitempty"`
	Status           IssueStatus    `json:"status"`
}
