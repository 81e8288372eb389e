package entities

// ScanType names one of the scanners the orchestrator can run
type ScanType string

// Scan types
const (
	ScanSAST       ScanType = "sast"
	ScanSecrets    ScanType = "secrets"
	ScanDependency ScanType = "dependency"
)

// ScanOptions tune a single scan run
type ScanOptions struct {
	IncludeSAST         bool     `json:"includeSast"`
	IncludeSecrets      bool     `json:"includeSecrets"`
	IncludeDependencies bool     `json:"includeDependencies"`
	SeverityThreshold   Severity `json:"severityThreshold"`
	ConfidenceThreshold float64  `json:"confidenceThreshold"`
	// MaxConcurrent forces chunked-parallel execution when > 0
	MaxConcurrent int `json:"maxConcurrent,omitempty"`
	// Categories restricts rule categories; empty means derive from the Include* flags
	Categories []RuleCategory `json:"categories,omitempty"`
}

// DefaultScanOptions enables every scanner with a medium severity floor
func DefaultScanOptions() ScanOptions {
	return ScanOptions{
		IncludeSAST:         true,
		IncludeSecrets:      true,
		IncludeDependencies: true,
		SeverityThreshold:   SeverityMedium,
		ConfidenceThreshold: 0.5,
	}
}

// EnabledCategories returns the rule categories the options turn on
func (o ScanOptions) EnabledCategories() []RuleCategory {
	if len(o.Categories) > 0 {
		return o.Categories
	}
	var cats []RuleCategory
	if o.IncludeSAST {
		cats = append(cats, CategorySAST, CategoryConfiguration)
	}
	if o.IncludeSecrets {
		cats = append(cats, CategorySecrets)
	}
	if o.IncludeDependencies {
		cats = append(cats, CategoryDependency)
	}
	return cats
}

// ScanRequest asks the orchestrator to scan a set of entities. An empty
// EntityIDs list means "recent files".
type ScanRequest struct {
	EntityIDs []string    `json:"entityIds,omitempty"`
	Options   ScanOptions `json:"options"`
}
