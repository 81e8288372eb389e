package entities

import "regexp"

// RuleCategory groups rules by the scanner that owns them
type RuleCategory string

// Rule categories
const (
	CategorySAST          RuleCategory = "sast"
	CategorySecrets       RuleCategory = "secrets"
	CategoryDependency    RuleCategory = "dependency"
	CategoryConfiguration RuleCategory = "configuration"
	CategoryCompliance    RuleCategory = "compliance"
)

// DefaultRuleConfidence is used when a rule declares no confidence
const DefaultRuleConfidence = 0.8

// SecurityRule is a declarative pattern rule. Rules are immutable once the
// catalog is built.
type SecurityRule struct {
	ID          string
	Name        string
	Description string
	Severity    Severity
	CWE         string
	OWASP       string
	Pattern     *regexp.Regexp
	Confidence  float64
	Category    RuleCategory
	Remediation string
	Tags        []string
}
