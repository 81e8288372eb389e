package entities

import "time"

// Enforcement is how a policy reacts to a violation
type Enforcement string

// Enforcement levels
const (
	EnforcementBlocking      Enforcement = "blocking"
	EnforcementWarning       Enforcement = "warning"
	EnforcementInformational Enforcement = "informational"
)

// PolicyRule selects the findings a policy cares about
type PolicyRule struct {
	ID       string       `json:"id" yaml:"id"`
	Category RuleCategory `json:"category" yaml:"category"`
	Severity Severity     `json:"severity,omitempty" yaml:"severity,omitempty"`
	Action   string       `json:"action,omitempty" yaml:"action,omitempty"`
}

// SecurityPolicy is a named, scoped subset of rules
type SecurityPolicy struct {
	ID          string       `json:"id" yaml:"id"`
	Name        string       `json:"name" yaml:"name"`
	Description string       `json:"description,omitempty" yaml:"description,omitempty"`
	Enabled     bool         `json:"enabled" yaml:"enabled"`
	Enforcement Enforcement  `json:"enforcement" yaml:"enforcement"`
	Scope       []string     `json:"scope,omitempty" yaml:"scope,omitempty"` // path globs
	Rules       []PolicyRule `json:"rules" yaml:"rules"`
}

// SecurityPolicySet groups policies and carries default thresholds
type SecurityPolicySet struct {
	ID                         string   `json:"id" yaml:"id"`
	Name                       string   `json:"name" yaml:"name"`
	Policies                   []string `json:"policies" yaml:"policies"`
	DefaultSeverityThreshold   Severity `json:"defaultSeverityThreshold" yaml:"defaultSeverityThreshold"`
	DefaultConfidenceThreshold float64  `json:"defaultConfidenceThreshold" yaml:"defaultConfidenceThreshold"`
}

// SuppressionType selects what a suppression applies to
type SuppressionType string

// Suppression types
const (
	SuppressIssue         SuppressionType = "issue"
	SuppressVulnerability SuppressionType = "vulnerability"
)

// SuppressionTarget is matched field-by-field; empty fields match anything
type SuppressionTarget struct {
	RuleID          string `json:"ruleId,omitempty" yaml:"ruleId,omitempty"`
	IssueID         string `json:"issueId,omitempty" yaml:"issueId,omitempty"`
	Package         string `json:"package,omitempty" yaml:"package,omitempty"`
	VulnerabilityID string `json:"vulnerabilityId,omitempty" yaml:"vulnerabilityId,omitempty"`
	Path            string `json:"path,omitempty" yaml:"path,omitempty"`
}

// Empty reports whether the target has no constraints at all
func (t SuppressionTarget) Empty() bool {
	return t == SuppressionTarget{}
}

// SuppressionRule silences matching findings until an optional expiry
type SuppressionRule struct {
	ID        string            `json:"id" yaml:"id"`
	Type      SuppressionType   `json:"type" yaml:"type"`
	Target    SuppressionTarget `json:"target" yaml:"target"`
	Until     *time.Time        `json:"until,omitempty" yaml:"until,omitempty"`
	Reason    string            `json:"reason" yaml:"reason"`
	CreatedBy string            `json:"createdBy,omitempty" yaml:"createdBy,omitempty"`
	CreatedAt time.Time         `json:"createdAt,omitempty" yaml:"createdAt,omitempty"`
}

// Expired reports whether the suppression no longer applies at now
func (s SuppressionRule) Expired(now time.Time) bool {
	return s.Until != nil && !s.Until.After(now)
}

// PolicyViolation records a finding that breaks an enabled policy
type PolicyViolation struct {
	PolicyID    string      `json:"policyId"`
	PolicyName  string      `json:"policyName"`
	RuleID      string      `json:"ruleId"`
	ItemID      string      `json:"itemId"`
	ItemType    string      `json:"itemType"` // "issue" or "vulnerability"
	Severity    Severity    `json:"severity"`
	Enforcement Enforcement `json:"enforcement"`
	Message     string      `json:"message"`
}

// ComplianceResult is the outcome of evaluating all enabled policies
type ComplianceResult struct {
	Compliant  bool              `json:"compliant"`
	Violations []PolicyViolation `json:"violations"`
}

// PolicyDocument is the content of the optional policy configuration file
type PolicyDocument struct {
	Policies        []SecurityPolicy    `json:"policies" yaml:"policies"`
	PolicySets      []SecurityPolicySet `json:"policySets" yaml:"policySets"`
	ActivePolicySet string              `json:"activePolicySet" yaml:"activePolicySet"`
}
