// Package yaml provides YAML (and therefore JSON) parsing of policy and
// suppression files, and a file-backed PolicySource.
package yaml

import (
	"fmt"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/Amicidal/sigmachad-sub001/internal/domain/entities"
)

// yamlPolicyDocument represents the raw policy file structure
type yamlPolicyDocument struct {
	Policies        []yamlPolicy    `yaml:"policies"`
	PolicySets      []yamlPolicySet `yaml:"policySets"`
	ActivePolicySet string          `yaml:"activePolicySet"`
}

type yamlPolicy struct {
	ID          string           `yaml:"id"`
	Name        string           `yaml:"name"`
	Description string           `yaml:"description"`
	Enabled     *bool            `yaml:"enabled"`
	Enforcement string           `yaml:"enforcement"`
	Scope       []string         `yaml:"scope"`
	Rules       []yamlPolicyRule `yaml:"rules"`
}

type yamlPolicyRule struct {
	ID       string `yaml:"id"`
	Category string `yaml:"category"`
	Severity string `yaml:"severity"`
	Action   string `yaml:"action"`
}

type yamlPolicySet struct {
	ID                         string   `yaml:"id"`
	Name                       string   `yaml:"name"`
	Policies                   []string `yaml:"policies"`
	DefaultSeverityThreshold   string   `yaml:"defaultSeverityThreshold"`
	DefaultConfidenceThreshold float64  `yaml:"defaultConfidenceThreshold"`
}

type yamlSuppressionFile struct {
	Suppressions []yamlSuppression `yaml:"suppressions"`
}

type yamlSuppression struct {
	ID        string                `yaml:"id"`
	Type      string                `yaml:"type"`
	Target    yamlSuppressionTarget `yaml:"target"`
	Until     string                `yaml:"until"`
	Reason    string                `yaml:"reason"`
	CreatedBy string                `yaml:"createdBy"`
	CreatedAt string                `yaml:"createdAt"`
}

type yamlSuppressionTarget struct {
	RuleID          string `yaml:"ruleId"`
	IssueID         string `yaml:"issueId"`
	Package         string `yaml:"package"`
	VulnerabilityID string `yaml:"vulnerabilityId"`
	Path            string `yaml:"path"`
}

var timeLayouts = []string{time.RFC3339Nano, time.RFC3339, "2006-01-02T15:04:05", "2006-01-02"}

// PolicyParser parses policy and suppression documents. JSON input is
// accepted as it is valid YAML.
type PolicyParser struct{}

// NewPolicyParser creates a new policy parser
func NewPolicyParser() *PolicyParser {
	return &PolicyParser{}
}

// ParsePolicies parses a policy document. Policies default to enabled.
func (p *PolicyParser) ParsePolicies(data []byte) (*entities.PolicyDocument, error) {
	var raw yamlPolicyDocument
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("failed to parse policy file: %w", err)
	}

	doc := &entities.PolicyDocument{ActivePolicySet: raw.ActivePolicySet}
	for i, rp := range raw.Policies {
		policy, err := convertPolicy(rp)
		if err != nil {
			return nil, fmt.Errorf("policy %d: %w", i, err)
		}
		doc.Policies = append(doc.Policies, policy)
	}
	for i, rs := range raw.PolicySets {
		set, err := convertPolicySet(rs)
		if err != nil {
			return nil, fmt.Errorf("policy set %d: %w", i, err)
		}
		doc.PolicySets = append(doc.PolicySets, set)
	}
	return doc, nil
}

// ParseSuppressions parses a suppression document. Suppressions without an
// id get a positional one so they can be removed later.
func (p *PolicyParser) ParseSuppressions(data []byte) ([]entities.SuppressionRule, error) {
	var raw yamlSuppressionFile
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("failed to parse suppression file: %w", err)
	}

	rules := make([]entities.SuppressionRule, 0, len(raw.Suppressions))
	for i, rs := range raw.Suppressions {
		rule, err := convertSuppression(rs)
		if err != nil {
			return nil, fmt.Errorf("suppression %d: %w", i, err)
		}
		if rule.ID == "" {
			rule.ID = fmt.Sprintf("sup_%d", i+1)
		}
		rules = append(rules, rule)
	}
	return rules, nil
}

func convertPolicy(rp yamlPolicy) (entities.SecurityPolicy, error) {
	if rp.ID == "" {
		return entities.SecurityPolicy{}, fmt.Errorf("policy must have an id")
	}

	enforcement := entities.EnforcementWarning
	if rp.Enforcement != "" {
		switch e := entities.Enforcement(strings.ToLower(rp.Enforcement)); e {
		case entities.EnforcementBlocking, entities.EnforcementWarning, entities.EnforcementInformational:
			enforcement = e
		default:
			return entities.SecurityPolicy{}, fmt.Errorf("policy %s: unknown enforcement %q", rp.ID, rp.Enforcement)
		}
	}

	policy := entities.SecurityPolicy{
		ID:          rp.ID,
		Name:        rp.Name,
		Description: rp.Description,
		Enabled:     rp.Enabled == nil || *rp.Enabled,
		Enforcement: enforcement,
		Scope:       rp.Scope,
	}
	if policy.Name == "" {
		policy.Name = rp.ID
	}

	for _, rr := range rp.Rules {
		rule := entities.PolicyRule{
			ID:       rr.ID,
			Category: entities.RuleCategory(strings.ToLower(rr.Category)),
			Action:   rr.Action,
		}
		if rr.Severity != "" {
			rule.Severity = entities.ParseSeverity(rr.Severity)
		}
		policy.Rules = append(policy.Rules, rule)
	}
	return policy, nil
}

func convertPolicySet(rs yamlPolicySet) (entities.SecurityPolicySet, error) {
	if rs.ID == "" {
		return entities.SecurityPolicySet{}, fmt.Errorf("policy set must have an id")
	}
	if rs.DefaultConfidenceThreshold < 0 || rs.DefaultConfidenceThreshold > 1 {
		return entities.SecurityPolicySet{}, fmt.Errorf("policy set %s: confidence threshold %v outside [0,1]", rs.ID, rs.DefaultConfidenceThreshold)
	}

	set := entities.SecurityPolicySet{
		ID:                         rs.ID,
		Name:                       rs.Name,
		Policies:                   rs.Policies,
		DefaultSeverityThreshold:   entities.SeverityInfo,
		DefaultConfidenceThreshold: rs.DefaultConfidenceThreshold,
	}
	if rs.DefaultSeverityThreshold != "" {
		set.DefaultSeverityThreshold = entities.ParseSeverity(rs.DefaultSeverityThreshold)
	}
	if set.Name == "" {
		set.Name = rs.ID
	}
	return set, nil
}

func convertSuppression(rs yamlSuppression) (entities.SuppressionRule, error) {
	rule := entities.SuppressionRule{
		ID:   rs.ID,
		Type: entities.SuppressionType(strings.ToLower(rs.Type)),
		Target: entities.SuppressionTarget{
			RuleID:          rs.Target.RuleID,
			IssueID:         rs.Target.IssueID,
			Package:         rs.Target.Package,
			VulnerabilityID: rs.Target.VulnerabilityID,
			Path:            rs.Target.Path,
		},
		Reason:    rs.Reason,
		CreatedBy: rs.CreatedBy,
	}

	switch rule.Type {
	case entities.SuppressIssue, entities.SuppressVulnerability:
	default:
		return rule, fmt.Errorf("unknown suppression type %q", rs.Type)
	}

	if rs.Until != "" {
		until, err := parseTime(rs.Until)
		if err != nil {
			return rule, fmt.Errorf("invalid until: %w", err)
		}
		rule.Until = &until
	}
	if rs.CreatedAt != "" {
		created, err := parseTime(rs.CreatedAt)
		if err != nil {
			return rule, fmt.Errorf("invalid createdAt: %w", err)
		}
		rule.CreatedAt = created
	}
	return rule, nil
}

func parseTime(value string) (time.Time, error) {
	for _, layout := range timeLayouts {
		if t, err := time.Parse(layout, value); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized time %q", value)
}
