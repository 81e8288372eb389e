package yaml

import (
	"strings"
	"testing"
	"time"

	"github.com/Amicidal/sigmachad-sub001/internal/domain/entities"
)

const policyYAML = `activePolicySet: strict
policies:
  - id: no-critical-sast
    name: No critical SAST findings
    enforcement: blocking
    scope: ["src/**"]
    rules:
      - id: sast-critical
        category: SAST
        severity: critical
  - id: deps
    enabled: false
    rules:
      - id: vulnerable-dependency
        category: dependency
policySets:
  - id: strict
    policies: [no-critical-sast, deps]
    defaultSeverityThreshold: high
    defaultConfidenceThreshold: 0.6
`

const policyJSON = `{
  "policies": [
    {"id": "secrets", "enforcement": "BLOCKING", "rules": [{"id": "secrets-any", "category": "secrets"}]}
  ],
  "policySets": [{"id": "default", "policies": ["secrets"]}],
  "activePolicySet": "default"
}`

func TestPolicyParser_ParsePolicies_YAML(t *testing.T) {
	doc, err := NewPolicyParser().ParsePolicies([]byte(policyYAML))
	if err != nil {
		t.Fatalf("ParsePolicies() error = %v", err)
	}

	if doc.ActivePolicySet != "strict" {
		t.Errorf("ActivePolicySet = %s, want strict", doc.ActivePolicySet)
	}
	if len(doc.Policies) != 2 {
		t.Fatalf("got %d policies, want 2", len(doc.Policies))
	}

	p := doc.Policies[0]
	if !p.Enabled || p.Enforcement != entities.EnforcementBlocking {
		t.Errorf("policy 0 enabled=%v enforcement=%s", p.Enabled, p.Enforcement)
	}
	if len(p.Scope) != 1 || p.Scope[0] != "src/**" {
		t.Errorf("Scope = %v", p.Scope)
	}
	if r := p.Rules[0]; r.Category != entities.CategorySAST || r.Severity != entities.SeverityCritical {
		t.Errorf("rule = %+v, want sast/critical", r)
	}

	deps := doc.Policies[1]
	if deps.Enabled {
		t.Error("explicit enabled: false was ignored")
	}
	if deps.Enforcement != entities.EnforcementWarning {
		t.Errorf("default enforcement = %s, want warning", deps.Enforcement)
	}
	if deps.Name != "deps" {
		t.Errorf("Name = %s, want id fallback", deps.Name)
	}

	set := doc.PolicySets[0]
	if set.DefaultSeverityThreshold != entities.SeverityHigh || set.DefaultConfidenceThreshold != 0.6 {
		t.Errorf("set thresholds = %s/%v", set.DefaultSeverityThreshold, set.DefaultConfidenceThreshold)
	}
}

func TestPolicyParser_ParsePolicies_JSON(t *testing.T) {
	doc, err := NewPolicyParser().ParsePolicies([]byte(policyJSON))
	if err != nil {
		t.Fatalf("ParsePolicies() error = %v", err)
	}
	if len(doc.Policies) != 1 || doc.Policies[0].Enforcement != entities.EnforcementBlocking {
		t.Errorf("policies = %+v", doc.Policies)
	}
	if doc.PolicySets[0].DefaultSeverityThreshold != entities.SeverityInfo {
		t.Errorf("default set threshold = %s, want info", doc.PolicySets[0].DefaultSeverityThreshold)
	}
}

func TestPolicyParser_ParsePolicies_Invalid(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		wantErr string
	}{
		{"malformed", "policies: [", "failed to parse"},
		{"missing id", "policies:\n  - name: x\n", "must have an id"},
		{"bad enforcement", "policies:\n  - id: x\n    enforcement: maybe\n", "unknown enforcement"},
		{"set without id", "policySets:\n  - policies: []\n", "must have an id"},
		{"confidence out of range", "policySets:\n  - id: s\n    defaultConfidenceThreshold: 2\n", "outside [0,1]"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewPolicyParser().ParsePolicies([]byte(tt.input))
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("ParsePolicies() error = %v, want containing %q", err, tt.wantErr)
			}
		})
	}
}

func TestPolicyParser_ParseSuppressions(t *testing.T) {
	input := `{
  "suppressions": [
    {"type": "issue", "target": {"ruleId": "SQL_INJECTION", "path": "test/**"}, "until": "2030-01-02", "reason": "fixtures"},
    {"id": "keep-me", "type": "vulnerability", "target": {"package": "lodash"}, "until": "2024-05-01T10:00:00Z", "reason": "no fix", "createdBy": "sec-team"}
  ]
}`
	rules, err := NewPolicyParser().ParseSuppressions([]byte(input))
	if err != nil {
		t.Fatalf("ParseSuppressions() error = %v", err)
	}
	if len(rules) != 2 {
		t.Fatalf("got %d rules, want 2", len(rules))
	}

	first := rules[0]
	if first.ID != "sup_1" {
		t.Errorf("generated ID = %s, want sup_1", first.ID)
	}
	if first.Type != entities.SuppressIssue || first.Target.RuleID != "SQL_INJECTION" || first.Target.Path != "test/**" {
		t.Errorf("first = %+v", first)
	}
	if first.Until == nil || !first.Until.Equal(time.Date(2030, 1, 2, 0, 0, 0, 0, time.UTC)) {
		t.Errorf("Until = %v, want 2030-01-02", first.Until)
	}

	second := rules[1]
	if second.ID != "keep-me" || second.CreatedBy != "sec-team" {
		t.Errorf("second = %+v", second)
	}
	if second.Until == nil || !second.Until.Equal(time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)) {
		t.Errorf("Until = %v", second.Until)
	}
}

func TestPolicyParser_ParseSuppressions_YAMLTimestamp(t *testing.T) {
	input := "suppressions:\n  - type: issue\n    target: {ruleId: EVAL_USAGE}\n    until: 2031-03-04\n"
	rules, err := NewPolicyParser().ParseSuppressions([]byte(input))
	if err != nil {
		t.Fatalf("ParseSuppressions() error = %v", err)
	}
	if rules[0].Until == nil || rules[0].Until.Year() != 2031 {
		t.Errorf("Until = %v, want 2031-03-04", rules[0].Until)
	}
}

func TestPolicyParser_ParseSuppressions_Invalid(t *testing.T) {
	tests := []struct {
		name  string
		input string
	}{
		{"malformed", `{"suppressions": [`},
		{"unknown type", `{"suppressions": [{"type": "file"}]}`},
		{"bad until", `{"suppressions": [{"type": "issue", "until": "next tuesday"}]}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := NewPolicyParser().ParseSuppressions([]byte(tt.input)); err == nil {
				t.Error("expected an error")
			}
		})
	}
}
