package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/google/uuid"

	"github.com/Amicidal/sigmachad-sub001/internal/domain/entities"
	"github.com/Amicidal/sigmachad-sub001/internal/domain/interfaces"
	"github.com/Amicidal/sigmachad-sub001/internal/domain/interfaces/repositories"
	"github.com/Amicidal/sigmachad-sub001/internal/domain/interfaces/services"
)

// DefaultPolicySetID names the built-in policy set
const DefaultPolicySetID = "default"

// Errors returned by policy mutations
var (
	ErrUnknownPolicySet   = errors.New("unknown policy set")
	ErrInvalidSuppression = errors.New("invalid suppression")
)

// DefaultPolicyDocument is used when no policy file is configured. Its
// thresholds admit everything because the rule engine already applied the
// scan thresholds.
func DefaultPolicyDocument() *entities.PolicyDocument {
	return &entities.PolicyDocument{
		Policies: []entities.SecurityPolicy{
			{
				ID:          "sast-critical",
				Name:        "Critical static analysis findings",
				Enabled:     true,
				Enforcement: entities.EnforcementBlocking,
				Rules: []entities.PolicyRule{
					{ID: "sast-critical", Category: entities.CategorySAST, Severity: entities.SeverityCritical, Action: "block"},
				},
			},
			{
				ID:          "secrets",
				Name:        "Hard-coded secrets",
				Enabled:     true,
				Enforcement: entities.EnforcementBlocking,
				Rules: []entities.PolicyRule{
					{ID: "secrets-any", Category: entities.CategorySecrets, Action: "block"},
				},
			},
			{
				ID:          "dependencies",
				Name:        "Vulnerable dependencies",
				Enabled:     true,
				Enforcement: entities.EnforcementWarning,
				Rules: []entities.PolicyRule{
					{ID: "vulnerable-dependency", Category: entities.CategoryDependency, Severity: entities.SeverityHigh, Action: "warn"},
				},
			},
		},
		PolicySets: []entities.SecurityPolicySet{
			{
				ID:                         DefaultPolicySetID,
				Name:                       "Default",
				Policies:                   []string{"sast-critical", "secrets", "dependencies"},
				DefaultSeverityThreshold:   entities.SeverityInfo,
				DefaultConfidenceThreshold: 0,
			},
		},
		ActivePolicySet: DefaultPolicySetID,
	}
}

type policyEngine struct {
	mu           sync.RWMutex
	policies     map[string]entities.SecurityPolicy
	order        []string
	sets         map[string]entities.SecurityPolicySet
	active       string
	suppressions []entities.SuppressionRule
	source       repositories.PolicySource
	logger       interfaces.Logger
	now          func() time.Time
}

// NewPolicyEngine loads policies and suppressions from source. A nil source,
// or a source without policies, selects DefaultPolicyDocument.
func NewPolicyEngine(ctx context.Context, source repositories.PolicySource, logger interfaces.Logger) (services.PolicyEngine, error) {
	e := &policyEngine{
		source: source,
		logger: interfaces.OrNoOp(logger),
		now:    time.Now,
	}

	doc := DefaultPolicyDocument()
	if source != nil {
		loaded, err := source.LoadPolicies(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to load policies: %w", err)
		}
		if loaded != nil && len(loaded.Policies) > 0 {
			doc = loaded
		}

		suppressions, err := source.LoadSuppressions(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to load suppressions: %w", err)
		}
		e.suppressions = suppressions
	}

	if err := e.load(doc); err != nil {
		return nil, err
	}

	e.logger.Debug("policy engine initialized",
		interfaces.F("policies", len(e.policies)),
		interfaces.F("active_set", e.active),
		interfaces.F("suppressions", len(e.suppressions)),
	)
	return e, nil
}

func (e *policyEngine) load(doc *entities.PolicyDocument) error {
	e.policies = make(map[string]entities.SecurityPolicy, len(doc.Policies))
	for _, p := range doc.Policies {
		if p.ID == "" {
			return fmt.Errorf("policy %q has no id", p.Name)
		}
		if _, dup := e.policies[p.ID]; dup {
			return fmt.Errorf("duplicate policy id %q", p.ID)
		}
		e.policies[p.ID] = p
		e.order = append(e.order, p.ID)
	}

	sets := doc.PolicySets
	if len(sets) == 0 {
		// a file with policies but no sets gets one set holding them all
		sets = []entities.SecurityPolicySet{{
			ID:                       DefaultPolicySetID,
			Name:                     "Default",
			Policies:                 e.order,
			DefaultSeverityThreshold: entities.SeverityInfo,
		}}
	}

	e.sets = make(map[string]entities.SecurityPolicySet, len(sets))
	for _, s := range sets {
		for _, id := range s.Policies {
			if _, ok := e.policies[id]; !ok {
				return fmt.Errorf("policy set %q references unknown policy %q", s.ID, id)
			}
		}
		e.sets[s.ID] = s
	}

	e.active = doc.ActivePolicySet
	if e.active == "" {
		e.active = sets[0].ID
	}
	if _, ok := e.sets[e.active]; !ok {
		return fmt.Errorf("%w: %s", ErrUnknownPolicySet, e.active)
	}
	return nil
}

// FilterIssues drops suppressed issues and issues outside the active set's
// scope or below its thresholds
func (e *policyEngine) FilterIssues(issues []entities.SecurityIssue) []entities.SecurityIssue {
	e.mu.RLock()
	defer e.mu.RUnlock()

	set := e.sets[e.active]
	now := e.now()
	kept := make([]entities.SecurityIssue, 0, len(issues))
	suppressed := 0
	for _, issue := range issues {
		if e.issueSuppressed(issue, now) {
			suppressed++
			continue
		}
		if !e.inActiveScope(issue.FilePath) {
			continue
		}
		if !issue.Severity.AtLeast(set.DefaultSeverityThreshold) || issue.Confidence < set.DefaultConfidenceThreshold {
			continue
		}
		kept = append(kept, issue)
	}

	if suppressed > 0 {
		e.logger.Debug("suppressed issues", interfaces.F("count", suppressed))
	}
	return kept
}

// FilterVulnerabilities is FilterIssues for dependency findings
func (e *policyEngine) FilterVulnerabilities(vulns []entities.Vulnerability) []entities.Vulnerability {
	e.mu.RLock()
	defer e.mu.RUnlock()

	set := e.sets[e.active]
	now := e.now()
	kept := make([]entities.Vulnerability, 0, len(vulns))
	suppressed := 0
	for _, v := range vulns {
		if e.vulnerabilitySuppressed(v, now) {
			suppressed++
			continue
		}
		if v.ManifestPath != "" && !e.inActiveScope(v.ManifestPath) {
			continue
		}
		if !v.Severity.AtLeast(set.DefaultSeverityThreshold) {
			continue
		}
		kept = append(kept, v)
	}

	if suppressed > 0 {
		e.logger.Debug("suppressed vulnerabilities", interfaces.F("count", suppressed))
	}
	return kept
}

// ValidatePolicyCompliance checks every enabled policy of the active set.
// The result is compliant when no blocking policy is violated.
func (e *policyEngine) ValidatePolicyCompliance(issues []entities.SecurityIssue, vulns []entities.Vulnerability) entities.ComplianceResult {
	e.mu.RLock()
	defer e.mu.RUnlock()

	result := entities.ComplianceResult{Compliant: true, Violations: []entities.PolicyViolation{}}
	seen := make(map[string]bool)
	add := func(v entities.PolicyViolation) {
		key := v.PolicyID + "|" + v.ItemID
		if seen[key] {
			return
		}
		seen[key] = true
		result.Violations = append(result.Violations, v)
		if v.Enforcement == entities.EnforcementBlocking {
			result.Compliant = false
		}
	}

	for _, id := range e.sets[e.active].Policies {
		policy := e.policies[id]
		if !policy.Enabled {
			continue
		}
		for _, rule := range policy.Rules {
			if rule.Category == entities.CategoryDependency {
				for _, v := range vulns {
					if !v.Severity.AtLeast(entities.SeverityHigh) || !policyCovers(policy, v.ManifestPath) {
						continue
					}
					add(entities.PolicyViolation{
						PolicyID: policy.ID, PolicyName: policy.Name, RuleID: rule.ID,
						ItemID: v.ID, ItemType: "vulnerability",
						Severity: v.Severity, Enforcement: policy.Enforcement,
						Message: fmt.Sprintf("%s %s is affected by %s", v.PackageName, v.Version, v.VulnerabilityID),
					})
				}
				continue
			}

			threshold := entities.SeverityCritical
			if rule.Severity.Valid() {
				threshold = rule.Severity
			}
			for _, issue := range issues {
				if issue.Category != rule.Category || !policyCovers(policy, issue.FilePath) {
					continue
				}
				blocking := policy.Enforcement == entities.EnforcementBlocking && issue.Severity.AtLeast(threshold)
				if !blocking && !strings.Contains(issue.RuleID, "SECRET") {
					continue
				}
				add(entities.PolicyViolation{
					PolicyID: policy.ID, PolicyName: policy.Name, RuleID: rule.ID,
					ItemID: issue.ID, ItemType: "issue",
					Severity: issue.Severity, Enforcement: policy.Enforcement,
					Message: fmt.Sprintf("%s at %s:%d", issue.Title, issue.FilePath, issue.Line),
				})
			}
		}
	}
	return result
}

// AddSuppression stores a suppression. The target must constrain at least
// one field.
func (e *policyEngine) AddSuppression(ctx context.Context, rule entities.SuppressionRule) (entities.SuppressionRule, error) {
	if rule.Type != entities.SuppressIssue && rule.Type != entities.SuppressVulnerability {
		return entities.SuppressionRule{}, fmt.Errorf("%w: unknown type %q", ErrInvalidSuppression, rule.Type)
	}
	if rule.Target.Empty() {
		return entities.SuppressionRule{}, fmt.Errorf("%w: empty target", ErrInvalidSuppression)
	}
	if rule.Target.Path != "" && !doublestar.ValidatePattern(rule.Target.Path) {
		return entities.SuppressionRule{}, fmt.Errorf("%w: bad path glob %q", ErrInvalidSuppression, rule.Target.Path)
	}
	if rule.ID == "" {
		rule.ID = "sup_" + uuid.NewString()
	}
	if rule.CreatedAt.IsZero() {
		rule.CreatedAt = e.now().UTC()
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	for _, s := range e.suppressions {
		if s.ID == rule.ID {
			return entities.SuppressionRule{}, fmt.Errorf("%w: duplicate id %q", ErrInvalidSuppression, rule.ID)
		}
	}

	next := append(append([]entities.SuppressionRule{}, e.suppressions...), rule)
	if err := e.persist(ctx, next); err != nil {
		return entities.SuppressionRule{}, err
	}
	e.suppressions = next

	e.logger.Info("suppression added",
		interfaces.F("id", rule.ID),
		interfaces.F("type", string(rule.Type)),
		interfaces.F("reason", rule.Reason),
	)
	return rule, nil
}

// RemoveSuppression deletes a suppression by id; false if it did not exist
func (e *policyEngine) RemoveSuppression(ctx context.Context, id string) (bool, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	next := make([]entities.SuppressionRule, 0, len(e.suppressions))
	for _, s := range e.suppressions {
		if s.ID != id {
			next = append(next, s)
		}
	}
	if len(next) == len(e.suppressions) {
		return false, nil
	}
	if err := e.persist(ctx, next); err != nil {
		return false, err
	}
	e.suppressions = next
	e.logger.Info("suppression removed", interfaces.F("id", id))
	return true, nil
}

func (e *policyEngine) persist(ctx context.Context, rules []entities.SuppressionRule) error {
	if e.source == nil {
		return nil
	}
	if err := e.source.SaveSuppressions(ctx, rules); err != nil {
		return fmt.Errorf("failed to save suppressions: %w", err)
	}
	return nil
}

// Suppressions returns a copy of every suppression, expired ones included
func (e *policyEngine) Suppressions() []entities.SuppressionRule {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return append([]entities.SuppressionRule{}, e.suppressions...)
}

// SetActivePolicySet switches the active set without reloading anything
func (e *policyEngine) SetActivePolicySet(id string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if _, ok := e.sets[id]; !ok {
		return fmt.Errorf("%w: %s", ErrUnknownPolicySet, id)
	}
	e.active = id
	return nil
}

// ActivePolicySet returns the active set
func (e *policyEngine) ActivePolicySet() entities.SecurityPolicySet {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.sets[e.active]
}

// Policies returns every loaded policy in file order
func (e *policyEngine) Policies() []entities.SecurityPolicy {
	e.mu.RLock()
	defer e.mu.RUnlock()
	out := make([]entities.SecurityPolicy, 0, len(e.order))
	for _, id := range e.order {
		out = append(out, e.policies[id])
	}
	return out
}

func (e *policyEngine) issueSuppressed(issue entities.SecurityIssue, now time.Time) bool {
	for _, s := range e.suppressions {
		if s.Type != entities.SuppressIssue || s.Expired(now) {
			continue
		}
		t := s.Target
		if t.Package != "" || t.VulnerabilityID != "" {
			continue
		}
		if t.RuleID != "" && t.RuleID != issue.RuleID {
			continue
		}
		if t.IssueID != "" && t.IssueID != issue.ID {
			continue
		}
		if t.Path != "" && !globMatch(t.Path, issue.FilePath) {
			continue
		}
		return true
	}
	return false
}

func (e *policyEngine) vulnerabilitySuppressed(v entities.Vulnerability, now time.Time) bool {
	for _, s := range e.suppressions {
		if s.Type != entities.SuppressVulnerability || s.Expired(now) {
			continue
		}
		t := s.Target
		if t.RuleID != "" || t.IssueID != "" {
			continue
		}
		if t.Package != "" && !strings.EqualFold(t.Package, v.PackageName) {
			continue
		}
		if t.VulnerabilityID != "" && t.VulnerabilityID != v.VulnerabilityID && t.VulnerabilityID != v.ID {
			continue
		}
		if t.Path != "" && !globMatch(t.Path, v.ManifestPath) {
			continue
		}
		return true
	}
	return false
}

// inActiveScope reports whether path falls in the union of the enabled
// policies' scopes. A policy without scope covers everything, and so does a
// set with no enabled policy.
func (e *policyEngine) inActiveScope(path string) bool {
	enabled := 0
	for _, id := range e.sets[e.active].Policies {
		p := e.policies[id]
		if !p.Enabled {
			continue
		}
		enabled++
		if policyCovers(p, path) {
			return true
		}
	}
	return enabled == 0
}

func policyCovers(p entities.SecurityPolicy, path string) bool {
	if len(p.Scope) == 0 {
		return true
	}
	for _, pattern := range p.Scope {
		if globMatch(pattern, path) {
			return true
		}
	}
	return false
}

// globMatch matches a doublestar glob against a slash path. Relative
// patterns also match at any depth so "src/**" covers "/repo/src/a.js".
func globMatch(pattern, path string) bool {
	path = strings.ReplaceAll(path, "\\", "/")
	if ok, _ := doublestar.Match(pattern, path); ok {
		return true
	}
	if strings.HasPrefix(pattern, "/") || strings.HasPrefix(pattern, "**") {
		return false
	}
	ok, _ := doublestar.Match("**/"+pattern, strings.TrimPrefix(path, "/"))
	return ok
}
