// Package services defines interfaces for domain service contracts.
package services

import (
	"context"

	"github.com/Amicidal/sigmachad-sub001/internal/domain/entities"
)

// RuleEngine runs the pattern rule catalog over file entities
type RuleEngine interface {
	Scan(ctx context.Context, items []entities.Entity, opts entities.ScanOptions) ([]entities.SecurityIssue, error)
	Rules() []entities.SecurityRule
	Rule(id string) (entities.SecurityRule, bool)
}

// DependencyCollector finds manifests and resolves their dependencies to vulnerabilities
type DependencyCollector interface {
	Scan(ctx context.Context, items []entities.Entity, opts entities.ScanOptions) ([]entities.Vulnerability, error)
	ScanPackageFile(ctx context.Context, path string) ([]entities.DependencyInfo, error)
	Collect(ctx context.Context, items []entities.Entity) ([]entities.DependencyInfo, error)
}

// VulnerabilityResolver maps dependencies to known advisories
type VulnerabilityResolver interface {
	CheckVulnerabilities(ctx context.Context, name, version string, ecosystem entities.Ecosystem) ([]entities.Vulnerability, error)
	BatchCheckVulnerabilities(ctx context.Context, deps []entities.DependencyInfo) ([]entities.Vulnerability, error)
}

// IncrementalPartition is the outcome of change detection
type IncrementalPartition struct {
	ChangedEntities []entities.Entity
	SkippedEntities []entities.Entity
	State           *entities.IncrementalScanState
}

// IncrementalDetector partitions entities into changed and unchanged sets
type IncrementalDetector interface {
	PerformIncrementalScan(ctx context.Context, items []entities.Entity, baselineScanID, scanID string) (*IncrementalPartition, error)
	CarriedForward(ctx context.Context, baselineScanID string, skipped []entities.Entity) ([]entities.SecurityIssue, []entities.Vulnerability, error)
}

// PolicyEngine applies thresholds, suppressions, and compliance policies
type PolicyEngine interface {
	FilterIssues(issues []entities.SecurityIssue) []entities.SecurityIssue
	FilterVulnerabilities(vulns []entities.Vulnerability) []entities.Vulnerability
	ValidatePolicyCompliance(issues []entities.SecurityIssue, vulns []entities.Vulnerability) entities.ComplianceResult

	// AddSuppression validates, stamps and stores a suppression, persisting
	// the full list when a policy source is configured
	AddSuppression(ctx context.Context, rule entities.SuppressionRule) (entities.SuppressionRule, error)
	RemoveSuppression(ctx context.Context, id string) (bool, error)
	Suppressions() []entities.SuppressionRule
	SetActivePolicySet(id string) error
	ActivePolicySet() entities.SecurityPolicySet
	Policies() []entities.SecurityPolicy
}
