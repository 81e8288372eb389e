// Package gateways defines the boundary contracts to infrastructure: remote
// feeds, file hashing, signature checks, caches, and pluggable scanners.
package gateways

import (
	"context"

	"github.com/Amicidal/sigmachad-sub001/internal/domain/entities"
)

// VulnerabilityFeed queries a remote advisory database
type VulnerabilityFeed interface {
	// Query returns the advisories affecting one dependency
	Query(ctx context.Context, dep entities.DependencyInfo) ([]entities.Vulnerability, error)

	// QueryBatch resolves many dependencies in one round trip. The result is
	// keyed by DependencyInfo.Key(); dependencies with no advisories may be absent.
	QueryBatch(ctx context.Context, deps []entities.DependencyInfo) (map[string][]entities.Vulnerability, error)
}

// Scanner is anything that turns entities into issues: the rule engine, the
// secrets scanner collaborator, or a test double.
type Scanner interface {
	Scan(ctx context.Context, items []entities.Entity, opts entities.ScanOptions) ([]entities.SecurityIssue, error)
}

// ChecksumCalculator fingerprints file content
type ChecksumCalculator interface {
	Calculate(ctx context.Context, path string) (entities.FileChecksum, error)
}

// SignatureVerifier checks a detached signature (armored or binary) over data
type SignatureVerifier interface {
	Verify(data, signature []byte) error
}

// ManifestParser extracts declared dependencies from one manifest format
type ManifestParser interface {
	// Parse never panics on malformed input; it returns an error instead
	Parse(path string, data []byte) ([]entities.DependencyInfo, error)
}
