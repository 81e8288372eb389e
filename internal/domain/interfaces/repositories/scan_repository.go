// Package repositories defines interfaces for data access layers.
package repositories

import (
	"context"
	"time"

	"github.com/Amicidal/sigmachad-sub001/internal/domain/entities"
)

// ScanRepository is the persistence collaborator for scans, findings, and
// incremental state
type ScanRepository interface {
	// EnsureConstraints creates uniqueness guarantees on scan, issue, and vulnerability ids
	EnsureConstraints(ctx context.Context) error

	// SaveScanResult upserts the scan and every issue and vulnerability, linked to it
	SaveScanResult(ctx context.Context, result *entities.SecurityScanResult) error

	// GetScan loads a scan with its findings; ErrScanNotFound if absent
	GetScan(ctx context.Context, scanID string) (*entities.SecurityScanResult, error)

	// ListScans returns scan headers (no findings), newest first
	ListScans(ctx context.Context, limit int) ([]entities.SecurityScanResult, error)

	// LoadScanState returns ErrStateNotFound when the scan recorded no state
	LoadScanState(ctx context.Context, scanID string) (*entities.IncrementalScanState, error)
	SaveScanState(ctx context.Context, scanID string, state *entities.IncrementalScanState) error

	// FindIssues returns the issues a scan recorded for the given file paths
	FindIssues(ctx context.Context, scanID string, paths []string) ([]entities.SecurityIssue, error)

	// FindVulnerabilities returns the vulnerabilities a scan recorded for the given manifest paths
	FindVulnerabilities(ctx context.Context, scanID string, paths []string) ([]entities.Vulnerability, error)

	// FindDiscoveredAt returns the first-seen time for issue ids already known
	FindDiscoveredAt(ctx context.Context, issueIDs []string) (map[string]time.Time, error)
}
