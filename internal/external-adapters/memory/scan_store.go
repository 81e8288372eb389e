// Package memory provides an in-process ScanRepository for tests and
// ephemeral runs.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/Amicidal/sigmachad-sub001/internal/domain/entities"
	"github.com/Amicidal/sigmachad-sub001/internal/domain/interfaces/repositories"
)

// ScanStore keeps scans, findings and incremental state in maps
type ScanStore struct {
	mu         sync.RWMutex
	scans      map[string]*entities.SecurityScanResult
	states     map[string]*entities.IncrementalScanState
	discovered map[string]time.Time
}

var _ repositories.ScanRepository = (*ScanStore)(nil)

// NewScanStore creates an empty store
func NewScanStore() *ScanStore {
	return &ScanStore{
		scans:      make(map[string]*entities.SecurityScanResult),
		states:     make(map[string]*entities.IncrementalScanState),
		discovered: make(map[string]time.Time),
	}
}

// EnsureConstraints is a no-op: map keys are already unique
func (s *ScanStore) EnsureConstraints(context.Context) error {
	return nil
}

// SaveScanResult upserts the scan; the first DiscoveredAt seen for an issue id wins
func (s *ScanStore) SaveScanResult(_ context.Context, result *entities.SecurityScanResult) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.scans[result.ScanID] = copyResult(result, true)
	for _, issue := range result.Issues {
		if _, ok := s.discovered[issue.ID]; !ok {
			s.discovered[issue.ID] = issue.DiscoveredAt
		}
	}
	return nil
}

// GetScan returns a copy of a stored scan
func (s *ScanStore) GetScan(_ context.Context, scanID string) (*entities.SecurityScanResult, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result, ok := s.scans[scanID]
	if !ok {
		return nil, entities.ErrScanNotFound
	}
	return copyResult(result, true), nil
}

// ListScans returns scan headers, newest first
func (s *ScanStore) ListScans(_ context.Context, limit int) ([]entities.SecurityScanResult, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]entities.SecurityScanResult, 0, len(s.scans))
	for _, result := range s.scans {
		out = append(out, *copyResult(result, false))
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].StartedAt.After(out[j].StartedAt)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// LoadScanState returns ErrStateNotFound for unknown scan ids
func (s *ScanStore) LoadScanState(_ context.Context, scanID string) (*entities.IncrementalScanState, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	state, ok := s.states[scanID]
	if !ok {
		return nil, entities.ErrStateNotFound
	}
	return state.Clone(), nil
}

// SaveScanState stores a copy of state under scanID
func (s *ScanStore) SaveScanState(_ context.Context, scanID string, state *entities.IncrementalScanState) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.states[scanID] = state.Clone()
	return nil
}

// FindIssues returns the issues scanID recorded for paths
func (s *ScanStore) FindIssues(_ context.Context, scanID string, paths []string) ([]entities.SecurityIssue, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result, ok := s.scans[scanID]
	if !ok {
		return nil, nil
	}
	want := pathSet(paths)
	var out []entities.SecurityIssue
	for _, issue := range result.Issues {
		if want[issue.FilePath] {
			out = append(out, issue)
		}
	}
	return out, nil
}

// FindVulnerabilities returns the vulnerabilities scanID recorded for manifest paths
func (s *ScanStore) FindVulnerabilities(_ context.Context, scanID string, paths []string) ([]entities.Vulnerability, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result, ok := s.scans[scanID]
	if !ok {
		return nil, nil
	}
	want := pathSet(paths)
	var out []entities.Vulnerability
	for _, v := range result.Vulnerabilities {
		if want[v.ManifestPath] {
			out = append(out, v)
		}
	}
	return out, nil
}

// FindDiscoveredAt returns first-seen times for known issue ids
func (s *ScanStore) FindDiscoveredAt(_ context.Context, issueIDs []string) (map[string]time.Time, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make(map[string]time.Time)
	for _, id := range issueIDs {
		if t, ok := s.discovered[id]; ok {
			out[id] = t
		}
	}
	return out, nil
}

func copyResult(r *entities.SecurityScanResult, withFindings bool) *entities.SecurityScanResult {
	out := *r
	out.Issues = nil
	out.Vulnerabilities = nil
	if withFindings {
		out.Issues = append([]entities.SecurityIssue(nil), r.Issues...)
		out.Vulnerabilities = append([]entities.Vulnerability(nil), r.Vulnerabilities...)
	}
	return &out
}

func pathSet(paths []string) map[string]bool {
	set := make(map[string]bool, len(paths))
	for _, p := range paths {
		set[p] = true
	}
	return set
}
