package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Amicidal/sigmachad-sub001/internal/domain/entities"
	"github.com/Amicidal/sigmachad-sub001/internal/domain/interfaces"
	"github.com/Amicidal/sigmachad-sub001/internal/domain/interfaces/gateways"
	"github.com/Amicidal/sigmachad-sub001/internal/domain/interfaces/repositories"
	"github.com/Amicidal/sigmachad-sub001/internal/domain/interfaces/services"
)

// DefaultForceRescanAfter is the state age after which every file is rescanned
const DefaultForceRescanAfter = 7 * 24 * time.Hour

// IncrementalConfig configures change detection
type IncrementalConfig struct {
	// ForceRescanAfter treats every file as changed once the baseline state
	// is older than this. Zero disables the policy.
	ForceRescanAfter time.Duration
}

type incrementalDetector struct {
	checksums  gateways.ChecksumCalculator
	repo       repositories.ScanRepository
	states     gateways.Cache[*entities.IncrementalScanState]
	forceAfter time.Duration
	logger     interfaces.Logger
	now        func() time.Time
}

// NewIncrementalDetector creates a change detector. repo may be nil, in
// which case state lives only in the cache.
func NewIncrementalDetector(checksums gateways.ChecksumCalculator, repo repositories.ScanRepository, states gateways.Cache[*entities.IncrementalScanState], logger interfaces.Logger, cfg IncrementalConfig) services.IncrementalDetector {
	return &incrementalDetector{
		checksums:  checksums,
		repo:       repo,
		states:     states,
		forceAfter: cfg.ForceRescanAfter,
		logger:     interfaces.OrNoOp(logger),
		now:        time.Now,
	}
}

// PerformIncrementalScan partitions items against the baseline's checksums
// and records the new checksums under scanID
func (d *incrementalDetector) PerformIncrementalScan(ctx context.Context, items []entities.Entity, baselineScanID, scanID string) (*services.IncrementalPartition, error) {
	prior := d.loadState(ctx, baselineScanID)
	now := d.now()
	forced := d.forceAfter > 0 && len(prior.Checksums) > 0 && now.Sub(prior.LastScanTimestamp) > d.forceAfter
	if forced {
		d.logger.Info("baseline state is stale, rescanning all files",
			interfaces.F("baseline", baselineScanID),
			interfaces.F("age", now.Sub(prior.LastScanTimestamp).String()),
		)
	}

	state := prior.Clone()
	state.LastScanTimestamp = now
	state.BaselineScanID = baselineScanID

	partition := &services.IncrementalPartition{State: state}
	for _, item := range items {
		if !item.IsFile() {
			partition.ChangedEntities = append(partition.ChangedEntities, item)
			continue
		}

		sum, err := d.checksums.Calculate(ctx, item.Path)
		if err != nil {
			d.logger.Warn("failed to checksum file, treating as changed",
				interfaces.F("path", item.Path),
				interfaces.Err(err),
			)
			delete(state.Checksums, item.Path)
			partition.ChangedEntities = append(partition.ChangedEntities, item)
			continue
		}

		old, known := prior.Checksums[item.Path]
		state.Checksums[item.Path] = sum
		if !known || old.Checksum != sum.Checksum || forced {
			partition.ChangedEntities = append(partition.ChangedEntities, item)
			continue
		}
		partition.SkippedEntities = append(partition.SkippedEntities, item)
	}

	if d.repo != nil {
		if err := d.repo.SaveScanState(ctx, scanID, state); err != nil {
			return nil, fmt.Errorf("failed to save scan state: %w", err)
		}
	}
	d.states.Set(scanID, state.Clone())

	d.logger.Debug("incremental partition",
		interfaces.F("scan_id", scanID),
		interfaces.F("changed", len(partition.ChangedEntities)),
		interfaces.F("skipped", len(partition.SkippedEntities)),
	)
	return partition, nil
}

// CarriedForward loads the findings the baseline scan recorded for the
// skipped entities
func (d *incrementalDetector) CarriedForward(ctx context.Context, baselineScanID string, skipped []entities.Entity) ([]entities.SecurityIssue, []entities.Vulnerability, error) {
	if d.repo == nil || baselineScanID == "" || len(skipped) == 0 {
		return nil, nil, nil
	}

	paths := make([]string, 0, len(skipped))
	for _, e := range skipped {
		paths = append(paths, e.Path)
	}

	issues, err := d.repo.FindIssues(ctx, baselineScanID, paths)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load carried-forward issues: %w", err)
	}
	vulns, err := d.repo.FindVulnerabilities(ctx, baselineScanID, paths)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load carried-forward vulnerabilities: %w", err)
	}
	return issues, vulns, nil
}

// loadState resolves the baseline: cache, then repository, then empty
func (d *incrementalDetector) loadState(ctx context.Context, baselineScanID string) *entities.IncrementalScanState {
	if baselineScanID == "" {
		return entities.NewIncrementalScanState()
	}
	if cached, ok := d.states.Get(baselineScanID); ok {
		return cached.Clone()
	}
	if d.repo == nil {
		return entities.NewIncrementalScanState()
	}

	state, err := d.repo.LoadScanState(ctx, baselineScanID)
	if err != nil {
		if !errors.Is(err, entities.ErrStateNotFound) {
			d.logger.Warn("failed to load baseline state",
				interfaces.F("baseline", baselineScanID),
				interfaces.Err(err),
			)
		}
		return entities.NewIncrementalScanState()
	}
	if state.Checksums == nil {
		state.Checksums = make(map[string]entities.FileChecksum)
	}
	d.states.Set(baselineScanID, state.Clone())
	return state
}
