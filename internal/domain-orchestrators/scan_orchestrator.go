// Package orchestrators coordinates complex workflows across multiple domain services.
package orchestrators

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sourcegraph/conc/pool"

	"github.com/Amicidal/sigmachad-sub001/internal/domain/entities"
	"github.com/Amicidal/sigmachad-sub001/internal/domain/interfaces"
	"github.com/Amicidal/sigmachad-sub001/internal/domain/interfaces/gateways"
	"github.com/Amicidal/sigmachad-sub001/internal/domain/interfaces/repositories"
	"github.com/Amicidal/sigmachad-sub001/internal/domain/interfaces/services"
	domainservices "github.com/Amicidal/sigmachad-sub001/internal/domain/services"
)

// Execution defaults
const (
	DefaultParallelThreshold = 10
	DefaultMaxConcurrent     = 4
	DefaultRecentFilesLimit  = 100
)

// ErrScanCancelled is returned by a scan that was cancelled while running
var ErrScanCancelled = errors.New("scan cancelled")

// ScanOrchestratorConfig holds execution tuning for the orchestrator
type ScanOrchestratorConfig struct {
	// ParallelThreshold is the entity count above which chunked execution kicks in
	ParallelThreshold int
	// MaxConcurrent is the chunk count used when a request does not set one
	MaxConcurrent int
	// RecentFilesLimit bounds the default entity query
	RecentFilesLimit int
}

// ScanOrchestrator coordinates the scanners, the policy engine, and
// persistence into one scan result, and tracks each scan's lifecycle
type ScanOrchestrator struct {
	sast     gateways.Scanner
	secrets  gateways.Scanner
	deps     services.DependencyCollector
	policy   services.PolicyEngine
	detector services.IncrementalDetector
	repo     repositories.ScanRepository
	source   repositories.EntitySource
	logger   interfaces.Logger
	cfg      ScanOrchestratorConfig
	events   *eventBus

	mu      sync.RWMutex
	active  map[string]*entities.SecurityScanResult
	history map[string]*entities.SecurityScanResult

	now   func() time.Time
	newID func() string
}

// NewScanOrchestrator creates a scan orchestrator. Any scanner may be nil to
// disable it; the detector is only needed for incremental scans.
func NewScanOrchestrator(
	sast gateways.Scanner,
	secrets gateways.Scanner,
	deps services.DependencyCollector,
	policy services.PolicyEngine,
	detector services.IncrementalDetector,
	repo repositories.ScanRepository,
	source repositories.EntitySource,
	logger interfaces.Logger,
	cfg ScanOrchestratorConfig,
) *ScanOrchestrator {
	if cfg.ParallelThreshold <= 0 {
		cfg.ParallelThreshold = DefaultParallelThreshold
	}
	if cfg.MaxConcurrent <= 0 {
		cfg.MaxConcurrent = DefaultMaxConcurrent
	}
	if cfg.RecentFilesLimit <= 0 {
		cfg.RecentFilesLimit = DefaultRecentFilesLimit
	}

	return &ScanOrchestrator{
		sast:     sast,
		secrets:  secrets,
		deps:     deps,
		policy:   policy,
		detector: detector,
		repo:     repo,
		source:   source,
		logger:   interfaces.OrNoOp(logger),
		cfg:      cfg,
		events:   newEventBus(),
		active:   make(map[string]*entities.SecurityScanResult),
		history:  make(map[string]*entities.SecurityScanResult),
		now:      time.Now,
		newID:    uuid.NewString,
	}
}

// Initialize prepares the persistence collaborator
func (o *ScanOrchestrator) Initialize(ctx context.Context) error {
	if err := o.repo.EnsureConstraints(ctx); err != nil {
		return fmt.Errorf("failed to ensure constraints: %w", err)
	}
	return nil
}

// Subscribe registers a handler for lifecycle events and returns a func
// that unregisters it
func (o *ScanOrchestrator) Subscribe(h EventHandler) func() {
	return o.events.subscribe(h)
}

// PerformScan runs a full scan over the requested entities.
// On failure the returned result carries status failed alongside the error.
func (o *ScanOrchestrator) PerformScan(ctx context.Context, req entities.ScanRequest) (*entities.SecurityScanResult, error) {
	scanID := o.begin()

	items, err := o.resolveEntities(ctx, req)
	if err != nil {
		return o.fail(scanID, fmt.Errorf("failed to resolve entities: %w", err))
	}
	o.markRunning(scanID, len(items), false)

	issues, vulns, err := o.execute(ctx, items, req.Options)
	if err != nil {
		return o.fail(scanID, err)
	}

	return o.complete(ctx, scanID, issues, vulns)
}

// PerformIncrementalScan scans only entities whose content changed since
// baselineScanID and carries the baseline's findings forward for the rest
func (o *ScanOrchestrator) PerformIncrementalScan(ctx context.Context, req entities.ScanRequest, baselineScanID string) (*entities.IncrementalScanResult, error) {
	scanID := o.begin()

	if o.detector == nil {
		res, err := o.fail(scanID, errors.New("incremental scanning is not configured"))
		return incremental(res, nil, baselineScanID), err
	}

	items, err := o.resolveEntities(ctx, req)
	if err != nil {
		res, err := o.fail(scanID, fmt.Errorf("failed to resolve entities: %w", err))
		return incremental(res, nil, baselineScanID), err
	}
	o.markRunning(scanID, len(items), true)

	part, err := o.detector.PerformIncrementalScan(ctx, items, baselineScanID, scanID)
	if err != nil {
		res, err := o.fail(scanID, fmt.Errorf("change detection failed: %w", err))
		return incremental(res, nil, baselineScanID), err
	}

	issues, vulns, err := o.execute(ctx, part.ChangedEntities, req.Options)
	if err != nil {
		res, err := o.fail(scanID, err)
		return incremental(res, part, baselineScanID), err
	}

	carriedIssues, carriedVulns, err := o.detector.CarriedForward(ctx, baselineScanID, part.SkippedEntities)
	if err != nil {
		res, err := o.fail(scanID, fmt.Errorf("failed to load baseline findings: %w", err))
		return incremental(res, part, baselineScanID), err
	}
	carriedIssues, carriedVulns = retainForOptions(carriedIssues, carriedVulns, req.Options)
	o.logger.Debug("carried forward baseline findings",
		interfaces.F("scan_id", scanID),
		interfaces.F("baseline", baselineScanID),
		interfaces.F("issues", len(carriedIssues)),
		interfaces.F("vulnerabilities", len(carriedVulns)),
	)

	res, err := o.complete(ctx, scanID, append(issues, carriedIssues...), append(vulns, carriedVulns...))
	return incremental(res, part, baselineScanID), err
}

// CancelScan moves a running scan to cancelled. Work already dispatched
// keeps running but its results are neither persisted nor emitted.
func (o *ScanOrchestrator) CancelScan(scanID string) error {
	o.mu.Lock()
	res, ok := o.active[scanID]
	if !ok {
		_, known := o.history[scanID]
		o.mu.Unlock()
		if known {
			return fmt.Errorf("%w: %s", entities.ErrScanNotRunning, scanID)
		}
		return fmt.Errorf("%w: %s", entities.ErrScanNotFound, scanID)
	}

	now := o.now()
	delete(o.active, scanID)
	res.Status = entities.ScanCancelled
	res.CompletedAt = now
	res.Duration = now.Sub(res.StartedAt)
	o.history[scanID] = res
	snapshot := *res
	o.mu.Unlock()

	o.logger.Info("scan cancelled", interfaces.F("scan_id", scanID))
	o.events.emit(ScanEvent{Type: EventScanCancelled, ScanID: scanID, At: now, Result: &snapshot})
	return nil
}

// GetScan returns a tracked scan, falling back to the repository
func (o *ScanOrchestrator) GetScan(ctx context.Context, scanID string) (*entities.SecurityScanResult, error) {
	o.mu.RLock()
	res, ok := o.active[scanID]
	if !ok {
		res, ok = o.history[scanID]
	}
	if ok {
		snapshot := *res
		o.mu.RUnlock()
		return &snapshot, nil
	}
	o.mu.RUnlock()

	return o.repo.GetScan(ctx, scanID)
}

// ActiveScans lists scans that have not reached a terminal state, oldest first
func (o *ScanOrchestrator) ActiveScans() []entities.SecurityScanResult {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return snapshots(o.active)
}

// History lists scans this process has finished, oldest first
func (o *ScanOrchestrator) History() []entities.SecurityScanResult {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return snapshots(o.history)
}

func (o *ScanOrchestrator) begin() string {
	scanID := o.newID()
	res := &entities.SecurityScanResult{
		ScanID:    scanID,
		Status:    entities.ScanPending,
		StartedAt: o.now(),
	}

	o.mu.Lock()
	o.active[scanID] = res
	o.mu.Unlock()
	return scanID
}

func (o *ScanOrchestrator) markRunning(scanID string, entityCount int, incremental bool) {
	o.mu.Lock()
	if res, ok := o.active[scanID]; ok && res.Status == entities.ScanPending {
		res.Status = entities.ScanRunning
	}
	o.mu.Unlock()

	o.logger.Info("scan started",
		interfaces.F("scan_id", scanID),
		interfaces.F("entities", entityCount),
		interfaces.F("incremental", incremental),
	)
}

func (o *ScanOrchestrator) resolveEntities(ctx context.Context, req entities.ScanRequest) ([]entities.Entity, error) {
	if o.source == nil {
		return nil, errors.New("no entity source configured")
	}
	if len(req.EntityIDs) > 0 {
		return o.source.Resolve(ctx, req.EntityIDs)
	}
	return o.source.Recent(ctx, o.cfg.RecentFilesLimit)
}

type scanOutput struct {
	issues []entities.SecurityIssue
	vulns  []entities.Vulnerability
}

// execute runs the scanners sequentially over the whole set, or over
// concurrent chunks when the set is large or a concurrency is requested
func (o *ScanOrchestrator) execute(ctx context.Context, items []entities.Entity, opts entities.ScanOptions) ([]entities.SecurityIssue, []entities.Vulnerability, error) {
	if len(items) <= o.cfg.ParallelThreshold && opts.MaxConcurrent <= 0 {
		out, err := o.runScanners(ctx, items, opts)
		return out.issues, out.vulns, err
	}

	maxConcurrent := opts.MaxConcurrent
	if maxConcurrent <= 0 {
		maxConcurrent = o.cfg.MaxConcurrent
	}
	chunks := chunkEntities(items, maxConcurrent)
	o.logger.Debug("running chunked scan",
		interfaces.F("entities", len(items)),
		interfaces.F("chunks", len(chunks)),
	)

	p := pool.NewWithResults[scanOutput]().
		WithContext(ctx).
		WithMaxGoroutines(maxConcurrent)
	for _, chunk := range chunks {
		chunk := chunk
		p.Go(func(ctx context.Context) (scanOutput, error) {
			return o.runScanners(ctx, chunk, opts)
		})
	}

	outputs, err := p.Wait()
	if err != nil {
		return nil, nil, err
	}

	var issues []entities.SecurityIssue
	var vulns []entities.Vulnerability
	for _, out := range outputs {
		issues = append(issues, out.issues...)
		vulns = append(vulns, out.vulns...)
	}
	return issues, vulns, nil
}

// runScanners fans the enabled scanners out over items and joins their results
func (o *ScanOrchestrator) runScanners(ctx context.Context, items []entities.Entity, opts entities.ScanOptions) (scanOutput, error) {
	var sastIssues, secretIssues []entities.SecurityIssue
	var vulns []entities.Vulnerability

	p := pool.New().WithContext(ctx)

	if sastOpts, ok := sastOptions(opts); ok && o.sast != nil {
		p.Go(func(ctx context.Context) error {
			issues, err := o.sast.Scan(ctx, items, sastOpts)
			if err != nil {
				return fmt.Errorf("sast scan failed: %w", err)
			}
			sastIssues = issues
			return nil
		})
	}
	if categoryEnabled(opts, entities.CategorySecrets) && o.secrets != nil {
		p.Go(func(ctx context.Context) error {
			issues, err := o.secrets.Scan(ctx, items, opts)
			if err != nil {
				return fmt.Errorf("secrets scan failed: %w", err)
			}
			secretIssues = issues
			return nil
		})
	}
	if categoryEnabled(opts, entities.CategoryDependency) && o.deps != nil {
		p.Go(func(ctx context.Context) error {
			found, err := o.deps.Scan(ctx, items, opts)
			if err != nil {
				return fmt.Errorf("dependency scan failed: %w", err)
			}
			vulns = found
			return nil
		})
	}

	if err := p.Wait(); err != nil {
		return scanOutput{}, err
	}
	return scanOutput{issues: append(sastIssues, secretIssues...), vulns: vulns}, nil
}

// complete filters, stamps, summarizes and persists a scan's findings
func (o *ScanOrchestrator) complete(ctx context.Context, scanID string, issues []entities.SecurityIssue, vulns []entities.Vulnerability) (*entities.SecurityScanResult, error) {
	var compliance *entities.ComplianceResult
	if o.policy != nil {
		issues = o.policy.FilterIssues(issues)
		vulns = o.policy.FilterVulnerabilities(vulns)
	}

	now := o.now()
	o.stampIssues(ctx, issues, now)
	for i := range vulns {
		if vulns[i].Status == "" {
			vulns[i].Status = entities.StatusOpen
		}
	}
	if o.policy != nil {
		c := o.policy.ValidatePolicyCompliance(issues, vulns)
		compliance = &c
	}

	// Leaving the active map here makes the scan no longer cancellable
	o.mu.Lock()
	res, ok := o.active[scanID]
	if !ok {
		snapshot := o.historyLocked(scanID)
		o.mu.Unlock()
		return snapshot, ErrScanCancelled
	}
	delete(o.active, scanID)
	o.history[scanID] = res
	final := *res
	o.mu.Unlock()

	final.Status = entities.ScanCompleted
	final.CompletedAt = now
	final.Duration = now.Sub(final.StartedAt)
	final.Issues = issues
	final.Vulnerabilities = vulns
	final.Summary = domainservices.Summarize(issues, vulns)
	final.Compliance = compliance

	if err := o.repo.SaveScanResult(ctx, &final); err != nil {
		err = fmt.Errorf("failed to persist scan: %w", err)
		final.Status = entities.ScanFailed
		final.Error = err.Error()
		o.record(res, final)

		o.logger.Error("scan failed", interfaces.F("scan_id", scanID), interfaces.Err(err))
		o.events.emit(ScanEvent{Type: EventScanFailed, ScanID: scanID, At: now, Result: &final, Err: err})
		return &final, err
	}

	o.record(res, final)
	o.logger.Info("scan completed",
		interfaces.F("scan_id", scanID),
		interfaces.F("issues", len(issues)),
		interfaces.F("vulnerabilities", len(vulns)),
		interfaces.F("duration", final.Duration),
	)
	o.events.emit(ScanEvent{Type: EventScanCompleted, ScanID: scanID, At: now, Result: &final})
	return &final, nil
}

// fail moves a scan to failed and emits scan.failed. A scan that was
// cancelled meanwhile stays cancelled and emits nothing.
func (o *ScanOrchestrator) fail(scanID string, cause error) (*entities.SecurityScanResult, error) {
	now := o.now()

	o.mu.Lock()
	res, ok := o.active[scanID]
	if !ok {
		snapshot := o.historyLocked(scanID)
		o.mu.Unlock()
		return snapshot, ErrScanCancelled
	}
	delete(o.active, scanID)
	res.Status = entities.ScanFailed
	res.Error = cause.Error()
	res.CompletedAt = now
	res.Duration = now.Sub(res.StartedAt)
	o.history[scanID] = res
	snapshot := *res
	o.mu.Unlock()

	o.logger.Error("scan failed", interfaces.F("scan_id", scanID), interfaces.Err(cause))
	o.events.emit(ScanEvent{Type: EventScanFailed, ScanID: scanID, At: now, Result: &snapshot, Err: cause})
	return &snapshot, cause
}

func (o *ScanOrchestrator) record(res *entities.SecurityScanResult, final entities.SecurityScanResult) {
	o.mu.Lock()
	*res = final
	o.mu.Unlock()
}

func (o *ScanOrchestrator) historyLocked(scanID string) *entities.SecurityScanResult {
	res, ok := o.history[scanID]
	if !ok {
		return nil
	}
	snapshot := *res
	return &snapshot
}

// stampIssues preserves first-seen times across rescans and marks every
// issue as scanned now
func (o *ScanOrchestrator) stampIssues(ctx context.Context, issues []entities.SecurityIssue, now time.Time) {
	if len(issues) == 0 {
		return
	}

	ids := make([]string, len(issues))
	for i, issue := range issues {
		ids[i] = issue.ID
	}
	known, err := o.repo.FindDiscoveredAt(ctx, ids)
	if err != nil {
		o.logger.Warn("failed to load first-seen times", interfaces.Err(err))
	}

	for i := range issues {
		if t, ok := known[issues[i].ID]; ok && !t.IsZero() {
			issues[i].DiscoveredAt = t
		} else if issues[i].DiscoveredAt.IsZero() {
			issues[i].DiscoveredAt = now
		}
		issues[i].LastScanned = now
	}
}

func incremental(res *entities.SecurityScanResult, part *services.IncrementalPartition, baselineScanID string) *entities.IncrementalScanResult {
	out := &entities.IncrementalScanResult{BaselineScanID: baselineScanID}
	if res != nil {
		out.SecurityScanResult = *res
	}
	if part != nil {
		out.ChangedFiles = len(part.ChangedEntities)
		out.SkippedFiles = len(part.SkippedEntities)
	}
	return out
}

// chunkEntities splits items into at most n chunks of ceil(len/n) entities
func chunkEntities(items []entities.Entity, n int) [][]entities.Entity {
	if n <= 0 {
		n = 1
	}
	size := (len(items) + n - 1) / n
	if size == 0 {
		return nil
	}

	chunks := make([][]entities.Entity, 0, n)
	for start := 0; start < len(items); start += size {
		end := min(start+size, len(items))
		chunks = append(chunks, items[start:end])
	}
	return chunks
}

// sastOptions narrows opts to the pattern categories the SAST scanner owns
func sastOptions(opts entities.ScanOptions) (entities.ScanOptions, bool) {
	var cats []entities.RuleCategory
	for _, c := range opts.EnabledCategories() {
		if c != entities.CategorySecrets && c != entities.CategoryDependency {
			cats = append(cats, c)
		}
	}
	opts.Categories = cats
	return opts, len(cats) > 0
}

func categoryEnabled(opts entities.ScanOptions, cat entities.RuleCategory) bool {
	for _, c := range opts.EnabledCategories() {
		if c == cat {
			return true
		}
	}
	return false
}

// retainForOptions applies the current request's filters to findings
// recorded by a baseline that may have used different options
func retainForOptions(issues []entities.SecurityIssue, vulns []entities.Vulnerability, opts entities.ScanOptions) ([]entities.SecurityIssue, []entities.Vulnerability) {
	enabled := make(map[entities.RuleCategory]bool)
	for _, c := range opts.EnabledCategories() {
		enabled[c] = true
	}

	var keptIssues []entities.SecurityIssue
	for _, issue := range issues {
		if enabled[issue.Category] &&
			issue.Severity.AtLeast(opts.SeverityThreshold) &&
			issue.Confidence >= opts.ConfidenceThreshold {
			keptIssues = append(keptIssues, issue)
		}
	}

	var keptVulns []entities.Vulnerability
	if enabled[entities.CategoryDependency] {
		for _, v := range vulns {
			if v.Severity.AtLeast(opts.SeverityThreshold) {
				keptVulns = append(keptVulns, v)
			}
		}
	}
	return keptIssues, keptVulns
}

func snapshots(m map[string]*entities.SecurityScanResult) []entities.SecurityScanResult {
	out := make([]entities.SecurityScanResult, 0, len(m))
	for _, res := range m {
		out = append(out, *res)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].StartedAt.Equal(out[j].StartedAt) {
			return out[i].ScanID < out[j].ScanID
		}
		return out[i].StartedAt.Before(out[j].StartedAt)
	})
	return out
}
