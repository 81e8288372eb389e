package orchestrators

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/spf13/afero"

	"github.com/Amicidal/sigmachad-sub001/internal/domain-adapters/cache"
	adapters "github.com/Amicidal/sigmachad-sub001/internal/domain-adapters/gateways"
	"github.com/Amicidal/sigmachad-sub001/internal/domain/entities"
	"github.com/Amicidal/sigmachad-sub001/internal/domain/interfaces"
	"github.com/Amicidal/sigmachad-sub001/internal/domain/interfaces/services"
	domainservices "github.com/Amicidal/sigmachad-sub001/internal/domain/services"
	"github.com/Amicidal/sigmachad-sub001/internal/external-adapters/manifest"
	"github.com/Amicidal/sigmachad-sub001/internal/external-adapters/memory"
)

const sqlFixture = `const db = require('./db');

function getUser(userId) {
  const query = "SELECT * FROM users WHERE id = " + userId;
  return db.query(query);
}
`

const packageFixture = `{
  "name": "fixture",
  "version": "1.0.0",
  "dependencies": {
    "lodash": "4.17.10"
  }
}
`

// staticSource serves a fixed entity list
type staticSource struct {
	items []entities.Entity
	err   error
}

func (s *staticSource) Resolve(_ context.Context, ids []string) ([]entities.Entity, error) {
	if s.err != nil {
		return nil, s.err
	}
	byID := make(map[string]entities.Entity, len(s.items))
	for _, item := range s.items {
		byID[item.ID] = item
	}
	var out []entities.Entity
	for _, id := range ids {
		if item, ok := byID[id]; ok {
			out = append(out, item)
		}
	}
	return out, nil
}

func (s *staticSource) Recent(_ context.Context, limit int) ([]entities.Entity, error) {
	if s.err != nil {
		return nil, s.err
	}
	if len(s.items) > limit {
		return s.items[:limit], nil
	}
	return s.items, nil
}

// failingStore rejects every scan write
type failingStore struct {
	*memory.ScanStore
}

func (f failingStore) SaveScanResult(context.Context, *entities.SecurityScanResult) error {
	return errors.New("disk full")
}

// eventRecorder collects emitted events
type eventRecorder struct {
	mu     sync.Mutex
	events []ScanEvent
}

func (r *eventRecorder) handle(ev ScanEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
}

func (r *eventRecorder) types() []EventType {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]EventType, len(r.events))
	for i, ev := range r.events {
		out[i] = ev.Type
	}
	return out
}

type fixture struct {
	fs     afero.Fs
	repo   *memory.ScanStore
	source *staticSource
	policy services.PolicyEngine
	orch   *ScanOrchestrator
}

func fileEntity(path string) entities.Entity {
	return entities.Entity{ID: "file:" + path, Type: entities.EntityFile, Path: path}
}

// newFixture wires the real scanners over an in-memory filesystem with the
// remote feed disabled
func newFixture(t *testing.T, files map[string]string, cfg ScanOrchestratorConfig) *fixture {
	t.Helper()

	fs := afero.NewMemMapFs()
	paths := make([]string, 0, len(files))
	for path, content := range files {
		if err := afero.WriteFile(fs, path, []byte(content), 0o644); err != nil {
			t.Fatalf("failed to write %s: %v", path, err)
		}
		paths = append(paths, path)
	}
	sort.Strings(paths)

	source := &staticSource{}
	for _, path := range paths {
		source.items = append(source.items, fileEntity(path))
	}

	logger := &interfaces.NoOpLogger{}
	engine := domainservices.NewRuleEngine(fs, logger, domainservices.RuleEngineConfig{})

	vulnCache, err := cache.New[[]entities.Vulnerability](100, 24*time.Hour)
	if err != nil {
		t.Fatal(err)
	}
	resolver := domainservices.NewVulnerabilityResolver(nil, vulnCache, logger, domainservices.ResolverConfig{})
	collector := domainservices.NewDependencyCollector(fs, manifest.Parsers(), resolver, logger)

	policy, err := domainservices.NewPolicyEngine(context.Background(), nil, logger)
	if err != nil {
		t.Fatal(err)
	}

	stateCache, err := cache.New[*entities.IncrementalScanState](16, time.Hour)
	if err != nil {
		t.Fatal(err)
	}
	repo := memory.NewScanStore()
	detector := domainservices.NewIncrementalDetector(adapters.NewChecksumCalculator(fs), repo, stateCache, logger, domainservices.IncrementalConfig{})

	orch := NewScanOrchestrator(engine, adapters.NewSecretsScanner(engine), collector, policy, detector, repo, source, logger, cfg)
	return &fixture{fs: fs, repo: repo, source: source, policy: policy, orch: orch}
}

func (f *fixture) ids() []string {
	ids := make([]string, len(f.source.items))
	for i, item := range f.source.items {
		ids[i] = item.ID
	}
	return ids
}

func issueIDs(issues []entities.SecurityIssue) []string {
	ids := make([]string, len(issues))
	for i, issue := range issues {
		ids[i] = issue.ID
	}
	sort.Strings(ids)
	return ids
}

func triples(issues []entities.SecurityIssue) []string {
	out := make([]string, len(issues))
	for i, issue := range issues {
		out[i] = fmt.Sprintf("%s|%s|%d", issue.RuleID, issue.EntityID, issue.Line)
	}
	sort.Strings(out)
	return out
}

func equalStrings(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func TestScanOrchestrator_EndToEnd(t *testing.T) {
	f := newFixture(t, map[string]string{
		"/repo/src/app.js":   sqlFixture,
		"/repo/package.json": packageFixture,
	}, ScanOrchestratorConfig{})
	rec := &eventRecorder{}
	f.orch.Subscribe(rec.handle)
	ctx := context.Background()

	if err := f.orch.Initialize(ctx); err != nil {
		t.Fatalf("Initialize() error = %v", err)
	}

	result, err := f.orch.PerformScan(ctx, entities.ScanRequest{
		EntityIDs: f.ids(),
		Options:   entities.DefaultScanOptions(),
	})
	if err != nil {
		t.Fatalf("PerformScan() error = %v", err)
	}

	if result.Status != entities.ScanCompleted {
		t.Errorf("Status = %s, want completed", result.Status)
	}
	if len(result.Issues) != 1 {
		t.Fatalf("got %d issues, want 1: %v", len(result.Issues), triples(result.Issues))
	}
	if issue := result.Issues[0]; issue.RuleID != "SQL_INJECTION" || issue.Severity != entities.SeverityCritical {
		t.Errorf("issue = %s/%s, want SQL_INJECTION/critical", issue.RuleID, issue.Severity)
	}

	if len(result.Vulnerabilities) != 1 {
		t.Fatalf("got %d vulnerabilities, want 1: %+v", len(result.Vulnerabilities), result.Vulnerabilities)
	}
	vuln := result.Vulnerabilities[0]
	if vuln.PackageName != "lodash" || vuln.VulnerabilityID != "CVE-2021-23337" || vuln.Severity != entities.SeverityHigh {
		t.Errorf("vulnerability = %s %s %s, want lodash CVE-2021-23337 high", vuln.PackageName, vuln.VulnerabilityID, vuln.Severity)
	}
	if vuln.ManifestPath != "/repo/package.json" {
		t.Errorf("ManifestPath = %s, want /repo/package.json", vuln.ManifestPath)
	}

	if result.Summary.TotalIssues != 1 || result.Summary.TotalVulnerabilities != 1 {
		t.Errorf("Summary = %+v", result.Summary)
	}
	if result.Compliance == nil || result.Compliance.Compliant {
		t.Errorf("Compliance = %+v, want a blocking violation for the critical issue", result.Compliance)
	}
	if !domainservices.ShouldBlock(result) {
		t.Error("ShouldBlock() = false, want true")
	}

	stored, err := f.repo.GetScan(ctx, result.ScanID)
	if err != nil {
		t.Fatalf("scan was not persisted: %v", err)
	}
	if len(stored.Issues) != 1 || len(stored.Vulnerabilities) != 1 {
		t.Errorf("persisted %d issues, %d vulnerabilities; want 1, 1", len(stored.Issues), len(stored.Vulnerabilities))
	}

	if got := rec.types(); len(got) != 1 || got[0] != EventScanCompleted {
		t.Errorf("events = %v, want [scan.completed]", got)
	}
	if active := f.orch.ActiveScans(); len(active) != 0 {
		t.Errorf("ActiveScans() = %d, want 0", len(active))
	}
	if history := f.orch.History(); len(history) != 1 || history[0].Status != entities.ScanCompleted {
		t.Errorf("History() = %+v", history)
	}
}

func TestScanOrchestrator_RecentFilesWhenNoIDs(t *testing.T) {
	f := newFixture(t, map[string]string{
		"/repo/a.js": sqlFixture,
		"/repo/b.js": sqlFixture,
	}, ScanOrchestratorConfig{RecentFilesLimit: 1})

	result, err := f.orch.PerformScan(context.Background(), entities.ScanRequest{Options: entities.DefaultScanOptions()})
	if err != nil {
		t.Fatalf("PerformScan() error = %v", err)
	}
	if len(result.Issues) != 1 || result.Issues[0].FilePath != "/repo/a.js" {
		t.Errorf("issues = %v, want one from /repo/a.js", triples(result.Issues))
	}
}

func TestScanOrchestrator_ScannerSelection(t *testing.T) {
	f := newFixture(t, map[string]string{
		"/repo/src/app.js":   sqlFixture,
		"/repo/package.json": packageFixture,
	}, ScanOrchestratorConfig{})

	tests := []struct {
		name      string
		opts      func(o *entities.ScanOptions)
		wantIssue int
		wantVulns int
	}{
		{"all", func(*entities.ScanOptions) {}, 1, 1},
		{"sast only", func(o *entities.ScanOptions) { o.IncludeSecrets, o.IncludeDependencies = false, false }, 1, 0},
		{"dependencies only", func(o *entities.ScanOptions) { o.IncludeSAST, o.IncludeSecrets = false, false }, 0, 1},
		{"critical threshold", func(o *entities.ScanOptions) { o.SeverityThreshold = entities.SeverityCritical }, 1, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			opts := entities.DefaultScanOptions()
			tt.opts(&opts)
			result, err := f.orch.PerformScan(context.Background(), entities.ScanRequest{EntityIDs: f.ids(), Options: opts})
			if err != nil {
				t.Fatalf("PerformScan() error = %v", err)
			}
			if len(result.Issues) != tt.wantIssue || len(result.Vulnerabilities) != tt.wantVulns {
				t.Errorf("got %d issues, %d vulnerabilities; want %d, %d",
					len(result.Issues), len(result.Vulnerabilities), tt.wantIssue, tt.wantVulns)
			}
		})
	}
}

func TestScanOrchestrator_ParallelMatchesSequential(t *testing.T) {
	snippets := []string{
		sqlFixture,
		"el.innerHTML = userInput;\n",
		"const h = crypto.createHash('md5');\neval(code);\n",
		"// nothing to see\n",
		"const a = crypto.createHash('sha1');\nconst q = \"DELETE FROM t WHERE id = \" + id;\n",
	}
	files := make(map[string]string)
	for i := 0; i < 25; i++ {
		files[fmt.Sprintf("/repo/src/f%02d.js", i)] = snippets[i%len(snippets)]
	}

	sequential := newFixture(t, files, ScanOrchestratorConfig{ParallelThreshold: 1000})
	seqResult, err := sequential.orch.PerformScan(context.Background(), entities.ScanRequest{
		EntityIDs: sequential.ids(),
		Options:   entities.DefaultScanOptions(),
	})
	if err != nil {
		t.Fatalf("sequential PerformScan() error = %v", err)
	}
	want := triples(seqResult.Issues)
	if len(want) == 0 {
		t.Fatal("fixture produced no issues")
	}

	for _, maxConcurrent := range []int{1, 2, 3, 7, 25, 40} {
		t.Run(fmt.Sprintf("max_concurrent_%d", maxConcurrent), func(t *testing.T) {
			parallel := newFixture(t, files, ScanOrchestratorConfig{})
			opts := entities.DefaultScanOptions()
			opts.MaxConcurrent = maxConcurrent

			result, err := parallel.orch.PerformScan(context.Background(), entities.ScanRequest{EntityIDs: parallel.ids(), Options: opts})
			if err != nil {
				t.Fatalf("PerformScan() error = %v", err)
			}
			if got := triples(result.Issues); !equalStrings(got, want) {
				t.Errorf("parallel triples differ\n got: %v\nwant: %v", got, want)
			}
		})
	}
}

// countingScanner records how many times it was invoked
type countingScanner struct {
	mu    sync.Mutex
	calls int
	sizes []int
}

func (c *countingScanner) Scan(_ context.Context, items []entities.Entity, _ entities.ScanOptions) ([]entities.SecurityIssue, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls++
	c.sizes = append(c.sizes, len(items))
	return nil, nil
}

func TestScanOrchestrator_ExecutionMode(t *testing.T) {
	tests := []struct {
		name          string
		entities      int
		maxConcurrent int
		wantCalls     int
	}{
		{"small set runs once", 5, 0, 1},
		{"threshold is exclusive", 10, 0, 1},
		{"large set is chunked", 11, 0, 4},
		{"override forces chunks", 5, 2, 2},
		{"more workers than entities", 3, 8, 3},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			source := &staticSource{}
			for i := 0; i < tt.entities; i++ {
				source.items = append(source.items, fileEntity(fmt.Sprintf("/repo/%d.js", i)))
			}
			scanner := &countingScanner{}
			orch := NewScanOrchestrator(scanner, nil, nil, nil, nil, memory.NewScanStore(), source, nil, ScanOrchestratorConfig{})

			opts := entities.DefaultScanOptions()
			opts.MaxConcurrent = tt.maxConcurrent
			if _, err := orch.PerformScan(context.Background(), entities.ScanRequest{Options: opts}); err != nil {
				t.Fatalf("PerformScan() error = %v", err)
			}
			if scanner.calls != tt.wantCalls {
				t.Errorf("scanner calls = %d (sizes %v), want %d", scanner.calls, scanner.sizes, tt.wantCalls)
			}
			total := 0
			for _, n := range scanner.sizes {
				total += n
			}
			if total != tt.entities {
				t.Errorf("scanned %d entities, want %d", total, tt.entities)
			}
		})
	}
}

func TestChunkEntities(t *testing.T) {
	items := make([]entities.Entity, 25)
	tests := []struct {
		n    int
		want []int
	}{
		{4, []int{7, 7, 7, 4}},
		{5, []int{5, 5, 5, 5, 5}},
		{1, []int{25}},
		{30, nil}, // one entity per chunk
		{0, []int{25}},
	}

	for _, tt := range tests {
		chunks := chunkEntities(items, tt.n)
		var sizes []int
		for _, c := range chunks {
			sizes = append(sizes, len(c))
		}
		if tt.want == nil {
			if len(chunks) != 25 {
				t.Errorf("chunkEntities(25, %d) = %d chunks, want 25", tt.n, len(chunks))
			}
			continue
		}
		if fmt.Sprint(sizes) != fmt.Sprint(tt.want) {
			t.Errorf("chunkEntities(25, %d) sizes = %v, want %v", tt.n, sizes, tt.want)
		}
	}

	if chunks := chunkEntities(nil, 4); len(chunks) != 0 {
		t.Errorf("chunkEntities(nil) = %v, want none", chunks)
	}
}

func TestScanOrchestrator_IncrementalMatchesFullScan(t *testing.T) {
	const (
		fileA        = "/repo/src/a.js"
		fileB        = "/repo/src/b.js"
		fileC        = "/repo/src/c.js"
		fileManifest = "/repo/package.json"
	)
	f := newFixture(t, map[string]string{
		fileA:        sqlFixture,
		fileB:        "el.innerHTML = userInput;\n",
		fileManifest: packageFixture,
	}, ScanOrchestratorConfig{})
	ctx := context.Background()
	opts := entities.DefaultScanOptions()

	baseline, err := f.orch.PerformIncrementalScan(ctx, entities.ScanRequest{EntityIDs: f.ids(), Options: opts}, "")
	if err != nil {
		t.Fatalf("baseline scan error = %v", err)
	}
	if baseline.ChangedFiles != 3 || baseline.SkippedFiles != 0 {
		t.Errorf("baseline changed/skipped = %d/%d, want 3/0", baseline.ChangedFiles, baseline.SkippedFiles)
	}

	_ = afero.WriteFile(f.fs, fileB, []byte("el.innerHTML = userInput;\nconst h = crypto.createHash('md5');\n"), 0o644)
	_ = afero.WriteFile(f.fs, fileC, []byte("eval(code);\n"), 0o644)
	f.source.items = append(f.source.items, fileEntity(fileC))

	next, err := f.orch.PerformIncrementalScan(ctx, entities.ScanRequest{EntityIDs: f.ids(), Options: opts}, baseline.ScanID)
	if err != nil {
		t.Fatalf("incremental scan error = %v", err)
	}
	if next.ChangedFiles != 2 || next.SkippedFiles != 2 {
		t.Errorf("changed/skipped = %d/%d, want 2/2", next.ChangedFiles, next.SkippedFiles)
	}
	if next.BaselineScanID != baseline.ScanID {
		t.Errorf("BaselineScanID = %s, want %s", next.BaselineScanID, baseline.ScanID)
	}

	full, err := f.orch.PerformScan(ctx, entities.ScanRequest{EntityIDs: f.ids(), Options: opts})
	if err != nil {
		t.Fatalf("full scan error = %v", err)
	}

	if got, want := issueIDs(next.Issues), issueIDs(full.Issues); !equalStrings(got, want) {
		t.Errorf("incremental issues = %v\nfull issues = %v", got, want)
	}
	if len(next.Vulnerabilities) != 1 || len(full.Vulnerabilities) != 1 {
		t.Errorf("vulnerabilities incremental=%d full=%d, want 1 each", len(next.Vulnerabilities), len(full.Vulnerabilities))
	}
}

func vulnIDs(vulns []entities.Vulnerability) []string {
	ids := make([]string, len(vulns))
	for i, v := range vulns {
		ids[i] = v.ID
	}
	sort.Strings(ids)
	return ids
}

func TestScanOrchestrator_SharedDependencyAcrossManifests(t *testing.T) {
	const (
		manifestA = "/repo/a/package.json"
		manifestZ = "/repo/z/package.json"
	)
	files := map[string]string{
		manifestA: packageFixture,
		manifestZ: packageFixture,
	}
	for i := 0; i < 12; i++ {
		files[fmt.Sprintf("/repo/src/f%02d.js", i)] = "// nothing to see\n"
	}
	ctx := context.Background()
	opts := entities.DefaultScanOptions()

	sequential := newFixture(t, files, ScanOrchestratorConfig{ParallelThreshold: 1000})
	seq, err := sequential.orch.PerformScan(ctx, entities.ScanRequest{EntityIDs: sequential.ids(), Options: opts})
	if err != nil {
		t.Fatalf("sequential PerformScan() error = %v", err)
	}
	want := vulnIDs(seq.Vulnerabilities)
	if len(want) == 0 || len(want)%2 != 0 {
		t.Fatalf("sequential vulnerabilities = %v, want one set per manifest", want)
	}
	manifests := map[string]int{}
	for _, v := range seq.Vulnerabilities {
		manifests[v.ManifestPath]++
	}
	if manifests[manifestA] == 0 || manifests[manifestA] != manifests[manifestZ] {
		t.Errorf("findings per manifest = %v", manifests)
	}

	t.Run("chunked", func(t *testing.T) {
		parallel := newFixture(t, files, ScanOrchestratorConfig{})
		chunked := opts
		chunked.MaxConcurrent = 2
		res, err := parallel.orch.PerformScan(ctx, entities.ScanRequest{EntityIDs: parallel.ids(), Options: chunked})
		if err != nil {
			t.Fatalf("PerformScan() error = %v", err)
		}
		if got := vulnIDs(res.Vulnerabilities); !equalStrings(got, want) {
			t.Errorf("chunked vulnerabilities = %v\nwant %v", got, want)
		}
		if res.Summary.TotalVulnerabilities != seq.Summary.TotalVulnerabilities {
			t.Errorf("TotalVulnerabilities = %d, want %d", res.Summary.TotalVulnerabilities, seq.Summary.TotalVulnerabilities)
		}
	})

	t.Run("incremental", func(t *testing.T) {
		f := newFixture(t, files, ScanOrchestratorConfig{})
		baseline, err := f.orch.PerformIncrementalScan(ctx, entities.ScanRequest{EntityIDs: f.ids(), Options: opts}, "")
		if err != nil {
			t.Fatalf("baseline scan error = %v", err)
		}

		_ = afero.WriteFile(f.fs, manifestZ, []byte(packageFixture+"\n"), 0o644)
		next, err := f.orch.PerformIncrementalScan(ctx, entities.ScanRequest{EntityIDs: f.ids(), Options: opts}, baseline.ScanID)
		if err != nil {
			t.Fatalf("incremental scan error = %v", err)
		}
		if next.ChangedFiles != 1 {
			t.Errorf("ChangedFiles = %d, want 1", next.ChangedFiles)
		}

		full, err := f.orch.PerformScan(ctx, entities.ScanRequest{EntityIDs: f.ids(), Options: opts})
		if err != nil {
			t.Fatalf("full scan error = %v", err)
		}
		got := vulnIDs(next.Vulnerabilities)
		if !equalStrings(got, vulnIDs(full.Vulnerabilities)) || !equalStrings(got, want) {
			t.Errorf("incremental vulnerabilities = %v\nfull = %v", got, vulnIDs(full.Vulnerabilities))
		}
		if next.Summary.TotalVulnerabilities != full.Summary.TotalVulnerabilities {
			t.Errorf("summary incremental=%d full=%d", next.Summary.TotalVulnerabilities, full.Summary.TotalVulnerabilities)
		}

		stored, err := f.repo.GetScan(ctx, next.ScanID)
		if err != nil {
			t.Fatal(err)
		}
		if len(stored.Vulnerabilities) != len(next.Vulnerabilities) {
			t.Errorf("stored %d vulnerabilities, returned %d", len(stored.Vulnerabilities), len(next.Vulnerabilities))
		}
	})
}

func TestScanOrchestrator_IncrementalWithoutDetector(t *testing.T) {
	orch := NewScanOrchestrator(&countingScanner{}, nil, nil, nil, nil, memory.NewScanStore(), &staticSource{}, nil, ScanOrchestratorConfig{})

	res, err := orch.PerformIncrementalScan(context.Background(), entities.ScanRequest{}, "base")
	if err == nil {
		t.Fatal("expected an error without a change detector")
	}
	if res.Status != entities.ScanFailed {
		t.Errorf("Status = %s, want failed", res.Status)
	}
}

func TestScanOrchestrator_PreservesDiscoveredAt(t *testing.T) {
	f := newFixture(t, map[string]string{"/repo/app.js": sqlFixture}, ScanOrchestratorConfig{})
	ctx := context.Background()
	req := entities.ScanRequest{EntityIDs: f.ids(), Options: entities.DefaultScanOptions()}

	first, err := f.orch.PerformScan(ctx, req)
	if err != nil {
		t.Fatal(err)
	}
	discovered := first.Issues[0].DiscoveredAt

	later := time.Now().Add(time.Hour)
	f.orch.now = func() time.Time { return later }

	second, err := f.orch.PerformScan(ctx, req)
	if err != nil {
		t.Fatal(err)
	}
	if second.Issues[0].ID != first.Issues[0].ID {
		t.Fatalf("issue id changed between identical scans")
	}
	if !second.Issues[0].DiscoveredAt.Equal(discovered) {
		t.Errorf("DiscoveredAt = %v, want %v", second.Issues[0].DiscoveredAt, discovered)
	}
	if !second.Issues[0].LastScanned.Equal(later) {
		t.Errorf("LastScanned = %v, want %v", second.Issues[0].LastScanned, later)
	}
}

func TestScanOrchestrator_AppliesSuppressions(t *testing.T) {
	f := newFixture(t, map[string]string{"/repo/app.js": sqlFixture}, ScanOrchestratorConfig{})
	ctx := context.Background()

	if _, err := f.policy.AddSuppression(ctx, entities.SuppressionRule{
		Type:   entities.SuppressIssue,
		Target: entities.SuppressionTarget{RuleID: "SQL_INJECTION"},
		Reason: "accepted risk",
	}); err != nil {
		t.Fatalf("AddSuppression() error = %v", err)
	}

	result, err := f.orch.PerformScan(ctx, entities.ScanRequest{EntityIDs: f.ids(), Options: entities.DefaultScanOptions()})
	if err != nil {
		t.Fatalf("PerformScan() error = %v", err)
	}
	if len(result.Issues) != 0 {
		t.Errorf("issues = %v, want none", triples(result.Issues))
	}
	if result.Compliance == nil || !result.Compliance.Compliant {
		t.Errorf("Compliance = %+v, want compliant", result.Compliance)
	}
}

func TestScanOrchestrator_PersistenceFailure(t *testing.T) {
	source := &staticSource{items: []entities.Entity{fileEntity("/repo/a.js")}}
	orch := NewScanOrchestrator(&countingScanner{}, nil, nil, nil, nil, failingStore{memory.NewScanStore()}, source, nil, ScanOrchestratorConfig{})
	rec := &eventRecorder{}
	orch.Subscribe(rec.handle)

	result, err := orch.PerformScan(context.Background(), entities.ScanRequest{Options: entities.DefaultScanOptions()})
	if err == nil {
		t.Fatal("expected an error when persistence fails")
	}
	if result.Status != entities.ScanFailed || result.Error == "" {
		t.Errorf("result = %s %q, want failed with an error", result.Status, result.Error)
	}
	if result.CompletedAt.IsZero() {
		t.Error("CompletedAt not recorded")
	}
	if got := rec.types(); len(got) != 1 || got[0] != EventScanFailed {
		t.Errorf("events = %v, want [scan.failed]", got)
	}
	if history := orch.History(); len(history) != 1 || history[0].Status != entities.ScanFailed {
		t.Errorf("History() = %+v", history)
	}
	if !domainservices.ShouldBlock(result) {
		t.Error("a failed scan must block")
	}
}

func TestScanOrchestrator_EntityResolutionFailure(t *testing.T) {
	source := &staticSource{err: errors.New("index unavailable")}
	orch := NewScanOrchestrator(&countingScanner{}, nil, nil, nil, nil, memory.NewScanStore(), source, nil, ScanOrchestratorConfig{})

	result, err := orch.PerformScan(context.Background(), entities.ScanRequest{})
	if err == nil || result.Status != entities.ScanFailed {
		t.Errorf("PerformScan() = %v, %v; want failed", result.Status, err)
	}
}

// blockingScanner parks until released so a scan can be cancelled mid-flight
type blockingScanner struct {
	started chan struct{}
	release chan struct{}
}

func (b *blockingScanner) Scan(_ context.Context, items []entities.Entity, _ entities.ScanOptions) ([]entities.SecurityIssue, error) {
	b.started <- struct{}{}
	<-b.release
	return []entities.SecurityIssue{{ID: "sec_x", RuleID: "X", EntityID: items[0].ID}}, nil
}

func TestScanOrchestrator_Cancel(t *testing.T) {
	scanner := &blockingScanner{started: make(chan struct{}, 1), release: make(chan struct{})}
	repo := memory.NewScanStore()
	source := &staticSource{items: []entities.Entity{fileEntity("/repo/a.js")}}
	orch := NewScanOrchestrator(scanner, nil, nil, nil, nil, repo, source, nil, ScanOrchestratorConfig{})
	rec := &eventRecorder{}
	orch.Subscribe(rec.handle)

	type outcome struct {
		res *entities.SecurityScanResult
		err error
	}
	done := make(chan outcome, 1)
	go func() {
		res, err := orch.PerformScan(context.Background(), entities.ScanRequest{Options: entities.DefaultScanOptions()})
		done <- outcome{res, err}
	}()

	<-scanner.started
	active := orch.ActiveScans()
	if len(active) != 1 || active[0].Status != entities.ScanRunning {
		t.Fatalf("ActiveScans() = %+v, want one running scan", active)
	}
	scanID := active[0].ScanID

	if err := orch.CancelScan(scanID); err != nil {
		t.Fatalf("CancelScan() error = %v", err)
	}
	close(scanner.release)
	out := <-done

	if !errors.Is(out.err, ErrScanCancelled) {
		t.Errorf("PerformScan() error = %v, want ErrScanCancelled", out.err)
	}
	if out.res == nil || out.res.Status != entities.ScanCancelled {
		t.Errorf("result = %+v, want cancelled", out.res)
	}
	if scans, _ := repo.ListScans(context.Background(), 0); len(scans) != 0 {
		t.Errorf("cancelled scan was persisted: %+v", scans)
	}
	if got := rec.types(); len(got) != 1 || got[0] != EventScanCancelled {
		t.Errorf("events = %v, want [scan.cancelled]", got)
	}

	if err := orch.CancelScan(scanID); !errors.Is(err, entities.ErrScanNotRunning) {
		t.Errorf("second CancelScan() error = %v, want ErrScanNotRunning", err)
	}
	if err := orch.CancelScan("unknown"); !errors.Is(err, entities.ErrScanNotFound) {
		t.Errorf("CancelScan(unknown) error = %v, want ErrScanNotFound", err)
	}

	got, err := orch.GetScan(context.Background(), scanID)
	if err != nil || got.Status != entities.ScanCancelled {
		t.Errorf("GetScan() = %+v, %v; want cancelled", got, err)
	}
}

func TestScanOrchestrator_GetScanFallsBackToRepository(t *testing.T) {
	repo := memory.NewScanStore()
	_ = repo.SaveScanResult(context.Background(), &entities.SecurityScanResult{ScanID: "old", Status: entities.ScanCompleted})
	orch := NewScanOrchestrator(nil, nil, nil, nil, nil, repo, &staticSource{}, nil, ScanOrchestratorConfig{})

	got, err := orch.GetScan(context.Background(), "old")
	if err != nil || got.ScanID != "old" {
		t.Errorf("GetScan(old) = %+v, %v", got, err)
	}
	if _, err := orch.GetScan(context.Background(), "missing"); !errors.Is(err, entities.ErrScanNotFound) {
		t.Errorf("GetScan(missing) error = %v, want ErrScanNotFound", err)
	}
}

func TestScanOrchestrator_Unsubscribe(t *testing.T) {
	source := &staticSource{items: []entities.Entity{fileEntity("/repo/a.js")}}
	orch := NewScanOrchestrator(&countingScanner{}, nil, nil, nil, nil, memory.NewScanStore(), source, nil, ScanOrchestratorConfig{})

	kept, dropped := &eventRecorder{}, &eventRecorder{}
	orch.Subscribe(kept.handle)
	unsubscribe := orch.Subscribe(dropped.handle)
	unsubscribe()
	unsubscribe()

	if _, err := orch.PerformScan(context.Background(), entities.ScanRequest{}); err != nil {
		t.Fatal(err)
	}
	if len(kept.types()) != 1 {
		t.Errorf("subscribed handler got %v", kept.types())
	}
	if len(dropped.types()) != 0 {
		t.Errorf("unsubscribed handler got %v", dropped.types())
	}
}
