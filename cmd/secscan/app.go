package main

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"

	"github.com/spf13/afero"

	"github.com/Amicidal/sigmachad-sub001/internal/config"
	"github.com/Amicidal/sigmachad-sub001/internal/domain-adapters/cache"
	adapters "github.com/Amicidal/sigmachad-sub001/internal/domain-adapters/gateways"
	orchestrators "github.com/Amicidal/sigmachad-sub001/internal/domain-orchestrators"
	"github.com/Amicidal/sigmachad-sub001/internal/domain/entities"
	"github.com/Amicidal/sigmachad-sub001/internal/domain/interfaces"
	"github.com/Amicidal/sigmachad-sub001/internal/domain/interfaces/gateways"
	"github.com/Amicidal/sigmachad-sub001/internal/domain/interfaces/repositories"
	"github.com/Amicidal/sigmachad-sub001/internal/domain/interfaces/services"
	domainservices "github.com/Amicidal/sigmachad-sub001/internal/domain/services"
	"github.com/Amicidal/sigmachad-sub001/internal/external-adapters/filesystem"
	"github.com/Amicidal/sigmachad-sub001/internal/external-adapters/manifest"
	"github.com/Amicidal/sigmachad-sub001/internal/external-adapters/memory"
	"github.com/Amicidal/sigmachad-sub001/internal/external-adapters/sqlite"
	"github.com/Amicidal/sigmachad-sub001/internal/external-adapters/yaml"
)

// app holds the wired scanner for one project root
type app struct {
	root      string
	cfg       *config.Configuration
	logger    interfaces.Logger
	fs        afero.Fs
	engine    services.RuleEngine
	collector services.DependencyCollector
	policy    services.PolicyEngine
	repo      repositories.ScanRepository
	source    *filesystem.Source
	scanner   *orchestrators.ScanOrchestrator

	closers []func() error
}

// projectFs roots every scanner path at dir so entity paths stay relative
func projectFs(dir string) (string, afero.Fs, error) {
	root, err := filepath.Abs(dir)
	if err != nil {
		return "", nil, fmt.Errorf("failed to resolve %s: %w", dir, err)
	}
	ok, err := afero.IsDir(afero.NewOsFs(), root)
	if err != nil || !ok {
		return "", nil, fmt.Errorf("%s is not a directory", dir)
	}
	return root, afero.NewBasePathFs(afero.NewOsFs(), root), nil
}

// newCollector wires manifest parsing and vulnerability resolution
func newCollector(cfg *config.Configuration, fs afero.Fs, logger interfaces.Logger) (services.DependencyCollector, error) {
	vulnCache, err := cache.New[[]entities.Vulnerability](cfg.Cache.Capacity, cfg.Cache.TTL)
	if err != nil {
		return nil, fmt.Errorf("failed to create vulnerability cache: %w", err)
	}
	feed := adapters.NewOSVGateway(adapters.OSVConfig{
		QueryURL:   cfg.OSV.APIURL,
		BatchURL:   cfg.OSV.BatchURL,
		VulnsURL:   cfg.OSV.VulnsURL,
		Timeout:    cfg.OSV.Timeout,
		MaxRetries: cfg.OSV.MaxRetries,
	})
	resolver := domainservices.NewVulnerabilityResolver(feed, vulnCache, logger, domainservices.ResolverConfig{
		OSVEnabled: cfg.OSV.Enabled,
	})
	return domainservices.NewDependencyCollector(fs, manifest.Parsers(), resolver, logger), nil
}

// inRoot resolves a configured relative path against the project root
func inRoot(root, path string) string {
	if path == "" || filepath.IsAbs(path) {
		return path
	}
	return filepath.Join(root, path)
}

// newPolicyEngine loads policies and suppressions. Relative paths are
// resolved against the project root.
func newPolicyEngine(ctx context.Context, cfg *config.Configuration, root string, logger interfaces.Logger) (services.PolicyEngine, error) {
	osFs := afero.NewOsFs()

	var verifier gateways.SignatureVerifier
	if cfg.Policy.Keyring != "" {
		v, err := adapters.NewSignatureVerifier(inRoot(root, cfg.Policy.Keyring))
		if err != nil {
			return nil, err
		}
		verifier = v
	}

	source := yaml.NewFileSource(osFs, yaml.FileSourceConfig{
		PolicyPath:       inRoot(root, cfg.Policy.File),
		SignaturePath:    inRoot(root, cfg.Policy.Signature),
		PolicySHA256:     cfg.Policy.SHA256,
		SuppressionsPath: inRoot(root, cfg.Suppressions.File),
	}, verifier, adapters.NewChecksumCalculator(osFs), logger)

	return domainservices.NewPolicyEngine(ctx, source, logger)
}

// openRepository opens the scan database. A relative path is resolved
// against the project root.
func openRepository(ctx context.Context, cfg *config.Configuration, root string, logger interfaces.Logger) (repositories.ScanRepository, func() error, error) {
	if cfg.Database.Ephemeral {
		return memory.NewScanStore(), func() error { return nil }, nil
	}

	store, err := sqlite.Open(inRoot(root, cfg.Database.Path), logger)
	if err != nil {
		return nil, nil, err
	}
	if err := store.EnsureConstraints(ctx); err != nil {
		_ = store.Close()
		return nil, nil, err
	}
	return store, store.Close, nil
}

func newApp(ctx context.Context, opts *rootOptions, dir string) (*app, error) {
	cfg, logger := opts.cfg, opts.logger

	root, fs, err := projectFs(dir)
	if err != nil {
		return nil, err
	}

	a := &app{root: root, cfg: cfg, logger: logger, fs: fs}

	a.engine = domainservices.NewRuleEngine(fs, logger, domainservices.RuleEngineConfig{
		MaxFileSize: cfg.Scan.MaxFileSize,
	})
	if a.collector, err = newCollector(cfg, fs, logger); err != nil {
		return nil, err
	}
	if a.policy, err = newPolicyEngine(ctx, cfg, root, logger); err != nil {
		return nil, err
	}

	repo, closeRepo, err := openRepository(ctx, cfg, root, logger)
	if err != nil {
		return nil, err
	}
	a.repo = repo
	a.closers = append(a.closers, closeRepo)

	states, err := cache.New[*entities.IncrementalScanState](cfg.Incremental.StateCacheCapacity, cfg.Cache.TTL)
	if err != nil {
		_ = a.Close()
		return nil, fmt.Errorf("failed to create state cache: %w", err)
	}
	detector := domainservices.NewIncrementalDetector(adapters.NewChecksumCalculator(fs), repo, states, logger, domainservices.IncrementalConfig{
		ForceRescanAfter: cfg.Incremental.ForceRescanAfter,
	})

	a.source, err = filesystem.NewSource(fs, filesystem.SourceConfig{Exclude: cfg.Scan.Exclude}, logger)
	if err != nil {
		_ = a.Close()
		return nil, err
	}

	a.scanner = orchestrators.NewScanOrchestrator(
		a.engine,
		adapters.NewSecretsScanner(a.engine),
		a.collector,
		a.policy,
		detector,
		repo,
		a.source,
		logger,
		orchestrators.ScanOrchestratorConfig{
			ParallelThreshold: cfg.Scan.ParallelThreshold,
			MaxConcurrent:     cfg.Scan.MaxConcurrent,
			RecentFilesLimit:  cfg.Scan.RecentFilesLimit,
		},
	)
	if err := a.scanner.Initialize(ctx); err != nil {
		_ = a.Close()
		return nil, err
	}

	a.scanner.Subscribe(func(ev orchestrators.ScanEvent) {
		fields := []interfaces.Field{interfaces.F("scan_id", ev.ScanID), interfaces.F("event", string(ev.Type))}
		if ev.Err != nil {
			logger.Warn("scan finished", append(fields, interfaces.Err(ev.Err))...)
			return
		}
		logger.Info("scan finished", fields...)
	})
	return a, nil
}

// Close releases the database handle
func (a *app) Close() error {
	var errs []error
	for _, c := range a.closers {
		errs = append(errs, c())
	}
	a.closers = nil
	return errors.Join(errs...)
}

// latestBaseline returns the newest completed scan that recorded
// incremental state, or "" when none exists
func latestBaseline(ctx context.Context, repo repositories.ScanRepository) (string, error) {
	scans, err := repo.ListScans(ctx, 0)
	if err != nil {
		return "", err
	}
	for _, s := range scans {
		if s.Status != entities.ScanCompleted {
			continue
		}
		_, err := repo.LoadScanState(ctx, s.ScanID)
		if err == nil {
			return s.ScanID, nil
		}
		if !errors.Is(err, entities.ErrStateNotFound) {
			return "", err
		}
	}
	return "", nil
}
