package services

import (
	"context"
	"fmt"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/spf13/afero"

	"github.com/Amicidal/sigmachad-sub001/internal/domain/entities"
	"github.com/Amicidal/sigmachad-sub001/internal/domain/interfaces"
	"github.com/Amicidal/sigmachad-sub001/internal/domain/interfaces/gateways"
	"github.com/Amicidal/sigmachad-sub001/internal/domain/interfaces/services"
)

// knownUnsupported are manifest and lock files recognized but not parsed
var knownUnsupported = map[string]bool{
	"package-lock.json": true,
	"yarn.lock":         true,
	"pnpm-lock.yaml":    true,
	"Pipfile.lock":      true,
	"poetry.lock":       true,
	"pyproject.toml":    true,
	"setup.py":          true,
	"Gemfile.lock":      true,
	"go.sum":            true,
	"Cargo.lock":        true,
	"composer.lock":     true,
	"build.gradle.kts":  true,
}

type manifestEntry struct {
	modTime time.Time
	size    int64
	deps    []entities.DependencyInfo
}

type dependencyCollector struct {
	fs       afero.Fs
	parsers  map[string]gateways.ManifestParser
	resolver services.VulnerabilityResolver
	logger   interfaces.Logger
	memo     sync.Map // path -> manifestEntry
}

// NewDependencyCollector creates a collector dispatching manifests by exact
// basename to parsers
func NewDependencyCollector(fs afero.Fs, parsers map[string]gateways.ManifestParser, resolver services.VulnerabilityResolver, logger interfaces.Logger) services.DependencyCollector {
	return &dependencyCollector{
		fs:       fs,
		parsers:  parsers,
		resolver: resolver,
		logger:   interfaces.OrNoOp(logger),
	}
}

// Scan collects dependencies from manifest entities and resolves them to
// vulnerabilities, one batch per ecosystem. Each manifest declaring a
// vulnerable version gets its own finding, so the result for a manifest does
// not depend on which other manifests share the scan.
func (c *dependencyCollector) Scan(ctx context.Context, items []entities.Entity, opts entities.ScanOptions) ([]entities.Vulnerability, error) {
	deps := c.collect(ctx, items, func(dep entities.DependencyInfo) string {
		return dep.Key() + "|" + dep.ManifestPath
	})

	byEcosystem := make(map[entities.Ecosystem][]entities.DependencyInfo)
	for _, dep := range deps {
		if dep.Version == "" {
			c.logger.Debug("skipping dependency without a concrete version",
				interfaces.F("package", dep.Name),
				interfaces.F("manifest", dep.ManifestPath),
			)
			continue
		}
		byEcosystem[dep.Ecosystem] = append(byEcosystem[dep.Ecosystem], dep)
	}

	ecosystems := make([]string, 0, len(byEcosystem))
	for eco := range byEcosystem {
		ecosystems = append(ecosystems, string(eco))
	}
	sort.Strings(ecosystems)

	var vulns []entities.Vulnerability
	for _, eco := range ecosystems {
		group := byEcosystem[entities.Ecosystem(eco)]
		found, err := c.resolver.BatchCheckVulnerabilities(ctx, group)
		if err != nil {
			return nil, fmt.Errorf("failed to resolve %s dependencies: %w", eco, err)
		}
		for _, v := range found {
			if v.Severity.AtLeast(opts.SeverityThreshold) {
				vulns = append(vulns, v)
			}
		}
	}

	c.logger.Debug("dependency scan finished",
		interfaces.F("dependencies", len(deps)),
		interfaces.F("vulnerabilities", len(vulns)),
	)
	return vulns, nil
}

// Collect parses every supported manifest among items and returns the
// dependencies deduplicated by ecosystem:name@version. Unreadable or
// malformed manifests contribute nothing.
func (c *dependencyCollector) Collect(ctx context.Context, items []entities.Entity) ([]entities.DependencyInfo, error) {
	return c.collect(ctx, items, entities.DependencyInfo.Key), nil
}

func (c *dependencyCollector) collect(ctx context.Context, items []entities.Entity, identity func(entities.DependencyInfo) string) []entities.DependencyInfo {
	seen := make(map[string]bool)
	var deps []entities.DependencyInfo

	for _, item := range items {
		if !item.IsFile() {
			continue
		}
		name := item.BaseName()
		if _, ok := c.parsers[name]; !ok {
			if knownUnsupported[name] {
				c.logger.Debug("unsupported manifest skipped", interfaces.F("path", item.Path))
			}
			continue
		}

		found, err := c.ScanPackageFile(ctx, item.Path)
		if err != nil {
			c.logger.Warn("skipping manifest",
				interfaces.F("path", item.Path),
				interfaces.Err(err),
			)
			continue
		}
		for _, dep := range found {
			key := identity(dep)
			if seen[key] {
				continue
			}
			seen[key] = true
			deps = append(deps, dep)
		}
	}
	return deps
}

// ScanPackageFile parses one manifest. Results are memoized per path and
// reused while the file's size and modification time are unchanged.
// A malformed manifest yields no dependencies and no error.
func (c *dependencyCollector) ScanPackageFile(_ context.Context, path string) ([]entities.DependencyInfo, error) {
	parser, ok := c.parsers[filepath.Base(path)]
	if !ok {
		return nil, fmt.Errorf("%s: %w", path, entities.ErrUnsupportedManifest)
	}

	info, err := c.fs.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("failed to stat manifest: %w", err)
	}
	if cached, ok := c.memo.Load(path); ok {
		entry := cached.(manifestEntry)
		if entry.size == info.Size() && entry.modTime.Equal(info.ModTime()) {
			return entry.deps, nil
		}
	}

	data, err := afero.ReadFile(c.fs, path)
	if err != nil {
		return nil, fmt.Errorf("failed to read manifest: %w", err)
	}

	deps, err := parser.Parse(path, data)
	if err != nil {
		c.logger.Error("failed to parse manifest",
			interfaces.F("path", path),
			interfaces.Err(err),
		)
		deps = nil
	}

	c.memo.Store(path, manifestEntry{modTime: info.ModTime(), size: info.Size(), deps: deps})
	return deps, nil
}
