package services

import (
	"context"
	"crypto/sha1" //nolint:gosec // identity hash only
	"encoding/hex"

	"github.com/Amicidal/sigmachad-sub001/internal/domain/entities"
	"github.com/Amicidal/sigmachad-sub001/internal/domain/interfaces"
	"github.com/Amicidal/sigmachad-sub001/internal/domain/interfaces/gateways"
	"github.com/Amicidal/sigmachad-sub001/internal/domain/interfaces/services"
)

// ResolverConfig toggles the remote feed
type ResolverConfig struct {
	OSVEnabled bool
}

type vulnerabilityResolver struct {
	feed       gateways.VulnerabilityFeed
	cache      gateways.Cache[[]entities.Vulnerability]
	osvEnabled bool
	logger     interfaces.Logger
}

// NewVulnerabilityResolver creates a resolver backed by a cache, an optional
// remote feed, and the built-in fallback table
func NewVulnerabilityResolver(feed gateways.VulnerabilityFeed, cache gateways.Cache[[]entities.Vulnerability], logger interfaces.Logger, cfg ResolverConfig) services.VulnerabilityResolver {
	return &vulnerabilityResolver{
		feed:       feed,
		cache:      cache,
		osvEnabled: cfg.OSVEnabled && feed != nil,
		logger:     interfaces.OrNoOp(logger),
	}
}

// CheckVulnerabilities resolves a single package version. Feed failures
// never reach the caller: stale cache is served first, then the fallback table.
func (r *vulnerabilityResolver) CheckVulnerabilities(ctx context.Context, name, version string, ecosystem entities.Ecosystem) ([]entities.Vulnerability, error) {
	dep := entities.DependencyInfo{Name: name, Version: version, Ecosystem: ecosystem, Direct: true}
	key := dep.Key()

	if cached, ok := r.cache.Get(key); ok {
		return cached, nil
	}

	if r.osvEnabled {
		vulns, err := r.feed.Query(ctx, dep)
		if err != nil {
			return r.recover(dep, err), nil
		}
		if len(vulns) > 0 {
			vulns = finalizeVulnerabilities(dep, vulns)
			r.cache.Set(key, vulns)
			return vulns, nil
		}
	}

	vulns := finalizeVulnerabilities(dep, fallbackVulnerabilities(dep))
	r.cache.Set(key, vulns)
	return vulns, nil
}

// BatchCheckVulnerabilities resolves many dependencies with at most one feed
// round trip for the cache misses
func (r *vulnerabilityResolver) BatchCheckVulnerabilities(ctx context.Context, deps []entities.DependencyInfo) ([]entities.Vulnerability, error) {
	resolved := make(map[string][]entities.Vulnerability, len(deps))
	var misses []entities.DependencyInfo

	for _, dep := range deps {
		key := dep.Key()
		if _, done := resolved[key]; done {
			continue
		}
		if cached, ok := r.cache.Get(key); ok {
			resolved[key] = cached
			continue
		}
		resolved[key] = nil
		misses = append(misses, dep)
	}

	if len(misses) > 0 {
		r.resolveMisses(ctx, misses, resolved)
	}

	// one finding per declaring manifest, each with its own record id
	var out []entities.Vulnerability
	emitted := make(map[string]bool, len(deps))
	for _, dep := range deps {
		occurrence := dep.Key() + "|" + dep.ManifestPath
		if emitted[occurrence] {
			continue
		}
		emitted[occurrence] = true
		out = append(out, withManifest(resolved[dep.Key()], dep)...)
	}
	return out, nil
}

func (r *vulnerabilityResolver) resolveMisses(ctx context.Context, misses []entities.DependencyInfo, resolved map[string][]entities.Vulnerability) {
	if !r.osvEnabled {
		for _, dep := range misses {
			vulns := finalizeVulnerabilities(dep, fallbackVulnerabilities(dep))
			r.cache.Set(dep.Key(), vulns)
			resolved[dep.Key()] = vulns
		}
		return
	}

	byKey, err := r.feed.QueryBatch(ctx, misses)
	if err != nil {
		r.logger.Warn("vulnerability feed batch query failed",
			interfaces.F("dependencies", len(misses)),
			interfaces.Err(err),
		)
		for _, dep := range misses {
			resolved[dep.Key()] = r.recover(dep, nil)
		}
		return
	}

	for _, dep := range misses {
		key := dep.Key()
		vulns := byKey[key]
		if len(vulns) == 0 {
			vulns = fallbackVulnerabilities(dep)
		}
		vulns = finalizeVulnerabilities(dep, vulns)
		r.cache.Set(key, vulns)
		resolved[key] = vulns
	}
}

// recover serves a stale cache entry if one exists, else the fallback
// table. Neither result is cached so the next call retries the feed.
func (r *vulnerabilityResolver) recover(dep entities.DependencyInfo, err error) []entities.Vulnerability {
	if err != nil {
		r.logger.Warn("vulnerability feed query failed",
			interfaces.F("package", dep.Key()),
			interfaces.Err(err),
		)
	}
	if stale, ok := r.cache.GetStale(dep.Key()); ok {
		r.logger.Debug("serving stale vulnerability data", interfaces.F("package", dep.Key()))
		return stale
	}
	return finalizeVulnerabilities(dep, fallbackVulnerabilities(dep))
}

// finalizeVulnerabilities fills identity and derived fields the feed or
// fallback table may have left empty
func finalizeVulnerabilities(dep entities.DependencyInfo, vulns []entities.Vulnerability) []entities.Vulnerability {
	// cached per package version; withManifest binds the manifest later
	dep.ManifestPath = ""
	out := make([]entities.Vulnerability, 0, len(vulns))
	for _, v := range vulns {
		if v.PackageName == "" {
			v.PackageName = dep.Name
		}
		if v.Version == "" {
			v.Version = dep.Version
		}
		if v.Ecosystem == "" {
			v.Ecosystem = dep.Ecosystem
		}
		if !v.Severity.Valid() {
			v.Severity = entities.SeverityFromCVSS(v.CVSSScore)
		}
		if v.Exploitability == "" {
			v.Exploitability = entities.ExploitabilityFromCVSS(v.CVSSScore)
		}
		if v.Status == "" {
			v.Status = entities.StatusOpen
		}
		v.ID = VulnerabilityRecordID(dep, v.VulnerabilityID)
		out = append(out, v)
	}
	return out
}

// VulnerabilityRecordID derives a stable id for a (dependency, manifest,
// advisory) triple. The same package version declared by two manifests
// yields two records.
func VulnerabilityRecordID(dep entities.DependencyInfo, advisoryID string) string {
	h := sha1.New() //nolint:gosec // identity hash only
	h.Write([]byte(dep.Key() + "|" + dep.ManifestPath + "|" + advisoryID))
	return "vuln_" + hex.EncodeToString(h.Sum(nil))
}

// withManifest copies cached findings onto the manifest declaring dep
func withManifest(vulns []entities.Vulnerability, dep entities.DependencyInfo) []entities.Vulnerability {
	if len(vulns) == 0 {
		return nil
	}
	out := make([]entities.Vulnerability, len(vulns))
	copy(out, vulns)
	for i := range out {
		out[i].ManifestPath = dep.ManifestPath
		out[i].ID = VulnerabilityRecordID(dep, out[i].VulnerabilityID)
	}
	return out
}
