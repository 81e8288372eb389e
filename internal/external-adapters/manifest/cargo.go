package manifest

import (
	"fmt"

	"github.com/pelletier/go-toml/v2"

	"github.com/Amicidal/sigmachad-sub001/internal/domain/entities"
)

type cargoManifest struct {
	Dependencies      map[string]any `toml:"dependencies"`
	DevDependencies   map[string]any `toml:"dev-dependencies"`
	BuildDependencies map[string]any `toml:"build-dependencies"`
}

// ParseCargo extracts crates.io dependencies from Cargo.toml. Path and git
// dependencies carry no version.
func ParseCargo(path string, data []byte) ([]entities.DependencyInfo, error) {
	var m cargoManifest
	if err := toml.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", path, err)
	}

	var deps []entities.DependencyInfo
	add := func(table map[string]any, scope entities.DependencyScope) {
		for _, name := range sortedKeys(table) {
			dep := dependency(name, tomlVersion(table[name]), entities.EcosystemCargo, scope, path)
			if spec, ok := table[name].(map[string]any); ok {
				if pkg, ok := spec["package"].(string); ok && pkg != "" {
					dep.Name = pkg
				}
				if opt, ok := spec["optional"].(bool); ok && opt && scope == entities.ScopeRuntime {
					dep.Scope = entities.ScopeOptional
				}
			}
			deps = append(deps, dep)
		}
	}
	add(m.Dependencies, entities.ScopeRuntime)
	add(m.DevDependencies, entities.ScopeDevelopment)
	add(m.BuildDependencies, entities.ScopeDevelopment)
	return deps, nil
}
