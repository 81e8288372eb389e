package manifest

import (
	"fmt"

	"golang.org/x/mod/modfile"

	"github.com/Amicidal/sigmachad-sub001/internal/domain/entities"
)

// ParseGoMod extracts module requirements from go.mod. Requirements marked
// "// indirect" are reported with optional scope.
func ParseGoMod(path string, data []byte) ([]entities.DependencyInfo, error) {
	f, err := modfile.ParseLax(path, data, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", path, err)
	}

	deps := make([]entities.DependencyInfo, 0, len(f.Require))
	for _, req := range f.Require {
		scope := entities.ScopeRuntime
		if req.Indirect {
			scope = entities.ScopeOptional
		}
		deps = append(deps, dependency(req.Mod.Path, req.Mod.Version, entities.EcosystemGo, scope, path))
	}
	return deps, nil
}
