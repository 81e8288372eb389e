package gateways

import (
	"fmt"
	"net/url"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/Amicidal/sigmachad-sub001/internal/domain/entities"
)

// ToolName and ToolVersion identify this scanner in generated documents
const (
	ToolName    = "secscan"
	ToolVersion = "1.0.0"
)

// sbomGenerator builds CycloneDX documents from declared dependencies
type sbomGenerator struct {
	now func() time.Time
}

// NewSBOMGenerator creates a new SBOM generator gateway
//
//nolint:revive // unexported-return: Intentionally returns concrete type for testability
func NewSBOMGenerator() *sbomGenerator {
	return &sbomGenerator{now: time.Now}
}

// GenerateSBOM lists every dependency as a library component. Duplicate
// ecosystem:name@version entries collapse into one component.
func (g *sbomGenerator) GenerateSBOM(project string, deps []entities.DependencyInfo) (*entities.SBOM, error) {
	if project == "" {
		return nil, fmt.Errorf("project name cannot be empty")
	}

	seen := make(map[string]bool, len(deps))
	components := make([]entities.Component, 0, len(deps))
	for _, dep := range deps {
		if seen[dep.Key()] {
			continue
		}
		seen[dep.Key()] = true

		group, name := splitGroup(dep)
		components = append(components, entities.Component{
			Type:    "library",
			Name:    name,
			Group:   group,
			Version: dep.Version,
			Scope:   cyclonedxScope(dep.Scope),
			PURL:    PackageURL(dep),
		})
	}

	sort.Slice(components, func(i, j int) bool {
		return components[i].PURL < components[j].PURL
	})

	return &entities.SBOM{
		BOMFormat:    "CycloneDX",
		SpecVersion:  "1.4",
		SerialNumber: "urn:uuid:" + uuid.NewString(),
		Version:      1,
		Components:   components,
		Metadata: entities.Metadata{
			Timestamp: g.now().UTC(),
			Tools: []entities.Tool{
				{
					Name:    ToolName,
					Version: ToolVersion,
				},
			},
			Component: &entities.Component{
				Type: "application",
				Name: project,
			},
		},
	}, nil
}

var purlTypes = map[entities.Ecosystem]string{
	entities.EcosystemNPM:       "npm",
	entities.EcosystemPyPI:      "pypi",
	entities.EcosystemMaven:     "maven",
	entities.EcosystemGo:        "golang",
	entities.EcosystemCargo:     "cargo",
	entities.EcosystemPackagist: "composer",
	entities.EcosystemRubyGems:  "gem",
}

// PackageURL renders the purl of a dependency, e.g. pkg:npm/%40babel/core@7.0.0
func PackageURL(dep entities.DependencyInfo) string {
	typ, ok := purlTypes[dep.Ecosystem]
	if !ok {
		typ = "generic"
	}

	group, name := splitGroup(dep)
	if dep.Ecosystem == entities.EcosystemPyPI {
		name = strings.ToLower(strings.ReplaceAll(name, "_", "-"))
	}

	var b strings.Builder
	b.WriteString("pkg:")
	b.WriteString(typ)
	b.WriteString("/")
	if group != "" {
		for _, seg := range strings.Split(group, "/") {
			b.WriteString(purlEscape(seg))
			b.WriteString("/")
		}
	}
	b.WriteString(purlEscape(name))
	if dep.Version != "" {
		b.WriteString("@")
		b.WriteString(purlEscape(dep.Version))
	}
	return b.String()
}

// purlEscape percent-encodes a purl segment, including '@'
func purlEscape(s string) string {
	return strings.ReplaceAll(url.PathEscape(s), "@", "%40")
}

// splitGroup separates namespace from name: maven group:artifact, npm
// @scope/name, composer vendor/name, and go module paths
func splitGroup(dep entities.DependencyInfo) (string, string) {
	switch dep.Ecosystem {
	case entities.EcosystemMaven:
		if i := strings.Index(dep.Name, ":"); i >= 0 {
			return dep.Name[:i], dep.Name[i+1:]
		}
	case entities.EcosystemNPM, entities.EcosystemPackagist, entities.EcosystemGo:
		if i := strings.LastIndex(dep.Name, "/"); i >= 0 {
			return dep.Name[:i], dep.Name[i+1:]
		}
	}
	return "", dep.Name
}

func cyclonedxScope(scope entities.DependencyScope) string {
	switch scope {
	case entities.ScopeDevelopment:
		return "excluded"
	case entities.ScopeOptional:
		return "optional"
	default:
		return "required"
	}
}
