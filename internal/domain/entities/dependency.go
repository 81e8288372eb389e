package entities

// Ecosystem identifies a package registry. Values follow OSV ecosystem names.
type Ecosystem string

// Supported ecosystems
const (
	EcosystemNPM       Ecosystem = "npm"
	EcosystemPyPI      Ecosystem = "PyPI"
	EcosystemMaven     Ecosystem = "Maven"
	EcosystemGo        Ecosystem = "Go"
	EcosystemCargo     Ecosystem = "crates.io"
	EcosystemPackagist Ecosystem = "Packagist"
	EcosystemRubyGems  Ecosystem = "RubyGems"
)

// DependencyScope is how a dependency is used by the project
type DependencyScope string

// Dependency scopes
const (
	ScopeRuntime     DependencyScope = "runtime"
	ScopeDevelopment DependencyScope = "development"
	ScopeOptional    DependencyScope = "optional"
)

// DependencyInfo is a dependency as declared in a manifest. Version is the
// declared version, not a resolved one.
type DependencyInfo struct {
	Name         string          `json:"name"`
	Version      string          `json:"version"`
	Ecosystem    Ecosystem       `json:"ecosystem"`
	Scope        DependencyScope `json:"scope"`
	ManifestPath string          `json:"manifestPath"`
	Direct       bool            `json:"direct"`
}

// Key returns the cache and dedupe key "ecosystem:name@version"
func (d DependencyInfo) Key() string {
	return DependencyKey(d.Ecosystem, d.Name, d.Version)
}

// DependencyKey builds the "ecosystem:name@version" key
func DependencyKey(ecosystem Ecosystem, name, version string) string {
	return string(ecosystem) + ":" + name + "@" + version
}
