// Package manifest provides dependency manifest parsers, one per ecosystem
// file format.
package manifest

import (
	"sort"
	"strings"

	"github.com/Amicidal/sigmachad-sub001/internal/domain/entities"
	"github.com/Amicidal/sigmachad-sub001/internal/domain/interfaces/gateways"
)

// ParserFunc adapts a plain function to gateways.ManifestParser
type ParserFunc func(path string, data []byte) ([]entities.DependencyInfo, error)

// Parse calls f(path, data)
func (f ParserFunc) Parse(path string, data []byte) ([]entities.DependencyInfo, error) {
	return f(path, data)
}

// Parsers returns the manifest parsers keyed by exact file basename
func Parsers() map[string]gateways.ManifestParser {
	return map[string]gateways.ManifestParser{
		"package.json":     ParserFunc(ParsePackageJSON),
		"requirements.txt": ParserFunc(ParseRequirements),
		"Pipfile":          ParserFunc(ParsePipfile),
		"Gemfile":          ParserFunc(ParseGemfile),
		"pom.xml":          ParserFunc(ParsePOM),
		"build.gradle":     ParserFunc(ParseGradle),
		"go.mod":           ParserFunc(ParseGoMod),
		"Cargo.toml":       ParserFunc(ParseCargo),
		"composer.json":    ParserFunc(ParseComposer),
	}
}

// SupportedManifests lists the recognized manifest basenames, sorted
func SupportedManifests() []string {
	names := make([]string, 0, len(Parsers()))
	for name := range Parsers() {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// cleanVersion reduces a declared version constraint to its first concrete
// version: "^4.17.10" -> "4.17.10", ">= 1.2, < 2" -> "1.2". Wildcards and
// non-version specifiers (git URLs, dist-tags) become "".
func cleanVersion(v string) string {
	v = strings.TrimSpace(v)
	v = strings.TrimLeft(v, "^~>=<!v ")
	if i := strings.IndexAny(v, " ,;|"); i >= 0 {
		v = v[:i]
	}
	v = strings.TrimSpace(v)
	if v == "" || v[0] < '0' || v[0] > '9' {
		return ""
	}
	return v
}

func dependency(name, version string, eco entities.Ecosystem, scope entities.DependencyScope, path string) entities.DependencyInfo {
	return entities.DependencyInfo{
		Name:         name,
		Version:      cleanVersion(version),
		Ecosystem:    eco,
		Scope:        scope,
		ManifestPath: path,
		Direct:       true,
	}
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
