package manifest

import (
	"fmt"
	"strings"

	"github.com/tidwall/gjson"

	"github.com/Amicidal/sigmachad-sub001/internal/domain/entities"
)

type jsonSection struct {
	path  string
	scope entities.DependencyScope
}

var npmSections = []jsonSection{
	{"dependencies", entities.ScopeRuntime},
	{"devDependencies", entities.ScopeDevelopment},
	{"optionalDependencies", entities.ScopeOptional},
	{"peerDependencies", entities.ScopeOptional},
}

var composerSections = []jsonSection{
	{"require", entities.ScopeRuntime},
	{"require-dev", entities.ScopeDevelopment},
}

// ParsePackageJSON extracts npm dependencies from package.json
func ParsePackageJSON(path string, data []byte) ([]entities.DependencyInfo, error) {
	return parseJSONSections(path, data, entities.EcosystemNPM, npmSections, nil)
}

// ParseComposer extracts Packagist dependencies from composer.json. Platform
// requirements (php, ext-*, lib-*) are not packages and are skipped.
func ParseComposer(path string, data []byte) ([]entities.DependencyInfo, error) {
	return parseJSONSections(path, data, entities.EcosystemPackagist, composerSections, isComposerPlatform)
}

func isComposerPlatform(name string) bool {
	return name == "php" || name == "composer-plugin-api" ||
		strings.HasPrefix(name, "ext-") || strings.HasPrefix(name, "lib-")
}

func parseJSONSections(path string, data []byte, eco entities.Ecosystem, sections []jsonSection, skip func(string) bool) ([]entities.DependencyInfo, error) {
	if !gjson.ValidBytes(data) {
		return nil, fmt.Errorf("invalid JSON in %s", path)
	}
	doc := gjson.ParseBytes(data)
	if !doc.IsObject() {
		return nil, fmt.Errorf("%s: top-level value is not an object", path)
	}

	var deps []entities.DependencyInfo
	seen := make(map[string]bool)
	for _, section := range sections {
		doc.Get(section.path).ForEach(func(key, value gjson.Result) bool {
			name := key.String()
			if name == "" || seen[name] || (skip != nil && skip(name)) {
				return true
			}
			seen[name] = true
			deps = append(deps, dependency(name, value.String(), eco, section.scope, path))
			return true
		})
	}
	return deps, nil
}
