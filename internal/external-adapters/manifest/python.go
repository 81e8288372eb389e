package manifest

import (
	"bufio"
	"bytes"
	"fmt"
	"regexp"
	"strings"

	"github.com/pelletier/go-toml/v2"

	"github.com/Amicidal/sigmachad-sub001/internal/domain/entities"
)

var requirementLine = regexp.MustCompile(`^([A-Za-z0-9][A-Za-z0-9._-]*)\s*(?:\[[^\]]*\])?\s*(===|==|~=|>=|<=|!=|>|<)?\s*([^\s,;]*)`)

// ParseRequirements extracts PyPI dependencies from requirements.txt.
// Options (-r, -e, --index-url), comments and environment markers are
// ignored. Lines that do not name a package are skipped.
func ParseRequirements(path string, data []byte) ([]entities.DependencyInfo, error) {
	var deps []entities.DependencyInfo
	scanner := bufio.NewScanner(bytes.NewReader(data))
	for scanner.Scan() {
		line := scanner.Text()
		if i := strings.Index(line, "#"); i >= 0 {
			line = line[:i]
		}
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "-") {
			continue
		}
		m := requirementLine.FindStringSubmatch(line)
		if m == nil {
			continue
		}
		version := m[3]
		if m[2] == "" || m[2] == "!=" || m[2] == "<" || m[2] == "<=" {
			// no lower bound declared
			version = ""
		}
		deps = append(deps, dependency(m[1], version, entities.EcosystemPyPI, entities.ScopeRuntime, path))
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}
	return deps, nil
}

// ParsePipfile extracts PyPI dependencies from a Pipfile
func ParsePipfile(path string, data []byte) ([]entities.DependencyInfo, error) {
	var doc map[string]any
	if err := toml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", path, err)
	}

	var deps []entities.DependencyInfo
	for _, section := range []struct {
		key   string
		scope entities.DependencyScope
	}{
		{"packages", entities.ScopeRuntime},
		{"dev-packages", entities.ScopeDevelopment},
	} {
		table, ok := doc[section.key].(map[string]any)
		if !ok {
			continue
		}
		for _, name := range sortedKeys(table) {
			deps = append(deps, dependency(name, tomlVersion(table[name]), entities.EcosystemPyPI, section.scope, path))
		}
	}
	return deps, nil
}

// tomlVersion reads a dependency value that is either a version string or a
// table with a "version" key
func tomlVersion(v any) string {
	switch val := v.(type) {
	case string:
		return val
	case map[string]any:
		if s, ok := val["version"].(string); ok {
			return s
		}
	}
	return ""
}
