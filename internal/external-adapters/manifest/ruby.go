package manifest

import (
	"bufio"
	"bytes"
	"fmt"
	"regexp"
	"strings"

	"github.com/Amicidal/sigmachad-sub001/internal/domain/entities"
)

var (
	gemLine   = regexp.MustCompile(`^gem\s*\(?\s*['"]([^'"]+)['"](?:\s*,\s*['"]([^'"]+)['"])?`)
	groupLine = regexp.MustCompile(`^group\s+(.+?)\s+do\b`)
	blockOpen = regexp.MustCompile(`\bdo\s*(\|[^|]*\|)?\s*$`)
	endLine   = regexp.MustCompile(`^end\b`)
)

// ParseGemfile extracts RubyGems dependencies from a Gemfile. Gems inside a
// group block limited to development or test get development scope.
func ParseGemfile(path string, data []byte) ([]entities.DependencyInfo, error) {
	var (
		deps []entities.DependencyInfo
		// one entry per open do-block; true when it is a dev/test group
		blocks []bool
	)

	scanner := bufio.NewScanner(bytes.NewReader(data))
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		if m := groupLine.FindStringSubmatch(line); m != nil {
			blocks = append(blocks, isDevGroup(m[1]))
			continue
		}
		if endLine.MatchString(line) {
			if len(blocks) > 0 {
				blocks = blocks[:len(blocks)-1]
			}
			continue
		}

		if m := gemLine.FindStringSubmatch(line); m != nil {
			scope := entities.ScopeRuntime
			if inDevGroup(blocks) || strings.Contains(line, "group: :development") || strings.Contains(line, "group: :test") {
				scope = entities.ScopeDevelopment
			}
			deps = append(deps, dependency(m[1], m[2], entities.EcosystemRubyGems, scope, path))
			continue
		}

		if blockOpen.MatchString(line) {
			blocks = append(blocks, false)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}
	return deps, nil
}

func isDevGroup(groups string) bool {
	for _, g := range strings.Split(groups, ",") {
		g = strings.Trim(strings.TrimSpace(g), `:'"`)
		if g != "development" && g != "test" {
			return false
		}
	}
	return true
}

func inDevGroup(blocks []bool) bool {
	for _, dev := range blocks {
		if dev {
			return true
		}
	}
	return false
}
