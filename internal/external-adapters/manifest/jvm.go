package manifest

import (
	"bufio"
	"bytes"
	"encoding/xml"
	"fmt"
	"regexp"
	"strings"

	"github.com/Amicidal/sigmachad-sub001/internal/domain/entities"
)

type pomProject struct {
	GroupID      string          `xml:"groupId"`
	Version      string          `xml:"version"`
	Parent       pomParent       `xml:"parent"`
	Properties   pomProperties   `xml:"properties"`
	Dependencies []pomDependency `xml:"dependencies>dependency"`
}

type pomParent struct {
	GroupID string `xml:"groupId"`
	Version string `xml:"version"`
}

type pomProperties struct {
	Entries []pomProperty `xml:",any"`
}

type pomProperty struct {
	XMLName xml.Name
	Value   string `xml:",chardata"`
}

type pomDependency struct {
	GroupID    string `xml:"groupId"`
	ArtifactID string `xml:"artifactId"`
	Version    string `xml:"version"`
	Scope      string `xml:"scope"`
	Optional   string `xml:"optional"`
}

var pomPlaceholder = regexp.MustCompile(`\$\{([^}]+)\}`)

// ParsePOM extracts Maven dependencies from pom.xml. ${...} placeholders are
// resolved from <properties> and the project coordinates; unresolved ones
// leave the version empty.
func ParsePOM(path string, data []byte) ([]entities.DependencyInfo, error) {
	var project pomProject
	if err := xml.Unmarshal(data, &project); err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", path, err)
	}

	props := make(map[string]string, len(project.Properties.Entries)+4)
	for _, p := range project.Properties.Entries {
		props[p.XMLName.Local] = strings.TrimSpace(p.Value)
	}
	version := firstNonEmpty(project.Version, project.Parent.Version)
	group := firstNonEmpty(project.GroupID, project.Parent.GroupID)
	props["project.version"] = version
	props["pom.version"] = version
	props["project.groupId"] = group
	props["project.parent.version"] = project.Parent.Version

	resolve := func(s string) string {
		return pomPlaceholder.ReplaceAllStringFunc(strings.TrimSpace(s), func(ref string) string {
			return props[ref[2:len(ref)-1]]
		})
	}

	deps := make([]entities.DependencyInfo, 0, len(project.Dependencies))
	for _, d := range project.Dependencies {
		groupID := resolve(d.GroupID)
		artifactID := resolve(d.ArtifactID)
		if groupID == "" || artifactID == "" {
			continue
		}
		deps = append(deps, dependency(groupID+":"+artifactID, resolve(d.Version),
			entities.EcosystemMaven, pomScope(d), path))
	}
	return deps, nil
}

func pomScope(d pomDependency) entities.DependencyScope {
	if strings.EqualFold(strings.TrimSpace(d.Optional), "true") {
		return entities.ScopeOptional
	}
	switch strings.TrimSpace(d.Scope) {
	case "test":
		return entities.ScopeDevelopment
	case "provided", "system":
		return entities.ScopeOptional
	default:
		return entities.ScopeRuntime
	}
}

var gradleDependency = regexp.MustCompile(`^(\w+)\s*\(?\s*['"]([^:'"\s]+):([^:'"\s]+):([^:'"@\s]+)[^'"]*['"]`)

// ParseGradle extracts Maven coordinates declared as "group:artifact:version"
// strings in build.gradle
func ParseGradle(path string, data []byte) ([]entities.DependencyInfo, error) {
	var deps []entities.DependencyInfo
	scanner := bufio.NewScanner(bytes.NewReader(data))
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if strings.HasPrefix(line, "//") {
			continue
		}
		m := gradleDependency.FindStringSubmatch(line)
		if m == nil {
			continue
		}
		scope, ok := gradleScope(m[1])
		if !ok {
			continue
		}
		version := m[4]
		if strings.HasPrefix(version, "$") {
			version = ""
		}
		deps = append(deps, dependency(m[2]+":"+m[3], version, entities.EcosystemMaven, scope, path))
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}
	return deps, nil
}

func gradleScope(configuration string) (entities.DependencyScope, bool) {
	switch configuration {
	case "implementation", "api", "compile", "runtime", "runtimeOnly":
		return entities.ScopeRuntime, true
	case "compileOnly", "annotationProcessor":
		return entities.ScopeOptional, true
	case "testImplementation", "testCompile", "testRuntimeOnly", "testCompileOnly", "androidTestImplementation":
		return entities.ScopeDevelopment, true
	default:
		return "", false
	}
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return ""
}
