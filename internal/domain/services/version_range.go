package services

import (
	"strconv"
	"strings"
)

// VersionInRange reports whether version satisfies a range expression.
//
// Supported forms: "<X", "<=X", ">X", ">=X", "=X", "min-max" (inclusive),
// and a bare version for an exact match. Clauses separated by commas must
// all hold; alternatives separated by "||" are ORed. Versions are compared
// by dot-separated numeric components with non-numeric suffixes stripped.
func VersionInRange(version, expr string) bool {
	version = normalizeVersion(version)
	if version == "" || strings.TrimSpace(expr) == "" {
		return false
	}
	// wildcards, dist-tags and URLs carry no comparable version
	if len(versionComponents(version)) == 0 {
		return false
	}

	for _, alt := range strings.Split(expr, "||") {
		if matchesAll(version, alt) {
			return true
		}
	}
	return false
}

func matchesAll(version, expr string) bool {
	clauses := strings.Split(expr, ",")
	matched := 0
	for _, clause := range clauses {
		clause = strings.TrimSpace(clause)
		if clause == "" {
			continue
		}
		if !matchClause(version, clause) {
			return false
		}
		matched++
	}
	return matched > 0
}

func matchClause(version, clause string) bool {
	for _, op := range []string{"<=", ">=", "<", ">", "="} {
		if strings.HasPrefix(clause, op) {
			bound := normalizeVersion(strings.TrimPrefix(clause, op))
			if bound == "" {
				return false
			}
			cmp := CompareVersions(version, bound)
			switch op {
			case "<=":
				return cmp <= 0
			case ">=":
				return cmp >= 0
			case "<":
				return cmp < 0
			case ">":
				return cmp > 0
			default:
				return cmp == 0
			}
		}
	}

	if lo, hi, ok := splitRange(clause); ok {
		return CompareVersions(version, lo) >= 0 && CompareVersions(version, hi) <= 0
	}

	return CompareVersions(version, normalizeVersion(clause)) == 0
}

// splitRange recognizes "min-max" and "min - max". A hyphen followed by a
// non-digit is a pre-release suffix, not a range.
func splitRange(clause string) (string, string, bool) {
	idx := strings.Index(clause, "-")
	for idx >= 0 {
		lo := normalizeVersion(clause[:idx])
		hi := normalizeVersion(clause[idx+1:])
		if lo != "" && hi != "" && startsWithDigit(strings.TrimSpace(clause[idx+1:])) {
			return lo, hi, true
		}
		next := strings.Index(clause[idx+1:], "-")
		if next < 0 {
			break
		}
		idx += next + 1
	}
	return "", "", false
}

// CompareVersions compares two versions numerically component by
// component. Missing components count as zero.
func CompareVersions(a, b string) int {
	pa := versionComponents(a)
	pb := versionComponents(b)
	n := len(pa)
	if len(pb) > n {
		n = len(pb)
	}
	for i := 0; i < n; i++ {
		var x, y int
		if i < len(pa) {
			x = pa[i]
		}
		if i < len(pb) {
			y = pb[i]
		}
		if x != y {
			if x < y {
				return -1
			}
			return 1
		}
	}
	return 0
}

func versionComponents(v string) []int {
	v = normalizeVersion(v)
	if v == "" {
		return nil
	}
	parts := strings.Split(v, ".")
	out := make([]int, 0, len(parts))
	for _, p := range parts {
		digits := leadingDigits(p)
		if digits == "" {
			break
		}
		n, err := strconv.Atoi(digits)
		if err != nil {
			break
		}
		out = append(out, n)
		if len(digits) != len(p) {
			// suffix such as "1-beta" ends the numeric part
			break
		}
	}
	return out
}

// normalizeVersion trims whitespace, range prefixes used in manifests
// (^ ~ v), and build metadata.
func normalizeVersion(v string) string {
	v = strings.TrimSpace(v)
	v = strings.TrimLeft(v, "^~ ")
	v = strings.TrimPrefix(v, "v")
	v = strings.TrimPrefix(v, "V")
	if i := strings.IndexByte(v, '+'); i >= 0 {
		v = v[:i]
	}
	return strings.TrimSpace(v)
}

func leadingDigits(s string) string {
	i := 0
	for i < len(s) && s[i] >= '0' && s[i] <= '9' {
		i++
	}
	return s[:i]
}

func startsWithDigit(s string) bool {
	s = normalizeVersion(s)
	return s != "" && s[0] >= '0' && s[0] <= '9'
}
