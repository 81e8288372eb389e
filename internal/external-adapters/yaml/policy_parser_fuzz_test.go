package yaml

import (
	"testing"
)

// FuzzPolicyParser tests the policy and suppression parsers against
// random/malformed inputs to detect crashes or panics.
//
// Run with: go test -fuzz=FuzzPolicyParser -fuzztime=30s
func FuzzPolicyParser(f *testing.F) {
	f.Add([]byte(policyYAML))
	f.Add([]byte(policyJSON))
	f.Add([]byte(`{"suppressions": [{"type": "issue", "target": {"ruleId": "X"}, "until": "2030-01-01"}]}`))
	f.Add([]byte("suppressions:\n  - type: vulnerability\n    target: {package: lodash}\n"))

	// Seed with edge cases
	f.Add([]byte(``))                                     // Empty input
	f.Add([]byte(`{}`))                                   // Empty object
	f.Add([]byte(`[]`))                                   // Array instead of object
	f.Add([]byte(`policies: {id: x}`))                    // Map where a list is expected
	f.Add([]byte("policies:\n  - id: a\n  - id: a\n"))    // Duplicate ids
	f.Add([]byte(`suppressions: [{until: 99999-99-99}]`)) // Nonsense date

	parser := NewPolicyParser()

	f.Fuzz(func(_ *testing.T, data []byte) {
		_, _ = parser.ParsePolicies(data)
		_, _ = parser.ParseSuppressions(data)
	})
}
