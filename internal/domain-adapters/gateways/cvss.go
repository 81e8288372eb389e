package gateways

import (
	"math"
	"strconv"
	"strings"
)

// cvssScore extracts a numeric base score from an OSV severity score field.
// The field is either a bare number or a CVSS v3.x vector. Vectors of other
// versions yield 0.
func cvssScore(score string) float64 {
	score = strings.TrimSpace(score)
	if score == "" {
		return 0
	}
	if f, err := strconv.ParseFloat(score, 64); err == nil {
		return f
	}
	if strings.HasPrefix(score, "CVSS:3.") {
		return cvss3BaseScore(score)
	}
	return 0
}

var (
	cvssAttackVector     = map[string]float64{"N": 0.85, "A": 0.62, "L": 0.55, "P": 0.2}
	cvssAttackComplexity = map[string]float64{"L": 0.77, "H": 0.44}
	cvssUserInteraction  = map[string]float64{"N": 0.85, "R": 0.62}
	cvssImpact           = map[string]float64{"H": 0.56, "L": 0.22, "N": 0}
)

// cvss3BaseScore computes the CVSS v3.1 base score of a vector string
func cvss3BaseScore(vector string) float64 {
	metrics := make(map[string]string)
	for _, part := range strings.Split(vector, "/")[1:] {
		kv := strings.SplitN(part, ":", 2)
		if len(kv) == 2 {
			metrics[kv[0]] = kv[1]
		}
	}

	av, ok1 := cvssAttackVector[metrics["AV"]]
	ac, ok2 := cvssAttackComplexity[metrics["AC"]]
	ui, ok3 := cvssUserInteraction[metrics["UI"]]
	c, ok4 := cvssImpact[metrics["C"]]
	i, ok5 := cvssImpact[metrics["I"]]
	a, ok6 := cvssImpact[metrics["A"]]
	scope := metrics["S"]
	if !ok1 || !ok2 || !ok3 || !ok4 || !ok5 || !ok6 || (scope != "U" && scope != "C") {
		return 0
	}
	changed := scope == "C"

	var pr float64
	switch metrics["PR"] {
	case "N":
		pr = 0.85
	case "L":
		pr = 0.62
		if changed {
			pr = 0.68
		}
	case "H":
		pr = 0.27
		if changed {
			pr = 0.5
		}
	default:
		return 0
	}

	iss := 1 - (1-c)*(1-i)*(1-a)
	var impact float64
	if changed {
		impact = 7.52*(iss-0.029) - 3.25*math.Pow(iss-0.02, 15)
	} else {
		impact = 6.42 * iss
	}
	if impact <= 0 {
		return 0
	}

	exploitability := 8.22 * av * ac * pr * ui
	if changed {
		return roundUp(math.Min(1.08*(impact+exploitability), 10))
	}
	return roundUp(math.Min(impact+exploitability, 10))
}

// roundUp is the CVSS v3.1 Roundup function
func roundUp(x float64) float64 {
	n := int64(math.Round(x * 100000))
	if n%10000 == 0 {
		return float64(n) / 100000
	}
	return float64(n/10000+1) / 10
}
