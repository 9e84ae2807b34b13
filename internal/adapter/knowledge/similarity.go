package knowledge

import (
	"fmt"

	"github.com/agnivade/levenshtein"
	"github.com/pmezard/go-difflib/difflib"
)

// Scorer returns a similarity score in [0,1] for two normalized names.
type Scorer func(a, b string) float64

// Ratio is the matching-blocks similarity ratio: 2*M/T where M is the
// number of characters in matching blocks and T the total length of both
// strings. Two empty strings score 1.
func Ratio(a, b string) float64 {
	m := difflib.NewMatcher(splitRunes(a), splitRunes(b))
	return m.Ratio()
}

// LevenshteinRatio returns 1 - distance/max(len(a), len(b)).
func LevenshteinRatio(a, b string) float64 {
	if a == b {
		return 1.0
	}
	maxLen := len([]rune(a))
	if lb := len([]rune(b)); lb > maxLen {
		maxLen = lb
	}
	if maxLen == 0 {
		return 1.0
	}
	dist := levenshtein.ComputeDistance(a, b)
	return 1.0 - float64(dist)/float64(maxLen)
}

// ScorerByName resolves a configured scorer name. An empty name selects
// Ratio.
func ScorerByName(name string) (Scorer, error) {
	switch name {
	case "", "ratio":
		return Ratio, nil
	case "levenshtein":
		return LevenshteinRatio, nil
	default:
		return nil, fmt.Errorf("unknown similarity scorer: %s", name)
	}
}

func splitRunes(s string) []string {
	out := make([]string, 0, len(s))
	for _, r := range s {
		out = append(out, string(r))
	}
	return out
}
