package guardrails

import "github.com/agnivade/levenshtein"

// minFuzzyTokenLen excludes short common words from fuzzy comparison.
const minFuzzyTokenLen = 4

// tokenNearTerms reports whether any token is an exact or near match for any
// term. A near match requires both the length difference and the edit
// distance (classic insert/delete/substitute, unit cost) to stay within
// maxDistance.
func tokenNearTerms(tokens, terms []string, maxDistance int) bool {
	for _, token := range tokens {
		if len(token) < minFuzzyTokenLen {
			continue
		}
		for _, term := range terms {
			if token == term {
				return true
			}
			if lenDiff(token, term) > maxDistance {
				continue
			}
			if levenshtein.ComputeDistance(token, term) <= maxDistance {
				return true
			}
		}
	}
	return false
}

func lenDiff(a, b string) int {
	d := len(a) - len(b)
	if d < 0 {
		return -d
	}
	return d
}
