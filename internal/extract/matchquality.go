package extract

import (
	"strings"

	"github.com/agnivade/levenshtein"
)

// MatchQuality scores how well a candidate entity name matches a query term,
// in the descending tiers defined by the Definition Extractor's match-quality
// table: exact, then case-insensitive exact, then UE5-prefix-aware equality,
// then prefix/substring containment scaled by the query/candidate length
// ratio, then a gated Levenshtein fallback. Callers use this to rank FTS5
// hits that all satisfied the same query but differ in how closely they
// match. With fuzzy = false, the substring and Levenshtein tiers never fire.
func MatchQuality(query, candidate string, fuzzy bool) float64 {
	if query == "" || candidate == "" {
		return 0
	}
	if query == candidate {
		return 1.0
	}

	qLower := strings.ToLower(query)
	cLower := strings.ToLower(candidate)
	if qLower == cLower {
		return 0.95
	}

	qPrefixed := ue5Prefix(query) != 0
	cPrefixed := ue5Prefix(candidate) != 0
	qStripped := StripUE5Prefix(query)
	cStripped := StripUE5Prefix(candidate)

	switch {
	case qPrefixed && cPrefixed && strings.EqualFold(qStripped, cStripped):
		return 0.90
	case !qPrefixed && cPrefixed && strings.EqualFold(query, cStripped):
		return 0.88
	case qPrefixed && !cPrefixed && strings.EqualFold(qStripped, candidate):
		return 0.85
	}

	qStrippedLower := strings.ToLower(qStripped)
	cStrippedLower := strings.ToLower(cStripped)

	if qStrippedLower != "" && cStrippedLower != "" && strings.HasPrefix(cStrippedLower, qStrippedLower) {
		return 0.80 * lengthRatio(len(qStripped), len(cStripped))
	}

	if !fuzzy {
		return 0
	}

	if qStrippedLower != "" && cStrippedLower != "" &&
		(strings.Contains(cStrippedLower, qStrippedLower) || strings.Contains(qStrippedLower, cStrippedLower)) {
		return 0.75 * lengthRatio(len(qStripped), len(cStripped))
	}
	if strings.Contains(cLower, qLower) || strings.Contains(qLower, cLower) {
		return 0.70 * lengthRatio(len(query), len(candidate))
	}

	if score, ok := levenshteinTier(qStrippedLower, cStrippedLower, 0.65); ok {
		return score
	}
	if score, ok := levenshteinTier(qLower, cLower, 0.60); ok {
		return score
	}

	return 0
}

// lengthRatio computes |q|/|c| for the prefix/substring tiers' length-ratio
// scaling. c is never zero here: callers only reach it after confirming both
// operand strings are non-empty.
func lengthRatio(q, c int) float64 {
	return float64(q) / float64(c)
}

// levenshteinTier scores a and b against the fuzzy edit-distance gate: the
// distance must be at most 2 and both names must be longer than 3 characters.
func levenshteinTier(a, b string, weight float64) (float64, bool) {
	if len(a) <= 3 || len(b) <= 3 {
		return 0, false
	}
	dist := levenshtein.ComputeDistance(a, b)
	if dist > 2 {
		return 0, false
	}
	maxLen := len(a)
	if len(b) > maxLen {
		maxLen = len(b)
	}
	similarity := 1.0 - float64(dist)/float64(maxLen)
	if similarity < 0 {
		similarity = 0
	}
	return weight * similarity, true
}

// StripUE5Prefix removes a leading F/U/A/I/E convention character when
// followed by an uppercase letter, so "FVector" and "Vector" compare equal.
func StripUE5Prefix(name string) string {
	if p := ue5Prefix(name); p != 0 {
		return name[1:]
	}
	return name
}
