package search

import (
	"strings"
)

// sparseStopWords is the fixed small stop-word set sparse scoring removes
// before matching query tokens against a chunk's file name and entities.
// English-only by design: the corpus is UE5 C++ identifiers and English
// developer prose, so locale-aware stemming would add cost without adding
// recall.
var sparseStopWords = map[string]bool{
	"the": true, "a": true, "an": true, "is": true, "are": true, "of": true,
	"in": true, "on": true, "for": true, "to": true, "and": true, "or": true,
	"how": true, "what": true, "where": true, "does": true, "do": true,
	"this": true, "that": true, "it": true, "with": true, "as": true,
}

// tokenizeSparseQuery lowercases query_text, splits on whitespace, and
// drops stop words, matching spec §4.4's "Sparse scoring" algorithm.
func tokenizeSparseQuery(queryText string) []string {
	fields := strings.Fields(strings.ToLower(queryText))
	tokens := make([]string, 0, len(fields))
	for _, f := range fields {
		if f == "" || sparseStopWords[f] {
			continue
		}
		tokens = append(tokens, f)
	}
	return tokens
}

// sparseScore computes the additive keyword-overlap score for one chunk
// against the tokenized query, using the magnitude constants spec §4.4/§9
// calls out as calibration choices, not derived quantities:
//
//	+0.4 if token appears in the file's base name   (+0.1 if only the full path matches)
//	+0.5 if token exactly matches one of the chunk's entities
//	+0.2 if token is a substring of any of the chunk's entities
//
// Scores are summed across tokens, not capped.
func sparseScore(tokens []string, filePath string, entities []string) float64 {
	if len(tokens) == 0 {
		return 0
	}

	fullPath := strings.ToLower(filePath)
	baseName := fullPath
	if idx := strings.LastIndexAny(fullPath, "/\\"); idx >= 0 {
		baseName = fullPath[idx+1:]
	}

	lowerEntities := make([]string, len(entities))
	for i, e := range entities {
		lowerEntities[i] = strings.ToLower(e)
	}

	var score float64
	for _, tok := range tokens {
		if strings.Contains(baseName, tok) {
			score += 0.4
		} else if strings.Contains(fullPath, tok) {
			score += 0.1
		}

		exact, substr := false, false
		for _, e := range lowerEntities {
			if e == tok {
				exact = true
				break
			}
			if strings.Contains(e, tok) {
				substr = true
			}
		}
		switch {
		case exact:
			score += 0.5
		case substr:
			score += 0.2
		}
	}
	return score
}
