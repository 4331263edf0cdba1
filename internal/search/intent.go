package search

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/Aman-CERP/ue5query/internal/store"
)

// Compiled regex patterns for intent classification, checked in priority
// order. Grounded on the pattern-classifier idiom: regex-driven, no model
// call on the hot path.
var (
	// UE5 prefixed identifiers: F/U/A/I + PascalCase, or E + PascalCase enum.
	ue5EntityPattern = regexp.MustCompile(`\b([FUAIE][A-Z][A-Za-z0-9_]*)\b`)

	// "where is", "what file", "location of" — the query is really asking
	// which file holds something, not for its exact definition text.
	fileSearchPattern = regexp.MustCompile(`(?i)\b(where is|what file|location of)\b`)

	// Natural-language question starters bias toward semantic search.
	naturalLanguagePattern = regexp.MustCompile(`(?i)^(how|what|why|when|explain|describe|show me|walk me through)\b`)
)

// InferEntityType guesses the EntityKind for a bare identifier from its UE5
// prefix convention. Pure function: no I/O, safe to call from the expander.
func InferEntityType(name string) store.EntityKind {
	if name == "" {
		return store.EntityKindUnknown
	}
	if len(name) < 2 {
		return store.EntityKindUnknown
	}
	second := name[1]
	if second < 'A' || second > 'Z' {
		return store.EntityKindUnknown
	}
	switch name[0] {
	case 'F':
		return store.EntityKindStruct
	case 'U':
		return store.EntityKindClass
	case 'A':
		return store.EntityKindClass
	case 'I':
		return store.EntityKindClass // interface, stored as class kind with 'I' prefix
	case 'E':
		return store.EntityKindEnum
	default:
		return store.EntityKindUnknown
	}
}

// IntentAnalyzer classifies a question into a QueryType and, when the
// question names a UE5 entity, extracts that entity name for the
// definition-search branch.
type IntentAnalyzer struct{}

// NewIntentAnalyzer constructs an IntentAnalyzer. Stateless; safe to share.
func NewIntentAnalyzer() *IntentAnalyzer {
	return &IntentAnalyzer{}
}

// Analyze classifies question in priority order:
//  1. A "where is" / "what file" / "location of" phrasing -> HYBRID with
//     is_file_search set, regardless of any entity also present.
//  2. Exactly one UE5-prefixed identifier together with a natural-language
//     question starter (e.g. "how does X work") -> HYBRID, entity_name/
//     entity_type set from it. Confidence 0.7.
//  3. Exactly one UE5-prefixed identifier without such a starter ->
//     DEFINITION, entity_name/entity_type set from it. Confidence 0.9.
//  4. Otherwise -> SEMANTIC. Confidence 0.5.
//
// An empty question has no intent at all and classifies as unknown.
func (a *IntentAnalyzer) Analyze(question string) Intent {
	q := strings.TrimSpace(question)
	if q == "" {
		return Intent{QueryType: QueryTypeUnknown, Reasoning: "empty query"}
	}

	matches := ue5EntityPattern.FindAllString(q, -1)
	entity := ""
	if len(matches) == 1 {
		entity = matches[0]
	}

	hasNLStarter := naturalLanguagePattern.MatchString(q)

	if fileSearchPattern.MatchString(q) {
		intent := Intent{
			QueryType:    QueryTypeHybrid,
			IsFileSearch: true,
			Confidence:   0.7,
			Reasoning:    "query asks where something is located",
		}
		if entity != "" {
			intent.EntityName = entity
			intent.EntityKind = InferEntityType(entity)
		}
		intent.EnhancedQuery = enhanceQuery(q, intent.EntityKind)
		return intent
	}

	switch {
	case entity != "" && hasNLStarter:
		intent := Intent{
			QueryType:  QueryTypeHybrid,
			EntityName: entity,
			EntityKind: InferEntityType(entity),
			Confidence: 0.7,
			Reasoning:  "natural-language question naming a UE5 entity",
		}
		intent.EnhancedQuery = enhanceQuery(q, intent.EntityKind)
		return intent
	case entity != "":
		intent := Intent{
			QueryType:  QueryTypeDefinition,
			EntityName: entity,
			EntityKind: InferEntityType(entity),
			Confidence: 0.9,
			Reasoning:  "query names exactly one UE5 entity",
		}
		intent.EnhancedQuery = enhanceQuery(q, intent.EntityKind)
		return intent
	case hasNLStarter:
		return Intent{
			QueryType:     QueryTypeSemantic,
			Confidence:    0.5,
			Reasoning:     "natural-language question with no named entity",
			EnhancedQuery: q,
		}
	default:
		return Intent{
			QueryType:     QueryTypeSemantic,
			Confidence:    0.5,
			Reasoning:     "no entity or question phrasing recognized",
			EnhancedQuery: q,
		}
	}
}

// enhanceQuery appends the inferred kind word to help the embedding model
// disambiguate, e.g. "FHitResult" -> "FHitResult struct".
func enhanceQuery(q string, kind store.EntityKind) string {
	if kind == "" || kind == store.EntityKindUnknown {
		return q
	}
	return fmt.Sprintf("%s %s", q, kind)
}
