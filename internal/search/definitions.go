package search

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/Aman-CERP/ue5query/internal/extract"
	"github.com/Aman-CERP/ue5query/internal/store"
)

// DefinitionSearcher is the engine-facing wrapper over the FTS5 definition
// index: it turns a raw entity name (possibly fuzzy) into ranked
// DefinitionResults, scoped by origin.
type DefinitionSearcher struct {
	meta store.MetadataStore
}

// NewDefinitionSearcher constructs a DefinitionSearcher over an already-open
// metadata store.
func NewDefinitionSearcher(meta store.MetadataStore) *DefinitionSearcher {
	return &DefinitionSearcher{meta: meta}
}

// definitionCandidatePoolSize bounds how many FTS hits are pulled before
// match-quality scoring and scope filtering narrow them down.
const definitionCandidatePoolSize = 50

// Search looks up entityName in the FTS5 definition index, scores every
// candidate by extract.MatchQuality against entityName (passing fuzzy
// through, which disables the substring and Levenshtein tiers when false),
// drops non-matches (quality 0), filters by scope, and returns results
// sorted by match quality descending.
func (s *DefinitionSearcher) Search(ctx context.Context, entityName string, entityKind store.EntityKind, scope Scope, fuzzy bool) ([]DefinitionResult, error) {
	if strings.TrimSpace(entityName) == "" {
		return nil, nil
	}

	defs, err := s.meta.SearchDefinitions(ctx, entityName, definitionCandidatePoolSize)
	if err != nil {
		return nil, fmt.Errorf("search definitions: %w", err)
	}

	var results []DefinitionResult
	for _, d := range defs {
		if !scopeAllows(scope, d.Origin) {
			continue
		}
		if entityKind != "" && entityKind != store.EntityKindUnknown && d.EntityKind != entityKind {
			continue
		}
		quality := extract.MatchQuality(entityName, d.EntityName, fuzzy)
		if quality <= 0 {
			continue
		}
		results = append(results, DefinitionResult{
			FilePath:   d.Path,
			LineStart:  d.LineStart,
			LineEnd:    d.LineEnd,
			EntityKind: d.EntityKind,
			EntityName: d.EntityName,
			Definition: d.Content,
			Members:    renderMembers(d.Members),
			Origin:     d.Origin,
			MatchScore: quality,
		})
	}

	results = dedupeDefinitionResults(results)
	sort.SliceStable(results, func(i, j int) bool { return results[i].MatchScore > results[j].MatchScore })
	return results, nil
}

func scopeAllows(scope Scope, origin store.Origin) bool {
	switch scope {
	case ScopeEngine:
		return origin == store.OriginEngine
	case ScopeProject:
		return origin == store.OriginProject
	default:
		return true
	}
}

// renderMembers flattens parsed struct/class members into "<type> <name>"
// strings for the query result, e.g. "float Time", "FVector ImpactPoint".
func renderMembers(members []store.Member) []string {
	if len(members) == 0 {
		return nil
	}
	out := make([]string, len(members))
	for i, m := range members {
		out[i] = strings.TrimSpace(m.Type + " " + m.Name)
	}
	return out
}

// dedupeDefinitionResults drops duplicate (file_path, line_start) pairs,
// keeping the first occurrence in input order. Callers sort by match quality
// afterwards, so the kept duplicate is not necessarily the highest-scoring one.
func dedupeDefinitionResults(results []DefinitionResult) []DefinitionResult {
	seen := make(map[string]bool, len(results))
	out := make([]DefinitionResult, 0, len(results))
	for _, r := range results {
		key := fmt.Sprintf("%s:%d", r.FilePath, r.LineStart)
		if seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, r)
	}
	return out
}
