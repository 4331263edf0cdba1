package search

import (
	"context"
	"strings"
	"time"

	"github.com/Aman-CERP/ue5query/internal/embed"
	"github.com/Aman-CERP/ue5query/internal/store"
)

// Engine orchestrates the hybrid query path: intent analysis, query
// expansion, the definition branch (FTS5 exact lookup), the semantic branch
// (filtered dense vector search with optional rerank), and the merge of the
// two into a single QueryResult. See spec §4.7.
type Engine struct {
	intent      *IntentAnalyzer
	expander    *QueryExpander
	definitions *DefinitionSearcher
	semantic    *Searcher
	embedder    embed.Embedder
	reranker    Reranker
	config      EngineConfig
}

// NewEngine wires the query-path components together. reranker may be nil
// (treated as unused even if UseReranker is set in a later call's options).
func NewEngine(meta store.MetadataStore, vectors *store.MmapVectorStore, index *SemanticIndex, embedder embed.Embedder, reranker Reranker, cfg EngineConfig) *Engine {
	return &Engine{
		intent:      NewIntentAnalyzer(),
		expander:    NewQueryExpander(),
		definitions: NewDefinitionSearcher(meta),
		semantic:    NewSearcher(vectors, index),
		embedder:    embedder,
		reranker:    reranker,
		config:      cfg,
	}
}

// minDefinitionResultsForNoFallback is the spec §4.7 step 5 threshold: the
// semantic branch runs as a fallback whenever the definition branch yielded
// fewer than this many hits, even if intent was pure DEFINITION.
const minDefinitionResultsForNoFallback = 3

// Query runs the full hybrid retrieval pipeline for one question.
func (e *Engine) Query(ctx context.Context, question string, opts QueryOptions) (*QueryResult, error) {
	start := time.Now()
	question = strings.TrimSpace(question)
	if question == "" {
		return &QueryResult{
			Question: question,
			Scope:    opts.Scope,
			Intent:   Intent{QueryType: QueryTypeUnknown, Reasoning: "empty query"},
		}, nil
	}

	topK := opts.TopK
	if topK <= 0 {
		topK = e.config.DefaultTopK
	}
	if topK > e.config.MaxTopK {
		topK = e.config.MaxTopK
	}

	var timing Timing

	t0 := time.Now()
	intent := e.intent.Analyze(question)
	timing.IntentAnalysisSeconds = time.Since(t0).Seconds()

	t0 = time.Now()
	expandedText := e.expander.Expand(question)
	expandedTerms := e.expander.ExpandToTerms(question)
	timing.ExpansionSeconds = time.Since(t0).Seconds()

	// An expansion term that reads as a UE5 entity upgrades a SEMANTIC
	// classification to HYBRID, so a question like "how does movement work"
	// that expands to include "ACharacter" still gets a definition lookup.
	if intent.QueryType == QueryTypeSemantic {
		for _, term := range expandedTerms {
			if ue5EntityPattern.MatchString(term) {
				intent.QueryType = QueryTypeHybrid
				break
			}
		}
	}

	var definitionResults []DefinitionResult
	runDefinitionBranch := intent.QueryType == QueryTypeDefinition || intent.QueryType == QueryTypeHybrid
	if runDefinitionBranch {
		t0 = time.Now()
		definitionResults = e.runDefinitionBranch(ctx, intent, expandedTerms, opts.Scope)
		timing.DefinitionSearchSeconds = time.Since(t0).Seconds()
	}

	runSemanticBranch := intent.QueryType == QueryTypeSemantic || intent.QueryType == QueryTypeHybrid ||
		len(definitionResults) < minDefinitionResultsForNoFallback

	var semanticResults []SemanticResult
	if runSemanticBranch && e.embedder != nil {
		t0 = time.Now()
		sr, err := e.runSemanticBranch(ctx, intent, expandedText, topK, opts)
		timing.SemanticSearchSeconds = time.Since(t0).Seconds()
		if err == nil {
			semanticResults = sr
		}
	}

	combined := mergeResults(definitionResults, semanticResults, topK)
	timing.TotalSeconds = time.Since(start).Seconds()

	return &QueryResult{
		Question:          question,
		Intent:            intent,
		Scope:             opts.Scope,
		DefinitionResults: definitionResults,
		SemanticResults:   combined,
		Timing:            timing,
	}, nil
}

// runDefinitionBranch assembles the expansion set's candidate entity names
// (the intent's own entity, plus any UE5-shaped expansion term), queries
// each with fuzzy=true, dedupes by (file_path, line_start), and sorts by
// match_quality descending.
func (e *Engine) runDefinitionBranch(ctx context.Context, intent Intent, expandedTerms []string, scope Scope) []DefinitionResult {
	candidates := map[string]store.EntityKind{}
	if intent.EntityName != "" {
		candidates[intent.EntityName] = intent.EntityKind
	}
	for _, term := range expandedTerms {
		if ue5EntityPattern.MatchString(term) {
			if _, ok := candidates[term]; !ok {
				candidates[term] = InferEntityType(term)
			}
		}
	}

	var all []DefinitionResult
	for name, kind := range candidates {
		results, err := e.definitions.Search(ctx, name, kind, scope, true)
		if err != nil {
			continue
		}
		all = append(all, results...)
	}

	all = dedupeDefinitionResults(all)
	sortDefinitionResults(all)
	return all
}

func sortDefinitionResults(results []DefinitionResult) {
	// Stable insertion sort is plenty at the expected candidate-pool scale
	// (tens, not thousands) and keeps equal-quality ties in discovery order.
	for i := 1; i < len(results); i++ {
		for j := i; j > 0 && results[j].MatchScore > results[j-1].MatchScore; j-- {
			results[j], results[j-1] = results[j-1], results[j]
		}
	}
}

// runSemanticBranch encodes the expanded query, runs Filtered Semantic
// Search scoped by origin, and — if requested — reranks an oversampled
// candidate set down to topK.
func (e *Engine) runSemanticBranch(ctx context.Context, intent Intent, expandedText string, topK int, opts QueryOptions) ([]SemanticResult, error) {
	vec, err := e.embedder.Embed(ctx, expandedText)
	if err != nil {
		return nil, err
	}

	searchTopK := topK
	if opts.UseReranker && e.reranker != nil {
		searchTopK = topK * e.config.RerankOversample
	}

	filters := SemanticFilters{Origin: originForScope(opts.Scope)}
	boosts := DefaultBoostOptions()
	if intent.EntityName != "" {
		boosts.BoostEntities = []string{intent.EntityName}
	}

	results, err := e.semantic.Search(ctx, SemanticQuery{
		Vector:    vec,
		QueryText: expandedText,
		QueryType: intent.QueryType,
		TopK:      searchTopK,
		Filters:   filters,
		Boosts:    boosts,
	})
	if err != nil {
		return nil, err
	}

	if opts.UseReranker && e.reranker != nil {
		return e.reranker.Rerank(ctx, expandedText, results, topK)
	}
	if len(results) > topK {
		results = results[:topK]
	}
	return results, nil
}

func originForScope(scope Scope) store.Origin {
	switch scope {
	case ScopeEngine:
		return store.OriginEngine
	case ScopeProject:
		return store.OriginProject
	default:
		return ""
	}
}

// mergeResults returns the semantic results whose normalized path is not
// already covered by a definition result, truncated to topK. Definition
// results are not part of the returned list: they stay in
// QueryResult.DefinitionResults, are not truncated here, and do not count
// toward topK. With no definition results, the semantic results are returned
// truncated to topK.
func mergeResults(definitions []DefinitionResult, semantic []SemanticResult, topK int) []SemanticResult {
	if len(definitions) == 0 {
		if len(semantic) > topK {
			return semantic[:topK]
		}
		return semantic
	}

	covered := make(map[string]bool, len(definitions))
	for _, d := range definitions {
		covered[normalizePath(d.FilePath)] = true
	}

	out := make([]SemanticResult, 0, topK)
	for _, s := range semantic {
		if covered[normalizePath(s.Path)] {
			continue
		}
		out = append(out, s)
		if len(out) >= topK {
			break
		}
	}
	return out
}

func normalizePath(p string) string {
	return strings.ToLower(strings.TrimLeft(strings.ReplaceAll(p, "\\", "/"), "/"))
}
