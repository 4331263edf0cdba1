// Package search implements query intent analysis, query expansion, filtered
// semantic search, optional reranking, and the hybrid engine that
// orchestrates them into a single query path over UE5 C++ source.
package search

import (
	"context"
	"time"

	"github.com/Aman-CERP/ue5query/internal/store"
)

// QueryType classifies a question by what kind of retrieval will answer it
// best. Unlike a continuous lexical/semantic weight blend, the hybrid engine
// branches on this value: DEFINITION queries go to the FTS5 definition
// index first, SEMANTIC queries go straight to filtered vector search, and
// HYBRID queries run both.
type QueryType string

const (
	QueryTypeDefinition QueryType = "DEFINITION"
	QueryTypeSemantic   QueryType = "SEMANTIC"
	QueryTypeHybrid     QueryType = "HYBRID"
	QueryTypeUnknown    QueryType = "UNKNOWN"
)

// Intent is the result of analyzing a question's surface form.
type Intent struct {
	QueryType     QueryType
	EntityName    string // best-guess UE5 entity name, "" if none detected
	EntityKind    store.EntityKind
	Confidence    float64
	Reasoning     string // short human-readable note on which rule fired
	EnhancedQuery string // query text, possibly with an inferred kind word appended
	IsFileSearch  bool   // "where is"/"what file"/"location of" phrasing
}

// Scope restricts a query to engine source, project source, or both.
type Scope string

const (
	ScopeAll     Scope = "all"
	ScopeEngine  Scope = "engine"
	ScopeProject Scope = "project"
)

// QueryOptions configures a single Query call.
type QueryOptions struct {
	TopK         int
	Scope        Scope
	UseReranker  bool
	ShowReasoning bool
}

// DefaultQueryOptions mirrors the reference implementation's defaults.
func DefaultQueryOptions() QueryOptions {
	return QueryOptions{TopK: 5, Scope: ScopeAll}
}

// DefinitionResult is one exact-match hit from the definition index.
type DefinitionResult struct {
	FilePath   string
	LineStart  int
	LineEnd    int
	EntityKind store.EntityKind
	EntityName string
	Definition string
	Members    []string // "<type> <name>" per parsed struct/class member
	Origin     store.Origin
	MatchScore float64 // match-quality tier, see internal/extract
}

// SemanticResult is one hit from filtered semantic search.
type SemanticResult struct {
	Path         string
	ChunkIndex   int
	TotalChunks  int
	Content      string
	Score        float64
	Origin       store.Origin
	VectorScore  float64 // pre-boost cosine similarity
	SparseScore  float64 // additive keyword-overlap score
	RerankScore  float64 // cross-encoder score, 0 if not reranked
}

// Timing records the wall-clock duration of each phase of a query, in
// seconds, matching the reference engine's per-phase instrumentation.
type Timing struct {
	IntentAnalysisSeconds  float64
	ExpansionSeconds       float64
	DefinitionSearchSeconds float64
	SemanticSearchSeconds  float64
	RerankSeconds          float64
	TotalSeconds           float64
}

// QueryResult is the top-level result of a single hybrid query.
type QueryResult struct {
	Question          string
	Intent            Intent
	Scope             Scope
	DefinitionResults []DefinitionResult
	SemanticResults   []SemanticResult
	Timing            Timing
}

// Reranker rescoring interface; see reranker.go.
type Reranker interface {
	Rerank(ctx context.Context, query string, candidates []SemanticResult, topK int) ([]SemanticResult, error)
}

// EngineConfig configures the Hybrid Engine.
type EngineConfig struct {
	DefaultTopK    int
	MaxTopK        int
	SearchTimeout  time.Duration
	RerankOversample int // multiplier applied to topK before reranking
}

// DefaultEngineConfig returns sensible defaults.
func DefaultEngineConfig() EngineConfig {
	return EngineConfig{
		DefaultTopK:      5,
		MaxTopK:          100,
		SearchTimeout:    10 * time.Second,
		RerankOversample: 10,
	}
}
