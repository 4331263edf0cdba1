package search

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/RoaringBitmap/roaring/v2"

	"github.com/Aman-CERP/ue5query/internal/extract"
	"github.com/Aman-CERP/ue5query/internal/store"
)

// SemanticFilters narrows the rows Filtered Semantic Search considers.
// A nil/zero field means "no filter on this dimension".
type SemanticFilters struct {
	Entity       string // chunk must mention this entity
	Origin       store.Origin
	HasUProperty *bool
	HasUClass    *bool
	HasUFunction *bool
	HasUStruct   *bool
	FileType     string // "header", "implementation", or "" for either
}

// BoostOptions configures the multiplicative boost stack applied after
// cosine + sparse scoring.
type BoostOptions struct {
	BoostEntities    []string
	BoostMacros      bool
	UseLogicalBoosts bool // default true; see DefaultBoostOptions
}

// DefaultBoostOptions matches spec's default of use_logical_boosts=true.
func DefaultBoostOptions() BoostOptions {
	return BoostOptions{UseLogicalBoosts: true}
}

// SemanticQuery bundles every input to one Filtered Semantic Search call.
type SemanticQuery struct {
	Vector    []float32
	QueryText string   // for sparse scoring
	QueryType QueryType // for header/implementation prioritization
	TopK      int
	Filters   SemanticFilters
	Boosts    BoostOptions
}

// SemanticIndex precomputes the boolean bitmaps spec §4.4's precondition
// calls for (one per denormalized flag, length N = vector row count) so a
// query-time filter is an O(N) bitwise AND instead of an O(N) table scan.
// It is built once from the full chunk population and reused by every
// subsequent query; callers rebuild it after an ingest run changes the row
// count.
type SemanticIndex struct {
	meta []store.ChunkSearchMeta // indexed by VectorIndex

	hasUProperty     *roaring.Bitmap
	hasUClass        *roaring.Bitmap
	hasUFunction     *roaring.Bitmap
	hasUStruct       *roaring.Bitmap
	isHeader         *roaring.Bitmap
	isImplementation *roaring.Bitmap
	originEngine     *roaring.Bitmap
	originProject    *roaring.Bitmap
}

// BuildSemanticIndex reads every chunk's search metadata from store and
// precomputes the filter bitmaps.
func BuildSemanticIndex(ctx context.Context, meta store.MetadataStore) (*SemanticIndex, error) {
	rows, err := meta.ListChunkSearchMeta(ctx)
	if err != nil {
		return nil, fmt.Errorf("list chunk search meta: %w", err)
	}

	idx := &SemanticIndex{
		hasUProperty:     roaring.New(),
		hasUClass:        roaring.New(),
		hasUFunction:     roaring.New(),
		hasUStruct:       roaring.New(),
		isHeader:         roaring.New(),
		isImplementation: roaring.New(),
		originEngine:     roaring.New(),
		originProject:    roaring.New(),
	}

	maxIndex := 0
	for _, m := range rows {
		if m.VectorIndex > maxIndex {
			maxIndex = m.VectorIndex
		}
	}
	idx.meta = make([]store.ChunkSearchMeta, maxIndex+1)

	for _, m := range rows {
		idx.meta[m.VectorIndex] = m
		row := uint32(m.VectorIndex)
		if m.HasUProperty {
			idx.hasUProperty.Add(row)
		}
		if m.HasUClass {
			idx.hasUClass.Add(row)
		}
		if m.HasUFunction {
			idx.hasUFunction.Add(row)
		}
		if m.HasUStruct {
			idx.hasUStruct.Add(row)
		}
		if m.IsHeader {
			idx.isHeader.Add(row)
		}
		if m.IsImplementation {
			idx.isImplementation.Add(row)
		}
		if m.Origin == store.OriginEngine {
			idx.originEngine.Add(row)
		}
		if m.Origin == store.OriginProject {
			idx.originProject.Add(row)
		}
	}
	return idx, nil
}

// MetaAt returns the denormalized metadata for a vector row, or the zero
// value if the row is out of range (should not happen for a consistent
// index, but callers are defensive here since a stale index reading a
// rebuilt vector file would otherwise panic).
func (idx *SemanticIndex) MetaAt(row int) store.ChunkSearchMeta {
	if row < 0 || row >= len(idx.meta) {
		return store.ChunkSearchMeta{}
	}
	return idx.meta[row]
}

// buildMask intersects the precomputed bitmaps for every requested flag
// filter, then applies the non-bitmapped list-membership filters (entity)
// with a second pass, exactly as spec §4.4 step 1 describes.
func (idx *SemanticIndex) buildMask(f SemanticFilters) *roaring.Bitmap {
	mask := roaring.New()
	mask.AddRange(0, uint64(len(idx.meta)))

	if f.HasUProperty != nil {
		applyFlag(mask, idx.hasUProperty, *f.HasUProperty)
	}
	if f.HasUClass != nil {
		applyFlag(mask, idx.hasUClass, *f.HasUClass)
	}
	if f.HasUFunction != nil {
		applyFlag(mask, idx.hasUFunction, *f.HasUFunction)
	}
	if f.HasUStruct != nil {
		applyFlag(mask, idx.hasUStruct, *f.HasUStruct)
	}
	switch f.FileType {
	case "header":
		mask.And(idx.isHeader)
	case "implementation":
		mask.And(idx.isImplementation)
	}
	switch f.Origin {
	case store.OriginEngine:
		mask.And(idx.originEngine)
	case store.OriginProject:
		mask.And(idx.originProject)
	}

	if f.Entity != "" {
		entityLower := strings.ToLower(f.Entity)
		it := mask.Iterator()
		filtered := roaring.New()
		for it.HasNext() {
			row := it.Next()
			if chunkHasEntity(idx.meta[row].Entities, entityLower) {
				filtered.Add(row)
			}
		}
		mask = filtered
	}
	return mask
}

func applyFlag(mask, flagBitmap *roaring.Bitmap, want bool) {
	if want {
		mask.And(flagBitmap)
	} else {
		mask.AndNot(flagBitmap)
	}
}

func chunkHasEntity(entities []string, entityLower string) bool {
	for _, e := range entities {
		if strings.ToLower(e) == entityLower {
			return true
		}
	}
	return false
}

// Searcher runs Filtered Semantic Search: mask construction, exact cosine
// scoring over the masked subset, sparse keyword addition, and the
// multiplicative boost stack.
type Searcher struct {
	vectors *store.MmapVectorStore
	index   *SemanticIndex
}

// NewSearcher builds a Searcher over an already-open vector store and
// semantic index.
func NewSearcher(vectors *store.MmapVectorStore, index *SemanticIndex) *Searcher {
	return &Searcher{vectors: vectors, index: index}
}

// Search runs the full §4.4 algorithm and returns the top_k SemanticResults,
// stable-sorted descending by final (boosted) score.
func (s *Searcher) Search(ctx context.Context, q SemanticQuery) ([]SemanticResult, error) {
	mask := s.index.buildMask(q.Filters)
	if mask.IsEmpty() {
		return nil, nil
	}

	// Score every surviving row exactly (k = cardinality): boosting can
	// reorder results, so truncating to top_k before boosting would risk
	// dropping a candidate that only becomes top-k after its boost applies.
	card := int(mask.GetCardinality())
	raw, err := s.vectors.Search(ctx, q.Vector, card, mask)
	if err != nil {
		return nil, fmt.Errorf("vector search: %w", err)
	}

	tokens := tokenizeSparseQuery(q.QueryText)
	boostEntityLower := make(map[string]bool, len(q.Boosts.BoostEntities))
	for _, e := range q.Boosts.BoostEntities {
		boostEntityLower[strings.ToLower(e)] = true
	}

	results := make([]SemanticResult, 0, len(raw))
	for _, r := range raw {
		meta := s.index.MetaAt(r.VectorIndex)
		sparse := sparseScore(tokens, meta.Path, meta.Entities)
		final := applyBoosts(float64(r.Score)+sparse, meta, q, boostEntityLower)

		results = append(results, SemanticResult{
			Path:        meta.Path,
			ChunkIndex:  meta.ChunkIndex,
			TotalChunks: meta.TotalChunks,
			Origin:      meta.Origin,
			Score:       final,
			VectorScore: float64(r.Score),
			SparseScore: sparse,
		})
	}

	sort.SliceStable(results, func(i, j int) bool { return results[i].Score > results[j].Score })

	topK := q.TopK
	if topK <= 0 || topK > len(results) {
		topK = len(results)
	}
	return results[:topK], nil
}

// applyBoosts applies the multiplicative factor stack from spec §4.4 step 4
// to a single candidate's cosine+sparse score.
func applyBoosts(base float64, meta store.ChunkSearchMeta, q SemanticQuery, boostEntityLower map[string]bool) float64 {
	score := base

	if len(boostEntityLower) > 0 && chunkIntersectsBoostEntities(meta.Entities, boostEntityLower) {
		score *= 1.20
	}
	if q.Boosts.BoostMacros && (meta.HasUProperty || meta.HasUClass || meta.HasUFunction || meta.HasUStruct || meta.HasUEnum) {
		score *= 1.15
	}

	if q.Boosts.UseLogicalBoosts && len(q.Boosts.BoostEntities) > 0 {
		if entityNameInFileName(q.Boosts.BoostEntities, meta.Path) {
			score *= 3.0
		}
		if q.QueryType == QueryTypeDefinition || q.QueryType == QueryTypeHybrid {
			switch {
			case meta.IsHeader:
				score *= 2.5
			case meta.IsImplementation:
				score *= 0.5
			}
		}
		if !chunkIntersectsBoostEntities(meta.Entities, boostEntityLower) {
			score *= 0.1
		}
		if len(meta.Entities) > 3 {
			score *= 1.3
		}
	}

	return score
}

func chunkIntersectsBoostEntities(entities []string, boostEntityLower map[string]bool) bool {
	for _, e := range entities {
		if boostEntityLower[strings.ToLower(e)] {
			return true
		}
	}
	return false
}

// entityNameInFileName reports whether any boost entity's prefix-stripped
// name appears case-insensitively in path's file name.
func entityNameInFileName(boostEntities []string, path string) bool {
	fileName := path
	if idx := strings.LastIndexAny(path, "/\\"); idx >= 0 {
		fileName = path[idx+1:]
	}
	fileName = strings.ToLower(fileName)

	for _, e := range boostEntities {
		stripped := strings.ToLower(extract.StripUE5Prefix(e))
		if stripped != "" && strings.Contains(fileName, stripped) {
			return true
		}
	}
	return false
}
