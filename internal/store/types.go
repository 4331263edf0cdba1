// Package store provides the dense vector store (mmap'd flat matrix),
// the FTS5 definition index, and relational metadata persistence (SQLite).
// This is the persistence layer for all indexed data.
package store

import (
	"context"
	"fmt"
	"time"

	"github.com/RoaringBitmap/roaring/v2"
)

// EntityKind represents the kind of a UE5 C++ entity.
type EntityKind string

const (
	EntityKindStruct   EntityKind = "struct"
	EntityKindClass    EntityKind = "class"
	EntityKindEnum     EntityKind = "enum"
	EntityKindFunction EntityKind = "function"
	EntityKindDelegate EntityKind = "delegate"
	EntityKindUnknown  EntityKind = "unknown"
)

// State keys for metadata store (dimension/model compatibility tracking).
const (
	StateKeyIndexDimension = "index_embedding_dimension"
	StateKeyIndexModel     = "index_embedding_model"
)

// Checkpoint state keys for resumable ingest.
const (
	StateKeyCheckpointStage         = "checkpoint_stage"
	StateKeyCheckpointTotal         = "checkpoint_total"
	StateKeyCheckpointEmbedded      = "checkpoint_embedded"
	StateKeyCheckpointTimestamp     = "checkpoint_timestamp"
	StateKeyCheckpointEmbedderModel = "checkpoint_embedder_model"
)

// Origin distinguishes engine source from project (game) source, matching
// the scope filter exposed on the query API ("engine", "project", "all").
type Origin string

const (
	OriginEngine  Origin = "engine"
	OriginProject Origin = "project"
)

// File represents a tracked C++ source file in the index.
type File struct {
	ID               string // SHA256(relative_path)
	Path             string // Relative to project root
	Origin           Origin
	SHA256           string
	Size             int64
	ModTime          time.Time
	IsHeader         bool // .h / .hpp / .inl
	IsImplementation bool // .cpp / .cc / .cxx
	IndexedAt        time.Time
}

// Chunk is a retrievable unit of file content used by the semantic search
// path. ChunkIndex/TotalChunks identify its position for adjacency lookups;
// VectorIndex is the row offset into the external dense vector matrix.
type Chunk struct {
	ID           string // the chunker's chunk ID (hash of path and content)
	FileID       string
	Path         string
	ChunkIndex   int
	TotalChunks  int
	ByteLength   int
	Content      string
	VectorIndex  int
	HasUProperty bool
	HasUClass    bool
	HasUFunction bool
	HasUStruct   bool
	HasUEnum     bool

	// Entities lists the UE5-prefixed entity names this chunk's content
	// references, denormalized at ingest time for O(1) boost/filter lookup
	// without re-scanning chunk text on the query path.
	Entities []string
}

// ChunkSearchMeta is the denormalized, per-chunk projection the Filtered
// Semantic Search component scans in place of re-joining files/chunks/
// entities on every query: one row per vector-matrix row.
type ChunkSearchMeta struct {
	VectorIndex      int
	Path             string
	ChunkIndex       int
	TotalChunks      int
	Origin           Origin
	IsHeader         bool
	IsImplementation bool
	HasUProperty     bool
	HasUClass        bool
	HasUFunction     bool
	HasUStruct       bool
	HasUEnum         bool
	Entities         []string
}

// Entity is a globally unique named C++ symbol (struct/class/enum/function/
// delegate) discovered by the definition extractor.
type Entity struct {
	Name   string
	Kind   EntityKind
	Prefix byte // 0 if none; one of F,U,A,I,E
}

// Member is a single UPROPERTY/UFUNCTION-annotated (or plain) member of a
// Definition's body.
type Member struct {
	Name        string
	Type        string
	IsUProperty bool
	IsUFunction bool
}

// Definition is the full extracted source of one entity: a brace-balanced
// block with its source location and parsed members.
type Definition struct {
	FileID     string
	Path       string // denormalized from the owning File, for scope/path display without a join
	Origin     Origin // denormalized from the owning File, for scope filtering without a join
	EntityName string
	EntityKind EntityKind
	LineStart  int
	LineEnd    int
	Content    string
	Members    []Member
}

// MetadataStore persists files, chunks, entities, and definitions in SQLite,
// and answers the FTS5-backed definition lookup.
type MetadataStore interface {
	// File operations
	SaveFiles(ctx context.Context, files []*File) error
	GetFileByPath(ctx context.Context, path string) (*File, error)
	GetChangedFiles(ctx context.Context, since time.Time) ([]*File, error)
	DeleteFile(ctx context.Context, fileID string) error // cascades to chunks/definitions
	DeleteFilesByOrigin(ctx context.Context, origin Origin) error

	// Chunk operations
	SaveChunks(ctx context.Context, chunks []*Chunk) error
	GetChunk(ctx context.Context, id string) (*Chunk, error)
	GetChunks(ctx context.Context, ids []string) ([]*Chunk, error)
	GetChunksByFile(ctx context.Context, fileID string) ([]*Chunk, error)
	GetAdjacentChunk(ctx context.Context, fileID string, chunkIndex int) (*Chunk, error)
	DeleteChunksByFile(ctx context.Context, fileID string) error

	// Entity / Definition operations
	SaveDefinitions(ctx context.Context, fileID string, defs []*Definition) error
	SearchDefinitions(ctx context.Context, query string, limit int) ([]*Definition, error)
	GetDefinitionsByEntity(ctx context.Context, entityName string) ([]*Definition, error)
	DeleteDefinitionsByFile(ctx context.Context, fileID string) error

	// ListChunkSearchMeta returns the denormalized per-chunk projection
	// (path, origin, header/macro flags, entities) that Filtered Semantic
	// Search scans to build its row masks and boosts, indexed by
	// VectorIndex.
	ListChunkSearchMeta(ctx context.Context) ([]ChunkSearchMeta, error)

	// State operations (key-value store for runtime state)
	GetState(ctx context.Context, key string) (string, error)
	SetState(ctx context.Context, key, value string) error

	// Checkpoint operations (for resumable ingest)
	SaveIndexCheckpoint(ctx context.Context, stage string, total, embeddedCount int, embedderModel string) error
	LoadIndexCheckpoint(ctx context.Context) (*IndexCheckpoint, error)
	ClearIndexCheckpoint(ctx context.Context) error

	// Lifecycle
	Close() error
}

// IndexCheckpoint represents the saved state of an ingest operation for resume.
type IndexCheckpoint struct {
	Stage         string
	Total         int
	EmbeddedCount int
	Timestamp     time.Time
	EmbedderModel string
}

// IndexInfo reports index composition for the `ue5query index info` command.
type IndexInfo struct {
	Location        string
	IndexModel      string
	IndexDimensions int
	ChunkCount      int
	FileCount       int
	IndexSizeBytes  int64
	CreatedAt       time.Time
	UpdatedAt       time.Time
	CurrentModel    string
	CurrentDims     int
	Compatible      bool
}

// CurrentSchemaVersion is the current database schema version.
const CurrentSchemaVersion = 1

// VectorResult represents a single dense search result, pre-boost.
type VectorResult struct {
	VectorIndex int
	Score       float32 // cosine similarity, -1..1
}

// VectorStoreConfig configures the dense vector store.
type VectorStoreConfig struct {
	// Dimensions is the vector width (matches the embedder in use).
	Dimensions int
}

// DefaultVectorStoreConfig returns sensible defaults for the vector store.
func DefaultVectorStoreConfig(dimensions int) VectorStoreConfig {
	return VectorStoreConfig{Dimensions: dimensions}
}

// VectorStore provides exact, filter-masked cosine search over a flat,
// memory-mapped N x D float32 matrix of L2-normalized row vectors. Unlike an
// ANN index, Search never returns an approximate result: every row allowed by
// mask is scored.
type VectorStore interface {
	// Search scores query against every row where mask is nil or mask[row]
	// is true, returning the top k by cosine similarity descending.
	Search(ctx context.Context, query []float32, k int, mask *roaring.Bitmap) ([]VectorResult, error)

	// Dimensions reports the configured row width.
	Dimensions() int

	// Count returns the number of rows in the matrix.
	Count() int

	// RowAt copies out the normalized vector at the given row, for tests and
	// for rerank input reconstruction.
	RowAt(row int) ([]float32, error)

	Close() error
}

// ErrDimensionMismatch indicates a query vector's width does not match the
// store's configured dimensionality.
type ErrDimensionMismatch struct {
	Expected int
	Got      int
}

func (e ErrDimensionMismatch) Error() string {
	return fmt.Sprintf("dimension mismatch: expected %d, got %d (rebuild the index with 'ue5query index --force')", e.Expected, e.Got)
}
