// Package ingest drives the end-to-end indexing pipeline: scan the project
// tree, extract definitions and chunk files, embed the chunks, and persist
// metadata and vectors to disk.
package ingest

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"
	"time"

	"github.com/Aman-CERP/ue5query/internal/chunk"
	"github.com/Aman-CERP/ue5query/internal/config"
	"github.com/Aman-CERP/ue5query/internal/embed"
	"github.com/Aman-CERP/ue5query/internal/extract"
	"github.com/Aman-CERP/ue5query/internal/scanner"
	"github.com/Aman-CERP/ue5query/internal/store"
	"github.com/Aman-CERP/ue5query/internal/ui"
)

// embeddingBatchSize bounds how many chunks are sent to the embedder per
// call, matching the checkpoint granularity.
const embeddingBatchSize = 32

// RunnerConfig configures a single indexing run.
type RunnerConfig struct {
	// RootDir is the project root directory to index.
	RootDir string

	// DataDir is the .ue5query data directory (defaults to RootDir/.ue5query).
	DataDir string

	// ResumeFromCheckpoint is the number of chunks already embedded, used to
	// skip re-embedding on a resumed run.
	ResumeFromCheckpoint int

	// CheckpointModel is the embedder model name recorded in the checkpoint,
	// validated against the current embedder before resuming.
	CheckpointModel string
}

// RunnerResult summarizes the outcome of an indexing run.
type RunnerResult struct {
	Files    int
	Chunks   int
	Duration time.Duration
	Warnings int
}

// RunnerDependencies holds the injected collaborators a Runner needs.
type RunnerDependencies struct {
	Renderer ui.Renderer
	Config   *config.Config
	Metadata store.MetadataStore
	Embedder embed.Embedder
	Chunker  chunk.Chunker
}

// Runner executes the indexing pipeline with progress reporting.
type Runner struct {
	renderer ui.Renderer
	config   *config.Config
	metadata store.MetadataStore
	embedder embed.Embedder
	chunker  chunk.Chunker
	extractor *extract.Extractor
}

// NewRunner validates dependencies and constructs a Runner.
func NewRunner(deps RunnerDependencies) (*Runner, error) {
	if deps.Renderer == nil {
		return nil, fmt.Errorf("renderer is required")
	}
	if deps.Config == nil {
		return nil, fmt.Errorf("config is required")
	}
	if deps.Metadata == nil {
		return nil, fmt.Errorf("metadata store is required")
	}
	if deps.Embedder == nil {
		return nil, fmt.Errorf("embedder is required")
	}

	chunker := deps.Chunker
	if chunker == nil {
		chunker = chunk.NewCodeChunker()
	}

	return &Runner{
		renderer:  deps.Renderer,
		config:    deps.Config,
		metadata:  deps.Metadata,
		embedder:  deps.Embedder,
		chunker:   chunker,
		extractor: extract.New(),
	}, nil
}

type stageTiming struct {
	scan   time.Duration
	chunk  time.Duration
	embed  time.Duration
	index  time.Duration
}

// Run executes the full indexing pipeline: scan, extract+chunk, embed, and
// write the vector matrix and metadata to DataDir.
func (r *Runner) Run(ctx context.Context, cfg RunnerConfig) (*RunnerResult, error) {
	startTime := time.Now()
	var warnCount int
	var timing stageTiming

	root := cfg.RootDir
	dataDir := cfg.DataDir
	if dataDir == "" {
		dataDir = filepath.Join(root, ".ue5query")
	}
	if err := os.MkdirAll(dataDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create data dir: %w", err)
	}

	scanStart := time.Now()
	files, err := r.scanFiles(ctx, root)
	if err != nil {
		return nil, err
	}
	timing.scan = time.Since(scanStart)

	if len(files) == 0 {
		r.renderer.Complete(ui.CompletionStats{Duration: time.Since(startTime)})
		return &RunnerResult{Duration: time.Since(startTime)}, nil
	}

	chunkStart := time.Now()
	storeFiles, allChunks, storeChunks, warns, err := r.processFiles(ctx, root, files)
	if err != nil {
		return nil, err
	}
	timing.chunk = time.Since(chunkStart)
	warnCount += warns

	if len(allChunks) == 0 {
		return &RunnerResult{Files: len(storeFiles), Duration: time.Since(startTime), Warnings: warnCount}, nil
	}

	if err := r.metadata.SaveFiles(ctx, storeFiles); err != nil {
		return nil, fmt.Errorf("failed to save files: %w", err)
	}
	if err := r.metadata.SaveChunks(ctx, storeChunks); err != nil {
		return nil, fmt.Errorf("failed to save chunks: %w", err)
	}

	embedStart := time.Now()
	currentModel := r.embedder.ModelName()
	rows, err := r.generateEmbeddings(ctx, allChunks, storeChunks, cfg, currentModel)
	if err != nil {
		return nil, err
	}
	timing.embed = time.Since(embedStart)

	if err := r.metadata.SaveChunks(ctx, storeChunks); err != nil {
		return nil, fmt.Errorf("failed to save chunks with vector indices: %w", err)
	}

	indexStart := time.Now()
	vectorPath := filepath.Join(dataDir, "vectors.bin")
	if err := store.WriteMmapVectorFile(vectorPath, r.embedder.Dimensions(), rows); err != nil {
		return nil, fmt.Errorf("failed to write vector store: %w", err)
	}
	timing.index = time.Since(indexStart)

	if err := r.metadata.SetState(ctx, store.StateKeyIndexDimension, strconv.Itoa(r.embedder.Dimensions())); err != nil {
		slog.Warn("failed to store index dimension", slog.String("error", err.Error()))
	}
	if err := r.metadata.SetState(ctx, store.StateKeyIndexModel, currentModel); err != nil {
		slog.Warn("failed to store index model", slog.String("error", err.Error()))
	}
	if err := r.metadata.ClearIndexCheckpoint(ctx); err != nil {
		slog.Warn("failed to clear checkpoint", slog.String("error", err.Error()))
	}

	duration := time.Since(startTime)

	r.renderer.Complete(ui.CompletionStats{
		Files:    len(storeFiles),
		Chunks:   len(allChunks),
		Duration: duration,
		Warnings: warnCount,
		Stages: ui.StageTimings{
			Scan:  timing.scan,
			Chunk: timing.chunk,
			Embed: timing.embed,
			Index: timing.index,
		},
		Embedder: ui.EmbedderInfo{
			Model:      currentModel,
			Dimensions: r.embedder.Dimensions(),
		},
	})

	slog.Info("index_complete",
		slog.Int("files", len(storeFiles)),
		slog.Int("chunks", len(allChunks)),
		slog.String("duration_total", duration.String()),
		slog.String("embedder_model", currentModel),
		slog.Int("embedder_dimensions", r.embedder.Dimensions()))

	return &RunnerResult{
		Files:    len(storeFiles),
		Chunks:   len(allChunks),
		Duration: duration,
		Warnings: warnCount,
	}, nil
}

// scanFiles walks the project tree for indexable C++ source.
func (r *Runner) scanFiles(ctx context.Context, root string) ([]*scanner.FileInfo, error) {
	r.renderer.UpdateProgress(ui.ProgressEvent{
		Stage:   ui.StageScanning,
		Message: fmt.Sprintf("Scanning %s...", root),
	})
	slog.Info("index_scan_started", slog.String("path", root))

	s, err := scanner.New()
	if err != nil {
		return nil, fmt.Errorf("failed to create scanner: %w", err)
	}

	var submodules *config.SubmoduleConfig
	if r.config.Submodules.Enabled {
		submodules = &r.config.Submodules
	}

	results, err := s.Scan(ctx, &scanner.ScanOptions{
		RootDir:          root,
		IncludePatterns:  r.config.Paths.Include,
		ExcludePatterns:  r.config.Paths.Exclude,
		RespectGitignore: true,
		Workers:          runtime.NumCPU(),
		Submodules:       submodules,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to start scanning: %w", err)
	}

	var files []*scanner.FileInfo
	for result := range results {
		if result.Error != nil {
			r.renderer.AddError(ui.ErrorEvent{File: "", Err: result.Error, IsWarn: true})
			continue
		}
		files = append(files, result.File)
	}

	slog.Info("index_scan_complete", slog.Int("files", len(files)))
	return files, nil
}

// processFiles reads, classifies, extracts definitions from, and chunks
// every scanned file, returning parallel file/chunk slices ready to persist.
func (r *Runner) processFiles(ctx context.Context, root string, files []*scanner.FileInfo) ([]*store.File, []*chunk.Chunk, []*store.Chunk, int, error) {
	var storeFiles []*store.File
	var allChunks []*chunk.Chunk
	var storeChunks []*store.Chunk
	var warnCount int

	now := time.Now()
	total := len(files)

	r.renderer.UpdateProgress(ui.ProgressEvent{Stage: ui.StageChunking, Total: total})

	for i, file := range files {
		r.renderer.UpdateProgress(ui.ProgressEvent{
			Stage:       ui.StageChunking,
			Current:     i + 1,
			Total:       total,
			CurrentFile: file.Path,
		})

		content, err := os.ReadFile(file.AbsPath)
		if err != nil {
			r.renderer.AddError(ui.ErrorEvent{File: file.Path, Err: fmt.Errorf("failed to read: %w", err), IsWarn: true})
			warnCount++
			continue
		}

		storeFile := &store.File{
			ID:               hashString(file.Path),
			Path:             file.Path,
			Origin:           r.classifyOrigin(file.Path),
			SHA256:           hashString(string(content)),
			Size:             file.Size,
			ModTime:          file.ModTime,
			IsHeader:         file.IsHeader,
			IsImplementation: file.IsImplementation,
			IndexedAt:        now,
		}
		storeFiles = append(storeFiles, storeFile)

		input := &chunk.FileInput{Path: file.Path, Content: content}
		fileChunks, err := r.chunker.Chunk(ctx, input)
		if err != nil {
			r.renderer.AddError(ui.ErrorEvent{File: file.Path, Err: fmt.Errorf("failed to chunk: %w", err), IsWarn: true})
			warnCount++
			continue
		}
		allChunks = append(allChunks, fileChunks...)

		for idx, c := range fileChunks {
			storeChunks = append(storeChunks, convertChunkToStore(c, storeFile, idx, len(fileChunks)))
		}

		defs := r.extractor.Extract(string(content))
		if len(defs) > 0 {
			for d := range defs {
				defs[d].FileID = storeFile.ID
				defs[d].Path = storeFile.Path
				defs[d].Origin = storeFile.Origin
			}
			defPtrs := make([]*store.Definition, len(defs))
			for d := range defs {
				defPtrs[d] = &defs[d]
			}
			if err := r.metadata.SaveDefinitions(ctx, storeFile.ID, defPtrs); err != nil {
				r.renderer.AddError(ui.ErrorEvent{File: file.Path, Err: fmt.Errorf("failed to save definitions: %w", err), IsWarn: true})
				warnCount++
			}
		}
	}

	slog.Info("index_chunking_complete", slog.Int("chunks", len(allChunks)), slog.Int("files", len(storeFiles)))
	return storeFiles, allChunks, storeChunks, warnCount, nil
}

// classifyOrigin reports Origin=engine for files under the configured
// engine root, Origin=project otherwise.
func (r *Runner) classifyOrigin(relPath string) store.Origin {
	engineRoot := r.config.Paths.EngineRoot
	if engineRoot == "" {
		return store.OriginProject
	}
	engineRoot = filepath.ToSlash(strings.TrimSuffix(engineRoot, "/"))
	p := filepath.ToSlash(relPath)
	if p == engineRoot || strings.HasPrefix(p, engineRoot+"/") {
		return store.OriginEngine
	}
	return store.OriginProject
}

// generateEmbeddings embeds every chunk in batches, tracking checkpoints so
// an interrupted run can resume without re-embedding completed work. It
// returns the dense row matrix in chunk order, assigning each store.Chunk
// its VectorIndex as it goes.
func (r *Runner) generateEmbeddings(ctx context.Context, chunks []*chunk.Chunk, storeChunks []*store.Chunk, cfg RunnerConfig, currentModel string) ([][]float32, error) {
	if cfg.ResumeFromCheckpoint > 0 && cfg.CheckpointModel != "" && cfg.CheckpointModel != currentModel {
		return nil, fmt.Errorf("embedder mismatch on resume: checkpoint used '%s', but current embedder is '%s'. "+
			"Use --force to rebuild the index from scratch", cfg.CheckpointModel, currentModel)
	}

	rows := make([][]float32, len(chunks))

	startFromChunk := 0
	if cfg.ResumeFromCheckpoint > 0 && cfg.ResumeFromCheckpoint < len(chunks) {
		startFromChunk = cfg.ResumeFromCheckpoint
		r.embedder.SetBatchIndex(startFromChunk / embeddingBatchSize)
	}

	if err := r.metadata.SaveIndexCheckpoint(ctx, "embedding", len(chunks), startFromChunk, currentModel); err != nil {
		slog.Warn("failed to save checkpoint", slog.String("error", err.Error()))
	}

	r.renderer.UpdateProgress(ui.ProgressEvent{Stage: ui.StageEmbedding, Current: startFromChunk, Total: len(chunks)})

	embeddedCount := startFromChunk
	for batchStart := startFromChunk; batchStart < len(chunks); batchStart += embeddingBatchSize {
		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("indexing interrupted at %d/%d chunks: %w", embeddedCount, len(chunks), ctx.Err())
		default:
		}

		batchEnd := batchStart + embeddingBatchSize
		if batchEnd > len(chunks) {
			batchEnd = len(chunks)
		}
		batchContents := make([]string, batchEnd-batchStart)
		for i := batchStart; i < batchEnd; i++ {
			batchContents[i-batchStart] = chunks[i].Content
		}

		if batchEnd >= len(chunks) {
			r.embedder.SetFinalBatch(true)
		}

		batchEmbeddings, err := r.embedder.EmbedBatch(ctx, batchContents)
		if err != nil {
			return nil, fmt.Errorf("failed to generate embeddings for batch %d-%d: %w", batchStart, batchEnd, err)
		}

		for i := batchStart; i < batchEnd; i++ {
			rows[i] = batchEmbeddings[i-batchStart]
			storeChunks[i].VectorIndex = i
		}

		embeddedCount += batchEnd - batchStart

		if err := r.metadata.SaveIndexCheckpoint(ctx, "embedding", len(chunks), embeddedCount, currentModel); err != nil {
			slog.Warn("failed to save checkpoint", slog.String("error", err.Error()))
		}

		r.renderer.UpdateProgress(ui.ProgressEvent{Stage: ui.StageEmbedding, Current: embeddedCount, Total: len(chunks)})
	}

	return rows, nil
}

// hashString returns the SHA-256 hash of a string.
func hashString(s string) string {
	h := sha256.Sum256([]byte(s))
	return hex.EncodeToString(h[:])
}

// convertChunkToStore converts a chunk.Chunk plus its owning file into the
// persisted store.Chunk shape. VectorIndex is filled in later, once
// embeddings are generated.
func convertChunkToStore(c *chunk.Chunk, file *store.File, chunkIndex, totalChunks int) *store.Chunk {
	return &store.Chunk{
		ID:           c.ID,
		FileID:       file.ID,
		Path:         file.Path,
		ChunkIndex:   chunkIndex,
		TotalChunks:  totalChunks,
		ByteLength:   len(c.Content),
		Content:      c.Content,
		VectorIndex:  -1,
		HasUProperty: c.HasUProperty,
		HasUClass:    c.HasUClass,
		HasUFunction: c.HasUFunction,
		HasUStruct:   c.HasUStruct,
		HasUEnum:     c.HasUEnum,
		Entities:     c.Entities,
	}
}
