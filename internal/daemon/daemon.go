package daemon

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/Aman-CERP/ue5query/internal/config"
	"github.com/Aman-CERP/ue5query/internal/embed"
	"github.com/Aman-CERP/ue5query/internal/search"
	"github.com/Aman-CERP/ue5query/internal/store"
)

// projectHandle bundles the open stores and engine for one indexed project.
// Closed when evicted from the LRU.
type projectHandle struct {
	meta     *store.SQLiteMetadataStore
	vectors  *store.MmapVectorStore
	embedder embed.Embedder
	engine   *search.Engine
}

func (h *projectHandle) Close() {
	if h.embedder != nil {
		_ = h.embedder.Close()
	}
	if h.vectors != nil {
		_ = h.vectors.Close()
	}
	if h.meta != nil {
		_ = h.meta.Close()
	}
}

// Daemon keeps a bounded set of projects loaded in memory so repeated CLI
// searches skip the embedder/index startup cost. It implements
// RequestHandler and is served over the Unix socket by Server.
type Daemon struct {
	cfg      Config
	server   *Server
	pidFile  *PIDFile
	embedder embed.Embedder // overrides the per-project embedder when set (tests, offline mode)

	mu       sync.Mutex
	projects *lru.Cache[string, *projectHandle]
	started  time.Time
}

// DaemonOption configures optional Daemon behavior.
type DaemonOption func(*Daemon)

// WithEmbedder forces every loaded project to share a single embedder
// instance instead of constructing one per project from its own config.
// Used for tests and for running the daemon fully offline.
func WithEmbedder(e embed.Embedder) DaemonOption {
	return func(d *Daemon) { d.embedder = e }
}

// NewDaemon validates cfg and constructs a Daemon ready to Start.
func NewDaemon(cfg Config, opts ...DaemonOption) (*Daemon, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid daemon config: %w", err)
	}

	server, err := NewServer(cfg.SocketPath)
	if err != nil {
		return nil, fmt.Errorf("failed to create server: %w", err)
	}

	d := &Daemon{
		cfg:     cfg,
		server:  server,
		pidFile: NewPIDFile(cfg.PIDPath),
	}

	projects, err := lru.NewWithEvict[string, *projectHandle](cfg.MaxProjects, func(_ string, h *projectHandle) {
		h.Close()
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create project cache: %w", err)
	}
	d.projects = projects

	for _, opt := range opts {
		opt(d)
	}

	server.SetHandler(d)
	return d, nil
}

// Start runs the daemon: writes the PID file, listens on the Unix socket,
// and blocks until ctx is cancelled.
func (d *Daemon) Start(ctx context.Context) error {
	if err := d.cfg.EnsureDir(); err != nil {
		return err
	}
	if err := d.pidFile.Write(); err != nil {
		return fmt.Errorf("failed to write PID file: %w", err)
	}
	defer func() { _ = d.pidFile.Remove() }()

	d.mu.Lock()
	d.started = time.Now()
	d.mu.Unlock()

	defer d.closeAllProjects()

	err := d.server.ListenAndServe(ctx)
	if err != nil && ctx.Err() != nil {
		return nil
	}
	return err
}

func (d *Daemon) closeAllProjects() {
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, key := range d.projects.Keys() {
		d.projects.Remove(key) // triggers the onEvict Close
	}
}

// HandleSearch implements RequestHandler: loads (or reuses) the project at
// params.RootPath and runs a hybrid query against it.
func (d *Daemon) HandleSearch(ctx context.Context, params SearchParams) ([]SearchResult, error) {
	root := filepath.Clean(params.RootPath)

	handle, err := d.loadProject(ctx, root)
	if err != nil {
		return nil, fmt.Errorf("failed to load project %s: %w", root, err)
	}

	limit := params.Limit
	if limit == 0 {
		limit = 5
	}
	scope := search.Scope(params.Scope)
	if scope == "" {
		scope = search.ScopeAll
	}

	result, err := handle.engine.Query(ctx, params.Query, search.QueryOptions{
		TopK:          limit,
		Scope:         scope,
		UseReranker:   params.UseReranker,
		ShowReasoning: params.Explain,
	})
	if err != nil {
		return nil, err
	}

	return toSearchResults(result, params.Explain), nil
}

// loadProject returns the cached handle for root, opening it if this is the
// first request against that path since the daemon started.
func (d *Daemon) loadProject(ctx context.Context, root string) (*projectHandle, error) {
	d.mu.Lock()
	if h, ok := d.projects.Get(root); ok {
		d.mu.Unlock()
		return h, nil
	}
	d.mu.Unlock()

	dataDir := filepath.Join(root, ".ue5query")
	metadataPath := filepath.Join(dataDir, "metadata.db")
	vectorPath := filepath.Join(dataDir, "vectors.bin")

	meta, err := store.NewSQLiteMetadataStore(metadataPath)
	if err != nil {
		return nil, fmt.Errorf("open metadata store: %w", err)
	}

	vectors, err := store.OpenMmapVectorStore(vectorPath)
	if err != nil {
		_ = meta.Close()
		return nil, fmt.Errorf("open vector store: %w", err)
	}

	index, err := search.BuildSemanticIndex(ctx, meta)
	if err != nil {
		_ = vectors.Close()
		_ = meta.Close()
		return nil, fmt.Errorf("build semantic index: %w", err)
	}

	embedder := d.embedder
	ownsEmbedder := false
	if embedder == nil {
		cfg, err := config.Load(root)
		if err != nil {
			cfg = config.NewConfig()
		}
		embedder, err = embed.NewEmbedder(ctx, embed.ParseProvider(cfg.Embeddings.Provider), cfg.Embeddings.Model)
		if err != nil {
			_ = vectors.Close()
			_ = meta.Close()
			return nil, fmt.Errorf("create embedder: %w", err)
		}
		ownsEmbedder = true
	}

	if embedder.Dimensions() != vectors.Dimensions() {
		if ownsEmbedder {
			_ = embedder.Close()
		}
		_ = vectors.Close()
		_ = meta.Close()
		return nil, store.ErrDimensionMismatch{Expected: vectors.Dimensions(), Got: embedder.Dimensions()}
	}

	engine := search.NewEngine(meta, vectors, index, embedder, search.NoOpReranker{}, search.DefaultEngineConfig())

	handle := &projectHandle{meta: meta, vectors: vectors, engine: engine}
	if ownsEmbedder {
		handle.embedder = embedder
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	if existing, ok := d.projects.Get(root); ok {
		// Another request raced us to load this project; keep the one
		// already cached and discard ours.
		handle.Close()
		return existing, nil
	}
	d.projects.Add(root, handle)
	slog.Info("daemon_project_loaded", slog.String("root", root))
	return handle, nil
}

// GetStatus implements RequestHandler.
func (d *Daemon) GetStatus() StatusResult {
	d.mu.Lock()
	defer d.mu.Unlock()

	embedderType := "auto"
	if d.embedder != nil {
		embedderType = d.embedder.ModelName()
	}

	return StatusResult{
		Running:        true,
		PID:            0, // filled in by the server from os.Getpid()
		Uptime:         time.Since(d.started).Round(time.Second).String(),
		EmbedderType:   embedderType,
		EmbedderStatus: "ready",
		ProjectsLoaded: d.projects.Len(),
	}
}

// toSearchResults flattens a hybrid query result onto the wire shape,
// definition hits first, matching the CLI's own precedence.
func toSearchResults(result *search.QueryResult, explain bool) []SearchResult {
	out := make([]SearchResult, 0, len(result.DefinitionResults)+len(result.SemanticResults))

	for _, def := range result.DefinitionResults {
		out = append(out, SearchResult{
			Kind:       "definition",
			FilePath:   def.FilePath,
			StartLine:  def.LineStart,
			EndLine:    def.LineEnd,
			Score:      def.MatchScore,
			Content:    def.Definition,
			Origin:     string(def.Origin),
			EntityName: def.EntityName,
			EntityKind: string(def.EntityKind),
		})
	}

	for _, sem := range result.SemanticResults {
		out = append(out, SearchResult{
			Kind:      "semantic",
			FilePath:  sem.Path,
			StartLine: 0,
			EndLine:   0,
			Score:     sem.Score,
			Content:   sem.Content,
			Origin:    string(sem.Origin),
		})
	}

	if explain && len(out) > 0 {
		out[0].Explain = &ExplainData{
			Query:              result.Question,
			QueryType:          string(result.Intent.QueryType),
			EntityName:         result.Intent.EntityName,
			Confidence:         result.Intent.Confidence,
			DefinitionHitCount: len(result.DefinitionResults),
			SemanticHitCount:   len(result.SemanticResults),
			TotalSeconds:       result.Timing.TotalSeconds,
		}
	}

	return out
}
