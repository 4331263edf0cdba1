package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/Aman-CERP/ue5query/internal/config"
	"github.com/Aman-CERP/ue5query/internal/embed"
	"github.com/Aman-CERP/ue5query/internal/logging"
	"github.com/Aman-CERP/ue5query/internal/output"
	"github.com/Aman-CERP/ue5query/internal/search"
	"github.com/Aman-CERP/ue5query/internal/store"
)

// searchOptions holds CLI flags for the hybrid query command.
type searchOptions struct {
	topK          int
	scope         string
	format        string
	noCode        bool
	maxLines      int
	filter        string
	useReranker   bool
	showReasoning bool
	describe      bool
}

func newSearchCmd() *cobra.Command {
	var opts searchOptions

	cmd := &cobra.Command{
		Use:   "search <question>",
		Short: "Query the indexed UE5 codebase",
		Long: `Run a hybrid query over the indexed UE5 C++ codebase.

The query engine classifies the question's intent, runs an exact
definition lookup and/or a filtered semantic search, optionally
reranks with a cross-encoder, and merges the results.

Examples:
  ue5query search "FVector"
  ue5query search "where is UCharacterMovementComponent defined"
  ue5query search "how does jump height get calculated" --use-reranker
  ue5query search "ACharacter" --format json --top-k 10`,
		Args: cobra.ArbitraryArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if opts.describe {
				return describeSearchTool(cmd)
			}
			if len(args) == 0 {
				return fmt.Errorf("a question is required (or pass --describe)")
			}
			question := strings.Join(args, " ")
			err := runSearch(cmd.Context(), cmd, question, opts)
			var exitErr *ExitCodeError
			if errors.As(err, &exitErr) && exitErr.Err == nil {
				cmd.SilenceErrors = true
			}
			return err
		},
	}

	cmd.Flags().IntVar(&opts.topK, "top-k", 5, "Maximum number of results")
	cmd.Flags().StringVar(&opts.scope, "scope", "all", "Restrict search: engine, project, or all")
	cmd.Flags().StringVar(&opts.format, "format", "text", "Output format: text, json, jsonl, xml, markdown, code, path")
	cmd.Flags().BoolVar(&opts.noCode, "no-code", false, "Omit source snippets from the output")
	cmd.Flags().IntVar(&opts.maxLines, "max-lines", 10, "Maximum snippet lines per result")
	cmd.Flags().StringVar(&opts.filter, "filter", "", `Boolean filter expression, e.g. "type:uclass AND macro:uproperty"`)
	cmd.Flags().BoolVar(&opts.useReranker, "use-reranker", false, "Rerank semantic candidates with the cross-encoder")
	cmd.Flags().BoolVar(&opts.showReasoning, "show-reasoning", false, "Print the classified intent and timing breakdown")
	cmd.Flags().BoolVar(&opts.describe, "describe", false, "Emit a machine-readable tool schema and exit")

	return cmd
}

// ExitCodeError carries the process exit code a command's error should map
// to, per the CLI surface contract: 0 results found, 2 valid run with zero
// results, 1 runtime error. main() unwraps this to choose os.Exit's code.
type ExitCodeError struct {
	Code int
	Err  error
}

func (e *ExitCodeError) Error() string {
	if e.Err == nil {
		return ""
	}
	return e.Err.Error()
}

func (e *ExitCodeError) Unwrap() error { return e.Err }

const exitZeroResults = 2

func runSearch(ctx context.Context, cmd *cobra.Command, question string, opts searchOptions) error {
	logCfg := logging.DefaultConfig()
	logCfg.WriteToStderr = false
	if _, cleanup, err := logging.Setup(logCfg); err == nil {
		defer cleanup()
	}
	slog.Info("search_started", slog.String("question", question), slog.Int("top_k", opts.topK))

	root, err := config.FindProjectRoot(".")
	if err != nil {
		root, _ = os.Getwd()
	}
	dataDir := filepath.Join(root, ".ue5query")
	metadataPath := filepath.Join(dataDir, "metadata.db")
	vectorPath := filepath.Join(dataDir, "vectors.bin")

	if _, err := os.Stat(metadataPath); os.IsNotExist(err) {
		cmd.SilenceUsage = true
		return fmt.Errorf("no index found at %s; run 'ue5query index' first", dataDir)
	}

	cfg, err := config.Load(root)
	if err != nil {
		cfg = config.NewConfig()
	}

	meta, err := store.NewSQLiteMetadataStore(metadataPath)
	if err != nil {
		return fmt.Errorf("open metadata store: %w", err)
	}
	defer func() { _ = meta.Close() }()

	vectors, err := store.OpenMmapVectorStore(vectorPath)
	if err != nil {
		return fmt.Errorf("open vector store: %w", err)
	}
	defer func() { _ = vectors.Close() }()

	index, err := search.BuildSemanticIndex(ctx, meta)
	if err != nil {
		return fmt.Errorf("build semantic index: %w", err)
	}

	embedder, err := embed.NewEmbedder(ctx, embed.ParseProvider(cfg.Embeddings.Provider), cfg.Embeddings.Model)
	if err != nil {
		return fmt.Errorf("create embedder: %w", err)
	}
	defer func() { _ = embedder.Close() }()

	if embedder.Dimensions() != vectors.Dimensions() {
		return store.ErrDimensionMismatch{Expected: vectors.Dimensions(), Got: embedder.Dimensions()}
	}

	var reranker search.Reranker
	if opts.useReranker {
		cer := search.NewCrossEncoderReranker(search.DefaultCrossEncoderConfig())
		if cer.Available(ctx) {
			reranker = cer
		} else {
			slog.Warn("reranker_unavailable_falling_back")
			reranker = search.NoOpReranker{}
		}
	}

	engine := search.NewEngine(meta, vectors, index, embedder, reranker, search.DefaultEngineConfig())

	queryOpts := search.QueryOptions{
		TopK:          opts.topK,
		Scope:         search.Scope(opts.scope),
		UseReranker:   opts.useReranker,
		ShowReasoning: opts.showReasoning,
	}

	result, err := engine.Query(ctx, question, queryOpts)
	if err != nil {
		return fmt.Errorf("query failed: %w", err)
	}
	slog.Info("search_complete",
		slog.Int("definition_results", len(result.DefinitionResults)),
		slog.Int("semantic_results", len(result.SemanticResults)))

	if opts.showReasoning {
		fmt.Fprintf(cmd.OutOrStdout(), "intent: %s (entity=%q confidence=%.2f file_search=%t)\n",
			result.Intent.QueryType, result.Intent.EntityName, result.Intent.Confidence, result.Intent.IsFileSearch)
		if result.Intent.Reasoning != "" {
			fmt.Fprintf(cmd.OutOrStdout(), "reasoning: %s\n", result.Intent.Reasoning)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "timing: intent=%.4fs expand=%.4fs definitions=%.4fs semantic=%.4fs rerank=%.4fs total=%.4fs\n\n",
			result.Timing.IntentAnalysisSeconds, result.Timing.ExpansionSeconds, result.Timing.DefinitionSearchSeconds,
			result.Timing.SemanticSearchSeconds, result.Timing.RerankSeconds, result.Timing.TotalSeconds)
	}

	formatted := output.FormatResult(result, output.ParseFormat(opts.format), !opts.noCode, opts.maxLines)
	fmt.Fprintln(cmd.OutOrStdout(), formatted)

	if len(result.DefinitionResults) == 0 && len(result.SemanticResults) == 0 {
		return &ExitCodeError{Code: exitZeroResults}
	}
	return nil
}

// describeSearchTool emits a machine-readable tool schema for MCP-style
// tool discovery, per the --describe contract.
func describeSearchTool(cmd *cobra.Command) error {
	schema := `{
  "name": "search",
  "description": "Hybrid query over an indexed UE5 C++ codebase: exact definition lookup and/or filtered semantic search.",
  "parameters": {
    "question": {"type": "string", "required": true},
    "top_k": {"type": "integer", "default": 5},
    "scope": {"type": "string", "enum": ["engine", "project", "all"], "default": "all"},
    "format": {"type": "string", "enum": ["text", "json", "jsonl", "xml", "markdown", "code", "path"], "default": "text"},
    "use_reranker": {"type": "boolean", "default": false}
  }
}`
	fmt.Fprintln(cmd.OutOrStdout(), schema)
	return nil
}
