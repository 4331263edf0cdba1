package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/Aman-CERP/ue5query/internal/config"
	"github.com/Aman-CERP/ue5query/internal/embed"
	"github.com/Aman-CERP/ue5query/internal/store"
)

func newIndexInfoCmd() *cobra.Command {
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "info [path]",
		Short: "Show index configuration and statistics",
		Long: `Display detailed information about the search index including embedding
model, dimensions, chunk counts, and file sizes.

This command helps you:
- Check which model the current index uses
- Debug dimension mismatch errors
- Verify index was built correctly after reindex
- Compare index configurations across projects`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := "."
			if len(args) > 0 {
				path = args[0]
			}

			return runIndexInfo(cmd.Context(), cmd, path, jsonOutput)
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output in JSON format")

	return cmd
}

func runIndexInfo(ctx context.Context, cmd *cobra.Command, path string, jsonOutput bool) error {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return fmt.Errorf("failed to resolve path: %w", err)
	}

	root, err := config.FindProjectRoot(absPath)
	if err != nil {
		root = absPath
	}

	dataDir := filepath.Join(root, ".ue5query")
	metadataPath := filepath.Join(dataDir, "metadata.db")
	vectorPath := filepath.Join(dataDir, "vectors.bin")

	if _, err := os.Stat(metadataPath); os.IsNotExist(err) {
		return fmt.Errorf("no index found at %s\nRun 'ue5query index %s' to create one", dataDir, path)
	}

	metadata, err := store.NewSQLiteMetadataStore(metadataPath)
	if err != nil {
		return fmt.Errorf("failed to open metadata: %w", err)
	}
	defer func() { _ = metadata.Close() }()

	info, err := buildIndexInfo(ctx, metadata, dataDir, metadataPath, vectorPath)
	if err != nil {
		return fmt.Errorf("failed to get index info: %w", err)
	}

	cfg, err := config.Load(root)
	if err != nil {
		cfg = config.NewConfig()
	}
	embed.SetMLXConfig(embed.MLXServerConfig{
		Endpoint: cfg.Embeddings.MLXEndpoint,
		Model:    cfg.Embeddings.MLXModel,
	})
	provider := embed.ParseProvider(cfg.Embeddings.Provider)
	if embedder, err := embed.NewEmbedder(ctx, provider, cfg.Embeddings.Model); err == nil {
		info.CurrentModel = embedder.ModelName()
		info.CurrentDims = embedder.Dimensions()
		info.Compatible = info.IndexDimensions == 0 || info.CurrentDims == info.IndexDimensions
		_ = embedder.Close()
	}

	if jsonOutput {
		return outputIndexInfoJSON(cmd, info)
	}
	return outputIndexInfoHuman(cmd, info)
}

// buildIndexInfo assembles store.IndexInfo from the metadata store's
// recorded dimension/model state plus on-disk file sizes; there is no
// single aggregate query for this, so it gathers each field directly.
func buildIndexInfo(ctx context.Context, metadata store.MetadataStore, dataDir, metadataPath, vectorPath string) (*store.IndexInfo, error) {
	info := &store.IndexInfo{Location: dataDir}

	if model, err := metadata.GetState(ctx, store.StateKeyIndexModel); err == nil {
		info.IndexModel = model
	}
	if dimStr, err := metadata.GetState(ctx, store.StateKeyIndexDimension); err == nil && dimStr != "" {
		fmt.Sscanf(dimStr, "%d", &info.IndexDimensions)
	}

	meta, err := metadata.ListChunkSearchMeta(ctx)
	if err != nil {
		return nil, err
	}
	info.ChunkCount = len(meta)

	seenFiles := map[string]struct{}{}
	for _, m := range meta {
		seenFiles[m.Path] = struct{}{}
	}
	info.FileCount = len(seenFiles)

	if fi, err := os.Stat(metadataPath); err == nil {
		info.IndexSizeBytes += fi.Size()
		info.UpdatedAt = fi.ModTime()
		info.CreatedAt = fi.ModTime()
	}
	if fi, err := os.Stat(vectorPath); err == nil {
		info.IndexSizeBytes += fi.Size()
	}

	return info, nil
}

func outputIndexInfoJSON(cmd *cobra.Command, info *store.IndexInfo) error {
	output := map[string]interface{}{
		"location": info.Location,
		"embedding": map[string]interface{}{
			"model":      info.IndexModel,
			"dimensions": info.IndexDimensions,
		},
		"statistics": map[string]interface{}{
			"chunks":           info.ChunkCount,
			"files":            info.FileCount,
			"index_size_bytes": info.IndexSizeBytes,
		},
		"timestamps": map[string]interface{}{
			"created":     info.CreatedAt,
			"last_update": info.UpdatedAt,
		},
		"current_embedder": map[string]interface{}{
			"model":      info.CurrentModel,
			"dimensions": info.CurrentDims,
			"compatible": info.Compatible,
		},
	}

	encoder := json.NewEncoder(cmd.OutOrStdout())
	encoder.SetIndent("", "  ")
	return encoder.Encode(output)
}

func outputIndexInfoHuman(cmd *cobra.Command, info *store.IndexInfo) error {
	out := cmd.OutOrStdout()

	fmt.Fprintln(out, "Index Information")
	fmt.Fprintln(out, "=================")
	fmt.Fprintln(out)

	fmt.Fprintf(out, "Location: %s\n", info.Location)
	fmt.Fprintln(out)

	fmt.Fprintln(out, "Embedding Configuration:")
	if info.IndexModel != "" {
		fmt.Fprintf(out, "  Model:       %s\n", info.IndexModel)
		fmt.Fprintf(out, "  Dimensions:  %d\n", info.IndexDimensions)
	} else {
		fmt.Fprintln(out, "  (not stored - legacy index)")
	}
	fmt.Fprintln(out)

	fmt.Fprintln(out, "Index Statistics:")
	fmt.Fprintf(out, "  Chunks:     %d\n", info.ChunkCount)
	fmt.Fprintf(out, "  Files:      %d\n", info.FileCount)
	fmt.Fprintf(out, "  Index Size: %s\n", formatBytes(info.IndexSizeBytes))
	fmt.Fprintln(out)

	fmt.Fprintln(out, "Timestamps:")
	fmt.Fprintf(out, "  Created:     %s\n", info.CreatedAt.Format("2006-01-02 15:04:05"))
	fmt.Fprintf(out, "  Last Update: %s\n", info.UpdatedAt.Format("2006-01-02 15:04:05"))
	fmt.Fprintln(out)

	if info.CurrentModel != "" {
		fmt.Fprintln(out, "Current Embedder:")
		fmt.Fprintf(out, "  Model:      %s\n", info.CurrentModel)
		fmt.Fprintf(out, "  Dimensions: %d\n", info.CurrentDims)

		if info.Compatible {
			fmt.Fprintln(out, "  Status:     Compatible")
		} else {
			fmt.Fprintln(out, "  Status:     INCOMPATIBLE")
			fmt.Fprintln(out)
			fmt.Fprintln(out, "  Dimension mismatch detected!")
			fmt.Fprintf(out, "    Index:   %d dims (%s)\n", info.IndexDimensions, info.IndexModel)
			fmt.Fprintf(out, "    Current: %d dims (%s)\n", info.CurrentDims, info.CurrentModel)
			fmt.Fprintln(out)
			fmt.Fprintln(out, "    Semantic search will be disabled until reindex.")
			fmt.Fprintf(out, "    Run 'ue5query index --force' to rebuild with %s.\n", info.CurrentModel)
		}
	}

	return nil
}

func formatBytes(n int64) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%d B", n)
	}
	div, exp := int64(unit), 0
	for m := n / unit; m >= unit; m /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %ciB", float64(n)/float64(div), "KMGTPE"[exp])
}
