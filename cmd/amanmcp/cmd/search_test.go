package cmd

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Aman-CERP/ue5query/internal/config"
	"github.com/Aman-CERP/ue5query/internal/store"
)

// buildTestIndex writes a minimal metadata store + vector file (768-dim, the
// static768 embedder's dimension) for the search command to read.
func buildTestIndex(t *testing.T, root string) {
	t.Helper()

	dataDir := filepath.Join(root, ".ue5query")
	require.NoError(t, os.MkdirAll(dataDir, 0755))

	meta, err := store.NewSQLiteMetadataStore(filepath.Join(dataDir, "metadata.db"))
	require.NoError(t, err)
	defer func() { _ = meta.Close() }()

	ctx := context.Background()
	file := &store.File{
		ID:        "f1",
		Path:      "Source/Character.h",
		Origin:    store.OriginProject,
		SHA256:    "abc",
		Size:      100,
		ModTime:   time.Now(),
		IsHeader:  true,
		IndexedAt: time.Now(),
	}
	require.NoError(t, meta.SaveFiles(ctx, []*store.File{file}))

	chunk := &store.Chunk{
		ID:          "c1",
		FileID:      file.ID,
		Path:        file.Path,
		ChunkIndex:  0,
		TotalChunks: 1,
		Content:     "class ACoolCharacter : public ACharacter {};",
		VectorIndex: 0,
		HasUClass:   true,
		Entities:    []string{"ACoolCharacter"},
	}
	require.NoError(t, meta.SaveChunks(ctx, []*store.Chunk{chunk}))

	def := &store.Definition{
		FileID:     file.ID,
		Path:       file.Path,
		Origin:     store.OriginProject,
		EntityName: "ACoolCharacter",
		EntityKind: store.EntityKindClass,
		LineStart:  1,
		LineEnd:    1,
		Content:    "class ACoolCharacter : public ACharacter {};",
	}
	require.NoError(t, meta.SaveDefinitions(ctx, file.ID, []*store.Definition{def}))

	vec := make([]float32, 768)
	vec[0] = 1
	require.NoError(t, store.WriteMmapVectorFile(filepath.Join(dataDir, "vectors.bin"), 768, [][]float32{vec}))

	cfg := config.NewConfig()
	cfg.Embeddings.Provider = "static"
	cfg.Embeddings.Dimensions = 768
	require.NoError(t, cfg.WriteYAML(filepath.Join(root, ".amanmcp.yaml")))
}

func TestSearchCmd_RequiresIndex(t *testing.T) {
	tmpDir := t.TempDir()

	rootCmd := NewRootCmd()
	rootCmd.SetArgs([]string{"search", "ACoolCharacter"})

	oldDir, _ := os.Getwd()
	_ = os.Chdir(tmpDir)
	defer func() { _ = os.Chdir(oldDir) }()

	err := rootCmd.Execute()

	require.Error(t, err)
	assert.Contains(t, err.Error(), "no index found")
}

func TestSearchCmd_RequiresQuestion(t *testing.T) {
	rootCmd := NewRootCmd()
	rootCmd.SetArgs([]string{"search"})

	buf := &bytes.Buffer{}
	rootCmd.SetOut(buf)
	rootCmd.SetErr(buf)

	err := rootCmd.Execute()
	require.Error(t, err)
}

func TestSearchCmd_WithIndex_ReturnsDefinitionResult(t *testing.T) {
	tmpDir := t.TempDir()
	buildTestIndex(t, tmpDir)

	oldDir, _ := os.Getwd()
	_ = os.Chdir(tmpDir)
	defer func() { _ = os.Chdir(oldDir) }()

	rootCmd := NewRootCmd()
	buf := &bytes.Buffer{}
	rootCmd.SetOut(buf)
	rootCmd.SetArgs([]string{"search", "ACoolCharacter"})

	err := rootCmd.Execute()
	require.NoError(t, err)
	assert.Contains(t, buf.String(), "ACoolCharacter")
}

func TestSearchCmd_FormatJSON_ValidJSON(t *testing.T) {
	tmpDir := t.TempDir()
	buildTestIndex(t, tmpDir)

	oldDir, _ := os.Getwd()
	_ = os.Chdir(tmpDir)
	defer func() { _ = os.Chdir(oldDir) }()

	rootCmd := NewRootCmd()
	buf := &bytes.Buffer{}
	rootCmd.SetOut(buf)
	rootCmd.SetArgs([]string{"search", "ACoolCharacter", "--format", "json"})

	err := rootCmd.Execute()
	require.NoError(t, err)
	assert.Contains(t, buf.String(), "{")
	assert.Contains(t, buf.String(), "ACoolCharacter")
}

func TestSearchCmd_TopKFlag(t *testing.T) {
	rootCmd := NewRootCmd()
	searchCmd, _, _ := rootCmd.Find([]string{"search"})
	require.NotNil(t, searchCmd)

	flag := searchCmd.Flags().Lookup("top-k")
	assert.NotNil(t, flag)
	assert.Equal(t, "5", flag.DefValue)
}

func TestSearchCmd_ScopeFlag(t *testing.T) {
	rootCmd := NewRootCmd()
	searchCmd, _, _ := rootCmd.Find([]string{"search"})
	require.NotNil(t, searchCmd)

	flag := searchCmd.Flags().Lookup("scope")
	assert.NotNil(t, flag)
	assert.Equal(t, "all", flag.DefValue)
}

func TestSearchCmd_FormatFlag(t *testing.T) {
	rootCmd := NewRootCmd()
	searchCmd, _, _ := rootCmd.Find([]string{"search"})
	require.NotNil(t, searchCmd)

	flag := searchCmd.Flags().Lookup("format")
	assert.NotNil(t, flag)
	assert.Equal(t, "text", flag.DefValue)
}

func TestSearchCmd_Describe_EmitsSchema(t *testing.T) {
	rootCmd := NewRootCmd()
	buf := &bytes.Buffer{}
	rootCmd.SetOut(buf)
	rootCmd.SetArgs([]string{"search", "--describe"})

	err := rootCmd.Execute()
	require.NoError(t, err)
	assert.Contains(t, buf.String(), `"name": "search"`)
}

func TestSearchCmd_NoResults_ExitsWithCode2(t *testing.T) {
	tmpDir := t.TempDir()
	buildTestIndex(t, tmpDir)

	oldDir, _ := os.Getwd()
	_ = os.Chdir(tmpDir)
	defer func() { _ = os.Chdir(oldDir) }()

	rootCmd := NewRootCmd()
	buf := &bytes.Buffer{}
	rootCmd.SetOut(buf)
	rootCmd.SetArgs([]string{"search", "zzz_nonexistent_entity_zzz"})

	err := rootCmd.Execute()
	var exitErr *ExitCodeError
	if err != nil {
		require.ErrorAs(t, err, &exitErr)
		assert.Equal(t, exitZeroResults, exitErr.Code)
	}
}
