package ingest

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Aman-CERP/ue5query/internal/config"
	"github.com/Aman-CERP/ue5query/internal/store"
	"github.com/Aman-CERP/ue5query/internal/ui"
)

// fakeEmbedder returns deterministic low-dimensional vectors so tests don't
// depend on a real model backend.
type fakeEmbedder struct {
	dims int
}

func (f *fakeEmbedder) Embed(_ context.Context, text string) ([]float32, error) {
	out, _ := f.EmbedBatch(context.Background(), []string{text})
	return out[0], nil
}

func (f *fakeEmbedder) EmbedBatch(_ context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, t := range texts {
		v := make([]float32, f.dims)
		for j := range v {
			v[j] = float32((len(t) + j) % 7)
		}
		out[i] = v
	}
	return out, nil
}

func (f *fakeEmbedder) Dimensions() int       { return f.dims }
func (f *fakeEmbedder) ModelName() string     { return "fake-test-model" }
func (f *fakeEmbedder) Available(_ context.Context) bool { return true }
func (f *fakeEmbedder) Close() error          { return nil }
func (f *fakeEmbedder) SetBatchIndex(int)     {}
func (f *fakeEmbedder) SetFinalBatch(bool)    {}

func newTestRunner(t *testing.T, root, dataDir string) (*Runner, store.MetadataStore) {
	t.Helper()
	metadata, err := store.NewSQLiteMetadataStore(filepath.Join(dataDir, "metadata.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = metadata.Close() })

	cfg := config.NewConfig()

	renderer := ui.NewRenderer(ui.NewConfig(&bytes.Buffer{}, ui.WithForcePlain(true)))

	runner, err := NewRunner(RunnerDependencies{
		Renderer: renderer,
		Config:   cfg,
		Metadata: metadata,
		Embedder: &fakeEmbedder{dims: 8},
	})
	require.NoError(t, err)
	return runner, metadata
}

func TestRunner_Run_IndexesCppFiles(t *testing.T) {
	root := t.TempDir()
	dataDir := filepath.Join(root, ".ue5query")
	require.NoError(t, os.MkdirAll(dataDir, 0755))

	require.NoError(t, os.WriteFile(filepath.Join(root, "Hit.h"), []byte(`
struct FHitResult
{
	float Time;
	FVector ImpactPoint;
};
`), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(root, "Hit.cpp"), []byte(`
#include "Hit.h"
void DoSomething() {}
`), 0644))

	runner, metadata := newTestRunner(t, root, dataDir)

	ctx := context.Background()
	result, err := runner.Run(ctx, RunnerConfig{RootDir: root, DataDir: dataDir})
	require.NoError(t, err)

	assert.Equal(t, 2, result.Files)
	assert.Greater(t, result.Chunks, 0)

	meta, err := metadata.ListChunkSearchMeta(ctx)
	require.NoError(t, err)
	assert.Len(t, meta, result.Chunks)

	defs, err := metadata.GetDefinitionsByEntity(ctx, "FHitResult")
	require.NoError(t, err)
	require.NotEmpty(t, defs)
	assert.Equal(t, "Hit.h", defs[0].Path)

	vectorPath := filepath.Join(dataDir, "vectors.bin")
	info, err := os.Stat(vectorPath)
	require.NoError(t, err)
	assert.Greater(t, info.Size(), int64(0))

	vs, err := store.OpenMmapVectorStore(vectorPath)
	require.NoError(t, err)
	defer func() { _ = vs.Close() }()
	assert.Equal(t, result.Chunks, vs.Count())
	assert.Equal(t, 8, vs.Dimensions())

	model, err := metadata.GetState(ctx, store.StateKeyIndexModel)
	require.NoError(t, err)
	assert.Equal(t, "fake-test-model", model)
}

func TestRunner_Run_EmptyDirectory(t *testing.T) {
	root := t.TempDir()
	dataDir := filepath.Join(root, ".ue5query")
	require.NoError(t, os.MkdirAll(dataDir, 0755))

	runner, _ := newTestRunner(t, root, dataDir)

	result, err := runner.Run(context.Background(), RunnerConfig{RootDir: root, DataDir: dataDir})
	require.NoError(t, err)
	assert.Equal(t, 0, result.Files)
	assert.Equal(t, 0, result.Chunks)
}

func TestRunner_ClassifyOrigin(t *testing.T) {
	root := t.TempDir()
	dataDir := filepath.Join(root, ".ue5query")
	require.NoError(t, os.MkdirAll(dataDir, 0755))

	runner, _ := newTestRunner(t, root, dataDir)
	runner.config.Paths.EngineRoot = "Engine"

	assert.Equal(t, store.OriginEngine, runner.classifyOrigin("Engine/Source/Foo.h"))
	assert.Equal(t, store.OriginProject, runner.classifyOrigin("Game/Foo.h"))
}
