package cmd

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIndexCmd_CreatesDataDirectory(t *testing.T) {
	testDir := t.TempDir()
	createTestProject(t, testDir)

	cmd := NewRootCmd()
	buf := new(bytes.Buffer)
	cmd.SetOut(buf)
	cmd.SetErr(buf)
	cmd.SetArgs([]string{"index", "--offline", testDir})

	err := cmd.Execute()

	require.NoError(t, err)
	dataDir := filepath.Join(testDir, ".ue5query")
	assert.DirExists(t, dataDir, ".ue5query directory should be created")
}

func TestIndexCmd_CreatesMetadataDB(t *testing.T) {
	testDir := t.TempDir()
	createTestProject(t, testDir)

	cmd := NewRootCmd()
	buf := new(bytes.Buffer)
	cmd.SetOut(buf)
	cmd.SetErr(buf)
	cmd.SetArgs([]string{"index", "--offline", testDir})

	err := cmd.Execute()

	require.NoError(t, err)
	metadataPath := filepath.Join(testDir, ".ue5query", "metadata.db")
	assert.FileExists(t, metadataPath, "metadata.db should be created")
}

func TestIndexCmd_CreatesVectorStore(t *testing.T) {
	testDir := t.TempDir()
	createTestProject(t, testDir)

	cmd := NewRootCmd()
	buf := new(bytes.Buffer)
	cmd.SetOut(buf)
	cmd.SetErr(buf)
	cmd.SetArgs([]string{"index", "--offline", testDir})

	err := cmd.Execute()

	require.NoError(t, err)
	vectorPath := filepath.Join(testDir, ".ue5query", "vectors.bin")
	assert.FileExists(t, vectorPath, "vectors.bin should be created")
}

func TestIndexCmd_ReportsProgress(t *testing.T) {
	testDir := t.TempDir()
	createTestProject(t, testDir)

	cmd := NewRootCmd()
	buf := new(bytes.Buffer)
	cmd.SetOut(buf)
	cmd.SetErr(buf)
	cmd.SetArgs([]string{"index", "--offline", testDir})

	err := cmd.Execute()

	require.NoError(t, err)
	output := buf.String()
	assert.Contains(t, output, "Complete:", "Should report indexing progress")
}

func TestIndexCmd_FailsOnNonExistentPath(t *testing.T) {
	cmd := NewRootCmd()
	buf := new(bytes.Buffer)
	cmd.SetOut(buf)
	cmd.SetErr(buf)
	cmd.SetArgs([]string{"index", "--offline", "/nonexistent/path"})

	err := cmd.Execute()

	assert.Error(t, err)
}

func TestIndexCmd_DefaultsToCurrentDirectory(t *testing.T) {
	testDir := t.TempDir()
	createTestProject(t, testDir)

	oldCwd, err := os.Getwd()
	require.NoError(t, err)
	defer func() { _ = os.Chdir(oldCwd) }()

	err = os.Chdir(testDir)
	require.NoError(t, err)

	cmd := NewRootCmd()
	buf := new(bytes.Buffer)
	cmd.SetOut(buf)
	cmd.SetErr(buf)
	cmd.SetArgs([]string{"index", "--offline"})

	err = cmd.Execute()

	require.NoError(t, err)
	dataDir := filepath.Join(testDir, ".ue5query")
	assert.DirExists(t, dataDir, ".ue5query directory should be created")
}

func TestIndexCmd_IndexesCppFiles(t *testing.T) {
	testDir := t.TempDir()
	createTestProject(t, testDir)

	cmd := NewRootCmd()
	buf := new(bytes.Buffer)
	cmd.SetOut(buf)
	cmd.SetErr(buf)
	cmd.SetArgs([]string{"index", "--offline", testDir})

	err := cmd.Execute()

	require.NoError(t, err)
	output := buf.String()
	assert.Contains(t, output, "file", "Should report files indexed")
}

func TestIndexCmd_RespectsGitignore(t *testing.T) {
	testDir := t.TempDir()
	createTestProjectWithGitignore(t, testDir)

	cmd := NewRootCmd()
	buf := new(bytes.Buffer)
	cmd.SetOut(buf)
	cmd.SetErr(buf)
	cmd.SetArgs([]string{"index", "--offline", testDir})

	err := cmd.Execute()

	require.NoError(t, err)
}

// Helper functions to create test projects.

func createTestProject(t *testing.T, dir string) {
	t.Helper()

	cfg := `embeddings:
  provider: static
`
	err := os.WriteFile(filepath.Join(dir, ".amanmcp.yaml"), []byte(cfg), 0644)
	require.NoError(t, err)

	header := `#pragma once

UCLASS()
class AMyActor : public AActor
{
	GENERATED_BODY()

public:
	UPROPERTY(EditAnywhere)
	float Speed;

	void Tick(float DeltaTime);
};
`
	err = os.WriteFile(filepath.Join(dir, "MyActor.h"), []byte(header), 0644)
	require.NoError(t, err)

	impl := `#include "MyActor.h"

void AMyActor::Tick(float DeltaTime)
{
	Speed += DeltaTime;
}
`
	err = os.WriteFile(filepath.Join(dir, "MyActor.cpp"), []byte(impl), 0644)
	require.NoError(t, err)
}

func createTestProjectWithGitignore(t *testing.T, dir string) {
	t.Helper()

	createTestProject(t, dir)

	gitignore := `*.log
build/
`
	err := os.WriteFile(filepath.Join(dir, ".gitignore"), []byte(gitignore), 0644)
	require.NoError(t, err)

	err = os.Mkdir(filepath.Join(dir, "build"), 0755)
	require.NoError(t, err)
	err = os.WriteFile(filepath.Join(dir, "build", "Generated.h"), []byte("// generated"), 0644)
	require.NoError(t, err)
}

func TestClearIndexData_RemovesIndexFiles(t *testing.T) {
	dataDir := t.TempDir()

	require.NoError(t, os.WriteFile(filepath.Join(dataDir, "metadata.db"), []byte("test"), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(dataDir, "vectors.bin"), []byte("test"), 0644))

	err := clearIndexData(dataDir)

	require.NoError(t, err)
	assert.NoFileExists(t, filepath.Join(dataDir, "metadata.db"))
	assert.NoFileExists(t, filepath.Join(dataDir, "vectors.bin"))
}

func TestClearIndexData_IgnoresNonExistentFiles(t *testing.T) {
	dataDir := t.TempDir()

	err := clearIndexData(dataDir)

	require.NoError(t, err)
}

func TestIndexCmd_ForceRebuildsIndex(t *testing.T) {
	testDir := t.TempDir()
	createTestProject(t, testDir)

	cmd := NewRootCmd()
	buf := new(bytes.Buffer)
	cmd.SetOut(buf)
	cmd.SetErr(buf)
	cmd.SetArgs([]string{"index", "--offline", testDir})
	require.NoError(t, cmd.Execute())

	metadataPath := filepath.Join(testDir, ".ue5query", "metadata.db")
	require.FileExists(t, metadataPath)

	originalInfo, err := os.Stat(metadataPath)
	require.NoError(t, err)

	cmd = NewRootCmd()
	buf = new(bytes.Buffer)
	cmd.SetOut(buf)
	cmd.SetErr(buf)
	cmd.SetArgs([]string{"index", "--offline", "--force", testDir})

	err = cmd.Execute()

	require.NoError(t, err)
	output := buf.String()
	assert.Contains(t, output, "Cleared existing index data", "Should report clearing index")

	newInfo, err := os.Stat(metadataPath)
	require.NoError(t, err)
	assert.NotEqual(t, originalInfo.ModTime(), newInfo.ModTime(), "Index file should be recreated")
}

func TestIndexCmd_ForceAndResumeMutuallyExclusive(t *testing.T) {
	testDir := t.TempDir()
	createTestProject(t, testDir)

	cmd := NewRootCmd()
	buf := new(bytes.Buffer)
	cmd.SetOut(buf)
	cmd.SetErr(buf)
	cmd.SetArgs([]string{"index", "--force", "--resume", testDir})

	err := cmd.Execute()

	require.Error(t, err)
	assert.Contains(t, err.Error(), "mutually exclusive")
}

func TestIndexCmd_ForcePreservesConfig(t *testing.T) {
	testDir := t.TempDir()
	createTestProject(t, testDir)

	customConfig := `embeddings:
  provider: static
paths:
  include: ["Source/"]
`
	configPath := filepath.Join(testDir, ".amanmcp.yaml")
	require.NoError(t, os.WriteFile(configPath, []byte(customConfig), 0644))

	cmd := NewRootCmd()
	buf := new(bytes.Buffer)
	cmd.SetOut(buf)
	cmd.SetErr(buf)
	cmd.SetArgs([]string{"index", "--offline", testDir})
	require.NoError(t, cmd.Execute())

	cmd = NewRootCmd()
	buf = new(bytes.Buffer)
	cmd.SetOut(buf)
	cmd.SetErr(buf)
	cmd.SetArgs([]string{"index", "--offline", "--force", testDir})

	err := cmd.Execute()

	require.NoError(t, err)
	assert.FileExists(t, configPath)

	content, err := os.ReadFile(configPath)
	require.NoError(t, err)
	assert.Equal(t, customConfig, string(content), "Config file should be unchanged")
}
