package scanner

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIsIndexableSource(t *testing.T) {
	tests := []struct {
		path string
		want bool
	}{
		{"Foo.h", true},
		{"Foo.hpp", true},
		{"Foo.cpp", true},
		{"Foo.cc", true},
		{"Foo.cxx", true},
		{"Foo.inl", true},
		{"Foo.generated.h", true}, // extension check only; exclusion happens separately
		{"README.md", false},
		{"build.json", false},
		{"Makefile", false},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, IsIndexableSource(tt.path), tt.path)
	}
}

func TestClassify(t *testing.T) {
	isHeader, isImpl := classify("Public/Foo.h")
	assert.True(t, isHeader)
	assert.False(t, isImpl)

	isHeader, isImpl = classify("Private/Foo.cpp")
	assert.False(t, isHeader)
	assert.True(t, isImpl)

	isHeader, isImpl = classify("README.md")
	assert.False(t, isHeader)
	assert.False(t, isImpl)
}

func TestScanner_Scan_FindsCppFiles(t *testing.T) {
	tmpDir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(tmpDir, "Actor.h"), []byte("class AActor {};"), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(tmpDir, "Actor.cpp"), []byte("#include \"Actor.h\""), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(tmpDir, "README.md"), []byte("# readme"), 0644))

	s, err := New()
	require.NoError(t, err)

	results, err := s.Scan(context.Background(), &ScanOptions{RootDir: tmpDir})
	require.NoError(t, err)

	var files []*FileInfo
	for r := range results {
		require.NoError(t, r.Error)
		files = append(files, r.File)
	}

	require.Len(t, files, 2)
	names := map[string]*FileInfo{}
	for _, f := range files {
		names[f.Path] = f
	}
	assert.True(t, names["Actor.h"].IsHeader)
	assert.True(t, names["Actor.cpp"].IsImplementation)
}

func TestScanner_Scan_ExcludesIntermediateDir(t *testing.T) {
	tmpDir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(tmpDir, "Intermediate", "Build"), 0755))
	require.NoError(t, os.WriteFile(filepath.Join(tmpDir, "Intermediate", "Build", "Gen.h"), []byte("// generated"), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(tmpDir, "Real.h"), []byte("class Real {};"), 0644))

	s, err := New()
	require.NoError(t, err)

	results, err := s.Scan(context.Background(), &ScanOptions{RootDir: tmpDir})
	require.NoError(t, err)

	var files []*FileInfo
	for r := range results {
		files = append(files, r.File)
	}

	require.Len(t, files, 1)
	assert.Equal(t, "Real.h", files[0].Path)
}

func TestMatchFilePattern(t *testing.T) {
	assert.True(t, matchFilePattern("Foo.generated.h", "Foo.generated.h", "**/*.generated.h"))
	assert.False(t, matchFilePattern("Foo.h", "Foo.h", "**/*.generated.h"))
}
