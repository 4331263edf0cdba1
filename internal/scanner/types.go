// Package scanner discovers indexable C++ source files in a UE5 codebase,
// respecting exclusion patterns and .gitignore rules, with optional
// git-submodule traversal for engine/plugin trees.
package scanner

import (
	"time"

	"github.com/Aman-CERP/ue5query/internal/config"
)

// FileInfo contains metadata about a discovered file.
type FileInfo struct {
	Path             string    // Relative path to project root
	AbsPath          string    // Absolute path
	Size             int64     // File size in bytes
	ModTime          time.Time // Last modification time
	IsHeader         bool      // .h / .hpp / .inl
	IsImplementation bool      // .cpp / .cc / .cxx
	IsGenerated      bool      // Detected as generated file
}

// ScanOptions configures the scanner behavior.
type ScanOptions struct {
	// RootDir is the project root directory to scan.
	RootDir string

	// IncludePatterns specifies patterns to include (empty = all).
	IncludePatterns []string

	// ExcludePatterns specifies patterns to exclude.
	ExcludePatterns []string

	// RespectGitignore enables .gitignore parsing.
	RespectGitignore bool

	// Workers sizes the result channel buffer (Workers*10; 0 = NumCPU). The
	// directory walk itself runs in a single goroutine.
	Workers int

	// MaxFileSize is the maximum file size to include in bytes (0 = 10MB default).
	MaxFileSize int64

	// FollowSymlinks enables following symbolic links (default: false).
	FollowSymlinks bool

	// Submodules configures git submodule discovery.
	// If nil or Enabled is false, submodules are not scanned.
	Submodules *config.SubmoduleConfig
}

// ScanResult is returned from the scanner channel.
type ScanResult struct {
	File  *FileInfo
	Error error
}

// DefaultMaxFileSize is the default maximum file size (10MB).
const DefaultMaxFileSize = 10 * 1024 * 1024

// cppExtensions lists the indexable C++ extensions; anything else is skipped
// during the walk. headerExtensions marks the header subset.
var cppExtensions = map[string]bool{
	".h":   true,
	".hpp": true,
	".cpp": true,
	".cc":  true,
	".cxx": true,
	".inl": true,
}

var headerExtensions = map[string]bool{
	".h":   true,
	".hpp": true,
	".inl": true,
}

// IsIndexableSource reports whether path has a recognized C++ extension.
func IsIndexableSource(path string) bool {
	return cppExtensions[extension(path)]
}

// classify returns the header/implementation flags for a path.
func classify(path string) (isHeader, isImpl bool) {
	ext := extension(path)
	if headerExtensions[ext] {
		return true, false
	}
	if cppExtensions[ext] {
		return false, true
	}
	return false, false
}

// extension returns the file extension from a path (including the dot).
func extension(path string) string {
	for i := len(path) - 1; i >= 0; i-- {
		if path[i] == '.' {
			return path[i:]
		}
		if path[i] == '/' || path[i] == '\\' {
			break
		}
	}
	return ""
}
