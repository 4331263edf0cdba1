package chunk

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/Aman-CERP/ue5query/internal/extract"
	"github.com/Aman-CERP/ue5query/internal/store"
)

// ue5IdentifierPattern picks out UE5-prefixed identifiers mentioned in a
// fallback (non-entity) chunk, so gap/text chunks still carry enough
// Entities for the boost stack's co-occurrence checks to find them.
var ue5IdentifierPattern = regexp.MustCompile(`\b([FUAIE][A-Z][A-Za-z0-9_]*)\b`)

func findMentionedEntities(content string) []string {
	matches := ue5IdentifierPattern.FindAllString(content, -1)
	if len(matches) == 0 {
		return nil
	}
	seen := make(map[string]bool, len(matches))
	var out []string
	for _, m := range matches {
		if !seen[m] {
			seen[m] = true
			out = append(out, m)
		}
	}
	return out
}

// CodeChunkerOptions configures chunker behavior.
type CodeChunkerOptions struct {
	MaxChunkTokens int // default: DefaultMaxChunkTokens
	OverlapTokens  int // default: DefaultOverlapTokens
}

// CppChunker splits UE5 C++ source into chunks bounded by the structural
// entity definitions internal/extract finds (struct/class/enum/function/
// delegate), falling back to overlapping line windows for content outside
// any recognized definition and for definitions too large to embed whole.
type CppChunker struct {
	extractor *extract.Extractor
	options   CodeChunkerOptions
}

// NewCodeChunker creates a chunker with default options.
func NewCodeChunker() *CppChunker {
	return NewCodeChunkerWithOptions(CodeChunkerOptions{})
}

// NewCodeChunkerWithOptions creates a chunker with custom options.
func NewCodeChunkerWithOptions(opts CodeChunkerOptions) *CppChunker {
	if opts.MaxChunkTokens == 0 {
		opts.MaxChunkTokens = DefaultMaxChunkTokens
	}
	if opts.OverlapTokens == 0 {
		opts.OverlapTokens = DefaultOverlapTokens
	}
	return &CppChunker{extractor: extract.New(), options: opts}
}

var symbolTypeByKind = map[store.EntityKind]SymbolType{
	store.EntityKindStruct:   SymbolTypeStruct,
	store.EntityKindClass:    SymbolTypeClass,
	store.EntityKindEnum:     SymbolTypeEnum,
	store.EntityKindFunction: SymbolTypeFunction,
	store.EntityKindDelegate: SymbolTypeDelegate,
}

// Chunk splits a file into semantic chunks.
func (c *CppChunker) Chunk(ctx context.Context, file *FileInput) ([]*Chunk, error) {
	content := string(file.Content)
	if strings.TrimSpace(content) == "" {
		return nil, nil
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	fileContext := c.extractFileContext(file.Path, content)
	defs := c.extractor.Extract(content)
	if len(defs) == 0 {
		return c.chunkByLines(file, fileContext)
	}

	now := time.Now()
	var chunks []*Chunk
	lastConsumedLine := 0 // 1-indexed, inclusive

	lines := strings.Split(content, "\n")
	for _, def := range defs {
		// Any unconsumed content between the previous definition and this
		// one (free functions the header table missed, comment banners,
		// global declarations) becomes its own fallback chunk so nothing
		// is silently dropped from the semantic index.
		if def.LineStart-1 > lastConsumedLine {
			gap := strings.Join(lines[lastConsumedLine:def.LineStart-1], "\n")
			if strings.TrimSpace(gap) != "" {
				chunks = append(chunks, c.textChunks(file, fileContext, gap, lastConsumedLine+1, now)...)
			}
		}

		chunks = append(chunks, c.chunksFromDefinition(file, fileContext, def, now)...)
		lastConsumedLine = def.LineEnd
	}

	if lastConsumedLine < len(lines) {
		tail := strings.Join(lines[lastConsumedLine:], "\n")
		if strings.TrimSpace(tail) != "" {
			chunks = append(chunks, c.textChunks(file, fileContext, tail, lastConsumedLine+1, now)...)
		}
	}

	return chunks, nil
}

// chunksFromDefinition turns a single extracted Definition into one chunk,
// or several overlapping line-window chunks if it exceeds the token budget.
func (c *CppChunker) chunksFromDefinition(file *FileInput, fileContext string, def store.Definition, now time.Time) []*Chunk {
	hasProp, hasClass, hasFunc, hasStruct, hasEnum := extract.ReflectionFlags(def.Content)
	symType := symbolTypeByKind[def.EntityKind]

	if estimateTokens(def.Content) <= c.options.MaxChunkTokens {
		return []*Chunk{{
			ID:           generateChunkID(file.Path, def.Content),
			FilePath:     file.Path,
			Content:      combineContextAndContent(fileContext, def.Content),
			RawContent:   def.Content,
			Context:      fileContext,
			ContentType:  ContentTypeEntity,
			StartLine:    def.LineStart,
			EndLine:      def.LineEnd,
			Symbols:      []*Symbol{{Name: def.EntityName, Type: symType, StartLine: def.LineStart, EndLine: def.LineEnd}},
			Entities:     []string{def.EntityName},
			Metadata:     map[string]string{"entity": def.EntityName},
			CreatedAt:    now,
			UpdatedAt:    now,
			HasUProperty: hasProp,
			HasUClass:    hasClass,
			HasUFunction: hasFunc,
			HasUStruct:   hasStruct,
			HasUEnum:     hasEnum,
		}}
	}

	parts := c.splitByLines(def.Content, def.EntityName, symType, file, fileContext, now, def.LineStart)
	for _, p := range parts {
		p.Entities = []string{def.EntityName}
		p.HasUProperty, p.HasUClass, p.HasUFunction, p.HasUStruct, p.HasUEnum = hasProp, hasClass, hasFunc, hasStruct, hasEnum
	}
	return parts
}

// splitByLines splits content too large for one chunk into overlapping
// line-window chunks, each still tagged with the originating symbol.
func (c *CppChunker) splitByLines(content, entityName string, symType SymbolType, file *FileInput, fileContext string, now time.Time, startLine int) []*Chunk {
	lines := strings.Split(content, "\n")
	if len(lines) == 0 {
		return nil
	}

	maxLinesPerChunk := (c.options.MaxChunkTokens * TokensPerChar) / 80
	if maxLinesPerChunk < 20 {
		maxLinesPerChunk = 20
	}
	overlapLines := (c.options.OverlapTokens * TokensPerChar) / 80
	if overlapLines < 2 {
		overlapLines = 2
	}

	var chunks []*Chunk
	part := 0
	for i := 0; i < len(lines); {
		end := i + maxLinesPerChunk
		if end > len(lines) {
			end = len(lines)
		}
		part++

		chunkContent := strings.Join(lines[i:end], "\n")
		chunkStartLine := startLine + i
		chunkEndLine := startLine + end - 1

		chunks = append(chunks, &Chunk{
			ID:          generateChunkID(file.Path, chunkContent),
			FilePath:    file.Path,
			Content:     combineContextAndContent(fileContext, chunkContent),
			RawContent:  chunkContent,
			Context:     fileContext,
			ContentType: ContentTypeEntity,
			StartLine:   chunkStartLine,
			EndLine:     chunkEndLine,
			Symbols: []*Symbol{{
				Name:      fmt.Sprintf("%s_part%d", entityName, part),
				Type:      symType,
				StartLine: chunkStartLine,
				EndLine:   chunkEndLine,
			}},
			Metadata:  map[string]string{"entity": entityName},
			CreatedAt: now,
			UpdatedAt: now,
		})

		i = end - overlapLines
		if i <= 0 || end >= len(lines) {
			break
		}
	}
	return chunks
}

// textChunks handles a content span between (or outside) recognized
// definitions: free functions, namespace banners, leading includes.
func (c *CppChunker) textChunks(file *FileInput, fileContext, content string, startLine int, now time.Time) []*Chunk {
	lines := strings.Split(content, "\n")
	maxLinesPerChunk := 128
	overlapLines := 16

	var chunks []*Chunk
	for i := 0; i < len(lines); {
		end := i + maxLinesPerChunk
		if end > len(lines) {
			end = len(lines)
		}
		chunkContent := strings.Join(lines[i:end], "\n")
		if strings.TrimSpace(chunkContent) != "" {
			chunks = append(chunks, &Chunk{
				ID:          generateChunkID(file.Path, chunkContent),
				FilePath:    file.Path,
				Content:     combineContextAndContent(fileContext, chunkContent),
				RawContent:  chunkContent,
				Context:     fileContext,
				ContentType: ContentTypeText,
				StartLine:   startLine + i,
				EndLine:     startLine + end - 1,
				Entities:    findMentionedEntities(chunkContent),
				Metadata:    map[string]string{},
				CreatedAt:   now,
				UpdatedAt:   now,
			})
		}
		i = end - overlapLines
		if i <= 0 || end >= len(lines) {
			break
		}
	}
	return chunks
}

// chunkByLines is the fallback for files with no recognized definitions at
// all (pure utility headers, generated glue code).
func (c *CppChunker) chunkByLines(file *FileInput, fileContext string) ([]*Chunk, error) {
	content := string(file.Content)
	return c.textChunks(file, fileContext, content, 1, time.Now()), nil
}

// extractFileContext builds the banner prepended to every chunk's Content:
// a file-path marker plus the file's #include lines, to give the embedder
// enough context to place a bare symbol inside the broader module.
func (c *CppChunker) extractFileContext(path, content string) string {
	marker := fmt.Sprintf("// File: %s", path)

	var includes []string
	for _, line := range strings.Split(content, "\n") {
		trimmed := strings.TrimSpace(line)
		if strings.HasPrefix(trimmed, "#include") {
			includes = append(includes, trimmed)
		}
		if len(includes) >= 16 {
			break
		}
	}
	if len(includes) == 0 {
		return marker
	}
	return marker + "\n" + strings.Join(includes, "\n")
}

// generateChunkID derives a stable, content-addressable chunk ID from file
// path and content hash: same content in the same file keeps its ID across
// line-number shifts elsewhere in the file, while different content (even
// at the same location) gets a new one, triggering re-embedding.
func generateChunkID(filePath, content string) string {
	contentHash := sha256.Sum256([]byte(content))
	contentHashStr := hex.EncodeToString(contentHash[:])[:16]
	input := fmt.Sprintf("%s:%s", filePath, contentHashStr)
	hash := sha256.Sum256([]byte(input))
	return hex.EncodeToString(hash[:])[:16]
}

func estimateTokens(content string) int {
	return len(content) / TokensPerChar
}

func combineContextAndContent(context, rawContent string) string {
	if context == "" {
		return rawContent
	}
	return context + "\n\n" + rawContent
}
