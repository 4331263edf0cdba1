package output

import (
	"encoding/json"
	"encoding/xml"
	"fmt"
	"strings"

	"github.com/Aman-CERP/ue5query/internal/search"
)

// Format names one of the query result serializations the CLI and HTTP
// surfaces can produce.
type Format string

const (
	FormatText     Format = "text"
	FormatJSON     Format = "json"
	FormatJSONL    Format = "jsonl"
	FormatXML      Format = "xml"
	FormatMarkdown Format = "markdown"
	FormatCode     Format = "code"
	FormatPath     Format = "path"
)

// ParseFormat maps a CLI/HTTP format string to a Format, defaulting to text
// on anything unrecognized rather than erroring — an unknown --format value
// should degrade gracefully, not crash the query.
func ParseFormat(s string) Format {
	switch Format(strings.ToLower(strings.TrimSpace(s))) {
	case FormatJSON:
		return FormatJSON
	case FormatJSONL:
		return FormatJSONL
	case FormatXML:
		return FormatXML
	case FormatMarkdown:
		return FormatMarkdown
	case FormatCode:
		return FormatCode
	case FormatPath:
		return FormatPath
	default:
		return FormatText
	}
}

// FormatResult renders a QueryResult per Format. It is a pure function: same
// inputs always produce the same string, no I/O.
func FormatResult(result *search.QueryResult, format Format, includeCode bool, maxSnippetLines int) string {
	if result == nil {
		result = &search.QueryResult{}
	}
	if maxSnippetLines <= 0 {
		maxSnippetLines = 10
	}

	switch format {
	case FormatJSON:
		return formatJSON(result, includeCode)
	case FormatJSONL:
		return formatJSONL(result, includeCode)
	case FormatXML:
		return formatXML(result, includeCode)
	case FormatMarkdown:
		return formatMarkdown(result, includeCode, maxSnippetLines)
	case FormatCode:
		return formatCode(result)
	case FormatPath:
		return formatPath(result)
	default:
		return formatText(result, includeCode, maxSnippetLines)
	}
}

// envelope is the shared JSON/XML/Markdown shape: a query block, a results
// block (definitions then semantic), and timing.
type envelope struct {
	Query   queryBlock   `json:"query" xml:"query"`
	Results resultsBlock `json:"results" xml:"results"`
	Timing  timingBlock  `json:"timing" xml:"timing"`
	Summary summaryBlock `json:"summary" xml:"summary"`
}

type queryBlock struct {
	Question   string  `json:"question" xml:"question"`
	Intent     string  `json:"intent" xml:"intent"`
	EntityName string  `json:"entity_name,omitempty" xml:"entity_name,omitempty"`
	Confidence float64 `json:"confidence" xml:"confidence"`
}

type resultsBlock struct {
	Definitions []definitionEntry `json:"definitions" xml:"definitions>definition"`
	Semantic    []semanticEntry   `json:"semantic" xml:"semantic>result"`
}

type definitionEntry struct {
	FilePath   string   `json:"file_path" xml:"file_path"`
	LineStart  int      `json:"line_start" xml:"line_start"`
	LineEnd    int      `json:"line_end" xml:"line_end"`
	EntityKind string   `json:"entity_kind" xml:"entity_kind"`
	EntityName string   `json:"entity_name" xml:"entity_name"`
	Members    []string `json:"members,omitempty" xml:"members>member,omitempty"`
	Origin     string   `json:"origin" xml:"origin"`
	MatchScore float64  `json:"match_score" xml:"match_score"`
	Code       string   `json:"code,omitempty" xml:"code,omitempty"`
}

type semanticEntry struct {
	Path        string  `json:"path" xml:"path"`
	ChunkIndex  int     `json:"chunk_index" xml:"chunk_index"`
	TotalChunks int     `json:"total_chunks" xml:"total_chunks"`
	Origin      string  `json:"origin" xml:"origin"`
	Score       float64 `json:"score" xml:"score"`
	VectorScore float64 `json:"vector_score" xml:"vector_score"`
	SparseScore float64 `json:"sparse_score" xml:"sparse_score"`
	RerankScore float64 `json:"rerank_score,omitempty" xml:"rerank_score,omitempty"`
	Snippet     string  `json:"snippet,omitempty" xml:"snippet,omitempty"`
}

type timingBlock struct {
	IntentAnalysisSeconds   float64 `json:"intent_analysis_seconds" xml:"intent_analysis_seconds"`
	ExpansionSeconds        float64 `json:"expansion_seconds" xml:"expansion_seconds"`
	DefinitionSearchSeconds float64 `json:"definition_search_seconds" xml:"definition_search_seconds"`
	SemanticSearchSeconds   float64 `json:"semantic_search_seconds" xml:"semantic_search_seconds"`
	RerankSeconds           float64 `json:"rerank_seconds" xml:"rerank_seconds"`
	TotalSeconds            float64 `json:"total_seconds" xml:"total_seconds"`
}

type summaryBlock struct {
	DefinitionCount int `json:"definition_count" xml:"definition_count"`
	SemanticCount   int `json:"semantic_count" xml:"semantic_count"`
	TotalCount      int `json:"total_count" xml:"total_count"`
}

func buildEnvelope(result *search.QueryResult, includeCode bool, maxSnippetLines int) envelope {
	env := envelope{
		Query: queryBlock{
			Question:   result.Question,
			Intent:     string(result.Intent.QueryType),
			EntityName: result.Intent.EntityName,
			Confidence: result.Intent.Confidence,
		},
		Timing: timingBlock{
			IntentAnalysisSeconds:   result.Timing.IntentAnalysisSeconds,
			ExpansionSeconds:        result.Timing.ExpansionSeconds,
			DefinitionSearchSeconds: result.Timing.DefinitionSearchSeconds,
			SemanticSearchSeconds:   result.Timing.SemanticSearchSeconds,
			RerankSeconds:           result.Timing.RerankSeconds,
			TotalSeconds:            result.Timing.TotalSeconds,
		},
	}

	for _, d := range result.DefinitionResults {
		entry := definitionEntry{
			FilePath:   d.FilePath,
			LineStart:  d.LineStart,
			LineEnd:    d.LineEnd,
			EntityKind: string(d.EntityKind),
			EntityName: d.EntityName,
			Members:    d.Members,
			Origin:     string(d.Origin),
			MatchScore: d.MatchScore,
		}
		if includeCode {
			entry.Code = d.Definition
		}
		env.Results.Definitions = append(env.Results.Definitions, entry)
	}

	for _, s := range result.SemanticResults {
		entry := semanticEntry{
			Path:        s.Path,
			ChunkIndex:  s.ChunkIndex,
			TotalChunks: s.TotalChunks,
			Origin:      string(s.Origin),
			Score:       s.Score,
			VectorScore: s.VectorScore,
			SparseScore: s.SparseScore,
			RerankScore: s.RerankScore,
		}
		if includeCode {
			entry.Snippet = truncateLines(s.Content, maxSnippetLines)
		}
		env.Results.Semantic = append(env.Results.Semantic, entry)
	}

	env.Summary = summaryBlock{
		DefinitionCount: len(env.Results.Definitions),
		SemanticCount:   len(env.Results.Semantic),
		TotalCount:      len(env.Results.Definitions) + len(env.Results.Semantic),
	}
	return env
}

func formatJSON(result *search.QueryResult, includeCode bool) string {
	env := buildEnvelope(result, includeCode, 0)
	b, err := json.MarshalIndent(env, "", "  ")
	if err != nil {
		return fmt.Sprintf(`{"error": %q}`, err.Error())
	}
	return string(b)
}

// formatJSONL emits one JSON object per line: a query line, one line per
// definition result, one line per semantic result, and a final timing line.
// Streaming-friendly.
func formatJSONL(result *search.QueryResult, includeCode bool) string {
	env := buildEnvelope(result, includeCode, 0)
	var lines []string

	type typed struct {
		Type string `json:"type"`
		queryBlock
	}
	if b, err := json.Marshal(typed{Type: "query", queryBlock: env.Query}); err == nil {
		lines = append(lines, string(b))
	}
	for _, d := range env.Results.Definitions {
		if b, err := json.Marshal(struct {
			Type string `json:"type"`
			definitionEntry
		}{"definition", d}); err == nil {
			lines = append(lines, string(b))
		}
	}
	for _, s := range env.Results.Semantic {
		if b, err := json.Marshal(struct {
			Type string `json:"type"`
			semanticEntry
		}{"semantic", s}); err == nil {
			lines = append(lines, string(b))
		}
	}
	if b, err := json.Marshal(struct {
		Type string `json:"type"`
		timingBlock
	}{"timing", env.Timing}); err == nil {
		lines = append(lines, string(b))
	}
	return strings.Join(lines, "\n")
}

func formatXML(result *search.QueryResult, includeCode bool) string {
	env := buildEnvelope(result, includeCode, 0)
	b, err := xml.MarshalIndent(env, "", "  ")
	if err != nil {
		return fmt.Sprintf("<error>%s</error>", err.Error())
	}
	return xml.Header + string(b)
}

func formatMarkdown(result *search.QueryResult, includeCode bool, maxSnippetLines int) string {
	env := buildEnvelope(result, includeCode, maxSnippetLines)
	var b strings.Builder

	fmt.Fprintf(&b, "# Query: %s\n\n", env.Query.Question)
	fmt.Fprintf(&b, "**Intent:** %s", env.Query.Intent)
	if env.Query.EntityName != "" {
		fmt.Fprintf(&b, " (entity: `%s`)", env.Query.EntityName)
	}
	b.WriteString("\n\n")

	if len(env.Results.Definitions) > 0 {
		b.WriteString("## Definitions\n\n")
		for _, d := range env.Results.Definitions {
			fmt.Fprintf(&b, "### `%s` (%s)\n\n", d.EntityName, d.EntityKind)
			fmt.Fprintf(&b, "%s:%d-%d (%s, match %.2f)\n\n", d.FilePath, d.LineStart, d.LineEnd, d.Origin, d.MatchScore)
			if len(d.Members) > 0 {
				for _, m := range d.Members {
					fmt.Fprintf(&b, "- `%s`\n", m)
				}
				b.WriteString("\n")
			}
			if includeCode && d.Code != "" {
				fmt.Fprintf(&b, "```cpp\n%s\n```\n\n", truncateLines(d.Code, maxSnippetLines))
			}
		}
	}

	if len(env.Results.Semantic) > 0 {
		b.WriteString("## Semantic matches\n\n")
		for _, s := range env.Results.Semantic {
			fmt.Fprintf(&b, "### %s (chunk %d/%d)\n\n", s.Path, s.ChunkIndex+1, s.TotalChunks)
			fmt.Fprintf(&b, "score %.3f (vector %.3f, sparse %.3f)\n\n", s.Score, s.VectorScore, s.SparseScore)
			if includeCode && s.Snippet != "" {
				fmt.Fprintf(&b, "```cpp\n%s\n```\n\n", s.Snippet)
			}
		}
	}

	fmt.Fprintf(&b, "---\n_%d results in %.3fs_\n", env.Summary.TotalCount, env.Timing.TotalSeconds)
	return b.String()
}

// formatCode emits comment-headered definition snippets — the "give me
// just the code" view. Semantic results degrade to a path comment plus
// their raw content since they lack an entity_name header.
func formatCode(result *search.QueryResult) string {
	var b strings.Builder
	for _, d := range result.DefinitionResults {
		fmt.Fprintf(&b, "// %s:%d-%d (%s %s)\n%s\n\n", d.FilePath, d.LineStart, d.LineEnd, d.EntityKind, d.EntityName, d.Definition)
	}
	for _, s := range result.SemanticResults {
		fmt.Fprintf(&b, "// %s (chunk %d/%d)\n%s\n\n", s.Path, s.ChunkIndex+1, s.TotalChunks, s.Content)
	}
	return strings.TrimRight(b.String(), "\n")
}

// formatPath emits unique file paths, definitions first, then semantic,
// skipping paths already listed.
func formatPath(result *search.QueryResult) string {
	seen := make(map[string]bool)
	var lines []string
	for _, d := range result.DefinitionResults {
		if !seen[d.FilePath] {
			seen[d.FilePath] = true
			lines = append(lines, d.FilePath)
		}
	}
	for _, s := range result.SemanticResults {
		if !seen[s.Path] {
			seen[s.Path] = true
			lines = append(lines, s.Path)
		}
	}
	return strings.Join(lines, "\n")
}

func formatText(result *search.QueryResult, includeCode bool, maxSnippetLines int) string {
	var b strings.Builder

	total := len(result.DefinitionResults) + len(result.SemanticResults)
	fmt.Fprintf(&b, "Found %d results for %q (intent: %s)\n\n", total, result.Question, result.Intent.QueryType)

	if len(result.DefinitionResults) > 0 {
		b.WriteString("Definitions:\n")
		for i, d := range result.DefinitionResults {
			fmt.Fprintf(&b, "%d. %s:%d (%s %s, match %.2f)\n", i+1, d.FilePath, d.LineStart, d.EntityKind, d.EntityName, d.MatchScore)
			if len(d.Members) > 0 {
				fmt.Fprintf(&b, "   members: %s\n", strings.Join(d.Members, ", "))
			}
			if includeCode && d.Definition != "" {
				for _, line := range strings.Split(truncateLines(d.Definition, maxSnippetLines), "\n") {
					fmt.Fprintf(&b, "   %s\n", line)
				}
			}
		}
		b.WriteString("\n")
	}

	if len(result.SemanticResults) > 0 {
		b.WriteString("Semantic matches:\n")
		for i, s := range result.SemanticResults {
			fmt.Fprintf(&b, "%d. %s:%d (score %.3f)\n", i+1, s.Path, s.ChunkIndex, s.Score)
			if includeCode && s.Content != "" {
				for _, line := range strings.Split(truncateLines(s.Content, maxSnippetLines), "\n") {
					fmt.Fprintf(&b, "   %s\n", line)
				}
			}
		}
	}

	return strings.TrimRight(b.String(), "\n")
}

func truncateLines(content string, maxLines int) string {
	if maxLines <= 0 {
		return content
	}
	lines := strings.Split(content, "\n")
	if len(lines) <= maxLines {
		return content
	}
	return strings.Join(lines[:maxLines], "\n") + "\n..."
}
