package extract

import (
	"strings"

	"github.com/Aman-CERP/ue5query/internal/store"
)

// Extractor pulls definitions (struct/class/enum/function/delegate) out of
// a single C++ source file using header regexes plus brace balancing,
// never an AST.
type Extractor struct{}

// New constructs an Extractor. Stateless; safe to share across goroutines.
func New() *Extractor {
	return &Extractor{}
}

// Extract scans content line by line, running the header table against
// each line; on a match it brace-balances from that point to find the
// definition's end, parses members inside the body, and records the
// resulting Definition. Lines already consumed by a found definition are
// skipped to avoid nested false positives (e.g. a member function's own
// braces being mistaken for a top-level definition).
func (e *Extractor) Extract(content string) []store.Definition {
	lines := strings.Split(content, "\n")
	var defs []store.Definition

	skipUntilLine := -1
	for i, line := range lines {
		if i <= skipUntilLine {
			continue
		}
		spec, name, ok := matchHeader(line)
		if !ok {
			continue
		}

		// Find the opening brace: it may be on this line, or (for
		// multi-line class/struct headers with inheritance lists) on a
		// following line. Delegates don't have a body brace at all — they
		// are a single macro invocation terminated by ')' then ';'.
		if spec.kind == store.EntityKindDelegate {
			endLine := findStatementEnd(lines, i)
			defs = append(defs, store.Definition{
				EntityName: name,
				EntityKind: spec.kind,
				LineStart:  i + 1,
				LineEnd:    endLine + 1,
				Content:    strings.Join(lines[i:endLine+1], "\n"),
			})
			skipUntilLine = endLine
			continue
		}

		braceLine, braceCol, found := findOpeningBrace(lines, i)
		if !found {
			continue
		}
		endLine, _, balanced := findMatchingClose(lines, braceLine, braceCol)
		if !balanced {
			continue
		}

		full := strings.Join(lines[i:endLine+1], "\n")
		var members []store.Member
		if spec.kind == store.EntityKindStruct || spec.kind == store.EntityKindClass {
			members = parseMembers(lines[braceLine+1 : endLine])
		}

		defs = append(defs, store.Definition{
			EntityName: name,
			EntityKind: spec.kind,
			LineStart:  i + 1,
			LineEnd:    endLine + 1,
			Content:    full,
			Members:    members,
		})
		skipUntilLine = endLine
	}
	return defs
}

// matchHeader runs the dispatch table against a single line, returning the
// first matching kind and its captured entity name.
func matchHeader(line string) (kindSpec, string, bool) {
	for _, spec := range headerTable {
		m := spec.header.FindStringSubmatch(line)
		if m == nil {
			continue
		}
		if spec.nameGroup >= len(m) || m[spec.nameGroup] == "" {
			continue
		}
		return spec, m[spec.nameGroup], true
	}
	return kindSpec{}, "", false
}

// findOpeningBrace looks for the first unmatched '{' starting at startLine,
// scanning forward up to a small number of lines to allow multi-line class
// headers (base class lists that wrap).
func findOpeningBrace(lines []string, startLine int) (line, col int, found bool) {
	const maxLookahead = 10
	for l := startLine; l < len(lines) && l < startLine+maxLookahead; l++ {
		if idx := strings.IndexByte(lines[l], '{'); idx >= 0 {
			return l, idx, true
		}
		if strings.Contains(lines[l], ";") {
			// Forward declaration or statement, not a definition body.
			return 0, 0, false
		}
	}
	return 0, 0, false
}

// findMatchingClose brace-balances forward from (line, col) — which must
// point at an opening '{' — ignoring braces inside string and character
// literals and inside // line comments and /* */ block comments, returning
// the position of the matching '}'.
func findMatchingClose(lines []string, line, col int) (endLine, endCol int, ok bool) {
	depth := 0
	inString := false
	inChar := false
	inBlockComment := false
	for l := line; l < len(lines); l++ {
		text := lines[l]
		start := 0
		if l == line {
			start = col
		}
		for c := start; c < len(text); c++ {
			ch := text[c]
			if inBlockComment {
				if ch == '*' && c+1 < len(text) && text[c+1] == '/' {
					inBlockComment = false
					c++
				}
				continue
			}
			if inString {
				if ch == '\\' {
					c++
				} else if ch == '"' {
					inString = false
				}
				continue
			}
			if inChar {
				if ch == '\\' {
					c++
				} else if ch == '\'' {
					inChar = false
				}
				continue
			}
			if ch == '/' && c+1 < len(text) {
				if text[c+1] == '/' {
					break // line comment: rest of the line is skipped
				}
				if text[c+1] == '*' {
					inBlockComment = true
					c++
					continue
				}
			}
			switch ch {
			case '"':
				inString = true
			case '\'':
				inChar = true
			case '{':
				depth++
			case '}':
				depth--
				if depth == 0 {
					return l, c, true
				}
			}
		}
	}
	return 0, 0, false
}

// findStatementEnd returns the line index of the ';' terminating a
// multi-line macro invocation (used for DECLARE_*_DELEGATE* macros, which
// have no brace body).
func findStatementEnd(lines []string, startLine int) int {
	const maxLookahead = 5
	for l := startLine; l < len(lines) && l < startLine+maxLookahead; l++ {
		if strings.Contains(lines[l], ";") {
			return l
		}
	}
	return startLine
}

// parseMembers scans a definition's body lines for UPROPERTY/UFUNCTION
// annotated (or plain) member declarations.
func parseMembers(bodyLines []string) []store.Member {
	var members []store.Member
	pendingUProperty := false
	pendingUFunction := false
	for _, line := range bodyLines {
		trimmed := strings.TrimSpace(line)
		switch {
		case uPropertyPattern.MatchString(trimmed):
			pendingUProperty = true
			continue
		case uFunctionPattern.MatchString(trimmed):
			pendingUFunction = true
			continue
		}
		if m := memberDeclPattern.FindStringSubmatch(line); m != nil {
			members = append(members, store.Member{
				Type:        strings.TrimSpace(m[1]),
				Name:        m[2],
				IsUProperty: pendingUProperty,
				IsUFunction: pendingUFunction,
			})
			pendingUProperty = false
			pendingUFunction = false
		}
	}
	return members
}
