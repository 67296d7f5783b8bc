// Package locate maps detected snippets and patterns back to 1-based lines
// and columns in un-indexed source text.
//
// Every function returns model.LineUnknown instead of failing when the raw
// text is empty or the needle does not occur.
package locate

import (
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/nao1215/siteaudit/internal/model"
)

// Match is one occurrence of a needle or pattern.
type Match struct {
	// Line is the 1-based line of the first byte of the match.
	Line int

	// Column is the 1-based column, counted in runes.
	Column int

	// Offset is the byte offset of the match in the raw text.
	Offset int

	// Text is the exact matched substring.
	Text string
}

// Line returns the line containing the first occurrence of needle.
//
// A needle that occurs for several unrelated reasons always resolves to its
// first occurrence; callers that use a generic token as an anchor get a
// coarse, best-effort line.
func Line(raw, needle string) int {
	if raw == "" || needle == "" {
		return model.LineUnknown
	}
	idx := strings.Index(raw, needle)
	if idx < 0 {
		return model.LineUnknown
	}
	return LineOfOffset(raw, idx)
}

// LineFold is Line with ASCII case-insensitive matching.
func LineFold(raw, needle string) int {
	if raw == "" || needle == "" {
		return model.LineUnknown
	}
	idx := strings.Index(strings.ToLower(raw), strings.ToLower(needle))
	if idx < 0 {
		return model.LineUnknown
	}
	return LineOfOffset(raw, idx)
}

// LinePattern returns the first line matching re.
func LinePattern(raw string, re *regexp.Regexp) int {
	if raw == "" || re == nil {
		return model.LineUnknown
	}
	loc := re.FindStringIndex(raw)
	if loc == nil {
		return model.LineUnknown
	}
	return LineOfOffset(raw, loc[0])
}

// First returns the first literal occurrence of needle.
func First(raw, needle string) (Match, bool) {
	if raw == "" || needle == "" {
		return Match{}, false
	}
	idx := strings.Index(raw, needle)
	if idx < 0 {
		return Match{}, false
	}
	return newMatch(raw, idx, needle), true
}

// FirstPattern returns the first match of re.
func FirstPattern(raw string, re *regexp.Regexp) (Match, bool) {
	if raw == "" || re == nil {
		return Match{}, false
	}
	loc := re.FindStringIndex(raw)
	if loc == nil {
		return Match{}, false
	}
	return newMatch(raw, loc[0], raw[loc[0]:loc[1]]), true
}

// All returns every non-overlapping literal occurrence of needle in order.
func All(raw, needle string) []Match {
	if raw == "" || needle == "" {
		return nil
	}
	var matches []Match
	start := 0
	for {
		idx := strings.Index(raw[start:], needle)
		if idx < 0 {
			return matches
		}
		offset := start + idx
		matches = append(matches, newMatch(raw, offset, needle))
		start = offset + len(needle)
	}
}

// AllPattern returns every match of re in order.
func AllPattern(raw string, re *regexp.Regexp) []Match {
	if raw == "" || re == nil {
		return nil
	}
	locs := re.FindAllStringIndex(raw, -1)
	matches := make([]Match, 0, len(locs))
	for _, loc := range locs {
		matches = append(matches, newMatch(raw, loc[0], raw[loc[0]:loc[1]]))
	}
	return matches
}

// LineOfOffset returns the line holding the byte at offset.
func LineOfOffset(raw string, offset int) int {
	line, _ := Position(raw, offset)
	return line
}

// Position returns the line and rune column of the byte at offset.
// Offsets outside raw yield LineUnknown and column 0.
func Position(raw string, offset int) (int, int) {
	if offset < 0 || offset > len(raw) || raw == "" {
		return model.LineUnknown, 0
	}
	before := raw[:offset]
	line := strings.Count(before, "\n") + 1
	lineStart := strings.LastIndexByte(before, '\n') + 1
	column := utf8.RuneCountInString(before[lineStart:]) + 1
	return line, column
}

// LineText returns the text of a 1-based line without its line terminator.
func LineText(raw string, line int) string {
	if line < 1 {
		return ""
	}
	for i := 1; ; i++ {
		end := strings.IndexByte(raw, '\n')
		if i == line {
			if end < 0 {
				return strings.TrimSuffix(raw, "\r")
			}
			return strings.TrimSuffix(raw[:end], "\r")
		}
		if end < 0 {
			return ""
		}
		raw = raw[end+1:]
	}
}

// Base returns the line in raw where content starts, or LineUnknown when
// content is not a substring of raw.
func Base(raw, content string) int {
	return Line(raw, content)
}

// Translate converts a line local to content into a line of raw, given the
// base line returned by Base. Unknown lines stay unknown.
func Translate(base, local int) int {
	if base == model.LineUnknown || local == model.LineUnknown {
		return local
	}
	return base + local - 1
}

func newMatch(raw string, offset int, text string) Match {
	line, column := Position(raw, offset)
	return Match{
		Line:   line,
		Column: column,
		Offset: offset,
		Text:   text,
	}
}
