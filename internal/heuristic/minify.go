package heuristic

import (
	"strings"
	"unicode/utf8"
)

const (
	// minifiedMinLines is the line count under which text counts as minified.
	minifiedMinLines = 5

	// minifiedAvgLineLength is the average line length above which text
	// counts as minified.
	minifiedAvgLineLength = 200
)

// IsMinified guesses whether text was not meant to be read by humans:
// fewer than 5 lines, or more than 200 characters per line on average.
// Empty text is not minified.
func IsMinified(text string) bool {
	lines := splitLines(text)
	if len(lines) == 0 {
		return false
	}

	total := 0
	for _, line := range lines {
		total += utf8.RuneCountInString(line)
	}
	avg := float64(total) / float64(len(lines))

	return avg > minifiedAvgLineLength || len(lines) < minifiedMinLines
}

// splitLines splits on \n, \r\n and \r without producing a trailing empty
// line for a final terminator.
func splitLines(text string) []string {
	if text == "" {
		return nil
	}
	text = strings.ReplaceAll(text, "\r\n", "\n")
	text = strings.ReplaceAll(text, "\r", "\n")
	text = strings.TrimSuffix(text, "\n")
	return strings.Split(text, "\n")
}
