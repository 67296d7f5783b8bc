package report

import (
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/nao1215/siteaudit/internal/model"
)

// ErrUnknownFormat is returned by New for an unsupported format name.
var ErrUnknownFormat = errors.New("unknown report format")

// Format names accepted by New.
const (
	FormatPlain    = "plain"
	FormatJSON     = "json"
	FormatCSV      = "csv"
	FormatMarkdown = "markdown"
	FormatHTML     = "html"
)

// Formats lists the supported format names.
func Formats() []string {
	return []string{FormatPlain, FormatJSON, FormatCSV, FormatMarkdown, FormatHTML}
}

// Writer renders a report.
type Writer interface {
	Write(report *model.Report) error
}

// New returns the Writer for format writing to output.
func New(format string, output io.Writer) (Writer, error) {
	switch strings.ToLower(format) {
	case FormatPlain, "text", "":
		return NewPlainWriter(output), nil
	case FormatJSON:
		return NewJSONWriter(output), nil
	case FormatCSV:
		return NewCSVWriter(output), nil
	case FormatMarkdown, "md":
		return NewMarkdownWriter(output), nil
	case FormatHTML:
		return NewHTMLWriter(output), nil
	default:
		return nil, fmt.Errorf("%w %q: use one of %s", ErrUnknownFormat, format, strings.Join(Formats(), ", "))
	}
}

// MultiWriter writes a report to several Writers, stopping at the first error.
type MultiWriter struct {
	writers []Writer
}

// NewMultiWriter creates a MultiWriter.
func NewMultiWriter(writers ...Writer) *MultiWriter {
	return &MultiWriter{writers: writers}
}

// Write implements Writer.
func (m *MultiWriter) Write(report *model.Report) error {
	for _, w := range m.writers {
		if err := w.Write(report); err != nil {
			return err
		}
	}
	return nil
}

// baseWriter provides common functionality for report writers.
type baseWriter struct {
	output io.Writer
}

func newBaseWriter(output io.Writer) baseWriter {
	return baseWriter{output: output}
}

// writeString writes s in one call so partial reports are not interleaved.
func (b baseWriter) writeString(s string) error {
	_, err := io.WriteString(b.output, s)
	return err
}

func lineText(line int) string {
	if line == model.LineUnknown {
		return "-"
	}
	return fmt.Sprint(line)
}

// truncateString truncates a string to maxLen bytes with an ellipsis.
func truncateString(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	if maxLen <= 3 {
		return s[:maxLen]
	}
	return s[:maxLen-3] + "..."
}
