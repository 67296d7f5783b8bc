package report

import (
	"fmt"
	"io"
	"strings"

	"github.com/nao1215/siteaudit/internal/model"
)

// PlainWriter outputs a numbered issue list for terminals.
type PlainWriter struct {
	baseWriter

	// verbose adds the solution and context of every issue.
	verbose bool
}

// PlainWriterOption configures a PlainWriter.
type PlainWriterOption func(*PlainWriter)

// WithVerbose prints solutions and matched snippets.
func WithVerbose(verbose bool) PlainWriterOption {
	return func(w *PlainWriter) {
		w.verbose = verbose
	}
}

// NewPlainWriter creates a PlainWriter.
func NewPlainWriter(output io.Writer, opts ...PlainWriterOption) *PlainWriter {
	w := &PlainWriter{baseWriter: newBaseWriter(output)}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Write implements Writer.
func (w *PlainWriter) Write(report *model.Report) error {
	var sb strings.Builder

	if report.Failed() {
		fmt.Fprintf(&sb, "Error: %s\n", report.Error)
	}

	if !report.HasIssues() {
		sb.WriteString("No issues found!\n")
		return w.writeString(sb.String())
	}

	fmt.Fprintf(&sb, "Found %d issues:\n", len(report.Issues))
	sb.WriteString(strings.Repeat("=", 60))
	sb.WriteString("\n")
	for i, issue := range report.Issues {
		fmt.Fprintf(&sb, "%d. [%s] (%s)\n", i+1, issue.Type, issue.Severity)
		fmt.Fprintf(&sb, "   Location: %s\n", issue.Location)
		if issue.HasLine() {
			if issue.Column > 0 {
				fmt.Fprintf(&sb, "   Line: %d:%d\n", issue.Line, issue.Column)
			} else {
				fmt.Fprintf(&sb, "   Line: %d\n", issue.Line)
			}
		}
		fmt.Fprintf(&sb, "   Issue: %s\n", issue.Message)
		if w.verbose {
			if issue.Context != "" {
				fmt.Fprintf(&sb, "   Context: %s\n", truncateString(issue.Context, 120))
			}
			fmt.Fprintf(&sb, "   Solution: %s\n", issue.Solution())
		}
		sb.WriteString(strings.Repeat("-", 60))
		sb.WriteString("\n")
	}

	sb.WriteString("\nSummary:\n")
	for _, tc := range report.CountByType() {
		fmt.Fprintf(&sb, "  %s: %d\n", tc.Type, tc.Count)
	}

	return w.writeString(sb.String())
}
