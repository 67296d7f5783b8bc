package report

import (
	"io"
	"strconv"
	"strings"

	"github.com/nao1215/markdown"
	"github.com/nao1215/markdown/mermaid/piechart"

	"github.com/nao1215/siteaudit/internal/model"
)

// MarkdownWriter outputs a GitHub-flavored Markdown report.
type MarkdownWriter struct {
	baseWriter
}

// NewMarkdownWriter creates a MarkdownWriter.
func NewMarkdownWriter(output io.Writer) *MarkdownWriter {
	return &MarkdownWriter{baseWriter: newBaseWriter(output)}
}

var severityLabels = map[model.Severity]string{
	model.SeverityCritical: "🔴 Critical",
	model.SeverityError:    "🟠 Error",
	model.SeverityWarning:  "🟡 Warning",
	model.SeverityInfo:     "🔵 Info",
}

// Write implements Writer.
func (w *MarkdownWriter) Write(report *model.Report) error {
	md := markdown.NewMarkdown(w.output)

	w.writeHeader(md, report)
	w.writeSummary(md, report)
	w.writeIssues(md, report)
	w.writeByType(md, report)

	md.HorizontalRule()
	md.PlainText("")
	md.PlainText("*Report generated by siteaudit*")

	return md.Build()
}

func (w *MarkdownWriter) writeHeader(md *markdown.Markdown, report *model.Report) {
	md.H1("Site Audit Report")
	md.PlainText("")

	rows := [][]string{
		{"Target", "`" + report.Target + "`"},
		{"Mode", report.Mode},
		{"Started", report.StartedAt.Format("2006-01-02 15:04:05 MST")},
		{"Units Scanned", strconv.Itoa(report.UnitsScanned)},
	}
	if report.PagesCrawled > 0 {
		rows = append(rows, []string{"Pages Crawled", strconv.Itoa(report.PagesCrawled)})
	}
	status := "✅ Complete"
	if report.Failed() {
		status = "❌ Error - " + report.Error
	}
	rows = append(rows, []string{"Status", status})

	md.Table(markdown.TableSet{
		Header: []string{"Property", "Value"},
		Rows:   rows,
	})
	md.PlainText("")
}

func (w *MarkdownWriter) writeSummary(md *markdown.Markdown, report *model.Report) {
	md.H2("Severity Summary")
	md.PlainText("")

	counts := report.CountBySeverity()
	rows := make([][]string, 0, len(counts)+1)
	for _, s := range model.AllSeverities() {
		rows = append(rows, []string{severityLabels[s], strconv.Itoa(counts[s])})
	}
	rows = append(rows, []string{"**Total**", "**" + strconv.Itoa(len(report.Issues)) + "**"})

	md.Table(markdown.TableSet{
		Header: []string{"Severity", "Count"},
		Rows:   rows,
	})
	md.PlainText("")

	if report.HasIssues() {
		chart := piechart.NewPieChart(
			io.Discard,
			piechart.WithTitle("Issue Severity Distribution"),
			piechart.WithShowData(true),
		)
		for _, s := range model.AllSeverities() {
			if counts[s] > 0 {
				chart.LabelAndIntValue(capitalize(s.String()), uint64(counts[s]))
			}
		}
		md.CodeBlocks(markdown.SyntaxHighlightMermaid, chart.String())
		md.PlainText("")
	}

	switch {
	case counts[model.SeverityCritical] > 0:
		md.Cautionf("%d critical issue(s) need immediate attention, such as leaked credentials.",
			counts[model.SeverityCritical])
	case counts[model.SeverityError] > 0:
		md.Warningf("%d error(s) found: broken or unparsable content.", counts[model.SeverityError])
	case report.HasIssues():
		md.Note("Only warnings and informational issues found.")
	default:
		md.Tip("No issues found!")
	}
	md.PlainText("")
}

func (w *MarkdownWriter) writeIssues(md *markdown.Markdown, report *model.Report) {
	if !report.HasIssues() {
		return
	}
	md.H2("Issues")
	md.PlainText("")

	rows := make([][]string, 0, len(report.Issues))
	for _, issue := range report.Issues {
		rows = append(rows, []string{
			"`" + issue.Type + "`",
			escapeCell(truncateString(issue.Location, 60)),
			lineText(issue.Line),
			escapeCell(truncateString(issue.Message, 100)),
			issue.Severity.String(),
			escapeCell(issue.Solution()),
		})
	}
	md.Table(markdown.TableSet{
		Header: []string{"Type", "Location", "Line", "Message", "Severity", "Solution"},
		Rows:   rows,
	})
	md.PlainText("")
}

func (w *MarkdownWriter) writeByType(md *markdown.Markdown, report *model.Report) {
	if !report.HasIssues() {
		return
	}
	md.H2("Summary by Type")
	md.PlainText("")

	items := make([]string, 0)
	for _, tc := range report.CountByType() {
		items = append(items, "`"+tc.Type+"`: "+strconv.Itoa(tc.Count))
	}
	md.BulletList(items...)
	md.PlainText("")
}

// escapeCell keeps pipes and newlines from breaking a table row.
func escapeCell(s string) string {
	s = strings.ReplaceAll(s, "|", `\|`)
	return strings.ReplaceAll(s, "\n", " ")
}
