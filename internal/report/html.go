package report

import (
	"fmt"
	"html/template"
	"io"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/nao1215/siteaudit/internal/model"
)

// HTMLWriter outputs a self-contained HTML dashboard.
type HTMLWriter struct {
	baseWriter
}

// NewHTMLWriter creates an HTMLWriter.
func NewHTMLWriter(output io.Writer) *HTMLWriter {
	return &HTMLWriter{baseWriter: newBaseWriter(output)}
}

var titleCaser = cases.Title(language.English)

func capitalize(s string) string {
	return titleCaser.String(s)
}

type htmlRow struct {
	Index    int
	Type     string
	Location string
	Line     string
	Severity string
	Label    string
	Message  string
	Solution string
}

type htmlSeverity struct {
	Name  string
	Label string
	Count int
}

type htmlData struct {
	Report     *model.Report
	Started    string
	Rows       []htmlRow
	Severities []htmlSeverity
	ByType     []model.TypeCount
}

var htmlTemplate = template.Must(template.New("report").Parse(`<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="utf-8">
<title>Site Audit Report: {{.Report.Target}}</title>
<style>
body { font-family: sans-serif; margin: 2em; color: #222; }
table { border-collapse: collapse; width: 100%; margin-bottom: 2em; }
th, td { border: 1px solid #ccc; padding: 6px 8px; text-align: left; vertical-align: top; }
th { background: #f0f0f0; }
.summary span { display: inline-block; margin-right: 1em; padding: 4px 10px; border-radius: 4px; }
.severity-critical { background: #f8d7da; }
.severity-error { background: #ffe5cc; }
.severity-warning { background: #fff3cd; }
.severity-info { background: #d1ecf1; }
.error { color: #a00; font-weight: bold; }
</style>
</head>
<body>
<h1>Site Audit Report</h1>
<p>Target: <code>{{.Report.Target}}</code> ({{.Report.Mode}}), started {{.Started}}</p>
{{- if .Report.Failed}}
<p class="error">Error: {{.Report.Error}}</p>
{{- end}}
<div class="summary">
{{- range .Severities}}
<span class="severity-{{.Name}}">{{.Label}}: {{.Count}}</span>
{{- end}}
</div>
{{- if .Rows}}
<h2>Found {{len .Rows}} issues</h2>
<table>
<thead><tr><th>#</th><th>Type</th><th>Location</th><th>Severity</th><th>Message</th><th>Solution</th></tr></thead>
<tbody>
{{- range .Rows}}
<tr class="severity-{{.Severity}}"><td>{{.Index}}</td><td><code>{{.Type}}</code></td><td>{{.Location}}{{if ne .Line "-"}}:{{.Line}}{{end}}</td><td>{{.Label}}</td><td>{{.Message}}</td><td>{{.Solution}}</td></tr>
{{- end}}
</tbody>
</table>
<h2>Summary by Type</h2>
<ul>
{{- range .ByType}}
<li><code>{{.Type}}</code>: {{.Count}}</li>
{{- end}}
</ul>
{{- else}}
<p>No issues found!</p>
{{- end}}
</body>
</html>
`))

// Write implements Writer. All report content is HTML-escaped.
func (w *HTMLWriter) Write(report *model.Report) error {
	counts := report.CountBySeverity()
	data := htmlData{
		Report:  report,
		Started: report.StartedAt.Format("2006-01-02 15:04:05 MST"),
		ByType:  report.CountByType(),
	}
	for _, s := range model.AllSeverities() {
		data.Severities = append(data.Severities, htmlSeverity{
			Name:  s.String(),
			Label: capitalize(s.String()),
			Count: counts[s],
		})
	}
	for i, issue := range report.Issues {
		data.Rows = append(data.Rows, htmlRow{
			Index:    i + 1,
			Type:     issue.Type,
			Location: issue.Location,
			Line:     lineText(issue.Line),
			Severity: issue.Severity.String(),
			Label:    capitalize(issue.Severity.String()),
			Message:  issue.Message,
			Solution: issue.Solution(),
		})
	}

	if err := htmlTemplate.Execute(w.output, data); err != nil {
		return fmt.Errorf("failed to render html report: %w", err)
	}
	return nil
}
