// Package report renders audit reports.
//
// Writers exist for plain text, JSON, CSV, Markdown and HTML. Every writer
// keeps the issue order of the report. ParseIssues reads the JSON form back,
// and also accepts the bare [type, location, message] triples some tools emit.
package report
