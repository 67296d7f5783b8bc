// Package crawler audits a running website.
//
// The Crawler fetches the target page, then follows same-host links
// breadth first up to a depth and page limit. Every fetched page is
// analyzed as HTML in live mode. Its external stylesheets and scripts are
// fetched once per run and analyzed at their URL, and its inline <style>
// and <script> bodies and style attributes are analyzed with the page as
// the enclosing document so issue lines point into the page.
//
// # Network failures
//
// Failed fetches of robots.txt, linked pages or assets become NETWORK_ERROR
// issues. Only a failure of the target page itself aborts the run, with
// ErrRootUnreachable.
//
// # Usage
//
//	c := crawler.New(client, engine, crawler.WithMaxDepth(1))
//	report, err := c.Audit(ctx, "https://example.com", model.DefaultAnalysisOptions())
package crawler
