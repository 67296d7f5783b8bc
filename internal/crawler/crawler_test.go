package crawler

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/nao1215/siteaudit/internal/detect"
	"github.com/nao1215/siteaudit/internal/model"
)

// TestParser tests link and asset extraction.
func TestParser(t *testing.T) {
	t.Parallel()

	body := `<html><head>
<link rel="stylesheet" href="/css/site.css">
<link rel="icon" href="/favicon.ico">
<style>h1 { color: red; }</style>
<script src="js/app.js"></script>
<script type="application/ld+json">{"@type": "Organization"}</script>
<script>console.log("hi");</script>
</head><body>
<a href="/about#team">About</a>
<a href="mailto:me@example.com">Mail</a>
<a href="#top">Top</a>
<a href="https://other.example.org/x">Other</a>
<p style="margin: 0">text</p>
</body></html>`

	parser, err := NewParser("https://example.com/blog/post")
	if err != nil {
		t.Fatalf("failed to create parser: %v", err)
	}
	page := &model.Page{URL: "https://example.com/blog/post", Body: body}
	if err := parser.Parse(page); err != nil {
		t.Fatalf("failed to parse: %v", err)
	}

	wantLinks := []string{"https://example.com/about", "https://other.example.org/x"}
	if strings.Join(page.Links, " ") != strings.Join(wantLinks, " ") {
		t.Errorf("expected links %v, got %v", wantLinks, page.Links)
	}

	sheets := page.ExternalStylesheets()
	if len(sheets) != 1 || sheets[0].URL != "https://example.com/css/site.css" {
		t.Errorf("unexpected stylesheets %+v", sheets)
	}
	if styles := page.InlineStyles(); len(styles) != 1 || styles[0].Content != "h1 { color: red; }" {
		t.Errorf("unexpected inline styles %+v", styles)
	}

	scripts := page.ExternalScripts()
	if len(scripts) != 1 || scripts[0].URL != "https://example.com/blog/js/app.js" {
		t.Errorf("unexpected scripts %+v", scripts)
	}
	if inline := page.InlineScripts(); len(inline) != 1 || inline[0].Content != `console.log("hi");` {
		t.Errorf("expected JSON-LD to be skipped, got %+v", inline)
	}

	if len(page.StyleAttributes) != 1 || page.StyleAttributes[0] != "margin: 0" {
		t.Errorf("unexpected style attributes %v", page.StyleAttributes)
	}
}

func TestParserBaseHref(t *testing.T) {
	t.Parallel()

	parser, err := NewParser("https://example.com/a/b")
	if err != nil {
		t.Fatal(err)
	}
	page := &model.Page{Body: `<head><base href="https://cdn.example.com/assets/"></head><body><a href="page.html">x</a></body>`}
	if err := parser.Parse(page); err != nil {
		t.Fatal(err)
	}
	if len(page.Links) != 1 || page.Links[0] != "https://cdn.example.com/assets/page.html" {
		t.Errorf("unexpected links %v", page.Links)
	}
}

// site is a small website with hit counters.
type site struct {
	mu     sync.Mutex
	hits   map[string]int
	agents []string
	routes map[string]string
}

func newSite(routes map[string]string) *site {
	return &site{hits: make(map[string]int), routes: routes}
}

func (s *site) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	s.hits[r.URL.Path]++
	s.agents = append(s.agents, r.UserAgent())
	s.mu.Unlock()

	body, ok := s.routes[r.URL.Path]
	if !ok {
		http.NotFound(w, r)
		return
	}
	if strings.HasSuffix(r.URL.Path, "/") || strings.HasSuffix(r.URL.Path, ".html") {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
	}
	_, _ = w.Write([]byte(body)) //nolint:errcheck
}

func (s *site) count(path string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.hits[path]
}

const indexPage = `<!DOCTYPE html>
<html lang="en">
<head>
<title>Home</title>
<meta name="description" content="home">
<link rel="stylesheet" href="/site.css">
<style>
.hero { color: red; background: blue; margin: 0 auto; padding: 10px 20px; border: 1px solid black; width: 100%; }
</style>
<script src="/app.js"></script>
</head>
<body>
<h1>Home</h1>
<p style="color: red !important">x</p>
<a href="/about.html" aria-label="about">About</a>
</body>
</html>
`

const aboutPage = `<!DOCTYPE html>
<html lang="en">
<head><title>About</title><meta name="description" content="about"></head>
<body><h1>About</h1><script src="/app.js"></script><a href="/" aria-label="home">Home</a></body>
</html>
`

func newTestSite() *site {
	return newSite(map[string]string{
		"/":           indexPage,
		"/about.html": aboutPage,
		"/robots.txt": "User-agent: *\nDisallow: /\n",
		"/site.css":   "h1 { color: black; }\n.never-used { color: red; }\n",
		"/app.js":     "var x = 1;\n\neval(x);\n",
	})
}

func typesOf(issues []model.Issue) map[string][]model.Issue {
	out := make(map[string][]model.Issue)
	for _, issue := range issues {
		out[issue.Type] = append(out[issue.Type], issue)
	}
	return out
}

// TestAudit tests a crawl of one page with its assets.
func TestAudit(t *testing.T) {
	t.Parallel()

	s := newTestSite()
	server := httptest.NewServer(s)
	defer server.Close()

	c := New(server.Client(), detect.NewEngine())
	report, err := c.Audit(context.Background(), server.URL, model.DefaultAnalysisOptions())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if report.PagesCrawled != 1 {
		t.Errorf("expected depth 0 to audit one page, got %d", report.PagesCrawled)
	}
	if report.Mode != "live" {
		t.Errorf("unexpected mode %q", report.Mode)
	}

	byType := typesOf(report.Issues)

	robots := byType["ROBOTS_DISALLOW"]
	if len(robots) != 1 || robots[0].Location != server.URL+"/robots.txt" || robots[0].Line != 2 {
		t.Errorf("unexpected robots issues %+v", robots)
	}

	evals := byType["JS_DANGEROUS_FUNCTION"]
	if len(evals) != 1 || evals[0].Location != server.URL+"/app.js" || evals[0].Line != 3 {
		t.Errorf("unexpected eval issues %+v", evals)
	}

	unused := byType["CSS_UNUSED_SELECTOR"]
	if len(unused) != 1 || unused[0].Message != "Unused selector: .never-used" || unused[0].Line != 2 {
		t.Errorf("unexpected unused selector issues %+v", unused)
	}

	important := byType["CSS_IMPORTANT_OVERUSE"]
	if len(important) != 1 || important[0].Location != server.URL || important[0].Line != 14 {
		t.Errorf("expected the style attribute on page line 14, got %+v", important)
	}

	inline := byType["SEC_INLINE_STYLE"]
	if len(inline) != 1 || inline[0].Line != 7 {
		t.Errorf("unexpected inline style issues %+v", inline)
	}

	insecure := byType["SEC_INSECURE_REQUEST"]
	if len(insecure) != 2 {
		t.Errorf("expected the http stylesheet and script, got %+v", insecure)
	}

	if s.count("/about.html") != 0 {
		t.Error("depth 0 must not follow links")
	}
	s.mu.Lock()
	for _, ua := range s.agents {
		if ua != "Mozilla/5.0 (compatible; siteaudit/1.0)" {
			t.Errorf("unexpected user agent %q", ua)
		}
	}
	s.mu.Unlock()
}

// TestAuditInlineScripts tests that only inline scripts over the size limit
// are reported, at the line of their <script> tag.
func TestAuditInlineScripts(t *testing.T) {
	t.Parallel()

	page := "<html><head><title>T</title></head>\n<body>\n<script>\nvar banner = \"" +
		strings.Repeat("x", 120) + "\";\n</script>\n<script>var s = 1;</script>\n</body></html>\n"
	server := httptest.NewServer(newSite(map[string]string{"/": page}))
	defer server.Close()

	c := New(server.Client(), detect.NewEngine())
	report, err := c.Audit(context.Background(), server.URL, model.DefaultAnalysisOptions())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	scripts := typesOf(report.Issues)["SEC_INLINE_SCRIPT"]
	if len(scripts) != 1 || scripts[0].Line != 3 || scripts[0].Location != server.URL {
		t.Errorf("unexpected SEC_INLINE_SCRIPT issues %+v", scripts)
	}

	opts := model.DefaultAnalysisOptions()
	opts.PerfSec = false
	report, err = c.Audit(context.Background(), server.URL, opts)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := typesOf(report.Issues)["SEC_INLINE_SCRIPT"]; len(got) != 0 {
		t.Errorf("inline script reported with perfsec disabled: %+v", got)
	}
}

func TestAuditFollowsLinks(t *testing.T) {
	t.Parallel()

	s := newTestSite()
	server := httptest.NewServer(s)
	defer server.Close()

	c := New(server.Client(), detect.NewEngine(), WithMaxDepth(2), WithUserAgent("audit-bot"))
	report, err := c.Audit(context.Background(), server.URL, model.DefaultAnalysisOptions())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if report.PagesCrawled != 2 {
		t.Errorf("expected 2 pages, got %d", report.PagesCrawled)
	}
	if got := s.count("/app.js"); got != 1 {
		t.Errorf("expected the shared script to be fetched once, got %d", got)
	}
	if got := s.count("/"); got != 1 {
		t.Errorf("expected the home page to be fetched once, got %d", got)
	}
	if n := len(typesOf(report.Issues)["JS_DANGEROUS_FUNCTION"]); n != 1 {
		t.Errorf("expected the shared script to be analyzed once, got %d", n)
	}
	s.mu.Lock()
	if s.agents[0] != "audit-bot" {
		t.Errorf("unexpected user agent %q", s.agents[0])
	}
	s.mu.Unlock()
}

func TestAuditOptions(t *testing.T) {
	t.Parallel()

	s := newTestSite()
	server := httptest.NewServer(s)
	defer server.Close()

	opts := model.DefaultAnalysisOptions()
	opts.IgnoreRobots = true
	opts.JS = false
	opts.PerfSec = false
	opts.DisabledTypes = []string{"CSS_UNUSED_SELECTOR"}

	report, err := New(server.Client(), detect.NewEngine()).Audit(context.Background(), server.URL+"/", opts)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if s.count("/robots.txt") != 0 {
		t.Error("robots.txt must not be fetched when ignored")
	}
	if s.count("/app.js") != 0 {
		t.Error("scripts must not be fetched when JS is off")
	}

	byType := typesOf(report.Issues)
	for _, typ := range []string{"ROBOTS_DISALLOW", "JS_DANGEROUS_FUNCTION", "CSS_UNUSED_SELECTOR", "SEC_INLINE_STYLE", "SEC_INSECURE_REQUEST"} {
		if len(byType[typ]) != 0 {
			t.Errorf("unexpected %s issues %+v", typ, byType[typ])
		}
	}
}

func TestAuditNetworkErrors(t *testing.T) {
	t.Parallel()

	t.Run("unreachable root", func(t *testing.T) {
		t.Parallel()

		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusInternalServerError)
		}))
		defer server.Close()

		report, err := New(server.Client(), detect.NewEngine()).Audit(context.Background(), server.URL, model.DefaultAnalysisOptions())
		if !errors.Is(err, ErrRootUnreachable) || !errors.Is(err, ErrHTTPStatus) {
			t.Fatalf("expected ErrRootUnreachable wrapping ErrHTTPStatus, got %v", err)
		}
		if !report.Failed() {
			t.Error("expected the report to record the error")
		}

		network := typesOf(report.Issues)["NETWORK_ERROR"]
		if len(network) != 2 {
			t.Fatalf("expected robots.txt and page errors, got %+v", network)
		}
		if network[1].Location != server.URL || !strings.Contains(network[1].Message, "500") {
			t.Errorf("unexpected page error %+v", network[1])
		}
	})

	t.Run("missing asset", func(t *testing.T) {
		t.Parallel()

		s := newSite(map[string]string{
			"/": `<html><head><title>t</title><script src="/missing.js"></script></head><body><h1>x</h1></body></html>`,
		})
		server := httptest.NewServer(s)
		defer server.Close()

		report, err := New(server.Client(), detect.NewEngine()).Audit(context.Background(), server.URL, model.DefaultAnalysisOptions())
		if err != nil {
			t.Fatalf("an asset failure must not abort the run: %v", err)
		}
		network := typesOf(report.Issues)["NETWORK_ERROR"]
		var found bool
		for _, issue := range network {
			if issue.Location == server.URL+"/missing.js" && strings.Contains(issue.Message, "404") {
				found = true
			}
		}
		if !found {
			t.Errorf("expected a NETWORK_ERROR for the script, got %+v", network)
		}
	})

	t.Run("missing asset shared by pages is reported once", func(t *testing.T) {
		t.Parallel()

		s := newSite(map[string]string{
			"/":       `<html><head><title>t</title><script src="/gone.js"></script></head><body><h1>x</h1><a href="/b.html">b</a></body></html>`,
			"/b.html": `<html><head><title>b</title><script src="/gone.js"></script></head><body><h1>b</h1></body></html>`,
		})
		server := httptest.NewServer(s)
		defer server.Close()

		opts := model.DefaultAnalysisOptions()
		opts.IgnoreRobots = true
		report, err := New(server.Client(), detect.NewEngine(), WithMaxDepth(1)).Audit(context.Background(), server.URL, opts)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if report.PagesCrawled != 2 {
			t.Fatalf("expected 2 pages, got %d", report.PagesCrawled)
		}
		if got := s.count("/gone.js"); got != 1 {
			t.Errorf("expected the script to be requested once, got %d", got)
		}
		var n int
		for _, issue := range typesOf(report.Issues)["NETWORK_ERROR"] {
			if issue.Location == server.URL+"/gone.js" {
				n++
			}
		}
		if n != 1 {
			t.Errorf("expected one NETWORK_ERROR for the script, got %d", n)
		}
	})

	t.Run("invalid target", func(t *testing.T) {
		t.Parallel()

		_, err := New(http.DefaultClient, detect.NewEngine()).Audit(context.Background(), "ftp://example.com", model.DefaultAnalysisOptions())
		if !errors.Is(err, ErrInvalidTarget) {
			t.Errorf("expected ErrInvalidTarget, got %v", err)
		}
	})
}

func TestAuditLargeAsset(t *testing.T) {
	t.Parallel()

	s := newSite(map[string]string{
		"/":        `<html><head><title>t</title><link rel="stylesheet" href="/big.css"></head><body><h1>x</h1></body></html>`,
		"/big.css": strings.Repeat("h1 { color: red; }\n", 6000),
	})
	server := httptest.NewServer(s)
	defer server.Close()

	opts := model.DefaultAnalysisOptions()
	opts.IgnoreRobots = true
	report, err := New(server.Client(), detect.NewEngine()).Audit(context.Background(), server.URL, opts)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	large := typesOf(report.Issues)["PERF_LARGE_FILE"]
	if len(large) != 1 || large[0].Message != "File size > 100KB (114000 bytes)" {
		t.Errorf("unexpected large file issues %+v", large)
	}
}

func TestParseTarget(t *testing.T) {
	t.Parallel()

	onion := "pg6mmjiyjmcrsslvykfwnntlaru7p5svn6y2ymmju6nubxndf4pscryd.onion"
	testCases := []struct {
		target  string
		want    string
		wantErr bool
	}{
		{"https://example.com/docs", "https://example.com/docs", false},
		{"example.com", "https://example.com", false},
		{"example.com:8080/a", "https://example.com:8080/a", false},
		{onion, "http://" + onion, false},
		{"ftp://example.com", "", true},
		{"https://", "", true},
	}
	for _, tc := range testCases {
		u, err := parseTarget(tc.target)
		if (err != nil) != tc.wantErr {
			t.Errorf("parseTarget(%q) error = %v", tc.target, err)
			continue
		}
		if err == nil && u.String() != tc.want {
			t.Errorf("parseTarget(%q) = %q, want %q", tc.target, u.String(), tc.want)
		}
	}
}

func TestMatchPattern(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		pattern string
		path    string
		want    bool
	}{
		{"/admin/*", "/admin", true},
		{"/admin/*", "/admin/users/1", true},
		{"/admin/*", "/administrator", false},
		{"*.pdf", "/docs/manual.pdf", true},
		{"/api/v?", "/api/v2", true},
		{"/api/v?", "/api/v10", false},
	}
	for _, tc := range testCases {
		if got := matchPattern(tc.pattern, tc.path); got != tc.want {
			t.Errorf("matchPattern(%q, %q) = %v, want %v", tc.pattern, tc.path, got, tc.want)
		}
	}
}

func TestShouldCrawl(t *testing.T) {
	t.Parallel()

	c := New(http.DefaultClient, detect.NewEngine(),
		WithIgnorePatterns([]string{"/private/*"}),
		WithFollowPatterns([]string{"/blog/*", "/private/*"}),
	)
	testCases := []struct {
		link string
		want bool
	}{
		{"https://example.com/blog/post", true},
		{"https://example.com/private/blog", false},
		{"https://example.com/shop", false},
	}
	for _, tc := range testCases {
		if got := c.shouldCrawl(tc.link); got != tc.want {
			t.Errorf("shouldCrawl(%q) = %v, want %v", tc.link, got, tc.want)
		}
	}
}

func TestNormalizeURL(t *testing.T) {
	t.Parallel()

	if normalizeURL("HTTPS://Example.COM#top") != normalizeURL("https://example.com/") {
		t.Error("expected equivalent URLs to normalize to the same key")
	}
}
