package crawler

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"path"
	"strings"
	"time"

	"github.com/nao1215/siteaudit/internal/detect"
	"github.com/nao1215/siteaudit/internal/locate"
	"github.com/nao1215/siteaudit/internal/model"
	"github.com/nao1215/siteaudit/internal/transport"
)

const (
	// DefaultFetchTimeout bounds every GET.
	DefaultFetchTimeout = 10 * time.Second

	// DefaultMaxPages caps the pages fetched in one run.
	DefaultMaxPages = 50

	// largeAssetSize is the PERF_LARGE_FILE threshold.
	largeAssetSize = 100 * 1024

	// largeInlineSize is the SEC_INLINE_SCRIPT and SEC_INLINE_STYLE threshold.
	largeInlineSize = 100
)

// Analyzer runs detectors over one unit. *detect.Engine implements it.
type Analyzer interface {
	Analyze(unit model.ContentUnit, opts model.AnalysisOptions) []model.Issue
}

// Crawler feeds the pages and assets of a website to an Analyzer.
type Crawler struct {
	client *http.Client
	engine Analyzer
	css    *detect.CSSDetector
	logger *slog.Logger

	// maxDepth is the link distance from the target; 0 audits the target only.
	maxDepth     int
	maxPages     int
	delay        time.Duration
	fetchTimeout time.Duration
	userAgent    string
	maxBodySize  int64

	ignorePatterns []string
	followPatterns []string
}

// Option configures a Crawler.
type Option func(*Crawler)

// WithMaxDepth sets how many links away from the target pages are followed.
func WithMaxDepth(depth int) Option {
	return func(c *Crawler) {
		c.maxDepth = depth
	}
}

// WithMaxPages sets the maximum number of pages to audit.
func WithMaxPages(maxPages int) Option {
	return func(c *Crawler) {
		c.maxPages = maxPages
	}
}

// WithDelay sets the pause between page fetches.
func WithDelay(d time.Duration) Option {
	return func(c *Crawler) {
		c.delay = d
	}
}

// WithFetchTimeout overrides DefaultFetchTimeout.
func WithFetchTimeout(d time.Duration) Option {
	return func(c *Crawler) {
		c.fetchTimeout = d
	}
}

// WithUserAgent overrides transport.DefaultUserAgent.
func WithUserAgent(ua string) Option {
	return func(c *Crawler) {
		c.userAgent = ua
	}
}

// WithMaxBodySize limits the bytes read from one response.
func WithMaxBodySize(size int64) Option {
	return func(c *Crawler) {
		c.maxBodySize = size
	}
}

// WithIgnorePatterns sets URL path patterns that are never followed,
// e.g. "/admin/*" or "*.pdf".
func WithIgnorePatterns(patterns []string) Option {
	return func(c *Crawler) {
		c.ignorePatterns = patterns
	}
}

// WithFollowPatterns restricts followed links to matching URL paths.
// Empty means every path that is not ignored.
func WithFollowPatterns(patterns []string) Option {
	return func(c *Crawler) {
		c.followPatterns = patterns
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Crawler) {
		c.logger = logger
	}
}

// New creates a Crawler. The client decides the route (direct or Tor).
func New(client *http.Client, engine Analyzer, opts ...Option) *Crawler {
	c := &Crawler{
		client:       client,
		engine:       engine,
		css:          detect.NewCSSDetector(),
		logger:       slog.Default(),
		maxPages:     DefaultMaxPages,
		fetchTimeout: DefaultFetchTimeout,
		userAgent:    transport.DefaultUserAgent,
		maxBodySize:  model.MaxPageSize,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// run is the state of one Audit call.
//
// visited holds normalized page URLs and assets holds external stylesheet
// and script URLs. An asset shared by many pages is fetched and analyzed on
// the first page that references it and skipped afterwards, so its issues
// appear once in the report with the asset URL as location. A failed fetch
// is also recorded, which keeps a dead CDN from producing one NETWORK_ERROR
// per page. PerfSec size checks run on that first fetch only.
type run struct {
	report  *model.Report
	opts    model.AnalysisOptions
	visited map[string]bool
	assets  map[string]bool
}

type queueItem struct {
	url   string
	depth int
}

// Audit crawls target and returns the report of every page and asset seen.
//
// A non-nil error means the run was aborted: the target is invalid, the
// target page is unreachable, or ctx was cancelled. The report is returned
// in every case and carries the error text.
func (c *Crawler) Audit(ctx context.Context, target string, opts model.AnalysisOptions) (*model.Report, error) {
	report := model.NewReport(target, model.ModeLive)
	defer report.Finish()

	r := &run{
		report:  report,
		opts:    opts,
		visited: make(map[string]bool),
		assets:  make(map[string]bool),
	}

	start, err := parseTarget(target)
	if err != nil {
		report.Error = err.Error()
		return report, err
	}

	if !opts.IgnoreRobots {
		c.checkRobots(ctx, r, start)
	}

	err = c.crawl(ctx, r, start)
	report.Filter(opts.DisabledTypes)
	if err != nil {
		report.Error = err.Error()
		return report, err
	}
	c.logger.Debug("crawl finished", "target", target, "pages", report.PagesCrawled, "issues", len(report.Issues))
	return report, nil
}

func (c *Crawler) crawl(ctx context.Context, r *run, start *url.URL) error {
	queue := []queueItem{{url: start.String(), depth: 0}}

	for len(queue) > 0 && r.report.PagesCrawled < c.maxPages {
		if err := ctx.Err(); err != nil {
			return err
		}

		item := queue[0]
		queue = queue[1:]

		key := normalizeURL(item.url)
		if r.visited[key] {
			continue
		}
		r.visited[key] = true

		page, err := c.fetchPage(ctx, item.url)
		if err != nil {
			r.report.Add(model.NewIssue("NETWORK_ERROR", item.url, err.Error()))
			if item.depth == 0 {
				return fmt.Errorf("%w: %w", ErrRootUnreachable, err)
			}
			continue
		}
		if !page.IsHTML() {
			c.logger.Debug("skipping non-HTML page", "url", page.URL, "content_type", page.ContentType)
			continue
		}

		r.report.PagesCrawled++
		c.auditPage(ctx, r, page)

		if item.depth < c.maxDepth {
			for _, link := range page.Links {
				if !r.visited[normalizeURL(link)] && sameHost(start, link) && c.shouldCrawl(link) {
					queue = append(queue, queueItem{url: link, depth: item.depth + 1})
				}
			}
		}

		if c.delay > 0 && len(queue) > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(c.delay):
			}
		}
	}
	return nil
}

// checkRobots reports ROBOTS_DISALLOW when robots.txt blocks every crawler.
func (c *Crawler) checkRobots(ctx context.Context, r *run, start *url.URL) {
	robotsURL := baseURL(start) + "/robots.txt"
	body, _, err := c.fetch(ctx, robotsURL)
	if err != nil {
		r.report.Add(model.NewIssue("NETWORK_ERROR", robotsURL, err.Error()))
		return
	}
	if strings.Contains(body, "User-agent: *") && strings.Contains(body, "Disallow: /") {
		r.report.Add(model.NewIssue("ROBOTS_DISALLOW", robotsURL, "Blocked by robots.txt",
			model.WithLine(locate.Line(body, "Disallow: /"))))
	}
}

// auditPage analyzes the page and everything it embeds, in document order:
// the page, stylesheets, scripts, then the perf/sec checks of its inline bodies.
func (c *Crawler) auditPage(ctx context.Context, r *run, page *model.Page) {
	u, err := url.Parse(page.URL)
	if err != nil {
		return
	}
	opts := r.opts.Live(baseURL(u))

	c.analyze(r, model.ContentUnit{Content: page.Body, Location: page.URL, Kind: model.KindHTML}, opts)

	if opts.CSS {
		for _, sheet := range page.ExternalStylesheets() {
			content, ok := c.fetchAsset(ctx, r, sheet.URL)
			if !ok {
				continue
			}
			unit := model.ContentUnit{Content: content, Location: sheet.URL, Kind: model.KindCSS}
			c.analyze(r, unit, opts)
			r.report.Add(c.css.UnusedSelectors(unit, page.Body)...)
		}
		for _, style := range page.InlineStyles() {
			c.analyze(r, c.embedded(page, style.Content, model.KindCSS), opts)
		}
		for _, value := range page.StyleAttributes {
			c.analyze(r, c.embedded(page, value, model.KindCSS), opts)
		}
	}

	if opts.JS {
		for _, script := range page.ExternalScripts() {
			content, ok := c.fetchAsset(ctx, r, script.URL)
			if !ok {
				continue
			}
			c.analyze(r, model.ContentUnit{Content: content, Location: script.URL, Kind: scriptKind(script.URL)}, opts)
		}
		for _, script := range page.InlineScripts() {
			c.analyze(r, c.embedded(page, script.Content, model.KindJS), opts)
		}
	}

	if opts.PerfSec {
		c.checkInlineSizes(r, page)
	}
}

func (c *Crawler) analyze(r *run, unit model.ContentUnit, opts model.AnalysisOptions) {
	r.report.UnitsScanned++
	r.report.Add(c.engine.Analyze(unit, opts)...)
}

func (c *Crawler) embedded(page *model.Page, content string, kind model.Kind) model.ContentUnit {
	return model.ContentUnit{Content: content, Location: page.URL, Kind: kind, Raw: page.Body}
}

// fetchAsset returns the body of an external stylesheet or script the first
// time it is requested in a run. Later requests, and failed fetches, return
// false so each asset is analyzed once.
func (c *Crawler) fetchAsset(ctx context.Context, r *run, assetURL string) (string, bool) {
	if r.assets[assetURL] {
		return "", false
	}
	r.assets[assetURL] = true

	content, _, err := c.fetch(ctx, assetURL)
	if err != nil {
		r.report.Add(model.NewIssue("NETWORK_ERROR", assetURL, err.Error()))
		return "", false
	}

	if r.opts.PerfSec {
		if len(content) > largeAssetSize {
			r.report.Add(model.NewIssue("PERF_LARGE_FILE", assetURL,
				fmt.Sprintf("File size > 100KB (%d bytes)", len(content))))
		}
		if strings.HasPrefix(assetURL, "http://") {
			r.report.Add(model.NewIssue("SEC_INSECURE_REQUEST", assetURL, "Insecure HTTP resource"))
		}
	}
	return content, true
}

func (c *Crawler) checkInlineSizes(r *run, page *model.Page) {
	for _, script := range page.InlineScripts() {
		if len(script.Content) > largeInlineSize {
			r.report.Add(model.NewIssue("SEC_INLINE_SCRIPT", page.URL, "Large inline script detected",
				model.WithLine(locate.Base(page.Body, script.Content))))
		}
	}
	for _, style := range page.InlineStyles() {
		if len(style.Content) > largeInlineSize {
			r.report.Add(model.NewIssue("SEC_INLINE_STYLE", page.URL, "Large inline style detected",
				model.WithLine(locate.Base(page.Body, style.Content))))
		}
	}
}

// fetchPage GETs a page and extracts its links and assets.
func (c *Crawler) fetchPage(ctx context.Context, pageURL string) (*model.Page, error) {
	body, resp, err := c.fetch(ctx, pageURL)
	if err != nil {
		return nil, err
	}

	page := &model.Page{
		URL:         resp.Request.URL.String(),
		StatusCode:  resp.StatusCode,
		ContentType: mediaType(resp.Header.Get("Content-Type")),
		Body:        body,
	}
	if !page.IsHTML() {
		return page, nil
	}

	parser, err := NewParser(page.URL)
	if err != nil {
		return nil, err
	}
	if err := parser.Parse(page); err != nil {
		c.logger.Debug("failed to parse page", "url", page.URL, "error", err)
	}
	return page, nil
}

// fetch GETs rawURL with the fetch timeout. A status of 400 or more is an error.
func (c *Crawler) fetch(ctx context.Context, rawURL string) (string, *http.Response, error) {
	ctx, cancel := context.WithTimeout(ctx, c.fetchTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return "", nil, err
	}
	req.Header.Set("User-Agent", c.userAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml,*/*;q=0.8")

	resp, err := c.client.Do(req)
	if err != nil {
		return "", nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		return "", resp, fmt.Errorf("%w: %d %s for url: %s", ErrHTTPStatus,
			resp.StatusCode, http.StatusText(resp.StatusCode), rawURL)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, c.maxBodySize))
	if err != nil {
		return "", resp, fmt.Errorf("failed to read %s: %w", rawURL, err)
	}
	return string(body), resp, nil
}

// parseTarget accepts "example.com" as well as full http(s) URLs.
// Onion hosts default to http, everything else to https.
func parseTarget(target string) (*url.URL, error) {
	raw := strings.TrimSpace(target)
	if !strings.Contains(raw, "://") {
		scheme := "https://"
		hostport, _, _ := strings.Cut(raw, "/")
		host, _, _ := strings.Cut(hostport, ":")
		if transport.IsOnion(host) {
			scheme = "http://"
		}
		raw = scheme + raw
	}
	u, err := url.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("%w %q: %w", ErrInvalidTarget, target, err)
	}
	if (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return nil, fmt.Errorf("%w %q", ErrInvalidTarget, target)
	}
	return u, nil
}

// baseURL returns scheme://host of u.
func baseURL(u *url.URL) string {
	return u.Scheme + "://" + u.Host
}

func mediaType(contentType string) string {
	mt, _, _ := strings.Cut(contentType, ";")
	return strings.ToLower(strings.TrimSpace(mt))
}

// scriptKind keeps TypeScript and JSX served as-is out of the plain JS rules.
func scriptKind(assetURL string) model.Kind {
	if u, err := url.Parse(assetURL); err == nil {
		if kind := model.KindForPath(u.Path); kind.IsScript() {
			return kind
		}
	}
	return model.KindJS
}

// normalizeURL normalizes a URL for deduplication: the fragment is dropped,
// scheme and host are lowercased, and an empty path equals "/".
func normalizeURL(pageURL string) string {
	u, err := url.Parse(pageURL)
	if err != nil {
		return pageURL
	}
	u.Fragment = ""
	u.Scheme = strings.ToLower(u.Scheme)
	u.Host = strings.ToLower(u.Host)
	if u.Path == "" {
		u.Path = "/"
	}
	return u.String()
}

func sameHost(start *url.URL, link string) bool {
	u, err := url.Parse(link)
	if err != nil {
		return false
	}
	return strings.EqualFold(u.Host, start.Host)
}

// shouldCrawl applies ignore patterns first, then follow patterns.
func (c *Crawler) shouldCrawl(link string) bool {
	u, err := url.Parse(link)
	if err != nil {
		return false
	}
	p := u.Path
	if p == "" {
		p = "/"
	}

	for _, pattern := range c.ignorePatterns {
		if matchPattern(pattern, p) {
			return false
		}
	}
	if len(c.followPatterns) == 0 {
		return true
	}
	for _, pattern := range c.followPatterns {
		if matchPattern(pattern, p) {
			return true
		}
	}
	return false
}

// matchPattern matches a URL path against a glob. "/admin/*" also matches
// deeper paths and "/admin" itself; a pattern without a slash is tried
// against the last path element.
func matchPattern(pattern, p string) bool {
	if prefix, ok := strings.CutSuffix(pattern, "/*"); ok {
		if p == prefix || strings.HasPrefix(p, prefix+"/") {
			return true
		}
	}
	if ok, err := path.Match(pattern, p); err == nil && ok {
		return true
	}
	if !strings.Contains(pattern, "/") {
		if ok, err := path.Match(pattern, path.Base(p)); err == nil && ok {
			return true
		}
	}
	return false
}
