package detect

import (
	"fmt"
	"io/fs"
	"net/url"
	"path"
	"strconv"
	"strings"
	"unicode/utf8"

	"golang.org/x/net/html"

	"github.com/nao1215/siteaudit/internal/heuristic"
	"github.com/nao1215/siteaudit/internal/locate"
	"github.com/nao1215/siteaudit/internal/model"
)

// deprecatedTags are presentational elements removed from HTML5.
var deprecatedTags = map[string]bool{
	"center":  true,
	"font":    true,
	"marquee": true,
}

// maxContextLength bounds element snippets attached to issues.
const maxContextLength = 200

// HTMLDetector checks markup for SEO, accessibility, performance and link problems.
//
// Two views of the document are used. Presence checks (title, canonical,
// meta tags, label targets) read the parsed DOM, which sees the document
// the way a browser does. Per-element checks read the tokenizer's start
// tags instead: the parser repairs misnested markup by cloning formatting
// elements such as <a> and <font>, and a clone has no source of its own.
// One start tag in the source is one element, reported at its own line.
type HTMLDetector struct{}

// NewHTMLDetector creates an HTMLDetector.
func NewHTMLDetector() *HTMLDetector {
	return &HTMLDetector{}
}

// Name returns "html".
func (d *HTMLDetector) Name() string {
	return "html"
}

// Kinds returns the html kind.
func (d *HTMLDetector) Kinds() []model.Kind {
	return []model.Kind{model.KindHTML}
}

// Detect runs every HTML check. Checks are independent; one failing check
// never hides another.
func (d *HTMLDetector) Detect(in *Input) []model.Issue {
	c := newCollector(in.Unit)
	content := in.Unit.Content

	doc, err := html.Parse(strings.NewReader(content))
	if err != nil {
		c.add("HTML_PARSE_ERROR", fmt.Sprintf("HTML parsing error: %v", err))
		return c.issues
	}
	page := scanPage(doc)
	page.scanTags(content)

	headLine := locate.LineFold(content, "<head")
	d.checkSEO(c, page, headLine)
	d.checkImages(c, in, page)
	d.checkInlineBodies(c, page)
	d.checkDeprecated(c, page)
	d.checkAccessibility(c, page)
	d.checkDocumentBasics(c, page, headLine, locate.LineFold(content, "<body"))
	if in.Options.JS {
		d.checkEventHandlers(c, page)
	}
	d.checkLinks(c, in, page)

	return c.issues
}

func (d *HTMLDetector) checkSEO(c *collector, page *pageScan, headLine int) {
	missing := []struct {
		present   bool
		issueType string
		message   string
	}{
		{page.canonical, "SEO_MISSING_CANONICAL", "Missing canonical tag"},
		{page.openGraph, "SEO_MISSING_OG", "Missing Open Graph meta"},
		{page.twitter, "SEO_MISSING_TWITTER", "Missing Twitter meta"},
		{page.robots, "SEO_MISSING_ROBOTS", "Missing robots meta"},
		{page.sitemap, "SEO_MISSING_SITEMAP", "Missing sitemap link"},
		{page.structured, "SEO_MISSING_STRUCTURED", "Missing JSON-LD structured data"},
		{page.microdata, "SEO_MISSING_MICRODATA", "Missing microdata"},
	}
	for _, m := range missing {
		if !m.present {
			c.add(m.issueType, m.message, c.atLine(headLine))
		}
	}
}

func (d *HTMLDetector) checkImages(c *collector, in *Input, page *pageScan) {
	for _, img := range page.images {
		src := img.attr("src")
		var local *localImage
		if src != "" {
			local = loadImage(imageRef(in.Unit.Location, src), in.FS)
		}

		if local != nil && local.large {
			c.add("HTML_LARGE_IMAGE", "Large image: "+local.describe(src), img.options(c)...)
		}
		if !strings.EqualFold(img.attr("loading"), "lazy") {
			msg := "Image missing loading=lazy"
			if src != "" {
				msg += ": " + shorten(src)
			}
			c.add("HTML_IMG_NO_LAZY", msg, img.options(c)...)
		}
		if local != nil && local.inspected && local.info.HasEXIF() {
			names := make([]string, 0, len(local.info.EXIF))
			for _, tag := range local.info.EXIF {
				names = append(names, tag.Name)
			}
			c.add("HTML_IMAGE_EXIF",
				fmt.Sprintf("Image carries EXIF metadata (%s): %s", strings.Join(names, ", "), shorten(src)),
				img.options(c)...)
		}
	}
}

// localImage is an image whose bytes are available: a data URI, or a file
// in the engine's filesystem. It is read and inspected once per <img>.
type localImage struct {
	data      []byte
	large     bool
	info      heuristic.ImageInfo
	inspected bool
}

// loadImage returns nil when ref is neither a data URI nor a readable
// local file.
func loadImage(ref string, fsys fs.FS) *localImage {
	data, ok := heuristic.ImageBytes(ref, fsys)
	if !ok {
		return nil
	}
	img := &localImage{data: data, large: heuristic.IsLargeImage(ref, fsys)}
	if info, err := heuristic.InspectImage(data); err == nil {
		img.info, img.inspected = info, true
	}
	return img
}

func (i *localImage) describe(src string) string {
	if !i.inspected || i.info.Format == "" {
		return fmt.Sprintf("%s (%d KB)", shorten(src), len(i.data)/1024)
	}
	return fmt.Sprintf("%s (%dx%d %s, %d KB)", shorten(src), i.info.Width, i.info.Height, i.info.Format, len(i.data)/1024)
}

// imageRef turns an img src into a reference for the heuristic package.
// Relative paths are resolved against the directory of the page.
func imageRef(location, src string) string {
	if strings.HasPrefix(src, "data:") || strings.HasPrefix(src, "/") ||
		strings.HasPrefix(src, "//") || strings.Contains(src, "://") {
		return src
	}
	dir := path.Dir(strings.ReplaceAll(location, `\`, "/"))
	if dir == "." {
		return src
	}
	return path.Join(dir, src)
}

func (d *HTMLDetector) checkInlineBodies(c *collector, page *pageScan) {
	for _, script := range page.inlineScripts {
		if body := script.text; body != "" && !heuristic.IsMinified(body) {
			c.add("HTML_UNMINIFIED_INLINE_SCRIPT", "Unminified inline script", script.options(c)...)
		}
	}
	for _, style := range page.inlineStyles {
		if body := style.text; body != "" && !heuristic.IsMinified(body) {
			c.add("HTML_UNMINIFIED_INLINE_STYLE", "Unminified inline style", style.options(c)...)
		}
	}
}

func (d *HTMLDetector) checkDeprecated(c *collector, page *pageScan) {
	for _, el := range page.deprecated {
		c.add("HTML_DEPRECATED_TAG", fmt.Sprintf("Deprecated HTML tag <%s> used", el.name), el.options(c)...)
	}
}

func (d *HTMLDetector) checkAccessibility(c *collector, page *pageScan) {
	for _, img := range page.images {
		if img.attr("alt") == "" {
			c.add("HTML_MISSING_ALT", "Image missing alt text", img.options(c)...)
		}
	}

	for _, el := range page.interactive {
		if !el.hasAttrPrefix("aria-") {
			c.add("HTML_MISSING_ARIA", fmt.Sprintf("<%s> missing aria-* attribute", el.name), el.options(c)...)
		}
	}

	for _, input := range page.inputs {
		id := input.attr("id")
		if id == "" || !page.labelFor[id] {
			c.add("HTML_INPUT_NO_LABEL", "Input missing associated <label>", input.options(c)...)
		}
	}

	prev := 0
	for _, h := range page.headings {
		level := headingLevel(h.name)
		if prev != 0 && level > prev+1 {
			c.add("HTML_HEADING_ORDER", fmt.Sprintf("Skipped heading level: h%d -> h%d", prev, level), h.options(c)...)
		}
		prev = level
	}
}

func (d *HTMLDetector) checkDocumentBasics(c *collector, page *pageScan, headLine, bodyLine int) {
	if !page.title {
		c.add("SEO_MISSING_TITLE", "Missing <title> tag", c.atLine(headLine))
	}
	if !page.description {
		c.add("SEO_MISSING_DESCRIPTION", "Missing meta description", c.atLine(headLine))
	}

	switch len(page.h1) {
	case 0:
		c.add("SEO_MISSING_H1", "No <h1> tag found", c.atLine(bodyLine))
	case 1:
	default:
		c.add("SEO_MULTIPLE_H1", fmt.Sprintf("Multiple <h1> tags found (%d)", len(page.h1)), page.h1[1].options(c)...)
	}
}

func (d *HTMLDetector) checkEventHandlers(c *collector, page *pageScan) {
	for _, el := range page.handlers {
		for _, attr := range el.attrs {
			if isEventHandler(attr.Key) {
				c.add("JS_INLINE_EVENT_HANDLER", "Inline event handler: "+attr.Key, el.options(c)...)
			}
		}
	}
}

func (d *HTMLDetector) checkLinks(c *collector, in *Input, page *pageScan) {
	if in.Links == nil {
		return
	}
	for _, a := range page.anchors {
		target, ok := linkTarget(a.attr("href"), in.Options)
		if !ok {
			continue
		}
		if msg, broken := checkTarget(in.Links, target); broken {
			c.addAt("HTML_BROKEN_LINK", target, "Broken link: "+msg, a.lineOption(c))
		}
	}
	for _, img := range page.images {
		target, ok := linkTarget(img.attr("src"), in.Options)
		if !ok {
			continue
		}
		if msg, broken := checkTarget(in.Links, target); broken {
			c.addAt("HTML_BROKEN_IMG", target, "Broken image: "+msg, img.lineOption(c))
		}
	}
}

// linkTarget returns the URL to check for a reference. Absolute http(s)
// URLs are always checked; relative ones only in live mode, resolved
// against the base URL.
func linkTarget(ref string, opts model.AnalysisOptions) (string, bool) {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return "", false
	}
	u, err := url.Parse(ref)
	if err != nil {
		return "", false
	}
	if u.Host == "" {
		if opts.Mode != model.ModeLive || opts.BaseURL == "" || u.Scheme != "" {
			return "", false
		}
		base, err := url.Parse(opts.BaseURL)
		if err != nil {
			return "", false
		}
		u = base.ResolveReference(u)
	}
	if u.Scheme == "" {
		u.Scheme = "https"
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return "", false
	}
	return u.String(), true
}

// checkTarget reports whether target is broken and why.
func checkTarget(links LinkChecker, target string) (string, bool) {
	status, err := links.Check(target)
	if err != nil {
		return err.Error(), true
	}
	if status >= 400 {
		return strconv.Itoa(status), true
	}
	return "", false
}

// element is one start tag of the source.
type element struct {
	name  string
	attrs []html.Attribute
	line  int
	raw   string

	// text is the body of a <script> or <style> element.
	text string
}

func (e element) options(c *collector) []model.IssueOption {
	return []model.IssueOption{e.lineOption(c), model.WithContext(e.raw)}
}

func (e element) lineOption(c *collector) model.IssueOption {
	return c.atLine(e.line)
}

func (e element) attr(key string) string {
	return attrValue(e.attrs, key)
}

func (e element) hasAttr(key string) bool {
	return hasAttrKey(e.attrs, key)
}

func (e element) hasAttrPrefix(prefix string) bool {
	for _, attr := range e.attrs {
		if strings.HasPrefix(strings.ToLower(attr.Key), prefix) {
			return true
		}
	}
	return false
}

func (e element) hasEventHandler() bool {
	for _, attr := range e.attrs {
		if isEventHandler(attr.Key) {
			return true
		}
	}
	return false
}

// pageScan is everything the HTML checks need.
type pageScan struct {
	canonical   bool
	openGraph   bool
	twitter     bool
	robots      bool
	sitemap     bool
	structured  bool
	microdata   bool
	title       bool
	description bool
	labelFor    map[string]bool

	h1            []element
	headings      []element
	images        []element
	inlineScripts []element
	inlineStyles  []element
	deprecated    []element
	interactive   []element
	inputs        []element
	anchors       []element
	handlers      []element
}

// scanPage collects the presence flags from the DOM.
func scanPage(doc *html.Node) *pageScan {
	page := &pageScan{labelFor: make(map[string]bool)}

	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode {
			page.present(strings.ToLower(n.Data), n)
		}
		for child := n.FirstChild; child != nil; child = child.NextSibling {
			walk(child)
		}
	}
	walk(doc)

	return page
}

func (p *pageScan) present(name string, n *html.Node) {
	if hasAttr(n, "itemscope") {
		p.microdata = true
	}

	switch name {
	case "link":
		rels := strings.Fields(strings.ToLower(getAttr(n, "rel")))
		for _, rel := range rels {
			switch rel {
			case "canonical":
				p.canonical = true
			case "sitemap":
				p.sitemap = true
			}
		}
	case "meta":
		switch {
		case strings.EqualFold(getAttr(n, "property"), "og:title"):
			p.openGraph = true
		case strings.EqualFold(getAttr(n, "name"), "twitter:card"):
			p.twitter = true
		case strings.EqualFold(getAttr(n, "name"), "robots"):
			p.robots = true
		case strings.EqualFold(getAttr(n, "name"), "description"):
			p.description = true
		}
	case "script":
		if strings.EqualFold(getAttr(n, "type"), "application/ld+json") {
			p.structured = true
		}
	case "title":
		p.title = true
	case "label":
		if id := getAttr(n, "for"); id != "" {
			p.labelFor[id] = true
		}
	}
}

// scanTags tokenizes src and sorts every start tag into the element lists,
// in source order.
func (p *pageScan) scanTags(src string) {
	z := html.NewTokenizer(strings.NewReader(src))
	line := 1
	for {
		tt := z.Next()
		if tt == html.ErrorToken {
			return
		}
		raw := string(z.Raw())
		if tt != html.StartTagToken && tt != html.SelfClosingTagToken {
			line += strings.Count(raw, "\n")
			continue
		}

		name, more := z.TagName()
		el := element{name: string(name), line: line, raw: shorten(raw)}
		for more {
			var key, val []byte
			key, val, more = z.TagAttr()
			el.attrs = append(el.attrs, html.Attribute{Key: string(key), Val: string(val)})
		}
		line += strings.Count(raw, "\n")

		// The tokenizer returns the body of a raw text element as the next token.
		if tt == html.StartTagToken && (el.name == "script" || el.name == "style") {
			if z.Next() == html.TextToken {
				el.text = string(z.Text())
			}
			line += strings.Count(string(z.Raw()), "\n")
		}

		p.collect(el)
	}
}

func (p *pageScan) collect(el element) {
	if el.hasEventHandler() {
		p.handlers = append(p.handlers, el)
	}
	if deprecatedTags[el.name] {
		p.deprecated = append(p.deprecated, el)
	}

	switch el.name {
	case "script":
		if !el.hasAttr("src") {
			p.inlineScripts = append(p.inlineScripts, el)
		}
	case "style":
		p.inlineStyles = append(p.inlineStyles, el)
	case "img":
		p.images = append(p.images, el)
	case "a":
		p.interactive = append(p.interactive, el)
		if el.hasAttr("href") {
			p.anchors = append(p.anchors, el)
		}
	case "button":
		p.interactive = append(p.interactive, el)
	case "input":
		p.interactive = append(p.interactive, el)
		p.inputs = append(p.inputs, el)
	case "h1", "h2", "h3", "h4", "h5", "h6":
		p.headings = append(p.headings, el)
		if el.name == "h1" {
			p.h1 = append(p.h1, el)
		}
	}
}

func getAttr(n *html.Node, key string) string {
	return attrValue(n.Attr, key)
}

func hasAttr(n *html.Node, key string) bool {
	return hasAttrKey(n.Attr, key)
}

func attrValue(attrs []html.Attribute, key string) string {
	for _, attr := range attrs {
		if strings.EqualFold(attr.Key, key) {
			return attr.Val
		}
	}
	return ""
}

func hasAttrKey(attrs []html.Attribute, key string) bool {
	for _, attr := range attrs {
		if strings.EqualFold(attr.Key, key) {
			return true
		}
	}
	return false
}

func isEventHandler(key string) bool {
	return len(key) > 2 && strings.HasPrefix(strings.ToLower(key), "on")
}

func headingLevel(name string) int {
	if len(name) != 2 || name[0] != 'h' {
		return 0
	}
	return int(name[1] - '0')
}

// shorten truncates long snippets such as data URIs.
func shorten(s string) string {
	if utf8.RuneCountInString(s) <= maxContextLength {
		return s
	}
	runes := []rune(s)
	return string(runes[:maxContextLength]) + "..."
}
