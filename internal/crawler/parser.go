package crawler

import (
	"net/url"
	"strings"

	"golang.org/x/net/html"

	"github.com/nao1215/siteaudit/internal/model"
)

// Parser extracts links and assets from a fetched page.
type Parser struct {
	// baseURL resolves relative references. A <base href> in the page
	// replaces it.
	baseURL *url.URL
}

// NewParser creates a Parser for a page at pageURL.
func NewParser(pageURL string) (*Parser, error) {
	u, err := url.Parse(pageURL)
	if err != nil {
		return nil, err
	}
	return &Parser{baseURL: u}, nil
}

// Parse fills page.Links, page.Stylesheets, page.Scripts and
// page.StyleAttributes from page.Body, in document order.
func (p *Parser) Parse(page *model.Page) error {
	doc, err := html.Parse(strings.NewReader(page.Body))
	if err != nil {
		return err
	}

	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode {
			p.processElement(n, page)
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(doc)
	return nil
}

func (p *Parser) processElement(n *html.Node, page *model.Page) {
	if style, ok := attr(n, "style"); ok && strings.TrimSpace(style) != "" {
		page.StyleAttributes = append(page.StyleAttributes, style)
	}

	switch n.Data {
	case "base":
		if href, ok := attr(n, "href"); ok {
			if u, err := url.Parse(strings.TrimSpace(href)); err == nil {
				p.baseURL = p.baseURL.ResolveReference(u)
			}
		}

	case "a":
		if href, ok := attr(n, "href"); ok {
			if resolved := p.resolveURL(href); resolved != "" {
				page.Links = append(page.Links, resolved)
			}
		}

	case "link":
		href, _ := attr(n, "href")
		if !isStylesheet(n) || href == "" {
			return
		}
		if resolved := p.resolveURL(href); resolved != "" {
			page.Stylesheets = append(page.Stylesheets, model.Asset{URL: resolved})
		}

	case "style":
		if body := text(n); strings.TrimSpace(body) != "" {
			page.Stylesheets = append(page.Stylesheets, model.Asset{Inline: true, Content: body})
		}

	case "script":
		if !isJavaScript(n) {
			return
		}
		if src, ok := attr(n, "src"); ok {
			if resolved := p.resolveURL(src); resolved != "" {
				page.Scripts = append(page.Scripts, model.Asset{URL: resolved})
			}
			return
		}
		if body := text(n); strings.TrimSpace(body) != "" {
			page.Scripts = append(page.Scripts, model.Asset{Inline: true, Content: body})
		}
	}
}

// resolveURL resolves href against the base URL. Fragments are dropped and
// non-navigable references yield "".
func (p *Parser) resolveURL(href string) string {
	href = strings.TrimSpace(href)
	if href == "" || strings.HasPrefix(href, "#") {
		return ""
	}
	lower := strings.ToLower(href)
	for _, scheme := range []string{"javascript:", "mailto:", "tel:", "data:"} {
		if strings.HasPrefix(lower, scheme) {
			return ""
		}
	}

	u, err := url.Parse(href)
	if err != nil {
		return ""
	}
	resolved := p.baseURL.ResolveReference(u)
	if resolved.Scheme != "http" && resolved.Scheme != "https" {
		return ""
	}
	resolved.Fragment = ""
	return resolved.String()
}

func isStylesheet(n *html.Node) bool {
	rel, _ := attr(n, "rel")
	for _, r := range strings.Fields(strings.ToLower(rel)) {
		if r == "stylesheet" {
			return true
		}
	}
	return false
}

// isJavaScript skips data blocks such as JSON-LD and templates.
func isJavaScript(n *html.Node) bool {
	typ, ok := attr(n, "type")
	if !ok {
		return true
	}
	switch strings.ToLower(strings.TrimSpace(typ)) {
	case "", "module", "text/javascript", "application/javascript", "text/ecmascript", "application/ecmascript":
		return true
	default:
		return false
	}
}

func attr(n *html.Node, key string) (string, bool) {
	for _, a := range n.Attr {
		if a.Key == key {
			return a.Val, true
		}
	}
	return "", false
}

func text(n *html.Node) string {
	var b strings.Builder
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if c.Type == html.TextNode {
			b.WriteString(c.Data)
		}
	}
	return b.String()
}
