package model

import "strings"

// MaxPageSize caps the number of bytes read from a single response.
const MaxPageSize = 5 * 1024 * 1024 // 5 MB

// Page is an HTML document fetched from a live site, together with the
// references extracted from it.
type Page struct {
	// URL is the final URL of the page.
	URL string `json:"url"`

	// StatusCode is the HTTP status of the response.
	StatusCode int `json:"status_code"`

	// ContentType is the media type without parameters.
	ContentType string `json:"content_type"`

	// Body is the raw HTML.
	Body string `json:"-"`

	// Links are absolute URLs of <a href> targets in document order.
	Links []string `json:"links,omitempty"`

	// Stylesheets are the <link rel="stylesheet"> and <style> assets.
	Stylesheets []Asset `json:"stylesheets,omitempty"`

	// Scripts are the <script> assets.
	Scripts []Asset `json:"scripts,omitempty"`

	// StyleAttributes are the values of style="..." attributes.
	StyleAttributes []string `json:"-"`
}

// Asset is a stylesheet or script referenced by a page.
type Asset struct {
	// URL is the absolute asset URL, empty for inline assets.
	URL string `json:"url,omitempty"`

	// Inline is true for <style> and <script> bodies.
	Inline bool `json:"inline"`

	// Content is the inline body or the fetched external body.
	Content string `json:"-"`
}

// IsHTML reports whether the page content type is HTML.
func (p *Page) IsHTML() bool {
	ct := strings.ToLower(p.ContentType)
	return ct == "" || strings.HasPrefix(ct, "text/html") || ct == "application/xhtml+xml"
}

// ExternalStylesheets returns the non-inline stylesheets.
func (p *Page) ExternalStylesheets() []Asset {
	return filterAssets(p.Stylesheets, false)
}

// InlineStyles returns the <style> bodies.
func (p *Page) InlineStyles() []Asset {
	return filterAssets(p.Stylesheets, true)
}

// ExternalScripts returns the scripts with a src attribute.
func (p *Page) ExternalScripts() []Asset {
	return filterAssets(p.Scripts, false)
}

// InlineScripts returns the <script> bodies.
func (p *Page) InlineScripts() []Asset {
	return filterAssets(p.Scripts, true)
}

func filterAssets(assets []Asset, inline bool) []Asset {
	var out []Asset
	for _, a := range assets {
		if a.Inline == inline {
			out = append(out, a)
		}
	}
	return out
}
