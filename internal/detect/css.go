package detect

import (
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/tdewolff/parse/v2"
	"github.com/tdewolff/parse/v2/css"

	"github.com/nao1215/siteaudit/internal/heuristic"
	"github.com/nao1215/siteaudit/internal/locate"
	"github.com/nao1215/siteaudit/internal/model"
)

const (
	largeStylesheetSize = 100 * 1024
	maxImports          = 3
	deepSelectorSpaces  = 4
)

var vendorPrefixes = []string{"-webkit-", "-moz-", "-ms-", "-o-"}

// complexSelectorChars excludes selectors from the unused-selector check.
var complexSelectorChars = regexp.MustCompile(`[\[\]:>~+]`)

// CSSDetector checks stylesheets and style attribute values.
type CSSDetector struct{}

// NewCSSDetector creates a CSSDetector.
func NewCSSDetector() *CSSDetector {
	return &CSSDetector{}
}

// Name returns "css".
func (d *CSSDetector) Name() string {
	return "css"
}

// Kinds returns the css kind.
func (d *CSSDetector) Kinds() []model.Kind {
	return []model.Kind{model.KindCSS}
}

// Detect checks every style rule, then the whole stylesheet.
func (d *CSSDetector) Detect(in *Input) []model.Issue {
	c := newCollector(in.Unit)
	sheet := parseStylesheet(in.Unit.Content)
	opts := in.Options

	seen := make(map[string]bool)
	for _, rule := range sheet.rules {
		d.checkSelector(c, rule, opts)
		d.checkDeclarations(c, rule.decls, opts)

		key := fmt.Sprintf("%d\x00%s", rule.scope, rule.selector)
		if seen[key] {
			c.add("CSS_DUPLICATE_SELECTOR", "Duplicate selector: "+rule.selector, rule.options(c)...)
		}
		seen[key] = true
	}
	d.checkDeclarations(c, sheet.decls, opts)

	if !in.Unit.IsEmbedded() {
		content := in.Unit.Content
		if len(content) > largeStylesheetSize {
			c.add("CSS_LARGE_FILE", "CSS file > 100KB")
		}
		if sheet.imports > maxImports {
			c.add("CSS_EXCESSIVE_IMPORT", fmt.Sprintf("Excessive @import usage (%d)", sheet.imports))
		}
		if !heuristic.IsMinified(content) {
			c.add("CSS_UNMINIFIED", "Non-minified CSS")
		}
	}

	if sheet.err != nil {
		opts := []model.IssueOption{c.atLine(sheet.err.Line)}
		if !in.Unit.IsEmbedded() {
			opts = append(opts, model.WithColumn(sheet.err.Column))
		}
		c.add("CSS_PARSING_ERROR", "CSS parsing error: "+sheet.err.Message, opts...)
	}

	return c.issues
}

func (d *CSSDetector) checkSelector(c *collector, rule cssRule, opts model.AnalysisOptions) {
	selector := rule.selector

	if spec := heuristic.SelectorSpecificity(selector); spec.IsWar() {
		c.add("CSS_SPECIFICITY_WAR", fmt.Sprintf("Selector %s has high specificity %s", selector, spec), rule.options(c)...)
	}
	if strings.Count(selector, " ") > deepSelectorSpaces {
		c.add("CSS_DEEP_SELECTOR", "Deep selector: "+selector, rule.options(c)...)
	}
	if opts.MaxSelectorDepth >= 0 && heuristic.SelectorDepth(selector) > opts.MaxSelectorDepth {
		c.add("CSS_COMPLEX_SELECTOR", "Overly complex selector: "+selector, rule.options(c)...)
	}
	if strings.Contains(selector, "#") {
		c.add("CSS_ID_SELECTOR", "ID selector: "+selector, rule.options(c)...)
	}
}

func (d *CSSDetector) checkDeclarations(c *collector, decls []cssDecl, opts model.AnalysisOptions) {
	for _, decl := range decls {
		switch {
		case decl.custom:
		case opts.Mode == model.ModeLive && hasVendorPrefix(decl.property):
			c.add("CSS_VENDOR_PREFIX", "Vendor prefix used: "+decl.property, decl.options(c)...)
		case strings.HasPrefix(decl.property, "-"):
			c.add("CSS_NONSTANDARD_PROPERTY", "Non-standard property: "+decl.property, decl.options(c)...)
		}
		if decl.important {
			c.add("CSS_IMPORTANT_OVERUSE", "Use of !important in CSS", decl.options(c)...)
		}
	}
}

// UnusedSelectors reports simple selectors of an external stylesheet whose
// text does not occur anywhere in the page HTML.
func (d *CSSDetector) UnusedSelectors(sheet model.ContentUnit, pageHTML string) []model.Issue {
	c := newCollector(sheet)
	for _, rule := range parseStylesheet(sheet.Content).rules {
		if rule.selector == "" || complexSelectorChars.MatchString(rule.selector) {
			continue
		}
		if !strings.Contains(pageHTML, rule.selector) {
			c.add("CSS_UNUSED_SELECTOR", "Unused selector: "+rule.selector, rule.options(c)...)
		}
	}
	return c.issues
}

func hasVendorPrefix(property string) bool {
	for _, prefix := range vendorPrefixes {
		if strings.HasPrefix(property, prefix) {
			return true
		}
	}
	return false
}

// stylesheet is the flattened result of parsing CSS.
type stylesheet struct {
	rules   []cssRule
	decls   []cssDecl // declarations outside any rule, as in style attributes
	imports int
	err     *parse.Error
}

type cssRule struct {
	selector string
	line     int
	// scope identifies the enclosing at-rule block; 0 is the top level.
	scope int
	decls []cssDecl
}

func (r cssRule) options(c *collector) []model.IssueOption {
	return []model.IssueOption{c.atLine(r.line), model.WithContext(r.selector)}
}

type cssDecl struct {
	property  string
	value     string
	important bool
	custom    bool
	line      int
}

func (d cssDecl) options(c *collector) []model.IssueOption {
	text := d.property + ": " + d.value
	return []model.IssueOption{model.WithLine(c.line(d.line, text)), model.WithContext(text)}
}

// parseStylesheet parses content as a stylesheet, or as a declaration list
// when it holds neither blocks nor at-rules.
func parseStylesheet(content string) *stylesheet {
	inline := !strings.ContainsAny(content, "{@")
	p := css.NewParser(parse.NewInputString(content), inline)
	sheet := &stylesheet{}

	current := -1
	scope := 0
	nextScope := 1
	var scopes []int
	stalled := 0

	for {
		start := p.Offset()
		gt, _, data := p.Next()

		// The parser may emit a closing token without consuming input, but
		// never many times in a row.
		if p.Offset() == start {
			stalled++
			if stalled > 8 {
				return sheet
			}
		} else {
			stalled = 0
		}

		switch gt {
		case css.ErrorGrammar:
			if !p.HasParseError() {
				return sheet
			}
			if sheet.err == nil {
				var perr *parse.Error
				if errors.As(p.Err(), &perr) {
					sheet.err = perr
				}
			}
		case css.AtRuleGrammar:
			if strings.EqualFold(string(data), "@import") {
				sheet.imports++
			}
		case css.BeginAtRuleGrammar:
			scopes = append(scopes, scope)
			scope = nextScope
			nextScope++
		case css.EndAtRuleGrammar:
			if len(scopes) > 0 {
				scope = scopes[len(scopes)-1]
				scopes = scopes[:len(scopes)-1]
			}
		case css.BeginRulesetGrammar:
			end := p.Offset() - 1
			selector := rawSelector(content, start, end)
			if selector == "" {
				selector = tokensText(p.Values())
			}
			sheet.rules = append(sheet.rules, cssRule{
				selector: selector,
				line:     lineAfter(content, start),
				scope:    scope,
			})
			current = len(sheet.rules) - 1
		case css.EndRulesetGrammar:
			current = -1
		case css.DeclarationGrammar, css.CustomPropertyGrammar:
			value := tokensText(p.Values())
			decl := cssDecl{
				property:  string(data),
				value:     strings.TrimSpace(value),
				important: strings.Contains(strings.ToLower(value), "!important"),
				custom:    gt == css.CustomPropertyGrammar || strings.HasPrefix(string(data), "--"),
				line:      lineAfter(content, start),
			}
			if current >= 0 {
				sheet.rules[current].decls = append(sheet.rules[current].decls, decl)
			} else {
				sheet.decls = append(sheet.decls, decl)
			}
		}
	}
}

// rawSelector returns the source text of a selector with whitespace collapsed.
func rawSelector(content string, start, end int) string {
	if start < 0 || end > len(content) || start >= end {
		return ""
	}
	return strings.Join(strings.Fields(content[start:end]), " ")
}

// lineAfter returns the line of the first byte after offset that is not
// whitespace or a semicolon.
func lineAfter(content string, offset int) int {
	for offset < len(content) && strings.IndexByte(" \t\n\r\f;", content[offset]) >= 0 {
		offset++
	}
	if offset < 0 || offset >= len(content) {
		return model.LineUnknown
	}
	return locate.LineOfOffset(content, offset)
}

func tokensText(tokens []css.Token) string {
	var b strings.Builder
	for _, t := range tokens {
		b.Write(t.Data)
	}
	return b.String()
}
