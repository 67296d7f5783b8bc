package detect

import (
	"regexp"
	"strings"

	"github.com/nao1215/siteaudit/internal/locate"
	"github.com/nao1215/siteaudit/internal/model"
)

const largeBundleSize = 200 * 1024

var deprecatedAPIs = []string{"escape(", "unescape(", "document.all", "document.layers"}

// dangerousFunctions are reported at every call site. The optional
// argument list is captured so the context shows the call. Assignment
// patterns end at "=", so a following "=" makes the match a comparison.
var dangerousFunctions = []struct {
	name       string
	pattern    *regexp.Regexp
	assignment bool
}{
	{"eval", regexp.MustCompile(`\beval\s*\((?:[^()\n]*\))?`), false},
	{"innerHTML", regexp.MustCompile(`\.innerHTML\s*=`), true},
	{"document.write", regexp.MustCompile(`document\.write\s*\((?:[^()\n]*\))?`), false},
}

var (
	syncXHRPattern      = regexp.MustCompile(`open\s*\(\s*["'][A-Z]+["']\s*,\s*[^,]+,\s*false`)
	modernSyntaxPattern = regexp.MustCompile(`=>|const |let |\bclass\b|\bimport\b|\bexport\b`)

	reactSignal           = regexp.MustCompile(`React\.Component|useState|useEffect`)
	reactKeyPattern       = regexp.MustCompile(`<\w+\s+key=[^\s>]+`)
	reactMapPattern       = regexp.MustCompile(`\.map\(`)
	reactLifecyclePattern = regexp.MustCompile(`componentWillMount|componentWillReceiveProps|componentWillUpdate`)
	reactDirectDOMPattern = regexp.MustCompile(`document\.getElementById|document\.querySelector`)
	angularSignal         = regexp.MustCompile(`@Component|NgModule`)
	angularNgForPattern   = regexp.MustCompile(`\*ngFor`)
)

// ScriptDetector checks JavaScript, JSX/TSX and TypeScript.
type ScriptDetector struct{}

// NewScriptDetector creates a ScriptDetector.
func NewScriptDetector() *ScriptDetector {
	return &ScriptDetector{}
}

// Name returns "script".
func (d *ScriptDetector) Name() string {
	return "script"
}

// Kinds returns the js, jsx and ts kinds.
func (d *ScriptDetector) Kinds() []model.Kind {
	return []model.Kind{model.KindJS, model.KindJSX, model.KindTS}
}

// Detect runs the syntax check, the pattern checks, the file-level checks
// and the framework heuristics.
func (d *ScriptDetector) Detect(in *Input) []model.Issue {
	c := newCollector(in.Unit)
	content := in.Unit.Content

	syntaxIssue(c, grammarForKind(in.Unit.Kind), "JS_SYNTAX_ERROR")

	for _, api := range deprecatedAPIs {
		for _, m := range locate.All(content, api) {
			if !identBoundary(content, m) {
				continue
			}
			c.add("JS_DEPRECATED_API", "Deprecated API used: "+api, c.at(m)...)
		}
	}

	for _, fn := range dangerousFunctions {
		for _, m := range locate.AllPattern(content, fn.pattern) {
			if fn.assignment && strings.HasPrefix(content[m.Offset+len(m.Text):], "=") {
				continue
			}
			c.add("JS_DANGEROUS_FUNCTION", "Use of "+fn.name+" detected", c.at(m)...)
		}
	}

	if !in.Unit.IsEmbedded() {
		d.checkFile(c, content)
	}
	checkFrameworks(c, content)

	return c.issues
}

func (d *ScriptDetector) checkFile(c *collector, content string) {
	if len(content) > largeBundleSize {
		c.add("JS_LARGE_BUNDLE", "JS file > 200KB")
	}
	if m, ok := locate.FirstPattern(content, syncXHRPattern); ok {
		c.add("JS_SYNC_XHR", "Synchronous XHR detected", c.at(m)...)
	}
	if m, ok := locate.First(content, "document.write"); ok {
		c.add("JS_BLOCKING_SCRIPT", "document.write used", c.at(m)...)
	}
	if m, ok := locate.FirstPattern(content, modernSyntaxPattern); ok {
		c.add("JS_MODERN_SYNTAX", "Modern JS syntax detected", c.at(m)...)
	}
}

func checkFrameworks(c *collector, content string) {
	if reactSignal.MatchString(content) {
		if !reactKeyPattern.MatchString(content) {
			if m, ok := locate.FirstPattern(content, reactMapPattern); ok {
				c.add("REACT_MISSING_KEY", "Missing key prop in list rendering", c.at(m)...)
			}
		}
		if m, ok := locate.FirstPattern(content, reactLifecyclePattern); ok {
			c.add("REACT_DEPRECATED_LIFECYCLE", "Deprecated lifecycle method used: "+m.Text, c.at(m)...)
		}
		if m, ok := locate.FirstPattern(content, reactDirectDOMPattern); ok {
			c.add("REACT_DIRECT_DOM", "Direct DOM manipulation in React", c.at(m)...)
		}
	}

	if angularSignal.MatchString(content) {
		for _, m := range locate.AllPattern(content, angularNgForPattern) {
			rest := content[m.Offset:]
			if i := strings.IndexByte(rest, '\n'); i >= 0 {
				rest = rest[:i]
			}
			if !strings.Contains(rest, "trackBy") {
				c.add("ANGULAR_MISSING_TRACKBY", "Missing trackBy in *ngFor",
					model.WithLine(c.line(m.Line, m.Text)),
					model.WithContext(strings.TrimSpace(locate.LineText(content, m.Line))))
			}
		}
	}
}

// identBoundary reports whether a literal match stands on its own rather
// than being part of a longer identifier, so "unescape(" is not also an
// "escape(" and "document.allowed" is not "document.all".
func identBoundary(content string, m locate.Match) bool {
	if m.Offset > 0 && isIdentByte(content[m.Offset-1]) {
		return false
	}
	end := m.Offset + len(m.Text)
	last := m.Text[len(m.Text)-1]
	if isIdentByte(last) && end < len(content) && isIdentByte(content[end]) {
		return false
	}
	return true
}

func isIdentByte(b byte) bool {
	return b == '_' || b == '$' ||
		('a' <= b && b <= 'z') || ('A' <= b && b <= 'Z') || ('0' <= b && b <= '9')
}
