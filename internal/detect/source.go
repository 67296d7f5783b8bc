package detect

import (
	"regexp"
	"strings"

	"github.com/nao1215/siteaudit/internal/locate"
	"github.com/nao1215/siteaudit/internal/model"
)

var (
	flaskSecretPattern  = regexp.MustCompile(`SECRET_KEY\s*=\s*["'][^"']+["']`)
	phpMySQLPattern     = regexp.MustCompile(`mysql_\w+\(`)
	phpSuperglobal      = regexp.MustCompile(`\$_(GET|POST|REQUEST|COOKIE)\[`)
	phpSanitizerPattern = regexp.MustCompile(`htmlspecialchars|filter_var`)
)

// PythonDetector checks Python sources and Flask applications.
type PythonDetector struct{}

// NewPythonDetector creates a PythonDetector.
func NewPythonDetector() *PythonDetector {
	return &PythonDetector{}
}

// Name returns "python".
func (d *PythonDetector) Name() string {
	return "python"
}

// Kinds returns the py kind.
func (d *PythonDetector) Kinds() []model.Kind {
	return []model.Kind{model.KindPython}
}

// Detect runs the syntax check and the Flask checks.
func (d *PythonDetector) Detect(in *Input) []model.Issue {
	c := newCollector(in.Unit)
	content := in.Unit.Content

	syntaxIssue(c, grammarPython, "PY_SYNTAX_ERROR")

	if strings.Contains(content, "Flask(") {
		if m, ok := locate.First(content, "debug=True"); ok {
			c.add("FLASK_DEBUG_MODE", "Flask debug mode enabled", c.at(m)...)
		}
		if m, ok := locate.FirstPattern(content, flaskSecretPattern); ok {
			// The matched value is the secret itself; keep only the key in the context.
			c.add("FLASK_HARDCODED_SECRET", "Hardcoded Flask SECRET_KEY",
				model.WithLine(c.line(m.Line, m.Text)), model.WithColumn(m.Column),
				model.WithContext("SECRET_KEY = ****"))
		}
	}
	return c.issues
}

// PHPDetector checks PHP sources.
type PHPDetector struct{}

// NewPHPDetector creates a PHPDetector.
func NewPHPDetector() *PHPDetector {
	return &PHPDetector{}
}

// Name returns "php".
func (d *PHPDetector) Name() string {
	return "php"
}

// Kinds returns the php kind.
func (d *PHPDetector) Kinds() []model.Kind {
	return []model.Kind{model.KindPHP}
}

// Detect runs the syntax check and the eval, mysql_* and input checks.
func (d *PHPDetector) Detect(in *Input) []model.Issue {
	c := newCollector(in.Unit)
	content := in.Unit.Content

	syntaxIssue(c, grammarPHP, "PHP_SYNTAX_ERROR")

	if m, ok := locate.First(content, "eval("); ok {
		c.add("PHP_EVAL", "Use of eval()", c.at(m)...)
	}
	if m, ok := locate.FirstPattern(content, phpMySQLPattern); ok {
		c.add("PHP_MYSQL_DEPRECATED", "Use of deprecated mysql_* functions", c.at(m)...)
	}
	if !phpSanitizerPattern.MatchString(content) {
		if m, ok := locate.FirstPattern(content, phpSuperglobal); ok {
			c.add("PHP_UNVALIDATED_INPUT", "Potential unvalidated input", c.at(m)...)
		}
	}
	return c.issues
}
