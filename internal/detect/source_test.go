package detect

import (
	"strings"
	"testing"

	"github.com/nao1215/siteaudit/internal/model"
)

// TestPythonDetector tests the Flask checks and the syntax check.
func TestPythonDetector(t *testing.T) {
	t.Parallel()

	t.Run("flask debug mode and hardcoded secret", func(t *testing.T) {
		t.Parallel()

		src := "from flask import Flask\napp = Flask(__name__)\nSECRET_KEY = \"hunter2\"\napp.run(debug=True)\n"
		issues := detectUnit(NewPythonDetector(), model.KindPython, "app.py", src)

		debug := ofType(issues, "FLASK_DEBUG_MODE")
		if len(debug) != 1 || debug[0].Line != 4 {
			t.Errorf("unexpected FLASK_DEBUG_MODE %+v", debug)
		}

		secret := ofType(issues, "FLASK_HARDCODED_SECRET")
		if len(secret) != 1 {
			t.Fatalf("expected 1 FLASK_HARDCODED_SECRET, got %+v", secret)
		}
		if secret[0].Line != 3 || secret[0].Severity != model.SeverityCritical {
			t.Errorf("unexpected issue %+v", secret[0])
		}
		if strings.Contains(secret[0].Context, "hunter2") || strings.Contains(secret[0].Message, "hunter2") {
			t.Errorf("secret value leaked into the issue: %+v", secret[0])
		}
	})

	t.Run("debug outside flask apps is ignored", func(t *testing.T) {
		t.Parallel()

		src := "def run(debug=True):\n    return debug\n"
		if got := ofType(detectUnit(NewPythonDetector(), model.KindPython, "tool.py", src), "FLASK_DEBUG_MODE"); len(got) != 0 {
			t.Errorf("unexpected issues %+v", got)
		}
	})

	t.Run("syntax error", func(t *testing.T) {
		t.Parallel()

		issues := ofType(detectUnit(NewPythonDetector(), model.KindPython, "bad.py", "x = 1\ndef f(:\n    pass\n"), "PY_SYNTAX_ERROR")
		if len(issues) != 1 || issues[0].Line != 2 {
			t.Errorf("unexpected PY_SYNTAX_ERROR %+v", issues)
		}
	})
}

// TestPHPDetector tests the eval, mysql_* and input checks.
func TestPHPDetector(t *testing.T) {
	t.Parallel()

	t.Run("unsafe script", func(t *testing.T) {
		t.Parallel()

		src := "<?php\n$id = $_GET['id'];\n$r = mysql_query(\"SELECT \" . $id);\neval($code);\n"
		issues := detectUnit(NewPHPDetector(), model.KindPHP, "index.php", src)

		testCases := []struct {
			issueType string
			line      int
		}{
			{"PHP_UNVALIDATED_INPUT", 2},
			{"PHP_MYSQL_DEPRECATED", 3},
			{"PHP_EVAL", 4},
		}
		for _, tc := range testCases {
			got := ofType(issues, tc.issueType)
			if len(got) != 1 || got[0].Line != tc.line {
				t.Errorf("%s: unexpected issues %+v", tc.issueType, got)
			}
		}
		if got := ofType(issues, "PHP_SYNTAX_ERROR"); len(got) != 0 {
			t.Errorf("valid PHP reported as broken: %+v", got)
		}
	})

	t.Run("sanitized input", func(t *testing.T) {
		t.Parallel()

		src := "<?php\n$name = htmlspecialchars($_POST['name']);\necho $name;\n"
		if got := ofType(detectUnit(NewPHPDetector(), model.KindPHP, "form.php", src), "PHP_UNVALIDATED_INPUT"); len(got) != 0 {
			t.Errorf("sanitized input reported: %+v", got)
		}
	})

	t.Run("syntax error", func(t *testing.T) {
		t.Parallel()

		issues := ofType(detectUnit(NewPHPDetector(), model.KindPHP, "bad.php", "<?php\n$a = ;\n"), "PHP_SYNTAX_ERROR")
		if len(issues) != 1 || issues[0].Line != 2 {
			t.Errorf("unexpected PHP_SYNTAX_ERROR %+v", issues)
		}
	})
}
