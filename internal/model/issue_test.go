package model

import "testing"

func TestNewIssue(t *testing.T) {
	t.Parallel()

	t.Run("severity from table", func(t *testing.T) {
		t.Parallel()
		issue := NewIssue("SEO_MISSING_TITLE", "index.html", "Missing <title> tag")
		if issue.Severity != SeverityError {
			t.Errorf("expected error, got %v", issue.Severity)
		}
		if issue.Line != LineUnknown {
			t.Errorf("expected unknown line, got %d", issue.Line)
		}
		if issue.HasLine() {
			t.Error("HasLine should be false")
		}
	})

	t.Run("options", func(t *testing.T) {
		t.Parallel()
		issue := NewIssue("JS_DANGEROUS_FUNCTION", "app.js", "Use of eval detected",
			WithLine(3), WithColumn(5), WithContext("eval("), WithSeverity(SeverityCritical))
		if issue.Line != 3 || issue.Column != 5 {
			t.Errorf("unexpected position %d:%d", issue.Line, issue.Column)
		}
		if issue.Context != "eval(" {
			t.Errorf("unexpected context %q", issue.Context)
		}
		if issue.Severity != SeverityCritical {
			t.Errorf("override ignored: %v", issue.Severity)
		}
	})

	t.Run("negative line normalized", func(t *testing.T) {
		t.Parallel()
		issue := NewIssue("TEXT_TODO", "notes.txt", "TODO found", WithLine(-4), WithColumn(-1))
		if issue.Line != LineUnknown || issue.Column != 0 {
			t.Errorf("expected normalized position, got %d:%d", issue.Line, issue.Column)
		}
	})
}

func TestTriple(t *testing.T) {
	t.Parallel()

	issues := IssuesFromTriples([]Triple{
		{Type: "PKG_OLD_DEP", Location: "package.json", Message: "left-pad version 0.0.1 may be outdated"},
		{Type: "UNLISTED", Location: "x", Message: "y"},
	})
	if len(issues) != 2 {
		t.Fatalf("expected 2 issues, got %d", len(issues))
	}
	if issues[0].Severity != SeverityWarning {
		t.Errorf("expected warning, got %v", issues[0].Severity)
	}
	if issues[1].Severity != SeverityInfo {
		t.Errorf("expected info, got %v", issues[1].Severity)
	}
	if issues[0].Solution() == DefaultSolution {
		t.Error("expected a dedicated solution for PKG_OLD_DEP")
	}
}

func TestKindForPath(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		path     string
		expected Kind
	}{
		{"index.html", KindHTML},
		{"templates/base.j2", KindHTML},
		{"page.JINJA", KindHTML},
		{"static/site.css", KindCSS},
		{"app.js", KindJS},
		{"App.tsx", KindJSX},
		{"component.jsx", KindJSX},
		{"service.ts", KindTS},
		{"app.py", KindPython},
		{"index.php", KindPHP},
		{"web/package.json", KindJSONConfig},
		{"angular.json", KindJSONConfig},
		{"tsconfig.json", KindConfig},
		{".env", KindEnv},
		{"deploy/config.yaml", KindConfig},
		{"README.md", KindText},
		{`dir\notes.txt`, KindText},
		{"image.png", KindUnknown},
		{"Makefile", KindUnknown},
	}

	for _, tc := range testCases {
		t.Run(tc.path, func(t *testing.T) {
			t.Parallel()
			if got := KindForPath(tc.path); got != tc.expected {
				t.Errorf("KindForPath(%q) = %q, expected %q", tc.path, got, tc.expected)
			}
		})
	}
}

func TestAnalysisOptions(t *testing.T) {
	t.Parallel()

	opts := DefaultAnalysisOptions()
	if !opts.HTML || !opts.CSS || !opts.JS || !opts.PerfSec {
		t.Error("all categories should be enabled by default")
	}
	if opts.MaxSelectorDepth != DefaultMaxSelectorDepth {
		t.Errorf("unexpected depth %d", opts.MaxSelectorDepth)
	}

	live := opts.Live("https://example.com")
	if live.Mode != ModeLive || live.BaseURL != "https://example.com" {
		t.Errorf("unexpected live options %+v", live)
	}
	if opts.Mode != ModeRepository {
		t.Error("Live must not modify the receiver")
	}

	opts.DisabledTypes = []string{"CSS_UNMINIFIED"}
	if !opts.IsDisabled("CSS_UNMINIFIED") || opts.IsDisabled("CSS_ID_SELECTOR") {
		t.Error("IsDisabled mismatch")
	}
}
