package locate

import (
	"regexp"
	"testing"

	"github.com/nao1215/siteaudit/internal/model"
)

func TestLine(t *testing.T) {
	t.Parallel()

	raw := "first\nsecond eval(x)\nthird\neval(y)\n"

	testCases := []struct {
		name     string
		raw      string
		needle   string
		expected int
	}{
		{"first occurrence", raw, "eval(", 2},
		{"first line", raw, "first", 1},
		{"absent", raw, "missing", model.LineUnknown},
		{"empty raw", "", "eval(", model.LineUnknown},
		{"empty needle", raw, "", model.LineUnknown},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			if got := Line(tc.raw, tc.needle); got != tc.expected {
				t.Errorf("Line(%q) = %d, expected %d", tc.needle, got, tc.expected)
			}
		})
	}
}

func TestLineFold(t *testing.T) {
	t.Parallel()

	raw := "<!doctype html>\n<HTML>\n<Head>\n</head>"
	if got := LineFold(raw, "<head"); got != 3 {
		t.Errorf("expected 3, got %d", got)
	}
	if got := LineFold(raw, "<body"); got != model.LineUnknown {
		t.Errorf("expected unknown, got %d", got)
	}
}

func TestLinePattern(t *testing.T) {
	t.Parallel()

	re := regexp.MustCompile(`\beval\s*\(`)
	if got := LinePattern("a\nb\n  eval (1)", re); got != 3 {
		t.Errorf("expected 3, got %d", got)
	}
	if got := LinePattern("medieval(", re); got != model.LineUnknown {
		t.Errorf("word boundary ignored: %d", got)
	}
	if got := LinePattern("", re); got != model.LineUnknown {
		t.Errorf("empty raw should be unknown, got %d", got)
	}
	if got := LinePattern("x", nil); got != model.LineUnknown {
		t.Errorf("nil pattern should be unknown, got %d", got)
	}
}

func TestAllPattern(t *testing.T) {
	t.Parallel()

	raw := "x\ny\neval(foo)\n\n\n\nz = eval(bar)\n"
	re := regexp.MustCompile(`\beval\s*\(\w*\)`)

	matches := AllPattern(raw, re)
	if len(matches) != 2 {
		t.Fatalf("expected 2 matches, got %d", len(matches))
	}
	if matches[0].Line != 3 || matches[0].Text != "eval(foo)" || matches[0].Column != 1 {
		t.Errorf("unexpected first match %+v", matches[0])
	}
	if matches[1].Line != 7 || matches[1].Text != "eval(bar)" || matches[1].Column != 5 {
		t.Errorf("unexpected second match %+v", matches[1])
	}
}

func TestAll(t *testing.T) {
	t.Parallel()

	matches := All("aaaa\naa", "aa")
	if len(matches) != 3 {
		t.Fatalf("expected 3 non-overlapping matches, got %d", len(matches))
	}
	if matches[2].Line != 2 || matches[2].Column != 1 {
		t.Errorf("unexpected last match %+v", matches[2])
	}
	if All("", "a") != nil || All("a", "") != nil {
		t.Error("empty inputs should yield nil")
	}
}

func TestFirst(t *testing.T) {
	t.Parallel()

	m, ok := First("one\ntwo document.write(x)", "document.write")
	if !ok || m.Line != 2 || m.Column != 5 {
		t.Errorf("unexpected match %+v %v", m, ok)
	}
	if _, ok := First("abc", "z"); ok {
		t.Error("expected no match")
	}

	m, ok = FirstPattern("a\n\nconst x = 1", regexp.MustCompile(`const `))
	if !ok || m.Line != 3 || m.Text != "const " {
		t.Errorf("unexpected pattern match %+v", m)
	}
}

func TestPosition(t *testing.T) {
	t.Parallel()

	raw := "ab\nçd\nef"

	testCases := []struct {
		name   string
		offset int
		line   int
		column int
	}{
		{"start", 0, 1, 1},
		{"second line", 3, 2, 1},
		{"after multibyte rune", 5, 2, 2},
		{"third line", 7, 3, 1},
		{"end", len(raw), 3, 3},
		{"negative", -1, model.LineUnknown, 0},
		{"beyond", len(raw) + 1, model.LineUnknown, 0},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			line, column := Position(raw, tc.offset)
			if line != tc.line || column != tc.column {
				t.Errorf("Position(%d) = %d:%d, expected %d:%d", tc.offset, line, column, tc.line, tc.column)
			}
		})
	}
}

func TestLineText(t *testing.T) {
	t.Parallel()

	raw := "one\r\ntwo\nthree"
	if got := LineText(raw, 1); got != "one" {
		t.Errorf("line 1 = %q", got)
	}
	if got := LineText(raw, 3); got != "three" {
		t.Errorf("line 3 = %q", got)
	}
	if got := LineText(raw, 4); got != "" {
		t.Errorf("line 4 = %q", got)
	}
	if got := LineText(raw, 0); got != "" {
		t.Errorf("line 0 = %q", got)
	}
}

func TestBaseTranslate(t *testing.T) {
	t.Parallel()

	raw := "<html>\n<head>\n<style>\na { color: red }\nb { color: blue }\n</style>"
	content := "\na { color: red }\nb { color: blue }\n"

	base := Base(raw, content)
	if base != 3 {
		t.Fatalf("expected base 3, got %d", base)
	}
	// "b {" is on line 3 of content, line 5 of raw.
	if got := Translate(base, Line(content, "b {")); got != 5 {
		t.Errorf("expected 5, got %d", got)
	}
	if got := Translate(base, model.LineUnknown); got != model.LineUnknown {
		t.Errorf("unknown must stay unknown, got %d", got)
	}
	if got := Translate(model.LineUnknown, 2); got != 2 {
		t.Errorf("unknown base keeps local line, got %d", got)
	}
}
