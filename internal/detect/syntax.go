package detect

import (
	"fmt"
	"unsafe"

	sitter "github.com/tree-sitter/go-tree-sitter"
	tree_sitter_javascript "github.com/tree-sitter/tree-sitter-javascript/bindings/go"
	tree_sitter_php "github.com/tree-sitter/tree-sitter-php/bindings/go"
	tree_sitter_python "github.com/tree-sitter/tree-sitter-python/bindings/go"
	tree_sitter_typescript "github.com/tree-sitter/tree-sitter-typescript/bindings/go"

	"github.com/nao1215/siteaudit/internal/model"
)

// grammar selects a tree-sitter language.
type grammar int

const (
	grammarJavaScript grammar = iota
	grammarTSX
	grammarTypeScript
	grammarPython
	grammarPHP
)

func (g grammar) language() unsafe.Pointer {
	switch g {
	case grammarTSX:
		return tree_sitter_typescript.LanguageTSX()
	case grammarTypeScript:
		return tree_sitter_typescript.LanguageTypescript()
	case grammarPython:
		return tree_sitter_python.Language()
	case grammarPHP:
		return tree_sitter_php.LanguagePHP()
	default:
		return tree_sitter_javascript.Language()
	}
}

// grammarForKind returns the grammar used for a script kind.
func grammarForKind(kind model.Kind) grammar {
	switch kind {
	case model.KindJSX:
		return grammarTSX
	case model.KindTS:
		return grammarTypeScript
	case model.KindPython:
		return grammarPython
	case model.KindPHP:
		return grammarPHP
	default:
		return grammarJavaScript
	}
}

// syntaxError is the first error node of a parse tree.
type syntaxError struct {
	// Line and Column are 1-based.
	Line    int
	Column  int
	Missing bool
	Text    string
}

func (e syntaxError) message() string {
	if e.Missing {
		return fmt.Sprintf("Syntax error: missing %s", e.Text)
	}
	return "Syntax error: unexpected token"
}

// checkSyntax parses src and returns the first error node, if any.
// Parsers are not shared because a tree-sitter parser is not safe for
// concurrent use.
func checkSyntax(g grammar, src []byte) (syntaxError, bool, error) {
	parser := sitter.NewParser()
	defer parser.Close()
	if err := parser.SetLanguage(sitter.NewLanguage(g.language())); err != nil {
		return syntaxError{}, false, fmt.Errorf("failed to set language for parser: %w", err)
	}

	tree := parser.Parse(src, nil)
	if tree == nil {
		return syntaxError{}, false, fmt.Errorf("failed to parse source")
	}
	defer tree.Close()

	root := tree.RootNode()
	if !root.HasError() {
		return syntaxError{}, false, nil
	}

	node := firstErrorNode(root)
	if node == nil {
		node = root
	}
	pos := node.StartPosition()
	found := syntaxError{
		Line:    int(pos.Row) + 1,
		Column:  int(pos.Column) + 1,
		Missing: node.IsMissing(),
	}
	if found.Missing {
		found.Text = node.Kind()
	}
	return found, true, nil
}

// firstErrorNode returns the first ERROR or MISSING node in document order.
func firstErrorNode(node *sitter.Node) *sitter.Node {
	if node.IsError() || node.IsMissing() {
		return node
	}
	if !node.HasError() {
		return nil
	}
	for i := uint(0); i < node.ChildCount(); i++ {
		child := node.Child(i)
		if child == nil {
			continue
		}
		if found := firstErrorNode(child); found != nil {
			return found
		}
	}
	return nil
}

// syntaxIssue runs the syntax check for the unit and records issueType on failure.
func syntaxIssue(c *collector, g grammar, issueType string) {
	found, failed, err := checkSyntax(g, []byte(c.unit.Content))
	if err != nil {
		c.add(issueType, err.Error())
		return
	}
	if !failed {
		return
	}
	opts := []model.IssueOption{model.WithLine(c.line(found.Line, ""))}
	if !c.unit.IsEmbedded() {
		opts = append(opts, model.WithColumn(found.Column))
	}
	c.add(issueType, found.message(), opts...)
}
