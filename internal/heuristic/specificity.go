// Package heuristic provides the numeric helpers behind the CSS and size
// rules: a coarse selector specificity, a minification guess, and image
// size and metadata inspection.
package heuristic

import (
	"fmt"
	"regexp"
	"strings"
)

// elementToken matches word-boundary alphabetic tokens. Tokens directly
// after a '.' are class names and are already counted as classes; every
// other token counts as an element, so ids, attribute names, and
// pseudo-classes are counted too. This is not a CSS tokenizer.
var elementToken = regexp.MustCompile(`\b[a-zA-Z]+\b`)

// Specificity is the (ids, classes or attributes, elements) triple of a selector.
type Specificity struct {
	IDs            int
	ClassesOrAttrs int
	Elements       int
}

// SelectorSpecificity computes the coarse specificity of a selector:
// '#' count, '.' plus '[' count, and alphabetic token count.
func SelectorSpecificity(selector string) Specificity {
	return Specificity{
		IDs:            strings.Count(selector, "#"),
		ClassesOrAttrs: strings.Count(selector, ".") + strings.Count(selector, "["),
		Elements:       countElements(selector),
	}
}

func countElements(selector string) int {
	n := 0
	for _, loc := range elementToken.FindAllStringIndex(selector, -1) {
		if loc[0] > 0 && selector[loc[0]-1] == '.' {
			continue
		}
		n++
	}
	return n
}

// IsWar reports whether the selector is specific enough to start a
// specificity war: more than two ids or more than five classes/attributes.
func (s Specificity) IsWar() bool {
	return s.IDs > 2 || s.ClassesOrAttrs > 5
}

// String renders the triple as "(a, b, c)".
func (s Specificity) String() string {
	return fmt.Sprintf("(%d, %d, %d)", s.IDs, s.ClassesOrAttrs, s.Elements)
}

// SelectorDepth returns the greater of the space count and the '>' count.
func SelectorDepth(selector string) int {
	return max(strings.Count(selector, " "), strings.Count(selector, ">"))
}
