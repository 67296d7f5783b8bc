package detect

import (
	"github.com/nao1215/siteaudit/internal/locate"
	"github.com/nao1215/siteaudit/internal/model"
)

// collector accumulates the issues of one detector call and translates
// lines of extracted content back into lines of the enclosing document.
type collector struct {
	unit   model.ContentUnit
	base   int
	issues []model.Issue
}

func newCollector(unit model.ContentUnit) *collector {
	c := &collector{unit: unit, base: 1}
	if unit.IsEmbedded() {
		c.base = locate.Base(unit.Raw, unit.Content)
	}
	return c
}

// add records an issue located at the unit.
func (c *collector) add(issueType, message string, opts ...model.IssueOption) {
	c.issues = append(c.issues, model.NewIssue(issueType, c.unit.Location, message, opts...))
}

// addAt records an issue with an explicit location, such as a checked URL.
func (c *collector) addAt(issueType, location, message string, opts ...model.IssueOption) {
	c.issues = append(c.issues, model.NewIssue(issueType, location, message, opts...))
}

// line converts a line of the unit content into a reported line.
// When the content cannot be placed inside Raw, snippet is looked up in Raw
// directly.
func (c *collector) line(local int, snippet string) int {
	if local == model.LineUnknown {
		return model.LineUnknown
	}
	if !c.unit.IsEmbedded() {
		return local
	}
	if c.base != model.LineUnknown {
		return locate.Translate(c.base, local)
	}
	return locate.Line(c.unit.Raw, snippet)
}

// at returns the line and context options for a match in the unit content.
func (c *collector) at(m locate.Match) []model.IssueOption {
	opts := []model.IssueOption{
		model.WithLine(c.line(m.Line, m.Text)),
		model.WithContext(m.Text),
	}
	// The first content line of an embedded unit does not start at column 1 of Raw.
	if !c.unit.IsEmbedded() || (c.base != model.LineUnknown && m.Line > 1) {
		opts = append(opts, model.WithColumn(m.Column))
	}
	return opts
}

// atLine returns the line option for a local line.
func (c *collector) atLine(local int) model.IssueOption {
	return model.WithLine(c.line(local, ""))
}
