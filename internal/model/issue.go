package model

// LineUnknown marks an issue whose line could not be resolved.
const LineUnknown = 0

// Issue is one normalized finding produced by a detector.
// Issues are created through NewIssue and are not modified afterwards.
type Issue struct {
	// Type is the stable identifier of the rule, e.g. "CSS_DUPLICATE_SELECTOR".
	Type string `json:"type"`

	// Location is the path, URL, or element snippet where the issue was found.
	Location string `json:"location"`

	// Message is the human-readable explanation.
	Message string `json:"message"`

	// Severity is derived from Type unless explicitly overridden.
	Severity Severity `json:"severity"`

	// Line is the 1-based line in the originating content, or LineUnknown.
	Line int `json:"line"`

	// Column is the 1-based column, or 0 when not computed.
	Column int `json:"column,omitempty"`

	// Context is the verbatim snippet that triggered the issue.
	Context string `json:"context,omitempty"`
}

// IssueOption configures optional fields of an Issue.
type IssueOption func(*Issue)

// WithLine sets the 1-based line of the issue.
func WithLine(line int) IssueOption {
	return func(i *Issue) {
		i.Line = line
	}
}

// WithColumn sets the 1-based column of the issue.
func WithColumn(column int) IssueOption {
	return func(i *Issue) {
		i.Column = column
	}
}

// WithContext attaches the matched snippet.
func WithContext(context string) IssueOption {
	return func(i *Issue) {
		i.Context = context
	}
}

// WithSeverity overrides the severity derived from the issue table.
func WithSeverity(severity Severity) IssueOption {
	return func(i *Issue) {
		i.Severity = severity
	}
}

// NewIssue builds an Issue. Severity comes from Classify unless overridden,
// and a negative line or column is normalized to the unknown value.
func NewIssue(issueType, location, message string, opts ...IssueOption) Issue {
	issue := Issue{
		Type:     issueType,
		Location: location,
		Message:  message,
		Severity: Classify(issueType),
		Line:     LineUnknown,
	}

	for _, opt := range opts {
		opt(&issue)
	}

	if issue.Line < 0 {
		issue.Line = LineUnknown
	}
	if issue.Column < 0 {
		issue.Column = 0
	}

	return issue
}

// HasLine reports whether the issue carries a resolved line.
func (i Issue) HasLine() bool {
	return i.Line != LineUnknown
}

// Solution returns the remediation text for the issue type.
func (i Issue) Solution() string {
	return GetIssueInfo(i.Type).Solution
}

// Key identifies an issue across runs, ignoring line shifts.
func (i Issue) Key() string {
	return i.Type + "\x00" + i.Location + "\x00" + i.Message
}

// Triple is the minimal (type, location, message) form of an issue.
type Triple struct {
	Type     string
	Location string
	Message  string
}

// Issue promotes the triple into a full Issue.
func (t Triple) Issue() Issue {
	return NewIssue(t.Type, t.Location, t.Message)
}

// IssuesFromTriples promotes a list of triples.
func IssuesFromTriples(triples []Triple) []Issue {
	issues := make([]Issue, 0, len(triples))
	for _, t := range triples {
		issues = append(issues, t.Issue())
	}
	return issues
}
