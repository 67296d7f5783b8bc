package report

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/nao1215/siteaudit/internal/model"
)

// ErrMalformedIssues is returned by ParseIssues for input that is neither
// issue objects nor triples.
var ErrMalformedIssues = errors.New("malformed issue list")

// JSONWriter outputs the issues as a JSON array.
type JSONWriter struct {
	baseWriter

	// indentString is the indentation per level; empty means compact output.
	indentString string
}

// JSONWriterOption configures a JSONWriter.
type JSONWriterOption func(*JSONWriter)

// WithIndent sets the indentation string. An empty string gives compact output.
func WithIndent(indent string) JSONWriterOption {
	return func(w *JSONWriter) {
		w.indentString = indent
	}
}

// NewJSONWriter creates a JSONWriter with two-space indentation.
func NewJSONWriter(output io.Writer, opts ...JSONWriterOption) *JSONWriter {
	w := &JSONWriter{
		baseWriter:   newBaseWriter(output),
		indentString: "  ",
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Write implements Writer. The output is an array even when the report
// has no issues.
func (w *JSONWriter) Write(report *model.Report) error {
	issues := report.Issues
	if issues == nil {
		issues = []model.Issue{}
	}

	var (
		data []byte
		err  error
	)
	if w.indentString != "" {
		data, err = json.MarshalIndent(issues, "", w.indentString)
	} else {
		data, err = json.Marshal(issues)
	}
	if err != nil {
		return fmt.Errorf("failed to encode issues: %w", err)
	}

	data = append(data, '\n')
	_, err = w.output.Write(data)
	return err
}

// jsonIssue is the decoding form of model.Issue. A missing severity is
// derived from the type.
type jsonIssue struct {
	Type     string          `json:"type"`
	Location string          `json:"location"`
	Message  string          `json:"message"`
	Severity *model.Severity `json:"severity"`
	Line     int             `json:"line"`
	Column   int             `json:"column"`
	Context  string          `json:"context"`
}

// ParseIssues decodes a JSON array whose elements are issue objects or
// [type, location, message] triples. Both forms may be mixed.
func ParseIssues(r io.Reader) ([]model.Issue, error) {
	var raw []json.RawMessage
	if err := json.NewDecoder(r).Decode(&raw); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrMalformedIssues, err)
	}

	issues := make([]model.Issue, 0, len(raw))
	for i, elem := range raw {
		issue, err := parseIssue(elem)
		if err != nil {
			return nil, fmt.Errorf("%w: element %d: %w", ErrMalformedIssues, i, err)
		}
		issues = append(issues, issue)
	}
	return issues, nil
}

func parseIssue(elem json.RawMessage) (model.Issue, error) {
	trimmed := bytes.TrimSpace(elem)
	if len(trimmed) > 0 && trimmed[0] == '[' {
		var triple []string
		if err := json.Unmarshal(trimmed, &triple); err != nil {
			return model.Issue{}, err
		}
		if len(triple) != 3 {
			return model.Issue{}, fmt.Errorf("triple has %d fields, want 3", len(triple))
		}
		return model.Triple{Type: triple[0], Location: triple[1], Message: triple[2]}.Issue(), nil
	}

	var j jsonIssue
	if err := json.Unmarshal(trimmed, &j); err != nil {
		return model.Issue{}, err
	}
	if j.Type == "" {
		return model.Issue{}, errors.New("issue has no type")
	}

	opts := []model.IssueOption{
		model.WithLine(j.Line),
		model.WithColumn(j.Column),
		model.WithContext(j.Context),
	}
	if j.Severity != nil {
		opts = append(opts, model.WithSeverity(*j.Severity))
	}
	return model.NewIssue(j.Type, j.Location, j.Message, opts...), nil
}
