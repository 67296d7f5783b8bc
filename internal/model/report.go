package model

import (
	"time"
)

// Report is the result of auditing one target: a repository or a website.
type Report struct {
	// Target is the audited repository path, git URL, or site URL.
	Target string `json:"target"`

	// Mode is the ingestion mode that produced the report.
	Mode string `json:"mode"`

	// StartedAt is when the run began.
	StartedAt time.Time `json:"started_at"`

	// Duration is the wall-clock time of the run.
	Duration time.Duration `json:"duration"`

	// UnitsScanned counts the content units handed to the engine.
	UnitsScanned int `json:"units_scanned"`

	// PagesCrawled counts fetched HTML pages in live mode.
	PagesCrawled int `json:"pages_crawled,omitempty"`

	// Issues is the ordered issue collection of the run.
	Issues []Issue `json:"issues"`

	// Error records an orchestration failure that aborted the run.
	// Content-level problems are issues, never errors.
	Error string `json:"error,omitempty"`
}

// NewReport creates an empty report for a target.
func NewReport(target string, mode Mode) *Report {
	return &Report{
		Target:    target,
		Mode:      mode.String(),
		StartedAt: time.Now(),
		Issues:    []Issue{},
	}
}

// Add appends issues in order.
func (r *Report) Add(issues ...Issue) {
	r.Issues = append(r.Issues, issues...)
}

// Finish records the run duration.
func (r *Report) Finish() {
	r.Duration = time.Since(r.StartedAt)
}

// HasIssues reports whether the run produced any issue.
func (r *Report) HasIssues() bool {
	return len(r.Issues) > 0
}

// Failed reports whether the run was aborted.
func (r *Report) Failed() bool {
	return r.Error != ""
}

// CountBySeverity returns the number of issues per severity.
func (r *Report) CountBySeverity() map[Severity]int {
	counts := make(map[Severity]int, len(AllSeverities()))
	for _, s := range AllSeverities() {
		counts[s] = 0
	}
	for _, issue := range r.Issues {
		counts[issue.Severity]++
	}
	return counts
}

// TypeCount is the number of issues for one issue type.
type TypeCount struct {
	Type  string
	Count int
}

// CountByType returns issue counts per type in first-seen order.
func (r *Report) CountByType() []TypeCount {
	index := make(map[string]int)
	var counts []TypeCount
	for _, issue := range r.Issues {
		i, ok := index[issue.Type]
		if !ok {
			index[issue.Type] = len(counts)
			counts = append(counts, TypeCount{Type: issue.Type, Count: 1})
			continue
		}
		counts[i].Count++
	}
	return counts
}

// IssuesBySeverity returns the issues of one severity in report order.
func (r *Report) IssuesBySeverity(severity Severity) []Issue {
	var out []Issue
	for _, issue := range r.Issues {
		if issue.Severity == severity {
			out = append(out, issue)
		}
	}
	return out
}

// MaxSeverity returns the highest severity in the report, and false when
// there are no issues.
func (r *Report) MaxSeverity() (Severity, bool) {
	if len(r.Issues) == 0 {
		return SeverityInfo, false
	}
	maxSev := SeverityInfo
	for _, issue := range r.Issues {
		if issue.Severity > maxSev {
			maxSev = issue.Severity
		}
	}
	return maxSev, true
}

// Filter removes issues whose type is listed in disabled.
func (r *Report) Filter(disabled []string) {
	if len(disabled) == 0 {
		return
	}
	skip := make(map[string]bool, len(disabled))
	for _, t := range disabled {
		skip[t] = true
	}
	kept := r.Issues[:0]
	for _, issue := range r.Issues {
		if !skip[issue.Type] {
			kept = append(kept, issue)
		}
	}
	r.Issues = kept
}
