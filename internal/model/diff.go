package model

// IssueDiff is the difference between two runs of the same target.
type IssueDiff struct {
	// New holds issues present only in the newer run.
	New []Issue `json:"new"`

	// Resolved holds issues present only in the older run.
	Resolved []Issue `json:"resolved"`

	// Unchanged counts issues present in both runs.
	Unchanged int `json:"unchanged"`
}

// Diff compares two issue lists by Issue.Key. Repeated keys are matched one
// to one, so a third occurrence of the same finding shows up as new.
func Diff(older, newer []Issue) IssueDiff {
	remaining := make(map[string]int, len(older))
	for _, issue := range older {
		remaining[issue.Key()]++
	}

	diff := IssueDiff{New: []Issue{}, Resolved: []Issue{}}
	for _, issue := range newer {
		key := issue.Key()
		if remaining[key] > 0 {
			remaining[key]--
			diff.Unchanged++
			continue
		}
		diff.New = append(diff.New, issue)
	}
	for _, issue := range older {
		key := issue.Key()
		if remaining[key] > 0 {
			remaining[key]--
			diff.Resolved = append(diff.Resolved, issue)
		}
	}
	return diff
}

// HasChanges reports whether any issue appeared or disappeared.
func (d IssueDiff) HasChanges() bool {
	return len(d.New) > 0 || len(d.Resolved) > 0
}
