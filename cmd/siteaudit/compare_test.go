package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/nao1215/siteaudit/internal/database"
	"github.com/nao1215/siteaudit/internal/model"
)

const compareTarget = "https://example.com"

func runCompareArgs(t *testing.T, args ...string) (string, error) {
	t.Helper()

	var stdout bytes.Buffer
	cmd := NewRootCmd()
	cmd.SetOut(&stdout)
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs(append([]string{"compare"}, args...))
	err := cmd.ExecuteContext(context.Background())
	return stdout.String(), err
}

// seedHistory stores one run per issue list, an hour apart, oldest first,
// and returns the database directory and the run IDs.
func seedHistory(t *testing.T, target string, runs ...[]model.Issue) (string, []int64) {
	t.Helper()

	dir := t.TempDir()
	history, err := database.Open(dir)
	if err != nil {
		t.Fatalf("failed to open history: %v", err)
	}
	defer history.Close()

	start := time.Date(2026, 3, 1, 12, 0, 0, 0, time.Local)
	ids := make([]int64, 0, len(runs))
	for i, issues := range runs {
		r := model.NewReport(target, model.ModeLive)
		r.StartedAt = start.Add(time.Duration(i) * time.Hour)
		r.Add(issues...)
		id, err := history.SaveRun(context.Background(), r)
		if err != nil {
			t.Fatalf("failed to save run: %v", err)
		}
		ids = append(ids, id)
	}
	return dir, ids
}

var (
	issueTitle  = model.NewIssue("SEO_MISSING_TITLE", "https://example.com/", "Missing <title> tag", model.WithLine(2))
	issueEval   = model.NewIssue("JS_DANGEROUS_FUNCTION", "https://example.com/app.js", "eval() call", model.WithLine(3))
	issueSecret = model.NewIssue("SEC_LEAKED_SECRET", "https://example.com/app.js", "AWS key (rule: aws-access-token)")
)

// TestCompareLatestRuns tests the default comparison of the two newest runs.
func TestCompareLatestRuns(t *testing.T) {
	t.Parallel()

	dir, _ := seedHistory(t, compareTarget,
		[]model.Issue{issueTitle},
		[]model.Issue{issueTitle, issueEval},
		[]model.Issue{issueEval, issueSecret},
	)

	t.Run("plain", func(t *testing.T) {
		t.Parallel()

		output, err := runCompareArgs(t, "--db-dir", dir, compareTarget)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		for _, want := range []string{
			"Run Comparison: " + compareTarget,
			"WORSENED",
			"New issues (1):",
			"[+] [SEC_LEAKED_SECRET]",
			"Resolved issues (1):",
			"[-] [SEO_MISSING_TITLE] https://example.com/:2",
			"Unchanged: 1 issues",
		} {
			if !strings.Contains(output, want) {
				t.Errorf("expected output to contain %q:\n%s", want, output)
			}
		}
	})

	t.Run("json", func(t *testing.T) {
		t.Parallel()

		output, err := runCompareArgs(t, "--db-dir", dir, "-F", "json", compareTarget)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		var result ComparisonResult
		if err := json.Unmarshal([]byte(output), &result); err != nil {
			t.Fatalf("invalid JSON: %v\n%s", err, output)
		}
		if result.Target != compareTarget || result.Direction != directionWorsened {
			t.Errorf("unexpected result %+v", result)
		}
		if len(result.Diff.New) != 1 || len(result.Diff.Resolved) != 1 || result.Diff.Unchanged != 1 {
			t.Errorf("unexpected diff %+v", result.Diff)
		}
		if result.Current.Severities["critical"] != 1 || result.Previous.Severities["error"] != 1 {
			t.Errorf("unexpected severities %v / %v", result.Previous.Severities, result.Current.Severities)
		}
	})

	t.Run("markdown", func(t *testing.T) {
		t.Parallel()

		output, err := runCompareArgs(t, "--db-dir", dir, "-F", "markdown", compareTarget)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		for _, want := range []string{"# Run Comparison", "## New Issues (1)", "## Resolved Issues (1)", "~~"} {
			if !strings.Contains(output, want) {
				t.Errorf("expected output to contain %q:\n%s", want, output)
			}
		}
	})
}

func TestCompareSelectRun(t *testing.T) {
	t.Parallel()

	dir, ids := seedHistory(t, compareTarget,
		[]model.Issue{issueTitle, issueEval, issueSecret},
		[]model.Issue{issueTitle, issueEval},
		[]model.Issue{issueEval},
	)

	t.Run("with run id", func(t *testing.T) {
		t.Parallel()

		output, err := runCompareArgs(t, "--db-dir", dir, "-F", "json", "-i", strconv.FormatInt(ids[0], 10), compareTarget)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		var result ComparisonResult
		if err := json.Unmarshal([]byte(output), &result); err != nil {
			t.Fatal(err)
		}
		if result.Previous.ID != ids[0] || result.Current.ID != ids[2] {
			t.Errorf("compared %d with %d", result.Previous.ID, result.Current.ID)
		}
		if len(result.Diff.Resolved) != 2 || result.Direction != directionImproved {
			t.Errorf("unexpected result %+v", result)
		}
	})

	t.Run("since date", func(t *testing.T) {
		t.Parallel()

		output, err := runCompareArgs(t, "--db-dir", dir, "-F", "json", "--since", "2026-03-01", compareTarget)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		var result ComparisonResult
		if err := json.Unmarshal([]byte(output), &result); err != nil {
			t.Fatal(err)
		}
		if result.Previous.ID != ids[0] {
			t.Errorf("expected the first run of the day, got %d", result.Previous.ID)
		}
	})

	t.Run("latest run id is rejected", func(t *testing.T) {
		t.Parallel()

		if _, err := runCompareArgs(t, "--db-dir", dir, "-i", strconv.FormatInt(ids[2], 10), compareTarget); err == nil {
			t.Error("expected error")
		}
	})

	t.Run("unknown run id", func(t *testing.T) {
		t.Parallel()

		_, err := runCompareArgs(t, "--db-dir", dir, "-i", "9999", compareTarget)
		if !errors.Is(err, database.ErrRunNotFound) {
			t.Errorf("expected ErrRunNotFound, got %v", err)
		}
	})

	t.Run("since after last run", func(t *testing.T) {
		t.Parallel()

		if _, err := runCompareArgs(t, "--db-dir", dir, "--since", "2030-01-01", compareTarget); err == nil {
			t.Error("expected error")
		}
	})

	t.Run("invalid date", func(t *testing.T) {
		t.Parallel()

		if _, err := runCompareArgs(t, "--db-dir", dir, "--since", "01/03/2026", compareTarget); err == nil {
			t.Error("expected error")
		}
	})
}

func TestCompareRunOfOtherTarget(t *testing.T) {
	t.Parallel()

	dir, _ := seedHistory(t, compareTarget, []model.Issue{issueTitle}, []model.Issue{issueEval})

	history, err := database.Open(dir)
	if err != nil {
		t.Fatal(err)
	}
	other := model.NewReport("https://example.org", model.ModeLive)
	otherID, err := history.SaveRun(context.Background(), other)
	history.Close()
	if err != nil {
		t.Fatal(err)
	}

	_, err = runCompareArgs(t, "--db-dir", dir, "-i", strconv.FormatInt(otherID, 10), compareTarget)
	if err == nil || !strings.Contains(err.Error(), "belongs to https://example.org") {
		t.Errorf("expected target mismatch error, got %v", err)
	}
}

// TestCompareLists tests the --list and --list-targets views.
func TestCompareLists(t *testing.T) {
	t.Parallel()

	dir, ids := seedHistory(t, compareTarget, []model.Issue{issueTitle}, []model.Issue{issueTitle, issueSecret})

	output, err := runCompareArgs(t, "--db-dir", dir, "--list-targets")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(output, "Audited targets (1)") || !strings.Contains(output, compareTarget) {
		t.Errorf("unexpected targets output:\n%s", output)
	}

	output, err = runCompareArgs(t, "--db-dir", dir, "--list", compareTarget)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(output, "Runs of "+compareTarget+" (2)") {
		t.Errorf("unexpected runs output:\n%s", output)
	}
	if !strings.Contains(output, "C:1 E:1") {
		t.Errorf("expected severity summary of the newest run:\n%s", output)
	}
	var rowIDs []string
	for _, line := range strings.Split(output, "\n") {
		fields := strings.Fields(line)
		if len(fields) > 0 {
			if _, err := strconv.ParseInt(fields[0], 10, 64); err == nil {
				rowIDs = append(rowIDs, fields[0])
			}
		}
	}
	want := []string{strconv.FormatInt(ids[1], 10), strconv.FormatInt(ids[0], 10)}
	if strings.Join(rowIDs, ",") != strings.Join(want, ",") {
		t.Errorf("expected runs %v newest first, got %v", want, rowIDs)
	}
}

// TestCompareErrors tests argument and history errors.
func TestCompareErrors(t *testing.T) {
	t.Parallel()

	single, _ := seedHistory(t, compareTarget, []model.Issue{issueTitle})

	tests := []struct {
		name string
		args []string
		want error
	}{
		{"missing target", []string{"--db-dir", single}, nil},
		{"no history", []string{"--db-dir", t.TempDir(), compareTarget}, database.ErrHistoryNotFound},
		{"single run", []string{"--db-dir", single, compareTarget}, nil},
		{"unknown target", []string{"--db-dir", single, "https://unknown.example"}, nil},
		{"bad format", []string{"--db-dir", single, "-F", "xml", compareTarget}, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			_, err := runCompareArgs(t, tt.args...)
			if err == nil {
				t.Fatal("expected error")
			}
			if tt.want != nil && !errors.Is(err, tt.want) {
				t.Errorf("expected %v, got %v", tt.want, err)
			}
		})
	}
}

func TestFormatSeverities(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		counts map[string]int
		want   string
	}{
		{"nil", nil, "No issues"},
		{"zeros", map[string]int{"error": 0}, "No issues"},
		{"ordered by severity", map[string]int{"info": 3, "critical": 1, "warning": 2}, "C:1 W:2 I:3"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got := formatSeverities(tt.counts); got != tt.want {
				t.Errorf("formatSeverities() = %q, expected %q", got, tt.want)
			}
		})
	}
}

func TestRiskDirection(t *testing.T) {
	t.Parallel()

	run := func(id int64, issues ...model.Issue) *database.Run {
		r := model.NewReport(compareTarget, model.ModeLive)
		r.Add(issues...)
		return &database.Run{ID: id, Report: r}
	}

	tests := []struct {
		name     string
		previous *database.Run
		current  *database.Run
		want     string
	}{
		{"same issues", run(1, issueEval), run(2, issueEval), directionUnchanged},
		{"one critical outweighs warnings", run(1, issueEval, issueEval, issueEval), run(2, issueSecret), directionWorsened},
		{"fixed error", run(1, issueTitle, issueEval), run(2, issueEval), directionImproved},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got := buildComparison(tt.previous, tt.current).Direction; got != tt.want {
				t.Errorf("direction = %q, expected %q", got, tt.want)
			}
		})
	}
}

func TestFormatDelta(t *testing.T) {
	t.Parallel()

	for delta, want := range map[int]string{3: "+3", 0: "0", -2: "-2"} {
		if got := formatDelta(delta); got != want {
			t.Errorf("formatDelta(%d) = %q, expected %q", delta, got, want)
		}
	}
}
