package database

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/nao1215/siteaudit/internal/model"
)

// setupTestDB creates a temporary database for testing.
func setupTestDB(t *testing.T) *History {
	t.Helper()

	h, err := Open(t.TempDir())
	if err != nil {
		t.Fatalf("failed to open database: %v", err)
	}
	t.Cleanup(func() { _ = h.Close() })
	return h
}

func newRun(target string, started time.Time, issues ...model.Issue) *model.Report {
	r := model.NewReport(target, model.ModeRepository)
	r.StartedAt = started
	r.Duration = 1500 * time.Millisecond
	r.UnitsScanned = 4
	r.Add(issues...)
	return r
}

// TestOpen tests database opening and creation.
func TestOpen(t *testing.T) {
	t.Parallel()

	t.Run("creates database in new directory", func(t *testing.T) {
		t.Parallel()

		dir := filepath.Join(t.TempDir(), "data", "siteaudit")
		h, err := Open(dir)
		if err != nil {
			t.Fatalf("failed to open database: %v", err)
		}
		defer h.Close()

		if _, err := os.Stat(filepath.Join(dir, FileName)); err != nil {
			t.Errorf("database file was not created: %v", err)
		}
		if h.Path() != filepath.Join(dir, FileName) {
			t.Errorf("unexpected path %q", h.Path())
		}
	})

	t.Run("without create fails when missing", func(t *testing.T) {
		t.Parallel()

		_, err := Open(t.TempDir(), WithCreate(false))
		if !errors.Is(err, ErrHistoryNotFound) {
			t.Errorf("expected ErrHistoryNotFound, got %v", err)
		}
	})

	t.Run("without create opens existing database", func(t *testing.T) {
		t.Parallel()

		dir := t.TempDir()
		h, err := Open(dir, WithWAL(false))
		if err != nil {
			t.Fatalf("failed to create database: %v", err)
		}
		_ = h.Close()

		h, err = Open(dir, WithCreate(false))
		if err != nil {
			t.Fatalf("failed to reopen database: %v", err)
		}
		_ = h.Close()
	})
}

// TestSaveAndGetRun tests that a stored run loads back unchanged.
func TestSaveAndGetRun(t *testing.T) {
	t.Parallel()

	h := setupTestDB(t)
	ctx := context.Background()

	started := time.Date(2026, 3, 1, 10, 0, 0, 123, time.UTC)
	report := newRun("./site", started,
		model.NewIssue("JS_EVAL", "app.js", "eval", model.WithLine(3), model.WithColumn(2), model.WithContext("eval(x)")),
		model.NewIssue("SEO_MISSING_TITLE", "index.html", "title"),
	)

	id, err := h.SaveRun(ctx, report)
	if err != nil {
		t.Fatalf("SaveRun failed: %v", err)
	}
	if id <= 0 {
		t.Fatalf("unexpected id %d", id)
	}

	run, err := h.GetRun(ctx, id)
	if err != nil {
		t.Fatalf("GetRun failed: %v", err)
	}
	if run.ID != id || run.Target != "./site" || run.Mode != "repository" {
		t.Errorf("unexpected run metadata %+v", run)
	}
	if !run.StartedAt.Equal(started) {
		t.Errorf("got started %v, expected %v", run.StartedAt, started)
	}
	if run.Duration != 1500*time.Millisecond || run.UnitsScanned != 4 {
		t.Errorf("unexpected duration or unit count: %v %d", run.Duration, run.UnitsScanned)
	}
	if len(run.Issues) != 2 {
		t.Fatalf("expected 2 issues, got %d", len(run.Issues))
	}
	first := run.Issues[0]
	if first.Type != "JS_EVAL" || first.Line != 3 || first.Column != 2 || first.Context != "eval(x)" {
		t.Errorf("unexpected first issue %+v", first)
	}
	if first.Severity != model.Classify("JS_EVAL") {
		t.Errorf("severity not preserved: %s", first.Severity)
	}

	t.Run("missing run", func(t *testing.T) {
		t.Parallel()

		_, err := h.GetRun(ctx, id+100)
		if !errors.Is(err, ErrRunNotFound) {
			t.Errorf("expected ErrRunNotFound, got %v", err)
		}
	})
}

func TestLatestAndListRuns(t *testing.T) {
	t.Parallel()

	h := setupTestDB(t)
	ctx := context.Background()
	base := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

	eval := model.NewIssue("JS_EVAL", "app.js", "eval")
	title := model.NewIssue("SEO_MISSING_TITLE", "index.html", "title")

	for i, r := range []*model.Report{
		newRun("./site", base, eval),
		newRun("https://example.com", base.Add(time.Minute)),
		newRun("./site", base.Add(2*time.Minute), eval, title),
		newRun("./site", base.Add(3*time.Minute), title),
	} {
		if _, err := h.SaveRun(ctx, r); err != nil {
			t.Fatalf("SaveRun %d failed: %v", i, err)
		}
	}

	t.Run("latest two of a target", func(t *testing.T) {
		t.Parallel()

		runs, err := h.LatestRuns(ctx, "./site", 2)
		if err != nil {
			t.Fatalf("LatestRuns failed: %v", err)
		}
		if len(runs) != 2 {
			t.Fatalf("expected 2 runs, got %d", len(runs))
		}
		if !runs[0].StartedAt.After(runs[1].StartedAt) {
			t.Error("expected newest run first")
		}
		if len(runs[0].Issues) != 1 || len(runs[1].Issues) != 2 {
			t.Errorf("unexpected issue counts %d, %d", len(runs[0].Issues), len(runs[1].Issues))
		}

		diff := model.Diff(runs[1].Issues, runs[0].Issues)
		if len(diff.New) != 0 || len(diff.Resolved) != 1 || diff.Unchanged != 1 {
			t.Errorf("unexpected diff %+v", diff)
		}
	})

	t.Run("list all targets", func(t *testing.T) {
		t.Parallel()

		runs, err := h.ListRuns(ctx, "", 0)
		if err != nil {
			t.Fatalf("ListRuns failed: %v", err)
		}
		if len(runs) != 4 {
			t.Fatalf("expected 4 runs, got %d", len(runs))
		}
		if runs[0].IssueCount != 1 || runs[0].Target != "./site" {
			t.Errorf("unexpected newest summary %+v", runs[0])
		}
		if runs[1].Severities[model.Classify("JS_EVAL").String()] == 0 {
			t.Errorf("expected severity summary, got %v", runs[1].Severities)
		}
	})

	t.Run("list with target and limit", func(t *testing.T) {
		t.Parallel()

		runs, err := h.ListRuns(ctx, "https://example.com", 5)
		if err != nil {
			t.Fatalf("ListRuns failed: %v", err)
		}
		if len(runs) != 1 || runs[0].IssueCount != 0 {
			t.Errorf("unexpected runs %+v", runs)
		}

		runs, err = h.ListRuns(ctx, "", 3)
		if err != nil {
			t.Fatalf("ListRuns failed: %v", err)
		}
		if len(runs) != 3 {
			t.Errorf("expected limit to apply, got %d", len(runs))
		}
	})

	t.Run("targets", func(t *testing.T) {
		t.Parallel()

		targets, err := h.ListTargets(ctx)
		if err != nil {
			t.Fatalf("ListTargets failed: %v", err)
		}
		if len(targets) != 2 || targets[0] != "./site" {
			t.Errorf("unexpected targets %v", targets)
		}
	})
}

func TestFailedRun(t *testing.T) {
	t.Parallel()

	h := setupTestDB(t)
	ctx := context.Background()

	r := model.NewReport("https://down.example", model.ModeLive)
	r.Error = "root unreachable"
	id, err := h.SaveRun(ctx, r)
	if err != nil {
		t.Fatalf("SaveRun failed: %v", err)
	}

	run, err := h.GetRun(ctx, id)
	if err != nil {
		t.Fatalf("GetRun failed: %v", err)
	}
	if !run.Failed() || run.Mode != "live" {
		t.Errorf("unexpected run %+v", run.Report)
	}

	summaries, err := h.ListRuns(ctx, "https://down.example", 0)
	if err != nil {
		t.Fatalf("ListRuns failed: %v", err)
	}
	if len(summaries) != 1 || !summaries[0].Failed {
		t.Errorf("unexpected summaries %+v", summaries)
	}
}

func TestParseTimestamp(t *testing.T) {
	t.Parallel()

	tests := []struct {
		input string
		zero  bool
	}{
		{"2026-03-01T10:00:00.000000000Z", false},
		{"2026-03-01T10:00:00Z", false},
		{"2026-03-01 10:00:00", false},
		{"yesterday", true},
	}
	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			t.Parallel()

			if got := parseTimestamp(tt.input); got.IsZero() != tt.zero {
				t.Errorf("parseTimestamp(%q) = %v", tt.input, got)
			}
		})
	}
}
