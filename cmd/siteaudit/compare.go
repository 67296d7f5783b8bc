package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/nao1215/markdown"
	"github.com/spf13/cobra"

	"github.com/nao1215/siteaudit/internal/config"
	"github.com/nao1215/siteaudit/internal/database"
	"github.com/nao1215/siteaudit/internal/model"
)

// Directions of the overall change between two runs.
const (
	directionWorsened  = "worsened"
	directionImproved  = "improved"
	directionUnchanged = "unchanged"
)

// NewCompareCmd creates the compare command.
func NewCompareCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "compare [target]",
		Short: "Compare two stored runs of a target",
		Long: `Compare shows how the issues of a target changed between two runs
stored by 'siteaudit scan':
- new issues that appeared in the later run
- resolved issues that are gone
- the change of the issue count per severity

Issues are matched by type, location and message, so a finding that only
moved to another line counts as unchanged.

Examples:
  # Compare the latest two runs
  siteaudit compare https://example.com

  # List the stored runs of a target
  siteaudit compare --list https://example.com

  # Compare the latest run with run 5
  siteaudit compare --with-run-id 5 https://example.com

  # Compare with the first run since a date
  siteaudit compare --since 2026-01-01 ./web

  # List every target in the history
  siteaudit compare --list-targets`,
		Args: cobra.MaximumNArgs(1),
		RunE: runCompareCmd,
	}

	cmd.Flags().BoolP("list", "l", false, "List the stored runs of the target")
	cmd.Flags().BoolP("list-targets", "L", false, "List every target in the history")
	cmd.Flags().Int64P("with-run-id", "i", 0, "Compare the latest run with this run ID")
	cmd.Flags().StringP("since", "s", "", "Compare with the first run on or after this date (YYYY-MM-DD)")
	cmd.Flags().StringP("format", "F", "plain", "Output format: plain, json, markdown")
	cmd.Flags().String("db-dir", config.XDGDataDir(), "Directory of the history database")

	return cmd
}

// compareOptions are the parsed compare flags.
type compareOptions struct {
	target    string
	withRunID int64
	since     string
	format    string
}

func runCompareCmd(cmd *cobra.Command, args []string) error {
	listTargets, err := cmd.Flags().GetBool("list-targets")
	if err != nil {
		return err
	}
	listRuns, err := cmd.Flags().GetBool("list")
	if err != nil {
		return err
	}
	dbDir, err := cmd.Flags().GetString("db-dir")
	if err != nil {
		return err
	}

	opts := compareOptions{}
	if opts.withRunID, err = cmd.Flags().GetInt64("with-run-id"); err != nil {
		return err
	}
	if opts.since, err = cmd.Flags().GetString("since"); err != nil {
		return err
	}
	if opts.format, err = cmd.Flags().GetString("format"); err != nil {
		return err
	}

	// Validate before opening the database.
	if !listTargets {
		if len(args) == 0 {
			return errors.New("target is required (use --list-targets to see stored targets)")
		}
		opts.target = args[0]
	}
	switch opts.format {
	case "plain", "json", "markdown":
	default:
		return fmt.Errorf("unknown compare format %q: use plain, json or markdown", opts.format)
	}

	history, err := database.Open(dbDir, database.WithCreate(false))
	if err != nil {
		if errors.Is(err, database.ErrHistoryNotFound) {
			return fmt.Errorf("%w (run 'siteaudit scan' first)", err)
		}
		return err
	}
	defer history.Close()

	ctx := cmd.Context()
	out := cmd.OutOrStdout()
	switch {
	case listTargets:
		return printTargets(ctx, out, history)
	case listRuns:
		return printRuns(ctx, out, history, opts.target)
	}

	result, err := compareRuns(ctx, history, opts)
	if err != nil {
		return err
	}
	switch opts.format {
	case "json":
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(result)
	case "markdown":
		return writeComparisonMarkdown(out, result)
	default:
		writeComparisonText(out, result)
		return nil
	}
}

func printTargets(ctx context.Context, out io.Writer, history *database.History) error {
	targets, err := history.ListTargets(ctx)
	if err != nil {
		return err
	}
	if len(targets) == 0 {
		fmt.Fprintln(out, "No targets found in the history.")
		return nil
	}
	fmt.Fprintf(out, "Audited targets (%d):\n\n", len(targets))
	for _, target := range targets {
		fmt.Fprintf(out, "  - %s\n", target)
	}
	fmt.Fprintln(out, "\nUse 'siteaudit compare --list <target>' to see the runs of a target.")
	return nil
}

func printRuns(ctx context.Context, out io.Writer, history *database.History, target string) error {
	runs, err := history.ListRuns(ctx, target, 0)
	if err != nil {
		return err
	}
	if len(runs) == 0 {
		fmt.Fprintf(out, "No runs found for %s\n", target)
		return nil
	}

	fmt.Fprintf(out, "Runs of %s (%d):\n\n", target, len(runs))
	fmt.Fprintf(out, "  %-6s  %-20s  %-10s  %s\n", "ID", "Date", "Mode", "Severity Summary")
	fmt.Fprintln(out, "  "+strings.Repeat("-", 64))
	for _, run := range runs {
		summary := formatSeverities(run.Severities)
		if run.Failed {
			summary += " (failed)"
		}
		fmt.Fprintf(out, "  %-6d  %-20s  %-10s  %s\n",
			run.ID, run.StartedAt.Local().Format("2006-01-02 15:04:05"), run.Mode, summary)
	}
	return nil
}

// formatSeverities renders counts as "C:1 E:2 W:0 I:3", skipping zeros.
func formatSeverities(counts map[string]int) string {
	var parts []string
	for _, s := range model.AllSeverities() {
		if n := counts[s.String()]; n > 0 {
			parts = append(parts, fmt.Sprintf("%c:%d", strings.ToUpper(s.String())[0], n))
		}
	}
	if len(parts) == 0 {
		return "No issues"
	}
	return strings.Join(parts, " ")
}

// ComparisonResult is the outcome of comparing two runs of a target.
type ComparisonResult struct {
	Target   string          `json:"target"`
	Previous RunInfo         `json:"previous"`
	Current  RunInfo         `json:"current"`
	Diff     model.IssueDiff `json:"diff"`

	// Direction is "improved", "worsened" or "unchanged", from the
	// severity-weighted issue counts.
	Direction string `json:"direction"`
}

// RunInfo describes one side of a comparison.
type RunInfo struct {
	ID         int64          `json:"id"`
	StartedAt  time.Time      `json:"started_at"`
	Total      int            `json:"total"`
	Severities map[string]int `json:"severities"`
}

func compareRuns(ctx context.Context, history *database.History, opts compareOptions) (*ComparisonResult, error) {
	latest, err := history.LatestRuns(ctx, opts.target, 2)
	if err != nil {
		return nil, err
	}
	if len(latest) == 0 {
		return nil, fmt.Errorf("no runs found for %s", opts.target)
	}
	current := latest[0]

	var previous *database.Run
	switch {
	case opts.withRunID > 0:
		previous, err = history.GetRun(ctx, opts.withRunID)
		if err != nil {
			return nil, fmt.Errorf("failed to load run %d: %w", opts.withRunID, err)
		}
		if previous.Target != opts.target {
			return nil, fmt.Errorf("run %d belongs to %s, not %s", opts.withRunID, previous.Target, opts.target)
		}
		if previous.ID == current.ID {
			return nil, fmt.Errorf("run %d is the latest run; pick an older one", opts.withRunID)
		}
	case opts.since != "":
		previous, err = firstRunSince(ctx, history, opts.target, opts.since)
		if err != nil {
			return nil, err
		}
		if previous.ID == current.ID {
			return nil, fmt.Errorf("only one run found since %s; at least 2 are required", opts.since)
		}
	default:
		if len(latest) < 2 {
			return nil, fmt.Errorf("at least 2 runs are required for comparison (found %d)", len(latest))
		}
		previous = latest[1]
	}

	return buildComparison(previous, current), nil
}

// firstRunSince returns the oldest run of target started on or after date.
func firstRunSince(ctx context.Context, history *database.History, target, date string) (*database.Run, error) {
	since, err := time.ParseInLocation("2006-01-02", date, time.Local)
	if err != nil {
		return nil, fmt.Errorf("invalid date format (use YYYY-MM-DD): %w", err)
	}
	runs, err := history.ListRuns(ctx, target, 0)
	if err != nil {
		return nil, err
	}
	// Newest first, so walk backwards.
	for i := len(runs) - 1; i >= 0; i-- {
		if !runs[i].StartedAt.Before(since) {
			return history.GetRun(ctx, runs[i].ID)
		}
	}
	return nil, fmt.Errorf("no runs found since %s", date)
}

func buildComparison(previous, current *database.Run) *ComparisonResult {
	result := &ComparisonResult{
		Target:   current.Target,
		Previous: runInfo(previous),
		Current:  runInfo(current),
		Diff:     model.Diff(previous.Issues, current.Issues),
	}

	before, after := riskScore(result.Previous.Severities), riskScore(result.Current.Severities)
	switch {
	case after < before:
		result.Direction = directionImproved
	case after > before:
		result.Direction = directionWorsened
	default:
		result.Direction = directionUnchanged
	}
	return result
}

func runInfo(run *database.Run) RunInfo {
	severities := make(map[string]int)
	for s, n := range run.CountBySeverity() {
		severities[s.String()] = n
	}
	return RunInfo{
		ID:         run.ID,
		StartedAt:  run.StartedAt,
		Total:      len(run.Issues),
		Severities: severities,
	}
}

// riskScore weights issue counts so that one critical issue outweighs many
// informational ones.
func riskScore(counts map[string]int) int {
	return counts[model.SeverityCritical.String()]*100 +
		counts[model.SeverityError.String()]*25 +
		counts[model.SeverityWarning.String()]*5 +
		counts[model.SeverityInfo.String()]
}

func writeComparisonText(out io.Writer, r *ComparisonResult) {
	fmt.Fprintf(out, "Run Comparison: %s\n", r.Target)
	fmt.Fprintln(out, strings.Repeat("=", 60))
	fmt.Fprintf(out, "\nStatus: %s\n", formatDirection(r.Direction))
	fmt.Fprintf(out, "\nPrevious run: #%d %s\n", r.Previous.ID, r.Previous.StartedAt.Local().Format("2006-01-02 15:04:05"))
	fmt.Fprintf(out, "Current run:  #%d %s\n", r.Current.ID, r.Current.StartedAt.Local().Format("2006-01-02 15:04:05"))

	fmt.Fprintln(out, "\nIssues by severity:")
	fmt.Fprintf(out, "  %-10s  %-10s  %-10s  %s\n", "Severity", "Previous", "Current", "Change")
	fmt.Fprintln(out, "  "+strings.Repeat("-", 45))
	for _, s := range model.AllSeverities() {
		name := s.String()
		prev, cur := r.Previous.Severities[name], r.Current.Severities[name]
		fmt.Fprintf(out, "  %-10s  %-10d  %-10d  %s\n", capitalize(name), prev, cur, formatDelta(cur-prev))
	}
	fmt.Fprintln(out, "  "+strings.Repeat("-", 45))
	fmt.Fprintf(out, "  %-10s  %-10d  %-10d  %s\n", "Total",
		r.Previous.Total, r.Current.Total, formatDelta(r.Current.Total-r.Previous.Total))

	if len(r.Diff.New) > 0 {
		fmt.Fprintf(out, "\nNew issues (%d):\n", len(r.Diff.New))
		for _, issue := range r.Diff.New {
			fmt.Fprintf(out, "  [+] [%s] %s: %s\n", issue.Type, issueLocation(issue), issue.Message)
		}
	}
	if len(r.Diff.Resolved) > 0 {
		fmt.Fprintf(out, "\nResolved issues (%d):\n", len(r.Diff.Resolved))
		for _, issue := range r.Diff.Resolved {
			fmt.Fprintf(out, "  [-] [%s] %s: %s\n", issue.Type, issueLocation(issue), issue.Message)
		}
	}
	fmt.Fprintf(out, "\nUnchanged: %d issues\n", r.Diff.Unchanged)
}

func writeComparisonMarkdown(out io.Writer, r *ComparisonResult) error {
	md := markdown.NewMarkdown(out)
	md.H1("Run Comparison: " + r.Target)
	md.PlainText("")
	md.PlainText("**Status:** " + formatDirection(r.Direction))
	md.PlainText("")

	rows := [][]string{{
		"Date",
		r.Previous.StartedAt.Local().Format("2006-01-02 15:04"),
		r.Current.StartedAt.Local().Format("2006-01-02 15:04"),
		"-",
	}}
	for _, s := range model.AllSeverities() {
		name := s.String()
		prev, cur := r.Previous.Severities[name], r.Current.Severities[name]
		rows = append(rows, []string{capitalize(name), strconv.Itoa(prev), strconv.Itoa(cur), formatDelta(cur - prev)})
	}
	rows = append(rows, []string{
		"**Total**",
		strconv.Itoa(r.Previous.Total),
		strconv.Itoa(r.Current.Total),
		formatDelta(r.Current.Total - r.Previous.Total),
	})
	md.Table(markdown.TableSet{
		Header: []string{"Metric", "Previous", "Current", "Change"},
		Rows:   rows,
	})
	md.PlainText("")

	if len(r.Diff.New) > 0 {
		md.H2(fmt.Sprintf("New Issues (%d)", len(r.Diff.New)))
		md.PlainText("")
		items := make([]string, 0, len(r.Diff.New))
		for _, issue := range r.Diff.New {
			items = append(items, fmt.Sprintf("**[%s]** `%s`: %s", issue.Type, issueLocation(issue), issue.Message))
		}
		md.BulletList(items...)
		md.PlainText("")
	}
	if len(r.Diff.Resolved) > 0 {
		md.H2(fmt.Sprintf("Resolved Issues (%d)", len(r.Diff.Resolved)))
		md.PlainText("")
		items := make([]string, 0, len(r.Diff.Resolved))
		for _, issue := range r.Diff.Resolved {
			items = append(items, fmt.Sprintf("~~**[%s]** `%s`: %s~~", issue.Type, issueLocation(issue), issue.Message))
		}
		md.BulletList(items...)
		md.PlainText("")
	}

	md.HorizontalRule()
	md.PlainText("")
	md.PlainText(fmt.Sprintf("*%d issues unchanged*", r.Diff.Unchanged))
	return md.Build()
}

func issueLocation(issue model.Issue) string {
	if issue.HasLine() {
		return fmt.Sprintf("%s:%d", issue.Location, issue.Line)
	}
	return issue.Location
}

func formatDirection(direction string) string {
	switch direction {
	case directionImproved:
		return "IMPROVED (fewer or less severe issues)"
	case directionWorsened:
		return "WORSENED (more or more severe issues)"
	default:
		return "UNCHANGED"
	}
}

func formatDelta(delta int) string {
	if delta > 0 {
		return "+" + strconv.Itoa(delta)
	}
	return strconv.Itoa(delta)
}

func capitalize(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}
