package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite" // SQLite driver

	"github.com/nao1215/siteaudit/internal/model"
)

// FileName is the database file created inside the data directory.
const FileName = "history.db"

// timeFormat is fixed width so that stored timestamps sort lexically.
const timeFormat = "2006-01-02T15:04:05.000000000Z"

// History stores past audit runs in SQLite.
type History struct {
	db     *sql.DB
	dbPath string
}

// Option configures Open.
type Option func(*options)

type options struct {
	create bool
	wal    bool
}

// WithCreate controls whether a missing database is created. Default true.
func WithCreate(create bool) Option {
	return func(o *options) {
		o.create = create
	}
}

// WithWAL controls Write-Ahead Logging. Default true.
func WithWAL(wal bool) Option {
	return func(o *options) {
		o.wal = wal
	}
}

// Open opens or creates the history database in dir.
func Open(dir string, opts ...Option) (*History, error) {
	o := options{create: true, wal: true}
	for _, opt := range opts {
		opt(&o)
	}

	dbPath := filepath.Join(dir, FileName)
	mode := "rwc"
	if o.create {
		if err := os.MkdirAll(dir, 0750); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	} else {
		if _, err := os.Stat(dbPath); errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrHistoryNotFound, dbPath)
		} else if err != nil {
			return nil, fmt.Errorf("failed to check database path: %w", err)
		}
		mode = "rw"
	}

	db, err := sql.Open("sqlite", dbPath+"?mode="+mode)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(time.Hour)

	h := &History{db: db, dbPath: dbPath}

	if o.wal {
		if _, err := db.ExecContext(context.Background(), "PRAGMA journal_mode=WAL"); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
		}
	}
	if err := h.createTables(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to create tables: %w", err)
	}
	return h, nil
}

// Path returns the database file path.
func (h *History) Path() string {
	return h.dbPath
}

// Close closes the database connection.
func (h *History) Close() error {
	return h.db.Close()
}

func (h *History) createTables() error {
	schema := `
	CREATE TABLE IF NOT EXISTS runs (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		target TEXT NOT NULL,
		mode TEXT NOT NULL,
		started_at TEXT NOT NULL,
		duration_ns INTEGER NOT NULL DEFAULT 0,
		units_scanned INTEGER NOT NULL DEFAULT 0,
		pages_crawled INTEGER NOT NULL DEFAULT 0,
		error TEXT NOT NULL DEFAULT '',
		issue_count INTEGER NOT NULL DEFAULT 0,
		severity_summary TEXT,
		issues_json TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_runs_target ON runs(target);
	CREATE INDEX IF NOT EXISTS idx_runs_started ON runs(started_at);
	`
	_, err := h.db.ExecContext(context.Background(), schema)
	return err
}

// Run is a stored report with its database ID.
type Run struct {
	ID int64
	*model.Report
}

// RunSummary describes a stored run without its issues.
type RunSummary struct {
	ID         int64
	Target     string
	Mode       string
	StartedAt  time.Time
	IssueCount int
	Failed     bool

	// Severities counts issues per severity name.
	Severities map[string]int
}

// SaveRun stores a report and returns its ID.
func (h *History) SaveRun(ctx context.Context, report *model.Report) (int64, error) {
	issues := report.Issues
	if issues == nil {
		issues = []model.Issue{}
	}
	issuesJSON, err := json.Marshal(issues)
	if err != nil {
		return 0, fmt.Errorf("failed to serialize issues: %w", err)
	}

	summary := make(map[string]int)
	for s, n := range report.CountBySeverity() {
		summary[s.String()] = n
	}
	summaryJSON, err := json.Marshal(summary)
	if err != nil {
		return 0, fmt.Errorf("failed to serialize severity summary: %w", err)
	}

	query := `
	INSERT INTO runs (target, mode, started_at, duration_ns, units_scanned, pages_crawled,
		error, issue_count, severity_summary, issues_json)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	result, err := h.db.ExecContext(ctx, query,
		report.Target,
		report.Mode,
		report.StartedAt.UTC().Format(timeFormat),
		int64(report.Duration),
		report.UnitsScanned,
		report.PagesCrawled,
		report.Error,
		len(issues),
		string(summaryJSON),
		string(issuesJSON),
	)
	if err != nil {
		return 0, fmt.Errorf("failed to save run: %w", err)
	}
	return result.LastInsertId()
}

const runColumns = `id, target, mode, started_at, duration_ns, units_scanned, pages_crawled, error, issues_json`

// GetRun loads one run by ID.
func (h *History) GetRun(ctx context.Context, id int64) (*Run, error) {
	row := h.db.QueryRowContext(ctx, `SELECT `+runColumns+` FROM runs WHERE id = ?`, id)
	run, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %d", ErrRunNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get run %d: %w", id, err)
	}
	return run, nil
}

// LatestRuns loads the n most recent runs of target, newest first.
func (h *History) LatestRuns(ctx context.Context, target string, n int) ([]*Run, error) {
	query := `SELECT ` + runColumns + ` FROM runs WHERE target = ? ORDER BY started_at DESC, id DESC LIMIT ?`
	rows, err := h.db.QueryContext(ctx, query, target, n)
	if err != nil {
		return nil, fmt.Errorf("failed to query runs: %w", err)
	}
	defer rows.Close()

	var runs []*Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan run: %w", err)
		}
		runs = append(runs, run)
	}
	return runs, rows.Err()
}

// ListRuns returns run summaries, newest first. An empty target lists all
// targets; limit <= 0 means no limit.
func (h *History) ListRuns(ctx context.Context, target string, limit int) ([]RunSummary, error) {
	query := `
	SELECT id, target, mode, started_at, issue_count, error, severity_summary
	FROM runs
	WHERE 1=1
	`
	args := make([]any, 0, 2)
	if target != "" {
		query += " AND target = ?"
		args = append(args, target)
	}
	query += " ORDER BY started_at DESC, id DESC"
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := h.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}
	defer rows.Close()

	var results []RunSummary
	for rows.Next() {
		var (
			s         RunSummary
			startedAt string
			runErr    string
			summary   sql.NullString
		)
		if err := rows.Scan(&s.ID, &s.Target, &s.Mode, &startedAt, &s.IssueCount, &runErr, &summary); err != nil {
			return nil, fmt.Errorf("failed to scan run summary: %w", err)
		}
		s.StartedAt = parseTimestamp(startedAt)
		s.Failed = runErr != ""
		s.Severities = make(map[string]int)
		if summary.Valid && summary.String != "" {
			if err := json.Unmarshal([]byte(summary.String), &s.Severities); err != nil {
				s.Severities = make(map[string]int)
			}
		}
		results = append(results, s)
	}
	return results, rows.Err()
}

// ListTargets returns every target with at least one stored run.
func (h *History) ListTargets(ctx context.Context) ([]string, error) {
	rows, err := h.db.QueryContext(ctx, `SELECT DISTINCT target FROM runs ORDER BY target`)
	if err != nil {
		return nil, fmt.Errorf("failed to list targets: %w", err)
	}
	defer rows.Close()

	var targets []string
	for rows.Next() {
		var target string
		if err := rows.Scan(&target); err != nil {
			return nil, fmt.Errorf("failed to scan target: %w", err)
		}
		targets = append(targets, target)
	}
	return targets, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRun(row rowScanner) (*Run, error) {
	var (
		run        = &Run{Report: &model.Report{}}
		startedAt  string
		durationNS int64
		issuesJSON string
	)
	err := row.Scan(
		&run.ID,
		&run.Target,
		&run.Mode,
		&startedAt,
		&durationNS,
		&run.UnitsScanned,
		&run.PagesCrawled,
		&run.Error,
		&issuesJSON,
	)
	if err != nil {
		return nil, err
	}
	run.StartedAt = parseTimestamp(startedAt)
	run.Duration = time.Duration(durationNS)
	if err := json.Unmarshal([]byte(issuesJSON), &run.Issues); err != nil {
		return nil, fmt.Errorf("failed to parse issues of run %d: %w", run.ID, err)
	}
	return run, nil
}

var timestampFormats = []string{
	timeFormat,
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
}

// parseTimestamp returns the zero time when no format matches.
func parseTimestamp(s string) time.Time {
	for _, format := range timestampFormats {
		if t, err := time.Parse(format, s); err == nil {
			return t
		}
	}
	return time.Time{}
}
