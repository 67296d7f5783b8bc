// Package linter runs eslint, flake8 and php -l over content units and turns
// their output into issues.
//
// The tools are optional. A missing tool or unreadable output becomes one
// bridge error issue for the unit; it never stops the scan.
package linter

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/nao1215/siteaudit/internal/model"
)

// DefaultTimeout bounds one linter process.
const DefaultTimeout = 30 * time.Second

// Runner executes a command and returns its standard output and error.
// A non-zero exit status is reported through err.
type Runner func(ctx context.Context, name string, args ...string) (stdout, stderr string, err error)

var (
	flake8Pattern  = regexp.MustCompile(`^(\d+):(\d+): (.+)$`)
	phpLinePattern = regexp.MustCompile(`on line (\d+)`)
)

// Bridge implements detect.Linter.
type Bridge struct {
	run     Runner
	timeout time.Duration
	logger  *slog.Logger
}

// Option configures a Bridge.
type Option func(*Bridge)

// WithRunner replaces process execution.
func WithRunner(run Runner) Option {
	return func(b *Bridge) {
		b.run = run
	}
}

// WithTimeout overrides DefaultTimeout.
func WithTimeout(timeout time.Duration) Option {
	return func(b *Bridge) {
		b.timeout = timeout
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(b *Bridge) {
		b.logger = logger
	}
}

// New creates a Bridge that runs the tools found in PATH.
func New(opts ...Option) *Bridge {
	b := &Bridge{
		run:     execRunner,
		timeout: DefaultTimeout,
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

func execRunner(ctx context.Context, name string, args ...string) (string, string, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	err := cmd.Run()
	return stdout.String(), stderr.String(), err
}

// Lint runs the linter for the unit kind. Units extracted from a page are skipped.
func (b *Bridge) Lint(unit model.ContentUnit) []model.Issue {
	if unit.IsEmbedded() {
		return nil
	}
	switch unit.Kind {
	case model.KindJS:
		return b.eslint(unit, ".js", "JS_ESLINT", "JS_ESLINT_ERROR")
	case model.KindJSX:
		ext := ".jsx"
		if strings.HasSuffix(strings.ToLower(unit.Location), ".tsx") {
			ext = ".tsx"
		}
		return b.eslint(unit, ext, "REACT_ESLINT", "ESLINT_ERROR")
	case model.KindTS:
		return b.eslint(unit, ".ts", "TS_ESLINT", "ESLINT_ERROR")
	case model.KindPython:
		return b.flake8(unit)
	case model.KindPHP:
		return b.phpLint(unit)
	default:
		return nil
	}
}

type eslintFile struct {
	Messages []struct {
		RuleID  string `json:"ruleId"`
		Message string `json:"message"`
		Line    int    `json:"line"`
		Column  int    `json:"column"`
	} `json:"messages"`
}

func (b *Bridge) eslint(unit model.ContentUnit, ext, issueType, errorType string) []model.Issue {
	stdout, _, err := b.runOnScratch(unit, ext, "eslint", "-f", "json")
	if err != nil && (stdout == "" || !isExitError(err)) {
		return []model.Issue{model.NewIssue(errorType, unit.Location, "ESLint error: "+err.Error())}
	}
	if strings.TrimSpace(stdout) == "" {
		return nil
	}

	var files []eslintFile
	if err := json.Unmarshal([]byte(stdout), &files); err != nil {
		return []model.Issue{model.NewIssue(errorType, unit.Location, "ESLint error: "+err.Error())}
	}

	var issues []model.Issue
	for _, f := range files {
		for _, m := range f.Messages {
			msg := m.Message
			if m.RuleID != "" {
				msg = fmt.Sprintf("%s (rule: %s)", m.Message, m.RuleID)
			}
			issues = append(issues, model.NewIssue(issueType, unit.Location, msg,
				model.WithLine(m.Line), model.WithColumn(m.Column)))
		}
	}
	return issues
}

func (b *Bridge) flake8(unit model.ContentUnit) []model.Issue {
	stdout, _, err := b.runOnScratch(unit, ".py", "flake8", "--format=%(row)d:%(col)d: %(code)s %(text)s")
	if err != nil && (stdout == "" || !isExitError(err)) {
		return []model.Issue{model.NewIssue("PY_FLAKE8_ERROR", unit.Location, "flake8 error: "+err.Error())}
	}

	var issues []model.Issue
	for _, line := range strings.Split(strings.TrimSpace(stdout), "\n") {
		if line == "" {
			continue
		}
		m := flake8Pattern.FindStringSubmatch(line)
		if m == nil {
			issues = append(issues, model.NewIssue("PY_FLAKE8", unit.Location, line))
			continue
		}
		row, _ := strconv.Atoi(m[1])
		col, _ := strconv.Atoi(m[2])
		issues = append(issues, model.NewIssue("PY_FLAKE8", unit.Location, m[3],
			model.WithLine(row), model.WithColumn(col)))
	}
	return issues
}

func (b *Bridge) phpLint(unit model.ContentUnit) []model.Issue {
	stdout, stderr, err := b.runOnScratch(unit, ".php", "php", "-l")
	output := stdout + stderr
	if err != nil && !isExitError(err) {
		return []model.Issue{model.NewIssue("PHP_LINT_ERROR", unit.Location, "php -l error: "+err.Error())}
	}
	if !strings.Contains(output, "Parse error") {
		return nil
	}

	line := model.LineUnknown
	if m := phpLinePattern.FindStringSubmatch(output); m != nil {
		line, _ = strconv.Atoi(m[1])
	}
	return []model.Issue{model.NewIssue("PHP_PARSE_ERROR", unit.Location, strings.TrimSpace(output), model.WithLine(line))}
}

// runOnScratch writes the unit to a file in a fresh temporary directory,
// runs the tool with the file as last argument and removes the directory.
func (b *Bridge) runOnScratch(unit model.ContentUnit, ext, name string, args ...string) (string, string, error) {
	dir, err := os.MkdirTemp("", "siteaudit-lint-*")
	if err != nil {
		return "", "", fmt.Errorf("failed to create scratch directory: %w", err)
	}
	defer func() {
		if err := os.RemoveAll(dir); err != nil {
			b.logger.Debug("failed to remove scratch directory", "dir", dir, "error", err)
		}
	}()

	file := filepath.Join(dir, "scratch"+ext)
	if err := os.WriteFile(file, []byte(unit.Content), 0o600); err != nil {
		return "", "", fmt.Errorf("failed to write scratch file: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), b.timeout)
	defer cancel()

	stdout, stderr, err := b.run(ctx, name, append(args, file)...)
	b.logger.Debug("ran linter", "tool", name, "location", unit.Location, "error", err)
	return strings.ReplaceAll(stdout, file, unit.Location), strings.ReplaceAll(stderr, file, unit.Location), err
}

// exitCoder is implemented by *exec.ExitError.
type exitCoder interface {
	ExitCode() int
}

// isExitError reports whether the tool ran and exited with a non-zero
// status, which linters use to signal findings.
func isExitError(err error) bool {
	var exitErr exitCoder
	return errors.As(err, &exitErr)
}
