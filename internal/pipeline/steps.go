package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/nao1215/siteaudit/internal/model"
)

// ErrNoAuditor is returned by AuditStep when no auditor handles the mode.
var ErrNoAuditor = errors.New("no auditor configured for mode")

// RepositoryWalker audits a local directory or git URL.
// *walker.Walker satisfies it.
type RepositoryWalker interface {
	Walk(ctx context.Context, root string, opts model.AnalysisOptions) (*model.Report, error)
}

// SiteAuditor audits a running website.
// *crawler.Crawler satisfies it.
type SiteAuditor interface {
	Audit(ctx context.Context, target string, opts model.AnalysisOptions) (*model.Report, error)
}

// AuditStep produces the report with the walker or the crawler, chosen by
// State.Options.Mode.
type AuditStep struct {
	walker  RepositoryWalker
	crawler SiteAuditor
	logger  *slog.Logger
}

// AuditStepOption configures an AuditStep.
type AuditStepOption func(*AuditStep)

// WithWalker sets the repository walker.
func WithWalker(w RepositoryWalker) AuditStepOption {
	return func(s *AuditStep) {
		s.walker = w
	}
}

// WithCrawler sets the site auditor.
func WithCrawler(c SiteAuditor) AuditStepOption {
	return func(s *AuditStep) {
		s.crawler = c
	}
}

// WithAuditLogger sets a custom logger for the audit step.
func WithAuditLogger(logger *slog.Logger) AuditStepOption {
	return func(s *AuditStep) {
		s.logger = logger
	}
}

// NewAuditStep creates an AuditStep.
func NewAuditStep(opts ...AuditStepOption) *AuditStep {
	s := &AuditStep{logger: slog.Default()}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Name returns the step name.
func (s *AuditStep) Name() string {
	return "audit"
}

// Do runs the audit. The report is kept on the state even when the audit
// fails, so partial issues are not lost.
func (s *AuditStep) Do(ctx context.Context, state *State) error {
	var (
		report *model.Report
		err    error
	)
	switch {
	case state.Options.Mode == model.ModeLive && s.crawler != nil:
		report, err = s.crawler.Audit(ctx, state.Target, state.Options)
	case state.Options.Mode == model.ModeRepository && s.walker != nil:
		report, err = s.walker.Walk(ctx, state.Target, state.Options)
	default:
		return fmt.Errorf("%w %s", ErrNoAuditor, state.Options.Mode)
	}

	if report != nil {
		state.Report = report
		s.logger.Info("audit finished",
			"target", state.Target,
			"mode", state.Options.Mode.String(),
			"issues", len(report.Issues),
		)
	}
	return err
}

// FilterStep drops issues of disabled types and, optionally, issues below
// a minimum severity.
type FilterStep struct {
	disabled    []string
	minSeverity model.Severity
}

// NewFilterStep creates a FilterStep for the given disabled types.
func NewFilterStep(disabled []string) *FilterStep {
	return &FilterStep{disabled: disabled, minSeverity: model.SeverityInfo}
}

// WithMinSeverity drops issues below severity.
func (s *FilterStep) WithMinSeverity(severity model.Severity) *FilterStep {
	s.minSeverity = severity
	return s
}

// Name returns the step name.
func (s *FilterStep) Name() string {
	return "filter"
}

// Do filters the report in place. It is a no-op without a report.
func (s *FilterStep) Do(_ context.Context, state *State) error {
	if state.Report == nil {
		return nil
	}
	disabled := append(append([]string{}, s.disabled...), state.Options.DisabledTypes...)
	state.Report.Filter(disabled)

	if s.minSeverity == model.SeverityInfo {
		return nil
	}
	kept := state.Report.Issues[:0]
	for _, issue := range state.Report.Issues {
		if issue.Severity.AtLeast(s.minSeverity) {
			kept = append(kept, issue)
		}
	}
	state.Report.Issues = kept
	return nil
}

// RunStore persists reports. *database.History satisfies it.
type RunStore interface {
	SaveRun(ctx context.Context, report *model.Report) (int64, error)
}

// SaveStep stores the report in the run history.
type SaveStep struct {
	store  RunStore
	logger *slog.Logger
}

// NewSaveStep creates a SaveStep.
func NewSaveStep(store RunStore, logger *slog.Logger) *SaveStep {
	if logger == nil {
		logger = slog.Default()
	}
	return &SaveStep{store: store, logger: logger}
}

// Name returns the step name.
func (s *SaveStep) Name() string {
	return "save"
}

// Do saves the report and records the run ID on the state.
func (s *SaveStep) Do(ctx context.Context, state *State) error {
	if state.Report == nil {
		return nil
	}
	id, err := s.store.SaveRun(ctx, state.Report)
	if err != nil {
		return fmt.Errorf("failed to save run of %s: %w", state.Target, err)
	}
	state.RunID = id
	s.logger.Debug("run saved", "target", state.Target, "id", id)
	return nil
}
