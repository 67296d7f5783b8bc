// Package secrets finds leaked credentials with the gitleaks rule set.
package secrets

import (
	"fmt"
	"strings"
	"sync"

	"github.com/zricethezav/gitleaks/v8/detect"
	"github.com/zricethezav/gitleaks/v8/report"

	"github.com/nao1215/siteaudit/internal/locate"
	"github.com/nao1215/siteaudit/internal/model"
)

// mask replaces the secret in issue contexts.
const mask = "****"

// Scanner reports SEC_LEAKED_SECRET issues. It is safe for concurrent use;
// scans are serialized because the gitleaks detector keeps per-scan state.
type Scanner struct {
	mu       sync.Mutex
	detector *detect.Detector
}

// NewScanner loads the default gitleaks configuration.
func NewScanner() (*Scanner, error) {
	d, err := detect.NewDetectorDefaultConfig()
	if err != nil {
		return nil, fmt.Errorf("failed to load gitleaks rules: %w", err)
	}
	return &Scanner{detector: d}, nil
}

// Scan returns one issue per finding in the unit content.
func (s *Scanner) Scan(unit model.ContentUnit) []model.Issue {
	s.mu.Lock()
	findings := s.detector.DetectBytes([]byte(unit.Content))
	s.mu.Unlock()

	issues := make([]model.Issue, 0, len(findings))
	for _, f := range findings {
		issues = append(issues, toIssue(unit, f))
	}
	return issues
}

func toIssue(unit model.ContentUnit, f report.Finding) model.Issue {
	opts := []model.IssueOption{model.WithContext(redact(f.Match, f.Secret))}
	if m, ok := locate.First(unit.Content, f.Match); ok && f.Match != "" {
		opts = append(opts, model.WithLine(m.Line), model.WithColumn(m.Column))
	} else {
		// gitleaks lines are 0-based
		opts = append(opts, model.WithLine(f.StartLine+1))
	}
	return model.NewIssue("SEC_LEAKED_SECRET", unit.Location,
		fmt.Sprintf("%s (rule: %s)", f.Description, f.RuleID), opts...)
}

func redact(match, secret string) string {
	if secret == "" {
		return mask
	}
	return strings.ReplaceAll(match, secret, mask)
}
