package model

// Mode tells detectors how the content was ingested.
type Mode int

const (
	// ModeRepository is used for files read from a repository checkout.
	// Relative links are skipped because there is no base URL.
	ModeRepository Mode = iota

	// ModeLive is used for pages fetched from a running website.
	// Relative links are resolved against AnalysisOptions.BaseURL.
	ModeLive
)

// String returns the mode name.
func (m Mode) String() string {
	switch m {
	case ModeRepository:
		return "repository"
	case ModeLive:
		return "live"
	default:
		return "unknown"
	}
}

// DefaultMaxSelectorDepth is the selector depth above which
// CSS_COMPLEX_SELECTOR is reported.
const DefaultMaxSelectorDepth = 3

// AnalysisOptions configures the detectors for one run. It is passed by
// value and never modified during a scan.
type AnalysisOptions struct {
	// HTML enables the HTML detector.
	HTML bool

	// CSS enables stylesheet analysis.
	CSS bool

	// JS enables script analysis and the inline event handler check.
	JS bool

	// PerfSec enables the live-site performance and security checks.
	PerfSec bool

	// MaxSelectorDepth is the complex-selector threshold.
	// A negative value disables the check.
	MaxSelectorDepth int

	// IgnoreRobots skips the robots.txt check in live mode.
	IgnoreRobots bool

	// Lint enables external linter enrichment (eslint, flake8, php -l).
	Lint bool

	// Mode is the ingestion mode.
	Mode Mode

	// BaseURL resolves relative references in live mode, e.g. "https://example.com".
	BaseURL string

	// DisabledTypes lists issue types dropped before reporting.
	DisabledTypes []string
}

// DefaultAnalysisOptions returns options with every category enabled.
func DefaultAnalysisOptions() AnalysisOptions {
	return AnalysisOptions{
		HTML:             true,
		CSS:              true,
		JS:               true,
		PerfSec:          true,
		MaxSelectorDepth: DefaultMaxSelectorDepth,
	}
}

// IsDisabled reports whether issues of the given type are suppressed.
func (o AnalysisOptions) IsDisabled(issueType string) bool {
	for _, t := range o.DisabledTypes {
		if t == issueType {
			return true
		}
	}
	return false
}

// Live returns a copy of the options configured for live-site analysis.
func (o AnalysisOptions) Live(baseURL string) AnalysisOptions {
	o.Mode = ModeLive
	o.BaseURL = baseURL
	return o
}
