package detect

import (
	"fmt"
	"io/fs"
	"log/slog"

	"github.com/nao1215/siteaudit/internal/model"
)

// Detector analyzes one kind of content.
type Detector interface {
	// Name returns the detector's name for logging and DETECTOR_ERROR messages.
	Name() string

	// Kinds returns the content kinds the detector handles.
	Kinds() []model.Kind

	// Detect returns the issues found in the input unit.
	Detect(in *Input) []model.Issue
}

// Input contains everything a detector may read for one unit.
// Detectors never touch the network or the filesystem directly; they go
// through the collaborators carried here.
type Input struct {
	// Unit is the content under analysis.
	Unit model.ContentUnit

	// Options are the run options.
	Options model.AnalysisOptions

	// FS resolves local resources such as images referenced by HTML.
	// It may be nil.
	FS fs.FS

	// Links checks link targets. Nil disables the broken link checks.
	Links LinkChecker
}

// LinkChecker checks whether a URL exists.
type LinkChecker interface {
	// Check returns the HTTP status of a HEAD request, or the transport error.
	Check(rawURL string) (int, error)
}

// Linter runs an external linter over a unit.
type Linter interface {
	Lint(unit model.ContentUnit) []model.Issue
}

// SecretScanner finds leaked credentials in a unit.
type SecretScanner interface {
	Scan(unit model.ContentUnit) []model.Issue
}

// Engine routes content units to the detector registered for their kind.
type Engine struct {
	detectors map[model.Kind]Detector
	links     LinkChecker
	linter    Linter
	secrets   SecretScanner
	fsys      fs.FS
	logger    *slog.Logger
}

// EngineOption configures an Engine.
type EngineOption func(*Engine)

// WithLinkChecker sets the checker used for HTML_BROKEN_LINK and HTML_BROKEN_IMG.
func WithLinkChecker(links LinkChecker) EngineOption {
	return func(e *Engine) {
		e.links = links
	}
}

// WithLinter enables linter enrichment when AnalysisOptions.Lint is set.
func WithLinter(linter Linter) EngineOption {
	return func(e *Engine) {
		e.linter = linter
	}
}

// WithSecretScanner enables secret scanning of source and text units.
func WithSecretScanner(scanner SecretScanner) EngineOption {
	return func(e *Engine) {
		e.secrets = scanner
	}
}

// WithFS sets the default filesystem for local resource lookups.
func WithFS(fsys fs.FS) EngineOption {
	return func(e *Engine) {
		e.fsys = fsys
	}
}

// WithLogger sets the logger for detector failures.
func WithLogger(logger *slog.Logger) EngineOption {
	return func(e *Engine) {
		e.logger = logger
	}
}

// NewEngine creates an Engine with all built-in detectors registered.
func NewEngine(opts ...EngineOption) *Engine {
	e := &Engine{
		detectors: make(map[model.Kind]Detector),
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(e)
	}

	e.Register(NewHTMLDetector())
	e.Register(NewCSSDetector())
	e.Register(NewScriptDetector())
	e.Register(NewPythonDetector())
	e.Register(NewPHPDetector())
	e.Register(NewJSONConfigDetector())
	e.Register(NewEnvDetector())
	e.Register(NewConfigDetector())
	e.Register(NewTextDetector())

	return e
}

// Register adds a detector for each of its kinds. A later registration
// for the same kind replaces the earlier one.
func (e *Engine) Register(d Detector) {
	for _, kind := range d.Kinds() {
		e.detectors[kind] = d
	}
}

// Detector returns the detector registered for kind.
func (e *Engine) Detector(kind model.Kind) (Detector, bool) {
	d, ok := e.detectors[kind]
	return d, ok
}

// Analyze runs the detector for unit.Kind using the engine's filesystem.
func (e *Engine) Analyze(unit model.ContentUnit, opts model.AnalysisOptions) []model.Issue {
	return e.AnalyzeFS(e.fsys, unit, opts)
}

// AnalyzeFS runs the detector for unit.Kind, resolving local resources in fsys.
// Issues of disabled types are dropped. A panicking detector is reported as
// one DETECTOR_ERROR issue instead of aborting the run.
func (e *Engine) AnalyzeFS(fsys fs.FS, unit model.ContentUnit, opts model.AnalysisOptions) []model.Issue {
	if !categoryEnabled(unit.Kind, opts) {
		return nil
	}
	d, ok := e.detectors[unit.Kind]
	if !ok {
		return nil
	}

	in := &Input{
		Unit:    unit,
		Options: opts,
		FS:      fsys,
		Links:   e.links,
	}
	issues := e.run(d, in)

	if e.secrets != nil && !unit.IsEmbedded() && scansSecrets(unit.Kind) {
		issues = append(issues, e.secrets.Scan(unit)...)
	}
	if opts.Lint && e.linter != nil {
		issues = append(issues, e.linter.Lint(unit)...)
	}

	if len(opts.DisabledTypes) == 0 {
		return issues
	}
	kept := issues[:0]
	for _, issue := range issues {
		if !opts.IsDisabled(issue.Type) {
			kept = append(kept, issue)
		}
	}
	return kept
}

func (e *Engine) run(d Detector, in *Input) (issues []model.Issue) {
	defer func() {
		if r := recover(); r != nil {
			e.logger.Error("detector failed",
				slog.String("detector", d.Name()),
				slog.String("location", in.Unit.Location),
				slog.Any("panic", r))
			issues = []model.Issue{model.NewIssue("DETECTOR_ERROR", in.Unit.Location,
				fmt.Sprintf("%s detector failed: %v", d.Name(), r))}
		}
	}()
	return d.Detect(in)
}

func categoryEnabled(kind model.Kind, opts model.AnalysisOptions) bool {
	switch {
	case kind == model.KindHTML:
		return opts.HTML
	case kind == model.KindCSS:
		return opts.CSS
	case kind.IsScript():
		return opts.JS
	default:
		return true
	}
}

func scansSecrets(kind model.Kind) bool {
	return kind != model.KindCSS
}
