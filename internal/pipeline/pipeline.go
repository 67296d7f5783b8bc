package pipeline

import (
	"context"
	"log/slog"

	"github.com/nao1215/siteaudit/internal/model"
)

// State carries one target through the pipeline.
type State struct {
	// Target is the repository path, git URL, or site URL.
	Target string

	// Options are the analysis options for the run.
	Options model.AnalysisOptions

	// Report is set by the audit step. Later steps read and refine it.
	Report *model.Report

	// RunID is the history ID assigned by the save step, or 0.
	RunID int64

	// Performed lists the steps that ran, in order.
	Performed []string
}

// NewState creates the state for auditing target.
func NewState(target string, opts model.AnalysisOptions) *State {
	return &State{Target: target, Options: opts}
}

// Step is one stage of an audit.
type Step interface {
	// Do executes the step. A returned error aborts the pipeline unless
	// it was built with WithContinueOnError.
	Do(ctx context.Context, state *State) error

	// Name returns the step's name for logging purposes.
	Name() string
}

// Pipeline runs steps in order.
type Pipeline struct {
	steps           []Step
	logger          *slog.Logger
	continueOnError bool
}

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithLogger sets a custom logger for the pipeline.
func WithLogger(logger *slog.Logger) Option {
	return func(p *Pipeline) {
		p.logger = logger
	}
}

// WithContinueOnError keeps running the remaining steps after a failure.
func WithContinueOnError(continueOnError bool) Option {
	return func(p *Pipeline) {
		p.continueOnError = continueOnError
	}
}

// New creates an empty Pipeline.
func New(opts ...Option) *Pipeline {
	p := &Pipeline{steps: make([]Step, 0)}
	for _, opt := range opts {
		opt(p)
	}
	if p.logger == nil {
		p.logger = slog.Default()
	}
	return p
}

// AddStep appends a step.
func (p *Pipeline) AddStep(step Step) {
	p.steps = append(p.steps, step)
}

// AddSteps appends several steps.
func (p *Pipeline) AddSteps(steps ...Step) {
	p.steps = append(p.steps, steps...)
}

// Run executes every step against state. Cancellation is checked between
// steps. A step failure is recorded in state.Report.Error when a report
// exists; the first failure is returned.
func (p *Pipeline) Run(ctx context.Context, state *State) error {
	var firstErr error
	for _, step := range p.steps {
		select {
		case <-ctx.Done():
			p.logger.Warn("pipeline cancelled",
				"step", step.Name(),
				"target", state.Target,
				"reason", ctx.Err(),
			)
			p.fail(state, ctx.Err())
			return ctx.Err()
		default:
		}

		p.logger.Debug("executing step",
			"step", step.Name(),
			"target", state.Target,
		)

		if err := step.Do(ctx, state); err != nil {
			p.logger.Error("step failed",
				"step", step.Name(),
				"target", state.Target,
				"error", err,
			)
			p.fail(state, err)
			if !p.continueOnError {
				return err
			}
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		state.Performed = append(state.Performed, step.Name())
	}
	return firstErr
}

func (p *Pipeline) fail(state *State, err error) {
	if state.Report == nil {
		state.Report = model.NewReport(state.Target, state.Options.Mode)
	}
	if state.Report.Error == "" {
		state.Report.Error = err.Error()
	}
}

// StepCount returns the number of steps in the pipeline.
func (p *Pipeline) StepCount() int {
	return len(p.steps)
}

// StepNames returns the names of all steps in execution order.
func (p *Pipeline) StepNames() []string {
	names := make([]string, len(p.steps))
	for i, step := range p.steps {
		names[i] = step.Name()
	}
	return names
}
