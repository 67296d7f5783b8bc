package pipeline

import (
	"context"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/nao1215/siteaudit/internal/model"
)

// DefaultConcurrency is the number of targets audited at once.
const DefaultConcurrency = 4

// BatchProcessor audits several targets concurrently, one fresh pipeline
// per target.
type BatchProcessor struct {
	pipelineFactory func(target string) *Pipeline
	targetOptions   func(target string, base model.AnalysisOptions) model.AnalysisOptions
	concurrency     int
	logger          *slog.Logger
}

// BatchOption configures a BatchProcessor.
type BatchOption func(*BatchProcessor)

// WithBatchLogger sets a custom logger for batch processing.
func WithBatchLogger(logger *slog.Logger) BatchOption {
	return func(b *BatchProcessor) {
		b.logger = logger
	}
}

// WithConcurrency sets the maximum number of concurrent audits.
// Non-positive values keep the default.
func WithConcurrency(n int) BatchOption {
	return func(b *BatchProcessor) {
		if n > 0 {
			b.concurrency = n
		}
	}
}

// WithTargetOptions derives the options of each target from the options
// passed to Process, e.g. to apply per-site configuration.
func WithTargetOptions(fn func(target string, base model.AnalysisOptions) model.AnalysisOptions) BatchOption {
	return func(b *BatchProcessor) {
		b.targetOptions = fn
	}
}

// NewBatchProcessor creates a BatchProcessor. pipelineFactory is called
// once per target.
func NewBatchProcessor(pipelineFactory func(target string) *Pipeline, opts ...BatchOption) *BatchProcessor {
	bp := &BatchProcessor{
		pipelineFactory: pipelineFactory,
		concurrency:     DefaultConcurrency,
	}
	for _, opt := range opts {
		opt(bp)
	}
	if bp.logger == nil {
		bp.logger = slog.Default()
	}
	return bp
}

// Process runs the pipeline for every target and returns the states in
// input order. A failing target does not stop the others; its error is in
// its report. The returned error is non-nil only on cancellation.
func (bp *BatchProcessor) Process(ctx context.Context, targets []string, opts model.AnalysisOptions) ([]*State, error) {
	return bp.ProcessWithCallback(ctx, targets, opts, nil)
}

// ProcessWithCallback is Process with a callback invoked as each target
// completes. The callback runs on the worker goroutine.
func (bp *BatchProcessor) ProcessWithCallback(
	ctx context.Context,
	targets []string,
	opts model.AnalysisOptions,
	callback func(state *State, index int),
) ([]*State, error) {
	bp.logger.Info("starting batch",
		"targets", len(targets),
		"concurrency", bp.concurrency,
	)
	start := time.Now()

	states := make([]*State, len(targets))
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(bp.concurrency)

	for i, target := range targets {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}

			targetOpts := opts
			if bp.targetOptions != nil {
				targetOpts = bp.targetOptions(target, opts)
			}
			state := NewState(target, targetOpts)
			if err := bp.pipelineFactory(target).Run(ctx, state); err != nil {
				bp.logger.Warn("audit failed", "target", target, "error", err)
			}
			states[i] = state
			if callback != nil {
				callback(state, i)
			}
			return nil
		})
	}

	err := g.Wait()
	bp.logger.Info("batch complete",
		"targets", len(targets),
		"elapsed", time.Since(start),
	)
	return states, err
}
