package pipeline

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/nao1215/siteaudit/internal/model"
)

// TestBatchProcessorNew tests the BatchProcessor constructor.
func TestBatchProcessorNew(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		opts []BatchOption
		want int
	}{
		{"default", nil, DefaultConcurrency},
		{"custom", []BatchOption{WithConcurrency(2)}, 2},
		{"non-positive keeps default", []BatchOption{WithConcurrency(0)}, DefaultConcurrency},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			bp := NewBatchProcessor(func(string) *Pipeline { return New() }, tt.opts...)
			if bp.concurrency != tt.want {
				t.Errorf("got concurrency %d, expected %d", bp.concurrency, tt.want)
			}
			if bp.logger == nil {
				t.Error("expected non-nil logger")
			}
		})
	}
}

func auditPipeline(delay func(target string) time.Duration, fail map[string]bool) func(string) *Pipeline {
	return func(string) *Pipeline {
		p := New()
		p.AddStep(&mockStep{name: "audit", doFunc: func(ctx context.Context, s *State) error {
			if delay != nil {
				select {
				case <-time.After(delay(s.Target)):
				case <-ctx.Done():
					return ctx.Err()
				}
			}
			s.Report = model.NewReport(s.Target, s.Options.Mode)
			if fail[s.Target] {
				return errors.New("unreachable")
			}
			s.Report.Add(model.NewIssue("JS_EVAL", s.Target, "m"))
			return nil
		}})
		return p
	}
}

// TestBatchProcessorProcess tests concurrent auditing of several targets.
func TestBatchProcessorProcess(t *testing.T) {
	t.Parallel()

	t.Run("results keep input order", func(t *testing.T) {
		t.Parallel()

		// Earlier targets finish last.
		delays := map[string]time.Duration{"a": 30 * time.Millisecond, "b": 15 * time.Millisecond, "c": 0}
		bp := NewBatchProcessor(auditPipeline(func(target string) time.Duration { return delays[target] }, nil))

		states, err := bp.Process(context.Background(), []string{"a", "b", "c"}, model.DefaultAnalysisOptions())
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if len(states) != 3 {
			t.Fatalf("expected 3 states, got %d", len(states))
		}
		for i, want := range []string{"a", "b", "c"} {
			if states[i].Target != want || states[i].Report.Target != want {
				t.Errorf("state %d: got %q, expected %q", i, states[i].Target, want)
			}
		}
	})

	t.Run("failed target does not stop the batch", func(t *testing.T) {
		t.Parallel()

		bp := NewBatchProcessor(auditPipeline(nil, map[string]bool{"b": true}))
		states, err := bp.Process(context.Background(), []string{"a", "b", "c"}, model.DefaultAnalysisOptions())
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if !states[1].Report.Failed() {
			t.Error("expected failed report for b")
		}
		if states[0].Report.Failed() || states[2].Report.Failed() {
			t.Error("other targets should succeed")
		}
	})

	t.Run("respects concurrency limit", func(t *testing.T) {
		t.Parallel()

		var current, peak atomic.Int32
		factory := func(string) *Pipeline {
			p := New()
			p.AddStep(&mockStep{name: "audit", doFunc: func(_ context.Context, _ *State) error {
				n := current.Add(1)
				for {
					old := peak.Load()
					if n <= old || peak.CompareAndSwap(old, n) {
						break
					}
				}
				time.Sleep(10 * time.Millisecond)
				current.Add(-1)
				return nil
			}})
			return p
		}

		bp := NewBatchProcessor(factory, WithConcurrency(2))
		targets := []string{"1", "2", "3", "4", "5", "6"}
		if _, err := bp.Process(context.Background(), targets, model.DefaultAnalysisOptions()); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if peak.Load() > 2 {
			t.Errorf("expected at most 2 concurrent audits, saw %d", peak.Load())
		}
	})

	t.Run("cancelled context", func(t *testing.T) {
		t.Parallel()

		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		bp := NewBatchProcessor(auditPipeline(nil, nil))
		_, err := bp.Process(ctx, []string{"a", "b"}, model.DefaultAnalysisOptions())
		if !errors.Is(err, context.Canceled) {
			t.Errorf("expected context.Canceled, got %v", err)
		}
	})

	t.Run("callback sees every target", func(t *testing.T) {
		t.Parallel()

		var (
			mu   sync.Mutex
			seen = make(map[int]string)
		)
		bp := NewBatchProcessor(auditPipeline(nil, nil))
		_, err := bp.ProcessWithCallback(context.Background(), []string{"x", "y"}, model.DefaultAnalysisOptions(),
			func(s *State, i int) {
				mu.Lock()
				defer mu.Unlock()
				seen[i] = s.Target
			})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if seen[0] != "x" || seen[1] != "y" {
			t.Errorf("unexpected callbacks %v", seen)
		}
	})

	t.Run("per-target options", func(t *testing.T) {
		t.Parallel()

		bp := NewBatchProcessor(auditPipeline(nil, nil),
			WithTargetOptions(func(target string, base model.AnalysisOptions) model.AnalysisOptions {
				if target == "site" {
					base.Mode = model.ModeLive
				}
				return base
			}))
		states, err := bp.Process(context.Background(), []string{"repo", "site"}, model.DefaultAnalysisOptions())
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if states[0].Options.Mode != model.ModeRepository {
			t.Errorf("repo mode = %s, expected repository", states[0].Options.Mode)
		}
		if states[1].Options.Mode != model.ModeLive || states[1].Report.Mode != model.ModeLive.String() {
			t.Errorf("site mode = %s, expected live", states[1].Options.Mode)
		}
	})
}
