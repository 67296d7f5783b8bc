// Package walker audits a source repository.
//
// The root is either a local directory or a git URL. Remote repositories
// are shallow-cloned into a temporary directory that is removed when the
// walk ends. Every regular file whose kind is known is read and handed to
// the detection engine in lexical path order, so two walks of the same
// tree produce the same report.
//
// # Usage
//
//	w := walker.New(engine, walker.WithIgnorePatterns([]string{"dist/*"}))
//	report, err := w.Walk(ctx, "./site", model.DefaultAnalysisOptions())
package walker
