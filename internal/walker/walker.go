package walker

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path"
	"strings"

	"github.com/go-git/go-git/v5"

	"github.com/nao1215/siteaudit/internal/model"
)

// DefaultMaxFileSize is the largest file handed to the engine.
const DefaultMaxFileSize = 5 * 1024 * 1024

// skippedDirs are never descended into.
var skippedDirs = map[string]bool{
	".git":         true,
	"node_modules": true,
}

// Analyzer runs detectors over one unit. *detect.Engine implements it.
type Analyzer interface {
	AnalyzeFS(fsys fs.FS, unit model.ContentUnit, opts model.AnalysisOptions) []model.Issue
}

// Walker feeds repository files to an Analyzer.
type Walker struct {
	engine         Analyzer
	maxFileSize    int64
	ignorePatterns []string
	logger         *slog.Logger
}

// Option configures a Walker.
type Option func(*Walker)

// WithMaxFileSize overrides DefaultMaxFileSize.
func WithMaxFileSize(size int64) Option {
	return func(w *Walker) {
		w.maxFileSize = size
	}
}

// WithIgnorePatterns sets glob patterns for paths to skip.
// A pattern without a slash matches any path element, so "dist" skips every
// dist directory; a pattern with a slash matches the path from the root.
func WithIgnorePatterns(patterns []string) Option {
	return func(w *Walker) {
		w.ignorePatterns = patterns
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(w *Walker) {
		w.logger = logger
	}
}

// New creates a Walker.
func New(engine Analyzer, opts ...Option) *Walker {
	w := &Walker{
		engine:      engine,
		maxFileSize: DefaultMaxFileSize,
		logger:      slog.Default(),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// IsRemote reports whether root names a git remote instead of a local directory.
func IsRemote(root string) bool {
	for _, prefix := range []string{"https://", "http://", "ssh://", "git://", "git@"} {
		if strings.HasPrefix(root, prefix) {
			return true
		}
	}
	if !strings.HasSuffix(root, ".git") {
		return false
	}
	info, err := os.Stat(root)
	return err != nil || !info.IsDir()
}

// Walk audits every file under root. Issues of one file are appended
// before those of the next, in lexical path order.
//
// The returned error is non-nil only when the repository could not be read
// at all or ctx was cancelled; the report then carries the error text and the
// issues collected so far.
func (w *Walker) Walk(ctx context.Context, root string, opts model.AnalysisOptions) (*model.Report, error) {
	report := model.NewReport(root, model.ModeRepository)
	defer report.Finish()

	opts.Mode = model.ModeRepository
	opts.BaseURL = ""

	dir := root
	if IsRemote(root) {
		cloned, err := w.clone(ctx, root)
		if err != nil {
			report.Error = err.Error()
			return report, err
		}
		defer func() {
			if err := os.RemoveAll(cloned); err != nil {
				w.logger.Warn("failed to remove clone", "dir", cloned, "error", err)
			}
		}()
		dir = cloned
	} else if err := checkRoot(root); err != nil {
		report.Error = err.Error()
		return report, err
	}

	fsys := os.DirFS(dir)
	err := fs.WalkDir(fsys, ".", func(p string, d fs.DirEntry, err error) error {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		if err != nil {
			if p == "." {
				return err
			}
			w.logger.Debug("skipping unreadable path", "path", p, "error", err)
			if d != nil && d.IsDir() {
				return fs.SkipDir
			}
			return nil
		}

		if d.IsDir() {
			if p != "." && (skippedDirs[d.Name()] || w.ignored(p)) {
				return fs.SkipDir
			}
			return nil
		}
		if !d.Type().IsRegular() || w.ignored(p) {
			return nil
		}

		kind := model.KindForPath(p)
		if kind == model.KindUnknown {
			return nil
		}

		info, err := d.Info()
		if err != nil {
			w.logger.Debug("skipping unreadable file", "path", p, "error", err)
			return nil
		}
		if info.Size() > w.maxFileSize {
			w.logger.Debug("skipping large file", "path", p, "size", info.Size())
			return nil
		}

		data, err := fs.ReadFile(fsys, p)
		if err != nil {
			w.logger.Debug("skipping unreadable file", "path", p, "error", err)
			return nil
		}

		unit := model.ContentUnit{Content: string(data), Location: p, Kind: kind}
		report.UnitsScanned++
		report.Add(w.engine.AnalyzeFS(fsys, unit, opts)...)
		return nil
	})
	if err != nil {
		err = fmt.Errorf("failed to walk %s: %w", root, err)
		report.Error = err.Error()
		return report, err
	}

	w.logger.Debug("walk finished", "root", root, "files", report.UnitsScanned, "issues", len(report.Issues))
	return report, nil
}

func checkRoot(root string) error {
	info, err := os.Stat(root)
	if errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("%w: %s", ErrRootNotFound, root)
	}
	if err != nil {
		return fmt.Errorf("failed to stat %s: %w", root, err)
	}
	if !info.IsDir() {
		return fmt.Errorf("%w: %s", ErrRootNotDirectory, root)
	}
	return nil
}

// clone makes a depth-1 checkout of url in a new temporary directory.
func (w *Walker) clone(ctx context.Context, url string) (string, error) {
	dir, err := os.MkdirTemp("", "siteaudit-clone-*")
	if err != nil {
		return "", fmt.Errorf("failed to create clone directory: %w", err)
	}

	w.logger.Info("cloning repository", "url", url)
	_, err = git.PlainCloneContext(ctx, dir, false, &git.CloneOptions{
		URL:          url,
		Depth:        1,
		SingleBranch: true,
		Tags:         git.NoTags,
	})
	if err != nil {
		_ = os.RemoveAll(dir) //nolint:errcheck // best effort on failure path
		return "", fmt.Errorf("%w %s: %w", ErrCloneFailed, url, err)
	}
	return dir, nil
}

// ignored reports whether the slash path p matches an ignore pattern.
func (w *Walker) ignored(p string) bool {
	for _, pattern := range w.ignorePatterns {
		pattern = strings.TrimSuffix(strings.TrimPrefix(pattern, "./"), "/")
		if strings.Contains(pattern, "/") {
			if ok, _ := path.Match(pattern, p); ok {
				return true
			}
			if strings.HasSuffix(pattern, "/*") && strings.HasPrefix(p, strings.TrimSuffix(pattern, "*")) {
				return true
			}
			continue
		}
		if ok, _ := path.Match(pattern, path.Base(p)); ok {
			return true
		}
	}
	return false
}
