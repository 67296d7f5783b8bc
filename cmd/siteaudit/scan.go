package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/nao1215/siteaudit/internal/config"
	"github.com/nao1215/siteaudit/internal/crawler"
	"github.com/nao1215/siteaudit/internal/database"
	"github.com/nao1215/siteaudit/internal/detect"
	"github.com/nao1215/siteaudit/internal/linkcheck"
	"github.com/nao1215/siteaudit/internal/linter"
	"github.com/nao1215/siteaudit/internal/log"
	"github.com/nao1215/siteaudit/internal/model"
	"github.com/nao1215/siteaudit/internal/pipeline"
	"github.com/nao1215/siteaudit/internal/report"
	"github.com/nao1215/siteaudit/internal/secrets"
	"github.com/nao1215/siteaudit/internal/transport"
	"github.com/nao1215/siteaudit/internal/walker"
)

var (
	// ErrThresholdExceeded is returned when an issue at or above the
	// --fail-on severity was reported.
	ErrThresholdExceeded = errors.New("issues at or above the failure threshold")

	// ErrTargetsFailed is returned when at least one target could not be
	// audited at all.
	ErrTargetsFailed = errors.New("audit failed")
)

// NewScanCmd creates the scan command.
func NewScanCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "scan [target...]",
		Short: "Audit repositories or websites for issues",
		Long: `Scan audits each target and prints one report per target.

A target is a local directory, a git URL (https://...git, git@..., ssh://...)
or a website (https://example.com, example.com, or an onion address).
Directories and git URLs are walked file by file; websites are crawled from
the given page, following same-host links up to --depth.

Examples:
  # Audit a local checkout
  siteaudit scan ./web

  # Audit a live site two links deep, as JSON
  siteaudit scan --depth 2 --format json https://example.com

  # Fail the CI job on errors or worse
  siteaudit scan --fail-on error ./web

  # Audit an onion site through an existing Tor proxy
  siteaudit scan --tor-proxy 127.0.0.1:9050 <address>.onion

  # Several targets, four at a time
  siteaudit scan --batch 4 ./web https://example.com https://example.org`,
		Args: cobra.MinimumNArgs(1),
		RunE: runScanCmd,
	}

	f := cmd.Flags()

	// Report
	f.StringP("format", "F", config.DefaultFormat,
		"Report format: "+strings.Join(report.Formats(), ", "))
	f.StringP("output", "o", "", "Write the report to a file instead of stdout")
	f.String("fail-on", "", "Exit with status 2 when an issue of this severity or higher is found")
	f.Bool("log-json", false, "Write logs as JSON")
	f.StringP("config", "c", "",
		"Configuration file path (default: .siteaudit in current or home directory)")

	// Checks
	f.Bool("no-html", false, "Disable HTML, SEO and accessibility checks")
	f.Bool("no-css", false, "Disable CSS checks")
	f.Bool("no-js", false, "Disable JavaScript and TypeScript checks")
	f.Bool("no-perfsec", false, "Disable performance and security checks")
	f.Bool("lint", false, "Run eslint, flake8 and php -l when installed")
	f.Bool("ignore-robots", false, "Skip the robots.txt check")
	f.Bool("no-links", false, "Do not check link and image targets")
	f.Bool("no-secrets", false, "Do not scan for leaked credentials")
	f.Int("max-selector-depth", model.DefaultMaxSelectorDepth, "Complex CSS selector threshold")
	f.StringSlice("disable", nil, "Issue types to drop from the report")
	f.StringSlice("ignore", nil, "Glob patterns of paths or URLs to skip")

	// Crawl
	f.Bool("live", false, "Treat every target as a website")
	f.IntP("depth", "d", config.DefaultCrawlDepth, "Link depth followed from the target page")
	f.IntP("max-pages", "p", config.DefaultMaxPages, "Maximum pages fetched per site")
	f.Duration("crawl-delay", 0, "Pause between page fetches")
	f.DurationP("timeout", "t", config.DefaultTimeout,
		"Timeout of each request (default 60s over Tor)")
	f.String("user-agent", "", "User-Agent sent to sites")
	f.StringToString("header", nil, "Extra request header, e.g. --header Authorization='Bearer x'")
	f.String("cookie", "", "Cookie header sent to sites")

	// Tor
	f.Bool("tor", false, "Route every site request through Tor")
	f.String("tor-proxy", "", "Use an existing Tor SOCKS5 proxy instead of the embedded daemon")
	f.Duration("tor-timeout", config.DefaultTorStartupTimeout, "Timeout for embedded Tor startup")

	// Execution
	f.IntP("batch", "b", config.DefaultBatchSize, "Number of targets audited concurrently")
	f.Bool("save", true, "Store the run in the history database")
	f.String("db-dir", config.XDGDataDir(), "Directory of the history database")

	return cmd
}

func runScanCmd(cmd *cobra.Command, args []string) error {
	cfg, err := buildConfig(cmd, args)
	if err != nil {
		return err
	}
	if err := cfg.Load(); err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("configuration error: %w", err)
	}
	if _, err := report.New(cfg.Format, io.Discard); err != nil {
		return fmt.Errorf("configuration error: %w", err)
	}

	logger := newLogger(cmd.ErrOrStderr(), cfg)
	slog.SetDefault(logger)

	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigCh)
	go func() {
		select {
		case <-sigCh:
			logger.Warn("received shutdown signal, cancelling")
			cancel()
		case <-ctx.Done():
		}
	}()

	return runScan(ctx, cfg, cmd.OutOrStdout(), cmd.ErrOrStderr(), logger)
}

func newLogger(w io.Writer, cfg *config.Config) *slog.Logger {
	if cfg.LogJSON {
		return log.NewSecureJSONLogger(w, cfg.Verbose)
	}
	return log.NewSecureLogger(w, cfg.Verbose)
}

// getVerboseFlag reads --verbose from the command or the root command.
func getVerboseFlag(cmd *cobra.Command) bool {
	verbose, err := cmd.Flags().GetBool("verbose")
	if err != nil {
		verbose, err = cmd.Root().PersistentFlags().GetBool("verbose")
		if err != nil {
			return false
		}
	}
	return verbose
}

// buildConfig creates a Config from the command flags.
func buildConfig(cmd *cobra.Command, args []string) (*config.Config, error) {
	cfg := config.NewConfig()
	cfg.Targets = args
	cfg.Verbose = getVerboseFlag(cmd)

	f := cmd.Flags()
	var err error
	get := func(fn func() error) {
		if err == nil {
			err = fn()
		}
	}
	boolFlag := func(name string, dst *bool) {
		get(func() (e error) { *dst, e = f.GetBool(name); return })
	}
	stringFlag := func(name string, dst *string) {
		get(func() (e error) { *dst, e = f.GetString(name); return })
	}
	intFlag := func(name string, dst *int) {
		get(func() (e error) { *dst, e = f.GetInt(name); return })
	}
	durationFlag := func(name string, dst *time.Duration) {
		get(func() (e error) { *dst, e = f.GetDuration(name); return })
	}
	sliceFlag := func(name string, dst *[]string) {
		get(func() (e error) { *dst, e = f.GetStringSlice(name); return })
	}

	var noHTML, noCSS, noJS, noPerfSec, noLinks, noSecrets bool
	stringFlag("format", &cfg.Format)
	stringFlag("output", &cfg.Output)
	stringFlag("fail-on", &cfg.FailOn)
	boolFlag("log-json", &cfg.LogJSON)
	stringFlag("config", &cfg.ConfigFilePath)
	boolFlag("no-html", &noHTML)
	boolFlag("no-css", &noCSS)
	boolFlag("no-js", &noJS)
	boolFlag("no-perfsec", &noPerfSec)
	boolFlag("lint", &cfg.Lint)
	boolFlag("ignore-robots", &cfg.IgnoreRobots)
	boolFlag("no-links", &noLinks)
	boolFlag("no-secrets", &noSecrets)
	intFlag("max-selector-depth", &cfg.MaxSelectorDepth)
	sliceFlag("disable", &cfg.DisabledTypes)
	sliceFlag("ignore", &cfg.IgnorePatterns)
	boolFlag("live", &cfg.Live)
	intFlag("depth", &cfg.CrawlDepth)
	intFlag("max-pages", &cfg.MaxPages)
	durationFlag("crawl-delay", &cfg.CrawlDelay)
	durationFlag("timeout", &cfg.Timeout)
	stringFlag("user-agent", &cfg.UserAgent)
	get(func() (e error) { cfg.Headers, e = f.GetStringToString("header"); return })
	stringFlag("cookie", &cfg.Cookie)
	boolFlag("tor", &cfg.UseTor)
	stringFlag("tor-proxy", &cfg.TorProxyAddress)
	durationFlag("tor-timeout", &cfg.TorStartupTimeout)
	intFlag("batch", &cfg.BatchSize)
	boolFlag("save", &cfg.SaveHistory)
	stringFlag("db-dir", &cfg.DBDir)
	if err != nil {
		return nil, err
	}

	cfg.HTML, cfg.CSS, cfg.JS, cfg.PerfSec = !noHTML, !noCSS, !noJS, !noPerfSec
	cfg.CheckLinks, cfg.Secrets = !noLinks, !noSecrets
	if cfg.TorProxyAddress != "" {
		cfg.UseTor = true
	}
	if !f.Changed("timeout") && usesTor(cfg) {
		cfg.Timeout = config.DefaultTorTimeout
	}
	return cfg, nil
}

// targetMode decides how a target is audited. Directories and git remotes
// are walked; URLs and bare host names are crawled.
func targetMode(target string, forceLive bool) model.Mode {
	if forceLive {
		return model.ModeLive
	}
	if info, err := os.Stat(target); err == nil && info.IsDir() {
		return model.ModeRepository
	}
	lower := strings.ToLower(target)
	if strings.HasPrefix(lower, "http://") || strings.HasPrefix(lower, "https://") {
		if strings.HasSuffix(strings.TrimSuffix(lower, "/"), ".git") {
			return model.ModeRepository
		}
		return model.ModeLive
	}
	if walker.IsRemote(target) {
		return model.ModeRepository
	}
	return model.ModeLive
}

// needsTor reports whether target is a site that is only reachable over Tor.
func needsTor(target string) bool {
	if !strings.Contains(target, "://") {
		target = "http://" + target
	}
	return transport.RequiresTor(target)
}

func usesTor(cfg *config.Config) bool {
	if cfg.UseTor {
		return true
	}
	for _, target := range cfg.Targets {
		if targetMode(target, cfg.Live) == model.ModeLive && needsTor(target) {
			return true
		}
	}
	return false
}

// scanner holds what the pipelines of one scan share.
type scanner struct {
	cfg     *config.Config
	logger  *slog.Logger
	torAddr string
	secrets *secrets.Scanner
	linter  *linter.Bridge
	history *database.History
}

func runScan(ctx context.Context, cfg *config.Config, stdout, stderr io.Writer, logger *slog.Logger) error {
	logger.Info("starting scan",
		"targets", cfg.Targets,
		"batchSize", cfg.BatchSize,
		"tor", usesTor(cfg),
		"saveHistory", cfg.SaveHistory,
	)

	s := &scanner{cfg: cfg, logger: logger}

	if cfg.SaveHistory {
		history, err := database.Open(cfg.DBDir)
		if err != nil {
			return fmt.Errorf("failed to open history database: %w", err)
		}
		defer history.Close()
		s.history = history
	}

	if cfg.Secrets {
		sc, err := secrets.NewScanner()
		if err != nil {
			return fmt.Errorf("failed to create secret scanner: %w", err)
		}
		s.secrets = sc
	}
	if cfg.Lint {
		s.linter = linter.New(linter.WithLogger(logger))
	}

	if usesTor(cfg) {
		stop, err := s.startTor(ctx, stderr)
		if err != nil {
			return err
		}
		defer stop()
	}

	var progress sync.Mutex
	bp := pipeline.NewBatchProcessor(s.pipelineFor,
		pipeline.WithConcurrency(cfg.BatchSize),
		pipeline.WithBatchLogger(logger),
		pipeline.WithTargetOptions(s.optionsFor),
	)
	start := time.Now()
	states, err := bp.ProcessWithCallback(ctx, cfg.Targets, cfg.AnalysisOptions(model.ModeRepository),
		func(state *pipeline.State, index int) {
			progress.Lock()
			defer progress.Unlock()
			issues := 0
			if state.Report != nil {
				issues = len(state.Report.Issues)
			}
			fmt.Fprintf(stderr, "[%d/%d] %s: %d issues\n", index+1, len(cfg.Targets), state.Target, issues)
		})
	if err != nil {
		return err
	}
	logger.Info("scan complete", "elapsed", time.Since(start).Round(time.Millisecond))

	reports := make([]*model.Report, 0, len(states))
	for _, state := range states {
		if state != nil && state.Report != nil {
			reports = append(reports, state.Report)
		}
	}
	if err := writeReports(cfg, stdout, reports); err != nil {
		return err
	}
	return checkResults(cfg, reports)
}

// startTor makes s.torAddr usable and returns the cleanup function.
func (s *scanner) startTor(ctx context.Context, stderr io.Writer) (func(), error) {
	if s.cfg.TorProxyAddress != "" {
		if err := transport.CheckProxy(ctx, s.cfg.TorProxyAddress); err != nil {
			return nil, fmt.Errorf("tor proxy check failed: %w (make sure Tor is running at %s)",
				err, s.cfg.TorProxyAddress)
		}
		s.torAddr = s.cfg.TorProxyAddress
		s.logger.Info("Tor proxy connection verified", "address", s.torAddr)
		return func() {}, nil
	}

	fmt.Fprintln(stderr, "Starting embedded Tor daemon (this may take a few minutes)...")
	tor := transport.NewEmbeddedTor(transport.WithStartupTimeout(s.cfg.TorStartupTimeout))
	if err := tor.Start(ctx); err != nil {
		return nil, fmt.Errorf("failed to start embedded Tor: %w", err)
	}
	s.torAddr = tor.SocksAddr()
	s.logger.Info("embedded Tor daemon started", "socksAddr", s.torAddr)

	return func() {
		if err := tor.Stop(); err != nil {
			s.logger.Error("failed to stop embedded Tor", "error", err)
		}
	}, nil
}

func (s *scanner) optionsFor(target string, _ model.AnalysisOptions) model.AnalysisOptions {
	return s.cfg.ForTarget(target).AnalysisOptions(targetMode(target, s.cfg.Live))
}

// pipelineFor builds the audit pipeline of one target with its own HTTP
// client, so per-target cookies and headers never leak to other sites.
func (s *scanner) pipelineFor(target string) *pipeline.Pipeline {
	tcfg := s.cfg.ForTarget(target)
	logger := s.logger.With("target", target)

	p := pipeline.New(
		pipeline.WithLogger(logger),
		pipeline.WithContinueOnError(true),
	)

	client, err := s.client(target, tcfg)
	if err != nil {
		p.AddStep(failStep{err: err})
		return p
	}

	engineOpts := []detect.EngineOption{detect.WithLogger(logger)}
	if tcfg.CheckLinks {
		engineOpts = append(engineOpts, detect.WithLinkChecker(
			linkcheck.New(client,
				linkcheck.WithTimeout(config.DefaultLinkTimeout),
				linkcheck.WithLogger(logger))))
	}
	if s.secrets != nil {
		engineOpts = append(engineOpts, detect.WithSecretScanner(s.secrets))
	}
	if s.linter != nil {
		engineOpts = append(engineOpts, detect.WithLinter(s.linter))
	}
	engine := detect.NewEngine(engineOpts...)

	w := walker.New(engine,
		walker.WithMaxFileSize(tcfg.MaxFileSize),
		walker.WithIgnorePatterns(tcfg.IgnorePatterns),
		walker.WithLogger(logger),
	)
	crawlOpts := []crawler.Option{
		crawler.WithMaxDepth(tcfg.CrawlDepth),
		crawler.WithMaxPages(tcfg.MaxPages),
		crawler.WithDelay(tcfg.CrawlDelay),
		crawler.WithFetchTimeout(tcfg.Timeout),
		crawler.WithMaxBodySize(tcfg.MaxBodySize),
		crawler.WithIgnorePatterns(tcfg.IgnorePatterns),
		crawler.WithFollowPatterns(tcfg.FollowPatterns),
		crawler.WithLogger(logger),
	}
	if tcfg.UserAgent != "" {
		crawlOpts = append(crawlOpts, crawler.WithUserAgent(tcfg.UserAgent))
	}
	c := crawler.New(client, engine, crawlOpts...)

	p.AddStep(pipeline.NewAuditStep(
		pipeline.WithWalker(w),
		pipeline.WithCrawler(c),
		pipeline.WithAuditLogger(logger),
	))
	p.AddStep(pipeline.NewFilterStep(nil))
	if s.history != nil {
		p.AddStep(pipeline.NewSaveStep(s.history, logger))
	}
	return p
}

// client returns the HTTP client of a target: over Tor when asked to or
// for onion sites, direct otherwise.
func (s *scanner) client(target string, tcfg *config.Config) (*http.Client, error) {
	var opts []transport.Option
	if tcfg.UserAgent != "" {
		opts = append(opts, transport.WithUserAgent(tcfg.UserAgent))
	}
	if tcfg.Cookie != "" {
		opts = append(opts, transport.WithCookie(tcfg.Cookie))
	}
	if len(tcfg.Headers) > 0 {
		opts = append(opts, transport.WithHeaders(tcfg.Headers))
	}

	if s.torAddr != "" && (tcfg.UseTor || needsTor(target)) {
		return transport.NewTor(s.torAddr, tcfg.Timeout, opts...)
	}
	return transport.NewDirect(tcfg.Timeout, opts...), nil
}

// failStep records an error that prevented the pipeline from being built.
type failStep struct {
	err error
}

func (f failStep) Name() string { return "setup" }

func (f failStep) Do(context.Context, *pipeline.State) error { return f.err }

// writeReports renders every report to stdout or to cfg.Output.
func writeReports(cfg *config.Config, stdout io.Writer, reports []*model.Report) (err error) {
	out := stdout
	if cfg.Output != "" {
		if dir := filepath.Dir(cfg.Output); dir != "." {
			if err := os.MkdirAll(dir, 0750); err != nil {
				return fmt.Errorf("failed to create output directory: %w", err)
			}
		}
		// Reports can quote leaked credentials.
		f, err := os.OpenFile(cfg.Output, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0600)
		if err != nil {
			return fmt.Errorf("failed to create output file: %w", err)
		}
		defer func() {
			if cerr := f.Close(); cerr != nil && err == nil {
				err = fmt.Errorf("failed to close output file: %w", cerr)
			}
		}()
		out = f
	}

	var writer report.Writer
	if strings.EqualFold(cfg.Format, report.FormatPlain) {
		writer = report.NewPlainWriter(out, report.WithVerbose(cfg.Verbose))
	} else {
		writer, err = report.New(cfg.Format, out)
		if err != nil {
			return err
		}
	}

	for _, r := range reports {
		if err := writer.Write(r); err != nil {
			return fmt.Errorf("failed to write report of %s: %w", r.Target, err)
		}
	}
	return nil
}

// checkResults turns failed audits and the --fail-on threshold into errors.
func checkResults(cfg *config.Config, reports []*model.Report) error {
	var failed []string
	for _, r := range reports {
		if r.Failed() {
			failed = append(failed, r.Target)
		}
	}
	if len(failed) > 0 {
		return fmt.Errorf("%w: %s", ErrTargetsFailed, strings.Join(failed, ", "))
	}

	threshold, ok := cfg.FailOnSeverity()
	if !ok {
		return nil
	}
	for _, r := range reports {
		if worst, found := r.MaxSeverity(); found && worst.AtLeast(threshold) {
			return fmt.Errorf("%w (%s) in %s", ErrThresholdExceeded, threshold, r.Target)
		}
	}
	return nil
}
