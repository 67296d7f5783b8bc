package config

import (
	"path/filepath"
	"time"

	"github.com/adrg/xdg"

	"github.com/nao1215/siteaudit/internal/model"
)

// Default configuration values.
const (
	// AppName is the application name used for XDG directory paths.
	AppName = "siteaudit"

	// DefaultTorProxyAddress is the standard Tor SOCKS5 proxy address.
	DefaultTorProxyAddress = "127.0.0.1:9050"

	// DefaultTimeout bounds one page or asset fetch.
	DefaultTimeout = 10 * time.Second

	// DefaultTorTimeout replaces DefaultTimeout for requests routed over
	// Tor, where every request crosses several relays.
	DefaultTorTimeout = 60 * time.Second

	// DefaultLinkTimeout bounds one HEAD request of the link checker.
	DefaultLinkTimeout = 5 * time.Second

	// DefaultCrawlDepth audits only the target page.
	DefaultCrawlDepth = 0

	// DefaultMaxPages caps the pages fetched per site.
	DefaultMaxPages = 50

	// DefaultBatchSize is the number of targets audited concurrently.
	DefaultBatchSize = 4

	// DefaultMaxBodySize limits the bytes read from one response.
	DefaultMaxBodySize = 5 * 1024 * 1024

	// DefaultMaxFileSize skips larger repository files.
	DefaultMaxFileSize = 5 * 1024 * 1024

	// DefaultTorStartupTimeout is the maximum time to wait for the embedded
	// Tor daemon to bootstrap.
	DefaultTorStartupTimeout = 3 * time.Minute

	// DefaultFormat is the report format used when none is given.
	DefaultFormat = "plain"
)

// Config holds every option of a scan. It is filled from CLI flags, then
// refined per target by the configuration file.
type Config struct {
	// Targets are repository paths, git URLs, or site URLs.
	Targets []string

	// Live forces website mode for targets that would otherwise be
	// treated as repositories.
	Live bool

	// Format is the report format: plain, json, csv, markdown or html.
	Format string

	// Output is the report file; empty writes to stdout.
	Output string

	// FailOn is the severity at or above which the scan exits with status 2.
	// Empty disables the check.
	FailOn string

	// Verbose enables debug logging and solutions in plain reports.
	Verbose bool

	// LogJSON switches log output to JSON.
	LogJSON bool

	// HTML, CSS, JS and PerfSec enable the detector categories.
	HTML    bool
	CSS     bool
	JS      bool
	PerfSec bool

	// Lint enables eslint, flake8 and php -l enrichment.
	Lint bool

	// IgnoreRobots skips the robots.txt check.
	IgnoreRobots bool

	// CheckLinks enables HEAD checks of link and image targets.
	CheckLinks bool

	// Secrets enables the leaked credential scanner.
	Secrets bool

	// MaxSelectorDepth is the complex-selector threshold.
	MaxSelectorDepth int

	// DisabledTypes lists issue types dropped before reporting.
	DisabledTypes []string

	// CrawlDepth is the link depth followed from the target page.
	CrawlDepth int

	// MaxPages caps the pages fetched per site.
	MaxPages int

	// CrawlDelay is the pause between page fetches.
	CrawlDelay time.Duration

	// Timeout bounds one page or asset fetch.
	Timeout time.Duration

	// UserAgent overrides the crawler's User-Agent. Empty keeps the default.
	UserAgent string

	// Headers and Cookie are sent with every request of a site.
	Headers map[string]string
	Cookie  string

	// IgnorePatterns skip repository paths and site URLs.
	IgnorePatterns []string

	// FollowPatterns restrict crawled URLs when set.
	FollowPatterns []string

	// MaxBodySize limits the bytes read from one response.
	MaxBodySize int64

	// MaxFileSize skips larger repository files.
	MaxFileSize int64

	// UseTor routes site requests over Tor. Onion targets always use Tor.
	UseTor bool

	// TorProxyAddress is an external Tor SOCKS5 proxy. Empty starts an
	// embedded Tor daemon when Tor is needed.
	TorProxyAddress string

	// TorStartupTimeout bounds the embedded daemon bootstrap.
	TorStartupTimeout time.Duration

	// BatchSize is the number of targets audited concurrently.
	BatchSize int

	// DBDir is the directory of the run history database.
	DBDir string

	// SaveHistory stores every run in the history database.
	SaveHistory bool

	// ConfigFilePath is an explicit configuration file path.
	ConfigFilePath string

	// File is the loaded configuration file, or nil.
	File *File
}

// NewConfig creates a Config with default values.
func NewConfig() *Config {
	return &Config{
		Format:            DefaultFormat,
		HTML:              true,
		CSS:               true,
		JS:                true,
		PerfSec:           true,
		CheckLinks:        true,
		Secrets:           true,
		MaxSelectorDepth:  model.DefaultMaxSelectorDepth,
		CrawlDepth:        DefaultCrawlDepth,
		MaxPages:          DefaultMaxPages,
		Timeout:           DefaultTimeout,
		MaxBodySize:       DefaultMaxBodySize,
		MaxFileSize:       DefaultMaxFileSize,
		TorStartupTimeout: DefaultTorStartupTimeout,
		BatchSize:         DefaultBatchSize,
		DBDir:             XDGDataDir(),
	}
}

// XDGDataDir returns the XDG data directory for siteaudit,
// e.g. ~/.local/share/siteaudit on Linux.
func XDGDataDir() string {
	return filepath.Join(xdg.DataHome, AppName)
}

// XDGConfigDir returns the XDG config directory for siteaudit.
func XDGConfigDir() string {
	return filepath.Join(xdg.ConfigHome, AppName)
}

// XDGCacheDir returns the XDG cache directory for siteaudit.
func XDGCacheDir() string {
	return filepath.Join(xdg.CacheHome, AppName)
}

// Validate checks the configuration and returns the first problem found.
func (c *Config) Validate() error {
	if len(c.Targets) == 0 {
		return ErrNoTarget
	}
	if c.Timeout <= 0 {
		return ErrInvalidTimeout
	}
	if c.BatchSize <= 0 {
		return ErrInvalidBatchSize
	}
	if c.CrawlDepth < 0 {
		return ErrInvalidCrawlDepth
	}
	if c.MaxPages <= 0 {
		return ErrInvalidMaxPages
	}
	if c.CrawlDelay < 0 {
		return ErrInvalidCrawlDelay
	}
	if c.MaxBodySize < 0 || c.MaxFileSize < 0 {
		return ErrInvalidMaxBodySize
	}
	if c.FailOn != "" {
		if _, err := model.ParseSeverity(c.FailOn); err != nil {
			return ErrInvalidFailOn
		}
	}
	if !c.HTML && !c.CSS && !c.JS && !c.PerfSec {
		return ErrNoCategory
	}
	return nil
}

// FailOnSeverity returns the parsed FailOn severity and whether it is set.
func (c *Config) FailOnSeverity() (model.Severity, bool) {
	if c.FailOn == "" {
		return model.SeverityInfo, false
	}
	s, err := model.ParseSeverity(c.FailOn)
	if err != nil {
		return model.SeverityInfo, false
	}
	return s, true
}

// ForTarget returns a copy of the configuration with the file settings for
// target applied. Scalar settings present in the file replace the flag
// values, except the cookie and headers given on the command line; lists
// from the file are appended to the flag values.
func (c *Config) ForTarget(target string) *Config {
	out := *c
	out.Targets = []string{target}
	if c.File == nil {
		return &out
	}

	site := c.File.Lookup(target)
	if site.Depth > 0 {
		out.CrawlDepth = site.Depth
	}
	if site.MaxPages > 0 {
		out.MaxPages = site.MaxPages
	}
	if site.CrawlDelay > 0 {
		out.CrawlDelay = site.CrawlDelay
	}
	if site.MaxSelectorDepth != 0 {
		out.MaxSelectorDepth = site.MaxSelectorDepth
	}
	if site.Cookie != "" && out.Cookie == "" {
		out.Cookie = site.Cookie
	}
	if len(site.Headers) > 0 {
		headers := make(map[string]string, len(site.Headers)+len(c.Headers))
		for k, v := range site.Headers {
			headers[k] = v
		}
		for k, v := range c.Headers {
			headers[k] = v
		}
		out.Headers = headers
	}
	out.IgnorePatterns = appendUnique(c.IgnorePatterns, site.IgnorePatterns)
	out.FollowPatterns = appendUnique(c.FollowPatterns, site.FollowPatterns)
	out.DisabledTypes = appendUnique(c.DisabledTypes, site.DisabledTypes)
	return &out
}

// AnalysisOptions builds the detector options for mode.
func (c *Config) AnalysisOptions(mode model.Mode) model.AnalysisOptions {
	return model.AnalysisOptions{
		HTML:             c.HTML,
		CSS:              c.CSS,
		JS:               c.JS,
		PerfSec:          c.PerfSec,
		MaxSelectorDepth: c.MaxSelectorDepth,
		IgnoreRobots:     c.IgnoreRobots,
		Lint:             c.Lint,
		Mode:             mode,
		DisabledTypes:    c.DisabledTypes,
	}
}

func appendUnique(base, extra []string) []string {
	if len(extra) == 0 {
		return base
	}
	seen := make(map[string]bool, len(base)+len(extra))
	out := make([]string, 0, len(base)+len(extra))
	for _, list := range [][]string{base, extra} {
		for _, s := range list {
			if !seen[s] {
				seen[s] = true
				out = append(out, s)
			}
		}
	}
	return out
}
