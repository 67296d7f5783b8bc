package config

import (
	"net/url"
	"strings"
	"time"
)

// TargetConfig holds the file settings of one target.
type TargetConfig struct {
	// Cookie is sent with every request, e.g. "session=abc; theme=dark".
	Cookie string `yaml:"cookie,omitempty"`

	// Headers are extra HTTP headers.
	Headers map[string]string `yaml:"headers,omitempty"`

	// Depth overrides the crawl depth when positive.
	Depth int `yaml:"depth,omitempty"`

	// MaxPages overrides the page limit when positive.
	MaxPages int `yaml:"maxPages,omitempty"`

	// CrawlDelay overrides the pause between page fetches, e.g. "500ms".
	CrawlDelay time.Duration `yaml:"crawlDelay,omitempty"`

	// IgnorePatterns are glob patterns of paths or URL paths to skip.
	IgnorePatterns []string `yaml:"ignorePatterns,omitempty"`

	// FollowPatterns restrict crawled URL paths when set.
	FollowPatterns []string `yaml:"followPatterns,omitempty"`

	// DisabledTypes lists issue types to drop.
	DisabledTypes []string `yaml:"disabledTypes,omitempty"`

	// MaxSelectorDepth overrides the complex-selector threshold when non-zero.
	MaxSelectorDepth int `yaml:"maxSelectorDepth,omitempty"`
}

// File is the structure of the .siteaudit configuration file.
type File struct {
	// Defaults apply to every target.
	Defaults TargetConfig `yaml:"defaults,omitempty"`

	// Targets maps a target to its settings. Keys are the target as given
	// on the command line, or the host of a site URL.
	Targets map[string]TargetConfig `yaml:"targets,omitempty"`
}

// Lookup returns the defaults merged with the settings of target.
// The exact target is tried first, then the host of a URL target.
func (f *File) Lookup(target string) TargetConfig {
	result := f.Defaults
	result.Headers = copyHeaders(f.Defaults.Headers)

	tc, ok := f.Targets[target]
	if !ok {
		tc, ok = f.Targets[hostOf(target)]
	}
	if !ok {
		return result
	}

	if tc.Cookie != "" {
		result.Cookie = tc.Cookie
	}
	if tc.Depth != 0 {
		result.Depth = tc.Depth
	}
	if tc.MaxPages != 0 {
		result.MaxPages = tc.MaxPages
	}
	if tc.CrawlDelay != 0 {
		result.CrawlDelay = tc.CrawlDelay
	}
	if tc.MaxSelectorDepth != 0 {
		result.MaxSelectorDepth = tc.MaxSelectorDepth
	}
	if len(tc.Headers) > 0 {
		if result.Headers == nil {
			result.Headers = make(map[string]string, len(tc.Headers))
		}
		for k, v := range tc.Headers {
			result.Headers[k] = v
		}
	}
	if len(tc.IgnorePatterns) > 0 {
		result.IgnorePatterns = tc.IgnorePatterns
	}
	if len(tc.FollowPatterns) > 0 {
		result.FollowPatterns = tc.FollowPatterns
	}
	if len(tc.DisabledTypes) > 0 {
		result.DisabledTypes = appendUnique(result.DisabledTypes, tc.DisabledTypes)
	}
	return result
}

func copyHeaders(h map[string]string) map[string]string {
	if h == nil {
		return nil
	}
	out := make(map[string]string, len(h))
	for k, v := range h {
		out[k] = v
	}
	return out
}

func hostOf(target string) string {
	if !strings.Contains(target, "://") {
		return ""
	}
	u, err := url.Parse(target)
	if err != nil {
		return ""
	}
	return u.Hostname()
}
