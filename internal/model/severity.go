package model

import (
	"fmt"
	"sort"
	"strings"
)

// Severity represents how urgently an issue should be addressed.
type Severity int

const (
	// SeverityInfo indicates advisory findings such as missing optional
	// metadata or style suggestions.
	SeverityInfo Severity = iota

	// SeverityWarning indicates problems that degrade quality, accessibility,
	// or performance but do not break the artifact.
	SeverityWarning

	// SeverityError indicates broken content: unparsable files, a missing
	// <title>, or resources that cannot be fetched.
	SeverityError

	// SeverityCritical indicates leaked credentials and similar findings
	// that need immediate action.
	SeverityCritical
)

// String returns the lowercase name of the severity level.
func (s Severity) String() string {
	switch s {
	case SeverityInfo:
		return "info"
	case SeverityWarning:
		return "warning"
	case SeverityError:
		return "error"
	case SeverityCritical:
		return "critical"
	default:
		return "unknown"
	}
}

// ParseSeverity converts a severity name (case-insensitive) into a Severity.
func ParseSeverity(name string) (Severity, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "info":
		return SeverityInfo, nil
	case "warning", "warn":
		return SeverityWarning, nil
	case "error":
		return SeverityError, nil
	case "critical":
		return SeverityCritical, nil
	default:
		return SeverityInfo, fmt.Errorf("unknown severity %q", name)
	}
}

// MarshalText encodes the severity as its lowercase name.
func (s Severity) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText decodes a severity name.
func (s *Severity) UnmarshalText(text []byte) error {
	parsed, err := ParseSeverity(string(text))
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}

// AtLeast reports whether s is at least as severe as other.
func (s Severity) AtLeast(other Severity) bool {
	return s >= other
}

// AllSeverities returns every severity level from most to least severe.
func AllSeverities() []Severity {
	return []Severity{SeverityCritical, SeverityError, SeverityWarning, SeverityInfo}
}

// DefaultSolution is returned for issue types without a dedicated solution.
const DefaultSolution = "Refer to documentation or best practices for this issue."

// IssueInfo holds the static metadata for an issue type.
type IssueInfo struct {
	Severity Severity
	Solution string
}

// issueInfoMapping is the process-wide issue table. It is never written
// after package initialization.
var issueInfoMapping = map[string]IssueInfo{
	// CRITICAL
	"SEC_LEAKED_SECRET": {
		Severity: SeverityCritical,
		Solution: "Revoke the exposed credential, remove it from the source, and load secrets from the environment or a secret manager.",
	},
	"FLASK_HARDCODED_SECRET": {
		Severity: SeverityCritical,
		Solution: "Load SECRET_KEY from the environment instead of hardcoding it.",
	},

	// ERROR
	"SEO_MISSING_TITLE": {
		Severity: SeverityError,
		Solution: "Add a <title> tag to your HTML <head>.",
	},
	"PKG_PARSE_ERROR": {
		Severity: SeverityError,
		Solution: "Fix the JSON syntax of package.json.",
	},
	"ENV_PARSE_ERROR": {
		Severity: SeverityError,
		Solution: "Make sure the .env file is readable UTF-8 text.",
	},
	"PHP_LINT_ERROR": {
		Severity: SeverityError,
		Solution: "Fix PHP syntax errors. Use php -l for linting.",
	},
	"PHP_PARSE_ERROR": {
		Severity: SeverityError,
		Solution: "Fix PHP syntax errors. Use php -l for linting.",
	},
	"PHP_SYNTAX_ERROR": {
		Severity: SeverityError,
		Solution: "Fix PHP syntax errors. Use php -l for linting.",
	},
	"JS_SYNTAX_ERROR": {
		Severity: SeverityError,
		Solution: "Fix JavaScript syntax errors. Use ESLint or a modern IDE for help.",
	},
	"PY_SYNTAX_ERROR": {
		Severity: SeverityError,
		Solution: "Fix Python syntax errors. Run python -m py_compile to locate them.",
	},
	"CSS_PARSING_ERROR": {
		Severity: SeverityError,
		Solution: "Fix the stylesheet syntax. Validate it with a CSS linter such as stylelint.",
	},
	"HTML_PARSE_ERROR": {
		Severity: SeverityError,
		Solution: "Fix the markup so the document can be read. Validate it with the W3C validator.",
	},
	"ANGULAR_JSON_ERROR": {
		Severity: SeverityError,
		Solution: "Fix the JSON syntax of angular.json.",
	},
	"CONFIG_PARSE_ERROR": {
		Severity: SeverityError,
		Solution: "Fix the syntax of the configuration file.",
	},
	"NETWORK_ERROR": {
		Severity: SeverityError,
		Solution: "Check that the resource is reachable and returns a successful status code.",
	},
	"DETECTOR_ERROR": {
		Severity: SeverityError,
		Solution: "Report the failing input to the maintainers. Other files were still analyzed.",
	},

	// WARNING
	"SEO_MISSING_DESCRIPTION": {
		Severity: SeverityWarning,
		Solution: `Add a <meta name="description" content="..."> to your HTML <head>.`,
	},
	"SEO_MISSING_CANONICAL": {
		Severity: SeverityWarning,
		Solution: `Add a <link rel="canonical" href="..."> tag to your HTML <head>.`,
	},
	"SEO_MISSING_OG": {
		Severity: SeverityWarning,
		Solution: `Add Open Graph meta tags (e.g., <meta property="og:title" ...>) to your HTML <head>.`,
	},
	"SEO_MULTIPLE_H1": {
		Severity: SeverityWarning,
		Solution: "Keep a single <h1> per page and use <h2>-<h6> for subsections.",
	},
	"HTML_LARGE_IMAGE": {
		Severity: SeverityWarning,
		Solution: "Compress or resize the image, or serve a modern format such as WebP.",
	},
	"HTML_BROKEN_LINK": {
		Severity: SeverityWarning,
		Solution: "Fix or remove broken hyperlinks.",
	},
	"HTML_BROKEN_IMG": {
		Severity: SeverityWarning,
		Solution: "Fix or remove broken image links.",
	},
	"HTML_MISSING_ALT": {
		Severity: SeverityWarning,
		Solution: "Add descriptive alt text to every <img>.",
	},
	"HTML_INPUT_NO_LABEL": {
		Severity: SeverityWarning,
		Solution: `Give the <input> an id and add a matching <label for="...">.`,
	},
	"HTML_DEPRECATED_TAG": {
		Severity: SeverityWarning,
		Solution: "Replace deprecated presentational tags with CSS.",
	},
	"HTML_IMAGE_EXIF": {
		Severity: SeverityWarning,
		Solution: "Strip EXIF metadata from published images; it can leak device and location data.",
	},
	"CSS_SPECIFICITY_WAR": {
		Severity: SeverityWarning,
		Solution: "Reduce selector specificity and avoid !important.",
	},
	"CSS_IMPORTANT_OVERUSE": {
		Severity: SeverityWarning,
		Solution: "Remove !important and fix the cascade order instead.",
	},
	"CSS_COMPLEX_SELECTOR": {
		Severity: SeverityWarning,
		Solution: "Simplify overly complex CSS selectors.",
	},
	"CSS_LARGE_FILE": {
		Severity: SeverityWarning,
		Solution: "Split large CSS files and remove unused styles.",
	},
	"JS_DEPRECATED_API": {
		Severity: SeverityWarning,
		Solution: "Replace deprecated JS APIs with modern alternatives.",
	},
	"JS_DANGEROUS_FUNCTION": {
		Severity: SeverityWarning,
		Solution: "Avoid eval, innerHTML assignment and document.write; use safe DOM APIs such as textContent.",
	},
	"JS_LARGE_BUNDLE": {
		Severity: SeverityWarning,
		Solution: "Split large JS files into smaller chunks and use code splitting.",
	},
	"JS_SYNC_XHR": {
		Severity: SeverityWarning,
		Solution: "Use asynchronous requests (fetch or XMLHttpRequest with async=true).",
	},
	"JS_BLOCKING_SCRIPT": {
		Severity: SeverityWarning,
		Solution: "Avoid using document.write and blocking scripts.",
	},
	"PKG_OLD_DEP": {
		Severity: SeverityWarning,
		Solution: "Update outdated dependencies in package.json using npm or yarn.",
	},
	"PKG_DEPRECATED_DEP": {
		Severity: SeverityWarning,
		Solution: "Replace deprecated dependencies with maintained alternatives.",
	},
	"ENV_POTENTIAL_SECRET": {
		Severity: SeverityWarning,
		Solution: "Keep .env files out of version control and rotate any committed secrets.",
	},
	"TEXT_POTENTIAL_SECRET": {
		Severity: SeverityWarning,
		Solution: "Move credentials out of committed text and configuration files.",
	},
	"PHP_EVAL": {
		Severity: SeverityWarning,
		Solution: "Avoid using eval() in PHP for security and maintainability.",
	},
	"PHP_MYSQL_DEPRECATED": {
		Severity: SeverityWarning,
		Solution: "Replace deprecated mysql_* functions with mysqli or PDO.",
	},
	"PHP_UNVALIDATED_INPUT": {
		Severity: SeverityWarning,
		Solution: "Validate and sanitize all user input in PHP.",
	},
	"REACT_DEPRECATED_LIFECYCLE": {
		Severity: SeverityWarning,
		Solution: "Update deprecated React lifecycle methods to modern hooks or methods.",
	},
	"REACT_DIRECT_DOM": {
		Severity: SeverityWarning,
		Solution: "Use refs instead of querying the DOM directly inside React components.",
	},
	"ANGULAR_NO_OPTIMIZATION": {
		Severity: SeverityWarning,
		Solution: `Enable "optimization": true for production builds in angular.json.`,
	},
	"ROBOTS_DISALLOW": {
		Severity: SeverityWarning,
		Solution: "Review robots.txt; a global Disallow hides the whole site from crawlers.",
	},
	"SEC_INSECURE_REQUEST": {
		Severity: SeverityWarning,
		Solution: "Serve every resource over HTTPS.",
	},
	"PY_FLAKE8_ERROR": {
		Severity: SeverityWarning,
		Solution: "Install flake8 or disable linter enrichment.",
	},
	"JS_ESLINT_ERROR": {
		Severity: SeverityWarning,
		Solution: "Install eslint or disable linter enrichment.",
	},
	"ESLINT_ERROR": {
		Severity: SeverityWarning,
		Solution: "Install eslint with the React/TypeScript plugins or disable linter enrichment.",
	},

	// INFO
	"SEO_MISSING_TWITTER": {
		Severity: SeverityInfo,
		Solution: `Add Twitter meta tags (e.g., <meta name="twitter:card" ...>) to your HTML <head>.`,
	},
	"SEO_MISSING_ROBOTS": {
		Severity: SeverityInfo,
		Solution: `Add <meta name="robots" content="index,follow"> to your HTML <head>.`,
	},
	"SEO_MISSING_SITEMAP": {
		Severity: SeverityInfo,
		Solution: `Add a <link rel="sitemap" href="/sitemap.xml"> to your HTML <head>.`,
	},
	"SEO_MISSING_STRUCTURED": {
		Severity: SeverityInfo,
		Solution: `Add JSON-LD structured data using <script type="application/ld+json">.`,
	},
	"SEO_MISSING_MICRODATA": {
		Severity: SeverityInfo,
		Solution: "Add microdata attributes (itemscope, itemtype) to your HTML.",
	},
	"SEO_MISSING_H1": {
		Severity: SeverityInfo,
		Solution: "Add a single <h1> tag to each page.",
	},
	"HTML_IMG_NO_LAZY": {
		Severity: SeverityInfo,
		Solution: `Add loading="lazy" to <img> tags for better performance.`,
	},
	"HTML_UNMINIFIED_INLINE_SCRIPT": {
		Severity: SeverityInfo,
		Solution: "Minify your inline JavaScript using a tool like UglifyJS.",
	},
	"HTML_UNMINIFIED_INLINE_STYLE": {
		Severity: SeverityInfo,
		Solution: "Minify your inline CSS using a tool like cssnano.",
	},
	"HTML_MISSING_ARIA": {
		Severity: SeverityInfo,
		Solution: "Add aria-label or other aria-* attributes to interactive elements.",
	},
	"HTML_HEADING_ORDER": {
		Severity: SeverityInfo,
		Solution: "Do not skip heading levels; follow <h2> with <h3>, not <h4>.",
	},
	"CSS_DEEP_SELECTOR": {
		Severity: SeverityInfo,
		Solution: "Avoid deep CSS selectors for better performance.",
	},
	"CSS_ID_SELECTOR": {
		Severity: SeverityInfo,
		Solution: "Avoid using IDs in CSS selectors; prefer classes.",
	},
	"CSS_NONSTANDARD_PROPERTY": {
		Severity: SeverityInfo,
		Solution: "Use standard CSS properties for better browser compatibility.",
	},
	"CSS_VENDOR_PREFIX": {
		Severity: SeverityInfo,
		Solution: "Let a build tool such as Autoprefixer add vendor prefixes.",
	},
	"CSS_DUPLICATE_SELECTOR": {
		Severity: SeverityInfo,
		Solution: "Remove duplicate CSS selectors.",
	},
	"CSS_EXCESSIVE_IMPORT": {
		Severity: SeverityInfo,
		Solution: "Limit the use of @import in CSS; use build tools to combine files.",
	},
	"CSS_UNMINIFIED": {
		Severity: SeverityInfo,
		Solution: "Minify your CSS using a tool like cssnano.",
	},
	"CSS_UNUSED_SELECTOR": {
		Severity: SeverityInfo,
		Solution: "Remove selectors that match nothing on the page.",
	},
	"JS_MODERN_SYNTAX": {
		Severity: SeverityInfo,
		Solution: "Ensure your build process transpiles modern JS to ES5 for compatibility.",
	},
	"JS_INLINE_EVENT_HANDLER": {
		Severity: SeverityInfo,
		Solution: "Attach event listeners from script files instead of on* attributes.",
	},
	"JS_ESLINT": {
		Severity: SeverityInfo,
		Solution: "Fix the reported ESLint rule violation.",
	},
	"REACT_ESLINT": {
		Severity: SeverityInfo,
		Solution: "Fix the reported ESLint rule violation.",
	},
	"TS_ESLINT": {
		Severity: SeverityInfo,
		Solution: "Fix the reported ESLint rule violation.",
	},
	"REACT_MISSING_KEY": {
		Severity: SeverityInfo,
		Solution: "Add a unique key prop to each element in a list.",
	},
	"ANGULAR_MISSING_TRACKBY": {
		Severity: SeverityInfo,
		Solution: "Add a trackBy function to *ngFor to avoid re-rendering the whole list.",
	},
	"PY_FLAKE8": {
		Severity: SeverityInfo,
		Solution: "Follow PEP8 guidelines. Use autopep8 or black to auto-format your code.",
	},
	"FLASK_DEBUG_MODE": {
		Severity: SeverityInfo,
		Solution: "Disable debug mode in production by setting debug=False.",
	},
	"TEXT_TODO": {
		Severity: SeverityInfo,
		Solution: "Resolve or track the TODO/FIXME in your issue tracker.",
	},
	"TEXT_DEBUG": {
		Severity: SeverityInfo,
		Solution: "Make sure debug settings are disabled before release.",
	},
	"PERF_LARGE_FILE": {
		Severity: SeverityInfo,
		Solution: "Minify and compress large assets, or split them.",
	},
	"SEC_INLINE_SCRIPT": {
		Severity: SeverityInfo,
		Solution: "Move large inline scripts to external files so a strict Content-Security-Policy can be used.",
	},
	"SEC_INLINE_STYLE": {
		Severity: SeverityInfo,
		Solution: "Move large inline styles to external stylesheets.",
	},
}

// Classify returns the severity for an issue type.
// Unknown types are SeverityInfo.
func Classify(issueType string) Severity {
	if info, ok := issueInfoMapping[issueType]; ok {
		return info.Severity
	}
	return SeverityInfo
}

// GetIssueInfo returns the severity and solution for an issue type.
func GetIssueInfo(issueType string) IssueInfo {
	if info, ok := issueInfoMapping[issueType]; ok {
		return info
	}
	return IssueInfo{
		Severity: SeverityInfo,
		Solution: DefaultSolution,
	}
}

// KnownIssueTypes returns every issue type in the table, sorted.
func KnownIssueTypes() []string {
	types := make([]string, 0, len(issueInfoMapping))
	for t := range issueInfoMapping {
		types = append(types, t)
	}
	sort.Strings(types)
	return types
}
