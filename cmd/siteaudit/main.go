// Package main provides the entry point for the siteaudit CLI.
//
// siteaudit finds HTML, CSS, JavaScript, SEO, accessibility, performance and
// security issues in a source repository or on a running website.
//
// Usage:
//
//	siteaudit scan ./site
//	siteaudit scan https://example.com --depth 2
//	siteaudit compare https://example.com
//
// See --help for all available options.
package main

func main() {
	Execute()
}
