// Package detect turns content units into issues.
//
// Each content kind has one Detector: markup, stylesheets, scripts, Python,
// PHP, package manifests, .env files, configuration files and plain text.
// The Engine routes a unit to its detector, adds secret-scanner and linter
// findings, drops disabled issue types, and converts a panicking detector
// into a DETECTOR_ERROR issue so the rest of the run continues.
//
// Detectors are heuristics: regular expressions, shallow DOM queries and
// token streams. A syntax tree is built only to answer whether the source
// parses.
//
// Line numbers are resolved with package locate. When a unit was extracted
// from a larger document (ContentUnit.Raw), reported lines are lines of that
// document.
package detect
