// Package model defines the data structures shared by the siteaudit packages.
//
// This package contains the following main types:
//   - Issue: one normalized finding with type, location, severity, and line
//   - ContentUnit: a piece of content handed to a detector, with its Kind
//   - AnalysisOptions: the immutable per-run detector configuration
//   - Report: the ordered issue collection of one audited target
//   - Page: an HTML document fetched from a live site
//
// The issue table in severity.go maps every issue type to its severity and
// suggested solution. Unknown types are classified as info.
package model
