// Package database keeps the history of audit runs.
//
// Runs live in a single SQLite file (modernc.org/sqlite, no cgo) under the
// data directory. Each row holds the run metadata and its issues as JSON,
// so a stored run loads back as a model.Report for comparison.
package database
