// Package pipeline runs an audit as a sequence of steps.
//
// A typical pipeline is audit (walker or crawler), filter, then save to the
// run history. BatchProcessor runs one pipeline per target with bounded
// concurrency and keeps results in input order.
package pipeline
