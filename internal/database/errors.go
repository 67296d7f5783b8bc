package database

import "errors"

var (
	// ErrHistoryNotFound is returned by Open when creation is disabled and
	// no database exists yet.
	ErrHistoryNotFound = errors.New("history database not found")

	// ErrRunNotFound is returned when no run has the requested ID.
	ErrRunNotFound = errors.New("run not found")
)
