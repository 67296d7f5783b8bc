package crawler

import "errors"

var (
	// ErrInvalidTarget is returned for targets that are not http(s) URLs.
	ErrInvalidTarget = errors.New("invalid target URL")

	// ErrRootUnreachable is returned when the target page cannot be fetched.
	// The report still carries the NETWORK_ERROR issue and the robots.txt result.
	ErrRootUnreachable = errors.New("target page is unreachable")

	// ErrHTTPStatus is wrapped by fetch errors for responses with status 400 or more.
	ErrHTTPStatus = errors.New("unexpected HTTP status")
)
