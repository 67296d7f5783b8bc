package walker

import "errors"

var (
	// ErrRootNotFound is returned when a local root does not exist.
	ErrRootNotFound = errors.New("repository root not found")

	// ErrRootNotDirectory is returned when a local root is a regular file.
	ErrRootNotDirectory = errors.New("repository root is not a directory")

	// ErrCloneFailed wraps go-git errors for remote roots.
	ErrCloneFailed = errors.New("failed to clone repository")
)
