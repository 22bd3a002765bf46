// Package apperr defines the error taxonomy shared by all batch operations.
//
// Row-level problems (dangling passage references, chain anomalies) are not
// errors: they are accumulated into result summaries so a batch always runs
// to completion. Only store-level failures abort an invocation.
package apperr

import "errors"

var (
	ErrNotFound      = errors.New("not found")
	ErrConflict      = errors.New("conflict")
	ErrAlreadyExists = errors.New("already exists")

	// ErrStoreUnavailable means a required database could not be opened or
	// attached. Fatal for the invocation.
	ErrStoreUnavailable = errors.New("store unavailable")

	// ErrWriteConflict means lock contention persisted past the bounded
	// retry budget. Fatal for the invocation, never silently swallowed.
	ErrWriteConflict = errors.New("write conflict")
)
