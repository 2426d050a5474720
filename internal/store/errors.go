package store

import "errors"

// Common errors returned by store operations.
//
// These errors can be checked using errors.Is() for proper error handling:
//
//	if errors.Is(err, store.ErrNotFound) {
//	    // Handle missing record
//	}
var (
	// ErrStorageUnavailable is returned when the local database cannot be
	// opened or initialized. Callers should treat reads as empty and fail
	// writes loudly.
	ErrStorageUnavailable = errors.New("local storage unavailable")

	// ErrNotFound is returned when a single-record lookup matches nothing.
	ErrNotFound = errors.New("record not found")

	// ErrValidation is returned when a record fails boundary validation
	// before being written.
	ErrValidation = errors.New("invalid record")
)
