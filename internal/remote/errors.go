package remote

import (
	"errors"
	"fmt"
)

// Common errors returned by remote store operations.
//
// These errors can be checked using errors.Is():
//
//	if errors.Is(err, remote.ErrTableMissing) {
//	    // Degrade to local-only behavior for this table
//	}
var (
	// ErrRemoteUnavailable is returned when the remote store cannot be
	// reached or answers with a transport-level failure.
	ErrRemoteUnavailable = errors.New("remote store unavailable")

	// ErrTableMissing is returned when the remote store reports that the
	// requested relation does not exist. This condition is cacheable; the
	// sync engine degrades to local-only behavior for the table instead
	// of failing every call.
	ErrTableMissing = errors.New("remote table does not exist")

	// ErrNoRows is returned when a single-row query matched nothing.
	ErrNoRows = errors.New("no rows matched")

	// ErrConstraint is returned for remote constraint violations.
	ErrConstraint = errors.New("remote constraint violation")
)

// Remote error codes the client maps to sentinels. The shapes follow
// PostgreSQL/PostgREST conventions.
const (
	codeUndefinedTable = "42P01"
	codeNoRows         = "PGRST116"
)

// APIError is the structured error body returned by the remote store.
type APIError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Status  int    `json:"-"`
}

func (e *APIError) Error() string {
	return fmt.Sprintf("remote error %s (http %d): %s", e.Code, e.Status, e.Message)
}

// Unwrap maps machine-readable codes onto the package sentinels so
// callers can errors.Is() without inspecting codes themselves.
func (e *APIError) Unwrap() error {
	switch {
	case e.Code == codeUndefinedTable:
		return ErrTableMissing
	case e.Code == codeNoRows:
		return ErrNoRows
	case len(e.Code) == 5 && e.Code[:2] == "23":
		// PostgreSQL class 23: integrity constraint violations.
		return ErrConstraint
	default:
		return ErrRemoteUnavailable
	}
}
