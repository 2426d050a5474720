package clock

import "errors"

// Common errors returned by clock operations.
//
// These errors can be checked using errors.Is() so the POS front end can
// tell the operator exactly what went wrong:
//
//	if errors.Is(err, clock.ErrAlreadyClockedOut) {
//	    // "You already clocked out today."
//	}
var (
	// ErrEmployeeNotFound is returned when a name resolves to no
	// employee, or ambiguously to more than one.
	ErrEmployeeNotFound = errors.New("employee not found")

	// ErrAlreadyClockedIn is returned when an open session already
	// exists for the employee today.
	ErrAlreadyClockedIn = errors.New("already clocked in today")

	// ErrAlreadyClockedOut is returned when today's session was already
	// closed.
	ErrAlreadyClockedOut = errors.New("already clocked out today")

	// ErrNoActiveSession is returned when a clock-out finds no open
	// session: the employee never clocked in.
	ErrNoActiveSession = errors.New("no active session: never clocked in today")

	// ErrAmbiguousSession is returned when recovery finds more than one
	// plausible open session, i.e. the history is corrupt and needs a
	// repair pass before a clock-out can be applied safely.
	ErrAmbiguousSession = errors.New("ambiguous clock history")
)
