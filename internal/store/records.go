package store

import (
	"fmt"
	"strings"
	"time"
)

// Timesheet status values. A session is open (clocked_in) from the moment
// an employee clocks in until the matching clock-out closes it for the day.
const (
	StatusClockedIn  = "clocked_in"
	StatusClockedOut = "clocked_out"
)

// SessionDateLayout is the calendar-date partition key format. One
// timesheet entry per employee per session date may be open at a time.
const SessionDateLayout = "2006-01-02"

// SessionDate derives the daily partition key from a clock-in time.
func SessionDate(t time.Time) string {
	return t.Format(SessionDateLayout)
}

// EmployeeProfile is a staff member mirrored from the remote store.
// The id is the remote store's canonical identifier once synced.
type EmployeeProfile struct {
	ID        string
	FullName  string
	Email     string
	Role      string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Validate checks the profile before it crosses the storage boundary.
func (e *EmployeeProfile) Validate() error {
	if strings.TrimSpace(e.ID) == "" {
		return fmt.Errorf("%w: employee id is required", ErrValidation)
	}
	if strings.TrimSpace(e.FullName) == "" {
		return fmt.Errorf("%w: employee full name is required", ErrValidation)
	}
	return nil
}

// TimesheetEntry is one employee's clock session for one calendar day.
//
// ID is a locally generated provisional identifier until the entry has
// been accepted by the remote store, at which point it is replaced by the
// server-assigned id (see Store.ReplaceTimesheetID). EmployeeID may be
// empty when only a name was available at clock-in; EmployeeName is the
// fallback identity.
type TimesheetEntry struct {
	ID           string
	EmployeeID   string
	EmployeeName string
	ClockInTime  time.Time
	ClockOutTime *time.Time
	SessionDate  string
	Status       string
	TotalHours   *float64
	Notes        string
	Synced       bool
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Validate enforces the status/clock-out invariants before a write:
// clocked_in entries must have no clock-out time, clocked_out entries
// must have one.
func (t *TimesheetEntry) Validate() error {
	if strings.TrimSpace(t.ID) == "" {
		return fmt.Errorf("%w: timesheet id is required", ErrValidation)
	}
	if t.EmployeeID == "" && strings.TrimSpace(t.EmployeeName) == "" {
		return fmt.Errorf("%w: timesheet needs an employee id or name", ErrValidation)
	}
	if t.ClockInTime.IsZero() {
		return fmt.Errorf("%w: clock-in time is required", ErrValidation)
	}
	if t.SessionDate == "" {
		return fmt.Errorf("%w: session date is required", ErrValidation)
	}
	switch t.Status {
	case StatusClockedIn:
		if t.ClockOutTime != nil {
			return fmt.Errorf("%w: clocked_in entry must not have a clock-out time", ErrValidation)
		}
	case StatusClockedOut:
		if t.ClockOutTime == nil {
			return fmt.Errorf("%w: clocked_out entry must have a clock-out time", ErrValidation)
		}
	default:
		return fmt.Errorf("%w: unknown status %q", ErrValidation, t.Status)
	}
	return nil
}

// PendingChangeRecord is one queued local mutation awaiting transmission
// to the remote store. Records are append-only and sequence-ordered by ID.
type PendingChangeRecord struct {
	ID         int64
	ChangeType string
	Payload    string
	CreatedAt  time.Time
	Synced     bool
}

// Validate checks the change record before it is appended.
func (p *PendingChangeRecord) Validate() error {
	if strings.TrimSpace(p.ChangeType) == "" {
		return fmt.Errorf("%w: pending change type is required", ErrValidation)
	}
	return nil
}
