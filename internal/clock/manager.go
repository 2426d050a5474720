// Package clock is the per-employee-per-day clock-in/clock-out state
// machine.
//
// A session moves Absent → ClockedIn → ClockedOut within one session
// date; the next calendar day starts fresh. Every transition is applied
// to the local store first and enqueued for sync, so clocking works with
// no connectivity at all. Name-based entry points resolve employees
// against the remote store when it is reachable, falling back to the
// locally mirrored profiles and the cached employee snapshot.
package clock

import (
	"context"
	"errors"
	"fmt"
	"log"
	"math"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/lavamatic/pos/internal/kvcache"
	"github.com/lavamatic/pos/internal/queue"
	"github.com/lavamatic/pos/internal/remote"
	"github.com/lavamatic/pos/internal/store"
)

// EmployeeSnapshotKey is the kvcache key holding the last-known employee
// list fetched from the remote store.
const EmployeeSnapshotKey = "employees"

// RecoveryLookbackDays bounds how far back a clock-out-by-name searches
// for an unclosed session left behind by a missed or duplicated write.
const RecoveryLookbackDays = 7

// Manager drives clock sessions against the local store.
type Manager struct {
	store  *store.Store
	queue  *queue.Queue
	remote *remote.Client
	cache  *kvcache.Cache
	logger *log.Logger

	now func() time.Time
}

// New creates a Manager. The remote client and cache may be nil, in which
// case name resolution uses only locally mirrored profiles.
// If logger is nil, a default logger writing to stderr is used.
func New(st *store.Store, q *queue.Queue, rc *remote.Client, cache *kvcache.Cache, logger *log.Logger) *Manager {
	if logger == nil {
		logger = log.New(os.Stderr, "[clock] ", log.LstdFlags)
	}
	return &Manager{
		store:  st,
		queue:  q,
		remote: rc,
		cache:  cache,
		logger: logger,
		now:    time.Now,
	}
}

// ClockIn opens today's session for the employee.
//
// Idempotent on benign retry: if an identical open entry already exists
// for today it is returned as-is instead of erroring. This is the pinned
// policy for the id-based entry point; the name-based entry point errors
// instead (see ClockInByName).
func (m *Manager) ClockIn(ctx context.Context, employeeID, employeeName string) (*store.TimesheetEntry, error) {
	now := m.now()
	today := store.SessionDate(now)

	open, err := m.store.OpenSessions(ctx, employeeID, today)
	if err != nil {
		return nil, err
	}
	if len(open) > 0 {
		m.logger.Printf("clock-in retry for %s on %s, returning existing session %s", employeeID, today, open[0].ID)
		return open[0], nil
	}

	return m.createSession(ctx, employeeID, employeeName, now)
}

// ClockOut closes today's open session for the employee and computes the
// worked hours. Fails with ErrNoActiveSession when no open entry exists.
func (m *Manager) ClockOut(ctx context.Context, employeeID string) (*store.TimesheetEntry, error) {
	now := m.now()
	today := store.SessionDate(now)

	open, err := m.store.OpenSessions(ctx, employeeID, today)
	if err != nil {
		return nil, err
	}
	if len(open) == 0 {
		return nil, fmt.Errorf("%w: employee %s on %s", ErrNoActiveSession, employeeID, today)
	}

	return m.closeSession(ctx, open[0], now, "")
}

// ClockInByName resolves a name to an employee and opens today's session.
//
// Unlike the id-based path, a duplicate clock-in here fails with
// ErrAlreadyClockedIn: names are typed by hand, and silently returning an
// existing session would mask one operator clocking in as another.
func (m *Manager) ClockInByName(ctx context.Context, name string) (*store.TimesheetEntry, error) {
	emp, err := m.resolveEmployee(ctx, name)
	if err != nil {
		return nil, err
	}

	now := m.now()
	today := store.SessionDate(now)

	open, err := m.store.OpenSessions(ctx, emp.ID, today)
	if err != nil {
		return nil, err
	}
	if len(open) > 0 {
		return nil, fmt.Errorf("%w: %s on %s", ErrAlreadyClockedIn, emp.FullName, today)
	}

	return m.createSession(ctx, emp.ID, emp.FullName, now)
}

// ClockOutByName resolves a name and closes the employee's session.
//
// If no open session exists for today, a recovery search walks the
// employee's recent entries (bounded lookback) for one with a clock-in
// and no valid closure, tolerating missed or duplicated clock-in writes.
// The returned error distinguishes never-clocked-in, already-clocked-out
// and ambiguous/corrupt history so the operator can be told which.
func (m *Manager) ClockOutByName(ctx context.Context, name string) (*store.TimesheetEntry, error) {
	emp, err := m.resolveEmployee(ctx, name)
	if err != nil {
		return nil, err
	}

	now := m.now()
	today := store.SessionDate(now)

	open, err := m.store.OpenSessions(ctx, emp.ID, today)
	if err != nil {
		return nil, err
	}
	if len(open) == 1 {
		return m.closeSession(ctx, open[0], now, "")
	}
	if len(open) > 1 {
		return nil, fmt.Errorf("%w: %d open sessions for %s on %s", ErrAmbiguousSession, len(open), emp.FullName, today)
	}

	// No exact open session today. Search recent history for an entry
	// that was clocked in but never validly closed.
	candidate, err := m.recoverOpenSession(ctx, emp, today)
	if err != nil {
		return nil, err
	}
	m.logger.Printf("recovered unclosed session %s (%s) for %s", candidate.ID, candidate.SessionDate, emp.FullName)
	return m.closeSession(ctx, candidate, now, "closed via recovery search")
}

func (m *Manager) createSession(ctx context.Context, employeeID, employeeName string, now time.Time) (*store.TimesheetEntry, error) {
	entry := &store.TimesheetEntry{
		ID:           "local-" + uuid.NewString(),
		EmployeeID:   employeeID,
		EmployeeName: employeeName,
		ClockInTime:  now,
		SessionDate:  store.SessionDate(now),
		Status:       store.StatusClockedIn,
	}

	if err := m.store.UpsertTimesheet(ctx, entry); err != nil {
		return nil, err
	}

	if _, err := m.queue.Enqueue(ctx, queue.TypeClockIn, map[string]any{
		"timesheet_id": entry.ID,
		"employee_id":  entry.EmployeeID,
		"session_date": entry.SessionDate,
	}); err != nil {
		m.logger.Printf("failed to enqueue clock-in for %s: %v", entry.ID, err)
	}

	return entry, nil
}

func (m *Manager) closeSession(ctx context.Context, entry *store.TimesheetEntry, now time.Time, note string) (*store.TimesheetEntry, error) {
	hours := RoundHours(now.Sub(entry.ClockInTime))
	if err := m.store.CloseTimesheet(ctx, entry.ID, now, hours, note); err != nil {
		return nil, err
	}

	if _, err := m.queue.Enqueue(ctx, queue.TypeClockOut, map[string]any{
		"timesheet_id": entry.ID,
		"employee_id":  entry.EmployeeID,
		"session_date": entry.SessionDate,
		"total_hours":  hours,
	}); err != nil {
		m.logger.Printf("failed to enqueue clock-out for %s: %v", entry.ID, err)
	}

	return m.store.GetTimesheet(ctx, entry.ID)
}

// recoverOpenSession finds the single unclosed entry in the lookback
// window, or classifies why none can be used.
func (m *Manager) recoverOpenSession(ctx context.Context, emp *store.EmployeeProfile, today string) (*store.TimesheetEntry, error) {
	since := store.SessionDate(m.now().AddDate(0, 0, -RecoveryLookbackDays))

	recent, err := m.store.ListTimesheets(ctx, store.TimesheetFilter{
		EmployeeID:       emp.ID,
		SessionDateSince: since,
	})
	if err != nil {
		return nil, err
	}
	if len(recent) == 0 {
		// Entries written before the profile synced carry only a name.
		recent, err = m.store.ListTimesheets(ctx, store.TimesheetFilter{
			EmployeeName:     emp.FullName,
			SessionDateSince: since,
		})
		if err != nil {
			return nil, err
		}
	}

	var candidates []*store.TimesheetEntry
	closedToday := false
	for _, entry := range recent {
		switch {
		case entry.Status == store.StatusClockedIn && !entry.ClockInTime.IsZero():
			candidates = append(candidates, entry)
		case entry.SessionDate == today && entry.Status == store.StatusClockedOut:
			closedToday = true
		}
	}

	switch {
	case len(candidates) == 1:
		return candidates[0], nil
	case len(candidates) > 1:
		return nil, fmt.Errorf("%w: %d unclosed sessions for %s since %s", ErrAmbiguousSession, len(candidates), emp.FullName, since)
	case closedToday:
		return nil, fmt.Errorf("%w: %s on %s", ErrAlreadyClockedOut, emp.FullName, today)
	default:
		return nil, fmt.Errorf("%w: %s on %s", ErrNoActiveSession, emp.FullName, today)
	}
}

// resolveEmployee maps a typed name to exactly one employee profile,
// case-insensitively. Resolution prefers the remote store; when it is
// unreachable it falls back to locally mirrored profiles, then to the
// cached employee snapshot. Absent and ambiguous matches both fail with
// ErrEmployeeNotFound.
func (m *Manager) resolveEmployee(ctx context.Context, name string) (*store.EmployeeProfile, error) {
	if name == "" {
		return nil, fmt.Errorf("%w: empty name", ErrEmployeeNotFound)
	}

	if m.remote != nil {
		rows, err := m.remote.Select(ctx, "employees", remote.SelectOptions{
			Filters: []remote.Filter{{Column: "full_name", Op: "ilike", Value: name}},
		})
		if err == nil {
			return m.adoptRemoteMatches(ctx, name, rows)
		}
		m.logger.Printf("remote employee lookup failed, using local profiles: %v", err)
	}

	matches, err := m.store.FindEmployeesByName(ctx, name)
	if err != nil {
		return nil, err
	}
	if len(matches) == 0 && m.cache != nil {
		matches = snapshotMatches(m.cache, name)
	}

	return singleMatch(name, matches)
}

// adoptRemoteMatches mirrors remote rows into the local store and
// reduces them to a single profile.
func (m *Manager) adoptRemoteMatches(ctx context.Context, name string, rows []remote.Row) (*store.EmployeeProfile, error) {
	var matches []*store.EmployeeProfile
	for _, row := range rows {
		emp := &store.EmployeeProfile{
			ID:       asString(row["id"]),
			FullName: asString(row["full_name"]),
			Email:    asString(row["email"]),
			Role:     asString(row["role"]),
		}
		if emp.ID == "" {
			continue
		}
		if err := m.store.UpsertEmployee(ctx, emp); err != nil {
			m.logger.Printf("failed to mirror employee %s: %v", emp.ID, err)
		}
		matches = append(matches, emp)
	}
	return singleMatch(name, matches)
}

func singleMatch(name string, matches []*store.EmployeeProfile) (*store.EmployeeProfile, error) {
	switch len(matches) {
	case 1:
		return matches[0], nil
	case 0:
		return nil, fmt.Errorf("%w: no employee named %q", ErrEmployeeNotFound, name)
	default:
		return nil, fmt.Errorf("%w: %d employees named %q", ErrEmployeeNotFound, len(matches), name)
	}
}

// snapshotMatches checks the cached last-known employee list. A missing
// or undecodable snapshot is simply a miss.
func snapshotMatches(cache *kvcache.Cache, name string) []*store.EmployeeProfile {
	var snapshot []store.EmployeeProfile
	if !cache.Get(EmployeeSnapshotKey, &snapshot) {
		return nil
	}
	var matches []*store.EmployeeProfile
	for i := range snapshot {
		if strings.EqualFold(snapshot[i].FullName, name) {
			matches = append(matches, &snapshot[i])
		}
	}
	return matches
}

// RoundHours converts a session duration to hours rounded to two decimal
// places, matching what is printed on the timesheet.
func RoundHours(d time.Duration) float64 {
	if d < 0 {
		d = 0
	}
	return math.Round(d.Hours()*100) / 100
}

// IsConflict reports whether the error is one of the clock conflict
// kinds, as opposed to not-found or storage failures.
func IsConflict(err error) bool {
	return errors.Is(err, ErrAlreadyClockedIn) ||
		errors.Is(err, ErrAlreadyClockedOut) ||
		errors.Is(err, ErrAmbiguousSession)
}

func asString(v any) string {
	s, _ := v.(string)
	return s
}
