package syncengine

import (
	"context"
	"fmt"
	"time"

	"github.com/lavamatic/pos/internal/clock"
	"github.com/lavamatic/pos/internal/remote"
	"github.com/lavamatic/pos/internal/store"
)

// RepairOrphans deletes remote timesheet rows whose employee_id matches
// no known employee profile.
//
// Only remote rows are touched: a local record that has not synced yet is
// never deleted, so data still waiting for its employee reference to
// resolve gets its chance. Entries carrying only a fallback name (null
// employee_id) are kept. Idempotent: a second run finds nothing and
// reports zero removals.
func (e *Engine) RepairOrphans(ctx context.Context) (int, error) {
	validIDs, err := e.remoteEmployeeIDs(ctx)
	if err != nil {
		return 0, err
	}

	var rows []remote.Row
	err = e.cfg.Retry.Do(ctx, func() error {
		var callErr error
		rows, callErr = e.remote.Select(ctx, TableTimesheets, remote.SelectOptions{})
		return callErr
	})
	if err != nil {
		return 0, fmt.Errorf("failed to load remote timesheets: %w", err)
	}

	removed := 0
	for _, row := range rows {
		employeeID := asString(row["employee_id"])
		if employeeID == "" || validIDs[employeeID] {
			continue
		}
		id := asString(row["id"])
		if id == "" {
			continue
		}
		err := e.cfg.Retry.Do(ctx, func() error {
			_, callErr := e.remote.Delete(ctx, TableTimesheets, []remote.Filter{remote.Eq("id", id)})
			return callErr
		})
		if err != nil {
			e.logger.Printf("failed to delete orphaned timesheet %s: %v", id, err)
			continue
		}
		e.logger.Printf("deleted orphaned timesheet %s (employee %s unknown)", id, employeeID)
		removed++
	}
	return removed, nil
}

// RepairStatusMismatches fixes local entries whose status disagrees with
// their clock-out timestamp, applying targeted field updates only:
//
//   - clocked_in with a clock-out time set becomes clocked_out
//   - clocked_out with no clock-out time is closed now and annotated
//
// These are integrity faults, always auto-repaired and never surfaced to
// the operator as blocking errors. Idempotent: the second run in a row
// reports zero records changed.
func (e *Engine) RepairStatusMismatches(ctx context.Context) (int, error) {
	entries, err := e.store.ListTimesheets(ctx, store.TimesheetFilter{})
	if err != nil {
		return 0, err
	}

	repaired := 0
	now := e.now()
	for _, entry := range entries {
		switch {
		case entry.Status == store.StatusClockedIn && entry.ClockOutTime != nil:
			if err := e.store.SetTimesheetStatus(ctx, entry.ID, store.StatusClockedOut); err != nil {
				e.logger.Printf("failed to repair status of %s: %v", entry.ID, err)
				continue
			}
			e.logger.Printf("repaired %s: clocked_in with clock-out time set", entry.ID)
			repaired++

		case entry.Status == store.StatusClockedOut && entry.ClockOutTime == nil:
			hours := clock.RoundHours(now.Sub(entry.ClockInTime))
			if err := e.store.CloseTimesheet(ctx, entry.ID, now, hours, "auto-closed"); err != nil {
				e.logger.Printf("failed to repair clock-out time of %s: %v", entry.ID, err)
				continue
			}
			e.logger.Printf("repaired %s: clocked_out with no clock-out time", entry.ID)
			repaired++
		}
	}
	return repaired, nil
}

// CloseStaleSessions force-closes local sessions still open past the end
// of their session date: any entry clocked_in with a session date
// strictly before yesterday never got a clock-out and a full day has
// elapsed. Entries from today and yesterday are left untouched.
func (e *Engine) CloseStaleSessions(ctx context.Context) (int, error) {
	now := e.now()
	yesterday := store.SessionDate(now.AddDate(0, 0, -1))

	stale, err := e.store.ListTimesheets(ctx, store.TimesheetFilter{
		Status:            store.StatusClockedIn,
		SessionDateBefore: yesterday,
	})
	if err != nil {
		return 0, err
	}

	closed := 0
	for _, entry := range stale {
		hours := clock.RoundHours(now.Sub(entry.ClockInTime))
		if err := e.store.CloseTimesheet(ctx, entry.ID, now, hours, "auto-closed stale session"); err != nil {
			e.logger.Printf("failed to close stale session %s: %v", entry.ID, err)
			continue
		}
		e.logger.Printf("auto-closed stale session %s (%s, %s)", entry.ID, entry.EmployeeName, entry.SessionDate)
		closed++
	}
	return closed, nil
}

// remoteEmployeeIDs loads the set of valid employee ids from the remote
// store under the retry policy.
func (e *Engine) remoteEmployeeIDs(ctx context.Context) (map[string]bool, error) {
	if e.remote == nil {
		return nil, fmt.Errorf("%w: no remote store configured", remote.ErrRemoteUnavailable)
	}

	var rows []remote.Row
	err := e.cfg.Retry.Do(ctx, func() error {
		var callErr error
		rows, callErr = e.remote.Select(ctx, TableEmployees, remote.SelectOptions{})
		return callErr
	})
	if err != nil {
		return nil, fmt.Errorf("failed to load remote employees: %w", err)
	}

	ids := make(map[string]bool, len(rows))
	for _, row := range rows {
		if id := asString(row["id"]); id != "" {
			ids[id] = true
		}
	}
	return ids, nil
}

// staleCutoff reports the session date before which an open session
// counts as stale.
func staleCutoff(now time.Time) string {
	return store.SessionDate(now.AddDate(0, 0, -1))
}
