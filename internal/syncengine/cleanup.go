package syncengine

import (
	"context"
	"fmt"
	"time"

	"github.com/lavamatic/pos/internal/remote"
	"github.com/lavamatic/pos/internal/store"
)

// CleanupSummary reports what a full cleanup changed.
type CleanupSummary struct {
	OrphanedRemoved     int
	StaleClosed         int
	RetentionPurged     int
	SyncedChangesPurged int64
}

// Cleanup runs the coordinated repair pass against the remote store:
//
//	(a) load all valid employee ids
//	(b) delete timesheet rows referencing no valid employee
//	(c) force-close open sessions older than yesterday
//	(d) purge completed rows older than the retention window
//	(e) purge locally queued changes already marked synced
//
// Steps (b)-(d) run against data loaded once at the start, so the
// operation is consistent with respect to a single snapshot even though
// the writes go out in multiple round trips. Safe to run repeatedly and
// concurrently with a foreground sync pass: every write is keyed by
// primary id.
func (e *Engine) Cleanup(ctx context.Context) (CleanupSummary, error) {
	var summary CleanupSummary

	validIDs, err := e.remoteEmployeeIDs(ctx)
	if err != nil {
		return summary, err
	}

	var rows []remote.Row
	err = e.cfg.Retry.Do(ctx, func() error {
		var callErr error
		rows, callErr = e.remote.Select(ctx, TableTimesheets, remote.SelectOptions{})
		return callErr
	})
	if err != nil {
		return summary, fmt.Errorf("failed to load remote timesheets: %w", err)
	}

	now := e.now()
	stale := staleCutoff(now)
	retention := store.SessionDate(now.AddDate(0, 0, -e.cfg.RetentionDays))

	for _, row := range rows {
		id := asString(row["id"])
		if id == "" {
			continue
		}
		employeeID := asString(row["employee_id"])
		status := asString(row["status"])
		sessionDate := asString(row["session_date"])

		switch {
		case employeeID != "" && !validIDs[employeeID]:
			if e.deleteRemoteTimesheet(ctx, id) {
				e.logger.Printf("cleanup: removed orphaned timesheet %s (employee %s)", id, employeeID)
				summary.OrphanedRemoved++
			}

		case status == store.StatusClockedOut && sessionDate != "" && sessionDate < retention:
			if e.deleteRemoteTimesheet(ctx, id) {
				summary.RetentionPurged++
			}

		case status == store.StatusClockedIn && sessionDate != "" && sessionDate < stale:
			patch := remote.Row{
				"status":         store.StatusClockedOut,
				"clock_out_time": now.UTC().Format(time.RFC3339),
				"notes":          "auto-closed stale session",
			}
			err := e.cfg.Retry.Do(ctx, func() error {
				_, callErr := e.remote.Update(ctx, TableTimesheets, []remote.Filter{remote.Eq("id", id)}, patch)
				return callErr
			})
			if err != nil {
				e.logger.Printf("cleanup: failed to close stale session %s: %v", id, err)
				continue
			}
			summary.StaleClosed++
		}
	}

	purged, err := e.queue.PurgeSynced(ctx)
	if err != nil {
		e.logger.Printf("cleanup: failed to purge synced changes: %v", err)
	} else {
		summary.SyncedChangesPurged = purged
	}

	e.logger.Printf("cleanup complete: %d orphaned removed, %d stale closed, %d purged by retention, %d synced changes purged",
		summary.OrphanedRemoved, summary.StaleClosed, summary.RetentionPurged, summary.SyncedChangesPurged)
	return summary, nil
}

func (e *Engine) deleteRemoteTimesheet(ctx context.Context, id string) bool {
	err := e.cfg.Retry.Do(ctx, func() error {
		_, callErr := e.remote.Delete(ctx, TableTimesheets, []remote.Filter{remote.Eq("id", id)})
		return callErr
	})
	if err != nil {
		e.logger.Printf("cleanup: failed to delete timesheet %s: %v", id, err)
		return false
	}
	return true
}

// Recommendation values surfaced by Diagnose.
const (
	RecommendationRunCleanup = "RUN_CLEANUP"
	RecommendationNoAction   = "NO_ACTION_NEEDED"
)

// DiagnosticsReport compares today's active sessions against the valid
// employee set without mutating anything. It is the cheap check run
// before deciding whether a repair pass is warranted.
type DiagnosticsReport struct {
	ActiveSessions int
	ValidActive    int
	OrphanedActive int
	StaleOpen      int
	EmployeesKnown int
	Recommendation string
}

// Diagnose builds a read-only report of today's local clock state. The
// valid employee set comes from the remote store when reachable and the
// local mirror otherwise.
func (e *Engine) Diagnose(ctx context.Context) (DiagnosticsReport, error) {
	report := DiagnosticsReport{Recommendation: RecommendationNoAction}

	validIDs, err := e.remoteEmployeeIDs(ctx)
	if err != nil {
		e.logger.Printf("diagnose: remote employees unavailable, using local mirror: %v", err)
		local, localErr := e.store.ListEmployees(ctx)
		if localErr != nil {
			return report, localErr
		}
		validIDs = make(map[string]bool, len(local))
		for _, emp := range local {
			validIDs[emp.ID] = true
		}
	}
	report.EmployeesKnown = len(validIDs)

	today := store.SessionDate(e.now())
	active, err := e.store.ListTimesheets(ctx, store.TimesheetFilter{
		SessionDate: today,
		Status:      store.StatusClockedIn,
	})
	if err != nil {
		return report, err
	}

	for _, entry := range active {
		report.ActiveSessions++
		if entry.EmployeeID == "" || validIDs[entry.EmployeeID] {
			report.ValidActive++
		} else {
			report.OrphanedActive++
		}
	}

	stale, err := e.store.ListTimesheets(ctx, store.TimesheetFilter{
		Status:            store.StatusClockedIn,
		SessionDateBefore: staleCutoff(e.now()),
	})
	if err != nil {
		return report, err
	}
	report.StaleOpen = len(stale)

	if report.OrphanedActive > 0 || report.StaleOpen > 0 {
		report.Recommendation = RecommendationRunCleanup
	}
	return report, nil
}
