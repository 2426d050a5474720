package syncengine

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lavamatic/pos/internal/remotetest"
	"github.com/lavamatic/pos/internal/store"
)

func TestRepairOrphansRemovesUnknownEmployees(t *testing.T) {
	f := newEngineFixture(t, map[string][]remotetest.Row{
		"employees": {
			{"id": "emp-1", "full_name": "Jane Doe"},
		},
		"timesheets": {
			{"id": "ts-1", "employee_id": "emp-1", "status": "clocked_in"},
			{"id": "ts-2", "employee_id": "emp-gone", "status": "clocked_in"},
			{"id": "ts-3", "employee_name": "Name Only", "status": "clocked_in"},
		},
	})
	ctx := context.Background()

	removed, err := f.engine.RepairOrphans(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, removed)

	rows := f.srv.Rows("timesheets")
	require.Len(t, rows, 2)
	for _, row := range rows {
		assert.NotEqual(t, "ts-2", row["id"])
	}

	// Second run finds nothing.
	removed, err = f.engine.RepairOrphans(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, removed)
}

func TestRepairStatusMismatches(t *testing.T) {
	f := newEngineFixture(t, map[string][]remotetest.Row{})
	ctx := context.Background()

	now := time.Date(2026, 8, 24, 18, 0, 0, 0, time.UTC)
	f.engine.now = func() time.Time { return now }

	in := now.Add(-8 * time.Hour)
	out := now.Add(-time.Hour)
	hours := 7.0

	raw := []*store.TimesheetEntry{
		// clocked_in but a clock-out time is set.
		{ID: "ts-1", EmployeeID: "emp-1", ClockInTime: in, ClockOutTime: &out,
			SessionDate: store.SessionDate(in), Status: store.StatusClockedIn},
		// clocked_out but no clock-out time.
		{ID: "ts-2", EmployeeID: "emp-1", ClockInTime: in,
			SessionDate: store.SessionDate(in), Status: store.StatusClockedOut},
		// Consistent; untouched.
		{ID: "ts-3", EmployeeID: "emp-1", ClockInTime: in, ClockOutTime: &out,
			SessionDate: store.SessionDate(in), Status: store.StatusClockedOut, TotalHours: &hours},
	}
	for _, entry := range raw {
		require.NoError(t, f.store.UpsertTimesheet(ctx, entry))
	}

	repaired, err := f.engine.RepairStatusMismatches(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, repaired)

	got, err := f.store.GetTimesheet(ctx, "ts-1")
	require.NoError(t, err)
	assert.Equal(t, store.StatusClockedOut, got.Status)

	got, err = f.store.GetTimesheet(ctx, "ts-2")
	require.NoError(t, err)
	assert.Equal(t, store.StatusClockedOut, got.Status)
	require.NotNil(t, got.ClockOutTime)
	assert.Equal(t, "auto-closed", got.Notes)

	// Idempotent: the second run in a row changes nothing.
	repaired, err = f.engine.RepairStatusMismatches(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, repaired)
}

func TestCloseStaleSessions(t *testing.T) {
	f := newEngineFixture(t, map[string][]remotetest.Row{})
	ctx := context.Background()

	now := time.Date(2026, 8, 24, 10, 0, 0, 0, time.UTC)
	f.engine.now = func() time.Time { return now }

	mk := func(id string, daysAgo int) {
		in := now.AddDate(0, 0, -daysAgo)
		require.NoError(t, f.store.UpsertTimesheet(ctx, &store.TimesheetEntry{
			ID: id, EmployeeID: "emp-1", ClockInTime: in,
			SessionDate: store.SessionDate(in), Status: store.StatusClockedIn,
		}))
	}
	mk("ts-today", 0)
	mk("ts-yesterday", 1)
	mk("ts-old", 2)
	mk("ts-older", 5)

	closed, err := f.engine.CloseStaleSessions(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, closed)

	// Today's and yesterday's sessions are still open.
	for _, id := range []string{"ts-today", "ts-yesterday"} {
		got, err := f.store.GetTimesheet(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, store.StatusClockedIn, got.Status, id)
	}
	for _, id := range []string{"ts-old", "ts-older"} {
		got, err := f.store.GetTimesheet(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, store.StatusClockedOut, got.Status, id)
		assert.Equal(t, "auto-closed stale session", got.Notes)
	}

	closed, err = f.engine.CloseStaleSessions(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, closed)
}

func TestStaleCutoff(t *testing.T) {
	now := time.Date(2026, 8, 24, 3, 0, 0, 0, time.UTC)
	assert.Equal(t, "2026-08-23", staleCutoff(now))
}
