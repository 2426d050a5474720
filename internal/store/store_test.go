package store

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// setupTestStore creates a temporary database for testing.
func setupTestStore(t *testing.T) *Store {
	t.Helper()

	dbPath := filepath.Join(t.TempDir(), "test.db")
	st, err := Open(dbPath)
	require.NoError(t, err, "failed to open test store")
	t.Cleanup(func() { _ = st.Close() })
	return st
}

func TestOpenIsIdempotent(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "test.db")

	st, err := Open(dbPath)
	require.NoError(t, err)
	require.NoError(t, st.UpsertEmployee(context.Background(), &EmployeeProfile{
		ID:       "emp-1",
		FullName: "Jane Doe",
		Email:    "jane@example.com",
	}))
	require.NoError(t, st.Close())

	// Reopening applies the schema again; existing records survive.
	st, err = Open(dbPath)
	require.NoError(t, err)
	defer st.Close()

	version, err := st.SchemaVersion(context.Background())
	require.NoError(t, err)
	assert.Equal(t, currentSchemaVersion, version)

	employees, err := st.ListEmployees(context.Background())
	require.NoError(t, err)
	require.Len(t, employees, 1)
	assert.Equal(t, "Jane Doe", employees[0].FullName)
}

func TestEmptyStoreReadsReturnEmpty(t *testing.T) {
	st := setupTestStore(t)
	ctx := context.Background()

	employees, err := st.ListEmployees(ctx)
	require.NoError(t, err)
	assert.Empty(t, employees)

	entries, err := st.ListTimesheets(ctx, TimesheetFilter{})
	require.NoError(t, err)
	assert.Empty(t, entries)

	changes, err := st.ListUnsyncedChanges(ctx)
	require.NoError(t, err)
	assert.Empty(t, changes)

	last, err := st.CounterValue(ctx, TicketCounterName)
	require.NoError(t, err)
	assert.Equal(t, int64(0), last)
}

func TestFindEmployeesByNameCaseInsensitive(t *testing.T) {
	st := setupTestStore(t)
	ctx := context.Background()

	require.NoError(t, st.UpsertEmployee(ctx, &EmployeeProfile{
		ID:       "emp-1",
		FullName: "Jane Doe",
		Email:    "jane@example.com",
	}))

	matches, err := st.FindEmployeesByName(ctx, "jane doe")
	require.NoError(t, err)
	require.Len(t, matches, 1)
	assert.Equal(t, "emp-1", matches[0].ID)

	matches, err = st.FindEmployeesByName(ctx, "John Doe")
	require.NoError(t, err)
	assert.Empty(t, matches)
}

func TestTimesheetValidation(t *testing.T) {
	now := time.Now()
	out := now.Add(4 * time.Hour)

	tests := []struct {
		name    string
		entry   TimesheetEntry
		wantErr bool
	}{
		{
			name: "valid clocked_in",
			entry: TimesheetEntry{
				ID: "ts-1", EmployeeID: "emp-1", ClockInTime: now,
				SessionDate: SessionDate(now), Status: StatusClockedIn,
			},
		},
		{
			name: "valid clocked_out",
			entry: TimesheetEntry{
				ID: "ts-2", EmployeeID: "emp-1", ClockInTime: now, ClockOutTime: &out,
				SessionDate: SessionDate(now), Status: StatusClockedOut,
			},
		},
		{
			name: "clocked_in with clock-out time",
			entry: TimesheetEntry{
				ID: "ts-3", EmployeeID: "emp-1", ClockInTime: now, ClockOutTime: &out,
				SessionDate: SessionDate(now), Status: StatusClockedIn,
			},
			wantErr: true,
		},
		{
			name: "clocked_out without clock-out time",
			entry: TimesheetEntry{
				ID: "ts-4", EmployeeID: "emp-1", ClockInTime: now,
				SessionDate: SessionDate(now), Status: StatusClockedOut,
			},
			wantErr: true,
		},
		{
			name: "no identity at all",
			entry: TimesheetEntry{
				ID: "ts-5", ClockInTime: now,
				SessionDate: SessionDate(now), Status: StatusClockedIn,
			},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.entry.Validate()
			if tt.wantErr {
				require.Error(t, err)
				assert.True(t, errors.Is(err, ErrValidation))
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestTimesheetRoundTrip(t *testing.T) {
	st := setupTestStore(t)
	ctx := context.Background()

	in := time.Date(2026, 8, 24, 9, 0, 0, 0, time.UTC)
	entry := &TimesheetEntry{
		ID:           "local-abc",
		EmployeeID:   "emp-1",
		EmployeeName: "Jane Doe",
		ClockInTime:  in,
		SessionDate:  SessionDate(in),
		Status:       StatusClockedIn,
	}
	require.NoError(t, st.UpsertTimesheet(ctx, entry))

	got, err := st.GetTimesheet(ctx, "local-abc")
	require.NoError(t, err)
	assert.Equal(t, "emp-1", got.EmployeeID)
	assert.Equal(t, StatusClockedIn, got.Status)
	assert.Nil(t, got.ClockOutTime)
	assert.False(t, got.Synced)
	assert.True(t, got.ClockInTime.Equal(in))
}

func TestCloseTimesheet(t *testing.T) {
	st := setupTestStore(t)
	ctx := context.Background()

	in := time.Date(2026, 8, 24, 9, 0, 0, 0, time.UTC)
	out := in.Add(7*time.Hour + 30*time.Minute)
	require.NoError(t, st.UpsertTimesheet(ctx, &TimesheetEntry{
		ID: "ts-1", EmployeeID: "emp-1", ClockInTime: in,
		SessionDate: SessionDate(in), Status: StatusClockedIn,
	}))

	require.NoError(t, st.CloseTimesheet(ctx, "ts-1", out, 7.5, ""))

	got, err := st.GetTimesheet(ctx, "ts-1")
	require.NoError(t, err)
	assert.Equal(t, StatusClockedOut, got.Status)
	require.NotNil(t, got.ClockOutTime)
	assert.True(t, got.ClockOutTime.Equal(out))
	require.NotNil(t, got.TotalHours)
	assert.Equal(t, 7.5, *got.TotalHours)

	// Closing a missing entry reports not found.
	err = st.CloseTimesheet(ctx, "nope", out, 1, "")
	assert.True(t, errors.Is(err, ErrNotFound))
}

func TestReplaceTimesheetID(t *testing.T) {
	st := setupTestStore(t)
	ctx := context.Background()

	in := time.Now()
	require.NoError(t, st.UpsertTimesheet(ctx, &TimesheetEntry{
		ID: "local-xyz", EmployeeID: "emp-1", ClockInTime: in,
		SessionDate: SessionDate(in), Status: StatusClockedIn,
	}))

	snapshot, err := st.GetTimesheet(ctx, "local-xyz")
	require.NoError(t, err)

	require.NoError(t, st.ReplaceTimesheetID(ctx, "local-xyz", "srv-42", snapshot.UpdatedAt))

	_, err = st.GetTimesheet(ctx, "local-xyz")
	assert.True(t, errors.Is(err, ErrNotFound))

	got, err := st.GetTimesheet(ctx, "srv-42")
	require.NoError(t, err)
	assert.True(t, got.Synced)

	err = st.ReplaceTimesheetID(ctx, "local-xyz", "srv-43", snapshot.UpdatedAt)
	assert.True(t, errors.Is(err, ErrNotFound))
}

func TestMarkTimesheetSyncedGuard(t *testing.T) {
	st := setupTestStore(t)
	ctx := context.Background()

	in := time.Now()
	require.NoError(t, st.UpsertTimesheet(ctx, &TimesheetEntry{
		ID: "srv-1", EmployeeID: "emp-1", ClockInTime: in,
		SessionDate: SessionDate(in), Status: StatusClockedIn,
	}))

	snapshot, err := st.GetTimesheet(ctx, "srv-1")
	require.NoError(t, err)

	// Unchanged since the snapshot: the mark applies.
	marked, err := st.MarkTimesheetSynced(ctx, "srv-1", snapshot.UpdatedAt)
	require.NoError(t, err)
	assert.True(t, marked)

	// A clock-out lands between snapshot and mark: the stale mark must
	// miss and leave the entry unsynced.
	snapshot, err = st.GetTimesheet(ctx, "srv-1")
	require.NoError(t, err)
	require.NoError(t, st.CloseTimesheet(ctx, "srv-1", in.Add(8*time.Hour), 8.0, ""))

	marked, err = st.MarkTimesheetSynced(ctx, "srv-1", snapshot.UpdatedAt)
	require.NoError(t, err)
	assert.False(t, marked)

	got, err := st.GetTimesheet(ctx, "srv-1")
	require.NoError(t, err)
	assert.False(t, got.Synced, "interleaved clock-out must stay unsynced")
	assert.Equal(t, StatusClockedOut, got.Status)
}

func TestReplaceTimesheetIDGuard(t *testing.T) {
	st := setupTestStore(t)
	ctx := context.Background()

	in := time.Now()
	require.NoError(t, st.UpsertTimesheet(ctx, &TimesheetEntry{
		ID: "local-race", EmployeeID: "emp-1", ClockInTime: in,
		SessionDate: SessionDate(in), Status: StatusClockedIn,
	}))

	snapshot, err := st.GetTimesheet(ctx, "local-race")
	require.NoError(t, err)

	// Clock out while the insert round trip is in flight, then adopt the
	// server id against the stale snapshot.
	require.NoError(t, st.CloseTimesheet(ctx, "local-race", in.Add(6*time.Hour), 6.0, ""))
	require.NoError(t, st.ReplaceTimesheetID(ctx, "local-race", "srv-9", snapshot.UpdatedAt))

	// The rename happened, but the interleaved clock-out keeps the entry
	// unsynced so the next pass pushes it under the adopted id.
	got, err := st.GetTimesheet(ctx, "srv-9")
	require.NoError(t, err)
	assert.False(t, got.Synced)
	assert.Equal(t, StatusClockedOut, got.Status)
}

func TestListTimesheetsFilters(t *testing.T) {
	st := setupTestStore(t)
	ctx := context.Background()

	mk := func(id, emp, date, status string) {
		entry := &TimesheetEntry{
			ID: id, EmployeeID: emp, EmployeeName: "X",
			ClockInTime: time.Now().AddDate(0, 0, -3),
			SessionDate: date, Status: status,
		}
		if status == StatusClockedOut {
			out := time.Now()
			entry.ClockOutTime = &out
		}
		require.NoError(t, st.UpsertTimesheet(ctx, entry))
	}

	mk("a", "emp-1", "2026-08-20", StatusClockedIn)
	mk("b", "emp-1", "2026-08-24", StatusClockedOut)
	mk("c", "emp-2", "2026-08-24", StatusClockedIn)

	got, err := st.ListTimesheets(ctx, TimesheetFilter{EmployeeID: "emp-1"})
	require.NoError(t, err)
	assert.Len(t, got, 2)

	got, err = st.ListTimesheets(ctx, TimesheetFilter{Status: StatusClockedIn, SessionDateBefore: "2026-08-23"})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "a", got[0].ID)

	open, err := st.OpenSessions(ctx, "emp-2", "2026-08-24")
	require.NoError(t, err)
	require.Len(t, open, 1)
	assert.Equal(t, "c", open[0].ID)
}

func TestCounterRangeIsAtomic(t *testing.T) {
	st := setupTestStore(t)
	ctx := context.Background()

	first, err := st.NextCounterRange(ctx, TicketCounterName, 1)
	require.NoError(t, err)
	assert.Equal(t, int64(1), first)

	first, err = st.NextCounterRange(ctx, TicketCounterName, 5)
	require.NoError(t, err)
	assert.Equal(t, int64(2), first)

	last, err := st.CounterValue(ctx, TicketCounterName)
	require.NoError(t, err)
	assert.Equal(t, int64(6), last)
}

func TestCounterConcurrentCallersNeverOverlap(t *testing.T) {
	st := setupTestStore(t)
	ctx := context.Background()

	const workers = 8
	const perWorker = 10

	var mu sync.Mutex
	seen := make(map[int64]bool)

	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < perWorker; j++ {
				first, err := st.NextCounterRange(ctx, TicketCounterName, 1)
				if err != nil {
					t.Errorf("counter advance failed: %v", err)
					return
				}
				mu.Lock()
				if seen[first] {
					t.Errorf("duplicate ticket number %d", first)
				}
				seen[first] = true
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Len(t, seen, workers*perWorker)
}

func TestPendingChanges(t *testing.T) {
	st := setupTestStore(t)
	ctx := context.Background()

	id1, err := st.AppendPendingChange(ctx, &PendingChangeRecord{ChangeType: "sale", Payload: `{"n":1}`})
	require.NoError(t, err)
	id2, err := st.AppendPendingChange(ctx, &PendingChangeRecord{ChangeType: "sale", Payload: `{"n":2}`})
	require.NoError(t, err)
	assert.Greater(t, id2, id1)

	unsynced, err := st.ListUnsyncedChanges(ctx)
	require.NoError(t, err)
	require.Len(t, unsynced, 2)
	assert.Equal(t, id1, unsynced[0].ID, "creation order preserved")

	// Purge before marking removes nothing.
	purged, err := st.PurgeSyncedChanges(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(0), purged)

	require.NoError(t, st.MarkChangeSynced(ctx, id1))
	// Re-marking is a no-op, as is marking an unknown id.
	require.NoError(t, st.MarkChangeSynced(ctx, id1))
	require.NoError(t, st.MarkChangeSynced(ctx, 9999))

	unsynced, err = st.ListUnsyncedChanges(ctx)
	require.NoError(t, err)
	require.Len(t, unsynced, 1)
	assert.Equal(t, id2, unsynced[0].ID)

	purged, err = st.PurgeSyncedChanges(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), purged)
}
