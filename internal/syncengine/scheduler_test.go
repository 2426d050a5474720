package syncengine

import (
	"context"
	"io"
	"log"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lavamatic/pos/internal/remotetest"
	"github.com/lavamatic/pos/internal/store"
)

func startScheduler(t *testing.T, f *engineFixture, cfg SchedulerConfig) *Scheduler {
	t.Helper()

	cfg.Logger = log.New(io.Discard, "", 0)
	sched, err := NewScheduler(f.engine, cfg)
	require.NoError(t, err)

	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = sched.Start(context.Background())
	}()
	t.Cleanup(func() {
		_ = sched.Stop()
		<-done
	})
	return sched
}

func waitFor(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()

	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("condition not met before timeout")
}

func TestSchedulerRequiresEngine(t *testing.T) {
	_, err := NewScheduler(nil, SchedulerConfig{})
	assert.Error(t, err)
}

func TestSchedulerTriggerSyncRunsPass(t *testing.T) {
	f := newEngineFixture(t, map[string][]remotetest.Row{
		"timesheets":      {},
		"terminal_events": {},
	})
	ctx := context.Background()

	in := time.Now()
	require.NoError(t, f.store.UpsertTimesheet(ctx, &store.TimesheetEntry{
		ID: "local-a", EmployeeID: "emp-1", ClockInTime: in,
		SessionDate: store.SessionDate(in), Status: store.StatusClockedIn,
	}))

	// Long intervals: only the explicit trigger can cause the pass.
	sched := startScheduler(t, f, SchedulerConfig{
		SyncInterval:    time.Hour,
		CleanupInterval: time.Hour,
	})

	sched.TriggerSync()

	waitFor(t, 5*time.Second, func() bool {
		return len(f.srv.Rows("timesheets")) == 1
	})
}

func TestSchedulerTriggerFileRunsPass(t *testing.T) {
	f := newEngineFixture(t, map[string][]remotetest.Row{
		"timesheets":      {},
		"terminal_events": {},
	})
	ctx := context.Background()

	in := time.Now()
	require.NoError(t, f.store.UpsertTimesheet(ctx, &store.TimesheetEntry{
		ID: "local-b", EmployeeID: "emp-1", ClockInTime: in,
		SessionDate: store.SessionDate(in), Status: store.StatusClockedIn,
	}))

	triggerDir := filepath.Join(t.TempDir(), "triggers")
	startScheduler(t, f, SchedulerConfig{
		SyncInterval:    time.Hour,
		CleanupInterval: time.Hour,
		TriggerDir:      triggerDir,
	})

	// Wait for the scheduler to create and watch the trigger directory
	// before dropping a file into it.
	waitFor(t, 5*time.Second, func() bool {
		_, err := os.Stat(triggerDir)
		return err == nil
	})

	// The front end drops a file to request a "save progress" pass.
	triggerFile := filepath.Join(triggerDir, "save-progress")
	require.NoError(t, os.WriteFile(triggerFile, nil, 0644))

	waitFor(t, 5*time.Second, func() bool {
		return len(f.srv.Rows("timesheets")) == 1
	})

	// The consumed trigger file is removed.
	waitFor(t, 5*time.Second, func() bool {
		_, err := os.Stat(triggerFile)
		return os.IsNotExist(err)
	})
}

func TestSchedulerStartTwiceFails(t *testing.T) {
	f := newEngineFixture(t, map[string][]remotetest.Row{})

	sched := startScheduler(t, f, SchedulerConfig{
		SyncInterval:    time.Hour,
		CleanupInterval: time.Hour,
	})

	// Give the first Start a moment to take the running flag.
	waitFor(t, 5*time.Second, func() bool {
		sched.mu.Lock()
		defer sched.mu.Unlock()
		return sched.running
	})

	err := sched.Start(context.Background())
	require.Error(t, err)
	assert.True(t, strings.Contains(err.Error(), "already running"))
}

func TestSchedulerFailedStartIsRetryable(t *testing.T) {
	f := newEngineFixture(t, map[string][]remotetest.Row{})

	// A regular file where the trigger directory should go makes the
	// MkdirAll inside Start fail.
	blocker := filepath.Join(t.TempDir(), "blocker")
	require.NoError(t, os.WriteFile(blocker, nil, 0644))

	sched, err := NewScheduler(f.engine, SchedulerConfig{
		SyncInterval:    time.Hour,
		CleanupInterval: time.Hour,
		TriggerDir:      filepath.Join(blocker, "triggers"),
		Logger:          log.New(io.Discard, "", 0),
	})
	require.NoError(t, err)

	err = sched.Start(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "trigger directory")

	// The failed start did not leave the scheduler claiming to run; the
	// retry reports the real failure again, not "already running".
	err = sched.Start(context.Background())
	require.Error(t, err)
	assert.NotContains(t, err.Error(), "already running")
	assert.Contains(t, err.Error(), "trigger directory")
}

func TestSchedulerStopIsIdempotent(t *testing.T) {
	f := newEngineFixture(t, map[string][]remotetest.Row{})

	sched, err := NewScheduler(f.engine, SchedulerConfig{
		SyncInterval:    time.Hour,
		CleanupInterval: time.Hour,
		Logger:          log.New(io.Discard, "", 0),
	})
	require.NoError(t, err)

	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = sched.Start(context.Background())
	}()

	waitFor(t, 5*time.Second, func() bool {
		sched.mu.Lock()
		defer sched.mu.Unlock()
		return sched.running
	})

	require.NoError(t, sched.Stop())
	require.NoError(t, sched.Stop())

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("Start did not return after Stop")
	}
}
