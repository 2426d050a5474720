// Package syncengine reconciles the terminal's local state with the
// authoritative remote store.
//
// The engine pushes unsynced timesheets and queued change records,
// adopting server-assigned ids for locally provisioned entries, and
// repairs divergence it finds along the way: orphaned timesheets, status
// and timestamp mismatches, and sessions left open past their day.
//
// All repair duties are idempotent and independently triggerable; they
// express their effects as upserts and deletes keyed by primary id, so
// running them repeatedly, out of order, or concurrently with a
// foreground sync pass converges to the same end state. Local state is
// read and released before any network round trip; only the narrow
// mark-synced / adopt-server-id step takes a fresh local write.
package syncengine

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"github.com/lavamatic/pos/internal/clock"
	"github.com/lavamatic/pos/internal/kvcache"
	"github.com/lavamatic/pos/internal/queue"
	"github.com/lavamatic/pos/internal/remote"
	"github.com/lavamatic/pos/internal/store"
)

// Remote table names.
const (
	TableEmployees  = "employees"
	TableTimesheets = "timesheets"
	TableEvents     = "terminal_events"
)

// provisionalPrefix marks timesheet ids generated locally before the
// remote store has assigned a canonical id.
const provisionalPrefix = "local-"

// Config tunes one engine instance.
type Config struct {
	// TerminalID identifies this device in pushed event records.
	TerminalID string
	// Retry bounds every remote call the engine makes.
	Retry remote.RetryPolicy
	// TableMissingTTL is how long a "relation does not exist" answer is
	// cached before the table is probed again.
	TableMissingTTL time.Duration
	// RetentionDays is the completed-record retention window used by
	// Cleanup. Defaults to 90.
	RetentionDays int
	// Logger for engine activity.
	Logger *log.Logger
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		TerminalID:      "terminal-1",
		Retry:           remote.DefaultRetryPolicy(),
		TableMissingTTL: 10 * time.Minute,
		RetentionDays:   90,
		Logger:          log.New(os.Stderr, "[sync] ", log.LstdFlags),
	}
}

// Engine drives synchronization and repair.
type Engine struct {
	store  *store.Store
	queue  *queue.Queue
	remote *remote.Client
	cache  *kvcache.Cache
	cfg    Config
	tables *tableCache
	logger *log.Logger

	now func() time.Time
}

// New creates an Engine. The kvcache may be nil; employee snapshots are
// then skipped.
func New(st *store.Store, q *queue.Queue, rc *remote.Client, cache *kvcache.Cache, cfg Config) *Engine {
	if cfg.Logger == nil {
		cfg.Logger = log.New(os.Stderr, "[sync] ", log.LstdFlags)
	}
	if cfg.RetentionDays <= 0 {
		cfg.RetentionDays = 90
	}
	return &Engine{
		store:  st,
		queue:  q,
		remote: rc,
		cache:  cache,
		cfg:    cfg,
		tables: newTableCache(cfg.TableMissingTTL),
		logger: cfg.Logger,
		now:    time.Now,
	}
}

// InvalidateTable forgets a cached "table missing" answer, forcing the
// next call to probe the remote store again.
func (e *Engine) InvalidateTable(table string) {
	e.tables.Invalidate(table)
}

// RecordResult is the per-record outcome of a sync pass. Individual
// record failures never abort the batch; they are reported here instead.
type RecordResult struct {
	ID       string
	Success  bool
	ServerID string
	Err      error
}

// SyncPendingChanges pushes every unsynced timesheet and queued change
// record to the remote store.
//
// Local state is snapshot-read up front; no local lock is held across a
// network round trip. Records with a provisional id are inserted and the
// server id adopted in their place; records with a canonical id are
// upserted. Each record runs under the retry policy. The error return is
// reserved for failures reading the queue itself.
func (e *Engine) SyncPendingChanges(ctx context.Context) ([]RecordResult, error) {
	unsynced := false
	entries, err := e.store.ListTimesheets(ctx, store.TimesheetFilter{Synced: &unsynced})
	if err != nil {
		return nil, fmt.Errorf("failed to read unsynced timesheets: %w", err)
	}
	changes, err := e.queue.ListUnsynced(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to read pending change queue: %w", err)
	}

	results := make([]RecordResult, 0, len(entries)+len(changes))

	for _, entry := range entries {
		results = append(results, e.pushTimesheet(ctx, entry))
	}
	for _, change := range changes {
		results = append(results, e.pushChange(ctx, change))
	}

	ok := 0
	for _, r := range results {
		if r.Success {
			ok++
		}
	}
	e.logger.Printf("sync pass complete: %d/%d records pushed", ok, len(results))
	return results, nil
}

// pushTimesheet sends one entry to the remote timesheets table and, on
// success, marks it synced (adopting the server id when the entry was
// locally provisioned). The mark is guarded by the snapshot's updated_at:
// a local write that raced the push leaves the entry unsynced so the next
// pass sends the newer state.
func (e *Engine) pushTimesheet(ctx context.Context, entry *store.TimesheetEntry) RecordResult {
	result := RecordResult{ID: entry.ID}

	if e.tables.IsMissing(TableTimesheets) {
		result.Err = fmt.Errorf("%w: %s", remote.ErrTableMissing, TableTimesheets)
		return result
	}

	row := timesheetRow(entry)

	var stored remote.Row
	err := e.cfg.Retry.Do(ctx, func() error {
		var callErr error
		if strings.HasPrefix(entry.ID, provisionalPrefix) {
			// Insert without an id; the remote store assigns one.
			delete(row, "id")
			stored, callErr = e.remote.Insert(ctx, TableTimesheets, row)
		} else {
			stored, callErr = e.remote.Upsert(ctx, TableTimesheets, row)
		}
		return callErr
	})
	if err != nil {
		if errors.Is(err, remote.ErrTableMissing) {
			e.tables.MarkMissing(TableTimesheets)
		}
		result.Err = err
		return result
	}

	serverID, _ := stored["id"].(string)
	if serverID == "" {
		serverID = entry.ID
	}
	result.ServerID = serverID

	if strings.HasPrefix(entry.ID, provisionalPrefix) && serverID != entry.ID {
		if err := e.store.ReplaceTimesheetID(ctx, entry.ID, serverID, entry.UpdatedAt); err != nil {
			result.Err = err
			return result
		}
	} else {
		marked, err := e.store.MarkTimesheetSynced(ctx, entry.ID, entry.UpdatedAt)
		if err != nil {
			result.Err = err
			return result
		}
		if !marked {
			e.logger.Printf("timesheet %s changed during push, leaving unsynced for next pass", entry.ID)
		}
	}

	result.Success = true
	return result
}

// pushChange replays one queued change to the remote event table. The
// event key includes the terminal and local sequence id, so replaying
// after a lost acknowledgement is idempotent.
func (e *Engine) pushChange(ctx context.Context, change *store.PendingChangeRecord) RecordResult {
	result := RecordResult{ID: fmt.Sprintf("change-%d", change.ID)}

	if e.tables.IsMissing(TableEvents) {
		result.Err = fmt.Errorf("%w: %s", remote.ErrTableMissing, TableEvents)
		return result
	}

	eventKey := fmt.Sprintf("%s-%d", e.cfg.TerminalID, change.ID)
	row := remote.Row{
		"event_key":   eventKey,
		"terminal_id": e.cfg.TerminalID,
		"change_type": change.ChangeType,
		"payload":     change.Payload,
		"recorded_at": change.CreatedAt.UTC().Format(time.RFC3339),
	}

	err := e.cfg.Retry.Do(ctx, func() error {
		_, callErr := e.remote.Upsert(ctx, TableEvents, row)
		return callErr
	})
	if err != nil {
		if errors.Is(err, remote.ErrTableMissing) {
			e.tables.MarkMissing(TableEvents)
		}
		result.Err = err
		return result
	}

	if failed, err := e.queue.MarkSynced(ctx, []int64{change.ID}); err != nil {
		result.Err = fmt.Errorf("pushed but failed to mark synced (ids %v): %w", failed, err)
		return result
	}

	result.ServerID = eventKey
	result.Success = true
	return result
}

// RefreshEmployees fetches the full employee list from the remote store,
// mirrors it into the local store and refreshes the cached snapshot used
// for offline name resolution.
func (e *Engine) RefreshEmployees(ctx context.Context) ([]*store.EmployeeProfile, error) {
	if e.tables.IsMissing(TableEmployees) {
		return nil, fmt.Errorf("%w: %s", remote.ErrTableMissing, TableEmployees)
	}

	var rows []remote.Row
	err := e.cfg.Retry.Do(ctx, func() error {
		var callErr error
		rows, callErr = e.remote.Select(ctx, TableEmployees, remote.SelectOptions{OrderBy: "full_name"})
		return callErr
	})
	if err != nil {
		if errors.Is(err, remote.ErrTableMissing) {
			e.tables.MarkMissing(TableEmployees)
		}
		return nil, err
	}

	employees := make([]*store.EmployeeProfile, 0, len(rows))
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
		if err := e.store.UpsertEmployee(ctx, emp); err != nil {
			e.logger.Printf("failed to mirror employee %s: %v", emp.ID, err)
			continue
		}
		employees = append(employees, emp)
	}

	if e.cache != nil {
		snapshot := make([]store.EmployeeProfile, len(employees))
		for i, emp := range employees {
			snapshot[i] = *emp
		}
		if err := e.cache.Put(clock.EmployeeSnapshotKey, snapshot); err != nil {
			e.logger.Printf("failed to cache employee snapshot: %v", err)
		}
	}

	e.logger.Printf("refreshed %d employee profiles", len(employees))
	return employees, nil
}

// timesheetRow converts a local entry to its remote representation.
func timesheetRow(entry *store.TimesheetEntry) remote.Row {
	row := remote.Row{
		"id":            entry.ID,
		"employee_name": entry.EmployeeName,
		"clock_in_time": entry.ClockInTime.UTC().Format(time.RFC3339),
		"session_date":  entry.SessionDate,
		"status":        entry.Status,
		"notes":         entry.Notes,
	}
	if entry.EmployeeID != "" {
		row["employee_id"] = entry.EmployeeID
	}
	if entry.ClockOutTime != nil {
		row["clock_out_time"] = entry.ClockOutTime.UTC().Format(time.RFC3339)
	}
	if entry.TotalHours != nil {
		row["total_hours"] = *entry.TotalHours
	}
	return row
}

func asString(v any) string {
	s, _ := v.(string)
	return s
}
