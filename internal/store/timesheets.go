package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"
)

// UpsertTimesheet inserts or updates a timesheet entry keyed by id.
func (s *Store) UpsertTimesheet(ctx context.Context, t *TimesheetEntry) error {
	if err := t.Validate(); err != nil {
		return err
	}

	query := `
	INSERT INTO timesheets (
		id, employee_id, employee_name, clock_in_time, clock_out_time,
		session_date, status, total_hours, notes, synced, created_at, updated_at
	) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT(id) DO UPDATE SET
		employee_id = excluded.employee_id,
		employee_name = excluded.employee_name,
		clock_in_time = excluded.clock_in_time,
		clock_out_time = excluded.clock_out_time,
		session_date = excluded.session_date,
		status = excluded.status,
		total_hours = excluded.total_hours,
		notes = excluded.notes,
		synced = excluded.synced,
		updated_at = excluded.updated_at
	`

	now := time.Now().UTC()
	createdAt := t.CreatedAt
	if createdAt.IsZero() {
		createdAt = now
	}

	_, err := s.conn.ExecContext(ctx, query,
		t.ID,
		nullIfEmpty(t.EmployeeID),
		t.EmployeeName,
		t.ClockInTime.UTC().Format(time.RFC3339),
		timeToNullString(t.ClockOutTime),
		t.SessionDate,
		t.Status,
		floatToNull(t.TotalHours),
		t.Notes,
		boolToInt(t.Synced),
		createdAt.Format(time.RFC3339),
		now.Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("failed to upsert timesheet %s: %w", t.ID, err)
	}
	return nil
}

// GetTimesheet retrieves a single entry by id.
// Returns ErrNotFound if no entry exists.
func (s *Store) GetTimesheet(ctx context.Context, id string) (*TimesheetEntry, error) {
	row := s.conn.QueryRowContext(ctx, selectTimesheet+` WHERE id = ?`, id)
	t, err := scanTimesheet(row)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("%w: timesheet %s", ErrNotFound, id)
	}
	return t, err
}

// TimesheetFilter configures ListTimesheets. Zero values mean "no filter".
type TimesheetFilter struct {
	// EmployeeID filters by employee identity.
	EmployeeID string
	// EmployeeName filters by fallback name identity (case-insensitive).
	EmployeeName string
	// SessionDate filters by the daily partition key (YYYY-MM-DD).
	SessionDate string
	// SessionDateBefore keeps entries strictly older than the given date.
	SessionDateBefore string
	// SessionDateSince keeps entries on or after the given date.
	SessionDateSince string
	// Status filters by clocked_in/clocked_out.
	Status string
	// Synced filters by sync state when non-nil.
	Synced *bool
	// Limit restricts the number of results (0 = no limit).
	Limit int
}

// ListTimesheets retrieves entries matching the filter, ordered by
// session date then creation time so recovery searches see newest last.
func (s *Store) ListTimesheets(ctx context.Context, filter TimesheetFilter) ([]*TimesheetEntry, error) {
	var conditions []string
	var args []any

	if filter.EmployeeID != "" {
		conditions = append(conditions, "employee_id = ?")
		args = append(args, filter.EmployeeID)
	}
	if filter.EmployeeName != "" {
		conditions = append(conditions, "employee_name = ? COLLATE NOCASE")
		args = append(args, filter.EmployeeName)
	}
	if filter.SessionDate != "" {
		conditions = append(conditions, "session_date = ?")
		args = append(args, filter.SessionDate)
	}
	if filter.SessionDateBefore != "" {
		conditions = append(conditions, "session_date < ?")
		args = append(args, filter.SessionDateBefore)
	}
	if filter.SessionDateSince != "" {
		conditions = append(conditions, "session_date >= ?")
		args = append(args, filter.SessionDateSince)
	}
	if filter.Status != "" {
		conditions = append(conditions, "status = ?")
		args = append(args, filter.Status)
	}
	if filter.Synced != nil {
		conditions = append(conditions, "synced = ?")
		args = append(args, boolToInt(*filter.Synced))
	}

	query := selectTimesheet
	if len(conditions) > 0 {
		query += " WHERE " + strings.Join(conditions, " AND ")
	}
	query += " ORDER BY session_date ASC, created_at ASC"

	if filter.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, filter.Limit)
	}

	rows, err := s.conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list timesheets: %w", err)
	}
	defer rows.Close()

	return scanTimesheets(rows)
}

// OpenSessions returns all entries still clocked_in for the given
// employee and session date. More than one result indicates corrupt
// history that a repair pass should resolve.
func (s *Store) OpenSessions(ctx context.Context, employeeID, sessionDate string) ([]*TimesheetEntry, error) {
	return s.ListTimesheets(ctx, TimesheetFilter{
		EmployeeID:  employeeID,
		SessionDate: sessionDate,
		Status:      StatusClockedIn,
	})
}

// CloseTimesheet applies the clock-out as a targeted field update:
// status, clock-out time, derived hours and an optional annotation.
func (s *Store) CloseTimesheet(ctx context.Context, id string, clockOut time.Time, totalHours float64, note string) error {
	query := `
	UPDATE timesheets SET
		status = ?,
		clock_out_time = ?,
		total_hours = ?,
		notes = CASE WHEN ? = '' THEN notes ELSE ? END,
		synced = 0,
		updated_at = ?
	WHERE id = ?
	`
	res, err := s.conn.ExecContext(ctx, query,
		StatusClockedOut,
		clockOut.UTC().Format(time.RFC3339),
		totalHours,
		note, note,
		time.Now().UTC().Format(time.RFC3339Nano),
		id,
	)
	if err != nil {
		return fmt.Errorf("failed to close timesheet %s: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err == nil && n == 0 {
		return fmt.Errorf("%w: timesheet %s", ErrNotFound, id)
	}
	return nil
}

// SetTimesheetStatus flips only the status column. Used by repair when an
// entry already carries a clock-out time but was left clocked_in.
func (s *Store) SetTimesheetStatus(ctx context.Context, id, status string) error {
	_, err := s.conn.ExecContext(ctx,
		`UPDATE timesheets SET status = ?, updated_at = ? WHERE id = ?`,
		status, time.Now().UTC().Format(time.RFC3339Nano), id)
	if err != nil {
		return fmt.Errorf("failed to set timesheet %s status: %w", id, err)
	}
	return nil
}

// MarkTimesheetSynced flips the synced flag for one entry, guarded by the
// updated_at value from the caller's snapshot. A local write that landed
// after the snapshot makes the guard miss: the entry stays unsynced and is
// pushed again on the next pass instead of silently losing the write. The
// returned bool reports whether the mark applied.
func (s *Store) MarkTimesheetSynced(ctx context.Context, id string, seen time.Time) (bool, error) {
	res, err := s.conn.ExecContext(ctx,
		`UPDATE timesheets SET synced = 1, updated_at = ? WHERE id = ? AND updated_at = ?`,
		time.Now().UTC().Format(time.RFC3339Nano), id, seen.UTC().Format(time.RFC3339Nano))
	if err != nil {
		return false, fmt.Errorf("failed to mark timesheet %s synced: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to mark timesheet %s synced: %w", id, err)
	}
	return n > 0, nil
}

// ReplaceTimesheetID adopts the server-assigned id for a provisional
// local entry, atomically. The entry is marked synced only when it is
// unchanged since the caller's snapshot (same updated_at guard as
// MarkTimesheetSynced); an interleaved local write leaves the renamed
// entry unsynced so the next pass pushes it under the adopted id.
func (s *Store) ReplaceTimesheetID(ctx context.Context, oldID, newID string, seen time.Time) error {
	tx, err := s.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx,
		`UPDATE timesheets SET
			id = ?,
			synced = CASE WHEN updated_at = ? THEN 1 ELSE synced END,
			updated_at = ?
		WHERE id = ?`,
		newID, seen.UTC().Format(time.RFC3339Nano), time.Now().UTC().Format(time.RFC3339Nano), oldID)
	if err != nil {
		return fmt.Errorf("failed to adopt server id for %s: %w", oldID, err)
	}
	n, err := res.RowsAffected()
	if err == nil && n == 0 {
		return fmt.Errorf("%w: timesheet %s", ErrNotFound, oldID)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// DeleteTimesheet removes an entry. Idempotent: deleting a missing id
// returns nil.
func (s *Store) DeleteTimesheet(ctx context.Context, id string) error {
	_, err := s.conn.ExecContext(ctx, `DELETE FROM timesheets WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete timesheet %s: %w", id, err)
	}
	return nil
}

const selectTimesheet = `
	SELECT id, employee_id, employee_name, clock_in_time, clock_out_time,
	       session_date, status, total_hours, notes, synced, created_at, updated_at
	FROM timesheets`

func scanTimesheet(row rowScanner) (*TimesheetEntry, error) {
	var t TimesheetEntry
	var employeeID sql.NullString
	var clockIn, createdAt, updatedAt string
	var clockOut sql.NullString
	var totalHours sql.NullFloat64
	var synced int

	err := row.Scan(
		&t.ID,
		&employeeID,
		&t.EmployeeName,
		&clockIn,
		&clockOut,
		&t.SessionDate,
		&t.Status,
		&totalHours,
		&t.Notes,
		&synced,
		&createdAt,
		&updatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, err
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan timesheet: %w", err)
	}

	t.EmployeeID = employeeID.String
	if parsed, err := time.Parse(time.RFC3339, clockIn); err == nil {
		t.ClockInTime = parsed
	}
	t.ClockOutTime = nullStringToTime(clockOut)
	if totalHours.Valid {
		v := totalHours.Float64
		t.TotalHours = &v
	}
	t.Synced = synced != 0
	if parsed, err := time.Parse(time.RFC3339, createdAt); err == nil {
		t.CreatedAt = parsed
	}
	if parsed, err := time.Parse(time.RFC3339, updatedAt); err == nil {
		t.UpdatedAt = parsed
	}
	return &t, nil
}

func scanTimesheets(rows *sql.Rows) ([]*TimesheetEntry, error) {
	var entries []*TimesheetEntry
	for rows.Next() {
		t, err := scanTimesheet(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating timesheets: %w", err)
	}
	return entries, nil
}

func nullIfEmpty(s string) sql.NullString {
	if s == "" {
		return sql.NullString{Valid: false}
	}
	return sql.NullString{String: s, Valid: true}
}

func floatToNull(f *float64) sql.NullFloat64 {
	if f == nil {
		return sql.NullFloat64{Valid: false}
	}
	return sql.NullFloat64{Float64: *f, Valid: true}
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
