package store

import (
	"context"
	"fmt"
	"time"
)

// AppendPendingChange appends one unsynced change record and returns its
// sequence-ordered id. Purely local: never touches the network.
func (s *Store) AppendPendingChange(ctx context.Context, rec *PendingChangeRecord) (int64, error) {
	if err := rec.Validate(); err != nil {
		return 0, err
	}

	createdAt := rec.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}

	res, err := s.conn.ExecContext(ctx,
		`INSERT INTO pending_changes (change_type, payload, created_at, synced)
		 VALUES (?, ?, ?, 0)`,
		rec.ChangeType, rec.Payload, createdAt.Format(time.RFC3339))
	if err != nil {
		return 0, fmt.Errorf("failed to append pending change: %w", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("failed to read pending change id: %w", err)
	}
	return id, nil
}

// ListUnsyncedChanges returns unsynced records in creation order.
func (s *Store) ListUnsyncedChanges(ctx context.Context) ([]*PendingChangeRecord, error) {
	rows, err := s.conn.QueryContext(ctx,
		`SELECT id, change_type, payload, created_at, synced
		 FROM pending_changes WHERE synced = 0 ORDER BY id ASC`)
	if err != nil {
		return nil, fmt.Errorf("failed to list pending changes: %w", err)
	}
	defer rows.Close()

	var records []*PendingChangeRecord
	for rows.Next() {
		var rec PendingChangeRecord
		var createdAt string
		var synced int
		if err := rows.Scan(&rec.ID, &rec.ChangeType, &rec.Payload, &createdAt, &synced); err != nil {
			return nil, fmt.Errorf("failed to scan pending change: %w", err)
		}
		if t, err := time.Parse(time.RFC3339, createdAt); err == nil {
			rec.CreatedAt = t
		}
		rec.Synced = synced != 0
		records = append(records, &rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating pending changes: %w", err)
	}
	return records, nil
}

// MarkChangeSynced flips the synced flag for one record. Idempotent:
// re-marking an already-synced or unknown id is a no-op.
func (s *Store) MarkChangeSynced(ctx context.Context, id int64) error {
	_, err := s.conn.ExecContext(ctx,
		`UPDATE pending_changes SET synced = 1 WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to mark pending change %d synced: %w", id, err)
	}
	return nil
}

// PurgeSyncedChanges deletes only records already marked synced and
// reports how many were removed.
func (s *Store) PurgeSyncedChanges(ctx context.Context) (int64, error) {
	res, err := s.conn.ExecContext(ctx, `DELETE FROM pending_changes WHERE synced = 1`)
	if err != nil {
		return 0, fmt.Errorf("failed to purge synced changes: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to count purged changes: %w", err)
	}
	return n, nil
}
