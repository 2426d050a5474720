// Package queue is the append-only log of local mutations awaiting
// transmission to the remote store.
//
// Each entry is a typed operation plus a JSON payload, idempotently
// replayable by the sync engine. Entries transition synced false→true
// exactly once and become eligible for purging only after that
// transition, so there is no window where an unsent change can be lost.
package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"

	"github.com/lavamatic/pos/internal/store"
)

// Change type values recorded by the POS flows.
const (
	TypeClockIn  = "clock_in"
	TypeClockOut = "clock_out"
	TypeSale     = "sale"
	TypeTicket   = "ticket_issued"
)

// Queue provides ordered access to pending change records.
type Queue struct {
	store  *store.Store
	logger *log.Logger
}

// New creates a Queue backed by the given store.
// If logger is nil, a default logger writing to stderr is used.
func New(st *store.Store, logger *log.Logger) *Queue {
	if logger == nil {
		logger = log.New(os.Stderr, "[queue] ", log.LstdFlags)
	}
	return &Queue{store: st, logger: logger}
}

// Enqueue appends one unsynced change. The payload is JSON-serialized;
// this never blocks on the network.
func (q *Queue) Enqueue(ctx context.Context, changeType string, payload any) (int64, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return 0, fmt.Errorf("failed to marshal change payload: %w", err)
	}

	id, err := q.store.AppendPendingChange(ctx, &store.PendingChangeRecord{
		ChangeType: changeType,
		Payload:    string(data),
	})
	if err != nil {
		return 0, err
	}
	return id, nil
}

// ListUnsynced returns all unsynced records in creation order.
func (q *Queue) ListUnsynced(ctx context.Context) ([]*store.PendingChangeRecord, error) {
	return q.store.ListUnsyncedChanges(ctx)
}

// MarkSynced flips the synced flag for exactly the given ids.
//
// Idempotent per id: re-marking an already-synced id, or an id not in the
// queue, is a no-op. Partial failure is tolerated: records that could be
// marked stay marked and the ids that failed are returned so the caller
// can retry them on the next pass.
func (q *Queue) MarkSynced(ctx context.Context, ids []int64) (failed []int64, err error) {
	for _, id := range ids {
		if markErr := q.store.MarkChangeSynced(ctx, id); markErr != nil {
			q.logger.Printf("failed to mark change %d synced: %v", id, markErr)
			failed = append(failed, id)
			err = markErr
		}
	}
	if len(failed) > 0 {
		return failed, fmt.Errorf("failed to mark %d of %d changes synced: %w", len(failed), len(ids), err)
	}
	return nil, nil
}

// PurgeSynced deletes only records already marked synced and reports how
// many were removed.
func (q *Queue) PurgeSynced(ctx context.Context) (int64, error) {
	return q.store.PurgeSyncedChanges(ctx)
}
