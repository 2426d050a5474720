package store

import (
	"context"
	"database/sql"
	"fmt"
)

// TicketCounterName is the singleton counter behind receipt numbering.
const TicketCounterName = "ticket"

// NextCounterRange reserves count consecutive numbers from the named
// counter and returns the first number of the range.
//
// The read-increment-write runs inside a single transaction so two
// near-simultaneous callers can never observe the same last_number. The
// counter only ever increases; it is never reset or reused.
func (s *Store) NextCounterRange(ctx context.Context, name string, count int) (int64, error) {
	if count < 1 {
		return 0, fmt.Errorf("%w: counter range count must be >= 1", ErrValidation)
	}

	tx, err := s.conn.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	var last int64
	err = tx.QueryRowContext(ctx,
		`SELECT last_number FROM counters WHERE name = ?`, name).Scan(&last)
	if err == sql.ErrNoRows {
		last = 0
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO counters (name, last_number) VALUES (?, 0)`, name); err != nil {
			return 0, fmt.Errorf("failed to initialize counter %s: %w", name, err)
		}
	} else if err != nil {
		return 0, fmt.Errorf("failed to read counter %s: %w", name, err)
	}

	if _, err := tx.ExecContext(ctx,
		`UPDATE counters SET last_number = ? WHERE name = ?`,
		last+int64(count), name); err != nil {
		return 0, fmt.Errorf("failed to advance counter %s: %w", name, err)
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit counter %s: %w", name, err)
	}

	return last + 1, nil
}

// CounterValue reports the current last_number for a counter. A counter
// that has never issued a number reads as zero.
func (s *Store) CounterValue(ctx context.Context, name string) (int64, error) {
	var last int64
	err := s.conn.QueryRowContext(ctx,
		`SELECT last_number FROM counters WHERE name = ?`, name).Scan(&last)
	if err == sql.ErrNoRows {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("failed to read counter %s: %w", name, err)
	}
	return last, nil
}
