// Package ticket issues the sequential numbers printed on laundry
// receipts.
//
// Numbers come from a durable monotonic counter in the local store and
// are formatted as fixed-width 3-digit strings (001, 002, ... wrapping to
// 000 for display while the counter itself keeps increasing). Callers
// needing global uniqueness combine the number with the session date.
//
// If the counter store is unavailable, the generator degrades to a
// timestamp-derived pseudo-sequence. Numbers stay well formed but global
// uniqueness becomes best effort; the degraded flag tells the caller so
// the condition is never mistaken for a success-path result.
package ticket

import (
	"context"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/lavamatic/pos/internal/store"
)

// Generator produces gap-free, monotonically increasing ticket numbers.
type Generator struct {
	store  *store.Store
	logger *log.Logger
}

// New creates a Generator backed by the given store.
// If logger is nil, a default logger writing to stderr is used.
func New(st *store.Store, logger *log.Logger) *Generator {
	if logger == nil {
		logger = log.New(os.Stderr, "[ticket] ", log.LstdFlags)
	}
	return &Generator{store: st, logger: logger}
}

// Next returns the next ticket number. The degraded flag is true when
// the durable counter was unavailable and a timestamp fallback was used.
func (g *Generator) Next(ctx context.Context) (string, bool, error) {
	numbers, degraded, err := g.NextBatch(ctx, 1)
	if err != nil {
		return "", degraded, err
	}
	return numbers[0], degraded, nil
}

// NextBatch reserves count consecutive ticket numbers in one atomic
// counter advance and returns them in order.
func (g *Generator) NextBatch(ctx context.Context, count int) ([]string, bool, error) {
	if count < 1 {
		return nil, false, fmt.Errorf("batch count must be >= 1, got %d", count)
	}

	first, err := g.store.NextCounterRange(ctx, store.TicketCounterName, count)
	if err != nil {
		g.logger.Printf("counter unavailable, falling back to timestamp sequence: %v", err)
		return g.fallbackBatch(count), true, nil
	}

	numbers := make([]string, count)
	for i := 0; i < count; i++ {
		numbers[i] = Format(first + int64(i))
	}
	return numbers, false, nil
}

// fallbackBatch derives a pseudo-sequence from the wall clock. Uniqueness
// is best effort in this mode.
func (g *Generator) fallbackBatch(count int) []string {
	base := time.Now().UnixMilli()
	numbers := make([]string, count)
	for i := 0; i < count; i++ {
		numbers[i] = Format(base + int64(i))
	}
	return numbers
}

// Format renders a counter value as the fixed-width 3-digit display form,
// truncating to the low-order digits. The counter itself is never reset
// by this wraparound.
func Format(n int64) string {
	return fmt.Sprintf("%03d", n%1000)
}
