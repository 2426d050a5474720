package ticket

import (
	"context"
	"io"
	"log"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lavamatic/pos/internal/store"
)

func newTestGenerator(t *testing.T) (*Generator, *store.Store) {
	t.Helper()

	st, err := store.Open(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })
	return New(st, log.New(io.Discard, "", 0)), st
}

func TestNextIsSequential(t *testing.T) {
	gen, _ := newTestGenerator(t)
	ctx := context.Background()

	for i := 1; i <= 5; i++ {
		num, degraded, err := gen.Next(ctx)
		require.NoError(t, err)
		assert.False(t, degraded)
		assert.Equal(t, Format(int64(i)), num)
	}
}

func TestNextBatchIsConsecutive(t *testing.T) {
	gen, _ := newTestGenerator(t)
	ctx := context.Background()

	numbers, degraded, err := gen.NextBatch(ctx, 4)
	require.NoError(t, err)
	assert.False(t, degraded)
	assert.Equal(t, []string{"001", "002", "003", "004"}, numbers)

	// A following batch continues where the previous left off.
	numbers, _, err = gen.NextBatch(ctx, 2)
	require.NoError(t, err)
	assert.Equal(t, []string{"005", "006"}, numbers)
}

func TestNextBatchRejectsInvalidCount(t *testing.T) {
	gen, _ := newTestGenerator(t)

	_, _, err := gen.NextBatch(context.Background(), 0)
	assert.Error(t, err)
}

func TestNextSurvivesRestart(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "test.db")
	ctx := context.Background()

	st, err := store.Open(dbPath)
	require.NoError(t, err)
	gen := New(st, log.New(io.Discard, "", 0))

	num, _, err := gen.Next(ctx)
	require.NoError(t, err)
	assert.Equal(t, "001", num)
	require.NoError(t, st.Close())

	st, err = store.Open(dbPath)
	require.NoError(t, err)
	defer st.Close()
	gen = New(st, log.New(io.Discard, "", 0))

	num, _, err = gen.Next(ctx)
	require.NoError(t, err)
	assert.Equal(t, "002", num, "counter value persists across reopen")
}

func TestNextDegradesWhenStoreClosed(t *testing.T) {
	gen, st := newTestGenerator(t)
	require.NoError(t, st.Close())

	num, degraded, err := gen.Next(context.Background())
	require.NoError(t, err)
	assert.True(t, degraded)
	assert.Len(t, num, 3, "fallback numbers keep the display width")
}

func TestFormatWrapsDisplayOnly(t *testing.T) {
	assert.Equal(t, "001", Format(1))
	assert.Equal(t, "999", Format(999))
	assert.Equal(t, "000", Format(1000))
	assert.Equal(t, "042", Format(2042))
}
