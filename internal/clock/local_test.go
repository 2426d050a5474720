package clock

import (
	"errors"
	"io"
	"log"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lavamatic/pos/internal/kvcache"
)

func newLocalClock(t *testing.T) *LocalClock {
	t.Helper()

	cache, err := kvcache.New(t.TempDir(), log.New(io.Discard, "", 0))
	require.NoError(t, err)
	return NewLocalClock(cache)
}

func TestLocalClockInOut(t *testing.T) {
	lc := newLocalClock(t)

	start := time.Date(2026, 8, 24, 9, 0, 0, 0, time.UTC)
	lc.now = func() time.Time { return start }

	session, err := lc.ClockIn("Jane Doe")
	require.NoError(t, err)
	assert.Equal(t, "Jane Doe", session.Identifier)
	assert.Equal(t, "2026-08-24", session.SessionDate)
	assert.Nil(t, session.ClockOutTime)

	lc.now = func() time.Time { return start.Add(6 * time.Hour) }

	closed, err := lc.ClockOut("Jane Doe")
	require.NoError(t, err)
	require.NotNil(t, closed.ClockOutTime)
	assert.Equal(t, 6.0, closed.TotalHours)
}

func TestLocalClockInTwiceFails(t *testing.T) {
	lc := newLocalClock(t)

	_, err := lc.ClockIn("emp-1")
	require.NoError(t, err)

	_, err = lc.ClockIn("emp-1")
	assert.True(t, errors.Is(err, ErrAlreadyClockedIn))
}

func TestLocalClockOutWithoutIn(t *testing.T) {
	lc := newLocalClock(t)

	_, err := lc.ClockOut("emp-1")
	assert.True(t, errors.Is(err, ErrNoActiveSession))
}

func TestLocalClockOutTwiceFails(t *testing.T) {
	lc := newLocalClock(t)

	_, err := lc.ClockIn("emp-1")
	require.NoError(t, err)
	_, err = lc.ClockOut("emp-1")
	require.NoError(t, err)

	_, err = lc.ClockOut("emp-1")
	assert.True(t, errors.Is(err, ErrAlreadyClockedOut))
}

func TestLocalClockNewDayStartsFresh(t *testing.T) {
	lc := newLocalClock(t)

	day1 := time.Date(2026, 8, 24, 9, 0, 0, 0, time.UTC)
	lc.now = func() time.Time { return day1 }

	_, err := lc.ClockIn("emp-1")
	require.NoError(t, err)

	// Next calendar day: a fresh clock-in is allowed even though
	// yesterday's session was never closed.
	lc.now = func() time.Time { return day1.AddDate(0, 0, 1) }

	session, err := lc.ClockIn("emp-1")
	require.NoError(t, err)
	assert.Equal(t, "2026-08-25", session.SessionDate)
}
